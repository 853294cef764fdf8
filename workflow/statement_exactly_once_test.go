package workflow

import (
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
)

// NOTE: These tests are intentionally DB-free. They validate the settlement
// semantics the processor relies on:
// - the (status, flag) pair admits each statement exactly once
// - duplicate and concurrent batch submissions never double-deduct
// - skipped and failed statements are reported per item, by id and reason
//
// The real guard runs under a row lock plus an idempotency key; the fake
// reproduces the same admit-once decision in memory.

type fakeStatement struct {
	pending         bool
	mileageDeducted bool
	amount          decimal.Decimal
}

type fakeSettlement struct {
	mu         sync.Mutex
	statements map[int]*fakeStatement
	balance    decimal.Decimal
	processed  int
}

func newFakeSettlement(balance decimal.Decimal) *fakeSettlement {
	return &fakeSettlement{statements: map[int]*fakeStatement{}, balance: balance}
}

func (f *fakeSettlement) add(id int, amount decimal.Decimal) {
	f.statements[id] = &fakeStatement{pending: true, amount: amount}
}

// process settles one statement. An empty skip reason and nil error means it
// was deducted; a non-empty skip reason means it was already settled.
func (f *fakeSettlement) process(id int) (skipReason string, err error) {
	// Row lock equivalent.
	f.mu.Lock()
	defer f.mu.Unlock()

	s := f.statements[id]
	if s == nil {
		return "", fmt.Errorf("statement %d: no customer record", id)
	}
	if !s.pending || s.mileageDeducted {
		// Already settled: skip, never re-deduct.
		return fmt.Sprintf("Statement %d already processed", id), nil
	}
	f.balance = f.balance.Sub(s.amount)
	s.pending = false
	s.mileageDeducted = true
	f.processed++
	return "", nil
}

// processBatch mirrors the ProcessStatements loop: failures and skips are both
// reported per item and never stop the batch.
func (f *fakeSettlement) processBatch(ids []int) *StatementProcessingResult {
	result := &StatementProcessingResult{TotalAmount: decimal.Zero, Errors: []StatementError{}}
	for _, id := range ids {
		skipReason, err := f.process(id)
		if err != nil {
			result.Errors = append(result.Errors, StatementError{StatementId: id, Reason: err.Error()})
			continue
		}
		if skipReason != "" {
			result.SkippedCount++
			result.Errors = append(result.Errors, StatementError{StatementId: id, Reason: skipReason})
			continue
		}
		result.ProcessedCount++
	}
	return result
}

func TestStatementSettlement_DuplicateBatchDeductsOnce(t *testing.T) {
	f := newFakeSettlement(decimal.NewFromInt(100))
	f.add(1, decimal.NewFromInt(30))

	batch := []int{1, 1, 1}
	for _, id := range batch {
		f.process(id)
	}
	// Whole batch re-submitted.
	for _, id := range batch {
		f.process(id)
	}

	if f.processed != 1 {
		t.Errorf("expected 1 settlement, got %d", f.processed)
	}
	if !f.balance.Equal(decimal.NewFromInt(70)) {
		t.Errorf("expected balance 70, got %s", f.balance)
	}
}

func TestStatementSettlement_ConcurrentSubmissionsDeductOnce(t *testing.T) {
	f := newFakeSettlement(decimal.NewFromInt(100))
	f.add(1, decimal.NewFromInt(30))
	f.add(2, decimal.NewFromInt(20))

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.process(1)
			f.process(2)
		}()
	}
	wg.Wait()

	if f.processed != 2 {
		t.Errorf("expected 2 settlements, got %d", f.processed)
	}
	if !f.balance.Equal(decimal.NewFromInt(50)) {
		t.Errorf("expected balance 50, got %s", f.balance)
	}
}

func TestStatementSettlement_FailedStatementDoesNotBlockBatch(t *testing.T) {
	f := newFakeSettlement(decimal.NewFromInt(100))
	f.add(2, decimal.NewFromInt(20))

	// Statement 1 is unknown (unresolvable customer); 2 must still settle.
	result := f.processBatch([]int{1, 2})

	if f.processed != 1 {
		t.Errorf("expected 1 settlement, got %d", f.processed)
	}
	if !f.balance.Equal(decimal.NewFromInt(80)) {
		t.Errorf("expected balance 80, got %s", f.balance)
	}
	if len(result.Errors) != 1 || result.Errors[0].StatementId != 1 {
		t.Fatalf("expected a reported failure for statement 1, got %+v", result.Errors)
	}
}

func TestStatementSettlement_SkipIsReportedPerItem(t *testing.T) {
	f := newFakeSettlement(decimal.NewFromInt(100))
	f.add(1, decimal.NewFromInt(30))
	f.add(2, decimal.NewFromInt(20))

	first := f.processBatch([]int{1, 2})
	if first.ProcessedCount != 2 || first.SkippedCount != 0 || len(first.Errors) != 0 {
		t.Fatalf("first batch: got %+v", first)
	}

	// Re-submitting must skip both and say which and why, not fold them
	// into a bare count.
	second := f.processBatch([]int{1, 2})
	if second.ProcessedCount != 0 || second.SkippedCount != 2 {
		t.Fatalf("second batch: got %+v", second)
	}
	if len(second.Errors) != 2 {
		t.Fatalf("expected 2 reported skips, got %+v", second.Errors)
	}
	for i, wantId := range []int{1, 2} {
		if second.Errors[i].StatementId != wantId {
			t.Errorf("skip %d: expected statement %d, got %d", i, wantId, second.Errors[i].StatementId)
		}
		if !strings.Contains(second.Errors[i].Reason, "already processed") {
			t.Errorf("skip %d: reason %q does not say why", i, second.Errors[i].Reason)
		}
	}
	if !f.balance.Equal(decimal.NewFromInt(50)) {
		t.Errorf("expected balance 50 after both batches, got %s", f.balance)
	}
}
