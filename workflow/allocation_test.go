package workflow

import (
	"testing"
	"time"
)

// NOTE: These tests are intentionally DB-free. They validate the planner
// semantics the engine relies on:
// - strictly oldest order first, line id as tie break
// - a grant immediately reduces what later lines can see
// - short lines receive whatever is left, never more
//
// Full DB integration coverage lives in the models regression tests.

func candidate(lineId, orderId int, key string, remaining int, created time.Time) AllocationCandidate {
	return AllocationCandidate{
		LineId:    lineId,
		OrderId:   orderId,
		ProductId: 1,
		Color:     "Black",
		Size:      key,
		Remaining: remaining,
		CreatedAt: created,
	}
}

func TestPlanAllocation_OlderOrderWinsContestedStock(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	candidates := []AllocationCandidate{
		// Newer order listed first to prove ordering comes from created_at,
		// not input position.
		candidate(21, 2, "M", 7, t0.Add(time.Hour)),
		candidate(11, 1, "M", 6, t0),
	}
	available := map[string]int{variantKey(1, "Black", "M"): 10}

	grants, shortfalls := planAllocation(candidates, available)

	if len(grants) != 2 {
		t.Fatalf("expected 2 grants, got %d: %+v", len(grants), grants)
	}
	if grants[0].LineId != 11 || grants[0].Granted != 6 {
		t.Errorf("older line should take its full 6 first, got %+v", grants[0])
	}
	if grants[1].LineId != 21 || grants[1].Granted != 4 {
		t.Errorf("newer line should get the remaining 4, got %+v", grants[1])
	}
	if len(shortfalls) != 1 {
		t.Fatalf("expected 1 shortfall, got %d: %+v", len(shortfalls), shortfalls)
	}
	sf := shortfalls[0]
	if sf.LineId != 21 || sf.Requested != 7 || sf.Granted != 4 || sf.Shortfall != 3 {
		t.Errorf("unexpected shortfall %+v", sf)
	}
	if available[variantKey(1, "Black", "M")] != 0 {
		t.Errorf("availability should be exhausted, got %d", available[variantKey(1, "Black", "M")])
	}
}

func TestPlanAllocation_LineIdBreaksCreatedAtTies(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	candidates := []AllocationCandidate{
		candidate(5, 1, "M", 3, t0),
		candidate(4, 1, "M", 3, t0),
	}
	available := map[string]int{variantKey(1, "Black", "M"): 4}

	grants, _ := planAllocation(candidates, available)

	if len(grants) != 2 {
		t.Fatalf("expected 2 grants, got %+v", grants)
	}
	if grants[0].LineId != 4 || grants[0].Granted != 3 {
		t.Errorf("lower line id should win the tie, got %+v", grants[0])
	}
	if grants[1].LineId != 5 || grants[1].Granted != 1 {
		t.Errorf("higher line id should get the remainder, got %+v", grants[1])
	}
}

func TestPlanAllocation_NoAvailabilityMeansFullShortfall(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	candidates := []AllocationCandidate{candidate(1, 1, "M", 5, t0)}

	tests := []struct {
		name  string
		avail int
	}{
		{"zero availability", 0},
		{"negative availability", -2},
		{"variant missing from map", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			available := map[string]int{}
			if tt.name != "variant missing from map" {
				available[variantKey(1, "Black", "M")] = tt.avail
			}
			grants, shortfalls := planAllocation(candidates, available)
			if len(grants) != 0 {
				t.Errorf("expected no grants, got %+v", grants)
			}
			if len(shortfalls) != 1 || shortfalls[0].Shortfall != 5 || shortfalls[0].Granted != 0 {
				t.Errorf("expected full shortfall of 5, got %+v", shortfalls)
			}
		})
	}
}

func TestPlanAllocation_IndependentVariantsDoNotInterfere(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	candidates := []AllocationCandidate{
		candidate(1, 1, "M", 2, t0),
		candidate(2, 1, "L", 9, t0),
	}
	available := map[string]int{
		variantKey(1, "Black", "M"): 2,
		variantKey(1, "Black", "L"): 9,
	}

	grants, shortfalls := planAllocation(candidates, available)

	if len(grants) != 2 || len(shortfalls) != 0 {
		t.Fatalf("both lines should be fully granted: grants=%+v shortfalls=%+v", grants, shortfalls)
	}
}

func TestPlanAllocation_AlreadySatisfiedLinesAreSkipped(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	candidates := []AllocationCandidate{
		candidate(1, 1, "M", 0, t0),
		candidate(2, 2, "M", 3, t0.Add(time.Minute)),
	}
	available := map[string]int{variantKey(1, "Black", "M"): 3}

	grants, shortfalls := planAllocation(candidates, available)

	if len(grants) != 1 || grants[0].LineId != 2 || grants[0].Granted != 3 {
		t.Errorf("only the unsatisfied line should be granted, got %+v", grants)
	}
	if len(shortfalls) != 0 {
		t.Errorf("expected no shortfalls, got %+v", shortfalls)
	}
}

func TestPlanAllocation_IsDeterministic(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	build := func() ([]AllocationCandidate, map[string]int) {
		return []AllocationCandidate{
				candidate(3, 3, "M", 4, t0.Add(2*time.Minute)),
				candidate(1, 1, "M", 4, t0),
				candidate(2, 2, "M", 4, t0.Add(time.Minute)),
			}, map[string]int{
				variantKey(1, "Black", "M"): 10,
			}
	}

	c1, a1 := build()
	g1, s1 := planAllocation(c1, a1)
	c2, a2 := build()
	g2, s2 := planAllocation(c2, a2)

	if len(g1) != len(g2) || len(s1) != len(s2) {
		t.Fatalf("plan sizes differ between runs")
	}
	for i := range g1 {
		if g1[i] != g2[i] {
			t.Errorf("grant %d differs: %+v vs %+v", i, g1[i], g2[i])
		}
	}
	for i := range s1 {
		if s1[i] != s2[i] {
			t.Errorf("shortfall %d differs: %+v vs %+v", i, s1[i], s2[i])
		}
	}
}

func TestPlanAllocation_InputSliceIsNotReordered(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	candidates := []AllocationCandidate{
		candidate(2, 2, "M", 1, t0.Add(time.Minute)),
		candidate(1, 1, "M", 1, t0),
	}
	available := map[string]int{variantKey(1, "Black", "M"): 2}

	planAllocation(candidates, available)

	if candidates[0].LineId != 2 || candidates[1].LineId != 1 {
		t.Errorf("caller's slice was mutated: %+v", candidates)
	}
}
