package workflow

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"bitbucket.org/mmdatafocus/wholesale_backend/config"
	"bitbucket.org/mmdatafocus/wholesale_backend/models"
	"bitbucket.org/mmdatafocus/wholesale_backend/utils"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// AllocationCandidate is one unshipped, still-short order line competing for
// stock. CreatedAt is the owning order's creation time: the FIFO priority key.
type AllocationCandidate struct {
	LineId    int       `json:"line_id"`
	OrderId   int       `json:"order_id"`
	ProductId int       `json:"product_id"`
	Color     string    `json:"color"`
	Size      string    `json:"size"`
	Remaining int       `json:"remaining"`
	CreatedAt time.Time `json:"created_at"`
}

type AllocationGrant struct {
	LineId     int    `json:"line_id"`
	VariantKey string `json:"variant_key"`
	Granted    int    `json:"granted"`
}

type AllocationShortfall struct {
	LineId    int    `json:"line_id"`
	OrderId   int    `json:"order_id"`
	ProductId int    `json:"product_id"`
	Color     string `json:"color"`
	Size      string `json:"size"`
	Requested int    `json:"requested"`
	Granted   int    `json:"granted"`
	Shortfall int    `json:"shortfall"`
}

type AllocationResult struct {
	AllocatedLines int                   `json:"allocated_lines"`
	AllocatedUnits int                   `json:"allocated_units"`
	ShortLines     int                   `json:"short_lines"`
	DryRun         bool                  `json:"dry_run"`
	Shortfalls     []AllocationShortfall `json:"shortfalls"`
}

// planAllocation assigns available stock to candidates strictly oldest order
// first. Each grant immediately reduces the remaining availability its
// successors observe, so two lines can never believe the same units are free.
// Deterministic and side-effect free; the caller applies the grants under the
// variant row locks it already holds.
func planAllocation(candidates []AllocationCandidate, available map[string]int) ([]AllocationGrant, []AllocationShortfall) {
	ordered := make([]AllocationCandidate, len(candidates))
	copy(ordered, candidates)
	sort.SliceStable(ordered, func(i, j int) bool {
		if !ordered[i].CreatedAt.Equal(ordered[j].CreatedAt) {
			return ordered[i].CreatedAt.Before(ordered[j].CreatedAt)
		}
		return ordered[i].LineId < ordered[j].LineId
	})

	grants := make([]AllocationGrant, 0, len(ordered))
	shortfalls := make([]AllocationShortfall, 0)
	for _, c := range ordered {
		if c.Remaining <= 0 {
			continue
		}
		key := variantKey(c.ProductId, c.Color, c.Size)
		avail := available[key]
		granted := c.Remaining
		if avail < granted {
			granted = avail
		}
		if granted < 0 {
			granted = 0
		}
		if granted > 0 {
			available[key] = avail - granted
			grants = append(grants, AllocationGrant{LineId: c.LineId, VariantKey: key, Granted: granted})
		}
		if granted < c.Remaining {
			shortfalls = append(shortfalls, AllocationShortfall{
				LineId:    c.LineId,
				OrderId:   c.OrderId,
				ProductId: c.ProductId,
				Color:     c.Color,
				Size:      c.Size,
				Requested: c.Remaining,
				Granted:   granted,
				Shortfall: c.Remaining - granted,
			})
		}
	}
	return grants, shortfalls
}

func variantKey(productId int, color, size string) string {
	return fmt.Sprintf("%d-%s-%s", productId, color, size)
}

// errDryRunRollback aborts the allocation transaction after a dry run so the
// planned grants are computed under the real locks but never committed.
var errDryRunRollback = errors.New("allocation dry run rollback")

// RunAllocation reserves available physical stock for every eligible order
// line, oldest order first. Reserving writes no stock ledger entry: allocation
// changes nothing physical, it only books units against lines.
//
// The whole pass runs in one transaction behind the "allocation" advisory
// lock, with every touched variant row locked FOR UPDATE, so grants are
// applied against the latest committed counters. Re-running with unchanged
// stock yields no further change.
func RunAllocation(ctx context.Context, logger *logrus.Logger) (*AllocationResult, error) {
	// Best-effort front lock; the advisory lock inside the transaction is
	// what actually guarantees serialization.
	if release, err := utils.ObtainLock(ctx, "allocation", "allocation.go", "RunAllocation"); err == nil {
		defer release()
	}

	dryRun := config.AllocationDryRun()
	var result *AllocationResult

	db := config.GetDB()
	err := db.Transaction(func(tx *gorm.DB) error {
		// Enforce strict ordering of allocation passes across instances.
		if err := AcquirePostingLock(tx.WithContext(ctx), "allocation"); err != nil {
			return err
		}
		defer ReleasePostingLock(tx.WithContext(ctx), "allocation")

		var err error
		result, err = runAllocationPass(tx.WithContext(ctx))
		if err != nil {
			return err
		}
		if dryRun {
			result.DryRun = true
			return errDryRunRollback
		}
		return nil
	})
	if err != nil && err != errDryRunRollback {
		return nil, err
	}

	// Pass bookkeeping in redis is best-effort observability, never load-bearing.
	pass, _ := config.GetRedisCounter(ctx, "allocation:pass")
	if !result.DryRun {
		_ = config.SetRedisValue("allocation:last_run", time.Now().UTC().Format(time.RFC3339), 0)
	}

	if logger != nil {
		logger.WithFields(logrus.Fields{
			"module":          "allocation",
			"pass":            pass,
			"allocated_lines": result.AllocatedLines,
			"allocated_units": result.AllocatedUnits,
			"short_lines":     result.ShortLines,
			"dry_run":         result.DryRun,
		}).Info("allocation pass completed")
	}
	return result, nil
}

func runAllocationPass(tx *gorm.DB) (*AllocationResult, error) {
	var candidates []AllocationCandidate
	if err := tx.Raw(`
		SELECT
			od.id AS line_id,
			od.order_id,
			od.product_id,
			od.color,
			od.size,
			od.qty - od.allocated_qty AS remaining,
			o.created_at
		FROM order_details od
		JOIN orders o ON o.id = od.order_id
		WHERE o.status IN (?)
		  AND od.qty > od.allocated_qty
		ORDER BY o.created_at ASC, od.id ASC
	`, models.AllocatableOrderStatuses).Scan(&candidates).Error; err != nil {
		return nil, err
	}

	result := &AllocationResult{Shortfalls: []AllocationShortfall{}}
	if len(candidates) == 0 {
		return result, nil
	}

	// Lock the competing variants and read availability under the locks.
	available := make(map[string]int)
	variantIds := make(map[string]int)
	for _, c := range candidates {
		key := variantKey(c.ProductId, c.Color, c.Size)
		if _, done := variantIds[key]; done {
			continue
		}
		variant, err := models.LockVariant(tx, c.ProductId, c.Color, c.Size)
		if err != nil {
			return nil, err
		}
		available[key] = variant.AvailableStock()
		variantIds[key] = variant.ID
	}

	grants, shortfalls := planAllocation(candidates, available)
	result.ShortLines = len(shortfalls)
	result.Shortfalls = shortfalls

	for _, g := range grants {
		if err := models.AdjustVariantStock(tx, variantIds[g.VariantKey], 0, g.Granted); err != nil {
			return nil, err
		}
		if err := tx.Exec(
			"UPDATE order_details SET allocated_qty = allocated_qty + ? WHERE id = ?",
			g.Granted, g.LineId,
		).Error; err != nil {
			return nil, err
		}
		result.AllocatedLines++
		result.AllocatedUnits += g.Granted
	}
	return result, nil
}
