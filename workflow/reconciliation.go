package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/wholesale_backend/config"
	"bitbucket.org/mmdatafocus/wholesale_backend/models"
	"bitbucket.org/mmdatafocus/wholesale_backend/utils"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// AllocationDrift is one variant whose cached allocated_stock disagrees with
// the reservations actually held by live order lines.
type AllocationDrift struct {
	VariantId int    `json:"variant_id"`
	ProductId int    `json:"product_id"`
	Color     string `json:"color"`
	Size      string `json:"size"`
	Stored    int    `json:"stored"`
	Derived   int    `json:"derived"`
}

// CheckAllocationDrift compares every variant's allocated_stock against the
// sum of allocated_qty over order lines of non-cancelled orders. The two are
// updated in the same statement everywhere, so any drift means a bug or a
// manual edit and is worth a report row.
func CheckAllocationDrift(ctx context.Context) ([]AllocationDrift, error) {
	db := config.GetDB()
	var drifts []AllocationDrift
	err := db.WithContext(ctx).Raw(`
		SELECT
			pv.id AS variant_id,
			pv.product_id,
			pv.color,
			pv.size,
			pv.allocated_stock AS stored,
			COALESCE(live.total, 0) AS derived
		FROM product_variants pv
		LEFT JOIN (
			SELECT od.product_id, od.color, od.size, SUM(od.allocated_qty) AS total
			FROM order_details od
			JOIN orders o ON o.id = od.order_id
			WHERE o.status <> ?
			GROUP BY od.product_id, od.color, od.size
		) live ON live.product_id = pv.product_id AND live.color = pv.color AND live.size = pv.size
		HAVING stored <> derived
	`, models.OrderStatusCancelled).Scan(&drifts).Error
	if err != nil {
		return nil, err
	}
	return drifts, nil
}

// FixAllocationDrift rewrites drifted allocated_stock counters. With precise
// set, each counter becomes the derived sum; otherwise every drifted counter
// is reset to zero for the next allocation pass to rebuild. Every fix leaves
// a report row.
func FixAllocationDrift(ctx context.Context, logger *logrus.Logger, precise bool) (int, error) {
	drifts, err := CheckAllocationDrift(ctx)
	if err != nil {
		return 0, err
	}
	if len(drifts) == 0 {
		return 0, nil
	}

	correlationId := uuid.NewString()
	db := config.GetDB()
	err = db.Transaction(func(tx *gorm.DB) error {
		tx = tx.WithContext(ctx)
		for _, d := range drifts {
			target := d.Derived
			if !precise {
				target = 0
			}
			if _, err := models.LockVariantById(tx, d.VariantId); err != nil {
				return err
			}
			if err := models.SetAllocatedStock(tx, d.VariantId, target); err != nil {
				return err
			}
			if err := tx.Create(&models.ReconciliationReport{
				CheckType:     "ALLOCATION_DRIFT_FIXED",
				EntityType:    "ProductVariant",
				EntityId:      d.VariantId,
				Details:       fmt.Sprintf("allocated_stock %d -> %d (derived %d)", d.Stored, target, d.Derived),
				CorrelationId: correlationId,
			}).Error; err != nil {
				return err
			}
			if logger != nil {
				logger.WithFields(logrus.Fields{
					"module":         "reconciliation",
					"variant_id":     d.VariantId,
					"stored":         d.Stored,
					"target":         target,
					"derived":        d.Derived,
					"correlation_id": correlationId,
				}).Warn("allocation drift fixed")
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(drifts), nil
}

// AuditCount is one physically counted variant.
type AuditCount struct {
	ProductId int    `json:"product_id" binding:"required"`
	Color     string `json:"color" binding:"required"`
	Size      string `json:"size" binding:"required"`
	ActualQty int    `json:"actual_qty"`
}

type AuditResult struct {
	AuditId       int         `json:"audit_id"`
	AdjustedLines int         `json:"adjusted_lines"`
	Errors        []LineError `json:"errors"`
}

// RunPhysicalAudit reconciles counted stock against stored stock. For each
// counted variant the difference becomes one Audit ledger entry, bringing
// physical_stock to the counted value. Variants whose count matches produce
// nothing, so re-submitting the same counts is harmless. A count naming an
// unknown variant is reported per item; the rest of the sheet still applies.
func RunPhysicalAudit(ctx context.Context, logger *logrus.Logger, auditId int, counts []AuditCount) (*AuditResult, error) {
	db := config.GetDB()
	result := &AuditResult{AuditId: auditId, Errors: []LineError{}}

	err := db.Transaction(func(tx *gorm.DB) error {
		tx = tx.WithContext(ctx)

		if err := AcquirePostingLock(tx, fmt.Sprintf("audit:%d", auditId)); err != nil {
			return err
		}
		defer ReleasePostingLock(tx, fmt.Sprintf("audit:%d", auditId))

		for _, c := range counts {
			variant, err := models.LockVariant(tx, c.ProductId, c.Color, c.Size)
			if errors.Is(err, utils.ErrorRecordNotFound) {
				result.Errors = append(result.Errors, LineError{
					Reason: fmt.Sprintf("no variant for product %d (%s/%s)", c.ProductId, c.Color, c.Size),
				})
				continue
			}
			if err != nil {
				return err
			}
			actual := c.ActualQty
			if actual < 0 && config.ClampNegativePhysicalStock() {
				actual = 0
			}
			diff := actual - variant.PhysicalStock
			if diff == 0 {
				continue
			}
			entry := &models.StockLedgerEntry{
				ProductId:     c.ProductId,
				Color:         c.Color,
				Size:          c.Size,
				QtyDelta:      diff,
				MovementType:  models.StockMovementTypeAudit,
				ReferenceType: models.StockReferenceTypeAudit,
				ReferenceId:   auditId,
				Notes:         fmt.Sprintf("count %d against stored %d", actual, variant.PhysicalStock),
			}
			if err := models.ApplyStockMovement(tx, entry, 0); err != nil {
				return err
			}
			result.AdjustedLines++
			if actual < 0 {
				variant.PhysicalStock = actual
				models.WarnNegativePhysicalStock(tx, logger, variant, correlationId(ctx))
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if logger != nil {
		logger.WithFields(logrus.Fields{
			"module":         "reconciliation",
			"audit_id":       auditId,
			"counted_lines":  len(counts),
			"adjusted_lines": result.AdjustedLines,
		}).Info("physical audit applied")
	}
	return result, nil
}

type ReconciliationSummary struct {
	CorrelationId    string `json:"correlation_id"`
	VariantsChecked  int    `json:"variants_checked"`
	CustomersChecked int    `json:"customers_checked"`
	Findings         int    `json:"findings"`
}

// RunReconciliationChecks sweeps the whole system for stored counters that
// disagree with their source of truth. It only reports; nothing is mutated.
// All findings of one run share a correlation id.
//
// Checks: ledger sum vs physical_stock, live reservations vs allocated_stock,
// mileage ledger sum vs cached balance, and negative physical stock.
func RunReconciliationChecks(ctx context.Context, logger *logrus.Logger) (*ReconciliationSummary, error) {
	db := config.GetDB()
	summary := &ReconciliationSummary{CorrelationId: uuid.NewString()}

	var variants []models.ProductVariant
	if err := db.WithContext(ctx).Find(&variants).Error; err != nil {
		return nil, err
	}
	summary.VariantsChecked = len(variants)

	for i := range variants {
		v := &variants[i]
		ledgerSum, err := models.SumLedgerQty(ctx, v.ProductId, v.Color, v.Size)
		if err != nil {
			return nil, err
		}
		if ledgerSum != v.PhysicalStock {
			mismatch := &utils.ConsistencyError{Subject: fmt.Sprintf("variant %d physical_stock", v.ID), Stored: v.PhysicalStock, Derived: ledgerSum}
			if err := reportFinding(ctx, summary, "LEDGER_MISMATCH", "ProductVariant", v.ID, mismatch.Error()); err != nil {
				return nil, err
			}
		}
		if v.PhysicalStock < 0 {
			if err := reportFinding(ctx, summary, "NEGATIVE_STOCK", "ProductVariant", v.ID,
				fmt.Sprintf("physical_stock %d", v.PhysicalStock)); err != nil {
				return nil, err
			}
		}
	}

	drifts, err := CheckAllocationDrift(ctx)
	if err != nil {
		return nil, err
	}
	for _, d := range drifts {
		drift := &utils.ConsistencyError{Subject: fmt.Sprintf("variant %d allocated_stock", d.VariantId), Stored: d.Stored, Derived: d.Derived}
		if err := reportFinding(ctx, summary, "ALLOCATION_DRIFT", "ProductVariant", d.VariantId, drift.Error()); err != nil {
			return nil, err
		}
	}

	var customers []models.Customer
	if err := db.WithContext(ctx).Find(&customers).Error; err != nil {
		return nil, err
	}
	summary.CustomersChecked = len(customers)
	for i := range customers {
		c := &customers[i]
		ledgerSum, err := models.SumMileage(ctx, c.ID)
		if err != nil {
			return nil, err
		}
		if !ledgerSum.Equal(c.MileageBalance) {
			if err := reportFinding(ctx, summary, "MILEAGE_MISMATCH", "Customer", c.ID,
				fmt.Sprintf("ledger sum %s, cached balance %s", ledgerSum.String(), c.MileageBalance.String())); err != nil {
				return nil, err
			}
		}
	}

	// Keep the latest summary around for the ops surface; best-effort.
	_ = config.SetRedisObject("reconcile:last_summary", summary, 7*24*time.Hour)

	if logger != nil {
		logger.WithFields(logrus.Fields{
			"module":            "reconciliation",
			"correlation_id":    summary.CorrelationId,
			"variants_checked":  summary.VariantsChecked,
			"customers_checked": summary.CustomersChecked,
			"findings":          summary.Findings,
		}).Info("reconciliation sweep completed")
	}
	return summary, nil
}

func reportFinding(ctx context.Context, summary *ReconciliationSummary, checkType, entityType string, entityId int, details string) error {
	summary.Findings++
	db := config.GetDB()
	return db.WithContext(ctx).Create(&models.ReconciliationReport{
		CheckType:     checkType,
		EntityType:    entityType,
		EntityId:      entityId,
		Details:       details,
		CorrelationId: summary.CorrelationId,
	}).Error
}
