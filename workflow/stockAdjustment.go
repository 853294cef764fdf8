package workflow

import (
	"context"
	"fmt"

	"bitbucket.org/mmdatafocus/wholesale_backend/config"
	"bitbucket.org/mmdatafocus/wholesale_backend/models"
	"bitbucket.org/mmdatafocus/wholesale_backend/utils"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// StockAdjustment records one non-order stock movement: samples going out or
// coming back, or a manual correction.
type StockAdjustment struct {
	ProductId    int    `json:"product_id" binding:"required"`
	Color        string `json:"color" binding:"required"`
	Size         string `json:"size" binding:"required"`
	QtyDelta     int    `json:"qty_delta" binding:"required"`
	MovementType string `json:"movement_type" binding:"required"`
	ReferenceId  int    `json:"reference_id"`
	Notes        string `json:"notes"`
}

var adjustmentMovements = map[string]struct {
	movement  models.StockMovementType
	reference models.StockReferenceType
	// direction pins the sign of qty_delta, 0 allows either.
	direction int
}{
	"Sample Out":        {models.StockMovementTypeSampleOut, models.StockReferenceTypeSample, -1},
	"Sample Return":     {models.StockMovementTypeSampleReturn, models.StockReferenceTypeSample, 1},
	"Manual Adjustment": {models.StockMovementTypeManualAdjustment, models.StockReferenceTypeManual, 0},
}

// RecordStockAdjustment appends the ledger entry and moves physical stock in
// one transaction. Sample movements are sign-checked so a sample out can never
// silently add stock.
func RecordStockAdjustment(ctx context.Context, logger *logrus.Logger, input *StockAdjustment) (*models.ProductVariant, error) {
	spec, ok := adjustmentMovements[input.MovementType]
	if !ok {
		return nil, utils.NewValidationError("movement_type", fmt.Sprintf("unknown movement type %q", input.MovementType))
	}
	if input.QtyDelta == 0 {
		return nil, utils.NewValidationError("qty_delta", "must be non-zero")
	}
	if spec.direction < 0 && input.QtyDelta > 0 {
		return nil, utils.NewValidationError("qty_delta", "must be negative for sample out")
	}
	if spec.direction > 0 && input.QtyDelta < 0 {
		return nil, utils.NewValidationError("qty_delta", "must be positive for sample return")
	}

	// Best-effort front lock per variant; the row lock below is the authority.
	if release, err := utils.ObtainLock(ctx, utils.VariantLockKey(input.ProductId, input.Color, input.Size),
		"stockAdjustment.go", "RecordStockAdjustment"); err == nil {
		defer release()
	}

	db := config.GetDB()
	var variant *models.ProductVariant
	err := db.Transaction(func(tx *gorm.DB) error {
		tx = tx.WithContext(ctx)

		locked, err := models.LockVariant(tx, input.ProductId, input.Color, input.Size)
		if err != nil {
			return err
		}
		if config.ClampNegativePhysicalStock() && locked.PhysicalStock+input.QtyDelta < 0 {
			return utils.NewValidationError("qty_delta",
				fmt.Sprintf("would drive physical stock to %d", locked.PhysicalStock+input.QtyDelta))
		}
		entry := &models.StockLedgerEntry{
			ProductId:     input.ProductId,
			Color:         input.Color,
			Size:          input.Size,
			QtyDelta:      input.QtyDelta,
			MovementType:  spec.movement,
			ReferenceType: spec.reference,
			ReferenceId:   input.ReferenceId,
			Notes:         input.Notes,
		}
		if err := models.ApplyStockMovement(tx, entry, 0); err != nil {
			return err
		}
		locked.PhysicalStock += input.QtyDelta
		if locked.PhysicalStock < 0 {
			models.WarnNegativePhysicalStock(tx, logger, locked, correlationId(ctx))
		}
		variant = locked
		return nil
	})
	if err != nil {
		return nil, err
	}

	if logger != nil {
		fields := logrus.Fields{
			"module":        "stockAdjustment",
			"product_id":    input.ProductId,
			"color":         input.Color,
			"size":          input.Size,
			"qty_delta":     input.QtyDelta,
			"movement_type": input.MovementType,
		}
		// Manual movements are the ones auditors ask about; log who did it.
		if userId, ok := utils.GetUserIdFromContext(ctx); ok {
			fields["user_id"] = userId
		}
		if userName, ok := utils.GetUserNameFromContext(ctx); ok {
			fields["user_name"] = userName
		}
		logger.WithFields(fields).Info("stock adjustment recorded")
	}
	return variant, nil
}
