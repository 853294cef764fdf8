package models

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/wholesale_backend/config"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// StockLedgerEntry is the append-only record of every physical-stock change.
// Rows are never updated or deleted: the running sum of qty_delta per variant
// since system start must equal current physical_stock minus its initial value.
type StockLedgerEntry struct {
	ID            int                `gorm:"primary_key" json:"id"`
	ProductId     int                `gorm:"index:idx_ledger_variant;not null" json:"product_id"`
	Color         string             `gorm:"index:idx_ledger_variant;size:50;not null" json:"color"`
	Size          string             `gorm:"index:idx_ledger_variant;size:50;not null" json:"size"`
	QtyDelta      int                `gorm:"not null" json:"qty_delta"`
	MovementType  StockMovementType  `gorm:"type:enum('Shipment','Return','Sample Out','Sample Return','Audit','Manual Adjustment');not null" json:"movement_type"`
	ReferenceType StockReferenceType `gorm:"type:enum('OD','ST','AU','SP','MN')" json:"reference_type"`
	ReferenceId   int                `gorm:"index" json:"reference_id"`
	Notes         string             `gorm:"type:text" json:"notes"`
	CreatedAt     time.Time          `gorm:"autoCreateTime;index" json:"created_at"`
}

// ApplyStockMovement appends a ledger entry and applies its qty_delta to the
// variant's physical stock, in the caller's transaction. allocatedDelta lets
// shipment consume the reservation in the same statement (physical and
// allocated both drop by the shipped quantity).
//
// Either both writes happen or neither: any error must be answered with a
// rollback by the caller. This is the single primitive behind shipment,
// return, audit, sample movement and manual adjustment. Allocation does NOT
// go through here - reserving stock is not an auditable physical movement.
func ApplyStockMovement(tx *gorm.DB, entry *StockLedgerEntry, allocatedDelta int) error {
	if err := tx.Create(entry).Error; err != nil {
		return err
	}

	result := tx.Exec(
		"UPDATE product_variants SET physical_stock = physical_stock + ?, allocated_stock = allocated_stock + ? WHERE product_id = ? AND color = ? AND size = ?",
		entry.QtyDelta, allocatedDelta, entry.ProductId, entry.Color, entry.Size,
	)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected != 1 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// SumLedgerQty returns the running qty_delta sum for a variant. Reconciliation
// compares it against the stored physical counter.
func SumLedgerQty(ctx context.Context, productId int, color, size string) (int, error) {
	db := config.GetDB()
	var total *int
	err := db.WithContext(ctx).
		Model(&StockLedgerEntry{}).
		Select("COALESCE(SUM(qty_delta), 0)").
		Where("product_id = ? AND color = ? AND size = ?", productId, color, size).
		Scan(&total).Error
	if err != nil {
		return 0, err
	}
	if total == nil {
		return 0, nil
	}
	return *total, nil
}

// WarnNegativePhysicalStock logs and reports a variant whose physical stock
// went below zero. Negative stock is permitted (the audited count is the
// truth) but always surfaced.
func WarnNegativePhysicalStock(tx *gorm.DB, logger *logrus.Logger, variant *ProductVariant, correlationId string) {
	if logger != nil {
		logger.WithFields(logrus.Fields{
			"module":         "stockLedger",
			"product_id":     variant.ProductId,
			"color":          variant.Color,
			"size":           variant.Size,
			"physical_stock": variant.PhysicalStock,
			"correlation_id": correlationId,
		}).Warn("physical stock is negative")
	}
	_ = tx.Create(&ReconciliationReport{
		CheckType:     "NEGATIVE_STOCK",
		EntityType:    "ProductVariant",
		EntityId:      variant.ID,
		Details:       "physical stock below zero after movement",
		CorrelationId: correlationId,
	}).Error
}
