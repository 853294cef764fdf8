package models

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/wholesale_backend/config"
	"bitbucket.org/mmdatafocus/wholesale_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// MileageHistory is the append-only per-customer credit/debit log. Amount is
// signed: earn entries are positive, spend entries negative.
type MileageHistory struct {
	ID                   int             `gorm:"primary_key" json:"id"`
	CustomerId           int             `gorm:"index;not null" json:"customer_id"`
	Amount               decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"amount"`
	Type                 MileageType     `gorm:"type:enum('Earn','Spend');not null" json:"type"`
	Source               MileageSource   `gorm:"type:enum('Order','Refund','Manual','Auto');not null" json:"source"`
	Status               MileageStatus   `gorm:"type:enum('Completed','Cancelled');not null;default:'Completed'" json:"status"`
	ReferenceStatementId *int            `gorm:"index" json:"reference_statement_id"`
	ReferenceOrderId     *int            `gorm:"index" json:"reference_order_id"`
	CreatedAt            time.Time       `gorm:"autoCreateTime;index" json:"created_at"`
}

// AddMileageEntry appends a mileage ledger entry and applies its signed amount
// to the customer's cached balance, in the caller's transaction. The balance
// column is never written any other way. Negative balances are permitted.
func AddMileageEntry(tx *gorm.DB, entry *MileageHistory) error {
	if entry.Status == "" {
		entry.Status = MileageStatusCompleted
	}
	if err := tx.Create(entry).Error; err != nil {
		return err
	}

	result := tx.Exec(
		"UPDATE customers SET mileage_balance = mileage_balance + ? WHERE id = ?",
		entry.Amount, entry.CustomerId,
	)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected != 1 {
		return utils.ErrorRecordNotFound
	}
	return nil
}

// SumMileage returns the ledger-derived balance for a customer.
func SumMileage(ctx context.Context, customerId int) (decimal.Decimal, error) {
	db := config.GetDB()
	var total decimal.Decimal
	err := db.WithContext(ctx).
		Model(&MileageHistory{}).
		Select("COALESCE(SUM(amount), 0)").
		Where("customer_id = ? AND status = ?", customerId, MileageStatusCompleted).
		Scan(&total).Error
	if err != nil {
		return decimal.Zero, err
	}
	return total, nil
}

// RecomputeMileageBalance overwrites the cached balance with the ledger sum.
// Used by the recompute CLI and by reconciliation fixes; returns the old and
// new values so the caller can log the drift.
func RecomputeMileageBalance(tx *gorm.DB, customerId int) (old, recomputed decimal.Decimal, err error) {
	var customer Customer
	if err = tx.First(&customer, customerId).Error; err != nil {
		return decimal.Zero, decimal.Zero, utils.ErrorRecordNotFound
	}
	old = customer.MileageBalance

	err = tx.Model(&MileageHistory{}).
		Select("COALESCE(SUM(amount), 0)").
		Where("customer_id = ? AND status = ?", customerId, MileageStatusCompleted).
		Scan(&recomputed).Error
	if err != nil {
		return old, decimal.Zero, err
	}

	if !old.Equal(recomputed) {
		if err = tx.Model(&Customer{}).Where("id = ?", customerId).
			Update("mileage_balance", recomputed).Error; err != nil {
			return old, recomputed, err
		}
	}
	return old, recomputed, nil
}
