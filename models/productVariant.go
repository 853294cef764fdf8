package models

import (
	"context"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/wholesale_backend/config"
	"bitbucket.org/mmdatafocus/wholesale_backend/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ProductVariant is the unit of stock tracking: one row per (product, color, size).
//
// PhysicalStock is on-hand quantity; AllocatedStock is reserved against open
// order lines. Available = PhysicalStock - AllocatedStock and is the only
// quantity ever offered to new allocation.
//
// Both counters are mutated exclusively through server-side arithmetic
// (UPDATE ... SET x = x + ?) so concurrent requests cannot overwrite each
// other's deltas with stale reads.
type ProductVariant struct {
	ID             int       `gorm:"primary_key" json:"id"`
	ProductId      int       `gorm:"not null;index:uniq_variant,unique" json:"product_id"`
	Color          string    `gorm:"size:50;not null;index:uniq_variant,unique" json:"color"`
	Size           string    `gorm:"size:50;not null;index:uniq_variant,unique" json:"size"`
	PhysicalStock  int       `gorm:"not null;default:0" json:"physical_stock"`
	AllocatedStock int       `gorm:"not null;default:0" json:"allocated_stock"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewProductVariant struct {
	Color         string `json:"color"`
	Size          string `json:"size"`
	PhysicalStock int    `json:"physical_stock"`
}

func (pv *ProductVariant) AvailableStock() int {
	return pv.PhysicalStock - pv.AllocatedStock
}

func (pv *ProductVariant) Key() string {
	return fmt.Sprintf("%d-%s-%s", pv.ProductId, pv.Color, pv.Size)
}

// LockVariant fetches the variant row FOR UPDATE. Callers must already be
// inside a transaction; the row lock serializes competing allocations and
// shipments on the same variant until commit.
func LockVariant(tx *gorm.DB, productId int, color, size string) (*ProductVariant, error) {
	var variant ProductVariant
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("product_id = ? AND color = ? AND size = ?", productId, color, size).
		First(&variant).Error; err != nil {
		return nil, utils.ErrorRecordNotFound
	}
	return &variant, nil
}

func LockVariantById(tx *gorm.DB, id int) (*ProductVariant, error) {
	var variant ProductVariant
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&variant, id).Error; err != nil {
		return nil, utils.ErrorRecordNotFound
	}
	return &variant, nil
}

// AdjustVariantStock applies deltas to the variant's counters server-side.
// Exactly one row must be affected.
func AdjustVariantStock(tx *gorm.DB, variantId int, physicalDelta, allocatedDelta int) error {
	result := tx.Exec(
		"UPDATE product_variants SET physical_stock = physical_stock + ?, allocated_stock = allocated_stock + ? WHERE id = ?",
		physicalDelta, allocatedDelta, variantId,
	)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected != 1 {
		return utils.ErrorRecordNotFound
	}
	return nil
}

// SetAllocatedStock overwrites the stored reservation counter. Used only by
// the reconciliation fix path; normal flows go through AdjustVariantStock.
func SetAllocatedStock(tx *gorm.DB, variantId int, value int) error {
	result := tx.Exec("UPDATE product_variants SET allocated_stock = ? WHERE id = ?", value, variantId)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected != 1 {
		return utils.ErrorRecordNotFound
	}
	return nil
}

func GetVariant(ctx context.Context, productId int, color, size string) (*ProductVariant, error) {
	db := config.GetDB()
	var variant ProductVariant
	if err := db.WithContext(ctx).
		Where("product_id = ? AND color = ? AND size = ?", productId, color, size).
		First(&variant).Error; err != nil {
		return nil, utils.ErrorRecordNotFound
	}
	return &variant, nil
}
