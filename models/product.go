package models

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/wholesale_backend/config"
	"bitbucket.org/mmdatafocus/wholesale_backend/utils"
	"github.com/shopspring/decimal"
)

type Product struct {
	ID        int              `gorm:"primary_key" json:"id"`
	Name      string           `gorm:"size:255;not null" json:"name" binding:"required"`
	Sku       string           `gorm:"size:100;index" json:"sku"`
	Price     decimal.Decimal  `gorm:"type:decimal(20,4);default:0" json:"price"`
	CreatedAt time.Time        `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
	Variants  []ProductVariant `gorm:"foreignKey:ProductId" json:"variants"`
}

type NewProduct struct {
	Name     string              `json:"name" binding:"required"`
	Sku      string              `json:"sku"`
	Price    decimal.Decimal     `json:"price"`
	Variants []NewProductVariant `json:"variants"`
}

func (input *NewProduct) validate(ctx context.Context) error {
	if input.Sku != "" {
		if err := utils.ValidateUnique[Product](ctx, "sku", input.Sku, 0); err != nil {
			return err
		}
	}
	if input.Price.IsNegative() {
		return utils.NewValidationError("price", "must not be negative")
	}
	seen := map[string]bool{}
	for _, v := range input.Variants {
		key := v.Color + "/" + v.Size
		if seen[key] {
			return utils.NewValidationError("variants", "duplicate color/size "+key)
		}
		seen[key] = true
		if v.PhysicalStock < 0 {
			return utils.NewValidationError("variants", "physical_stock must not be negative")
		}
	}
	return nil
}

// CreateProduct creates a product and its variant rows. A product posted with
// no variants gets one implicit variant (empty color/size) so every stock
// operation has a row to target.
//
// Opening stock supplied on creation is written through the ledger primitive
// so the running ledger sum matches physical stock from day one.
func CreateProduct(ctx context.Context, input *NewProduct) (*Product, error) {
	if err := input.validate(ctx); err != nil {
		return nil, err
	}

	product := Product{
		Name:  input.Name,
		Sku:   input.Sku,
		Price: input.Price,
	}

	db := config.GetDB()
	tx := db.WithContext(ctx).Begin()
	if err := tx.Create(&product).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	variants := input.Variants
	if len(variants) == 0 {
		variants = []NewProductVariant{{Color: "", Size: "", PhysicalStock: 0}}
	}
	for _, v := range variants {
		variant := ProductVariant{
			ProductId: product.ID,
			Color:     v.Color,
			Size:      v.Size,
		}
		if err := tx.Create(&variant).Error; err != nil {
			tx.Rollback()
			return nil, err
		}
		if v.PhysicalStock != 0 {
			entry := StockLedgerEntry{
				ProductId:     product.ID,
				Color:         v.Color,
				Size:          v.Size,
				QtyDelta:      v.PhysicalStock,
				MovementType:  StockMovementTypeManualAdjustment,
				ReferenceType: StockReferenceTypeManual,
				ReferenceId:   product.ID,
				Notes:         "opening stock",
			}
			if err := ApplyStockMovement(tx, &entry, 0); err != nil {
				tx.Rollback()
				return nil, err
			}
			variant.PhysicalStock = v.PhysicalStock
		}
		product.Variants = append(product.Variants, variant)
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return &product, nil
}

func GetProduct(ctx context.Context, id int) (*Product, error) {
	return utils.FetchModel[Product](ctx, id, "Variants")
}
