package models

import (
	"context"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/wholesale_backend/config"
	"bitbucket.org/mmdatafocus/wholesale_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Order struct {
	ID          int             `gorm:"primary_key" json:"id"`
	OrderNumber string          `gorm:"size:100;not null;uniqueIndex" json:"order_number"`
	CustomerId  int             `gorm:"index;not null" json:"customer_id" binding:"required"`
	Status      OrderStatus     `gorm:"type:enum('Pending','Confirmed','Processing','Partial Shipped','Shipped','Partial Returned','Returned','Cancelled');not null;index" json:"status"`
	TotalAmount decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"total_amount"`
	Notes       string          `gorm:"type:text" json:"notes"`
	ShippedAt   *time.Time      `json:"shipped_at"`
	CreatedAt   time.Time       `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt   time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
	Details     []OrderDetail   `gorm:"foreignKey:OrderId" json:"details"`
}

// OrderDetail is one order line against a single variant.
// AllocatedQty rises only through the allocation engine; ShippedQty rises only
// through shipment. Both are clamped never to exceed Qty.
type OrderDetail struct {
	ID           int             `gorm:"primary_key" json:"id"`
	OrderId      int             `gorm:"index;not null" json:"order_id"`
	ProductId    int             `gorm:"index;not null" json:"product_id"`
	Color        string          `gorm:"size:50;not null" json:"color"`
	Size         string          `gorm:"size:50;not null" json:"size"`
	Qty          int             `gorm:"not null" json:"qty"`
	AllocatedQty int             `gorm:"not null;default:0" json:"allocated_qty"`
	ShippedQty   int             `gorm:"not null;default:0" json:"shipped_qty"`
	ReturnedQty  int             `gorm:"not null;default:0" json:"returned_qty"`
	UnitPrice    decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"unit_price"`
	Amount       decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"amount"`
}

type NewOrder struct {
	CustomerId int              `json:"customer_id" binding:"required"`
	Notes      string           `json:"notes"`
	Details    []NewOrderDetail `json:"details" binding:"required,min=1,dive"`
}

type NewOrderDetail struct {
	ProductId int             `json:"product_id" binding:"required"`
	Color     string          `json:"color"`
	Size      string          `json:"size"`
	Qty       int             `json:"qty" binding:"required,gt=0"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

func (input *NewOrder) validate(ctx context.Context) error {
	if err := utils.ValidateResourceId[Customer](ctx, input.CustomerId); err != nil {
		return utils.NewValidationError("customer_id", "customer not found")
	}
	for _, d := range input.Details {
		if d.Qty <= 0 {
			return utils.NewValidationError("qty", "must be greater than zero")
		}
		if _, err := GetVariant(ctx, d.ProductId, d.Color, d.Size); err != nil {
			return utils.NewValidationError("details",
				fmt.Sprintf("variant not found for product %d (%s/%s)", d.ProductId, d.Color, d.Size))
		}
		if d.UnitPrice.IsNegative() {
			return utils.NewValidationError("unit_price", "must not be negative")
		}
	}
	return nil
}

// CreateOrder records the order and its lines in Pending status. Nothing is
// reserved here: the allocation engine decides grants in strict order age
// order, so a freshly created order never jumps the queue.
func CreateOrder(ctx context.Context, input *NewOrder) (*Order, error) {
	if err := input.validate(ctx); err != nil {
		return nil, err
	}

	db := config.GetDB()
	tx := db.WithContext(ctx).Begin()

	orderNumber, err := nextOrderNumber(tx)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	order := Order{
		OrderNumber: orderNumber,
		CustomerId:  input.CustomerId,
		Status:      OrderStatusPending,
		Notes:       input.Notes,
	}
	if err := tx.Create(&order).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	total := decimal.Zero
	for _, d := range input.Details {
		amount := d.UnitPrice.Mul(decimal.NewFromInt(int64(d.Qty)))
		detail := OrderDetail{
			OrderId:   order.ID,
			ProductId: d.ProductId,
			Color:     d.Color,
			Size:      d.Size,
			Qty:       d.Qty,
			UnitPrice: d.UnitPrice,
			Amount:    amount,
		}
		if err := tx.Create(&detail).Error; err != nil {
			tx.Rollback()
			return nil, err
		}
		total = total.Add(amount)
		order.Details = append(order.Details, detail)
	}

	if err := tx.Model(&Order{}).Where("id = ?", order.ID).
		Update("total_amount", total).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	order.TotalAmount = total

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func nextOrderNumber(tx *gorm.DB) (string, error) {
	today := time.Now().UTC().Format("20060102")
	var count int64
	if err := tx.Model(&Order{}).
		Where("order_number LIKE ?", "ORD-"+today+"-%").
		Count(&count).Error; err != nil {
		return "", err
	}
	return fmt.Sprintf("ORD-%s-%04d", today, count+1), nil
}

func GetOrder(ctx context.Context, id int) (*Order, error) {
	return utils.FetchModel[Order](ctx, id, "Details")
}

// deriveOrderStatus folds line totals into the lifecycle status. Returns take
// precedence over shipment progress; a status never regresses to pending once
// units have moved.
func deriveOrderStatus(current OrderStatus, totalQty, totalShipped, totalReturned int) OrderStatus {
	switch {
	case totalReturned > 0 && totalReturned >= totalShipped:
		return OrderStatusReturned
	case totalReturned > 0:
		return OrderStatusPartialReturned
	case totalShipped >= totalQty && totalQty > 0:
		return OrderStatusShipped
	case totalShipped > 0:
		return OrderStatusPartialShipped
	}
	return current
}

// RecomputeOrderStatus derives the lifecycle status from line quantities.
// Must run inside the same transaction as the quantity changes it follows.
func RecomputeOrderStatus(tx *gorm.DB, orderId int) (OrderStatus, error) {
	var order Order
	if err := tx.Preload("Details").First(&order, orderId).Error; err != nil {
		return "", utils.ErrorRecordNotFound
	}
	if order.Status == OrderStatusCancelled {
		return order.Status, nil
	}

	var totalQty, totalShipped, totalReturned int
	for _, d := range order.Details {
		totalQty += d.Qty
		totalShipped += d.ShippedQty
		totalReturned += d.ReturnedQty
	}

	status := deriveOrderStatus(order.Status, totalQty, totalShipped, totalReturned)

	updates := map[string]interface{}{"status": status}
	if status == OrderStatusShipped && order.ShippedAt == nil {
		now := time.Now().UTC()
		updates["shipped_at"] = &now
	}
	if err := tx.Model(&Order{}).Where("id = ?", orderId).Updates(updates).Error; err != nil {
		return "", err
	}
	return status, nil
}

// CancelOrder releases every live reservation on the order and marks it
// cancelled. Orders with shipped units cannot be cancelled; they go through
// the return flow so the stock ledger records the reversal.
//
// The order row and its lines are read under FOR UPDATE so a concurrent
// shipment cannot slip in between the read and the release. The release
// itself re-states the read quantities in its WHERE clause, the same guard
// the shipment path uses.
func CancelOrder(ctx context.Context, id int) (*Order, error) {
	db := config.GetDB()
	tx := db.WithContext(ctx).Begin()

	var order Order
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&order, id).Error; err != nil {
		tx.Rollback()
		return nil, utils.ErrorRecordNotFound
	}
	if order.Status == OrderStatusCancelled {
		tx.Rollback()
		return nil, &utils.AlreadyProcessedError{Entity: "order", ID: id, State: string(order.Status)}
	}

	var details []OrderDetail
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("order_id = ?", id).Order("id").Find(&details).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	for _, d := range details {
		if d.ShippedQty > 0 {
			tx.Rollback()
			return nil, utils.NewValidationError("order", "order has shipped units; use the return flow")
		}
	}

	for _, d := range details {
		if d.AllocatedQty <= 0 {
			continue
		}
		variant, err := LockVariant(tx, d.ProductId, d.Color, d.Size)
		if err != nil {
			tx.Rollback()
			return nil, err
		}
		// Releasing a reservation is not a physical movement: no ledger entry.
		if err := AdjustVariantStock(tx, variant.ID, 0, -d.AllocatedQty); err != nil {
			tx.Rollback()
			return nil, err
		}
		res := tx.Model(&OrderDetail{}).
			Where("id = ? AND allocated_qty = ? AND shipped_qty = 0", d.ID, d.AllocatedQty).
			Update("allocated_qty", 0)
		if res.Error != nil {
			tx.Rollback()
			return nil, res.Error
		}
		if res.RowsAffected != 1 {
			tx.Rollback()
			return nil, utils.NewValidationError("order", "order lines changed concurrently; retry the cancel")
		}
	}
	order.Details = details

	if err := tx.Model(&Order{}).Where("id = ?", id).
		Update("status", OrderStatusCancelled).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	order.Status = OrderStatusCancelled
	return &order, nil
}
