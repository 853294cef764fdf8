package workflow

import (
	"context"
	"fmt"

	"bitbucket.org/mmdatafocus/wholesale_backend/config"
	"bitbucket.org/mmdatafocus/wholesale_backend/models"
	"bitbucket.org/mmdatafocus/wholesale_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

func correlationId(ctx context.Context) string {
	if id, ok := utils.GetCorrelationIdFromContext(ctx); ok {
		return id
	}
	return ""
}

// ShipLine requests shipping Qty units of one order line.
type ShipLine struct {
	LineId int `json:"line_id" binding:"required"`
	Qty    int `json:"qty" binding:"required"`
}

type LineError struct {
	LineId int    `json:"line_id"`
	Reason string `json:"reason"`
}

type ShipmentResult struct {
	OrderId      int                `json:"order_id"`
	ShippedUnits int                `json:"shipped_units"`
	Status       models.OrderStatus `json:"status"`
	Errors       []LineError        `json:"errors"`
}

// ShipOrderLines converts reservations into physical outflow. Each shipped
// line drops physical_stock and allocated_stock by the same quantity and
// appends one Shipment ledger entry, all in one transaction per line so a
// failing line never blocks its siblings.
//
// Only reserved units ship: a request beyond the line's allocated_qty is
// refused rather than silently clamped. The caller re-requests after the next
// allocation pass.
func ShipOrderLines(ctx context.Context, logger *logrus.Logger, orderId int, lines []ShipLine) (*ShipmentResult, error) {
	db := config.GetDB()

	order, err := models.GetOrder(ctx, orderId)
	if err != nil {
		return nil, err
	}
	if order.Status == models.OrderStatusCancelled {
		return nil, &utils.AlreadyProcessedError{Entity: "Order", ID: orderId, State: string(order.Status)}
	}

	result := &ShipmentResult{OrderId: orderId, Errors: []LineError{}}
	for _, line := range lines {
		if err := shipOneLine(ctx, logger, orderId, line); err != nil {
			result.Errors = append(result.Errors, LineError{LineId: line.LineId, Reason: err.Error()})
			config.LogError(logger, "shipment.go", "ShipOrderLines", fmt.Sprintf("line %d", line.LineId), line, err)
			continue
		}
		result.ShippedUnits += line.Qty
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		status, err := models.RecomputeOrderStatus(tx.WithContext(ctx), orderId)
		if err != nil {
			return err
		}
		result.Status = status
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func shipOneLine(ctx context.Context, logger *logrus.Logger, orderId int, line ShipLine) error {
	if line.Qty <= 0 {
		return utils.NewValidationError("qty", "must be positive")
	}

	db := config.GetDB()
	return db.Transaction(func(tx *gorm.DB) error {
		tx = tx.WithContext(ctx)

		var detail models.OrderDetail
		if err := tx.Where("id = ? AND order_id = ?", line.LineId, orderId).First(&detail).Error; err != nil {
			return err
		}
		if line.Qty > detail.AllocatedQty {
			return &utils.InsufficientStockError{
				ProductId: detail.ProductId,
				Color:     detail.Color,
				Size:      detail.Size,
				Requested: line.Qty,
				Granted:   detail.AllocatedQty,
			}
		}
		if detail.ShippedQty+line.Qty > detail.Qty {
			return utils.NewValidationError("qty", "would exceed ordered quantity")
		}

		variant, err := models.LockVariant(tx, detail.ProductId, detail.Color, detail.Size)
		if err != nil {
			return err
		}

		// One statement moves both counters so reserved and physical can
		// never disagree about this shipment.
		entry := &models.StockLedgerEntry{
			ProductId:     detail.ProductId,
			Color:         detail.Color,
			Size:          detail.Size,
			QtyDelta:      -line.Qty,
			MovementType:  models.StockMovementTypeShipment,
			ReferenceType: models.StockReferenceTypeOrder,
			ReferenceId:   detail.ID,
		}
		if err := models.ApplyStockMovement(tx, entry, -line.Qty); err != nil {
			return err
		}

		res := tx.Exec(
			"UPDATE order_details SET shipped_qty = shipped_qty + ?, allocated_qty = allocated_qty - ? WHERE id = ? AND allocated_qty >= ?",
			line.Qty, line.Qty, detail.ID, line.Qty,
		)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected != 1 {
			return gorm.ErrRecordNotFound
		}

		if variant.PhysicalStock-line.Qty < 0 {
			variant.PhysicalStock -= line.Qty
			models.WarnNegativePhysicalStock(tx, logger, variant, correlationId(ctx))
		}
		return nil
	})
}

// ReturnLine requests accepting Qty returned units of one shipped order line.
type ReturnLine struct {
	LineId int `json:"line_id" binding:"required"`
	Qty    int `json:"qty" binding:"required"`
}

type ReturnResult struct {
	OrderId       int                `json:"order_id"`
	ReturnedUnits int                `json:"returned_units"`
	Status        models.OrderStatus `json:"status"`
	StatementId   *int               `json:"statement_id"`
	Errors        []LineError        `json:"errors"`
}

// ReturnOrderLines books returned units back into physical stock and authors
// a Return statement for the refund, to be settled later by the statement
// processor. Returns do not recreate reservations.
func ReturnOrderLines(ctx context.Context, logger *logrus.Logger, orderId int, lines []ReturnLine) (*ReturnResult, error) {
	db := config.GetDB()

	order, err := models.GetOrder(ctx, orderId)
	if err != nil {
		return nil, err
	}
	customer, err := models.GetCustomer(ctx, order.CustomerId)
	if err != nil {
		return nil, err
	}

	result := &ReturnResult{OrderId: orderId, Errors: []LineError{}}
	refundAmount := decimal.Zero
	var refundItems []models.NewStatementItem

	for _, line := range lines {
		detail, err := returnOneLine(ctx, orderId, line)
		if err != nil {
			result.Errors = append(result.Errors, LineError{LineId: line.LineId, Reason: err.Error()})
			config.LogError(logger, "shipment.go", "ReturnOrderLines", fmt.Sprintf("line %d", line.LineId), line, err)
			continue
		}
		result.ReturnedUnits += line.Qty
		lineRefund := detail.UnitPrice.Mul(decimal.NewFromInt(int64(line.Qty)))
		refundAmount = refundAmount.Add(lineRefund)
		refundItems = append(refundItems, models.NewStatementItem{
			ProductName: fmt.Sprintf("product %d %s/%s", detail.ProductId, detail.Color, detail.Size),
			Qty:         line.Qty,
			Amount:      lineRefund,
		})
	}

	if result.ReturnedUnits > 0 {
		statement, err := models.CreateStatement(ctx, &models.NewStatement{
			Type:             models.StatementTypeReturn,
			CompanyName:      customer.CompanyName,
			RefundAmount:     refundAmount,
			ReferenceOrderId: &orderId,
			Items:            refundItems,
		})
		if err != nil {
			return nil, err
		}
		result.StatementId = &statement.ID
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		status, err := models.RecomputeOrderStatus(tx.WithContext(ctx), orderId)
		if err != nil {
			return err
		}
		result.Status = status
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func returnOneLine(ctx context.Context, orderId int, line ReturnLine) (*models.OrderDetail, error) {
	if line.Qty <= 0 {
		return nil, utils.NewValidationError("qty", "must be positive")
	}

	db := config.GetDB()
	var detail models.OrderDetail
	err := db.Transaction(func(tx *gorm.DB) error {
		tx = tx.WithContext(ctx)

		if err := tx.Where("id = ? AND order_id = ?", line.LineId, orderId).First(&detail).Error; err != nil {
			return err
		}
		returnable := detail.ShippedQty - detail.ReturnedQty
		if line.Qty > returnable {
			return utils.NewValidationError("qty", fmt.Sprintf("only %d units are returnable", returnable))
		}

		if _, err := models.LockVariant(tx, detail.ProductId, detail.Color, detail.Size); err != nil {
			return err
		}

		entry := &models.StockLedgerEntry{
			ProductId:     detail.ProductId,
			Color:         detail.Color,
			Size:          detail.Size,
			QtyDelta:      line.Qty,
			MovementType:  models.StockMovementTypeReturn,
			ReferenceType: models.StockReferenceTypeOrder,
			ReferenceId:   detail.ID,
		}
		if err := models.ApplyStockMovement(tx, entry, 0); err != nil {
			return err
		}

		res := tx.Exec(
			"UPDATE order_details SET returned_qty = returned_qty + ? WHERE id = ? AND shipped_qty - returned_qty >= ?",
			line.Qty, detail.ID, line.Qty,
		)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected != 1 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &detail, nil
}
