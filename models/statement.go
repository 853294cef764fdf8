package models

import (
	"context"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/wholesale_backend/config"
	"bitbucket.org/mmdatafocus/wholesale_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Statement is a deduction or return record authored by the order/return
// workflow and consumed exactly once by the statement processor. The
// idempotency guard is the pair (status, flag): MileageDeducted for
// deductions, Refunded for returns.
type Statement struct {
	ID               int             `gorm:"primary_key" json:"id"`
	StatementNumber  string          `gorm:"size:100;not null;uniqueIndex" json:"statement_number"`
	Type             StatementType   `gorm:"type:enum('Deduction','Return');not null" json:"type"`
	CompanyName      string          `gorm:"size:255;not null;index" json:"company_name"`
	TotalAmount      decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"total_amount"`
	MileageAmount    decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"mileage_amount"`
	RefundAmount     decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"refund_amount"`
	Status           StatementStatus `gorm:"type:enum('Pending','Completed','Refunded','Rejected');not null;default:'Pending';index" json:"status"`
	MileageDeducted  *bool           `gorm:"not null;default:false" json:"mileage_deducted"`
	Refunded         *bool           `gorm:"not null;default:false" json:"refunded"`
	IsAdminAuthored  *bool           `gorm:"not null;default:false" json:"is_admin_authored"`
	ReferenceOrderId *int            `gorm:"index" json:"reference_order_id"`
	ProcessedAt      *time.Time      `json:"processed_at"`
	CreatedAt        time.Time       `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt        time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
	Items            []StatementItem `gorm:"foreignKey:StatementId" json:"items"`
}

type StatementItem struct {
	ID          int             `gorm:"primary_key" json:"id"`
	StatementId int             `gorm:"index;not null" json:"statement_id"`
	ProductName string          `gorm:"size:255" json:"product_name"`
	Qty         int             `gorm:"not null;default:0" json:"qty"`
	Amount      decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"amount"`
}

type NewStatement struct {
	Type             StatementType      `json:"type" binding:"required"`
	CompanyName      string             `json:"company_name" binding:"required"`
	MileageAmount    decimal.Decimal    `json:"mileage_amount"`
	RefundAmount     decimal.Decimal    `json:"refund_amount"`
	ReferenceOrderId *int               `json:"reference_order_id"`
	Items            []NewStatementItem `json:"items"`
}

type NewStatementItem struct {
	ProductName string          `json:"product_name"`
	Qty         int             `json:"qty"`
	Amount      decimal.Decimal `json:"amount"`
}

func (input *NewStatement) validate(ctx context.Context) error {
	switch input.Type {
	case StatementTypeDeduction:
		if input.MileageAmount.IsNegative() {
			return utils.NewValidationError("mileage_amount", "must not be negative")
		}
	case StatementTypeReturn:
		if input.RefundAmount.IsNegative() {
			return utils.NewValidationError("refund_amount", "must not be negative")
		}
	default:
		return utils.NewValidationError("type", "must be Deduction or Return")
	}
	if input.ReferenceOrderId != nil {
		if err := utils.ValidateResourceId[Order](ctx, *input.ReferenceOrderId); err != nil {
			return utils.NewValidationError("reference_order_id", "order not found")
		}
	}
	return nil
}

// CreateStatement records a pending statement. Admin-authored statements may
// reference a company with no customer row; the processor completes them
// without a ledger mutation.
func CreateStatement(ctx context.Context, input *NewStatement) (*Statement, error) {
	if err := input.validate(ctx); err != nil {
		return nil, err
	}

	db := config.GetDB()
	tx := db.WithContext(ctx).Begin()

	number, err := nextStatementNumber(tx, input.Type)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	total := decimal.Zero
	for _, item := range input.Items {
		total = total.Add(item.Amount)
	}

	statement := Statement{
		StatementNumber:  number,
		Type:             input.Type,
		CompanyName:      input.CompanyName,
		TotalAmount:      total,
		MileageAmount:    input.MileageAmount,
		RefundAmount:     input.RefundAmount,
		Status:           StatementStatusPending,
		MileageDeducted:  utils.NewFalse(),
		Refunded:         utils.NewFalse(),
		IsAdminAuthored:  boolPtr(utils.GetIsAdminFromContext(ctx)),
		ReferenceOrderId: input.ReferenceOrderId,
	}
	if err := tx.Create(&statement).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	for _, item := range input.Items {
		detail := StatementItem{
			StatementId: statement.ID,
			ProductName: item.ProductName,
			Qty:         item.Qty,
			Amount:      item.Amount,
		}
		if err := tx.Create(&detail).Error; err != nil {
			tx.Rollback()
			return nil, err
		}
		statement.Items = append(statement.Items, detail)
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return &statement, nil
}

func nextStatementNumber(tx *gorm.DB, statementType StatementType) (string, error) {
	prefix := "DED"
	if statementType == StatementTypeReturn {
		prefix = "RET"
	}
	today := time.Now().UTC().Format("20060102")
	var count int64
	if err := tx.Model(&Statement{}).
		Where("statement_number LIKE ?", prefix+"-"+today+"-%").
		Count(&count).Error; err != nil {
		return "", err
	}
	return fmt.Sprintf("%s-%s-%04d", prefix, today, count+1), nil
}

func GetStatement(ctx context.Context, id int) (*Statement, error) {
	return utils.FetchModel[Statement](ctx, id, "Items")
}

func boolPtr(b bool) *bool {
	return &b
}
