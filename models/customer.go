package models

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/wholesale_backend/config"
	"bitbucket.org/mmdatafocus/wholesale_backend/utils"
	"github.com/shopspring/decimal"
)

// Customer holds a cached mileage balance. The cache is mutated exclusively as
// a side effect of mileage history inserts (AddMileageEntry); the ledger is
// authoritative and the cache can be rebuilt from it at any time.
type Customer struct {
	ID             int             `gorm:"primary_key" json:"id"`
	CompanyName    string          `gorm:"size:255;not null;uniqueIndex" json:"company_name" binding:"required"`
	ContactName    string          `gorm:"size:100" json:"contact_name"`
	Email          string          `gorm:"size:255" json:"email"`
	MileageBalance decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"mileage_balance"`
	CreatedAt      time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewCustomer struct {
	CompanyName string `json:"company_name" binding:"required"`
	ContactName string `json:"contact_name"`
	Email       string `json:"email"`
}

func (input *NewCustomer) validate(ctx context.Context) error {
	if err := utils.ValidateUnique[Customer](ctx, "company_name", input.CompanyName, 0); err != nil {
		return err
	}
	return nil
}

func CreateCustomer(ctx context.Context, input *NewCustomer) (*Customer, error) {
	if err := input.validate(ctx); err != nil {
		return nil, err
	}

	customer := Customer{
		CompanyName: input.CompanyName,
		ContactName: input.ContactName,
		Email:       input.Email,
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&customer).Error; err != nil {
		return nil, err
	}
	return &customer, nil
}

func GetCustomer(ctx context.Context, id int) (*Customer, error) {
	return utils.FetchModel[Customer](ctx, id)
}

func GetCustomerByCompanyName(ctx context.Context, companyName string) (*Customer, error) {
	db := config.GetDB()
	var customer Customer
	if err := db.WithContext(ctx).
		Where("company_name = ?", companyName).
		First(&customer).Error; err != nil {
		return nil, utils.ErrorRecordNotFound
	}
	return &customer, nil
}
