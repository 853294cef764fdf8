package main

import (
	"context"
	"fmt"
	"os"

	"bitbucket.org/mmdatafocus/wholesale_backend/config"
	"bitbucket.org/mmdatafocus/wholesale_backend/models"
	"github.com/shopspring/decimal"
)

// Seeds a small demo dataset: two products with sized variants, two
// customers, and a pair of orders competing for the same variant so an
// allocation run has something to do.
func main() {
	config.ConnectDatabaseWithRetry()
	if config.GetDB() == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}
	models.MigrateTable()
	ctx := context.Background()

	hoodie, err := models.CreateProduct(ctx, &models.NewProduct{
		Name:  "Fleece Hoodie",
		Sku:   "HOOD-001",
		Price: decimal.NewFromInt(45),
		Variants: []models.NewProductVariant{
			{Color: "Black", Size: "M", PhysicalStock: 10},
			{Color: "Black", Size: "L", PhysicalStock: 6},
		},
	})
	exitOn(err, "create hoodie")

	tee, err := models.CreateProduct(ctx, &models.NewProduct{
		Name:  "Logo Tee",
		Sku:   "TEE-001",
		Price: decimal.NewFromInt(18),
		Variants: []models.NewProductVariant{
			{Color: "White", Size: "M", PhysicalStock: 30},
		},
	})
	exitOn(err, "create tee")

	acme, err := models.CreateCustomer(ctx, &models.NewCustomer{
		CompanyName: "Acme Trading",
		ContactName: "Min Thu",
		Email:       "orders@acme.example",
	})
	exitOn(err, "create acme")

	globex, err := models.CreateCustomer(ctx, &models.NewCustomer{
		CompanyName: "Globex Retail",
		ContactName: "Aye Chan",
		Email:       "purchasing@globex.example",
	})
	exitOn(err, "create globex")

	// Older order first: it wins the contested Black/M units.
	first, err := models.CreateOrder(ctx, &models.NewOrder{
		CustomerId: acme.ID,
		Details: []models.NewOrderDetail{
			{ProductId: hoodie.ID, Color: "Black", Size: "M", Qty: 6, UnitPrice: decimal.NewFromInt(45)},
			{ProductId: tee.ID, Color: "White", Size: "M", Qty: 12, UnitPrice: decimal.NewFromInt(18)},
		},
	})
	exitOn(err, "create first order")

	second, err := models.CreateOrder(ctx, &models.NewOrder{
		CustomerId: globex.ID,
		Details: []models.NewOrderDetail{
			{ProductId: hoodie.ID, Color: "Black", Size: "M", Qty: 7, UnitPrice: decimal.NewFromInt(45)},
		},
	})
	exitOn(err, "create second order")

	fmt.Printf("seeded products %d,%d customers %d,%d orders %s,%s\n",
		hoodie.ID, tee.ID, acme.ID, globex.ID, first.OrderNumber, second.OrderNumber)
}

func exitOn(err error, what string) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s failed: %v\n", what, err)
		os.Exit(1)
	}
}
