package models

import (
	"log"

	"bitbucket.org/mmdatafocus/wholesale_backend/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&Product{}, &ProductVariant{},
		&Order{}, &OrderDetail{},
		&StockLedgerEntry{},
		&Customer{}, &MileageHistory{},
		&Statement{}, &StatementItem{},
		&IdempotencyKey{},
		&ReconciliationReport{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
