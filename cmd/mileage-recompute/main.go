package main

import (
	"flag"
	"fmt"
	"os"

	"bitbucket.org/mmdatafocus/wholesale_backend/config"
	"bitbucket.org/mmdatafocus/wholesale_backend/models"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Rewrites cached customer mileage balances from the mileage ledger. Without
// --apply it only reports which customers drifted.
func main() {
	customerID := flag.Int("customer-id", 0, "Optional: limit to one customer")
	apply := flag.Bool("apply", false, "Write recomputed balances (default: report only)")
	flag.Parse()

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}
	logger := config.GetLogger()

	var customers []models.Customer
	q := db.Select("id", "company_name", "mileage_balance")
	if *customerID > 0 {
		q = q.Where("id = ?", *customerID)
	}
	if err := q.Find(&customers).Error; err != nil {
		fmt.Fprintf(os.Stderr, "listing customers failed: %v\n", err)
		os.Exit(1)
	}

	drifted := 0
	for _, c := range customers {
		err := db.Transaction(func(tx *gorm.DB) error {
			old, recomputed, err := models.RecomputeMileageBalance(tx, c.ID)
			if err != nil {
				return err
			}
			if old.Equal(recomputed) {
				return nil
			}
			drifted++
			logger.WithFields(logrus.Fields{
				"customer_id":  c.ID,
				"company_name": c.CompanyName,
				"cached":       old.String(),
				"recomputed":   recomputed.String(),
				"applied":      *apply,
			}).Warn("mileage balance drift")
			if !*apply {
				// Report only: roll the write back.
				return gorm.ErrInvalidTransaction
			}
			return nil
		})
		if err != nil && err != gorm.ErrInvalidTransaction {
			fmt.Fprintf(os.Stderr, "customer %d failed: %v\n", c.ID, err)
			os.Exit(1)
		}
	}

	fmt.Printf("checked %d customers, %d drifted, apply=%v\n", len(customers), drifted, *apply)
}
