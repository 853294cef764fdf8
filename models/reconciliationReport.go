package models

import "time"

// Drift detection output (nightly/admin-triggered). Every detected mismatch
// and every applied fix leaves a row here.
type ReconciliationReport struct {
	ID            int       `gorm:"primary_key" json:"id"`
	CheckType     string    `gorm:"size:50;index;not null" json:"check_type"`  // e.g. ALLOCATION_DRIFT, STOCK_LEDGER, NEGATIVE_STOCK, MILEAGE_BALANCE
	EntityType    string    `gorm:"size:50;index;not null" json:"entity_type"` // e.g. ProductVariant, Customer
	EntityId      int       `gorm:"index;not null" json:"entity_id"`
	Details       string    `gorm:"type:text" json:"details"` // human-readable mismatch detail
	CorrelationId string    `gorm:"size:64;index" json:"correlation_id"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
}
