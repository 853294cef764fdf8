package config

import (
	"os"
	"strings"
)

// ClampNegativePhysicalStock makes audits and manual adjustments refuse to push
// physical stock below zero. Off by default: the count supplied by the warehouse
// is the truth, and a resulting negative stored value is surfaced through
// reconciliation reports instead of being silently clamped.
//
// Set via env:
// - CLAMP_NEGATIVE_PHYSICAL_STOCK=true
func ClampNegativePhysicalStock() bool {
	return boolFromEnv("CLAMP_NEGATIVE_PHYSICAL_STOCK")
}

// AllocationDryRun makes the allocation engine compute and report grants
// without committing them. Used for pre-release verification against
// production data.
//
// Set via env:
// - ALLOCATION_DRY_RUN=true
func AllocationDryRun() bool {
	return boolFromEnv("ALLOCATION_DRY_RUN")
}

func boolFromEnv(key string) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	return v == "1" || v == "true" || v == "yes" || v == "y"
}
