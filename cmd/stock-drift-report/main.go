package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"bitbucket.org/mmdatafocus/wholesale_backend/config"
	"bitbucket.org/mmdatafocus/wholesale_backend/workflow"
)

// Scans every variant for allocation drift and optionally runs the full
// reconciliation sweep (ledger vs physical, mileage vs cache).
func main() {
	full := flag.Bool("full", false, "Also run the full reconciliation sweep")
	flag.Parse()

	config.ConnectDatabaseWithRetry()
	if config.GetDB() == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}
	logger := config.GetLogger()
	ctx := context.Background()

	drifts, err := workflow.CheckAllocationDrift(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "drift check failed: %v\n", err)
		os.Exit(1)
	}
	for _, d := range drifts {
		fmt.Printf("variant %d (product %d %s/%s): allocated_stock %d, live %d\n",
			d.VariantId, d.ProductId, d.Color, d.Size, d.Stored, d.Derived)
	}
	fmt.Printf("%d variants drifted\n", len(drifts))

	if *full {
		summary, err := workflow.RunReconciliationChecks(ctx, logger)
		if err != nil {
			fmt.Fprintf(os.Stderr, "reconciliation sweep failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("sweep %s: %d variants, %d customers, %d findings\n",
			summary.CorrelationId, summary.VariantsChecked, summary.CustomersChecked, summary.Findings)
	}
}
