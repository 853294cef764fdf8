package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"bitbucket.org/mmdatafocus/wholesale_backend/config"
	"bitbucket.org/mmdatafocus/wholesale_backend/utils"
	"bitbucket.org/mmdatafocus/wholesale_backend/workflow"
)

func main() {
	dryRun := flag.Bool("dry-run", false, "Plan grants and shortfalls without committing")
	flag.Parse()

	if *dryRun {
		os.Setenv("ALLOCATION_DRY_RUN", "true")
	}

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	if config.GetDB() == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}
	logger := config.GetLogger()

	result, err := workflow.RunAllocation(context.Background(), logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "allocation failed: %v\n", err)
		os.Exit(1)
	}

	out, err := utils.MarshalToJSON(result)
	if err != nil {
		fmt.Fprintf(os.Stderr, "marshal failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(out)
}
