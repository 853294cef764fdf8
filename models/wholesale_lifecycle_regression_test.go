package models_test

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/wholesale_backend/config"
	"bitbucket.org/mmdatafocus/wholesale_backend/models"
	"bitbucket.org/mmdatafocus/wholesale_backend/utils"
	"bitbucket.org/mmdatafocus/wholesale_backend/workflow"
	"github.com/shopspring/decimal"
)

// End-to-end lifecycle against real MySQL + Redis: seed stock, allocate FIFO,
// ship against reservations, audit a miscount, settle a deduction statement
// twice, then verify every stored counter against its source of truth.
func TestWholesaleLifecycleRegression(t *testing.T) {
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	ctx := context.Background()

	redisName, redisPort := startRedisContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(redisName) })

	mysqlName, mysqlPort := startMySQLContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(mysqlName) })

	// Wire env for config.Connect* helpers.
	t.Setenv("REDIS_ADDRESS", fmt.Sprintf("127.0.0.1:%s", redisPort))
	t.Setenv("DB_USER", "root")
	t.Setenv("DB_PASSWORD", "testpw")
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_PORT", mysqlPort)
	t.Setenv("DB_NAME", "wholesale_test")

	// Connect deps.
	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()

	// Migrate schema (in a fresh DB).
	models.MigrateTable()

	ctx = utils.SetUserIdInContext(ctx, 1)
	ctx = utils.SetUserNameInContext(ctx, "Test")

	db := config.GetDB()
	if db == nil {
		t.Fatalf("db is nil after ConnectDatabaseWithRetry")
	}
	logger := config.GetLogger()

	// 1) Seed: one variant with 10 units opening stock, two customers.
	product, err := models.CreateProduct(ctx, &models.NewProduct{
		Name:  "Fleece Hoodie",
		Sku:   "HOOD-001",
		Price: decimal.NewFromInt(45),
		Variants: []models.NewProductVariant{
			{Color: "Black", Size: "M", PhysicalStock: 10},
		},
	})
	if err != nil {
		t.Fatalf("CreateProduct: %v", err)
	}

	acme, err := models.CreateCustomer(ctx, &models.NewCustomer{CompanyName: "Acme Trading"})
	if err != nil {
		t.Fatalf("CreateCustomer acme: %v", err)
	}
	globex, err := models.CreateCustomer(ctx, &models.NewCustomer{CompanyName: "Globex Retail"})
	if err != nil {
		t.Fatalf("CreateCustomer globex: %v", err)
	}

	// 2) Two orders contest the 10 units: older wants 6, newer wants 7.
	older, err := models.CreateOrder(ctx, &models.NewOrder{
		CustomerId: acme.ID,
		Details: []models.NewOrderDetail{
			{ProductId: product.ID, Color: "Black", Size: "M", Qty: 6, UnitPrice: decimal.NewFromInt(45)},
		},
	})
	if err != nil {
		t.Fatalf("CreateOrder older: %v", err)
	}
	// MySQL DATETIME default precision would tie the created_at values.
	time.Sleep(1100 * time.Millisecond)
	newer, err := models.CreateOrder(ctx, &models.NewOrder{
		CustomerId: globex.ID,
		Details: []models.NewOrderDetail{
			{ProductId: product.ID, Color: "Black", Size: "M", Qty: 7, UnitPrice: decimal.NewFromInt(45)},
		},
	})
	if err != nil {
		t.Fatalf("CreateOrder newer: %v", err)
	}

	// 3) Allocate: older takes 6, newer gets the remaining 4, shortfall 3.
	allocation, err := workflow.RunAllocation(ctx, logger)
	if err != nil {
		t.Fatalf("RunAllocation: %v", err)
	}
	if allocation.AllocatedUnits != 10 {
		t.Errorf("allocated units = %d, want 10", allocation.AllocatedUnits)
	}
	if len(allocation.Shortfalls) != 1 || allocation.Shortfalls[0].Shortfall != 3 {
		t.Errorf("unexpected shortfalls: %+v", allocation.Shortfalls)
	}

	variant, err := models.GetVariant(ctx, product.ID, "Black", "M")
	if err != nil {
		t.Fatalf("GetVariant: %v", err)
	}
	if variant.PhysicalStock != 10 || variant.AllocatedStock != 10 {
		t.Errorf("after allocation physical=%d allocated=%d, want 10/10", variant.PhysicalStock, variant.AllocatedStock)
	}

	// Allocation writes no ledger entries: only the opening stock row exists.
	ledgerSum, err := models.SumLedgerQty(ctx, product.ID, "Black", "M")
	if err != nil {
		t.Fatalf("SumLedgerQty: %v", err)
	}
	if ledgerSum != 10 {
		t.Errorf("ledger sum after allocation = %d, want 10 (opening stock only)", ledgerSum)
	}

	// Re-running with unchanged stock must change nothing.
	again, err := workflow.RunAllocation(ctx, logger)
	if err != nil {
		t.Fatalf("RunAllocation again: %v", err)
	}
	if again.AllocatedUnits != 0 {
		t.Errorf("second allocation pass granted %d units, want 0", again.AllocatedUnits)
	}

	// 4) Ship the older order's 6 units: physical and allocated drop together.
	olderLine := older.Details[0].ID
	shipment, err := workflow.ShipOrderLines(ctx, logger, older.ID, []workflow.ShipLine{{LineId: olderLine, Qty: 6}})
	if err != nil {
		t.Fatalf("ShipOrderLines: %v", err)
	}
	if len(shipment.Errors) != 0 {
		t.Fatalf("ship errors: %+v", shipment.Errors)
	}
	if shipment.Status != models.OrderStatusShipped {
		t.Errorf("older order status = %q, want Shipped", shipment.Status)
	}

	variant, _ = models.GetVariant(ctx, product.ID, "Black", "M")
	if variant.PhysicalStock != 4 || variant.AllocatedStock != 4 {
		t.Errorf("after shipment physical=%d allocated=%d, want 4/4", variant.PhysicalStock, variant.AllocatedStock)
	}
	ledgerSum, _ = models.SumLedgerQty(ctx, product.ID, "Black", "M")
	if ledgerSum != 4 {
		t.Errorf("ledger sum after shipment = %d, want 4", ledgerSum)
	}

	// Shipping more than the remaining reservation must be refused per line.
	newerLine := newer.Details[0].ID
	overShip, err := workflow.ShipOrderLines(ctx, logger, newer.ID, []workflow.ShipLine{{LineId: newerLine, Qty: 7}})
	if err != nil {
		t.Fatalf("ShipOrderLines over-reservation: %v", err)
	}
	if len(overShip.Errors) != 1 {
		t.Errorf("expected 1 line error shipping beyond reservation, got %+v", overShip.Errors)
	}

	// 5) Audit: warehouse counts 3 where the system says 4; one -1 Audit entry.
	audit, err := workflow.RunPhysicalAudit(ctx, logger, 1, []workflow.AuditCount{
		{ProductId: product.ID, Color: "Black", Size: "M", ActualQty: 3},
	})
	if err != nil {
		t.Fatalf("RunPhysicalAudit: %v", err)
	}
	if audit.AdjustedLines != 1 {
		t.Errorf("audit adjusted %d lines, want 1", audit.AdjustedLines)
	}
	variant, _ = models.GetVariant(ctx, product.ID, "Black", "M")
	if variant.PhysicalStock != 3 {
		t.Errorf("after audit physical=%d, want 3", variant.PhysicalStock)
	}
	// Same counts again: idempotent, no further entries.
	audit2, err := workflow.RunPhysicalAudit(ctx, logger, 1, []workflow.AuditCount{
		{ProductId: product.ID, Color: "Black", Size: "M", ActualQty: 3},
	})
	if err != nil {
		t.Fatalf("RunPhysicalAudit repeat: %v", err)
	}
	if audit2.AdjustedLines != 0 {
		t.Errorf("repeated audit adjusted %d lines, want 0", audit2.AdjustedLines)
	}
	// A count for an unknown variant is reported per item; the rest of the
	// sheet still applies.
	badAudit, err := workflow.RunPhysicalAudit(ctx, logger, 2, []workflow.AuditCount{
		{ProductId: product.ID, Color: "Black", Size: "M", ActualQty: 3},
		{ProductId: product.ID, Color: "Neon", Size: "XS", ActualQty: 5},
	})
	if err != nil {
		t.Fatalf("RunPhysicalAudit with unknown variant: %v", err)
	}
	if badAudit.AdjustedLines != 0 {
		t.Errorf("audit with matching count adjusted %d lines, want 0", badAudit.AdjustedLines)
	}
	if len(badAudit.Errors) != 1 {
		t.Errorf("expected 1 reported count error, got %+v", badAudit.Errors)
	}

	// 6) Statement settlement is exactly-once across duplicate batches.
	statement, err := models.CreateStatement(ctx, &models.NewStatement{
		Type:          models.StatementTypeDeduction,
		CompanyName:   acme.CompanyName,
		MileageAmount: decimal.NewFromInt(30),
	})
	if err != nil {
		t.Fatalf("CreateStatement: %v", err)
	}

	first, err := workflow.ProcessStatements(ctx, logger, []int{statement.ID})
	if err != nil {
		t.Fatalf("ProcessStatements: %v", err)
	}
	if first.ProcessedCount != 1 || len(first.Errors) != 0 {
		t.Fatalf("first settlement: %+v", first)
	}
	second, err := workflow.ProcessStatements(ctx, logger, []int{statement.ID, statement.ID})
	if err != nil {
		t.Fatalf("ProcessStatements repeat: %v", err)
	}
	if second.ProcessedCount != 0 {
		t.Errorf("repeat settlement processed %d, want 0", second.ProcessedCount)
	}
	// The skip carries the statement id and the reason, not just a count.
	if second.SkippedCount != 1 || len(second.Errors) != 1 || second.Errors[0].StatementId != statement.ID {
		t.Errorf("repeat settlement must report the skipped statement: %+v", second)
	}

	acmeAfter, err := models.GetCustomer(ctx, acme.ID)
	if err != nil {
		t.Fatalf("GetCustomer: %v", err)
	}
	if !acmeAfter.MileageBalance.Equal(decimal.NewFromInt(-30)) {
		t.Errorf("acme balance = %s, want -30", acmeAfter.MileageBalance)
	}
	mileageSum, err := models.SumMileage(ctx, acme.ID)
	if err != nil {
		t.Fatalf("SumMileage: %v", err)
	}
	if !mileageSum.Equal(acmeAfter.MileageBalance) {
		t.Errorf("mileage ledger %s disagrees with cached balance %s", mileageSum, acmeAfter.MileageBalance)
	}

	// 7) Cancel: a shipped order is refused, an allocated order releases its
	// reservation exactly once, and neither a retry nor a later shipment can
	// touch the released units again.
	if _, err := models.CancelOrder(ctx, older.ID); !utils.IsValidationError(err) {
		t.Errorf("cancelling a shipped order: got %v, want validation error", err)
	}
	cancelled, err := models.CancelOrder(ctx, newer.ID)
	if err != nil {
		t.Fatalf("CancelOrder newer: %v", err)
	}
	if cancelled.Status != models.OrderStatusCancelled {
		t.Errorf("cancelled order status = %q, want Cancelled", cancelled.Status)
	}
	variant, _ = models.GetVariant(ctx, product.ID, "Black", "M")
	if variant.PhysicalStock != 3 || variant.AllocatedStock != 0 {
		t.Errorf("after cancel physical=%d allocated=%d, want 3/0", variant.PhysicalStock, variant.AllocatedStock)
	}
	if _, err := models.CancelOrder(ctx, newer.ID); !utils.IsAlreadyProcessedError(err) {
		t.Errorf("second cancel: got %v, want already-processed error", err)
	}
	if _, err := workflow.ShipOrderLines(ctx, logger, newer.ID, []workflow.ShipLine{{LineId: newerLine, Qty: 1}}); !utils.IsAlreadyProcessedError(err) {
		t.Errorf("shipping a cancelled order: got %v, want already-processed error", err)
	}

	// 8) Full sweep: no counter may disagree with its source of truth.
	sweep, err := workflow.RunReconciliationChecks(ctx, logger)
	if err != nil {
		t.Fatalf("RunReconciliationChecks: %v", err)
	}
	if sweep.Findings != 0 {
		var reports []models.ReconciliationReport
		_ = db.Where("correlation_id = ?", sweep.CorrelationId).Find(&reports).Error
		t.Errorf("reconciliation found %d inconsistencies: %+v", sweep.Findings, reports)
	}
}

func startRedisContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("wholesale-test-redis-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-p", "127.0.0.1:0:6379",
		"redis:7-alpine",
	)
	if err != nil {
		t.Fatalf("start redis container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "6379/tcp")
	if err != nil {
		t.Fatalf("redis docker port: %v", err)
	}
	// wait until ready
	deadline := time.Now().Add(60 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "redis-cli", "ping")
		if err == nil {
			return name, port
		}
		time.Sleep(250 * time.Millisecond)
	}
	t.Fatalf("redis did not become ready")
	return "", ""
}

func startMySQLContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("wholesale-test-mysql-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-e", "MYSQL_ROOT_PASSWORD=testpw",
		"-e", "MYSQL_DATABASE=wholesale_test",
		"-p", "127.0.0.1:0:3306",
		"mysql:8.0",
		"--default-authentication-plugin=mysql_native_password",
	)
	if err != nil {
		t.Fatalf("start mysql container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "3306/tcp")
	if err != nil {
		t.Fatalf("mysql docker port: %v", err)
	}
	// wait until ready
	deadline := time.Now().Add(120 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "mysqladmin", "ping", "-h", "127.0.0.1", "-ptestpw", "--silent")
		if err == nil {
			return name, port
		}
		time.Sleep(500 * time.Millisecond)
	}
	t.Fatalf("mysql did not become ready")
	return "", ""
}

func dockerHostPort(container, portProto string) (string, error) {
	out, err := dockerRun("port", container, portProto)
	if err != nil {
		return "", fmt.Errorf("docker port: %w: %s", err, out)
	}
	// Example: "127.0.0.1:49154\n"
	re := regexp.MustCompile(`:(\d+)`)
	m := re.FindStringSubmatch(out)
	if len(m) != 2 {
		return "", fmt.Errorf("unexpected docker port output: %q", out)
	}
	return m[1], nil
}

func dockerRmForce(container string) error {
	if strings.TrimSpace(container) == "" {
		return nil
	}
	_, err := dockerRun("rm", "-f", container)
	return err
}

func dockerRun(args ...string) (string, error) {
	cmd := exec.Command("docker", args...)
	b, err := cmd.CombinedOutput()
	return string(b), err
}
