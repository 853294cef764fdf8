package workflow

import (
	"context"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/wholesale_backend/config"
	"bitbucket.org/mmdatafocus/wholesale_backend/models"
	"bitbucket.org/mmdatafocus/wholesale_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const statementHandlerName = "StatementProcessing"

type StatementError struct {
	StatementId int    `json:"statement_id"`
	Reason      string `json:"reason"`
}

type StatementProcessingResult struct {
	ProcessedCount int              `json:"processed_count"`
	SkippedCount   int              `json:"skipped_count"`
	TotalAmount    decimal.Decimal  `json:"total_amount"`
	Errors         []StatementError `json:"errors"`
}

// ProcessStatements settles a batch of pending statements against customer
// mileage. Each statement gets its own transaction and its own idempotency
// record, so a failing statement neither blocks the rest of the batch nor
// leaves partial writes, and re-submitting a processed statement is a no-op.
// Skipped statements are reported per item, with the id and the reason, so
// the caller can tell a settled batch from a re-submitted one.
func ProcessStatements(ctx context.Context, logger *logrus.Logger, statementIds []int) (*StatementProcessingResult, error) {
	result := &StatementProcessingResult{TotalAmount: decimal.Zero, Errors: []StatementError{}}

	failed := 0
	for _, id := range utils.UniqueSlice(statementIds) {
		amount, skipReason, err := processOneStatement(ctx, id)
		if err != nil {
			failed++
			result.Errors = append(result.Errors, StatementError{StatementId: id, Reason: err.Error()})
			config.LogError(logger, "statementProcessing.go", "ProcessStatements", fmt.Sprintf("statement %d", id), nil, err)
			continue
		}
		if skipReason != "" {
			result.SkippedCount++
			result.Errors = append(result.Errors, StatementError{StatementId: id, Reason: skipReason})
			continue
		}
		result.ProcessedCount++
		result.TotalAmount = result.TotalAmount.Add(amount)
	}

	if logger != nil {
		logger.WithFields(logrus.Fields{
			"module":    "statementProcessing",
			"processed": result.ProcessedCount,
			"skipped":   result.SkippedCount,
			"failed":    failed,
			"total":     result.TotalAmount.String(),
		}).Info("statement batch completed")
	}
	return result, nil
}

func processOneStatement(ctx context.Context, statementId int) (amount decimal.Decimal, skipReason string, err error) {
	db := config.GetDB()
	amount = decimal.Zero

	err = db.Transaction(func(tx *gorm.DB) error {
		tx = tx.WithContext(ctx)

		skip, err := BeginIdempotency(tx, statementHandlerName, fmt.Sprintf("%d", statementId))
		if err != nil {
			return err
		}
		if skip {
			skipReason = fmt.Sprintf("statement %d already settled by an earlier batch", statementId)
			return nil
		}

		var statement models.Statement
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", statementId).First(&statement).Error; err != nil {
			return err
		}

		// Status plus flag is the exactly-once guard. Either alone is not
		// enough: the flag survives manual status edits.
		switch statement.Type {
		case models.StatementTypeDeduction:
			if statement.Status != models.StatementStatusPending || utils.DereferencePtr(statement.MileageDeducted) {
				skipReason = (&utils.AlreadyProcessedError{Entity: "Statement", ID: statement.ID, State: string(statement.Status)}).Error()
				return MarkIdempotencySucceeded(tx, statementHandlerName, fmt.Sprintf("%d", statementId))
			}
		case models.StatementTypeReturn:
			if statement.Status != models.StatementStatusPending || utils.DereferencePtr(statement.Refunded) {
				skipReason = (&utils.AlreadyProcessedError{Entity: "Statement", ID: statement.ID, State: string(statement.Status)}).Error()
				return MarkIdempotencySucceeded(tx, statementHandlerName, fmt.Sprintf("%d", statementId))
			}
		default:
			return utils.NewValidationError("type", fmt.Sprintf("unknown statement type %q", statement.Type))
		}

		customer, err := models.GetCustomerByCompanyName(ctx, statement.CompanyName)
		if err == gorm.ErrRecordNotFound {
			// Admin-authored statements may name companies with no customer
			// record yet; they complete without touching mileage. Workflow
			// statements must resolve.
			if !utils.DereferencePtr(statement.IsAdminAuthored) {
				return utils.NewValidationError("company_name", fmt.Sprintf("no customer named %q", statement.CompanyName))
			}
			return completeStatement(tx, &statement, decimal.Zero)
		}
		if err != nil {
			return err
		}

		switch statement.Type {
		case models.StatementTypeDeduction:
			amount = statement.MileageAmount
			if amount.IsPositive() {
				if err := models.AddMileageEntry(tx, &models.MileageHistory{
					CustomerId:           customer.ID,
					Amount:               amount.Neg(),
					Type:                 models.MileageTypeSpend,
					Source:               models.MileageSourceManual,
					Status:               models.MileageStatusCompleted,
					ReferenceStatementId: &statement.ID,
					ReferenceOrderId:     statement.ReferenceOrderId,
				}); err != nil {
					return err
				}
			}
		case models.StatementTypeReturn:
			amount = statement.RefundAmount
			if amount.IsPositive() {
				if err := models.AddMileageEntry(tx, &models.MileageHistory{
					CustomerId:           customer.ID,
					Amount:               amount,
					Type:                 models.MileageTypeEarn,
					Source:               models.MileageSourceRefund,
					Status:               models.MileageStatusCompleted,
					ReferenceStatementId: &statement.ID,
					ReferenceOrderId:     statement.ReferenceOrderId,
				}); err != nil {
					return err
				}
			}
		}
		return completeStatement(tx, &statement, amount)
	})
	if err != nil {
		_ = db.Transaction(func(tx *gorm.DB) error {
			return MarkIdempotencyFailed(tx.WithContext(ctx), statementHandlerName, fmt.Sprintf("%d", statementId), err)
		})
		return decimal.Zero, "", err
	}
	return amount, skipReason, nil
}

func completeStatement(tx *gorm.DB, statement *models.Statement, amount decimal.Decimal) error {
	now := time.Now()
	updates := map[string]any{"processed_at": now}
	switch statement.Type {
	case models.StatementTypeDeduction:
		updates["status"] = models.StatementStatusCompleted
		updates["mileage_deducted"] = true
	case models.StatementTypeReturn:
		updates["status"] = models.StatementStatusRefunded
		updates["refunded"] = true
	}
	res := tx.Model(&models.Statement{}).
		Where("id = ? AND status = ?", statement.ID, models.StatementStatusPending).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected != 1 {
		return &utils.AlreadyProcessedError{Entity: "Statement", ID: statement.ID, State: string(statement.Status)}
	}
	return MarkIdempotencySucceeded(tx, statementHandlerName, fmt.Sprintf("%d", statement.ID))
}
