package main

import (
	"errors"
	"net/http"
	"strconv"

	"bitbucket.org/mmdatafocus/wholesale_backend/config"
	"bitbucket.org/mmdatafocus/wholesale_backend/models"
	"bitbucket.org/mmdatafocus/wholesale_backend/utils"
	"bitbucket.org/mmdatafocus/wholesale_backend/workflow"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// respondError maps domain errors onto HTTP statuses. Validation problems are
// the caller's fault, already-processed and insufficient-stock are conflicts,
// everything unexpected is a 500 with the detail kept server-side.
func respondError(c *gin.Context, err error) {
	var insufficientStock *utils.InsufficientStockError
	switch {
	case utils.IsValidationError(err):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, gorm.ErrRecordNotFound), errors.Is(err, utils.ErrorRecordNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case utils.IsAlreadyProcessedError(err):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.As(err, &insufficientStock):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, workflow.ErrIdempotencyInProgress):
		c.JSON(http.StatusConflict, gin.H{"error": "already being processed, retry later"})
	default:
		config.LogError(config.GetLogger(), "inventoryHandlers.go", "respondError", c.FullPath(), nil, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func allocateHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		result, err := workflow.RunAllocation(c.Request.Context(), config.GetLogger())
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

func physicalAuditHandler() gin.HandlerFunc {
	type auditRequest struct {
		AuditId int                   `json:"audit_id" binding:"required"`
		Counts  []workflow.AuditCount `json:"counts" binding:"required,dive"`
	}
	return func(c *gin.Context) {
		var req auditRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"errors": utils.ProcessValidationErrors(err)})
			return
		}
		result, err := workflow.RunPhysicalAudit(c.Request.Context(), config.GetLogger(), req.AuditId, req.Counts)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

func stockAdjustmentHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input workflow.StockAdjustment
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"errors": utils.ProcessValidationErrors(err)})
			return
		}
		variant, err := workflow.RecordStockAdjustment(c.Request.Context(), config.GetLogger(), &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, variant)
	}
}

func syncCheckHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		drifts, err := workflow.CheckAllocationDrift(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		// Optional variant filter.
		if pid := c.Query("product_id"); pid != "" {
			productId, convErr := strconv.Atoi(pid)
			if convErr != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "product_id must be an integer"})
				return
			}
			color, size := c.Query("color"), c.Query("size")
			filtered := drifts[:0]
			for _, d := range drifts {
				if d.ProductId == productId &&
					(color == "" || d.Color == color) &&
					(size == "" || d.Size == size) {
					filtered = append(filtered, d)
				}
			}
			drifts = filtered
		}
		c.JSON(http.StatusOK, gin.H{"drifts": drifts, "count": len(drifts)})
	}
}

func syncFixHandler() gin.HandlerFunc {
	type fixRequest struct {
		Precise *bool `json:"precise"`
	}
	return func(c *gin.Context) {
		var req fixRequest
		if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
			c.JSON(http.StatusBadRequest, gin.H{"errors": utils.ProcessValidationErrors(err)})
			return
		}
		// Precise is the default: rebuild from live reservations.
		precise := utils.DereferencePtr(req.Precise, true)
		fixed, err := workflow.FixAllocationDrift(c.Request.Context(), config.GetLogger(), precise)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"fixed": fixed, "precise": precise})
	}
}

func latestReconcileHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var summary workflow.ReconciliationSummary
		found, err := config.GetRedisObject("reconcile:last_summary", &summary)
		if err != nil {
			respondError(c, err)
			return
		}
		lastAllocation, _, _ := config.GetRedisValue("allocation:last_run")
		if !found {
			c.JSON(http.StatusOK, gin.H{"summary": nil, "last_allocation_run": lastAllocation})
			return
		}
		c.JSON(http.StatusOK, gin.H{"summary": summary, "last_allocation_run": lastAllocation})
	}
}

func reconcileHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		summary, err := workflow.RunReconciliationChecks(c.Request.Context(), config.GetLogger())
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, summary)
	}
}

func createProductHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewProduct
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"errors": utils.ProcessValidationErrors(err)})
			return
		}
		product, err := models.CreateProduct(c.Request.Context(), &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, product)
	}
}

func getProductHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "id must be an integer"})
			return
		}
		product, err := models.GetProduct(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, product)
	}
}

func createCustomerHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewCustomer
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"errors": utils.ProcessValidationErrors(err)})
			return
		}
		customer, err := models.CreateCustomer(c.Request.Context(), &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, customer)
	}
}
