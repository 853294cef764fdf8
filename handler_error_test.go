package main

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"bitbucket.org/mmdatafocus/wholesale_backend/utils"
	"bitbucket.org/mmdatafocus/wholesale_backend/workflow"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

func TestRespondErrorStatusMapping(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation error", utils.NewValidationError("qty", "must be positive"), http.StatusBadRequest},
		{"gorm record not found", gorm.ErrRecordNotFound, http.StatusNotFound},
		{"model record not found", utils.ErrorRecordNotFound, http.StatusNotFound},
		{"wrapped model record not found", errors.Join(errors.New("fetch order"), utils.ErrorRecordNotFound), http.StatusNotFound},
		{"already processed", &utils.AlreadyProcessedError{Entity: "order", ID: 7, State: "Cancelled"}, http.StatusConflict},
		{"insufficient stock", &utils.InsufficientStockError{ProductId: 1, Requested: 5, Granted: 2}, http.StatusConflict},
		{"idempotency in progress", workflow.ErrIdempotencyInProgress, http.StatusConflict},
		{"unexpected error", errors.New("connection reset"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recorder := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(recorder)
			c.Request = httptest.NewRequest(http.MethodGet, "/orders/7", nil)

			respondError(c, tt.err)

			if recorder.Code != tt.want {
				t.Errorf("respondError(%v) = %d, want %d", tt.err, recorder.Code, tt.want)
			}
		})
	}
}
