package main

import (
	"net/http"
	"strconv"

	"bitbucket.org/mmdatafocus/wholesale_backend/config"
	"bitbucket.org/mmdatafocus/wholesale_backend/models"
	"bitbucket.org/mmdatafocus/wholesale_backend/utils"
	"bitbucket.org/mmdatafocus/wholesale_backend/workflow"
	"github.com/gin-gonic/gin"
)

func createStatementHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewStatement
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"errors": utils.ProcessValidationErrors(err)})
			return
		}
		statement, err := models.CreateStatement(c.Request.Context(), &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, statement)
	}
}

func getStatementHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "id must be an integer"})
			return
		}
		statement, err := models.GetStatement(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, statement)
	}
}

func listStatementsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		statements, err := utils.FetchAllModels[models.Statement](c.Request.Context(), "Items")
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"statements": statements, "count": len(statements)})
	}
}

func processStatementsHandler() gin.HandlerFunc {
	type processRequest struct {
		StatementIds []int `json:"statement_ids" binding:"required,min=1"`
	}
	return func(c *gin.Context) {
		var req processRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"errors": utils.ProcessValidationErrors(err)})
			return
		}
		result, err := workflow.ProcessStatements(c.Request.Context(), config.GetLogger(), req.StatementIds)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}
