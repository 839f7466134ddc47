// Package api exposes the tokenization, purchase and holdings flows over HTTP.
package api

import (
	"context"
	"net/http"

	"github.com/akshaysangma/irec-fractionalizer/internal/catalog"
	"github.com/akshaysangma/irec-fractionalizer/internal/model"
	"github.com/akshaysangma/irec-fractionalizer/internal/service"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Handler handles HTTP requests for the fractionalizer flows
type Handler struct {
	catalog      *catalog.Catalog
	tokenization *service.TokenizationService
	purchases    *service.PurchaseService
	holdings     *service.HoldingsService
	logger       *zap.Logger
}

// NewHandler creates a new handler
func NewHandler(
	catalog *catalog.Catalog,
	tokenization *service.TokenizationService,
	purchases *service.PurchaseService,
	holdings *service.HoldingsService,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		catalog:      catalog,
		tokenization: tokenization,
		purchases:    purchases,
		holdings:     holdings,
		logger:       logger,
	}
}

// RegisterRoutes registers the v1 routes
func (h *Handler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/certificates", h.listCertificates)

	tokenizations := router.Group("/tokenizations")
	{
		tokenizations.POST("", h.createTokenization)
		tokenizations.POST("/resume", h.resumeTokenization)
	}

	router.POST("/purchases", h.createPurchase)
	router.GET("/holdings", h.getHoldings)
	router.GET("/transfers", h.listTransfers)
}

// PurchaseRequest is the body of POST /api/v1/purchases
type PurchaseRequest struct {
	Amount int64 `json:"amount"`
	Wait   bool  `json:"wait"`
}

// ResumeRequest is the body of POST /api/v1/tokenizations/resume
type ResumeRequest struct {
	Request    model.TokenizationRequest `json:"request"`
	Checkpoint *service.Checkpoint       `json:"checkpoint"`
}

// listCertificates handles GET /api/v1/certificates
func (h *Handler) listCertificates(c *gin.Context) {
	c.JSON(http.StatusOK, h.catalog.List())
}

// createTokenization handles POST /api/v1/tokenizations
func (h *Handler) createTokenization(c *gin.Context) {
	var req model.TokenizationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	result, err := h.tokenization.Run(writeContext(c), req, nil)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, result)
}

// resumeTokenization handles POST /api/v1/tokenizations/resume
func (h *Handler) resumeTokenization(c *gin.Context) {
	var req ResumeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	result, err := h.tokenization.Resume(writeContext(c), req.Request, req.Checkpoint, nil)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, result)
}

// createPurchase handles POST /api/v1/purchases
func (h *Handler) createPurchase(c *gin.Context) {
	var req PurchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	execute := h.purchases.Execute
	if req.Wait {
		execute = h.purchases.ExecuteAndWait
	}

	result, err := execute(writeContext(c), req.Amount)
	if err != nil {
		h.writeError(c, err)
		return
	}

	status := http.StatusAccepted
	if result.Receipt != nil {
		status = http.StatusOK
	}
	c.JSON(status, result)
}

// getHoldings handles GET /api/v1/holdings
func (h *Handler) getHoldings(c *gin.Context) {
	summary, err := h.holdings.Summary(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, summary)
}

// listTransfers handles GET /api/v1/transfers
func (h *Handler) listTransfers(c *gin.Context) {
	records, err := h.holdings.Transfers(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, records)
}

// writeContext is the request context without its cancellation: write flows
// run to completion after a client disconnect.
func writeContext(c *gin.Context) context.Context {
	return context.WithoutCancel(c.Request.Context())
}
