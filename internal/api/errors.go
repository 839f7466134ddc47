package api

import (
	"errors"
	"net/http"

	"github.com/akshaysangma/irec-fractionalizer/internal/connector"
	"github.com/akshaysangma/irec-fractionalizer/internal/model"
	"github.com/akshaysangma/irec-fractionalizer/internal/service"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ErrorResponse is the JSON body of every failed request
type ErrorResponse struct {
	Code              string              `json:"code"`
	Message           string              `json:"message"`
	Fields            map[string]string   `json:"fields,omitempty"`
	Step              string              `json:"step,omitempty"`
	LastConfirmedStep string              `json:"last_confirmed_step,omitempty"`
	SideEffects       bool                `json:"side_effects"`
	PendingTx         *model.TxHandle     `json:"pending_tx,omitempty"`
	Checkpoint        *service.Checkpoint `json:"checkpoint,omitempty"`
}

var errorCodes = []struct {
	kind error
	code string
}{
	{service.ErrInvalidRequest, "invalid_request"},
	{service.ErrInvalidAmount, "invalid_amount"},
	{service.ErrCertificateNotFound, "certificate_not_found"},
	{service.ErrMissingStepInput, "missing_step_input"},
	{service.ErrMint, "mint_failed"},
	{service.ErrOwnershipTransfer, "ownership_transfer_failed"},
	{service.ErrApproval, "approval_failed"},
	{service.ErrDeposit, "deposit_failed"},
	{service.ErrPriceConfiguration, "price_configuration_failed"},
	{service.ErrPriceRead, "price_read_failed"},
	{service.ErrPurchaseSimulation, "purchase_simulation_failed"},
	{service.ErrPurchaseSubmit, "purchase_submit_failed"},
	{connector.ErrNoWallet, "no_wallet"},
	{connector.ErrRead, "chain_read_failed"},
}

func errorCode(err error) string {
	for _, ec := range errorCodes {
		if errors.Is(err, ec.kind) {
			return ec.code
		}
	}
	return "internal_error"
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrInvalidRequest),
		errors.Is(err, service.ErrInvalidAmount),
		errors.Is(err, service.ErrMissingStepInput):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrCertificateNotFound):
		return http.StatusNotFound
	case errors.Is(err, connector.ErrNoWallet):
		return http.StatusServiceUnavailable
	case errors.Is(err, connector.ErrSimulation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, connector.ErrRead),
		errors.Is(err, connector.ErrSubmit),
		errors.Is(err, connector.ErrReceiptTimeout),
		errors.Is(err, connector.ErrReverted):
		return http.StatusBadGateway
	}

	if _, ok := service.AsStepError(err); ok {
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// writeError maps a service failure to its HTTP status and body.
func (h *Handler) writeError(c *gin.Context, err error) {
	status := statusFor(err)
	resp := ErrorResponse{
		Code:    errorCode(err),
		Message: err.Error(),
	}

	if verr, ok := model.AsValidationError(err); ok {
		resp.Fields = verr.Fields
	}

	if serr, ok := service.AsStepError(err); ok {
		resp.Step = string(serr.Step)
		resp.LastConfirmedStep = string(serr.LastConfirmed)
		resp.SideEffects = serr.SideEffects
		resp.PendingTx = serr.PendingTx
		resp.Checkpoint = serr.Checkpoint
	}

	if status >= http.StatusInternalServerError {
		h.logger.Error("Request failed",
			zap.String("path", c.FullPath()),
			zap.Int("status", status),
			zap.Error(err))
	} else {
		h.logger.Info("Request rejected",
			zap.String("path", c.FullPath()),
			zap.Int("status", status),
			zap.String("code", resp.Code))
	}

	c.JSON(status, resp)
}

func (h *Handler) badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, ErrorResponse{
		Code:    "invalid_body",
		Message: err.Error(),
	})
}
