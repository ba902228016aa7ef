package handler

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/oyvindhs/oppgjor-backend/internal/domain"
	"github.com/oyvindhs/oppgjor-backend/internal/service"
	"github.com/rs/zerolog/log"
)

// InvoiceHandler handles success-fee invoice HTTP requests
type InvoiceHandler struct {
	invoiceService *service.InvoiceService
}

// NewInvoiceHandler creates a new InvoiceHandler
func NewInvoiceHandler(invoiceService *service.InvoiceService) *InvoiceHandler {
	return &InvoiceHandler{invoiceService: invoiceService}
}

// GenerateInvoiceRequest represents the JSON request for generating an invoice
type GenerateInvoiceRequest struct {
	PayerID        uuid.UUID `json:"payerId"`
	CaseID         uuid.UUID `json:"caseId"`
	RecoveryAmount int64     `json:"recoveryAmount"`
	Currency       string    `json:"currency"`
}

// Generate creates a success-fee invoice for a recovered amount
// @Summary Generate success-fee invoice
// @Description Creates a pending invoice for the fees owed on a recovery; fee-exempt recoveries return 204
// @Tags invoices
// @Accept json
// @Produce json
// @Param request body GenerateInvoiceRequest true "Invoice request"
// @Success 201 {object} domain.Invoice
// @Success 204 "Recovery is fee-exempt, no invoice created"
// @Failure 400 {object} ProblemDetails
// @Failure 500 {object} ProblemDetails
// @Router /invoices/generate [post]
func (h *InvoiceHandler) Generate(c echo.Context) error {
	var req GenerateInvoiceRequest
	if err := c.Bind(&req); err != nil {
		return NewValidationError(c, "Invalid request body", nil)
	}
	if req.PayerID == uuid.Nil {
		return NewValidationError(c, "Payer ID is required", nil)
	}

	inv, err := h.invoiceService.Generate(c.Request().Context(), req.PayerID, req.CaseID, req.RecoveryAmount, req.Currency)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidAmount) {
			return NewValidationError(c, "Recovery amount must be a positive number of minor units", nil)
		}
		log.Error().Err(err).Str("payer_id", req.PayerID.String()).Msg("Failed to generate invoice")
		return NewInternalError(c, "Invoice generation failed")
	}
	if inv == nil {
		return c.NoContent(http.StatusNoContent)
	}

	return c.JSON(http.StatusCreated, inv)
}

// Get returns an invoice by id
// @Summary Get invoice
// @Tags invoices
// @Produce json
// @Param id path string true "Invoice ID"
// @Success 200 {object} domain.Invoice
// @Failure 400 {object} ProblemDetails
// @Failure 404 {object} ProblemDetails
// @Router /invoices/{id} [get]
func (h *InvoiceHandler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return NewValidationError(c, "Invalid invoice ID", nil)
	}

	inv, err := h.invoiceService.Get(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrInvoiceNotFound) {
			return NewNotFoundError(c, "Invoice not found")
		}
		return NewInternalError(c, "Failed to load invoice")
	}
	return c.JSON(http.StatusOK, inv)
}

// Pay records payment of an invoice
// @Summary Mark invoice paid
// @Tags invoices
// @Produce json
// @Param id path string true "Invoice ID"
// @Success 200 {object} domain.Invoice
// @Failure 400 {object} ProblemDetails
// @Failure 404 {object} ProblemDetails
// @Failure 409 {object} ProblemDetails
// @Router /invoices/{id}/pay [post]
func (h *InvoiceHandler) Pay(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return NewValidationError(c, "Invalid invoice ID", nil)
	}

	inv, err := h.invoiceService.MarkPaid(c.Request().Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvoiceNotFound):
			return NewNotFoundError(c, "Invoice not found")
		case errors.Is(err, domain.ErrStateConflict):
			return NewConflictError(c, "Invoice is already paid or cancelled")
		default:
			log.Error().Err(err).Str("invoice_id", id.String()).Msg("Failed to mark invoice paid")
			return NewInternalError(c, "Failed to update invoice")
		}
	}
	return c.JSON(http.StatusOK, inv)
}
