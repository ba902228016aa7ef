package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/oyvindhs/oppgjor-backend/internal/domain"
	"github.com/oyvindhs/oppgjor-backend/internal/service"
	"github.com/rs/zerolog/log"
)

// SettlementHandler handles settlement payment HTTP requests
type SettlementHandler struct {
	escrowService *service.EscrowService
	feeService    *service.FeeService
}

// NewSettlementHandler creates a new SettlementHandler
func NewSettlementHandler(escrowService *service.EscrowService, feeService *service.FeeService) *SettlementHandler {
	return &SettlementHandler{
		escrowService: escrowService,
		feeService:    feeService,
	}
}

// CalculateRequest represents the JSON request for a fee calculation
type CalculateRequest struct {
	SettlementAmount int64 `json:"settlementAmount"`
}

// Calculate computes a settlement fee breakdown
// @Summary Calculate settlement fees
// @Description Computes the platform fee added on top of a settlement amount
// @Tags settlements
// @Accept json
// @Produce json
// @Param request body CalculateRequest true "Calculation request"
// @Success 200 {object} service.SettlementBreakdown
// @Failure 400 {object} ProblemDetails
// @Router /settlements/calculate [post]
func (h *SettlementHandler) Calculate(c echo.Context) error {
	var req CalculateRequest
	if err := c.Bind(&req); err != nil {
		return NewValidationError(c, "Invalid request body", nil)
	}

	breakdown, err := h.feeService.SettlementFee(req.SettlementAmount)
	if err != nil {
		return h.handleServiceError(c, err)
	}
	return c.JSON(http.StatusOK, breakdown)
}

// CreateSettlementRequest represents the JSON request for creating a
// settlement payment
type CreateSettlementRequest struct {
	PayerID          uuid.UUID `json:"payerId"`
	DebtID           uuid.UUID `json:"debtId"`
	CreditorID       uuid.UUID `json:"creditorId"`
	CreditorName     string    `json:"creditorName"`
	SettlementAmount int64     `json:"settlementAmount"`
}

// Create creates a new settlement payment
// @Summary Create settlement payment
// @Description Creates a settlement payment in pending state with a fixed fee breakdown
// @Tags settlements
// @Accept json
// @Produce json
// @Param request body CreateSettlementRequest true "Settlement request"
// @Success 201 {object} domain.SettlementPayment
// @Failure 400 {object} ProblemDetails
// @Failure 404 {object} ProblemDetails
// @Failure 500 {object} ProblemDetails
// @Router /settlements [post]
func (h *SettlementHandler) Create(c echo.Context) error {
	var req CreateSettlementRequest
	if err := c.Bind(&req); err != nil {
		return NewValidationError(c, "Invalid request body", nil)
	}

	if req.PayerID == uuid.Nil {
		return NewValidationError(c, "Payer ID is required", nil)
	}
	if req.DebtID == uuid.Nil {
		return NewValidationError(c, "Debt ID is required", nil)
	}
	if req.CreditorName == "" {
		return NewValidationError(c, "Creditor name is required", nil)
	}

	payment, err := h.escrowService.Create(c.Request().Context(), service.CreateSettlementInput{
		PayerID:          req.PayerID,
		DebtID:           req.DebtID,
		CreditorID:       req.CreditorID,
		CreditorName:     req.CreditorName,
		SettlementAmount: req.SettlementAmount,
	})
	if err != nil {
		log.Error().Err(err).Str("debt_id", req.DebtID.String()).Msg("Failed to create settlement payment")
		return h.handleServiceError(c, err)
	}

	return c.JSON(http.StatusCreated, payment)
}

// GetResponse is a settlement payment with its lazily evaluated expiry flag
type GetResponse struct {
	*domain.SettlementPayment
	Expired bool `json:"expired"`
}

// Get returns a settlement payment by id
// @Summary Get settlement payment
// @Tags settlements
// @Produce json
// @Param id path string true "Settlement payment ID"
// @Success 200 {object} GetResponse
// @Failure 400 {object} ProblemDetails
// @Failure 404 {object} ProblemDetails
// @Router /settlements/{id} [get]
func (h *SettlementHandler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return NewValidationError(c, "Invalid settlement payment ID", nil)
	}

	payment, err := h.escrowService.Get(c.Request().Context(), id)
	if err != nil {
		return h.handleServiceError(c, err)
	}
	return c.JSON(http.StatusOK, GetResponse{
		SettlementPayment: payment,
		Expired:           payment.Expired(time.Now()),
	})
}

// PayRequest represents the JSON request for funding a settlement
type PayRequest struct {
	Method         string `json:"method"`
	MethodRef      string `json:"methodRef"`
	IdempotencyKey string `json:"idempotencyKey"`
}

// PayResponse represents the JSON response for a pay call
type PayResponse struct {
	Payment     *domain.SettlementPayment `json:"payment"`
	RedirectURL string                    `json:"redirectUrl,omitempty"`
}

// Pay authorizes the settlement total on the chosen payment rail
// @Summary Pay settlement
// @Description Authorizes the total amount; card rail escrows synchronously, wallet rail returns a redirect URL
// @Tags settlements
// @Accept json
// @Produce json
// @Param id path string true "Settlement payment ID"
// @Param request body PayRequest true "Payment request"
// @Success 200 {object} PayResponse
// @Failure 400 {object} ProblemDetails
// @Failure 404 {object} ProblemDetails
// @Failure 409 {object} ProblemDetails
// @Failure 502 {object} ProblemDetails
// @Router /settlements/{id}/pay [post]
func (h *SettlementHandler) Pay(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return NewValidationError(c, "Invalid settlement payment ID", nil)
	}

	var req PayRequest
	if err := c.Bind(&req); err != nil {
		return NewValidationError(c, "Invalid request body", nil)
	}
	if req.Method == "" {
		return NewValidationError(c, "Payment method is required", nil)
	}

	result, err := h.escrowService.Pay(c.Request().Context(), id, service.PayInput{
		Method:         domain.PaymentMethod(req.Method),
		MethodRef:      req.MethodRef,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		log.Error().Err(err).Str("payment_id", id.String()).Msg("Failed to pay settlement")
		return h.handleServiceError(c, err)
	}

	return c.JSON(http.StatusOK, PayResponse{
		Payment:     result.Payment,
		RedirectURL: result.RedirectURL,
	})
}

// ReleaseRequest represents the JSON request for releasing escrowed funds
type ReleaseRequest struct {
	Confirmation string `json:"confirmation"`
}

// ReleaseResponse represents the JSON response for a successful release
type ReleaseResponse struct {
	Payment              *domain.SettlementPayment `json:"payment"`
	AmountReleased       int64                     `json:"amountReleased"`
	PlatformFeeCollected int64                     `json:"platformFeeCollected"`
}

// Release captures held funds to the creditor
// @Summary Release escrowed funds
// @Description Captures the authorization and marks the linked debt settled
// @Tags settlements
// @Accept json
// @Produce json
// @Param id path string true "Settlement payment ID"
// @Param request body ReleaseRequest true "Release request"
// @Success 200 {object} ReleaseResponse
// @Failure 400 {object} ProblemDetails
// @Failure 404 {object} ProblemDetails
// @Failure 409 {object} ProblemDetails
// @Failure 410 {object} ProblemDetails
// @Failure 502 {object} ProblemDetails
// @Router /settlements/{id}/release [post]
func (h *SettlementHandler) Release(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return NewValidationError(c, "Invalid settlement payment ID", nil)
	}

	var req ReleaseRequest
	if err := c.Bind(&req); err != nil {
		return NewValidationError(c, "Invalid request body", nil)
	}

	result, err := h.escrowService.Release(c.Request().Context(), id, req.Confirmation)
	if err != nil {
		log.Error().Err(err).Str("payment_id", id.String()).Msg("Failed to release settlement")
		return h.handleServiceError(c, err)
	}

	return c.JSON(http.StatusOK, ReleaseResponse{
		Payment:              result.Payment,
		AmountReleased:       result.AmountReleased,
		PlatformFeeCollected: result.PlatformFeeCollected,
	})
}

// RefundRequest represents the JSON request for refunding escrowed funds
type RefundRequest struct {
	Reason string `json:"reason"`
}

// RefundResponse represents the JSON response for a successful refund
type RefundResponse struct {
	Payment      *domain.SettlementPayment `json:"payment"`
	RefundAmount int64                     `json:"refundAmount"`
}

// Refund releases the authorization back to the payer
// @Summary Refund escrowed funds
// @Description Cancels the authorization and marks the linked settlement rejected
// @Tags settlements
// @Accept json
// @Produce json
// @Param id path string true "Settlement payment ID"
// @Param request body RefundRequest true "Refund request"
// @Success 200 {object} RefundResponse
// @Failure 400 {object} ProblemDetails
// @Failure 404 {object} ProblemDetails
// @Failure 409 {object} ProblemDetails
// @Failure 502 {object} ProblemDetails
// @Router /settlements/{id}/refund [post]
func (h *SettlementHandler) Refund(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return NewValidationError(c, "Invalid settlement payment ID", nil)
	}

	var req RefundRequest
	if err := c.Bind(&req); err != nil {
		return NewValidationError(c, "Invalid request body", nil)
	}

	result, err := h.escrowService.Refund(c.Request().Context(), id, req.Reason)
	if err != nil {
		log.Error().Err(err).Str("payment_id", id.String()).Msg("Failed to refund settlement")
		return h.handleServiceError(c, err)
	}

	return c.JSON(http.StatusOK, RefundResponse{
		Payment:      result.Payment,
		RefundAmount: result.RefundAmount,
	})
}

// handleServiceError maps domain errors to appropriate HTTP responses
func (h *SettlementHandler) handleServiceError(c echo.Context, err error) error {
	if gwErr, ok := domain.AsGatewayError(err); ok {
		return NewUpstreamError(c, "Payment provider rejected the request: "+gwErr.Message)
	}

	switch {
	case errors.Is(err, domain.ErrInvalidAmount):
		return NewValidationError(c, "Amount must be a positive number of minor units", nil)
	case errors.Is(err, domain.ErrUnsupportedMethod):
		return NewValidationError(c, "Payment method is not supported", nil)
	case errors.Is(err, domain.ErrPaymentNotFound):
		return NewNotFoundError(c, "Settlement payment not found")
	case errors.Is(err, domain.ErrDebtNotFound):
		return NewNotFoundError(c, "Debt not found")
	case errors.Is(err, domain.ErrStateConflict):
		return NewConflictError(c, "Settlement payment is not in a state that allows this operation")
	case errors.Is(err, domain.ErrHoldExpired):
		return NewGoneError(c, "Escrow hold has expired; funds will be refunded")
	default:
		return NewInternalError(c, "Settlement operation failed")
	}
}
