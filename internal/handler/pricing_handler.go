package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/oyvindhs/oppgjor-backend/internal/domain"
	"github.com/oyvindhs/oppgjor-backend/internal/service"
	"github.com/rs/zerolog/log"
)

// PricingHandler handles regional pricing HTTP requests
type PricingHandler struct {
	feeService *service.FeeService
}

// NewPricingHandler creates a new PricingHandler
func NewPricingHandler(feeService *service.FeeService) *PricingHandler {
	return &PricingHandler{feeService: feeService}
}

// PricingRequest represents the JSON request for a regional fee calculation
type PricingRequest struct {
	Amount      int64  `json:"amount"`
	CountryCode string `json:"countryCode"`
	UserTier    string `json:"userTier"`
}

// Calculate computes the regional fee breakdown for an amount
// @Summary Calculate regional pricing
// @Description Resolves the country's pricing configuration and computes the full fee breakdown
// @Tags pricing
// @Accept json
// @Produce json
// @Param request body PricingRequest true "Pricing request"
// @Success 200 {object} service.PricingBreakdown
// @Failure 400 {object} ProblemDetails
// @Failure 404 {object} ProblemDetails
// @Router /pricing/calculate [post]
func (h *PricingHandler) Calculate(c echo.Context) error {
	var req PricingRequest
	if err := c.Bind(&req); err != nil {
		return NewValidationError(c, "Invalid request body", nil)
	}
	if req.CountryCode == "" {
		return NewValidationError(c, "Country code is required", nil)
	}

	breakdown, err := h.feeService.Pricing(c.Request().Context(), req.Amount, req.CountryCode, req.UserTier, time.Now().UTC())
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidAmount):
			return NewValidationError(c, "Amount must be a positive number of minor units", nil)
		case errors.Is(err, domain.ErrAmountOutOfRange):
			return NewValidationError(c, "Amount is outside the configured bounds for this country", nil)
		case errors.Is(err, domain.ErrConfigNotFound):
			return NewNotFoundError(c, "No pricing configuration for country "+req.CountryCode)
		default:
			log.Error().Err(err).Str("country_code", req.CountryCode).Msg("Failed to calculate pricing")
			return NewInternalError(c, "Pricing calculation failed")
		}
	}

	return c.JSON(http.StatusOK, breakdown)
}
