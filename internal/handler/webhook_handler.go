package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/oyvindhs/oppgjor-backend/internal/domain"
	"github.com/oyvindhs/oppgjor-backend/internal/service"
	"github.com/rs/zerolog/log"
)

// maxWebhookBody caps callback payload size
const maxWebhookBody = 64 * 1024

// processTimeout bounds the async processing of an acked callback
const processTimeout = 30 * time.Second

// WebhookHandler ingests provider callbacks. The contract with providers is
// record-then-ack: a parseable payload is stored durably and answered 202
// before any reconciliation happens, so provider retries stop even when the
// gateway is briefly unreachable.
type WebhookHandler struct {
	reconciler *service.WebhookReconciler
}

// NewWebhookHandler creates a new WebhookHandler
func NewWebhookHandler(reconciler *service.WebhookReconciler) *WebhookHandler {
	return &WebhookHandler{reconciler: reconciler}
}

// Receive accepts a provider callback
// @Summary Receive payment provider callback
// @Description Durably records the callback and acknowledges before asynchronous reconciliation
// @Tags webhooks
// @Accept json
// @Param rail path string true "Payment rail" Enums(card, wallet)
// @Success 202 "Callback recorded"
// @Failure 400 {object} ProblemDetails
// @Failure 404 {object} ProblemDetails
// @Router /webhooks/{rail} [post]
func (h *WebhookHandler) Receive(c echo.Context) error {
	rail := c.Param("rail")

	payload, err := io.ReadAll(io.LimitReader(c.Request().Body, maxWebhookBody))
	if err != nil {
		return NewValidationError(c, "Failed to read request body", nil)
	}

	ev, err := h.reconciler.Ingest(c.Request().Context(), rail, payload)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrUnknownRail):
			return NewNotFoundError(c, "Unknown payment rail: "+rail)
		case errors.Is(err, domain.ErrMalformedWebhook):
			return NewValidationError(c, "Callback payload is missing its external reference", nil)
		default:
			log.Error().Err(err).Str("rail", rail).Msg("Failed to record webhook")
			return NewInternalError(c, "Failed to record callback")
		}
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), processTimeout)
		defer cancel()
		if err := h.reconciler.Process(ctx, ev); err != nil {
			log.Warn().Err(err).
				Str("event_id", ev.ID.String()).
				Str("rail", rail).
				Msg("Webhook processing deferred for retry")
		}
	}()

	return c.NoContent(http.StatusAccepted)
}
