package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/oyvindhs/oppgjor-backend/internal/domain"
	"github.com/oyvindhs/oppgjor-backend/internal/gateway"
	"github.com/rs/zerolog/log"
)

// WebhookReconciler ingests asynchronous provider callbacks and reconciles
// them into the escrow lifecycle. Callbacks are recorded durably before
// they are acknowledged; processing never trusts payload fields beyond the
// external reference and always re-fetches the authoritative status from
// the gateway, because webhook bodies can be spoofed or stale.
type WebhookReconciler struct {
	events   domain.WebhookEventRepository
	payments domain.SettlementRepository
	escrow   *EscrowService
	gateways map[domain.PaymentMethod]gateway.Gateway
}

// NewWebhookReconciler creates a new WebhookReconciler
func NewWebhookReconciler(events domain.WebhookEventRepository, payments domain.SettlementRepository, escrow *EscrowService, gateways map[domain.PaymentMethod]gateway.Gateway) *WebhookReconciler {
	return &WebhookReconciler{
		events:   events,
		payments: payments,
		escrow:   escrow,
		gateways: gateways,
	}
}

// Ingest durably records a provider callback and returns it for
// asynchronous processing. Unknown rails and unparseable payloads are the
// only rejections; everything else is accepted so the provider stops
// retrying.
func (r *WebhookReconciler) Ingest(ctx context.Context, rail string, payload []byte) (*domain.WebhookEvent, error) {
	method := domain.PaymentMethod(rail)
	if _, ok := r.gateways[method]; !ok {
		return nil, domain.ErrUnknownRail
	}

	ref, err := externalRef(rail, payload)
	if err != nil {
		return nil, err
	}

	ev := &domain.WebhookEvent{
		ID:          uuid.New(),
		Rail:        rail,
		ExternalRef: ref,
		Payload:     payload,
		ReceivedAt:  time.Now().UTC(),
	}
	return r.events.Create(ctx, ev)
}

// Process reconciles a recorded callback. Unknown external references are
// logged and dropped, never fabricated into payments. A state conflict
// means another path already handled the transition; with at-least-once,
// unordered delivery that is the expected duplicate case, not an error.
func (r *WebhookReconciler) Process(ctx context.Context, ev *domain.WebhookEvent) error {
	p, err := r.payments.GetByGatewayRef(ctx, ev.ExternalRef)
	if err != nil {
		if errors.Is(err, domain.ErrPaymentNotFound) {
			log.Warn().
				Str("rail", ev.Rail).
				Str("external_ref", ev.ExternalRef).
				Msg("Webhook for unknown payment reference, dropping")
			note := "unknown payment reference"
			return r.events.MarkProcessed(ctx, ev.ID, &note)
		}
		return err
	}

	gw, ok := r.gateways[p.PaymentMethod]
	if !ok {
		return domain.ErrUnknownRail
	}

	status, err := gw.Status(ctx, ev.ExternalRef)
	if err != nil {
		// Left unprocessed; a later delivery or the pending sweep retries it
		log.Error().Err(err).
			Str("rail", ev.Rail).
			Str("external_ref", ev.ExternalRef).
			Msg("Failed to fetch gateway status for webhook")
		return err
	}

	if err := r.escrow.ApplyGatewayStatus(ctx, p.ID, status); err != nil {
		if errors.Is(err, domain.ErrStateConflict) {
			log.Debug().
				Str("payment_id", p.ID.String()).
				Str("status", string(status)).
				Msg("Webhook transition already handled")
			note := "already handled"
			return r.events.MarkProcessed(ctx, ev.ID, &note)
		}
		return err
	}

	return r.events.MarkProcessed(ctx, ev.ID, nil)
}

// ProcessPending reprocesses recorded callbacks that have not completed,
// typically after a restart or a transient gateway failure.
func (r *WebhookReconciler) ProcessPending(ctx context.Context, limit int) {
	events, err := r.events.ListUnprocessed(ctx, limit)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list unprocessed webhook events")
		return
	}

	for i := range events {
		if err := r.Process(ctx, &events[i]); err != nil {
			log.Warn().Err(err).
				Str("event_id", events[i].ID.String()).
				Msg("Webhook event left for retry")
		}
	}
}

// walletCallback is the wallet rail's callback envelope
type walletCallback struct {
	OrderID string `json:"orderId"`
}

// cardCallback is the card rail's event envelope
type cardCallback struct {
	Type string `json:"type"`
	Data struct {
		Object struct {
			ID string `json:"id"`
		} `json:"object"`
	} `json:"data"`
}

// externalRef extracts the provider's own order/transaction id from a
// callback payload. This is the only payload field the reconciler reads.
func externalRef(rail string, payload []byte) (string, error) {
	switch domain.PaymentMethod(rail) {
	case domain.MethodWallet:
		var cb walletCallback
		if err := json.Unmarshal(payload, &cb); err != nil || cb.OrderID == "" {
			return "", domain.ErrMalformedWebhook
		}
		return cb.OrderID, nil
	case domain.MethodCard:
		var cb cardCallback
		if err := json.Unmarshal(payload, &cb); err != nil || cb.Data.Object.ID == "" {
			return "", domain.ErrMalformedWebhook
		}
		return cb.Data.Object.ID, nil
	default:
		return "", domain.ErrUnknownRail
	}
}
