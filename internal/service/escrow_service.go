package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/oyvindhs/oppgjor-backend/internal/domain"
	"github.com/oyvindhs/oppgjor-backend/internal/gateway"
	"github.com/oyvindhs/oppgjor-backend/internal/websocket"
)

// HoldWindow is how long authorized funds stay escrowed before an
// unresolved hold expires and is refunded by the sweep.
const HoldWindow = 7 * 24 * time.Hour

// EscrowService owns the settlement payment lifecycle. Every transition
// runs inside SettlementRepository.Mutate, so the guard check and the state
// update are one atomic unit and concurrent transitions on the same payment
// serialize: one wins, the other observes ErrStateConflict. The webhook
// reconciler drives the same transition functions as the synchronous API.
type EscrowService struct {
	payments       domain.SettlementRepository
	debts          domain.DebtRepository
	fees           *FeeService
	gateways       map[domain.PaymentMethod]gateway.Gateway
	eventPublisher websocket.EventPublisher
}

// NewEscrowService creates a new EscrowService
func NewEscrowService(payments domain.SettlementRepository, debts domain.DebtRepository, fees *FeeService, gateways map[domain.PaymentMethod]gateway.Gateway) *EscrowService {
	return &EscrowService{
		payments: payments,
		debts:    debts,
		fees:     fees,
		gateways: gateways,
	}
}

// SetEventPublisher sets the event publisher for real-time updates
func (s *EscrowService) SetEventPublisher(publisher websocket.EventPublisher) {
	s.eventPublisher = publisher
}

// publishEvent publishes a WebSocket event if a publisher is configured
func (s *EscrowService) publishEvent(event websocket.Event) {
	if s.eventPublisher != nil {
		s.eventPublisher.Publish(event)
	}
}

// CreateSettlementInput is the input for creating a settlement payment
type CreateSettlementInput struct {
	PayerID          uuid.UUID
	DebtID           uuid.UUID
	CreditorID       uuid.UUID
	CreditorName     string
	SettlementAmount int64 // minor units
}

// Create computes the fee breakdown and persists a settlement payment in
// pending/pending_payment. No gateway call is made; the total is fixed here
// and never recomputed.
func (s *EscrowService) Create(ctx context.Context, input CreateSettlementInput) (*domain.SettlementPayment, error) {
	breakdown, err := s.fees.SettlementFee(input.SettlementAmount)
	if err != nil {
		return nil, err
	}

	debt, err := s.debts.GetByID(ctx, input.DebtID)
	if err != nil {
		return nil, err
	}

	currency := debt.Currency
	if currency == "" {
		currency = DefaultCurrency
	}

	p := &domain.SettlementPayment{
		ID:                 uuid.New(),
		PayerID:            input.PayerID,
		DebtID:             input.DebtID,
		CreditorID:         input.CreditorID,
		CreditorName:       input.CreditorName,
		Currency:           currency,
		SettlementAmount:   breakdown.SettlementAmount,
		PlatformFeePercent: breakdown.FeePercent,
		PlatformFee:        breakdown.PlatformFee,
		TotalAmount:        breakdown.TotalPayment,
		Status:             domain.PaymentStatusPending,
		EscrowStatus:       domain.EscrowPendingPayment,
		CreatedAt:          time.Now().UTC(),
	}

	created, err := s.payments.Create(ctx, p)
	if err != nil {
		return nil, err
	}

	s.publishEvent(websocket.PaymentCreated(created))
	return created, nil
}

// PayInput is the input for funding a settlement payment
type PayInput struct {
	Method         domain.PaymentMethod
	MethodRef      string
	IdempotencyKey string
}

// PayResult is the outcome of a pay call. RedirectURL is set on the wallet
// rail, where the payer completes the payment out of band and the escrow
// transition arrives through the webhook reconciler.
type PayResult struct {
	Payment     *domain.SettlementPayment
	RedirectURL string
}

// Pay authorizes the total amount on the chosen rail. The card rail holds
// funds synchronously and the payment moves to escrowed/funds_held here;
// the wallet rail only initiates, so the payment keeps its gateway ref but
// stays pending until the reservation callback. On gateway failure nothing
// changes and the caller may retry with the same idempotency key.
func (s *EscrowService) Pay(ctx context.Context, id uuid.UUID, input PayInput) (*PayResult, error) {
	gw, ok := s.gateways[input.Method]
	if !ok {
		return nil, domain.ErrUnsupportedMethod
	}

	idempotencyKey := input.IdempotencyKey
	if idempotencyKey == "" {
		idempotencyKey = uuid.New().String()
	}

	var redirectURL string
	var escrowed bool

	updated, err := s.payments.Mutate(ctx, id, func(p *domain.SettlementPayment, _ domain.SettlementTx) error {
		if p.Status != domain.PaymentStatusPending || p.EscrowStatus != domain.EscrowPendingPayment {
			return domain.ErrStateConflict
		}

		auth, err := gw.Authorize(ctx, gateway.AuthorizeRequest{
			AmountMinor:    p.TotalAmount,
			Currency:       p.Currency,
			MethodRef:      input.MethodRef,
			Reference:      p.ID.String(),
			Description:    "Debt settlement " + p.ID.String(),
			IdempotencyKey: idempotencyKey,
		})
		if err != nil {
			return err
		}

		p.PaymentMethod = input.Method
		p.GatewayRef = &auth.Ref
		redirectURL = auth.RedirectURL

		if auth.Status == gateway.StatusHeld {
			s.markHeld(p, time.Now().UTC())
			escrowed = true
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if escrowed {
		s.publishEvent(websocket.PaymentEscrowed(updated))
	}
	return &PayResult{Payment: updated, RedirectURL: redirectURL}, nil
}

// ReleaseResult is the outcome of a successful release
type ReleaseResult struct {
	Payment              *domain.SettlementPayment
	AmountReleased       int64
	PlatformFeeCollected int64
}

// Release captures the held funds to the creditor and marks the linked debt
// settled, all within one serialized transition. Calling release on
// anything other than funds_held is a state conflict, never a silent
// no-op: a duplicate release must be distinguishable from a first one.
func (s *EscrowService) Release(ctx context.Context, id uuid.UUID, confirmation string) (*ReleaseResult, error) {
	updated, err := s.payments.Mutate(ctx, id, func(p *domain.SettlementPayment, tx domain.SettlementTx) error {
		if p.EscrowStatus != domain.EscrowFundsHeld {
			return domain.ErrStateConflict
		}

		now := time.Now().UTC()
		if p.Expired(now) {
			return domain.ErrHoldExpired
		}

		gw, ok := s.gateways[p.PaymentMethod]
		if !ok || p.GatewayRef == nil {
			return domain.ErrInternalError
		}

		if err := gw.Capture(ctx, *p.GatewayRef, p.TotalAmount); err != nil {
			return err
		}

		return s.finalizeRelease(ctx, p, tx, now)
	})
	if err != nil {
		return nil, err
	}

	s.publishEvent(websocket.PaymentReleased(updated))
	return &ReleaseResult{
		Payment:              updated,
		AmountReleased:       updated.SettlementAmount,
		PlatformFeeCollected: updated.PlatformFee,
	}, nil
}

// RefundResult is the outcome of a successful refund
type RefundResult struct {
	Payment      *domain.SettlementPayment
	RefundAmount int64
}

// Refund releases the authorization back to the payer without capturing and
// marks the linked debt settlement_rejected. Release and refund are
// mutually exclusive terminal outcomes: once either succeeds the other is
// unreachable through the funds_held guard.
func (s *EscrowService) Refund(ctx context.Context, id uuid.UUID, reason string) (*RefundResult, error) {
	updated, err := s.payments.Mutate(ctx, id, func(p *domain.SettlementPayment, tx domain.SettlementTx) error {
		if p.EscrowStatus != domain.EscrowFundsHeld {
			return domain.ErrStateConflict
		}

		gw, ok := s.gateways[p.PaymentMethod]
		if !ok || p.GatewayRef == nil {
			return domain.ErrInternalError
		}

		if err := gw.Cancel(ctx, *p.GatewayRef, reason); err != nil {
			return err
		}

		return s.finalizeRefund(ctx, p, tx, time.Now().UTC())
	})
	if err != nil {
		return nil, err
	}

	s.publishEvent(websocket.PaymentRefunded(updated))
	return &RefundResult{Payment: updated, RefundAmount: updated.TotalAmount}, nil
}

// Get returns a settlement payment by id
func (s *EscrowService) Get(ctx context.Context, id uuid.UUID) (*domain.SettlementPayment, error) {
	return s.payments.GetByID(ctx, id)
}

// ApplyGatewayStatus feeds an authoritative canonical status through the
// transition function. This is the webhook reconciler's entry point; it
// mutates escrow state through exactly the same serialized path as the
// synchronous operations.
//
// A captured status is accepted without a capture call: the wallet rail
// auto-captures on SALE. A failed or cancelled status while the payment is
// still pending clears the gateway ref so the payer can retry; after funds
// were held it refunds.
func (s *EscrowService) ApplyGatewayStatus(ctx context.Context, id uuid.UUID, status gateway.Status) error {
	var transition websocket.Event
	var publish bool

	updated, err := s.payments.Mutate(ctx, id, func(p *domain.SettlementPayment, tx domain.SettlementTx) error {
		now := time.Now().UTC()

		switch status {
		case gateway.StatusPending:
			// No outcome yet, nothing to apply
			return nil

		case gateway.StatusHeld:
			if p.EscrowStatus != domain.EscrowPendingPayment {
				return domain.ErrStateConflict
			}
			s.markHeld(p, now)
			transition, publish = websocket.PaymentEscrowed(p), true
			return nil

		case gateway.StatusCaptured:
			if p.EscrowStatus != domain.EscrowPendingPayment && p.EscrowStatus != domain.EscrowFundsHeld {
				return domain.ErrStateConflict
			}
			if p.PaidAt == nil {
				p.PaidAt = &now
			}
			if err := s.finalizeRelease(ctx, p, tx, now); err != nil {
				return err
			}
			transition, publish = websocket.PaymentReleased(p), true
			return nil

		case gateway.StatusCancelled, gateway.StatusFailed:
			switch p.EscrowStatus {
			case domain.EscrowPendingPayment:
				// Initiation failed before funds were held; allow a new pay attempt
				p.GatewayRef = nil
				p.PaymentMethod = ""
				return nil
			case domain.EscrowFundsHeld:
				if err := s.finalizeRefund(ctx, p, tx, now); err != nil {
					return err
				}
				transition, publish = websocket.PaymentRefunded(p), true
				return nil
			default:
				return domain.ErrStateConflict
			}

		default:
			return domain.ErrStateConflict
		}
	})
	if err != nil {
		return err
	}

	if publish {
		transition.Payload = updated
		s.publishEvent(transition)
	}
	return nil
}

// markHeld moves a pending payment into escrow and starts the hold window
func (s *EscrowService) markHeld(p *domain.SettlementPayment, now time.Time) {
	p.Status = domain.PaymentStatusEscrowed
	p.EscrowStatus = domain.EscrowFundsHeld
	p.PaidAt = &now
	expires := now.Add(HoldWindow)
	p.ExpiresAt = &expires
}

// finalizeRelease completes the payment and settles the linked debt inside
// the caller's transaction
func (s *EscrowService) finalizeRelease(ctx context.Context, p *domain.SettlementPayment, tx domain.SettlementTx, now time.Time) error {
	if err := tx.MarkDebtSettled(ctx, p.DebtID, p.SettlementAmount, now); err != nil {
		return err
	}
	p.Status = domain.PaymentStatusCompleted
	p.EscrowStatus = domain.EscrowFundsReleased
	p.ReleasedAt = &now
	return nil
}

// finalizeRefund refunds the payment and rejects the linked settlement
// inside the caller's transaction
func (s *EscrowService) finalizeRefund(ctx context.Context, p *domain.SettlementPayment, tx domain.SettlementTx, now time.Time) error {
	if err := tx.MarkDebtSettlementRejected(ctx, p.DebtID); err != nil {
		return err
	}
	p.Status = domain.PaymentStatusRefunded
	p.EscrowStatus = domain.EscrowRefunded
	p.RefundedAt = &now
	return nil
}
