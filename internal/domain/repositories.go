package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// SettlementTx exposes the debt mutations that must ride the same database
// transaction as an escrow transition.
type SettlementTx interface {
	MarkDebtSettled(ctx context.Context, debtID uuid.UUID, settledAmount int64, settledAt time.Time) error
	MarkDebtSettlementRejected(ctx context.Context, debtID uuid.UUID) error
}

// SettlementRepository persists SettlementPayment records
type SettlementRepository interface {
	Create(ctx context.Context, p *SettlementPayment) (*SettlementPayment, error)
	GetByID(ctx context.Context, id uuid.UUID) (*SettlementPayment, error)
	GetByGatewayRef(ctx context.Context, ref string) (*SettlementPayment, error)

	// Mutate runs fn with the payment row locked for update, serializing all
	// mutations per payment id. Changes fn makes to the payment are persisted
	// atomically with any debt updates issued through the SettlementTx; if fn
	// returns an error nothing is written.
	Mutate(ctx context.Context, id uuid.UUID, fn func(p *SettlementPayment, tx SettlementTx) error) (*SettlementPayment, error)

	// ListExpiredHolds returns ids of escrowed payments whose hold deadline
	// has passed, for the expiry sweep.
	ListExpiredHolds(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error)
}

// DebtRepository reads debt records; writes happen through SettlementTx only
type DebtRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Debt, error)
	Create(ctx context.Context, d *Debt) (*Debt, error)
}

// InvoiceRepository persists success-fee invoices
type InvoiceRepository interface {
	Create(ctx context.Context, inv *Invoice) (*Invoice, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Invoice, error)
	Update(ctx context.Context, inv *Invoice) (*Invoice, error)
}

// RegionalConfigRepository reads regional pricing reference data
type RegionalConfigRepository interface {
	GetConfig(ctx context.Context, countryCode string) (*RegionalConfig, error)
	ListCustomizations(ctx context.Context, countryCode string) ([]FeeCustomization, error)
}

// WebhookEventRepository durably records provider callbacks
type WebhookEventRepository interface {
	Create(ctx context.Context, ev *WebhookEvent) (*WebhookEvent, error)
	MarkProcessed(ctx context.Context, id uuid.UUID, note *string) error
	ListUnprocessed(ctx context.Context, limit int) ([]WebhookEvent, error)
}
