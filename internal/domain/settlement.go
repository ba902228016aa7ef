package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentStatus is the coarse settlement payment lifecycle state
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusEscrowed  PaymentStatus = "escrowed"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusRefunded  PaymentStatus = "refunded"
)

// EscrowStatus is the authoritative sub-state consulted by transition
// guards. It moves in lock-step with PaymentStatus and is monotonic: no
// state is ever revisited.
type EscrowStatus string

const (
	EscrowPendingPayment EscrowStatus = "pending_payment"
	EscrowFundsHeld      EscrowStatus = "funds_held"
	EscrowFundsReleased  EscrowStatus = "funds_released"
	EscrowRefunded       EscrowStatus = "refunded"
)

// Terminal reports whether no further escrow transitions are possible
func (s EscrowStatus) Terminal() bool {
	return s == EscrowFundsReleased || s == EscrowRefunded
}

// PaymentMethod identifies the upstream rail a payment runs on
type PaymentMethod string

const (
	MethodCard   PaymentMethod = "card"
	MethodWallet PaymentMethod = "wallet"
)

// SettlementPayment represents one escrowed settlement. TotalAmount is fixed
// at creation and never recomputed after payment. At most one GatewayRef is
// active while the payment is non-terminal.
type SettlementPayment struct {
	ID                 uuid.UUID       `json:"id"`
	PayerID            uuid.UUID       `json:"payerId"`
	DebtID             uuid.UUID       `json:"debtId"`
	CreditorID         uuid.UUID       `json:"creditorId"`
	CreditorName       string          `json:"creditorName"`
	Currency           string          `json:"currency"`
	SettlementAmount   int64           `json:"settlementAmount"` // minor units
	PlatformFeePercent decimal.Decimal `json:"platformFeePercent"`
	PlatformFee        int64           `json:"platformFee"` // minor units
	TotalAmount        int64           `json:"totalAmount"` // settlementAmount + platformFee
	Status             PaymentStatus   `json:"status"`
	EscrowStatus       EscrowStatus    `json:"escrowStatus"`
	GatewayRef         *string         `json:"gatewayRef,omitempty"`
	PaymentMethod      PaymentMethod   `json:"paymentMethod,omitempty"`
	CreatedAt          time.Time       `json:"createdAt"`
	PaidAt             *time.Time      `json:"paidAt,omitempty"`
	ExpiresAt          *time.Time      `json:"expiresAt,omitempty"` // hold deadline
	ReleasedAt         *time.Time      `json:"releasedAt,omitempty"`
	RefundedAt         *time.Time      `json:"refundedAt,omitempty"`
}

// Expired reports whether the hold window has elapsed while funds are still
// held. Expiry is evaluated lazily; the sweep worker resolves expired holds.
func (p *SettlementPayment) Expired(now time.Time) bool {
	return p.EscrowStatus == EscrowFundsHeld && p.ExpiresAt != nil && now.After(*p.ExpiresAt)
}

// DebtStatus is the lifecycle state of a linked debt record
type DebtStatus string

const (
	DebtStatusActive             DebtStatus = "active"
	DebtStatusSettlementPending  DebtStatus = "settlement_pending"
	DebtStatusSettled            DebtStatus = "settled"
	DebtStatusSettlementRejected DebtStatus = "settlement_rejected"
)

// Debt is the debt record a settlement resolves. It is mutated only inside
// escrow release/refund transactions.
type Debt struct {
	ID            uuid.UUID  `json:"id"`
	PayerID       uuid.UUID  `json:"payerId"`
	CreditorID    uuid.UUID  `json:"creditorId"`
	CreditorName  string     `json:"creditorName"`
	Amount        int64      `json:"amount"` // minor units
	Currency      string     `json:"currency"`
	Status        DebtStatus `json:"status"`
	SettledAmount *int64     `json:"settledAmount,omitempty"`
	SettledAt     *time.Time `json:"settledAt,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
}
