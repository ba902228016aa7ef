package gateway

import (
	"context"

	"github.com/oyvindhs/oppgjor-backend/internal/domain"
)

// Status is the rail-agnostic canonical state vocabulary. Every
// rail-specific status is translated into one of these at the adapter
// boundary; the escrow state machine never sees provider vocabularies.
type Status string

const (
	StatusPending   Status = "pending"   // initiated, outcome not yet known (wallet rail)
	StatusHeld      Status = "held"      // funds reserved, capture still required
	StatusCaptured  Status = "captured"  // funds taken
	StatusCancelled Status = "cancelled" // reservation released without capture
	StatusFailed    Status = "failed"
)

// AuthorizeRequest describes a hold to place. Reference becomes the upstream
// order id; IdempotencyKey makes authorize retries safe.
type AuthorizeRequest struct {
	AmountMinor    int64
	Currency       string
	MethodRef      string // rail-specific payment method reference
	Reference      string
	Description    string
	IdempotencyKey string
}

// Authorization is the result of an authorize call. RedirectURL is set only
// by the wallet rail, whose authorize merely initiates a payment.
type Authorization struct {
	Ref         string
	RedirectURL string
	Status      Status
}

// Gateway is the uniform contract both rails implement
type Gateway interface {
	Authorize(ctx context.Context, req AuthorizeRequest) (*Authorization, error)
	Capture(ctx context.Context, ref string, amountMinor int64) error
	Cancel(ctx context.Context, ref, reason string) error
	Status(ctx context.Context, ref string) (Status, error)
}

// validateAmount rejects non-positive amounts before any network call
func validateAmount(amountMinor int64) error {
	if amountMinor <= 0 {
		return domain.ErrInvalidAmount
	}
	return nil
}
