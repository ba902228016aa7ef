package domain

import (
	"errors"
	"fmt"
)

// Domain errors
var (
	ErrInvalidAmount     = errors.New("amount must be a positive integer in minor units")
	ErrAmountOutOfRange  = errors.New("amount outside configured bounds")
	ErrPaymentNotFound   = errors.New("settlement payment not found")
	ErrDebtNotFound      = errors.New("debt not found")
	ErrInvoiceNotFound   = errors.New("invoice not found")
	ErrConfigNotFound    = errors.New("regional config not found")
	ErrStateConflict     = errors.New("transition not allowed in current state")
	ErrHoldExpired       = errors.New("escrow hold window has expired")
	ErrUnsupportedMethod = errors.New("unsupported payment method")
	ErrUnknownRail       = errors.New("unknown payment rail")
	ErrMalformedWebhook  = errors.New("webhook payload missing external reference")
	ErrInternalError     = errors.New("internal error")
)

// GatewayError represents a failure reported by (or while reaching) an
// upstream payment rail. Retryable is only set on authorize failures, where
// the caller can safely replay with the same idempotency key.
type GatewayError struct {
	Rail      string
	Code      string
	Message   string
	Retryable bool
}

// Error implements the error interface
func (e *GatewayError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s gateway error (%s): %s", e.Rail, e.Code, e.Message)
	}
	return fmt.Sprintf("%s gateway error: %s", e.Rail, e.Message)
}

// AsGatewayError unwraps err into a *GatewayError if possible
func AsGatewayError(err error) (*GatewayError, bool) {
	var gerr *GatewayError
	if errors.As(err, &gerr) {
		return gerr, true
	}
	return nil, false
}
