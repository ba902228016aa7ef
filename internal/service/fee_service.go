package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/oyvindhs/oppgjor-backend/internal/domain"
	"github.com/shopspring/decimal"
)

// DefaultCurrency is the platform's home currency
const DefaultCurrency = "NOK"

// Fee rates. Success fees are deducted from the recovered amount; the
// settlement escrow fee is additive on top of what the creditor is owed.
var (
	settlementFeeRate = decimal.RequireFromString("0.20")
	successFeeRate    = decimal.RequireFromString("0.25")
	vatRate           = decimal.RequireFromString("0.25")
	cardRate          = decimal.RequireFromString("0.029")
)

const (
	// MinRecoveryAmountMinor is the fee-exemption threshold (100.00 NOK).
	// Recoveries below it carry no fees at all.
	MinRecoveryAmountMinor int64 = 10_000

	cardFixedMinor        int64 = 250   // 2.50 NOK
	processingFeeCapMinor int64 = 5_000 // 50.00 NOK
)

// cardFixedFees is the per-currency fixed card fee in major units,
// converted with the currency's exponent at calculation time.
var cardFixedFees = map[string]decimal.Decimal{
	"NOK": decimal.RequireFromString("2.50"),
	"SEK": decimal.RequireFromString("3.25"),
	"DKK": decimal.RequireFromString("2.39"),
	"EUR": decimal.RequireFromString("0.25"),
	"USD": decimal.RequireFromString("0.30"),
	"GBP": decimal.RequireFromString("0.20"),
	"JPY": decimal.RequireFromString("35"),
}

// FeeService computes fee breakdowns. All amounts are int64 minor units;
// every monetary field is rounded independently, so totals are sums of
// already-rounded parts.
type FeeService struct {
	regional *RegionalService
}

// NewFeeService creates a new FeeService
func NewFeeService(regional *RegionalService) *FeeService {
	return &FeeService{regional: regional}
}

// SuccessFeeBreakdown is the deductive fee breakdown on a recovered amount
type SuccessFeeBreakdown struct {
	RecoveryAmount int64  `json:"recoveryAmount"`
	PlatformFee    int64  `json:"platformFee"`
	VAT            int64  `json:"vat"`
	ProcessingFee  int64  `json:"processingFee"`
	UserNet        int64  `json:"userNet"`
	Currency       string `json:"currency"`
}

// SuccessFee computes the deductive success-fee breakdown. Recoveries below
// the minimum threshold are fee-exempt: all fees are zero and the user keeps
// the full recovery.
func (s *FeeService) SuccessFee(recoveryAmount int64, currency string) (*SuccessFeeBreakdown, error) {
	if recoveryAmount <= 0 {
		return nil, domain.ErrInvalidAmount
	}
	if currency == "" {
		currency = DefaultCurrency
	}

	b := &SuccessFeeBreakdown{
		RecoveryAmount: recoveryAmount,
		Currency:       currency,
	}

	if recoveryAmount < MinRecoveryAmountMinor {
		b.UserNet = recoveryAmount
		return b, nil
	}

	b.PlatformFee = domain.ApplyRate(recoveryAmount, successFeeRate)
	b.VAT = domain.ApplyRate(b.PlatformFee, vatRate)

	processing := domain.ApplyRate(b.PlatformFee, cardRate) + cardFixedMinor
	if processing > processingFeeCapMinor {
		processing = processingFeeCapMinor
	}
	b.ProcessingFee = processing

	net := recoveryAmount - b.PlatformFee - b.VAT - b.ProcessingFee
	if net < 0 {
		net = 0
	}
	b.UserNet = net

	return b, nil
}

// SettlementBreakdown is the additive fee breakdown on a settlement amount
type SettlementBreakdown struct {
	SettlementAmount int64           `json:"settlementAmount"`
	PlatformFee      int64           `json:"platformFee"`
	TotalPayment     int64           `json:"totalPayment"`
	CreditorReceives int64           `json:"creditorReceives"`
	FeePercent       decimal.Decimal `json:"feePercent"`
}

// SettlementFee computes the escrow platform fee. The fee is added on top of
// the settlement amount: the creditor always receives the full settlement
// amount, never the settlement amount minus fees.
func (s *FeeService) SettlementFee(settlementAmount int64) (*SettlementBreakdown, error) {
	if settlementAmount <= 0 {
		return nil, domain.ErrInvalidAmount
	}

	fee := domain.ApplyRate(settlementAmount, settlementFeeRate)
	return &SettlementBreakdown{
		SettlementAmount: settlementAmount,
		PlatformFee:      fee,
		TotalPayment:     settlementAmount + fee,
		CreditorReceives: settlementAmount,
		FeePercent:       settlementFeeRate,
	}, nil
}

// PricingBreakdown is the full regional fee breakdown for an amount
type PricingBreakdown struct {
	Amount          int64      `json:"amount"`
	PlatformFee     int64      `json:"platformFee"`
	VAT             int64      `json:"vat"`
	ProcessingFee   int64      `json:"processingFee"`
	Total           int64      `json:"total"`
	Currency        string     `json:"currency"`
	CountryCode     string     `json:"countryCode"`
	CustomizationID *uuid.UUID `json:"customizationId,omitempty"`
}

// Pricing resolves the regional config for countryCode and computes the full
// fee breakdown for amount. At most one fee customization applies, selected
// by priority; its override is applied and clamped before VAT is computed on
// the resulting fee.
func (s *FeeService) Pricing(ctx context.Context, amount int64, countryCode, tier string, now time.Time) (*PricingBreakdown, error) {
	if amount <= 0 {
		return nil, domain.ErrInvalidAmount
	}

	cfg, err := s.regional.Config(ctx, countryCode)
	if err != nil {
		return nil, err
	}
	if amount < cfg.MinAmount {
		return nil, domain.ErrAmountOutOfRange
	}
	if cfg.MaxAmount != nil && amount > *cfg.MaxAmount {
		return nil, domain.ErrAmountOutOfRange
	}

	cust, err := s.regional.ApplicableCustomization(ctx, countryCode, amount, tier, now)
	if err != nil {
		return nil, err
	}

	fee := domain.ApplyRate(amount, cfg.PlatformFeePercentage)
	b := &PricingBreakdown{
		Amount:      amount,
		Currency:    cfg.Currency,
		CountryCode: cfg.CountryCode,
	}

	if cust != nil {
		fee = applyCustomization(fee, amount, cust)
		id := cust.ID
		b.CustomizationID = &id
	}
	b.PlatformFee = fee

	b.VAT = domain.ApplyRate(fee, cfg.VATRate)

	fixed, ok := cardFixedFees[cfg.Currency]
	if !ok {
		fixed = cardFixedFees[DefaultCurrency]
	}
	b.ProcessingFee = domain.ApplyRate(amount, cardRate) + domain.MajorToMinor(fixed, cfg.Currency)

	b.Total = amount + b.PlatformFee + b.VAT + b.ProcessingFee
	return b, nil
}

// applyCustomization applies the override in strict precedence
// (percentage override, then fixed amount, then discount) and clamps the
// result to the customization's bounds.
func applyCustomization(baseFee, amount int64, cust *domain.FeeCustomization) int64 {
	fee := baseFee
	switch {
	case cust.Mode == domain.ModePercentageOverride && cust.Percentage != nil:
		fee = domain.ApplyRate(amount, *cust.Percentage)
	case cust.Mode == domain.ModeFixedAmount && cust.FixedAmount != nil:
		fee = *cust.FixedAmount
	case cust.Mode == domain.ModeDiscount && cust.Percentage != nil:
		fee = baseFee - domain.ApplyRate(baseFee, *cust.Percentage)
	}
	if fee < 0 {
		fee = 0
	}
	return cust.ClampFee(fee)
}
