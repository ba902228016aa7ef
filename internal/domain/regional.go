package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RegionalConfig holds per-jurisdiction pricing parameters. It is owned by
// an administrative collaborator and read-only here.
type RegionalConfig struct {
	CountryCode           string          `json:"countryCode"`
	Currency              string          `json:"currency"`
	PlatformFeePercentage decimal.Decimal `json:"platformFeePercentage"` // e.g. 0.25
	VATRate               decimal.Decimal `json:"vatRate"`
	MinAmount             int64           `json:"minAmount"` // minor units
	MaxAmount             *int64          `json:"maxAmount,omitempty"`
	PaymentMethods        []PaymentMethod `json:"paymentMethods"`
}

// CustomizationMode selects how a FeeCustomization overrides the fee
type CustomizationMode string

const (
	ModePercentageOverride CustomizationMode = "percentage_override"
	ModeFixedAmount        CustomizationMode = "fixed_amount"
	ModeDiscount           CustomizationMode = "discount"
)

// FeeCustomization is a time-boxed fee override tied to a RegionalConfig.
// At most one customization applies per calculation, selected by descending
// priority among those whose amount range, validity window, and tier filter
// all match.
type FeeCustomization struct {
	ID          uuid.UUID         `json:"id"`
	CountryCode string            `json:"countryCode"`
	Priority    int               `json:"priority"`
	ValidFrom   *time.Time        `json:"validFrom,omitempty"`
	ValidUntil  *time.Time        `json:"validUntil,omitempty"`
	MinAmount   *int64            `json:"minAmount,omitempty"` // applicable amount range, minor units
	MaxAmount   *int64            `json:"maxAmount,omitempty"`
	UserTiers   []string          `json:"userTiers,omitempty"` // empty = all tiers
	Mode        CustomizationMode `json:"mode"`
	Percentage  *decimal.Decimal  `json:"percentage,omitempty"`  // percentage_override and discount
	FixedAmount *int64            `json:"fixedAmount,omitempty"` // fixed_amount, minor units
	MinFee      *int64            `json:"minFee,omitempty"`      // optional clamp, minor units
	MaxFee      *int64            `json:"maxFee,omitempty"`
}

// AppliesTo reports whether this customization matches the amount, tier and
// point in time.
func (c *FeeCustomization) AppliesTo(amountMinor int64, tier string, now time.Time) bool {
	if c.ValidFrom != nil && now.Before(*c.ValidFrom) {
		return false
	}
	if c.ValidUntil != nil && now.After(*c.ValidUntil) {
		return false
	}
	if c.MinAmount != nil && amountMinor < *c.MinAmount {
		return false
	}
	if c.MaxAmount != nil && amountMinor > *c.MaxAmount {
		return false
	}
	if len(c.UserTiers) > 0 {
		found := false
		for _, t := range c.UserTiers {
			if t == tier {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// ClampFee applies the customization's optional min/max bounds to a fee
func (c *FeeCustomization) ClampFee(feeMinor int64) int64 {
	if c.MinFee != nil && feeMinor < *c.MinFee {
		feeMinor = *c.MinFee
	}
	if c.MaxFee != nil && feeMinor > *c.MaxFee {
		feeMinor = *c.MaxFee
	}
	return feeMinor
}
