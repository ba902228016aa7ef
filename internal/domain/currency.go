package domain

import "github.com/shopspring/decimal"

// zeroDecimalCurrencies are currencies whose minor unit equals the whole
// unit. Amounts in these currencies never carry fractional parts.
var zeroDecimalCurrencies = map[string]bool{
	"JPY": true,
	"KRW": true,
	"ISK": true,
	"VND": true,
	"CLP": true,
	"XOF": true,
	"XAF": true,
}

// CurrencyExponent returns the number of decimal places between a currency's
// major and minor units (0 for zero-decimal currencies, 2 otherwise).
func CurrencyExponent(currency string) int32 {
	if zeroDecimalCurrencies[currency] {
		return 0
	}
	return 2
}

// ApplyRate multiplies a minor-unit amount by a rate and rounds half-up to a
// whole number of minor units. Because amounts are already in minor units,
// rounding here is exactly per-currency precision rounding on the major
// amount.
func ApplyRate(amountMinor int64, rate decimal.Decimal) int64 {
	return decimal.NewFromInt(amountMinor).Mul(rate).Round(0).IntPart()
}

// MajorToMinor converts a major-unit amount (e.g. 2.50 NOK) to minor units
// using the currency's exponent, rounding half-up.
func MajorToMinor(major decimal.Decimal, currency string) int64 {
	return major.Shift(CurrencyExponent(currency)).Round(0).IntPart()
}

// MinorToMajor converts minor units back to a major-unit decimal for display.
func MinorToMajor(amountMinor int64, currency string) decimal.Decimal {
	return decimal.NewFromInt(amountMinor).Shift(-CurrencyExponent(currency))
}
