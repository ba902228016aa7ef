package domain

import (
	"testing"
	"time"
)

func int64Ptr(v int64) *int64 { return &v }

func TestFeeCustomizationAppliesTo(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-24 * time.Hour)
	future := now.Add(24 * time.Hour)

	tests := []struct {
		name   string
		cust   FeeCustomization
		amount int64
		tier   string
		want   bool
	}{
		{
			name: "no constraints matches everything",
			cust: FeeCustomization{},
			want: true,
		},
		{
			name:   "within amount range",
			cust:   FeeCustomization{MinAmount: int64Ptr(1_000), MaxAmount: int64Ptr(100_000)},
			amount: 50_000,
			want:   true,
		},
		{
			name:   "below minimum amount",
			cust:   FeeCustomization{MinAmount: int64Ptr(1_000)},
			amount: 999,
			want:   false,
		},
		{
			name:   "above maximum amount",
			cust:   FeeCustomization{MaxAmount: int64Ptr(100_000)},
			amount: 100_001,
			want:   false,
		},
		{
			name: "not yet valid",
			cust: FeeCustomization{ValidFrom: &future},
			want: false,
		},
		{
			name: "expired",
			cust: FeeCustomization{ValidUntil: &past},
			want: false,
		},
		{
			name: "within validity window",
			cust: FeeCustomization{ValidFrom: &past, ValidUntil: &future},
			want: true,
		},
		{
			name: "tier matches",
			cust: FeeCustomization{UserTiers: []string{"premium", "enterprise"}},
			tier: "premium",
			want: true,
		},
		{
			name: "tier does not match",
			cust: FeeCustomization{UserTiers: []string{"premium"}},
			tier: "basic",
			want: false,
		},
		{
			name: "empty tiers matches any tier",
			cust: FeeCustomization{},
			tier: "basic",
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cust.AppliesTo(tt.amount, tt.tier, now); got != tt.want {
				t.Errorf("AppliesTo() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFeeCustomizationClampFee(t *testing.T) {
	c := FeeCustomization{MinFee: int64Ptr(500), MaxFee: int64Ptr(5_000)}

	if got := c.ClampFee(100); got != 500 {
		t.Errorf("ClampFee(100) = %d, want 500", got)
	}
	if got := c.ClampFee(10_000); got != 5_000 {
		t.Errorf("ClampFee(10000) = %d, want 5000", got)
	}
	if got := c.ClampFee(2_000); got != 2_000 {
		t.Errorf("ClampFee(2000) = %d, want 2000", got)
	}

	unbounded := FeeCustomization{}
	if got := unbounded.ClampFee(42); got != 42 {
		t.Errorf("ClampFee without bounds = %d, want 42", got)
	}
}

func TestEscrowStatusTerminal(t *testing.T) {
	if EscrowPendingPayment.Terminal() || EscrowFundsHeld.Terminal() {
		t.Error("pending_payment and funds_held must not be terminal")
	}
	if !EscrowFundsReleased.Terminal() || !EscrowRefunded.Terminal() {
		t.Error("funds_released and refunded must be terminal")
	}
}

func TestSettlementPaymentExpired(t *testing.T) {
	now := time.Now()
	deadline := now.Add(-time.Hour)

	p := SettlementPayment{EscrowStatus: EscrowFundsHeld, ExpiresAt: &deadline}
	if !p.Expired(now) {
		t.Error("held payment past deadline should be expired")
	}

	p.EscrowStatus = EscrowFundsReleased
	if p.Expired(now) {
		t.Error("released payment should never be expired")
	}

	p.EscrowStatus = EscrowFundsHeld
	p.ExpiresAt = nil
	if p.Expired(now) {
		t.Error("payment without deadline should not be expired")
	}
}

func TestInvoiceEffectiveStatus(t *testing.T) {
	now := time.Now()

	inv := Invoice{Status: InvoiceStatusPending, DueDate: now.Add(-time.Hour)}
	if got := inv.EffectiveStatus(now); got != InvoiceStatusOverdue {
		t.Errorf("pending invoice past due = %s, want overdue", got)
	}

	inv.DueDate = now.Add(time.Hour)
	if got := inv.EffectiveStatus(now); got != InvoiceStatusPending {
		t.Errorf("pending invoice before due = %s, want pending", got)
	}

	inv.Status = InvoiceStatusPaid
	inv.DueDate = now.Add(-time.Hour)
	if got := inv.EffectiveStatus(now); got != InvoiceStatusPaid {
		t.Errorf("paid invoice past due = %s, want paid", got)
	}
}
