package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/oyvindhs/oppgjor-backend/internal/domain"
	"github.com/oyvindhs/oppgjor-backend/internal/gateway"
	"github.com/oyvindhs/oppgjor-backend/internal/testutil"
)

type escrowFixture struct {
	svc      *EscrowService
	payments *testutil.MockSettlementRepository
	debts    *testutil.MockDebtRepository
	card     *testutil.MockGateway
	wallet   *testutil.MockGateway
}

func newEscrowFixture() *escrowFixture {
	payments := testutil.NewMockSettlementRepository()
	debts := testutil.NewMockDebtRepository()
	payments.Debts = debts

	card := testutil.NewMockGateway()
	wallet := testutil.NewMockGateway()

	fees := newFeeService(nil)
	svc := NewEscrowService(payments, debts, fees, map[domain.PaymentMethod]gateway.Gateway{
		domain.MethodCard:   card,
		domain.MethodWallet: wallet,
	})

	return &escrowFixture{svc: svc, payments: payments, debts: debts, card: card, wallet: wallet}
}

func (f *escrowFixture) addDebt(amount int64) *domain.Debt {
	d := &domain.Debt{
		ID:           uuid.New(),
		PayerID:      uuid.New(),
		CreditorID:   uuid.New(),
		CreditorName: "Kreditor AS",
		Amount:       amount,
		Currency:     "NOK",
		Status:       domain.DebtStatusActive,
		CreatedAt:    time.Now(),
	}
	f.debts.AddDebt(d)
	return d
}

func (f *escrowFixture) createPayment(t *testing.T, amount int64) (*domain.SettlementPayment, *domain.Debt) {
	t.Helper()
	debt := f.addDebt(amount)
	p, err := f.svc.Create(context.Background(), CreateSettlementInput{
		PayerID:          debt.PayerID,
		DebtID:           debt.ID,
		CreditorID:       debt.CreditorID,
		CreditorName:     debt.CreditorName,
		SettlementAmount: amount,
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	return p, debt
}

func (f *escrowFixture) heldPayment(t *testing.T, amount int64) (*domain.SettlementPayment, *domain.Debt) {
	t.Helper()
	p, debt := f.createPayment(t, amount)
	result, err := f.svc.Pay(context.Background(), p.ID, PayInput{Method: domain.MethodCard, MethodRef: "pm_test"})
	if err != nil {
		t.Fatalf("Pay failed: %v", err)
	}
	return result.Payment, debt
}

func TestCreateSettlementPayment(t *testing.T) {
	f := newEscrowFixture()

	// Scenario: 600 NOK settlement
	p, _ := f.createPayment(t, 60_000)

	if p.SettlementAmount != 60_000 {
		t.Errorf("SettlementAmount = %d, want 60000", p.SettlementAmount)
	}
	if p.PlatformFee != 12_000 {
		t.Errorf("PlatformFee = %d, want 12000", p.PlatformFee)
	}
	if p.TotalAmount != 72_000 {
		t.Errorf("TotalAmount = %d, want 72000", p.TotalAmount)
	}
	if p.Status != domain.PaymentStatusPending {
		t.Errorf("Status = %s, want pending", p.Status)
	}
	if p.EscrowStatus != domain.EscrowPendingPayment {
		t.Errorf("EscrowStatus = %s, want pending_payment", p.EscrowStatus)
	}
	if p.Currency != "NOK" {
		t.Errorf("Currency = %s, want NOK from the debt", p.Currency)
	}
	if p.GatewayRef != nil {
		t.Error("GatewayRef should be unset before pay")
	}
}

func TestCreateInvalidAmount(t *testing.T) {
	f := newEscrowFixture()
	debt := f.addDebt(1_000)

	_, err := f.svc.Create(context.Background(), CreateSettlementInput{
		PayerID:          debt.PayerID,
		DebtID:           debt.ID,
		SettlementAmount: 0,
	})
	if !errors.Is(err, domain.ErrInvalidAmount) {
		t.Errorf("error = %v, want ErrInvalidAmount", err)
	}
}

func TestCreateUnknownDebt(t *testing.T) {
	f := newEscrowFixture()

	_, err := f.svc.Create(context.Background(), CreateSettlementInput{
		PayerID:          uuid.New(),
		DebtID:           uuid.New(),
		SettlementAmount: 60_000,
	})
	if !errors.Is(err, domain.ErrDebtNotFound) {
		t.Errorf("error = %v, want ErrDebtNotFound", err)
	}
}

func TestPayCardEscrowsSynchronously(t *testing.T) {
	f := newEscrowFixture()
	p, _ := f.createPayment(t, 60_000)

	var authorized gateway.AuthorizeRequest
	f.card.AuthorizeFn = func(req gateway.AuthorizeRequest) (*gateway.Authorization, error) {
		authorized = req
		return &gateway.Authorization{Ref: "pi_123", Status: gateway.StatusHeld}, nil
	}

	result, err := f.svc.Pay(context.Background(), p.ID, PayInput{Method: domain.MethodCard, MethodRef: "pm_test"})
	if err != nil {
		t.Fatalf("Pay failed: %v", err)
	}

	got := result.Payment
	if got.Status != domain.PaymentStatusEscrowed {
		t.Errorf("Status = %s, want escrowed", got.Status)
	}
	if got.EscrowStatus != domain.EscrowFundsHeld {
		t.Errorf("EscrowStatus = %s, want funds_held", got.EscrowStatus)
	}
	if got.GatewayRef == nil || *got.GatewayRef != "pi_123" {
		t.Errorf("GatewayRef = %v, want pi_123", got.GatewayRef)
	}
	if got.PaidAt == nil {
		t.Error("PaidAt should be set")
	}
	if got.ExpiresAt == nil {
		t.Fatal("ExpiresAt should be set")
	}
	if window := got.ExpiresAt.Sub(*got.PaidAt); window != HoldWindow {
		t.Errorf("hold window = %s, want %s", window, HoldWindow)
	}

	// The full total is authorized, not just the settlement amount
	if authorized.AmountMinor != 72_000 {
		t.Errorf("authorized amount = %d, want 72000", authorized.AmountMinor)
	}
	if authorized.IdempotencyKey == "" {
		t.Error("an idempotency key should be generated when none is supplied")
	}
}

func TestPayWalletStaysPendingWithRedirect(t *testing.T) {
	f := newEscrowFixture()
	p, _ := f.createPayment(t, 60_000)

	f.wallet.AuthorizeFn = func(req gateway.AuthorizeRequest) (*gateway.Authorization, error) {
		return &gateway.Authorization{
			Ref:         "order-1",
			RedirectURL: "https://wallet.example/redirect/order-1",
			Status:      gateway.StatusPending,
		}, nil
	}

	result, err := f.svc.Pay(context.Background(), p.ID, PayInput{Method: domain.MethodWallet, MethodRef: "47900000000"})
	if err != nil {
		t.Fatalf("Pay failed: %v", err)
	}

	if result.RedirectURL != "https://wallet.example/redirect/order-1" {
		t.Errorf("RedirectURL = %s", result.RedirectURL)
	}
	got := result.Payment
	if got.Status != domain.PaymentStatusPending {
		t.Errorf("Status = %s, want still pending until the reservation callback", got.Status)
	}
	if got.EscrowStatus != domain.EscrowPendingPayment {
		t.Errorf("EscrowStatus = %s, want pending_payment", got.EscrowStatus)
	}
	if got.GatewayRef == nil || *got.GatewayRef != "order-1" {
		t.Errorf("GatewayRef = %v, want order-1", got.GatewayRef)
	}
}

func TestPayUnsupportedMethod(t *testing.T) {
	f := newEscrowFixture()
	p, _ := f.createPayment(t, 60_000)

	_, err := f.svc.Pay(context.Background(), p.ID, PayInput{Method: "crypto"})
	if !errors.Is(err, domain.ErrUnsupportedMethod) {
		t.Errorf("error = %v, want ErrUnsupportedMethod", err)
	}
}

func TestPayTwiceConflicts(t *testing.T) {
	f := newEscrowFixture()
	p, _ := f.heldPayment(t, 60_000)

	_, err := f.svc.Pay(context.Background(), p.ID, PayInput{Method: domain.MethodCard, MethodRef: "pm_again"})
	if !errors.Is(err, domain.ErrStateConflict) {
		t.Errorf("error = %v, want ErrStateConflict", err)
	}
	if f.card.AuthorizeCalls != 1 {
		t.Errorf("AuthorizeCalls = %d, want 1; the guard must run before the gateway call", f.card.AuthorizeCalls)
	}
}

func TestPayGatewayFailureLeavesStateUnchanged(t *testing.T) {
	f := newEscrowFixture()
	p, _ := f.createPayment(t, 60_000)

	f.card.AuthorizeFn = func(req gateway.AuthorizeRequest) (*gateway.Authorization, error) {
		return nil, &domain.GatewayError{Rail: "card", Code: "card_declined", Message: "declined", Retryable: true}
	}

	_, err := f.svc.Pay(context.Background(), p.ID, PayInput{Method: domain.MethodCard, MethodRef: "pm_test"})
	gwErr, ok := domain.AsGatewayError(err)
	if !ok {
		t.Fatalf("error = %v, want GatewayError", err)
	}
	if !gwErr.Retryable {
		t.Error("authorize failures should be retryable")
	}

	stored, _ := f.payments.GetByID(context.Background(), p.ID)
	if stored.EscrowStatus != domain.EscrowPendingPayment {
		t.Errorf("EscrowStatus = %s, want unchanged pending_payment", stored.EscrowStatus)
	}
	if stored.GatewayRef != nil {
		t.Error("GatewayRef should not be recorded on failure")
	}
}

func TestReleaseSettlesDebt(t *testing.T) {
	f := newEscrowFixture()
	p, debt := f.heldPayment(t, 60_000)

	result, err := f.svc.Release(context.Background(), p.ID, "creditor confirmed")
	if err != nil {
		t.Fatalf("Release failed: %v", err)
	}

	if result.AmountReleased != 60_000 {
		t.Errorf("AmountReleased = %d, want 60000", result.AmountReleased)
	}
	if result.PlatformFeeCollected != 12_000 {
		t.Errorf("PlatformFeeCollected = %d, want 12000", result.PlatformFeeCollected)
	}

	got := result.Payment
	if got.Status != domain.PaymentStatusCompleted || got.EscrowStatus != domain.EscrowFundsReleased {
		t.Errorf("state = %s/%s, want completed/funds_released", got.Status, got.EscrowStatus)
	}
	if got.ReleasedAt == nil {
		t.Error("ReleasedAt should be set")
	}

	settled, _ := f.debts.GetByID(context.Background(), debt.ID)
	if settled.Status != domain.DebtStatusSettled {
		t.Errorf("debt status = %s, want settled", settled.Status)
	}
	if settled.SettledAmount == nil || *settled.SettledAmount != 60_000 {
		t.Errorf("debt settledAmount = %v, want 60000", settled.SettledAmount)
	}

	if f.card.CaptureCalls != 1 {
		t.Errorf("CaptureCalls = %d, want 1", f.card.CaptureCalls)
	}
}

func TestReleaseTwiceConflicts(t *testing.T) {
	f := newEscrowFixture()
	p, _ := f.heldPayment(t, 60_000)

	if _, err := f.svc.Release(context.Background(), p.ID, "ok"); err != nil {
		t.Fatalf("first release failed: %v", err)
	}

	_, err := f.svc.Release(context.Background(), p.ID, "ok")
	if !errors.Is(err, domain.ErrStateConflict) {
		t.Errorf("second release error = %v, want ErrStateConflict", err)
	}
	if f.card.CaptureCalls != 1 {
		t.Errorf("CaptureCalls = %d, want exactly 1 capture", f.card.CaptureCalls)
	}
}

func TestReleaseBeforePayConflicts(t *testing.T) {
	f := newEscrowFixture()
	p, _ := f.createPayment(t, 60_000)

	_, err := f.svc.Release(context.Background(), p.ID, "ok")
	if !errors.Is(err, domain.ErrStateConflict) {
		t.Errorf("error = %v, want ErrStateConflict", err)
	}
}

func TestReleaseExpiredHold(t *testing.T) {
	f := newEscrowFixture()
	p, _ := f.heldPayment(t, 60_000)

	// Age the hold past its deadline
	past := time.Now().Add(-time.Hour)
	stored := f.payments.Payments[p.ID]
	stored.ExpiresAt = &past

	_, err := f.svc.Release(context.Background(), p.ID, "too late")
	if !errors.Is(err, domain.ErrHoldExpired) {
		t.Errorf("error = %v, want ErrHoldExpired", err)
	}
	if f.card.CaptureCalls != 0 {
		t.Errorf("CaptureCalls = %d, want 0 for an expired hold", f.card.CaptureCalls)
	}
}

func TestRefundRejectsSettlement(t *testing.T) {
	f := newEscrowFixture()
	p, debt := f.heldPayment(t, 60_000)

	result, err := f.svc.Refund(context.Background(), p.ID, "payer dispute")
	if err != nil {
		t.Fatalf("Refund failed: %v", err)
	}

	// The payer gets back everything they paid, fee included
	if result.RefundAmount != 72_000 {
		t.Errorf("RefundAmount = %d, want 72000", result.RefundAmount)
	}

	got := result.Payment
	if got.Status != domain.PaymentStatusRefunded || got.EscrowStatus != domain.EscrowRefunded {
		t.Errorf("state = %s/%s, want refunded/refunded", got.Status, got.EscrowStatus)
	}
	if got.RefundedAt == nil {
		t.Error("RefundedAt should be set")
	}

	rejected, _ := f.debts.GetByID(context.Background(), debt.ID)
	if rejected.Status != domain.DebtStatusSettlementRejected {
		t.Errorf("debt status = %s, want settlement_rejected", rejected.Status)
	}
	if f.card.CancelCalls != 1 {
		t.Errorf("CancelCalls = %d, want 1", f.card.CancelCalls)
	}
}

func TestRefundAfterReleaseConflicts(t *testing.T) {
	f := newEscrowFixture()
	p, debt := f.heldPayment(t, 60_000)

	if _, err := f.svc.Release(context.Background(), p.ID, "ok"); err != nil {
		t.Fatalf("release failed: %v", err)
	}

	_, err := f.svc.Refund(context.Background(), p.ID, "too late")
	if !errors.Is(err, domain.ErrStateConflict) {
		t.Errorf("error = %v, want ErrStateConflict", err)
	}

	// The debt keeps its settled outcome
	d, _ := f.debts.GetByID(context.Background(), debt.ID)
	if d.Status != domain.DebtStatusSettled {
		t.Errorf("debt status = %s, want settled", d.Status)
	}
}

func TestConcurrentReleasesExactlyOneWins(t *testing.T) {
	f := newEscrowFixture()
	p, _ := f.heldPayment(t, 60_000)

	const attempts = 10
	var wg sync.WaitGroup
	results := make(chan error, attempts)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Release(context.Background(), p.ID, "race")
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var wins, conflicts int
	for err := range results {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, domain.ErrStateConflict):
			conflicts++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}

	if wins != 1 {
		t.Errorf("wins = %d, want exactly 1", wins)
	}
	if conflicts != attempts-1 {
		t.Errorf("conflicts = %d, want %d", conflicts, attempts-1)
	}
	if f.card.CaptureCalls != 1 {
		t.Errorf("CaptureCalls = %d, want exactly 1", f.card.CaptureCalls)
	}
}

func TestConcurrentReleaseAndRefund(t *testing.T) {
	f := newEscrowFixture()
	p, debt := f.heldPayment(t, 60_000)

	var wg sync.WaitGroup
	errs := make([]error, 2)

	wg.Add(2)
	go func() {
		defer wg.Done()
		_, errs[0] = f.svc.Release(context.Background(), p.ID, "race")
	}()
	go func() {
		defer wg.Done()
		_, errs[1] = f.svc.Refund(context.Background(), p.ID, "race")
	}()
	wg.Wait()

	var wins int
	for _, err := range errs {
		if err == nil {
			wins++
		} else if !errors.Is(err, domain.ErrStateConflict) {
			t.Errorf("unexpected error: %v", err)
		}
	}
	if wins != 1 {
		t.Fatalf("wins = %d, want exactly 1 of release/refund", wins)
	}

	// The debt outcome must match whichever transition won
	stored, _ := f.payments.GetByID(context.Background(), p.ID)
	d, _ := f.debts.GetByID(context.Background(), debt.ID)
	switch stored.EscrowStatus {
	case domain.EscrowFundsReleased:
		if d.Status != domain.DebtStatusSettled {
			t.Errorf("released payment but debt status = %s", d.Status)
		}
	case domain.EscrowRefunded:
		if d.Status != domain.DebtStatusSettlementRejected {
			t.Errorf("refunded payment but debt status = %s", d.Status)
		}
	default:
		t.Errorf("payment left in %s", stored.EscrowStatus)
	}
}

func TestApplyGatewayStatusHeld(t *testing.T) {
	f := newEscrowFixture()
	p, _ := f.createPayment(t, 60_000)

	// Wallet initiation leaves the payment pending with a gateway ref
	f.wallet.AuthorizeFn = func(req gateway.AuthorizeRequest) (*gateway.Authorization, error) {
		return &gateway.Authorization{Ref: "order-1", Status: gateway.StatusPending}, nil
	}
	if _, err := f.svc.Pay(context.Background(), p.ID, PayInput{Method: domain.MethodWallet, MethodRef: "47900000000"}); err != nil {
		t.Fatalf("Pay failed: %v", err)
	}

	// Reservation confirmed by callback
	if err := f.svc.ApplyGatewayStatus(context.Background(), p.ID, gateway.StatusHeld); err != nil {
		t.Fatalf("ApplyGatewayStatus failed: %v", err)
	}

	stored, _ := f.payments.GetByID(context.Background(), p.ID)
	if stored.EscrowStatus != domain.EscrowFundsHeld {
		t.Errorf("EscrowStatus = %s, want funds_held", stored.EscrowStatus)
	}
	if stored.ExpiresAt == nil {
		t.Error("hold window should start at reservation")
	}

	// Duplicate delivery of the same status is a conflict, not a second hold
	err := f.svc.ApplyGatewayStatus(context.Background(), p.ID, gateway.StatusHeld)
	if !errors.Is(err, domain.ErrStateConflict) {
		t.Errorf("duplicate held error = %v, want ErrStateConflict", err)
	}
}

func TestApplyGatewayStatusCapturedCompletesWithoutCapture(t *testing.T) {
	f := newEscrowFixture()
	p, debt := f.heldPayment(t, 60_000)

	// The wallet rail auto-captures; the captured status arrives by callback
	if err := f.svc.ApplyGatewayStatus(context.Background(), p.ID, gateway.StatusCaptured); err != nil {
		t.Fatalf("ApplyGatewayStatus failed: %v", err)
	}

	stored, _ := f.payments.GetByID(context.Background(), p.ID)
	if stored.EscrowStatus != domain.EscrowFundsReleased {
		t.Errorf("EscrowStatus = %s, want funds_released", stored.EscrowStatus)
	}
	d, _ := f.debts.GetByID(context.Background(), debt.ID)
	if d.Status != domain.DebtStatusSettled {
		t.Errorf("debt status = %s, want settled", d.Status)
	}
	// No capture call: the funds were already taken upstream
	if f.card.CaptureCalls != 0 {
		t.Errorf("CaptureCalls = %d, want 0", f.card.CaptureCalls)
	}
}

func TestApplyGatewayStatusFailedBeforeHoldAllowsRetry(t *testing.T) {
	f := newEscrowFixture()
	p, _ := f.createPayment(t, 60_000)

	f.wallet.AuthorizeFn = func(req gateway.AuthorizeRequest) (*gateway.Authorization, error) {
		return &gateway.Authorization{Ref: "order-1", Status: gateway.StatusPending}, nil
	}
	if _, err := f.svc.Pay(context.Background(), p.ID, PayInput{Method: domain.MethodWallet, MethodRef: "47900000000"}); err != nil {
		t.Fatalf("Pay failed: %v", err)
	}

	if err := f.svc.ApplyGatewayStatus(context.Background(), p.ID, gateway.StatusFailed); err != nil {
		t.Fatalf("ApplyGatewayStatus failed: %v", err)
	}

	stored, _ := f.payments.GetByID(context.Background(), p.ID)
	if stored.EscrowStatus != domain.EscrowPendingPayment {
		t.Errorf("EscrowStatus = %s, want pending_payment", stored.EscrowStatus)
	}
	if stored.GatewayRef != nil {
		t.Error("failed initiation should clear the gateway ref for a retry")
	}

	// A fresh pay attempt must now succeed
	if _, err := f.svc.Pay(context.Background(), p.ID, PayInput{Method: domain.MethodCard, MethodRef: "pm_retry"}); err != nil {
		t.Errorf("retry pay failed: %v", err)
	}
}

func TestApplyGatewayStatusCancelledAfterHoldRefunds(t *testing.T) {
	f := newEscrowFixture()
	p, debt := f.heldPayment(t, 60_000)

	if err := f.svc.ApplyGatewayStatus(context.Background(), p.ID, gateway.StatusCancelled); err != nil {
		t.Fatalf("ApplyGatewayStatus failed: %v", err)
	}

	stored, _ := f.payments.GetByID(context.Background(), p.ID)
	if stored.EscrowStatus != domain.EscrowRefunded {
		t.Errorf("EscrowStatus = %s, want refunded", stored.EscrowStatus)
	}
	d, _ := f.debts.GetByID(context.Background(), debt.ID)
	if d.Status != domain.DebtStatusSettlementRejected {
		t.Errorf("debt status = %s, want settlement_rejected", d.Status)
	}
}

func TestApplyGatewayStatusPendingIsNoOp(t *testing.T) {
	f := newEscrowFixture()
	p, _ := f.createPayment(t, 60_000)

	if err := f.svc.ApplyGatewayStatus(context.Background(), p.ID, gateway.StatusPending); err != nil {
		t.Fatalf("ApplyGatewayStatus failed: %v", err)
	}

	stored, _ := f.payments.GetByID(context.Background(), p.ID)
	if stored.EscrowStatus != domain.EscrowPendingPayment {
		t.Errorf("EscrowStatus = %s, want unchanged", stored.EscrowStatus)
	}
}

func TestApplyGatewayStatusOnTerminalPaymentConflicts(t *testing.T) {
	f := newEscrowFixture()
	p, _ := f.heldPayment(t, 60_000)

	if _, err := f.svc.Refund(context.Background(), p.ID, "done"); err != nil {
		t.Fatalf("refund failed: %v", err)
	}

	err := f.svc.ApplyGatewayStatus(context.Background(), p.ID, gateway.StatusCancelled)
	if !errors.Is(err, domain.ErrStateConflict) {
		t.Errorf("error = %v, want ErrStateConflict", err)
	}
}
