package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/oyvindhs/oppgjor-backend/internal/domain"
	"github.com/oyvindhs/oppgjor-backend/internal/gateway"
	"github.com/oyvindhs/oppgjor-backend/internal/service"
	"github.com/oyvindhs/oppgjor-backend/internal/testutil"
)

type handlerFixture struct {
	handler  *SettlementHandler
	payments *testutil.MockSettlementRepository
	debts    *testutil.MockDebtRepository
	card     *testutil.MockGateway
}

func newHandlerFixture() *handlerFixture {
	payments := testutil.NewMockSettlementRepository()
	debts := testutil.NewMockDebtRepository()
	payments.Debts = debts
	card := testutil.NewMockGateway()

	fees := service.NewFeeService(service.NewRegionalService(testutil.NewMockRegionalConfigRepository()))
	escrow := service.NewEscrowService(payments, debts, fees, map[domain.PaymentMethod]gateway.Gateway{
		domain.MethodCard: card,
	})

	return &handlerFixture{
		handler:  NewSettlementHandler(escrow, fees),
		payments: payments,
		debts:    debts,
		card:     card,
	}
}

func (f *handlerFixture) addDebt() *domain.Debt {
	d := &domain.Debt{
		ID:           uuid.New(),
		PayerID:      uuid.New(),
		CreditorID:   uuid.New(),
		CreditorName: "Kreditor AS",
		Amount:       60_000,
		Currency:     "NOK",
		Status:       domain.DebtStatusActive,
		CreatedAt:    time.Now(),
	}
	f.debts.AddDebt(d)
	return d
}

func (f *handlerFixture) addHeldPayment() *domain.SettlementPayment {
	ref := "pi_held"
	now := time.Now()
	expires := now.Add(7 * 24 * time.Hour)
	debt := f.addDebt()
	p := &domain.SettlementPayment{
		ID:               uuid.New(),
		PayerID:          debt.PayerID,
		DebtID:           debt.ID,
		CreditorID:       debt.CreditorID,
		CreditorName:     debt.CreditorName,
		Currency:         "NOK",
		SettlementAmount: 60_000,
		PlatformFee:      12_000,
		TotalAmount:      72_000,
		Status:           domain.PaymentStatusEscrowed,
		EscrowStatus:     domain.EscrowFundsHeld,
		GatewayRef:       &ref,
		PaymentMethod:    domain.MethodCard,
		CreatedAt:        now,
		PaidAt:           &now,
		ExpiresAt:        &expires,
	}
	f.payments.AddPayment(p)
	return p
}

func doRequest(t *testing.T, handlerFn echo.HandlerFunc, method, target string, body interface{}, pathParams map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	e := echo.New()
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	for k, v := range pathParams {
		c.SetParamNames(k)
		c.SetParamValues(v)
	}

	if err := handlerFn(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	return rec
}

func TestSettlementHandlerCalculate(t *testing.T) {
	f := newHandlerFixture()

	rec := doRequest(t, f.handler.Calculate, http.MethodPost, "/api/v1/settlements/calculate", CalculateRequest{SettlementAmount: 60_000}, nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var b service.SettlementBreakdown
	if err := json.Unmarshal(rec.Body.Bytes(), &b); err != nil {
		t.Fatalf("bad response: %v", err)
	}
	if b.PlatformFee != 12_000 || b.TotalPayment != 72_000 || b.CreditorReceives != 60_000 {
		t.Errorf("breakdown = %+v", b)
	}
}

func TestSettlementHandlerCalculateInvalidAmount(t *testing.T) {
	f := newHandlerFixture()

	rec := doRequest(t, f.handler.Calculate, http.MethodPost, "/api/v1/settlements/calculate", CalculateRequest{SettlementAmount: -5}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestSettlementHandlerCreate(t *testing.T) {
	f := newHandlerFixture()
	debt := f.addDebt()

	rec := doRequest(t, f.handler.Create, http.MethodPost, "/api/v1/settlements", CreateSettlementRequest{
		PayerID:          debt.PayerID,
		DebtID:           debt.ID,
		CreditorID:       debt.CreditorID,
		CreditorName:     debt.CreditorName,
		SettlementAmount: 60_000,
	}, nil)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201, body %s", rec.Code, rec.Body.String())
	}

	var p domain.SettlementPayment
	if err := json.Unmarshal(rec.Body.Bytes(), &p); err != nil {
		t.Fatalf("bad response: %v", err)
	}
	if p.TotalAmount != 72_000 {
		t.Errorf("TotalAmount = %d, want 72000", p.TotalAmount)
	}
	if p.EscrowStatus != domain.EscrowPendingPayment {
		t.Errorf("EscrowStatus = %s, want pending_payment", p.EscrowStatus)
	}
}

func TestSettlementHandlerCreateMissingFields(t *testing.T) {
	f := newHandlerFixture()

	rec := doRequest(t, f.handler.Create, http.MethodPost, "/api/v1/settlements", CreateSettlementRequest{
		SettlementAmount: 60_000,
	}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestSettlementHandlerCreateUnknownDebt(t *testing.T) {
	f := newHandlerFixture()

	rec := doRequest(t, f.handler.Create, http.MethodPost, "/api/v1/settlements", CreateSettlementRequest{
		PayerID:          uuid.New(),
		DebtID:           uuid.New(),
		CreditorName:     "Kreditor AS",
		SettlementAmount: 60_000,
	}, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestSettlementHandlerGet(t *testing.T) {
	f := newHandlerFixture()
	p := f.addHeldPayment()

	rec := doRequest(t, f.handler.Get, http.MethodGet, "/api/v1/settlements/"+p.ID.String(), nil, map[string]string{"id": p.ID.String()})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var got GetResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("bad response: %v", err)
	}
	if got.ID != p.ID {
		t.Errorf("ID = %s, want %s", got.ID, p.ID)
	}
	if got.Expired {
		t.Error("fresh hold should not read as expired")
	}
}

func TestSettlementHandlerGetReportsExpiredLazily(t *testing.T) {
	f := newHandlerFixture()
	p := f.addHeldPayment()
	past := time.Now().Add(-time.Hour)
	f.payments.Payments[p.ID].ExpiresAt = &past

	rec := doRequest(t, f.handler.Get, http.MethodGet, "/api/v1/settlements/"+p.ID.String(), nil, map[string]string{"id": p.ID.String()})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var got GetResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("bad response: %v", err)
	}
	if !got.Expired {
		t.Error("hold past its deadline should read as expired")
	}
}

func TestSettlementHandlerGetNotFound(t *testing.T) {
	f := newHandlerFixture()

	id := uuid.New().String()
	rec := doRequest(t, f.handler.Get, http.MethodGet, "/api/v1/settlements/"+id, nil, map[string]string{"id": id})
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}

	var problem ProblemDetails
	if err := json.Unmarshal(rec.Body.Bytes(), &problem); err != nil {
		t.Fatalf("bad problem response: %v", err)
	}
	if problem.Status != http.StatusNotFound {
		t.Errorf("problem.Status = %d", problem.Status)
	}
}

func TestSettlementHandlerGetInvalidID(t *testing.T) {
	f := newHandlerFixture()

	rec := doRequest(t, f.handler.Get, http.MethodGet, "/api/v1/settlements/abc", nil, map[string]string{"id": "abc"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestSettlementHandlerPay(t *testing.T) {
	f := newHandlerFixture()
	debt := f.addDebt()

	createRec := doRequest(t, f.handler.Create, http.MethodPost, "/api/v1/settlements", CreateSettlementRequest{
		PayerID:          debt.PayerID,
		DebtID:           debt.ID,
		CreditorID:       debt.CreditorID,
		CreditorName:     debt.CreditorName,
		SettlementAmount: 60_000,
	}, nil)
	var created domain.SettlementPayment
	_ = json.Unmarshal(createRec.Body.Bytes(), &created)

	rec := doRequest(t, f.handler.Pay, http.MethodPost, "/api/v1/settlements/"+created.ID.String()+"/pay", PayRequest{
		Method:    "card",
		MethodRef: "pm_test",
	}, map[string]string{"id": created.ID.String()})

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body %s", rec.Code, rec.Body.String())
	}

	var result PayResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("bad response: %v", err)
	}
	if result.Payment.EscrowStatus != domain.EscrowFundsHeld {
		t.Errorf("EscrowStatus = %s, want funds_held", result.Payment.EscrowStatus)
	}
}

func TestSettlementHandlerPayUpstreamFailure(t *testing.T) {
	f := newHandlerFixture()
	debt := f.addDebt()

	createRec := doRequest(t, f.handler.Create, http.MethodPost, "/api/v1/settlements", CreateSettlementRequest{
		PayerID:          debt.PayerID,
		DebtID:           debt.ID,
		CreditorName:     debt.CreditorName,
		SettlementAmount: 60_000,
	}, nil)
	var created domain.SettlementPayment
	_ = json.Unmarshal(createRec.Body.Bytes(), &created)

	f.card.AuthorizeFn = func(req gateway.AuthorizeRequest) (*gateway.Authorization, error) {
		return nil, &domain.GatewayError{Rail: "card", Code: "card_declined", Message: "declined"}
	}

	rec := doRequest(t, f.handler.Pay, http.MethodPost, "/api/v1/settlements/"+created.ID.String()+"/pay", PayRequest{
		Method:    "card",
		MethodRef: "pm_test",
	}, map[string]string{"id": created.ID.String()})

	if rec.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", rec.Code)
	}
}

func TestSettlementHandlerRelease(t *testing.T) {
	f := newHandlerFixture()
	p := f.addHeldPayment()

	rec := doRequest(t, f.handler.Release, http.MethodPost, "/api/v1/settlements/"+p.ID.String()+"/release", ReleaseRequest{
		Confirmation: "creditor confirmed receipt",
	}, map[string]string{"id": p.ID.String()})

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body %s", rec.Code, rec.Body.String())
	}

	var result ReleaseResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("bad response: %v", err)
	}
	if result.AmountReleased != 60_000 || result.PlatformFeeCollected != 12_000 {
		t.Errorf("result = %+v", result)
	}
}

func TestSettlementHandlerReleaseConflict(t *testing.T) {
	f := newHandlerFixture()
	p := f.addHeldPayment()

	params := map[string]string{"id": p.ID.String()}
	target := "/api/v1/settlements/" + p.ID.String() + "/release"

	first := doRequest(t, f.handler.Release, http.MethodPost, target, ReleaseRequest{}, params)
	if first.Code != http.StatusOK {
		t.Fatalf("first release status = %d", first.Code)
	}

	second := doRequest(t, f.handler.Release, http.MethodPost, target, ReleaseRequest{}, params)
	if second.Code != http.StatusConflict {
		t.Errorf("second release status = %d, want 409", second.Code)
	}
}

func TestSettlementHandlerReleaseExpired(t *testing.T) {
	f := newHandlerFixture()
	p := f.addHeldPayment()
	past := time.Now().Add(-time.Hour)
	f.payments.Payments[p.ID].ExpiresAt = &past

	rec := doRequest(t, f.handler.Release, http.MethodPost, "/api/v1/settlements/"+p.ID.String()+"/release", ReleaseRequest{}, map[string]string{"id": p.ID.String()})
	if rec.Code != http.StatusGone {
		t.Errorf("status = %d, want 410", rec.Code)
	}
}

func TestSettlementHandlerRefund(t *testing.T) {
	f := newHandlerFixture()
	p := f.addHeldPayment()

	rec := doRequest(t, f.handler.Refund, http.MethodPost, "/api/v1/settlements/"+p.ID.String()+"/refund", RefundRequest{
		Reason: "payer dispute",
	}, map[string]string{"id": p.ID.String()})

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body %s", rec.Code, rec.Body.String())
	}

	var result RefundResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("bad response: %v", err)
	}
	if result.RefundAmount != 72_000 {
		t.Errorf("RefundAmount = %d, want full 72000", result.RefundAmount)
	}
}
