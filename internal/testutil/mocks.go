package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oyvindhs/oppgjor-backend/internal/domain"
	"github.com/oyvindhs/oppgjor-backend/internal/gateway"
)

// MockSettlementRepository is a mock implementation of
// domain.SettlementRepository. Mutate takes a per-payment lock, so
// concurrent transitions serialize exactly as they do against the row lock
// in the real repository.
type MockSettlementRepository struct {
	mu       sync.Mutex
	locks    map[uuid.UUID]*sync.Mutex
	Payments map[uuid.UUID]*domain.SettlementPayment
	Debts    *MockDebtRepository
	CreateFn func(p *domain.SettlementPayment) (*domain.SettlementPayment, error)
}

// NewMockSettlementRepository creates a new MockSettlementRepository
func NewMockSettlementRepository() *MockSettlementRepository {
	return &MockSettlementRepository{
		locks:    make(map[uuid.UUID]*sync.Mutex),
		Payments: make(map[uuid.UUID]*domain.SettlementPayment),
	}
}

// AddPayment adds a payment to the mock repository (helper for tests)
func (m *MockSettlementRepository) AddPayment(p *domain.SettlementPayment) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Payments[p.ID] = p
}

// Create persists a new settlement payment
func (m *MockSettlementRepository) Create(ctx context.Context, p *domain.SettlementPayment) (*domain.SettlementPayment, error) {
	if m.CreateFn != nil {
		return m.CreateFn(p)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Payments[p.ID] = p
	return p, nil
}

// GetByID retrieves a settlement payment by id
func (m *MockSettlementRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.SettlementPayment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.Payments[id]; ok {
		cp := *p
		return &cp, nil
	}
	return nil, domain.ErrPaymentNotFound
}

// GetByGatewayRef retrieves a settlement payment by external reference
func (m *MockSettlementRepository) GetByGatewayRef(ctx context.Context, ref string) (*domain.SettlementPayment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.Payments {
		if p.GatewayRef != nil && *p.GatewayRef == ref {
			cp := *p
			return &cp, nil
		}
	}
	return nil, domain.ErrPaymentNotFound
}

// Mutate runs fn against a copy of the payment under a per-payment lock and
// commits the copy only when fn succeeds
func (m *MockSettlementRepository) Mutate(ctx context.Context, id uuid.UUID, fn func(p *domain.SettlementPayment, tx domain.SettlementTx) error) (*domain.SettlementPayment, error) {
	lock := m.paymentLock(id)
	lock.Lock()
	defer lock.Unlock()

	m.mu.Lock()
	stored, ok := m.Payments[id]
	if !ok {
		m.mu.Unlock()
		return nil, domain.ErrPaymentNotFound
	}
	cp := *stored
	m.mu.Unlock()

	tx := &mockSettlementTx{debts: m.Debts}
	if err := fn(&cp, tx); err != nil {
		return nil, err
	}
	tx.commit()

	m.mu.Lock()
	m.Payments[id] = &cp
	m.mu.Unlock()

	out := cp
	return &out, nil
}

// ListExpiredHolds returns ids of escrowed payments past their deadline
func (m *MockSettlementRepository) ListExpiredHolds(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []uuid.UUID
	for id, p := range m.Payments {
		if p.Expired(now) {
			ids = append(ids, id)
			if len(ids) == limit {
				break
			}
		}
	}
	return ids, nil
}

func (m *MockSettlementRepository) paymentLock(id uuid.UUID) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	lock, ok := m.locks[id]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[id] = lock
	}
	return lock
}

// mockSettlementTx buffers debt updates until the surrounding Mutate
// succeeds, mirroring the real transaction
type mockSettlementTx struct {
	debts   *MockDebtRepository
	applied []func()
}

// MarkDebtSettled marks a debt settled on commit
func (t *mockSettlementTx) MarkDebtSettled(ctx context.Context, debtID uuid.UUID, settledAmount int64, settledAt time.Time) error {
	if t.debts == nil {
		return nil
	}
	d, err := t.debts.GetByID(ctx, debtID)
	if err != nil {
		return err
	}
	t.applied = append(t.applied, func() {
		d.Status = domain.DebtStatusSettled
		d.SettledAmount = &settledAmount
		d.SettledAt = &settledAt
		t.debts.AddDebt(d)
	})
	return nil
}

// MarkDebtSettlementRejected marks a debt's settlement rejected on commit
func (t *mockSettlementTx) MarkDebtSettlementRejected(ctx context.Context, debtID uuid.UUID) error {
	if t.debts == nil {
		return nil
	}
	d, err := t.debts.GetByID(ctx, debtID)
	if err != nil {
		return err
	}
	t.applied = append(t.applied, func() {
		d.Status = domain.DebtStatusSettlementRejected
		t.debts.AddDebt(d)
	})
	return nil
}

func (t *mockSettlementTx) commit() {
	for _, apply := range t.applied {
		apply()
	}
}

// MockDebtRepository is a mock implementation of domain.DebtRepository
type MockDebtRepository struct {
	mu      sync.Mutex
	Debts   map[uuid.UUID]*domain.Debt
	GetByFn func(id uuid.UUID) (*domain.Debt, error)
}

// NewMockDebtRepository creates a new MockDebtRepository
func NewMockDebtRepository() *MockDebtRepository {
	return &MockDebtRepository{Debts: make(map[uuid.UUID]*domain.Debt)}
}

// AddDebt adds a debt to the mock repository (helper for tests)
func (m *MockDebtRepository) AddDebt(d *domain.Debt) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Debts[d.ID] = d
}

// GetByID retrieves a debt by id
func (m *MockDebtRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Debt, error) {
	if m.GetByFn != nil {
		return m.GetByFn(id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if d, ok := m.Debts[id]; ok {
		cp := *d
		return &cp, nil
	}
	return nil, domain.ErrDebtNotFound
}

// Create persists a new debt
func (m *MockDebtRepository) Create(ctx context.Context, d *domain.Debt) (*domain.Debt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Debts[d.ID] = d
	return d, nil
}

// MockInvoiceRepository is a mock implementation of domain.InvoiceRepository
type MockInvoiceRepository struct {
	mu       sync.Mutex
	Invoices map[uuid.UUID]*domain.Invoice
	CreateFn func(inv *domain.Invoice) (*domain.Invoice, error)
}

// NewMockInvoiceRepository creates a new MockInvoiceRepository
func NewMockInvoiceRepository() *MockInvoiceRepository {
	return &MockInvoiceRepository{Invoices: make(map[uuid.UUID]*domain.Invoice)}
}

// AddInvoice adds an invoice to the mock repository (helper for tests)
func (m *MockInvoiceRepository) AddInvoice(inv *domain.Invoice) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Invoices[inv.ID] = inv
}

// Create persists a new invoice
func (m *MockInvoiceRepository) Create(ctx context.Context, inv *domain.Invoice) (*domain.Invoice, error) {
	if m.CreateFn != nil {
		return m.CreateFn(inv)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Invoices[inv.ID] = inv
	return inv, nil
}

// GetByID retrieves an invoice by id
func (m *MockInvoiceRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if inv, ok := m.Invoices[id]; ok {
		cp := *inv
		return &cp, nil
	}
	return nil, domain.ErrInvoiceNotFound
}

// Update writes an invoice's mutable fields
func (m *MockInvoiceRepository) Update(ctx context.Context, inv *domain.Invoice) (*domain.Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.Invoices[inv.ID]; !ok {
		return nil, domain.ErrInvoiceNotFound
	}
	m.Invoices[inv.ID] = inv
	return inv, nil
}

// MockRegionalConfigRepository is a mock implementation of
// domain.RegionalConfigRepository
type MockRegionalConfigRepository struct {
	Configs        map[string]*domain.RegionalConfig
	Customizations map[string][]domain.FeeCustomization
}

// NewMockRegionalConfigRepository creates a new MockRegionalConfigRepository
func NewMockRegionalConfigRepository() *MockRegionalConfigRepository {
	return &MockRegionalConfigRepository{
		Configs:        make(map[string]*domain.RegionalConfig),
		Customizations: make(map[string][]domain.FeeCustomization),
	}
}

// GetConfig retrieves the pricing configuration for a country code
func (m *MockRegionalConfigRepository) GetConfig(ctx context.Context, countryCode string) (*domain.RegionalConfig, error) {
	if cfg, ok := m.Configs[countryCode]; ok {
		return cfg, nil
	}
	return nil, domain.ErrConfigNotFound
}

// ListCustomizations retrieves fee customizations for a country code
func (m *MockRegionalConfigRepository) ListCustomizations(ctx context.Context, countryCode string) ([]domain.FeeCustomization, error) {
	return m.Customizations[countryCode], nil
}

// MockWebhookEventRepository is a mock implementation of
// domain.WebhookEventRepository
type MockWebhookEventRepository struct {
	mu     sync.Mutex
	Events map[uuid.UUID]*domain.WebhookEvent
	Order  []uuid.UUID
}

// NewMockWebhookEventRepository creates a new MockWebhookEventRepository
func NewMockWebhookEventRepository() *MockWebhookEventRepository {
	return &MockWebhookEventRepository{Events: make(map[uuid.UUID]*domain.WebhookEvent)}
}

// Create durably records a callback
func (m *MockWebhookEventRepository) Create(ctx context.Context, ev *domain.WebhookEvent) (*domain.WebhookEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Events[ev.ID] = ev
	m.Order = append(m.Order, ev.ID)
	return ev, nil
}

// MarkProcessed stamps an event as handled
func (m *MockWebhookEventRepository) MarkProcessed(ctx context.Context, id uuid.UUID, note *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev, ok := m.Events[id]
	if !ok {
		return domain.ErrInternalError
	}
	now := time.Now()
	ev.ProcessedAt = &now
	ev.ProcessingNote = note
	return nil
}

// ListUnprocessed returns events not yet marked processed, oldest first
func (m *MockWebhookEventRepository) ListUnprocessed(ctx context.Context, limit int) ([]domain.WebhookEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var events []domain.WebhookEvent
	for _, id := range m.Order {
		if ev := m.Events[id]; ev.ProcessedAt == nil {
			events = append(events, *ev)
			if len(events) == limit {
				break
			}
		}
	}
	return events, nil
}

// MockGateway is a scripted mock implementation of gateway.Gateway. It is
// safe for concurrent use; call counts let tests assert how many provider
// calls a transition made.
type MockGateway struct {
	mu sync.Mutex

	AuthorizeFn func(req gateway.AuthorizeRequest) (*gateway.Authorization, error)
	CaptureFn   func(ref string, amountMinor int64) error
	CancelFn    func(ref string, reason string) error
	StatusFn    func(ref string) (gateway.Status, error)

	AuthorizeCalls int
	CaptureCalls   int
	CancelCalls    int
	StatusCalls    int
}

// NewMockGateway creates a MockGateway whose defaults authorize into a held
// state, capture and cancel successfully, and report held status
func NewMockGateway() *MockGateway {
	return &MockGateway{}
}

// Authorize scripts an authorization
func (m *MockGateway) Authorize(ctx context.Context, req gateway.AuthorizeRequest) (*gateway.Authorization, error) {
	m.mu.Lock()
	m.AuthorizeCalls++
	fn := m.AuthorizeFn
	m.mu.Unlock()

	if fn != nil {
		return fn(req)
	}
	return &gateway.Authorization{Ref: "auth_" + req.Reference, Status: gateway.StatusHeld}, nil
}

// Capture scripts a capture
func (m *MockGateway) Capture(ctx context.Context, ref string, amountMinor int64) error {
	m.mu.Lock()
	m.CaptureCalls++
	fn := m.CaptureFn
	m.mu.Unlock()

	if fn != nil {
		return fn(ref, amountMinor)
	}
	return nil
}

// Cancel scripts a cancellation
func (m *MockGateway) Cancel(ctx context.Context, ref string, reason string) error {
	m.mu.Lock()
	m.CancelCalls++
	fn := m.CancelFn
	m.mu.Unlock()

	if fn != nil {
		return fn(ref, reason)
	}
	return nil
}

// Status scripts a status fetch
func (m *MockGateway) Status(ctx context.Context, ref string) (gateway.Status, error) {
	m.mu.Lock()
	m.StatusCalls++
	fn := m.StatusFn
	m.mu.Unlock()

	if fn != nil {
		return fn(ref)
	}
	return gateway.StatusHeld, nil
}
