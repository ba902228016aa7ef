package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/oyvindhs/oppgjor-backend/internal/domain"
	"github.com/oyvindhs/oppgjor-backend/internal/websocket"
)

// invoiceDuePeriod is how long a payer has to settle a success-fee invoice
const invoiceDuePeriod = 14 * 24 * time.Hour

// InvoiceService bills success fees on recovered amounts
type InvoiceService struct {
	invoices       domain.InvoiceRepository
	fees           *FeeService
	eventPublisher websocket.EventPublisher
}

// NewInvoiceService creates a new InvoiceService
func NewInvoiceService(invoices domain.InvoiceRepository, fees *FeeService) *InvoiceService {
	return &InvoiceService{invoices: invoices, fees: fees}
}

// SetEventPublisher sets the event publisher for real-time updates
func (s *InvoiceService) SetEventPublisher(publisher websocket.EventPublisher) {
	s.eventPublisher = publisher
}

// Generate computes the success-fee breakdown for a recovery and creates a
// pending invoice. Below-threshold recoveries owe nothing: no invoice is
// created and (nil, nil) is returned.
func (s *InvoiceService) Generate(ctx context.Context, payerID, caseID uuid.UUID, recoveryAmount int64, currency string) (*domain.Invoice, error) {
	breakdown, err := s.fees.SuccessFee(recoveryAmount, currency)
	if err != nil {
		return nil, err
	}

	totalDue := breakdown.PlatformFee + breakdown.VAT + breakdown.ProcessingFee
	if totalDue == 0 {
		return nil, nil
	}

	now := time.Now().UTC()
	inv := &domain.Invoice{
		ID:             uuid.New(),
		PayerID:        payerID,
		CaseID:         caseID,
		Currency:       breakdown.Currency,
		RecoveryAmount: breakdown.RecoveryAmount,
		PlatformFee:    breakdown.PlatformFee,
		VATAmount:      breakdown.VAT,
		ProcessingFee:  breakdown.ProcessingFee,
		TotalDue:       totalDue,
		Status:         domain.InvoiceStatusPending,
		DueDate:        now.Add(invoiceDuePeriod),
		CreatedAt:      now,
	}

	return s.invoices.Create(ctx, inv)
}

// Get returns an invoice with overdue evaluated lazily against the due date
func (s *InvoiceService) Get(ctx context.Context, id uuid.UUID) (*domain.Invoice, error) {
	inv, err := s.invoices.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	inv.Status = inv.EffectiveStatus(time.Now().UTC())
	return inv, nil
}

// MarkPaid records payment of a pending or overdue invoice. Paying a paid
// or cancelled invoice is a state conflict.
func (s *InvoiceService) MarkPaid(ctx context.Context, id uuid.UUID) (*domain.Invoice, error) {
	inv, err := s.invoices.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if inv.Status == domain.InvoiceStatusPaid || inv.Status == domain.InvoiceStatusCancelled {
		return nil, domain.ErrStateConflict
	}

	now := time.Now().UTC()
	inv.Status = domain.InvoiceStatusPaid
	inv.PaidAt = &now

	updated, err := s.invoices.Update(ctx, inv)
	if err != nil {
		return nil, err
	}

	if s.eventPublisher != nil {
		s.eventPublisher.Publish(websocket.InvoicePaid(updated))
	}
	return updated, nil
}
