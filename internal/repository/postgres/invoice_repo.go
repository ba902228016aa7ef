package postgres

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oyvindhs/oppgjor-backend/internal/domain"
)

// InvoiceRepository implements domain.InvoiceRepository using PostgreSQL
type InvoiceRepository struct {
	pool *pgxpool.Pool
}

// NewInvoiceRepository creates a new InvoiceRepository
func NewInvoiceRepository(pool *pgxpool.Pool) *InvoiceRepository {
	return &InvoiceRepository{pool: pool}
}

// Create persists a new invoice
func (r *InvoiceRepository) Create(ctx context.Context, inv *domain.Invoice) (*domain.Invoice, error) {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO invoices (
			id, payer_id, case_id, currency, recovery_amount,
			platform_fee, vat_amount, processing_fee, total_due,
			status, due_date, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		inv.ID, inv.PayerID, inv.CaseID, inv.Currency, inv.RecoveryAmount,
		inv.PlatformFee, inv.VATAmount, inv.ProcessingFee, inv.TotalDue,
		string(inv.Status), inv.DueDate, inv.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return inv, nil
}

// GetByID retrieves an invoice by id
func (r *InvoiceRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Invoice, error) {
	var inv domain.Invoice
	var status string

	err := r.pool.QueryRow(ctx, `
		SELECT id, payer_id, case_id, currency, recovery_amount,
		       platform_fee, vat_amount, processing_fee, total_due,
		       status, due_date, paid_at, created_at
		FROM invoices WHERE id = $1`, id,
	).Scan(
		&inv.ID, &inv.PayerID, &inv.CaseID, &inv.Currency, &inv.RecoveryAmount,
		&inv.PlatformFee, &inv.VATAmount, &inv.ProcessingFee, &inv.TotalDue,
		&status, &inv.DueDate, &inv.PaidAt, &inv.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrInvoiceNotFound
		}
		return nil, err
	}
	inv.Status = domain.InvoiceStatus(status)
	return &inv, nil
}

// Update writes an invoice's mutable fields
func (r *InvoiceRepository) Update(ctx context.Context, inv *domain.Invoice) (*domain.Invoice, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE invoices SET status = $2, paid_at = $3 WHERE id = $1`,
		inv.ID, string(inv.Status), inv.PaidAt,
	)
	if err != nil {
		return nil, err
	}
	if tag.RowsAffected() == 0 {
		return nil, domain.ErrInvoiceNotFound
	}
	return inv, nil
}
