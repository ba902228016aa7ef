package postgres

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oyvindhs/oppgjor-backend/internal/domain"
)

// DebtRepository implements domain.DebtRepository using PostgreSQL
type DebtRepository struct {
	pool *pgxpool.Pool
}

// NewDebtRepository creates a new DebtRepository
func NewDebtRepository(pool *pgxpool.Pool) *DebtRepository {
	return &DebtRepository{pool: pool}
}

// GetByID retrieves a debt by id
func (r *DebtRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Debt, error) {
	var d domain.Debt
	var status string

	err := r.pool.QueryRow(ctx, `
		SELECT id, payer_id, creditor_id, creditor_name, amount, currency,
		       status, settled_amount, settled_at, created_at
		FROM debts WHERE id = $1`, id,
	).Scan(
		&d.ID, &d.PayerID, &d.CreditorID, &d.CreditorName, &d.Amount, &d.Currency,
		&status, &d.SettledAmount, &d.SettledAt, &d.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrDebtNotFound
		}
		return nil, err
	}
	d.Status = domain.DebtStatus(status)
	return &d, nil
}

// Create persists a new debt record
func (r *DebtRepository) Create(ctx context.Context, d *domain.Debt) (*domain.Debt, error) {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO debts (id, payer_id, creditor_id, creditor_name, amount, currency, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		d.ID, d.PayerID, d.CreditorID, d.CreditorName, d.Amount, d.Currency, string(d.Status), d.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return d, nil
}
