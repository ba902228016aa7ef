package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oyvindhs/oppgjor-backend/internal/domain"
	"github.com/shopspring/decimal"
)

// SettlementRepository implements domain.SettlementRepository using PostgreSQL
type SettlementRepository struct {
	pool *pgxpool.Pool
}

// NewSettlementRepository creates a new SettlementRepository
func NewSettlementRepository(pool *pgxpool.Pool) *SettlementRepository {
	return &SettlementRepository{pool: pool}
}

const settlementColumns = `id, payer_id, debt_id, creditor_id, creditor_name, currency,
	settlement_amount, platform_fee_percent, platform_fee, total_amount,
	status, escrow_status, gateway_ref, payment_method,
	created_at, paid_at, expires_at, released_at, refunded_at`

// Create persists a new settlement payment
func (r *SettlementRepository) Create(ctx context.Context, p *domain.SettlementPayment) (*domain.SettlementPayment, error) {
	feePercent, err := decimalToPgNumeric(p.PlatformFeePercent)
	if err != nil {
		return nil, err
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO settlement_payments (
			id, payer_id, debt_id, creditor_id, creditor_name, currency,
			settlement_amount, platform_fee_percent, platform_fee, total_amount,
			status, escrow_status, gateway_ref, payment_method, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		p.ID, p.PayerID, p.DebtID, p.CreditorID, p.CreditorName, p.Currency,
		p.SettlementAmount, feePercent, p.PlatformFee, p.TotalAmount,
		string(p.Status), string(p.EscrowStatus), p.GatewayRef, nullableMethod(p.PaymentMethod), p.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// GetByID retrieves a settlement payment by id
func (r *SettlementRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.SettlementPayment, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+settlementColumns+` FROM settlement_payments WHERE id = $1`, id)
	return scanSettlement(row)
}

// GetByGatewayRef retrieves a settlement payment by its external
// authorization id
func (r *SettlementRepository) GetByGatewayRef(ctx context.Context, ref string) (*domain.SettlementPayment, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+settlementColumns+` FROM settlement_payments WHERE gateway_ref = $1`, ref)
	return scanSettlement(row)
}

// Mutate runs fn with the payment row locked FOR UPDATE. The guard checks
// fn performs and the updates it makes commit as one atomic unit, so
// concurrent transitions on the same payment serialize on the row lock.
func (r *SettlementRepository) Mutate(ctx context.Context, id uuid.UUID, fn func(p *domain.SettlementPayment, tx domain.SettlementTx) error) (*domain.SettlementPayment, error) {
	dbTx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer dbTx.Rollback(ctx)

	row := dbTx.QueryRow(ctx, `SELECT `+settlementColumns+` FROM settlement_payments WHERE id = $1 FOR UPDATE`, id)
	p, err := scanSettlement(row)
	if err != nil {
		return nil, err
	}

	if err := fn(p, &settlementTx{tx: dbTx}); err != nil {
		return nil, err
	}

	feePercent, err := decimalToPgNumeric(p.PlatformFeePercent)
	if err != nil {
		return nil, err
	}

	_, err = dbTx.Exec(ctx, `
		UPDATE settlement_payments SET
			status = $2, escrow_status = $3, gateway_ref = $4, payment_method = $5,
			platform_fee_percent = $6, paid_at = $7, expires_at = $8, released_at = $9, refunded_at = $10
		WHERE id = $1`,
		p.ID, string(p.Status), string(p.EscrowStatus), p.GatewayRef, nullableMethod(p.PaymentMethod),
		feePercent, p.PaidAt, p.ExpiresAt, p.ReleasedAt, p.RefundedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, err
	}
	return p, nil
}

// ListExpiredHolds returns ids of escrowed payments past their hold deadline
func (r *SettlementRepository) ListExpiredHolds(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id FROM settlement_payments
		WHERE escrow_status = $1 AND expires_at IS NOT NULL AND expires_at < $2
		ORDER BY expires_at
		LIMIT $3`,
		string(domain.EscrowFundsHeld), now, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// settlementTx carries the debt updates that ride an escrow transition's
// database transaction
type settlementTx struct {
	tx pgx.Tx
}

// MarkDebtSettled marks the linked debt settled with the settled amount
func (t *settlementTx) MarkDebtSettled(ctx context.Context, debtID uuid.UUID, settledAmount int64, settledAt time.Time) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE debts SET status = $2, settled_amount = $3, settled_at = $4 WHERE id = $1`,
		debtID, string(domain.DebtStatusSettled), settledAmount, settledAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrDebtNotFound
	}
	return nil
}

// MarkDebtSettlementRejected marks the linked debt's settlement rejected
func (t *settlementTx) MarkDebtSettlementRejected(ctx context.Context, debtID uuid.UUID) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE debts SET status = $2 WHERE id = $1`,
		debtID, string(domain.DebtStatusSettlementRejected),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrDebtNotFound
	}
	return nil
}

// rowScanner abstracts pgx.Row for shared scan helpers
type rowScanner interface {
	Scan(dest ...any) error
}

func scanSettlement(row rowScanner) (*domain.SettlementPayment, error) {
	var p domain.SettlementPayment
	var feePercent pgtype.Numeric
	var status, escrowStatus string
	var method *string

	err := row.Scan(
		&p.ID, &p.PayerID, &p.DebtID, &p.CreditorID, &p.CreditorName, &p.Currency,
		&p.SettlementAmount, &feePercent, &p.PlatformFee, &p.TotalAmount,
		&status, &escrowStatus, &p.GatewayRef, &method,
		&p.CreatedAt, &p.PaidAt, &p.ExpiresAt, &p.ReleasedAt, &p.RefundedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrPaymentNotFound
		}
		return nil, err
	}

	p.PlatformFeePercent = pgNumericToDecimal(feePercent)
	p.Status = domain.PaymentStatus(status)
	p.EscrowStatus = domain.EscrowStatus(escrowStatus)
	if method != nil {
		p.PaymentMethod = domain.PaymentMethod(*method)
	}
	return &p, nil
}

func nullableMethod(m domain.PaymentMethod) *string {
	if m == "" {
		return nil
	}
	s := string(m)
	return &s
}

func decimalToPgNumeric(d decimal.Decimal) (pgtype.Numeric, error) {
	var num pgtype.Numeric
	if err := num.Scan(d.String()); err != nil {
		return pgtype.Numeric{}, err
	}
	return num, nil
}

func pgNumericToDecimal(n pgtype.Numeric) decimal.Decimal {
	if !n.Valid {
		return decimal.Zero
	}
	if n.Int == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(n.Int, n.Exp)
}
