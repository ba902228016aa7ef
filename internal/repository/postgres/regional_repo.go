package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oyvindhs/oppgjor-backend/internal/domain"
)

// RegionalConfigRepository implements domain.RegionalConfigRepository using
// PostgreSQL. Configs and customizations are administrative reference data;
// this repository only reads them.
type RegionalConfigRepository struct {
	pool *pgxpool.Pool
}

// NewRegionalConfigRepository creates a new RegionalConfigRepository
func NewRegionalConfigRepository(pool *pgxpool.Pool) *RegionalConfigRepository {
	return &RegionalConfigRepository{pool: pool}
}

// GetConfig retrieves the pricing configuration for a country code
func (r *RegionalConfigRepository) GetConfig(ctx context.Context, countryCode string) (*domain.RegionalConfig, error) {
	var cfg domain.RegionalConfig
	var feePercent, vatRate pgtype.Numeric
	var methods []string

	err := r.pool.QueryRow(ctx, `
		SELECT country_code, currency, platform_fee_percentage, vat_rate,
		       min_amount, max_amount, payment_methods
		FROM regional_configs WHERE country_code = $1`, countryCode,
	).Scan(
		&cfg.CountryCode, &cfg.Currency, &feePercent, &vatRate,
		&cfg.MinAmount, &cfg.MaxAmount, &methods,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrConfigNotFound
		}
		return nil, err
	}

	cfg.PlatformFeePercentage = pgNumericToDecimal(feePercent)
	cfg.VATRate = pgNumericToDecimal(vatRate)
	cfg.PaymentMethods = make([]domain.PaymentMethod, 0, len(methods))
	for _, m := range methods {
		cfg.PaymentMethods = append(cfg.PaymentMethods, domain.PaymentMethod(m))
	}
	return &cfg, nil
}

// ListCustomizations retrieves all fee customizations for a country code,
// highest priority first
func (r *RegionalConfigRepository) ListCustomizations(ctx context.Context, countryCode string) ([]domain.FeeCustomization, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, country_code, priority, valid_from, valid_until,
		       min_amount, max_amount, user_tiers, mode,
		       percentage, fixed_amount, min_fee, max_fee
		FROM fee_customizations
		WHERE country_code = $1
		ORDER BY priority DESC`, countryCode,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var customizations []domain.FeeCustomization
	for rows.Next() {
		var c domain.FeeCustomization
		var mode string
		var percentage pgtype.Numeric

		err := rows.Scan(
			&c.ID, &c.CountryCode, &c.Priority, &c.ValidFrom, &c.ValidUntil,
			&c.MinAmount, &c.MaxAmount, &c.UserTiers, &mode,
			&percentage, &c.FixedAmount, &c.MinFee, &c.MaxFee,
		)
		if err != nil {
			return nil, err
		}

		c.Mode = domain.CustomizationMode(mode)
		if percentage.Valid {
			p := pgNumericToDecimal(percentage)
			c.Percentage = &p
		}
		customizations = append(customizations, c)
	}
	return customizations, rows.Err()
}
