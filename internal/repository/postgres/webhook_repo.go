package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oyvindhs/oppgjor-backend/internal/domain"
)

// WebhookEventRepository implements domain.WebhookEventRepository using
// PostgreSQL
type WebhookEventRepository struct {
	pool *pgxpool.Pool
}

// NewWebhookEventRepository creates a new WebhookEventRepository
func NewWebhookEventRepository(pool *pgxpool.Pool) *WebhookEventRepository {
	return &WebhookEventRepository{pool: pool}
}

// Create durably records a received callback before it is acknowledged
func (r *WebhookEventRepository) Create(ctx context.Context, ev *domain.WebhookEvent) (*domain.WebhookEvent, error) {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO webhook_events (id, rail, external_ref, payload, received_at)
		VALUES ($1, $2, $3, $4, $5)`,
		ev.ID, ev.Rail, ev.ExternalRef, ev.Payload, ev.ReceivedAt,
	)
	if err != nil {
		return nil, err
	}
	return ev, nil
}

// MarkProcessed stamps an event as handled, with an optional note for
// discarded events
func (r *WebhookEventRepository) MarkProcessed(ctx context.Context, id uuid.UUID, note *string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE webhook_events SET processed_at = $2, processing_note = $3 WHERE id = $1`,
		id, time.Now(), note,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrInternalError
	}
	return nil
}

// ListUnprocessed returns stored events not yet marked processed, oldest
// first, for the retry sweep
func (r *WebhookEventRepository) ListUnprocessed(ctx context.Context, limit int) ([]domain.WebhookEvent, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, rail, external_ref, payload, received_at, processed_at, processing_note
		FROM webhook_events
		WHERE processed_at IS NULL
		ORDER BY received_at
		LIMIT $1`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []domain.WebhookEvent
	for rows.Next() {
		var ev domain.WebhookEvent
		if err := rows.Scan(&ev.ID, &ev.Rail, &ev.ExternalRef, &ev.Payload, &ev.ReceivedAt, &ev.ProcessedAt, &ev.ProcessingNote); err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}
