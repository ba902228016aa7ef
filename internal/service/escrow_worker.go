package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/oyvindhs/oppgjor-backend/internal/domain"
	"github.com/rs/zerolog"
)

const expirySweepBatchSize = 100

// ExpiryWorker is a background worker that resolves escrow holds whose
// 7-day window elapsed without a release or refund. Expired holds are
// refunded, never released: release requires an explicit creditor
// confirmation, and an expired hold means that confirmation never came.
type ExpiryWorker struct {
	escrow   *EscrowService
	payments domain.SettlementRepository
	logger   zerolog.Logger
	interval time.Duration
	stopCh   chan struct{}
	doneCh   chan struct{}
	mu       sync.Mutex
	running  bool
}

// NewExpiryWorker creates a new expiry worker
func NewExpiryWorker(escrow *EscrowService, payments domain.SettlementRepository, logger zerolog.Logger, interval time.Duration) *ExpiryWorker {
	if interval <= 0 {
		interval = 1 * time.Hour
	}
	return &ExpiryWorker{
		escrow:   escrow,
		payments: payments,
		logger:   logger.With().Str("component", "expiry_worker").Logger(),
		interval: interval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start begins the background expiry sweep
func (w *ExpiryWorker) Start(ctx context.Context) {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return
	}
	w.running = true
	w.mu.Unlock()

	w.logger.Info().Dur("interval", w.interval).Msg("Starting escrow expiry worker")
	go w.run(ctx)
}

// Stop gracefully stops the worker
func (w *ExpiryWorker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh
	w.logger.Info().Msg("Escrow expiry worker stopped")
}

// run is the main loop for the expiry worker
func (w *ExpiryWorker) run(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.Sweep(ctx)
		case <-w.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Sweep refunds all escrowed payments whose hold deadline has passed. Each
// refund goes through the same serialized transition as an operator refund,
// so a concurrent release or webhook just wins the row lock first.
func (w *ExpiryWorker) Sweep(ctx context.Context) {
	ids, err := w.payments.ListExpiredHolds(ctx, time.Now().UTC(), expirySweepBatchSize)
	if err != nil {
		w.logger.Error().Err(err).Msg("Failed to list expired holds")
		return
	}

	for _, id := range ids {
		_, err := w.escrow.Refund(ctx, id, "escrow hold expired")
		if err != nil {
			if errors.Is(err, domain.ErrStateConflict) {
				// Resolved by another path between listing and locking
				continue
			}
			w.logger.Error().Err(err).Str("payment_id", id.String()).Msg("Failed to refund expired hold")
			continue
		}
		w.logger.Info().Str("payment_id", id.String()).Msg("Refunded expired escrow hold")
	}
}
