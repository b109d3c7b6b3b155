package idempotency

import (
	"context"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ordersvc/internal/domain"
)

const (
	defaultCleanupInterval  = 10 * time.Minute
	defaultCleanupBatchSize = 500
)

// CleanupRecorder учитывает проходы очистки; реализуется metrics.OrderMetrics.
type CleanupRecorder interface {
	RecordIdempotencyCleanup(deleted int, elapsed time.Duration, err error)
}

// CleanupResult — итог одного прохода очистки.
type CleanupResult struct {
	Deleted int
	Batches int
}

// CleanupOption настраивает CleanupWorker.
type CleanupOption func(*CleanupWorker)

// WithInterval задаёт интервал между проходами.
func WithInterval(interval time.Duration) CleanupOption {
	return func(w *CleanupWorker) {
		if interval > 0 {
			w.interval = interval
		}
	}
}

// WithBatchSize задаёт число ключей, удаляемых одним запросом.
func WithBatchSize(batchSize int) CleanupOption {
	return func(w *CleanupWorker) {
		if batchSize > 0 {
			w.batchSize = batchSize
		}
	}
}

// WithCleanupClock подменяет источник времени для определения истёкших ключей.
func WithCleanupClock(now func() time.Time) CleanupOption {
	return func(w *CleanupWorker) {
		if now != nil {
			w.now = now
		}
	}
}

// CleanupWorker периодически удаляет истёкшие ключи Idempotency-Key
// для POST /api/orders. Запускается в errgroup приложения.
type CleanupWorker struct {
	repo      domain.IdempotencyRepository
	recorder  CleanupRecorder
	logger    *log.Entry
	interval  time.Duration
	batchSize int
	now       func() time.Time
}

// NewCleanupWorker создаёт воркер очистки. recorder может быть nil.
func NewCleanupWorker(repo domain.IdempotencyRepository, recorder CleanupRecorder, logger *log.Entry, opts ...CleanupOption) *CleanupWorker {
	if logger == nil {
		logger = log.WithField("component", "idempotency-cleanup")
	}
	w := &CleanupWorker{
		repo:      repo,
		recorder:  recorder,
		logger:    logger,
		interval:  defaultCleanupInterval,
		batchSize: defaultCleanupBatchSize,
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run выполняет проход сразу и затем раз в interval до отмены ctx.
func (w *CleanupWorker) Run(ctx context.Context) {
	if w.repo == nil {
		w.logger.Warn("idempotency cleanup is disabled: no repository")
		return
	}
	w.logger.WithFields(log.Fields{
		"interval":   w.interval,
		"batch_size": w.batchSize,
	}).Info("idempotency cleanup started")

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		w.runOnce(ctx)

		select {
		case <-ctx.Done():
			w.logger.Info("idempotency cleanup stopped")
			return
		case <-ticker.C:
		}
	}
}

func (w *CleanupWorker) runOnce(ctx context.Context) {
	started := time.Now()
	result, err := w.Sweep(ctx)
	if errors.Is(err, context.Canceled) {
		return
	}
	if w.recorder != nil {
		w.recorder.RecordIdempotencyCleanup(result.Deleted, time.Since(started), err)
	}

	entry := w.logger.WithFields(log.Fields{
		"deleted": result.Deleted,
		"batches": result.Batches,
	})
	switch {
	case err != nil:
		entry.WithError(err).Warn("idempotency cleanup failed")
	case result.Deleted > 0:
		entry.Info("expired idempotency keys removed")
	default:
		entry.Debug("no expired idempotency keys")
	}
}

// Sweep удаляет все ключи, истёкшие к текущему моменту, порциями batchSize.
// При ошибке возвращает то, что успело удалиться.
func (w *CleanupWorker) Sweep(ctx context.Context) (CleanupResult, error) {
	cutoff := w.now()
	var result CleanupResult

	for {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		deleted, err := w.repo.DeleteExpired(ctx, cutoff, w.batchSize)
		if err != nil {
			return result, err
		}
		result.Batches++
		result.Deleted += deleted

		w.logger.WithFields(log.Fields{
			"batch":   result.Batches,
			"deleted": deleted,
		}).Debug("idempotency cleanup batch")

		// Неполная порция значит, что истёкших ключей до cutoff больше нет.
		if deleted < w.batchSize {
			return result, nil
		}
	}
}
