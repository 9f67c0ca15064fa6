package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/meridian-erp/meridian-erp/internal/observability"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// IdempotencyCleaner purges idempotency keys older than the retention window.
type IdempotencyCleaner struct {
	store     *shared.IdempotencyStore
	retention time.Duration
	metrics   *observability.Metrics
	logger    *slog.Logger
}

func NewIdempotencyCleaner(store *shared.IdempotencyStore, retention time.Duration, metrics *observability.Metrics, logger *slog.Logger) *IdempotencyCleaner {
	return &IdempotencyCleaner{store: store, retention: retention, metrics: metrics, logger: logger}
}

// Run deletes expired keys and logs the count.
func (c *IdempotencyCleaner) Run(ctx context.Context) error {
	deleted, err := c.store.Cleanup(ctx, c.retention)
	if err != nil {
		return err
	}
	if deleted > 0 {
		c.logger.Info("idempotency keys purged",
			slog.Int64("deleted", deleted),
			slog.Duration("retention", c.retention))
	}
	return nil
}

// HandlerFunc adapts the cleaner to an Asynq handler.
func (c *IdempotencyCleaner) HandlerFunc() asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload ScheduledPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		err := c.Run(ctx)
		if c.metrics != nil {
			c.metrics.ObserveJob(TaskIdempotencyCleanup, err)
		}
		return err
	}
}
