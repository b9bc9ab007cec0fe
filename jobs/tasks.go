package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/stocklane/stocklane/internal/ledger"
	"github.com/stocklane/stocklane/internal/observability"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeMovementCreated is the task type emitted for every ledger movement.
	TaskTypeMovementCreated = "inventory:movement:created"
)

// NewMovementCreatedTask wraps an outbox payload into an Asynq task. The
// payload already carries its event id, so consumers can deduplicate
// redeliveries.
func NewMovementCreatedTask(payload []byte) *asynq.Task {
	return asynq.NewTask(TaskTypeMovementCreated, payload)
}

// MovementConsumer reacts to movement events by refreshing the tenant's
// cached inventory statistics.
type MovementConsumer struct {
	pool    *pgxpool.Pool
	redis   *redis.Client
	logger  *slog.Logger
	metrics *observability.Metrics
	warmTTL time.Duration
}

// NewMovementConsumer builds a MovementConsumer.
func NewMovementConsumer(pool *pgxpool.Pool, redisClient *redis.Client, logger *slog.Logger, metrics *observability.Metrics, warmTTL time.Duration) *MovementConsumer {
	if warmTTL <= 0 {
		warmTTL = 5 * time.Minute
	}
	return &MovementConsumer{pool: pool, redis: redisClient, logger: logger, metrics: metrics, warmTTL: warmTTL}
}

type inventoryStats struct {
	OrganizationID int64     `json:"organization_id"`
	TotalOnHand    int64     `json:"total_on_hand"`
	TotalAvailable int64     `json:"total_available"`
	BatchCount     int64     `json:"batch_count"`
	RefreshedAt    time.Time `json:"refreshed_at"`
}

// HandleMovementCreated recomputes and warms the tenant stats cache. A
// malformed payload is dropped rather than retried.
func (c *MovementConsumer) HandleMovementCreated(ctx context.Context, t *asynq.Task) error {
	var payload ledger.MovementCreatedPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		c.logger.Warn("movement task payload malformed", slog.Any("error", err))
		return asynq.SkipRetry
	}

	stats := inventoryStats{OrganizationID: payload.OrganizationID, RefreshedAt: time.Now().UTC()}
	err := c.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(quantity_on_hand), 0), COALESCE(SUM(available_qty), 0), COUNT(*)
		 FROM inventory_batches WHERE organization_id = $1`,
		payload.OrganizationID,
	).Scan(&stats.TotalOnHand, &stats.TotalAvailable, &stats.BatchCount)
	if err != nil {
		return err
	}

	body, err := json.Marshal(stats)
	if err != nil {
		return err
	}
	if err := c.redis.Set(ctx, ledger.StatsCacheKey(payload.OrganizationID), body, c.warmTTL).Err(); err != nil {
		return err
	}
	c.metrics.MovementPosted(string(payload.MovementType))
	c.logger.Info("warmed inventory stats",
		slog.Int64("org_id", payload.OrganizationID),
		slog.String("event_id", payload.EventID.String()),
		slog.String("movement_type", string(payload.MovementType)))
	return nil
}
