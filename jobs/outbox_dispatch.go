package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stocklane/stocklane/internal/ledger"
	"github.com/stocklane/stocklane/internal/observability"
)

// Dispatcher drains pending outbox rows into the task queue. Rows are locked
// with SKIP LOCKED so concurrent dispatchers never double-enqueue within one
// poll; consumers still deduplicate on event id because enqueue-then-commit
// is at-least-once.
type Dispatcher struct {
	pool      *pgxpool.Pool
	client    TaskEnqueuer
	logger    *slog.Logger
	metrics   *observability.Metrics
	interval  time.Duration
	batchSize int
}

// TaskEnqueuer is the slice of asynq.Client the dispatcher needs.
type TaskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// DispatcherConfig collects Dispatcher dependencies.
type DispatcherConfig struct {
	Pool      *pgxpool.Pool
	Client    TaskEnqueuer
	Logger    *slog.Logger
	Metrics   *observability.Metrics
	Interval  time.Duration
	BatchSize int
}

// NewDispatcher builds a Dispatcher with sane defaults.
func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	interval := cfg.Interval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 50
	}
	return &Dispatcher{
		pool:      cfg.Pool,
		client:    cfg.Client,
		logger:    cfg.Logger,
		metrics:   cfg.Metrics,
		interval:  interval,
		batchSize: batchSize,
	}
}

// Run polls the outbox until context cancellation.
func (d *Dispatcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if n, err := d.dispatchOnce(ctx); err != nil {
				d.logger.Error("outbox dispatch", slog.Any("error", err))
			} else if n > 0 {
				d.logger.Debug("outbox dispatched", slog.Int("count", n))
			}
		}
	}
}

type outboxRow struct {
	ID      uuid.UUID
	Topic   string
	Payload []byte
}

func (d *Dispatcher) dispatchOnce(ctx context.Context) (int, error) {
	tx, err := d.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx,
		`SELECT id, topic, payload FROM outbox_events
		 WHERE status = $1
		 ORDER BY created_at ASC
		 LIMIT $2
		 FOR UPDATE SKIP LOCKED`,
		ledger.OutboxPending, d.batchSize)
	if err != nil {
		return 0, err
	}
	pending := make([]outboxRow, 0, d.batchSize)
	for rows.Next() {
		var row outboxRow
		if err := rows.Scan(&row.ID, &row.Topic, &row.Payload); err != nil {
			rows.Close()
			return 0, err
		}
		pending = append(pending, row)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}
	if len(pending) == 0 {
		return 0, tx.Commit(ctx)
	}

	now := time.Now().UTC()
	dispatched, err := d.dispatchBatch(ctx, pending, func(row outboxRow) error {
		_, err := tx.Exec(ctx,
			`UPDATE outbox_events SET status = $1, dispatched_at = $2 WHERE id = $3`,
			ledger.OutboxDispatched, now, row.ID)
		return err
	})
	if err != nil {
		return dispatched, err
	}
	return dispatched, tx.Commit(ctx)
}

// dispatchBatch enqueues each pending row and marks it dispatched. Rows whose
// topic has no task mapping are skipped and stay PENDING; an enqueue or mark
// failure aborts the batch so the remaining rows retry on the next poll.
func (d *Dispatcher) dispatchBatch(ctx context.Context, pending []outboxRow, mark func(outboxRow) error) (int, error) {
	dispatched := 0
	for _, row := range pending {
		task := d.taskFor(row)
		if task == nil {
			d.logger.Warn("outbox topic has no task mapping", slog.String("topic", row.Topic))
			d.metrics.OutboxDispatched("skipped")
			continue
		}
		if _, err := d.client.EnqueueContext(ctx, task, asynq.Queue(QueueDefault)); err != nil {
			d.metrics.OutboxDispatched("error")
			return dispatched, err
		}
		if err := mark(row); err != nil {
			return dispatched, err
		}
		d.metrics.OutboxDispatched("ok")
		dispatched++
	}
	return dispatched, nil
}

func (d *Dispatcher) taskFor(row outboxRow) *asynq.Task {
	switch row.Topic {
	case ledger.TopicMovementCreated:
		return NewMovementCreatedTask(row.Payload)
	default:
		return nil
	}
}
