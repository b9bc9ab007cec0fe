package jobs

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"github.com/stocklane/stocklane/internal/ledger"
	"github.com/stocklane/stocklane/internal/observability"
)

type fakeEnqueuer struct {
	tasks []*asynq.Task
	fail  bool
}

func (f *fakeEnqueuer) EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	if f.fail {
		return nil, errors.New("broker down")
	}
	f.tasks = append(f.tasks, task)
	return &asynq.TaskInfo{}, nil
}

func newTestDispatcher(t *testing.T, client TaskEnqueuer) (*Dispatcher, *observability.Metrics) {
	t.Helper()
	metrics := observability.NewMetrics()
	d := NewDispatcher(DispatcherConfig{
		Client:  client,
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		Metrics: metrics,
	})
	return d, metrics
}

func dispatchCounter(t *testing.T, metrics *observability.Metrics) string {
	t.Helper()
	rr := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	return rr.Body.String()
}

func pendingRow(topic string, payload []byte) outboxRow {
	return outboxRow{ID: uuid.New(), Topic: topic, Payload: payload}
}

func TestDispatchBatchEnqueuesAndMarks(t *testing.T) {
	client := &fakeEnqueuer{}
	d, metrics := newTestDispatcher(t, client)

	rows := []outboxRow{
		pendingRow(ledger.TopicMovementCreated, []byte(`{"event_id":"a"}`)),
		pendingRow(ledger.TopicMovementCreated, []byte(`{"event_id":"b"}`)),
	}
	var marked []uuid.UUID
	n, err := d.dispatchBatch(context.Background(), rows, func(row outboxRow) error {
		marked = append(marked, row.ID)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 2, n)

	require.Len(t, client.tasks, 2)
	require.Equal(t, TaskTypeMovementCreated, client.tasks[0].Type())
	require.Equal(t, []byte(`{"event_id":"a"}`), client.tasks[0].Payload())
	require.Equal(t, []uuid.UUID{rows[0].ID, rows[1].ID}, marked)

	require.Contains(t, dispatchCounter(t, metrics), `stocklane_outbox_dispatch_total{result="ok"} 2`)
}

func TestDispatchBatchSkipsUnknownTopic(t *testing.T) {
	client := &fakeEnqueuer{}
	d, metrics := newTestDispatcher(t, client)

	rows := []outboxRow{
		pendingRow("inventory.unknown", []byte(`{}`)),
		pendingRow(ledger.TopicMovementCreated, []byte(`{"event_id":"c"}`)),
	}
	var marked []uuid.UUID
	n, err := d.dispatchBatch(context.Background(), rows, func(row outboxRow) error {
		marked = append(marked, row.ID)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 1, n)

	// the unmapped row is never enqueued and never marked
	require.Len(t, client.tasks, 1)
	require.Equal(t, []uuid.UUID{rows[1].ID}, marked)

	body := dispatchCounter(t, metrics)
	require.Contains(t, body, `stocklane_outbox_dispatch_total{result="skipped"} 1`)
	require.Contains(t, body, `stocklane_outbox_dispatch_total{result="ok"} 1`)
}

func TestDispatchBatchStopsOnEnqueueError(t *testing.T) {
	client := &fakeEnqueuer{fail: true}
	d, metrics := newTestDispatcher(t, client)

	rows := []outboxRow{pendingRow(ledger.TopicMovementCreated, []byte(`{}`))}
	n, err := d.dispatchBatch(context.Background(), rows, func(row outboxRow) error {
		t.Fatal("row must not be marked when enqueue fails")
		return nil
	})
	require.Error(t, err)
	require.Zero(t, n)

	require.Contains(t, dispatchCounter(t, metrics), `stocklane_outbox_dispatch_total{result="error"} 1`)
}
