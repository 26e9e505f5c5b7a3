package worker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/UnendingLoop/Colorizer/internal/model"
	"github.com/UnendingLoop/Colorizer/internal/repository/memory"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	"github.com/wb-go/wbf/retry"
)

func eventPayload(t *testing.T, ev model.JobEvent) []byte {
	t.Helper()

	data, err := json.Marshal(ev)
	require.NoError(t, err)
	return data
}

func validEvent(id string, st model.Status) model.JobEvent {
	return model.JobEvent{
		JobID:     id,
		OwnerID:   "user-1",
		ModelID:   "m",
		Status:    st,
		CreatedAt: time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC),
	}
}

func TestWorker_HandleEvent(t *testing.T) {
	tests := []struct {
		name    string
		payload func(t *testing.T) []byte
		wantErr error
	}{
		{
			name:    "valid event",
			payload: func(t *testing.T) []byte { return eventPayload(t, validEvent("a", model.StatusSucceeded)) },
		},
		{
			name:    "not json",
			payload: func(*testing.T) []byte { return []byte("{{{") },
			wantErr: ErrMalformedEvent,
		},
		{
			name: "missing owner",
			payload: func(t *testing.T) []byte {
				ev := validEvent("a", model.StatusFailed)
				ev.OwnerID = ""
				return eventPayload(t, ev)
			},
			wantErr: ErrMalformedEvent,
		},
		{
			name:    "pending status",
			payload: func(t *testing.T) []byte { return eventPayload(t, validEvent("a", model.StatusPending)) },
			wantErr: ErrMalformedEvent,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := NewWorkerInstance(memory.NewStatsRepo(), nil, nil, retry.Strategy{Attempts: 1})
			err := w.HandleEvent(context.Background(), tt.payload(t))
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestWorker_HandleEvent_Idempotent(t *testing.T) {
	ctx := context.Background()
	stats := memory.NewStatsRepo()
	w := NewWorkerInstance(stats, nil, nil, retry.Strategy{Attempts: 1})

	payload := eventPayload(t, validEvent("a", model.StatusSucceeded))
	require.NoError(t, w.HandleEvent(ctx, payload))
	require.NoError(t, w.HandleEvent(ctx, payload))
	require.NoError(t, w.HandleEvent(ctx, eventPayload(t, validEvent("b", model.StatusFailed))))

	res, err := stats.GetStats(ctx, "user-1")
	require.NoError(t, err)
	require.Equal(t, int64(2), res.Total)
	require.Equal(t, int64(1), res.Succeeded)
	require.Equal(t, int64(1), res.Failed)
}

func TestWorker_StartWorker(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	calls := 0
	stats := &mockStats{applyFn: func(_ context.Context, ev model.JobEvent) (bool, error) {
		calls++
		return true, nil
	}}

	queue := make(chan kafkago.Message, 2)
	queue <- kafkago.Message{Key: []byte("ok"), Value: eventPayload(t, validEvent("ok", model.StatusSucceeded))}
	queue <- kafkago.Message{Key: []byte("garbage"), Value: []byte("not json")}
	close(queue)

	committer := &mockCommitter{}
	w := NewWorkerInstance(stats, queue, committer, retry.Strategy{Attempts: 2, Delay: time.Millisecond})
	require.NoError(t, w.StartWorker(ctx))

	require.Equal(t, []string{"ok", "garbage"}, committer.keys())
	require.Equal(t, 1, calls, "malformed event is not retried")
}

func TestWorker_StartWorker_StopsOnApplyFailure(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	calls := 0
	stats := &mockStats{applyFn: func(_ context.Context, ev model.JobEvent) (bool, error) {
		calls++
		if ev.JobID == "broken-db" {
			return false, errors.New("db down")
		}
		return true, nil
	}}

	queue := make(chan kafkago.Message, 3)
	queue <- kafkago.Message{Key: []byte("ok"), Value: eventPayload(t, validEvent("ok", model.StatusSucceeded))}
	queue <- kafkago.Message{Key: []byte("broken-db"), Offset: 7, Value: eventPayload(t, validEvent("broken-db", model.StatusSucceeded))}
	queue <- kafkago.Message{Key: []byte("after"), Value: eventPayload(t, validEvent("after", model.StatusSucceeded))}
	close(queue)

	committer := &mockCommitter{}
	w := NewWorkerInstance(stats, queue, committer, retry.Strategy{Attempts: 2, Delay: time.Millisecond})
	err := w.StartWorker(ctx)

	require.Error(t, err)
	require.Contains(t, err.Error(), "offset 7")
	require.Equal(t, []string{"ok"}, committer.keys(), "nothing after the failed event may be committed")
	require.Equal(t, 3, calls, "db failure is retried, later events are left in the queue")
}

func TestLocalPublisher(t *testing.T) {
	ctx := context.Background()
	stats := memory.NewStatsRepo()
	pub := NewLocalPublisher(stats)

	ev := validEvent("a", model.StatusSucceeded)
	require.NoError(t, pub.SendWithRetry(ctx, retry.Strategy{Attempts: 1}, []byte(ev.JobID), eventPayload(t, ev)))

	res, err := stats.GetStats(ctx, "user-1")
	require.NoError(t, err)
	require.Equal(t, int64(1), res.Succeeded)

	err = pub.SendWithRetry(ctx, retry.Strategy{Attempts: 3}, nil, []byte("bad"))
	require.ErrorIs(t, err, ErrMalformedEvent)
}
