// Package worker consumes job events and maintains per-owner colorization stats
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/UnendingLoop/Colorizer/internal/model"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/wb-go/wbf/retry"
	"github.com/wb-go/wbf/zlog"
)

var ErrMalformedEvent = errors.New("malformed job event")

// StatsApplier - контракт хранилища счётчиков
type StatsApplier interface {
	ApplyEvent(ctx context.Context, ev model.JobEvent) (bool, error)
}

// Committer is satisfied by *wbfkafka.Consumer.
type Committer interface {
	Commit(ctx context.Context, msg kafkago.Message) error
}

type Worker struct {
	stats     StatsApplier
	queue     <-chan kafkago.Message
	committer Committer
	strategy  retry.Strategy
}

func NewWorkerInstance(stats StatsApplier, q <-chan kafkago.Message, committer Committer, strategy retry.Strategy) *Worker {
	return &Worker{stats: stats, queue: q, committer: committer, strategy: strategy}
}

// StartWorker reads the queue until ctx is done or the channel is closed.
// A message is committed once it is applied or found to be malformed. When an event
// still cannot be applied after all retries the worker stops and returns the error:
// committing a later offset of the same partition would skip the failed event for good.
func (w *Worker) StartWorker(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-w.queue:
			if !ok {
				zlog.Logger.Info().Msg("Queue channel closed, stopping worker...")
				return nil
			}

			err := w.applyWithRetry(ctx, msg.Value)
			switch {
			case err == nil:
			case errors.Is(err, ErrMalformedEvent):
				zlog.Logger.Error().Err(err).Str("key", string(msg.Key)).Msg("Skipping malformed job event")
			case ctx.Err() != nil:
				return nil
			default:
				zlog.Logger.Error().Err(err).Str("key", string(msg.Key)).Int64("offset", msg.Offset).Msg("Failed to apply job event")
				return fmt.Errorf("job event at offset %d is not applied: %w", msg.Offset, err)
			}

			if err := w.committer.Commit(ctx, msg); err != nil {
				zlog.Logger.Error().Err(err).Str("key", string(msg.Key)).Msg("Failed to commit queue-message")
			}
		}
	}
}

// applyWithRetry повторяет только сбои хранилища, битое событие сразу выходит из цикла
func (w *Worker) applyWithRetry(ctx context.Context, payload []byte) error {
	strategy := w.strategy
	strategy.Attempts = max(strategy.Attempts, 1)

	var malformed error
	err := retry.DoContext(ctx, strategy, func() error {
		err := w.HandleEvent(ctx, payload)
		if errors.Is(err, ErrMalformedEvent) {
			malformed = err
			return nil
		}
		return err
	})
	if malformed != nil {
		return malformed
	}
	return err
}

// HandleEvent decodes one JobEvent and applies it; re-applying the same job is a no-op.
func (w *Worker) HandleEvent(ctx context.Context, payload []byte) error {
	var ev model.JobEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if err := validateEvent(ev); err != nil {
		return err
	}

	applied, err := w.stats.ApplyEvent(ctx, ev)
	if err != nil {
		return fmt.Errorf("failed to apply event for job %q: %w", ev.JobID, err)
	}
	if !applied {
		zlog.Logger.Debug().Str("job_id", ev.JobID).Msg("Job event already applied")
	}
	return nil
}

func validateEvent(ev model.JobEvent) error {
	if ev.JobID == "" || ev.OwnerID == "" || ev.CreatedAt.IsZero() {
		return fmt.Errorf("%w: job_id, user_id and created_at are required", ErrMalformedEvent)
	}
	if ev.Status != model.StatusSucceeded && ev.Status != model.StatusFailed {
		return fmt.Errorf("%w: unexpected status %q", ErrMalformedEvent, ev.Status)
	}
	return nil
}

// LocalPublisher applies events in-process when no broker is configured.
// It has the producer's SendWithRetry signature so the API can use either.
type LocalPublisher struct {
	worker *Worker
}

func NewLocalPublisher(stats StatsApplier) *LocalPublisher {
	return &LocalPublisher{worker: &Worker{stats: stats}}
}

func (p *LocalPublisher) SendWithRetry(ctx context.Context, strategy retry.Strategy, _ []byte, v []byte) error {
	w := *p.worker
	w.strategy = strategy
	return w.applyWithRetry(ctx, v)
}
