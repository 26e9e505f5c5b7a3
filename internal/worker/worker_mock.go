package worker

import (
	"context"
	"sync"

	"github.com/UnendingLoop/Colorizer/internal/model"
	kafkago "github.com/segmentio/kafka-go"
)

type mockStats struct {
	applyFn func(ctx context.Context, ev model.JobEvent) (bool, error)
}

func (m *mockStats) ApplyEvent(ctx context.Context, ev model.JobEvent) (bool, error) {
	return m.applyFn(ctx, ev)
}

//----------------------------------

type mockCommitter struct {
	mu        sync.Mutex
	committed []kafkago.Message
}

func (m *mockCommitter) Commit(_ context.Context, msg kafkago.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.committed = append(m.committed, msg)
	return nil
}

func (m *mockCommitter) keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	res := make([]string, 0, len(m.committed))
	for _, msg := range m.committed {
		res = append(res, string(msg.Key))
	}
	return res
}
