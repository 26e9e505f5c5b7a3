package service

import (
	"context"
	"io"

	"github.com/UnendingLoop/Colorizer/internal/model"
	"github.com/wb-go/wbf/retry"
)

// MOCK REPOSITORY

type mockRepo struct {
	createFn      func(ctx context.Context, job *model.Job) error
	getFn         func(ctx context.Context, id string) (*model.Job, error)
	listByOwnerFn func(ctx context.Context, ownerID string, limit int) ([]model.Job, error)
	deleteFn      func(ctx context.Context, id string) error
}

func (m *mockRepo) Create(ctx context.Context, job *model.Job) error {
	return m.createFn(ctx, job)
}

func (m *mockRepo) Get(ctx context.Context, id string) (*model.Job, error) {
	return m.getFn(ctx, id)
}

func (m *mockRepo) ListByOwner(ctx context.Context, ownerID string, limit int) ([]model.Job, error) {
	return m.listByOwnerFn(ctx, ownerID, limit)
}

func (m *mockRepo) Delete(ctx context.Context, id string) error {
	return m.deleteFn(ctx, id)
}

// MOCK STATS

type mockStats struct {
	applyFn func(ctx context.Context, ev model.JobEvent) (bool, error)
	getFn   func(ctx context.Context, ownerID string) (*model.OwnerStats, error)
}

func (m *mockStats) ApplyEvent(ctx context.Context, ev model.JobEvent) (bool, error) {
	return m.applyFn(ctx, ev)
}

func (m *mockStats) GetStats(ctx context.Context, ownerID string) (*model.OwnerStats, error) {
	return m.getFn(ctx, ownerID)
}

// MOCK STORAGE

type mockStorage struct {
	putFn    func(ctx context.Context, key string, size int64, ct string, r io.Reader) error
	getFn    func(ctx context.Context, key string) (io.ReadCloser, string, error)
	deleteFn func(ctx context.Context, key string) error
}

func (m *mockStorage) Put(ctx context.Context, key string, size int64, ct string, r io.Reader) error {
	return m.putFn(ctx, key, size, ct, r)
}

func (m *mockStorage) Get(ctx context.Context, key string) (io.ReadCloser, string, error) {
	return m.getFn(ctx, key)
}

func (m *mockStorage) Delete(ctx context.Context, key string) error {
	return m.deleteFn(ctx, key)
}

// MOCK PUBLISHER

type mockPublisher struct {
	sendFn func(ctx context.Context, s retry.Strategy, key []byte, v []byte) error
}

func (m *mockPublisher) SendWithRetry(ctx context.Context, s retry.Strategy, key []byte, v []byte) error {
	return m.sendFn(ctx, s, key, v)
}

// MOCK INFERENCE

type mockColorizer struct {
	calls      int
	colorizeFn func(ctx context.Context, image []byte, modelID string) ([]byte, error)
}

func (m *mockColorizer) Colorize(ctx context.Context, image []byte, modelID string) ([]byte, error) {
	m.calls++
	return m.colorizeFn(ctx, image, modelID)
}
