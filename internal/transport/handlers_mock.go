package transport

import (
	"context"
	"io"

	"github.com/UnendingLoop/Colorizer/internal/model"
	"github.com/gin-gonic/gin"
)

type mockColorizeService struct {
	submitFn func(ctx context.Context, req *model.SubmitRequest) (*model.Job, error)
}

func (m *mockColorizeService) Submit(ctx context.Context, req *model.SubmitRequest) (*model.Job, error) {
	return m.submitFn(ctx, req)
}

type mockHistoryService struct {
	getHistoryFn func(ctx context.Context, ownerID string, limit int) ([]model.Job, error)
	deleteJobFn  func(ctx context.Context, id, requester string) error
	loadImageFn  func(ctx context.Context, key string) (io.ReadCloser, string, error)
	getStatsFn   func(ctx context.Context, ownerID string) (*model.OwnerStats, error)
}

func (m *mockHistoryService) GetHistory(ctx context.Context, ownerID string, limit int) ([]model.Job, error) {
	return m.getHistoryFn(ctx, ownerID, limit)
}

func (m *mockHistoryService) DeleteJob(ctx context.Context, id, requester string) error {
	return m.deleteJobFn(ctx, id, requester)
}

func (m *mockHistoryService) LoadImage(ctx context.Context, key string) (io.ReadCloser, string, error) {
	return m.loadImageFn(ctx, key)
}

func (m *mockHistoryService) GetStats(ctx context.Context, ownerID string) (*model.OwnerStats, error) {
	return m.getStatsFn(ctx, ownerID)
}

func init() {
	gin.SetMode(gin.TestMode)
}
