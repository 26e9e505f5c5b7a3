package service

import (
	"context"
	"errors"
	"io"

	"github.com/UnendingLoop/Colorizer/internal/model"
	"github.com/UnendingLoop/Colorizer/internal/mwlogger"
	"github.com/UnendingLoop/Colorizer/internal/repository"
	"github.com/google/uuid"
)

// HistoryService reads and deletes persisted jobs and serves their images.
type HistoryService struct {
	repo    repository.JobRepo
	stats   repository.StatsRepo
	storage ImageStorage
	opts    Options
}

func NewHistoryService(repo repository.JobRepo, stats repository.StatsRepo, strg ImageStorage, opts Options) *HistoryService {
	return &HistoryService{
		repo:    repo,
		stats:   stats,
		storage: strg,
		opts:    opts,
	}
}

func (h *HistoryService) GetHistory(ctx context.Context, ownerID string, limit int) ([]model.Job, error) {
	logger := mwlogger.LoggerFromContext(ctx)

	res, err := h.repo.ListByOwner(ctx, normalizeOwner(ownerID), normalizeLimit(limit, h.opts.HistoryLimit))
	if err != nil {
		logger.Error().Err(err).Msg("Failed to fetch colorization history from DB")
		return nil, model.ErrStoreUnavailable
	}
	if res == nil {
		res = []model.Job{}
	}
	return res, nil
}

// DeleteJob removes the record and then, best effort, its images.
// Ownership is checked only when DeleteRequireOwner is set.
func (h *HistoryService) DeleteJob(ctx context.Context, id, requester string) error {
	logger := mwlogger.LoggerFromContext(ctx)

	if err := uuid.Validate(id); err != nil {
		return model.ErrJobNotFound // 404, а не 400: такой записи не может существовать
	}
	if h.opts.DeleteRequireOwner && requester == "" {
		return model.ErrMissingRequester
	}

	job, err := h.repo.Get(ctx, id)
	if err != nil {
		switch {
		case errors.Is(err, model.ErrJobNotFound):
			return model.ErrJobNotFound // 404
		default:
			logger.Error().Err(err).Str("job_id", id).Msg("Failed to fetch job from DB")
			return model.ErrStoreUnavailable
		}
	}

	if h.opts.DeleteRequireOwner && job.OwnerID != requester {
		return model.ErrForbidden
	}

	if err := h.repo.Delete(ctx, id); err != nil {
		switch {
		case errors.Is(err, model.ErrJobNotFound):
			return model.ErrJobNotFound // удалили параллельно
		default:
			logger.Error().Err(err).Str("job_id", id).Msg("Failed to delete job from DB")
			return model.ErrStoreUnavailable
		}
	}

	for _, key := range []string{job.OriginalImage, job.ColorizedImage} {
		if key == "" {
			continue
		}
		if err := h.storage.Delete(ctx, key); err != nil {
			logger.Warn().Err(err).Str("key", key).Msg("Failed to delete image from Storage")
		}
	}
	return nil
}

// LoadImage streams one stored image; the caller closes the reader.
func (h *HistoryService) LoadImage(ctx context.Context, key string) (io.ReadCloser, string, error) {
	logger := mwlogger.LoggerFromContext(ctx)

	if err := validateKey(key); err != nil {
		return nil, "", err
	}

	data, cType, err := h.storage.Get(ctx, key)
	if err != nil {
		switch {
		case errors.Is(err, model.ErrImageNotFound):
			return nil, "", model.ErrImageNotFound
		default:
			logger.Error().Err(err).Str("key", key).Msg("Failed to fetch image from Storage")
			return nil, "", model.ErrStoreUnavailable
		}
	}
	return data, cType, nil
}

func (h *HistoryService) GetStats(ctx context.Context, ownerID string) (*model.OwnerStats, error) {
	logger := mwlogger.LoggerFromContext(ctx)

	owner := normalizeOwner(ownerID)
	stats, err := h.stats.GetStats(ctx, owner)
	if err != nil {
		logger.Error().Err(err).Str("owner_id", owner).Msg("Failed to fetch owner stats from DB")
		return nil, model.ErrStoreUnavailable
	}
	return stats, nil
}
