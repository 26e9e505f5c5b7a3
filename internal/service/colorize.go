package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/UnendingLoop/Colorizer/internal/imageproc"
	"github.com/UnendingLoop/Colorizer/internal/model"
	"github.com/UnendingLoop/Colorizer/internal/mwlogger"
	"github.com/UnendingLoop/Colorizer/internal/repository"
	"github.com/google/uuid"
)

// ColorizeService turns one upload into one persisted terminal job.
type ColorizeService struct {
	repo      repository.JobRepo
	storage   ImageStorage
	inference Colorizer
	publisher EventPublisher
	opts      Options

	now   func() time.Time
	newID func() string
}

func NewColorizeService(repo repository.JobRepo, strg ImageStorage, inf Colorizer, pub EventPublisher, opts Options) *ColorizeService {
	return &ColorizeService{
		repo:      repo,
		storage:   strg,
		inference: inf,
		publisher: pub,
		opts:      opts,
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

// Submit validates and normalizes the upload, calls the model once and persists the outcome.
// A failed colorization is returned as a failed job, not as an error.
func (s *ColorizeService) Submit(ctx context.Context, req *model.SubmitRequest) (*model.Job, error) {
	logger := mwlogger.LoggerFromContext(ctx)

	if req == nil || len(req.Image) == 0 {
		return nil, model.ErrEmptyImage
	}

	normalized, err := imageproc.Normalize(req.Image, s.opts.MaxImageDimension)
	if err != nil {
		if errors.Is(err, model.ErrInvalidInput) {
			return nil, err // 400
		}
		logger.Error().Err(err).Msg("Failed to normalize uploaded image")
		return nil, model.ErrCommon500
	}

	job := &model.Job{
		ID:        s.newID(),
		OwnerID:   normalizeOwner(req.OwnerID),
		ModelID:   strings.TrimSpace(req.ModelID),
		Status:    model.StatusPending,
		CreatedAt: s.now().UTC().Truncate(time.Microsecond),
	}
	if job.ModelID == "" {
		job.ModelID = s.opts.DefaultModelID
	}
	logger = logger.With().Str("job_id", job.ID).Str("model_id", job.ModelID).Logger()

	// клиент может отвалиться, но начатая работа доводится до записи
	work := context.WithoutCancel(ctx)
	var written []string

	origKey := originalKey(job.ID)
	if err := s.storage.Put(work, origKey, int64(len(normalized)), model.PNG, bytes.NewReader(normalized)); err != nil {
		logger.Error().Err(err).Msg("Failed to save original image in Storage")
		return nil, model.ErrStoreUnavailable
	}
	job.OriginalImage = origKey
	written = append(written, origKey)

	result, infErr := s.inference.Colorize(work, normalized, job.ModelID)
	if infErr == nil {
		mime, ext, err := imageproc.DetectResult(result)
		if err != nil {
			infErr = err
		} else {
			resKey := colorizedKey(job.ID, ext)
			if err := s.storage.Put(work, resKey, int64(len(result)), mime, bytes.NewReader(result)); err != nil {
				logger.Error().Err(err).Msg("Failed to save colorized image in Storage")
				s.cleanup(work, written)
				return nil, model.ErrStoreUnavailable
			}
			written = append(written, resKey)
			job.ColorizedImage = resKey
			job.Status = model.StatusSucceeded
		}
	}

	if infErr != nil {
		job.Status = model.StatusFailed
		job.ErrorKind = model.KindOf(infErr)
		job.ErrorDetail = errorDetail(job.ErrorKind, job.ModelID, infErr)
		logger.Warn().Err(infErr).Str("error_kind", string(job.ErrorKind)).Msg("Colorization failed")
	}

	if err := job.Validate(); err != nil {
		logger.Error().Err(err).Msg("Built an invalid job record")
		s.cleanup(work, written)
		return nil, model.ErrCommon500
	}

	if err := s.repo.Create(work, job); err != nil {
		logger.Error().Err(err).Msg("Failed to save job in DB")
		s.cleanup(work, written)
		return nil, model.ErrStoreUnavailable
	}

	s.publish(work, job)
	return job, nil
}

func (s *ColorizeService) publish(ctx context.Context, job *model.Job) {
	logger := mwlogger.LoggerFromContext(ctx)
	if s.publisher == nil {
		return
	}

	payload, err := json.Marshal(model.NewJobEvent(job))
	if err != nil {
		logger.Error().Err(err).Str("job_id", job.ID).Msg("Failed to marshal job event")
		return
	}
	if err := s.publisher.SendWithRetry(ctx, publishStrategy, []byte(job.ID), payload); err != nil {
		logger.Error().Err(err).Str("job_id", job.ID).Msg("Failed to publish job event")
	}
}

// cleanup убирает уже записанные блобы, если запись в базу так и не появилась
func (s *ColorizeService) cleanup(ctx context.Context, keys []string) {
	logger := mwlogger.LoggerFromContext(ctx)
	for _, k := range keys {
		if err := s.storage.Delete(ctx, k); err != nil {
			logger.Warn().Err(err).Str("key", k).Msg("Failed to remove orphaned image from Storage")
		}
	}
}
