// Package storage builds the blob storage that keeps original and colorized images
package storage

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/UnendingLoop/Colorizer/internal/config"
	"github.com/UnendingLoop/Colorizer/internal/storage/memstorage"
	"github.com/UnendingLoop/Colorizer/internal/storage/miniostorage"
	"github.com/wb-go/wbf/retry"
	"github.com/wb-go/wbf/zlog"
)

// ImageStorage - контракт для работы с хранилищем картинок
type ImageStorage interface {
	Delete(ctx context.Context, key string) error
	Get(ctx context.Context, key string) (output io.ReadCloser, ctype string, err error)
	Put(ctx context.Context, key string, size int64, contentType string, r io.Reader) error
}

func NewImgStorage(ctx context.Context, cfg *config.Config, attempts int, delay time.Duration) (ImageStorage, error) {
	if cfg.StorageDriver == config.StorageDriverMemory {
		zlog.Logger.Warn().Msg("Using in-memory image storage: images are lost on restart")
		return memstorage.New(), nil
	}

	var (
		client  *miniostorage.MinioImageStorage
		attempt int
	)
	err := retry.DoContext(ctx, retry.Strategy{Attempts: max(attempts, 1), Delay: delay, Backoff: 1}, func() error {
		attempt++
		zlog.Logger.Info().Msg("Connecting to IMG-storage...")
		c, err := miniostorage.NewMinioClient(ctx, cfg.Minio)
		if err != nil {
			zlog.Logger.Warn().Err(err).Int("attempt", attempt).Msgf("Failed to init connection to IMG-storage. Next retry in %v...", delay)
			return err
		}
		client = c
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("img-storage is unreachable after %d attempts: %w", attempt, err)
	}

	zlog.Logger.Info().Msg("Successfully connected IMG-storage!")
	return client, nil
}
