// Package service provides business-logic for the app
package service

import (
	"context"
	"io"
	"time"

	"github.com/UnendingLoop/Colorizer/internal/config"
	"github.com/wb-go/wbf/retry"
)

// Colorizer - контракт inference-клиента
type Colorizer interface {
	Colorize(ctx context.Context, image []byte, modelID string) ([]byte, error)
}

// EventPublisher - контракт для публикации событий по job'ам
type EventPublisher interface {
	SendWithRetry(ctx context.Context, strategy retry.Strategy, key []byte, v []byte) error
}

// ImageStorage - контракт для работы с хранилищем
type ImageStorage interface {
	Delete(ctx context.Context, key string) error
	Get(ctx context.Context, key string) (output io.ReadCloser, ctype string, err error)
	Put(ctx context.Context, key string, size int64, contentType string, r io.Reader) error
}

// Options is the part of config the services need; it is copied, never shared.
type Options struct {
	DefaultModelID     string
	MaxImageDimension  int
	HistoryLimit       int
	DeleteRequireOwner bool
}

func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		DefaultModelID:     cfg.Inference.DefaultModelID,
		MaxImageDimension:  cfg.MaxImageDimension,
		HistoryLimit:       cfg.HistoryLimit,
		DeleteRequireOwner: cfg.DeleteRequireOwner,
	}
}

// Стратегия ретрая отправки события в очередь - ответ клиенту ждёт её завершения
var publishStrategy = retry.Strategy{
	Attempts: 3,
	Delay:    500 * time.Millisecond,
	Backoff:  2,
}
