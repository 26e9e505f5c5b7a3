// Package miniostorage provides structure to work with minio-storage
package miniostorage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/UnendingLoop/Colorizer/internal/config"
	"github.com/UnendingLoop/Colorizer/internal/model"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/wb-go/wbf/zlog"
)

type MinioImageStorage struct {
	bucket string
	client *minio.Client
}

func NewMinioClient(ctx context.Context, cfg config.MinioConfig) (*MinioImageStorage, error) {
	bucket := cfg.Bucket
	if bucket == "" {
		bucket = "default"
		zlog.Logger.Warn().Msgf("Bucket name is empty. Using default value %q...", bucket)
	}

	// подключаемся к минио - создаем клиента
	strg, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.User, cfg.Pass, ""),
		Secure: cfg.Secure,
	})
	if err != nil {
		return nil, err
	}

	// создаем бакет если его нет
	if err := ensureBucket(ctx, strg, bucket); err != nil {
		return nil, err
	}

	return &MinioImageStorage{bucket: bucket, client: strg}, nil
}

// Put пишет объект, ключи уникальны по id задачи и не перезаписываются
func (s *MinioImageStorage) Put(ctx context.Context, key string, size int64, contentType string, r io.Reader) error {
	if err := checkKey(key); err != nil {
		return err
	}
	if r == nil {
		return errors.New("nil reader passed to storage.Put")
	}

	if _, err := s.client.PutObject(ctx, s.bucket, key, r, size, minio.PutObjectOptions{
		ContentType:  contentType,
		CacheControl: "public, max-age=31536000, immutable",
	}); err != nil {
		return fmt.Errorf("failed to put %q into bucket %q: %w", key, s.bucket, err)
	}
	return nil
}

// Delete is idempotent: a missing object is not an error.
func (s *MinioImageStorage) Delete(ctx context.Context, key string) error {
	if err := checkKey(key); err != nil {
		return err
	}

	err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{})
	if err != nil && !isNoSuchKey(err) {
		return fmt.Errorf("failed to delete %q from bucket %q: %w", key, s.bucket, err)
	}
	return nil
}

func (s *MinioImageStorage) Get(ctx context.Context, key string) (io.ReadCloser, string, error) {
	if err := checkKey(key); err != nil {
		return nil, "", err
	}

	res, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, "", err
	}

	// GetObject ленивый - реальный запрос уходит на Stat
	info, err := res.Stat()
	if err != nil {
		_ = res.Close()
		if isNoSuchKey(err) {
			return nil, "", model.ErrImageNotFound
		}
		return nil, "", err
	}

	return res, info.ContentType, nil
}

// checkKey пускает в бакет только ключи вида originals/<name> и colorized/<name>
func checkKey(key string) error {
	if path.Clean(key) != key {
		return fmt.Errorf("%w: %q", model.ErrIncorrectKey, key)
	}
	for _, prefix := range []string{model.OriginalsPrefix, model.ColorizedPrefix} {
		if name, ok := strings.CutPrefix(key, prefix); ok && name != "" && !strings.Contains(name, "/") {
			return nil
		}
	}
	return fmt.Errorf("%w: %q", model.ErrIncorrectKey, key)
}

func isNoSuchKey(err error) bool {
	return minio.ToErrorResponse(err).Code == minio.NoSuchKey
}

func ensureBucket(ctx context.Context, client *minio.Client, bucket string) error {
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return err
	}

	if exists {
		return nil
	}

	return client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{})
}
