package miniostorage

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"

	"github.com/UnendingLoop/Colorizer/internal/model"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/stretchr/testify/require"
)

// newTestStorage поднимает S3-заглушку, которая на всё отвечает пустым 404
func newTestStorage(t *testing.T) (*MinioImageStorage, *int32) {
	t.Helper()

	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(srv.Close)

	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	client, err := minio.New(u.Host, &minio.Options{
		Creds:  credentials.NewStaticV4("user", "pass", ""),
		Region: "us-east-1",
	})
	require.NoError(t, err)

	return &MinioImageStorage{bucket: "images", client: client}, &hits
}

func TestCheckKey(t *testing.T) {
	tests := []struct {
		key   string
		valid bool
	}{
		{"originals/3f1c.png", true},
		{"colorized/3f1c.jpg", true},
		{"originals/", false},
		{"originals/a/b.png", false},
		{"originals/../secret", false},
		{"/originals/a.png", false},
		{"thumbs/a.png", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			err := checkKey(tt.key)
			if tt.valid {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, model.ErrIncorrectKey)
		})
	}
}

func TestMinioImageStorage_ForeignKeyNeverSent(t *testing.T) {
	ctx := context.Background()
	s, hits := newTestStorage(t)

	require.ErrorIs(t, s.Put(ctx, "other/a.png", 1, model.PNG, bytes.NewReader([]byte{1})), model.ErrIncorrectKey)
	_, _, err := s.Get(ctx, "originals/../other/a.png")
	require.ErrorIs(t, err, model.ErrIncorrectKey)
	require.ErrorIs(t, s.Delete(ctx, "colorized/x/y.png"), model.ErrIncorrectKey)

	require.Zero(t, atomic.LoadInt32(hits))
}

func TestMinioImageStorage_Get_NotFound(t *testing.T) {
	s, hits := newTestStorage(t)

	_, _, err := s.Get(context.Background(), "colorized/missing.png")
	require.ErrorIs(t, err, model.ErrImageNotFound)
	require.NotZero(t, atomic.LoadInt32(hits))
}

func TestMinioImageStorage_Delete_MissingIsNoError(t *testing.T) {
	s, hits := newTestStorage(t)

	require.NoError(t, s.Delete(context.Background(), "originals/missing.png"))
	require.NotZero(t, atomic.LoadInt32(hits))
}
