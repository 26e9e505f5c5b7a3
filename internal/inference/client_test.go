package inference

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/UnendingLoop/Colorizer/internal/config"
	"github.com/UnendingLoop/Colorizer/internal/model"
	"github.com/stretchr/testify/require"
	"github.com/wb-go/wbf/retry"
)

func pngBytes(t *testing.T) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Set(1, 1, color.RGBA{R: 200, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func newTestClient(url string, timeout time.Duration) *Client {
	return New(config.InferenceConfig{
		Token:          "secret",
		URL:            url,
		DefaultModelID: "m",
		Timeout:        timeout,
		RetryAttempts:  2,
		RetryDelay:     10 * time.Millisecond,
	})
}

// respond отдаёт сценарий ответов по номеру вызова, последний повторяется
func respond(t *testing.T, hits *int32, steps ...func(w http.ResponseWriter, r *http.Request)) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := int(atomic.AddInt32(hits, 1))
		if n > len(steps) {
			n = len(steps)
		}
		steps[n-1](w, r)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func status(code int, body string) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_, _ = io.WriteString(w, body)
	}
}

func image200(data []byte) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(data)
	}
}

func TestColorize_Success(t *testing.T) {
	result := pngBytes(t)
	var hits int32
	var gotAuth, gotPath, gotType string
	srv := respond(t, &hits, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		gotType = r.Header.Get("Content-Type")
		image200(result)(w, r)
	})

	out, err := newTestClient(srv.URL, time.Second).Colorize(context.Background(), pngBytes(t), "org/model-x")
	require.NoError(t, err)
	require.Equal(t, result, out)
	require.Equal(t, int32(1), hits)
	require.Equal(t, "Bearer secret", gotAuth)
	require.Equal(t, "/org/model-x", gotPath)
	require.Equal(t, model.PNG, gotType)
}

func TestColorize_ErrorMapping(t *testing.T) {
	tests := []struct {
		name     string
		handler  func(http.ResponseWriter, *http.Request)
		wantKind error
		notKind  error
		wantHits int32
	}{
		{
			name:     "404 model unavailable is never retried",
			handler:  status(http.StatusNotFound, `{"error":"Model org/x does not exist"}`),
			wantKind: model.ErrModelUnavailable,
			wantHits: 1,
		},
		{
			name:     "410 gone",
			handler:  status(http.StatusGone, `gone`),
			wantKind: model.ErrModelUnavailable,
			wantHits: 1,
		},
		{
			name:     "400 task not supported",
			handler:  status(http.StatusBadRequest, `{"error":"Model org/x is not supported for task image-to-image"}`),
			wantKind: model.ErrModelUnavailable,
			wantHits: 1,
		},
		{
			name:     "400 other reason",
			handler:  status(http.StatusBadRequest, `{"error":"bad image"}`),
			wantKind: model.ErrUpstreamError,
			notKind:  model.ErrModelUnavailable,
			wantHits: 1,
		},
		{
			name:     "429 rate limited is not retried",
			handler:  status(http.StatusTooManyRequests, `{"error":"Rate limit reached"}`),
			wantKind: model.ErrRateLimited,
			wantHits: 1,
		},
		{
			name:     "500 plain upstream error",
			handler:  status(http.StatusInternalServerError, `boom`),
			wantKind: model.ErrUpstreamError,
			notKind:  model.ErrModelLoading,
			wantHits: 1,
		},
		{
			name:     "502 retried once",
			handler:  status(http.StatusBadGateway, `bad gateway`),
			wantKind: model.ErrUpstreamError,
			wantHits: 2,
		},
		{
			name:     "503 loading retried once",
			handler:  status(http.StatusServiceUnavailable, `{"error":"Model org/x is currently loading","estimated_time":20}`),
			wantKind: model.ErrModelLoading,
			wantHits: 2,
		},
		{
			name:     "200 with non-image body",
			handler:  status(http.StatusOK, `{"generated_text":"oops"}`),
			wantKind: model.ErrUpstreamError,
			wantHits: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var hits int32
			srv := respond(t, &hits, tt.handler)

			out, err := newTestClient(srv.URL, 5*time.Second).Colorize(context.Background(), pngBytes(t), "org/x")
			require.Nil(t, out)
			require.ErrorIs(t, err, tt.wantKind)
			if tt.notKind != nil {
				require.NotErrorIs(t, err, tt.notKind)
			}
			require.Equal(t, tt.wantHits, atomic.LoadInt32(&hits))

			var upErr *Error
			require.ErrorAs(t, err, &upErr)
			require.NotZero(t, upErr.StatusCode)
		})
	}
}

func TestColorize_LoadingThenSuccess(t *testing.T) {
	result := pngBytes(t)
	var hits int32
	srv := respond(t, &hits,
		status(http.StatusServiceUnavailable, `{"error":"Model is currently loading"}`),
		image200(result),
	)

	out, err := newTestClient(srv.URL, 5*time.Second).Colorize(context.Background(), pngBytes(t), "m")
	require.NoError(t, err)
	require.Equal(t, result, out)
	require.Equal(t, int32(2), hits)
}

func TestColorize_DroppedConnectionRetried(t *testing.T) {
	result := pngBytes(t)
	var hits int32
	srv := respond(t, &hits,
		func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.Copy(io.Discard, r.Body)
			conn, _, err := w.(http.Hijacker).Hijack()
			if err == nil {
				_ = conn.Close()
			}
		},
		image200(result),
	)

	out, err := newTestClient(srv.URL, 5*time.Second).Colorize(context.Background(), pngBytes(t), "m")
	require.NoError(t, err)
	require.Equal(t, result, out)
	require.Equal(t, int32(2), hits)
}

func TestColorize_Timeout(t *testing.T) {
	var hits int32
	srv := respond(t, &hits, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})

	start := time.Now()
	_, err := newTestClient(srv.URL, 100*time.Millisecond).Colorize(context.Background(), pngBytes(t), "m")
	require.ErrorIs(t, err, model.ErrUpstreamTimeout)
	require.NotErrorIs(t, err, model.ErrUpstreamError)
	require.Less(t, time.Since(start), time.Second)
	require.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestColorize_NoRetryWithSingleAttempt(t *testing.T) {
	var hits int32
	srv := respond(t, &hits, status(http.StatusBadGateway, `bad gateway`))

	c := New(config.InferenceConfig{Token: "t", URL: srv.URL, Timeout: time.Second, RetryAttempts: 1},
		WithRetryPolicy(RetryPolicy{Strategy: retry.Strategy{Attempts: 1}}))

	_, err := c.Colorize(context.Background(), pngBytes(t), "m")
	require.ErrorIs(t, err, model.ErrUpstreamError)
	require.Equal(t, int32(1), hits)
}

func TestColorize_ResultTooLarge(t *testing.T) {
	result := pngBytes(t)
	var hits int32
	srv := respond(t, &hits, image200(result))

	c := New(config.InferenceConfig{Token: "t", URL: srv.URL, Timeout: time.Second, RetryAttempts: 2},
		WithMaxResultSize(int64(len(result)-1)))

	_, err := c.Colorize(context.Background(), pngBytes(t), "m")
	require.ErrorIs(t, err, model.ErrUpstreamError)
	require.Contains(t, err.Error(), "result exceeds")
	require.Equal(t, int32(1), hits, "oversized result is not retried")

	out, err := New(config.InferenceConfig{Token: "t", URL: srv.URL, Timeout: time.Second},
		WithMaxResultSize(int64(len(result)))).Colorize(context.Background(), pngBytes(t), "m")
	require.NoError(t, err)
	require.Equal(t, result, out)
}

func TestColorize_NoDelayAfterLastAttempt(t *testing.T) {
	var hits int32
	srv := respond(t, &hits, status(http.StatusBadGateway, `bad gateway`))

	c := New(config.InferenceConfig{Token: "t", URL: srv.URL, Timeout: 5 * time.Second},
		WithRetryPolicy(RetryPolicy{Strategy: retry.Strategy{Attempts: 2, Delay: 300 * time.Millisecond, Backoff: 2}}))

	start := time.Now()
	_, err := c.Colorize(context.Background(), pngBytes(t), "m")
	elapsed := time.Since(start)

	require.ErrorIs(t, err, model.ErrUpstreamError)
	require.NotErrorIs(t, err, model.ErrUpstreamTimeout)
	require.Equal(t, int32(2), hits)
	require.GreaterOrEqual(t, elapsed, 300*time.Millisecond)
	require.Less(t, elapsed, 750*time.Millisecond, "final failure returns without another delay")
}

func TestColorize_FinalErrorNotMaskedByDeadline(t *testing.T) {
	var hits int32
	srv := respond(t, &hits, status(http.StatusBadGateway, `bad gateway`))

	// задержка после последней попытки вышла бы за дедлайн
	c := New(config.InferenceConfig{Token: "t", URL: srv.URL, Timeout: 400 * time.Millisecond},
		WithRetryPolicy(RetryPolicy{Strategy: retry.Strategy{Attempts: 2, Delay: 100 * time.Millisecond, Backoff: 5}}))

	_, err := c.Colorize(context.Background(), pngBytes(t), "m")
	require.ErrorIs(t, err, model.ErrUpstreamError)
	require.NotErrorIs(t, err, model.ErrUpstreamTimeout)
	require.Equal(t, int32(2), hits)
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"model unavailable", &Error{Kind: model.ErrModelUnavailable, StatusCode: 404}, false},
		{"rate limited", &Error{Kind: model.ErrRateLimited, StatusCode: 429}, false},
		{"timeout", &Error{Kind: model.ErrUpstreamTimeout}, false},
		{"deadline", fmt.Errorf("post: %w", context.DeadlineExceeded), false},
		{"loading", &Error{Kind: model.ErrModelLoading, StatusCode: 503}, true},
		{"bad gateway", &Error{Kind: model.ErrUpstreamError, StatusCode: 502}, true},
		{"gateway timeout", &Error{Kind: model.ErrUpstreamError, StatusCode: 504}, true},
		{"internal error", &Error{Kind: model.ErrUpstreamError, StatusCode: 500}, false},
		{"conn reset", &Error{Kind: model.ErrUpstreamError, Err: syscall.ECONNRESET}, true},
		{"conn refused", &Error{Kind: model.ErrUpstreamError, Err: &net.OpError{Op: "dial", Err: syscall.ECONNREFUSED}}, true},
		{"eof", &Error{Kind: model.ErrUpstreamError, Err: io.EOF}, true},
		{"random", errors.New("random"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}
