// Package inference wraps the remote image-to-image endpoint: timeout, retry and error mapping live here
package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/UnendingLoop/Colorizer/internal/config"
	"github.com/UnendingLoop/Colorizer/internal/imageproc"
	"github.com/UnendingLoop/Colorizer/internal/model"
	"github.com/UnendingLoop/Colorizer/internal/mwlogger"
	"github.com/wb-go/wbf/retry"
)

const (
	maxErrorBody  = 64 << 10
	maxResultBody = 32 << 20
)

// Error carries the upstream status next to one of the model.Err* kinds.
type Error struct {
	Kind       error
	StatusCode int
	Message    string
	Err        error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.Error())
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (status %d)", e.StatusCode)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Client talks to <baseURL>/<model_id>.
type Client struct {
	http    *http.Client
	baseURL string
	token   string
	timeout time.Duration
	policy  RetryPolicy

	maxResult int64
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func WithRetryPolicy(p RetryPolicy) Option {
	return func(c *Client) { c.policy = p }
}

// WithMaxResultSize caps how many bytes of a produced image are read.
func WithMaxResultSize(n int64) Option {
	return func(c *Client) { c.maxResult = n }
}

func New(cfg config.InferenceConfig, opts ...Option) *Client {
	policy := DefaultRetryPolicy()
	policy.Strategy = retry.Strategy{
		Attempts: cfg.RetryAttempts,
		Delay:    cfg.RetryDelay,
		Backoff:  policy.Strategy.Backoff,
	}

	c := &Client{
		http:    &http.Client{},
		baseURL: strings.TrimRight(cfg.URL, "/"),
		token:   cfg.Token,
		timeout: cfg.Timeout,
		policy:  policy,

		maxResult: maxResultBody,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Colorize sends the image to the model and returns the produced image bytes unchanged.
// The timeout bounds the whole call including retries.
func (c *Client) Colorize(ctx context.Context, image []byte, modelID string) ([]byte, error) {
	logger := mwlogger.LoggerFromContext(ctx)

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var result []byte
	err := c.policy.run(ctx,
		func(attempt int, prev error) {
			logger.Warn().Err(prev).Int("attempt", attempt).Str("model_id", modelID).Msg("Retrying inference call")
		},
		func() error {
			out, err := c.call(ctx, image, modelID)
			if err != nil {
				return err
			}
			result = out
			return nil
		})
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
			return nil, &Error{Kind: model.ErrUpstreamTimeout, Message: fmt.Sprintf("no response within %s", c.timeout)}
		}
		var upErr *Error
		if !errors.As(err, &upErr) {
			return nil, &Error{Kind: model.ErrUpstreamError, Err: err}
		}
		return nil, err
	}
	return result, nil
}

func (c *Client) call(ctx context.Context, image []byte, modelID string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+modelID, bytes.NewReader(image))
	if err != nil {
		return nil, &Error{Kind: model.ErrUpstreamError, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", imageproc.Sniff(image))
	req.Header.Set("Accept", model.PNG)

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, &Error{Kind: model.ErrUpstreamError, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, classify(resp.StatusCode, upstreamMessage(body))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxResult+1))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, &Error{Kind: model.ErrUpstreamError, StatusCode: resp.StatusCode, Err: err}
	}
	if int64(len(body)) > c.maxResult {
		return nil, &Error{Kind: model.ErrUpstreamError, StatusCode: resp.StatusCode,
			Message: fmt.Sprintf("result exceeds %d bytes", c.maxResult)}
	}
	if _, _, err := imageproc.DetectResult(body); err != nil {
		return nil, &Error{Kind: model.ErrUpstreamError, StatusCode: resp.StatusCode, Message: upstreamMessage(body)}
	}
	return body, nil
}

var unavailableMarkers = []string{"not supported", "not deployed", "unsupported", "does not exist", "not found"}

func classify(status int, msg string) error {
	kind := model.ErrUpstreamError
	lower := strings.ToLower(msg)

	switch status {
	case http.StatusNotFound, http.StatusGone:
		kind = model.ErrModelUnavailable
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		for _, m := range unavailableMarkers {
			if strings.Contains(lower, m) {
				kind = model.ErrModelUnavailable
				break
			}
		}
	case http.StatusTooManyRequests:
		kind = model.ErrRateLimited
	case http.StatusServiceUnavailable:
		if strings.Contains(lower, "loading") {
			kind = model.ErrModelLoading
		}
	}
	return &Error{Kind: kind, StatusCode: status, Message: msg}
}

// upstreamMessage вытаскивает поле error из JSON-ответа, иначе отдаёт обрезанный текст
func upstreamMessage(body []byte) string {
	var payload struct {
		Error any `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error != nil {
		switch v := payload.Error.(type) {
		case string:
			return v
		case []any:
			parts := make([]string, 0, len(v))
			for _, p := range v {
				parts = append(parts, fmt.Sprint(p))
			}
			return strings.Join(parts, "; ")
		}
	}

	msg := strings.TrimSpace(string(body))
	if len(msg) > 300 {
		msg = msg[:300]
	}
	return msg
}
