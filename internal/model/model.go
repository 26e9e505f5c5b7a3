// Package model provides data-structs for internal app-usage
package model

import (
	"errors"
	"fmt"
	"time"
)

type (
	Status    string
	ErrorKind string
)

const (
	StatusPending   Status = "pending" // только в процессе обработки, в базу не пишется
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

const (
	KindModelUnavailable ErrorKind = "model_unavailable"
	KindUpstreamTimeout  ErrorKind = "upstream_timeout"
	KindUpstreamError    ErrorKind = "upstream_error"
	KindRateLimited      ErrorKind = "rate_limited"
	KindModelLoading     ErrorKind = "model_loading"
)

const AnonymousOwner = "anonymous"

//---------------------

// Job is one colorization attempt and its terminal outcome.
// OriginalImage and ColorizedImage hold blob-storage keys.
type Job struct {
	ID             string    `json:"id"`
	OwnerID        string    `json:"user_id"`
	OriginalImage  string    `json:"original_image"`
	ColorizedImage string    `json:"colorized_image,omitempty"`
	ModelID        string    `json:"model_id"`
	Status         Status    `json:"status"`
	ErrorKind      ErrorKind `json:"error_kind,omitempty"`
	ErrorDetail    string    `json:"error_detail,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Validate checks the terminal-record invariants before the record is persisted.
func (j *Job) Validate() error {
	switch j.Status {
	case StatusSucceeded:
		if j.ColorizedImage == "" || j.ErrorDetail != "" {
			return fmt.Errorf("%w: succeeded job %q must carry a result and no error", ErrInvalidRecord, j.ID)
		}
	case StatusFailed:
		if j.ColorizedImage != "" || j.ErrorDetail == "" {
			return fmt.Errorf("%w: failed job %q must carry an error and no result", ErrInvalidRecord, j.ID)
		}
	default:
		return fmt.Errorf("%w: job %q has non-terminal status %q", ErrInvalidRecord, j.ID, j.Status)
	}
	if j.ID == "" || j.OriginalImage == "" || j.CreatedAt.IsZero() {
		return fmt.Errorf("%w: job is missing id, original image or creation time", ErrInvalidRecord)
	}
	return nil
}

// SubmitRequest carries the raw upload; its format is detected from the bytes during normalization.
type SubmitRequest struct {
	OwnerID string
	ModelID string
	Image   []byte
}

// JobEvent is published once per persisted job
type JobEvent struct {
	JobID     string    `json:"job_id"`
	OwnerID   string    `json:"user_id"`
	ModelID   string    `json:"model_id"`
	Status    Status    `json:"status"`
	ErrorKind ErrorKind `json:"error_kind,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func NewJobEvent(j *Job) JobEvent {
	return JobEvent{
		JobID:     j.ID,
		OwnerID:   j.OwnerID,
		ModelID:   j.ModelID,
		Status:    j.Status,
		ErrorKind: j.ErrorKind,
		CreatedAt: j.CreatedAt,
	}
}

type OwnerStats struct {
	OwnerID   string     `json:"user_id"`
	Total     int64      `json:"total"`
	Succeeded int64      `json:"succeeded"`
	Failed    int64      `json:"failed"`
	LastJobAt *time.Time `json:"last_job_at,omitempty"`
}

// ------------------

var (
	ErrCommon500        error = errors.New("something went wrong. Try again later")   // 500
	ErrStoreUnavailable error = errors.New("storage is unavailable. Try again later") // 500
	ErrInvalidInput     error = errors.New("invalid input")                           // 400
	ErrJobNotFound      error = errors.New("not found")                               // 404
	ErrImageNotFound    error = errors.New("image not found")                         // 404
	ErrForbidden        error = errors.New("colorization belongs to another user")    // 403
	ErrInvalidRecord    error = errors.New("invalid job record")                      // 500, не должна доходить до клиента

	ErrEmptyImage        = fmt.Errorf("%w: image payload is empty", ErrInvalidInput)
	ErrUnsupportedFormat = fmt.Errorf("%w: invalid file format. Allowed formats: JPEG, PNG, WebP", ErrInvalidInput)
	ErrCorruptedImage    = fmt.Errorf("%w: invalid or corrupted image file", ErrInvalidInput)
	ErrMissingRequester  = fmt.Errorf("%w: user_id is required to delete a colorization", ErrInvalidInput)
	ErrIncorrectKey      = fmt.Errorf("%w: incorrect image reference", ErrInvalidInput)
	ErrIncorrectLimit    = fmt.Errorf("%w: limit must be a positive integer", ErrInvalidInput)
	ErrFileRequired      = fmt.Errorf("%w: file is required", ErrInvalidInput)

	ErrFileTooLarge error = errors.New("file is too large") // 413
)

// ошибки inference-клиента
var (
	ErrModelUnavailable = errors.New("model is not available for image-to-image") // 404
	ErrUpstreamTimeout  = errors.New("inference service timed out")               // 504
	ErrUpstreamError    = errors.New("inference service error")                   // 502

	ErrRateLimited  = fmt.Errorf("%w: rate limit exceeded", ErrUpstreamError) // 429
	ErrModelLoading = fmt.Errorf("%w: model is loading", ErrUpstreamError)    // 503
)

// KindOf collapses an inference error into its kind, most specific first.
func KindOf(err error) ErrorKind {
	switch {
	case errors.Is(err, ErrModelUnavailable):
		return KindModelUnavailable
	case errors.Is(err, ErrUpstreamTimeout):
		return KindUpstreamTimeout
	case errors.Is(err, ErrRateLimited):
		return KindRateLimited
	case errors.Is(err, ErrModelLoading):
		return KindModelLoading
	default:
		return KindUpstreamError
	}
}

// ErrOfKind is the reverse of KindOf: a failed job's kind back to its sentinel.
func ErrOfKind(kind ErrorKind) error {
	switch kind {
	case KindModelUnavailable:
		return ErrModelUnavailable
	case KindUpstreamTimeout:
		return ErrUpstreamTimeout
	case KindRateLimited:
		return ErrRateLimited
	case KindModelLoading:
		return ErrModelLoading
	default:
		return ErrUpstreamError
	}
}

//--------------------

const (
	JPEG = "image/jpeg"
	PNG  = "image/png"
	WEBP = "image/webp"
	GIF  = "image/gif"
)

var GetImageFileExt = map[string]string{
	JPEG: ".jpg",
	PNG:  ".png",
	WEBP: ".webp",
	GIF:  ".gif",
}

var InImageTypeMap = map[string]bool{
	JPEG: true,
	PNG:  true,
	WEBP: true,
}

const (
	OriginalsPrefix = "originals/"
	ColorizedPrefix = "colorized/"
)
