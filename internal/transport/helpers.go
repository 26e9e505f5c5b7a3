package transport

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/UnendingLoop/Colorizer/internal/model"
	"github.com/gin-gonic/gin"
	"github.com/wb-go/wbf/ginext"
	"github.com/wb-go/wbf/zlog"
)

func errorCodeDefiner(err error) int {
	switch {
	case errors.Is(err, model.ErrCommon500),
		errors.Is(err, model.ErrStoreUnavailable):
		return 500
	case errors.Is(err, model.ErrFileTooLarge):
		return 413
	case errors.Is(err, model.ErrForbidden):
		return 403
	case errors.Is(err, model.ErrJobNotFound),
		errors.Is(err, model.ErrImageNotFound),
		errors.Is(err, model.ErrModelUnavailable):
		return 404
	case errors.Is(err, model.ErrInvalidInput):
		return 400
	case errors.Is(err, model.ErrRateLimited):
		return 429
	case errors.Is(err, model.ErrModelLoading):
		return 503
	case errors.Is(err, model.ErrUpstreamTimeout):
		return 504
	case errors.Is(err, model.ErrUpstreamError):
		return 502
	default:
		return 500
	}
}

func writeError(ctx *ginext.Context, err error) {
	ctx.JSON(errorCodeDefiner(err), map[string]string{"detail": err.Error()})
}

func closeFileFlow(res io.ReadCloser) {
	if res == nil {
		return
	}
	if err := res.Close(); err != nil {
		zlog.Logger.Warn().Err(err).Msg("Handler failed to close fileflow")
	}
}

// LimitBody rejects bodies over maxBytes; multipart overhead is allowed on top of the file itself.
func LimitBody(maxBytes int64) gin.HandlerFunc {
	const multipartOverhead = 1 << 20
	limit := maxBytes + multipartOverhead

	return func(ctx *gin.Context) {
		if ctx.Request.ContentLength > limit {
			ctx.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, map[string]string{"detail": model.ErrFileTooLarge.Error()})
			return
		}
		ctx.Request.Body = http.MaxBytesReader(ctx.Writer, ctx.Request.Body, limit)
		ctx.Next()
	}
}

// RegisterRoutes mounts every endpoint on r; r is usually the gin group for API_BASE_PATH.
func RegisterRoutes(r gin.IRouter, h *Handler, maxFileSize int64) {
	r.GET("/", h.Root)
	r.GET("/health", h.Health)
	r.POST("/colorize", LimitBody(maxFileSize), h.Colorize)
	r.GET("/colorizations/:user_id", h.History)
	r.DELETE("/colorizations/:id", h.Delete)
	r.GET("/images/*key", h.LoadImage)
	r.GET("/stats/:user_id", h.Stats)
}

type jobResponse struct {
	ID             string          `json:"id"`
	UserID         string          `json:"user_id"`
	OriginalImage  string          `json:"original_image"`
	ColorizedImage string          `json:"colorized_image,omitempty"`
	ModelID        string          `json:"model_id"`
	Status         model.Status    `json:"status"`
	ErrorKind      model.ErrorKind `json:"error_kind,omitempty"`
	ErrorDetail    string          `json:"error_detail,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

type urlBuilder struct {
	publicBase string
	basePath   string
}

func (u urlBuilder) image(key string) string {
	if key == "" {
		return ""
	}
	return u.publicBase + u.basePath + "/images/" + key
}

func (u urlBuilder) job(j *model.Job) jobResponse {
	return jobResponse{
		ID:             j.ID,
		UserID:         j.OwnerID,
		OriginalImage:  u.image(j.OriginalImage),
		ColorizedImage: u.image(j.ColorizedImage),
		ModelID:        j.ModelID,
		Status:         j.Status,
		ErrorKind:      j.ErrorKind,
		ErrorDetail:    j.ErrorDetail,
		CreatedAt:      j.CreatedAt,
	}
}
