// Package transport provides methods for processing requests from endpoints
package transport

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/UnendingLoop/Colorizer/internal/model"
	"github.com/UnendingLoop/Colorizer/internal/mwlogger"
	"github.com/wb-go/wbf/ginext"
)

type ColorizeService interface {
	Submit(ctx context.Context, req *model.SubmitRequest) (*model.Job, error)
}

type HistoryService interface {
	GetHistory(ctx context.Context, ownerID string, limit int) ([]model.Job, error)
	DeleteJob(ctx context.Context, id, requester string) error
	LoadImage(ctx context.Context, key string) (io.ReadCloser, string, error) // поток картинки из хранилища
	GetStats(ctx context.Context, ownerID string) (*model.OwnerStats, error)
}

// Info describes the running service for / and /health.
type Info struct {
	Name    string
	Version string
}

type Handler struct {
	colorizer   ColorizeService
	history     HistoryService
	info        Info
	urls        urlBuilder
	maxFileSize int64
}

// NewHandler wires both services. publicBaseURL and basePath are used to render image references.
func NewHandler(colorizer ColorizeService, history HistoryService, info Info, publicBaseURL, basePath string, maxFileSize int64) *Handler {
	return &Handler{
		colorizer:   colorizer,
		history:     history,
		info:        info,
		urls:        urlBuilder{publicBase: publicBaseURL, basePath: basePath},
		maxFileSize: maxFileSize,
	}
}

func (h *Handler) Root(ctx *ginext.Context) {
	ctx.JSON(http.StatusOK, map[string]any{
		"message": h.info.Name + " API",
		"version": h.info.Version,
		"endpoints": []string{
			"POST " + h.urls.basePath + "/colorize",
			"GET " + h.urls.basePath + "/colorizations/{user_id}",
			"DELETE " + h.urls.basePath + "/colorizations/{id}",
			"GET " + h.urls.basePath + "/images/{key}",
			"GET " + h.urls.basePath + "/stats/{user_id}",
			"GET " + h.urls.basePath + "/health",
		},
	})
}

func (h *Handler) Health(ctx *ginext.Context) {
	ctx.JSON(http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": h.info.Name,
		"version": h.info.Version,
	})
}

func (h *Handler) Colorize(ctx *ginext.Context) {
	data, err := h.readUpload(ctx)
	if err != nil {
		writeError(ctx, err)
		return
	}

	req := &model.SubmitRequest{
		OwnerID: ctx.PostForm("user_id"),
		ModelID: ctx.PostForm("model_id"),
		Image:   data,
	}

	job, err := h.colorizer.Submit(ctx.Request.Context(), req)
	if err != nil {
		writeError(ctx, err)
		return
	}

	// неудачная колоризация сохранена в истории, но клиенту отдаём ошибку
	if job.Status == model.StatusFailed {
		ctx.JSON(errorCodeDefiner(model.ErrOfKind(job.ErrorKind)), map[string]string{"detail": job.ErrorDetail})
		return
	}

	ctx.JSON(http.StatusOK, h.urls.job(job))
}

// readUpload достаёт файл из multipart-формы, не читая больше maxFileSize байт
func (h *Handler) readUpload(ctx *ginext.Context) ([]byte, error) {
	file, header, err := ctx.Request.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, model.ErrFileTooLarge
		}
		return nil, model.ErrFileRequired
	}
	defer closeFileFlow(file)

	if h.maxFileSize > 0 && header.Size > h.maxFileSize {
		return nil, model.ErrFileTooLarge
	}

	data, err := io.ReadAll(io.LimitReader(file, h.maxFileSize+1))
	if err != nil {
		return nil, model.ErrFileRequired
	}
	if h.maxFileSize > 0 && int64(len(data)) > h.maxFileSize {
		return nil, model.ErrFileTooLarge
	}
	return data, nil
}

func (h *Handler) History(ctx *ginext.Context) {
	limit := 0
	if raw := ctx.Query("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 {
			writeError(ctx, model.ErrIncorrectLimit)
			return
		}
		limit = v
	}

	res, err := h.history.GetHistory(ctx.Request.Context(), ctx.Param("user_id"), limit)
	if err != nil {
		writeError(ctx, err)
		return
	}

	out := make([]jobResponse, 0, len(res))
	for i := range res {
		out = append(out, h.urls.job(&res[i]))
	}
	ctx.JSON(http.StatusOK, out)
}

func (h *Handler) Delete(ctx *ginext.Context) {
	requester := ctx.Query("user_id")
	if requester == "" {
		requester = ctx.GetHeader("X-User-Id")
	}

	if err := h.history.DeleteJob(ctx.Request.Context(), ctx.Param("id"), requester); err != nil {
		writeError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, map[string]string{"message": "Colorization deleted successfully"})
}

func (h *Handler) LoadImage(ctx *ginext.Context) {
	key := strings.TrimPrefix(ctx.Param("key"), "/")

	res, cType, err := h.history.LoadImage(ctx.Request.Context(), key)
	if err != nil {
		writeError(ctx, err)
		return
	}
	defer closeFileFlow(res)

	ctx.Writer.Header().Set("Content-Type", cType)
	ctx.Writer.Header().Set("Cache-Control", "public, max-age=86400, immutable")
	ctx.Writer.WriteHeader(http.StatusOK)
	if n, err := io.Copy(ctx.Writer, res); err != nil {
		logger := mwlogger.LoggerFromContext(ctx.Request.Context())
		logger.Warn().Err(err).Int64("written", n).Str("key", key).Msg("Failed to stream image")
	}
}

func (h *Handler) Stats(ctx *ginext.Context) {
	res, err := h.history.GetStats(ctx.Request.Context(), ctx.Param("user_id"))
	if err != nil {
		writeError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, res)
}
