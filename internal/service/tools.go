package service

import (
	"errors"
	"path"
	"strings"

	"github.com/UnendingLoop/Colorizer/internal/model"
)

const maxHistoryLimit = 100

func normalizeOwner(ownerID string) string {
	if o := strings.TrimSpace(ownerID); o != "" {
		return o
	}
	return model.AnonymousOwner
}

func normalizeLimit(limit, def int) int {
	if def <= 0 || def > maxHistoryLimit {
		def = maxHistoryLimit
	}
	switch {
	case limit <= 0:
		return def
	case limit > maxHistoryLimit:
		return maxHistoryLimit
	default:
		return limit
	}
}

func originalKey(id string) string {
	return model.OriginalsPrefix + id + model.GetImageFileExt[model.PNG]
}

func colorizedKey(id, ext string) string {
	return model.ColorizedPrefix + id + ext
}

// validateKey пускает только ключи вида originals/<name> и colorized/<name>
func validateKey(key string) error {
	if key == "" || path.Clean(key) != key || strings.Contains(key, "..") {
		return model.ErrIncorrectKey
	}
	for _, prefix := range []string{model.OriginalsPrefix, model.ColorizedPrefix} {
		name, ok := strings.CutPrefix(key, prefix)
		if ok && name != "" && !strings.Contains(name, "/") {
			return nil
		}
	}
	return model.ErrIncorrectKey
}

func errorDetail(kind model.ErrorKind, modelID string, cause error) string {
	switch kind {
	case model.KindModelUnavailable:
		return "Model " + modelID + " not found or not available for image-to-image colorization"
	case model.KindRateLimited:
		return "API rate limit exceeded. Please try again later."
	case model.KindModelLoading:
		return "Model is loading. Please try again in a few moments."
	case model.KindUpstreamTimeout:
		return "Colorization service did not respond in time"
	default:
		msg := "Colorization service error"
		if cause != nil && !errors.Is(cause, model.ErrUpstreamTimeout) {
			msg += ": " + cause.Error()
		}
		return msg
	}
}
