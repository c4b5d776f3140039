package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/thale-stt/thale/internal/audio"
	"github.com/thale-stt/thale/internal/jobs"
	"github.com/thale-stt/thale/internal/summarize"
	"github.com/thale-stt/thale/internal/transcribe"
	"github.com/thale-stt/thale/internal/whisper"
)

type errorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
	Code   string `json:"code"`
}

// classify maps a domain error to an HTTP status and response body.
func classify(err error) (int, errorResponse) {
	var (
		decodeErr    *audio.DecodeError
		loadErr      *whisper.ModelLoadError
		inferenceErr *transcribe.InferenceError
	)
	switch {
	case errors.As(err, &decodeErr):
		return http.StatusBadRequest, errorResponse{"Could not decode audio", err.Error(), "decode_error"}
	case errors.As(err, &loadErr):
		return http.StatusServiceUnavailable, errorResponse{"Speech model unavailable", err.Error(), "model_load_error"}
	case errors.As(err, &inferenceErr):
		return http.StatusInternalServerError, errorResponse{"Transcription failed", err.Error(), "inference_error"}
	case errors.Is(err, summarize.ErrUnavailable):
		return http.StatusServiceUnavailable, errorResponse{"Summarization unavailable", err.Error(), "summarizer_unavailable"}
	case errors.Is(err, summarize.ErrInvalidRequest):
		return http.StatusBadRequest, errorResponse{"Invalid request", err.Error(), "invalid_request"}
	case errors.Is(err, jobs.ErrNotFound):
		return http.StatusNotFound, errorResponse{"Transcription not found", "", "not_found"}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, errorResponse{"Request cancelled", err.Error(), "cancelled"}
	default:
		return http.StatusInternalServerError, errorResponse{"Internal server error", err.Error(), "internal_error"}
	}
}

func abortWithError(c *gin.Context, err error) {
	status, body := classify(err)
	c.AbortWithStatusJSON(status, body)
}

func abortWithStatus(c *gin.Context, status int, msg, detail, code string) {
	c.AbortWithStatusJSON(status, errorResponse{Error: msg, Detail: detail, Code: code})
}
