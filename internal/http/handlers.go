package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/thale-stt/thale/internal/jobs"
	"github.com/thale-stt/thale/internal/summarize"
	"github.com/thale-stt/thale/internal/transcribe"
	"github.com/thale-stt/thale/internal/whisper"
)

// GET /
func (s *Service) handleRoot(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":        "THALE API",
		"description": "Speech-to-Text Transcription Service",
		"version":     Version,
	})
}

// GET /api/health
func (s *Service) handleHealth(c *gin.Context) {
	st := s.deps.Models.Status()
	c.JSON(http.StatusOK, gin.H{
		"status":        "ok",
		"version":       Version,
		"gpu_available": st.Device.Accelerator || s.deps.GPUAvailable(),
		"model_loaded":  st.State == whisper.Loaded,
		"timestamp":     time.Now().UTC(),
	})
}

func modelStatus(st whisper.Status) gin.H {
	return gin.H{
		"state":       st.State.String(),
		"device":      st.Device.Name,
		"accelerator": st.Device.Accelerator,
		"description": st.Device.Description,
		"loads":       st.Loads,
	}
}

// GET /api/model/status
func (s *Service) handleModelStatus(c *gin.Context) {
	c.JSON(http.StatusOK, modelStatus(s.deps.Models.Status()))
}

// POST /api/model/load
func (s *Service) handleModelLoad(c *gin.Context) {
	if _, err := s.deps.Models.EnsureLoaded(c.Request.Context()); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, modelStatus(s.deps.Models.Status()))
}

// POST /api/model/unload
func (s *Service) handleModelUnload(c *gin.Context) {
	if err := s.deps.Models.Unload(c.Request.Context()); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, modelStatus(s.deps.Models.Status()))
}

type upload struct {
	name            string
	ext             string
	data            []byte
	language        string
	generateSummary bool
}

// readUpload validates and reads the multipart "file" field. On failure it
// has already written the error response.
func (s *Service) readUpload(c *gin.Context) (upload, bool) {
	cfg := s.deps.Config.Upload
	limit := cfg.MaxSizeBytes()
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit+1<<20)

	fh, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			abortWithStatus(c, http.StatusRequestEntityTooLarge, "File too large",
				fmt.Sprintf("maximum upload size is %d MB", cfg.MaxSizeMB), "file_too_large")
			return upload{}, false
		}
		abortWithStatus(c, http.StatusBadRequest, "No file provided", err.Error(), "missing_file")
		return upload{}, false
	}
	if strings.TrimSpace(fh.Filename) == "" {
		abortWithStatus(c, http.StatusBadRequest, "No filename provided", "", "missing_filename")
		return upload{}, false
	}
	ext := strings.ToLower(filepath.Ext(fh.Filename))
	if !slices.Contains(cfg.Extensions(), ext) {
		abortWithStatus(c, http.StatusBadRequest, "Unsupported file type",
			fmt.Sprintf("file type '%s' not allowed. Allowed types: %s", ext, cfg.AllowedExtensions), "unsupported_type")
		return upload{}, false
	}
	if fh.Size > limit {
		abortWithStatus(c, http.StatusRequestEntityTooLarge, "File too large",
			fmt.Sprintf("maximum upload size is %d MB", cfg.MaxSizeMB), "file_too_large")
		return upload{}, false
	}

	f, err := fh.Open()
	if err != nil {
		abortWithError(c, fmt.Errorf("open upload: %w", err))
		return upload{}, false
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		abortWithError(c, fmt.Errorf("read upload: %w", err))
		return upload{}, false
	}

	summary, _ := strconv.ParseBool(c.DefaultPostForm("generate_summary", "false"))
	return upload{
		name:            fh.Filename,
		ext:             ext,
		data:            data,
		language:        c.DefaultPostForm("language", s.deps.Config.Whisper.Language),
		generateSummary: summary,
	}, true
}

func (s *Service) saveRecording(id string, up upload) {
	if s.deps.Recordings == nil {
		return
	}
	if _, err := s.deps.Recordings.Save(id, up.ext, up.data); err != nil {
		log.Warn().Err(err).Str("id", id).Msg("failed to save recording")
	}
}

func outcome(r transcribe.Result) jobs.Outcome {
	return jobs.Outcome{
		Text:            r.Text,
		DurationSeconds: r.DurationSeconds,
		WordCount:       r.WordCount,
		ChunksProcessed: r.ChunksProcessed,
	}
}

// POST /api/transcription/upload
func (s *Service) handleUpload(c *gin.Context) {
	up, ok := s.readUpload(c)
	if !ok {
		return
	}
	job := s.deps.Jobs.Create(up.name)
	logger := log.With().Str("id", job.ID).Str("file", up.name).Logger()
	logger.Info().Int("bytes", len(up.data)).Str("language", up.language).Msg("received file")
	s.saveRecording(job.ID, up)

	ctx := c.Request.Context()
	wf, err := s.deps.Decoder.Decode(ctx, up.data)
	if err != nil {
		_ = s.deps.Jobs.Fail(job.ID, err)
		logger.Warn().Err(err).Msg("decode failed")
		abortWithError(c, err)
		return
	}

	_ = s.deps.Jobs.Start(job.ID)
	res, err := s.deps.Orchestrator.Run(ctx, wf, nil)
	if err != nil {
		_ = s.deps.Jobs.Fail(job.ID, err)
		logger.Error().Err(err).Msg("transcription failed")
		abortWithError(c, err)
		return
	}
	_ = s.deps.Jobs.Complete(job.ID, outcome(res))

	if up.generateSummary {
		s.attachSummary(ctx, job.ID, res.Text)
	}
	out, err := s.deps.Jobs.Get(job.ID)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (s *Service) attachSummary(ctx context.Context, id, text string) {
	if s.deps.Summarizer == nil || !s.deps.Summarizer.Available() {
		log.Warn().Str("id", id).Msg("summary requested but summarizer is not configured")
		return
	}
	res, err := s.deps.Summarizer.Summarize(ctx, summarize.Request{Text: text, Style: string(summarize.StyleMeetingNotes)})
	if err != nil {
		log.Warn().Err(err).Str("id", id).Msg("summary generation failed")
		return
	}
	_ = s.deps.Jobs.SetSummary(id, res.Summary)
}

// sseEmitter writes a run as server-sent events and records the outcome.
type sseEmitter struct {
	c    *gin.Context
	jobs *jobs.Store
	id   string
}

func (e *sseEmitter) Progress(ev transcribe.ProgressEvent) error {
	e.c.SSEvent("progress", ev)
	e.c.Writer.Flush()
	return e.c.Request.Context().Err()
}

func (e *sseEmitter) Complete(r transcribe.Result) error {
	if err := e.jobs.Complete(e.id, outcome(r)); err != nil {
		return err
	}
	job, err := e.jobs.Get(e.id)
	if err != nil {
		return err
	}
	e.c.SSEvent("complete", job)
	e.c.Writer.Flush()
	return e.c.Request.Context().Err()
}

func (e *sseEmitter) Fail(cause error) error {
	_ = e.jobs.Fail(e.id, cause)
	_, body := classify(cause)
	e.c.SSEvent("error", body)
	e.c.Writer.Flush()
	return e.c.Request.Context().Err()
}

// POST /api/transcription/upload/stream
func (s *Service) handleUploadStream(c *gin.Context) {
	up, ok := s.readUpload(c)
	if !ok {
		return
	}
	job := s.deps.Jobs.Create(up.name)
	logger := log.With().Str("id", job.ID).Str("file", up.name).Logger()
	logger.Info().Int("bytes", len(up.data)).Msg("received file for streaming")
	s.saveRecording(job.ID, up)

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	em := &sseEmitter{c: c, jobs: s.deps.Jobs, id: job.ID}
	if err := em.Progress(transcribe.ProgressEvent{
		Status:      transcribe.StatusProcessing,
		TotalChunks: 1,
		Message:     "Starting transcription...",
	}); err != nil {
		_ = s.deps.Jobs.Fail(job.ID, err)
		return
	}

	ctx := c.Request.Context()
	wf, err := s.deps.Decoder.Decode(ctx, up.data)
	if err != nil {
		logger.Warn().Err(err).Msg("decode failed")
		_ = em.Fail(err)
		return
	}

	_ = s.deps.Jobs.Start(job.ID)
	if _, err := s.deps.Orchestrator.Stream(ctx, wf, em); err != nil {
		if j, gerr := s.deps.Jobs.Get(job.ID); gerr == nil && j.Status == jobs.StatusProcessing {
			_ = s.deps.Jobs.Fail(job.ID, err)
		}
		logger.Warn().Err(err).Msg("streaming transcription ended with error")
	}
}

// GET /api/transcription/:id
func (s *Service) handleGetTranscription(c *gin.Context) {
	job, err := s.deps.Jobs.Get(c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

type summarizeRequest struct {
	Text      string `json:"text" binding:"required,min=10"`
	Style     string `json:"style"`
	MaxLength int    `json:"max_length" binding:"omitempty,min=100,max=2000"`
	Prompt    string `json:"prompt"`
}

// POST /api/summarization/
func (s *Service) handleSummarize(c *gin.Context) {
	var req summarizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithStatus(c, http.StatusUnprocessableEntity, "Validation error", err.Error(), "validation_error")
		return
	}
	if s.deps.Summarizer == nil || !s.deps.Summarizer.Available() {
		abortWithError(c, summarize.ErrUnavailable)
		return
	}
	log.Info().Int("chars", len(req.Text)).Str("style", req.Style).Msg("summarization request")

	res, err := s.deps.Summarizer.Summarize(c.Request.Context(), summarize.Request{
		Text:      req.Text,
		Style:     req.Style,
		MaxLength: req.MaxLength,
		Prompt:    req.Prompt,
	})
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
