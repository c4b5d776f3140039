package transcribe

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/thale-stt/thale/internal/audio"
	"github.com/thale-stt/thale/internal/metrics"
	"github.com/thale-stt/thale/internal/whisper"
)

const (
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// Orchestrator runs the chunk loop. One Orchestrator is shared by all
// requests; the slots channel bounds concurrent inference calls across runs.
type Orchestrator struct {
	models       Models
	chunkSeconds float64
	slots        chan struct{}
	metrics      *metrics.Metrics
}

type Option func(*Orchestrator)

// WithChunkSeconds sets the nominal chunk duration (default 30s).
func WithChunkSeconds(s float64) Option {
	return func(o *Orchestrator) { o.chunkSeconds = s }
}

// WithWorkers bounds how many inference calls may run at once.
func WithWorkers(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.slots = make(chan struct{}, n)
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

func New(models Models, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		models:       models,
		chunkSeconds: 30,
		slots:        make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// ChunkSeconds returns the configured chunk duration.
func (o *Orchestrator) ChunkSeconds() float64 { return o.chunkSeconds }

// Run transcribes w chunk by chunk, calling sink after each successful chunk.
// On an inference failure it returns *InferenceError; events already passed
// to sink stay valid. A nil sink is allowed.
func (o *Orchestrator) Run(ctx context.Context, w audio.Waveform, sink Sink) (Result, error) {
	return o.run(ctx, w, sink, false)
}

// run is Run with live ticks kept out of the run metrics and logged at debug.
func (o *Orchestrator) run(ctx context.Context, w audio.Waveform, sink Sink, live bool) (Result, error) {
	if w.Len() == 0 || w.SampleRate <= 0 {
		return Result{}, &audio.DecodeError{Reason: "no samples"}
	}
	rec, lvl := o.metrics, zerolog.InfoLevel
	if live {
		rec, lvl = nil, zerolog.DebugLevel
	}
	started := time.Now()
	rec.RecordRunStarted()

	eng, err := o.models.EnsureLoaded(ctx)
	if err != nil {
		rec.RecordRunFailed("model", time.Since(started).Seconds())
		return Result{}, err
	}

	chunks := audio.Plan(w, o.chunkSeconds)
	total := len(chunks)
	log.WithLevel(lvl).
		Float64("duration_sec", w.Duration()).
		Int("chunks", total).
		Float64("chunk_sec", o.chunkSeconds).
		Msg("transcribe: run started")

	var parts []string
	for _, c := range chunks {
		text, err := o.infer(ctx, eng, c.Samples(w))
		if err != nil {
			if ctx.Err() != nil {
				rec.RecordRunFailed("cancelled", time.Since(started).Seconds())
				return Result{}, ctx.Err()
			}
			rec.RecordRunFailed("inference", time.Since(started).Seconds())
			ierr := &InferenceError{Index: c.Index, Total: total, Err: err}
			log.Error().Err(err).Int("chunk", c.Index+1).Int("total", total).Msg("transcribe: chunk failed")
			return Result{}, ierr
		}
		if t := strings.TrimSpace(text); t != "" {
			parts = append(parts, t)
		}

		if sink != nil {
			sink(ProgressEvent{
				Status:          StatusProcessing,
				CurrentChunk:    c.Index + 1,
				TotalChunks:     total,
				ProgressPercent: float64(c.Index+1) / float64(total) * 100,
				Message: fmt.Sprintf("Processing %s - %s",
					audio.FormatClock(c.StartSeconds(w.SampleRate)),
					audio.FormatClock(c.EndSeconds(w.SampleRate))),
				PartialText: strings.Join(parts, " "),
			})
		}
		if (c.Index+1)%10 == 0 || c.Index+1 == total {
			log.Debug().Int("chunk", c.Index+1).Int("total", total).Msg("transcribe: progress")
		}
	}

	full := strings.Join(parts, " ")
	res := Result{
		Text:            full,
		DurationSeconds: w.Duration(),
		WordCount:       len(strings.Fields(full)),
		ChunksProcessed: total,
	}
	rec.RecordRunCompleted(time.Since(started).Seconds(), res.DurationSeconds)
	log.WithLevel(lvl).
		Int("words", res.WordCount).
		Dur("elapsed", time.Since(started)).
		Msg("transcribe: run complete")
	return res, nil
}

// infer runs one chunk on a separate goroutine. If ctx ends first the call
// keeps running until the engine returns; its result is dropped.
func (o *Orchestrator) infer(ctx context.Context, eng whisper.Engine, samples []float32) (string, error) {
	select {
	case o.slots <- struct{}{}:
	case <-ctx.Done():
		return "", ctx.Err()
	}

	type result struct {
		text string
		err  error
	}
	done := make(chan result, 1)
	go func() {
		defer func() { <-o.slots }()
		start := time.Now()
		text, err := eng.Transcribe(samples)
		o.metrics.RecordChunk(time.Since(start).Seconds())
		done <- result{text, err}
	}()

	select {
	case r := <-done:
		return r.text, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
