// Package transcribe drives chunked transcription of a waveform through the
// shared whisper model and reports progress as each chunk completes.
package transcribe

import (
	"context"
	"fmt"

	"github.com/thale-stt/thale/internal/whisper"
)

// ProgressEvent reports one completed chunk. CurrentChunk is 1-based.
type ProgressEvent struct {
	Status          string  `json:"status"`
	CurrentChunk    int     `json:"current_chunk"`
	TotalChunks     int     `json:"total_chunks"`
	ProgressPercent float64 `json:"progress_percent"`
	Message         string  `json:"message"`
	PartialText     string  `json:"partial_text"`
}

// Result is the outcome of a successful run.
type Result struct {
	Text            string  `json:"text"`
	DurationSeconds float64 `json:"duration_seconds"`
	WordCount       int     `json:"word_count"`
	ChunksProcessed int     `json:"chunks_processed"`
}

// Sink receives progress events in chunk order. It must not block for long.
type Sink func(ProgressEvent)

// InferenceError reports the chunk whose inference failed. Index is 0-based.
type InferenceError struct {
	Index int
	Total int
	Err   error
}

func (e *InferenceError) Error() string {
	return fmt.Sprintf("inference failed on chunk %d/%d: %v", e.Index+1, e.Total, e.Err)
}

func (e *InferenceError) Unwrap() error { return e.Err }

// Models hands out the loaded engine, loading it on first use.
type Models interface {
	EnsureLoaded(ctx context.Context) (whisper.Engine, error)
}
