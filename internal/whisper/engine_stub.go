//go:build !whisper_cpp

package whisper

import "github.com/rs/zerolog/log"

// stubEngine stands in for whisper.cpp in builds without cgo. Every chunk
// transcribes to silence.
type stubEngine struct{}

func NewEngine(opts Options) (Engine, error) {
	log.Warn().Str("model", opts.ModelPath).Msg("whisper: built without whisper_cpp tag, transcriptions will be empty")
	return &stubEngine{}, nil
}

func (e *stubEngine) Close() error                                 { return nil }
func (e *stubEngine) Transcribe(samples []float32) (string, error) { return "", nil }
