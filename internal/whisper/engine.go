// Package whisper owns the speech model: the Engine that turns one mono
// 16kHz chunk into text, and the Manager that loads a single shared Engine
// on demand.
package whisper

// Engine turns one chunk of model-rate audio into text. The Manager owns
// the single instance; build with -tags whisper_cpp for real inference.
type Engine interface {
	// Transcribe decodes one chunk of PCM32F samples at the model rate with
	// fixed language and the transcribe task. Silence yields "".
	Transcribe(samples []float32) (string, error)
	Close() error
}

// Options configures engine construction.
type Options struct {
	ModelPath string
	Language  string
	Threads   int
	Device    Device
}
