// Package audiotest builds WAV fixtures for tests.
package audiotest

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// WAV encodes interleaved 16-bit samples as a PCM WAV file and returns its bytes.
func WAV(tb testing.TB, samples []int, sampleRate, channels int) []byte {
	tb.Helper()
	path := filepath.Join(tb.TempDir(), "fixture.wav")
	f, err := os.Create(path)
	if err != nil {
		tb.Fatalf("create wav: %v", err)
	}
	enc := wav.NewEncoder(f, sampleRate, 16, channels, 1)
	buf := &goaudio.IntBuffer{
		Data:           samples,
		Format:         &goaudio.Format{NumChannels: channels, SampleRate: sampleRate},
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		tb.Fatalf("write wav: %v", err)
	}
	if err := enc.Close(); err != nil {
		tb.Fatalf("close wav encoder: %v", err)
	}
	if err := f.Close(); err != nil {
		tb.Fatalf("close wav: %v", err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		tb.Fatalf("read wav: %v", err)
	}
	return b
}

// Sine returns a mono 440Hz tone of the given length at half amplitude.
func Sine(seconds float64, sampleRate int) []int {
	n := int(seconds * float64(sampleRate))
	out := make([]int, n)
	for i := range out {
		out[i] = int(16000 * math.Sin(2*math.Pi*440*float64(i)/float64(sampleRate)))
	}
	return out
}

// MonoWAV is WAV for a mono tone of the given length.
func MonoWAV(tb testing.TB, seconds float64, sampleRate int) []byte {
	tb.Helper()
	return WAV(tb, Sine(seconds, sampleRate), sampleRate, 1)
}
