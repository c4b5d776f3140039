package audio

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
)

// Fallback decodes a file on disk into mono samples at sampleRate.
type Fallback interface {
	DecodeFile(ctx context.Context, path string, sampleRate int) ([]float32, error)
}

// Decoder normalizes uploaded audio into a mono Waveform at SampleRate.
// WAV is decoded in-process; everything else goes through Fallback.
type Decoder struct {
	SampleRate int
	Fallback   Fallback
	// TempDir holds transient copies of byte input for the fallback path.
	// Empty uses os.TempDir.
	TempDir string
}

func NewDecoder(sampleRate int) *Decoder {
	return &Decoder{SampleRate: sampleRate, Fallback: FFmpeg{}}
}

// Decode decodes raw file bytes. Input the fallback cannot read is a
// *DecodeError; failing to stage the temporary copy is an I/O error and is
// returned as is.
func (d *Decoder) Decode(ctx context.Context, data []byte) (Waveform, error) {
	if len(data) == 0 {
		return Waveform{}, &DecodeError{Reason: "empty input"}
	}
	w, err := d.fast(data)
	if err == nil {
		return w, nil
	}
	log.Debug().Err(err).Int("bytes", len(data)).Msg("audio: fast decode failed, using fallback")
	return d.fallbackBytes(ctx, data)
}

// DecodeFile decodes an audio file on disk.
func (d *Decoder) DecodeFile(ctx context.Context, path string) (Waveform, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Waveform{}, &DecodeError{Reason: "read file", Err: err}
	}
	if len(data) == 0 {
		return Waveform{}, &DecodeError{Reason: "empty input"}
	}
	if w, err := d.fast(data); err == nil {
		return w, nil
	}
	return d.fallbackPath(ctx, path)
}

func (d *Decoder) fast(data []byte) (Waveform, error) {
	samples, sr, err := decodeWAV(data)
	if err != nil {
		return Waveform{}, err
	}
	if sr != d.SampleRate {
		samples = ResampleLinear(samples, sr, d.SampleRate)
	}
	return d.waveform(samples)
}

func (d *Decoder) fallbackBytes(ctx context.Context, data []byte) (Waveform, error) {
	if d.Fallback == nil {
		return Waveform{}, &DecodeError{Reason: "unsupported format"}
	}
	tmp, err := os.CreateTemp(d.TempDir, "thale-audio-*")
	if err != nil {
		return Waveform{}, fmt.Errorf("create temp audio: %w", err)
	}
	path := tmp.Name()
	defer os.Remove(path)

	_, err = tmp.Write(data)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return Waveform{}, fmt.Errorf("write temp audio: %w", err)
	}
	return d.fallbackPath(ctx, path)
}

func (d *Decoder) fallbackPath(ctx context.Context, path string) (Waveform, error) {
	if d.Fallback == nil {
		return Waveform{}, &DecodeError{Reason: "unsupported format"}
	}
	samples, err := d.Fallback.DecodeFile(ctx, path, d.SampleRate)
	if err != nil {
		if ctx.Err() != nil {
			return Waveform{}, ctx.Err()
		}
		return Waveform{}, &DecodeError{Reason: "unsupported or corrupt audio", Err: err}
	}
	return d.waveform(samples)
}

func (d *Decoder) waveform(samples []float32) (Waveform, error) {
	if len(samples) == 0 {
		return Waveform{}, &DecodeError{Reason: "no samples"}
	}
	return Waveform{Samples: samples, SampleRate: d.SampleRate}, nil
}
