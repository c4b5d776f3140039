package audio

import "fmt"

// Chunk is the half-open sample range [Start, End) of a waveform.
type Chunk struct {
	Index int
	Start int
	End   int
}

// Len returns the chunk length in samples.
func (c Chunk) Len() int { return c.End - c.Start }

// Samples slices the chunk out of w without copying.
func (c Chunk) Samples(w Waveform) []float32 { return w.Samples[c.Start:c.End] }

// StartSeconds returns the chunk start offset in seconds.
func (c Chunk) StartSeconds(sampleRate int) float64 {
	return float64(c.Start) / float64(sampleRate)
}

// EndSeconds returns the chunk end offset in seconds.
func (c Chunk) EndSeconds(sampleRate int) float64 {
	return float64(c.End) / float64(sampleRate)
}

// Plan splits w into contiguous, non-overlapping chunks of chunkSeconds.
// The last chunk may be shorter. A waveform shorter than one chunk yields a
// single chunk; an empty waveform yields none.
func Plan(w Waveform, chunkSeconds float64) []Chunk {
	total := len(w.Samples)
	if total == 0 {
		return nil
	}
	size := int(chunkSeconds * float64(w.SampleRate))
	if size <= 0 || size >= total {
		return []Chunk{{Index: 0, Start: 0, End: total}}
	}
	n := (total + size - 1) / size
	chunks := make([]Chunk, n)
	for i := range chunks {
		end := (i + 1) * size
		if end > total {
			end = total
		}
		chunks[i] = Chunk{Index: i, Start: i * size, End: end}
	}
	return chunks
}

// FormatClock renders seconds as HH:MM:SS, truncating fractions.
func FormatClock(seconds float64) string {
	s := int(seconds)
	if s < 0 {
		s = 0
	}
	return fmt.Sprintf("%02d:%02d:%02d", s/3600, (s/60)%60, s%60)
}
