package audio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waveformOf(seconds float64, rate int) Waveform {
	return Waveform{Samples: make([]float32, int(seconds*float64(rate))), SampleRate: rate}
}

func TestPlanNinetyFiveSeconds(t *testing.T) {
	w := waveformOf(95, 16000)
	chunks := Plan(w, 30)
	require.Len(t, chunks, 4)

	wantSeconds := []float64{30, 30, 30, 5}
	for i, c := range chunks {
		assert.Equal(t, i, c.Index)
		assert.InDelta(t, wantSeconds[i], float64(c.Len())/16000, 1e-9)
	}
	assert.Equal(t, 95.0, chunks[3].EndSeconds(16000))
	assert.Equal(t, 90.0, chunks[3].StartSeconds(16000))
}

func TestPlanCoversWaveform(t *testing.T) {
	tests := []struct {
		name    string
		samples int
		rate    int
		seconds float64
		want    int
	}{
		{"exact multiple", 16000 * 60, 16000, 30, 2},
		{"one sample over", 16000*60 + 1, 16000, 30, 3},
		{"shorter than chunk", 100, 16000, 30, 1},
		{"single sample", 1, 16000, 30, 1},
		{"small chunks", 16000, 16000, 0.25, 4},
		{"odd rate", 44100 * 7, 44100, 2, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := Waveform{Samples: make([]float32, tt.samples), SampleRate: tt.rate}
			chunks := Plan(w, tt.seconds)
			require.Len(t, chunks, tt.want)

			sum := 0
			next := 0
			for i, c := range chunks {
				assert.Equal(t, i, c.Index)
				assert.Equal(t, next, c.Start, "chunks must be contiguous")
				assert.Greater(t, c.End, c.Start)
				sum += c.Len()
				next = c.End
			}
			assert.Equal(t, tt.samples, sum)
			assert.Equal(t, tt.samples, next)
		})
	}
}

func TestPlanEmptyAndDeterministic(t *testing.T) {
	assert.Empty(t, Plan(Waveform{SampleRate: 16000}, 30))

	w := waveformOf(70, 16000)
	assert.Equal(t, Plan(w, 30), Plan(w, 30))
}

func TestPlanGrowingWaveformKeepsPrefix(t *testing.T) {
	small := Plan(waveformOf(45, 16000), 30)
	large := Plan(waveformOf(75, 16000), 30)
	require.Len(t, small, 2)
	require.Len(t, large, 3)
	assert.Equal(t, small[0], large[0])
}

func TestChunkSamples(t *testing.T) {
	w := Waveform{Samples: []float32{0, 1, 2, 3, 4}, SampleRate: 2}
	chunks := Plan(w, 1)
	require.Len(t, chunks, 3)
	assert.Equal(t, []float32{0, 1}, chunks[0].Samples(w))
	assert.Equal(t, []float32{4}, chunks[2].Samples(w))
}

func TestFormatClock(t *testing.T) {
	assert.Equal(t, "00:00:00", FormatClock(0))
	assert.Equal(t, "00:00:30", FormatClock(30.9))
	assert.Equal(t, "00:01:35", FormatClock(95))
	assert.Equal(t, "02:03:04", FormatClock(2*3600+3*60+4))
	assert.Equal(t, "00:00:00", FormatClock(-3))
}
