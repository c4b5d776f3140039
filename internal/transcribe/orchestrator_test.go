package transcribe

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thale-stt/thale/internal/audio"
	"github.com/thale-stt/thale/internal/whisper"
)

// scriptedEngine returns texts[i] for the i-th call and fails on failAt (1-based).
type scriptedEngine struct {
	mu     sync.Mutex
	texts  []string
	failAt int
	calls  int
	block  chan struct{}
}

func (e *scriptedEngine) Transcribe([]float32) (string, error) {
	if e.block != nil {
		<-e.block
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	if e.failAt > 0 && e.calls == e.failAt {
		return "", errors.New("device fault")
	}
	if e.calls-1 < len(e.texts) {
		return e.texts[e.calls-1], nil
	}
	return "", nil
}

func (e *scriptedEngine) Close() error { return nil }

func (e *scriptedEngine) callCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

type staticModels struct {
	eng whisper.Engine
	err error
}

func (m staticModels) EnsureLoaded(context.Context) (whisper.Engine, error) {
	return m.eng, m.err
}

func silence(seconds float64, rate int) audio.Waveform {
	return audio.Waveform{Samples: make([]float32, int(seconds*float64(rate))), SampleRate: rate}
}

type eventLog struct {
	mu     sync.Mutex
	events []ProgressEvent
}

func (l *eventLog) sink(ev ProgressEvent) {
	l.mu.Lock()
	l.events = append(l.events, ev)
	l.mu.Unlock()
}

func TestRunJoinsChunkTexts(t *testing.T) {
	eng := &scriptedEngine{texts: []string{"a", "b", "c", "d"}}
	o := New(staticModels{eng: eng}, WithChunkSeconds(30))
	log := &eventLog{}

	res, err := o.Run(context.Background(), silence(95, 16000), log.sink)
	require.NoError(t, err)

	assert.Equal(t, "a b c d", res.Text)
	assert.Equal(t, 4, res.WordCount)
	assert.Equal(t, 4, res.ChunksProcessed)
	assert.InDelta(t, 95.0, res.DurationSeconds, 1e-9)

	require.Len(t, log.events, 4)
	last := log.events[3]
	assert.Equal(t, 4, last.CurrentChunk)
	assert.Equal(t, 4, last.TotalChunks)
	assert.Equal(t, 100.0, last.ProgressPercent)
	assert.Equal(t, "Processing 00:01:30 - 00:01:35", last.Message)
	assert.Equal(t, "a b c d", last.PartialText)
	assert.Equal(t, "Processing 00:00:00 - 00:00:30", log.events[0].Message)
}

func TestRunProgressIsOrderedAndMonotonic(t *testing.T) {
	eng := &scriptedEngine{texts: []string{"one", "", "  ", "two three", "four"}}
	o := New(staticModels{eng: eng}, WithChunkSeconds(1))
	log := &eventLog{}

	res, err := o.Run(context.Background(), silence(4.5, 16000), log.sink)
	require.NoError(t, err)
	assert.Equal(t, "one two three four", res.Text)
	assert.Equal(t, 4, res.WordCount)

	require.Len(t, log.events, 5)
	prev := 0.0
	for i, ev := range log.events {
		assert.Equal(t, i+1, ev.CurrentChunk)
		assert.GreaterOrEqual(t, ev.ProgressPercent, prev)
		prev = ev.ProgressPercent
	}
	assert.Equal(t, 100.0, prev)
	assert.Equal(t, "one", log.events[2].PartialText, "silent chunks add nothing")
}

func TestRunFailureStopsAtFailingChunk(t *testing.T) {
	eng := &scriptedEngine{texts: []string{"a", "b", "c", "d", "e"}, failAt: 3}
	o := New(staticModels{eng: eng}, WithChunkSeconds(1))
	log := &eventLog{}

	_, err := o.Run(context.Background(), silence(5, 16000), log.sink)
	require.Error(t, err)

	var ierr *InferenceError
	require.ErrorAs(t, err, &ierr)
	assert.Equal(t, 2, ierr.Index)
	assert.Equal(t, 5, ierr.Total)
	assert.Contains(t, err.Error(), "chunk 3/5")
	assert.Len(t, log.events, 2)
	assert.Equal(t, 3, eng.callCount(), "no chunk after the failing one is inferred")
}

func TestRunModelLoadError(t *testing.T) {
	loadErr := &whisper.ModelLoadError{Err: errors.New("no weights")}
	o := New(staticModels{err: loadErr})

	_, err := o.Run(context.Background(), silence(1, 16000), nil)
	var target *whisper.ModelLoadError
	assert.ErrorAs(t, err, &target)
}

func TestRunEmptyWaveform(t *testing.T) {
	o := New(staticModels{eng: &scriptedEngine{}})
	_, err := o.Run(context.Background(), audio.Waveform{SampleRate: 16000}, nil)
	var de *audio.DecodeError
	assert.ErrorAs(t, err, &de)
}

func TestRunCancelledWhileInferring(t *testing.T) {
	eng := &scriptedEngine{texts: []string{"a"}, block: make(chan struct{})}
	defer close(eng.block)
	o := New(staticModels{eng: eng}, WithChunkSeconds(1))

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := o.Run(ctx, silence(3, 16000), nil)
		errCh <- err
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("run did not return after cancellation")
	}
}

func TestConcurrentRunsKeepTheirOwnOrder(t *testing.T) {
	eng := &echoEngine{}
	o := New(staticModels{eng: eng}, WithChunkSeconds(1), WithWorkers(2))

	var wg sync.WaitGroup
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			log := &eventLog{}
			res, err := o.Run(context.Background(), silence(6, 8000), log.sink)
			assert.NoError(t, err)
			assert.Equal(t, 6, res.ChunksProcessed)
			for i, ev := range log.events {
				assert.Equal(t, i+1, ev.CurrentChunk)
			}
		}()
	}
	wg.Wait()
}

type echoEngine struct{}

func (echoEngine) Transcribe(s []float32) (string, error) { return "x", nil }
func (echoEngine) Close() error                            { return nil }
