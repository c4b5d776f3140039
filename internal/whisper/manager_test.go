package whisper

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEngine struct {
	closed atomic.Bool
}

func (f *fakeEngine) Transcribe([]float32) (string, error) { return "ok", nil }
func (f *fakeEngine) Close() error                         { f.closed.Store(true); return nil }

type hookRecorder struct {
	mu     sync.Mutex
	states []State
}

func (h *hookRecorder) record(s State) {
	h.mu.Lock()
	h.states = append(h.states, s)
	h.mu.Unlock()
}

func (h *hookRecorder) snapshot() []State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]State(nil), h.states...)
}

func noAccel() bool { return false }

func TestManagerConcurrentCallersShareOneLoad(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	eng := &fakeEngine{}
	hooks := &hookRecorder{}

	m := NewManager(func(context.Context, Device) (Engine, error) {
		calls.Add(1)
		<-release
		return eng, nil
	}, WithAcceleratorProbe(noAccel), WithStateHook(hooks.record))

	const callers = 8
	var wg sync.WaitGroup
	results := make([]Engine, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = m.EnsureLoaded(context.Background())
		}(i)
	}

	require.Eventually(t, func() bool { return m.Status().State == Loading }, time.Second, 5*time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Same(t, eng, results[i])
	}
	assert.Equal(t, []State{Loading, Loaded}, hooks.snapshot())

	st := m.Status()
	assert.Equal(t, Loaded, st.State)
	assert.Equal(t, "cpu", st.Device.Name)
	assert.Equal(t, 1, st.Loads)
}

func TestManagerLoadedFastPath(t *testing.T) {
	var calls atomic.Int32
	m := NewManager(func(context.Context, Device) (Engine, error) {
		calls.Add(1)
		return &fakeEngine{}, nil
	}, WithAcceleratorProbe(noAccel))

	_, err := m.EnsureLoaded(context.Background())
	require.NoError(t, err)
	_, err = m.EnsureLoaded(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestManagerLoadFailureRevertsAndRetries(t *testing.T) {
	boom := errors.New("out of memory")
	var fail atomic.Bool
	fail.Store(true)
	hooks := &hookRecorder{}

	m := NewManager(func(context.Context, Device) (Engine, error) {
		if fail.Load() {
			return nil, boom
		}
		return &fakeEngine{}, nil
	}, WithAcceleratorProbe(noAccel), WithStateHook(hooks.record))

	_, err := m.EnsureLoaded(context.Background())
	require.Error(t, err)
	var loadErr *ModelLoadError
	require.ErrorAs(t, err, &loadErr)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, Unloaded, m.Status().State)
	assert.Equal(t, []State{Loading, Unloaded}, hooks.snapshot())

	fail.Store(false)
	eng, err := m.EnsureLoaded(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, eng)
	assert.Equal(t, Loaded, m.Status().State)
}

func TestManagerWaitersAllSeeFailure(t *testing.T) {
	release := make(chan struct{})
	m := NewManager(func(context.Context, Device) (Engine, error) {
		<-release
		return nil, errors.New("bad model file")
	}, WithAcceleratorProbe(noAccel))

	const callers = 4
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		go func() {
			_, err := m.EnsureLoaded(context.Background())
			errs <- err
		}()
	}
	require.Eventually(t, func() bool { return m.Status().State == Loading }, time.Second, 5*time.Millisecond)
	close(release)

	for i := 0; i < callers; i++ {
		var loadErr *ModelLoadError
		assert.ErrorAs(t, <-errs, &loadErr)
	}
}

func TestManagerCancelledWaiter(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	m := NewManager(func(context.Context, Device) (Engine, error) {
		<-release
		return &fakeEngine{}, nil
	}, WithAcceleratorProbe(noAccel))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := m.EnsureLoaded(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestManagerUnload(t *testing.T) {
	eng := &fakeEngine{}
	hooks := &hookRecorder{}
	m := NewManager(func(context.Context, Device) (Engine, error) {
		return eng, nil
	}, WithAcceleratorProbe(noAccel), WithStateHook(hooks.record))

	require.NoError(t, m.Unload(context.Background()))
	assert.Empty(t, hooks.snapshot(), "unload from unloaded is a no-op")

	_, err := m.EnsureLoaded(context.Background())
	require.NoError(t, err)
	require.NoError(t, m.Unload(context.Background()))

	assert.True(t, eng.closed.Load())
	assert.Equal(t, Unloaded, m.Status().State)
	assert.Equal(t, []State{Loading, Loaded, Unloaded}, hooks.snapshot())
}

func TestManagerUnloadWaitsForInflightLoad(t *testing.T) {
	eng := &fakeEngine{}
	release := make(chan struct{})
	m := NewManager(func(context.Context, Device) (Engine, error) {
		<-release
		return eng, nil
	}, WithAcceleratorProbe(noAccel))

	loaded := make(chan error, 1)
	go func() {
		_, err := m.EnsureLoaded(context.Background())
		loaded <- err
	}()
	require.Eventually(t, func() bool { return m.Status().State == Loading }, time.Second, 5*time.Millisecond)

	unloaded := make(chan error, 1)
	go func() { unloaded <- m.Unload(context.Background()) }()
	close(release)

	require.NoError(t, <-loaded)
	require.NoError(t, <-unloaded)
	assert.True(t, eng.closed.Load())
	assert.Equal(t, Unloaded, m.Status().State)
}

func TestSelectDevice(t *testing.T) {
	yes := func() bool { return true }

	assert.Equal(t, "cuda", SelectDevice("auto", yes).Name)
	assert.True(t, SelectDevice("cuda", yes).Accelerator)
	assert.Equal(t, "cpu", SelectDevice("cpu", yes).Name)
	assert.Equal(t, "cpu", SelectDevice("auto", noAccel).Name)
	assert.Equal(t, "cpu", SelectDevice("cuda", noAccel).Name)
	assert.NotEmpty(t, SelectDevice("cpu", nil).Description)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "unloaded", Unloaded.String())
	assert.Equal(t, "loading", Loading.String())
	assert.Equal(t, "loaded", Loaded.String())
}
