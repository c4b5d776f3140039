package whisper

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// State is the lifecycle state of the shared model.
type State int

const (
	Unloaded State = iota
	Loading
	Loaded
)

func (s State) String() string {
	switch s {
	case Loading:
		return "loading"
	case Loaded:
		return "loaded"
	default:
		return "unloaded"
	}
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// ModelLoadError is returned to every caller waiting on a failed load.
type ModelLoadError struct {
	Err error
}

func (e *ModelLoadError) Error() string { return fmt.Sprintf("model load failed: %v", e.Err) }
func (e *ModelLoadError) Unwrap() error { return e.Err }

// Loader builds an Engine on the chosen device. It may be slow.
type Loader func(ctx context.Context, dev Device) (Engine, error)

// Status is a read-only snapshot of the Manager.
type Status struct {
	State  State  `json:"state"`
	Device Device `json:"device"`
	Loads  int    `json:"loads"`
}

// Manager owns the single shared Engine. At most one load runs at a time;
// callers arriving while a load is in flight wait for its outcome.
type Manager struct {
	load    Loader
	pref    string
	probe   AcceleratorProbe
	onState func(State)

	group singleflight.Group

	mu      sync.RWMutex
	state   State
	engine  Engine
	device  Device
	loads   int
	pending chan struct{} // closed when the in-flight load finishes
}

type ManagerOption func(*Manager)

// WithDevicePreference sets auto|cuda|cpu.
func WithDevicePreference(pref string) ManagerOption {
	return func(m *Manager) { m.pref = pref }
}

func WithAcceleratorProbe(p AcceleratorProbe) ManagerOption {
	return func(m *Manager) { m.probe = p }
}

// WithStateHook is called after every state transition.
func WithStateHook(fn func(State)) ManagerOption {
	return func(m *Manager) { m.onState = fn }
}

func NewManager(load Loader, opts ...ManagerOption) *Manager {
	m := &Manager{load: load, pref: "auto", probe: CUDAAvailable}
	for _, o := range opts {
		o(m)
	}
	return m
}

// EngineLoader adapts NewEngine to a Loader.
func EngineLoader(opts Options) Loader {
	return func(_ context.Context, dev Device) (Engine, error) {
		o := opts
		o.Device = dev
		return NewEngine(o)
	}
}

// EnsureLoaded returns the loaded Engine, loading it first if needed.
// Cancelling ctx stops this caller from waiting but not the load itself.
func (m *Manager) EnsureLoaded(ctx context.Context) (Engine, error) {
	m.mu.RLock()
	if m.state == Loaded {
		e := m.engine
		m.mu.RUnlock()
		return e, nil
	}
	m.mu.RUnlock()

	ch := m.group.DoChan("model", m.loadOnce)
	select {
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		return r.Val.(Engine), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (m *Manager) loadOnce() (any, error) {
	m.mu.Lock()
	if m.state == Loaded {
		e := m.engine
		m.mu.Unlock()
		return e, nil
	}
	dev := SelectDevice(m.pref, m.probe)
	m.state = Loading
	m.device = dev
	done := make(chan struct{})
	m.pending = done
	m.mu.Unlock()
	defer close(done)
	m.notify(Loading)

	log.Info().Str("device", dev.Name).Str("description", dev.Description).Msg("whisper: loading model")
	eng, err := m.load(context.Background(), dev)
	if err == nil && eng == nil {
		err = fmt.Errorf("loader returned no engine")
	}

	m.mu.Lock()
	if err != nil {
		m.state = Unloaded
		m.device = Device{}
		m.mu.Unlock()
		m.notify(Unloaded)
		log.Error().Err(err).Msg("whisper: model load failed")
		return nil, &ModelLoadError{Err: err}
	}
	m.state = Loaded
	m.engine = eng
	m.loads++
	m.mu.Unlock()
	m.notify(Loaded)
	log.Info().Str("device", dev.Name).Msg("whisper: model ready")
	return eng, nil
}

// Unload releases the Engine and returns to Unloaded. An in-flight load is
// awaited first. Unloading an unloaded manager is a no-op.
func (m *Manager) Unload(ctx context.Context) error {
	m.mu.RLock()
	pending := m.pending
	loading := m.state == Loading
	m.mu.RUnlock()
	if loading && pending != nil {
		select {
		case <-pending:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	m.mu.Lock()
	if m.state != Loaded {
		m.mu.Unlock()
		return nil
	}
	eng := m.engine
	m.engine = nil
	m.state = Unloaded
	m.device = Device{}
	m.mu.Unlock()
	m.notify(Unloaded)

	err := eng.Close()
	debug.FreeOSMemory()
	log.Info().Msg("whisper: model unloaded")
	return err
}

// Status reports the current state and device without side effects.
func (m *Manager) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Status{State: m.state, Device: m.device, Loads: m.loads}
}

// Loaded reports whether the model is ready.
func (m *Manager) Loaded() bool {
	return m.Status().State == Loaded
}

func (m *Manager) notify(s State) {
	if m.onState != nil {
		m.onState(s)
	}
}
