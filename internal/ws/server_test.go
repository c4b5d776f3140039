package ws

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thale-stt/thale/internal/audio"
	"github.com/thale-stt/thale/internal/config"
	"github.com/thale-stt/thale/internal/recording"
	"github.com/thale-stt/thale/internal/transcribe"
	"github.com/thale-stt/thale/internal/whisper"
)

type textEngine struct{ text string }

func (e textEngine) Transcribe([]float32) (string, error) { return e.text, nil }
func (e textEngine) Close() error                         { return nil }

type oneSecondDecoder struct{}

func (oneSecondDecoder) Decode(context.Context, []byte) (audio.Waveform, error) {
	return audio.Waveform{Samples: make([]float32, 16000), SampleRate: 16000}, nil
}

func newTestServer(t *testing.T, load whisper.Loader, live config.LiveConfig, rec *recording.Store, opts ...Option) (*whisper.Manager, string) {
	t.Helper()
	m := whisper.NewManager(load, whisper.WithAcceleratorProbe(func() bool { return false }))
	orch := transcribe.New(m)
	srv := httptest.NewServer(NewServer(live, m, orch, oneSecondDecoder{}, rec, opts...))
	t.Cleanup(srv.Close)
	return m, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readJSON(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg map[string]any
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func engineLoader(text string) whisper.Loader {
	return func(context.Context, whisper.Device) (whisper.Engine, error) {
		return textEngine{text: text}, nil
	}
}

func TestLiveLoadsModelThenTranscribesOnCadence(t *testing.T) {
	m, url := newTestServer(t, engineLoader("hei på deg"), config.LiveConfig{Interval: 5, MinBufferBytes: 10 * 1024}, nil)
	conn := dial(t, url)

	assert.Equal(t, "loading_model", readJSON(t, conn)["status"])
	assert.Equal(t, "ready", readJSON(t, conn)["status"])
	assert.True(t, m.Loaded())

	fragment := make([]byte, 3*1024)
	for i := 0; i < 5; i++ {
		require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, fragment))
	}

	msg := readJSON(t, conn)
	assert.Equal(t, "transcription", msg["type"])
	assert.Equal(t, "hei på deg", msg["text"])
	assert.Equal(t, false, msg["is_final"])
}

func TestLiveSkipsReadyWhenAlreadyLoaded(t *testing.T) {
	m, url := newTestServer(t, engineLoader("klar"), config.LiveConfig{Interval: 1, MinBufferBytes: 0}, nil)
	_, err := m.EnsureLoaded(context.Background())
	require.NoError(t, err)

	conn := dial(t, url)
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, []byte{1, 2, 3}))

	msg := readJSON(t, conn)
	assert.Equal(t, "transcription", msg["type"])
	assert.Equal(t, "klar", msg["text"])
}

func TestLiveBelowThresholdSendsNothing(t *testing.T) {
	_, url := newTestServer(t, engineLoader("noe"), config.LiveConfig{Interval: 5, MinBufferBytes: 10 * 1024}, nil)
	conn := dial(t, url)
	readJSON(t, conn) // loading_model
	readJSON(t, conn) // ready

	// Text frames are ignored and binary fragments stay under the threshold.
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"ping"}`)))
	for i := 0; i < 10; i++ {
		require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, make([]byte, 100)))
	}

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(300*time.Millisecond)))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
	var netErr interface{ Timeout() bool }
	require.True(t, errors.As(err, &netErr))
	assert.True(t, netErr.Timeout())
}

func TestLiveModelLoadFailureClosesWith1011(t *testing.T) {
	failing := func(context.Context, whisper.Device) (whisper.Engine, error) {
		return nil, errors.New("missing weights")
	}
	_, url := newTestServer(t, failing, config.LiveConfig{Interval: 5}, nil)
	conn := dial(t, url)

	assert.Equal(t, "loading_model", readJSON(t, conn)["status"])
	msg := readJSON(t, conn)
	assert.Equal(t, "error", msg["type"])
	assert.Contains(t, msg["detail"], "missing weights")

	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseInternalServerErr))
}

func TestLiveSavesRecordingOnDisconnect(t *testing.T) {
	fs := afero.NewMemMapFs()
	rec, err := recording.NewStore(fs, "/rec")
	require.NoError(t, err)
	m, url := newTestServer(t, engineLoader("x"), config.LiveConfig{Interval: 100}, rec)
	_, err = m.EnsureLoaded(context.Background())
	require.NoError(t, err)

	conn := dial(t, url)
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, []byte("webm-bytes")))
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))

	require.Eventually(t, func() bool {
		matches, _ := afero.Glob(fs, "/rec/*.webm")
		return len(matches) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

// stallingEngine blocks its first call until release is closed.
type stallingEngine struct {
	calls   atomic.Int32
	release chan struct{}
}

func (e *stallingEngine) Transcribe([]float32) (string, error) {
	if e.calls.Add(1) == 1 {
		<-e.release
	}
	return "hei", nil
}

func (e *stallingEngine) Close() error { return nil }

func TestLiveSurvivesTranscriptionLongerThanReadTimeout(t *testing.T) {
	eng := &stallingEngine{release: make(chan struct{})}
	load := func(context.Context, whisper.Device) (whisper.Engine, error) { return eng, nil }
	m, url := newTestServer(t, load, config.LiveConfig{Interval: 1, MinBufferBytes: 0}, nil,
		WithReadTimeout(200*time.Millisecond), WithPingPeriod(50*time.Millisecond))
	_, err := m.EnsureLoaded(context.Background())
	require.NoError(t, err)

	conn := dial(t, url)
	// Enough fragments to fill the server's queue while the first tick is stuck.
	for i := 0; i < fragmentBuf+16; i++ {
		require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, make([]byte, 512)))
	}
	require.Eventually(t, func() bool { return eng.calls.Load() == 1 }, 2*time.Second, 5*time.Millisecond)

	time.Sleep(600 * time.Millisecond)
	close(eng.release)

	for i := 0; i < 3; i++ {
		msg := readJSON(t, conn)
		assert.Equal(t, "transcription", msg["type"])
		assert.Equal(t, "hei", msg["text"])
	}

	// The session still accepts audio after the stall.
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, make([]byte, 512)))
	assert.Equal(t, "transcription", readJSON(t, conn)["type"])
}
