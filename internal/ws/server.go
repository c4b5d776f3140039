package ws

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/thale-stt/thale/internal/config"
	"github.com/thale-stt/thale/internal/recording"
	"github.com/thale-stt/thale/internal/transcribe"
	"github.com/thale-stt/thale/internal/whisper"
)

const (
	defaultReadTimeout = 60 * time.Second
	defaultPingPeriod  = 30 * time.Second
	writeTimeout       = 10 * time.Second
	fragmentBuf        = 64
)

// Models is what a live session needs from the model manager.
type Models interface {
	EnsureLoaded(ctx context.Context) (whisper.Engine, error)
	Loaded() bool
}

type statusMessage struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

type transcriptionMessage struct {
	Type    string `json:"type"`
	Text    string `json:"text"`
	IsFinal bool   `json:"is_final"`
}

type errorMessage struct {
	Type   string `json:"type"`
	Detail string `json:"detail"`
}

// Server handles the live transcription websocket. Each connection gets its
// own growing buffer; the model is shared.
type Server struct {
	cfg        config.LiveConfig
	models     Models
	orch       *transcribe.Orchestrator
	dec        transcribe.Decoder
	recordings *recording.Store
	upgrader   websocket.Upgrader

	// readTimeout bounds how long the peer may stay silent. It is armed
	// only while a read is pending.
	readTimeout time.Duration
	pingPeriod  time.Duration
}

type Option func(*Server)

// WithReadTimeout sets how long a connection may go without a frame or pong.
func WithReadTimeout(d time.Duration) Option {
	return func(s *Server) { s.readTimeout = d }
}

// WithPingPeriod sets the keepalive ping interval. It should be shorter
// than the read timeout.
func WithPingPeriod(d time.Duration) Option {
	return func(s *Server) { s.pingPeriod = d }
}

// NewServer returns a live server. recordings may be nil.
func NewServer(cfg config.LiveConfig, models Models, orch *transcribe.Orchestrator, dec transcribe.Decoder, recordings *recording.Store, opts ...Option) *Server {
	s := &Server{
		cfg:        cfg,
		models:     models,
		orch:       orch,
		dec:        dec,
		recordings: recordings,
		upgrader: websocket.Upgrader{
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  1024 * 16,
			WriteBufferSize: 1024 * 16,
		},
		readTimeout: defaultReadTimeout,
		pingPeriod:  defaultPingPeriod,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.Handle(w, r) }

func (s *Server) Handle(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("live: ws upgrade failed")
		return
	}
	defer conn.Close()
	log.Info().Str("remote", r.RemoteAddr).Msg("live: websocket connected")
	defer log.Info().Str("remote", r.RemoteAddr).Msg("live: websocket disconnected")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if !s.models.Loaded() {
		if err := s.write(conn, statusMessage{Status: "loading_model", Message: "Loading Whisper model..."}); err != nil {
			return
		}
		if _, err := s.models.EnsureLoaded(ctx); err != nil {
			log.Error().Err(err).Msg("live: model load failed")
			s.fail(conn, err)
			return
		}
		if err := s.write(conn, statusMessage{Status: "ready", Message: "Model loaded"}); err != nil {
			return
		}
	}

	session := s.orch.NewLiveSession(s.dec, s.cfg.Interval, s.cfg.MinBufferBytes)
	defer func() {
		s.persist(session)
		session.Close()
	}()

	frags := make(chan []byte, fragmentBuf)
	go s.readLoop(ctx, cancel, conn, frags)
	go s.keepAlive(ctx, conn)

	for {
		select {
		case data, ok := <-frags:
			if !ok {
				return
			}
			text, ready, err := session.Append(ctx, data)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				var loadErr *whisper.ModelLoadError
				if errors.As(err, &loadErr) {
					s.fail(conn, err)
					return
				}
				log.Warn().Err(err).Int("fragments", session.Fragments()).Msg("live: transcription failed, continuing")
				continue
			}
			if !ready {
				continue
			}
			if err := s.write(conn, transcriptionMessage{Type: "transcription", Text: text}); err != nil {
				log.Warn().Err(err).Msg("live: failed to send transcript")
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// readLoop forwards binary frames to frags until the peer goes away, then
// cancels the session context. Text frames are ignored. The deadline is
// armed right before each read; time spent blocked on a full frags channel
// does not count.
func (s *Server) readLoop(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, frags chan<- []byte) {
	defer close(frags)
	defer cancel()

	conn.SetPongHandler(func(string) error { return conn.SetReadDeadline(time.Now().Add(s.readTimeout)) })

	for {
		_ = conn.SetReadDeadline(time.Now().Add(s.readTimeout))
		mt, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				log.Debug().Err(err).Msg("live: read ended")
			}
			return
		}
		if mt != websocket.BinaryMessage {
			continue
		}
		select {
		case frags <- data:
		case <-ctx.Done():
			return
		}
	}
}

// keepAlive pings the peer until ctx ends. It runs apart from the session
// loop so a long transcription does not stall it.
func (s *Server) keepAlive(ctx context.Context, conn *websocket.Conn) {
	t := time.NewTicker(s.pingPeriod)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				log.Debug().Err(err).Msg("live: ping failed")
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func (s *Server) write(conn *websocket.Conn, v any) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteJSON(v)
}

// fail reports a fatal error and closes with 1011.
func (s *Server) fail(conn *websocket.Conn, err error) {
	_ = s.write(conn, errorMessage{Type: "error", Detail: err.Error()})
	msg := websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "internal error")
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeTimeout))
}

func (s *Server) persist(session *transcribe.LiveSession) {
	if s.recordings == nil || session.Buffered() == 0 {
		return
	}
	id, err := s.recordings.Save("", ".webm", session.Bytes())
	if err != nil {
		log.Warn().Err(err).Msg("live: failed to save recording")
		return
	}
	log.Info().Str("id", id).Int("bytes", session.Buffered()).Msg("live: recording saved")
}
