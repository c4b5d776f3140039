package transcribe

import (
	"bytes"
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/thale-stt/thale/internal/audio"
)

// Decoder turns the accumulated live buffer into a waveform.
type Decoder interface {
	Decode(ctx context.Context, data []byte) (audio.Waveform, error)
}

// LiveSession accumulates binary fragments from one connection and
// re-transcribes the whole buffer every Interval fragments. No decoding
// state is carried between ticks.
type LiveSession struct {
	orch     *Orchestrator
	dec      Decoder
	interval int
	minBytes int

	buf       bytes.Buffer
	fragments int
	lastText  string
}

// NewLiveSession returns a session ticking every interval fragments once
// the buffer holds more than minBytes.
func (o *Orchestrator) NewLiveSession(dec Decoder, interval, minBytes int) *LiveSession {
	if interval < 1 {
		interval = 1
	}
	o.metrics.LiveSessionOpened()
	return &LiveSession{orch: o, dec: dec, interval: interval, minBytes: minBytes}
}

// Append adds one fragment. On a cadence tick with a decodable buffer it
// returns the full re-transcription and ok == true. A buffer that is too
// small or not yet decodable is deferred silently (ok == false, nil error).
// Errors from the model or from inference are returned to the caller.
func (s *LiveSession) Append(ctx context.Context, fragment []byte) (text string, ok bool, err error) {
	if len(fragment) == 0 {
		return "", false, nil
	}
	s.buf.Write(fragment)
	s.fragments++
	if s.fragments%s.interval != 0 {
		return "", false, nil
	}
	if s.buf.Len() <= s.minBytes {
		s.orch.metrics.RecordLiveTick(true)
		log.Debug().Int("bytes", s.buf.Len()).Msg("live: buffer below threshold, deferring")
		return "", false, nil
	}

	w, err := s.dec.Decode(ctx, s.buf.Bytes())
	if err != nil {
		var de *audio.DecodeError
		if errors.As(err, &de) {
			s.orch.metrics.RecordLiveTick(true)
			log.Debug().Err(err).Int("bytes", s.buf.Len()).Msg("live: buffer not decodable yet")
			return "", false, nil
		}
		return "", false, err
	}

	res, err := s.orch.run(ctx, w, nil, true)
	if err != nil {
		return "", false, err
	}
	s.orch.metrics.RecordLiveTick(false)

	text = strings.TrimSpace(res.Text)
	if text == "" {
		return "", false, nil
	}
	s.lastText = text
	return text, true, nil
}

// Fragments reports how many fragments have been appended.
func (s *LiveSession) Fragments() int { return s.fragments }

// Buffered reports the size of the growing buffer in bytes.
func (s *LiveSession) Buffered() int { return s.buf.Len() }

// Bytes returns the accumulated audio, e.g. to persist the recording.
func (s *LiveSession) Bytes() []byte { return s.buf.Bytes() }

// LastText is the most recent non-empty transcription.
func (s *LiveSession) LastText() string { return s.lastText }

// Close releases the buffer. The session must not be used afterwards.
func (s *LiveSession) Close() {
	s.buf = bytes.Buffer{}
	s.orch.metrics.LiveSessionClosed()
}
