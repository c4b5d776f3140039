package transcribe

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/thale-stt/thale/internal/audio"
)

// Emitter writes a run's messages to a client connection.
type Emitter interface {
	Progress(ProgressEvent) error
	Complete(Result) error
	Fail(error) error
}

// Stream runs w and forwards its progress to em, followed by exactly one
// Complete or Fail. If em fails (client gone) the run is cancelled and no
// terminal message is written.
func (o *Orchestrator) Stream(ctx context.Context, w audio.Waveform, em Emitter) (Result, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	ch := NewProgressChannel()
	done := make(chan struct{})
	var (
		res    Result
		runErr error
	)
	go func() {
		defer close(done)
		res, runErr = o.Run(ctx, w, ch.Push)
	}()

	if err := ch.Forward(ctx, done, DefaultPollInterval, em.Progress); err != nil {
		log.Warn().Err(err).Msg("transcribe: stream consumer stopped")
		cancel()
		<-done
		return Result{}, err
	}

	if runErr != nil {
		if err := em.Fail(runErr); err != nil {
			log.Warn().Err(err).Msg("transcribe: failed to send error event")
		}
		return Result{}, runErr
	}
	if err := em.Complete(res); err != nil {
		return res, err
	}
	return res, nil
}
