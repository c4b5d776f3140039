package main

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/thale-stt/thale/internal/audio"
	"github.com/thale-stt/thale/internal/config"
	"github.com/thale-stt/thale/internal/metrics"
	"github.com/thale-stt/thale/internal/transcribe"
	"github.com/thale-stt/thale/internal/whisper"
)

// app holds the pieces shared by every command.
type app struct {
	cfg      config.Config
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	models   *whisper.Manager
	orch     *transcribe.Orchestrator
	decoder  *audio.Decoder
}

func newApp(cfg config.Config) *app {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	base := whisper.EngineLoader(whisper.Options{
		ModelPath: cfg.Whisper.ModelPath,
		Language:  cfg.Whisper.Language,
		Threads:   cfg.Whisper.Threads,
	})
	load := func(ctx context.Context, dev whisper.Device) (whisper.Engine, error) {
		eng, err := base(ctx, dev)
		if err != nil {
			m.RecordModelLoad("failure")
			return nil, err
		}
		m.RecordModelLoad("success")
		return eng, nil
	}

	models := whisper.NewManager(load,
		whisper.WithDevicePreference(cfg.Whisper.Device),
		whisper.WithStateHook(func(s whisper.State) { m.SetModelState(int(s)) }),
	)
	orch := transcribe.New(models,
		transcribe.WithChunkSeconds(float64(cfg.Whisper.ChunkLengthS)),
		transcribe.WithWorkers(cfg.Whisper.Workers),
		transcribe.WithMetrics(m),
	)

	return &app{
		cfg:      cfg,
		registry: reg,
		metrics:  m,
		models:   models,
		orch:     orch,
		decoder:  audio.NewDecoder(cfg.Whisper.SampleRate),
	}
}
