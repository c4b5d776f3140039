package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	serverhttp "github.com/thale-stt/thale/internal/http"
	"github.com/thale-stt/thale/internal/jobs"
	"github.com/thale-stt/thale/internal/recording"
	"github.com/thale-stt/thale/internal/summarize"
	"github.com/thale-stt/thale/internal/ws"
)

const (
	jobHistory      = 1000
	shutdownTimeout = 10 * time.Second
)

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP, SSE and websocket API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			return serve(cmd.Context(), newApp(cfg))
		},
	}
}

func serve(ctx context.Context, a *app) error {
	cfg := a.cfg
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var recordings *recording.Store
	if cfg.Upload.SaveRecordings {
		rs, err := recording.NewOSStore(cfg.Upload.RecordingsDir)
		if err != nil {
			return err
		}
		recordings = rs
	}

	summarizer := summarize.New(summarize.Options{
		BaseURL:   cfg.LLM.BaseURL,
		APIKey:    cfg.LLM.APIKey,
		Model:     cfg.LLM.Model,
		MaxTokens: cfg.LLM.MaxTokens,
		Timeout:   cfg.LLM.Timeout(),
	})

	svc := serverhttp.NewService(serverhttp.Deps{
		Config:       cfg,
		Models:       a.models,
		Orchestrator: a.orch,
		Decoder:      a.decoder,
		Jobs:         jobs.NewStore(jobHistory),
		Summarizer:   summarizer,
		Recordings:   recordings,
		Metrics:      a.metrics,
		Gatherer:     a.registry,
		Live:         ws.NewServer(cfg.Live, a.models, a.orch, a.decoder, recordings),
	})

	log.Info().
		Str("model", cfg.Whisper.ModelPath).
		Str("language", cfg.Whisper.Language).
		Int("chunk_length_s", cfg.Whisper.ChunkLengthS).
		Str("frontend", cfg.API.FrontendURL).
		Bool("summarizer", summarizer.Available()).
		Msg("starting thale backend")

	if cfg.Whisper.Preload {
		go func() {
			if _, err := a.models.EnsureLoaded(ctx); err != nil {
				log.Error().Err(err).Msg("model preload failed")
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() { errCh <- svc.ListenAndServe() }()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down thale backend")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := svc.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("http shutdown did not complete")
	}
	if err := a.models.Unload(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("model unload failed")
	}
	return nil
}
