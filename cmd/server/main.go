package main

import (
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/thale-stt/thale/internal/config"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs
	setupLogging(config.LogConfig{Level: os.Getenv("LOG_LEVEL"), Format: os.Getenv("LOG_FORMAT")})

	if err := newRootCmd().Execute(); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "thale",
		Short:         "Speech-to-text and summarization server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "optional YAML config file")

	serve := newServeCmd(&configPath)
	root.AddCommand(serve, newTranscribeCmd(&configPath))
	root.RunE = serve.RunE
	return root
}

// setupLogging applies the configured level and output format to the
// global logger.
func setupLogging(cfg config.LogConfig) {
	lvl := zerolog.InfoLevel
	if v := strings.TrimSpace(cfg.Level); v != "" {
		if l, err := zerolog.ParseLevel(strings.ToLower(v)); err == nil {
			lvl = l
		}
	}
	if strings.EqualFold(cfg.Format, "console") {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
	} else {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
	log.Logger = log.Level(lvl)
}

func loadConfig(path string) (config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, err
	}
	setupLogging(cfg.Log)
	return cfg, nil
}
