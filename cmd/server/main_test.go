package main

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thale-stt/thale/internal/config"
	"github.com/thale-stt/thale/internal/whisper"
)

func TestRootCommandRoutesSubcommands(t *testing.T) {
	root := newRootCmd()

	cmd, _, err := root.Find([]string{"transcribe", "meeting.wav"})
	require.NoError(t, err)
	assert.Equal(t, "transcribe", cmd.Name())

	cmd, _, err = root.Find([]string{"serve"})
	require.NoError(t, err)
	assert.Equal(t, "serve", cmd.Name())
	assert.NotNil(t, root.RunE)
}

func TestTranscribeRequiresOneFile(t *testing.T) {
	root := newRootCmd()
	root.SetArgs([]string{"transcribe"})
	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg(s)")
}

func TestSetupLoggingLevel(t *testing.T) {
	prev := log.Logger
	t.Cleanup(func() { log.Logger = prev })

	setupLogging(config.LogConfig{Level: "DEBUG", Format: "json"})
	assert.Equal(t, zerolog.DebugLevel, log.Logger.GetLevel())

	setupLogging(config.LogConfig{Level: "nonsense"})
	assert.Equal(t, zerolog.InfoLevel, log.Logger.GetLevel())
}

func TestNewAppStartsUnloaded(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	a := newApp(cfg)
	assert.Equal(t, whisper.Unloaded, a.models.Status().State)
	assert.Equal(t, float64(cfg.Whisper.ChunkLengthS), a.orch.ChunkSeconds())

	families, err := a.registry.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}
