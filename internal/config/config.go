package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	API     APIConfig     `mapstructure:"api"`
	Whisper WhisperConfig `mapstructure:"whisper"`
	Live    LiveConfig    `mapstructure:"live"`
	LLM     LLMConfig     `mapstructure:"llm"`
	Upload  UploadConfig  `mapstructure:"upload"`
	Log     LogConfig     `mapstructure:"log"`
}

type APIConfig struct {
	Host        string `mapstructure:"host"`
	Port        int    `mapstructure:"port"`
	FrontendURL string `mapstructure:"frontend_url"`
}

// WhisperConfig controls the shared speech model and the chunked pipeline.
type WhisperConfig struct {
	ModelPath    string `mapstructure:"model_path"`
	Language     string `mapstructure:"language"`
	ChunkLengthS int    `mapstructure:"chunk_length_s"`
	SampleRate   int    `mapstructure:"sample_rate"`
	Threads      int    `mapstructure:"threads"`
	Device       string `mapstructure:"device"` // auto|cuda|cpu
	Workers      int    `mapstructure:"workers"`
	Preload      bool   `mapstructure:"preload"`
}

// LiveConfig controls the growing-buffer websocket path.
type LiveConfig struct {
	Interval       int `mapstructure:"interval"`         // fragments between re-transcriptions
	MinBufferBytes int `mapstructure:"min_buffer_bytes"` // below this the buffer is not decoded
}

type LLMConfig struct {
	BaseURL   string `mapstructure:"base_url"`
	APIKey    string `mapstructure:"api_key"`
	Model     string `mapstructure:"model"`
	MaxTokens int    `mapstructure:"max_tokens"`
	TimeoutS  int    `mapstructure:"timeout_s"`
}

type UploadConfig struct {
	MaxSizeMB         int    `mapstructure:"max_size_mb"`
	AllowedExtensions string `mapstructure:"allowed_extensions"`
	RecordingsDir     string `mapstructure:"recordings_dir"`
	SaveRecordings    bool   `mapstructure:"save_recordings"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json|console
}

var defaults = map[string]any{
	"api.host":                  "0.0.0.0",
	"api.port":                  8000,
	"api.frontend_url":          "http://localhost:5173",
	"whisper.model_path":        "./models/ggml-nb-whisper-large.bin",
	"whisper.language":          "no",
	"whisper.chunk_length_s":    30,
	"whisper.sample_rate":       16000,
	"whisper.threads":           0,
	"whisper.device":            "auto",
	"whisper.workers":           1,
	"whisper.preload":           false,
	"live.interval":             5,
	"live.min_buffer_bytes":     10 * 1024,
	"llm.base_url":              "",
	"llm.api_key":               "",
	"llm.model":                 "eu.anthropic.claude-sonnet-4-5-20250929-v1:0",
	"llm.max_tokens":            2000,
	"llm.timeout_s":             60,
	"upload.max_size_mb":        500,
	"upload.allowed_extensions": ".m4a,.wav,.mp3,.aac,.flac,.ogg,.webm",
	"upload.recordings_dir":     "./recordings",
	"upload.save_recordings":    false,
	"log.level":                 "info",
	"log.format":                "json",
}

// Load reads .env (if present), then an optional config file, then the
// environment. Keys map to env vars with dots replaced by underscores,
// e.g. whisper.chunk_length_s -> WHISPER_CHUNK_LENGTH_S.
func Load(path string) (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	for k, d := range defaults {
		v.SetDefault(k, d)
	}
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if err := c.API.Validate(); err != nil {
		return fmt.Errorf("api config: %w", err)
	}
	if err := c.Whisper.Validate(); err != nil {
		return fmt.Errorf("whisper config: %w", err)
	}
	if err := c.Live.Validate(); err != nil {
		return fmt.Errorf("live config: %w", err)
	}
	if err := c.LLM.Validate(); err != nil {
		return fmt.Errorf("llm config: %w", err)
	}
	if err := c.Upload.Validate(); err != nil {
		return fmt.Errorf("upload config: %w", err)
	}
	return nil
}

func (a *APIConfig) Validate() error {
	if a.Port < 1 || a.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", a.Port)
	}
	return nil
}

// Addr returns host:port for the HTTP listener.
func (a *APIConfig) Addr() string {
	return fmt.Sprintf("%s:%d", a.Host, a.Port)
}

// Origins splits the comma separated frontend URL list.
func (a *APIConfig) Origins() []string {
	return splitList(a.FrontendURL)
}

func (w *WhisperConfig) Validate() error {
	if strings.TrimSpace(w.ModelPath) == "" {
		return errors.New("model_path cannot be empty")
	}
	if w.ChunkLengthS < 1 {
		return fmt.Errorf("chunk_length_s must be at least 1, got %d", w.ChunkLengthS)
	}
	if w.SampleRate < 8000 {
		return fmt.Errorf("sample_rate must be at least 8000, got %d", w.SampleRate)
	}
	if w.Threads < 0 {
		return fmt.Errorf("threads cannot be negative, got %d", w.Threads)
	}
	if w.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", w.Workers)
	}
	switch w.Device {
	case "auto", "cuda", "cpu":
	default:
		return fmt.Errorf("device must be one of [auto, cuda, cpu], got '%s'", w.Device)
	}
	return nil
}

func (l *LiveConfig) Validate() error {
	if l.Interval < 1 {
		return fmt.Errorf("interval must be at least 1, got %d", l.Interval)
	}
	if l.MinBufferBytes < 0 {
		return fmt.Errorf("min_buffer_bytes cannot be negative, got %d", l.MinBufferBytes)
	}
	return nil
}

func (l *LLMConfig) Validate() error {
	if l.MaxTokens < 1 {
		return fmt.Errorf("max_tokens must be at least 1, got %d", l.MaxTokens)
	}
	if l.TimeoutS < 1 {
		return fmt.Errorf("timeout_s must be at least 1, got %d", l.TimeoutS)
	}
	return nil
}

// Timeout returns the LLM request timeout.
func (l *LLMConfig) Timeout() time.Duration {
	return time.Duration(l.TimeoutS) * time.Second
}

func (u *UploadConfig) Validate() error {
	if u.MaxSizeMB < 1 {
		return fmt.Errorf("max_size_mb must be at least 1, got %d", u.MaxSizeMB)
	}
	if len(u.Extensions()) == 0 {
		return errors.New("allowed_extensions cannot be empty")
	}
	if u.SaveRecordings && strings.TrimSpace(u.RecordingsDir) == "" {
		return errors.New("recordings_dir cannot be empty when save_recordings is enabled")
	}
	return nil
}

// Extensions returns the allowed extensions, lower-cased.
func (u *UploadConfig) Extensions() []string {
	exts := splitList(u.AllowedExtensions)
	for i, e := range exts {
		exts[i] = strings.ToLower(e)
	}
	return exts
}

// MaxSizeBytes returns the upload limit in bytes.
func (u *UploadConfig) MaxSizeBytes() int64 {
	return int64(u.MaxSizeMB) * 1024 * 1024
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
