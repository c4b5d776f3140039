// Package summarize asks an OpenAI-compatible chat endpoint to summarize
// transcripts in one of a few fixed styles.
package summarize

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	openai "github.com/sashabaranov/go-openai"
)

// MaxInputChars caps how much transcript text is sent to the model.
const MaxInputChars = 15000

// tokensPerWord converts a requested summary length to a token budget.
const tokensPerWord = 2

var (
	ErrUnavailable    = errors.New("summarization service is not configured")
	ErrInvalidRequest = errors.New("invalid summarization request")
)

type Request struct {
	Text      string
	Style     string
	MaxLength int    // approximate summary length in words; 0 means the configured limit
	Prompt    string // optional; replaces the style template
}

type Result struct {
	Summary           string `json:"summary"`
	OriginalWordCount int    `json:"original_word_count"`
	SummaryWordCount  int    `json:"summary_word_count"`
	Style             Style  `json:"style"`
}

type Options struct {
	BaseURL   string
	APIKey    string
	Model     string
	MaxTokens int
	Timeout   time.Duration
}

type Client struct {
	api       *openai.Client
	model     string
	maxTokens int
	timeout   time.Duration
}

// New returns a client for opts. With neither a base URL nor an API key
// the client is unavailable and Summarize returns ErrUnavailable.
func New(opts Options) *Client {
	c := &Client{model: opts.Model, maxTokens: opts.MaxTokens, timeout: opts.Timeout}
	if c.timeout <= 0 {
		c.timeout = 60 * time.Second
	}
	if opts.BaseURL == "" && opts.APIKey == "" {
		log.Warn().Msg("summarize: no llm endpoint configured, summarization disabled")
		return c
	}
	cfg := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	}
	c.api = openai.NewClientWithConfig(cfg)
	return c
}

// Available reports whether an endpoint is configured.
func (c *Client) Available() bool { return c != nil && c.api != nil }

// BuildPrompt renders the prompt sent to the model. Text beyond
// MaxInputChars is dropped.
func BuildPrompt(text string, style Style, custom string) string {
	if r := []rune(text); len(r) > MaxInputChars {
		text = string(r[:MaxInputChars])
	}
	tmpl := prompts[style]
	if strings.TrimSpace(custom) != "" {
		tmpl = custom
		if !strings.Contains(tmpl, textMarker) {
			return tmpl + "\n\nTEKST:\n" + text
		}
	}
	return strings.ReplaceAll(tmpl, textMarker, text)
}

func (c *Client) Summarize(ctx context.Context, req Request) (Result, error) {
	if !c.Available() {
		return Result{}, ErrUnavailable
	}
	if len(strings.TrimSpace(req.Text)) < 10 {
		return Result{}, fmt.Errorf("%w: text must be at least 10 characters", ErrInvalidRequest)
	}
	style := ParseStyle(req.Style)
	prompt := BuildPrompt(req.Text, style, req.Prompt)

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	maxTokens := c.maxTokens
	if req.MaxLength > 0 && req.MaxLength*tokensPerWord < maxTokens {
		maxTokens = req.MaxLength * tokensPerWord
	}

	started := time.Now()
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		MaxTokens:   maxTokens,
		Temperature: 0.3,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		log.Error().Err(err).Str("style", string(style)).Msg("summarize: completion failed")
		return Result{}, fmt.Errorf("summarize: %w", err)
	}

	var parts []string
	for _, ch := range resp.Choices {
		if t := strings.TrimSpace(ch.Message.Content); t != "" {
			parts = append(parts, t)
		}
	}
	summary := strings.Join(parts, "\n")
	if summary == "" {
		return Result{}, errors.New("summarize: empty response from model")
	}

	log.Info().
		Str("style", string(style)).
		Int("input_chars", len(req.Text)).
		Dur("elapsed", time.Since(started)).
		Msg("summarize: summary generated")

	return Result{
		Summary:           summary,
		OriginalWordCount: len(strings.Fields(req.Text)),
		SummaryWordCount:  len(strings.Fields(summary)),
		Style:             style,
	}, nil
}
