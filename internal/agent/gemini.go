package agent

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/genai"

	"ocrr/internal/config"
)

// Gemini completes prompts through the Gemini API and asks for JSON output.
type Gemini struct {
	client  *genai.Client
	model   string
	timeout time.Duration
	log     zerolog.Logger
}

func NewGemini(ctx context.Context, cfg config.Config, log zerolog.Logger) (*Gemini, error) {
	return newGemini(ctx, &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	}, cfg, log)
}

func newGemini(ctx context.Context, clientCfg *genai.ClientConfig, cfg config.Config, log zerolog.Logger) (*Gemini, error) {
	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, err
	}
	return &Gemini{
		client:  client,
		model:   cfg.GeminiModel,
		timeout: time.Duration(cfg.LLMTimeoutMs) * time.Millisecond,
		log:     log.With().Str("provider", "gemini").Logger(),
	}, nil
}

func (g *Gemini) Complete(ctx context.Context, prompt string) (string, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), &genai.GenerateContentConfig{
		Temperature:      genai.Ptr[float32](0),
		ResponseMIMEType: "application/json",
	})
	if err != nil {
		return "", err
	}
	text := resp.Text()
	g.log.Debug().Dur("took", time.Since(start)).Int("chars", len(text)).Msg("completion")
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}
