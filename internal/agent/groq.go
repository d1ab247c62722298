package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"ocrr/internal/config"
)

// Groq talks to an OpenAI compatible chat completions endpoint.
type Groq struct {
	url        string
	apiKey     string
	model      string
	httpClient *http.Client
	log        zerolog.Logger
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Temperature float64       `json:"temperature"`
	Messages    []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func NewGroq(cfg config.Config, log zerolog.Logger) *Groq {
	return &Groq{
		url:        cfg.GroqAPIURL,
		apiKey:     cfg.GroqAPIKey,
		model:      cfg.GroqModel,
		httpClient: &http.Client{Timeout: time.Duration(cfg.LLMTimeoutMs) * time.Millisecond},
		log:        log.With().Str("provider", "groq").Logger(),
	}
}

func (g *Groq) Complete(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model:       g.model,
		Temperature: 0,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.apiKey)

	start := time.Now()
	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	g.log.Debug().Int("status", resp.StatusCode).Dur("took", time.Since(start)).Msg("completion")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("groq status %d [%s]: %s", resp.StatusCode, resp.Header.Get("Content-Type"), truncate(strings.TrimSpace(string(respBody)), 500))
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		payload, nerr := NormalizeJSONPayload(string(respBody))
		if nerr != nil {
			return "", fmt.Errorf("groq response is not JSON: %w", err)
		}
		if err := json.Unmarshal([]byte(payload), &parsed); err != nil {
			return "", fmt.Errorf("groq response is not JSON: %w", err)
		}
	}
	if len(parsed.Choices) == 0 || strings.TrimSpace(parsed.Choices[0].Message.Content) == "" {
		return "", ErrEmptyResponse
	}
	return parsed.Choices[0].Message.Content, nil
}
