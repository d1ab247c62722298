package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"ocrr/internal"
	"ocrr/internal/config"
	"ocrr/internal/util"
)

var (
	ErrEmptyResponse   = errors.New("empty model response")
	ErrHTMLResponse    = errors.New("model response looks like an HTML error page")
	ErrEmptyCorrection = errors.New("validation agent returned no items")
)

// Completer sends one prompt to a language model and returns its raw answer.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// NewCompleter picks the provider named by LLM_PROVIDER. The mock provider
// has no completer: callers fall back to their offline behavior.
func NewCompleter(ctx context.Context, cfg config.Config, log zerolog.Logger) (Completer, error) {
	switch cfg.LLMProvider {
	case "mock":
		return nil, nil
	case "gemini":
		if err := cfg.Require("GEMINI_API_KEY", cfg.GeminiAPIKey); err != nil {
			return nil, err
		}
		g, err := NewGemini(ctx, cfg, log)
		if err != nil {
			return nil, err
		}
		return g, nil
	case "groq", "":
		if err := cfg.Require("GROQ_API_KEY", cfg.GroqAPIKey); err != nil {
			return nil, err
		}
		if err := cfg.Require("GROQ_MODEL", cfg.GroqModel); err != nil {
			return nil, err
		}
		return NewGroq(cfg, log), nil
	default:
		return nil, fmt.Errorf("unknown LLM_PROVIDER %q", cfg.LLMProvider)
	}
}

var fencePattern = regexp.MustCompile("(?is)```(?:json)?\\s*(.*?)\\s*```")

// NormalizeJSONPayload strips what models wrap around JSON: code fences,
// stray backticks, a byte order mark and any prose before the first bracket
// or after the last one.
func NormalizeJSONPayload(raw string) (string, error) {
	payload := strings.TrimSpace(raw)
	if payload == "" {
		return "", ErrEmptyResponse
	}

	if m := fencePattern.FindStringSubmatch(payload); m != nil && strings.TrimSpace(m[1]) != "" {
		payload = strings.TrimSpace(m[1])
	} else if len(payload) > 1 && strings.HasPrefix(payload, "`") && strings.HasSuffix(payload, "`") {
		payload = strings.TrimSpace(payload[1 : len(payload)-1])
	}
	payload = strings.TrimPrefix(payload, "\uFEFF")

	first := strings.IndexAny(payload, "{[")
	if first >= 0 {
		last := strings.LastIndexAny(payload, "}]")
		if last > first {
			payload = strings.TrimSpace(payload[first : last+1])
		}
	}

	if strings.HasPrefix(strings.TrimSpace(payload), "<") {
		return "", fmt.Errorf("%w: %s", ErrHTMLResponse, truncate(payload, 200))
	}
	return payload, nil
}

// wireItem is a line as models emit it; page is accepted as number or string.
type wireItem struct {
	Page          internal.Text `json:"page"`
	ModelNameRaw  internal.Text `json:"model_name_raw"`
	ColorisRaw    internal.Text `json:"coloris_raw"`
	ReferenceOCR  internal.Text `json:"reference_ocr"`
	SizeOrCodeRaw internal.Text `json:"size_or_code_raw"`
	QuantityRaw   internal.Text `json:"quantity_raw"`
	UnitPriceRaw  internal.Text `json:"unit_price_raw"`
}

type linesPayload struct {
	Items []wireItem `json:"items"`
	Notes *string    `json:"notes"`
}

func decodeLines(raw string) ([]internal.ExtractedItem, *string, error) {
	payload, err := NormalizeJSONPayload(raw)
	if err != nil {
		return nil, nil, err
	}
	var parsed linesPayload
	if err := json.Unmarshal([]byte(payload), &parsed); err != nil {
		return nil, nil, fmt.Errorf("model response is not JSON: %w", err)
	}

	items := make([]internal.ExtractedItem, 0, len(parsed.Items))
	for _, w := range parsed.Items {
		item := internal.ExtractedItem{
			ModelNameRaw:  w.ModelNameRaw,
			ColorisRaw:    w.ColorisRaw,
			ReferenceOCR:  w.ReferenceOCR,
			SizeOrCodeRaw: w.SizeOrCodeRaw,
			QuantityRaw:   w.QuantityRaw,
			UnitPriceRaw:  w.UnitPriceRaw,
		}
		if page, err := strconv.Atoi(strings.TrimSpace(w.Page.String())); err == nil {
			item.Page = util.IntPtr(page)
		}
		items = append(items, item)
	}

	var notes *string
	if parsed.Notes != nil {
		notes = util.NonEmpty(*parsed.Notes)
	}
	return items, notes, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
