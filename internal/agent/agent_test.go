package agent

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"ocrr/internal"
	"ocrr/internal/config"
	"ocrr/internal/exporter"
	"ocrr/internal/util"
)

func TestNormalizeJSONPayload(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want string
		err  error
	}{
		{name: "plain", raw: `{"items": []}`, want: `{"items": []}`},
		{name: "fenced", raw: "Voici :\n```json\n{\"items\": [1]}\n```\nBonne journee", want: `{"items": [1]}`},
		{name: "backticks", raw: "`{\"a\":1}`", want: `{"a":1}`},
		{name: "bom", raw: "\uFEFF{\"a\":1}", want: `{"a":1}`},
		{name: "prose around", raw: `Resultat: {"a": {"b": 2}} fin.`, want: `{"a": {"b": 2}}`},
		{name: "array", raw: `ok [1, 2]`, want: `[1, 2]`},
		{name: "html", raw: "<html><body>502 Bad Gateway</body></html>", err: ErrHTMLResponse},
		{name: "empty", raw: "  ", err: ErrEmptyResponse},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := NormalizeJSONPayload(tc.raw)
			if tc.err != nil {
				assert.ErrorIs(t, err, tc.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestDecodeLines(t *testing.T) {
	items, notes, err := decodeLines("```json\n" + `{"items": [{"page": "2", "reference_ocr": "765.4321", "quantity_raw": 2, "unit_price_raw": 24.5}, {"page": 1}], "notes": "  "}` + "\n```")
	require.NoError(t, err)
	require.Len(t, items, 2)
	require.NotNil(t, items[0].Page)
	assert.Equal(t, 2, *items[0].Page)
	assert.Equal(t, "765.4321", items[0].ReferenceOCR.String())
	assert.Equal(t, "2", items[0].QuantityRaw.String())
	assert.Equal(t, "24.5", items[0].UnitPriceRaw.String())
	assert.Equal(t, 1, *items[1].Page)
	assert.Nil(t, notes)
}

type stubCompleter struct {
	answer  string
	err     error
	prompts []string
}

func (s *stubCompleter) Complete(_ context.Context, prompt string) (string, error) {
	s.prompts = append(s.prompts, prompt)
	return s.answer, s.err
}

type stubSnippets string

func (s stubSnippets) PromptSnippet(context.Context, int) string { return string(s) }

func testConfig() config.Config {
	return config.Config{
		ReferenceLengths:   []int{7, 8},
		ColorMinLength:     4,
		MaxQuantity:        10,
		MinPriceValue:      10,
		PromptCatalogLimit: 60,
		LLMTimeoutMs:       5000,
		GroqModel:          "llama-test",
		GroqAPIKey:         "secret",
		GeminiModel:        "gemini-test",
	}
}

func failingRequest() exporter.CorrectionRequest {
	return exporter.CorrectionRequest{
		Items: []internal.ResolvedItem{
			{ReferenceOCR: util.StringPtr("7654321"), QuantityRaw: "2", NeedsReview: true},
		},
		OCRText:   "Ballerine noire 7654321 x2",
		LastError: "preflight validation failed: line 1: missing unit_price_raw.",
		Attempt:   2,
	}
}

func TestValidatorCorrect(t *testing.T) {
	completer := &stubCompleter{answer: `{"items": [{"reference_ocr": "7654321", "quantity_raw": "2", "unit_price_raw": "24.50"}], "notes": "prix repris du catalogue"}`}
	v := NewValidator(completer, stubSnippets("7654321: Ballerine | Noir | 40 | 24,5"), testConfig(), zerolog.Nop())

	got, err := v.Correct(context.Background(), failingRequest())
	require.NoError(t, err)
	require.Len(t, got.Items, 1)
	assert.Equal(t, "24.50", got.Items[0].UnitPriceRaw.String())
	assert.False(t, got.Items[0].NeedsReview)
	require.NotNil(t, got.Notes)
	assert.Equal(t, "prix repris du catalogue", *got.Notes)

	require.Len(t, completer.prompts, 1)
	prompt := completer.prompts[0]
	assert.Contains(t, prompt, "7654321: Ballerine | Noir | 40 | 24,5")
	assert.Contains(t, prompt, "7 ou 8 caracteres")
	assert.Contains(t, prompt, "entier positif <= 10")
	assert.Contains(t, prompt, "Tentative actuelle : 2")
	assert.Contains(t, prompt, `"needs_review": true`)
	assert.Contains(t, prompt, "missing unit_price_raw")
	assert.Contains(t, prompt, "Ballerine noire 7654321 x2")
	assert.Contains(t, prompt, `"reference_ocr": "7654321"`)
}

func TestValidatorFailures(t *testing.T) {
	empty := NewValidator(&stubCompleter{answer: `{"items": [], "notes": null}`}, nil, testConfig(), zerolog.Nop())
	_, err := empty.Correct(context.Background(), failingRequest())
	assert.ErrorIs(t, err, ErrEmptyCorrection)

	down := NewValidator(&stubCompleter{err: errors.New("connection refused")}, nil, testConfig(), zerolog.Nop())
	_, err = down.Correct(context.Background(), failingRequest())
	assert.ErrorContains(t, err, "connection refused")

	garbage := NewValidator(&stubCompleter{answer: "je ne sais pas"}, nil, testConfig(), zerolog.Nop())
	_, err = garbage.Correct(context.Background(), failingRequest())
	assert.Error(t, err)
}

func TestValidatorMockMode(t *testing.T) {
	v := NewValidator(nil, nil, testConfig(), zerolog.Nop())
	got, err := v.Correct(context.Background(), failingRequest())
	require.NoError(t, err)
	require.Len(t, got.Items, 1)
	assert.Equal(t, "7654321", got.Items[0].ReferenceOCR.String())
	assert.True(t, got.Items[0].NeedsReview, "echoed lines keep their review flag")
	assert.Equal(t, mockNotes, *got.Notes)
}

func TestExtractor(t *testing.T) {
	completer := &stubCompleter{answer: `{"items": [{"reference_ocr": "l234567", "model_name_raw": "Chausson", "quantity_raw": "1"}]}`}
	e := NewExtractor(completer, zerolog.Nop())

	items, raw, err := e.ExtractLines(context.Background(), "Chausson l234567")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Chausson", items[0].ModelNameRaw.String())
	assert.Equal(t, completer.answer, raw)
	assert.Contains(t, completer.prompts[0], "Chausson l234567")

	_, _, err = e.ExtractLines(context.Background(), " ")
	assert.Error(t, err)
}

func TestGroqComplete(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices": [{"message": {"role": "assistant", "content": "{\"items\": []}"}}]}`))
	}))
	defer srv.Close()

	cfg := testConfig()
	cfg.GroqAPIURL = srv.URL
	answer, err := NewGroq(cfg, zerolog.Nop()).Complete(context.Background(), "bonjour")
	require.NoError(t, err)
	assert.Equal(t, `{"items": []}`, answer)
	assert.Equal(t, "llama-test", got.Model)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "bonjour", got.Messages[0].Content)
}

func TestGroqErrors(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{name: "http error", status: http.StatusTooManyRequests, body: `{"error": "rate limited"}`, want: "groq status 429"},
		{name: "no choices", status: http.StatusOK, body: `{"choices": []}`, want: ErrEmptyResponse.Error()},
		{name: "not json", status: http.StatusOK, body: `<html>oops</html>`, want: "not JSON"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			cfg := testConfig()
			cfg.GroqAPIURL = srv.URL
			_, err := NewGroq(cfg, zerolog.Nop()).Complete(context.Background(), "x")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestGeminiComplete(t *testing.T) {
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates": [{"content": {"role": "model", "parts": [{"text": "{\"items\": []}"}]}}]}`))
	}))
	defer srv.Close()

	g, err := newGemini(context.Background(), &genai.ClientConfig{
		APIKey:      "test-key",
		Backend:     genai.BackendGeminiAPI,
		HTTPClient:  srv.Client(),
		HTTPOptions: genai.HTTPOptions{BaseURL: srv.URL + "/"},
	}, testConfig(), zerolog.Nop())
	require.NoError(t, err)

	answer, err := g.Complete(context.Background(), "bonjour")
	require.NoError(t, err)
	assert.Equal(t, `{"items": []}`, answer)
	assert.True(t, strings.HasSuffix(path, "gemini-test:generateContent"), path)
}

func TestNewCompleter(t *testing.T) {
	cfg := testConfig()
	cfg.LLMProvider = "mock"
	c, err := NewCompleter(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	assert.Nil(t, c)

	cfg.LLMProvider = "groq"
	cfg.GroqAPIKey = ""
	_, err = NewCompleter(context.Background(), cfg, zerolog.Nop())
	assert.Error(t, err)

	cfg.LLMProvider = "openai"
	_, err = NewCompleter(context.Background(), cfg, zerolog.Nop())
	assert.Error(t, err)
}
