package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"time"

	"ocrr/internal"
	"ocrr/internal/config"
	"ocrr/internal/util"
)

const maxFetchAttempts = 5

// Client pages through a remote catalog service.
type Client struct {
	cfg        config.Config
	httpClient *http.Client
	limiter    *RateLimiter
}

type pagePayload struct {
	Entries    []map[string]any `json:"entries"`
	NextCursor *string          `json:"nextCursor"`
}

func NewClient(cfg config.Config) *Client {
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: time.Duration(cfg.CatalogTimeoutMs) * time.Millisecond},
		limiter:    NewRateLimiter(cfg.CatalogRateLimitRPS),
	}
}

func (c *Client) FetchAll(ctx context.Context) ([]internal.CatalogEntry, error) {
	all := make([]internal.CatalogEntry, 0)
	seen := map[string]struct{}{}
	var cursor string

	for {
		query := map[string]string{}
		if cursor != "" {
			query["cursor"] = cursor
		}

		body, err := c.fetchJSON(ctx, "catalog/entries", query)
		if err != nil {
			return nil, err
		}

		var payload pagePayload
		if err := json.Unmarshal(body, &payload); err != nil {
			return nil, err
		}

		for _, raw := range payload.Entries {
			entry, err := toCatalogEntry(raw)
			if err != nil {
				continue
			}
			all = append(all, entry)
		}

		if payload.NextCursor == nil || *payload.NextCursor == "" || len(payload.Entries) == 0 {
			break
		}
		if _, ok := seen[*payload.NextCursor]; ok {
			break
		}
		seen[*payload.NextCursor] = struct{}{}
		cursor = *payload.NextCursor
	}

	return all, nil
}

func (c *Client) fetchJSON(ctx context.Context, endpoint string, params map[string]string) ([]byte, error) {
	if strings.TrimSpace(c.cfg.CatalogAPIBaseURL) == "" {
		return nil, errors.New("missing CATALOG_API_BASE_URL")
	}

	baseURL := strings.TrimRight(c.cfg.CatalogAPIBaseURL, "/") + "/"
	u, err := url.Parse(baseURL + endpoint)
	if err != nil {
		return nil, err
	}

	q := u.Query()
	for k, v := range params {
		if strings.TrimSpace(v) != "" {
			q.Set(k, v)
		}
	}
	u.RawQuery = q.Encode()

	var lastErr error
	for attempt := 1; attempt <= maxFetchAttempts; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
		if err != nil {
			return nil, err
		}
		if token := strings.TrimSpace(c.cfg.CatalogAPIToken); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		body, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			lastErr = readErr
			continue
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			if isRetryableStatus(resp.StatusCode) && attempt < maxFetchAttempts {
				lastErr = fmt.Errorf("catalog status %d", resp.StatusCode)
				if err := sleepCtx(ctx, backoff(attempt)); err != nil {
					return nil, err
				}
				continue
			}
			return nil, fmt.Errorf("catalog api error: status=%d body=%s", resp.StatusCode, string(body))
		}
		return body, nil
	}

	if lastErr == nil {
		lastErr = errors.New("catalog request failed")
	}
	return nil, lastErr
}

func backoff(attempt int) time.Duration {
	return time.Duration(250*(1<<(attempt-1))+rand.Intn(100)) * time.Millisecond
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func isRetryableStatus(status int) bool {
	switch status {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

func toCatalogEntry(raw map[string]any) (internal.CatalogEntry, error) {
	ref := toStringPtr(firstOf(raw, "reference", "ref", "codifcat"))
	if ref == nil {
		return internal.CatalogEntry{}, errors.New("missing reference")
	}
	return internal.CatalogEntry{
		Reference: *ref,
		Model:     toStringPtr(firstOf(raw, "model", "modele")),
		Color:     toStringPtr(firstOf(raw, "color", "coloris", "couleur")),
		Size:      toStringPtr(firstOf(raw, "size", "taille")),
		Price:     toStringPtr(firstOf(raw, "price", "prix")),
	}, nil
}

func firstOf(raw map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := raw[k]; ok && v != nil {
			return v
		}
	}
	return nil
}

func toStringPtr(v any) *string {
	switch t := v.(type) {
	case string:
		return util.NonEmpty(t)
	case float64:
		return util.StringPtr(strings.TrimSuffix(strings.TrimRight(fmt.Sprintf("%.4f", t), "0"), "."))
	case json.Number:
		return util.NonEmpty(t.String())
	default:
		return nil
	}
}
