package sheets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2/google"
	"golang.org/x/oauth2/jwt"
	"google.golang.org/api/option"
	sheetsapi "google.golang.org/api/sheets/v4"

	"ocrr/internal"
	"ocrr/internal/config"
)

var (
	ErrDisabled       = errors.New("google sheets export is disabled")
	ErrNoItems        = errors.New("no items to append")
	ErrMissingAccount = errors.New("missing google service account credentials")
)

// Client appends resolved lines to a spreadsheet tab. The API service is
// created on first use and reused afterwards.
type Client struct {
	cfg  config.Config
	opts []option.ClientOption
	log  zerolog.Logger
	now  func() time.Time

	mu      sync.Mutex
	service *sheetsapi.Service
}

// NewClient builds a client. Extra options replace the service account
// authentication, which tests use to point the client at a fake endpoint.
func NewClient(cfg config.Config, log zerolog.Logger, opts ...option.ClientOption) *Client {
	return &Client{
		cfg:  cfg,
		opts: opts,
		log:  log.With().Str("component", "sheets").Logger(),
		now:  time.Now,
	}
}

func (c *Client) Enabled() bool {
	return c.cfg.GoogleSheetsEnabled
}

func (c *Client) Append(ctx context.Context, items []internal.ResolvedItem) (internal.SubmissionResult, error) {
	if !c.cfg.GoogleSheetsEnabled {
		return internal.SubmissionResult{}, ErrDisabled
	}
	if len(items) == 0 {
		return internal.SubmissionResult{}, ErrNoItems
	}
	if err := c.cfg.Require("GOOGLE_SHEET_ID", c.cfg.GoogleSheetID); err != nil {
		return internal.SubmissionResult{}, err
	}

	svc, err := c.getService(ctx)
	if err != nil {
		return internal.SubmissionResult{}, err
	}

	tab := c.cfg.GoogleSheetsTabName
	if tab == "" {
		tab = "Sheet1"
	}
	resp, err := svc.Spreadsheets.Values.Append(c.cfg.GoogleSheetID, tab+"!A2", &sheetsapi.ValueRange{
		Values: Rows(items, c.now()),
	}).ValueInputOption("USER_ENTERED").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
	if err != nil {
		return internal.SubmissionResult{}, err
	}

	result := internal.SubmissionResult{}
	if resp.Updates != nil {
		result.UpdatedRange = resp.Updates.UpdatedRange
		result.UpdatedRows = resp.Updates.UpdatedRows
	}
	c.log.Debug().Str("range", result.UpdatedRange).Int64("rows", result.UpdatedRows).Msg("rows appended")
	return result, nil
}

// Rows maps lines to sheet rows: page, model, color, reference, size,
// quantity, price and the export timestamp.
func Rows(items []internal.ResolvedItem, now time.Time) [][]interface{} {
	stamp := now.UTC().Format(time.RFC3339)
	out := make([][]interface{}, 0, len(items))
	for _, item := range items {
		page := ""
		if item.Page != nil {
			page = strconv.Itoa(*item.Page)
		}
		out = append(out, []interface{}{
			cell(&page),
			cell(item.ModelNameRaw),
			cell(item.ColorisRaw),
			cell(item.ReferenceOCR),
			cell(item.SizeOrCodeRaw),
			cell(&item.QuantityRaw),
			cell(item.UnitPriceRaw),
			stamp,
		})
	}
	return out
}

func cell(v *string) interface{} {
	if v == nil || *v == "" {
		return nil
	}
	return *v
}

func (c *Client) getService(ctx context.Context) (*sheetsapi.Service, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.service != nil {
		return c.service, nil
	}

	opts := c.opts
	if len(opts) == 0 {
		jwtCfg, err := c.serviceAccount()
		if err != nil {
			return nil, err
		}
		opts = []option.ClientOption{option.WithTokenSource(jwtCfg.TokenSource(context.Background()))}
	}
	svc, err := sheetsapi.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	c.service = svc
	return svc, nil
}

// serviceAccount prefers inline credentials and falls back to a key file.
func (c *Client) serviceAccount() (*jwt.Config, error) {
	key := strings.ReplaceAll(c.cfg.GoogleServiceAccountKey, `\n`, "\n")
	if c.cfg.GoogleServiceAccountEmail != "" && strings.Contains(key, "BEGIN PRIVATE KEY") {
		return &jwt.Config{
			Email:      c.cfg.GoogleServiceAccountEmail,
			PrivateKey: []byte(key),
			Scopes:     []string{sheetsapi.SpreadsheetsScope},
			TokenURL:   google.JWTTokenURL,
		}, nil
	}

	path := c.cfg.GoogleServiceAccountKeyFile
	if path == "" {
		path = os.Getenv("GOOGLE_APPLICATION_CREDENTIALS")
	}
	if path == "" {
		return nil, ErrMissingAccount
	}
	blob, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read service account key %s: %w", path, err)
	}
	var probe struct {
		ClientEmail string `json:"client_email"`
		PrivateKey  string `json:"private_key"`
	}
	if err := json.Unmarshal(blob, &probe); err != nil {
		return nil, fmt.Errorf("parse service account key %s: %w", path, err)
	}
	if probe.ClientEmail == "" || !strings.Contains(probe.PrivateKey, "BEGIN PRIVATE KEY") {
		return nil, ErrMissingAccount
	}
	return google.JWTConfigFromJSON(blob, sheetsapi.SpreadsheetsScope)
}
