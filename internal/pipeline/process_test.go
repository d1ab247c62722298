package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"ocrr/internal"
	"ocrr/internal/exporter"
	"ocrr/internal/storage"
	"ocrr/internal/util"
)

const orderEmail = "From: boutique@example.com\r\n" +
	"To: commandes@example.com\r\n" +
	"Subject: Bon de commande\r\n" +
	"MIME-Version: 1.0\r\n" +
	"Content-Type: text/plain; charset=utf-8\r\n" +
	"\r\n" +
	"Ballerine noire 7654321 x2 24,50\r\n" +
	"Sandale AB12345C\r\n"

const newsletterEmail = "From: news@example.com\r\n" +
	"To: commandes@example.com\r\n" +
	"Subject: Nos nouveautés\r\n" +
	"MIME-Version: 1.0\r\n" +
	"Content-Type: text/plain; charset=utf-8\r\n" +
	"\r\n" +
	"Découvrez la collection d'automne.\r\n"

type flakySubmitter struct {
	failures int
	calls    int
}

func (f *flakySubmitter) Append(_ context.Context, items []internal.ResolvedItem) (internal.SubmissionResult, error) {
	f.calls++
	if f.calls <= f.failures {
		return internal.SubmissionResult{}, errors.New("timeout")
	}
	return internal.SubmissionResult{UpdatedRange: "Commandes!A2:H3", UpdatedRows: int64(len(items))}, nil
}

type echoCorrector struct{}

func (echoCorrector) Correct(_ context.Context, req exporter.CorrectionRequest) (exporter.Correction, error) {
	return exporter.Correction{Items: internal.ExtractedFromResolved(req.Items), Notes: util.StringPtr("rien a corriger")}, nil
}

func openTestDB(t *testing.T) *storage.DB {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "app.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func storeEmail(t *testing.T, db *storage.DB, messageID, raw string) internal.EmailRow {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mail.eml")
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatal(err)
	}
	email, err := db.UpsertEmail("imap", messageID, "", "boutique@example.com", "2026-10-01T08:00:00Z", messageID, path, "fetched")
	if err != nil {
		t.Fatal(err)
	}
	return email
}

func TestProcessEmailThenSend(t *testing.T) {
	db := openTestDB(t)
	cfg := testConfig()
	merger := newTestMerger(cfg)
	proc := NewProcessingService(db, cfg, merger, nil, zerolog.Nop())

	email := storeEmail(t, db, "<bon-1@example.com>", orderEmail)
	res, err := proc.ProcessEmail(context.Background(), email)
	if err != nil {
		t.Fatal(err)
	}
	if res.Skipped || len(res.Items) != 2 || res.TraceID == "" {
		t.Fatalf("unexpected result %+v", res)
	}
	for _, item := range res.Items {
		if item.NeedsReview {
			t.Fatalf("line should be clean: %+v", item)
		}
	}

	stored, err := db.GetEmailByID(email.ID)
	if err != nil || stored == nil || stored.Status != "processed" {
		t.Fatalf("email status not updated: %+v %v", stored, err)
	}

	submitter := &flakySubmitter{failures: 1}
	coordinator := exporter.NewCoordinator(merger, submitter, echoCorrector{}, exporter.Options{MaxAttempts: 3, MaxQuantity: 10, AgentEnabled: true}, zerolog.Nop())
	sender := NewExportService(db, coordinator, t.TempDir(), zerolog.Nop())

	sub, err := sender.SendBon(context.Background(), res.BonID)
	if err != nil {
		t.Fatal(err)
	}
	if sub.Attempts != 2 || submitter.calls != 2 {
		t.Fatalf("attempts=%d calls=%d", sub.Attempts, submitter.calls)
	}

	bon, err := db.MustBon(res.BonID)
	if err != nil {
		t.Fatal(err)
	}
	if bon.Status != internal.BonExported {
		t.Fatalf("status=%s", bon.Status)
	}
	history, err := db.ListExportAttempts(res.BonID)
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 1 || !history[0].AgentApplied || history[0].Error != "timeout" {
		t.Fatalf("unexpected history %+v", history)
	}

	path, err := sender.ExportXLSX(res.BonID)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatal(err)
	}
}

func TestSendBonFailureIsRecorded(t *testing.T) {
	db := openTestDB(t)
	cfg := testConfig()
	merger := newTestMerger(cfg)
	proc := NewProcessingService(db, cfg, merger, nil, zerolog.Nop())

	res, err := proc.ProcessBon(context.Background(), BonFromText("Ballerine 7654321 x2"), nil)
	if err != nil {
		t.Fatal(err)
	}

	submitter := &flakySubmitter{failures: 10}
	coordinator := exporter.NewCoordinator(merger, submitter, nil, exporter.Options{MaxAttempts: 3, MaxQuantity: 10, AgentEnabled: true}, zerolog.Nop())
	sender := NewExportService(db, coordinator, t.TempDir(), zerolog.Nop())

	_, err = sender.SendBon(context.Background(), res.BonID)
	if !errors.Is(err, exporter.ErrSubmissionFailed) || !errors.Is(err, exporter.ErrAttemptsExhausted) {
		t.Fatalf("err=%v", err)
	}
	bon, _ := db.MustBon(res.BonID)
	if bon.Status != internal.BonExportFailed {
		t.Fatalf("status=%s", bon.Status)
	}
	history, _ := db.ListExportAttempts(res.BonID)
	if len(history) != 1 {
		t.Fatalf("history=%+v", history)
	}
}

func TestSendBonKeepsFlaggedLinesOut(t *testing.T) {
	db := openTestDB(t)
	cfg := testConfig()
	merger := newTestMerger(cfg)
	proc := NewProcessingService(db, cfg, merger, nil, zerolog.Nop())

	bon := internal.Bon{Source: internal.SourceJSON, Items: []internal.ExtractedItem{item("l234567", "2")}}
	res, err := proc.ProcessBon(context.Background(), bon, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Items) != 1 || !res.Items[0].NeedsReview {
		t.Fatalf("confusable line should be flagged: %+v", res.Items)
	}

	for _, tc := range []struct {
		name      string
		corrector exporter.Corrector
		attempts  int
	}{
		{name: "no corrector", corrector: nil, attempts: 1},
		{name: "echo corrector", corrector: echoCorrector{}, attempts: 3},
	} {
		t.Run(tc.name, func(t *testing.T) {
			submitter := &flakySubmitter{}
			coordinator := exporter.NewCoordinator(merger, submitter, tc.corrector, exporter.Options{MaxAttempts: 3, MaxQuantity: 10, AgentEnabled: true}, zerolog.Nop())
			sender := NewExportService(db, coordinator, t.TempDir(), zerolog.Nop())

			_, err := sender.SendBon(context.Background(), res.BonID)
			if !errors.Is(err, exporter.ErrAttemptsExhausted) || !errors.Is(err, exporter.ErrPreflightInvalid) {
				t.Fatalf("err=%v", err)
			}
			if submitter.calls != 0 {
				t.Fatalf("flagged line reached the sheet after %d call(s)", submitter.calls)
			}
			f, _ := exporter.AsFailure(err)
			if len(f.History) != tc.attempts || !strings.Contains(f.History[0].Error, "needs_review") {
				t.Fatalf("history=%+v", f.History)
			}
			lines, err := db.ListBonLines(res.BonID)
			if err != nil || len(lines) != 1 || !lines[0].NeedsReview {
				t.Fatalf("stored line lost its flag: %+v %v", lines, err)
			}
		})
	}
}

func TestSendDisabled(t *testing.T) {
	sender := NewExportService(openTestDB(t), nil, t.TempDir(), zerolog.Nop())
	if _, err := sender.Send(context.Background(), []internal.ExtractedItem{item("7654321", "1")}, ""); !errors.Is(err, ErrExportDisabled) {
		t.Fatalf("err=%v", err)
	}
}

func TestProcessEmailSkipsNewsletter(t *testing.T) {
	db := openTestDB(t)
	proc := NewProcessingService(db, testConfig(), newTestMerger(testConfig()), nil, zerolog.Nop())

	email := storeEmail(t, db, "<news-1@example.com>", newsletterEmail)
	res, err := proc.ProcessEmail(context.Background(), email)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Skipped {
		t.Fatalf("newsletter should be skipped: %+v", res)
	}
	stored, _ := db.GetEmailByID(email.ID)
	if stored.Status != "skipped" {
		t.Fatalf("status=%s", stored.Status)
	}
}

type stubExtractor struct {
	items []internal.ExtractedItem
	err   error
}

func (s stubExtractor) ExtractLines(context.Context, string) ([]internal.ExtractedItem, string, error) {
	return s.items, `{"items":[]}`, s.err
}

func TestProcessBonUsesExtractor(t *testing.T) {
	db := openTestDB(t)
	cfg := testConfig()
	cfg.EnableTextDiscovery = false

	extractor := stubExtractor{items: []internal.ExtractedItem{item("1234567", "3")}}
	proc := NewProcessingService(db, cfg, newTestMerger(cfg), extractor, zerolog.Nop())
	res, err := proc.ProcessBon(context.Background(), BonFromText("Chausson rose 1234567 trois paires"), nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Items) != 1 || res.Items[0].QuantityRaw != "3" || !strings.Contains(res.RawResponse, "items") {
		t.Fatalf("extractor lines not used: %+v", res)
	}

	failing := NewProcessingService(db, cfg, newTestMerger(cfg), stubExtractor{err: errors.New("llm down")}, zerolog.Nop())
	res, err = failing.ProcessBon(context.Background(), BonFromText("Chausson rose 1234567 x2"), nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Items) != 1 || res.Items[0].QuantityRaw != "2" {
		t.Fatalf("parsed lines should be kept when extraction fails: %+v", res.Items)
	}
}
