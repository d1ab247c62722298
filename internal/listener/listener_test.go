package listener

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ocrr/internal"
	"ocrr/internal/catalog"
	"ocrr/internal/config"
	"ocrr/internal/exporter"
	"ocrr/internal/pipeline"
	"ocrr/internal/storage"
)

const orderMail = "From: boutique@example.com\r\n" +
	"Subject: Bon de commande\r\n" +
	"Message-ID: <bon-1@example.com>\r\n" +
	"Content-Type: text/plain; charset=utf-8\r\n" +
	"\r\n" +
	"Ballerine noire 7654321 x2 24,50\r\n" +
	"Sandale AB12345C\r\n"

const newsletterMail = "From: news@example.com\r\n" +
	"Subject: Nos nouveautés\r\n" +
	"Message-ID: <news-1@example.com>\r\n" +
	"Content-Type: text/plain; charset=utf-8\r\n" +
	"\r\n" +
	"Découvrez la collection d'automne.\r\n"

type inbox struct {
	calls int
}

func (b *inbox) FetchInbox(context.Context, string, int) ([]internal.FetchedMailMessage, error) {
	b.calls++
	return []internal.FetchedMailMessage{
		{Provider: "imap", MessageID: "<bon-1@example.com>", Subject: "Bon de commande", ReceivedAt: "2026-10-12T08:00:00Z", Raw: []byte(orderMail)},
		{Provider: "imap", MessageID: "<news-1@example.com>", Subject: "Nos nouveautés", ReceivedAt: "2026-10-12T09:00:00Z", Raw: []byte(newsletterMail)},
	}, nil
}

type okSubmitter struct{ calls int }

func (s *okSubmitter) Append(_ context.Context, items []internal.ResolvedItem) (internal.SubmissionResult, error) {
	s.calls++
	return internal.SubmissionResult{UpdatedRange: "Sheet1!A2:H3", UpdatedRows: int64(len(items))}, nil
}

func sp(v string) *string { return &v }

type fixture struct {
	db      *storage.DB
	service *Service
	outDir  string
}

func newFixture(t *testing.T, submitter exporter.Submitter) fixture {
	t.Helper()
	dir := t.TempDir()
	db, err := storage.Open(filepath.Join(dir, "app.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	cfg := config.Config{
		RawMailDir:               filepath.Join(dir, "raw"),
		ReferenceLengths:         []int{6, 7, 8, 9},
		ColorMinLength:           4,
		MinPriceValue:            10,
		MaxReferenceDistance:     1,
		MaxModelDistance:         2,
		MaxQuantity:              10,
		ValidationMaxAttempts:    3,
		MailListenerLabel:        "INBOX",
		MailListenerFetchMax:     10,
		MailListenerProcessBatch: 10,
		MailListenerAutoExport:   true,
	}
	store := catalog.NewStaticStore([]internal.CatalogEntry{
		{Reference: "7654321", Model: sp("Ballerine"), Color: sp("Noir"), Size: sp("40"), Price: sp("24.50")},
		{Reference: "AB12345C", Model: sp("Sandale"), Color: sp("Rouge"), Price: sp("30")},
	}, cfg.ReferenceLengths)
	merger := pipeline.NewMerger(cfg, store, zerolog.Nop())

	var coordinator *exporter.Coordinator
	if submitter != nil {
		coordinator = exporter.NewCoordinator(merger, submitter, nil, exporter.OptionsFromConfig(cfg), zerolog.Nop())
	}
	outDir := filepath.Join(dir, "out")
	svc := NewService(db, cfg, "imap", &inbox{},
		pipeline.NewProcessingService(db, cfg, merger, nil, zerolog.Nop()),
		pipeline.NewExportService(db, coordinator, outDir, zerolog.Nop()),
		zerolog.Nop())
	return fixture{db: db, service: svc, outDir: outDir}
}

func bonOf(t *testing.T, db *storage.DB, messageID string) (internal.EmailRow, internal.BonRow) {
	t.Helper()
	email, err := db.GetEmailByProviderMessageID("imap", messageID)
	require.NoError(t, err)
	require.NotNil(t, email)
	ids, err := db.ListBonIDsByEmail(email.ID)
	require.NoError(t, err)
	require.Len(t, ids, 1)
	bon, err := db.MustBon(ids[0])
	require.NoError(t, err)
	return *email, bon
}

func TestRunCycleExportsToSheet(t *testing.T) {
	submitter := &okSubmitter{}
	f := newFixture(t, submitter)

	res, err := f.service.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Fetch.Stored)
	assert.Equal(t, 2, res.Processed)
	assert.Equal(t, 2, res.Lines)
	assert.Equal(t, 1, res.Exported)
	assert.Equal(t, 0, res.Failed)
	assert.Equal(t, 1, submitter.calls)

	email, bon := bonOf(t, f.db, "<bon-1@example.com>")
	assert.Equal(t, "exported", email.Status)
	assert.Equal(t, internal.BonExported, bon.Status)

	news, err := f.db.GetEmailByProviderMessageID("imap", "<news-1@example.com>")
	require.NoError(t, err)
	assert.Equal(t, "skipped", news.Status)

	again, err := f.service.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, again.Fetch.Known)
	assert.Equal(t, 0, again.Processed)
	assert.Equal(t, 0, again.Exported)
	assert.Equal(t, 1, submitter.calls)
}

func TestRunCycleWritesXLSXWithoutSheets(t *testing.T) {
	f := newFixture(t, nil)

	res, err := f.service.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Exported)

	_, bon := bonOf(t, f.db, "<bon-1@example.com>")
	assert.Equal(t, internal.BonExported, bon.Status)
	_, err = os.Stat(filepath.Join(f.outDir, "bon_"+strconv.Itoa(bon.ID)+"_"+bon.TraceID+".xlsx"))
	assert.NoError(t, err)
}

func TestRunStopsOnCancel(t *testing.T) {
	f := newFixture(t, &okSubmitter{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan error, 1)
	go func() { done <- f.service.Run(ctx) }()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestNewConnectorUnknownProvider(t *testing.T) {
	_, err := NewConnector(context.Background(), "pop3", config.Config{}, zerolog.Nop())
	assert.ErrorContains(t, err, "unsupported mail provider")
}
