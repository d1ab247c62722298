package pipeline

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"ocrr/internal"
	"ocrr/internal/config"
	"ocrr/internal/storage"
)

// LineExtractor structures recognized text into order lines.
type LineExtractor interface {
	ExtractLines(ctx context.Context, ocrText string) ([]internal.ExtractedItem, string, error)
}

type ProcessingService struct {
	db        *storage.DB
	cfg       config.Config
	merger    *Merger
	extractor LineExtractor
	log       zerolog.Logger
}

// NewProcessingService wires the processing stages. extractor may be nil, in
// which case text bons keep the lines read by the line parser.
func NewProcessingService(db *storage.DB, cfg config.Config, merger *Merger, extractor LineExtractor, log zerolog.Logger) *ProcessingService {
	return &ProcessingService{db: db, cfg: cfg, merger: merger, extractor: extractor, log: log}
}

type ProcessResult struct {
	BonID       int                     `json:"bonId"`
	TraceID     string                  `json:"traceId"`
	EmailID     *int                    `json:"emailId,omitempty"`
	Source      internal.BonSource      `json:"source"`
	OCRText     string                  `json:"ocrText"`
	RawResponse string                  `json:"rawResponse"`
	Items       []internal.ResolvedItem `json:"items"`
	Skipped     bool                    `json:"skipped,omitempty"`
}

func (s *ProcessingService) ProcessByProviderMessageID(ctx context.Context, provider, messageID string) (ProcessResult, error) {
	email, err := s.db.GetEmailByProviderMessageID(provider, messageID)
	if err != nil {
		return ProcessResult{}, err
	}
	if email == nil {
		return ProcessResult{}, fmt.Errorf("email not found: provider=%s messageID=%s", provider, messageID)
	}
	return s.ProcessEmail(ctx, *email)
}

// ProcessPending processes fetched emails and returns how many emails and
// resolved lines were handled.
func (s *ProcessingService) ProcessPending(ctx context.Context, limit int, provider string) (int, int, error) {
	pending, err := s.db.ListEmailsByStatus("fetched", limit)
	if err != nil {
		return 0, 0, err
	}
	processedEmails := 0
	processedLines := 0
	for _, email := range pending {
		if err := ctx.Err(); err != nil {
			return processedEmails, processedLines, err
		}
		if provider != "" && email.Provider != provider {
			continue
		}
		res, err := s.ProcessEmail(ctx, email)
		if err != nil {
			return processedEmails, processedLines, err
		}
		processedEmails++
		processedLines += len(res.Items)
	}
	return processedEmails, processedLines, nil
}

func (s *ProcessingService) ProcessEmail(ctx context.Context, email internal.EmailRow) (ProcessResult, error) {
	raw, err := os.ReadFile(email.RawRef)
	if err != nil {
		return ProcessResult{}, err
	}

	mail, err := ExtractBonFromEmailRaw(raw)
	if err != nil {
		return ProcessResult{}, err
	}
	if err := s.db.ClearEmailProcessing(email.ID); err != nil {
		return ProcessResult{}, err
	}

	detect := DetectOrderForm(firstNonEmpty(mail.Subject, email.Subject), mail.Bon.OCRText, mail.HTML, mail.AttachmentNames)
	if !detect.IsOrderForm && len(mail.Bon.Items) == 0 {
		s.log.Info().Int("emailId", email.ID).Float64("score", detect.Score).Msg("email skipped, not an order form")
		if err := s.db.UpdateEmailStatus(email.ID, "skipped"); err != nil {
			return ProcessResult{}, err
		}
		return ProcessResult{EmailID: &email.ID, Skipped: true, Items: []internal.ResolvedItem{}}, nil
	}

	emailID := email.ID
	res, err := s.ProcessBon(ctx, mail.Bon, &emailID)
	if err != nil {
		return ProcessResult{}, err
	}
	if err := s.db.UpdateEmailStatus(email.ID, "processed"); err != nil {
		return ProcessResult{}, err
	}
	return res, nil
}

// ProcessBon resolves a bon against the catalog and stores it with its lines.
func (s *ProcessingService) ProcessBon(ctx context.Context, bon internal.Bon, emailID *int) (ProcessResult, error) {
	start := time.Now()
	traceID := uuid.NewString()
	log := s.log.With().Str("traceId", traceID).Str("source", string(bon.Source)).Logger()

	if s.extractor != nil && bon.Source != internal.SourceJSON && strings.TrimSpace(bon.OCRText) != "" {
		extractStart := time.Now()
		items, raw, err := s.extractor.ExtractLines(ctx, bon.OCRText)
		switch {
		case err != nil:
			log.Warn().Err(err).Msg("line extraction failed, keeping parsed lines")
		case len(items) > 0:
			bon.Items = items
			bon.RawResponse = raw
		}
		log.Debug().Dur("took", time.Since(extractStart)).Int("items", len(items)).Msg("lines extracted")
	}

	bonID, err := s.db.InsertBon(traceID, emailID, bon)
	if err != nil {
		return ProcessResult{}, err
	}

	mergeStart := time.Now()
	items := s.merger.Merge(ctx, bon.Items, bon.OCRText)
	mergeMs := float64(time.Since(mergeStart).Milliseconds())
	if err := s.db.ReplaceBonLines(bonID, items); err != nil {
		return ProcessResult{}, err
	}

	counts := lineCounts(items)
	counts["extracted"] = len(bon.Items)
	if err := s.db.InsertRun(traceID, bonID, map[string]float64{
		"mergeMs": mergeMs,
		"totalMs": float64(time.Since(start).Milliseconds()),
	}, counts); err != nil {
		log.Warn().Err(err).Msg("run not recorded")
	}

	log.Info().
		Int("bonId", bonID).
		Int("extracted", len(bon.Items)).
		Int("lines", len(items)).
		Int("review", counts["review"]).
		Int("discovered", counts["discovered"]).
		Msg("bon processed")

	return ProcessResult{
		BonID:       bonID,
		TraceID:     traceID,
		EmailID:     emailID,
		Source:      bon.Source,
		OCRText:     bon.OCRText,
		RawResponse: bon.RawResponse,
		Items:       items,
	}, nil
}

func lineCounts(items []internal.ResolvedItem) map[string]int {
	counts := map[string]int{"ok": 0, "review": 0, "discovered": 0}
	for _, item := range items {
		if item.NeedsReview {
			counts["review"]++
		} else {
			counts["ok"]++
		}
		if item.Origin == internal.OriginTextDiscovery {
			counts["discovered"]++
		}
	}
	return counts
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
