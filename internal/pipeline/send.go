package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog"

	"ocrr/internal"
	"ocrr/internal/exporter"
	"ocrr/internal/storage"
)

var ErrExportDisabled = errors.New("sheet export is disabled")

// ExportService sends stored bons through the export coordinator and keeps
// the attempt history next to the bon.
type ExportService struct {
	db          *storage.DB
	coordinator *exporter.Coordinator
	outputDir   string
	log         zerolog.Logger
}

// NewExportService builds the service; a nil coordinator means sheet export
// is off and only the XLSX export is available.
func NewExportService(db *storage.DB, coordinator *exporter.Coordinator, outputDir string, log zerolog.Logger) *ExportService {
	return &ExportService{db: db, coordinator: coordinator, outputDir: outputDir, log: log}
}

func (s *ExportService) Enabled() bool {
	return s.coordinator != nil
}

// Send runs the export loop on lines that are not stored anywhere.
func (s *ExportService) Send(ctx context.Context, items []internal.ExtractedItem, ocrText string) (*exporter.Submission, error) {
	if s.coordinator == nil {
		return nil, ErrExportDisabled
	}
	return s.coordinator.Submit(ctx, items, ocrText)
}

// SendBon exports the stored lines of a bon. The outcome, success or
// failure, replaces the stored lines and is recorded in the attempt history.
func (s *ExportService) SendBon(ctx context.Context, bonID int) (*exporter.Submission, error) {
	if s.coordinator == nil {
		return nil, ErrExportDisabled
	}
	bon, err := s.db.MustBon(bonID)
	if err != nil {
		return nil, err
	}
	lines, err := s.db.ListBonLines(bonID)
	if err != nil {
		return nil, err
	}
	log := s.log.With().Int("bonId", bonID).Str("traceId", bon.TraceID).Logger()

	sub, sendErr := s.coordinator.Submit(ctx, internal.ExtractedFromResolved(lines), bon.OCRText)
	if sendErr != nil {
		failure, ok := exporter.AsFailure(sendErr)
		if !ok {
			return nil, sendErr
		}
		if err := s.record(bonID, failure.History, failure.Items, internal.BonExportFailed); err != nil {
			return nil, errors.Join(sendErr, err)
		}
		log.Warn().Str("error", exporter.Summary(sendErr)).Msg("bon export failed")
		return nil, sendErr
	}

	if err := s.record(bonID, sub.History, sub.Items, internal.BonExported); err != nil {
		return sub, err
	}
	log.Info().Int("attempts", sub.Attempts).Str("range", sub.Result.UpdatedRange).Msg("bon exported")
	return sub, nil
}

func (s *ExportService) record(bonID int, history []internal.AttemptHistoryEntry, items []internal.ResolvedItem, status string) error {
	if err := s.db.InsertExportAttempts(bonID, history); err != nil {
		return err
	}
	if len(items) > 0 {
		if err := s.db.ReplaceBonLines(bonID, items); err != nil {
			return err
		}
	}
	return s.db.UpdateBonStatus(bonID, status)
}

// ExportXLSX writes the stored lines of a bon to OutputDir and returns the path.
func (s *ExportService) ExportXLSX(bonID int) (string, error) {
	bon, err := s.db.MustBon(bonID)
	if err != nil {
		return "", err
	}
	lines, err := s.db.ListBonLines(bonID)
	if err != nil {
		return "", err
	}
	out := filepath.Join(s.outputDir, fmt.Sprintf("bon_%d_%s.xlsx", bonID, bon.TraceID))
	if err := ExportLinesToXLSX(lines, out); err != nil {
		return "", err
	}
	return out, nil
}
