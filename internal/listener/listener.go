package listener

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"ocrr/internal"
	"ocrr/internal/config"
	"ocrr/internal/connectors"
	gmailconnector "ocrr/internal/connectors/gmail"
	imapconnector "ocrr/internal/connectors/imap"
	"ocrr/internal/pipeline"
	"ocrr/internal/storage"
)

const (
	defaultInterval   = 60 * time.Second
	exportScanLimit   = 200
	emailExported     = "exported"
	emailExportFailed = "export_failed"
)

// Service polls a mailbox, turns new mail into bons and optionally exports
// them, one cycle per interval.
type Service struct {
	db        *storage.DB
	cfg       config.Config
	provider  string
	connector connectors.MailConnector
	processor *pipeline.ProcessingService
	exports   *pipeline.ExportService
	log       zerolog.Logger
}

type CycleResult struct {
	Fetch     connectors.FetchResult
	Processed int
	Lines     int
	Exported  int
	Failed    int
}

func NewService(db *storage.DB, cfg config.Config, provider string, connector connectors.MailConnector, processor *pipeline.ProcessingService, exports *pipeline.ExportService, log zerolog.Logger) *Service {
	return &Service{
		db:        db,
		cfg:       cfg,
		provider:  strings.ToLower(strings.TrimSpace(provider)),
		connector: connector,
		processor: processor,
		exports:   exports,
		log:       log.With().Str("component", "listener").Str("provider", provider).Logger(),
	}
}

// NewConnector builds the mail connector for a provider name.
func NewConnector(ctx context.Context, provider string, cfg config.Config, log zerolog.Logger) (connectors.MailConnector, error) {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case "gmail":
		return gmailconnector.NewConnector(ctx, cfg, log)
	case "imap":
		return imapconnector.NewConnector(cfg, log)
	default:
		return nil, fmt.Errorf("unsupported mail provider: %s", provider)
	}
}

func (s *Service) Run(ctx context.Context) error {
	interval := time.Duration(s.cfg.MailListenerIntervalSec) * time.Second
	if interval <= 0 {
		interval = defaultInterval
	}
	s.log.Info().Dur("interval", interval).Bool("autoExport", s.cfg.MailListenerAutoExport).Msg("listener started")

	for {
		if _, err := s.RunCycle(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.log.Error().Err(err).Msg("listener cycle failed")
		}

		select {
		case <-ctx.Done():
			s.log.Info().Msg("listener stopped")
			return nil
		case <-time.After(interval):
		}
	}
}

func (s *Service) RunCycle(ctx context.Context) (CycleResult, error) {
	var res CycleResult

	fetch := connectors.NewFetchService(s.db, s.cfg.RawMailDir, s.connector, s.log)
	fetched, err := fetch.FetchAndStore(ctx, s.cfg.MailListenerLabel, s.cfg.MailListenerFetchMax)
	if err != nil {
		return res, fmt.Errorf("fetch: %w", err)
	}
	res.Fetch = fetched

	res.Processed, res.Lines, err = s.processor.ProcessPending(ctx, s.cfg.MailListenerProcessBatch, s.provider)
	if err != nil {
		return res, fmt.Errorf("process: %w", err)
	}

	if s.cfg.MailListenerAutoExport {
		res.Exported, res.Failed, err = s.exportProcessed(ctx)
		if err != nil {
			return res, fmt.Errorf("export: %w", err)
		}
	}

	s.log.Info().
		Int("fetched", res.Fetch.Fetched).
		Int("stored", res.Fetch.Stored).
		Int("processed", res.Processed).
		Int("lines", res.Lines).
		Int("exported", res.Exported).
		Int("failed", res.Failed).
		Msg("listener cycle done")
	return res, nil
}

// exportProcessed sends every bon of processed mail through the sheet
// export, or writes XLSX files when sheets are off. An export failure marks
// the email and moves on.
func (s *Service) exportProcessed(ctx context.Context) (int, int, error) {
	emails, err := s.db.ListEmailsByStatus("processed", exportScanLimit)
	if err != nil {
		return 0, 0, err
	}

	exported, failed := 0, 0
	for _, email := range emails {
		if email.Provider != s.provider {
			continue
		}
		if err := ctx.Err(); err != nil {
			return exported, failed, err
		}

		bonIDs, err := s.db.ListBonIDsByEmail(email.ID)
		if err != nil {
			return exported, failed, err
		}

		status := emailExported
		for _, bonID := range bonIDs {
			if err := s.exportBon(ctx, bonID); err != nil {
				s.log.Warn().Err(err).Int("emailId", email.ID).Int("bonId", bonID).Msg("bon export failed")
				status = emailExportFailed
			}
		}
		if err := s.db.UpdateEmailStatus(email.ID, status); err != nil {
			return exported, failed, err
		}
		if status == emailExported {
			exported++
		} else {
			failed++
		}
	}
	return exported, failed, nil
}

func (s *Service) exportBon(ctx context.Context, bonID int) error {
	if s.exports.Enabled() {
		_, err := s.exports.SendBon(ctx, bonID)
		return err
	}
	path, err := s.exports.ExportXLSX(bonID)
	if err != nil {
		return err
	}
	if err := s.db.UpdateBonStatus(bonID, internal.BonExported); err != nil {
		return err
	}
	s.log.Debug().Int("bonId", bonID).Str("path", path).Msg("bon written to xlsx")
	return nil
}
