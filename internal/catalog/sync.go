package catalog

import (
	"context"
	"errors"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"ocrr/internal"
	"ocrr/internal/config"
	"ocrr/internal/storage"
)

// SyncService moves catalog data from a file or the remote service into
// sqlite and writes a JSON snapshot next to the other outputs.
type SyncService struct {
	db     *storage.DB
	client *Client
	cfg    config.Config
	log    zerolog.Logger
}

type SyncResult struct {
	Received   int
	Stored     int
	Duplicates int
	Rejected   int
	Snapshot   string
}

func NewSyncService(db *storage.DB, cfg config.Config, log zerolog.Logger) *SyncService {
	return &SyncService{db: db, client: NewClient(cfg), cfg: cfg, log: log}
}

func (s *SyncService) ImportFile(ctx context.Context, path string) (SyncResult, error) {
	entries, err := ReadFile(path)
	if err != nil {
		return SyncResult{}, err
	}
	res, err := s.store(entries)
	if err != nil {
		return res, err
	}
	_ = s.db.SetMetadata("catalog.last_file_import", time.Now().UTC().Format(time.RFC3339))
	_ = s.db.SetMetadata("catalog.last_file_import_path", path)
	s.log.Info().Str("path", path).Int("stored", res.Stored).Int("rejected", res.Rejected).Msg("catalog file imported")
	return res, nil
}

func (s *SyncService) RemoteSync(ctx context.Context) (SyncResult, error) {
	entries, err := s.client.FetchAll(ctx)
	if err != nil {
		return SyncResult{}, err
	}
	if len(entries) == 0 {
		return SyncResult{}, errors.New("remote catalog returned no entries")
	}
	res, err := s.store(entries)
	if err != nil {
		return res, err
	}
	_ = s.db.SetMetadata("catalog.last_remote_sync", time.Now().UTC().Format(time.RFC3339))
	s.log.Info().Int("received", res.Received).Int("stored", res.Stored).Msg("remote catalog synced")
	return res, nil
}

func (s *SyncService) store(entries []internal.CatalogEntry) (SyncResult, error) {
	idx := BuildIndex(entries, s.cfg.ReferenceLengths)
	res := SyncResult{
		Received:   len(entries),
		Stored:     idx.Len(),
		Duplicates: idx.Duplicates,
		Rejected:   idx.Rejected,
	}

	normalized := make([]internal.CatalogEntry, 0, idx.Len())
	for _, e := range idx.Entries {
		normalized = append(normalized, *e)
	}
	if err := s.db.UpsertCatalogEntries(normalized); err != nil {
		return res, err
	}

	res.Snapshot = filepath.Join(s.cfg.OutputDir, "catalog.json")
	if err := WriteSnapshot(res.Snapshot, idx.Entries); err != nil {
		return res, err
	}
	return res, nil
}
