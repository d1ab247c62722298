package catalog

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"ocrr/internal"
	"ocrr/internal/storage"
	"ocrr/internal/util"
)

// ErrCatalogUnavailable marks a missing or unreadable catalog source. The
// store treats it as non-fatal and serves an empty catalog.
var ErrCatalogUnavailable = errors.New("catalog unavailable")

// Loader returns the raw catalog entries and a short description of where
// they came from.
type Loader func(ctx context.Context) ([]internal.CatalogEntry, string, error)

// FileLoader reads the first existing path among candidates.
func FileLoader(candidates ...string) Loader {
	return func(ctx context.Context) ([]internal.CatalogEntry, string, error) {
		for _, p := range candidates {
			if strings.TrimSpace(p) == "" {
				continue
			}
			if _, err := os.Stat(p); err != nil {
				continue
			}
			entries, err := ReadFile(p)
			if err != nil {
				return nil, p, fmt.Errorf("%w: %s: %v", ErrCatalogUnavailable, p, err)
			}
			return entries, p, nil
		}
		return nil, "", fmt.Errorf("%w: no catalog file among %v", ErrCatalogUnavailable, candidates)
	}
}

// DBLoader reads the catalog previously imported into sqlite.
func DBLoader(db *storage.DB) Loader {
	return func(ctx context.Context) ([]internal.CatalogEntry, string, error) {
		entries, err := db.ListCatalogEntries()
		if err != nil {
			return nil, "sqlite", fmt.Errorf("%w: %v", ErrCatalogUnavailable, err)
		}
		if len(entries) == 0 {
			return nil, "sqlite", fmt.Errorf("%w: catalog table is empty", ErrCatalogUnavailable)
		}
		return entries, "sqlite", nil
	}
}

// Store builds the index once, on first use, and serves it read-only afterwards.
type Store struct {
	loader  Loader
	lengths []int
	log     zerolog.Logger

	once sync.Once
	idx  *Index
}

func NewStore(loader Loader, lengths []int, log zerolog.Logger) *Store {
	return &Store{loader: loader, lengths: lengths, log: log}
}

// NewStaticStore wraps an in-memory catalog.
func NewStaticStore(entries []internal.CatalogEntry, lengths []int) *Store {
	return NewStore(func(context.Context) ([]internal.CatalogEntry, string, error) {
		return entries, "memory", nil
	}, lengths, zerolog.Nop())
}

func (s *Store) Index(ctx context.Context) *Index {
	s.once.Do(func() {
		entries, source, err := s.loader(ctx)
		if err != nil {
			s.log.Warn().Err(err).Str("source", source).Msg("catalog unavailable, continuing with an empty catalog")
			s.idx = BuildIndex(nil, s.lengths)
			return
		}
		s.idx = BuildIndex(entries, s.lengths)
		s.log.Info().
			Int("entries", s.idx.Len()).
			Int("duplicates", s.idx.Duplicates).
			Int("rejected", s.idx.Rejected).
			Str("source", source).
			Ints("lengths", s.lengths).
			Interface("distribution", s.idx.LengthDistribution).
			Msg("catalog loaded")
	})
	return s.idx
}

// PromptSnippet renders the first limit entries as "REF: model | color | size | price" lines.
func (s *Store) PromptSnippet(ctx context.Context, limit int) string {
	idx := s.Index(ctx)
	if limit <= 0 || limit > idx.Len() {
		limit = idx.Len()
	}
	lines := make([]string, 0, limit)
	for _, e := range idx.Entries[:limit] {
		lines = append(lines, fmt.Sprintf("%s: %s | %s | %s | %s",
			e.Reference, util.Deref(e.Model), util.Deref(e.Color), util.Deref(e.Size), util.Deref(e.Price)))
	}
	return strings.Join(lines, "\n")
}
