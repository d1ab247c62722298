package pipeline

import (
	"context"
	"sort"

	"github.com/rs/zerolog"

	"ocrr/internal"
	"ocrr/internal/catalog"
	"ocrr/internal/config"
	"ocrr/internal/util"
)

// Merger turns extracted lines plus the OCR text into the final line set:
// each line resolved against the catalog, duplicates dropped, references
// found only in the text appended, everything sorted by reference.
type Merger struct {
	cfg         config.Config
	store       *catalog.Store
	confusables *ConfusableTable
	log         zerolog.Logger
}

func NewMerger(cfg config.Config, store *catalog.Store, log zerolog.Logger) *Merger {
	return &Merger{cfg: cfg, store: store, confusables: NewConfusableTable(), log: log}
}

type resolution struct {
	match     internal.Match
	reference string
	size      *string
}

func (m *Merger) Merge(ctx context.Context, items []internal.ExtractedItem, ocrText string) []internal.ResolvedItem {
	idx := m.store.Index(ctx)
	refs := NewReferenceMatcher(idx, m.confusables, m.cfg)
	models := NewModelMatcher(idx, m.cfg)

	results := make([]internal.ResolvedItem, 0, len(items))
	seen := map[string]struct{}{}
	covered := map[string]struct{}{}
	dropped := 0

	for i := range items {
		item := items[i]
		if !item.Informative() {
			dropped++
			continue
		}

		res := m.resolve(idx, refs, models, item)
		row := internal.ResolvedItem{
			Page:        item.Page,
			QuantityRaw: util.SanitizeQuantity(item.QuantityRaw.String(), m.cfg.MaxQuantity),
			Origin:      internal.OriginLineItem,
			Source:      &item,
		}

		if res.match.Found() {
			entry := res.match.Entry
			row.ModelNameRaw = entry.Model
			row.ColorisRaw = entry.Color
			row.ReferenceOCR = util.StringPtr(entry.Reference)
			row.SizeOrCodeRaw = entry.Size
			if row.SizeOrCodeRaw == nil {
				row.SizeOrCodeRaw = res.size
			}
			row.UnitPriceRaw = util.NormalizePrice(entry.Price, m.cfg.MinPriceValue)
			row.NeedsReview = m.needsReview(res.match) || item.NeedsReview

			covered[refSizeKey(entry.Reference, entry.Size)] = struct{}{}
			covered[refSizeKey(entry.Reference, row.SizeOrCodeRaw)] = struct{}{}
		} else {
			if res.reference != "" {
				row.ReferenceOCR = util.StringPtr(res.reference)
			}
			row.ModelNameRaw = util.NonEmptyPtr(item.ModelNameRaw.Value)
			row.ColorisRaw = util.NonEmptyPtr(item.ColorisRaw.Value)
			row.SizeOrCodeRaw = res.size
			row.UnitPriceRaw = util.NormalizePrice(item.UnitPriceRaw.Value, m.cfg.MinPriceValue)
			row.NeedsReview = true
		}

		key := rowKey(row)
		if _, dup := seen[key]; dup {
			dropped++
			continue
		}
		seen[key] = struct{}{}
		results = append(results, row)
	}

	discovered := 0
	if m.cfg.EnableTextDiscovery && ocrText != "" {
		engine := NewDiscoveryEngine(idx, m.confusables, m.cfg, m.log)
		for _, ref := range engine.Discover(ocrText) {
			entry, ok := idx.Lookup(ref)
			if !ok {
				continue
			}
			if _, ok := covered[refSizeKey(entry.Reference, entry.Size)]; ok {
				continue
			}
			key := dedupKey(entry.Reference, entry.Size, "1")
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			discovered++
			results = append(results, internal.ResolvedItem{
				ModelNameRaw:  entry.Model,
				ColorisRaw:    entry.Color,
				ReferenceOCR:  util.StringPtr(entry.Reference),
				SizeOrCodeRaw: entry.Size,
				QuantityRaw:   "1",
				UnitPriceRaw:  util.NormalizePrice(entry.Price, m.cfg.MinPriceValue),
				Origin:        internal.OriginTextDiscovery,
			})
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		return util.Deref(results[i].ReferenceOCR) < util.Deref(results[j].ReferenceOCR)
	})

	m.log.Debug().
		Int("input", len(items)).
		Int("output", len(results)).
		Int("dropped", dropped).
		Int("discovered", discovered).
		Msg("lines merged")
	return results
}

// resolve cleans the raw reference (splitting a glued size when the length
// is off), then tries the reference matcher and falls back to the model.
func (m *Merger) resolve(idx *catalog.Index, refs *ReferenceMatcher, models *ModelMatcher, item internal.ExtractedItem) resolution {
	rawRef := item.ReferenceOCR.String()
	size := util.NonEmptyPtr(item.SizeOrCodeRaw.Value)

	reference := util.NormalizeReference(rawRef)
	if reference == "" || !idx.ValidLength(len(reference)) {
		splitRef, splitSize := util.SplitReferenceAndSize(rawRef, m.cfg.ReferenceLengths)
		if splitRef != "" {
			reference = util.NormalizeReference(splitRef)
		}
		if size == nil && splitSize != "" {
			size = util.StringPtr(splitSize)
		}
	}

	match := refs.Resolve(reference)
	if !match.Found() {
		match = models.Resolve(item.ModelNameRaw.String(), item.ColorisRaw.String(), util.Deref(size))
	}
	return resolution{match: match, reference: reference, size: util.EnsureValidSize(size, nil)}
}

func (m *Merger) needsReview(match internal.Match) bool {
	if match.Ambiguous {
		return true
	}
	if match.Distance == distanceConfusable && m.cfg.TrustConfusableMatches {
		return false
	}
	return match.Distance > distanceExact
}

func refSizeKey(ref string, size *string) string {
	return ref + "|" + util.Deref(size)
}

func dedupKey(ref string, size *string, qty string) string {
	return ref + "|" + util.Deref(size) + "|" + qty
}

// rowKey is dedupKey for rows with a reference. Rows without one only
// collapse when model and color agree too.
func rowKey(row internal.ResolvedItem) string {
	if ref := util.Deref(row.ReferenceOCR); ref != "" {
		return dedupKey(ref, row.SizeOrCodeRaw, row.QuantityRaw)
	}
	return "?" + util.NormalizeKey(util.Deref(row.ModelNameRaw)) + "/" + util.NormalizeKey(util.Deref(row.ColorisRaw)) +
		"|" + util.Deref(row.SizeOrCodeRaw) + "|" + row.QuantityRaw
}
