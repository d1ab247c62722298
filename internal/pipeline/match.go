package pipeline

import (
	"math"

	"ocrr/internal"
	"ocrr/internal/catalog"
	"ocrr/internal/config"
	"ocrr/internal/util"
)

const (
	distanceExact      = 0
	distanceConfusable = 0.5
	sizeMismatchCost   = 1
	maxColorDistance   = 1
)

// ReferenceMatcher resolves a raw reference: exact lookup first, then one
// confusable substitution, then the closest catalog reference within the
// configured edit distance.
type ReferenceMatcher struct {
	index       *catalog.Index
	confusables *ConfusableTable
	maxDistance int
}

func NewReferenceMatcher(idx *catalog.Index, confusables *ConfusableTable, cfg config.Config) *ReferenceMatcher {
	return &ReferenceMatcher{index: idx, confusables: confusables, maxDistance: cfg.MaxReferenceDistance}
}

func (m *ReferenceMatcher) Resolve(raw string) internal.Match {
	normalized := util.NormalizeReference(raw)
	if normalized == "" {
		return internal.NoMatch()
	}

	if entry, ok := m.index.Lookup(normalized); ok {
		return internal.Match{Entry: entry, Distance: distanceExact}
	}

	for _, v := range m.confusables.Variants(normalized) {
		if entry, ok := m.index.Lookup(v); ok {
			return internal.Match{Entry: entry, Distance: distanceConfusable}
		}
	}

	var best *internal.CatalogEntry
	bestDistance := math.MaxInt
	for _, entry := range m.index.Entries {
		d := util.EditDistance(normalized, entry.Reference)
		if d < bestDistance {
			bestDistance = d
			best = entry
		}
		if d == 0 {
			break
		}
	}
	if best == nil || bestDistance > m.maxDistance {
		return internal.NoMatch()
	}
	return internal.Match{Entry: best, Distance: float64(bestDistance)}
}

// ModelMatcher resolves a model/color/size triple when no reference matched.
type ModelMatcher struct {
	index          *catalog.Index
	maxDistance    int
	colorMinLength int
}

func NewModelMatcher(idx *catalog.Index, cfg config.Config) *ModelMatcher {
	return &ModelMatcher{index: idx, maxDistance: cfg.MaxModelDistance, colorMinLength: cfg.ColorMinLength}
}

// Resolve scores the model group by color distance plus a size penalty. A
// fuzzy model lookup adds its key distance to the result, and a tie between
// two different references marks the match ambiguous.
func (m *ModelMatcher) Resolve(model, color, size string) internal.Match {
	key := util.NormalizeKey(model)
	if key == "" {
		return internal.NoMatch()
	}

	candidates := m.index.ByModel[key]
	keyDistance := 0
	if len(candidates) == 0 {
		bestKey, bestD := "", math.MaxInt
		for _, k := range m.index.ModelKeys {
			d := util.EditDistance(key, k)
			if d < bestD {
				bestD = d
				bestKey = k
			}
		}
		if bestKey == "" || bestD > m.maxDistance {
			return internal.NoMatch()
		}
		candidates = m.index.ByModel[bestKey]
		keyDistance = bestD
	}

	colorKey := util.NormalizeKey(color)
	scoreColor := len(colorKey) >= m.colorMinLength
	sizeKey := util.NormalizeSizeKey(size)

	var best *internal.CatalogEntry
	bestScore := math.Inf(1)
	ambiguous := false
	for _, entry := range candidates {
		score := 0.0
		if scoreColor {
			entryColor := util.NormalizeKey(util.Deref(entry.Color))
			if entryColor == "" {
				continue
			}
			cd := util.EditDistance(colorKey, entryColor)
			if cd > maxColorDistance {
				continue
			}
			score += float64(cd)
		}
		if sizeKey != "" && entry.Size != nil && util.NormalizeSizeKey(*entry.Size) != sizeKey {
			score += sizeMismatchCost
		}

		switch {
		case score < bestScore:
			best, bestScore, ambiguous = entry, score, false
		case score == bestScore && best != nil && entry.Reference != best.Reference:
			ambiguous = true
		}
	}

	if best == nil {
		return internal.NoMatch()
	}
	return internal.Match{Entry: best, Distance: bestScore + float64(keyDistance), Ambiguous: ambiguous}
}
