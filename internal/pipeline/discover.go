package pipeline

import (
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"ocrr/internal"
	"ocrr/internal/catalog"
	"ocrr/internal/config"
	"ocrr/internal/util"
)

const (
	traceSampleSize  = 15
	defaultScanLimit = 200
	strictTolerance  = 1
	relaxedTolerance = 2
)

var textPrefixLengths = []int{7, 6, 5}

// discoveryInput is the preprocessed OCR text shared by every pass.
type discoveryInput struct {
	norm      string
	anchors   []string
	anchorSet map[string]struct{}
}

// discoveryPass selects the catalog entries a pass is allowed to test and the
// edit distance it tolerates inside a sliding window.
type discoveryPass struct {
	name       string
	tolerance  int
	candidates func(idx *catalog.Index, in discoveryInput) []*internal.CatalogEntry
}

type PassTrace struct {
	Name   string   `json:"pass"`
	Count  int      `json:"count"`
	Sample []string `json:"refs"`
}

type DiscoveryTrace struct {
	NormalizedLength int         `json:"normLen"`
	Anchors          []string    `json:"anchors"`
	Passes           []PassTrace `json:"traces"`
	Winner           string      `json:"winner,omitempty"`
	Found            []string    `json:"found"`
}

// DiscoveryEngine finds catalog references mentioned anywhere in OCR text.
// Passes run from most to least precise and the first one that finds
// anything wins.
type DiscoveryEngine struct {
	index       *catalog.Index
	confusables *ConfusableTable
	passes      []discoveryPass
	log         zerolog.Logger
}

func NewDiscoveryEngine(idx *catalog.Index, confusables *ConfusableTable, cfg config.Config, log zerolog.Logger) *DiscoveryEngine {
	scanLimit := cfg.DiscoveryScanLimit
	if scanLimit <= 0 {
		scanLimit = defaultScanLimit
	}
	return &DiscoveryEngine{
		index:       idx,
		confusables: confusables,
		log:         log,
		passes: []discoveryPass{
			{name: "strict", tolerance: strictTolerance, candidates: allEntries},
			{name: "anchor-from-reference", tolerance: relaxedTolerance, candidates: anchoredInText},
			{name: "anchor-prefix-from-text", tolerance: relaxedTolerance, candidates: prefixedByTextAnchor},
			{name: "anchor-substring-from-text", tolerance: relaxedTolerance, candidates: containingTextAnchor},
			{name: "rescue", tolerance: relaxedTolerance, candidates: firstEntries(scanLimit)},
		},
	}
}

func (e *DiscoveryEngine) Discover(text string) []string {
	return e.Trace(text).Found
}

func (e *DiscoveryEngine) Trace(text string) DiscoveryTrace {
	in := prepareDiscovery(text)
	trace := DiscoveryTrace{NormalizedLength: len(in.norm), Anchors: in.anchors, Found: []string{}}
	if in.norm == "" || e.index.Len() == 0 {
		return trace
	}

	for _, pass := range e.passes {
		found := []string{}
		for _, entry := range pass.candidates(e.index, in) {
			if e.mentioned(entry.Reference, in.norm, pass.tolerance) {
				found = append(found, entry.Reference)
			}
		}
		sort.Strings(found)
		sample := found
		if len(sample) > traceSampleSize {
			sample = sample[:traceSampleSize]
		}
		trace.Passes = append(trace.Passes, PassTrace{Name: pass.name, Count: len(found), Sample: sample})
		if len(found) > 0 {
			trace.Winner = pass.name
			trace.Found = found
			e.log.Debug().Str("pass", pass.name).Int("found", len(found)).Msg("text discovery")
			break
		}
	}
	return trace
}

// mentioned reports whether ref appears in norm verbatim, through one
// confusable substitution, or within tolerance of a window of length L-1, L
// or L+1.
func (e *DiscoveryEngine) mentioned(ref, norm string, tolerance int) bool {
	if strings.Contains(norm, ref) {
		return true
	}
	for _, v := range e.confusables.Variants(ref) {
		if strings.Contains(norm, v) {
			return true
		}
	}

	l := len(ref)
	for i := 0; i <= len(norm)-(l-1); i++ {
		for _, w := range [3]int{l - 1, l, l + 1} {
			if w <= 0 || i+w > len(norm) {
				continue
			}
			if util.EditDistance(norm[i:i+w], ref) <= tolerance {
				return true
			}
		}
	}
	return false
}

func prepareDiscovery(text string) discoveryInput {
	norm := util.NormalizeKey(text)
	anchors := util.DigitAnchors(norm)
	set := make(map[string]struct{}, len(anchors))
	for _, a := range anchors {
		set[a] = struct{}{}
	}
	return discoveryInput{norm: norm, anchors: anchors, anchorSet: set}
}

func allEntries(idx *catalog.Index, _ discoveryInput) []*internal.CatalogEntry {
	return idx.Entries
}

func anchoredInText(idx *catalog.Index, in discoveryInput) []*internal.CatalogEntry {
	out := []*internal.CatalogEntry{}
	for _, entry := range idx.Entries {
		anchor := util.ReferenceAnchor(entry.Reference)
		if len(anchor) >= util.MinAnchorLength && strings.Contains(in.norm, anchor) {
			out = append(out, entry)
		}
	}
	return out
}

func prefixedByTextAnchor(idx *catalog.Index, in discoveryInput) []*internal.CatalogEntry {
	out := []*internal.CatalogEntry{}
	if len(in.anchors) == 0 {
		return out
	}
	for _, entry := range idx.Entries {
		for _, n := range textPrefixLengths {
			if len(entry.Reference) < n {
				continue
			}
			if _, ok := in.anchorSet[entry.Reference[:n]]; ok {
				out = append(out, entry)
				break
			}
		}
	}
	return out
}

func containingTextAnchor(idx *catalog.Index, in discoveryInput) []*internal.CatalogEntry {
	out := []*internal.CatalogEntry{}
	for _, entry := range idx.Entries {
		for _, a := range in.anchors {
			if strings.Contains(entry.Reference, a) {
				out = append(out, entry)
				break
			}
		}
	}
	return out
}

func firstEntries(limit int) func(*catalog.Index, discoveryInput) []*internal.CatalogEntry {
	return func(idx *catalog.Index, _ discoveryInput) []*internal.CatalogEntry {
		if len(idx.Entries) <= limit {
			return idx.Entries
		}
		return idx.Entries[:limit]
	}
}
