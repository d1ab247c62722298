package catalog

import (
	"ocrr/internal"
	"ocrr/internal/util"
)

// Index is the read-only lookup view over a loaded catalog. Entries keeps the
// catalog order, which the fuzzy scans depend on.
type Index struct {
	Entries            []*internal.CatalogEntry
	ByReference        map[string]*internal.CatalogEntry
	ByModel            map[string][]*internal.CatalogEntry
	ModelKeys          []string
	Lengths            []int
	LengthDistribution map[int]int
	Duplicates         int
	Rejected           int
}

func BuildIndex(entries []internal.CatalogEntry, lengths []int) *Index {
	idx := &Index{
		Entries:            make([]*internal.CatalogEntry, 0, len(entries)),
		ByReference:        map[string]*internal.CatalogEntry{},
		ByModel:            map[string][]*internal.CatalogEntry{},
		Lengths:            append([]int(nil), lengths...),
		LengthDistribution: map[int]int{},
	}

	for _, raw := range entries {
		ref := util.NormalizeReference(raw.Reference)
		if ref == "" || !util.ContainsInt(lengths, len(ref)) {
			idx.Rejected++
			continue
		}
		if _, exists := idx.ByReference[ref]; exists {
			idx.Duplicates++
			continue
		}

		entry := &internal.CatalogEntry{
			Reference: ref,
			Model:     util.NonEmptyPtr(raw.Model),
			Color:     util.NonEmptyPtr(raw.Color),
			Size:      util.NonEmptyPtr(raw.Size),
			Price:     util.NonEmptyPtr(raw.Price),
		}
		idx.Entries = append(idx.Entries, entry)
		idx.ByReference[ref] = entry
		idx.LengthDistribution[len(ref)]++

		key := util.NormalizeKey(util.Deref(entry.Model))
		if key == "" {
			continue
		}
		if _, ok := idx.ByModel[key]; !ok {
			idx.ModelKeys = append(idx.ModelKeys, key)
		}
		idx.ByModel[key] = append(idx.ByModel[key], entry)
	}

	return idx
}

func (i *Index) Len() int {
	if i == nil {
		return 0
	}
	return len(i.Entries)
}

// ValidLength reports whether n is one of the configured reference lengths.
func (i *Index) ValidLength(n int) bool {
	return util.ContainsInt(i.Lengths, n)
}

func (i *Index) Lookup(ref string) (*internal.CatalogEntry, bool) {
	e, ok := i.ByReference[ref]
	return e, ok
}
