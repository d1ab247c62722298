package pipeline

import (
	"testing"

	"ocrr/internal"
	"ocrr/internal/catalog"
	"ocrr/internal/config"
)

func sp(v string) *string { return &v }

func testConfig() config.Config {
	return config.Config{
		ReferenceLengths:     []int{6, 7, 8, 9},
		ColorMinLength:       4,
		MinPriceValue:        10,
		MaxReferenceDistance: 1,
		MaxModelDistance:     2,
		MaxQuantity:          10,
		EnableTextDiscovery:  true,
		DiscoveryScanLimit:   200,
	}
}

func testEntries() []internal.CatalogEntry {
	return []internal.CatalogEntry{
		{Reference: "1234567", Model: sp("Chausson"), Color: sp("Rose"), Size: sp("38"), Price: sp("19.99")},
		{Reference: "1234568", Model: sp("Chausson"), Color: sp("Bleu"), Size: sp("39"), Price: sp("19.99")},
		{Reference: "7654321", Model: sp("Ballerine"), Color: sp("Noir"), Size: sp("40"), Price: sp("24,5")},
		{Reference: "5550001", Model: sp("Ballerine"), Color: sp("Blanc"), Size: sp("41"), Price: sp("9.50")},
		{Reference: "AB12345C", Model: sp("Sandale"), Color: sp("Rouge"), Price: sp("30")},
	}
}

func testIndex() *catalog.Index {
	return catalog.BuildIndex(testEntries(), testConfig().ReferenceLengths)
}

func TestReferenceMatcherExactForEveryEntry(t *testing.T) {
	idx := testIndex()
	m := NewReferenceMatcher(idx, NewConfusableTable(), testConfig())
	for _, e := range idx.Entries {
		got := m.Resolve(e.Reference)
		if got.Entry != e || got.Distance != 0 {
			t.Fatalf("%s: got %+v", e.Reference, got)
		}
	}
}

func TestReferenceMatcherConfusableVariants(t *testing.T) {
	idx := testIndex()
	table := NewConfusableTable()
	m := NewReferenceMatcher(idx, table, testConfig())

	checked := 0
	for _, e := range idx.Entries {
		for _, v := range table.Variants(e.Reference) {
			if _, inCatalog := idx.Lookup(v); inCatalog {
				continue
			}
			got := m.Resolve(v)
			if got.Entry != e || got.Distance != 0.5 {
				t.Fatalf("variant %s of %s: got %+v", v, e.Reference, got)
			}
			checked++
		}
	}
	if checked == 0 {
		t.Fatal("no variants checked")
	}
}

func TestReferenceMatcher(t *testing.T) {
	m := NewReferenceMatcher(testIndex(), NewConfusableTable(), testConfig())

	cases := []struct {
		name     string
		input    string
		wantRef  string
		wantDist float64
	}{
		{name: "lowercase l confusable", input: "l234567", wantRef: "1234567", wantDist: 0.5},
		{name: "separators ignored", input: "76-54-321", wantRef: "7654321", wantDist: 0},
		{name: "one edit", input: "7654921", wantRef: "7654321", wantDist: 1},
		{name: "missing char", input: "765431", wantRef: "7654321", wantDist: 1},
		{name: "too far", input: "7659921", wantRef: "", wantDist: -1},
		{name: "empty", input: " - ", wantRef: "", wantDist: -1},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := m.Resolve(tc.input)
			if tc.wantRef == "" {
				if got.Found() {
					t.Fatalf("expected no match, got %+v", got.Entry)
				}
				return
			}
			if !got.Found() || got.Entry.Reference != tc.wantRef || got.Distance != tc.wantDist {
				t.Fatalf("got %+v (%v)", got.Entry, got.Distance)
			}
		})
	}
}

func TestConfusableVariantsSingleSubstitution(t *testing.T) {
	got := NewConfusableTable().Variants("O1")
	want := []string{"01", "OI", "OL"}
	if len(got) != len(want) {
		t.Fatalf("got %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v want %v", got, want)
		}
	}
}

func TestModelMatcher(t *testing.T) {
	m := NewModelMatcher(testIndex(), testConfig())

	cases := []struct {
		name          string
		model, color  string
		size          string
		wantRef       string
		wantDist      float64
		wantAmbiguous bool
	}{
		{name: "exact triple", model: "chausson", color: "rose", size: "38", wantRef: "1234567", wantDist: 0},
		{name: "color typo", model: "Chausson", color: "Roze", wantRef: "1234567", wantDist: 1},
		{name: "size penalty", model: "Chausson", color: "Rose", size: "40", wantRef: "1234567", wantDist: 1},
		{name: "fuzzy model key", model: "Chauson", color: "Bleu", size: "39", wantRef: "1234568", wantDist: 1},
		{name: "no color ties", model: "Chausson", wantRef: "1234567", wantDist: 0, wantAmbiguous: true},
		{name: "short color ignored", model: "Chausson", color: "Red", wantRef: "1234567", wantDist: 0, wantAmbiguous: true},
		{name: "color disqualifies all", model: "Chausson", color: "Vert"},
		{name: "unknown model", model: "Escarpin", color: "Rose"},
		{name: "empty model", model: "", color: "Rose"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := m.Resolve(tc.model, tc.color, tc.size)
			if tc.wantRef == "" {
				if got.Found() {
					t.Fatalf("expected no match, got %s", got.Entry.Reference)
				}
				return
			}
			if !got.Found() || got.Entry.Reference != tc.wantRef {
				t.Fatalf("got %+v", got)
			}
			if got.Distance != tc.wantDist || got.Ambiguous != tc.wantAmbiguous {
				t.Fatalf("distance=%v ambiguous=%v", got.Distance, got.Ambiguous)
			}
		})
	}
}

func TestModelMatcherMissingEntryColor(t *testing.T) {
	idx := catalog.BuildIndex([]internal.CatalogEntry{
		{Reference: "1111111", Model: sp("Mule")},
	}, testConfig().ReferenceLengths)
	m := NewModelMatcher(idx, testConfig())
	if got := m.Resolve("Mule", "Rose", ""); got.Found() {
		t.Fatalf("entry without color should be disqualified when color is scored, got %s", got.Entry.Reference)
	}
	if got := m.Resolve("Mule", "", ""); !got.Found() || got.Ambiguous {
		t.Fatalf("single candidate should match, got %+v", got)
	}
}
