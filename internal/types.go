package internal

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

type CatalogEntry struct {
	Reference string  `json:"reference"`
	Model     *string `json:"model"`
	Color     *string `json:"color"`
	Size      *string `json:"size"`
	Price     *string `json:"price"`
}

// Text is a nullable string that also accepts JSON numbers, since upstream
// extraction is free to emit "quantity_raw": 2 instead of "2".
type Text struct {
	Value *string
}

func T(s string) Text {
	return Text{Value: &s}
}

func (t Text) String() string {
	if t.Value == nil {
		return ""
	}
	return *t.Value
}

func (t Text) MarshalJSON() ([]byte, error) {
	if t.Value == nil {
		return []byte("null"), nil
	}
	return json.Marshal(*t.Value)
}

func (t *Text) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		t.Value = nil
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		t.Value = &s
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err == nil {
		s := n.String()
		t.Value = &s
		return nil
	}
	var b bool
	if err := json.Unmarshal(data, &b); err != nil {
		return err
	}
	s := strconv.FormatBool(b)
	t.Value = &s
	return nil
}

type ExtractedItem struct {
	Page          *int `json:"page"`
	ModelNameRaw  Text `json:"model_name_raw"`
	ColorisRaw    Text `json:"coloris_raw"`
	ReferenceOCR  Text `json:"reference_ocr"`
	SizeOrCodeRaw Text `json:"size_or_code_raw"`
	QuantityRaw   Text `json:"quantity_raw"`
	UnitPriceRaw  Text `json:"unit_price_raw"`
	// NeedsReview carries a review flag from an earlier merge; only a
	// correction that rebuilds the line clears it.
	NeedsReview bool `json:"needs_review,omitempty"`
}

// UnmarshalJSON accepts page as a number or a numeric string. Anything
// else leaves the page unset.
func (i *ExtractedItem) UnmarshalJSON(data []byte) error {
	type plain ExtractedItem
	aux := struct {
		*plain
		Page Text `json:"page"`
	}{plain: (*plain)(i)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	i.Page = nil
	if page, err := strconv.Atoi(strings.TrimSpace(aux.Page.String())); err == nil {
		i.Page = &page
	}
	return nil
}

// Informative reports whether the item carries anything a matcher can use.
func (i ExtractedItem) Informative() bool {
	for _, v := range []Text{i.ReferenceOCR, i.ModelNameRaw, i.ColorisRaw, i.SizeOrCodeRaw} {
		if v.Value != nil && strings.TrimSpace(*v.Value) != "" {
			return true
		}
	}
	return false
}

type ItemOrigin string

const (
	OriginLineItem      ItemOrigin = "line_item"
	OriginTextDiscovery ItemOrigin = "text_discovery"
)

type ResolvedItem struct {
	Page          *int           `json:"page"`
	ModelNameRaw  *string        `json:"model_name_raw"`
	ColorisRaw    *string        `json:"coloris_raw"`
	ReferenceOCR  *string        `json:"reference_ocr"`
	SizeOrCodeRaw *string        `json:"size_or_code_raw"`
	QuantityRaw   string         `json:"quantity_raw"`
	UnitPriceRaw  *string        `json:"unit_price_raw"`
	NeedsReview   bool           `json:"needs_review"`
	Origin        ItemOrigin     `json:"origin"`
	Source        *ExtractedItem `json:"source,omitempty"`
}

// Extracted turns a resolved row back into merge input.
func (r ResolvedItem) Extracted() ExtractedItem {
	qty := r.QuantityRaw
	return ExtractedItem{
		Page:          r.Page,
		ModelNameRaw:  Text{Value: r.ModelNameRaw},
		ColorisRaw:    Text{Value: r.ColorisRaw},
		ReferenceOCR:  Text{Value: r.ReferenceOCR},
		SizeOrCodeRaw: Text{Value: r.SizeOrCodeRaw},
		QuantityRaw:   Text{Value: &qty},
		UnitPriceRaw:  Text{Value: r.UnitPriceRaw},
		NeedsReview:   r.NeedsReview,
	}
}

func ExtractedFromResolved(rows []ResolvedItem) []ExtractedItem {
	out := make([]ExtractedItem, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.Extracted())
	}
	return out
}

type Match struct {
	Entry     *CatalogEntry
	Distance  float64
	Ambiguous bool
}

func NoMatch() Match {
	return Match{Distance: math.Inf(1)}
}

func (m Match) Found() bool {
	return m.Entry != nil && !math.IsInf(m.Distance, 1)
}

type AttemptHistoryEntry struct {
	Attempt      int     `json:"attempt"`
	Error        string  `json:"error"`
	AgentApplied bool    `json:"agentApplied"`
	AgentNotes   *string `json:"agentNotes"`
	AgentError   *string `json:"agentError"`
}

type SubmissionResult struct {
	UpdatedRange string `json:"updatedRange"`
	UpdatedRows  int64  `json:"updatedRows"`
}

type BonSource string

const (
	SourceJSON  BonSource = "json"
	SourceText  BonSource = "text"
	SourcePDF   BonSource = "pdf"
	SourceXLSX  BonSource = "xlsx"
	SourceEmail BonSource = "email"
)

// Bon is one order form as handed to the reconciliation core: structured
// lines plus the raw recognized text they were read from.
type Bon struct {
	Source      BonSource
	Items       []ExtractedItem
	OCRText     string
	RawResponse string
}

type BonRow struct {
	ID          int
	TraceID     string
	Source      string
	EmailID     *int
	OCRText     string
	RawResponse string
	ItemsJSON   string
	Status      string
	CreatedAt   string
}

// Bon status values.
const (
	BonProcessed    = "processed"
	BonExported     = "exported"
	BonExportFailed = "export_failed"
)

type EmailRow struct {
	ID         int
	Provider   string
	MessageID  string
	Subject    string
	Sender     string
	ReceivedAt string
	Hash       string
	Status     string
	RawRef     string
}

type FetchedMailMessage struct {
	Provider   string
	MessageID  string
	Subject    string
	From       string
	ReceivedAt string
	Raw        []byte
}
