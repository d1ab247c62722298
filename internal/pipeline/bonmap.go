package pipeline

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"ocrr/internal"
	"ocrr/internal/util"
)

type bonField int

const (
	fieldModel bonField = iota
	fieldColor
	fieldReference
	fieldSize
	fieldQuantity
	fieldPrice
)

// fieldKeys are the normalized column or key names each field is read from,
// in priority order.
var fieldKeys = map[bonField][]string{
	fieldModel:     {"MODELE", "MODEL", "DESIGNATION", "NOMMODEL", "NOMDUPRODUIT"},
	fieldColor:     {"COLORIS", "COULEUR", "COLOR", "COULEURPRODUIT"},
	fieldReference: {"CODIFCAT", "REFERENCE", "REF", "SKU", "CODEPRODUIT", "CODEREF"},
	fieldSize:      {"TAILLE", "CODE", "TAILLECODE", "SIZE"},
	fieldQuantity:  {"QUANTITE", "QUANTITECOMMANDE", "QUANTITY", "QTE"},
	fieldPrice:     {"PV", "PRIX", "PRIXUNITAIRE", "PRICE", "MONTANT"},
}

var ocrTextKeys = []string{"OCRTEXT", "TEXTEOCR", "OCR", "RAWTEXT", "TEXTE", "TEXT"}

const minEmbeddedTextLength = 40

// MapBon reads a bon exported as JSON by an upstream OCR tool. Every "items"
// array found anywhere in the document contributes lines, and a long top-level
// text field is taken as the recognized text.
func MapBon(blob []byte) (internal.Bon, error) {
	dec := json.NewDecoder(bytes.NewReader(bytes.TrimPrefix(blob, []byte("\xef\xbb\xbf"))))
	dec.UseNumber()
	var data any
	if err := dec.Decode(&data); err != nil {
		return internal.Bon{}, fmt.Errorf("parse bon json: %w", err)
	}

	bon := internal.Bon{Source: internal.SourceJSON, Items: []internal.ExtractedItem{}}
	if root, ok := data.(map[string]any); ok {
		bon.OCRText = embeddedText(root)
	}

	collectItems(data, func(raw any) {
		obj, ok := raw.(map[string]any)
		if !ok {
			return
		}
		fields := normalizedFields(obj)
		item := internal.ExtractedItem{
			ModelNameRaw:  textField(fields, fieldModel),
			ColorisRaw:    textField(fields, fieldColor),
			ReferenceOCR:  textField(fields, fieldReference),
			SizeOrCodeRaw: textField(fields, fieldSize),
			QuantityRaw:   internal.T(cleanQuantity(scalarString(pickField(fields, fieldQuantity)))),
		}
		if price, ok := util.ParsePrice(scalarString(pickField(fields, fieldPrice))); ok {
			item.UnitPriceRaw = internal.T(strconv.FormatFloat(price, 'f', 2, 64))
		}
		if item.Informative() {
			bon.Items = append(bon.Items, item)
		}
	})

	pretty, err := json.MarshalIndent(data, "", "  ")
	if err == nil {
		bon.RawResponse = string(pretty)
	}
	return bon, nil
}

func embeddedText(root map[string]any) string {
	fields := map[string]string{}
	for k, v := range root {
		if s, ok := v.(string); ok && len(s) > minEmbeddedTextLength {
			fields[util.NormalizeKey(k)] = s
		}
	}
	for _, key := range ocrTextKeys {
		if s, ok := fields[key]; ok {
			return s
		}
	}
	return ""
}

// collectItems walks the document depth first; object keys are visited in
// sorted order so the line order is stable.
func collectItems(node any, visit func(any)) {
	switch v := node.(type) {
	case []any:
		for _, child := range v {
			collectItems(child, visit)
		}
	case map[string]any:
		if items, ok := v["items"].([]any); ok {
			for _, item := range items {
				visit(item)
			}
		}
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			switch v[k].(type) {
			case map[string]any, []any:
				collectItems(v[k], visit)
			}
		}
	}
}

func normalizedFields(obj map[string]any) map[string]any {
	out := make(map[string]any, len(obj))
	for k, v := range obj {
		key := util.NormalizeKey(k)
		if _, exists := out[key]; !exists {
			out[key] = v
		}
	}
	return out
}

func pickField(fields map[string]any, field bonField) any {
	for _, key := range fieldKeys[field] {
		if v, ok := fields[key]; ok {
			return v
		}
	}
	return nil
}

func textField(fields map[string]any, field bonField) internal.Text {
	return internal.Text{Value: util.NonEmpty(scalarString(pickField(fields, field)))}
}

func scalarString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return ""
	}
}

// cleanQuantity keeps the digits of a quantity and defaults to "1".
func cleanQuantity(raw string) string {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, raw)
	n, err := strconv.Atoi(digits)
	if err != nil || n <= 0 {
		return "1"
	}
	return strconv.Itoa(n)
}

// fieldForHeader maps a table header cell to the bon field it carries.
func fieldForHeader(header string) (bonField, bool) {
	key := util.NormalizeKey(header)
	if key == "" {
		return 0, false
	}
	for _, field := range []bonField{fieldReference, fieldModel, fieldColor, fieldSize, fieldQuantity, fieldPrice} {
		for _, candidate := range fieldKeys[field] {
			if key == candidate {
				return field, true
			}
		}
	}
	return 0, false
}
