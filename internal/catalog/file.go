package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
	"gopkg.in/yaml.v3"

	"ocrr/internal"
	"ocrr/internal/util"
)

type fileEntry struct {
	Reference internal.Text `json:"reference"`
	Model     internal.Text `json:"model"`
	Color     internal.Text `json:"color"`
	Size      internal.Text `json:"size"`
	Price     internal.Text `json:"price"`
}

// ReadFile reads a catalog from a JSON array, a YAML list or an XLSX sheet,
// chosen by extension.
func ReadFile(path string) ([]internal.CatalogEntry, error) {
	blob, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		return ParseXLSX(blob)
	case ".yaml", ".yml":
		return ParseYAML(blob)
	default:
		return ParseJSON(blob)
	}
}

func ParseJSON(blob []byte) ([]internal.CatalogEntry, error) {
	var raw []fileEntry
	if err := json.Unmarshal(bytes.TrimPrefix(blob, []byte("\xef\xbb\xbf")), &raw); err != nil {
		return nil, fmt.Errorf("parse catalog json: %w", err)
	}
	out := make([]internal.CatalogEntry, 0, len(raw))
	for _, r := range raw {
		out = append(out, internal.CatalogEntry{
			Reference: r.Reference.String(),
			Model:     util.NonEmptyPtr(r.Model.Value),
			Color:     util.NonEmptyPtr(r.Color.Value),
			Size:      util.NonEmptyPtr(r.Size.Value),
			Price:     util.NonEmptyPtr(r.Price.Value),
		})
	}
	return out, nil
}

// ParseYAML reads a list of mappings with the same keys as the JSON form.
// Unquoted numbers are accepted for every field.
func ParseYAML(blob []byte) ([]internal.CatalogEntry, error) {
	var raw []map[string]any
	if err := yaml.Unmarshal(blob, &raw); err != nil {
		return nil, fmt.Errorf("parse catalog yaml: %w", err)
	}
	out := make([]internal.CatalogEntry, 0, len(raw))
	for _, r := range raw {
		out = append(out, internal.CatalogEntry{
			Reference: yamlScalar(r["reference"]),
			Model:     util.NonEmpty(yamlScalar(r["model"])),
			Color:     util.NonEmpty(yamlScalar(r["color"])),
			Size:      util.NonEmpty(yamlScalar(r["size"])),
			Price:     util.NonEmpty(yamlScalar(r["price"])),
		})
	}
	return out, nil
}

func yamlScalar(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case int:
		return strconv.Itoa(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return ""
	}
}

// ParseXLSX reads the first sheet whose header row names a reference column.
func ParseXLSX(content []byte) ([]internal.CatalogEntry, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil || len(rows) < 2 {
			continue
		}
		cols := inferCatalogColumns(rows[0])
		if cols.reference < 0 {
			continue
		}

		out := []internal.CatalogEntry{}
		for _, row := range rows[1:] {
			ref := cell(row, cols.reference)
			if ref == "" {
				continue
			}
			out = append(out, internal.CatalogEntry{
				Reference: ref,
				Model:     util.NonEmpty(cell(row, cols.model)),
				Color:     util.NonEmpty(cell(row, cols.color)),
				Size:      util.NonEmpty(cell(row, cols.size)),
				Price:     util.NonEmpty(cell(row, cols.price)),
			})
		}
		return out, nil
	}
	return nil, fmt.Errorf("no sheet with a reference column")
}

type catalogColumns struct {
	reference, model, color, size, price int
}

func inferCatalogColumns(header []string) catalogColumns {
	norm := make([]string, 0, len(header))
	for _, h := range header {
		norm = append(norm, strings.ToLower(util.StripDiacritics(strings.TrimSpace(h))))
	}
	return catalogColumns{
		reference: findColumn(norm, "reference", "ref", "codifcat", "sku"),
		model:     findColumn(norm, "modele", "model", "designation"),
		color:     findColumn(norm, "coloris", "couleur", "color"),
		size:      findColumn(norm, "taille", "size", "pointure"),
		price:     findColumn(norm, "prix", "price", "pv"),
	}
}

func findColumn(headers []string, probes ...string) int {
	for _, probe := range probes {
		for i, h := range headers {
			if h == probe {
				return i
			}
		}
	}
	for _, probe := range probes {
		if len(probe) < 3 {
			continue
		}
		for i, h := range headers {
			if strings.Contains(h, probe) {
				return i
			}
		}
	}
	return -1
}

func cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

// WriteSnapshot writes entries as the JSON array ReadFile accepts.
func WriteSnapshot(path string, entries []*internal.CatalogEntry) error {
	blob, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, blob, 0o644)
}
