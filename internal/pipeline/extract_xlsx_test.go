package pipeline

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/xuri/excelize/v2"

	"ocrr/internal"
	"ocrr/internal/util"
)

func mkXLSX(rows [][]any) []byte {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	for r, row := range rows {
		for c, v := range row {
			cell, _ := excelize.CoordinatesToCellName(c+1, r+1)
			_ = f.SetCellValue(sheet, cell, v)
		}
	}
	buf := bytes.NewBuffer(nil)
	_, _ = f.WriteTo(buf)
	return buf.Bytes()
}

func TestParseOrderSheet(t *testing.T) {
	blob := mkXLSX([][]any{
		{"Bon de commande n° 42"},
		{"Référence", "Modèle", "Coloris", "Taille", "Quantité", "PV"},
		{"7654321", "Ballerine", "Noir", 40, 2, 24.5},
		{"", "", "", "", 1, ""},
		{"AB12345C", "Sandale", "Rouge", "", 1, "30"},
	})
	items, err := parseOrderSheet(blob)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 2 {
		t.Fatalf("len=%d", len(items))
	}
	if items[0].ReferenceOCR.String() != "7654321" || items[0].SizeOrCodeRaw.String() != "40" || items[0].QuantityRaw.String() != "2" {
		t.Fatalf("unexpected first row %+v", items[0])
	}
	if items[1].SizeOrCodeRaw.Value != nil {
		t.Fatalf("empty size cell should stay null: %+v", items[1])
	}
}

func TestParseOrderSheetWithoutHeader(t *testing.T) {
	blob := mkXLSX([][]any{
		{"a", "b"},
		{"c", "d"},
		{"e", "f"},
		{"Référence", "Quantité"},
		{"7654321", 2},
	})
	items, err := parseOrderSheet(blob)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 0 {
		t.Fatalf("header beyond the third row should be ignored, got %d items", len(items))
	}
}

func TestExportLinesToXLSX(t *testing.T) {
	out := filepath.Join(t.TempDir(), "out", "bon.xlsx")
	rows := []internal.ResolvedItem{
		{ReferenceOCR: util.StringPtr("7654321"), ModelNameRaw: util.StringPtr("Ballerine"), QuantityRaw: "2", UnitPriceRaw: util.StringPtr("24.50"), Origin: internal.OriginLineItem},
		{Page: util.IntPtr(2), ReferenceOCR: util.StringPtr("AB12345C"), QuantityRaw: "1", NeedsReview: true, Origin: internal.OriginTextDiscovery},
	}
	if err := ExportLinesToXLSX(rows, out); err != nil {
		t.Fatal(err)
	}

	f, err := excelize.OpenFile(out)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	got, err := f.GetRows(f.GetSheetName(0))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Fatalf("rows=%d", len(got))
	}
	if got[0][3] != "reference_ocr" || got[1][3] != "7654321" || got[2][0] != "2" || got[2][8] != "text_discovery" {
		t.Fatalf("unexpected sheet %v", got)
	}
}
