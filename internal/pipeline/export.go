package pipeline

import (
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"

	"ocrr/internal"
)

var exportHeaders = []string{
	"page", "model_name_raw", "coloris_raw", "reference_ocr", "size_or_code_raw",
	"quantity_raw", "unit_price_raw", "needs_review", "origin",
}

// ExportLinesToXLSX writes resolved lines to a workbook, one row per line.
func ExportLinesToXLSX(rows []internal.ResolvedItem, outputPath string) error {
	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)

	for i, h := range exportHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	for i, row := range rows {
		r := i + 2
		set := func(col int, value any) {
			cell, _ := excelize.CoordinatesToCellName(col, r)
			_ = f.SetCellValue(sheet, cell, value)
		}

		set(1, derefInt(row.Page))
		set(2, derefString(row.ModelNameRaw))
		set(3, derefString(row.ColorisRaw))
		set(4, derefString(row.ReferenceOCR))
		set(5, derefString(row.SizeOrCodeRaw))
		set(6, row.QuantityRaw)
		set(7, derefString(row.UnitPriceRaw))
		set(8, row.NeedsReview)
		set(9, string(row.Origin))
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return err
	}
	return f.SaveAs(outputPath)
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func derefInt(v *int) any {
	if v == nil {
		return ""
	}
	return *v
}
