// Package export builds spreadsheet downloads of the closing ledger.
package export

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"panaderia/backend/internal/domain"
)

const sheetName = "Closings"

var headers = []string{
	"Date", "Product", "Opening Stock", "Produced", "Counted Stock",
	"Units Sold", "Revenue", "Raw Delta",
}

// ClosingsWorkbook lays the records out one row per ledger entry, money
// in whole currency units with two decimals.
func ClosingsWorkbook(records []domain.ClosingRecord) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return nil, err
	}

	for col, h := range headers {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return nil, err
		}
		if err := f.SetCellValue(sheetName, cell, h); err != nil {
			return nil, err
		}
	}

	for i, rec := range records {
		row := i + 2
		values := []any{
			rec.Date.Format("2006-01-02"),
			rec.ProductName,
			rec.OpeningStock,
			rec.Produced,
			rec.CountedStock,
			rec.SalesDerived,
			float64(rec.RevenueCents) / 100,
			rec.RawDelta,
		}
		for col, v := range values {
			cell, err := excelize.CoordinatesToCellName(col+1, row)
			if err != nil {
				return nil, err
			}
			if err := f.SetCellValue(sheetName, cell, v); err != nil {
				return nil, err
			}
		}
	}

	if err := f.SetColWidth(sheetName, "A", "B", 18); err != nil {
		return nil, err
	}
	return f, nil
}

// WriteClosingsXLSX streams the workbook, e.g. into an HTTP response.
func WriteClosingsXLSX(w io.Writer, records []domain.ClosingRecord) error {
	f, err := ClosingsWorkbook(records)
	if err != nil {
		return fmt.Errorf("build workbook: %w", err)
	}
	defer func() { _ = f.Close() }()

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

// SaveClosingsXLSX writes the workbook to a file on disk.
func SaveClosingsXLSX(path string, records []domain.ClosingRecord) error {
	f, err := ClosingsWorkbook(records)
	if err != nil {
		return fmt.Errorf("build workbook: %w", err)
	}
	defer func() { _ = f.Close() }()

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save workbook %s: %w", path, err)
	}
	return nil
}
