package report

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"
)

const sheetName = "Sheet1"

// RenderXLSX writes a spreadsheet with the document header above the rows.
func RenderXLSX(w io.Writer, doc *Document, loc *time.Location) error {
	f := excelize.NewFile()
	defer f.Close()

	cells := [][]any{{doc.title()}}
	for _, l := range doc.headerLines(loc) {
		cells = append(cells, []any{l})
	}
	cells = append(cells, []any{}, []any{"#", "Volume", "Destination", "Branch"})
	for i, r := range doc.Rows {
		cells = append(cells, []any{i + 1, r.Key, r.Destination, r.Branch})
	}

	for i, row := range cells {
		if len(row) == 0 {
			continue
		}
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheetName, cell, &row); err != nil {
			return fmt.Errorf("write row %d: %w", i+1, err)
		}
	}
	if err := f.SetColWidth(sheetName, "B", "C", 28); err != nil {
		return err
	}
	return f.Write(w)
}
