// Package report renders alerts as an Excel workbook.
package report

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/subidb/DMS-Dashboard/internal/domain"
)

const (
	SheetAlerts = "Alerts"
	ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

var alertHeadings = []string{
	"Timestamp", "Level", "Title", "Document", "Category", "Description", "Acknowledged",
}

// WriteAlerts writes one row per alert to the Alerts sheet. docs supplies
// the title and category of each alert's subject document; alerts whose
// document is missing from docs get empty cells there.
func WriteAlerts(w io.Writer, alerts []domain.Alert, docs map[string]domain.Document) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetAlerts); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	for i, h := range alertHeadings {
		if err := setCell(f, i+1, 1, h); err != nil {
			return err
		}
	}

	for i, a := range alerts {
		doc := docs[a.DocumentID]
		row := []any{
			a.Timestamp.UTC().Format(time.RFC3339),
			string(a.Level),
			a.Title,
			doc.Title,
			string(doc.Category),
			a.Description,
			yesNo(a.Acknowledged),
		}
		for j, v := range row {
			if err := setCell(f, j+1, i+2, v); err != nil {
				return err
			}
		}
	}

	if err := f.SetColWidth(SheetAlerts, "C", "D", 36); err != nil {
		return fmt.Errorf("set column width: %w", err)
	}
	if err := f.SetColWidth(SheetAlerts, "F", "F", 80); err != nil {
		return fmt.Errorf("set column width: %w", err)
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func setCell(f *excelize.File, col, row int, v any) error {
	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return err
	}
	if err := f.SetCellValue(SheetAlerts, cell, v); err != nil {
		return fmt.Errorf("set %s: %w", cell, err)
	}
	return nil
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}
