package report

import (
	"errors"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"sidekick/internal/checklist"
	"sidekick/internal/domain"
)

const (
	SheetSummary   = "Summary"
	SheetChecklist = "Checklist"
	SheetIssues    = "Issues"
)

var (
	checklistHeaders = []string{"Section", "Item ID", "Item", "Status", "Monitor", "Notes"}
	issueHeaders     = []string{"#", "Section", "Item ID", "Item", "Status", "Notes"}
)

// Build renders the inspection as a workbook with a summary, the full
// checklist and the issue manifest.
func Build(in domain.Inspection, eq domain.Equipment) (*excelize.File, error) {
	if in.ID == "" {
		return nil, errors.New("inspection required")
	}
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", SheetSummary); err != nil {
		f.Close()
		return nil, err
	}
	for _, name := range []string{SheetChecklist, SheetIssues} {
		if _, err := f.NewSheet(name); err != nil {
			f.Close()
			return nil, err
		}
	}
	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E2E8F0"}, Pattern: 1},
	})
	if err != nil {
		f.Close()
		return nil, err
	}

	completed := ""
	if in.CompletedAt != nil {
		completed = *in.CompletedAt
	}
	counts := checklist.Counts(in.Document)
	summary := [][]any{
		{"Equipment", eq.ID},
		{"Name", eq.Name},
		{"Type", eq.Type},
		{"Location", eq.Location},
		{"Inspection", in.ID},
		{"Inspector", in.InspectorID},
		{"Template", in.Document.Template},
		{"Status", in.Status},
		{"Started", in.CreatedAt},
		{"Completed", completed},
		{"Overall", string(checklist.Worst(in.Document))},
		{"OK", counts[checklist.StatusOK]},
		{"Attention", counts[checklist.StatusAttention]},
		{"Repair", counts[checklist.StatusRepair]},
	}
	if err := writeRows(f, SheetSummary, summary); err != nil {
		f.Close()
		return nil, err
	}
	f.SetColStyle(SheetSummary, "A", headerStyle)
	f.SetColWidth(SheetSummary, "A", "A", 14)
	f.SetColWidth(SheetSummary, "B", "B", 40)

	rows := [][]any{toRow(checklistHeaders)}
	for _, sec := range in.Document.Sections {
		for _, it := range sec.Items {
			rows = append(rows, []any{sec.Name, it.ID, it.Label, it.DisplayStatus(), monitorCell(it), it.Notes})
		}
	}
	if err := writeRows(f, SheetChecklist, rows); err != nil {
		f.Close()
		return nil, err
	}
	f.SetRowStyle(SheetChecklist, 1, 1, headerStyle)
	f.SetColWidth(SheetChecklist, "A", "A", 20)
	f.SetColWidth(SheetChecklist, "C", "C", 32)
	f.SetColWidth(SheetChecklist, "F", "F", 60)

	rows = [][]any{toRow(issueHeaders)}
	for i, entry := range checklist.DeriveManifest(in.Document) {
		rows = append(rows, []any{i + 1, entry.Section, entry.Item.ID, entry.Item.Label, entry.Item.DisplayStatus(), entry.Item.Notes})
	}
	if err := writeRows(f, SheetIssues, rows); err != nil {
		f.Close()
		return nil, err
	}
	f.SetRowStyle(SheetIssues, 1, 1, headerStyle)
	f.SetColWidth(SheetIssues, "D", "D", 32)
	f.SetColWidth(SheetIssues, "F", "F", 60)
	return f, nil
}

// Write streams the XLSX report to w.
func Write(in domain.Inspection, eq domain.Equipment, w io.Writer) error {
	f, err := Build(in, eq)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := f.Write(w); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

func writeRows(f *excelize.File, sheet string, rows [][]any) error {
	for r, row := range rows {
		for c, val := range row {
			cell, err := excelize.CoordinatesToCellName(c+1, r+1)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(sheet, cell, val); err != nil {
				return err
			}
		}
	}
	return nil
}

func toRow(headers []string) []any {
	row := make([]any, len(headers))
	for i, h := range headers {
		row[i] = h
	}
	return row
}

func monitorCell(it checklist.Item) string {
	if it.IsMonitor == nil {
		return ""
	}
	if *it.IsMonitor {
		return "yes"
	}
	return "no"
}
