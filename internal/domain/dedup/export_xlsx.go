package dedup

import (
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"
)

const (
	sheetSummary  = "Summary"
	sheetClusters = "Clusters"
	sheetErrors   = "Errors"
)

var clusterHeader = []string{
	"Cluster", "Canonical ID", "Record ID", "Role", "Name", "Email", "Phone",
	"Created At", "Reason", "Status", "Backfill",
}

var errorHeader = []string{"Canonical ID", "Kind", "Table", "Record ID", "Message"}

// WriteXLSX renders r as a workbook for human review: a summary sheet, one
// row per cluster member, and the failed operations.
func WriteXLSX(w io.Writer, r *Report) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetSummary); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if _, err := f.NewSheet(sheetClusters); err != nil {
		return fmt.Errorf("create sheet: %w", err)
	}
	if _, err := f.NewSheet(sheetErrors); err != nil {
		return fmt.Errorf("create sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6F3FF"}, Pattern: 1},
		Border: []excelize.Border{
			{Type: "left", Color: "000000", Style: 1},
			{Type: "top", Color: "000000", Style: 1},
			{Type: "bottom", Color: "000000", Style: 1},
			{Type: "right", Color: "000000", Style: 1},
		},
	})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}

	summary := [][]interface{}{
		{"Mode", string(r.Mode)},
		{"Started", r.StartedAt.Format("2006-01-02 15:04:05")},
		{"Finished", r.FinishedAt.Format("2006-01-02 15:04:05")},
		{"Total patients", r.TotalPatients},
		{"Clusters found", r.ClustersFound},
		{"Duplicates found", r.DuplicatesFound},
		{"Duplicates removed", r.DuplicatesRemoved},
		{"Rows repointed", r.Counts.RowsRepointed},
		{"Repoints failed", r.Counts.RepointsFailed},
		{"Backfills applied", r.Counts.BackfillsApplied},
		{"Deletes failed", r.Counts.DeletesFailed},
		{"Already deleted", r.Counts.AlreadyDeleted},
		{"Missing tables", strings.Join(r.MissingTables, ", ")},
		{"Aborted", r.Aborted},
	}
	for i, row := range summary {
		if err := setRow(f, sheetSummary, i+1, row); err != nil {
			return err
		}
	}
	f.SetCellStyle(sheetSummary, "A1", fmt.Sprintf("A%d", len(summary)), headerStyle)
	f.SetColWidth(sheetSummary, "A", "A", 22)
	f.SetColWidth(sheetSummary, "B", "B", 40)

	if err := writeHeader(f, sheetClusters, clusterHeader, headerStyle); err != nil {
		return err
	}
	row := 2
	for i, c := range r.Clusters {
		backfill := make([]string, len(c.Backfill))
		for j, ch := range c.Backfill {
			backfill[j] = ch.Field + "=" + ch.Value
		}
		for _, m := range c.Members {
			role := "duplicate"
			if m.Canonical {
				role = "canonical"
			}
			values := []interface{}{
				i + 1, c.CanonicalID.String(), m.ID.String(), role, m.Name, m.Email, m.Phone,
				m.CreatedAt.Format("2006-01-02 15:04:05"), string(c.Reason), string(c.Status),
				"",
			}
			if m.Canonical {
				values[len(values)-1] = strings.Join(backfill, "; ")
			}
			if err := setRow(f, sheetClusters, row, values); err != nil {
				return err
			}
			row++
		}
	}
	widths := []float64{8, 38, 38, 11, 24, 30, 18, 20, 24, 10, 40}
	for i, wd := range widths {
		col, _ := excelize.ColumnNumberToName(i + 1)
		f.SetColWidth(sheetClusters, col, col, wd)
	}

	if err := writeHeader(f, sheetErrors, errorHeader, headerStyle); err != nil {
		return err
	}
	for i, oe := range r.Errors {
		values := []interface{}{idString(oe.CanonicalID), string(oe.Kind), oe.Table, idString(oe.RecordID), oe.Message}
		if err := setRow(f, sheetErrors, i+2, values); err != nil {
			return err
		}
	}
	f.SetColWidth(sheetErrors, "A", "A", 38)
	f.SetColWidth(sheetErrors, "D", "D", 38)
	f.SetColWidth(sheetErrors, "E", "E", 60)

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func writeHeader(f *excelize.File, sheet string, header []string, style int) error {
	values := make([]interface{}, len(header))
	for i, h := range header {
		values[i] = h
	}
	if err := setRow(f, sheet, 1, values); err != nil {
		return err
	}
	last, _ := excelize.CoordinatesToCellName(len(header), 1)
	return f.SetCellStyle(sheet, "A1", last, style)
}

func setRow(f *excelize.File, sheet string, row int, values []interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return fmt.Errorf("convert coordinates: %w", err)
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("set %s row %d: %w", sheet, row, err)
	}
	return nil
}

func idString(id uuid.UUID) string {
	if id == uuid.Nil {
		return ""
	}
	return id.String()
}
