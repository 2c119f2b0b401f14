// Package export writes a filtered view to files: the working subset as CSV
// or JSON and the aggregate tables as an .xlsx workbook.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/geohead/incidentdash/aggregate"
	"github.com/geohead/incidentdash/incident"
)

// Workbook is the content of an aggregate export.
type Workbook struct {
	Source  string
	Filters []string
	Summary aggregate.Summary
	Tables  aggregate.Tables
}

const summarySheet = "summary"

// WriteXLSX writes a summary sheet followed by one sheet per table.
func WriteXLSX(w io.Writer, wb Workbook) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), summarySheet); err != nil {
		return err
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}

	rows := [][]any{{"Source", wb.Source}}
	for _, line := range wb.Filters {
		rows = append(rows, []any{"Filter", line})
	}
	rows = append(rows, []any{"Total calls", wb.Summary.TotalCalls})
	if wb.Summary.TotalCalls > 0 {
		rows = append(rows,
			[]any{"First call", wb.Summary.First.Format(time.RFC3339)},
			[]any{"Latest call", wb.Summary.Last.Format(time.RFC3339)},
			[]any{"Calls on latest day", wb.Summary.LatestDay},
			[]any{"Calls in latest month", wb.Summary.LatestMonth},
			[]any{"Calls in latest year", wb.Summary.LatestYear},
		)
	}
	if wb.Summary.AverageAge != nil {
		rows = append(rows, []any{"Average age", *wb.Summary.AverageAge})
	}
	if err := writeRows(f, summarySheet, rows); err != nil {
		return err
	}
	if err := f.SetColStyle(summarySheet, "A", bold); err != nil {
		return err
	}

	for _, t := range wb.Tables.Single() {
		rows := [][]any{{t.Field.Label(), "Num of calls"}}
		for _, e := range t.Entries {
			rows = append(rows, []any{e.Key, e.Count})
		}
		if err := addTableSheet(f, t.Name, rows, bold); err != nil {
			return err
		}
	}
	for _, t := range wb.Tables.Cross() {
		rows := [][]any{{t.Field1.Label(), t.Field2.Label(), "Num of calls"}}
		for _, e := range t.Entries {
			rows = append(rows, []any{e.Key1, e.Key2, e.Count})
		}
		if err := addTableSheet(f, t.Name, rows, bold); err != nil {
			return err
		}
	}

	return f.Write(w)
}

func addTableSheet(f *excelize.File, name string, rows [][]any, headerStyle int) error {
	if _, err := f.NewSheet(name); err != nil {
		return fmt.Errorf("sheet %s: %w", name, err)
	}
	if err := writeRows(f, name, rows); err != nil {
		return err
	}
	if err := f.SetRowStyle(name, 1, 1, headerStyle); err != nil {
		return err
	}
	return f.SetColWidth(name, "A", "B", 24)
}

func writeRows(f *excelize.File, sheet string, rows [][]any) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("sheet %s row %d: %w", sheet, i+1, err)
		}
	}
	return nil
}

// Header returns the CSV header for rows: the known columns followed by
// the sorted union of pass-through columns.
func Header(rows []incident.Row) []string {
	header := append([]string{}, incident.RequiredColumns...)
	extra := make(map[string]bool)
	for _, r := range rows {
		for k := range r.Extra {
			extra[k] = true
		}
	}
	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return append(header, keys...)
}

// WriteCSV writes rows with their timestamps in RFC 3339 form.
func WriteCSV(w io.Writer, rows []incident.Row) error {
	cw := csv.NewWriter(w)
	header := Header(rows)
	if err := cw.Write(header); err != nil {
		return err
	}
	nKnown := len(incident.RequiredColumns)
	for _, r := range rows {
		rec := make([]string, len(header))
		for i, col := range header[:nKnown] {
			rec[i] = column(r, col)
		}
		for i, col := range header[nKnown:] {
			rec[nKnown+i] = r.Extra[col]
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func column(r incident.Row, col string) string {
	if col == incident.ColTime {
		return r.Time.Format(time.RFC3339)
	}
	if f, ok := incident.ParseField(col); ok {
		return r.Value(f)
	}
	return ""
}

// WriteJSON writes rows as an indented JSON array.
func WriteJSON(w io.Writer, rows []incident.Row) error {
	if rows == nil {
		rows = []incident.Row{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(rows)
}
