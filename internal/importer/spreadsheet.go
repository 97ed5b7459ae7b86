package importer

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/shakinm/xlsReader/xls"
	"github.com/xuri/excelize/v2"
	"golang.org/x/text/unicode/norm"

	"github.com/keihi-platform/api/internal/masters"
)

// ReadSpreadsheet reads the first sheet of an OOXML (.xlsx) workbook.
func ReadSpreadsheet(data []byte) (Table, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return Table{}, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return Table{}, fmt.Errorf("workbook has no sheets")
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return Table{}, fmt.Errorf("read sheet %s: %w", sheets[0], err)
	}
	return tableFromRows(rows), nil
}

// ReadLegacyWorkbook reads the first sheet of a BIFF (.xls) workbook, the
// format older PCA installations export. The BIFF parser panics on some
// truncated files; that is reported as an error.
func ReadLegacyWorkbook(data []byte) (table Table, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			table, err = Table{}, fmt.Errorf("parse xls workbook: %v", rec)
		}
	}()

	wb, err := xls.OpenReader(bytes.NewReader(data))
	if err != nil {
		return Table{}, fmt.Errorf("open xls workbook: %w", err)
	}
	sheet, err := wb.GetSheet(0)
	if err != nil {
		return Table{}, fmt.Errorf("read first xls sheet: %w", err)
	}

	var rows [][]string
	for i := 0; i <= sheet.GetNumberRows(); i++ {
		row, err := sheet.GetRow(i)
		if err != nil {
			rows = append(rows, nil)
			continue
		}
		cols := row.GetCols()
		cells := make([]string, len(cols))
		for j, c := range cols {
			cells[j] = c.GetString()
		}
		rows = append(rows, cells)
	}
	return tableFromRows(rows), nil
}

// tableFromRows treats the first non-blank row as the header. Rows without
// any text are skipped and short rows are padded so every header column is
// present. Lines are 1-based sheet row numbers.
func tableFromRows(rows [][]string) Table {
	var start int
	for start < len(rows) && blank(rows[start]) {
		start++
	}
	if start == len(rows) {
		return Table{}
	}

	header := make([]string, len(rows[start]))
	for i, h := range rows[start] {
		header[i] = norm.NFC.String(strings.TrimSpace(h))
	}

	table := Table{Header: header}
	for i := start + 1; i < len(rows); i++ {
		raw := rows[i]
		if blank(raw) {
			continue
		}
		row := make(masters.Row, len(header))
		for j, name := range header {
			if name == "" {
				continue
			}
			var value string
			if j < len(raw) {
				value = strings.TrimSpace(raw[j])
			}
			row[name] = value
		}
		table.Rows = append(table.Rows, row)
		table.Lines = append(table.Lines, i+1)
	}
	return table
}

func blank(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
