package importer

import (
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/keihi-platform/api/internal/masters"
)

// bannerMarker identifies the format banner PCA writes above the header.
const bannerMarker = "text version"

// Table is a header plus the data rows keyed by column name. Lines holds the
// 1-based file line (or sheet row) of each entry in Rows. Dropped counts
// data rows whose field count did not match the header.
type Table struct {
	Header  []string
	Rows    []masters.Row
	Lines   []int
	Dropped int
}

// Line returns the file line of Rows[i], or i+2 when lines were not tracked.
func (t Table) Line(i int) int {
	if i < len(t.Lines) {
		return t.Lines[i]
	}
	return i + 2
}

type numberedLine struct {
	no   int
	text string
}

// Tokenize splits decoded CSV text into a Table. Fields are split by
// splitLine, not encoding/csv: PCA exports toggle quoting mid-field and
// trim every field, which the standard reader rejects or preserves.
func Tokenize(text string) Table {
	var lines []numberedLine
	for i, line := range strings.Split(text, "\n") {
		line = strings.TrimSuffix(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		lines = append(lines, numberedLine{no: i + 1, text: line})
	}
	if len(lines) > 0 && strings.Contains(lines[0].text, bannerMarker) {
		lines = lines[1:]
	}
	if len(lines) == 0 {
		return Table{}
	}

	header := splitLine(lines[0].text, ',')
	for i := range header {
		header[i] = norm.NFC.String(header[i])
	}

	table := Table{Header: header}
	for _, line := range lines[1:] {
		fields := splitLine(line.text, ',')
		if len(fields) != len(header) {
			table.Dropped++
			continue
		}
		table.Rows = append(table.Rows, toRow(header, fields))
		table.Lines = append(table.Lines, line.no)
	}
	return table
}

// splitLine scans one line keeping an in-quotes flag. A doubled quote inside
// quotes is a literal quote; any other quote toggles the flag.
func splitLine(line string, delim rune) []string {
	var (
		fields   []string
		current  strings.Builder
		inQuotes bool
	)
	runes := []rune(line)
	for i := 0; i < len(runes); i++ {
		c := runes[i]
		switch {
		case c == '"':
			if inQuotes && i+1 < len(runes) && runes[i+1] == '"' {
				current.WriteRune('"')
				i++
				continue
			}
			inQuotes = !inQuotes
		case c == delim && !inQuotes:
			fields = append(fields, strings.TrimSpace(current.String()))
			current.Reset()
		default:
			current.WriteRune(c)
		}
	}
	return append(fields, strings.TrimSpace(current.String()))
}

// toRow pairs header names with fields; a later duplicate header wins.
func toRow(header, fields []string) masters.Row {
	row := make(masters.Row, len(header))
	for i, name := range header {
		row[name] = fields[i]
	}
	return row
}
