package parser

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/unidoc/unioffice/spreadsheet"
	"github.com/unidoc/unioffice/spreadsheet/reference"
)

// Column names the parser recognizes besides the indicator columns.
const (
	ColumnOrganization     = "organization"
	ColumnPeriod           = "period"
	ColumnDocumentationURL = "documentation_url"
)

// Row is one parsed assessment row. Values holds the raw indicator cells;
// blank or unreadable cells are simply absent and score 0 downstream.
type Row struct {
	Line             int
	Organization     string
	Period           string
	DocumentationURL string
	Values           map[string]string
}

// RejectedRow reports a row dropped because its identifying column was blank.
type RejectedRow struct {
	Line   int
	Reason string
}

// Report is the parsed file: accepted rows plus per-row rejections.
type Report struct {
	Rows     []Row
	Rejected []RejectedRow
}

// SchemaMismatchError means the header row lacks required columns.
type SchemaMismatchError struct {
	Missing []string
}

func (e *SchemaMismatchError) Error() string {
	return fmt.Sprintf("report is missing required columns: %s", strings.Join(e.Missing, ", "))
}

// Parse reads an uploaded report. The format is chosen from the filename
// extension; required lists the indicator columns the header must contain.
func Parse(filename string, data []byte, required []string) (*Report, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv":
		return parseCSV(data, required)
	case ".xlsx":
		return parseXLSX(data, required)
	default:
		return nil, fmt.Errorf("unsupported report format %q (want .csv or .xlsx)", filepath.Ext(filename))
	}
}

func parseCSV(data []byte, required []string) (*Report, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	var records [][]string
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}
		records = append(records, record)
	}
	return buildReport(records, required)
}

func parseXLSX(data []byte, required []string) (*Report, error) {
	wb, err := spreadsheet.Read(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("read workbook: %w", err)
	}
	sheets := wb.Sheets()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook has no sheets")
	}

	// Only the first sheet carries assessment data; cells can be sparse so
	// rows are rebuilt by column index.
	sheet := sheets[0]
	var records [][]string
	for _, row := range sheet.Rows() {
		rowIdx := int(row.RowNumber()) - 1
		for rowIdx >= len(records) {
			records = append(records, nil)
		}
		cells := records[rowIdx]
		for _, cell := range row.Cells() {
			colName, err := cell.Column()
			if err != nil {
				continue
			}
			colIdx := int(reference.ColumnToIndex(colName))
			for colIdx >= len(cells) {
				cells = append(cells, "")
			}
			cells[colIdx] = cell.GetFormattedValue()
		}
		records[rowIdx] = cells
	}
	return buildReport(records, required)
}

// buildReport validates the header and turns the remaining records into rows.
// Each row parses independently: a blank organization rejects the row, any
// other blank cell is just a missing value.
func buildReport(records [][]string, required []string) (*Report, error) {
	header, start := nextNonEmpty(records, 0)
	if header == nil {
		return nil, &SchemaMismatchError{Missing: append([]string{ColumnOrganization}, required...)}
	}

	index := make(map[string]int, len(header))
	for i, name := range header {
		index[normalize(name)] = i
	}

	var missing []string
	if _, ok := index[ColumnOrganization]; !ok {
		missing = append(missing, ColumnOrganization)
	}
	for _, name := range required {
		if _, ok := index[normalize(name)]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, &SchemaMismatchError{Missing: missing}
	}

	report := &Report{}
	for i := start + 1; i < len(records); i++ {
		record := records[i]
		if isEmpty(record) {
			continue
		}
		line := i + 1
		org := cellAt(record, index[ColumnOrganization])
		if org == "" {
			report.Rejected = append(report.Rejected, RejectedRow{
				Line:   line,
				Reason: "organization column is blank",
			})
			continue
		}
		row := Row{
			Line:         line,
			Organization: org,
			Values:       make(map[string]string, len(required)),
		}
		if idx, ok := index[ColumnPeriod]; ok {
			row.Period = cellAt(record, idx)
		}
		if idx, ok := index[ColumnDocumentationURL]; ok {
			row.DocumentationURL = cellAt(record, idx)
		}
		for _, name := range required {
			if v := cellAt(record, index[normalize(name)]); v != "" {
				row.Values[name] = v
			}
		}
		report.Rows = append(report.Rows, row)
	}
	return report, nil
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func cellAt(record []string, idx int) string {
	if idx < 0 || idx >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[idx])
}

func isEmpty(record []string) bool {
	for _, c := range record {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func nextNonEmpty(records [][]string, from int) ([]string, int) {
	for i := from; i < len(records); i++ {
		if !isEmpty(records[i]) {
			return records[i], i
		}
	}
	return nil, -1
}
