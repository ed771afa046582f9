package export

import (
	"errors"
	"fmt"
	"strings"
)

// Supported output formats.
const (
	FormatCSV = "csv"
	FormatPDF = "pdf"
)

// ErrUnsupportedFormat is returned by Render for unknown formats.
var ErrUnsupportedFormat = errors.New("unsupported export format")

// Table is the tabular content of a stats export. Every row has one cell per header.
type Table struct {
	Title   string
	Headers []string
	Rows    [][]string
}

func (t Table) validate() error {
	if len(t.Headers) == 0 {
		return errors.New("export requires at least one header")
	}
	for i, row := range t.Rows {
		if len(row) != len(t.Headers) {
			return fmt.Errorf("row %d has %d cells, want %d", i, len(row), len(t.Headers))
		}
	}
	return nil
}

// Render encodes the table in the requested format and returns the bytes with
// their content type.
func Render(format string, table Table) ([]byte, string, error) {
	switch strings.ToLower(format) {
	case "", FormatCSV:
		body, err := RenderCSV(table)
		return body, "text/csv", err
	case FormatPDF:
		body, err := RenderPDF(table)
		return body, "application/pdf", err
	default:
		return nil, "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
}
