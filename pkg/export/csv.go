// Package export writes margin result tables as comma separated text and
// reads them back.
package export

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"margincalc/internal/models"
)

// Header is the first line of every exported table
const Header = "Systematic error, Random Error, P90, P95, P99"

// NotAvailable is written in place of a percentile that was never reached
const NotAvailable = "N/A"

var (
	// ErrIO marks failures writing or reading an exported table
	ErrIO = errors.New("export: i/o failure")

	// ErrMalformedTable is returned by Read for text that is not an exported table
	ErrMalformedTable = errors.New("export: malformed table")
)

// IOError describes a failed write or read
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("export: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("export: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrIO) hold for every IOError
func (e *IOError) Is(target error) bool { return target == ErrIO }

// FormatValue renders a value the way the margin calculator has always
// written it: the shortest decimal form, always with a decimal point.
func FormatValue(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

func formatPercentile(p models.Percentile) string {
	if !p.Found {
		return NotAvailable
	}
	return FormatValue(p.Value)
}

// record returns the fields of one row. The empty last field produces the
// trailing comma of the reference output.
func record(row models.SweepResultRow) []string {
	return []string{
		FormatValue(row.SystematicError),
		FormatValue(row.RandomError),
		formatPercentile(row.P90),
		formatPercentile(row.P95),
		formatPercentile(row.P99),
		"",
	}
}

// Write renders table to w
func Write(w io.Writer, table *models.SweepResultTable) error {
	// The header has spaces after its commas, which csv.Writer would quote.
	if _, err := io.WriteString(w, Header+"\n"); err != nil {
		return &IOError{Op: "write", Err: err}
	}

	cw := csv.NewWriter(w)
	if table != nil {
		for _, row := range table.Rows {
			if err := cw.Write(record(row)); err != nil {
				return &IOError{Op: "write", Err: err}
			}
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return &IOError{Op: "write", Err: err}
	}
	return nil
}

// Format renders table as a string
func Format(table *models.SweepResultTable) string {
	var buf bytes.Buffer
	// Writes to a bytes.Buffer cannot fail.
	_ = Write(&buf, table)
	return buf.String()
}

// Save writes table to path, creating parent directories as needed.
// A failure leaves the table untouched.
func Save(path string, table *models.SweepResultTable) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return &IOError{Op: "create directory", Path: dir, Err: err}
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return &IOError{Op: "create", Path: path, Err: err}
	}
	if err := Write(f, table); err != nil {
		f.Close()
		var ioErr *IOError
		if errors.As(err, &ioErr) {
			ioErr.Path = path
		}
		return err
	}
	if err := f.Close(); err != nil {
		return &IOError{Op: "close", Path: path, Err: err}
	}
	return nil
}

// Read parses a table written by Write. The run ID is not part of the
// format and is left empty.
func Read(r io.Reader) (*models.SweepResultTable, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("%w: empty input", ErrMalformedTable)
	}
	if err != nil {
		return nil, readError(err)
	}
	if strings.Join(header, ", ") != Header {
		return nil, fmt.Errorf("%w: unexpected header %q", ErrMalformedTable, strings.Join(header, ","))
	}

	table := models.NewSweepResultTable("")
	for line := 2; ; line++ {
		fields, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, readError(err)
		}

		// A trailing comma yields an empty sixth field.
		if len(fields) == 6 && fields[5] == "" {
			fields = fields[:5]
		}
		if len(fields) != 5 {
			return nil, fmt.Errorf("%w: line %d has %d fields, want 5", ErrMalformedTable, line, len(fields))
		}

		row, err := parseRow(fields)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrMalformedTable, line, err)
		}
		table.Append(row)
	}
	return table, nil
}

// Load reads an exported table from path
func Load(path string) (*models.SweepResultTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &IOError{Op: "open", Path: path, Err: err}
	}
	defer f.Close()
	return Read(f)
}

func readError(err error) error {
	var parseErr *csv.ParseError
	if errors.As(err, &parseErr) {
		return fmt.Errorf("%w: %v", ErrMalformedTable, err)
	}
	return &IOError{Op: "read", Err: err}
}

func parseRow(fields []string) (models.SweepResultRow, error) {
	var row models.SweepResultRow
	var err error

	if row.SystematicError, err = strconv.ParseFloat(fields[0], 64); err != nil {
		return row, fmt.Errorf("invalid systematic error %q", fields[0])
	}
	if row.RandomError, err = strconv.ParseFloat(fields[1], 64); err != nil {
		return row, fmt.Errorf("invalid random error %q", fields[1])
	}

	columns := []*models.Percentile{&row.P90, &row.P95, &row.P99}
	for i, col := range columns {
		field := fields[2+i]
		if field == NotAvailable {
			continue
		}
		v, err := strconv.ParseFloat(field, 64)
		if err != nil {
			return row, fmt.Errorf("invalid percentile %q", field)
		}
		*col = models.At(v)
	}
	return row, nil
}
