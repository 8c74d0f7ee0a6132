// Package fetcher retrieves remote datasets over HTTP and FTP, caches them on
// disk, and decodes CSV and ZIP payloads.
package fetcher

import (
	"context"
	"encoding/csv"
	"io"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// CSVOptions configures the streaming CSV parser.
type CSVOptions struct {
	Delimiter  rune // default ','
	Comment    rune // comment character (0 = none)
	LazyQuotes bool
	TrimSpace  bool
	// StripBOM decodes UTF-8 or UTF-16 input that starts with a byte order
	// mark and removes the mark. Input without a BOM is read as UTF-8.
	StripBOM bool
}

// StreamCSV reads a CSV file and sends rows (including the header, if any) to a channel.
// Caller must consume the returned row channel. Errors are sent on the error channel.
// Both channels are closed when processing completes.
func StreamCSV(ctx context.Context, r io.Reader, opts CSVOptions) (<-chan []string, <-chan error) {
	rowCh := make(chan []string, 64)
	errCh := make(chan error, 1)

	go func() {
		defer close(rowCh)
		defer close(errCh)

		if opts.StripBOM {
			r = transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder()))
		}
		reader := csv.NewReader(r)

		if opts.Delimiter != 0 {
			reader.Comma = opts.Delimiter
		}
		if opts.Comment != 0 {
			reader.Comment = opts.Comment
		}
		reader.LazyQuotes = opts.LazyQuotes
		reader.FieldsPerRecord = -1 // allow variable fields

		for {
			if ctx.Err() != nil {
				errCh <- eris.Wrap(ctx.Err(), "csv: context cancelled")
				return
			}

			record, err := reader.Read()
			if err == io.EOF {
				return
			}
			if err != nil {
				errCh <- eris.Wrap(err, "csv: read row")
				return
			}

			if opts.TrimSpace {
				for i, field := range record {
					record[i] = strings.TrimSpace(field)
				}
			}

			select {
			case rowCh <- record:
			case <-ctx.Done():
				errCh <- eris.Wrap(ctx.Err(), "csv: context cancelled")
				return
			}
		}
	}()

	return rowCh, errCh
}

// Table is a fully materialised CSV or XLSX sheet with a header row.
type Table struct {
	Header []string
	Rows   [][]string
	index  map[string]int
}

// ReadTable reads an entire CSV with a header row into memory. TrimSpace
// applies to the header row as well as the data, so " Area (m2) " is looked
// up as "Area (m2)". Beyond that, names match exactly: case and interior
// spacing are significant.
func ReadTable(ctx context.Context, r io.Reader, opts CSVOptions) (*Table, error) {
	rowCh, errCh := StreamCSV(ctx, r, opts)

	var header []string
	var rows [][]string
	first := true
	for row := range rowCh {
		if first {
			header = row
			first = false
			continue
		}
		rows = append(rows, row)
	}
	for err := range errCh {
		if err != nil {
			return nil, err
		}
	}
	if first {
		return nil, eris.New("csv: missing header row")
	}
	return newTable(header, rows)
}

func newTable(header []string, rows [][]string) (*Table, error) {
	t := &Table{Header: header, Rows: rows, index: make(map[string]int, len(header))}
	for i, h := range header {
		if _, dup := t.index[h]; dup {
			return nil, eris.Errorf("table: duplicate column %q", h)
		}
		t.index[h] = i
	}
	return t, nil
}

// Column returns the index of a named column, or -1.
func (t *Table) Column(name string) int {
	if i, ok := t.index[name]; ok {
		return i
	}
	return -1
}

// RequireColumns fails if any of the named columns is absent from the header.
func (t *Table) RequireColumns(names ...string) error {
	var missing []string
	for _, n := range names {
		if n == "" {
			continue
		}
		if t.Column(n) < 0 {
			missing = append(missing, n)
		}
	}
	if len(missing) > 0 {
		return eris.Errorf("csv: missing required columns %q", missing)
	}
	return nil
}

// Record returns row i as a name → value map. Short rows yield only the
// columns they have.
func (t *Table) Record(i int) map[string]string {
	row := t.Rows[i]
	m := make(map[string]string, len(t.Header))
	for j, h := range t.Header {
		if j < len(row) {
			m[h] = row[j]
		}
	}
	return m
}
