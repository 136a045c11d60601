package incident

import (
	"context"
	"encoding/csv"
	"io"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding/htmlindex"
)

// CSVOptions configures the CSV reader.
type CSVOptions struct {
	Delimiter rune // default ','
	// Encoding is a WHATWG label such as "windows-1252". Empty means UTF-8.
	Encoding   string
	LazyQuotes bool
	TrimSpace  bool
}

const utf8BOM = "\uFEFF"

// StreamCSV reads CSV records and sends them on a channel, header included.
// Both channels are closed when processing completes.
func StreamCSV(ctx context.Context, r io.Reader, opts CSVOptions) (<-chan []string, <-chan error) {
	rowCh := make(chan []string, 64)
	errCh := make(chan error, 1)

	go func() {
		defer close(rowCh)
		defer close(errCh)

		if opts.Encoding != "" && !strings.EqualFold(opts.Encoding, "utf-8") {
			enc, err := htmlindex.Get(opts.Encoding)
			if err != nil {
				errCh <- eris.Wrapf(err, "csv: unknown encoding %q", opts.Encoding)
				return
			}
			r = enc.NewDecoder().Reader(r)
		}

		reader := csv.NewReader(r)
		if opts.Delimiter != 0 {
			reader.Comma = opts.Delimiter
		}
		reader.LazyQuotes = opts.LazyQuotes
		reader.FieldsPerRecord = -1

		first := true
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

			if first && len(record) > 0 {
				record[0] = strings.TrimPrefix(record[0], utf8BOM)
			}
			first = false
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

// ReadCSV reads a whole CSV table. The first record is the header.
func ReadCSV(ctx context.Context, r io.Reader, opts CSVOptions) (*Table, error) {
	rows, errs := StreamCSV(ctx, r, opts)

	t := &Table{}
	for row := range rows {
		if t.Header == nil {
			t.Header = row
			continue
		}
		t.Rows = append(t.Rows, row)
	}
	if err := <-errs; err != nil {
		return nil, err
	}
	if t.Header == nil {
		return nil, eris.New("csv: input has no header row")
	}
	return t, nil
}

// ReadCSVFile opens path and reads it with ReadCSV.
func ReadCSVFile(ctx context.Context, path string, opts CSVOptions) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "csv: open %s", path)
	}
	defer f.Close() //nolint:errcheck
	return ReadCSV(ctx, f, opts)
}

// WriteCSV writes t with a header row.
func WriteCSV(w io.Writer, t *Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Header); err != nil {
		return eris.Wrap(err, "csv: write header")
	}
	for i, row := range t.Rows {
		if err := cw.Write(row); err != nil {
			return eris.Wrapf(err, "csv: write row %d", i)
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "csv: flush")
}
