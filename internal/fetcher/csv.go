// Package fetcher reads tabular source files: charset detection and streaming CSV parsing.
package fetcher

import (
	"context"
	"encoding/csv"
	"io"
	"strings"

	"github.com/rotisserie/eris"
)

// CSVOptions configures the streaming CSV parser.
type CSVOptions struct {
	HasHeader  bool            // first record goes to HeaderCh instead of the row channel
	HeaderCh   chan<- []string // receives the header; must be buffered or read concurrently
	LazyQuotes bool            // accept bare quotes inside fields
	TrimSpace  bool
}

// StreamCSV parses r on a goroutine. Rows arrive on the first channel, which
// the caller must drain; at most one error arrives on the second. Rows may
// have differing field counts. Both channels close when parsing stops.
func StreamCSV(ctx context.Context, r io.Reader, opts CSVOptions) (<-chan []string, <-chan error) {
	rowCh := make(chan []string, 64)
	errCh := make(chan error, 1)

	reader := csv.NewReader(r)
	reader.LazyQuotes = opts.LazyQuotes
	reader.FieldsPerRecord = -1

	go func() {
		defer close(rowCh)
		defer close(errCh)

		fail := func(err error, msg string) {
			errCh <- eris.Wrap(err, msg)
		}

		headerPending := opts.HasHeader
		for {
			if err := ctx.Err(); err != nil {
				fail(err, "csv: context cancelled")
				return
			}

			record, err := reader.Read()
			if err == io.EOF {
				return
			}
			if err != nil {
				fail(err, "csv: read row")
				return
			}
			if opts.TrimSpace {
				for i := range record {
					record[i] = strings.TrimSpace(record[i])
				}
			}

			if headerPending {
				headerPending = false
				if opts.HeaderCh == nil {
					continue
				}
				select {
				case opts.HeaderCh <- record:
					continue
				case <-ctx.Done():
					fail(ctx.Err(), "csv: context cancelled sending header")
					return
				}
			}

			select {
			case rowCh <- record:
			case <-ctx.Done():
				fail(ctx.Err(), "csv: context cancelled")
				return
			}
		}
	}()

	return rowCh, errCh
}
