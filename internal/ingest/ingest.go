package ingest

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/nugulmap/markers/internal/fetcher"
	"github.com/nugulmap/markers/internal/store"
)

// Writer is the store capability ingestion needs.
type Writer interface {
	PutIfAbsent(ctx context.Context, id string, doc store.Document) (bool, error)
}

// Summary counts the outcome of an ingestion run.
type Summary struct {
	Files       int `json:"files"`
	FilesFailed int `json:"files_failed"`
	Rows        int `json:"rows"`
	Created     int `json:"created"`
	Skipped     int `json:"skipped"`
	RowsFailed  int `json:"rows_failed"`
	Geocoded    int `json:"geocoded"`
}

// Add accumulates another summary.
func (s *Summary) Add(o Summary) {
	s.Files += o.Files
	s.FilesFailed += o.FilesFailed
	s.Rows += o.Rows
	s.Created += o.Created
	s.Skipped += o.Skipped
	s.RowsFailed += o.RowsFailed
	s.Geocoded += o.Geocoded
}

// Driver runs ingestion sequentially: one file at a time, one row at a time.
type Driver struct {
	writer    Writer
	cleaner   *Cleaner
	fallbacks []string
}

// NewDriver creates a Driver. fallbacks are the encodings tried after UTF-8.
func NewDriver(w Writer, c *Cleaner, fallbacks []string) *Driver {
	if c == nil {
		c = NewCleaner(nil)
	}
	return &Driver{writer: w, cleaner: c, fallbacks: fallbacks}
}

// IngestDir processes every *.csv file directly inside dir, in name order.
// A failing file is logged and counted; only an unreadable directory or a
// cancelled context stops the run.
func (d *Driver) IngestDir(ctx context.Context, dir string) (Summary, error) {
	var total Summary

	entries, err := os.ReadDir(dir)
	if err != nil {
		return total, eris.Wrapf(err, "ingest: read dir %s", dir)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".csv") {
			continue
		}
		files = append(files, e.Name())
	}
	sort.Strings(files)

	zap.L().Info("ingest: starting", zap.String("dir", dir), zap.Int("files", len(files)))

	for _, name := range files {
		if err := ctx.Err(); err != nil {
			return total, eris.Wrap(err, "ingest: cancelled")
		}

		path := filepath.Join(dir, name)
		sum, err := d.IngestFile(ctx, path)
		total.Add(sum)
		if err != nil {
			if ctx.Err() != nil {
				return total, eris.Wrap(ctx.Err(), "ingest: cancelled")
			}
			total.FilesFailed++
			zap.L().Error("ingest: file skipped", zap.String("file", path), zap.Error(err))
			continue
		}
		zap.L().Info("ingest: file done",
			zap.String("file", path),
			zap.Int("rows", sum.Rows),
			zap.Int("created", sum.Created),
			zap.Int("skipped", sum.Skipped),
		)
	}
	return total, nil
}

// IngestFile decodes, parses and stores one CSV file. The whole file is parsed
// before anything is written, so a malformed file writes nothing.
func (d *Driver) IngestFile(ctx context.Context, path string) (Summary, error) {
	sum := Summary{Files: 1}

	data, err := os.ReadFile(path)
	if err != nil {
		return sum, eris.Wrapf(err, "ingest: read %s", path)
	}
	text, encoding, err := fetcher.DecodeText(data, d.fallbacks)
	if err != nil {
		return sum, eris.Wrapf(err, "ingest: decode %s", path)
	}

	header, records, err := readRecords(ctx, text)
	if err != nil {
		return sum, eris.Wrapf(err, "ingest: parse %s", path)
	}
	if header == nil {
		zap.L().Warn("ingest: empty file", zap.String("file", path))
		return sum, nil
	}

	headers := NormalizeHeaders(header)
	zap.L().Debug("ingest: file decoded",
		zap.String("file", path),
		zap.String("encoding", encoding),
		zap.Strings("headers", headers),
	)

	for i, values := range records {
		if err := ctx.Err(); err != nil {
			return sum, eris.Wrap(err, "ingest: cancelled")
		}
		sum.Rows++

		rec := d.cleaner.Clean(ctx, NewRow(headers, values))
		if rec.Geocoded {
			sum.Geocoded++
		}

		key := rec.Key(i)
		created, err := d.writer.PutIfAbsent(ctx, key, rec.Document())
		if err != nil {
			sum.RowsFailed++
			zap.L().Error("ingest: write failed", zap.String("file", path), zap.String("key", key), zap.Error(err))
			continue
		}
		if !created {
			sum.Skipped++
			zap.L().Info("ingest: already exists, skipping", zap.String("key", key))
			continue
		}
		sum.Created++
	}
	return sum, nil
}

// readRecords splits text into its header and data rows. Bare quotes inside
// fields are accepted. The header is nil for an empty file.
func readRecords(ctx context.Context, text string) (header []string, records [][]string, err error) {
	headerCh := make(chan []string, 1)
	rowCh, errCh := fetcher.StreamCSV(ctx, strings.NewReader(text), fetcher.CSVOptions{
		HasHeader:  true,
		HeaderCh:   headerCh,
		LazyQuotes: true,
		TrimSpace:  true,
	})

	for row := range rowCh {
		records = append(records, row)
	}
	if err = <-errCh; err != nil {
		return nil, nil, err
	}
	select {
	case header = <-headerCh:
	default:
	}
	return header, records, nil
}
