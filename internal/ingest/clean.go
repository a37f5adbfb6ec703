package ingest

import (
	"context"
	"math"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/nugulmap/markers/pkg/geocode"
)

// Row is one normalized CSV row: field name to the values of every column
// that carried that name, in column order. A field holds more than one value
// when two source headers in the same file map to the same canonical field.
type Row map[string][]string

// NewRow pairs normalized headers with a record's values. Missing trailing
// values are treated as empty; extra values without a header are dropped.
func NewRow(headers, values []string) Row {
	row := make(Row, len(headers))
	for i, h := range headers {
		v := ""
		if i < len(values) {
			v = values[i]
		}
		row[h] = append(row[h], v)
	}
	return row
}

// Record is a cleaned row holding the ten canonical fields. Nil means null.
type Record struct {
	Region      *string
	Type        *string
	Subtype     *string
	Description *string
	Address     *string
	Latitude    *float64
	Longitude   *float64
	Manager     *string
	Size        *string
	Date        *string

	// Geocoded is set when the coordinates came from the geocoder.
	Geocoded bool
}

// Document returns the stored form: exactly the ten canonical fields, nil for null.
func (r Record) Document() map[string]any {
	doc := make(map[string]any, len(CanonicalFields))
	doc[FieldRegion] = strOrNil(r.Region)
	doc[FieldType] = strOrNil(r.Type)
	doc[FieldSubtype] = strOrNil(r.Subtype)
	doc[FieldDescription] = strOrNil(r.Description)
	doc[FieldAddress] = strOrNil(r.Address)
	doc[FieldLatitude] = floatOrNil(r.Latitude)
	doc[FieldLongitude] = floatOrNil(r.Longitude)
	doc[FieldManager] = strOrNil(r.Manager)
	doc[FieldSize] = strOrNil(r.Size)
	doc[FieldDate] = strOrNil(r.Date)
	return doc
}

// Key returns the document key: the description when present, otherwise a
// positional key built from the 0-based row index.
func (r Record) Key(index int) string {
	if r.Description != nil && *r.Description != "" {
		return *r.Description
	}
	return "doc_" + strconv.Itoa(index)
}

// Cleaner turns normalized rows into records. The geocoder is optional.
type Cleaner struct {
	geocoder geocode.Client
}

// NewCleaner creates a Cleaner. A nil geocoder disables the coordinate fallback.
func NewCleaner(g geocode.Client) *Cleaner {
	return &Cleaner{geocoder: g}
}

// Clean normalizes a row. It never fails: values that cannot be parsed become null.
func (c *Cleaner) Clean(ctx context.Context, row Row) Record {
	rec := Record{
		Region:      collapse(row[FieldRegion]),
		Type:        collapse(row[FieldType]),
		Subtype:     collapse(row[FieldSubtype]),
		Description: collapse(row[FieldDescription]),
		Address:     collapse(row[FieldAddress]),
		Manager:     collapse(row[FieldManager]),
		Size:        collapse(row[FieldSize]),
		Date:        NormalizeDate(lastNonEmpty(row[FieldDate])),
		Latitude:    ParseCoordinate(lastNonEmpty(row[FieldLatitude])),
		Longitude:   ParseCoordinate(lastNonEmpty(row[FieldLongitude])),
	}

	if (rec.Latitude == nil || rec.Longitude == nil) && rec.Address != nil && c.geocoder != nil {
		c.fillCoordinates(ctx, &rec)
	}
	return rec
}

func (c *Cleaner) fillCoordinates(ctx context.Context, rec *Record) {
	res, err := c.geocoder.Geocode(ctx, *rec.Address)
	if err != nil {
		zap.L().Warn("ingest: geocode failed", zap.String("address", *rec.Address), zap.Error(err))
		return
	}
	if res == nil || !res.Matched {
		zap.L().Warn("ingest: geocode no match", zap.String("address", *rec.Address))
		return
	}
	lat, lng := res.Latitude, res.Longitude
	rec.Latitude = &lat
	rec.Longitude = &lng
	rec.Geocoded = true
}

// dateLayouts are tried in order; the first that parses wins.
var dateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"2006.01.02",
	"2006. 1. 2",
	"2006.1.2",
	"2006-1-2",
	"2006/1/2",
	"20060102",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	time.RFC3339,
	"2006/01/02 15:04:05",
	"2006-1-2 15:04",
	"2006/1/2 15:04",
	"2006.1.2 15:04",
	"2006년 1월 2일",
	"2006년 01월 02일",
	"2006년 1월",
	"2006-01",
	"2006/01",
	"2006.01",
	"200601",
	"01/02/2006",
	"2006",
}

// NormalizeDate parses a date in any of the common layouts and returns it as
// YYYY-MM-DD. A trailing period is ignored and a time of day is dropped.
// Month-only values resolve to the first of the month. Anything unparseable
// yields nil.
func NormalizeDate(s string) *string {
	s = strings.TrimSuffix(strings.Join(strings.Fields(s), " "), ".")
	if s == "" {
		return nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			out := t.Format("2006-01-02")
			return &out
		}
	}
	return nil
}

// ParseCoordinate converts a numeric string to a float. Empty, non-numeric
// and non-finite values yield nil.
func ParseCoordinate(s string) *float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

// collapse joins the distinct non-empty values with ", ".
func collapse(values []string) *string {
	var out []string
	seen := make(map[string]bool, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	if len(out) == 0 {
		return nil
	}
	s := strings.Join(out, ", ")
	return &s
}

func lastNonEmpty(values []string) string {
	for i := len(values) - 1; i >= 0; i-- {
		if v := strings.TrimSpace(values[i]); v != "" {
			return v
		}
	}
	return ""
}

func strOrNil(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func floatOrNil(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}
