package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/korean"

	"github.com/nugulmap/markers/internal/store"
	"github.com/nugulmap/markers/pkg/geocode"
)

const yongsanCSV = "자치구명,시설 구분,설치 위치,설치도로명주소,위도,경도,설치 주체,규모,설치일\n" +
	"용산구,개방형,용산역 광장,서울 용산구 한강대로23길 55,37.5298,126.9648,용산구청,10,2021/03/15\n" +
	"용산구,폐쇄형,,서울 용산구 이태원로 177,,,용산구청,,not-a-date\n"

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "ingest.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func writeFile(t *testing.T, dir, name string, data []byte) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), data, 0o644))
}

func TestIngestFile_WritesCanonicalDocuments(t *testing.T) {
	st := newTestStore(t)
	dir := t.TempDir()
	writeFile(t, dir, "yongsan.csv", []byte(yongsanCSV))

	d := NewDriver(st, NewCleaner(nil), []string{"euc-kr"})
	sum, err := d.IngestFile(context.Background(), filepath.Join(dir, "yongsan.csv"))
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Rows)
	assert.Equal(t, 2, sum.Created)

	doc, err := st.Get(context.Background(), "용산역 광장")
	require.NoError(t, err)
	assert.Len(t, doc, 10)
	assert.Equal(t, "용산구", doc["region"])
	assert.Equal(t, "개방형", doc["type"])
	assert.Nil(t, doc["subtype"])
	assert.Equal(t, "서울 용산구 한강대로23길 55", doc["address"])
	assert.InDelta(t, 37.5298, doc["latitude"], 1e-9)
	assert.Equal(t, "용산구청", doc["manager"])
	assert.Equal(t, "10", doc["size"])
	assert.Equal(t, "2021-03-15", doc["date"])

	// Second data row has no description: positional key from its 0-based index.
	doc, err = st.Get(context.Background(), "doc_1")
	require.NoError(t, err)
	assert.Nil(t, doc["latitude"])
	assert.Nil(t, doc["date"])
	assert.Nil(t, doc["size"])
}

func TestIngestDir_Idempotent(t *testing.T) {
	st := newTestStore(t)
	dir := t.TempDir()
	writeFile(t, dir, "yongsan.csv", []byte(yongsanCSV))

	d := NewDriver(st, nil, []string{"euc-kr"})

	first, err := d.IngestDir(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, 2, first.Created)

	n1, err := st.Count(context.Background())
	require.NoError(t, err)

	second, err := d.IngestDir(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Created)
	assert.Equal(t, 2, second.Skipped)

	n2, err := st.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, n1, n2)
}

func TestIngestDir_SkipsExistingWithoutUpdating(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, st.Put(ctx, "용산역 광장", store.Document{"name": "manual"}))

	dir := t.TempDir()
	writeFile(t, dir, "yongsan.csv", []byte(yongsanCSV))

	sum, err := NewDriver(st, nil, nil).IngestDir(ctx, dir)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Skipped)
	assert.Equal(t, 1, sum.Created)

	doc, err := st.Get(ctx, "용산역 광장")
	require.NoError(t, err)
	assert.Equal(t, store.Document{"name": "manual"}, doc)
}

func TestIngestDir_EUCKRBareQuotesAndFailures(t *testing.T) {
	st := newTestStore(t)
	dir := t.TempDir()

	euckr, err := korean.EUCKR.NewEncoder().Bytes([]byte("시도명,흡연구역명,위도,경도\n서울특별시,시청 흡연부스,37.5663,126.9779\n"))
	require.NoError(t, err)
	writeFile(t, dir, "a_seoul.csv", euckr)
	writeFile(t, dir, "b_bare_quote.csv", []byte("구분,시설명\n개방형,흡연 \"부스\"\n"))
	writeFile(t, dir, "c_binary.csv", []byte{0x61, 0xFF, 0x80, 0xFF, 0x62})
	writeFile(t, dir, "d_empty.csv", nil)
	writeFile(t, dir, "notes.txt", []byte("설치 위치\n무시\n"))
	writeFile(t, dir, "upper.CSV", []byte("설치 위치\n무시\n"))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested.csv"), 0o755))

	sum, err := NewDriver(st, nil, []string{"euc-kr"}).IngestDir(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, 4, sum.Files)
	assert.Equal(t, 1, sum.FilesFailed)
	assert.Equal(t, 2, sum.Created)

	doc, err := st.Get(context.Background(), "시청 흡연부스")
	require.NoError(t, err)
	assert.Equal(t, "서울특별시", doc["region"])

	doc, err = st.Get(context.Background(), `흡연 "부스"`)
	require.NoError(t, err)
	assert.Equal(t, "개방형", doc["type"])

	n, err := st.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestReadRecords(t *testing.T) {
	header, rows, err := readRecords(context.Background(), "구분 , 시설명\n개방형, 역 앞 \"A\"동 \n")
	require.NoError(t, err)
	assert.Equal(t, []string{"구분", "시설명"}, header)
	assert.Equal(t, [][]string{{"개방형", `역 앞 "A"동`}}, rows)

	header, rows, err = readRecords(context.Background(), "설치 위치\n")
	require.NoError(t, err)
	assert.Equal(t, []string{"설치 위치"}, header)
	assert.Empty(t, rows)

	header, rows, err = readRecords(context.Background(), "")
	require.NoError(t, err)
	assert.Nil(t, header)
	assert.Empty(t, rows)
}

func TestIngestDir_MissingDir(t *testing.T) {
	_, err := NewDriver(newTestStore(t), nil, nil).IngestDir(context.Background(), filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ingest: read dir")
}

func TestIngestDir_Cancelled(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "yongsan.csv", []byte(yongsanCSV))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewDriver(newTestStore(t), nil, nil).IngestDir(ctx, dir)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestIngestFile_GeocodesMissingCoordinates(t *testing.T) {
	st := newTestStore(t)
	dir := t.TempDir()
	writeFile(t, dir, "yongsan.csv", []byte(yongsanCSV))

	g := new(mockGeocoder)
	g.On("Geocode", mock.Anything, "서울 용산구 이태원로 177").
		Return(&geocode.Result{Latitude: 37.5345, Longitude: 126.9943, Matched: true}, nil).Once()

	sum, err := NewDriver(st, NewCleaner(g), nil).IngestFile(context.Background(), filepath.Join(dir, "yongsan.csv"))
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Geocoded)
	g.AssertExpectations(t)

	doc, err := st.Get(context.Background(), "doc_1")
	require.NoError(t, err)
	assert.InDelta(t, 37.5345, doc["latitude"], 1e-9)
	assert.InDelta(t, 126.9943, doc["longitude"], 1e-9)
}

type failingWriter struct{}

func (failingWriter) PutIfAbsent(context.Context, string, store.Document) (bool, error) {
	return false, errors.New("connection refused")
}

func TestIngestFile_WriteFailureCountsRow(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "yongsan.csv", []byte(yongsanCSV))

	sum, err := NewDriver(failingWriter{}, nil, nil).IngestFile(context.Background(), filepath.Join(dir, "yongsan.csv"))
	require.NoError(t, err)
	assert.Equal(t, 2, sum.RowsFailed)
	assert.Zero(t, sum.Created)
}

func TestSummary_Add(t *testing.T) {
	s := Summary{Files: 1, Created: 2}
	s.Add(Summary{Files: 1, FilesFailed: 1, Rows: 3, Skipped: 1, RowsFailed: 1, Geocoded: 2})
	assert.Equal(t, Summary{Files: 2, FilesFailed: 1, Rows: 3, Created: 2, Skipped: 1, RowsFailed: 1, Geocoded: 2}, s)
}
