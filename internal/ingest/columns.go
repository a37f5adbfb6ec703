// Package ingest loads public-data CSV files into the markers collection.
package ingest

import "strings"

// Canonical field names written for every ingested document.
const (
	FieldRegion      = "region"
	FieldType        = "type"
	FieldSubtype     = "subtype"
	FieldDescription = "description"
	FieldAddress     = "address"
	FieldLatitude    = "latitude"
	FieldLongitude   = "longitude"
	FieldManager     = "manager"
	FieldSize        = "size"
	FieldDate        = "date"
)

// CanonicalFields lists the ten stored fields in document order.
var CanonicalFields = []string{
	FieldRegion, FieldType, FieldSubtype, FieldDescription, FieldAddress,
	FieldLatitude, FieldLongitude, FieldManager, FieldSize, FieldDate,
}

// sourceHeaders lists, per canonical field, the header spellings found in
// municipal datasets. Several spellings map to the same field; see Row for
// how collisions are resolved.
var sourceHeaders = map[string][]string{
	FieldRegion:      {"자치구명", "시도명"},
	FieldType:        {"시설 구분", "구분"},
	FieldSubtype:     {"시설형태", "흡연구역범위상세", "실외     실내", "흡연실 형태"},
	FieldDescription: {"설치 위치", "서울특별시 용산구 설치 위치", "흡연구역명", "시설명", "건물명"},
	FieldAddress:     {"설치도로명주소", "소재지도로명주소", "주소", "영업소소재지(도로 명)", "도로명주소"},
	FieldLatitude:    {"위도"},
	FieldLongitude:   {"경도"},
	FieldSize:        {"규모", "규모_제곱미터", "규모(제곱미터)"},
	FieldDate:        {"설치일", "설치연월", "데이터기준일자"},
	FieldManager:     {"설치 주체", "관리기관명", "관리기관", "운영관리", "관리여부"},
}

// columnMap is sourceHeaders inverted: source header to canonical field.
var columnMap = func() map[string]string {
	m := make(map[string]string)
	for field, headers := range sourceHeaders {
		for _, h := range headers {
			m[h] = field
		}
	}
	return m
}()

// CanonicalField returns the canonical field for a source header.
func CanonicalField(header string) (string, bool) {
	field, ok := columnMap[cleanHeader(header)]
	return field, ok
}

// NormalizeHeaders renames mapped headers to their canonical field and passes
// every other header through unchanged (after trimming). Canonical names are
// never keys of the table, so applying it twice yields the same result.
func NormalizeHeaders(headers []string) []string {
	out := make([]string, len(headers))
	for i, h := range headers {
		h = cleanHeader(h)
		if field, ok := columnMap[h]; ok {
			out[i] = field
			continue
		}
		out[i] = h
	}
	return out
}

func cleanHeader(h string) string {
	return strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
}
