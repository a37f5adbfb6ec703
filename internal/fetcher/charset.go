package fetcher

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"github.com/saintfish/chardet"
	"go.uber.org/zap"
	"golang.org/x/text/encoding/htmlindex"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// DecodeText converts raw file bytes to a UTF-8 string. UTF-8 is tried first,
// then each fallback encoding in order (names as understood by the WHATWG
// encoding index, e.g. "euc-kr"). It returns the name of the encoding that
// succeeded.
func DecodeText(data []byte, fallbacks []string) (string, string, error) {
	if utf8.Valid(data) {
		return string(bytes.TrimPrefix(data, utf8BOM)), "utf-8", nil
	}

	for _, name := range fallbacks {
		enc, err := htmlindex.Get(name)
		if err != nil {
			zap.L().Warn("fetcher: unknown fallback encoding", zap.String("encoding", name), zap.Error(err))
			continue
		}
		out, err := enc.NewDecoder().Bytes(data)
		if err != nil {
			continue
		}
		// x/text decoders substitute U+FFFD for byte sequences they cannot map.
		if bytes.ContainsRune(out, utf8.RuneError) {
			continue
		}
		return string(out), strings.ToLower(name), nil
	}

	tried := append([]string{"utf-8"}, fallbacks...)
	return "", "", eris.Errorf("fetcher: cannot decode text as %s (%s)",
		strings.Join(tried, ", "), DetectCharset(data))
}

// DetectCharset describes the most likely charset of data for diagnostics.
func DetectCharset(data []byte) string {
	res, err := chardet.NewTextDetector().DetectBest(data)
	if err != nil || res == nil {
		return "charset unknown"
	}
	return fmt.Sprintf("detected %s, confidence %d", res.Charset, res.Confidence)
}
