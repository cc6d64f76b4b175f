// Package textutil repairs text encodings and fits text to terminal columns.
package textutil

import (
	"strings"
	"unicode/utf8"

	"github.com/gogs/chardet"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/encoding/korean"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/traditionalchinese"
)

// fallbackEncodings are tried in order when detection is inconclusive.
// Spreadsheet round-trips of exports on Windows produce cp1252 most often.
var fallbackEncodings = []encoding.Encoding{
	charmap.Windows1252,
	charmap.ISO8859_1,
	charmap.ISO8859_15,
	japanese.ShiftJIS,
	korean.EUCKR,
	simplifiedchinese.GBK,
	traditionalchinese.Big5,
}

// EnsureUTF8 returns s unchanged when it is valid UTF-8. Otherwise it
// detects the charset and converts, and as a last resort replaces invalid
// bytes with U+FFFD.
func EnsureUTF8(s string) string {
	if utf8.ValidString(s) {
		return s
	}
	data := []byte(s)

	// Detection is unreliable on short cells, so demand less confidence
	// there and let the fallbacks decide.
	minConfidence := 30
	if len(data) > 50 {
		minConfidence = 50
	}
	if res, err := chardet.NewTextDetector().DetectBest(data); err == nil && res.Confidence >= minConfidence {
		if enc := EncodingByName(res.Charset); enc != nil {
			if out, ok := decode(enc, data); ok {
				return out
			}
		}
	}
	for _, enc := range fallbackEncodings {
		if out, ok := decode(enc, data); ok {
			return out
		}
	}
	return SanitizeUTF8(s)
}

func decode(enc encoding.Encoding, data []byte) (string, bool) {
	out, err := enc.NewDecoder().Bytes(data)
	if err != nil || !utf8.Valid(out) {
		return "", false
	}
	return string(out), true
}

// SanitizeUTF8 replaces each invalid byte with U+FFFD.
func SanitizeUTF8(s string) string {
	return strings.ToValidUTF8(s, "�")
}

// EncodingByName maps a charset name as reported by chardet to an encoding,
// or nil when unsupported.
func EncodingByName(name string) encoding.Encoding {
	switch strings.ToLower(name) {
	case "windows-1252", "cp1252":
		return charmap.Windows1252
	case "iso-8859-1", "latin1":
		return charmap.ISO8859_1
	case "iso-8859-15", "latin9":
		return charmap.ISO8859_15
	case "iso-8859-2", "latin2":
		return charmap.ISO8859_2
	case "shift_jis", "sjis":
		return japanese.ShiftJIS
	case "euc-jp":
		return japanese.EUCJP
	case "iso-2022-jp":
		return japanese.ISO2022JP
	case "euc-kr":
		return korean.EUCKR
	case "gb2312", "gbk":
		return simplifiedchinese.GBK
	case "gb18030":
		return simplifiedchinese.GB18030
	case "big5":
		return traditionalchinese.Big5
	case "koi8-r":
		return charmap.KOI8R
	}
	return nil
}
