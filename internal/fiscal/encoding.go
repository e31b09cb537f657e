package fiscal

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/saintfish/chardet"
	"golang.org/x/text/encoding/charmap"
)

// Encoding is one of the two text encodings accepted for XML payloads.
type Encoding string

const (
	EncodingUTF8   Encoding = "utf-8"
	EncodingLatin1 Encoding = "iso-8859-1"
)

// headerScanLen is how many leading bytes are inspected for an XML
// declaration.
const headerScanLen = 100

var declEncodingRe = regexp.MustCompile(`encoding\s*=\s*["']([a-z0-9._-]+)["']`)

// Detector decides the encoding of a raw XML payload.
type Detector struct {
	// guess returns a charset name for the whole buffer, or "" if unsure.
	guess func([]byte) string
}

// NewDetector returns a detector backed by a statistical charset guesser.
func NewDetector() *Detector {
	td := chardet.NewTextDetector()
	return &Detector{
		guess: func(b []byte) string {
			if len(b) == 0 {
				return ""
			}
			res, err := td.DetectBest(b)
			if err != nil || res == nil {
				return ""
			}
			return res.Charset
		},
	}
}

// Detect returns the declared encoding when the XML header names a
// supported one, otherwise the guesser's answer mapped onto the supported
// set, defaulting to UTF-8. It never fails.
func (d *Detector) Detect(raw []byte) Encoding {
	if enc, ok := declaredEncoding(raw); ok {
		return enc
	}
	if d.guess == nil {
		return EncodingUTF8
	}
	switch normalizeCharset(d.guess(raw)) {
	case EncodingLatin1:
		return EncodingLatin1
	default:
		return EncodingUTF8
	}
}

// declaredEncoding reads the header as Latin-1 so any byte sequence is
// representable, then looks for encoding="...".
func declaredEncoding(raw []byte) (Encoding, bool) {
	n := len(raw)
	if n > headerScanLen {
		n = headerScanLen
	}
	header, err := charmap.ISO8859_1.NewDecoder().Bytes(raw[:n])
	if err != nil {
		return "", false
	}

	m := declEncodingRe.FindSubmatch([]byte(strings.ToLower(string(header))))
	if m == nil {
		return "", false
	}
	switch Encoding(m[1]) {
	case EncodingUTF8:
		return EncodingUTF8, true
	case EncodingLatin1:
		return EncodingLatin1, true
	}
	return "", false
}

func normalizeCharset(name string) Encoding {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "utf-8", "utf8":
		return EncodingUTF8
	case "iso-8859-1", "latin-1", "latin1":
		return EncodingLatin1
	}
	return ""
}

// Decode converts raw bytes to a string under enc. A leading UTF-8 byte
// order mark is dropped.
func Decode(raw []byte, enc Encoding) (string, error) {
	switch enc {
	case EncodingLatin1:
		out, err := charmap.ISO8859_1.NewDecoder().Bytes(raw)
		if err != nil {
			return "", &DecodeError{Encoding: enc}
		}
		return string(out), nil
	default:
		if off := invalidUTF8Offset(raw); off >= 0 {
			return "", &DecodeError{Encoding: EncodingUTF8, Offset: off}
		}
		return strings.TrimPrefix(string(raw), "\ufeff"), nil
	}
}

func invalidUTF8Offset(b []byte) int {
	if utf8.Valid(b) {
		return -1
	}
	for i := 0; i < len(b); {
		r, size := utf8.DecodeRune(b[i:])
		if r == utf8.RuneError && size == 1 {
			return i
		}
		i += size
	}
	return -1
}
