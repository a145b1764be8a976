package transcript

import (
	"bytes"
	"mime"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/htmlindex"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// DecodeText decodes raw using the charset of contentType, falling back to
// UTF-8 and then Latin-1.
func DecodeText(raw []byte, contentType string) string {
	if label := charsetOf(contentType); label != "" {
		if enc, err := htmlindex.Get(label); err == nil {
			if decoded, err := enc.NewDecoder().Bytes(raw); err == nil {
				return string(bytes.TrimPrefix(decoded, utf8BOM))
			}
		}
	}

	raw = bytes.TrimPrefix(raw, utf8BOM)
	if utf8.Valid(raw) {
		return string(raw)
	}
	decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(raw)
	if err != nil {
		return strings.ToValidUTF8(string(raw), "�")
	}
	return string(decoded)
}

func charsetOf(contentType string) string {
	if contentType == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(params["charset"])
}
