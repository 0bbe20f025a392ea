package dataprocessing

import (
	"bytes"
	"unicode"

	"nebulaviz/pkg/contracts/domain"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Detect classifies plaintext by its first non-whitespace byte.
// It is a heuristic; pathological input is left for the parser to reject.
func Detect(text []byte) domain.Format {
	trimmed := trimLeading(text)
	if len(trimmed) == 0 {
		return domain.FormatDelimited
	}
	switch trimmed[0] {
	case '{', '[':
		return domain.FormatStructured
	default:
		return domain.FormatDelimited
	}
}

// trimLeading drops a UTF-8 BOM and leading whitespace without copying
func trimLeading(text []byte) []byte {
	text = bytes.TrimPrefix(text, utf8BOM)
	return bytes.TrimLeftFunc(text, unicode.IsSpace)
}
