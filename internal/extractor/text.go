package extractor

import (
	"errors"
	"fmt"
	"os"
	"unicode/utf8"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

var errInvalidEncoding = errors.New("unsupported encoding: not valid UTF-8 or BOM-marked UTF-16")

// readText passes plain text through. A UTF-16 byte order mark selects
// UTF-16 decoding; anything else must already be UTF-8.
func readText(path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read text: %w", err)
	}
	if !hasUTF16BOM(raw) && !utf8.Valid(raw) {
		return "", errInvalidEncoding
	}

	// BOMOverride strips a UTF-8 BOM and switches to UTF-16 on a UTF-16 BOM.
	decoded, _, err := transform.Bytes(unicode.BOMOverride(unicode.UTF8.NewDecoder()), raw)
	if err != nil {
		return "", fmt.Errorf("decode text: %w", err)
	}
	return string(decoded), nil
}

func hasUTF16BOM(b []byte) bool {
	return len(b) >= 2 && ((b[0] == 0xFF && b[1] == 0xFE) || (b[0] == 0xFE && b[1] == 0xFF))
}
