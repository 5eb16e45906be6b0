package plaintext

import (
	"bytes"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/kirillkom/grounded-qa/internal/core/domain"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Decode returns UTF-8 text with a leading byte order mark removed.
func Decode(raw []byte) (string, error) {
	raw = bytes.TrimPrefix(raw, utf8BOM)
	if !utf8.Valid(raw) {
		return "", domain.WrapError(domain.ErrInvalidInput, "decode text", errors.New("content is not valid UTF-8"))
	}
	return strings.TrimSpace(string(raw)), nil
}
