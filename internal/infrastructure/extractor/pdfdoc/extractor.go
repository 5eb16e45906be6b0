package pdfdoc

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/kirillkom/grounded-qa/internal/core/domain"
)

// Decode extracts the text layer page by page. Pages are separated by a
// blank line so the chunker treats them as paragraphs.
func Decode(raw []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return "", domain.WrapError(domain.ErrInvalidInput, "open pdf", err)
	}

	var b strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("read pdf page %d: %w", i, err)
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(text)
	}

	if b.Len() == 0 {
		// Some producers only expose a document-level text stream.
		plain, err := reader.GetPlainText()
		if err != nil {
			return "", fmt.Errorf("read pdf text: %w", err)
		}
		all, err := io.ReadAll(plain)
		if err != nil {
			return "", fmt.Errorf("read pdf text: %w", err)
		}
		return strings.TrimSpace(string(all)), nil
	}
	return b.String(), nil
}
