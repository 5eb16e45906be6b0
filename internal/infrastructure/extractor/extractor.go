package extractor

import (
	"context"
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"strings"

	"github.com/kirillkom/grounded-qa/internal/core/domain"
	"github.com/kirillkom/grounded-qa/internal/core/ports"
	"github.com/kirillkom/grounded-qa/internal/infrastructure/extractor/pdfdoc"
	"github.com/kirillkom/grounded-qa/internal/infrastructure/extractor/plaintext"
	"github.com/kirillkom/grounded-qa/internal/infrastructure/extractor/xlsx"
)

type Format string

const (
	FormatText Format = "text"
	FormatPDF  Format = "pdf"
	FormatXLSX Format = "xlsx"
)

// Decoder turns raw file bytes into plain text.
type Decoder func(raw []byte) (string, error)

const defaultMaxBytes = 32 << 20

// Extractor reads a stored document and dispatches on its format.
type Extractor struct {
	storage  ports.ObjectStorage
	decoders map[Format]Decoder
	maxBytes int64
}

func New(storage ports.ObjectStorage) *Extractor {
	return &Extractor{
		storage: storage,
		decoders: map[Format]Decoder{
			FormatText: plaintext.Decode,
			FormatPDF:  pdfdoc.Decode,
			FormatXLSX: xlsx.Decode,
		},
		maxBytes: defaultMaxBytes,
	}
}

// WithDecoder overrides the decoder for one format.
func (e *Extractor) WithDecoder(f Format, d Decoder) *Extractor {
	e.decoders[f] = d
	return e
}

func (e *Extractor) Extract(ctx context.Context, doc *domain.Document) (string, error) {
	format, ok := DetectFormat(doc.Filename, doc.MimeType)
	if !ok {
		return "", domain.WrapError(domain.ErrInvalidInput, "extract text",
			fmt.Errorf("unsupported format: filename=%s mime=%s", doc.Filename, doc.MimeType))
	}
	decode := e.decoders[format]

	reader, err := e.storage.Open(ctx, doc.StoragePath)
	if err != nil {
		return "", fmt.Errorf("open source document: %w", err)
	}
	defer reader.Close()

	raw, err := io.ReadAll(io.LimitReader(reader, e.maxBytes+1))
	if err != nil {
		return "", fmt.Errorf("read source document: %w", err)
	}
	if int64(len(raw)) > e.maxBytes {
		return "", domain.WrapError(domain.ErrInvalidInput, "extract text", fmt.Errorf("document exceeds %d bytes", e.maxBytes))
	}

	text, err := decode(raw)
	if err != nil {
		return "", fmt.Errorf("decode %s: %w", format, err)
	}
	return text, nil
}

// DetectFormat prefers the declared MIME type and falls back to the extension.
func DetectFormat(filename, mimeType string) (Format, bool) {
	if mt, _, err := mime.ParseMediaType(mimeType); err == nil {
		switch {
		case mt == "application/pdf":
			return FormatPDF, true
		case mt == "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":
			return FormatXLSX, true
		case strings.HasPrefix(mt, "text/"), mt == "application/json":
			return FormatText, true
		}
	}

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return FormatPDF, true
	case ".xlsx":
		return FormatXLSX, true
	case ".txt", ".md", ".markdown", ".csv", ".json", ".log":
		return FormatText, true
	}
	return "", false
}
