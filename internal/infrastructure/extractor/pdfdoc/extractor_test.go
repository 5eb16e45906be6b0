package pdfdoc

import (
	"testing"

	"github.com/kirillkom/grounded-qa/internal/core/domain"
)

func TestDecodeRejectsNonPDF(t *testing.T) {
	_, err := Decode([]byte("definitely not a pdf"))
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}
