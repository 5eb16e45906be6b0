package xlsx

import (
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/grounded-qa/internal/core/domain"
)

func TestDecodeRendersSheets(t *testing.T) {
	book := excelize.NewFile()
	defer book.Close()

	_ = book.SetCellValue("Sheet1", "A1", "Plan")
	_ = book.SetCellValue("Sheet1", "B1", "Deductible")
	_ = book.SetCellValue("Sheet1", "A2", "Gold")
	_ = book.SetCellValue("Sheet1", "B2", "500")
	if _, err := book.NewSheet("Empty"); err != nil {
		t.Fatalf("NewSheet() error = %v", err)
	}

	buf, err := book.WriteToBuffer()
	if err != nil {
		t.Fatalf("WriteToBuffer() error = %v", err)
	}

	text, err := Decode(buf.Bytes())
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	want := "# Sheet1\nPlan | Deductible\nGold | 500"
	if text != want {
		t.Fatalf("Decode() = %q, want %q", text, want)
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, err := Decode([]byte("not a workbook"))
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}
