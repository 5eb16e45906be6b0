package chunking

import (
	"strings"
	"testing"
)

func TestSplitTracksHeadingBreadcrumbs(t *testing.T) {
	text := strings.Join([]string{
		"Intro paragraph before any heading.",
		"",
		"# Benefits",
		"Overview of benefits.",
		"",
		"## Claims",
		"Claims must be filed within 90 days.",
		"",
		"## Appeals",
		"Appeals are reviewed within 30 days.",
		"",
		"# Pharmacy",
		"Generics are covered.",
	}, "\n")

	drafts := NewSplitter(900, 0).Split(text)
	want := []struct{ section, text string }{
		{"", "Intro paragraph before any heading."},
		{"Benefits", "Overview of benefits."},
		{"Benefits > Claims", "Claims must be filed within 90 days."},
		{"Benefits > Appeals", "Appeals are reviewed within 30 days."},
		{"Pharmacy", "Generics are covered."},
	}
	if len(drafts) != len(want) {
		t.Fatalf("expected %d drafts, got %d: %+v", len(want), len(drafts), drafts)
	}
	for i, w := range want {
		if drafts[i].Section != w.section || drafts[i].Text != w.text {
			t.Errorf("draft %d = %+v, want section %q text %q", i, drafts[i], w.section, w.text)
		}
	}
}

func TestSplitPacksParagraphsUpToChunkSize(t *testing.T) {
	text := "aaaa bbbb\n\ncccc dddd\n\neeee ffff"
	drafts := NewSplitter(20, 0).Split(text)
	if len(drafts) != 2 {
		t.Fatalf("expected 2 drafts, got %+v", drafts)
	}
	if drafts[0].Text != "aaaa bbbb\n\ncccc dddd" || drafts[1].Text != "eeee ffff" {
		t.Fatalf("unexpected packing %+v", drafts)
	}
}

func TestSplitWindowsOversizedParagraph(t *testing.T) {
	text := strings.Repeat("x", 25)
	drafts := NewSplitter(10, 2).Split(text)
	if len(drafts) != 3 {
		t.Fatalf("expected 3 windows, got %d", len(drafts))
	}
	for _, d := range drafts {
		if n := len([]rune(d.Text)); n > 10 {
			t.Fatalf("window exceeds chunk size: %d", n)
		}
	}
}

func TestSplitEmptyText(t *testing.T) {
	if drafts := NewSplitter(100, 10).Split("  \n\n "); len(drafts) != 0 {
		t.Fatalf("expected no drafts, got %+v", drafts)
	}
}

func TestNewSplitterClampsOverlap(t *testing.T) {
	s := NewSplitter(100, 200)
	if s.Overlap != 25 {
		t.Fatalf("expected overlap 25, got %d", s.Overlap)
	}
}
