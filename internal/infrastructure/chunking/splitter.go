package chunking

import (
	"regexp"
	"strings"

	"github.com/kirillkom/grounded-qa/internal/core/domain"
)

var headingLine = regexp.MustCompile(`^(#{1,6})\s+(.+?)\s*#*\s*$`)

// Splitter packs paragraphs into chunks of at most ChunkSize runes and never
// lets a chunk cross a markdown heading. Each chunk carries the heading
// breadcrumb it was found under as its section.
type Splitter struct {
	ChunkSize int
	Overlap   int
}

func NewSplitter(chunkSize, overlap int) *Splitter {
	if chunkSize <= 0 {
		chunkSize = 900
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= chunkSize {
		overlap = chunkSize / 4
	}
	return &Splitter{
		ChunkSize: chunkSize,
		Overlap:   overlap,
	}
}

type section struct {
	path       string
	paragraphs []string
}

func (s *Splitter) Split(text string) []domain.ChunkDraft {
	var out []domain.ChunkDraft
	for _, sec := range splitSections(text) {
		for _, body := range s.pack(sec.paragraphs) {
			out = append(out, domain.ChunkDraft{Text: body, Section: sec.path})
		}
	}
	return out
}

// splitSections walks the lines once, tracking the heading hierarchy.
func splitSections(text string) []section {
	text = strings.ReplaceAll(text, "\r\n", "\n")

	var (
		crumbs  []string
		levels  []int
		out     []section
		current = section{}
		para    strings.Builder
	)
	flushPara := func() {
		if p := strings.TrimSpace(para.String()); p != "" {
			current.paragraphs = append(current.paragraphs, p)
		}
		para.Reset()
	}
	flushSection := func() {
		flushPara()
		if len(current.paragraphs) > 0 {
			out = append(out, current)
		}
	}

	for _, line := range strings.Split(text, "\n") {
		if m := headingLine.FindStringSubmatch(strings.TrimSpace(line)); m != nil {
			flushSection()
			level := len(m[1])
			for len(levels) > 0 && levels[len(levels)-1] >= level {
				levels = levels[:len(levels)-1]
				crumbs = crumbs[:len(crumbs)-1]
			}
			levels = append(levels, level)
			crumbs = append(crumbs, m[2])
			current = section{path: strings.Join(crumbs, " > ")}
			continue
		}
		if strings.TrimSpace(line) == "" {
			flushPara()
			continue
		}
		if para.Len() > 0 {
			para.WriteByte('\n')
		}
		para.WriteString(line)
	}
	flushSection()
	return out
}

// pack joins paragraphs greedily; oversized paragraphs fall back to a
// rune window with overlap.
func (s *Splitter) pack(paragraphs []string) []string {
	var (
		out  []string
		buf  strings.Builder
		size int
	)
	flush := func() {
		if t := strings.TrimSpace(buf.String()); t != "" {
			out = append(out, t)
		}
		buf.Reset()
		size = 0
	}

	for _, p := range paragraphs {
		n := len([]rune(p))
		if n > s.ChunkSize {
			flush()
			out = append(out, s.window(p)...)
			continue
		}
		if size > 0 && size+2+n > s.ChunkSize {
			flush()
		}
		if size > 0 {
			buf.WriteString("\n\n")
			size += 2
		}
		buf.WriteString(p)
		size += n
	}
	flush()
	return out
}

func (s *Splitter) window(text string) []string {
	runes := []rune(text)
	step := s.ChunkSize - s.Overlap
	if step <= 0 {
		step = s.ChunkSize
	}

	out := make([]string, 0, len(runes)/step+1)
	for start := 0; start < len(runes); start += step {
		end := min(start+s.ChunkSize, len(runes))
		chunk := strings.TrimSpace(string(runes[start:end]))
		if chunk != "" {
			out = append(out, chunk)
		}
		if end == len(runes) {
			break
		}
	}
	return out
}
