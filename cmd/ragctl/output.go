package main

import (
	"fmt"
	"io"

	"github.com/fatih/color"

	"github.com/kirillkom/grounded-qa/internal/core/domain"
)

var (
	headerColor  = color.New(color.FgCyan, color.Bold)
	refusalColor = color.New(color.FgYellow)
	faintColor   = color.New(color.Faint)
	errorColor   = color.New(color.FgRed, color.Bold)
)

func disableColor() {
	color.NoColor = true
}

func confidenceColor(c domain.Confidence) *color.Color {
	switch c {
	case domain.ConfidenceHigh:
		return color.New(color.FgGreen, color.Bold)
	case domain.ConfidenceMedium:
		return color.New(color.FgGreen)
	case domain.ConfidenceLow:
		return color.New(color.FgYellow)
	default:
		return color.New(color.FgRed)
	}
}

func printResult(w io.Writer, res *domain.QueryResult) {
	if res.IsRefusal {
		refusalColor.Fprintln(w, res.Answer)
	} else {
		fmt.Fprintln(w, res.Answer)
	}
	fmt.Fprintln(w)

	fmt.Fprint(w, "confidence: ")
	confidenceColor(res.Confidence).Fprintln(w, res.Confidence.String())
	if res.Fallback {
		faintColor.Fprintln(w, "answer taken from the best matching passage")
	}

	if len(res.Citations) > 0 {
		headerColor.Fprintln(w, "sources:")
		for i, c := range res.Citations {
			fmt.Fprintf(w, "  [%d] %s ", i+1, c.Source)
			faintColor.Fprintf(w, "(%.2f)\n", c.RelevanceScore)
		}
	}
	faintColor.Fprintf(w, "%d ms, %d attempt(s)\n", res.ProcessingTimeMs, res.Attempts)
}

func printDocument(w io.Writer, doc *domain.Document) {
	headerColor.Fprintf(w, "%s ", doc.ID)
	fmt.Fprintf(w, "%s [%s]", doc.Filename, doc.Status)
	if doc.ChunkCount > 0 {
		fmt.Fprintf(w, " %d chunks", doc.ChunkCount)
	}
	fmt.Fprintln(w)
	if doc.Error != "" {
		errorColor.Fprintln(w, doc.Error)
	}
}
