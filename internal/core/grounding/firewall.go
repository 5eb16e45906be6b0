// Package grounding decides whether a final answer is supported by the
// evidence it was generated from, using key-term overlap.
package grounding

import (
	"strings"
	"unicode"

	"github.com/kirillkom/grounded-qa/internal/core/domain"
	"github.com/kirillkom/grounded-qa/internal/core/textutil"
)

const (
	bestOverlapWeight  = 0.7
	supportRatioWeight = 0.3

	maxUnsupportedSentences  = 5
	minDiagnosticSentenceLen = 20

	ReasonNoTerms    = "no meaningful terms"
	ReasonNoEvidence = "no evidence chunks for a citation-required answer"
	ReasonNoSupport  = "no evidence chunk supports the answer"
	ReasonLowScore   = "grounding score below threshold"
)

type Config struct {
	Threshold        float64
	SupportThreshold float64
}

func ConfigFromEngine(cfg domain.EngineConfig) Config {
	return Config{Threshold: cfg.GroundingThreshold, SupportThreshold: cfg.SupportThreshold}
}

// Firewall is stateless and safe for concurrent use.
type Firewall struct {
	cfg Config
}

func NewFirewall(cfg Config) *Firewall {
	return &Firewall{cfg: cfg}
}

// Check must be given the final normalized and redacted text.
func (f *Firewall) Check(answer string, evidence []domain.Chunk, requireCitations bool) domain.GroundingVerdict {
	if requireCitations && len(evidence) == 0 {
		return domain.GroundingVerdict{Reason: ReasonNoEvidence}
	}

	answerTerms := textutil.KeyTerms(answer)
	if len(answerTerms) == 0 {
		return domain.GroundingVerdict{Reason: ReasonNoTerms}
	}

	chunkTerms := make([]map[string]struct{}, len(evidence))
	for i, c := range evidence {
		chunkTerms[i] = textutil.KeyTerms(c.Text)
	}

	best := 0.0
	supporting := make([]int, 0, len(evidence))
	for i, terms := range chunkTerms {
		o := overlap(answerTerms, terms)
		if o > best {
			best = o
		}
		if o >= f.cfg.SupportThreshold {
			supporting = append(supporting, i)
		}
	}

	score := bestOverlapWeight * best
	if len(evidence) > 0 {
		score += supportRatioWeight * float64(len(supporting)) / float64(len(evidence))
	}

	verdict := domain.GroundingVerdict{
		GroundingScore:         score,
		SupportingChunkIndices: supporting,
	}
	switch {
	case len(supporting) == 0:
		verdict.Reason = ReasonNoSupport
	case score < f.cfg.Threshold:
		verdict.Reason = ReasonLowScore
	default:
		verdict.IsGrounded = true
		return verdict
	}

	verdict.UnsupportedSentences = f.unsupportedSentences(answer, chunkTerms)
	return verdict
}

func (f *Firewall) unsupportedSentences(answer string, chunkTerms []map[string]struct{}) []string {
	var out []string
	for _, sentence := range SplitSentences(answer) {
		if len(out) == maxUnsupportedSentences {
			break
		}
		if len(sentence) <= minDiagnosticSentenceLen {
			continue
		}
		terms := textutil.KeyTerms(sentence)
		if len(terms) == 0 {
			continue
		}
		supported := false
		for _, ct := range chunkTerms {
			if overlap(terms, ct) >= f.cfg.SupportThreshold {
				supported = true
				break
			}
		}
		if !supported {
			out = append(out, sentence)
		}
	}
	return out
}

// overlap is |a ∩ b| / |a|.
func overlap(a, b map[string]struct{}) float64 {
	if len(a) == 0 {
		return 0
	}
	shared := 0
	for term := range a {
		if _, ok := b[term]; ok {
			shared++
		}
	}
	return float64(shared) / float64(len(a))
}

// SplitSentences breaks text at terminal punctuation followed by whitespace
// and at line breaks.
func SplitSentences(text string) []string {
	var (
		out   []string
		start int
	)
	runes := []rune(text)
	flush := func(end int) {
		s := strings.TrimSpace(string(runes[start:end]))
		if s != "" {
			out = append(out, s)
		}
		start = end
	}
	for i, r := range runes {
		switch {
		case r == '\n':
			flush(i + 1)
		case r == '.' || r == '!' || r == '?':
			if i+1 == len(runes) || unicode.IsSpace(runes[i+1]) {
				flush(i + 1)
			}
		}
	}
	flush(len(runes))
	return out
}
