package grounding

import (
	"math"
	"testing"

	"github.com/kirillkom/grounded-qa/internal/core/domain"
)

func newTestFirewall() *Firewall {
	return NewFirewall(ConfigFromEngine(domain.DefaultEngineConfig()))
}

func TestCheckVerbatimChunkIsGrounded(t *testing.T) {
	chunk := domain.Chunk{
		ID:   "c1",
		Text: "Administer 10 IU of oxytocin intramuscularly within one minute of delivery to prevent postpartum haemorrhage.",
	}
	verdict := newTestFirewall().Check(chunk.Text, []domain.Chunk{chunk}, true)

	if !verdict.IsGrounded {
		t.Fatalf("expected grounded verdict, got %+v", verdict)
	}
	if verdict.GroundingScore < 0.3 {
		t.Fatalf("expected score >= 0.3, got %v", verdict.GroundingScore)
	}
	if len(verdict.SupportingChunkIndices) != 1 || verdict.SupportingChunkIndices[0] != 0 {
		t.Fatalf("unexpected supporting indices %v", verdict.SupportingChunkIndices)
	}
}

func TestCheckScoreCombinesBestOverlapAndSupportRatio(t *testing.T) {
	evidence := []domain.Chunk{
		{ID: "a", Text: "copay mri scan forty dollars"},
		{ID: "b", Text: "parking garage hours"},
	}
	verdict := newTestFirewall().Check("MRI scan copay", evidence, true)

	want := 0.7*1.0 + 0.3*0.5
	if math.Abs(verdict.GroundingScore-want) > 1e-9 {
		t.Fatalf("score = %v, want %v", verdict.GroundingScore, want)
	}
	if !verdict.IsGrounded {
		t.Fatalf("expected grounded")
	}
}

func TestCheckUnrelatedAnswerIsNotGrounded(t *testing.T) {
	evidence := []domain.Chunk{{ID: "a", Text: "Claims must be filed within ninety days of service."}}
	answer := "Our cafeteria serves breakfast burritos every Thursday morning. Parking validation happens downstairs."

	verdict := newTestFirewall().Check(answer, evidence, true)
	if verdict.IsGrounded {
		t.Fatalf("expected not grounded, got %+v", verdict)
	}
	if verdict.Reason != ReasonNoSupport {
		t.Fatalf("unexpected reason %q", verdict.Reason)
	}
	if len(verdict.UnsupportedSentences) != 2 {
		t.Fatalf("expected 2 unsupported sentences, got %v", verdict.UnsupportedSentences)
	}
}

func TestCheckCountsShortKeyTerms(t *testing.T) {
	evidence := []domain.Chunk{{ID: "a", Text: "Give 5 mg IV over ten minutes."}}
	verdict := newTestFirewall().Check("Give 40 mg PO.", evidence, true)

	// give, 40, mg, po: two of four terms are supported.
	want := 0.7*0.5 + 0.3*1.0
	if math.Abs(verdict.GroundingScore-want) > 1e-9 {
		t.Fatalf("score = %v, want %v", verdict.GroundingScore, want)
	}
}

func TestCheckNoMeaningfulTerms(t *testing.T) {
	verdict := newTestFirewall().Check("It is what it is.", []domain.Chunk{{ID: "a", Text: "anything"}}, false)
	if verdict.IsGrounded || verdict.Reason != ReasonNoTerms {
		t.Fatalf("unexpected verdict %+v", verdict)
	}
}

func TestCheckRequireCitationsWithoutEvidence(t *testing.T) {
	verdict := newTestFirewall().Check("Claims must be filed within ninety days.", nil, true)
	if verdict.IsGrounded || verdict.Reason != ReasonNoEvidence {
		t.Fatalf("unexpected verdict %+v", verdict)
	}
}

func TestUnsupportedSentencesAreCapped(t *testing.T) {
	answer := ""
	for i := 0; i < 8; i++ {
		answer += "Unrelated cafeteria burrito announcement number seven. "
	}
	verdict := newTestFirewall().Check(answer, []domain.Chunk{{ID: "a", Text: "claims deadline ninety days"}}, true)
	if len(verdict.UnsupportedSentences) != 5 {
		t.Fatalf("expected 5 diagnostics, got %d", len(verdict.UnsupportedSentences))
	}
}

func TestSplitSentences(t *testing.T) {
	got := SplitSentences("Dose is 10 IU. Give it within 1 min!\n- monitor tone\nVersion 2.5 applies")
	want := []string{"Dose is 10 IU.", "Give it within 1 min!", "- monitor tone", "Version 2.5 applies"}
	if len(got) != len(want) {
		t.Fatalf("SplitSentences() = %q", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("sentence %d = %q, want %q", i, got[i], want[i])
		}
	}
}
