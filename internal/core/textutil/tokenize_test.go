package textutil

import (
	"reflect"
	"testing"
)

func TestTermsDropsStopWordsPunctuationAndShortTokens(t *testing.T) {
	got := Terms("What is the Co-Pay for an MRI scan? It's $40.")
	want := []string{"pay", "mri", "scan"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Terms() = %v, want %v", got, want)
	}
}

func TestTermsKeepsRepeats(t *testing.T) {
	got := Terms("refund refund policy")
	if len(got) != 3 {
		t.Fatalf("expected repeated terms to be kept, got %v", got)
	}
}

func TestTermSetEmptyForStopWordsOnly(t *testing.T) {
	if set := TermSet("it is what it is"); len(set) != 0 {
		t.Fatalf("expected empty set, got %v", set)
	}
}

func TestStopWordListSize(t *testing.T) {
	if n := len(stopWords); n < 110 || n > 140 {
		t.Fatalf("stop-word list has %d entries", n)
	}
}

func TestKeyTermsKeepsShortTokens(t *testing.T) {
	got := KeyTerms("Give 5 mg IV, then the rest.")
	for _, want := range []string{"give", "5", "mg", "iv", "rest"} {
		if _, ok := got[want]; !ok {
			t.Fatalf("KeyTerms() = %v, missing %q", got, want)
		}
	}
	if _, ok := got["the"]; ok {
		t.Fatalf("stop-words must be dropped, got %v", got)
	}
}
