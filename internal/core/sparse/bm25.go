// Package sparse implements an Okapi BM25 inverted index over a fixed corpus.
//
// An Index is immutable after Build and safe for concurrent use. Rebuilds
// produce a new Index which is published through a Holder.
package sparse

import (
	"math"
	"sort"

	"github.com/kirillkom/grounded-qa/internal/core/textutil"
)

const (
	DefaultK1 = 1.5
	DefaultB  = 0.75
)

// Params are the BM25 tuning constants.
type Params struct {
	K1 float64
	B  float64
}

func DefaultParams() Params {
	return Params{K1: DefaultK1, B: DefaultB}
}

// Document is one entry of the corpus handed to Build.
type Document struct {
	ID   string
	Text string
}

// Hit is a scored document. Position is the document's index in the corpus
// passed to Build.
type Hit struct {
	ID       string
	Position int
	Score    float64
}

type posting struct {
	doc int
	tf  int
}

type Index struct {
	params   Params
	ids      []string
	lengths  []int
	avgLen   float64
	postings map[string][]posting
}

// Build tokenizes every document and computes posting lists, document
// frequencies and the average document length.
func Build(docs []Document, params Params) *Index {
	idx := &Index{
		params:   params,
		ids:      make([]string, len(docs)),
		lengths:  make([]int, len(docs)),
		postings: make(map[string][]posting),
	}

	total := 0
	for i, doc := range docs {
		idx.ids[i] = doc.ID
		terms := textutil.Terms(doc.Text)
		idx.lengths[i] = len(terms)
		total += len(terms)

		tf := make(map[string]int, len(terms))
		order := make([]string, 0, len(terms))
		for _, term := range terms {
			if tf[term] == 0 {
				order = append(order, term)
			}
			tf[term]++
		}
		for _, term := range order {
			idx.postings[term] = append(idx.postings[term], posting{doc: i, tf: tf[term]})
		}
	}
	if len(docs) > 0 {
		idx.avgLen = float64(total) / float64(len(docs))
	}
	return idx
}

func (idx *Index) Len() int {
	if idx == nil {
		return 0
	}
	return len(idx.ids)
}

// IDF returns ln((N - df + 0.5)/(df + 0.5) + 1) for term.
func (idx *Index) IDF(term string) float64 {
	n := float64(idx.Len())
	df := float64(len(idx.postings[term]))
	return math.Log((n-df+0.5)/(df+0.5) + 1)
}

// Search scores query against the corpus and returns at most topK hits in
// descending score order. Ties keep corpus order. topK <= 0 returns every
// document with a positive score.
func (idx *Index) Search(query string, topK int) []Hit {
	return idx.SearchFunc(query, topK, nil)
}

// SearchFunc is Search restricted to the documents for which keep returns true.
func (idx *Index) SearchFunc(query string, topK int, keep func(position int) bool) []Hit {
	if idx.Len() == 0 {
		return nil
	}
	terms := textutil.Terms(query)
	if len(terms) == 0 {
		return nil
	}

	k1, b := idx.params.K1, idx.params.B
	scores := make(map[int]float64)
	for _, term := range terms {
		list, ok := idx.postings[term]
		if !ok {
			continue
		}
		idf := idx.IDF(term)
		for _, p := range list {
			if keep != nil && !keep(p.doc) {
				continue
			}
			tf := float64(p.tf)
			norm := 1.0
			if idx.avgLen > 0 {
				norm = 1 - b + b*float64(idx.lengths[p.doc])/idx.avgLen
			}
			scores[p.doc] += idf * tf * (k1 + 1) / (tf + k1*norm)
		}
	}

	hits := make([]Hit, 0, len(scores))
	for doc, score := range scores {
		if score <= 0 {
			continue
		}
		hits = append(hits, Hit{ID: idx.ids[doc], Position: doc, Score: score})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Position < hits[j].Position
	})
	if topK > 0 && len(hits) > topK {
		hits = hits[:topK]
	}
	return hits
}
