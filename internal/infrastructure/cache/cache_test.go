package cache

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestLRUEvictsLeastRecentlyUsed(t *testing.T) {
	c := NewLRU[int](2, 0)
	c.Set("a", 1)
	c.Set("b", 2)
	if _, ok := c.Get("a"); !ok {
		t.Fatalf("expected a")
	}
	c.Set("c", 3)

	if _, ok := c.Get("b"); ok {
		t.Fatalf("b should have been evicted")
	}
	if v, ok := c.Get("a"); !ok || v != 1 {
		t.Fatalf("expected a=1, got %d %v", v, ok)
	}
	if c.Len() != 2 {
		t.Fatalf("expected 2 entries, got %d", c.Len())
	}
}

func TestLRUExpiresEntries(t *testing.T) {
	now := time.Unix(1000, 0)
	c := NewLRU[string](4, time.Minute)
	c.now = func() time.Time { return now }

	c.Set("k", "v")
	now = now.Add(2 * time.Minute)
	if _, ok := c.Get("k"); ok {
		t.Fatalf("entry should have expired")
	}
	if c.Len() != 0 {
		t.Fatalf("expired entry should be removed")
	}
}

type countingEmbedder struct {
	calls int
	err   error
}

func (f *countingEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	return make([][]float32, len(texts)), nil
}

func (f *countingEmbedder) EmbedQuery(context.Context, string) ([]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return []float32{1, 2}, nil
}

func TestEmbedderCachesNormalizedQueries(t *testing.T) {
	next := &countingEmbedder{}
	emb := NewEmbedder(next, 8, time.Minute)

	for _, q := range []string{"When are claims due?", "  when are   CLAIMS due? "} {
		if _, err := emb.EmbedQuery(context.Background(), q); err != nil {
			t.Fatalf("EmbedQuery() error = %v", err)
		}
	}
	if next.calls != 1 {
		t.Fatalf("expected 1 backend call, got %d", next.calls)
	}
	hits, misses := emb.Stats()
	if hits != 1 || misses != 1 {
		t.Fatalf("expected 1 hit and 1 miss, got %d/%d", hits, misses)
	}
}

func TestEmbedderDoesNotCacheErrors(t *testing.T) {
	next := &countingEmbedder{err: errors.New("down")}
	emb := NewEmbedder(next, 8, 0)

	_, _ = emb.EmbedQuery(context.Background(), "q")
	_, _ = emb.EmbedQuery(context.Background(), "q")
	if next.calls != 2 {
		t.Fatalf("errors must not be cached, got %d calls", next.calls)
	}
}
