package qdrant

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/grounded-qa/internal/core/domain"
	"github.com/kirillkom/grounded-qa/internal/infrastructure/resilience"
)

// pointNamespace derives stable point ids from chunk ids, so re-indexing a
// document overwrites its points.
var pointNamespace = uuid.MustParse("6f3a1c1e-5d0b-4b8e-9b8e-2a9c4d7e1f10")

type Client struct {
	baseURL    string
	collection string
	httpClient *http.Client
	exec       *resilience.Executor

	ensureMu          sync.Mutex
	ensuredCollection bool
	ensuredVectorSize int
}

func New(baseURL, collection string) *Client {
	return NewWithResilience(baseURL, collection, resilience.DefaultConfig())
}

func NewWithResilience(baseURL, collection string, cfg resilience.Config) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		collection: collection,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		exec:       resilience.NewExecutor(cfg),
	}
}

type point struct {
	ID      string         `json:"id"`
	Vector  []float32      `json:"vector"`
	Payload map[string]any `json:"payload"`
}

func (c *Client) IndexChunks(ctx context.Context, chunks []domain.Chunk, vectors [][]float32) error {
	if len(chunks) == 0 || len(vectors) == 0 {
		return nil
	}
	if len(chunks) != len(vectors) {
		return fmt.Errorf("chunks/vectors mismatch")
	}

	err := c.exec.Execute(ctx, "qdrant.upsert", func(ctx context.Context) error {
		if err := c.ensureCollection(ctx, len(vectors[0])); err != nil {
			return err
		}
		if err := c.deleteStale(ctx, chunks); err != nil {
			return err
		}
		return c.upsert(ctx, chunks, vectors)
	}, resilience.ClassifyHTTP)
	return resilience.WrapTemporary("qdrant index", err, resilience.ClassifyHTTP)
}

// deleteStale drops the previous points of every document in the batch.
func (c *Client) deleteStale(ctx context.Context, chunks []domain.Chunk) error {
	seen := make(map[string]struct{})
	var docIDs []any
	for _, ch := range chunks {
		id := ch.Metadata[domain.MetaDocumentID]
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		docIDs = append(docIDs, id)
	}
	if len(docIDs) == 0 {
		return nil
	}

	body := map[string]any{
		"filter": map[string]any{
			"must": []map[string]any{{
				"key":   payloadMetaKey(domain.MetaDocumentID),
				"match": map[string]any{"any": docIDs},
			}},
		},
	}
	path := fmt.Sprintf("/collections/%s/points/delete?wait=true", c.collection)
	return c.doJSON(ctx, http.MethodPost, path, body, nil, "delete")
}

func (c *Client) upsert(ctx context.Context, chunks []domain.Chunk, vectors [][]float32) error {
	points := make([]point, 0, len(chunks))
	for i, ch := range chunks {
		points = append(points, point{
			ID:      PointID(ch.ID),
			Vector:  vectors[i],
			Payload: chunkPayload(ch),
		})
	}

	path := fmt.Sprintf("/collections/%s/points?wait=true", c.collection)
	return c.doJSON(ctx, http.MethodPut, path, map[string]any{"points": points}, nil, "upsert")
}

// Search returns nearest chunks with cosine scores mapped into [0,1].
func (c *Client) Search(
	ctx context.Context,
	queryVector []float32,
	limit int,
	filter domain.SearchFilter,
) ([]domain.ScoredChunk, error) {
	if len(queryVector) == 0 || limit <= 0 {
		return nil, nil
	}

	reqBody := map[string]any{
		"query":        queryVector,
		"limit":        limit,
		"with_payload": true,
	}
	if f := buildFilter(filter); f != nil {
		reqBody["filter"] = f
	}

	var resp struct {
		Result struct {
			Points []struct {
				Score   float64        `json:"score"`
				Payload map[string]any `json:"payload"`
			} `json:"points"`
		} `json:"result"`
	}
	path := fmt.Sprintf("/collections/%s/points/query", c.collection)
	err := c.exec.Execute(ctx, "qdrant.search", func(ctx context.Context) error {
		return c.doJSON(ctx, http.MethodPost, path, reqBody, &resp, "search")
	}, resilience.ClassifyHTTP)
	if err != nil {
		return nil, resilience.WrapRetrieval("qdrant search", err, resilience.ClassifyHTTP)
	}

	out := make([]domain.ScoredChunk, 0, len(resp.Result.Points))
	for _, p := range resp.Result.Points {
		out = append(out, domain.ScoredChunk{
			Chunk: chunkFromPayload(p.Payload),
			Score: domain.SimilarityFromCosine(p.Score),
		})
	}
	return out, nil
}

func (c *Client) ensureCollection(ctx context.Context, vectorSize int) error {
	c.ensureMu.Lock()
	if c.ensuredCollection && c.ensuredVectorSize == vectorSize {
		c.ensureMu.Unlock()
		return nil
	}
	c.ensureMu.Unlock()

	reqBody := map[string]any{
		"vectors": map[string]any{
			"size":     vectorSize,
			"distance": "Cosine",
		},
	}

	path := fmt.Sprintf("/collections/%s", c.collection)
	err := c.doJSON(ctx, http.MethodPut, path, reqBody, nil, "ensure collection")
	var statusErr *resilience.HTTPStatusError
	// 409 if the collection already exists.
	if err != nil && (!errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusConflict) {
		return err
	}

	c.ensureMu.Lock()
	c.ensuredCollection = true
	c.ensuredVectorSize = vectorSize
	c.ensureMu.Unlock()
	return nil
}

// PointID maps a chunk id onto the UUID space qdrant requires.
func PointID(chunkID string) string {
	return uuid.NewSHA1(pointNamespace, []byte(chunkID)).String()
}

func (c *Client) OpenCircuits() []string {
	return c.exec.OpenCircuits()
}
