package ollama

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/grounded-qa/internal/infrastructure/resilience"
)

type Client struct {
	baseURL    string
	genModel   string
	embedModel string
	httpClient *http.Client

	embedExec *resilience.Executor
	genExec   *resilience.Executor
}

// Options tunes the client. Generation runs behind the breaker only: the
// answer orchestrator owns regeneration attempts.
type Options struct {
	Timeout     time.Duration
	Temperature float64
	Resilience  resilience.Config
}

func New(baseURL, genModel, embedModel string) *Client {
	return NewWithOptions(baseURL, genModel, embedModel, Options{})
}

func NewWithOptions(baseURL, genModel, embedModel string, opts Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	cfg := opts.Resilience
	if cfg == (resilience.Config{}) {
		cfg = resilience.DefaultConfig()
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		genModel:   genModel,
		embedModel: embedModel,
		httpClient: &http.Client{Timeout: timeout},
		embedExec:  resilience.NewExecutor(cfg),
		genExec:    resilience.NewExecutor(cfg.BreakerOnly()),
	}
}

type Embedder struct {
	client *Client
}

func NewEmbedder(client *Client) *Embedder {
	return &Embedder{client: client}
}

func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	request := map[string]any{
		"model": e.client.embedModel,
		"input": texts,
	}

	var response struct {
		Embeddings [][]float32 `json:"embeddings"`
	}
	err := e.client.embedExec.Execute(ctx, "ollama.embed", func(ctx context.Context) error {
		return e.client.postJSON(ctx, "/api/embed", request, &response, "embed")
	}, resilience.ClassifyHTTP)
	if err != nil {
		return nil, resilience.WrapTemporary("ollama embed", err, resilience.ClassifyHTTP)
	}
	if len(response.Embeddings) != len(texts) {
		return nil, fmt.Errorf("ollama embed: expected %d vectors, got %d", len(texts), len(response.Embeddings))
	}
	return response.Embeddings, nil
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("empty embedding result")
	}
	return vectors[0], nil
}

type Generator struct {
	client      *Client
	temperature float64
}

func NewGenerator(client *Client) *Generator {
	return &Generator{client: client}
}

// WithTemperature returns a copy of the generator that samples at t.
func (g *Generator) WithTemperature(t float64) *Generator {
	out := *g
	out.temperature = t
	return &out
}

// Generate asks the chat model for an answer drawn from evidence only.
func (g *Generator) Generate(ctx context.Context, systemPrompt, evidence, query string) (string, error) {
	request := map[string]any{
		"model":    g.client.genModel,
		"messages": buildMessages(systemPrompt, evidence, query),
		"stream":   false,
		"options": map[string]any{
			"temperature": g.temperature,
		},
	}

	var response struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	}
	err := g.client.genExec.Execute(ctx, "ollama.chat", func(ctx context.Context) error {
		return g.client.postJSON(ctx, "/api/chat", request, &response, "chat")
	}, resilience.ClassifyHTTP)
	if err != nil {
		return "", resilience.WrapTemporary("ollama chat", err, resilience.ClassifyHTTP)
	}
	return strings.TrimSpace(response.Message.Content), nil
}

// OpenCircuits lists the client operations currently rejected by a breaker.
func (c *Client) OpenCircuits() []string {
	return append(c.embedExec.OpenCircuits(), c.genExec.OpenCircuits()...)
}
