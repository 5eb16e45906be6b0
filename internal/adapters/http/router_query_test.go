package httpadapter

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/kirillkom/grounded-qa/internal/config"
	"github.com/kirillkom/grounded-qa/internal/core/domain"
	"github.com/kirillkom/grounded-qa/internal/observability/metrics"
)

func TestQueryReleasedAnswer(t *testing.T) {
	query := &queryFake{}
	handler := NewRouter(config.Config{QueryDefaultTopK: 5}, nil, query, docsErrFake{}).Handler()

	res := postQuery(t, handler, map[string]any{
		"text":    "how long is the refund window?",
		"filters": map[string]string{"department": "billing"},
	})
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}

	var result domain.QueryResult
	if err := json.NewDecoder(res.Body).Decode(&result); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if result.Answer != "ok" || result.Confidence != domain.ConfidenceHigh {
		t.Fatalf("unexpected result: %+v", result)
	}
	if query.last.TopK != 5 {
		t.Fatalf("expected default top_k 5, got %d", query.last.TopK)
	}
	if query.last.Filters["department"] != "billing" {
		t.Fatalf("filters not forwarded: %+v", query.last.Filters)
	}
	if query.last.RequestID == "" || query.last.RequestID != res.Header().Get(requestIDHeader) {
		t.Fatalf("request id not propagated: %q", query.last.RequestID)
	}
}

func TestQueryRefusalIs200(t *testing.T) {
	query := &queryFake{outcome: domain.Refused(&domain.QueryResult{
		Answer:     "I could not find relevant information.",
		IsRefusal:  true,
		Confidence: domain.ConfidenceNone,
	}, "no relevant information found")}
	handler := NewRouter(config.Config{}, nil, query, docsErrFake{}).Handler()

	res := postQuery(t, handler, map[string]any{"text": "unrelated"})
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if strings.Contains(res.Body.String(), "no relevant information found") {
		t.Fatalf("refusal reason leaked into response: %s", res.Body.String())
	}
}

func TestQueryDomainFromHeader(t *testing.T) {
	query := &queryFake{}
	handler := NewRouter(config.Config{}, nil, query, docsErrFake{}).Handler()

	req := httptest.NewRequest(http.MethodPost, "/v1/query", bytes.NewBufferString(`{"text":"dosage?"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(domainHeader, "medical")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if query.last.Domain != "medical" {
		t.Fatalf("expected domain medical, got %q", query.last.Domain)
	}
}

func TestQueryBodyDomainWinsOverHeader(t *testing.T) {
	query := &queryFake{}
	handler := NewRouter(config.Config{}, nil, query, docsErrFake{}).Handler()

	req := httptest.NewRequest(http.MethodPost, "/v1/query", bytes.NewBufferString(`{"text":"q","domain":"legal"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(domainHeader, "medical")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if query.last == nil || query.last.Domain != "legal" {
		t.Fatalf("expected body domain to win, got %+v", query.last)
	}
}

func TestQueryRejectsContractViolations(t *testing.T) {
	cases := map[string]string{
		"missing text":  `{"top_k":3}`,
		"unknown field": `{"text":"q","temperature":1}`,
		"top_k range":   `{"text":"q","top_k":1000}`,
		"not json":      `text=q`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			query := &queryFake{}
			handler := NewRouter(config.Config{}, nil, query, docsErrFake{}).Handler()

			req := httptest.NewRequest(http.MethodPost, "/v1/query", bytes.NewBufferString(body))
			req.Header.Set("Content-Type", "application/json")
			res := httptest.NewRecorder()
			handler.ServeHTTP(res, req)

			if res.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d: %s", res.Code, res.Body.String())
			}
			if query.last != nil {
				t.Fatalf("query service must not be called")
			}
		})
	}
}

func TestQueryRecordsAnswerMetrics(t *testing.T) {
	m := metrics.NewHTTPServerMetrics(serviceName)
	handler := NewRouter(config.Config{}, nil, &queryFake{}, docsErrFake{}).WithMetrics(m).Handler()

	postQuery(t, handler, map[string]any{"text": "question"})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200 from /metrics, got %d", res.Code)
	}
	if !strings.Contains(res.Body.String(), `outcome="released"`) {
		t.Fatalf("answer outcome not exported:\n%s", res.Body.String())
	}
	n, err := testutil.GatherAndCount(m.Registry(), "gqa_answer_duration_seconds")
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected one duration series, got %d", n)
	}
}
