package httpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/grounded-qa/internal/config"
	"github.com/kirillkom/grounded-qa/internal/core/domain"
	"github.com/kirillkom/grounded-qa/internal/core/ports"
	"github.com/kirillkom/grounded-qa/internal/observability/metrics"
)

const (
	domainHeader  = "X-Domain"
	serviceName   = "api"
	maxQueryBytes = 64 << 10
)

// Health is the /healthz payload.
type Health struct {
	Status       string   `json:"status"`
	CorpusChunks int      `json:"corpus_chunks"`
	OpenCircuits []string `json:"open_circuits,omitempty"`
}

type HealthProbe func() Health

type Router struct {
	cfg     config.Config
	ingest  ports.DocumentIngestor
	query   ports.QueryService
	docs    ports.DocumentReader
	corpus  ports.CorpusReloader
	metrics *metrics.HTTPServerMetrics
	health  HealthProbe
	logger  *slog.Logger
}

type errorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

type queryRequest struct {
	Text    string            `json:"text"`
	TopK    int               `json:"top_k"`
	Domain  string            `json:"domain"`
	Filters map[string]string `json:"filters"`
}

func NewRouter(
	cfg config.Config,
	ingest ports.DocumentIngestor,
	query ports.QueryService,
	docs ports.DocumentReader,
) *Router {
	return &Router{
		cfg:    cfg,
		ingest: ingest,
		query:  query,
		docs:   docs,
		logger: slog.Default(),
	}
}

func (rt *Router) WithCorpus(corpus ports.CorpusReloader) *Router {
	rt.corpus = corpus
	return rt
}

func (rt *Router) WithMetrics(m *metrics.HTTPServerMetrics) *Router {
	rt.metrics = m
	return rt
}

func (rt *Router) WithHealth(probe HealthProbe) *Router {
	rt.health = probe
	return rt
}

func (rt *Router) WithLogger(logger *slog.Logger) *Router {
	if logger != nil {
		rt.logger = logger
	}
	return rt
}

// Handler assembles the mux and the middleware chain. It panics if the
// embedded OpenAPI document is invalid.
func (rt *Router) Handler() http.Handler {
	validator, err := newRequestValidator()
	if err != nil {
		panic(err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)
	mux.HandleFunc("POST /v1/query", rt.handleQuery)
	mux.HandleFunc("POST /v1/documents", rt.uploadDocument)
	mux.HandleFunc("GET /v1/documents/{document_id}", rt.getDocumentByID)
	if rt.corpus != nil {
		mux.HandleFunc("POST /v1/corpus/reload", rt.reloadCorpus)
	}
	if rt.metrics != nil {
		mux.Handle("GET /metrics", rt.metrics.Handler())
	}

	var onReject func(string)
	if rt.metrics != nil {
		onReject = func(cause string) { rt.metrics.RecordRejected(serviceName, cause) }
	}

	var handler http.Handler = validator.middleware(mux)
	handler = backpressureMiddleware(
		handler,
		rt.cfg.APIBackpressureMaxFlight,
		time.Duration(rt.cfg.APIBackpressureWaitMS)*time.Millisecond,
		onReject,
	)
	handler = rateLimitMiddleware(handler, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst, onReject)
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(serviceName, handler)
	}
	handler = accessLogMiddleware(handler)
	return requestIDMiddleware(handler)
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	health := Health{Status: "ok"}
	if rt.health != nil {
		health = rt.health()
	}
	writeJSON(w, http.StatusOK, health)
}

func (rt *Router) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxQueryBytes))
	if err := decoder.Decode(&req); err != nil {
		rt.writeError(w, r, http.StatusBadRequest, errors.New("invalid json"))
		return
	}

	domainName := strings.TrimSpace(req.Domain)
	if domainName == "" {
		domainName = strings.TrimSpace(r.Header.Get(domainHeader))
	}
	topK := req.TopK
	if topK <= 0 {
		topK = rt.cfg.QueryDefaultTopK
	}

	started := time.Now()
	outcome := rt.query.Run(r.Context(), domain.QueryRequest{
		RequestID: requestIDFromContext(r.Context()),
		Text:      req.Text,
		TopK:      topK,
		Filters:   domain.SearchFilter(req.Filters),
		Domain:    domainName,
	})
	rt.recordAnswer(outcome, time.Since(started))

	if outcome.Kind == domain.OutcomeFailed {
		if errors.Is(outcome.Err, context.Canceled) {
			return
		}
		rt.writeError(w, r, mapErrorToHTTPStatus(outcome.Err), outcome.Err)
		return
	}
	writeJSON(w, http.StatusOK, outcome.Result)
}

func (rt *Router) recordAnswer(outcome domain.Outcome, elapsed time.Duration) {
	if rt.metrics == nil {
		return
	}
	obs := metrics.AnswerObservation{
		Outcome:  string(outcome.Kind),
		Reason:   outcome.Reason,
		Duration: elapsed,
	}
	if outcome.Result != nil {
		obs.Confidence = outcome.Result.Confidence.String()
		obs.Attempts = outcome.Result.Attempts
		obs.Fallback = outcome.Result.Fallback
	}
	rt.metrics.RecordAnswer(serviceName, obs)
}

func (rt *Router) uploadDocument(w http.ResponseWriter, r *http.Request) {
	maxBytes := int64(rt.cfg.APIMaxUploadMB) << 20
	if maxBytes <= 0 {
		maxBytes = 32 << 20
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)

	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			rt.writeError(w, r, http.StatusRequestEntityTooLarge, errors.New("file exceeds upload limit"))
			return
		}
		rt.writeError(w, r, http.StatusBadRequest, errors.New("multipart field 'file' is required"))
		return
	}
	defer file.Close()

	metadata := map[string]string{}
	if raw := strings.TrimSpace(r.FormValue("metadata")); raw != "" {
		if err := json.Unmarshal([]byte(raw), &metadata); err != nil {
			rt.writeError(w, r, http.StatusBadRequest, errors.New("metadata must be a JSON object of strings"))
			return
		}
	}
	if d := strings.TrimSpace(r.FormValue("domain")); d != "" {
		metadata[domain.MetaDomain] = d
	} else if d := strings.TrimSpace(r.Header.Get(domainHeader)); d != "" {
		metadata[domain.MetaDomain] = d
	}

	doc, err := rt.ingest.Upload(
		r.Context(),
		fileHeader.Filename,
		fileHeader.Header.Get("Content-Type"),
		metadata,
		file,
	)
	if err != nil {
		rt.writeError(w, r, mapErrorToHTTPStatus(err), err)
		return
	}

	writeJSON(w, http.StatusAccepted, doc)
}

func (rt *Router) getDocumentByID(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("document_id"))
	if id == "" {
		rt.writeError(w, r, http.StatusBadRequest, errors.New("document id is required"))
		return
	}

	doc, err := rt.docs.GetByID(r.Context(), id)
	if err != nil {
		rt.writeError(w, r, mapErrorToHTTPStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (rt *Router) reloadCorpus(w http.ResponseWriter, r *http.Request) {
	chunks, err := rt.corpus.Reload(r.Context())
	if err != nil {
		rt.writeError(w, r, mapErrorToHTTPStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"chunks": chunks})
}

func (rt *Router) writeError(w http.ResponseWriter, r *http.Request, status int, err error) {
	requestID := requestIDFromContext(r.Context())
	if status >= http.StatusInternalServerError {
		rt.logger.Error("http_request_failed",
			"request_id", requestID,
			"path", r.URL.Path,
			"status", status,
			"error", err,
		)
	}
	writeJSON(w, status, errorResponse{Error: errorMessage(status, err), RequestID: requestID})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
