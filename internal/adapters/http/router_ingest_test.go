package httpadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kirillkom/grounded-qa/internal/config"
	"github.com/kirillkom/grounded-qa/internal/core/domain"
)

type ingestSuccessFake struct {
	metadata map[string]string
}

func (f *ingestSuccessFake) Upload(_ context.Context, filename, mimeType string, metadata map[string]string, body io.Reader) (*domain.Document, error) {
	raw, err := io.ReadAll(body)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "upload", io.EOF)
	}
	f.metadata = metadata

	now := time.Now().UTC()
	return &domain.Document{
		ID:          "doc-1",
		Filename:    filename,
		MimeType:    mimeType,
		StoragePath: "doc-1_file.txt",
		Domain:      metadata[domain.MetaDomain],
		Metadata:    metadata,
		Status:      domain.StatusUploaded,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

func newUploadRequest(t *testing.T, filename string, content []byte, fields map[string]string) *http.Request {
	t.Helper()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("CreateFormFile() error = %v", err)
	}
	if _, err := part.Write(content); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	for key, value := range fields {
		if err := writer.WriteField(key, value); err != nil {
			t.Fatalf("WriteField() error = %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/v1/documents", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func TestHealthzEndpoint(t *testing.T) {
	handler := NewRouter(config.Config{}, &ingestSuccessFake{}, &queryFake{}, docsErrFake{}).
		WithHealth(func() Health {
			return Health{Status: "degraded", CorpusChunks: 12, OpenCircuits: []string{"qdrant.search"}}
		}).
		Handler()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	var health Health
	if err := json.NewDecoder(res.Body).Decode(&health); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if health.Status != "degraded" || health.CorpusChunks != 12 || len(health.OpenCircuits) != 1 {
		t.Fatalf("unexpected health: %+v", health)
	}
}

func TestUploadDocumentSuccess(t *testing.T) {
	ingest := &ingestSuccessFake{}
	handler := NewRouter(config.Config{}, ingest, &queryFake{}, docsErrFake{}).Handler()

	req := newUploadRequest(t, "file.txt", []byte("hello"), map[string]string{
		"domain":   "billing",
		"metadata": `{"department":"finance"}`,
	})
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", res.Code, res.Body.String())
	}

	var docResp map[string]any
	if err := json.NewDecoder(res.Body).Decode(&docResp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if docResp["id"] != "doc-1" || docResp["domain"] != "billing" {
		t.Fatalf("unexpected response: %+v", docResp)
	}
	if ingest.metadata["department"] != "finance" {
		t.Fatalf("metadata not forwarded: %+v", ingest.metadata)
	}
}

func TestUploadDocumentRejectsMalformedMetadata(t *testing.T) {
	handler := NewRouter(config.Config{}, &ingestSuccessFake{}, &queryFake{}, docsErrFake{}).Handler()

	req := newUploadRequest(t, "file.txt", []byte("hello"), map[string]string{"metadata": "[1,2]"})
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}

func TestUploadDocumentMissingMultipartField(t *testing.T) {
	handler := NewRouter(config.Config{}, &ingestSuccessFake{}, &queryFake{}, docsErrFake{}).Handler()

	req := httptest.NewRequest(http.MethodPost, "/v1/documents", bytes.NewBufferString("plain-text"))
	req.Header.Set("Content-Type", "text/plain")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}

func TestReloadCorpusReturnsChunkCount(t *testing.T) {
	handler := NewRouter(config.Config{}, &ingestSuccessFake{}, &queryFake{}, docsErrFake{}).
		WithCorpus(reloaderFake{chunks: 7}).
		Handler()

	req := httptest.NewRequest(http.MethodPost, "/v1/corpus/reload", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	var body map[string]int
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body["chunks"] != 7 {
		t.Fatalf("unexpected response: %+v", body)
	}
}
