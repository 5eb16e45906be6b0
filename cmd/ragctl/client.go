package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kirillkom/grounded-qa/internal/core/domain"
)

// apiClient talks to the API service over its public HTTP contract.
type apiClient struct {
	baseURL    string
	httpClient *http.Client
}

func newAPIClient(baseURL string, timeout time.Duration) *apiClient {
	return &apiClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

type apiError struct {
	StatusCode int
	Message    string
	RequestID  string
}

func (e *apiError) Error() string {
	if e.RequestID != "" {
		return fmt.Sprintf("api returned %d: %s (request %s)", e.StatusCode, e.Message, e.RequestID)
	}
	return fmt.Sprintf("api returned %d: %s", e.StatusCode, e.Message)
}

type askParams struct {
	Text    string            `json:"text"`
	TopK    int               `json:"top_k,omitempty"`
	Domain  string            `json:"domain,omitempty"`
	Filters map[string]string `json:"filters,omitempty"`
}

func (c *apiClient) Ask(ctx context.Context, params askParams) (*domain.QueryResult, error) {
	body, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("marshal query: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/query", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	var result domain.QueryResult
	if err := c.do(req, http.StatusOK, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *apiClient) Upload(ctx context.Context, path, domainName string, metadata map[string]string) (*domain.Document, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if domainName != "" {
		if err := writer.WriteField("domain", domainName); err != nil {
			return nil, err
		}
	}
	if len(metadata) > 0 {
		raw, err := json.Marshal(metadata)
		if err != nil {
			return nil, err
		}
		if err := writer.WriteField("metadata", string(raw)); err != nil {
			return nil, err
		}
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/documents", &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	var doc domain.Document
	if err := c.do(req, http.StatusAccepted, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

func (c *apiClient) Document(ctx context.Context, id string) (*domain.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/documents/"+id, nil)
	if err != nil {
		return nil, err
	}
	var doc domain.Document
	if err := c.do(req, http.StatusOK, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

func (c *apiClient) Reindex(ctx context.Context) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/corpus/reload", nil)
	if err != nil {
		return 0, err
	}
	var resp struct {
		Chunks int `json:"chunks"`
	}
	if err := c.do(req, http.StatusOK, &resp); err != nil {
		return 0, err
	}
	return resp.Chunks, nil
}

func (c *apiClient) do(req *http.Request, want int, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != want {
		var body struct {
			Error     string `json:"error"`
			RequestID string `json:"request_id"`
		}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if json.Unmarshal(raw, &body) != nil || body.Error == "" {
			body.Error = strings.TrimSpace(string(raw))
		}
		return &apiError{StatusCode: resp.StatusCode, Message: body.Error, RequestID: body.RequestID}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", req.URL.Path, err)
	}
	return nil
}
