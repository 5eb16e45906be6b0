package pgstore

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/kirillkom/grounded-qa/internal/core/domain"
	"github.com/kirillkom/grounded-qa/internal/infrastructure/resilience"
)

func noRetry() resilience.Config {
	return resilience.Config{RetryMaxAttempts: 1}
}

func TestIndexChunksReplacesDocumentVectors(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM chunk_vectors").WithArgs("doc-1").WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec("INSERT INTO chunk_vectors").
		WithArgs("doc-1:0", "doc-1", "claims", "plan.pdf", "", []byte(`{"document_id":"doc-1"}`), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO chunk_vectors").
		WithArgs("doc-1:1", "doc-1", "appeals", "plan.pdf", "", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	meta := map[string]string{domain.MetaDocumentID: "doc-1"}
	store := New(db, noRetry())
	err = store.IndexChunks(context.Background(), []domain.Chunk{
		{ID: "doc-1:0", Text: "claims", SourceDocument: "plan.pdf", Metadata: meta},
		{ID: "doc-1:1", Text: "appeals", SourceDocument: "plan.pdf", Metadata: meta},
	}, [][]float32{{1, 0}, {0, 1}})
	if err != nil {
		t.Fatalf("IndexChunks() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSearchConvertsDistanceToSimilarity(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	rows := sqlmock.NewRows([]string{"chunk_id", "text", "source_document", "section", "metadata", "distance"}).
		AddRow("doc-1:0", "claims", "plan.pdf", "Claims", []byte(`{"domain":"health_plan"}`), 0.2).
		AddRow("doc-2:0", "far away", "other.pdf", "", []byte(`{}`), 2.0)
	mock.ExpectQuery("FROM chunk_vectors").
		WithArgs(sqlmock.AnyArg(), []byte(`{"domain":"health_plan"}`), 4).
		WillReturnRows(rows)

	store := New(db, noRetry())
	hits, err := store.Search(context.Background(), []float32{1, 0}, 4, domain.SearchFilter{"domain": "health_plan", "plan": ""})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("expected 2 hits, got %d", len(hits))
	}
	if hits[0].Score < 0.899 || hits[0].Score > 0.901 {
		t.Fatalf("expected distance 0.2 mapped to 0.9, got %f", hits[0].Score)
	}
	if hits[1].Score != 0 {
		t.Fatalf("expected distance 2 mapped to 0, got %f", hits[1].Score)
	}
	if hits[0].Chunk.Section != "Claims" || hits[0].Chunk.Metadata["domain"] != "health_plan" {
		t.Fatalf("unexpected chunk %+v", hits[0].Chunk)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSearchOutageOpensCircuit(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("FROM chunk_vectors").WillReturnError(&net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")})

	store := New(db, resilience.Config{
		RetryMaxAttempts:    1,
		BreakerEnabled:      true,
		BreakerMinRequests:  1,
		BreakerFailureRatio: 0.5,
		BreakerOpenTimeout:  time.Minute,
	})
	_, err = store.Search(context.Background(), []float32{1}, 2, nil)
	if err == nil {
		t.Fatalf("expected error")
	}
	_, err = store.Search(context.Background(), []float32{1}, 2, nil)
	if !domain.IsKind(err, domain.ErrRetrievalUnavailable) {
		t.Fatalf("expected ErrRetrievalUnavailable, got %v", err)
	}
}

func TestEnsureSchemaRejectsZeroDimension(t *testing.T) {
	store := New(nil, noRetry())
	err := store.EnsureSchema(context.Background(), 0)
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}
