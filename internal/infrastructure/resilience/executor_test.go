package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/kirillkom/grounded-qa/internal/core/domain"
)

func TestExecuteRetriesTemporaryFailure(t *testing.T) {
	exec := NewExecutor(Config{
		RetryMaxAttempts:    3,
		RetryInitialBackoff: 1 * time.Millisecond,
		RetryMaxBackoff:     2 * time.Millisecond,
		RetryMultiplier:     2,
		BreakerEnabled:      false,
	})

	attempts := 0
	errTemp := errors.New("temporary")
	err := exec.Execute(context.Background(), "op", func(context.Context) error {
		attempts++
		if attempts < 3 {
			return errTemp
		}
		return nil
	}, func(err error) ErrorClassification {
		return ErrorClassification{
			Retryable:     errors.Is(err, errTemp),
			RecordFailure: true,
		}
	})
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestExecuteDoesNotRetryPermanentFailure(t *testing.T) {
	exec := NewExecutor(Config{
		RetryMaxAttempts:    3,
		RetryInitialBackoff: 1 * time.Millisecond,
		RetryMaxBackoff:     2 * time.Millisecond,
		RetryMultiplier:     2,
		BreakerEnabled:      false,
	})

	attempts := 0
	errPermanent := errors.New("permanent")
	err := exec.Execute(context.Background(), "op", func(context.Context) error {
		attempts++
		return errPermanent
	}, func(error) ErrorClassification {
		return ErrorClassification{
			Retryable:     false,
			RecordFailure: false,
		}
	})
	if !errors.Is(err, errPermanent) {
		t.Fatalf("expected permanent error, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("expected 1 attempt, got %d", attempts)
	}
}

func TestExecuteOpensCircuitAfterFailures(t *testing.T) {
	exec := NewExecutor(Config{
		RetryMaxAttempts:        1,
		RetryInitialBackoff:     1 * time.Millisecond,
		RetryMaxBackoff:         1 * time.Millisecond,
		RetryMultiplier:         2,
		BreakerEnabled:          true,
		BreakerMinRequests:      2,
		BreakerFailureRatio:     0.5,
		BreakerOpenTimeout:      50 * time.Millisecond,
		BreakerHalfOpenMaxCalls: 1,
	})

	errTemp := errors.New("temporary")
	classifier := func(error) ErrorClassification {
		return ErrorClassification{
			Retryable:     false,
			RecordFailure: true,
		}
	}

	for i := 0; i < 2; i++ {
		err := exec.Execute(context.Background(), "op", func(context.Context) error {
			return errTemp
		}, classifier)
		if !errors.Is(err, errTemp) {
			t.Fatalf("expected temporary error on iteration %d, got %v", i, err)
		}
	}

	err := exec.Execute(context.Background(), "op", func(context.Context) error {
		t.Fatalf("circuit should be open and must not call operation")
		return nil
	}, classifier)
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Fatalf("expected open state error, got %v", err)
	}
}

func TestCallReturnsValueAfterRetry(t *testing.T) {
	exec := NewExecutor(Config{
		RetryMaxAttempts:    2,
		RetryInitialBackoff: time.Millisecond,
		RetryMaxBackoff:     time.Millisecond,
		RetryMultiplier:     2,
	})

	attempts := 0
	got, err := Call(context.Background(), exec, "embed", func(context.Context) (int, error) {
		attempts++
		if attempts == 1 {
			return 0, &HTTPStatusError{Backend: "ollama", Operation: "embed", StatusCode: 503, Status: "503 Service Unavailable"}
		}
		return 42, nil
	}, ClassifyHTTP)
	if err != nil {
		t.Fatalf("Call() error = %v", err)
	}
	if got != 42 || attempts != 2 {
		t.Fatalf("expected 42 after 2 attempts, got %d after %d", got, attempts)
	}
}

func TestBreakerOnlyDisablesRetries(t *testing.T) {
	exec := NewExecutor(DefaultConfig().BreakerOnly())

	attempts := 0
	_ = exec.Execute(context.Background(), "generate", func(context.Context) error {
		attempts++
		return &HTTPStatusError{StatusCode: 502, Status: "502 Bad Gateway"}
	}, ClassifyHTTP)
	if attempts != 1 {
		t.Fatalf("expected a single attempt, got %d", attempts)
	}
}

func TestOpenCircuitsReportsTrippedOperations(t *testing.T) {
	exec := NewExecutor(Config{
		RetryMaxAttempts:    1,
		BreakerEnabled:      true,
		BreakerMinRequests:  1,
		BreakerFailureRatio: 0.5,
		BreakerOpenTimeout:  time.Minute,
	})

	fail := errors.New("down")
	_ = exec.Execute(context.Background(), "qdrant.search", func(context.Context) error { return fail }, nil)
	_ = exec.Execute(context.Background(), "nats.publish", func(context.Context) error { return nil }, nil)

	open := exec.OpenCircuits()
	if len(open) != 1 || open[0] != "qdrant.search" {
		t.Fatalf("unexpected open circuits %v", open)
	}
	if exec.States()["nats.publish"] != "closed" {
		t.Fatalf("expected closed breaker, got %v", exec.States())
	}
}

func TestClassifyHTTP(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want ErrorClassification
	}{
		{"canceled", context.Canceled, Ignored},
		{"open", gobreaker.ErrOpenState, Transient},
		{"retryable status", &HTTPStatusError{StatusCode: 429}, Transient},
		{"client status", &HTTPStatusError{StatusCode: 400}, Ignored},
		{"other", errors.New("boom"), Permanent},
	}
	for _, tc := range cases {
		if got := ClassifyHTTP(tc.err); got != tc.want {
			t.Errorf("%s: ClassifyHTTP() = %+v, want %+v", tc.name, got, tc.want)
		}
	}
}

func TestWrapRetrievalMapsOpenCircuitToUnavailable(t *testing.T) {
	err := WrapRetrieval("qdrant search", gobreaker.ErrOpenState, ClassifyHTTP)
	if !domain.IsKind(err, domain.ErrRetrievalUnavailable) {
		t.Fatalf("expected ErrRetrievalUnavailable, got %v", err)
	}

	err = WrapRetrieval("qdrant search", &HTTPStatusError{StatusCode: 503}, ClassifyHTTP)
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected ErrTemporary, got %v", err)
	}

	plain := errors.New("bad request")
	if got := WrapTemporary("op", plain, nil); got != plain {
		t.Fatalf("permanent errors must pass through, got %v", got)
	}
}
