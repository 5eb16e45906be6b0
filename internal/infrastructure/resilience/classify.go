package resilience

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/kirillkom/grounded-qa/internal/core/domain"
)

type ErrorClassification struct {
	Retryable     bool
	RecordFailure bool
}

type ErrorClassifier func(err error) ErrorClassification

var (
	// Transient faults are retried and count against the breaker.
	Transient = ErrorClassification{Retryable: true, RecordFailure: true}
	// Permanent faults fail fast but still count against the breaker.
	Permanent = ErrorClassification{Retryable: false, RecordFailure: true}
	// Ignored faults are caller errors: no retry, no breaker penalty.
	Ignored = ErrorClassification{Retryable: false, RecordFailure: false}
)

// HTTPStatusError is a non-2xx response from an HTTP backend.
type HTTPStatusError struct {
	Backend    string
	Operation  string
	StatusCode int
	Status     string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	if e == nil {
		return "http status error"
	}
	if strings.TrimSpace(e.Body) == "" {
		return fmt.Sprintf("%s %s status: %s", e.Backend, e.Operation, e.Status)
	}
	return fmt.Sprintf("%s %s status: %s: %s", e.Backend, e.Operation, e.Status, strings.TrimSpace(e.Body))
}

// ClassifyCommon handles the cases every adapter shares. ok is false when
// the error needs backend-specific treatment.
func ClassifyCommon(err error) (ErrorClassification, bool) {
	switch {
	case err == nil:
		return ErrorClassification{}, true
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return Ignored, true
	case IsCircuitOpen(err):
		return Transient, true
	}
	return ErrorClassification{}, false
}

// ClassifyHTTP is the classifier for JSON-over-HTTP backends.
func ClassifyHTTP(err error) ErrorClassification {
	if class, ok := ClassifyCommon(err); ok {
		return class
	}

	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		if IsRetryableHTTPStatus(statusErr.StatusCode) {
			return Transient
		}
		return Ignored
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return Transient
	}
	return Permanent
}

func IsRetryableHTTPStatus(statusCode int) bool {
	switch statusCode {
	case http.StatusRequestTimeout, http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

// WrapTemporary marks retryable failures as domain.ErrTemporary.
func WrapTemporary(operation string, err error, classifier ErrorClassifier) error {
	if err == nil {
		return nil
	}
	if domain.IsKind(err, domain.ErrTemporary) || domain.IsKind(err, domain.ErrRetrievalUnavailable) {
		return err
	}
	if classifier == nil {
		classifier = defaultClassifier
	}
	if classifier(err).Retryable || IsCircuitOpen(err) {
		return domain.WrapError(domain.ErrTemporary, operation, err)
	}
	return err
}

// WrapRetrieval is WrapTemporary for retrieval backends: an open circuit
// means the backend is out and is reported as domain.ErrRetrievalUnavailable.
func WrapRetrieval(operation string, err error, classifier ErrorClassifier) error {
	if err == nil {
		return nil
	}
	if IsCircuitOpen(err) {
		return domain.WrapError(domain.ErrRetrievalUnavailable, operation, err)
	}
	return WrapTemporary(operation, err, classifier)
}

func defaultClassifier(error) ErrorClassification {
	return Permanent
}
