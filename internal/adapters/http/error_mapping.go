package httpadapter

import (
	"net/http"

	"github.com/kirillkom/grounded-qa/internal/core/domain"
)

func mapErrorToHTTPStatus(err error) int {
	switch {
	case domain.IsKind(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized
	case domain.IsKind(err, domain.ErrDocumentNotFound):
		return http.StatusNotFound
	case domain.IsKind(err, domain.ErrRetrievalUnavailable):
		return http.StatusServiceUnavailable
	case domain.IsKind(err, domain.ErrTemporary):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// errorMessage keeps internal failure details out of 5xx responses.
func errorMessage(status int, err error) string {
	switch {
	case status == http.StatusServiceUnavailable:
		return "service temporarily unavailable, please try again"
	case status >= http.StatusInternalServerError:
		return "internal error"
	case err != nil:
		return err.Error()
	default:
		return http.StatusText(status)
	}
}
