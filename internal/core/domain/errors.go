package domain

import (
	"errors"
	"fmt"
)

var (
	ErrDocumentNotFound = errors.New("document not found")
	ErrInvalidInput     = errors.New("invalid input")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrTemporary        = errors.New("temporary failure")

	// Answer pipeline failure kinds.
	ErrRetrievalUnavailable = errors.New("retrieval unavailable")
	ErrGenerationFailure    = errors.New("generation failure")
	ErrIntegrityViolation   = errors.New("integrity violation")
	ErrSecurityViolation    = errors.New("security violation")
	ErrGroundingFailure     = errors.New("grounding failure")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}
