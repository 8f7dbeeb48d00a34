package domain

import (
	"errors"
	"fmt"
)

var (
	ErrDocumentNotFound = errors.New("document not found")
	ErrDocumentNotReady = errors.New("document not processed")
	ErrScopeUnconfirmed = errors.New("scope missing or unconfirmed")
	ErrTemplateNotFound = errors.New("template not found")
	ErrInvalidInput     = errors.New("invalid input")
	ErrAgentExhausted   = errors.New("agent iteration limit reached")
	ErrTemporary        = errors.New("temporary failure")
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
