package repositories

import (
	"errors"
	"fmt"
)

type errorKind int

const (
	kindNotFound errorKind = iota + 1
	kindConflict
	kindUnavailable
)

// StoreError is a RepositoryError raised by stores that do not surface backend status codes.
type StoreError struct {
	Op   string
	kind errorKind
	Err  error
}

// Error implements the error interface.
func (e *StoreError) Error() string {
	if e == nil {
		return ""
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return e.Err.Error()
}

// Unwrap exposes the underlying error.
func (e *StoreError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// IsNotFound implements RepositoryError.
func (e *StoreError) IsNotFound() bool { return e != nil && e.kind == kindNotFound }

// IsConflict implements RepositoryError.
func (e *StoreError) IsConflict() bool { return e != nil && e.kind == kindConflict }

// IsUnavailable implements RepositoryError.
func (e *StoreError) IsUnavailable() bool { return e != nil && e.kind == kindUnavailable }

// NewNotFoundError reports a missing document.
func NewNotFoundError(op, path string) *StoreError {
	return &StoreError{Op: op, kind: kindNotFound, Err: fmt.Errorf("%s not found", path)}
}

// NewConflictError reports a document that already exists or changed concurrently.
func NewConflictError(op, path string) *StoreError {
	return &StoreError{Op: op, kind: kindConflict, Err: fmt.Errorf("%s already exists", path)}
}

// NewUnavailableError reports a transient backend failure.
func NewUnavailableError(op string, err error) *StoreError {
	return &StoreError{Op: op, kind: kindUnavailable, Err: err}
}

// IsNotFound reports whether err carries a not-found classification.
func IsNotFound(err error) bool {
	var repoErr RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}

// IsConflict reports whether err carries a conflict classification.
func IsConflict(err error) bool {
	var repoErr RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsConflict()
}

// IsUnavailable reports whether err carries an unavailable classification.
func IsUnavailable(err error) bool {
	var repoErr RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsUnavailable()
}
