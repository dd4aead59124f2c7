// Package errors defines the error kinds surfaced by ingest and query code.
//
// Callers import it under an alias (apperrors) to keep the standard library
// errors package available.
package errors

import (
	stderrors "errors"
	"fmt"

	goerrors "github.com/go-errors/errors"
)

type Kind string

const (
	// KindSourceNotFound: the ingest input path does not exist.
	KindSourceNotFound Kind = "SOURCE_NOT_FOUND"
	// KindStoreUnavailable: the destination store cannot be opened or created.
	KindStoreUnavailable Kind = "STORE_UNAVAILABLE"
	// KindQueryFailed: a malformed aggregate request or an underlying store error.
	KindQueryFailed Kind = "QUERY_FAILED"
	// KindInsufficientData: a derived statistic needs a group that is empty.
	// This is a soft warning, never a fault.
	KindInsufficientData Kind = "INSUFFICIENT_DATA"
	// KindInvalidConfig: the pipeline config or the input header is unusable.
	KindInvalidConfig Kind = "INVALID_CONFIG"
)

type DomainError struct {
	Kind    Kind
	Message string
	Err     error
	Stack   []byte
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

func (e *DomainError) StackTrace() []byte {
	return e.Stack
}

// New builds a DomainError. The stack is taken from err when it already
// carries one, otherwise it is captured at the caller.
func New(kind Kind, message string, err error) *DomainError {
	var stack []byte
	if err != nil {
		var ge *goerrors.Error
		if stderrors.As(err, &ge) {
			stack = ge.Stack()
		} else {
			stack = goerrors.Wrap(err, 2).Stack()
		}
	} else {
		stack = goerrors.New(message).Stack()
	}

	return &DomainError{
		Kind:    kind,
		Message: message,
		Err:     err,
		Stack:   stack,
	}
}

func SourceNotFound(path string, err error) *DomainError {
	return New(KindSourceNotFound, fmt.Sprintf("source %q not found", path), err)
}

func StoreUnavailable(kind string, err error) *DomainError {
	return New(KindStoreUnavailable, fmt.Sprintf("store %q unavailable", kind), err)
}

func QueryFailed(query string, err error) *DomainError {
	return New(KindQueryFailed, fmt.Sprintf("query %q failed", query), err)
}

func InsufficientData(message string) *DomainError {
	return New(KindInsufficientData, message, nil)
}

func InvalidConfig(message string, err error) *DomainError {
	return New(KindInvalidConfig, message, err)
}

// KindOf returns the kind of the first DomainError in err's chain, or ""
// when there is none.
func KindOf(err error) Kind {
	var de *DomainError
	if stderrors.As(err, &de) {
		return de.Kind
	}
	return ""
}

// Is reports whether err's chain holds a DomainError of the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
