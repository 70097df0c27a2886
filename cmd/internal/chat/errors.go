package chat

import (
	"errors"
	"fmt"
)

// Sentinel error kinds (stable for errors.Is and API status mapping).
var (
	ErrInvalidInput = errors.New("invalid_input")
	ErrNotFound     = errors.New("not_found")
	ErrForbidden    = errors.New("forbidden")
)

// OpError carries a stable Op + Kind, mirroring the identity package.
type OpError struct {
	Op   string
	Kind error
	Msg  string
}

func (e OpError) Error() string {
	if e.Msg == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %s", e.Op, e.Kind, e.Msg)
}

func (e OpError) Unwrap() error { return e.Kind }

// NotFoundError reports a missing conversation or message.
type NotFoundError struct {
	Op       string
	Resource string
}

func (e NotFoundError) Error() string {
	if e.Resource == "" {
		return fmt.Sprintf("%s: %v", e.Op, ErrNotFound)
	}
	return fmt.Sprintf("%s: %v: %s", e.Op, ErrNotFound, e.Resource)
}

func (e NotFoundError) Unwrap() error { return ErrNotFound }

// ForbiddenError reports a caller acting outside their participation.
type ForbiddenError struct {
	Op  string
	Msg string
}

func (e ForbiddenError) Error() string {
	if e.Msg == "" {
		return fmt.Sprintf("%s: %v", e.Op, ErrForbidden)
	}
	return fmt.Sprintf("%s: %v: %s", e.Op, ErrForbidden, e.Msg)
}

func (e ForbiddenError) Unwrap() error { return ErrForbidden }

// IsNotFound reports whether err represents ErrNotFound.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsForbidden reports whether err represents ErrForbidden.
func IsForbidden(err error) bool { return errors.Is(err, ErrForbidden) }

// IsInvalidInput reports whether err represents ErrInvalidInput.
func IsInvalidInput(err error) bool { return errors.Is(err, ErrInvalidInput) }
