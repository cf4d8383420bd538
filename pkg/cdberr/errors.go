// Package cdberr defines the error taxonomy shared across the storage,
// vector, cognitive, and broker subsystems.
package cdberr

import (
	"errors"
	"fmt"
)

// Kind classifies an error by the boundary that should act on it.
type Kind string

const (
	Storage         Kind = "storage"
	Query           Kind = "query"
	Serialization   Kind = "serialization"
	Deserialization Kind = "deserialization"
	Registry        Kind = "registry"
	Transport       Kind = "transport"
	Authentication  Kind = "authentication"
	RateLimited     Kind = "rate_limited"
	InvalidResponse Kind = "invalid_response"
	Timeout         Kind = "timeout"
)

// Error is a kind-tagged error. Wrap an underlying cause with Err when one
// exists so callers can still errors.Is/As through it.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds a bare kind-tagged error.
func New(kind Kind, msg string) error {
	return &Error{Kind: kind, Msg: msg}
}

// Wrap attaches a kind to an existing error.
func Wrap(kind Kind, msg string, err error) error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// Common sentinels referenced by multiple packages.
var (
	ErrNotFound         = errors.New("not found")
	ErrAuthFailed       = New(Authentication, "Authentication failed")
	ErrCapacityExceeded = errors.New("capacity exceeded")
)
