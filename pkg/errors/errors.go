// Package errors holds the sentinels shared by the repository backends and
// the HTTP layer, so the backends fail uniformly without importing each other.
package errors

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("entity not found")
	ErrEntityExists = errors.New("entity already exists")
	ErrEmptyKey     = errors.New("empty storage key")

	// ErrMalformedEntity means a stored value is not of the repository's type.
	ErrMalformedEntity = errors.New("malformed stored entity")
	// ErrInvalidRequest means an endpoint was handed a request of the wrong type.
	ErrInvalidRequest = errors.New("invalid request type")
)

// NotFound wraps ErrNotFound with the kind and key that were looked up.
func NotFound(kind, key string) error {
	return fmt.Errorf("%s %q: %w", kind, key, ErrNotFound)
}

// Exists wraps ErrEntityExists with the kind and key that collided.
func Exists(kind, key string) error {
	return fmt.Errorf("%s %q: %w", kind, key, ErrEntityExists)
}
