package cache

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidCapacity is returned by Open when Capacity is not positive
	// or too large to index.
	ErrInvalidCapacity = errors.New("cache: capacity must be > 0")

	// ErrInvalidKeepAlive is returned by Open when KeepAlive is not positive.
	ErrInvalidKeepAlive = errors.New("cache: keep-alive must be > 0")

	// ErrNilRelease is returned by Open when no Release function is set.
	ErrNilRelease = errors.New("cache: Release function is required")

	// ErrNilPayload is returned by Put for a nil payload.
	ErrNilPayload = errors.New("cache: nil payload")

	// ErrPoolExhausted is returned by Put when every entry slot is in use.
	// The payload was not cached and still belongs to the caller.
	ErrPoolExhausted = errors.New("cache: entry pool exhausted")

	// ErrClosed is returned by Put after Close.
	ErrClosed = errors.New("cache: closed")
)

// OpError records a failed cache operation and the key it was for.
type OpError struct {
	Op  string
	Key Key
	Err error
}

func (e *OpError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Key, e.Err)
}

func (e *OpError) Unwrap() error { return e.Err }
