package models

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingCredential means no API key is available for the caller.
	ErrMissingCredential = errors.New("missing credential")
	// ErrTimeout means an upstream call exceeded its deadline.
	ErrTimeout    = errors.New("upstream timeout")
	ErrNotFound   = errors.New("not found")
	ErrInvalidURL = errors.New("invalid url")

	ErrInvalidStrategy = errors.New("unknown strategy")
)

// UpstreamError reports a non-2xx response or an unusable body from a remote service.
// StatusCode is zero when the response itself was fine but its body was not.
type UpstreamError struct {
	Service    string
	StatusCode int
	Message    string
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: upstream status %d: %s", e.Service, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Service, e.Message)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// StorageError wraps a failure of a persistent cache tier.
type StorageError struct {
	Op  string
	Key string
	Err error
}

func (e *StorageError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("cache storage %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("cache storage %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// PersistenceError wraps a failed write of a client record.
type PersistenceError struct {
	ClientID string
	Err      error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist client %s: %v", e.ClientID, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// IsFallbackTrigger reports whether err from an acquisition call should be
// answered with synthetic data rather than surfaced.
func IsFallbackTrigger(err error) bool {
	if err == nil {
		return false
	}
	var upstream *UpstreamError
	return errors.Is(err, ErrMissingCredential) || errors.Is(err, ErrTimeout) || errors.As(err, &upstream)
}
