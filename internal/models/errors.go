package models

import (
	"errors"
	"fmt"
)

// Sentinel errors for common failure modes.
var (
	ErrNoProductURL = errors.New("product URL not found")
	ErrNoReviews    = errors.New("no reviews section found")
)

// APIError wraps a failed call against one of the retailer endpoints.
type APIError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *APIError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("api error for %s (status %d): %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("api error for %s: %v", e.URL, e.Err)
}

func (e *APIError) Unwrap() error { return e.Err }

// StorageError wraps a failed artifact or document-store write.
type StorageError struct {
	Backend string
	Err     error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error (%s): %v", e.Backend, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }
