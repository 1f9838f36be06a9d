package classifier

import (
	"errors"
	"fmt"
)

// Sentinel errors for common conditions.
var (
	// ErrInvalidTopology is returned when model.json is malformed.
	ErrInvalidTopology = errors.New("classifier: invalid model topology")

	// ErrInvalidMetadata is returned when metadata.json is malformed.
	ErrInvalidMetadata = errors.New("classifier: invalid model metadata")

	// ErrUnsupportedFormat is returned when no backend can run the topology format.
	ErrUnsupportedFormat = errors.New("classifier: unsupported model format")

	// ErrClassCountMismatch is returned when the network's output size differs
	// from the number of labels.
	ErrClassCountMismatch = errors.New("classifier: class count mismatch")

	// ErrEmptyFrame is returned by Predict for a nil or empty frame.
	ErrEmptyFrame = errors.New("classifier: empty frame")

	// ErrClosed is returned by Predict after Close.
	ErrClosed = errors.New("classifier: model closed")
)

// FetchError wraps a failed download of one model resource.
type FetchError struct {
	// Resource is "topology", "metadata" or "weights".
	Resource string
	URL      string
	Err      error
}

// Error implements the error interface.
func (e *FetchError) Error() string {
	return fmt.Sprintf("classifier: fetch %s %s: %v", e.Resource, e.URL, e.Err)
}

// Unwrap returns the underlying error.
func (e *FetchError) Unwrap() error {
	return e.Err
}

// BackendError wraps an error with backend context.
type BackendError struct {
	Backend string
	Err     error
}

// Error implements the error interface.
func (e *BackendError) Error() string {
	return fmt.Sprintf("classifier [%s]: %v", e.Backend, e.Err)
}

// Unwrap returns the underlying error.
func (e *BackendError) Unwrap() error {
	return e.Err
}

// WrapBackend wraps an error with backend context.
func WrapBackend(backend string, err error) error {
	if err == nil {
		return nil
	}
	return &BackendError{Backend: backend, Err: err}
}
