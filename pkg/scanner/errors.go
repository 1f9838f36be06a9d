package scanner

import (
	"errors"
	"fmt"

	"golang.org/x/xerrors"
)

// LoadFailureMessage is the single message shown when a scan cannot start.
const LoadFailureMessage = "Failed to load the model or start the camera. Please check your connection and make sure camera access is allowed."

// Sentinel errors for common conditions.
var (
	// ErrAlreadyRunning is returned by Start while a scan is loading or active.
	ErrAlreadyRunning = errors.New("scanner: already running")

	// ErrResourceLoad marks every model-fetch or camera-setup failure.
	ErrResourceLoad = errors.New("scanner: resource load failure")

	// ErrAborted is returned by Start when Stop interrupted the load.
	ErrAborted = errors.New("scanner: start aborted")
)

// LoadError is a resource load failure with the stage that failed.
type LoadError struct {
	// Stage is "model", "camera setup" or "camera play".
	Stage string
	Err   error
}

// Error implements the error interface.
func (e *LoadError) Error() string {
	return fmt.Sprint(e)
}

// Format prints the wrapped chain; %+v adds call frames.
func (e *LoadError) Format(f fmt.State, c rune) {
	xerrors.FormatError(e, f, c)
}

// FormatError implements xerrors.Formatter.
func (e *LoadError) FormatError(p xerrors.Printer) error {
	p.Printf("scanner: %s", e.Stage)
	return e.Err
}

// Unwrap returns the underlying error.
func (e *LoadError) Unwrap() error {
	return e.Err
}

// Is matches ErrResourceLoad.
func (e *LoadError) Is(target error) bool {
	return target == ErrResourceLoad
}
