package camera

import (
	"context"
	"errors"
)

// Sentinel errors for the capture lifecycle.
var (
	// ErrCameraUnavailable is returned by Setup when no device exists or access is denied.
	ErrCameraUnavailable = errors.New("camera: unavailable")

	// ErrNotSetUp is returned by Play before a successful Setup.
	ErrNotSetUp = errors.New("camera: not set up")

	// ErrStopped is returned when the webcam was already stopped.
	ErrStopped = errors.New("camera: stopped")
)

// Webcam is the capture adapter contract.
type Webcam interface {
	// Setup requests camera access at the configured resolution.
	Setup(ctx context.Context) error

	// Play begins streaming. Must follow a successful Setup.
	Play() error

	// Update advances the surface to the latest captured frame.
	// It never blocks on the device and is safe to call every tick.
	Update()

	// Stop releases the device and halts streaming. Idempotent.
	Stop()

	// Surface exposes the frame downstream components read.
	Surface() *Surface
}

// Factory creates a webcam for a config. The scanner creates a fresh webcam
// for every session start.
type Factory func(cfg Config) Webcam
