package opencv

import (
	"context"
	"errors"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/teslashibe/go-automed/pkg/camera"
)

// TestWebcam_MissingDevice checks that an absent device maps to ErrCameraUnavailable.
func TestWebcam_MissingDevice(t *testing.T) {
	cfg := camera.DefaultConfig()
	cfg.Device = 97

	w := New(cfg)
	defer w.Stop()

	err := w.Setup(context.Background())
	if err == nil {
		t.Skip("device 97 exists on this machine")
	}
	if !errors.Is(err, camera.ErrCameraUnavailable) {
		t.Errorf("Expected ErrCameraUnavailable, got %v", err)
	}

	if err := w.Play(); err != camera.ErrNotSetUp {
		t.Errorf("Expected ErrNotSetUp from Play, got %v", err)
	}
}

// TestWebcam_StopIdempotent verifies Stop can run before Setup and twice.
func TestWebcam_StopIdempotent(t *testing.T) {
	w := New(camera.DefaultConfig())
	w.Stop()
	w.Stop()

	if err := w.Setup(context.Background()); err != camera.ErrStopped {
		t.Errorf("Expected ErrStopped after Stop, got %v", err)
	}
	w.Update() // must not panic on a released frame
}

// TestWebcam_Capture needs a real camera: AUTOMED_TEST_CAMERA=<index>.
func TestWebcam_Capture(t *testing.T) {
	dev := os.Getenv("AUTOMED_TEST_CAMERA")
	if dev == "" {
		t.Skip("AUTOMED_TEST_CAMERA not set, skipping hardware test")
	}
	idx, err := strconv.Atoi(dev)
	if err != nil {
		t.Fatalf("bad AUTOMED_TEST_CAMERA: %v", err)
	}

	cfg := camera.DefaultConfig()
	cfg.Device = idx
	w := New(cfg)
	defer w.Stop()

	if err := w.Setup(context.Background()); err != nil {
		t.Fatalf("Setup failed: %v", err)
	}
	if err := w.Play(); err != nil {
		t.Fatalf("Play failed: %v", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for w.Surface().Version() == 0 && time.Now().Before(deadline) {
		w.Update()
		time.Sleep(20 * time.Millisecond)
	}

	size := w.Surface().Size()
	if size.X != cfg.Width || size.Y != cfg.Height {
		t.Errorf("Surface size: got %v, want %dx%d", size, cfg.Width, cfg.Height)
	}
}

// TestReadBackoff checks failed reads back off and stay bounded.
func TestReadBackoff(t *testing.T) {
	if got := readBackoff(1); got != minReadBackoff {
		t.Errorf("Expected %v after one failure, got %v", minReadBackoff, got)
	}
	if got := readBackoff(2); got != 2*minReadBackoff {
		t.Errorf("Expected %v after two failures, got %v", 2*minReadBackoff, got)
	}
	prev := time.Duration(0)
	for n := 1; n <= 50; n++ {
		got := readBackoff(n)
		if got < prev {
			t.Errorf("backoff shrank at %d: %v < %v", n, got, prev)
		}
		if got > maxReadBackoff {
			t.Errorf("backoff %v exceeds %v at %d", got, maxReadBackoff, n)
		}
		prev = got
	}
	if prev != maxReadBackoff {
		t.Errorf("Expected backoff to reach %v, got %v", maxReadBackoff, prev)
	}
}
