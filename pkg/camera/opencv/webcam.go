// Package opencv implements camera.Webcam on top of GoCV's VideoCapture.
package opencv

import (
	"context"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/teslashibe/go-automed/internal/log"
	"github.com/teslashibe/go-automed/pkg/camera"
	"gocv.io/x/gocv"
)

// Webcam captures from a local camera device.
//
// Play starts a capture goroutine that keeps only the most recent frame.
// Update converts that frame into the surface, so the inference loop never
// waits on the device.
type Webcam struct {
	cfg     camera.Config
	surface *camera.Surface

	mu      sync.Mutex
	capture *gocv.VideoCapture
	latest  gocv.Mat
	fresh   bool
	playing bool
	stopped bool
	quit    chan struct{}
	done    chan struct{}
}

// Read retry delays while the device returns no frames.
const (
	minReadBackoff = 10 * time.Millisecond
	maxReadBackoff = 500 * time.Millisecond
)

// readBackoff is the pause after the n-th consecutive failed read.
func readBackoff(n int) time.Duration {
	d := minReadBackoff
	for i := 1; i < n && d < maxReadBackoff; i++ {
		d *= 2
	}
	if d > maxReadBackoff {
		d = maxReadBackoff
	}
	return d
}

// New creates a webcam for cfg. Nothing is opened until Setup.
func New(cfg camera.Config) *Webcam {
	return &Webcam{
		cfg:     cfg,
		surface: camera.NewSurface(),
		latest:  gocv.NewMat(),
	}
}

// Factory adapts New to camera.Factory.
func Factory(cfg camera.Config) camera.Webcam {
	return New(cfg)
}

// Setup opens the device at the configured resolution.
func (w *Webcam) Setup(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return camera.ErrStopped
	}
	if w.capture != nil {
		return nil
	}

	vc, err := gocv.OpenVideoCapture(w.cfg.Device)
	if err != nil {
		return fmt.Errorf("%w: device %d: %v", camera.ErrCameraUnavailable, w.cfg.Device, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return fmt.Errorf("%w: device %d not opened", camera.ErrCameraUnavailable, w.cfg.Device)
	}

	vc.Set(gocv.VideoCaptureFrameWidth, float64(w.cfg.Width))
	vc.Set(gocv.VideoCaptureFrameHeight, float64(w.cfg.Height))
	vc.Set(gocv.VideoCaptureFPS, float64(w.cfg.Framerate))

	// Permission prompts on some platforms only fail at the first read.
	probe := gocv.NewMat()
	defer probe.Close()
	if ok := vc.Read(&probe); !ok || probe.Empty() {
		vc.Close()
		return fmt.Errorf("%w: device %d returned no frames", camera.ErrCameraUnavailable, w.cfg.Device)
	}

	w.capture = vc
	log.Info("camera opened",
		"device", w.cfg.Device,
		"width", vc.Get(gocv.VideoCaptureFrameWidth),
		"height", vc.Get(gocv.VideoCaptureFrameHeight),
	)
	return nil
}

// Play starts the capture goroutine.
func (w *Webcam) Play() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return camera.ErrStopped
	}
	if w.capture == nil {
		return camera.ErrNotSetUp
	}
	if w.playing {
		return nil
	}

	w.playing = true
	w.quit = make(chan struct{})
	w.done = make(chan struct{})
	go w.captureLoop(w.capture, w.quit, w.done)
	return nil
}

func (w *Webcam) captureLoop(vc *gocv.VideoCapture, quit <-chan struct{}, done chan struct{}) {
	defer close(done)

	img := gocv.NewMat()
	defer img.Close() // Crucial to close the image to avoid memory leaks

	errors, failing := 0, 0
	for {
		w.mu.Lock()
		playing := w.playing
		w.mu.Unlock()
		if !playing {
			return
		}

		if ok := vc.Read(&img); !ok || img.Empty() {
			errors++
			failing++
			if errors%100 == 1 {
				log.Warn("camera read failed", "device", w.cfg.Device, "errors", errors)
			}
			select {
			case <-quit:
				return
			case <-time.After(readBackoff(failing)):
			}
			continue
		}
		failing = 0

		w.mu.Lock()
		if w.playing {
			if w.cfg.Flip {
				gocv.Flip(img, &w.latest, 1)
			} else {
				img.CopyTo(&w.latest)
			}
			w.fresh = true
		}
		w.mu.Unlock()
	}
}

// Update moves the latest captured frame into the surface.
func (w *Webcam) Update() {
	w.mu.Lock()
	if w.stopped || !w.fresh || w.latest.Empty() {
		w.mu.Unlock()
		return
	}
	frame, err := w.toImage()
	w.fresh = false
	w.mu.Unlock()

	if err != nil {
		log.Warn("camera frame conversion failed", "error", err)
		return
	}
	w.surface.Set(frame)
}

// toImage converts the latest frame, resizing when the device ignored the
// requested resolution. Caller holds w.mu.
func (w *Webcam) toImage() (image.Image, error) {
	src := w.latest
	if src.Cols() != w.cfg.Width || src.Rows() != w.cfg.Height {
		resized := gocv.NewMat()
		defer resized.Close()
		gocv.Resize(src, &resized, image.Pt(w.cfg.Width, w.cfg.Height), 0, 0, gocv.InterpolationLinear)
		return resized.ToImage()
	}
	return src.ToImage()
}

// Stop halts streaming and releases the device. Safe to call repeatedly.
func (w *Webcam) Stop() {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	w.stopped = true
	w.playing = false
	if w.quit != nil {
		close(w.quit)
	}
	done := w.done
	vc := w.capture
	w.capture = nil
	w.mu.Unlock()

	// Reads return within one frame interval once playing is false.
	if done != nil {
		<-done
	}
	if vc != nil {
		vc.Close()
		log.Info("camera released", "device", w.cfg.Device)
	}

	w.mu.Lock()
	w.fresh = false
	w.latest.Close()
	w.mu.Unlock()
}

// Surface returns the frame surface.
func (w *Webcam) Surface() *camera.Surface {
	return w.surface
}

var _ camera.Webcam = (*Webcam)(nil)
