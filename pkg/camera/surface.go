package camera

import (
	"bytes"
	"errors"
	"image"
	"image/draw"
	"image/jpeg"
	"sync"
)

// ErrNoFrame is returned when the surface has not received a frame yet.
var ErrNoFrame = errors.New("camera: no frame yet")

// Surface is the addressable pixel buffer a webcam renders into.
// Only the owning webcam writes it; readers get copies.
type Surface struct {
	mu      sync.RWMutex
	img     *image.RGBA
	version uint64
}

// NewSurface creates an empty surface.
func NewSurface() *Surface {
	return &Surface{}
}

// Set replaces the surface contents with img. The buffer is reused when the
// bounds do not change.
func (s *Surface) Set(img image.Image) {
	if img == nil {
		return
	}
	b := img.Bounds()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.img == nil || s.img.Bounds().Size() != b.Size() {
		s.img = image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	}
	draw.Draw(s.img, s.img.Bounds(), img, b.Min, draw.Src)
	s.version++
}

// Image returns a copy of the current frame, or nil before the first frame.
func (s *Surface) Image() image.Image {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.img == nil {
		return nil
	}
	cp := image.NewRGBA(s.img.Bounds())
	copy(cp.Pix, s.img.Pix)
	return cp
}

// Version increments every time a frame is written.
func (s *Surface) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Size returns the frame size, zero before the first frame.
func (s *Surface) Size() image.Point {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.img == nil {
		return image.Point{}
	}
	return s.img.Bounds().Size()
}

// JPEG encodes the current frame for previews.
func (s *Surface) JPEG(quality int) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.img == nil {
		return nil, ErrNoFrame
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, s.img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
