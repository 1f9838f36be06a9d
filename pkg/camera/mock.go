package camera

import (
	"context"
	"image"
	"image/color"
	"sync"
	"time"
)

// Mock implements Webcam for testing. Each Update renders a solid frame whose
// colour changes with the frame counter.
type Mock struct {
	// SetupFunc is called when Setup is invoked.
	SetupFunc func(ctx context.Context) error

	// PlayFunc is called when Play is invoked.
	PlayFunc func() error

	// FrameFunc produces the frame for the n-th Update (1-based).
	FrameFunc func(n int) image.Image

	Config Config

	surface *Surface
	ready   bool
	playing bool
	stopped bool
	frames  int

	mu    sync.Mutex
	calls []MockCall
}

// MockCall records a method invocation.
type MockCall struct {
	Method string
	Time   time.Time
}

// NewMock creates a mock webcam that succeeds on every call.
func NewMock(cfg Config) *Mock {
	return &Mock{
		Config:  cfg,
		surface: NewSurface(),
	}
}

// MockFactory returns a Factory that hands out mocks and records them.
// The returned slice pointer sees every mock created so far.
func MockFactory(configure func(*Mock)) (Factory, *[]*Mock) {
	var mu sync.Mutex
	created := []*Mock{}
	f := func(cfg Config) Webcam {
		m := NewMock(cfg)
		if configure != nil {
			configure(m)
		}
		mu.Lock()
		created = append(created, m)
		mu.Unlock()
		return m
	}
	return f, &created
}

// Setup calls SetupFunc and records the call.
func (m *Mock) Setup(ctx context.Context) error {
	m.record("Setup")
	if m.SetupFunc != nil {
		if err := m.SetupFunc(ctx); err != nil {
			return err
		}
	}
	m.mu.Lock()
	m.ready = true
	m.mu.Unlock()
	return nil
}

// Play calls PlayFunc and records the call.
func (m *Mock) Play() error {
	m.record("Play")
	m.mu.Lock()
	ready := m.ready
	m.mu.Unlock()
	if !ready {
		return ErrNotSetUp
	}
	if m.PlayFunc != nil {
		if err := m.PlayFunc(); err != nil {
			return err
		}
	}
	m.mu.Lock()
	m.playing = true
	m.mu.Unlock()
	return nil
}

// Update renders the next frame into the surface while playing.
func (m *Mock) Update() {
	m.record("Update")

	m.mu.Lock()
	if !m.playing || m.stopped {
		m.mu.Unlock()
		return
	}
	m.frames++
	n := m.frames
	m.mu.Unlock()

	var img image.Image
	if m.FrameFunc != nil {
		img = m.FrameFunc(n)
	} else {
		img = solidFrame(m.Config.Width, m.Config.Height, uint8(n))
	}
	m.surface.Set(img)
}

// Stop records the call and marks the webcam stopped.
func (m *Mock) Stop() {
	m.record("Stop")
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopped = true
	m.playing = false
}

// Surface returns the mock's surface.
func (m *Mock) Surface() *Surface {
	return m.surface
}

// Stopped reports whether Stop was called.
func (m *Mock) Stopped() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopped
}

// record adds a call to the tracking list.
func (m *Mock) record(method string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, MockCall{
		Method: method,
		Time:   time.Now(),
	})
}

// Calls returns all recorded method calls.
func (m *Mock) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]MockCall, len(m.calls))
	copy(result, m.calls)
	return result
}

// CallCount returns the number of times a method was called.
func (m *Mock) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, c := range m.calls {
		if c.Method == method {
			count++
		}
	}
	return count
}

func solidFrame(w, h int, shade uint8) image.Image {
	if w <= 0 || h <= 0 {
		w, h = 4, 4
	}
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	c := color.RGBA{R: shade, G: 128, B: 255 - shade, A: 255}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

// Verify Mock implements Webcam at compile time.
var _ Webcam = (*Mock)(nil)
