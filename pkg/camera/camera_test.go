package camera

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 400, cfg.Width)
	assert.Equal(t, 400, cfg.Height)
	assert.True(t, cfg.Flip, "scanner preview is mirrored")
	assert.Empty(t, cfg.Validate())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errors int
	}{
		{"valid", func(c *Config) {}, 0},
		{"negative device", func(c *Config) { c.Device = -1 }, 1},
		{"tiny width", func(c *Config) { c.Width = 10 }, 1},
		{"huge height", func(c *Config) { c.Height = 10000 }, 1},
		{"zero framerate", func(c *Config) { c.Framerate = 0 }, 1},
		{"bad quality", func(c *Config) { c.Quality = 101 }, 1},
		{"everything wrong", func(c *Config) {
			c.Device, c.Width, c.Height, c.Framerate, c.Quality = -1, 1, 1, 0, 0
		}, 5},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(&cfg)
			assert.Len(t, cfg.Validate(), tc.errors)
		})
	}
}

func TestPresets(t *testing.T) {
	for _, name := range PresetNames() {
		t.Run(name, func(t *testing.T) {
			cfg := GetPreset(name)
			require.NotNil(t, cfg)
			assert.Empty(t, cfg.Validate())
		})
	}

	assert.Nil(t, GetPreset("8k"))
	assert.False(t, GetPreset(PresetNoFlip).Flip)
}

func TestSurface(t *testing.T) {
	s := NewSurface()
	assert.Nil(t, s.Image())
	assert.Equal(t, image.Point{}, s.Size())

	_, err := s.JPEG(80)
	assert.ErrorIs(t, err, ErrNoFrame)

	src := image.NewRGBA(image.Rect(10, 10, 30, 20))
	src.SetRGBA(10, 10, color.RGBA{R: 200, A: 255})
	s.Set(src)

	assert.Equal(t, uint64(1), s.Version())
	assert.Equal(t, image.Pt(20, 10), s.Size())

	got := s.Image().(*image.RGBA)
	assert.Equal(t, color.RGBA{R: 200, A: 255}, got.RGBAAt(0, 0), "origin is normalised to 0,0")

	// Readers get copies.
	got.SetRGBA(0, 0, color.RGBA{G: 1, A: 255})
	again := s.Image().(*image.RGBA)
	assert.Equal(t, color.RGBA{R: 200, A: 255}, again.RGBAAt(0, 0))

	data, err := s.JPEG(80)
	require.NoError(t, err)
	decoded, err := jpeg.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, image.Pt(20, 10), decoded.Bounds().Size())

	s.Set(nil)
	assert.Equal(t, uint64(1), s.Version(), "nil frames are ignored")
}

func TestMock_Lifecycle(t *testing.T) {
	m := NewMock(DefaultConfig())

	assert.ErrorIs(t, m.Play(), ErrNotSetUp)

	require.NoError(t, m.Setup(context.Background()))
	require.NoError(t, m.Play())

	m.Update()
	m.Update()
	assert.Equal(t, uint64(2), m.Surface().Version())
	assert.Equal(t, image.Pt(400, 400), m.Surface().Size())

	m.Stop()
	m.Stop()
	assert.True(t, m.Stopped())
	assert.Equal(t, 2, m.CallCount("Stop"))

	m.Update()
	assert.Equal(t, uint64(2), m.Surface().Version(), "no frames after stop")
}

func TestMock_SetupFailure(t *testing.T) {
	m := NewMock(DefaultConfig())
	m.SetupFunc = func(ctx context.Context) error { return ErrCameraUnavailable }

	err := m.Setup(context.Background())
	assert.True(t, errors.Is(err, ErrCameraUnavailable))
	assert.ErrorIs(t, m.Play(), ErrNotSetUp)
}

func TestMockFactory(t *testing.T) {
	factory, created := MockFactory(func(m *Mock) {
		m.PlayFunc = func() error { return nil }
	})

	a := factory(DefaultConfig())
	b := factory(VGAConfig())

	require.Len(t, *created, 2)
	assert.Same(t, a, (*created)[0])
	assert.Same(t, b, (*created)[1])
	assert.Equal(t, 640, (*created)[1].Config.Width)
}
