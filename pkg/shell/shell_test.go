package shell

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/teslashibe/go-automed/pkg/camera"
	"github.com/teslashibe/go-automed/pkg/classifier"
	"github.com/teslashibe/go-automed/pkg/scanner"
)

type countingStopper struct{ n int }

func (c *countingStopper) Stop() { c.n++ }

func TestParseScreen(t *testing.T) {
	assert.Equal(t, Home, ParseScreen(""))
	assert.Equal(t, Home, ParseScreen("home"))
	assert.Equal(t, Scanner, ParseScreen("scanner"))
	assert.Equal(t, Scanner, ParseScreen(" Scanner "))
	assert.Equal(t, Home, ParseScreen("settings"))
}

func TestShell_Navigate(t *testing.T) {
	stopper := &countingStopper{}
	s := New(stopper, nil)
	assert.Equal(t, Home, s.Current())

	var changes [][2]Screen
	s.OnChange(func(from, to Screen) { changes = append(changes, [2]Screen{from, to}) })

	assert.Equal(t, Scanner, s.Navigate("scanner"))
	assert.Equal(t, Scanner, s.Current())
	assert.Zero(t, stopper.n)

	s.Navigate("scanner") // no change
	assert.Len(t, changes, 1)

	assert.Equal(t, Home, s.Navigate("bogus"))
	assert.Equal(t, 1, stopper.n)
	assert.Equal(t, [][2]Screen{{Home, Scanner}, {Scanner, Home}}, changes)

	s.Navigate("home")
	assert.Equal(t, 1, stopper.n, "only leaving Scanner stops the session")
}

func TestShell_LeavingScannerReleasesCamera(t *testing.T) {
	defer goleak.VerifyNone(t)

	factory, webcams := camera.MockFactory(nil)
	cfg := scanner.DefaultConfig()
	cfg.Interval = time.Millisecond
	session := scanner.NewSession(
		classifier.NewMockLoader(classifier.NewMockModel("a", "b")),
		factory,
		scanner.WithConfig(cfg),
	)

	s := New(session, nil)
	s.Navigate("scanner")
	require.NoError(t, session.Start(context.Background()))
	require.Equal(t, scanner.StateActive, session.State())

	s.Navigate("home")

	assert.Equal(t, scanner.StateIdle, session.State())
	require.Len(t, *webcams, 1)
	assert.Equal(t, 1, (*webcams)[0].CallCount("Stop"))
	assert.Empty(t, session.Snapshot().Predictions)
}
