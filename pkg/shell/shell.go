// Package shell switches between the Home and Scanner screens.
package shell

import (
	"log/slog"
	"strings"
	"sync"
)

// Screen is a top-level screen.
type Screen string

// Screens. Anything else resolves to Home.
const (
	Home    Screen = "home"
	Scanner Screen = "scanner"
)

// ParseScreen maps an identifier to a Screen; unknown values fall back to Home.
func ParseScreen(id string) Screen {
	if Screen(strings.ToLower(strings.TrimSpace(id))) == Scanner {
		return Scanner
	}
	return Home
}

// Stopper is the part of the scanner session the shell needs.
type Stopper interface {
	Stop()
}

// Shell holds the current screen.
type Shell struct {
	scanner Stopper
	logger  *slog.Logger

	mu        sync.Mutex
	current   Screen
	listeners []func(from, to Screen)
}

// New creates a shell on the Home screen.
func New(scanner Stopper, logger *slog.Logger) *Shell {
	if logger == nil {
		logger = slog.Default()
	}
	return &Shell{
		scanner: scanner,
		logger:  logger.With("component", "shell"),
		current: Home,
	}
}

// Current returns the active screen.
func (s *Shell) Current() Screen {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Navigate switches to the screen named by id. Leaving Scanner stops the
// scanner session so no camera or loop outlives the screen.
func (s *Shell) Navigate(id string) Screen {
	to := ParseScreen(id)

	s.mu.Lock()
	from := s.current
	s.current = to
	listeners := append([]func(from, to Screen){}, s.listeners...)
	s.mu.Unlock()

	if from == to {
		return to
	}

	if from == Scanner && s.scanner != nil {
		s.scanner.Stop()
	}

	s.logger.Info("navigate", "from", from, "to", to)
	for _, fn := range listeners {
		fn(from, to)
	}
	return to
}

// OnChange registers fn for every screen change.
func (s *Shell) OnChange(fn func(from, to Screen)) {
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}
