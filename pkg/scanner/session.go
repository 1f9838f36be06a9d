// Package scanner owns the camera and the classifier for one scan at a time.
//
// A Session moves through Idle, ModelLoading, Active and Error. Start loads
// the model, opens the camera and launches the inference Loop; Stop tears all
// of it down. Subscribers receive an immutable Snapshot on every change.
package scanner

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/xerrors"

	"github.com/teslashibe/go-automed/pkg/camera"
	"github.com/teslashibe/go-automed/pkg/classifier"
)

// State is the scanner session state.
type State int

// Session states. Idle is the zero value.
const (
	StateIdle State = iota
	StateModelLoading
	StateActive
	StateError
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateModelLoading:
		return "loading"
	case StateActive:
		return "active"
	case StateError:
		return "error"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Snapshot is an immutable view of the session.
type Snapshot struct {
	SessionID   string                  `json:"sessionId,omitempty"`
	State       State                   `json:"state"`
	Error       string                  `json:"error,omitempty"`
	Predictions []classifier.Prediction `json:"predictions"`
	Cycles      uint64                  `json:"cycles"`
	Seq         uint64                  `json:"seq"`
	UpdatedAt   time.Time               `json:"updatedAt"`
}

// Running reports whether the session holds the camera.
func (s Snapshot) Running() bool {
	return s.State == StateModelLoading || s.State == StateActive
}

// Config locates the model and sets the loop rate.
type Config struct {
	TopologyURL string
	MetadataURL string
	Camera      camera.Config
	Interval    time.Duration
}

// DefaultConfig uses the published model and the mirrored 400x400 camera.
func DefaultConfig() Config {
	return Config{
		TopologyURL: classifier.TopologyURL(classifier.DefaultModelURL),
		MetadataURL: classifier.MetadataURL(classifier.DefaultModelURL),
		Camera:      camera.DefaultConfig(),
		Interval:    DefaultInterval,
	}
}

// Option configures a Session.
type Option func(*Session)

// WithConfig replaces the session config.
func WithConfig(cfg Config) Option {
	return func(s *Session) { s.cfg = cfg }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) { s.logger = l }
}

// Session is the single scanner of the process.
type Session struct {
	loader  classifier.Loader
	webcams camera.Factory
	cfg     Config
	logger  *slog.Logger

	mu         sync.Mutex
	id         string
	state      State
	errMsg     string
	gen        uint64
	seq        uint64
	cancelLoad context.CancelFunc
	webcam     camera.Webcam
	model      classifier.Model
	task       *Task
	preds      []classifier.Prediction
	updated    time.Time

	subMu  sync.Mutex
	subs   map[int]func(Snapshot)
	nextID int
}

// NewSession creates an idle session. webcams is called once per Start.
func NewSession(loader classifier.Loader, webcams camera.Factory, opts ...Option) *Session {
	s := &Session{
		loader:  loader,
		webcams: webcams,
		cfg:     DefaultConfig(),
		logger:  slog.Default(),
		subs:    make(map[int]func(Snapshot)),
		updated: time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "scanner")
	return s
}

// Start loads the model, opens the camera and starts the loop. It blocks
// until the session is Active or has failed. While a scan is loading or
// active it returns ErrAlreadyRunning and opens nothing.
//
// ctx bounds the loading phase only; the loop runs until Stop.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state == StateModelLoading || s.state == StateActive {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}

	s.gen++
	gen := s.gen
	loadCtx, cancel := context.WithCancel(ctx)
	s.cancelLoad = cancel
	s.id = uuid.NewString()
	s.state = StateModelLoading
	s.errMsg = ""
	s.preds = nil
	id := s.id
	s.touchLocked()
	snap := s.snapshotLocked()
	s.mu.Unlock()

	defer cancel()
	s.notify(snap)

	logger := s.logger.With("session", id)
	logger.Info("starting scan", "model", s.cfg.TopologyURL)
	start := time.Now()

	model, webcam, err := s.acquire(loadCtx, logger)

	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		release(webcam, model)
		logger.Info("scan start aborted")
		return ErrAborted
	}
	s.cancelLoad = nil

	if err != nil {
		s.state = StateError
		s.errMsg = LoadFailureMessage
		s.touchLocked()
		snap := s.snapshotLocked()
		s.mu.Unlock()

		logger.Error("scan failed to start", "error", fmt.Sprintf("%+v", err))
		s.notify(snap)
		return err
	}

	labels := model.Labels()
	preds := make([]classifier.Prediction, len(labels))
	for i, l := range labels {
		preds[i] = classifier.Prediction{Label: l}
	}

	s.webcam = webcam
	s.model = model
	s.preds = preds
	s.state = StateActive

	loop := NewLoop(webcam, model, s.cfg.Interval, s.publish, s.fail, logger)
	s.task = loop.Start(context.Background())
	s.touchLocked()
	snap = s.snapshotLocked()
	s.mu.Unlock()

	logger.Info("scan active", "classes", len(labels), "elapsed", time.Since(start))
	s.notify(snap)
	return nil
}

// acquire loads the model and opens the camera, releasing whatever was
// acquired when a later step fails.
func (s *Session) acquire(ctx context.Context, logger *slog.Logger) (classifier.Model, camera.Webcam, error) {
	model, err := s.loader.Load(ctx, s.cfg.TopologyURL, s.cfg.MetadataURL)
	if err != nil {
		return nil, nil, &LoadError{Stage: "model", Err: xerrors.Errorf("load %s: %w", s.cfg.TopologyURL, err)}
	}
	if n, labels := model.TotalClasses(), len(model.Labels()); n != labels {
		release(nil, model)
		return nil, nil, &LoadError{Stage: "model", Err: xerrors.Errorf("%d classes for %d labels: %w", n, labels, classifier.ErrClassCountMismatch)}
	}
	logger.Debug("model loaded", "classes", model.TotalClasses())

	webcam := s.webcams(s.cfg.Camera)
	if err := webcam.Setup(ctx); err != nil {
		release(webcam, model)
		return nil, nil, &LoadError{Stage: "camera setup", Err: xerrors.Errorf("device %d: %w", s.cfg.Camera.Device, err)}
	}
	if err := webcam.Play(); err != nil {
		release(webcam, model)
		return nil, nil, &LoadError{Stage: "camera play", Err: xerrors.Errorf("device %d: %w", s.cfg.Camera.Device, err)}
	}
	return model, webcam, nil
}

// Stop cancels the loop, releases the camera and closes the model.
// The session returns to Idle with no predictions. Idempotent.
func (s *Session) Stop() {
	s.mu.Lock()
	if s.state == StateIdle {
		s.mu.Unlock()
		return
	}

	s.gen++
	cancelLoad, task, webcam, model := s.cancelLoad, s.task, s.webcam, s.model
	s.cancelLoad, s.task, s.webcam, s.model = nil, nil, nil, nil
	prev := s.state
	s.state = StateIdle
	s.errMsg = ""
	s.preds = nil
	s.touchLocked()
	snap := s.snapshotLocked()
	s.mu.Unlock()

	if cancelLoad != nil {
		cancelLoad()
	}
	if task != nil {
		task.Stop()
		task.Wait()
	}
	release(webcam, model)

	s.logger.Info("scan stopped", "session", snap.SessionID, "from", prev)
	s.notify(snap)
}

func release(webcam camera.Webcam, model classifier.Model) {
	if webcam != nil {
		webcam.Stop()
	}
	if model != nil {
		model.Close()
	}
}

// publish stores a cycle's predictions if t is still the session's task.
func (s *Session) publish(t *Task, preds []classifier.Prediction) {
	s.mu.Lock()
	if s.task != t || !t.Alive() {
		s.mu.Unlock()
		return
	}
	s.preds = preds
	s.touchLocked()
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.notify(snap)
}

// fail moves an active session to Error when its loop dies.
// Runs on the loop goroutine, so it must not wait for the task.
func (s *Session) fail(t *Task, err error) {
	s.mu.Lock()
	if s.task != t {
		s.mu.Unlock()
		return
	}
	s.gen++
	webcam, model := s.webcam, s.model
	s.task, s.webcam, s.model = nil, nil, nil
	s.state = StateError
	s.errMsg = LoadFailureMessage
	s.preds = nil
	s.touchLocked()
	snap := s.snapshotLocked()
	s.mu.Unlock()

	release(webcam, model)
	s.logger.Error("scan aborted by model error", "session", snap.SessionID, "error", err)
	s.notify(snap)
}

// Snapshot returns the current state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// touchLocked marks a change; every mutation calls it before notifying.
func (s *Session) touchLocked() {
	s.seq++
	s.updated = time.Now()
}

func (s *Session) snapshotLocked() Snapshot {
	var cycles uint64
	if s.task != nil {
		cycles = s.task.Cycles()
	}
	return Snapshot{
		SessionID:   s.id,
		State:       s.state,
		Error:       s.errMsg,
		Predictions: append([]classifier.Prediction(nil), s.preds...),
		Cycles:      cycles,
		Seq:         s.seq,
		UpdatedAt:   s.updated,
	}
}

// Frame returns a copy of the latest camera frame, or nil when not active.
func (s *Session) Frame() image.Image {
	s.mu.Lock()
	webcam := s.webcam
	s.mu.Unlock()

	if webcam == nil {
		return nil
	}
	return webcam.Surface().Image()
}

// FrameJPEG encodes the latest frame for previews.
func (s *Session) FrameJPEG() ([]byte, error) {
	s.mu.Lock()
	webcam := s.webcam
	s.mu.Unlock()

	if webcam == nil {
		return nil, camera.ErrNoFrame
	}
	return webcam.Surface().JPEG(s.cfg.Camera.Quality)
}

// Subscribe registers fn for every snapshot. fn runs on the goroutine that
// caused the change and must not block. The returned func unsubscribes.
func (s *Session) Subscribe(fn func(Snapshot)) (cancel func()) {
	s.subMu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.subMu.Unlock()

	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

func (s *Session) notify(snap Snapshot) {
	s.subMu.Lock()
	fns := make([]func(Snapshot), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()

	for _, fn := range fns {
		fn(snap)
	}
}
