package scanner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/teslashibe/go-automed/pkg/camera"
	"github.com/teslashibe/go-automed/pkg/classifier"
)

// DefaultInterval is one cycle per 60 Hz display refresh.
const DefaultInterval = time.Second / 60

// PublishFunc receives the predictions of one cycle.
type PublishFunc func(t *Task, preds []classifier.Prediction)

// FailFunc is called from the loop goroutine when the loop ends on an error.
type FailFunc func(t *Task, err error)

// Loop runs the frame, predict, publish cycle.
type Loop struct {
	webcam   camera.Webcam
	model    classifier.Model
	interval time.Duration
	publish  PublishFunc
	fail     FailFunc
	logger   *slog.Logger
}

// NewLoop creates a loop. interval <= 0 uses DefaultInterval.
func NewLoop(webcam camera.Webcam, model classifier.Model, interval time.Duration, publish PublishFunc, fail FailFunc, logger *slog.Logger) *Loop {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{
		webcam:   webcam,
		model:    model,
		interval: interval,
		publish:  publish,
		fail:     fail,
		logger:   logger,
	}
}

// Start launches the loop goroutine and returns its handle.
// The first cycle runs immediately.
func (l *Loop) Start(ctx context.Context) *Task {
	ctx, cancel := context.WithCancel(ctx)
	t := &Task{
		cancel: cancel,
		done:   make(chan struct{}),
	}
	t.alive.Store(true)

	go l.run(ctx, t)
	return t
}

func (l *Loop) run(ctx context.Context, t *Task) {
	defer close(t.done)
	defer t.alive.Store(false)

	// A ticker drops ticks while a cycle is busy, so cycles never queue up.
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		if !t.Alive() {
			return
		}

		if err := l.cycle(ctx, t); err != nil {
			t.setErr(err)
			t.alive.Store(false)
			l.logger.Error("inference loop failed", "error", err, "cycles", t.Cycles())
			if l.fail != nil {
				l.fail(t, err)
			}
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// cycle advances the frame, runs inference and publishes. Only a broken
// model contract is returned as an error; anything else skips the frame.
func (l *Loop) cycle(ctx context.Context, t *Task) error {
	l.webcam.Update()

	frame := l.webcam.Surface().Image()
	if frame == nil {
		return nil
	}

	preds, err := l.model.Predict(ctx, frame)
	if !t.Alive() || ctx.Err() != nil {
		if err == nil {
			l.logger.Debug("discarding result after stop")
		}
		return nil
	}
	if err != nil {
		if errors.Is(err, classifier.ErrClassCountMismatch) {
			return err
		}
		n := t.skipped.Add(1)
		l.logger.Warn("inference failed, skipping frame", "error", err, "skipped", n)
		return nil
	}
	if want := l.model.TotalClasses(); len(preds) != want {
		return fmt.Errorf("%w: %d predictions for %d classes", classifier.ErrClassCountMismatch, len(preds), want)
	}

	t.cycles.Add(1)
	if l.publish != nil {
		l.publish(t, preds)
	}
	return nil
}

// Task is the handle of a running loop. Stop invalidates it.
type Task struct {
	cancel context.CancelFunc
	done   chan struct{}

	alive   atomic.Bool
	cycles  atomic.Uint64
	skipped atomic.Uint64

	mu  sync.Mutex
	err error
}

// Stop cancels the loop. Idempotent and safe while a cycle is in flight;
// a result that arrives afterwards is discarded.
func (t *Task) Stop() {
	t.alive.Store(false)
	t.cancel()
}

// Alive reports whether results of this task may still be published.
func (t *Task) Alive() bool {
	return t.alive.Load()
}

// Wait blocks until the loop goroutine has exited.
func (t *Task) Wait() {
	<-t.done
}

// Done is closed when the loop goroutine exits.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Cycles is the number of published cycles.
func (t *Task) Cycles() uint64 {
	return t.cycles.Load()
}

// Skipped is the number of frames dropped because inference failed.
func (t *Task) Skipped() uint64 {
	return t.skipped.Load()
}

// Err is the error that ended the loop, if any.
func (t *Task) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

func (t *Task) setErr(err error) {
	t.mu.Lock()
	t.err = err
	t.mu.Unlock()
}
