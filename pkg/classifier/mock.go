package classifier

import (
	"context"
	"image"
	"sync"
	"time"
)

// MockCall records a method invocation.
type MockCall struct {
	Method string
	Time   time.Time
}

type recorder struct {
	mu    sync.Mutex
	calls []MockCall
}

func (r *recorder) record(method string) {
	r.mu.Lock()
	r.calls = append(r.calls, MockCall{Method: method, Time: time.Now()})
	r.mu.Unlock()
}

// Calls returns all recorded calls.
func (r *recorder) Calls() []MockCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]MockCall(nil), r.calls...)
}

// CallCount returns the number of calls to a method.
func (r *recorder) CallCount(method string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

// MockModel implements Model for testing.
type MockModel struct {
	recorder

	// PredictFunc is called when Predict is invoked.
	// The default returns the same score (1/n) for every label.
	PredictFunc func(ctx context.Context, frame image.Image) ([]Prediction, error)

	labels []string
}

var _ Model = (*MockModel)(nil)

// NewMockModel creates a mock model with the given labels.
func NewMockModel(labels ...string) *MockModel {
	m := &MockModel{labels: labels}
	m.PredictFunc = func(ctx context.Context, frame image.Image) ([]Prediction, error) {
		return Uniform(labels), nil
	}
	return m
}

// Predict records the call and delegates to PredictFunc.
func (m *MockModel) Predict(ctx context.Context, frame image.Image) ([]Prediction, error) {
	m.record("Predict")
	return m.PredictFunc(ctx, frame)
}

// TotalClasses returns len(labels).
func (m *MockModel) TotalClasses() int { return len(m.labels) }

// Labels returns the labels.
func (m *MockModel) Labels() []string { return append([]string(nil), m.labels...) }

// Close records the call.
func (m *MockModel) Close() error {
	m.record("Close")
	return nil
}

// Uniform returns 1/n for each label.
func Uniform(labels []string) []Prediction {
	preds := make([]Prediction, len(labels))
	for i, l := range labels {
		preds[i] = Prediction{Label: l, Probability: 1 / float64(len(labels))}
	}
	return preds
}

// MockLoader implements Loader for testing.
type MockLoader struct {
	recorder

	// LoadFunc is called when Load is invoked.
	LoadFunc func(ctx context.Context, topologyRef, metadataRef string) (Model, error)
}

var _ Loader = (*MockLoader)(nil)

// NewMockLoader returns a loader that always yields model.
func NewMockLoader(model Model) *MockLoader {
	return &MockLoader{
		LoadFunc: func(ctx context.Context, topologyRef, metadataRef string) (Model, error) {
			return model, nil
		},
	}
}

// Load records the call and delegates to LoadFunc.
func (l *MockLoader) Load(ctx context.Context, topologyRef, metadataRef string) (Model, error) {
	l.record("Load")
	return l.LoadFunc(ctx, topologyRef, metadataRef)
}

// MockBackend implements Backend for testing.
type MockBackend struct {
	recorder

	// Formats lists supported topology formats.
	Formats []string

	// CompileFunc is called when Compile is invoked.
	CompileFunc func(spec Spec) (Network, error)
}

var _ Backend = (*MockBackend)(nil)

// Name returns "mock".
func (b *MockBackend) Name() string { return "mock" }

// Supports reports whether format is listed in Formats.
func (b *MockBackend) Supports(format string) bool {
	for _, f := range b.Formats {
		if f == format {
			return true
		}
	}
	return false
}

// Compile records the call and delegates to CompileFunc.
func (b *MockBackend) Compile(spec Spec) (Network, error) {
	b.record("Compile")
	return b.CompileFunc(spec)
}

// MockNetwork implements Network for testing.
type MockNetwork struct {
	recorder

	// Scores is returned by Infer.
	Scores []float32

	// Err, when set, is returned by Infer.
	Err error
}

var _ Network = (*MockNetwork)(nil)

// Infer records the call and returns Scores.
func (n *MockNetwork) Infer(frame image.Image) ([]float32, error) {
	n.record("Infer")
	if n.Err != nil {
		return nil, n.Err
	}
	return append([]float32(nil), n.Scores...), nil
}

// Classes returns len(Scores).
func (n *MockNetwork) Classes() int { return len(n.Scores) }

// Close records the call.
func (n *MockNetwork) Close() error {
	n.record("Close")
	return nil
}
