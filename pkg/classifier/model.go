package classifier

import (
	"context"
	"fmt"
	"image"
	"sync"
)

// NetModel adapts a compiled Network to the Model interface.
type NetModel struct {
	meta  *Metadata
	graph Graph

	mu     sync.Mutex // net is not safe for concurrent use
	net    Network
	closed bool
}

var _ Model = (*NetModel)(nil)

// NewModel wraps net. It takes ownership and closes it on Close.
func NewModel(meta *Metadata, graph Graph, net Network) *NetModel {
	return &NetModel{meta: meta, graph: graph, net: net}
}

// Predict runs the network on frame and pairs the scores with the labels.
// Scores are returned as produced by the network.
func (m *NetModel) Predict(ctx context.Context, frame image.Image) ([]Prediction, error) {
	if frame == nil || frame.Bounds().Empty() {
		return nil, ErrEmptyFrame
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrClosed
	}

	scores, err := m.net.Infer(frame)
	if err != nil {
		return nil, err
	}
	if len(scores) != len(m.meta.Labels) {
		return nil, fmt.Errorf("%w: got %d scores for %d labels",
			ErrClassCountMismatch, len(scores), len(m.meta.Labels))
	}

	preds := make([]Prediction, len(scores))
	for i, s := range scores {
		preds[i] = Prediction{Label: m.meta.Labels[i], Probability: float64(s)}
	}
	return preds, nil
}

// TotalClasses returns the number of labels.
func (m *NetModel) TotalClasses() int {
	return len(m.meta.Labels)
}

// Labels returns a copy of the labels.
func (m *NetModel) Labels() []string {
	return append([]string(nil), m.meta.Labels...)
}

// Metadata returns the parsed metadata.json.
func (m *NetModel) Metadata() Metadata {
	return *m.meta
}

// Close releases the network. Safe to call more than once.
func (m *NetModel) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true
	return m.net.Close()
}
