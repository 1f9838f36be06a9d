// Package classifier loads a pre-trained image classifier and runs it on
// camera frames.
//
// The contract is deliberately narrow:
//
//	model, _ := loader.Load(ctx, classifier.TopologyURL(base), classifier.MetadataURL(base))
//	defer model.Close()
//
//	preds, _ := model.Predict(ctx, frame) // one Prediction per class, label order of metadata.json
//
// HTTPLoader fetches the two description files (model.json and metadata.json)
// plus the weight files named by the manifest, then hands them to a Backend
// that turns them into an executable Network.
package classifier

import (
	"context"
	"image"
)

// Prediction is one (label, probability) pair for a frame.
type Prediction struct {
	Label       string  `json:"label"`
	Probability float64 `json:"probability"`
}

// Model is a loaded classifier.
type Model interface {
	// Predict classifies frame. The result has exactly TotalClasses entries,
	// in the order of Labels.
	Predict(ctx context.Context, frame image.Image) ([]Prediction, error)

	// TotalClasses is the number of classes the model reports.
	TotalClasses() int

	// Labels returns the class labels in prediction order.
	Labels() []string

	// Close releases the network.
	Close() error
}

// Loader turns the two description references into a Model.
type Loader interface {
	Load(ctx context.Context, topologyRef, metadataRef string) (Model, error)
}

// Backend compiles fetched model files into a Network.
type Backend interface {
	// Name identifies the backend in logs and config.
	Name() string

	// Supports reports whether the backend can run a topology format.
	Supports(format string) bool

	// Compile builds a network from the fetched files.
	Compile(spec Spec) (Network, error)
}

// Spec is everything a backend needs to compile a model.
type Spec struct {
	Topology *Topology
	Graph    Graph
	Metadata *Metadata
	Weights  []byte
}

// Network executes a compiled model on a frame.
// Implementations need not be safe for concurrent use; Model serialises calls.
type Network interface {
	// Infer returns one raw score per class.
	Infer(frame image.Image) ([]float32, error)

	// Classes is the size of the output layer.
	Classes() int

	// Close releases native resources.
	Close() error
}
