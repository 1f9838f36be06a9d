package classifier

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/teslashibe/go-automed/internal/httpc"
)

// HTTPLoader fetches a model over HTTP and compiles it with a Backend.
type HTTPLoader struct {
	client   *http.Client
	limit    int64
	backends []Backend
	logger   *slog.Logger
}

var _ Loader = (*HTTPLoader)(nil)

// NewLoader creates an HTTPLoader.
func NewLoader(opts ...Option) *HTTPLoader {
	cfg := DefaultConfig()
	cfg.Apply(opts...)

	client := cfg.Client
	if client == nil {
		client = httpc.NewClient(cfg.FetchTimeout)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &HTTPLoader{
		client:   client,
		limit:    cfg.BodyLimit,
		backends: cfg.Backends,
		logger:   logger.With("component", "classifier.loader"),
	}
}

// Load fetches topologyRef, metadataRef and the weight shards, then compiles
// the network. The returned Model reports exactly len(metadata.labels) classes.
func (l *HTTPLoader) Load(ctx context.Context, topologyRef, metadataRef string) (Model, error) {
	start := time.Now()

	raw, err := l.fetch(ctx, "topology", topologyRef)
	if err != nil {
		return nil, err
	}
	topo, err := ParseTopology(raw)
	if err != nil {
		return nil, err
	}

	raw, err = l.fetch(ctx, "metadata", metadataRef)
	if err != nil {
		return nil, err
	}
	meta, err := ParseMetadata(raw)
	if err != nil {
		return nil, err
	}

	backend := l.backendFor(topo.Format)
	if backend == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, topo.Format)
	}

	graph, err := topo.Graph()
	if err != nil {
		return nil, err
	}

	urls, err := topo.WeightURLs(topologyRef)
	if err != nil {
		return nil, err
	}
	var weights bytes.Buffer
	for _, u := range urls {
		shard, err := l.fetch(ctx, "weights", u)
		if err != nil {
			return nil, err
		}
		weights.Write(shard)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	net, err := backend.Compile(Spec{
		Topology: topo,
		Graph:    graph,
		Metadata: meta,
		Weights:  weights.Bytes(),
	})
	if err != nil {
		return nil, WrapBackend(backend.Name(), err)
	}

	if n := net.Classes(); n != len(meta.Labels) {
		net.Close()
		return nil, fmt.Errorf("%w: network has %d outputs, metadata lists %d labels",
			ErrClassCountMismatch, n, len(meta.Labels))
	}

	l.logger.Info("model loaded",
		"backend", backend.Name(),
		"format", topo.Format,
		"classes", len(meta.Labels),
		"image_size", meta.ImageSize,
		"weights_bytes", weights.Len(),
		"elapsed", time.Since(start),
	)

	return NewModel(meta, graph, net), nil
}

func (l *HTTPLoader) fetch(ctx context.Context, resource, url string) ([]byte, error) {
	data, err := httpc.Fetch(ctx, l.client, url, l.limit)
	if err != nil {
		return nil, &FetchError{Resource: resource, URL: url, Err: err}
	}
	l.logger.Debug("fetched", "resource", resource, "url", url, "bytes", len(data))
	return data, nil
}

func (l *HTTPLoader) backendFor(format string) Backend {
	for _, b := range l.backends {
		if b.Supports(format) {
			return b
		}
	}
	return nil
}
