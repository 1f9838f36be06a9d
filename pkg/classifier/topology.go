package classifier

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
)

// Topology formats understood by the bundled backends.
const (
	FormatONNX       = "onnx"
	FormatTensorflow = "tensorflow"
	// FormatLayersModel is the TF.js layers format exported by default.
	// No bundled backend executes it; export the model as ONNX instead.
	FormatLayersModel = "layers-model"
)

// Tensor layouts for the input image.
const (
	LayoutNHWC = "nhwc"
	LayoutNCHW = "nchw"
)

// Topology is the decoded model.json.
type Topology struct {
	Format          string          `json:"format"`
	GeneratedBy     string          `json:"generatedBy"`
	ConvertedBy     string          `json:"convertedBy"`
	ModelTopology   json.RawMessage `json:"modelTopology"`
	WeightsManifest []WeightsGroup  `json:"weightsManifest"`
}

// WeightsGroup lists the shard files of one weights group.
type WeightsGroup struct {
	Paths []string `json:"paths"`
}

// Graph describes the input and output tensors of a graph model.
type Graph struct {
	Input  string `json:"input"`
	Output string `json:"output"`
	Layout string `json:"layout"`
}

// ParseTopology decodes and validates model.json.
func ParseTopology(data []byte) (*Topology, error) {
	var topo Topology
	if err := json.Unmarshal(data, &topo); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTopology, err)
	}

	topo.Format = strings.ToLower(strings.TrimSpace(topo.Format))
	if topo.Format == "" {
		return nil, fmt.Errorf("%w: missing format", ErrInvalidTopology)
	}

	if len(topo.WeightPaths()) == 0 {
		return nil, fmt.Errorf("%w: weights manifest lists no files", ErrInvalidTopology)
	}

	return &topo, nil
}

// WeightPaths returns every shard path in manifest order.
func (t *Topology) WeightPaths() []string {
	var paths []string
	for _, g := range t.WeightsManifest {
		for _, p := range g.Paths {
			if p = strings.TrimSpace(p); p != "" {
				paths = append(paths, p)
			}
		}
	}
	return paths
}

// WeightURLs resolves the shard paths against the topology URL.
func (t *Topology) WeightURLs(topologyURL string) ([]string, error) {
	base, err := url.Parse(topologyURL)
	if err != nil {
		return nil, fmt.Errorf("%w: bad topology url: %v", ErrInvalidTopology, err)
	}

	paths := t.WeightPaths()
	urls := make([]string, 0, len(paths))
	for _, p := range paths {
		ref, err := url.Parse(p)
		if err != nil {
			return nil, fmt.Errorf("%w: bad weights path %q: %v", ErrInvalidTopology, p, err)
		}
		urls = append(urls, base.ResolveReference(ref).String())
	}
	return urls, nil
}

// Graph decodes the tensor description from modelTopology, filling defaults.
// A missing modelTopology is allowed; backends then use the model's own names.
func (t *Topology) Graph() (Graph, error) {
	var g Graph
	if len(t.ModelTopology) > 0 && string(t.ModelTopology) != "null" {
		if err := json.Unmarshal(t.ModelTopology, &g); err != nil {
			return Graph{}, fmt.Errorf("%w: modelTopology: %v", ErrInvalidTopology, err)
		}
	}

	g.Layout = strings.ToLower(g.Layout)
	switch g.Layout {
	case "":
		g.Layout = LayoutNHWC
	case LayoutNHWC, LayoutNCHW:
	default:
		return Graph{}, fmt.Errorf("%w: unknown layout %q", ErrInvalidTopology, g.Layout)
	}
	return g, nil
}
