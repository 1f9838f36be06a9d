// Package dnn runs classifier models with the OpenCV DNN module.
package dnn

import (
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"math"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-automed/pkg/classifier"
)

// Name identifies this backend.
const Name = "dnn"

// ErrEmptyNet is returned when OpenCV cannot parse the weights.
var ErrEmptyNet = errors.New("dnn: failed to read network")

// Backend compiles ONNX or frozen TensorFlow graphs with gocv.
type Backend struct {
	Backend gocv.NetBackendType
	Target  gocv.NetTargetType
}

var _ classifier.Backend = (*Backend)(nil)

// New returns a CPU backend.
func New() *Backend {
	return &Backend{
		Backend: gocv.NetBackendDefault,
		Target:  gocv.NetTargetCPU,
	}
}

// Name returns "dnn".
func (b *Backend) Name() string { return Name }

// Supports reports true for onnx and tensorflow graphs.
func (b *Backend) Supports(format string) bool {
	return format == classifier.FormatONNX || format == classifier.FormatTensorflow
}

// Compile reads the network and probes it once to learn the class count.
func (b *Backend) Compile(spec classifier.Spec) (classifier.Network, error) {
	framework := "onnx"
	if spec.Topology != nil && spec.Topology.Format == classifier.FormatTensorflow {
		framework = "tensorflow"
	}

	net, err := gocv.ReadNetBytes(framework, spec.Weights, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmptyNet, err)
	}
	if net.Empty() {
		net.Close()
		return nil, ErrEmptyNet
	}

	net.SetPreferableBackend(b.Backend)
	net.SetPreferableTarget(b.Target)

	n := &network{
		net:    net,
		size:   spec.Metadata.ImageSize,
		graph:  spec.Graph,
		layout: spec.Graph.Layout,
	}

	size := spec.Metadata.ImageSize
	probe, err := n.Infer(image.NewRGBA(image.Rect(0, 0, size, size)))
	if err != nil {
		n.Close()
		return nil, fmt.Errorf("probe: %w", err)
	}
	n.classes = len(probe)
	return n, nil
}

type network struct {
	net     gocv.Net
	size    int
	graph   classifier.Graph
	layout  string
	classes int
	closed  bool
}

func (n *network) Infer(frame image.Image) ([]float32, error) {
	if n.closed {
		return nil, classifier.ErrClosed
	}

	blob, err := n.blob(frame)
	if err != nil {
		return nil, err
	}
	defer blob.Close()

	n.net.SetInput(blob, n.graph.Input)
	out := n.net.Forward(n.graph.Output)
	defer out.Close()

	if out.Empty() {
		return nil, fmt.Errorf("forward returned no output")
	}
	data, err := out.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("read output: %w", err)
	}
	return append([]float32(nil), data...), nil
}

// blob builds the input tensor. NCHW graphs use OpenCV's own blob path;
// NHWC graphs get the shared tensor packed into a 4-D Mat.
func (n *network) blob(frame image.Image) (gocv.Mat, error) {
	if n.layout == classifier.LayoutNCHW {
		img, err := gocv.ImageToMatRGB(classifier.CropSquare(frame))
		if err != nil {
			return gocv.Mat{}, fmt.Errorf("convert frame: %w", err)
		}
		defer img.Close()

		// (x - 127.5) / 127.5 with BGR swapped back to RGB
		return gocv.BlobFromImage(img, 1.0/127.5, image.Pt(n.size, n.size),
			gocv.NewScalar(127.5, 127.5, 127.5, 0), true, false), nil
	}

	data := classifier.Tensor(frame, n.size, n.layout)
	buf := make([]byte, 4*len(data))
	for i, v := range data {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(v))
	}
	return gocv.NewMatWithSizesFromBytes([]int{1, n.size, n.size, 3}, gocv.MatTypeCV32F, buf)
}

func (n *network) Classes() int { return n.classes }

func (n *network) Close() error {
	if n.closed {
		return nil
	}
	n.closed = true
	return n.net.Close()
}
