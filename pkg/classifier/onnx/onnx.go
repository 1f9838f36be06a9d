// Package onnx runs classifier models with ONNX Runtime.
//
// The shared library must be installed on the host. Set LibraryPath (or
// ONNXRUNTIME_LIB) when it is not on the default search path.
package onnx

import (
	"errors"
	"fmt"
	"image"
	"os"
	"strings"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/teslashibe/go-automed/pkg/classifier"
)

// Name identifies this backend.
const Name = "onnx"

// ErrNoOutputs is returned for a graph without outputs.
var ErrNoOutputs = errors.New("onnx: graph has no outputs")

var (
	envMu   sync.Mutex
	envRefs int
)

// Backend compiles ONNX graphs into ONNX Runtime sessions.
type Backend struct {
	// LibraryPath overrides the onnxruntime shared library location.
	LibraryPath string
}

var _ classifier.Backend = (*Backend)(nil)

// New creates a backend, reading ONNXRUNTIME_LIB when libPath is empty.
func New(libPath string) *Backend {
	if libPath == "" {
		libPath = os.Getenv("ONNXRUNTIME_LIB")
	}
	return &Backend{LibraryPath: libPath}
}

// Name returns "onnx".
func (b *Backend) Name() string { return Name }

// Supports reports true for the onnx format.
func (b *Backend) Supports(format string) bool {
	return format == classifier.FormatONNX
}

// Compile creates a session with fixed input and output tensors.
func (b *Backend) Compile(spec classifier.Spec) (classifier.Network, error) {
	if err := b.acquire(); err != nil {
		return nil, err
	}

	n, err := compile(spec)
	if err != nil {
		release()
		return nil, err
	}
	return n, nil
}

func compile(spec classifier.Spec) (*network, error) {
	inputs, outputs, err := ort.GetInputOutputInfoWithONNXData(spec.Weights)
	if err != nil {
		return nil, fmt.Errorf("inspect graph: %w", err)
	}
	if len(inputs) == 0 {
		return nil, fmt.Errorf("graph has no inputs")
	}
	if len(outputs) == 0 {
		return nil, ErrNoOutputs
	}

	inInfo, err := findTensor(inputs, spec.Graph.Input, "input")
	if err != nil {
		return nil, err
	}
	outInfo, err := findTensor(outputs, spec.Graph.Output, "output")
	if err != nil {
		return nil, err
	}
	inName, outName := inInfo.Name, outInfo.Name

	classes := 0
	if dims := outInfo.Dimensions; len(dims) > 0 {
		classes = int(dims[len(dims)-1])
	}
	if classes <= 0 {
		return nil, fmt.Errorf("output %q has no static class dimension: %v", outName, outInfo.Dimensions)
	}

	size := int64(spec.Metadata.ImageSize)
	inShape := ort.NewShape(1, size, size, 3)
	if spec.Graph.Layout == classifier.LayoutNCHW {
		inShape = ort.NewShape(1, 3, size, size)
	}

	in, err := ort.NewEmptyTensor[float32](inShape)
	if err != nil {
		return nil, fmt.Errorf("create input tensor: %w", err)
	}
	out, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(classes)))
	if err != nil {
		in.Destroy()
		return nil, fmt.Errorf("create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSessionWithONNXData(spec.Weights,
		[]string{inName}, []string{outName},
		[]ort.ArbitraryTensor{in}, []ort.ArbitraryTensor{out},
		nil)
	if err != nil {
		in.Destroy()
		out.Destroy()
		return nil, fmt.Errorf("create session: %w", err)
	}

	return &network{
		session: session,
		in:      in,
		out:     out,
		size:    int(size),
		layout:  spec.Graph.Layout,
		classes: classes,
	}, nil
}

// findTensor picks the named tensor, or the first one when name is empty.
func findTensor(infos []ort.InputOutputInfo, name, kind string) (ort.InputOutputInfo, error) {
	if name == "" {
		return infos[0], nil
	}
	names := make([]string, len(infos))
	for i, info := range infos {
		if info.Name == name {
			return info, nil
		}
		names[i] = info.Name
	}
	return ort.InputOutputInfo{}, fmt.Errorf("%w: %s %q not in graph (have %s)",
		classifier.ErrInvalidTopology, kind, name, strings.Join(names, ", "))
}

func (b *Backend) acquire() error {
	envMu.Lock()
	defer envMu.Unlock()

	if envRefs == 0 && !ort.IsInitialized() {
		if b.LibraryPath != "" {
			ort.SetSharedLibraryPath(b.LibraryPath)
		}
		if err := ort.InitializeEnvironment(); err != nil {
			return fmt.Errorf("initialize onnxruntime: %w", err)
		}
	}
	envRefs++
	return nil
}

// release destroys the environment once the last session is gone.
func release() {
	envMu.Lock()
	defer envMu.Unlock()

	envRefs--
	if envRefs == 0 && ort.IsInitialized() {
		ort.DestroyEnvironment()
	}
}

type network struct {
	session *ort.AdvancedSession
	in      *ort.Tensor[float32]
	out     *ort.Tensor[float32]
	size    int
	layout  string
	classes int
	closed  bool
}

func (n *network) Infer(frame image.Image) ([]float32, error) {
	if n.closed {
		return nil, classifier.ErrClosed
	}

	copy(n.in.GetData(), classifier.Tensor(frame, n.size, n.layout))
	if err := n.session.Run(); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}
	return append([]float32(nil), n.out.GetData()...), nil
}

func (n *network) Classes() int { return n.classes }

func (n *network) Close() error {
	if n.closed {
		return nil
	}
	n.closed = true

	n.in.Destroy()
	n.out.Destroy()
	err := n.session.Destroy()
	release()
	return err
}
