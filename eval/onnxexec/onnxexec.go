// Package onnxexec is a concrete eval.Executor backed by an ONNX Runtime
// session. The runtime environment is initialized once per process; each
// Execute call builds the input tensor, allocates the two output tensors,
// runs the session, and destroys all three.
package onnxexec

import (
	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
	"gorgonia.org/tensor"
)

// Session wraps one loaded, optimized ONNX graph, read-only once opened.
// One Session is shared by the whole Evaluator; Execute is only ever
// called from the evaluator's single goroutine, so the session itself
// needs no locking.
type Session struct {
	session *ort.DynamicSession[float32, float32]
}

// Options configures where to find the runtime and the model's tensor I/O
// names, which the model export fixes at deployment time.
type Options struct {
	SharedLibraryPath string
	InputName         string
	OutputPolicyName  string
	OutputValueName   string
}

// DefaultOptions matches the export convention used throughout the pack
// (a single "input" tensor, "policy"/"value" outputs).
func DefaultOptions() Options {
	return Options{InputName: "input", OutputPolicyName: "policy", OutputValueName: "value"}
}

// Load initializes the ONNX Runtime environment (once per process) and
// opens modelPath as a dynamic two-output session.
func Load(modelPath string, opts Options) (*Session, error) {
	if opts.SharedLibraryPath != "" {
		ort.SetSharedLibraryPath(opts.SharedLibraryPath)
	}
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, errors.Wrap(err, "onnxexec: initializing onnxruntime environment")
		}
	}
	session, err := ort.NewDynamicSession[float32, float32](
		modelPath,
		[]string{opts.InputName},
		[]string{opts.OutputPolicyName, opts.OutputValueName},
	)
	if err != nil {
		return nil, errors.Wrapf(err, "onnxexec: loading model %q", modelPath)
	}
	return &Session{session: session}, nil
}

// executeWithDims runs one forward pass. input is shaped [batch, ...];
// the returned policy is [batch, policyDim] raw logits and value is
// [batch, 1] win probabilities. policyDim is fixed per game, so Executor
// binds it at construction time rather than threading it through every
// call.
func (s *Session) executeWithDims(input *tensor.Dense, policyDim int) (policy, value *tensor.Dense, err error) {
	shape := input.Shape()
	batch := shape[0]
	inputDims := make([]int64, len(shape))
	for i, d := range shape {
		inputDims[i] = int64(d)
	}

	inputTensor, err := ort.NewTensor(ort.NewShape(inputDims...), input.Data().([]float32))
	if err != nil {
		return nil, nil, errors.Wrap(err, "onnxexec: building input tensor")
	}
	defer inputTensor.Destroy()

	policyOut, err := ort.NewEmptyTensor[float32](ort.NewShape(int64(batch), int64(policyDim)))
	if err != nil {
		return nil, nil, errors.Wrap(err, "onnxexec: allocating policy output tensor")
	}
	defer policyOut.Destroy()

	valueOut, err := ort.NewEmptyTensor[float32](ort.NewShape(int64(batch), 1))
	if err != nil {
		return nil, nil, errors.Wrap(err, "onnxexec: allocating value output tensor")
	}
	defer valueOut.Destroy()

	inputTensors := []*ort.Tensor[float32]{inputTensor}
	outputTensors := []*ort.Tensor[float32]{policyOut, valueOut}
	if err := s.session.Run(inputTensors, outputTensors); err != nil {
		return nil, nil, errors.Wrap(err, "onnxexec: running session")
	}

	policyData := make([]float32, batch*policyDim)
	copy(policyData, policyOut.GetData())
	valueData := make([]float32, batch)
	copy(valueData, valueOut.GetData())

	policy = tensor.New(tensor.WithBacking(policyData), tensor.WithShape(batch, policyDim))
	value = tensor.New(tensor.WithBacking(valueData), tensor.WithShape(batch, 1))
	return policy, value, nil
}

// Close destroys the underlying session. The process-wide ONNX Runtime
// environment is left initialized, since a fresh Load would otherwise
// fail a second InitializeEnvironment call in the same process.
func (s *Session) Close() error {
	s.session.Destroy()
	return nil
}

// Executor adapts a Session to eval.Executor by fixing the policy
// dimension the model was exported with, since eval.Executor.Execute only
// receives the input tensor.
type Executor struct {
	session   *Session
	policyDim int
}

// NewExecutor binds session to a fixed policyDim, matching the rules.Game
// the evaluator was constructed for.
func NewExecutor(session *Session, policyDim int) *Executor {
	return &Executor{session: session, policyDim: policyDim}
}

func (e *Executor) Execute(input *tensor.Dense) (policy, value *tensor.Dense, err error) {
	return e.session.executeWithDims(input, e.policyDim)
}

func (e *Executor) Close() error { return e.session.Close() }
