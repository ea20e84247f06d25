// Package model runs the on-device fall classifier.
//
// The artifact is a JSON description of a small feed-forward network:
//
//	{
//	  "format": "dense-v1",
//	  "input_size": 6,
//	  "normalize": {"mean": [...], "std": [...]},
//	  "layers": [
//	    {"weights": [[...], ...], "bias": [...], "activation": "relu"},
//	    {"weights": [[...]], "bias": [0.1], "activation": "sigmoid"}
//	  ]
//	}
//
// Weights are stored row-major as (outputs x inputs). The last layer must
// have exactly one output.
package model

import (
	"encoding/json"
	"fmt"
	"math"
	"os"

	"gonum.org/v1/gonum/mat"

	"github.com/sweeney/fall-sensor/internal/logic"
)

// Format is the only artifact format understood by Load.
const Format = "dense-v1"

// Classifier maps a feature window to a fall probability.
type Classifier interface {
	Infer(w logic.Window) (float32, error)
}

// Artifact is the serialized model.
type Artifact struct {
	Format    string      `json:"format"`
	InputSize int         `json:"input_size"`
	Normalize *Normalizer `json:"normalize,omitempty"`
	Layers    []LayerSpec `json:"layers"`
}

// Normalizer standardizes inputs as (x - mean) / std before the first layer.
type Normalizer struct {
	Mean []float64 `json:"mean"`
	Std  []float64 `json:"std"`
}

// LayerSpec is one dense layer.
type LayerSpec struct {
	Weights    [][]float64 `json:"weights"`
	Bias       []float64   `json:"bias"`
	Activation string      `json:"activation"`
}

type layer struct {
	w   *mat.Dense
	b   *mat.VecDense
	out *mat.VecDense
	act activation
}

// Engine is a loaded classifier. Buffers are allocated once at load time,
// so Infer does no per-call allocation. Not safe for concurrent use.
type Engine struct {
	inputSize int
	mean, std []float64
	in        *mat.VecDense
	layers    []layer
}

// LoadFile reads and loads a model artifact from disk.
func LoadFile(path string) (*Engine, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ModelError{Op: "read", Err: err}
	}
	return Load(data)
}

// Load parses a serialized artifact. Any failure yields a *ModelError.
func Load(data []byte) (*Engine, error) {
	var a Artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, &ModelError{Op: "parse", Err: err}
	}
	e, err := build(a)
	if err != nil {
		return nil, &ModelError{Op: "validate", Err: err}
	}
	return e, nil
}

func build(a Artifact) (*Engine, error) {
	if a.Format != Format {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, a.Format)
	}
	if a.InputSize <= 0 {
		return nil, fmt.Errorf("%w: input_size %d", ErrShape, a.InputSize)
	}
	if len(a.Layers) == 0 {
		return nil, fmt.Errorf("%w: no layers", ErrShape)
	}

	e := &Engine{
		inputSize: a.InputSize,
		in:        mat.NewVecDense(a.InputSize, nil),
	}

	if n := a.Normalize; n != nil {
		if len(n.Mean) != a.InputSize || len(n.Std) != a.InputSize {
			return nil, fmt.Errorf("%w: normalizer length", ErrShape)
		}
		for i, s := range n.Std {
			if s == 0 {
				return nil, fmt.Errorf("normalizer std[%d] is zero", i)
			}
		}
		e.mean, e.std = n.Mean, n.Std
	}

	width := a.InputSize
	for i, spec := range a.Layers {
		l, err := buildLayer(spec, width)
		if err != nil {
			return nil, fmt.Errorf("layer %d: %w", i, err)
		}
		e.layers = append(e.layers, l)
		width = len(spec.Bias)
	}
	if width != 1 {
		return nil, fmt.Errorf("%w: output size %d, want 1", ErrShape, width)
	}
	return e, nil
}

func buildLayer(spec LayerSpec, inputs int) (layer, error) {
	outputs := len(spec.Weights)
	if outputs == 0 || len(spec.Bias) != outputs {
		return layer{}, fmt.Errorf("%w: %d weight rows, %d biases", ErrShape, outputs, len(spec.Bias))
	}
	data := make([]float64, 0, outputs*inputs)
	for r, row := range spec.Weights {
		if len(row) != inputs {
			return layer{}, fmt.Errorf("%w: row %d has %d weights, want %d", ErrShape, r, len(row), inputs)
		}
		data = append(data, row...)
	}
	act, err := parseActivation(spec.Activation)
	if err != nil {
		return layer{}, err
	}
	return layer{
		w:   mat.NewDense(outputs, inputs, data),
		b:   mat.NewVecDense(outputs, append([]float64(nil), spec.Bias...)),
		out: mat.NewVecDense(outputs, nil),
		act: act,
	}, nil
}

// InputSize returns the number of features the model expects.
func (e *Engine) InputSize() int {
	return e.inputSize
}

// Infer runs the window through the network and returns the fall probability.
// Failures yield an *InferenceError.
func (e *Engine) Infer(w logic.Window) (float32, error) {
	if len(w) != e.inputSize {
		return 0, &InferenceError{Err: fmt.Errorf("%w: got %d features, want %d", ErrShape, len(w), e.inputSize)}
	}

	for i, v := range w {
		x := float64(v)
		if e.mean != nil {
			x = (x - e.mean[i]) / e.std[i]
		}
		e.in.SetVec(i, x)
	}

	var x mat.Vector = e.in
	for i := range e.layers {
		l := &e.layers[i]
		l.out.MulVec(l.w, x)
		l.out.AddVec(l.out, l.b)
		raw := l.out.RawVector().Data
		for j := range raw {
			raw[j] = l.act(raw[j])
		}
		x = l.out
	}

	p := x.AtVec(0)
	if math.IsNaN(p) || p < 0 || p > 1 {
		return 0, &InferenceError{Err: fmt.Errorf("%w: %v", ErrOutOfRange, p)}
	}
	return float32(p), nil
}

// Unavailable stands in for the engine when loading failed. Every call
// yields an *InferenceError wrapping ErrUnavailable and the load cause.
type Unavailable struct {
	Cause error
}

// Infer always fails.
func (u Unavailable) Infer(logic.Window) (float32, error) {
	if u.Cause == nil {
		return 0, &InferenceError{Err: ErrUnavailable}
	}
	return 0, &InferenceError{Err: fmt.Errorf("%w: %w", ErrUnavailable, u.Cause)}
}
