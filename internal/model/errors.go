package model

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupportedFormat is returned for artifacts this engine cannot run.
	ErrUnsupportedFormat = errors.New("unsupported model format")
	// ErrShape is returned when tensor dimensions do not line up.
	ErrShape = errors.New("shape mismatch")
	// ErrOutOfRange is returned when the classifier output is not a probability.
	ErrOutOfRange = errors.New("probability out of range")
	// ErrUnavailable is returned by Infer while running without a model.
	ErrUnavailable = errors.New("model not loaded")
)

// ModelError is a load-time failure. The engine is never constructed.
type ModelError struct {
	Op  string // read, parse, validate
	Err error
}

func (e *ModelError) Error() string {
	return fmt.Sprintf("model %s: %v", e.Op, e.Err)
}

func (e *ModelError) Unwrap() error { return e.Err }

// InferenceError is a per-window failure. The window is discarded.
type InferenceError struct {
	Err error
}

func (e *InferenceError) Error() string {
	return fmt.Sprintf("inference: %v", e.Err)
}

func (e *InferenceError) Unwrap() error { return e.Err }
