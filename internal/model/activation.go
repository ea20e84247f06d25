package model

import (
	"fmt"
	"math"
)

type activation func(float64) float64

func parseActivation(name string) (activation, error) {
	switch name {
	case "", "linear":
		return linear, nil
	case "relu":
		return relu, nil
	case "sigmoid":
		return sigmoid, nil
	case "tanh":
		return math.Tanh, nil
	}
	return nil, fmt.Errorf("unknown activation %q", name)
}

func linear(x float64) float64 { return x }

func relu(x float64) float64 {
	if x < 0 {
		return 0
	}
	return x
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}
