// Package metrics provides evaluation helpers for decoded state paths
// against ground truth.
package metrics

import (
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/gohsmm/pkg/errors"
)

// Accuracy returns the fraction of time steps where the predicted state
// matches the ground truth.
func Accuracy(yTrue, yPred []int) (float64, error) {
	n := len(yTrue)
	if n == 0 {
		return 0, errors.WithStack(errors.ErrEmptyData)
	}
	if len(yPred) != n {
		return 0, errors.NewDimensionError("Accuracy", n, len(yPred), 0)
	}

	var correct int
	for i := 0; i < n; i++ {
		if yTrue[i] == yPred[i] {
			correct++
		}
	}
	return float64(correct) / float64(n), nil
}

// ErrorRate returns 1 - Accuracy.
func ErrorRate(yTrue, yPred []int) (float64, error) {
	acc, err := Accuracy(yTrue, yPred)
	if err != nil {
		return 0, err
	}
	return 1 - acc, nil
}

// ConfusionMatrix returns the numStates x numStates matrix whose (i, j)
// entry counts time steps with true state i decoded as state j. State
// indices outside [0, numStates) are rejected.
func ConfusionMatrix(yTrue, yPred []int, numStates int) (*mat.Dense, error) {
	n := len(yTrue)
	if n == 0 {
		return nil, errors.WithStack(errors.ErrEmptyData)
	}
	if len(yPred) != n {
		return nil, errors.NewDimensionError("ConfusionMatrix", n, len(yPred), 0)
	}
	if numStates < 1 {
		return nil, errors.NewInvalidArgumentError("ConfusionMatrix", "number of states must be positive", numStates)
	}

	cm := mat.NewDense(numStates, numStates, nil)
	for i := 0; i < n; i++ {
		if yTrue[i] < 0 || yTrue[i] >= numStates {
			return nil, errors.NewInvalidArgumentError("ConfusionMatrix", "true state out of range", yTrue[i])
		}
		if yPred[i] < 0 || yPred[i] >= numStates {
			return nil, errors.NewInvalidArgumentError("ConfusionMatrix", "predicted state out of range", yPred[i])
		}
		cm.Set(yTrue[i], yPred[i], cm.At(yTrue[i], yPred[i])+1)
	}
	return cm, nil
}
