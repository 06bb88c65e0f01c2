package hsmm

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/gohsmm/pkg/errors"
)

func TestFitRejectsEmptyData(t *testing.T) {
	m := mustModel(t, cycleSpec())
	_, err := NewFitter().Fit(m, nil)
	require.ErrorIs(t, err, errors.ErrEmptyData)
}

func TestFitRejectsBadSchedule(t *testing.T) {
	m := mustModel(t, cycleSpec())
	seqs, err := NewSimulator(m, WithSeed(1)).RunBatch("s", 1, 4)
	require.NoError(t, err)

	var argErr *errors.InvalidArgumentError
	_, err = NewFitter(WithMaxIter(0)).Fit(m, seqs)
	require.ErrorAs(t, err, &argErr)

	// A zero pseudocount would divide by zero for a state with no
	// expected mass.
	_, err = NewFitter(WithPseudocount(0)).Fit(m, seqs)
	require.ErrorAs(t, err, &argErr)
}

func TestFitLogLikelihoodNonDecreasing(t *testing.T) {
	truth := mustModel(t, cycleSpec())
	seqs, err := NewSimulator(truth, WithSeed(21)).RunBatch("train", 4, 10)
	require.NoError(t, err)
	for i := range seqs {
		seqs[i] = seqs[i].WithoutStates()
	}

	// Start from a deliberately wrong parameterization.
	start := cycleSpec()
	start.Sojourns = []SojournDist{
		NewNormalSojourn(8, 3, 15),
		NewNormalSojourn(18, 5, 40),
	}
	start.Emissions[0].Probs = [][]float64{{0.8, 0.2}, {0.2, 0.8}}
	m := mustModel(t, start)

	res, err := NewFitter(WithMaxIter(15)).Fit(m, seqs)
	require.NoError(t, err)

	lls := res.LogLikelihoods()
	require.NotEmpty(t, lls)
	for i := 1; i < len(lls); i++ {
		assert.GreaterOrEqual(t, lls[i], lls[i-1]-1e-6,
			"log-likelihood decreased at iteration %d: %v -> %v", i, lls[i-1], lls[i])
	}
}

func TestFitRecoversSojournMeans(t *testing.T) {
	// Follicular mean 17, luteal mean 8; 16 simulated cycles.
	truthSpec := cycleSpec()
	truthSpec.States = []State{
		{Name: "follicular", Color: "#2ca02c"},
		{Name: "luteal", Color: "#ff7f0e"},
	}
	truthSpec.Sojourns = []SojournDist{
		NewNormalSojourn(17, 2, 30),
		NewNormalSojourn(8, 1.5, 20),
	}
	truthSpec.Emissions[0].Probs = [][]float64{{0.9, 0.1}, {0.1, 0.9}}
	truth := mustModel(t, truthSpec)

	seqs, err := NewSimulator(truth, WithSeed(33)).RunBatch("cycle", 4, 8)
	require.NoError(t, err)
	for i := range seqs {
		seqs[i] = seqs[i].WithoutStates()
	}

	startSpec := truthSpec
	startSpec.Sojourns = []SojournDist{
		NewNormalSojourn(14, 4, 30),
		NewNormalSojourn(11, 4, 20),
	}
	start := mustModel(t, startSpec)

	res, err := NewFitter(WithMaxIter(50)).Fit(start, seqs)
	require.NoError(t, err)

	fitted := res.Model()
	assert.InDelta(t, 17, fitted.Sojourn(0).Mean(), 2,
		"follicular sojourn mean not recovered")
	assert.InDelta(t, 8, fitted.Sojourn(1).Mean(), 2,
		"luteal sojourn mean not recovered")
}

func TestFitDoesNotMutateInputModel(t *testing.T) {
	truth := mustModel(t, cycleSpec())
	seqs, err := NewSimulator(truth, WithSeed(2)).RunBatch("s", 2, 6)
	require.NoError(t, err)

	start := cycleSpec()
	start.Emissions[0].Probs = [][]float64{{0.8, 0.2}, {0.2, 0.8}}
	m := mustModel(t, start)
	before, _ := m.EmissionMatrix("bleeding")

	res, err := NewFitter(WithMaxIter(5)).Fit(m, seqs)
	require.NoError(t, err)

	after, _ := m.EmissionMatrix("bleeding")
	assert.True(t, math.Abs(before.At(0, 0)-after.At(0, 0)) < 1e-15,
		"fitting mutated the input model")
	assert.NotSame(t, m, res.Model())
}

func TestFitConvergedFlag(t *testing.T) {
	truth := mustModel(t, cycleSpec())
	seqs, err := NewSimulator(truth, WithSeed(13)).RunBatch("s", 3, 8)
	require.NoError(t, err)

	// Starting at the generating parameters with a loose tolerance should
	// converge almost immediately.
	res, err := NewFitter(WithTolerance(1.0), WithMaxIter(20)).Fit(truth, seqs)
	require.NoError(t, err)
	assert.True(t, res.Converged())
	assert.Equal(t, res.Iterations(), len(res.LogLikelihoods()))
}

func TestFitIterationCapWarning(t *testing.T) {
	var captured []error
	errors.SetWarningHandler(func(w error) {
		captured = append(captured, w)
	})
	defer errors.SetWarningHandler(nil)

	truth := mustModel(t, cycleSpec())
	seqs, err := NewSimulator(truth, WithSeed(4)).RunBatch("s", 2, 6)
	require.NoError(t, err)

	start := cycleSpec()
	start.Emissions[0].Probs = [][]float64{{0.7, 0.3}, {0.3, 0.7}}
	m := mustModel(t, start)

	res, err := NewFitter(WithMaxIter(2), WithTolerance(1e-12)).Fit(m, seqs)
	require.NoError(t, err)
	assert.False(t, res.Converged())

	var found bool
	for _, w := range captured {
		var cw *errors.ConvergenceWarning
		if errors.As(w, &cw) {
			found = true
			assert.Equal(t, "EM", cw.Algorithm)
			assert.Equal(t, 2, cw.Iterations)
		}
	}
	assert.True(t, found, "expected a ConvergenceWarning at the iteration cap")
}

func TestFitCensoringUpdate(t *testing.T) {
	truthSpec := cycleSpec()
	truthSpec.Censoring = &CensoringSpec{
		P: []float64{0, 0},
		Q: [][]float64{{0.1, 0.6}},
	}
	truth := mustModel(t, truthSpec)

	seqs, err := NewSimulator(truth, WithSeed(55)).RunBatch("s", 4, 12)
	require.NoError(t, err)
	for i := range seqs {
		seqs[i] = seqs[i].WithoutStates()
	}

	startSpec := truthSpec
	startSpec.Censoring = &CensoringSpec{
		P: []float64{0, 0},
		Q: [][]float64{{0.3, 0.3}},
	}
	start := mustModel(t, startSpec)

	// Without the option the censoring spec is carried unchanged.
	fixed, err := NewFitter(WithMaxIter(5)).Fit(start, seqs)
	require.NoError(t, err)
	assert.InDelta(t, 0.3, fixed.Model().Censoring().Q[0][0], 1e-12)
	assert.InDelta(t, 0.3, fixed.Model().Censoring().Q[0][1], 1e-12)

	// With the option the per-variable rates move toward the generating
	// values.
	updated, err := NewFitter(WithMaxIter(20), WithCensoringUpdate()).Fit(start, seqs)
	require.NoError(t, err)
	q := updated.Model().Censoring().Q
	assert.InDelta(t, 0.1, q[0][0], 0.1)
	assert.InDelta(t, 0.6, q[0][1], 0.15)
}
