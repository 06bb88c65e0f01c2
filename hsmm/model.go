// Package hsmm implements a hidden semi-Markov model engine: model
// specification and validation, simulation of synthetic observation
// sequences, explicit-duration forward-backward posterior decoding, and EM
// parameter re-estimation.
//
// A model couples a discrete state set with an explicit sojourn (duration)
// distribution per state, multivariate categorical emissions, and an
// optional state-dependent missingness (censoring) law. Self-transitions
// are forbidden: all duration structure lives in the sojourn distributions.
package hsmm

import (
	"math"
	"strconv"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/gohsmm/pkg/errors"
)

// probTol is the tolerance for stochastic-constraint checks (rows, columns
// and pmfs summing to 1).
const probTol = 1e-6

// State is one hidden state. Name and Color are display attributes owned by
// the model and irrelevant to computation.
type State struct {
	Name  string
	Color string
}

// ModelSpec collects everything needed to specify a model. It is consumed
// by Specify, which validates cross-consistency and returns an immutable
// Model.
type ModelSpec struct {
	States     []State
	Initial    []float64
	Transition [][]float64
	Sojourns   []SojournDist
	Emissions  []EmissionSpec
	Censoring  *CensoringSpec
}

// Model is a validated, immutable hidden semi-Markov model. Fitting never
// mutates a Model; it produces a new value.
type Model struct {
	states    []State
	init      []float64
	trans     [][]float64
	sojourns  []SojournDist
	emissions []EmissionSpec
	censoring *CensoringSpec

	// compiled caches shared by the simulator, decoder and fitter
	logInit  []float64
	logTrans []float64 // row-major J*J
	em       *compiledEmissions
	maxD     []int // per-state sojourn support
}

// Specify validates a ModelSpec and returns an immutable Model. It rejects
// inconsistent state counts, violated stochastic constraints, a nonzero
// transition diagonal, and out-of-range censoring probabilities with a
// ConfigurationError identifying the failed constraint and index.
func Specify(spec ModelSpec) (*Model, error) {
	nStates := len(spec.States)
	if nStates < 2 {
		return nil, errors.NewConfigurationError("model", "at least 2 states are required", -1)
	}

	if err := validateStochasticVector("initial", spec.Initial, nStates); err != nil {
		return nil, err
	}
	if err := validateTransition(spec.Transition, nStates); err != nil {
		return nil, err
	}
	if err := validateSojourns(spec.Sojourns, nStates); err != nil {
		return nil, err
	}
	if err := validateEmissions(spec.Emissions, nStates); err != nil {
		return nil, err
	}
	if err := validateCensoring(spec.Censoring, len(spec.Emissions), nStates); err != nil {
		return nil, err
	}

	m := &Model{
		states:    append([]State(nil), spec.States...),
		init:      append([]float64(nil), spec.Initial...),
		trans:     cloneMatrix(spec.Transition),
		sojourns:  append([]SojournDist(nil), spec.Sojourns...),
		emissions: make([]EmissionSpec, 0, len(spec.Emissions)),
		censoring: spec.Censoring.clone(),
	}
	for _, e := range spec.Emissions {
		m.emissions = append(m.emissions, e.clone())
	}
	m.compile()
	return m, nil
}

func (m *Model) compile() {
	nStates := len(m.states)

	m.logInit = make([]float64, nStates)
	for j, p := range m.init {
		m.logInit[j] = safeLog(p)
	}

	m.logTrans = make([]float64, nStates*nStates)
	for j := 0; j < nStates; j++ {
		for k := 0; k < nStates; k++ {
			m.logTrans[j*nStates+k] = safeLog(m.trans[j][k])
		}
	}

	m.maxD = make([]int, nStates)
	for j, s := range m.sojourns {
		m.maxD[j] = s.MaxSupport()
	}

	m.em = compileEmissions(m.emissions, m.censoring, nStates)
}

func validateStochasticVector(component string, v []float64, nStates int) error {
	if len(v) != nStates {
		return errors.NewConfigurationError(component, "length does not match the state count", -1)
	}
	var sum float64
	for j, p := range v {
		if p < 0 || math.IsNaN(p) {
			return errors.NewConfigurationError(component, "negative probability", j)
		}
		sum += p
	}
	if math.Abs(sum-1) > probTol {
		return errors.NewConfigurationError(component, "probabilities do not sum to 1", -1)
	}
	return nil
}

func validateTransition(trans [][]float64, nStates int) error {
	if len(trans) != nStates {
		return errors.NewConfigurationError("transition", "row count does not match the state count", -1)
	}
	for j, row := range trans {
		if len(row) != nStates {
			return errors.NewConfigurationError("transition", "column count does not match the state count", j)
		}
		var sum float64
		for k, p := range row {
			if j == k && p != 0 {
				return errors.NewConfigurationError("transition", "diagonal must be exactly 0 (durations live in the sojourn law)", j)
			}
			if p < 0 || math.IsNaN(p) {
				return errors.NewConfigurationError("transition", "negative probability", j)
			}
			sum += p
		}
		if math.Abs(sum-1) > probTol {
			return errors.NewConfigurationError("transition", "row does not sum to 1", j)
		}
	}
	return nil
}

func validateSojourns(sojourns []SojournDist, nStates int) error {
	if len(sojourns) != nStates {
		return errors.NewConfigurationError("sojourn", "sojourn count does not match the state count", -1)
	}
	for j, s := range sojourns {
		if s == nil {
			return errors.NewConfigurationError("sojourn", "missing sojourn distribution", j)
		}
		maxD := s.MaxSupport()
		if maxD < 1 {
			return errors.NewConfigurationError("sojourn", "empty duration support", j)
		}
		var sum float64
		for d := 1; d <= maxD; d++ {
			p := s.Pmf(d)
			if p < 0 || math.IsNaN(p) {
				return errors.NewConfigurationError("sojourn", "negative pmf value", j)
			}
			sum += p
		}
		if math.Abs(sum-1) > probTol {
			return errors.NewConfigurationError("sojourn", "pmf does not sum to 1", j)
		}
	}
	return nil
}

func validateEmissions(specs []EmissionSpec, nStates int) error {
	if len(specs) == 0 {
		return errors.NewConfigurationError("emission", "at least one emission variable is required", -1)
	}
	seen := make(map[string]bool, len(specs))
	for v, spec := range specs {
		if spec.Variable == "" {
			return errors.NewConfigurationError("emission", "empty variable name", v)
		}
		if seen[spec.Variable] {
			return errors.NewConfigurationError("emission", "duplicate variable name "+spec.Variable, v)
		}
		seen[spec.Variable] = true

		if len(spec.Values) == 0 {
			return errors.NewConfigurationError("emission", "variable "+spec.Variable+" declares no values", v)
		}
		seenVal := make(map[string]bool, len(spec.Values))
		for _, val := range spec.Values {
			if seenVal[val] {
				return errors.NewConfigurationError("emission", "variable "+spec.Variable+" declares duplicate value "+val, v)
			}
			seenVal[val] = true
		}

		if len(spec.Probs) != len(spec.Values) {
			return errors.NewConfigurationError("emission", "variable "+spec.Variable+": probability rows do not match the value count", v)
		}
		colSums := make([]float64, nStates)
		for k, row := range spec.Probs {
			if len(row) != nStates {
				return errors.NewConfigurationError("emission", "variable "+spec.Variable+": probability columns do not match the state count", v)
			}
			for j, p := range row {
				if p < 0 || math.IsNaN(p) {
					return errors.NewConfigurationError("emission", "variable "+spec.Variable+": negative probability in value row "+spec.Values[k], j)
				}
				colSums[j] += p
			}
		}
		for j, sum := range colSums {
			if math.Abs(sum-1) > probTol {
				return errors.NewConfigurationError("emission", "variable "+spec.Variable+": column does not sum to 1", j)
			}
		}
	}
	return nil
}

func validateCensoring(c *CensoringSpec, nVars, nStates int) error {
	if c == nil {
		return nil
	}
	if len(c.P) != nStates {
		return errors.NewConfigurationError("censoring", "p length does not match the state count", -1)
	}
	for j, p := range c.P {
		if p < 0 || p > 1 || math.IsNaN(p) {
			return errors.NewConfigurationError("censoring", "p out of [0,1]", j)
		}
	}
	if len(c.Q) != nVars {
		return errors.NewConfigurationError("censoring", "q row count does not match the variable count", -1)
	}
	for v, row := range c.Q {
		if len(row) != nStates {
			return errors.NewConfigurationError("censoring", "q column count does not match the state count", v)
		}
		for j, q := range row {
			if q < 0 || q > 1 || math.IsNaN(q) {
				return errors.NewConfigurationError("censoring", "q out of [0,1] for state "+strconv.Itoa(j), v)
			}
		}
	}
	return nil
}

// NumStates returns the number of hidden states.
func (m *Model) NumStates() int {
	return len(m.states)
}

// States returns a copy of the state set.
func (m *Model) States() []State {
	return append([]State(nil), m.states...)
}

// StateNames returns the display names of the states in index order.
func (m *Model) StateNames() []string {
	names := make([]string, len(m.states))
	for j, s := range m.states {
		names[j] = s.Name
	}
	return names
}

// InitialVector returns a copy of the initial state distribution.
func (m *Model) InitialVector() *mat.VecDense {
	return mat.NewVecDense(len(m.init), append([]float64(nil), m.init...))
}

// TransitionMatrix returns a copy of the J x J transition matrix.
func (m *Model) TransitionMatrix() *mat.Dense {
	return denseFromRows(m.trans)
}

// Sojourn returns the sojourn distribution of state j.
func (m *Model) Sojourn(j int) SojournDist {
	return m.sojourns[j]
}

// Variables returns the emission variable names in declaration order.
func (m *Model) Variables() []string {
	names := make([]string, len(m.emissions))
	for v, e := range m.emissions {
		names[v] = e.Variable
	}
	return names
}

// EmissionSpecs returns a deep copy of the emission declarations.
func (m *Model) EmissionSpecs() []EmissionSpec {
	out := make([]EmissionSpec, len(m.emissions))
	for v, e := range m.emissions {
		out[v] = e.clone()
	}
	return out
}

// EmissionMatrix returns a copy of the values-by-states probability matrix
// for the named variable.
func (m *Model) EmissionMatrix(variable string) (*mat.Dense, error) {
	v, ok := m.em.varIndex[variable]
	if !ok {
		return nil, errors.NewConfigurationError("emission", "unknown variable "+variable, -1)
	}
	return denseFromRows(m.emissions[v].Probs), nil
}

// Censoring returns a copy of the censoring spec, or nil if the model has
// none (missingness probability 0 everywhere).
func (m *Model) Censoring() *CensoringSpec {
	return m.censoring.clone()
}

// spec rebuilds a ModelSpec with deep-copied parameters; the fitter edits
// the copy and calls Specify to obtain the next model value.
func (m *Model) spec() ModelSpec {
	emissions := make([]EmissionSpec, len(m.emissions))
	for v, e := range m.emissions {
		emissions[v] = e.clone()
	}
	return ModelSpec{
		States:     append([]State(nil), m.states...),
		Initial:    append([]float64(nil), m.init...),
		Transition: cloneMatrix(m.trans),
		Sojourns:   append([]SojournDist(nil), m.sojourns...),
		Emissions:  emissions,
		Censoring:  m.censoring.clone(),
	}
}

// checkSequence validates an observation sequence against the model and
// returns perm, where perm[v] is the model variable index of the sequence's
// v-th variable. perm must be a bijection: unknown or duplicated variables,
// a variable-set mismatch, and out-of-range categorical codes are all
// rejected.
func (m *Model) checkSequence(seq *ObservationSequence) ([]int, error) {
	if seq == nil || seq.Len() == 0 {
		return nil, errors.NewConfigurationError("sequence", "empty sequence", -1)
	}
	if len(seq.vars) != len(m.emissions) {
		return nil, errors.NewDimensionError("Model.checkSequence", len(m.emissions), len(seq.vars), 1)
	}
	perm := make([]int, len(seq.vars))
	claimed := make([]bool, len(m.emissions))
	for v, name := range seq.vars {
		mv, ok := m.em.varIndex[name]
		if !ok {
			return nil, errors.NewConfigurationError("sequence", "variable "+name+" is not declared by the model", v)
		}
		if claimed[mv] {
			return nil, errors.NewConfigurationError("sequence", "variable "+name+" appears more than once", v)
		}
		claimed[mv] = true
		perm[v] = mv
	}
	for t, row := range seq.codes {
		for v, code := range row {
			if code == Missing {
				continue
			}
			if code < 0 || code >= m.em.nValues[perm[v]] {
				return nil, errors.NewConfigurationError("sequence",
					"categorical value out of range for variable "+seq.vars[v], t)
			}
		}
	}
	return perm, nil
}
