package hsmm

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// EmissionSpec declares one categorical emission variable: its name, the
// fixed ordered list of categorical values, and a values-by-states matrix
// of probabilities where column j is the emission distribution in state j.
type EmissionSpec struct {
	Variable string
	Values   []string
	// Probs[k][j] = P(value k | state j); each column must sum to 1.
	Probs [][]float64
}

func (e EmissionSpec) clone() EmissionSpec {
	out := EmissionSpec{
		Variable: e.Variable,
		Values:   append([]string(nil), e.Values...),
		Probs:    cloneMatrix(e.Probs),
	}
	return out
}

// CensoringSpec declares the state-dependent missingness law: P[j] is the
// probability that the entire observation vector is missing in state j, and
// Q[v][j] is the probability that variable v is individually missing given
// the vector is not fully missing. The realized probability that variable v
// is missing in state j is P[j] + (1-P[j])*Q[v][j].
type CensoringSpec struct {
	P []float64
	Q [][]float64
}

func (c *CensoringSpec) clone() *CensoringSpec {
	if c == nil {
		return nil
	}
	return &CensoringSpec{
		P: append([]float64(nil), c.P...),
		Q: cloneMatrix(c.Q),
	}
}

// Realized returns the realized missingness probability for variable v in
// state j.
func (c *CensoringSpec) Realized(v, j int) float64 {
	return c.P[j] + (1-c.P[j])*c.Q[v][j]
}

// logZero stands in for log(0) inside the trellis. Keeping it finite lets
// windowed emission sums be computed as prefix-sum differences without
// producing Inf-Inf NaNs; exp(logZero) underflows to exactly 0.
const logZero = -1e30

// compiledEmissions holds the per-(variable, value, state) log emission
// terms and the per-(variable, state) missingness terms the recursions use.
type compiledEmissions struct {
	nVars    int
	nStates  int
	varIndex map[string]int
	// valueIndex[v] maps a category label to its code.
	valueIndex []map[string]int
	// nValues[v] is the size of variable v's value set.
	nValues []int
	// logProb[v][k*J+j] = log P(value k | state j).
	logProb [][]float64
	// miss[v][j] is the realized missingness probability; nil without a
	// censoring spec.
	miss [][]float64
	// logMiss[v][j] = log miss, logSeen[v][j] = log(1-miss).
	logMiss [][]float64
	logSeen [][]float64
}

func compileEmissions(specs []EmissionSpec, censoring *CensoringSpec, nStates int) *compiledEmissions {
	ce := &compiledEmissions{
		nVars:      len(specs),
		nStates:    nStates,
		varIndex:   make(map[string]int, len(specs)),
		valueIndex: make([]map[string]int, len(specs)),
		nValues:    make([]int, len(specs)),
		logProb:    make([][]float64, len(specs)),
	}

	for v, spec := range specs {
		ce.varIndex[spec.Variable] = v
		ce.nValues[v] = len(spec.Values)
		ce.valueIndex[v] = make(map[string]int, len(spec.Values))
		for k, name := range spec.Values {
			ce.valueIndex[v][name] = k
		}

		lp := make([]float64, len(spec.Values)*nStates)
		for k := range spec.Values {
			for j := 0; j < nStates; j++ {
				lp[k*nStates+j] = safeLog(spec.Probs[k][j])
			}
		}
		ce.logProb[v] = lp
	}

	if censoring != nil {
		ce.miss = make([][]float64, len(specs))
		ce.logMiss = make([][]float64, len(specs))
		ce.logSeen = make([][]float64, len(specs))
		for v := range specs {
			ce.miss[v] = make([]float64, nStates)
			ce.logMiss[v] = make([]float64, nStates)
			ce.logSeen[v] = make([]float64, nStates)
			for j := 0; j < nStates; j++ {
				m := censoring.Realized(v, j)
				ce.miss[v][j] = m
				ce.logMiss[v][j] = safeLog(m)
				ce.logSeen[v][j] = safeLog(1 - m)
			}
		}
	}

	return ce
}

// rowLogLik returns the log-likelihood of one observation row in state j.
// A missing entry contributes its realized missingness probability when the
// model carries a censoring spec (missingness is evidence), and is
// ignorable otherwise. An observed entry contributes the probability of not
// being missing times the emission probability of its category.
func (ce *compiledEmissions) rowLogLik(row []int, j int) float64 {
	J := ce.nStates
	var lp float64
	for v, code := range row {
		if code == Missing {
			if ce.miss == nil {
				continue
			}
			lp += ce.logMiss[v][j]
			continue
		}
		if ce.miss != nil {
			lp += ce.logSeen[v][j]
		}
		lp += ce.logProb[v][code*J+j]
	}
	if lp < logZero {
		return logZero
	}
	return lp
}

// safeLog maps nonpositive probabilities to logZero instead of -Inf.
func safeLog(p float64) float64 {
	if p <= 0 || math.IsNaN(p) {
		return logZero
	}
	return math.Log(p)
}

// cloneMatrix deep-copies a row-major [][]float64.
func cloneMatrix(x [][]float64) [][]float64 {
	if x == nil {
		return nil
	}
	out := make([][]float64, len(x))
	for i := range x {
		out[i] = append([]float64(nil), x[i]...)
	}
	return out
}

// denseFromRows builds a gonum matrix from row-major data.
func denseFromRows(x [][]float64) *mat.Dense {
	r := len(x)
	c := 0
	if r > 0 {
		c = len(x[0])
	}
	out := mat.NewDense(r, c, nil)
	for i := range x {
		for j := range x[i] {
			out.Set(i, j, x[i][j])
		}
	}
	return out
}
