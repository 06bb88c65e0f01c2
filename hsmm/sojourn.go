package hsmm

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/distuv"
)

// SojournDist represents a state's duration law as a probability mass
// function over positive integer durations 1..MaxSupport().
//
// The set of implementations is closed: a sojourn law is either raw
// nonparametric or kernel-smoothed nonparametric, and EM re-estimation
// preserves the variant. Validation of the pmf (non-negative, sums to 1)
// happens in Specify, so constructors accept unnormalized input only where
// documented.
type SojournDist interface {
	// Pmf returns P(duration = d) for d >= 1, and 0 outside the support.
	Pmf(d int) float64

	// Mean returns the expected duration under the pmf.
	Mean() float64

	// MaxSupport returns the largest duration with nonzero declared support.
	MaxSupport() int

	// reestimate builds a new distribution of the same variant from expected
	// duration counts (index u-1 holds the weight of duration u). The input
	// is normalized by the implementation.
	reestimate(counts []float64) SojournDist
}

// NonparametricSojourn is a raw pmf over durations 1..len(pmf).
type NonparametricSojourn struct {
	pmf []float64
}

// NewNonparametricSojourn creates a sojourn law from an explicit pmf;
// pmf[0] is the probability of duration 1. The slice is copied. The pmf is
// validated when the enclosing model is specified.
func NewNonparametricSojourn(pmf []float64) *NonparametricSojourn {
	p := make([]float64, len(pmf))
	copy(p, pmf)
	return &NonparametricSojourn{pmf: p}
}

// Pmf returns P(duration = d).
func (s *NonparametricSojourn) Pmf(d int) float64 {
	if d < 1 || d > len(s.pmf) {
		return 0
	}
	return s.pmf[d-1]
}

// Mean returns the expected duration.
func (s *NonparametricSojourn) Mean() float64 {
	var m float64
	for i, p := range s.pmf {
		m += float64(i+1) * p
	}
	return m
}

// MaxSupport returns the largest representable duration.
func (s *NonparametricSojourn) MaxSupport() int {
	return len(s.pmf)
}

func (s *NonparametricSojourn) reestimate(counts []float64) SojournDist {
	return NewNonparametricSojourn(normalizedPmf(counts))
}

// SmoothedSojourn is a nonparametric pmf convolved with a Gaussian kernel
// of fixed bandwidth and renormalized over the same support. EM
// re-estimation re-smooths the expected duration counts with the declared
// bandwidth.
type SmoothedSojourn struct {
	raw       []float64
	bandwidth float64
	pmf       []float64
}

// NewSmoothedSojourn creates a kernel-smoothed sojourn law from a raw pmf
// (or raw counts; the result is normalized) and a Gaussian kernel
// bandwidth. Panics if bandwidth is not positive.
func NewSmoothedSojourn(raw []float64, bandwidth float64) *SmoothedSojourn {
	if bandwidth <= 0 {
		panic("hsmm: NewSmoothedSojourn: bandwidth must be positive")
	}
	r := make([]float64, len(raw))
	copy(r, raw)
	return &SmoothedSojourn{
		raw:       r,
		bandwidth: bandwidth,
		pmf:       smoothPmf(r, bandwidth),
	}
}

// Pmf returns P(duration = d) after smoothing.
func (s *SmoothedSojourn) Pmf(d int) float64 {
	if d < 1 || d > len(s.pmf) {
		return 0
	}
	return s.pmf[d-1]
}

// Mean returns the expected duration after smoothing.
func (s *SmoothedSojourn) Mean() float64 {
	var m float64
	for i, p := range s.pmf {
		m += float64(i+1) * p
	}
	return m
}

// MaxSupport returns the largest representable duration.
func (s *SmoothedSojourn) MaxSupport() int {
	return len(s.pmf)
}

// Bandwidth returns the Gaussian kernel bandwidth.
func (s *SmoothedSojourn) Bandwidth() float64 {
	return s.bandwidth
}

func (s *SmoothedSojourn) reestimate(counts []float64) SojournDist {
	return NewSmoothedSojourn(normalizedPmf(counts), s.bandwidth)
}

// NewNormalSojourn builds a nonparametric sojourn law by discretizing a
// Normal(mean, sd) over durations 1..maxSupport (CDF differences on unit
// bins, truncated to positive support and renormalized). Panics if sd is
// not positive or maxSupport < 1.
func NewNormalSojourn(mean, sd float64, maxSupport int) *NonparametricSojourn {
	if sd <= 0 {
		panic("hsmm: NewNormalSojourn: sd must be positive")
	}
	if maxSupport < 1 {
		panic("hsmm: NewNormalSojourn: maxSupport must be at least 1")
	}

	n := distuv.Normal{Mu: mean, Sigma: sd}
	pmf := make([]float64, maxSupport)
	for d := 1; d <= maxSupport; d++ {
		pmf[d-1] = n.CDF(float64(d)+0.5) - n.CDF(float64(d)-0.5)
	}
	return NewNonparametricSojourn(normalizedPmf(pmf))
}

// smoothPmf convolves raw with a Gaussian kernel of the given bandwidth on
// the integer grid and renormalizes over the same support.
func smoothPmf(raw []float64, bandwidth float64) []float64 {
	n := len(raw)
	out := make([]float64, n)
	if n == 0 {
		return out
	}

	kernel := distuv.Normal{Mu: 0, Sigma: bandwidth}
	for d := 0; d < n; d++ {
		var acc float64
		for u := 0; u < n; u++ {
			if raw[u] == 0 {
				continue
			}
			acc += raw[u] * kernel.Prob(float64(d-u))
		}
		out[d] = acc
	}
	return normalizedPmf(out)
}

// normalizedPmf returns a copy of x scaled to sum to 1. An all-zero input
// comes back unchanged (zeros); Specify rejects such a pmf.
func normalizedPmf(x []float64) []float64 {
	out := make([]float64, len(x))
	copy(out, x)
	total := floats.Sum(out)
	if total <= 0 || math.IsNaN(total) {
		return out
	}
	floats.Scale(1/total, out)
	return out
}
