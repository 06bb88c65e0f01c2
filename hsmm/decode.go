package hsmm

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/gohsmm/pkg/errors"
	"github.com/YuminosukeSato/gohsmm/pkg/log"
)

// DecodingResult holds the posterior state analysis of one sequence: the
// full T x J posterior occupancy matrix, the per-time most probable state
// with its posterior probability, and the sequence log-likelihood under the
// model.
type DecodingResult struct {
	seqID      string
	posterior  *mat.Dense
	states     []int
	confidence []float64
	logLik     float64
}

// SequenceID returns the id of the decoded sequence.
func (r *DecodingResult) SequenceID() string {
	return r.seqID
}

// Posterior returns the T x J matrix of posterior state occupancy
// probabilities; each row sums to 1. The caller owns the returned matrix.
func (r *DecodingResult) Posterior() *mat.Dense {
	return mat.DenseCopyOf(r.posterior)
}

// States returns the per-time maximum-posterior state indices.
func (r *DecodingResult) States() []int {
	return append([]int(nil), r.states...)
}

// Confidence returns the posterior probability of the chosen state per
// time step.
func (r *DecodingResult) Confidence() []float64 {
	return append([]float64(nil), r.confidence...)
}

// LogLikelihood returns the log-likelihood of the observations under the
// model, with the final sojourn treated as right-censored.
func (r *DecodingResult) LogLikelihood() float64 {
	return r.logLik
}

// Decoder runs the explicit-duration forward-backward algorithm against a
// fixed model. A Decoder reuses its internal trellis across calls and is
// not safe for concurrent use; create one per goroutine.
type Decoder struct {
	model  *Model
	logger log.Logger
	tr     *trellis
}

// DecodeOption configures a Decoder.
type DecodeOption func(*Decoder)

// WithDecoderLogger replaces the decoder's logger.
func WithDecoderLogger(logger log.Logger) DecodeOption {
	return func(d *Decoder) {
		d.logger = logger
	}
}

// NewDecoder creates a decoder for the given model.
func NewDecoder(m *Model, opts ...DecodeOption) *Decoder {
	d := &Decoder{
		model:  m,
		logger: log.GetLogger().With(log.ComponentKey, "decoder"),
		tr:     newTrellis(m),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Decode computes the posterior state occupancy of a sequence. Missing
// entries contribute their realized missingness probability when the model
// carries a censoring spec, so informative absence sharpens the posterior
// rather than degrading it. Ground-truth states attached to the sequence
// are ignored.
func (d *Decoder) Decode(seq *ObservationSequence) (*DecodingResult, error) {
	perm, err := d.model.checkSequence(seq)
	if err != nil {
		return nil, err
	}

	logLik, err := d.tr.run(d.model, seq, perm)
	if err != nil {
		return nil, err
	}

	T := seq.Len()
	J := d.model.NumStates()
	posterior := mat.NewDense(T, J, append([]float64(nil), d.tr.gamma[:T*J]...))
	states := make([]int, T)
	confidence := make([]float64, T)
	for t := 0; t < T; t++ {
		best, bestP := 0, d.tr.gamma[t*J]
		for j := 1; j < J; j++ {
			if p := d.tr.gamma[t*J+j]; p > bestP {
				best, bestP = j, p
			}
		}
		states[t] = best
		confidence[t] = bestP
	}

	d.logger.Debug("decoded sequence",
		log.OperationKey, log.OperationDecode,
		log.SequenceIDKey, seq.ID(),
		log.TimeStepsKey, T,
		log.LogLikelihoodKey, logLik,
	)

	return &DecodingResult{
		seqID:      seq.ID(),
		posterior:  posterior,
		states:     states,
		confidence: confidence,
		logLik:     logLik,
	}, nil
}

// trellis is the working memory of one forward-backward pass. The joint
// time-by-duration recursion tracks sojourn starts rather than plain state
// occupancy:
//
//	alpha[t][j]  log P(obs before t, a sojourn in j starts at t)
//	fend[t][j]   log P(obs through t, a sojourn in j ends at t)
//	beta[t][j]   log P(obs from t on | a sojourn in j starts at t)
//	bnext[t][j]  log P(obs from t on | a sojourn in j ended at t-1)
//
// The final sojourn is right-censored: a sojourn still running at the end
// of the sequence contributes its survivor mass P(D >= remaining length)
// instead of a completed-duration term. Posterior occupancy is accumulated
// from sojourn start and end masses. Completed-sojourn duration masses
// (eta) and transition masses (zeta) come out of the same pass for EM.
type trellis struct {
	J    int
	maxD []int

	// logPmf[j][u-1] = log P(D_j = u); logSurv[j][u-1] = log P(D_j >= u).
	logPmf  [][]float64
	logSurv [][]float64

	lb  []float64 // T*J per-time emission log-likelihoods
	cum []float64 // (T+1)*J prefix sums of lb

	alpha []float64
	fend  []float64
	beta  []float64
	bnext []float64

	startm []float64 // posterior mass of a sojourn in j starting at t
	endm   []float64 // posterior mass of a sojourn in j ending at t
	gamma  []float64 // posterior occupancy, row-normalized

	eta  [][]float64 // eta[j][u-1]: expected completed sojourns of length u
	zeta []float64   // J*J expected transition counts

	row     []int // observation row permuted into model variable order
	scratch []float64
}

func newTrellis(m *Model) *trellis {
	J := m.NumStates()
	tr := &trellis{
		J:       J,
		maxD:    append([]int(nil), m.maxD...),
		logPmf:  make([][]float64, J),
		logSurv: make([][]float64, J),
		eta:     make([][]float64, J),
		zeta:    make([]float64, J*J),
		row:     make([]int, len(m.emissions)),
		scratch: make([]float64, 0, J),
	}
	for j := 0; j < J; j++ {
		maxD := m.maxD[j]
		tr.logPmf[j] = make([]float64, maxD)
		tr.logSurv[j] = make([]float64, maxD)
		tail := 0.0
		for u := maxD; u >= 1; u-- {
			p := m.sojourns[j].Pmf(u)
			tail += p
			tr.logPmf[j][u-1] = safeLog(p)
			tr.logSurv[j][u-1] = safeLog(tail)
		}
		tr.eta[j] = make([]float64, maxD)
	}
	return tr
}

func (tr *trellis) ensure(T int) {
	J := tr.J
	if cap(tr.cum) < (T+1)*J {
		tr.lb = make([]float64, T*J)
		tr.cum = make([]float64, (T+1)*J)
		tr.alpha = make([]float64, T*J)
		tr.fend = make([]float64, T*J)
		tr.beta = make([]float64, T*J)
		tr.bnext = make([]float64, T*J)
		tr.startm = make([]float64, T*J)
		tr.endm = make([]float64, T*J)
		tr.gamma = make([]float64, T*J)
	}
	tr.lb = tr.lb[:T*J]
	tr.cum = tr.cum[:(T+1)*J]
	tr.alpha = tr.alpha[:T*J]
	tr.fend = tr.fend[:T*J]
	tr.beta = tr.beta[:T*J]
	tr.bnext = tr.bnext[:T*J]
	tr.startm = tr.startm[:T*J]
	tr.endm = tr.endm[:T*J]
	tr.gamma = tr.gamma[:T*J]
	for i := range tr.startm {
		tr.startm[i] = 0
		tr.endm[i] = 0
	}
	for j := range tr.eta {
		for u := range tr.eta[j] {
			tr.eta[j][u] = 0
		}
	}
	for i := range tr.zeta {
		tr.zeta[i] = 0
	}
}

// win returns the summed emission log-likelihood of state j over times
// a..b inclusive.
func (tr *trellis) win(j, a, b int) float64 {
	return tr.cum[(b+1)*tr.J+j] - tr.cum[a*tr.J+j]
}

// run executes one full forward-backward pass and fills the posterior and
// EM accumulators. It returns the right-censored sequence log-likelihood.
func (tr *trellis) run(m *Model, seq *ObservationSequence, perm []int) (float64, error) {
	T := seq.Len()
	J := tr.J
	tr.ensure(T)

	// Per-time emission log-likelihoods and their prefix sums. logZero
	// keeps impossible rows finite so windowed sums stay NaN-free.
	for t := 0; t < T; t++ {
		for v, code := range seq.codes[t] {
			tr.row[perm[v]] = code
		}
		for j := 0; j < J; j++ {
			tr.lb[t*J+j] = m.em.rowLogLik(tr.row, j)
		}
	}
	for j := 0; j < J; j++ {
		tr.cum[j] = 0
	}
	for t := 0; t < T; t++ {
		for j := 0; j < J; j++ {
			tr.cum[(t+1)*J+j] = tr.cum[t*J+j] + tr.lb[t*J+j]
		}
	}

	// Forward: sojourn-start and sojourn-end masses.
	for j := 0; j < J; j++ {
		tr.alpha[j] = m.logInit[j]
	}
	for t := 0; t < T; t++ {
		for j := 0; j < J; j++ {
			tr.scratch = tr.scratch[:0]
			for u := 1; u <= tr.maxD[j] && u <= t+1; u++ {
				s := t - u + 1
				tr.scratch = append(tr.scratch,
					tr.alpha[s*J+j]+tr.logPmf[j][u-1]+tr.win(j, s, t))
			}
			tr.fend[t*J+j] = errors.LogSumExp(tr.scratch)
		}
		if t+1 < T {
			for k := 0; k < J; k++ {
				tr.scratch = tr.scratch[:0]
				for j := 0; j < J; j++ {
					if j == k {
						continue
					}
					tr.scratch = append(tr.scratch, tr.fend[t*J+j]+m.logTrans[j*J+k])
				}
				tr.alpha[(t+1)*J+k] = errors.LogSumExp(tr.scratch)
			}
		}
	}

	// Backward, with the right-censored tail term at the boundary.
	for t := T - 1; t >= 0; t-- {
		for j := 0; j < J; j++ {
			tr.scratch = tr.scratch[:0]
			for u := 1; u <= tr.maxD[j] && t+u <= T-1; u++ {
				tr.scratch = append(tr.scratch,
					tr.logPmf[j][u-1]+tr.win(j, t, t+u-1)+tr.bnext[(t+u)*J+j])
			}
			if rem := T - t; rem <= tr.maxD[j] {
				tr.scratch = append(tr.scratch,
					tr.logSurv[j][rem-1]+tr.win(j, t, T-1))
			}
			tr.beta[t*J+j] = errors.LogSumExp(tr.scratch)
		}
		for j := 0; j < J; j++ {
			tr.scratch = tr.scratch[:0]
			for k := 0; k < J; k++ {
				if k == j {
					continue
				}
				tr.scratch = append(tr.scratch, m.logTrans[j*J+k]+tr.beta[t*J+k])
			}
			tr.bnext[t*J+j] = errors.LogSumExp(tr.scratch)
		}
	}

	tr.scratch = tr.scratch[:0]
	for j := 0; j < J; j++ {
		tr.scratch = append(tr.scratch, m.logInit[j]+tr.beta[j])
	}
	logLik := errors.LogSumExp(tr.scratch)
	if math.IsNaN(logLik) || logLik <= logZero/2 {
		return 0, errors.NewNumericalError("Decoder.Decode", seq.ID(), tr.impossibleTime(T))
	}

	// Posterior sojourn-start and sojourn-end masses, plus EM
	// accumulators.
	for t := 0; t < T; t++ {
		for j := 0; j < J; j++ {
			a := tr.alpha[t*J+j]
			if a <= logZero/2 {
				continue
			}
			if rem := T - t; rem <= tr.maxD[j] {
				w := math.Exp(a + tr.logSurv[j][rem-1] + tr.win(j, t, T-1) - logLik)
				tr.startm[t*J+j] += w
			}
			for u := 1; u <= tr.maxD[j] && t+u <= T-1; u++ {
				base := a + tr.logPmf[j][u-1] + tr.win(j, t, t+u-1)
				if base <= logZero/2 {
					continue
				}
				var w float64
				for k := 0; k < J; k++ {
					if k == j {
						continue
					}
					wk := math.Exp(base + m.logTrans[j*J+k] + tr.beta[(t+u)*J+k] - logLik)
					tr.zeta[j*J+k] += wk
					w += wk
				}
				tr.startm[t*J+j] += w
				tr.endm[(t+u-1)*J+j] += w
				tr.eta[j][u-1] += w
			}
		}
	}

	// Occupancy: a state is occupied at t by every sojourn started at or
	// before t and not yet ended before t.
	for j := 0; j < J; j++ {
		var run float64
		for t := 0; t < T; t++ {
			run += tr.startm[t*J+j]
			if run < 0 {
				run = 0
			}
			tr.gamma[t*J+j] = run
			run -= tr.endm[t*J+j]
		}
	}
	for t := 0; t < T; t++ {
		var sum float64
		for j := 0; j < J; j++ {
			sum += tr.gamma[t*J+j]
		}
		if sum <= 0 || math.IsNaN(sum) {
			return 0, errors.NewNumericalError("Decoder.Decode", seq.ID(), t)
		}
		for j := 0; j < J; j++ {
			tr.gamma[t*J+j] /= sum
		}
	}

	return logLik, nil
}

// impossibleTime locates the first time step whose observation row is
// impossible in every state, or -1 when the failure is not attributable to
// a single row.
func (tr *trellis) impossibleTime(T int) int {
	J := tr.J
	for t := 0; t < T; t++ {
		best := tr.lb[t*J]
		for j := 1; j < J; j++ {
			if tr.lb[t*J+j] > best {
				best = tr.lb[t*J+j]
			}
		}
		if best <= logZero/2 {
			return t
		}
	}
	return -1
}
