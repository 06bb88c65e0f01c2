package hsmm

import (
	"math"
	"sync"

	"github.com/YuminosukeSato/gohsmm/core/parallel"
	"github.com/YuminosukeSato/gohsmm/pkg/errors"
	"github.com/YuminosukeSato/gohsmm/pkg/log"
)

// Fitting defaults.
const (
	defaultMaxIter     = 100
	defaultTolerance   = 1e-4
	defaultPseudocount = 1e-6
)

// Fitter re-estimates model parameters from observation sequences by EM
// (generalized Baum-Welch with explicit durations). The input model is
// never mutated; every iteration produces a fresh validated Model.
type Fitter struct {
	maxIter         int
	tol             float64
	pseudocount     float64
	workers         int
	updateCensoring bool
	logger          log.Logger
}

// FitOption configures a Fitter.
type FitOption func(*Fitter)

// WithMaxIter caps the number of EM iterations.
func WithMaxIter(n int) FitOption {
	return func(f *Fitter) {
		f.maxIter = n
	}
}

// WithTolerance sets the absolute log-likelihood improvement below which
// the fit is declared converged.
func WithTolerance(tol float64) FitOption {
	return func(f *Fitter) {
		f.tol = tol
	}
}

// WithPseudocount sets the additive smoothing applied to every expected
// count before normalization, keeping re-estimated probabilities away
// from exact zeros. Must be positive: a state with no expected mass would
// otherwise produce an unnormalizable parameter row.
func WithPseudocount(c float64) FitOption {
	return func(f *Fitter) {
		f.pseudocount = c
	}
}

// WithWorkers sets the number of E-step workers. Zero or negative means
// one worker per CPU core.
func WithWorkers(n int) FitOption {
	return func(f *Fitter) {
		f.workers = n
	}
}

// WithCensoringUpdate enables re-estimation of the per-variable missingness
// probabilities Q from the data. The vector-level probabilities P stay
// fixed; the realized missingness rate observed per state is attributed to
// Q. Without this option the censoring spec is treated as known and kept.
func WithCensoringUpdate() FitOption {
	return func(f *Fitter) {
		f.updateCensoring = true
	}
}

// WithFitterLogger replaces the fitter's logger.
func WithFitterLogger(logger log.Logger) FitOption {
	return func(f *Fitter) {
		f.logger = logger
	}
}

// NewFitter creates a fitter with the default schedule (100 iterations,
// tolerance 1e-4, pseudocount 1e-6, one worker per core).
func NewFitter(opts ...FitOption) *Fitter {
	f := &Fitter{
		maxIter:     defaultMaxIter,
		tol:         defaultTolerance,
		pseudocount: defaultPseudocount,
		logger:      log.GetLogger().With(log.ComponentKey, "fitter"),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// FitResult holds the outcome of an EM run.
type FitResult struct {
	model      *Model
	logLik     []float64
	converged  bool
	iterations int
}

// Model returns the fitted model.
func (r *FitResult) Model() *Model {
	return r.model
}

// LogLikelihoods returns the total log-likelihood recorded at each
// iteration.
func (r *FitResult) LogLikelihoods() []float64 {
	return append([]float64(nil), r.logLik...)
}

// Converged reports whether the tolerance was reached before the
// iteration cap.
func (r *FitResult) Converged() bool {
	return r.converged
}

// Iterations returns the number of E-steps performed.
func (r *FitResult) Iterations() int {
	return r.iterations
}

// Fit runs EM from the given starting model over the sequences. Sequences
// are processed in parallel within each E-step; the M-step is the sole
// synchronization point. Hitting the iteration cap raises a
// ConvergenceWarning through the package warning handler; a decreasing
// log-likelihood raises a LikelihoodDecreaseWarning. Both leave the fit
// usable.
func (f *Fitter) Fit(m *Model, seqs []*ObservationSequence) (*FitResult, error) {
	if len(seqs) == 0 {
		return nil, errors.WithStack(errors.ErrEmptyData)
	}
	if f.maxIter <= 0 {
		return nil, errors.NewInvalidArgumentError("Fitter.Fit", "maximum iterations must be positive", f.maxIter)
	}
	if f.pseudocount <= 0 {
		return nil, errors.NewInvalidArgumentError("Fitter.Fit", "pseudocount must be positive", f.pseudocount)
	}

	cur := m
	history := make([]float64, 0, f.maxIter)
	converged := false

	for it := 0; it < f.maxIter; it++ {
		stats, err := f.estep(cur, seqs)
		if err != nil {
			return nil, err
		}
		if err := errors.CheckScalar("Fitter.Fit", stats.ll, it+1); err != nil {
			return nil, err
		}
		history = append(history, stats.ll)

		f.logger.Debug("EM iteration",
			log.OperationKey, log.OperationFit,
			log.IterationKey, it+1,
			log.LogLikelihoodKey, stats.ll,
		)

		if it > 0 {
			delta := stats.ll - history[it-1]
			if delta < -1e-10 {
				errors.Warn(errors.NewLikelihoodDecreaseWarning("EM", it+1, -delta))
			}
			if math.Abs(delta) < f.tol {
				converged = true
				break
			}
		}

		next, err := f.mstep(cur, stats)
		if err != nil {
			return nil, err
		}
		cur = next
	}

	if !converged {
		errors.Warn(errors.NewConvergenceWarning("EM", len(history),
			"maximum iterations reached before the tolerance"))
	}

	f.logger.Info("fit finished",
		log.OperationKey, log.OperationFit,
		log.IterationKey, len(history),
		log.ConvergedKey, converged,
		log.LogLikelihoodKey, history[len(history)-1],
		log.SequencesKey, len(seqs),
	)

	return &FitResult{
		model:      cur,
		logLik:     history,
		converged:  converged,
		iterations: len(history),
	}, nil
}

// estats accumulates the expected sufficient statistics of one E-step.
type estats struct {
	init    []float64   // expected occupancy at t=0
	trans   []float64   // J*J expected transition counts
	dur     [][]float64 // dur[j][u-1]: expected completed sojourns of length u
	emit    [][]float64 // emit[v][k*J+j]: expected observed-emission counts
	occ     []float64   // total expected occupancy per state
	missOcc [][]float64 // missOcc[v][j]: expected occupancy at missing entries
	ll      float64
}

func newEstats(m *Model) *estats {
	J := m.NumStates()
	s := &estats{
		init:    make([]float64, J),
		trans:   make([]float64, J*J),
		dur:     make([][]float64, J),
		emit:    make([][]float64, len(m.emissions)),
		occ:     make([]float64, J),
		missOcc: make([][]float64, len(m.emissions)),
	}
	for j := 0; j < J; j++ {
		s.dur[j] = make([]float64, m.maxD[j])
	}
	for v, e := range m.emissions {
		s.emit[v] = make([]float64, len(e.Values)*J)
		s.missOcc[v] = make([]float64, J)
	}
	return s
}

func (s *estats) absorb(tr *trellis, seq *ObservationSequence, perm []int) {
	J := tr.J
	for j := 0; j < J; j++ {
		s.init[j] += tr.gamma[j]
	}
	for i := range s.trans {
		s.trans[i] += tr.zeta[i]
	}
	for j := range s.dur {
		for u := range s.dur[j] {
			s.dur[j][u] += tr.eta[j][u]
		}
	}
	for t, row := range seq.codes {
		for j := 0; j < J; j++ {
			s.occ[j] += tr.gamma[t*J+j]
		}
		for v, code := range row {
			mv := perm[v]
			if code == Missing {
				for j := 0; j < J; j++ {
					s.missOcc[mv][j] += tr.gamma[t*J+j]
				}
				continue
			}
			for j := 0; j < J; j++ {
				s.emit[mv][code*J+j] += tr.gamma[t*J+j]
			}
		}
	}
}

func (s *estats) merge(o *estats) {
	for i := range s.init {
		s.init[i] += o.init[i]
	}
	for i := range s.trans {
		s.trans[i] += o.trans[i]
	}
	for j := range s.dur {
		for u := range s.dur[j] {
			s.dur[j][u] += o.dur[j][u]
		}
	}
	for v := range s.emit {
		for i := range s.emit[v] {
			s.emit[v][i] += o.emit[v][i]
		}
		for j := range s.missOcc[v] {
			s.missOcc[v][j] += o.missOcc[v][j]
		}
	}
	for j := range s.occ {
		s.occ[j] += o.occ[j]
	}
	s.ll += o.ll
}

// estep runs forward-backward over every sequence and accumulates expected
// counts. Sequences are split across workers, each with its own trellis;
// partial statistics are merged under a mutex. The first per-sequence
// error aborts the step.
func (f *Fitter) estep(m *Model, seqs []*ObservationSequence) (*estats, error) {
	agg := newEstats(m)
	var mu sync.Mutex
	var firstErr error

	parallel.ParallelizeWithWorkers(len(seqs), f.workers, func(start, end int) {
		tr := newTrellis(m)
		local := newEstats(m)
		for i := start; i < end; i++ {
			perm, err := m.checkSequence(seqs[i])
			if err == nil {
				var ll float64
				ll, err = tr.run(m, seqs[i], perm)
				if err == nil {
					local.ll += ll
					local.absorb(tr, seqs[i], perm)
				}
			}
			if err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
				return
			}
		}
		mu.Lock()
		agg.merge(local)
		mu.Unlock()
	})

	if firstErr != nil {
		return nil, firstErr
	}
	return agg, nil
}

// mstep normalizes the expected counts into a new parameter set and
// revalidates it through Specify. Duration counts come from completed
// sojourns only; the right-censored tail mass informs the likelihood but
// not the duration law.
func (f *Fitter) mstep(m *Model, s *estats) (*Model, error) {
	spec := m.spec()
	J := m.NumStates()

	spec.Initial = normalizeCounts(s.init, f.pseudocount)

	for j := 0; j < J; j++ {
		row := make([]float64, J)
		var sum float64
		for k := 0; k < J; k++ {
			if k == j {
				continue
			}
			row[k] = s.trans[j*J+k] + f.pseudocount
			sum += row[k]
		}
		for k := 0; k < J; k++ {
			if k != j {
				row[k] /= sum
			}
		}
		spec.Transition[j] = row
	}

	for j := 0; j < J; j++ {
		counts := make([]float64, len(s.dur[j]))
		for u := range counts {
			counts[u] = s.dur[j][u] + f.pseudocount
		}
		spec.Sojourns[j] = m.sojourns[j].reestimate(counts)
	}

	for v := range spec.Emissions {
		K := len(spec.Emissions[v].Values)
		for j := 0; j < J; j++ {
			var sum float64
			for k := 0; k < K; k++ {
				sum += s.emit[v][k*J+j] + f.pseudocount
			}
			for k := 0; k < K; k++ {
				spec.Emissions[v].Probs[k][j] = (s.emit[v][k*J+j] + f.pseudocount) / sum
			}
		}
	}

	if f.updateCensoring && spec.Censoring != nil {
		for v := range spec.Censoring.Q {
			for j := 0; j < J; j++ {
				realized := errors.SafeDivide(s.missOcc[v][j], s.occ[j])
				p := spec.Censoring.P[j]
				q := 0.0
				if p < 1 {
					q = (realized - p) / (1 - p)
				}
				spec.Censoring.Q[v][j] = errors.ClipValue(q, 0, 1)
			}
		}
	}

	return Specify(spec)
}

// normalizeCounts returns counts+pseudocount scaled to sum to 1.
func normalizeCounts(counts []float64, pseudocount float64) []float64 {
	out := make([]float64, len(counts))
	var sum float64
	for i, c := range counts {
		out[i] = c + pseudocount
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}
