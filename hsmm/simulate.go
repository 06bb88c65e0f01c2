package hsmm

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/YuminosukeSato/gohsmm/core/parallel"
	"github.com/YuminosukeSato/gohsmm/pkg/errors"
	"github.com/YuminosukeSato/gohsmm/pkg/log"
)

// Simulator draws synthetic observation sequences from a model: it samples
// an initial state, a sojourn duration, emits that many rows (applying the
// state-dependent missingness law), then samples the next state from the
// transition row, repeating until the requested number of transitions is
// reached. Ground-truth states are attached to every row.
type Simulator struct {
	model  *Model
	rng    *rand.Rand
	logger log.Logger
}

// SimOption configures a Simulator.
type SimOption func(*Simulator)

// WithSeed seeds the simulator's random source for reproducible output.
func WithSeed(seed int64) SimOption {
	return func(s *Simulator) {
		s.rng = rand.New(rand.NewSource(seed))
	}
}

// WithRand supplies an explicit random source.
func WithRand(rng *rand.Rand) SimOption {
	return func(s *Simulator) {
		s.rng = rng
	}
}

// WithSimulatorLogger replaces the simulator's logger.
func WithSimulatorLogger(logger log.Logger) SimOption {
	return func(s *Simulator) {
		s.logger = logger
	}
}

// NewSimulator creates a simulator for the given model. Without WithSeed
// the random source is time-seeded.
func NewSimulator(m *Model, opts ...SimOption) *Simulator {
	s := &Simulator{
		model:  m,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
		logger: log.GetLogger().With(log.ComponentKey, "simulator"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run generates one sequence containing the requested number of state
// transitions (transitions+1 sojourn blocks). The only failure is a
// malformed request.
func (s *Simulator) Run(id string, transitions int) (*ObservationSequence, error) {
	if transitions <= 0 {
		return nil, errors.NewInvalidArgumentError("Simulator.Run", "number of transitions must be positive", transitions)
	}

	seq := s.simulate(id, transitions, s.rng)

	s.logger.Debug("simulated sequence",
		log.OperationKey, log.OperationSimulate,
		log.SequenceIDKey, id,
		log.TimeStepsKey, seq.Len(),
		log.MissingKey, seq.MissingCount(),
	)
	return seq, nil
}

// RunBatch generates n independent sequences sharing the model, with ids
// prefix-1 .. prefix-n. Sequences are simulated in parallel, each from its
// own source seeded by the simulator's source, so a seeded batch is
// reproducible regardless of scheduling.
func (s *Simulator) RunBatch(prefix string, n, transitions int) ([]*ObservationSequence, error) {
	if n <= 0 {
		return nil, errors.NewInvalidArgumentError("Simulator.RunBatch", "number of sequences must be positive", n)
	}
	if transitions <= 0 {
		return nil, errors.NewInvalidArgumentError("Simulator.RunBatch", "number of transitions must be positive", transitions)
	}

	seeds := make([]int64, n)
	for i := range seeds {
		seeds[i] = s.rng.Int63()
	}

	out := make([]*ObservationSequence, n)
	parallel.Parallelize(n, func(start, end int) {
		for i := start; i < end; i++ {
			rng := rand.New(rand.NewSource(seeds[i]))
			out[i] = s.simulate(fmt.Sprintf("%s-%d", prefix, i+1), transitions, rng)
		}
	})

	s.logger.Debug("simulated batch",
		log.OperationKey, log.OperationSimulate,
		log.SequencesKey, n,
	)
	return out, nil
}

func (s *Simulator) simulate(id string, transitions int, rng *rand.Rand) *ObservationSequence {
	m := s.model
	var codes [][]int
	var states []int

	j := sampleCategorical(rng, m.init)
	for k := 0; ; k++ {
		d := s.sampleSojourn(rng, j)
		for i := 0; i < d; i++ {
			codes = append(codes, s.emitRow(rng, j))
			states = append(states, j)
		}
		if k == transitions {
			break
		}
		j = sampleCategorical(rng, m.trans[j])
	}

	return &ObservationSequence{
		id:     id,
		vars:   m.Variables(),
		codes:  codes,
		states: states,
	}
}

func (s *Simulator) sampleSojourn(rng *rand.Rand, j int) int {
	sj := s.model.sojourns[j]
	maxD := sj.MaxSupport()
	u := rng.Float64()
	var cdf float64
	for d := 1; d < maxD; d++ {
		cdf += sj.Pmf(d)
		if u < cdf {
			return d
		}
	}
	return maxD
}

func (s *Simulator) emitRow(rng *rand.Rand, j int) []int {
	m := s.model
	row := make([]int, len(m.emissions))
	for v := range m.emissions {
		if m.em.miss != nil && rng.Float64() < m.em.miss[v][j] {
			row[v] = Missing
			continue
		}
		row[v] = sampleEmission(rng, m.emissions[v].Probs, j)
	}
	return row
}

// sampleCategorical draws an index from a probability vector by inverse
// CDF. Rounding drift is absorbed by the final index.
func sampleCategorical(rng *rand.Rand, probs []float64) int {
	u := rng.Float64()
	var cdf float64
	for i, p := range probs {
		cdf += p
		if u < cdf {
			return i
		}
	}
	return len(probs) - 1
}

// sampleEmission draws a value code from column j of a values-by-states
// probability matrix.
func sampleEmission(rng *rand.Rand, probs [][]float64, j int) int {
	u := rng.Float64()
	var cdf float64
	for k := range probs {
		cdf += probs[k][j]
		if u < cdf {
			return k
		}
	}
	return len(probs) - 1
}
