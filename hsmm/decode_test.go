package hsmm

import (
	"math"
	"testing"

	"github.com/YuminosukeSato/gohsmm/pkg/errors"
)

func accuracyOf(truth, pred []int) float64 {
	var correct int
	for i := range truth {
		if truth[i] == pred[i] {
			correct++
		}
	}
	return float64(correct) / float64(len(truth))
}

func TestDecodePosteriorRowsSumToOne(t *testing.T) {
	m := mustModel(t, cycleSpec())
	seq, err := NewSimulator(m, WithSeed(5)).Run("s1", 10)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	res, err := NewDecoder(m).Decode(seq.WithoutStates())
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	post := res.Posterior()
	r, c := post.Dims()
	if r != seq.Len() || c != m.NumStates() {
		t.Fatalf("posterior dims = %dx%d, want %dx%d", r, c, seq.Len(), m.NumStates())
	}
	for i := 0; i < r; i++ {
		var sum float64
		for j := 0; j < c; j++ {
			p := post.At(i, j)
			if p < 0 || p > 1 {
				t.Fatalf("posterior[%d][%d] = %v outside [0,1]", i, j, p)
			}
			sum += p
		}
		if math.Abs(sum-1) > 1e-9 {
			t.Errorf("posterior row %d sums to %v", i, sum)
		}
	}

	states := res.States()
	conf := res.Confidence()
	for i := 0; i < r; i++ {
		if got := post.At(i, states[i]); math.Abs(got-conf[i]) > 1e-12 {
			t.Errorf("confidence[%d] = %v, posterior of chosen state = %v", i, conf[i], got)
		}
		for j := 0; j < c; j++ {
			if post.At(i, j) > conf[i]+1e-12 {
				t.Errorf("state %d beats the reported arg-max at t=%d", j, i)
			}
		}
	}

	if math.IsNaN(res.LogLikelihood()) || res.LogLikelihood() >= 0 {
		t.Errorf("LogLikelihood = %v, want finite negative", res.LogLikelihood())
	}
}

func TestDecodeRoundTrip(t *testing.T) {
	m := mustModel(t, cycleSpec())
	seq, err := NewSimulator(m, WithSeed(42)).Run("s1", 20)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	res, err := NewDecoder(m).Decode(seq.WithoutStates())
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	acc := accuracyOf(seq.States(), res.States())
	if acc <= 0.95 {
		t.Errorf("round-trip accuracy = %v, want > 0.95", acc)
	}
}

func TestDecodeWithMissingAndNoCensoring(t *testing.T) {
	m := mustModel(t, cycleSpec())

	seq, err := NewObservationSequence("s1", []string{"bleeding"}, [][]int{
		{0}, {0}, {Missing}, {0}, {1}, {Missing}, {1}, {1}, {1}, {1},
	})
	if err != nil {
		t.Fatalf("NewObservationSequence failed: %v", err)
	}

	// Without a censoring spec missing entries are ignorable, not fatal.
	res, err := NewDecoder(m).Decode(seq)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if len(res.States()) != seq.Len() {
		t.Errorf("decoded %d states, want %d", len(res.States()), seq.Len())
	}
}

func TestDecodeCensoringAwareBeatsBlind(t *testing.T) {
	// Weak emissions, strongly state-dependent missingness: the absence
	// pattern carries most of the state information.
	awareSpec := cycleSpec()
	awareSpec.Emissions[0].Probs = [][]float64{{0.7, 0.3}, {0.3, 0.7}}
	awareSpec.Censoring = &CensoringSpec{
		P: []float64{0, 0},
		Q: [][]float64{{0.05, 0.8}},
	}
	aware := mustModel(t, awareSpec)

	blindSpec := awareSpec
	blindSpec.Censoring = nil
	blind := mustModel(t, blindSpec)

	seq, err := NewSimulator(aware, WithSeed(99)).Run("s1", 30)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	stripped := seq.WithoutStates()

	resAware, err := NewDecoder(aware).Decode(stripped)
	if err != nil {
		t.Fatalf("aware Decode failed: %v", err)
	}
	resBlind, err := NewDecoder(blind).Decode(stripped)
	if err != nil {
		t.Fatalf("blind Decode failed: %v", err)
	}

	truth := seq.States()
	errAware := 1 - accuracyOf(truth, resAware.States())
	errBlind := 1 - accuracyOf(truth, resBlind.States())
	if errAware >= errBlind {
		t.Errorf("censoring-aware error %v should be below censoring-blind error %v",
			errAware, errBlind)
	}
}

func TestDecodeDuplicateVariable(t *testing.T) {
	spec := cycleSpec()
	spec.Emissions = append(spec.Emissions, EmissionSpec{
		Variable: "pain",
		Values:   []string{"yes", "no"},
		Probs:    [][]float64{{0.6, 0.1}, {0.4, 0.9}},
	})
	m := mustModel(t, spec)

	// Naming the same variable twice would leave "pain" without a column;
	// the mapping onto model variables must be a bijection.
	seq, err := NewObservationSequence("s1", []string{"bleeding", "bleeding"}, [][]int{
		{0, 0}, {0, 1}, {1, 1},
	})
	if err != nil {
		t.Fatalf("NewObservationSequence failed: %v", err)
	}

	_, err = NewDecoder(m).Decode(seq)
	var cfgErr *errors.ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigurationError, got %v", err)
	}
	if cfgErr.Component != "sequence" || cfgErr.Index != 1 {
		t.Errorf("got %+v, want sequence error at the duplicated column 1", cfgErr)
	}
}

func TestDecodeUnknownVariable(t *testing.T) {
	m := mustModel(t, cycleSpec())
	seq, err := NewObservationSequence("s1", []string{"mucus"}, [][]int{{0}, {1}})
	if err != nil {
		t.Fatalf("NewObservationSequence failed: %v", err)
	}

	_, err = NewDecoder(m).Decode(seq)
	var cfgErr *errors.ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigurationError, got %v", err)
	}
	if cfgErr.Component != "sequence" {
		t.Errorf("component = %q, want sequence", cfgErr.Component)
	}
}

func TestDecodeValueOutOfRange(t *testing.T) {
	m := mustModel(t, cycleSpec())
	seq, err := NewObservationSequence("s1", []string{"bleeding"}, [][]int{{0}, {5}})
	if err != nil {
		t.Fatalf("NewObservationSequence failed: %v", err)
	}

	_, err = NewDecoder(m).Decode(seq)
	var cfgErr *errors.ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigurationError, got %v", err)
	}
	if cfgErr.Index != 1 {
		t.Errorf("index = %d, want the offending time step 1", cfgErr.Index)
	}
}

func TestDecoderReusableAcrossSequences(t *testing.T) {
	m := mustModel(t, cycleSpec())
	sim := NewSimulator(m, WithSeed(8))
	d := NewDecoder(m)

	long, err := sim.Run("long", 15)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	short, err := sim.Run("short", 3)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	// Decode a long sequence, then a short one on the same decoder; the
	// reused trellis must not leak stale mass into the second result.
	if _, err := d.Decode(long.WithoutStates()); err != nil {
		t.Fatalf("first Decode failed: %v", err)
	}
	res, err := d.Decode(short.WithoutStates())
	if err != nil {
		t.Fatalf("second Decode failed: %v", err)
	}

	post := res.Posterior()
	r, c := post.Dims()
	if r != short.Len() {
		t.Fatalf("posterior rows = %d, want %d", r, short.Len())
	}
	for i := 0; i < r; i++ {
		var sum float64
		for j := 0; j < c; j++ {
			sum += post.At(i, j)
		}
		if math.Abs(sum-1) > 1e-9 {
			t.Errorf("posterior row %d sums to %v after trellis reuse", i, sum)
		}
	}
}
