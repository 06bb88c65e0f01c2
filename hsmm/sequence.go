package hsmm

import (
	"github.com/YuminosukeSato/gohsmm/pkg/errors"
)

// Missing marks an absent entry in an observation row.
const Missing = -1

// NoState marks a row without ground-truth state information.
const NoState = -1

// ObservationSequence is an ordered, time-indexed table of categorical
// observations for one sequence id. Each row holds, per emission variable,
// either a category code (the index into the variable's declared value
// list) or Missing. Simulated or labeled data additionally carries a
// ground-truth state per row.
type ObservationSequence struct {
	id     string
	vars   []string
	codes  [][]int
	states []int // nil when no ground truth is attached
}

// NewObservationSequence builds a sequence from raw category codes;
// codes[t][v] is the code of variable vars[v] at time t, or Missing. Codes
// are range-checked against a model when the sequence is decoded or
// fitted, not here.
func NewObservationSequence(id string, vars []string, codes [][]int) (*ObservationSequence, error) {
	if len(vars) == 0 {
		return nil, errors.NewInvalidArgumentError("NewObservationSequence", "at least one variable is required", nil)
	}
	if len(codes) == 0 {
		return nil, errors.WithStack(errors.ErrEmptySequence)
	}
	rows := make([][]int, len(codes))
	for t, row := range codes {
		if len(row) != len(vars) {
			return nil, errors.NewDimensionError("NewObservationSequence", len(vars), len(row), 1)
		}
		rows[t] = append([]int(nil), row...)
	}
	return &ObservationSequence{
		id:    id,
		vars:  append([]string(nil), vars...),
		codes: rows,
	}, nil
}

// EncodeSequence builds a sequence from labeled values. rows[t][v] is the
// category label of the model's v-th variable at time t; an empty string
// marks a missing entry. Unknown labels are rejected with a
// ConfigurationError.
func EncodeSequence(m *Model, id string, rows [][]string) (*ObservationSequence, error) {
	if len(rows) == 0 {
		return nil, errors.WithStack(errors.ErrEmptySequence)
	}
	vars := m.Variables()
	codes := make([][]int, len(rows))
	for t, row := range rows {
		if len(row) != len(vars) {
			return nil, errors.NewDimensionError("EncodeSequence", len(vars), len(row), 1)
		}
		codes[t] = make([]int, len(row))
		for v, label := range row {
			if label == "" {
				codes[t][v] = Missing
				continue
			}
			code, ok := m.em.valueIndex[v][label]
			if !ok {
				return nil, errors.NewConfigurationError("sequence",
					"value "+label+" is not declared for variable "+vars[v], t)
			}
			codes[t][v] = code
		}
	}
	return &ObservationSequence{id: id, vars: vars, codes: codes}, nil
}

// ID returns the sequence id.
func (s *ObservationSequence) ID() string {
	return s.id
}

// Len returns the number of time steps.
func (s *ObservationSequence) Len() int {
	return len(s.codes)
}

// Variables returns a copy of the variable names in column order.
func (s *ObservationSequence) Variables() []string {
	return append([]string(nil), s.vars...)
}

// Value returns the category code of variable v at time t, or Missing.
func (s *ObservationSequence) Value(t, v int) int {
	return s.codes[t][v]
}

// Row returns a copy of the observation row at time t.
func (s *ObservationSequence) Row(t int) []int {
	return append([]int(nil), s.codes[t]...)
}

// HasStates reports whether ground-truth states are attached.
func (s *ObservationSequence) HasStates() bool {
	return s.states != nil
}

// States returns a copy of the ground-truth state path, or nil if none is
// attached.
func (s *ObservationSequence) States() []int {
	if s.states == nil {
		return nil
	}
	return append([]int(nil), s.states...)
}

// WithoutStates returns a copy of the sequence with the ground-truth
// column stripped, for feeding simulated data to the decoder or fitter as
// if it were observed.
func (s *ObservationSequence) WithoutStates() *ObservationSequence {
	out := &ObservationSequence{
		id:    s.id,
		vars:  append([]string(nil), s.vars...),
		codes: make([][]int, len(s.codes)),
	}
	for t, row := range s.codes {
		out.codes[t] = append([]int(nil), row...)
	}
	return out
}

// MissingCount returns the number of Missing entries in the table.
func (s *ObservationSequence) MissingCount() int {
	var n int
	for _, row := range s.codes {
		for _, code := range row {
			if code == Missing {
				n++
			}
		}
	}
	return n
}
