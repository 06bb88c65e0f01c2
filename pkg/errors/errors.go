// Package errors provides error handling and the warning system for the
// whole project. Errors are structured, carry stack traces via
// cockroachdb/errors, and can be marshaled into zerolog events.
package errors

import (
	"fmt"
	"log"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
)

// ===========================================================================
//
//	Global warning handling
//
// ===========================================================================
var (
	warningMutex   sync.Mutex
	warningHandler = func(w error) {
		// The default handler logs to standard error.
		log.Printf("gohsmm-Warning: %v\n", w)
	}
	// zerolog warn hook (lazily installed to avoid an import cycle)
	zerologWarnFunc func(warning error)
)

// SetWarningHandler sets the warning handler for the whole library.
// It controls how non-fatal diagnostics such as ConvergenceWarning are
// reported.
//
// Example:
//
//	errors.SetWarningHandler(func(w error) {
//	    // ignore warnings
//	})
func SetWarningHandler(handler func(w error)) {
	warningMutex.Lock()
	defer warningMutex.Unlock()
	warningHandler = handler
}

// SetZerologWarnFunc installs a zerolog warning function (kept separate to
// avoid an import cycle with pkg/log).
func SetZerologWarnFunc(warnFunc func(warning error)) {
	warningMutex.Lock()
	defer warningMutex.Unlock()
	zerologWarnFunc = warnFunc
}

// Warn raises a warning. If a zerolog hook is installed it takes precedence
// over the plain handler.
func Warn(w error) {
	warningMutex.Lock()
	defer warningMutex.Unlock()

	if zerologWarnFunc != nil {
		zerologWarnFunc(w)
		return
	}

	if warningHandler != nil {
		warningHandler(w)
	}
}

// ===========================================================================
//
//	Warning types
//
// ===========================================================================

// ConvergenceWarning is raised when an iterative optimization did not
// converge. For EM fitting this is a diagnostic, not an error: the fit
// result is still valid and carries a Converged=false flag.
type ConvergenceWarning struct {
	Algorithm  string
	Iterations int
	Message    string
}

func (w *ConvergenceWarning) Error() string {
	if w.Message != "" {
		return fmt.Sprintf("%s failed to converge after %d iterations: %s", w.Algorithm, w.Iterations, w.Message)
	}
	return fmt.Sprintf("%s failed to converge after %d iterations. Consider increasing max_iter or loosening the tolerance.", w.Algorithm, w.Iterations)
}

// MarshalZerologObject adds the structured warning fields to a zerolog event.
func (w *ConvergenceWarning) MarshalZerologObject(e *zerolog.Event) {
	e.Str("algorithm", w.Algorithm).
		Int("iterations", w.Iterations).
		Str("message", w.Message).
		Str("type", "ConvergenceWarning")
}

// NewConvergenceWarning creates a new ConvergenceWarning.
func NewConvergenceWarning(algorithm string, iterations int, message string) *ConvergenceWarning {
	return &ConvergenceWarning{Algorithm: algorithm, Iterations: iterations, Message: message}
}

// LikelihoodDecreaseWarning is raised when the log-likelihood decreases
// between EM iterations beyond numerical noise. With exact E and M steps
// this cannot happen; in practice it signals an over-aggressive pseudo-count
// or a degenerate model.
type LikelihoodDecreaseWarning struct {
	Algorithm string
	Iteration int
	Decrease  float64
}

func (w *LikelihoodDecreaseWarning) Error() string {
	return fmt.Sprintf("%s log-likelihood decreased by %g at iteration %d", w.Algorithm, w.Decrease, w.Iteration)
}

// MarshalZerologObject adds the structured warning fields to a zerolog event.
func (w *LikelihoodDecreaseWarning) MarshalZerologObject(e *zerolog.Event) {
	e.Str("algorithm", w.Algorithm).
		Int("iteration", w.Iteration).
		Float64("decrease", w.Decrease).
		Str("type", "LikelihoodDecreaseWarning")
}

// NewLikelihoodDecreaseWarning creates a new LikelihoodDecreaseWarning.
func NewLikelihoodDecreaseWarning(algorithm string, iteration int, decrease float64) *LikelihoodDecreaseWarning {
	return &LikelihoodDecreaseWarning{Algorithm: algorithm, Iteration: iteration, Decrease: decrease}
}

// ===========================================================================
//
//	Structured error types
//
// ===========================================================================

// ConfigurationError reports a malformed or inconsistent model
// specification, or a decode/fit request referencing variables or values
// outside the model's declared domain. It identifies which constraint
// failed and at which index.
type ConfigurationError struct {
	Component  string // e.g. "transition", "initial", "sojourn", "emission", "censoring", "sequence"
	Constraint string // human-readable description of the violated constraint
	Index      int    // offending row/column/state index, -1 if not applicable
}

func (e *ConfigurationError) Error() string {
	if e.Index >= 0 {
		return fmt.Sprintf("hsmm: invalid %s specification at index %d: %s", e.Component, e.Index, e.Constraint)
	}
	return fmt.Sprintf("hsmm: invalid %s specification: %s", e.Component, e.Constraint)
}

// MarshalZerologObject adds the structured error fields to a zerolog event.
func (e *ConfigurationError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("component", e.Component).
		Str("constraint", e.Constraint).
		Int("index", e.Index).
		Str("type", "ConfigurationError")
}

// NewConfigurationError creates a new ConfigurationError with a stack trace.
func NewConfigurationError(component, constraint string, index int) error {
	err := &ConfigurationError{Component: component, Constraint: constraint, Index: index}
	return errors.WithStack(err)
}

// InvalidArgumentError reports a malformed request, such as a nonpositive
// simulation length.
type InvalidArgumentError struct {
	Op      string
	Message string
	Value   interface{}
}

func (e *InvalidArgumentError) Error() string {
	if e.Value != nil {
		return fmt.Sprintf("hsmm: %s: %s (got: %v)", e.Op, e.Message, e.Value)
	}
	return fmt.Sprintf("hsmm: %s: %s", e.Op, e.Message)
}

// MarshalZerologObject adds the structured error fields to a zerolog event.
func (e *InvalidArgumentError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("operation", e.Op).
		Str("message", e.Message).
		Interface("value", e.Value).
		Str("type", "InvalidArgumentError")
}

// NewInvalidArgumentError creates a new InvalidArgumentError with a stack
// trace.
func NewInvalidArgumentError(op, message string, value interface{}) error {
	err := &InvalidArgumentError{Op: op, Message: message, Value: value}
	return errors.WithStack(err)
}

// NumericalError reports unrecoverable underflow or overflow in the
// forward-backward recursions. It is fatal and carries the offending
// sequence and time index.
type NumericalError struct {
	Op         string
	SequenceID string
	TimeIndex  int
}

func (e *NumericalError) Error() string {
	return fmt.Sprintf("hsmm: %s: numerical underflow in sequence %q at time index %d", e.Op, e.SequenceID, e.TimeIndex)
}

// MarshalZerologObject adds the structured error fields to a zerolog event.
func (e *NumericalError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("operation", e.Op).
		Str("sequence_id", e.SequenceID).
		Int("time_index", e.TimeIndex).
		Str("type", "NumericalError")
}

// NewNumericalError creates a new NumericalError with a stack trace.
func NewNumericalError(op, sequenceID string, timeIndex int) error {
	err := &NumericalError{Op: op, SequenceID: sequenceID, TimeIndex: timeIndex}
	return errors.WithStack(err)
}

// DimensionError reports an input whose dimensions differ from what the
// model expects.
type DimensionError struct {
	Op       string
	Expected int
	Got      int
	Axis     int // 0 for rows/time steps, 1 for columns/variables
}

func (e *DimensionError) Error() string {
	axisName := "variables"
	if e.Axis == 0 {
		axisName = "rows"
	}
	return fmt.Sprintf("hsmm: %s: dimension mismatch on axis %d (%s). Expected %d, got %d", e.Op, e.Axis, axisName, e.Expected, e.Got)
}

// MarshalZerologObject adds the structured error fields to a zerolog event.
func (e *DimensionError) MarshalZerologObject(event *zerolog.Event) {
	axisName := "variables"
	if e.Axis == 0 {
		axisName = "rows"
	}
	event.Str("operation", e.Op).
		Int("expected", e.Expected).
		Int("got", e.Got).
		Int("axis", e.Axis).
		Str("axis_name", axisName).
		Str("type", "DimensionError")
}

// NewDimensionError creates a new DimensionError with a stack trace.
func NewDimensionError(op string, expected, got, axis int) error {
	err := &DimensionError{Op: op, Expected: expected, Got: got, Axis: axis}
	return errors.WithStack(err)
}

// ===========================================================================
//
//	cockroachdb/errors wrappers
//
// ===========================================================================

// Is reports whether err matches the target error.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As reports whether err can be cast into the target type.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Wrap wraps an existing error with a message.
func Wrap(err error, message string) error {
	return errors.Wrap(err, message)
}

// Wrapf wraps an existing error with a format string.
func Wrapf(err error, format string, args ...interface{}) error {
	return errors.Wrapf(err, format, args...)
}

// New creates a new error.
func New(message string) error {
	return errors.New(message)
}

// Newf creates a new formatted error.
func Newf(format string, args ...interface{}) error {
	return errors.Newf(format, args...)
}

// WithStack annotates an error with a stack trace.
func WithStack(err error) error {
	return errors.WithStack(err)
}

// ===========================================================================
//
//	Common error values
//
// ===========================================================================

var (
	// ErrEmptyData is returned when empty data is passed.
	ErrEmptyData = New("empty data")

	// ErrEmptySequence is returned when an observation sequence has no rows.
	ErrEmptySequence = New("empty sequence")
)
