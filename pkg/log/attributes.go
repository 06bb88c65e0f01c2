// Package log defines standard attribute keys for HSMM operations.
//
// Using these keys keeps log output consistent across the library and
// enables structured filtering (e.g. all records for one sequence id or
// one fitting run).
package log

// Model and operation context.
const (
	// ModelNameKey identifies the model type. Example: "HSMM".
	ModelNameKey = "model.name"

	// OperationKey specifies the operation being performed.
	// Standard values: "specify", "simulate", "decode", "fit".
	OperationKey = "hsmm.operation"

	// ComponentKey identifies which component is performing the operation.
	// Examples: "simulator", "decoder", "fitter".
	ComponentKey = "hsmm.component"

	// StatesKey indicates the number of hidden states in the model.
	StatesKey = "model.states"

	// VariablesKey indicates the number of emission variables.
	VariablesKey = "model.variables"
)

// Data shape and characteristics.
const (
	// SequenceIDKey identifies one observation sequence.
	SequenceIDKey = "data.sequence_id"

	// SequencesKey indicates the number of sequences in a batch.
	SequencesKey = "data.sequences"

	// TimeStepsKey indicates the number of time steps in a sequence.
	TimeStepsKey = "data.time_steps"

	// MissingKey indicates the number of missing entries in a sequence.
	MissingKey = "data.missing"
)

// Training and inference metrics.
const (
	// IterationKey records the current EM iteration.
	IterationKey = "training.iteration"

	// LogLikelihoodKey records the total sequence log-likelihood.
	LogLikelihoodKey = "metrics.log_likelihood"

	// ConvergedKey records whether an iterative fit converged.
	ConvergedKey = "training.converged"

	// AccuracyKey records decoding accuracy against ground truth.
	AccuracyKey = "metrics.accuracy"

	// DurationMsKey records the execution time of an operation in
	// milliseconds.
	DurationMsKey = "perf.duration_ms"

	// SeedKey records the random seed for reproducibility.
	SeedKey = "config.random_seed"
)

// Standard attribute value constants for common operations.
const (
	OperationSpecify  = "specify"
	OperationSimulate = "simulate"
	OperationDecode   = "decode"
	OperationFit      = "fit"
)
