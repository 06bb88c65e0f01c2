package errors

import (
	"math"
	"strings"
	"sync"
	"testing"
)

func TestConfigurationErrorMessage(t *testing.T) {
	err := NewConfigurationError("transition", "row does not sum to 1", 2)

	var cfgErr *ConfigurationError
	if !As(err, &cfgErr) {
		t.Fatalf("expected ConfigurationError, got %T", err)
	}
	if cfgErr.Component != "transition" || cfgErr.Index != 2 {
		t.Errorf("unexpected fields: %+v", cfgErr)
	}
	if !strings.Contains(err.Error(), "index 2") {
		t.Errorf("message should carry the offending index: %s", err.Error())
	}
}

func TestConfigurationErrorWithoutIndex(t *testing.T) {
	err := NewConfigurationError("model", "state count mismatch", -1)
	if strings.Contains(err.Error(), "index") {
		t.Errorf("message should omit the index when it is -1: %s", err.Error())
	}
}

func TestInvalidArgumentError(t *testing.T) {
	err := NewInvalidArgumentError("Simulator.Run", "number of transitions must be positive", -3)

	var argErr *InvalidArgumentError
	if !As(err, &argErr) {
		t.Fatalf("expected InvalidArgumentError, got %T", err)
	}
	if !strings.Contains(err.Error(), "got: -3") {
		t.Errorf("message should carry the offending value: %s", err.Error())
	}
}

func TestNumericalError(t *testing.T) {
	err := NewNumericalError("Decoder.Decode", "seq-7", 113)

	var numErr *NumericalError
	if !As(err, &numErr) {
		t.Fatalf("expected NumericalError, got %T", err)
	}
	if numErr.SequenceID != "seq-7" || numErr.TimeIndex != 113 {
		t.Errorf("unexpected fields: %+v", numErr)
	}
}

func TestWarningHandler(t *testing.T) {
	var mu sync.Mutex
	var captured []error

	SetWarningHandler(func(w error) {
		mu.Lock()
		defer mu.Unlock()
		captured = append(captured, w)
	})
	defer SetWarningHandler(nil)

	Warn(NewConvergenceWarning("EM", 100, "iteration cap reached"))

	mu.Lock()
	defer mu.Unlock()
	if len(captured) != 1 {
		t.Fatalf("expected 1 captured warning, got %d", len(captured))
	}
	var cw *ConvergenceWarning
	if !As(captured[0], &cw) {
		t.Fatalf("expected ConvergenceWarning, got %T", captured[0])
	}
	if cw.Iterations != 100 {
		t.Errorf("Iterations = %d, want 100", cw.Iterations)
	}
}

func TestCheckScalar(t *testing.T) {
	if err := CheckScalar("Fitter.Fit", -123.4, 3); err != nil {
		t.Errorf("finite value should pass: %v", err)
	}

	err := CheckScalar("Fitter.Fit", math.Inf(1), 3)
	var numErr *NumericalError
	if !As(err, &numErr) {
		t.Fatalf("expected NumericalError for Inf, got %v", err)
	}
	if numErr.TimeIndex != 3 {
		t.Errorf("TimeIndex = %d, want 3", numErr.TimeIndex)
	}
	if err := CheckScalar("Fitter.Fit", math.NaN(), 1); err == nil {
		t.Error("NaN should be rejected")
	}
}

func TestSafeDivide(t *testing.T) {
	if got := SafeDivide(1, 4); got != 0.25 {
		t.Errorf("SafeDivide(1,4) = %v, want 0.25", got)
	}
	if got := SafeDivide(1, 0); got != 0 {
		t.Errorf("SafeDivide by zero = %v, want 0", got)
	}
}

func TestLogSumExp(t *testing.T) {
	// log(e^0 + e^0) = log 2
	got := LogSumExp([]float64{0, 0})
	want := 0.6931471805599453
	if diff := got - want; diff > 1e-12 || diff < -1e-12 {
		t.Errorf("LogSumExp = %v, want %v", got, want)
	}

	// Large offsets must not overflow.
	got = LogSumExp([]float64{-1000, -1000})
	want = -1000 + 0.6931471805599453
	if diff := got - want; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("LogSumExp = %v, want %v", got, want)
	}
}

func TestLogAdd(t *testing.T) {
	a := LogAdd(-700, -700)
	b := LogSumExp([]float64{-700, -700})
	if diff := a - b; diff > 1e-12 || diff < -1e-12 {
		t.Errorf("LogAdd and LogSumExp disagree: %v vs %v", a, b)
	}
}
