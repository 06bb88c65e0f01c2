package log

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	hsmmerrors "github.com/YuminosukeSato/gohsmm/pkg/errors"
)

// TestLoggerInterface exercises the TestLogger implementation end to end.
func TestLoggerInterface(t *testing.T) {
	testLogger, buffer := NewTestLogger(LevelDebug)

	testLogger.Debug("debug message", "key1", "value1", "number", 42)
	testLogger.Info("info message", OperationKey, OperationDecode)
	testLogger.Warn("warning message", "warning_code", "TEST_WARNING")

	testErr := fmt.Errorf("test error")
	testLogger.Error("error message", "err", testErr)

	output := buffer.String()
	if output == "" {
		t.Fatal("Expected log output, got empty string")
	}

	for _, msg := range []string{"debug message", "info message", "warning message", "error message"} {
		if !testLogger.ContainsMessage(msg) {
			t.Errorf("%q not found in output", msg)
		}
	}

	if !testLogger.ContainsField(OperationKey, OperationDecode) {
		t.Error("Expected decode operation field in logs")
	}
}

func TestLoggerWithFields(t *testing.T) {
	testLogger, _ := NewTestLogger(LevelInfo)

	seqLogger := testLogger.With(SequenceIDKey, "seq-1")
	seqLogger.Info("decoding finished")

	if !testLogger.ContainsField(SequenceIDKey, "seq-1") {
		t.Error("With fields should propagate to child log entries")
	}

	// Debug is below the configured level and must be dropped.
	seqLogger.Debug("dropped")
	if testLogger.ContainsMessage("dropped") {
		t.Error("Debug record should have been dropped at info level")
	}

	if testLogger.Enabled(context.Background(), LevelDebug) {
		t.Error("Enabled(debug) should be false at info level")
	}
}

func TestSetLogger(t *testing.T) {
	orig := GetLogger()
	defer SetLogger(orig)

	testLogger, _ := NewTestLogger(LevelDebug)
	SetLogger(testLogger)

	GetLogger().Info("routed")
	if !testLogger.ContainsMessage("routed") {
		t.Error("default logger was not replaced")
	}
}

func TestWithStacktraces(t *testing.T) {
	var buf bytes.Buffer
	handler := WithStacktraces(slog.NewJSONHandler(&buf, nil))
	logger := slog.New(handler)

	logger.Error("decode failed", ErrAttr(hsmmerrors.NewNumericalError("Decoder.Decode", "seq-1", 12)))

	out := buf.String()
	if !strings.Contains(out, StacktraceAttrKey) {
		t.Errorf("stacktrace attribute missing from output: %s", out)
	}
	if !strings.Contains(out, "seq-1") {
		t.Errorf("error message missing from output: %s", out)
	}

	// Errors without a recorded stack trace must pass through untouched.
	buf.Reset()
	logger.Error("plain", ErrAttr(fmt.Errorf("plain error")))
	if strings.Contains(buf.String(), StacktraceAttrKey) {
		t.Errorf("unexpected stacktrace attribute: %s", buf.String())
	}
}

func TestZerologWarnHook(t *testing.T) {
	var buf bytes.Buffer
	InstallZerologWarnHook(zerolog.New(&buf))
	defer hsmmerrors.SetZerologWarnFunc(nil)

	hsmmerrors.Warn(hsmmerrors.NewConvergenceWarning("EM", 50, ""))

	out := buf.String()
	if !strings.Contains(out, "ConvergenceWarning") {
		t.Errorf("structured warning object missing from output: %s", out)
	}
	if !strings.Contains(out, `"iterations":50`) {
		t.Errorf("iterations field missing from output: %s", out)
	}
}

func TestZerologLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := NewZerologLogger(&buf)

	logger.Info("fit progress", IterationKey, 3, LogLikelihoodKey, -123.4)

	out := buf.String()
	if !strings.Contains(out, "fit progress") || !strings.Contains(out, `"training.iteration":3`) {
		t.Errorf("unexpected zerolog output: %s", out)
	}
}
