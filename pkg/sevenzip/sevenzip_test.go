package sevenzip

import (
	"context"
	"strings"
	"testing"
)

func TestExtractMissingBinary(t *testing.T) {
	r := NewRunner("/nonexistent/7z-binary")

	err := r.Extract(context.Background(), "whatever.img", t.TempDir())
	if err == nil {
		t.Fatal("expected error for missing binary")
	}
	if _, ok := err.(*ExitError); ok {
		t.Error("a missing binary is not a tool exit failure")
	}
}

func TestNewRunnerDefault(t *testing.T) {
	r := NewRunner("")
	if r.binary != DefaultBinary {
		t.Errorf("default binary = %q, want %q", r.binary, DefaultBinary)
	}
}

func TestExitErrorMessage(t *testing.T) {
	err := &ExitError{ExitCode: 2, Output: "Can not open the file as archive"}
	if !strings.Contains(err.Error(), "2") {
		t.Errorf("exit code missing from message: %q", err.Error())
	}
}
