package errs

import (
	"errors"
	"testing"
)

func TestMarkRetryableSurvivesWrapping(t *testing.T) {
	root := errors.New("database is locked")
	err := Wrap(MarkRetryable(root), "rebuild links")

	if !IsRetryable(err) {
		t.Fatalf("IsRetryable() = false, want true")
	}
	if !errors.Is(err, root) {
		t.Fatalf("errors.Is(err, root) = false")
	}
	if IsRetryable(Wrap(root, "plain")) {
		t.Fatalf("IsRetryable() = true for unmarked error")
	}
	if MarkRetryable(nil) != nil {
		t.Fatalf("MarkRetryable(nil) != nil")
	}
}

func TestErrorChainStrings(t *testing.T) {
	err := Wrapf(errors.New("inner"), "outer %d", 1)
	chain := ErrorChainStrings(err)
	if len(chain) != 2 || chain[0] != "outer 1: inner" || chain[1] != "inner" {
		t.Fatalf("ErrorChainStrings() = %#v", chain)
	}
}
