package kernel

import (
	"errors"
	"testing"
)

func TestKernelError(t *testing.T) {
	err := &Error{
		Module:  "foo",
		Message: "error message",
	}

	if err.Error() != err.Message {
		t.Fatalf("expected to err.Error() to return %q; got %q", err.Message, err.Error())
	}
}

func TestKernelErrorIs(t *testing.T) {
	var (
		errA = &Error{Module: "vmm", Message: "same text"}
		errB = &Error{Module: "vmm", Message: "same text"}
	)

	if !errors.Is(errA, errA) {
		t.Error("expected error to match itself")
	}

	if errors.Is(errA, errB) {
		t.Error("expected distinct kernel errors with the same message not to match")
	}

	if errors.Is(errA, errors.New("same text")) {
		t.Error("expected kernel error not to match a non-kernel error")
	}
}
