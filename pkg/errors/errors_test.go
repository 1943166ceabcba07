package errors

import (
	stderrors "errors"
	"fmt"
	"testing"
)

func TestNew(t *testing.T) {
	err := New(ErrCodeUnknownPackage, "package %s not in workspace", "sp-core")

	if err.Code != ErrCodeUnknownPackage {
		t.Errorf("Code = %s, want %s", err.Code, ErrCodeUnknownPackage)
	}
	want := "UNKNOWN_PACKAGE: package sp-core not in workspace"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestWrap(t *testing.T) {
	cause := stderrors.New("connection refused")
	err := Wrap(ErrCodeRegistryTransient, cause, "fetching %s", "sp-core")

	if !stderrors.Is(err, cause) {
		t.Error("wrapped error should match cause via errors.Is")
	}
	if err.Unwrap() != cause {
		t.Error("Unwrap should return the cause")
	}
}

func TestIs(t *testing.T) {
	err := New(ErrCodeConstraintBreak, "requirement ^1.0 on sp-core broken by 2.0.0")

	if !Is(err, ErrCodeConstraintBreak) {
		t.Error("Is should match the error's own code")
	}
	if Is(err, ErrCodeRaceDetected) {
		t.Error("Is should not match a different code")
	}

	// Code matching must survive fmt wrapping.
	wrapped := fmt.Errorf("plan: %w", err)
	if !Is(wrapped, ErrCodeConstraintBreak) {
		t.Error("Is should match through fmt.Errorf wrapping")
	}

	// And structured-on-structured wrapping: the outer code wins for
	// GetCode, but Is finds both.
	outer := Wrap(ErrCodePublishFailed, err, "step 3")
	if !Is(outer, ErrCodePublishFailed) || !Is(outer, ErrCodeConstraintBreak) {
		t.Error("Is should find codes at every level of the chain")
	}
	if GetCode(outer) != ErrCodePublishFailed {
		t.Errorf("GetCode = %s, want outermost code", GetCode(outer))
	}
}

func TestIsNonStructured(t *testing.T) {
	if Is(stderrors.New("plain"), ErrCodeInternal) {
		t.Error("plain errors should not match any code")
	}
	if GetCode(stderrors.New("plain")) != "" {
		t.Error("GetCode on plain error should be empty")
	}
}

func TestUserMessage(t *testing.T) {
	err := New(ErrCodeCyclicDependency, "cycle: a -> b -> a")
	if UserMessage(err) != "cycle: a -> b -> a" {
		t.Errorf("UserMessage = %q", UserMessage(err))
	}

	plain := stderrors.New("boom")
	if UserMessage(plain) != "boom" {
		t.Errorf("UserMessage on plain error = %q", UserMessage(plain))
	}
}

func TestIsFatalRegistry(t *testing.T) {
	fatal := New(ErrCodeRegistryFatal, "401 unauthorized")
	transient := New(ErrCodeRegistryTransient, "timeout")

	if !IsFatalRegistry(fatal) {
		t.Error("REGISTRY_FATAL should be fatal")
	}
	if IsFatalRegistry(transient) {
		t.Error("REGISTRY_TRANSIENT should not be fatal")
	}
}
