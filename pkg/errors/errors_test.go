package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"testing"
)

func TestErrorFormatting(t *testing.T) {
	err := New(ErrorTypeUnknownBundle, "bundle not declared")
	if got := err.Error(); got != "unknown_bundle: bundle not declared" {
		t.Errorf("unexpected message: %q", got)
	}

	wrapped := Wrap(fmt.Errorf("disk on fire"), ErrorTypeLoadFailed, "payload fetch failed")
	if !strings.Contains(wrapped.Error(), "disk on fire") {
		t.Errorf("cause missing from message: %q", wrapped.Error())
	}
}

func TestWrapNilReturnsNil(t *testing.T) {
	if Wrap(nil, ErrorTypeInternal, "whatever") != nil {
		t.Error("wrapping nil produced an error")
	}
}

func TestUnwrapChain(t *testing.T) {
	root := fmt.Errorf("root cause")
	err := Wrap(root, ErrorTypeConnection, "request failed")

	if !stderrors.Is(err, root) {
		t.Error("errors.Is failed to find the root cause")
	}
}

func TestIsType(t *testing.T) {
	err := New(ErrorTypeResourceExhausted, "pool full")
	if !IsType(err, ErrorTypeResourceExhausted) {
		t.Error("IsType missed matching type")
	}
	if IsType(err, ErrorTypeTimeout) {
		t.Error("IsType matched wrong type")
	}
	if IsType(fmt.Errorf("plain"), ErrorTypeTimeout) {
		t.Error("IsType matched unstructured error")
	}
	if IsType(nil, ErrorTypeTimeout) {
		t.Error("IsType matched nil")
	}
}

func TestIsRetryable(t *testing.T) {
	cases := map[ErrorType]bool{
		ErrorTypeLoadFailed:        true,
		ErrorTypeTimeout:           true,
		ErrorTypeConnection:        true,
		ErrorTypeValidation:        false,
		ErrorTypeCyclicDependency:  false,
		ErrorTypeResourceExhausted: false,
	}
	for errType, want := range cases {
		if got := IsRetryable(New(errType, "x")); got != want {
			t.Errorf("IsRetryable(%s) = %v, want %v", errType, got, want)
		}
	}
	if IsRetryable(fmt.Errorf("plain")) {
		t.Error("unstructured error reported retryable")
	}
}

func TestWithDetail(t *testing.T) {
	err := New(ErrorTypeLoadFailed, "fetch failed").
		WithDetail("bundle", "level-3").
		WithDetail("attempt", 2)

	if err.Details["bundle"] != "level-3" || err.Details["attempt"] != 2 {
		t.Errorf("details not recorded: %v", err.Details)
	}
}

func TestStackCaptured(t *testing.T) {
	err := New(ErrorTypeInternal, "boom")
	if len(err.Stack) == 0 {
		t.Fatal("no stack captured")
	}
	if !strings.Contains(err.Stack[0].Function, "TestStackCaptured") {
		t.Errorf("top frame is not the creation site: %+v", err.Stack[0])
	}
}
