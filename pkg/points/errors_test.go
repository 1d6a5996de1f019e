package points

import (
	"errors"
	"testing"
)

const (
	operationName    = "ledger"
	subjectName      = "entry"
	codeName         = "invalid"
	baseErrorMessage = "base error"
)

func TestOperationErrorFormatting(test *testing.T) {
	test.Parallel()
	baseError := errors.New(baseErrorMessage)
	wrappedError := WrapError(operationName, subjectName, codeName, baseError)
	if wrappedError == nil {
		test.Fatalf("expected wrapped error")
	}
	expected := operationName + "." + subjectName + "." + codeName + ": " + baseErrorMessage
	if wrappedError.Error() != expected {
		test.Fatalf("expected %q, got %q", expected, wrappedError.Error())
	}
	var operationError OperationError
	if !errors.As(wrappedError, &operationError) || operationError.Code() != codeName {
		test.Fatalf("expected operation error with code %q, got %v", codeName, wrappedError)
	}
}

func TestWrapErrorNil(test *testing.T) {
	test.Parallel()
	if WrapError(operationName, subjectName, codeName, nil) != nil {
		test.Fatalf("expected nil wrapped error")
	}
}

func TestWrappedSentinelsStayReachable(test *testing.T) {
	test.Parallel()
	wrapped := WrapError("store", "entry", "duplicate", ErrDuplicateReference)
	if !errors.Is(wrapped, ErrDuplicateReference) {
		test.Fatalf("expected duplicate reference through wrapper")
	}
	if !errors.Is(ErrEntryNotFound, ErrNotFound) {
		test.Fatalf("expected entry not found to be a not found error")
	}
}
