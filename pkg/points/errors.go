package points

import (
	"errors"
	"fmt"
)

// Base error classes shared by every package of the scoring core.
var (
	ErrValidation         = errors.New("validation error")
	ErrNotFound           = errors.New("not found")
	ErrDuplicateReference = errors.New("duplicate reference")
)

// Ledger-level error values. Field errors are all validation errors.
var (
	ErrInvalidUserID        = fmt.Errorf("%w: invalid user id", ErrValidation)
	ErrInvalidEntryID       = fmt.Errorf("%w: invalid entry id", ErrValidation)
	ErrInvalidAmount        = fmt.Errorf("%w: invalid amount", ErrValidation)
	ErrInvalidReason        = fmt.Errorf("%w: invalid reason", ErrValidation)
	ErrInvalidReferenceType = fmt.Errorf("%w: invalid reference type", ErrValidation)
	ErrInvalidReferenceID   = fmt.Errorf("%w: invalid reference id", ErrValidation)
	ErrEntryNotFound        = fmt.Errorf("%w: point entry", ErrNotFound)
	ErrInvalidServiceConfig = errors.New("invalid service config")
)

// OperationError wraps a failure with a stable operation code.
type OperationError struct {
	operation string
	subject   string
	code      string
	err       error
}

// Error returns the formatted error message.
func (operationError OperationError) Error() string {
	return fmt.Sprintf("%s.%s.%s: %v", operationError.operation, operationError.subject, operationError.code, operationError.err)
}

// Unwrap returns the underlying error.
func (operationError OperationError) Unwrap() error {
	return operationError.err
}

// Operation returns the operation segment.
func (operationError OperationError) Operation() string {
	return operationError.operation
}

// Subject returns the subject segment.
func (operationError OperationError) Subject() string {
	return operationError.subject
}

// Code returns the stable error code segment.
func (operationError OperationError) Code() string {
	return operationError.code
}

// WrapError wraps an error with operation, subject, and code metadata.
func WrapError(operation string, subject string, code string, err error) error {
	if err == nil {
		return nil
	}
	return OperationError{
		operation: operation,
		subject:   subject,
		code:      code,
		err:       err,
	}
}
