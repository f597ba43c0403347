package model

import (
	"errors"
	"fmt"
)

// Sentinel kinds. The typed errors below match them through errors.Is.
var (
	ErrInvalidInput         = errors.New("invalid input")
	ErrFitConvergence       = errors.New("fit did not converge")
	ErrNumericalInstability = errors.New("numerical instability")
)

// InvalidInputError reports a record or argument that violates a contract.
type InvalidInputError struct {
	Field      string
	CustomerID string
	Message    string
	Value      any
}

// Invalid builds an InvalidInputError.
func Invalid(field, customerID, msg string, value any) *InvalidInputError {
	return &InvalidInputError{Field: field, CustomerID: customerID, Message: msg, Value: value}
}

func (e *InvalidInputError) Error() string {
	if e.CustomerID != "" {
		return fmt.Sprintf("invalid input: customer %s: %s %s (got %v)", e.CustomerID, e.Field, e.Message, e.Value)
	}
	return fmt.Sprintf("invalid input: %s %s (got %v)", e.Field, e.Message, e.Value)
}

func (e *InvalidInputError) Is(target error) bool { return target == ErrInvalidInput }

// FitConvergenceError is returned when maximum likelihood estimation stops
// without an acceptable optimum.
type FitConvergenceError struct {
	Model      string
	Status     string
	Iterations int
	LastParams []float64
	Err        error
}

func (e *FitConvergenceError) Error() string {
	msg := fmt.Sprintf("%s fit did not converge: status %s after %d iterations (last params %v)",
		e.Model, e.Status, e.Iterations, e.LastParams)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *FitConvergenceError) Is(target error) bool { return target == ErrFitConvergence }

func (e *FitConvergenceError) Unwrap() error { return e.Err }

// NumericalInstabilityError is returned when a likelihood or prediction term
// is not finite and cannot be reformulated.
type NumericalInstabilityError struct {
	Op     string
	Detail string
}

// Unstable builds a NumericalInstabilityError.
func Unstable(op, format string, args ...any) *NumericalInstabilityError {
	return &NumericalInstabilityError{Op: op, Detail: fmt.Sprintf(format, args...)}
}

func (e *NumericalInstabilityError) Error() string {
	return fmt.Sprintf("numerical instability in %s: %s", e.Op, e.Detail)
}

func (e *NumericalInstabilityError) Is(target error) bool { return target == ErrNumericalInstability }
