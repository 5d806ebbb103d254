package nakamoto

import (
	"fmt"

	"github.com/pkg/errors"
)

// ValidationError reports a malformed or unresolved configuration: an unknown
// rule name, a missing operation key, a non-positive static threshold.
type ValidationError struct {
	Message string
	// Object is the offending value, if any. It is only used for diagnostics.
	Object interface{}
}

func (e *ValidationError) Error() string {
	return completeMessage("ValidationError", e.Message, e.Object)
}

// SimulationError reports a ledger transition that is numerically infeasible.
type SimulationError struct {
	Message string
	Object  interface{}
}

func (e *SimulationError) Error() string {
	return completeMessage("SimulationError", e.Message, e.Object)
}

func completeMessage(kind, message string, object interface{}) string {
	if object == nil {
		return fmt.Sprintf("%s: %s", kind, message)
	}
	return fmt.Sprintf("%s: %s\nAt object: %v", kind, message, object)
}

func validationErrorf(object interface{}, format string, args ...interface{}) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...), Object: object}
}

func simulationErrorf(object interface{}, format string, args ...interface{}) error {
	return &SimulationError{Message: fmt.Sprintf(format, args...), Object: object}
}

// IsValidationError is true if err, or any error it wraps, is a *ValidationError.
func IsValidationError(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

// IsSimulationError is true if err, or any error it wraps, is a *SimulationError.
func IsSimulationError(err error) bool {
	var target *SimulationError
	return errors.As(err, &target)
}
