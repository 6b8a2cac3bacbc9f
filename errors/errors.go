// The error taxonomy shared by all basilisk components. Every user or
// plugin facing error carries a message, an HTTP style status code and
// an optional structured payload.
package errors

import "fmt"

type Kind int

const (
	GENERIC Kind = iota

	// Request arguments failed schema validation. The payload holds
	// the itemized per-field messages.
	VALIDATION

	// A recoverable domain issue raised by plugin code. Execution is
	// recorded as failed but the process continues normally.
	WARNING

	// Fatal domain errors raised from within a scale's components.
	COMMAND
	INTERFACE
	SCALE
	UPLOAD

	// A backing store (datastore, file store or blob store) failure.
	STORE

	// A capability returned a value that is not a structured dict or
	// list. Always a plugin bug, never retried.
	TYPE_CONTRACT

	// Soft or hard execution time limit exceeded.
	TIMEOUT

	NOT_FOUND
	UNSUPPORTED
	ALREADY_EXISTS
)

type BasiliskError struct {
	Kind    Kind
	Message string
	Status  int
	Payload interface{}
}

func (self *BasiliskError) Error() string {
	return self.Message
}

func New(format string, args ...interface{}) *BasiliskError {
	return &BasiliskError{
		Kind:    GENERIC,
		Message: fmt.Sprintf(format, args...),
		Status:  500,
	}
}

func NewValidationError(fields map[string][]string) *BasiliskError {
	return &BasiliskError{
		Kind:    VALIDATION,
		Message: "invalid arguments",
		Status:  422,
		Payload: fields,
	}
}

func NewWarning(format string, args ...interface{}) *BasiliskError {
	return &BasiliskError{
		Kind:    WARNING,
		Message: fmt.Sprintf(format, args...),
		Status:  500,
	}
}

func NewCommandError(format string, args ...interface{}) *BasiliskError {
	return &BasiliskError{
		Kind:    COMMAND,
		Message: fmt.Sprintf(format, args...),
		Status:  500,
	}
}

func NewInterfaceError(format string, args ...interface{}) *BasiliskError {
	return &BasiliskError{
		Kind:    INTERFACE,
		Message: fmt.Sprintf(format, args...),
		Status:  500,
	}
}

func NewScaleError(format string, args ...interface{}) *BasiliskError {
	return &BasiliskError{
		Kind:    SCALE,
		Message: fmt.Sprintf(format, args...),
		Status:  500,
	}
}

func NewUploadError(format string, args ...interface{}) *BasiliskError {
	return &BasiliskError{
		Kind:    UPLOAD,
		Message: fmt.Sprintf(format, args...),
		Status:  500,
	}
}

func NewStoreError(format string, args ...interface{}) *BasiliskError {
	return &BasiliskError{
		Kind:    STORE,
		Message: fmt.Sprintf(format, args...),
		Status:  500,
	}
}

func NewTypeContractError(format string, args ...interface{}) *BasiliskError {
	return &BasiliskError{
		Kind:    TYPE_CONTRACT,
		Message: fmt.Sprintf(format, args...),
		Status:  500,
	}
}

func NewTimeoutError() *BasiliskError {
	return &BasiliskError{
		Kind:    TIMEOUT,
		Message: "time limit exceeded",
		Status:  500,
	}
}

func NewNotFoundError(format string, args ...interface{}) *BasiliskError {
	return &BasiliskError{
		Kind:    NOT_FOUND,
		Message: fmt.Sprintf(format, args...),
		Status:  404,
	}
}

func NewUnsupportedError(format string, args ...interface{}) *BasiliskError {
	return &BasiliskError{
		Kind:    UNSUPPORTED,
		Message: fmt.Sprintf(format, args...),
		Status:  404,
	}
}

func NewAlreadyExistsError(message string, payload interface{}) *BasiliskError {
	return &BasiliskError{
		Kind:    ALREADY_EXISTS,
		Message: message,
		Status:  409,
		Payload: payload,
	}
}

func IsKind(err error, kind Kind) bool {
	berr, ok := err.(*BasiliskError)
	return ok && berr.Kind == kind
}

func IsWarning(err error) bool      { return IsKind(err, WARNING) }
func IsNotFound(err error) bool     { return IsKind(err, NOT_FOUND) }
func IsUnsupported(err error) bool  { return IsKind(err, UNSUPPORTED) }
func IsTimeout(err error) bool      { return IsKind(err, TIMEOUT) }
func IsValidation(err error) bool   { return IsKind(err, VALIDATION) }
func IsTypeContract(err error) bool { return IsKind(err, TYPE_CONTRACT) }

// IsDomainError reports if the error came from plugin or request
// territory, as opposed to an infrastructure fault. Domain errors are
// recorded as a failed result and never propagate out of a worker.
func IsDomainError(err error) bool {
	berr, ok := err.(*BasiliskError)
	if !ok {
		return false
	}
	switch berr.Kind {
	case VALIDATION, WARNING, COMMAND, INTERFACE, SCALE, UPLOAD,
		STORE, TYPE_CONTRACT, TIMEOUT:
		return true
	}
	return false
}

// Status returns the HTTP style status for any error, masking
// unexpected errors to a generic 500.
func Status(err error) int {
	berr, ok := err.(*BasiliskError)
	if ok && berr.Status != 0 {
		return berr.Status
	}
	return 500
}
