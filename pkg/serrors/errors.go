package serrors

import "fmt"

// ServiceError is the typed failure every service operation returns. Status is
// the HTTP status the presentation layer should answer with, Code is a stable
// machine-readable identifier.
type ServiceError struct {
	Status    int
	Code      string
	Message   string
	Cause     error
	Retryable bool
}

func New(status int, code, message string, cause error) *ServiceError {
	return &ServiceError{Status: status, Code: code, Message: message, Cause: cause}
}

func NewRetryable(status int, code, message string, cause error) *ServiceError {
	return &ServiceError{Status: status, Code: code, Message: message, Cause: cause, Retryable: true}
}

func (e *ServiceError) Error() string {
	if e.Cause == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Cause)
}

func (e *ServiceError) Unwrap() error { return e.Cause }
