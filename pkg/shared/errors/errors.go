// Package errors provides structured error construction shared by all
// citewatch components. Errors carry the failed operation plus optional
// component and resource context so log lines and API responses stay
// uniform.
package errors

import (
	"fmt"
	"strings"
)

// OperationError describes a failed operation with optional context about
// the component and resource involved.
type OperationError struct {
	Operation string
	Component string
	Resource  string
	Cause     error
}

func (e *OperationError) Error() string {
	parts := []string{fmt.Sprintf("failed to %s", e.Operation)}
	if e.Component != "" {
		parts = append(parts, fmt.Sprintf("component: %s", e.Component))
	}
	if e.Resource != "" {
		parts = append(parts, fmt.Sprintf("resource: %s", e.Resource))
	}
	if e.Cause != nil {
		parts = append(parts, fmt.Sprintf("cause: %v", e.Cause))
	}
	return strings.Join(parts, ", ")
}

func (e *OperationError) Unwrap() error {
	return e.Cause
}

// FailedTo wraps a cause with a "failed to <action>" prefix.
func FailedTo(action string, cause error) error {
	if cause == nil {
		return fmt.Errorf("failed to %s", action)
	}
	return fmt.Errorf("failed to %s: %w", action, cause)
}

// FailedToWithDetails builds an OperationError with full context.
func FailedToWithDetails(operation, component, resource string, cause error) error {
	return &OperationError{
		Operation: operation,
		Component: component,
		Resource:  resource,
		Cause:     cause,
	}
}

// Wrapf annotates err with a formatted message. Returns nil when err is nil.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// DatabaseError marks a failed store operation.
func DatabaseError(operation string, cause error) error {
	return &OperationError{
		Operation: operation,
		Component: "database",
		Cause:     cause,
	}
}

// NetworkError marks a failed outbound call to endpoint.
func NetworkError(operation, endpoint string, cause error) error {
	return &OperationError{
		Operation: operation,
		Component: "network",
		Resource:  endpoint,
		Cause:     cause,
	}
}

// ValidationError reports an invalid field value.
func ValidationError(field, reason string) error {
	return fmt.Errorf("validation failed for field %s: %s", field, reason)
}

// ConfigurationError reports an invalid or missing configuration setting.
func ConfigurationError(setting, reason string) error {
	return fmt.Errorf("configuration error for setting %s: %s", setting, reason)
}

// TimeoutError reports an operation that exceeded its deadline.
func TimeoutError(operation, duration string) error {
	return fmt.Errorf("timeout while %s after %s", operation, duration)
}

// AuthenticationError reports a failed credential check.
func AuthenticationError(reason string) error {
	return fmt.Errorf("authentication failed: %s", reason)
}

// AuthorizationError reports insufficient permissions.
func AuthorizationError(action, resource string) error {
	return fmt.Errorf("authorization failed: insufficient permissions to %s %s", action, resource)
}

// ParseError reports a failure to parse input as the given format.
func ParseError(input, format string, cause error) error {
	return &OperationError{
		Operation: fmt.Sprintf("parse %s as %s", input, format),
		Component: "parser",
		Cause:     cause,
	}
}

// retryablePatterns are substrings that indicate a transient failure.
var retryablePatterns = []string{
	"timeout",
	"connection refused",
	"connection reset",
	"temporary failure",
	"service unavailable",
	"too many requests",
	"rate limit",
}

// IsRetryable reports whether err looks transient.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, pattern := range retryablePatterns {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}

// Chain combines multiple errors into one, skipping nils.
func Chain(errs ...error) error {
	var nonNil []error
	for _, err := range errs {
		if err != nil {
			nonNil = append(nonNil, err)
		}
	}
	switch len(nonNil) {
	case 0:
		return nil
	case 1:
		return nonNil[0]
	default:
		msgs := make([]string, len(nonNil))
		for i, err := range nonNil {
			msgs[i] = err.Error()
		}
		return fmt.Errorf("multiple errors: %s", strings.Join(msgs, "; "))
	}
}
