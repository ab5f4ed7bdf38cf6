// Package errors defines the pipeline's error taxonomy. Fatal errors
// (schema, configuration, missing feature) abort a retailer or the whole
// run; domain errors are row-level and recovered by dropping the row.
package errors

import (
	"errors"
	"fmt"
)

// ErrorType classifies a pipeline error.
type ErrorType string

const (
	ErrTypeSchema         ErrorType = "SCHEMA_MISMATCH"
	ErrTypeConfig         ErrorType = "CONFIG_INVALID"
	ErrTypeMissingFeature ErrorType = "MISSING_FEATURE"
	ErrTypeDomain         ErrorType = "DOMAIN_VALUE"
)

// PipelineError is the common shape of every typed pipeline error.
type PipelineError struct {
	Type     ErrorType
	Retailer string
	Column   string
	Message  string
	Cause    error
}

// Error implements the error interface.
func (e *PipelineError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Type, e.Message)
	if e.Retailer != "" {
		msg = fmt.Sprintf("[%s] retailer %q: %s", e.Type, e.Retailer, e.Message)
	}
	if e.Column != "" {
		msg += fmt.Sprintf(" (column %q)", e.Column)
	}
	if e.Cause != nil {
		msg += fmt.Sprintf(": %v", e.Cause)
	}
	return msg
}

// Unwrap allows errors.Is and errors.As to reach the cause.
func (e *PipelineError) Unwrap() error {
	return e.Cause
}

// Is matches on error type so callers can compare against sentinels.
func (e *PipelineError) Is(target error) bool {
	var pe *PipelineError
	if !errors.As(target, &pe) {
		return false
	}
	return pe.Type == e.Type && (pe.Message == "" || pe.Message == e.Message)
}

// Sentinels for errors.Is checks against each taxonomy class.
var (
	ErrSchema         = &PipelineError{Type: ErrTypeSchema}
	ErrConfig         = &PipelineError{Type: ErrTypeConfig}
	ErrMissingFeature = &PipelineError{Type: ErrTypeMissingFeature}
	ErrDomain         = &PipelineError{Type: ErrTypeDomain}
)

// NewSchemaError reports a raw file whose column signature does not match
// the contract's schema family, or a structurally required column that is
// absent. Fatal for the retailer.
func NewSchemaError(retailer, column, message string) *PipelineError {
	return &PipelineError{Type: ErrTypeSchema, Retailer: retailer, Column: column, Message: message}
}

// NewConfigError reports a missing or internally inconsistent retailer
// contract or configuration. Fatal for the run.
func NewConfigError(retailer, message string) *PipelineError {
	return &PipelineError{Type: ErrTypeConfig, Retailer: retailer, Message: message}
}

// NewConfigErrorWithCause wraps an underlying cause (YAML parse failure,
// validator violation) as a configuration error.
func NewConfigErrorWithCause(message string, cause error) *PipelineError {
	return &PipelineError{Type: ErrTypeConfig, Message: message, Cause: cause}
}

// NewMissingFeatureError reports that a required feature cannot be
// computed by any configured path. Fatal for the retailer.
func NewMissingFeatureError(retailer, feature string) *PipelineError {
	return &PipelineError{
		Type:     ErrTypeMissingFeature,
		Retailer: retailer,
		Message:  fmt.Sprintf("feature %q is not computable by any configured path", feature),
	}
}

// NewDomainError reports a row-level value violation (non-positive value
// feeding a log, non-finite promotional depth). Callers drop the row and
// count it; domain errors never propagate past the deriver.
func NewDomainError(retailer, column, message string) *PipelineError {
	return &PipelineError{Type: ErrTypeDomain, Retailer: retailer, Column: column, Message: message}
}

// IsFatal reports whether err belongs to a taxonomy class that stops a
// retailer or the run, as opposed to a recoverable row-level condition.
func IsFatal(err error) bool {
	var pe *PipelineError
	if !errors.As(err, &pe) {
		return false
	}
	return pe.Type != ErrTypeDomain
}
