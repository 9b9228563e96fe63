package domain

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrKind classifies a pipeline error for retry decisions. Network trouble,
// 5xx, 429 and open circuit breakers are retriable; everything else is
// terminal for the source that produced it.
type ErrKind string

const (
	ErrKindNetwork           ErrKind = "network"
	ErrKindHTTPStatus        ErrKind = "http_status"
	ErrKindRateLimited       ErrKind = "rate_limited"
	ErrKindParse             ErrKind = "parse"
	ErrKindValidation        ErrKind = "validation"
	ErrKindCircuitOpen       ErrKind = "circuit_open"
	ErrKindDependencyMissing ErrKind = "dependency_missing"
	ErrKindNotFound          ErrKind = "not_found"
)

// PipelineError carries an error kind plus the source it came from.
type PipelineError struct {
	Kind       ErrKind
	Source     Source
	StatusCode int
	RetryAfter time.Duration
	Err        error
}

func (e *PipelineError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: %s (status %d): %v", e.Source, e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Source, e.Kind, e.Err)
}

func (e *PipelineError) Unwrap() error { return e.Err }

// Retriable reports whether a later attempt could succeed.
func (e *PipelineError) Retriable() bool {
	switch e.Kind {
	case ErrKindNetwork, ErrKindRateLimited, ErrKindCircuitOpen:
		return true
	case ErrKindHTTPStatus:
		return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
	default:
		return false
	}
}

func NewNetworkError(source Source, err error) *PipelineError {
	return &PipelineError{Kind: ErrKindNetwork, Source: source, Err: err}
}

func NewHTTPStatusError(source Source, status int) *PipelineError {
	return &PipelineError{
		Kind:       ErrKindHTTPStatus,
		Source:     source,
		StatusCode: status,
		Err:        fmt.Errorf("unexpected status %d", status),
	}
}

func NewRateLimitedError(source Source, retryAfter time.Duration) *PipelineError {
	return &PipelineError{
		Kind:       ErrKindRateLimited,
		Source:     source,
		StatusCode: http.StatusTooManyRequests,
		RetryAfter: retryAfter,
		Err:        errors.New("rate limited"),
	}
}

func NewParseError(source Source, err error) *PipelineError {
	return &PipelineError{Kind: ErrKindParse, Source: source, Err: err}
}

func NewValidationError(source Source, err error) *PipelineError {
	return &PipelineError{Kind: ErrKindValidation, Source: source, Err: err}
}

func NewCircuitOpenError(source Source) *PipelineError {
	return &PipelineError{Kind: ErrKindCircuitOpen, Source: source, Err: errors.New("circuit breaker open")}
}

func NewDependencyMissingError(source Source, err error) *PipelineError {
	return &PipelineError{Kind: ErrKindDependencyMissing, Source: source, Err: err}
}

func NewNotFoundError(source Source) *PipelineError {
	return &PipelineError{Kind: ErrKindNotFound, Source: source, StatusCode: http.StatusNotFound, Err: errors.New("not found")}
}

// IsRetriable walks the error chain for a PipelineError classification.
// Unclassified errors are treated as retriable so transient infrastructure
// failures get another chance.
func IsRetriable(err error) bool {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Retriable()
	}
	return true
}

// KindOf returns the error kind in the chain, or empty when unclassified.
func KindOf(err error) ErrKind {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ""
}
