package llm

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a model service failure so callers can pick a
// recovery path: split the request, wait and retry, or give up.
type ErrorKind int

const (
	// KindFatal covers everything without a recovery path.
	KindFatal ErrorKind = iota
	// KindContextExceeded means the request was larger than the model's
	// context window. Callers should split the input and retry.
	KindContextExceeded
	// KindRateLimited means the service refused the request for pacing
	// reasons. Callers should wait and retry.
	KindRateLimited
	// KindMalformed means the service answered but the response could not
	// be decoded or was missing required fields.
	KindMalformed
)

func (k ErrorKind) String() string {
	switch k {
	case KindContextExceeded:
		return "context_exceeded"
	case KindRateLimited:
		return "rate_limited"
	case KindMalformed:
		return "malformed"
	default:
		return "fatal"
	}
}

// ServiceError is a classified failure from the completion or embedding
// service.
type ServiceError struct {
	Kind       ErrorKind
	StatusCode int
	Message    string
}

func (e *ServiceError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("llm service error (%s, status %d): %s", e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("llm service error (%s): %s", e.Kind, e.Message)
}

// IsContextExceeded reports whether err is a ServiceError caused by the
// request exceeding the model's context window.
func IsContextExceeded(err error) bool {
	return kindOf(err) == KindContextExceeded
}

// IsRateLimited reports whether err is a ServiceError caused by rate
// limiting.
func IsRateLimited(err error) bool {
	return kindOf(err) == KindRateLimited
}

func kindOf(err error) ErrorKind {
	var se *ServiceError
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindFatal
}
