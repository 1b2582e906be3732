package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrDecode              = errors.New("decode error")
	ErrProviderUnavailable = errors.New("provider unavailable")
	ErrProviderRejected    = errors.New("provider rejected request")
	ErrValidation          = errors.New("validation error")
	ErrIntegrity           = errors.New("integrity error")
	ErrConfiguration       = errors.New("configuration error")
	ErrNotFound            = errors.New("not found")
	ErrTimeout             = errors.New("timeout")
	ErrTransient           = errors.New("transient failure")
)

// Kind names the error class for API responses and log fields.
type Kind string

const (
	KindDecode              Kind = "decode"
	KindProviderUnavailable Kind = "provider_unavailable"
	KindProviderRejected    Kind = "provider_rejected"
	KindValidation          Kind = "validation"
	KindIntegrity           Kind = "integrity"
	KindConfiguration       Kind = "configuration"
	KindNotFound            Kind = "not_found"
	KindTransient           Kind = "transient"
	KindInternal            Kind = "internal"
)

// ErrorClassifier is implemented by errors that know their own kind.
type ErrorClassifier interface {
	ErrorKind() Kind
}

// Wrap builds an error message that includes component context while tagging it
// with the provided marker for later classification. The marker should be one of
// the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Validation is shorthand for a synchronous rejection that leaves state unchanged.
func Validation(component, operation, message string) error {
	return Wrap(ErrValidation, component, operation, message, nil)
}

// DecodeError reports an unreadable or unsupported media file. It is recoverable:
// callers quarantine the file and continue with the rest of the batch.
type DecodeError struct {
	Path string
	Err  error
}

func (e *DecodeError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("decode: %v", e.Err)
	}
	return fmt.Sprintf("decode %s: %v", e.Path, e.Err)
}

func (e *DecodeError) Unwrap() []error { return []error{ErrDecode, e.Err} }

func (e *DecodeError) ErrorKind() Kind { return KindDecode }

// IntegrityError reports a content hash match between files whose bytes differ.
type IntegrityError struct {
	ContentHash  string
	Path         string
	ExistingPath string
	Detail       string
}

func (e *IntegrityError) Error() string {
	msg := fmt.Sprintf("integrity: content hash %s of %s matches %s but bytes differ", e.ContentHash, e.Path, e.ExistingPath)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

func (e *IntegrityError) Unwrap() error { return ErrIntegrity }

func (e *IntegrityError) ErrorKind() Kind { return KindIntegrity }

// KindOf classifies err using ErrorClassifier first and the sentinel markers second.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var classifier ErrorClassifier
	if errors.As(err, &classifier) {
		return classifier.ErrorKind()
	}
	switch {
	case errors.Is(err, ErrDecode):
		return KindDecode
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrIntegrity):
		return KindIntegrity
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrConfiguration):
		return KindConfiguration
	case errors.Is(err, ErrProviderRejected):
		return KindProviderRejected
	case errors.Is(err, ErrProviderUnavailable):
		return KindProviderUnavailable
	case errors.Is(err, ErrTransient), errors.Is(err, ErrTimeout):
		return KindTransient
	default:
		return KindInternal
	}
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
