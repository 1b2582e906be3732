package providers

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"syscall"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"darkroom/internal/services"
)

// Class tells the orchestrator what to do with a failed call.
type Class string

const (
	ClassRetryable Class = "retryable"
	ClassTerminal  Class = "terminal"
)

// Error is returned by every provider on failure.
type Error struct {
	Provider   string
	Class      Class
	StatusCode int
	RetryAfter time.Duration
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s: %s (http %d): %v", e.Provider, e.Class, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Provider, e.Class, e.Err)
}

func (e *Error) Unwrap() []error {
	marker := services.ErrProviderUnavailable
	if e.Class == ClassTerminal {
		marker = services.ErrProviderRejected
	}
	return []error{marker, e.Err}
}

// Retryable reports whether err warrants another attempt at the same provider.
func Retryable(err error) bool {
	var perr *Error
	if errors.As(err, &perr) {
		return perr.Class == ClassRetryable
	}
	return classify(err) == ClassRetryable
}

// RetryAfterOf returns the server-suggested delay, if any.
func RetryAfterOf(err error) time.Duration {
	var perr *Error
	if errors.As(err, &perr) {
		return perr.RetryAfter
	}
	return 0
}

// wrap classifies a transport or decoding failure.
func wrap(provider string, err error) error {
	if err == nil {
		return nil
	}
	var perr *Error
	if errors.As(err, &perr) {
		return err
	}
	return &Error{Provider: provider, Class: classify(err), Err: err}
}

// terminal marks a failure that retrying cannot fix, such as malformed output.
func terminal(provider string, err error) error {
	return &Error{Provider: provider, Class: ClassTerminal, Err: err}
}

// statusError classifies a non-2xx HTTP response. Quota exhaustion is terminal
// even though it arrives as 429.
func statusError(provider string, resp *http.Response, body []byte) error {
	snippet := summarizePayloadSnippet(string(body))
	class := ClassTerminal
	switch {
	case strings.Contains(string(body), "insufficient_quota"):
		class = ClassTerminal
	case resp.StatusCode == http.StatusRequestTimeout,
		resp.StatusCode == http.StatusTooManyRequests,
		resp.StatusCode >= http.StatusInternalServerError:
		class = ClassRetryable
	}
	retryAfter, _ := parseRetryAfter(resp.Header.Get("Retry-After"))
	return &Error{
		Provider:   provider,
		Class:      class,
		StatusCode: resp.StatusCode,
		RetryAfter: retryAfter,
		Err:        fmt.Errorf("http %d: %s", resp.StatusCode, snippet),
	}
}

func classify(err error) Class {
	if err == nil {
		return ""
	}
	// A per-call timeout surfaces as DeadlineExceeded; the orchestrator checks
	// the parent context separately before retrying.
	if errors.Is(err, context.DeadlineExceeded) {
		return ClassRetryable
	}
	if errors.Is(err, context.Canceled) {
		return ClassTerminal
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return ClassRetryable
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ClassRetryable
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return ClassRetryable
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		return ClassRetryable
	}
	if st, ok := status.FromError(err); ok && st.Code() != codes.OK && st.Code() != codes.Unknown {
		switch st.Code() {
		case codes.Unavailable, codes.DeadlineExceeded, codes.Aborted:
			return ClassRetryable
		default:
			return ClassTerminal
		}
	}
	return ClassTerminal
}

func parseRetryAfter(value string) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds < 0 {
			return 0, false
		}
		return time.Duration(seconds) * time.Second, true
	}
	if when, err := http.ParseTime(value); err == nil {
		delay := time.Until(when)
		if delay < 0 {
			return 0, false
		}
		return delay, true
	}
	return 0, false
}
