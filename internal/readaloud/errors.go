package readaloud

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"
)

// Sentinel errors for the pipeline.
var (
	// ErrNoVoice means no voice is selected; the session cannot start.
	ErrNoVoice = errors.New("no voice selected")
	// ErrEmptyResponse means the endpoint answered 2xx with no audio bytes.
	ErrEmptyResponse = errors.New("synthesis returned an empty response")
	// ErrTooManyDownloadFailures aborts the session after the download
	// counter crosses its threshold.
	ErrTooManyDownloadFailures = errors.New("too many consecutive download failures")
	// ErrTooManyPlaybackFailures aborts the session after the playback
	// counter crosses its threshold.
	ErrTooManyPlaybackFailures = errors.New("too many consecutive playback failures")
)

// ServerError is a synthesis response the endpoint rejected: a non-2xx
// status, or a textual body where audio was expected. Body carries the
// endpoint's message verbatim.
type ServerError struct {
	Code int
	Body string
}

func (e *ServerError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("synthesis server rejected request (status %d)", e.Code)
	}
	return fmt.Sprintf("synthesis server rejected request (status %d): %s", e.Code, e.Body)
}

// FailureKind classifies an error for the escalation policy.
type FailureKind int

const (
	// FailureUnknown is any error the other kinds don't cover. Counted
	// toward the threshold like a transient failure.
	FailureUnknown FailureKind = iota
	// FailureCancelled means a newer play or a pause superseded the
	// operation. Never counted, never surfaced.
	FailureCancelled
	// FailureTransient is a timeout or connection failure.
	FailureTransient
	// FailureServer is a ServerError or an empty response.
	FailureServer
	// FailureStorage is a local disk read or write failure.
	FailureStorage
	// FailureFatal is unrecoverable regardless of counters, such as a
	// missing voice selection.
	FailureFatal
)

// String returns the string representation of the failure kind.
func (k FailureKind) String() string {
	switch k {
	case FailureCancelled:
		return "cancelled"
	case FailureTransient:
		return "transient"
	case FailureServer:
		return "server"
	case FailureStorage:
		return "storage"
	case FailureFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Classify maps an error to its failure kind. Every kind except
// FailureCancelled and FailureFatal counts toward the consecutive
// failure threshold and degrades to a silent segment below it.
func Classify(err error) FailureKind {
	if err == nil {
		return FailureUnknown
	}
	if errors.Is(err, context.Canceled) {
		return FailureCancelled
	}
	if errors.Is(err, ErrNoVoice) {
		return FailureFatal
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return FailureTransient
	}
	var serverErr *ServerError
	if errors.As(err, &serverErr) {
		return FailureServer
	}
	if errors.Is(err, ErrEmptyResponse) {
		return FailureServer
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return FailureTransient
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return FailureTransient
	}
	var pathErr *fs.PathError
	if errors.As(err, &pathErr) {
		return FailureStorage
	}
	return FailureUnknown
}
