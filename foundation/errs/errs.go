// Package errs defines the error-kind taxonomy shared by the store, relayer
// and validation engine. Components classify the errors they encounter into
// one of these kinds so that callers can decide, without string matching,
// whether to retry, back off, or treat the failure as fatal.
package errs

import "errors"

// Kind identifies the category of an error in the taxonomy.
type Kind int

// The error kinds recognised across the node core.
const (
	// Config marks a malformed configuration. Fatal at startup.
	Config Kind = iota
	// Schema marks a database creation/verification failure. Fatal.
	Schema
	// Storage marks a runtime database I/O error such as a full disk or a
	// corrupt file. Per-operation; the caller retries with backoff.
	Storage
	// Integrity marks an invariant violation observed at write time, such
	// as a parent-block mismatch or a double-finalization attempt.
	Integrity
	// Upstream marks an HTTP transport or parse error talking to the
	// relayer's upstream builder. Transient; triggers backoff-and-retry.
	Upstream
	// Cancelled marks cooperative shutdown. Never logged as an error.
	Cancelled
)

func (k Kind) String() string {
	switch k {
	case Config:
		return "config"
	case Schema:
		return "schema"
	case Storage:
		return "storage"
	case Integrity:
		return "integrity"
	case Upstream:
		return "upstream"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Error is a classified error carrying one of the Kind values alongside the
// underlying cause.
type Error struct {
	Kind  Kind
	Msg   string
	Cause error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Kind.String() + ": " + e.Msg + ": " + e.Cause.Error()
	}
	return e.Kind.String() + ": " + e.Msg
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// New constructs a classified error.
func New(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Msg: msg, Cause: cause}
}

// Is reports whether err is classified as kind, walking the error chain.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// Retryable reports whether an error of the given kind should be retried by
// a long-lived worker rather than treated as fatal.
func Retryable(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	switch e.Kind {
	case Storage, Integrity, Upstream:
		return true
	default:
		return false
	}
}
