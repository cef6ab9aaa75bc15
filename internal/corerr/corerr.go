// Package corerr defines the error taxonomy shared across the core
// (spec section 7). Every user-facing failure is a typed *Error
// carrying a Kind and a short, non-leaky message.
package corerr

import "fmt"

// Kind classifies a failure for propagation-policy purposes (retry,
// degrade, surface-and-stop).
type Kind int

const (
	KindInputValidation Kind = iota
	KindAuth
	KindStorage
	KindRelay
	KindRemoteSigner
	KindCorruption
	KindReentrant
)

func (k Kind) String() string {
	switch k {
	case KindInputValidation:
		return "input-validation"
	case KindAuth:
		return "auth"
	case KindStorage:
		return "storage"
	case KindRelay:
		return "relay"
	case KindRemoteSigner:
		return "remote-signer"
	case KindCorruption:
		return "corruption"
	case KindReentrant:
		return "reentrant"
	default:
		return "unknown"
	}
}

// Error is the core's typed error. Message follows the
// "{short-reason}: {detail}" convention (spec 7) and never embeds a
// stack trace.
type Error struct {
	Kind   Kind
	Reason string
	Detail string
	Err    error
}

func New(kind Kind, reason, detail string) *Error {
	return &Error{Kind: kind, Reason: reason, Detail: detail}
}

func Wrap(kind Kind, reason string, err error) *Error {
	return &Error{Kind: kind, Reason: reason, Detail: err.Error(), Err: err}
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Reason, e.Detail)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether err is a corerr.Error of the given kind.
func Is(err error, kind Kind) bool {
	ce, ok := err.(*Error)
	return ok && ce.Kind == kind
}

// Fatal reports whether an error of this kind is fatal to the writer
// task owning it (spec 7: storage errors are fatal to IngestPipeline).
func (k Kind) Fatal() bool {
	return k == KindStorage
}

// Retryable reports whether an error of this kind warrants local retry
// with backoff (spec 7: relay failures retry, auth/input/corruption do not).
func (k Kind) Retryable() bool {
	return k == KindRelay
}
