package transfer

import (
	"time"

	"github.com/gravitational/trace"
)

// Kind is the BiPRO error taxonomy of spec §4.4. Every error the transfer
// client returns classifies into exactly one kind.
type Kind string

const (
	KindAuth       Kind = "auth"       // STS or transport auth failure — never retried
	KindThrottled  Kind = "throttled"  // 429 or explicit BiPRO throttle fault — retried honouring Retry-After
	KindTransient  Kind = "transient"  // 5xx, connection reset, timeout — retried with backoff
	KindNotFound   Kind = "not_found"  // shipment id unknown — never retried
	KindFatal      Kind = "fatal"      // schema/parse error — never retried
	KindCancelled  Kind = "cancelled"  // caller-cancelled operation
)

// Error wraps a classified BiPRO transfer failure. It composes with
// gravitational/trace (Error implements error, and trace.Wrap preserves the
// Kind via errors.As-compatible unwrapping) per the ambient error-handling
// stack.
type Error struct {
	Kind       Kind
	Message    string
	RetryAfter time.Duration
	cause      error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return e.Message + ": " + e.cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.cause }

// NewAuthError builds a KindAuth error.
func NewAuthError(msg string, cause error) error {
	return trace.Wrap(&Error{Kind: KindAuth, Message: msg, cause: cause})
}

// NewThrottled builds a KindThrottled error carrying the carrier's
// Retry-After hint (or zero if it gave none).
func NewThrottled(msg string, retryAfter time.Duration, cause error) error {
	return trace.Wrap(&Error{Kind: KindThrottled, Message: msg, RetryAfter: retryAfter, cause: cause})
}

// NewTransient builds a KindTransient error.
func NewTransient(msg string, cause error) error {
	return trace.Wrap(&Error{Kind: KindTransient, Message: msg, cause: cause})
}

// NewNotFound builds a KindNotFound error.
func NewNotFound(msg string) error {
	return trace.Wrap(&Error{Kind: KindNotFound, Message: msg})
}

// NewFatal builds a KindFatal error.
func NewFatal(msg string, cause error) error {
	return trace.Wrap(&Error{Kind: KindFatal, Message: msg, cause: cause})
}

// NewCancelled builds a KindCancelled error, surfaced when a caller's
// context is cancelled mid-operation (spec §5).
func NewCancelled(msg string, cause error) error {
	return trace.Wrap(&Error{Kind: KindCancelled, Message: msg, cause: cause})
}

// ClassifyOf extracts the Kind from err, walking trace/error wrapping. It
// returns ("", false) if err is nil or not one of our classified errors.
func ClassifyOf(err error) (Kind, bool) {
	if err == nil {
		return "", false
	}
	var te *Error
	cur := err
	for cur != nil {
		if e, ok := cur.(*Error); ok {
			te = e
			break
		}
		unwrappable, ok := cur.(interface{ Unwrap() error })
		if !ok {
			break
		}
		cur = unwrappable.Unwrap()
	}
	if te == nil {
		return "", false
	}
	return te.Kind, true
}

// RetryAfterOf extracts the Retry-After hint carried by a Throttled error,
// or zero if err carries none.
func RetryAfterOf(err error) time.Duration {
	cur := err
	for cur != nil {
		if e, ok := cur.(*Error); ok {
			return e.RetryAfter
		}
		unwrappable, ok := cur.(interface{ Unwrap() error })
		if !ok {
			break
		}
		cur = unwrappable.Unwrap()
	}
	return 0
}

// IsRetryable reports whether spec §4.4's retry policy applies to err:
// Throttled and Transient are retried, everything else is not.
func IsRetryable(err error) bool {
	k, ok := ClassifyOf(err)
	if !ok {
		return false
	}
	return k == KindThrottled || k == KindTransient
}
