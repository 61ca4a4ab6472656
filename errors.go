package nucore

import (
	"errors"
	"fmt"

	"github.com/nushift/nucore/internal/capspace"
	"github.com/nushift/nucore/internal/deferred"
)

// Error is the structured error every nucore-facing API returns: an
// operation name, a coarse classification, a message and, where one
// exists, the wrapped package-level error that produced it.
type Error struct {
	Op    string    // operation that failed (e.g. "HandshakeWrite", "ShmAcquire")
	Kind  ErrorKind // coarse classification
	Msg   string    // human-readable message
	Inner error     // wrapped error, if any
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("nucore: %s", e.msg())
	}
	return fmt.Sprintf("nucore: %s: %s", e.Op, e.msg())
}

func (e *Error) msg() string {
	if e.Msg != "" {
		return e.Msg
	}
	if e.Inner != nil {
		return e.Inner.Error()
	}
	return string(e.Kind)
}

// Unwrap returns the wrapped error for errors.Is/As support.
func (e *Error) Unwrap() error { return e.Inner }

// Is reports whether target shares this error's Kind, so errors.Is(err,
// &Error{Kind: Exhausted}) works without matching Op/Msg/Inner.
func (e *Error) Is(target error) bool {
	te, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == te.Kind
}

// ErrorKind is the coarse classification named in spec.md §7: every
// nucore.Error falls into exactly one of these buckets, independent of
// which subsystem produced it.
type ErrorKind string

const (
	ProtocolViolation  ErrorKind = "protocol violation"
	UnsupportedVersion ErrorKind = "unsupported version"
	Internal           ErrorKind = "internal"
	Exhausted          ErrorKind = "exhausted"
	UserError          ErrorKind = "user error"
	Deferred           ErrorKind = "deferred"
)

// NewError builds an Error with no wrapped cause.
func NewError(op string, kind ErrorKind, msg string) *Error {
	return &Error{Op: op, Kind: kind, Msg: msg}
}

// WrapError wraps inner with op, classifying it via classifyErr. A nil
// inner returns nil so call sites can do `return WrapError(op, err)`
// unconditionally.
func WrapError(op string, inner error) *Error {
	if inner == nil {
		return nil
	}
	if ne, ok := inner.(*Error); ok {
		return &Error{Op: op, Kind: ne.Kind, Msg: ne.Msg, Inner: ne.Inner}
	}
	return &Error{Op: op, Kind: classifyErr(inner), Msg: inner.Error(), Inner: inner}
}

// classifyErr assigns a Kind to an error this package did not itself
// construct — a capspace or deferred typed error crossing into nucore.
// This is a coarser, package-boundary sibling of syscallabi's classify:
// that one maps the same errors to spec.md §4.12's numeric register
// codes, this one maps them to the Kind taxonomy host code catches with
// errors.Is/As.
func classifyErr(err error) ErrorKind {
	switch {
	case errors.Is(err, capspace.ErrExhausted):
		return Exhausted
	case errors.Is(err, capspace.ErrCapNotFound),
		errors.Is(err, capspace.ErrPermissionDeniedForCapKind),
		errors.Is(err, capspace.ErrPermissionDenied),
		errors.Is(err, capspace.ErrInvalidLength),
		errors.Is(err, capspace.ErrCapacityNotAvailable),
		errors.Is(err, capspace.ErrDestroyingCurrentlyAcquiredCap),
		errors.Is(err, capspace.ErrAcquiringAlreadyAcquiredCap),
		errors.Is(err, capspace.ErrAcquireExceedsSv39),
		errors.Is(err, capspace.ErrAcquireAddressNotPageAligned),
		errors.Is(err, capspace.ErrAcquireIntersectsExisting):
		return UserError
	}

	var dsErr *deferred.DeferredSpaceError
	if errors.As(err, &dsErr) {
		switch dsErr.Kind {
		case deferred.ErrKindExhausted:
			return Exhausted
		case deferred.ErrKindCapNotFound, deferred.ErrKindInProgress,
			deferred.ErrKindShmCapNotFound, deferred.ErrKindShmPermissionDenied:
			return UserError
		default:
			return Internal
		}
	}

	var agErr *deferred.AppGlobalDeferredSpaceError
	if errors.As(err, &agErr) {
		switch agErr.Kind {
		case deferred.AppGlobalErrExhausted:
			return Exhausted
		case deferred.AppGlobalErrNotFound, deferred.AppGlobalErrShmCapNotFound,
			deferred.AppGlobalErrShmPermissionDenied,
			deferred.AppGlobalErrDuplicateTaskDescriptorIDs,
			deferred.AppGlobalErrDeserializeTaskDescriptors:
			return UserError
		default:
			return Internal
		}
	}

	if errors.Is(err, deferred.ErrBlockOnDeferredTasksCanceled) {
		return Deferred
	}

	return Internal
}

// wrapErr is WrapError's counterpart for call sites whose return type is
// the error interface rather than *Error. Returning WrapError(op, err)
// directly from such a site is a bug: a nil *Error assigned to an error
// return value becomes a non-nil interface holding a nil pointer, so
// `err != nil` is true even when nothing failed. wrapErr does the nil
// check before the conversion happens.
func wrapErr(op string, inner error) error {
	if e := WrapError(op, inner); e != nil {
		return e
	}
	return nil
}

// IsKind reports whether err is a *Error (directly or via errors.As)
// classified as kind.
func IsKind(err error, kind ErrorKind) bool {
	var ne *Error
	if errors.As(err, &ne) {
		return ne.Kind == kind
	}
	return false
}
