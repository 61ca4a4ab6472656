package nucore

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nushift/nucore/internal/capspace"
	"github.com/nushift/nucore/internal/deferred"
)

func TestNewErrorFormatsWithOp(t *testing.T) {
	err := NewError("HandshakeWrite", ProtocolViolation, "unexpected message type")
	assert.Equal(t, "nucore: HandshakeWrite: unexpected message type", err.Error())
	assert.Equal(t, ProtocolViolation, err.Kind)
}

func TestNewErrorFormatsWithoutOp(t *testing.T) {
	err := NewError("", Internal, "boom")
	assert.Equal(t, "nucore: boom", err.Error())
}

func TestErrorFallsBackToKindWhenNoMsgOrInner(t *testing.T) {
	err := &Error{Kind: Exhausted}
	assert.Equal(t, "nucore: exhausted", err.Error())
}

func TestWrapErrorNilIsNil(t *testing.T) {
	assert.Nil(t, WrapError("op", nil))
}

func TestWrapErrorPreservesExistingError(t *testing.T) {
	inner := NewError("ShmAcquire", UserError, "bad address")
	wrapped := WrapError("Dispatch", inner)
	assert.Equal(t, UserError, wrapped.Kind)
	assert.Equal(t, "Dispatch", wrapped.Op)
	assert.Equal(t, "bad address", wrapped.Msg)
}

func TestWrapErrorClassifiesCapspaceErrors(t *testing.T) {
	wrapped := WrapError("ShmNew", capspace.ErrExhausted)
	assert.Equal(t, Exhausted, wrapped.Kind)
	assert.ErrorIs(t, wrapped, capspace.ErrExhausted)
}

func TestWrapErrorClassifiesCapspaceUserErrors(t *testing.T) {
	wrapped := WrapError("ShmAcquire", capspace.ErrAcquireAddressNotPageAligned)
	assert.Equal(t, UserError, wrapped.Kind)
}

func TestWrapErrorClassifiesDeferredSpaceErrors(t *testing.T) {
	inner := &deferred.DeferredSpaceError{Kind: deferred.ErrKindInProgress}
	wrapped := WrapError("TitlePublish", inner)
	assert.Equal(t, UserError, wrapped.Kind)
	assert.ErrorIs(t, wrapped, inner)
}

func TestWrapErrorClassifiesAppGlobalErrors(t *testing.T) {
	inner := &deferred.AppGlobalDeferredSpaceError{Kind: deferred.AppGlobalErrDuplicateTaskDescriptorIDs}
	wrapped := WrapError("BlockOnDeferredTasks", inner)
	assert.Equal(t, UserError, wrapped.Kind)
}

func TestWrapErrorClassifiesBlockOnDeferredTasksCanceled(t *testing.T) {
	wrapped := WrapError("BlockOnDeferredTasks", deferred.ErrBlockOnDeferredTasksCanceled)
	assert.Equal(t, Deferred, wrapped.Kind)
}

func TestWrapErrorDefaultsToInternal(t *testing.T) {
	wrapped := WrapError("op", errors.New("something unexpected"))
	assert.Equal(t, Internal, wrapped.Kind)
}

func TestIsMatchesOnKindOnly(t *testing.T) {
	a := &Error{Op: "A", Kind: Exhausted, Msg: "one"}
	b := &Error{Op: "B", Kind: Exhausted, Msg: "two"}
	assert.True(t, errors.Is(a, b))

	c := &Error{Kind: Internal}
	assert.False(t, errors.Is(a, c))
}

func TestIsKind(t *testing.T) {
	err := NewError("op", UserError, "bad input")
	assert.True(t, IsKind(err, UserError))
	assert.False(t, IsKind(err, Internal))
	assert.False(t, IsKind(nil, UserError))
}
