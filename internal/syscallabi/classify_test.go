package syscallabi

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nushift/nucore/internal/capspace"
	"github.com/nushift/nucore/internal/deferred"
)

func TestClassifyNil(t *testing.T) {
	assert.Equal(t, NoError, classify(nil))
}

func TestClassifyCapspaceErrors(t *testing.T) {
	cases := []struct {
		err  error
		want ErrorCode
	}{
		{capspace.ErrExhausted, Exhausted},
		{capspace.ErrCapNotFound, CapNotFound},
		{capspace.ErrPermissionDeniedForCapKind, PermissionDenied},
		{capspace.ErrPermissionDenied, PermissionDenied},
		{capspace.ErrInvalidLength, ShmInvalidLength},
		{capspace.ErrCapacityNotAvailable, ShmCapacityNotAvailable},
		{capspace.ErrDestroyingCurrentlyAcquiredCap, ShmCapCurrentlyAcquired},
		{capspace.ErrAcquiringAlreadyAcquiredCap, ShmCapCurrentlyAcquired},
		{capspace.ErrAcquireExceedsSv39, ShmAddressOutOfBounds},
		{capspace.ErrAcquireAddressNotPageAligned, ShmAddressNotAligned},
		{capspace.ErrAcquireIntersectsExisting, ShmOverlapsExistingAcquisition},
		{capspace.ErrDuplicateID, InternalError},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, classify(c.err), c.err)
	}
}

func TestClassifyWrappedCapspaceError(t *testing.T) {
	wrapped := errors.Join(errors.New("context"), capspace.ErrCapNotFound)
	assert.Equal(t, CapNotFound, classify(wrapped))
}

func TestClassifyDeferredSpaceErrors(t *testing.T) {
	cases := []struct {
		kind deferred.DeferredSpaceErrorKind
		want ErrorCode
	}{
		{deferred.ErrKindCapNotFound, CapNotFound},
		{deferred.ErrKindInProgress, InProgress},
		{deferred.ErrKindExhausted, Exhausted},
		{deferred.ErrKindShmCapNotFound, CapNotFound},
		{deferred.ErrKindShmPermissionDenied, PermissionDenied},
		{deferred.ErrKindDuplicateID, InternalError},
		{deferred.ErrKindGetOrPublishInternal, InternalError},
	}
	for _, c := range cases {
		err := &deferred.DeferredSpaceError{Kind: c.kind}
		assert.Equal(t, c.want, classify(err), c.kind)
	}
}

func TestClassifyAppGlobalDeferredSpaceErrors(t *testing.T) {
	cases := []struct {
		kind deferred.AppGlobalErrorKind
		want ErrorCode
	}{
		{deferred.AppGlobalErrExhausted, Exhausted},
		{deferred.AppGlobalErrNotFound, DeferredTaskIdNotFound},
		{deferred.AppGlobalErrDuplicateTaskDescriptorIDs, DeferredDuplicateTaskIds},
		{deferred.AppGlobalErrDeserializeTaskDescriptors, DeferredDeserializeTaskIdsError},
		{deferred.AppGlobalErrShmCapNotFound, CapNotFound},
		{deferred.AppGlobalErrShmPermissionDenied, PermissionDenied},
		{deferred.AppGlobalErrDuplicateID, InternalError},
		{deferred.AppGlobalErrShmUnexpected, InternalError},
	}
	for _, c := range cases {
		err := &deferred.AppGlobalDeferredSpaceError{Kind: c.kind}
		assert.Equal(t, c.want, classify(err), c.kind)
	}
}

func TestClassifyUnknownErrorIsInternal(t *testing.T) {
	assert.Equal(t, InternalError, classify(errors.New("something else")))
}
