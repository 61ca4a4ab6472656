package syscallabi

import (
	"errors"

	"github.com/nushift/nucore/internal/capspace"
	"github.com/nushift/nucore/internal/deferred"
)

// classify maps a domain error from capspace/deferred onto the numeric
// error taxonomy spec.md §4.12 names. This is the one place that
// translation happens; every package above the syscall boundary keeps its
// own typed errors (SPEC_FULL.md §8).
func classify(err error) ErrorCode {
	if err == nil {
		return NoError
	}

	switch {
	case errors.Is(err, capspace.ErrExhausted):
		return Exhausted
	case errors.Is(err, capspace.ErrCapNotFound):
		return CapNotFound
	case errors.Is(err, capspace.ErrPermissionDeniedForCapKind):
		return PermissionDenied
	case errors.Is(err, capspace.ErrPermissionDenied):
		return PermissionDenied
	case errors.Is(err, capspace.ErrInvalidLength):
		return ShmInvalidLength
	case errors.Is(err, capspace.ErrCapacityNotAvailable):
		return ShmCapacityNotAvailable
	case errors.Is(err, capspace.ErrDestroyingCurrentlyAcquiredCap):
		return ShmCapCurrentlyAcquired
	case errors.Is(err, capspace.ErrAcquiringAlreadyAcquiredCap):
		return ShmCapCurrentlyAcquired
	case errors.Is(err, capspace.ErrAcquireExceedsSv39):
		return ShmAddressOutOfBounds
	case errors.Is(err, capspace.ErrAcquireAddressNotPageAligned):
		return ShmAddressNotAligned
	case errors.Is(err, capspace.ErrAcquireIntersectsExisting):
		return ShmOverlapsExistingAcquisition
	case errors.Is(err, capspace.ErrDuplicateID):
		return InternalError
	}

	var dsErr *deferred.DeferredSpaceError
	if errors.As(err, &dsErr) {
		switch dsErr.Kind {
		case deferred.ErrKindCapNotFound:
			return CapNotFound
		case deferred.ErrKindInProgress:
			return InProgress
		case deferred.ErrKindExhausted:
			return Exhausted
		case deferred.ErrKindShmCapNotFound:
			return CapNotFound
		case deferred.ErrKindShmPermissionDenied:
			return PermissionDenied
		default:
			return InternalError
		}
	}

	var agErr *deferred.AppGlobalDeferredSpaceError
	if errors.As(err, &agErr) {
		switch agErr.Kind {
		case deferred.AppGlobalErrExhausted:
			return Exhausted
		case deferred.AppGlobalErrNotFound:
			return DeferredTaskIdNotFound
		case deferred.AppGlobalErrDuplicateTaskDescriptorIDs:
			return DeferredDuplicateTaskIds
		case deferred.AppGlobalErrDeserializeTaskDescriptors:
			return DeferredDeserializeTaskIdsError
		case deferred.AppGlobalErrShmCapNotFound:
			return CapNotFound
		case deferred.AppGlobalErrShmPermissionDenied:
			return PermissionDenied
		default:
			return InternalError
		}
	}

	return InternalError
}
