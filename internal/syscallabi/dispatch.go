package syscallabi

import (
	"context"

	"github.com/nushift/nucore/internal/capspace"
	"github.com/nushift/nucore/internal/deferred"
)

// Number identifies which syscall a guest invoked. Matches spec.md §4.12's
// dispatch list; Gfx is the one domain with a genuine get-shaped query
// (GfxGetOutputs), so it carries its own Number distinct from the
// publish-shaped GfxCpuPresent* group.
type Number uint64

const (
	ShmNew Number = iota
	ShmAcquire
	ShmRelease
	ShmDestroy
	ShmNewAndAcquire

	AccessibilityTreeNew
	AccessibilityTreePublish
	AccessibilityTreeDestroy

	TitleNew
	TitlePublish
	TitleDestroy

	GfxNew
	GfxGetOutputs
	GfxDestroy

	GfxCpuPresentNew
	GfxCpuPresentPublish
	GfxCpuPresentDestroy

	BlockOnDeferredTasks
)

// Tab is the per-tab state a dispatched syscall operates on: a ShmSpace,
// the publish/get-shaped domain subspaces, and the app-global task
// scheduler. Grounded on spec.md §5's single-per-tab-mutex Core B model —
// Dispatch takes no lock itself; each Tab method serializes on that tab's
// lock (nucore.Tab takes its one mutex inside every method).
type Tab interface {
	NewShmCap(shmType capspace.ShmType, length uint64) (capspace.ShmCapID, error)
	AcquireShmCap(id capspace.ShmCapID, address uint64, flags capspace.Sv39Flags) error
	ReleaseShmCap(id capspace.ShmCapID) error
	DestroyShmCap(id capspace.ShmCapID) error

	NewAccessibilityTreeCap() (deferred.AccessibilityTreeCapID, error)
	PublishAccessibilityTreeBlocking(capID deferred.AccessibilityTreeCapID, inputID, outputID capspace.ShmCapID) error
	DestroyAccessibilityTreeCap(capID deferred.AccessibilityTreeCapID) error

	NewTitleCap() (deferred.TitleCapID, error)
	PublishTitleBlocking(capID deferred.TitleCapID, inputID, outputID capspace.ShmCapID) error
	DestroyTitleCap(capID deferred.TitleCapID) error

	NewGfxCap() (deferred.GfxCapID, error)
	GetOutputsBlocking(capID deferred.GfxCapID, outputID capspace.ShmCapID) error
	DestroyGfxCap(capID deferred.GfxCapID) error

	NewGfxCpuPresentBufferCap(format deferred.PresentBufferFormat) (deferred.GfxCpuPresentBufferCapID, error)
	CpuPresentBlocking(capID deferred.GfxCpuPresentBufferCapID, inputID, outputID capspace.ShmCapID) error
	DestroyGfxCpuPresentBufferCap(capID deferred.GfxCpuPresentBufferCapID) error

	BlockOnDeferredTasks(ctx context.Context, inputID capspace.ShmCapID) error
}

// Dispatch resolves number against tab, interpreting args according to
// number's fixed register layout, and returns the two-register result.
// Unknown Number values resolve to UnknownSyscall. Args are passed to tab
// unchecked; out-of-range values come back as whatever error tab reports.
func Dispatch(ctx context.Context, tab Tab, number Number, args Args) Return {
	switch number {
	case ShmNew:
		id, err := tab.NewShmCap(capspace.ShmType(args[0]), args[1])
		return fromErr(id, err)

	case ShmAcquire:
		err := tab.AcquireShmCap(args[0], args[1], capspace.Sv39Flags(args[2]))
		return fromErr(0, err)

	case ShmRelease:
		return fromErr(0, tab.ReleaseShmCap(args[0]))

	case ShmDestroy:
		return fromErr(0, tab.DestroyShmCap(args[0]))

	case ShmNewAndAcquire:
		id, err := tab.NewShmCap(capspace.ShmType(args[0]), args[1])
		if err != nil {
			return fail(classify(err))
		}
		if err := tab.AcquireShmCap(id, args[2], capspace.Sv39Flags(args[3])); err != nil {
			return fail(classify(err))
		}
		return ok(id)

	case AccessibilityTreeNew:
		id, err := tab.NewAccessibilityTreeCap()
		return fromErr(id, err)
	case AccessibilityTreePublish:
		return fromErr(0, tab.PublishAccessibilityTreeBlocking(args[0], args[1], args[2]))
	case AccessibilityTreeDestroy:
		return fromErr(0, tab.DestroyAccessibilityTreeCap(args[0]))

	case TitleNew:
		id, err := tab.NewTitleCap()
		return fromErr(id, err)
	case TitlePublish:
		return fromErr(0, tab.PublishTitleBlocking(args[0], args[1], args[2]))
	case TitleDestroy:
		return fromErr(0, tab.DestroyTitleCap(args[0]))

	case GfxNew:
		id, err := tab.NewGfxCap()
		return fromErr(id, err)
	case GfxGetOutputs:
		return fromErr(0, tab.GetOutputsBlocking(args[0], args[1]))
	case GfxDestroy:
		return fromErr(0, tab.DestroyGfxCap(args[0]))

	case GfxCpuPresentNew:
		id, err := tab.NewGfxCpuPresentBufferCap(deferred.PresentBufferFormat(args[0]))
		return fromErr(id, err)
	case GfxCpuPresentPublish:
		return fromErr(0, tab.CpuPresentBlocking(args[0], args[1], args[2]))
	case GfxCpuPresentDestroy:
		return fromErr(0, tab.DestroyGfxCpuPresentBufferCap(args[0]))

	case BlockOnDeferredTasks:
		return fromErr(0, tab.BlockOnDeferredTasks(ctx, args[0]))

	default:
		return fail(UnknownSyscall)
	}
}
