package syscallabi

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nushift/nucore/internal/capspace"
	"github.com/nushift/nucore/internal/deferred"
)

type fakeTab struct {
	shmCapID capspace.ShmCapID
	shmErr   error

	acquireErr error
	releaseErr error
	destroyErr error

	accessibilityCapID deferred.AccessibilityTreeCapID
	titleCapID         deferred.TitleCapID
	gfxCapID           deferred.GfxCapID
	gfxCpuCapID        deferred.GfxCpuPresentBufferCapID
	newErr             error
	publishErr         error

	blockErr error

	gotArgs Args
}

func (f *fakeTab) NewShmCap(shmType capspace.ShmType, length uint64) (capspace.ShmCapID, error) {
	return f.shmCapID, f.shmErr
}
func (f *fakeTab) AcquireShmCap(id capspace.ShmCapID, address uint64, flags capspace.Sv39Flags) error {
	return f.acquireErr
}
func (f *fakeTab) ReleaseShmCap(id capspace.ShmCapID) error { return f.releaseErr }
func (f *fakeTab) DestroyShmCap(id capspace.ShmCapID) error { return f.destroyErr }

func (f *fakeTab) NewAccessibilityTreeCap() (deferred.AccessibilityTreeCapID, error) {
	return f.accessibilityCapID, f.newErr
}
func (f *fakeTab) PublishAccessibilityTreeBlocking(capID deferred.AccessibilityTreeCapID, inputID, outputID capspace.ShmCapID) error {
	return f.publishErr
}
func (f *fakeTab) DestroyAccessibilityTreeCap(capID deferred.AccessibilityTreeCapID) error {
	return f.destroyErr
}

func (f *fakeTab) NewTitleCap() (deferred.TitleCapID, error) { return f.titleCapID, f.newErr }
func (f *fakeTab) PublishTitleBlocking(capID deferred.TitleCapID, inputID, outputID capspace.ShmCapID) error {
	return f.publishErr
}
func (f *fakeTab) DestroyTitleCap(capID deferred.TitleCapID) error { return f.destroyErr }

func (f *fakeTab) NewGfxCap() (deferred.GfxCapID, error) { return f.gfxCapID, f.newErr }
func (f *fakeTab) GetOutputsBlocking(capID deferred.GfxCapID, outputID capspace.ShmCapID) error {
	return f.publishErr
}
func (f *fakeTab) DestroyGfxCap(capID deferred.GfxCapID) error { return f.destroyErr }

func (f *fakeTab) NewGfxCpuPresentBufferCap(format deferred.PresentBufferFormat) (deferred.GfxCpuPresentBufferCapID, error) {
	return f.gfxCpuCapID, f.newErr
}
func (f *fakeTab) CpuPresentBlocking(capID deferred.GfxCpuPresentBufferCapID, inputID, outputID capspace.ShmCapID) error {
	return f.publishErr
}
func (f *fakeTab) DestroyGfxCpuPresentBufferCap(capID deferred.GfxCpuPresentBufferCapID) error {
	return f.destroyErr
}

func (f *fakeTab) BlockOnDeferredTasks(ctx context.Context, inputID capspace.ShmCapID) error {
	return f.blockErr
}

func TestDispatchShmNewSuccess(t *testing.T) {
	tab := &fakeTab{shmCapID: 42}
	got := Dispatch(context.Background(), tab, ShmNew, Args{uint64(capspace.FourKiB), 0x1000})
	assert.Equal(t, Return{Success: 42, Code: NoError}, got)
}

func TestDispatchShmNewPropagatesError(t *testing.T) {
	tab := &fakeTab{shmErr: capspace.ErrExhausted}
	got := Dispatch(context.Background(), tab, ShmNew, Args{})
	assert.Equal(t, Return{Success: 0, Code: Exhausted}, got)
}

func TestDispatchShmNewAndAcquireChainsCalls(t *testing.T) {
	tab := &fakeTab{shmCapID: 9}
	got := Dispatch(context.Background(), tab, ShmNewAndAcquire, Args{uint64(capspace.FourKiB), 0x1000, 0x2000, uint64(capspace.FlagRW)})
	assert.Equal(t, Return{Success: 9, Code: NoError}, got)
}

func TestDispatchShmNewAndAcquireStopsOnAcquireFailure(t *testing.T) {
	tab := &fakeTab{shmCapID: 9, acquireErr: capspace.ErrAcquireAddressNotPageAligned}
	got := Dispatch(context.Background(), tab, ShmNewAndAcquire, Args{})
	assert.Equal(t, Return{Success: 0, Code: ShmAddressNotAligned}, got)
}

func TestDispatchAccessibilityTreeLifecycle(t *testing.T) {
	tab := &fakeTab{accessibilityCapID: 3}
	assert.Equal(t, ok(3), Dispatch(context.Background(), tab, AccessibilityTreeNew, Args{}))
	assert.Equal(t, ok(0), Dispatch(context.Background(), tab, AccessibilityTreePublish, Args{3, 10, 11}))
	assert.Equal(t, ok(0), Dispatch(context.Background(), tab, AccessibilityTreeDestroy, Args{3}))
}

func TestDispatchTitleLifecycle(t *testing.T) {
	tab := &fakeTab{titleCapID: 5}
	assert.Equal(t, ok(5), Dispatch(context.Background(), tab, TitleNew, Args{}))
	assert.Equal(t, ok(0), Dispatch(context.Background(), tab, TitlePublish, Args{5, 10, 11}))
	assert.Equal(t, ok(0), Dispatch(context.Background(), tab, TitleDestroy, Args{5}))
}

func TestDispatchGfxLifecycle(t *testing.T) {
	tab := &fakeTab{gfxCapID: 7}
	assert.Equal(t, ok(7), Dispatch(context.Background(), tab, GfxNew, Args{}))
	assert.Equal(t, ok(0), Dispatch(context.Background(), tab, GfxGetOutputs, Args{7, 11}))
	assert.Equal(t, ok(0), Dispatch(context.Background(), tab, GfxDestroy, Args{7}))
}

func TestDispatchGfxCpuPresentLifecycle(t *testing.T) {
	tab := &fakeTab{gfxCpuCapID: 8}
	assert.Equal(t, ok(8), Dispatch(context.Background(), tab, GfxCpuPresentNew, Args{uint64(deferred.R8g8b8UintSrgb)}))
	assert.Equal(t, ok(0), Dispatch(context.Background(), tab, GfxCpuPresentPublish, Args{8, 10, 11}))
	assert.Equal(t, ok(0), Dispatch(context.Background(), tab, GfxCpuPresentDestroy, Args{8}))
}

func TestDispatchBlockOnDeferredTasks(t *testing.T) {
	tab := &fakeTab{blockErr: deferred.ErrBlockOnDeferredTasksCanceled}
	got := Dispatch(context.Background(), tab, BlockOnDeferredTasks, Args{10})
	assert.Equal(t, InternalError, got.Code)
}

func TestDispatchUnknownNumberIsUnknownSyscall(t *testing.T) {
	tab := &fakeTab{}
	got := Dispatch(context.Background(), tab, Number(9999), Args{})
	assert.Equal(t, Return{Success: 0, Code: UnknownSyscall}, got)
}

func TestDispatchNeverPanicsOnGarbageArgs(t *testing.T) {
	tab := &fakeTab{destroyErr: errors.New("boom")}
	assert.NotPanics(t, func() {
		Dispatch(context.Background(), tab, ShmDestroy, Args{^uint64(0)})
	})
}
