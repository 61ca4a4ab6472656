package nucore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/nushift/nucore/internal/capspace"
	"github.com/nushift/nucore/internal/deferred"
)

// newInputCap writes payload (already msgpack-encoded) into a fresh user shm
// cap on tab's own space, the way a guest would before a publish-shaped
// syscall. Reaching into tab.shm directly is fine here since this file lives
// in package nucore alongside Tab itself.
func newInputCap(t *testing.T, tab *Tab, payload []byte) capspace.ShmCapID {
	t.Helper()
	id, cap, err := tab.shm.NewShmCap(capspace.FourKiB, 1, capspace.User, capspace.UserCap)
	require.NoError(t, err)
	if payload != nil {
		cap.Backing().WriteAt(payload, 0)
	}
	return id
}

func newOutputCap(t *testing.T, tab *Tab) capspace.ShmCapID {
	t.Helper()
	return newInputCap(t, tab, nil)
}

func TestNewTabWiresGfxHostWhenHostImplementsIt(t *testing.T) {
	host := NewStubTabContext(deferred.Output{Width: 1920, Height: 1080})
	tab := NewTab(host)

	capID, err := tab.NewGfxCap()
	require.NoError(t, err)
	outputID := newOutputCap(t, tab)

	require.NoError(t, tab.GetOutputsBlocking(capID, outputID))
	// GetOutputsBlocking forwards straight through since Outputs() is
	// synchronous; the stub should have been asked for its outputs.
	assert.Equal(t, 1, host.OutputsCalls)
}

func TestTabShmCapLifecycleReportsNoSpuriousErrors(t *testing.T) {
	tab := NewTab(NewStubTabContext())

	id, err := tab.NewShmCap(capspace.FourKiB, 1)
	require.NoError(t, err)

	require.NoError(t, tab.AcquireShmCap(id, 0x1000, capspace.FlagRW))
	require.NoError(t, tab.ReleaseShmCap(id))
	require.NoError(t, tab.DestroyShmCap(id))
}

func TestTabTitlePublishRunsDeferredAndNotifiesHost(t *testing.T) {
	host := NewStubTabContext()
	observer := NewStubObserver()
	tab := NewTabWithOptions(DefaultShmSpaceConfig(host), &Options{Observer: observer})

	capID, err := tab.NewTitleCap()
	require.NoError(t, err)

	payload, err := msgpack.Marshal("My Document.txt")
	require.NoError(t, err)
	inputID := newInputCap(t, tab, payload)
	outputID := newOutputCap(t, tab)

	require.NoError(t, tab.PublishTitleBlocking(capID, inputID, outputID))
	assert.Equal(t, uint32(1), observer.LastPendingTasksDepth)

	tab.RunDeferredTasks()

	require.Len(t, host.Titles, 1)
	assert.Equal(t, "My Document.txt", host.Titles[0])
	assert.Equal(t, 1, observer.DeferredTaskFinishedCalls)
	assert.True(t, observer.LastDeferredTaskSuccess)
	assert.Equal(t, uint32(0), observer.LastPendingTasksDepth)

	require.NoError(t, tab.DestroyTitleCap(capID))
}

func TestTabAccessibilityTreePublishRunsDeferredAndNotifiesHost(t *testing.T) {
	host := NewStubTabContext()
	tab := NewTab(host)

	capID, err := tab.NewAccessibilityTreeCap()
	require.NoError(t, err)

	want := deferred.AccessibilityTree{
		Surfaces: []deferred.Surface{
			{DisplayList: []deferred.DisplayItem{{Text: &deferred.Text{Text: "hello"}}}},
		},
	}
	payload, err := msgpack.Marshal(&want)
	require.NoError(t, err)
	inputID := newInputCap(t, tab, payload)
	outputID := newOutputCap(t, tab)

	require.NoError(t, tab.PublishAccessibilityTreeBlocking(capID, inputID, outputID))
	tab.RunDeferredTasks()

	require.Len(t, host.AccessibilityTrees, 1)
	assert.Equal(t, want, host.AccessibilityTrees[0])

	require.NoError(t, tab.DestroyAccessibilityTreeCap(capID))
}

func TestTabCpuPresentRunsDeferredAndForwardsToHost(t *testing.T) {
	host := NewStubTabContext()
	tab := NewTab(host)

	capID, err := tab.NewGfxCpuPresentBufferCap(deferred.R8g8b8UintSrgb)
	require.NoError(t, err)

	frame := []byte{1, 2, 3, 4, 5, 6}
	payload, err := msgpack.Marshal(frame)
	require.NoError(t, err)
	inputID := newInputCap(t, tab, payload)
	outputID := newOutputCap(t, tab)

	require.NoError(t, tab.CpuPresentBlocking(capID, inputID, outputID))
	tab.RunDeferredTasks()

	require.Len(t, host.PresentedBuffers, 1)
	assert.Equal(t, frame, host.PresentedBuffers[0])
	assert.Equal(t, deferred.R8g8b8UintSrgb, host.PresentedFormats[0])

	require.NoError(t, tab.DestroyGfxCpuPresentBufferCap(capID))
}

// plainHost implements Host but not GfxHost, exercising NewTab's fallback
// path for hosts that don't support gfx presentation.
type plainHost struct {
	titles []string
}

func (h *plainHost) SetTitle(title string) error {
	h.titles = append(h.titles, title)
	return nil
}

func (h *plainHost) PublishAccessibilityTree(tree deferred.AccessibilityTree) error { return nil }

var _ Host = (*plainHost)(nil)

func TestTabCpuPresentFailsGracefullyWithoutGfxHost(t *testing.T) {
	observer := NewStubObserver()
	tab := NewTabWithOptions(DefaultShmSpaceConfig(&plainHost{}), &Options{Observer: observer})

	capID, err := tab.NewGfxCpuPresentBufferCap(deferred.R8g8b8UintSrgb)
	require.NoError(t, err)

	payload, err := msgpack.Marshal([]byte{1, 2, 3})
	require.NoError(t, err)
	inputID := newInputCap(t, tab, payload)
	outputID := newOutputCap(t, tab)

	require.NoError(t, tab.CpuPresentBlocking(capID, inputID, outputID))
	tab.RunDeferredTasks()

	assert.Equal(t, 1, observer.DeferredTaskFinishedCalls)

	outputID2 := newOutputCap(t, tab)
	gfxCapID, err := tab.NewGfxCap()
	require.NoError(t, err)
	require.NoError(t, tab.GetOutputsBlocking(gfxCapID, outputID2))
}

func TestTabBlockOnDeferredTasksWithNoTasksReturnsWhileRunDeferredTasksDrains(t *testing.T) {
	tab := NewTab(NewStubTabContext())

	capID, err := tab.NewTitleCap()
	require.NoError(t, err)
	payload, err := msgpack.Marshal("Blocked Title")
	require.NoError(t, err)
	inputID := newInputCap(t, tab, payload)
	outputID := newOutputCap(t, tab)
	require.NoError(t, tab.PublishTitleBlocking(capID, inputID, outputID))

	// An empty descriptor list names no task, so BlockOnDeferredTasks returns
	// immediately; this exercises the call path end to end (decode, validate,
	// consume) without racing the RunDeferredTasks call below against a real
	// pending task ID, which BlockOnDeferredTasks's caller never gets to see.
	descriptors, err := msgpack.Marshal(deferred.TaskDescriptors{})
	require.NoError(t, err)
	blockInputID := newInputCap(t, tab, descriptors)

	done := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		done <- tab.BlockOnDeferredTasks(ctx, blockInputID)
	}()

	tab.RunDeferredTasks()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("BlockOnDeferredTasks did not return")
	}
}
