package nucore

import (
	"context"
	"sync"
	"time"

	"github.com/nushift/nucore/internal/capspace"
	"github.com/nushift/nucore/internal/deferred"
	"github.com/nushift/nucore/internal/logging"
)

// Tab owns one guest tab's capability space and domain subspaces, fused
// behind one mutex, matching spec.md §5's "single per-tab mutex" note
// rather than a lock per substructure. It implements
// internal/syscallabi.Tab, so it is what a syscall dispatch loop calls
// into, and internal/deferred.TabContext's counterpart — SetTitle and
// PublishAccessibilityTree are forwarded to the Host supplied at
// construction; PresentFrame and Outputs reach GfxSpace through that Host's
// GfxHost methods when it has them.
type Tab struct {
	mu sync.Mutex

	shm               *capspace.ShmSpace
	accessibilityTree *deferred.AccessibilityTreeSpace
	title             *deferred.TitleSpace
	gfx               *deferred.GfxSpace
	appGlobal         *deferred.AppGlobalDeferredSpace
	blockingCond      *deferred.BlockingOnTasksCond
	scheduledAt       map[deferred.TaskID]time.Time

	host     Host
	observer Observer
	logger   *logging.Logger
}

// Host is the host-side sink a Tab publishes finished title/accessibility-
// tree updates to. It is a strict subset of deferred.TabContext (PresentFrame
// and Outputs are driven directly by GfxSpace, constructed with the same
// Host below), kept separate so callers implementing a Tab's Host aren't
// also forced to implement the gfx-only methods.
type Host interface {
	SetTitle(title string) error
	PublishAccessibilityTree(tree deferred.AccessibilityTree) error
}

// hostTabContext adapts a Host plus the outputs/present-frame behavior
// GfxSpace needs into a full deferred.TabContext, so a Tab only has to take
// one Host parameter instead of wiring two collaborators into NewGfxSpace.
type hostTabContext struct {
	Host
	presentFrame func(deferred.PresentBufferFormat, []byte) error
	outputs      func() []deferred.Output
}

func (h *hostTabContext) PresentFrame(format deferred.PresentBufferFormat, buf []byte) error {
	return h.presentFrame(format, buf)
}

func (h *hostTabContext) Outputs() []deferred.Output { return h.outputs() }

// GfxHost additionally supplies the gfx-only half of deferred.TabContext:
// a present-frame sink and an outputs query. A Host that doesn't implement
// GfxHost still works with NewTab — gfx presents fail with SubmitFailed and
// Outputs reports no outputs, rather than NewTab requiring every caller to
// implement gfx support it may not need.
type GfxHost interface {
	PresentFrame(format deferred.PresentBufferFormat, buffer []byte) error
	Outputs() []deferred.Output
}

// NewTab constructs an empty Tab backed by host for title/accessibility-tree
// publication and, if host also implements GfxHost, for gfx present/outputs.
// It is equivalent to NewTabWithOptions(DefaultShmSpaceConfig(host), nil).
func NewTab(host Host) *Tab {
	return NewTabWithOptions(DefaultShmSpaceConfig(host), nil)
}

// NewTabWithOptions constructs a Tab from config, recording operation
// counts and latencies to options.Observer and logging through
// options.Logger — the Core B analogue of the teacher's
// CreateAndServe(ctx, params, options). A nil options, or a nil field
// within one, behaves like NewTab.
func NewTabWithOptions(config ShmSpaceConfig, options *Options) *Tab {
	host := config.Host
	ctx := &hostTabContext{
		Host: host,
		presentFrame: func(deferred.PresentBufferFormat, []byte) error {
			return NewError("PresentFrame", UserError, "gfx presentation is not supported by this host")
		},
		outputs: func() []deferred.Output { return nil },
	}
	if gfxHost, ok := host.(GfxHost); ok {
		ctx.presentFrame = gfxHost.PresentFrame
		ctx.outputs = gfxHost.Outputs
	}

	return &Tab{
		shm:               capspace.NewShmSpace(),
		accessibilityTree: deferred.NewAccessibilityTreeSpace(),
		title:             deferred.NewTitleSpace(),
		gfx:               deferred.NewGfxSpace(ctx),
		appGlobal:         deferred.NewAppGlobalDeferredSpace(),
		blockingCond:      deferred.NewBlockingOnTasksCond(),
		scheduledAt:       make(map[deferred.TaskID]time.Time),
		host:              host,
		observer:          options.observer(),
		logger:            options.logger(),
	}
}

// --- ShmSpace surface (internal/syscallabi.Tab) ---

func (t *Tab) NewShmCap(shmType capspace.ShmType, length uint64) (capspace.ShmCapID, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	id, _, err := t.shm.NewShmCap(shmType, length, capspace.User, capspace.UserCap)
	return id, wrapErr("NewShmCap", err)
}

func (t *Tab) AcquireShmCap(id capspace.ShmCapID, address uint64, flags capspace.Sv39Flags) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return wrapErr("AcquireShmCap", t.shm.AcquireShmCap(id, address, flags, capspace.User))
}

func (t *Tab) ReleaseShmCap(id capspace.ShmCapID) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return wrapErr("ReleaseShmCap", t.shm.ReleaseShmCap(id, capspace.User))
}

func (t *Tab) DestroyShmCap(id capspace.ShmCapID) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return wrapErr("DestroyShmCap", t.shm.DestroyShmCap(id, capspace.User))
}

// --- Accessibility tree (publish-shaped) ---

func (t *Tab) NewAccessibilityTreeCap() (deferred.AccessibilityTreeCapID, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	id, err := t.accessibilityTree.NewAccessibilityTreeCap()
	return id, wrapErr("NewAccessibilityTreeCap", err)
}

func (t *Tab) PublishAccessibilityTreeBlocking(capID deferred.AccessibilityTreeCapID, inputID, outputID capspace.ShmCapID) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.accessibilityTree.PublishAccessibilityTreeBlocking(capID, inputID, outputID, t.shm); err != nil {
		return wrapErr("PublishAccessibilityTreeBlocking", err)
	}
	return t.scheduleLocked(deferred.Task{AccessibilityTreePublish: &deferred.AccessibilityTreePublishTask{AccessibilityTreeCapID: capID}})
}

func (t *Tab) DestroyAccessibilityTreeCap(capID deferred.AccessibilityTreeCapID) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return wrapErr("DestroyAccessibilityTreeCap", t.accessibilityTree.DestroyAccessibilityTreeCap(capID))
}

// --- Title (publish-shaped) ---

func (t *Tab) NewTitleCap() (deferred.TitleCapID, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	id, err := t.title.NewTitleCap()
	return id, wrapErr("NewTitleCap", err)
}

func (t *Tab) PublishTitleBlocking(capID deferred.TitleCapID, inputID, outputID capspace.ShmCapID) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.title.PublishTitleBlocking(capID, inputID, outputID, t.shm); err != nil {
		return wrapErr("PublishTitleBlocking", err)
	}
	return t.scheduleLocked(deferred.Task{TitlePublish: &deferred.TitlePublishTask{TitleCapID: capID}})
}

func (t *Tab) DestroyTitleCap(capID deferred.TitleCapID) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return wrapErr("DestroyTitleCap", t.title.DestroyTitleCap(capID))
}

// --- Gfx outputs (get-shaped; resolves synchronously, no app-global task) ---

func (t *Tab) NewGfxCap() (deferred.GfxCapID, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	id, err := t.gfx.NewGfxCap()
	return id, wrapErr("NewGfxCap", err)
}

func (t *Tab) GetOutputsBlocking(capID deferred.GfxCapID, outputID capspace.ShmCapID) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.gfx.GetOutputsBlocking(capID, outputID, t.shm); err != nil {
		return wrapErr("GetOutputsBlocking", err)
	}
	// Outputs() is already available synchronously through Host, so the get
	// phase runs immediately rather than waiting on a later app-global task.
	t.gfx.GetOutputsDeferred(capID, t.shm)
	return nil
}

func (t *Tab) DestroyGfxCap(capID deferred.GfxCapID) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return wrapErr("DestroyGfxCap", t.gfx.DestroyGfxCap(capID))
}

// --- Gfx CPU present (publish-shaped) ---

func (t *Tab) NewGfxCpuPresentBufferCap(format deferred.PresentBufferFormat) (deferred.GfxCpuPresentBufferCapID, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	id, err := t.gfx.NewGfxCpuPresentBufferCap(format)
	return id, wrapErr("NewGfxCpuPresentBufferCap", err)
}

func (t *Tab) CpuPresentBlocking(capID deferred.GfxCpuPresentBufferCapID, inputID, outputID capspace.ShmCapID) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.gfx.CpuPresentBlocking(capID, inputID, outputID, t.shm); err != nil {
		return wrapErr("CpuPresentBlocking", err)
	}
	return t.scheduleLocked(deferred.Task{GfxPresent: &deferred.GfxPresentTask{GfxCapID: capID}})
}

func (t *Tab) DestroyGfxCpuPresentBufferCap(capID deferred.GfxCpuPresentBufferCapID) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return wrapErr("DestroyGfxCpuPresentBufferCap", t.gfx.DestroyGfxCpuPresentBufferCap(capID))
}

// scheduleLocked registers task with the app-global scheduler so a later
// RunDeferredTasks call (on the host-executor thread) actually performs the
// domain work and wakes any BlockOnDeferredTasks waiters. Callers must
// already hold t.mu.
func (t *Tab) scheduleLocked(task deferred.Task) error {
	alloc, err := t.appGlobal.AllocateTask(task)
	if err != nil {
		return wrapErr("scheduleTask", err)
	}
	defer alloc.Release()
	taskID := alloc.Push()
	t.scheduledAt[taskID] = time.Now()
	t.observer.ObservePendingTasks(uint32(len(t.scheduledAt)))
	t.logger.Debug("scheduled deferred task", "task_id", taskID)
	return nil
}

// BlockOnDeferredTasks decodes a TaskDescriptors payload from inputID and
// blocks until every task it names has finished, honoring ctx cancellation.
// It releases t.mu for the duration of the wait (app_global_deferred_space.rs's
// condvar pattern), so RunDeferredTasks can keep making progress on another
// goroutine while this one blocks.
func (t *Tab) BlockOnDeferredTasks(ctx context.Context, inputID capspace.ShmCapID) error {
	t.mu.Lock()
	appGlobal, shm, cond, logger := t.appGlobal, t.shm, t.blockingCond, t.logger
	t.mu.Unlock()

	err := appGlobal.BlockOnDeferredTasks(ctx, inputID, shm, cond)
	if err != nil {
		logger.Debug("BlockOnDeferredTasks returned", "error", err)
	}
	return wrapErr("BlockOnDeferredTasks", err)
}

// RunDeferredTasks drains every task the guest has scheduled since the last
// call, performs the corresponding domain handler's deferred half, and
// wakes any BlockOnDeferredTasks waiters. Intended to be called repeatedly
// by the host-executor thread (spec.md §5's second thread, alongside the
// guest-interpreter thread that drives syscalls through Tab's other
// methods), the same way process_control_block.rs's run loop alternates
// guest execution with draining host-side work.
func (t *Tab) RunDeferredTasks() {
	t.mu.Lock()
	finished := t.appGlobal.FinishTasks()
	for _, ft := range finished {
		success := true
		switch {
		case ft.Task.TitlePublish != nil:
			t.title.PublishTitleDeferred(ft.Task.TitlePublish.TitleCapID, t.shm)
			if title, ok := t.title.Title(); ok {
				if err := t.host.SetTitle(title); err != nil {
					success = false
					t.logger.Warn("SetTitle failed", "error", err)
				}
			}
		case ft.Task.AccessibilityTreePublish != nil:
			t.accessibilityTree.PublishAccessibilityTreeDeferred(ft.Task.AccessibilityTreePublish.AccessibilityTreeCapID, t.shm)
			if tree, ok := t.accessibilityTree.Tree(); ok {
				if err := t.host.PublishAccessibilityTree(tree); err != nil {
					success = false
					t.logger.Warn("PublishAccessibilityTree failed", "error", err)
				}
			}
		case ft.Task.GfxPresent != nil:
			t.gfx.CpuPresentDeferred(ft.Task.GfxPresent.GfxCapID, t.shm)
		}

		latencyNs := uint64(0)
		if scheduled, ok := t.scheduledAt[ft.TaskID]; ok {
			latencyNs = uint64(time.Since(scheduled).Nanoseconds())
			delete(t.scheduledAt, ft.TaskID)
		}
		t.observer.ObserveDeferredTaskFinished(latencyNs, success)
	}
	t.observer.ObservePendingTasks(uint32(len(t.scheduledAt)))
	t.mu.Unlock()

	for _, ft := range finished {
		t.blockingCond.NotifyFinished(ft.TaskID)
	}
}
