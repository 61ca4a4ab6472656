package deferred

import (
	"context"
	"fmt"
	"sync"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/nushift/nucore/internal/capspace"
	"github.com/nushift/nucore/internal/idpool"
)

// TaskID identifies a scheduled Task within an AppGlobalDeferredSpace.
type TaskID = uint64

// Task is a tagged union of the deferred work an app-global task can
// represent. GfxPresent is named explicitly in spec.md §3/§4.12 but absent
// from the read deferred_space/app_global_deferred_space.rs; it is
// implemented anyway per the supplement rule (spec.md's explicit naming
// controls, and the shape is mechanical — symmetric with TitlePublish).
type Task struct {
	AccessibilityTreePublish *AccessibilityTreePublishTask
	TitlePublish             *TitlePublishTask
	GfxPresent               *GfxPresentTask
}

type AccessibilityTreePublishTask struct {
	AccessibilityTreeCapID AccessibilityTreeCapID
}

type TitlePublishTask struct {
	TitleCapID TitleCapID
}

type GfxPresentTask struct {
	GfxCapID GfxCapID
}

// scheduledTask is either Waiting(Task) or Finished, mirroring
// ScheduledTask in app_global_deferred_space.rs. The nil-discriminant
// sum-type pattern used elsewhere in this module doesn't fit here (Task
// itself is a struct of optional pointers, not something with a natural
// "absent" zero value distinct from a legitimate task), so this one keeps
// an explicit bool tag.
type scheduledTask struct {
	task     Task
	finished bool
}

// AppGlobalDeferredSpaceError mirrors AppGlobalDeferredSpaceError.
type AppGlobalDeferredSpaceError struct {
	Kind    AppGlobalErrorKind
	TaskIDs []TaskID
	Err     error
}

type AppGlobalErrorKind int

const (
	AppGlobalErrDuplicateID AppGlobalErrorKind = iota
	AppGlobalErrExhausted
	AppGlobalErrDuplicateTaskDescriptorIDs
	AppGlobalErrNotFound
	AppGlobalErrDeserializeTaskDescriptors
	AppGlobalErrShmCapNotFound
	AppGlobalErrShmPermissionDenied
	AppGlobalErrShmUnexpected
)

func (e *AppGlobalDeferredSpaceError) Error() string {
	switch e.Kind {
	case AppGlobalErrDuplicateID:
		return "the new pool ID was already present in the space; this indicates a bug"
	case AppGlobalErrExhausted:
		return "the maximum amount of deferred tasks have been reached"
	case AppGlobalErrDuplicateTaskDescriptorIDs:
		return "multiple task descriptors with the same task ID were provided"
	case AppGlobalErrNotFound:
		return fmt.Sprintf("tasks with task IDs %v not found", e.TaskIDs)
	case AppGlobalErrDeserializeTaskDescriptors:
		return fmt.Sprintf("error deserialising task descriptors: %v", e.Err)
	case AppGlobalErrShmCapNotFound:
		return "the SHM cap was not found"
	case AppGlobalErrShmPermissionDenied:
		return "the SHM cap is not allowed to be used as an input cap"
	default:
		return "unexpected SHM space error"
	}
}

func (e *AppGlobalDeferredSpaceError) Unwrap() error { return e.Err }

// AppGlobalDeferredSpace schedules tasks that run once per app (as opposed
// to DefaultDeferredSpace, which is per domain cap) and lets a syscall
// block until a chosen subset of them finishes.
type AppGlobalDeferredSpace struct {
	idPool *idpool.ManualPool
	space  map[TaskID]*scheduledTask
}

func NewAppGlobalDeferredSpace() *AppGlobalDeferredSpace {
	return &AppGlobalDeferredSpace{
		idPool: idpool.NewManualPool(),
		space:  make(map[TaskID]*scheduledTask),
	}
}

// TaskAllocation reserves a task id and holds the pending task until the
// caller either commits it with Push or abandons it. The original ties this
// to a Drop impl that rolls back the id reservation automatically; Go has
// no equivalent, so callers MUST `defer alloc.Release()` — calling it after
// a successful Push is a no-op.
type TaskAllocation struct {
	taskID  TaskID
	pending *Task // nil once Push or Release has run
	space   *AppGlobalDeferredSpace
}

// AllocateTask reserves a task id for task without yet making it visible to
// FinishTasks/BlockOnDeferredTasks. Callers must call Push to commit it, and
// should `defer alloc.Release()` so an abandoned allocation's id is freed.
func (s *AppGlobalDeferredSpace) AllocateTask(task Task) (*TaskAllocation, error) {
	id, err := s.idPool.TryAllocate()
	if err != nil {
		return nil, &AppGlobalDeferredSpaceError{Kind: AppGlobalErrExhausted}
	}
	taskID := uint64(id)
	if _, exists := s.space[taskID]; exists {
		return nil, &AppGlobalDeferredSpaceError{Kind: AppGlobalErrDuplicateID}
	}
	return &TaskAllocation{taskID: taskID, pending: &task, space: s}, nil
}

// Push commits the allocation, making the task visible, and returns its id.
// Calling it more than once does nothing beyond the first call.
func (a *TaskAllocation) Push() TaskID {
	if a.pending != nil {
		a.space.space[a.taskID] = &scheduledTask{task: *a.pending}
		a.pending = nil
	}
	return a.taskID
}

// Release rolls back the id reservation if Push was never called. Safe to
// call unconditionally (including after a successful Push).
func (a *TaskAllocation) Release() {
	if a.pending != nil {
		a.space.idPool.Release(idpool.ID(a.taskID))
		a.pending = nil
	}
}

// FinishedTask pairs a task id with the Task that was waiting on it.
type FinishedTask struct {
	TaskID TaskID
	Task   Task
}

// FinishTasks marks every still-Waiting task Finished and returns them.
// Already-Finished entries are left untouched and not re-emitted.
func (s *AppGlobalDeferredSpace) FinishTasks() []FinishedTask {
	var finished []FinishedTask
	for taskID, st := range s.space {
		if !st.finished {
			finished = append(finished, FinishedTask{TaskID: taskID, Task: st.task})
			st.finished = true
		}
	}
	return finished
}

// TaskDescriptor names one task a blocking syscall is waiting on.
type TaskDescriptor struct {
	TaskID                  TaskID `msgpack:"task_id"`
	InputShmCapAcquireAddr  uint64 `msgpack:"input_shm_cap_acquire_addr"`
	OutputShmCapAcquireAddr uint64 `msgpack:"output_shm_cap_acquire_addr"`
}

// TaskDescriptors is the decoded payload of a BlockOnDeferredTasks input
// cap.
type TaskDescriptors []TaskDescriptor

// BlockingOnTasksCond is the shared condition variable FinishTasks' caller
// signals on after scheduling work, and BlockOnDeferredTasks waits on.
// Grounded on app_global_deferred_space.rs's BlockingOnTasksCondvar
// (Mutex<HashSet<TaskId>> + Condvar); the guarded set holds the task ids
// still outstanding.
type BlockingOnTasksCond struct {
	mu      sync.Mutex
	cond    *sync.Cond
	waiting map[TaskID]struct{}
}

func NewBlockingOnTasksCond() *BlockingOnTasksCond {
	b := &BlockingOnTasksCond{waiting: make(map[TaskID]struct{})}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// NotifyFinished removes taskID from the outstanding set and wakes every
// waiter to re-check their own condition.
func (b *BlockingOnTasksCond) NotifyFinished(taskID TaskID) {
	b.mu.Lock()
	delete(b.waiting, taskID)
	b.mu.Unlock()
	b.cond.Broadcast()
}

// validateTaskDescriptors checks for duplicate or unknown task ids.
func (s *AppGlobalDeferredSpace) validateTaskDescriptors(descriptors TaskDescriptors) error {
	seen := make(map[TaskID]struct{}, len(descriptors))
	for _, d := range descriptors {
		if _, dup := seen[d.TaskID]; dup {
			return &AppGlobalDeferredSpaceError{Kind: AppGlobalErrDuplicateTaskDescriptorIDs}
		}
		seen[d.TaskID] = struct{}{}
	}

	var notFound []TaskID
	for _, d := range descriptors {
		if _, ok := s.space[d.TaskID]; !ok {
			notFound = append(notFound, d.TaskID)
		}
	}
	if len(notFound) > 0 {
		return &AppGlobalDeferredSpaceError{Kind: AppGlobalErrNotFound, TaskIDs: notFound}
	}
	return nil
}

// consumeFinishedTasks removes and releases every already-Finished
// descriptor, returning the ids that are still Waiting.
func (s *AppGlobalDeferredSpace) consumeFinishedTasks(descriptors TaskDescriptors) []TaskID {
	var unfinished []TaskID
	for _, d := range descriptors {
		st, ok := s.space[d.TaskID]
		if !ok {
			panic("deferred: task id vanished after validation")
		}
		if st.finished {
			delete(s.space, d.TaskID)
			s.idPool.Release(idpool.ID(d.TaskID))
		} else {
			unfinished = append(unfinished, d.TaskID)
		}
	}
	return unfinished
}

// ErrBlockOnDeferredTasksCanceled is returned when ctx is canceled while
// still waiting on outstanding tasks. Go's blocking-wait idiom always takes
// a context.Context; the original has no async cancellation story at all,
// so this is an addition beyond it.
var ErrBlockOnDeferredTasksCanceled = fmt.Errorf("deferred: canceled while waiting for tasks to finish")

// shmSpaceUserGetter is the subset of *capspace.ShmSpace BlockOnDeferredTasks
// needs.
type shmSpaceUserGetter interface {
	GetShmCapUser(capspace.ShmCapID) (*capspace.ShmCap, error)
}

// BlockOnDeferredTasks decodes a TaskDescriptors payload from inputShmCapID,
// validates it, consumes any descriptors that are already finished, and
// blocks on cond for the remainder — honoring ctx cancellation.
func (s *AppGlobalDeferredSpace) BlockOnDeferredTasks(ctx context.Context, inputShmCapID capspace.ShmCapID, space shmSpaceUserGetter, cond *BlockingOnTasksCond) error {
	inputShmCap, err := space.GetShmCapUser(inputShmCapID)
	if err != nil {
		return &AppGlobalDeferredSpaceError{Kind: AppGlobalErrShmCapNotFound, Err: err}
	}

	var descriptors TaskDescriptors
	if err := msgpack.Unmarshal(inputShmCap.Backing().Snapshot(), &descriptors); err != nil {
		return &AppGlobalDeferredSpaceError{Kind: AppGlobalErrDeserializeTaskDescriptors, Err: err}
	}
	if err := s.validateTaskDescriptors(descriptors); err != nil {
		return err
	}

	unfinished := s.consumeFinishedTasks(descriptors)
	if len(unfinished) == 0 {
		return nil
	}

	cond.mu.Lock()
	defer cond.mu.Unlock()
	cond.waiting = make(map[TaskID]struct{}, len(unfinished))
	for _, id := range unfinished {
		cond.waiting[id] = struct{}{}
	}

	if ctx != nil {
		stop := context.AfterFunc(ctx, cond.cond.Broadcast)
		defer stop()
	}

	for len(cond.waiting) > 0 {
		if ctx != nil {
			select {
			case <-ctx.Done():
				return ErrBlockOnDeferredTasksCanceled
			default:
			}
		}
		cond.cond.Wait()
	}
	return nil
}
