package deferred

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/nushift/nucore/internal/capspace"
)

func TestAllocateTaskReservesAnIDWithoutPublishing(t *testing.T) {
	s := NewAppGlobalDeferredSpace()
	alloc, err := s.AllocateTask(Task{TitlePublish: &TitlePublishTask{TitleCapID: 1}})
	require.NoError(t, err)
	defer alloc.Release()

	// Not visible until Push.
	assert.Empty(t, s.FinishTasks())
}

func TestAllocateTaskAndPush(t *testing.T) {
	s := NewAppGlobalDeferredSpace()
	alloc, err := s.AllocateTask(Task{TitlePublish: &TitlePublishTask{TitleCapID: 7}})
	require.NoError(t, err)
	defer alloc.Release()

	taskID := alloc.Push()
	finished := s.FinishTasks()
	require.Len(t, finished, 1)
	assert.Equal(t, taskID, finished[0].TaskID)
	assert.Equal(t, uint64(7), finished[0].Task.TitlePublish.TitleCapID)

	// A second FinishTasks call doesn't re-emit an already-finished task.
	assert.Empty(t, s.FinishTasks())
}

func TestReleaseAfterPushIsANoOp(t *testing.T) {
	s := NewAppGlobalDeferredSpace()
	alloc, err := s.AllocateTask(Task{TitlePublish: &TitlePublishTask{TitleCapID: 1}})
	require.NoError(t, err)
	taskID := alloc.Push()
	alloc.Release()

	finished := s.FinishTasks()
	require.Len(t, finished, 1)
	assert.Equal(t, taskID, finished[0].TaskID)
}

func TestReleaseWithoutPushFreesTheID(t *testing.T) {
	s := NewAppGlobalDeferredSpace()
	alloc, err := s.AllocateTask(Task{TitlePublish: &TitlePublishTask{TitleCapID: 1}})
	require.NoError(t, err)
	alloc.Release()

	assert.Empty(t, s.FinishTasks())

	again, err := s.AllocateTask(Task{TitlePublish: &TitlePublishTask{TitleCapID: 1}})
	require.NoError(t, err)
	defer again.Release()
	assert.Equal(t, alloc.taskID, again.taskID)
}

func TestFinishTasksMarksEveryWaitingTaskOnce(t *testing.T) {
	s := NewAppGlobalDeferredSpace()
	a1, _ := s.AllocateTask(Task{TitlePublish: &TitlePublishTask{TitleCapID: 1}})
	a2, _ := s.AllocateTask(Task{AccessibilityTreePublish: &AccessibilityTreePublishTask{AccessibilityTreeCapID: 2}})
	defer a1.Release()
	defer a2.Release()
	a1.Push()
	a2.Push()

	finished := s.FinishTasks()
	assert.Len(t, finished, 2)
	assert.Empty(t, s.FinishTasks())
}

func TestValidateTaskDescriptorsRejectsDuplicates(t *testing.T) {
	s := NewAppGlobalDeferredSpace()
	alloc, _ := s.AllocateTask(Task{TitlePublish: &TitlePublishTask{TitleCapID: 1}})
	defer alloc.Release()
	taskID := alloc.Push()

	err := s.validateTaskDescriptors(TaskDescriptors{
		{TaskID: taskID},
		{TaskID: taskID},
	})
	require.Error(t, err)
	var agErr *AppGlobalDeferredSpaceError
	require.ErrorAs(t, err, &agErr)
	assert.Equal(t, AppGlobalErrDuplicateTaskDescriptorIDs, agErr.Kind)
}

func TestValidateTaskDescriptorsRejectsUnknownIDs(t *testing.T) {
	s := NewAppGlobalDeferredSpace()
	err := s.validateTaskDescriptors(TaskDescriptors{{TaskID: 999}})
	require.Error(t, err)
	var agErr *AppGlobalDeferredSpaceError
	require.ErrorAs(t, err, &agErr)
	assert.Equal(t, AppGlobalErrNotFound, agErr.Kind)
	assert.Equal(t, []TaskID{999}, agErr.TaskIDs)
}

func TestConsumeFinishedTasksReleasesAllFinishedTasks(t *testing.T) {
	s := NewAppGlobalDeferredSpace()
	waiting, _ := s.AllocateTask(Task{TitlePublish: &TitlePublishTask{TitleCapID: 1}})
	done, _ := s.AllocateTask(Task{TitlePublish: &TitlePublishTask{TitleCapID: 2}})
	defer waiting.Release()
	defer done.Release()
	waitingID := waiting.Push()
	doneID := done.Push()

	finished := s.FinishTasks()
	require.Len(t, finished, 2)

	unfinished := s.consumeFinishedTasks(TaskDescriptors{{TaskID: waitingID}, {TaskID: doneID}})
	// Both were marked finished by FinishTasks above, so nothing is left waiting.
	assert.Empty(t, unfinished)
	_, stillPresent := s.space[doneID]
	assert.False(t, stillPresent)
}

func TestBlockOnDeferredTasksReturnsImmediatelyWhenAlreadyFinished(t *testing.T) {
	shmSpace := capspace.NewShmSpace()
	s := NewAppGlobalDeferredSpace()
	alloc, _ := s.AllocateTask(Task{TitlePublish: &TitlePublishTask{TitleCapID: 1}})
	defer alloc.Release()
	taskID := alloc.Push()
	s.FinishTasks()

	descriptors := TaskDescriptors{{TaskID: taskID}}
	payload, err := msgpack.Marshal(descriptors)
	require.NoError(t, err)
	inputID := newUserCap(t, shmSpace, payload)

	cond := NewBlockingOnTasksCond()
	err = s.BlockOnDeferredTasks(context.Background(), inputID, shmSpace, cond)
	assert.NoError(t, err)
}

func TestBlockOnDeferredTasksWakesOnNotifyFinished(t *testing.T) {
	shmSpace := capspace.NewShmSpace()
	s := NewAppGlobalDeferredSpace()
	alloc, _ := s.AllocateTask(Task{TitlePublish: &TitlePublishTask{TitleCapID: 1}})
	defer alloc.Release()
	taskID := alloc.Push()

	descriptors := TaskDescriptors{{TaskID: taskID}}
	payload, err := msgpack.Marshal(descriptors)
	require.NoError(t, err)
	inputID := newUserCap(t, shmSpace, payload)

	cond := NewBlockingOnTasksCond()
	done := make(chan error, 1)
	go func() {
		done <- s.BlockOnDeferredTasks(context.Background(), inputID, shmSpace, cond)
	}()

	time.Sleep(20 * time.Millisecond)
	s.FinishTasks()
	cond.NotifyFinished(taskID)

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("BlockOnDeferredTasks did not wake up after NotifyFinished")
	}
}

func TestBlockOnDeferredTasksReturnsCanceledErrorOnContextCancel(t *testing.T) {
	shmSpace := capspace.NewShmSpace()
	s := NewAppGlobalDeferredSpace()
	alloc, _ := s.AllocateTask(Task{TitlePublish: &TitlePublishTask{TitleCapID: 1}})
	defer alloc.Release()
	taskID := alloc.Push()

	descriptors := TaskDescriptors{{TaskID: taskID}}
	payload, err := msgpack.Marshal(descriptors)
	require.NoError(t, err)
	inputID := newUserCap(t, shmSpace, payload)

	cond := NewBlockingOnTasksCond()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- s.BlockOnDeferredTasks(ctx, inputID, shmSpace, cond)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrBlockOnDeferredTasksCanceled)
	case <-time.After(time.Second):
		t.Fatal("BlockOnDeferredTasks did not wake up after context cancellation")
	}
}
