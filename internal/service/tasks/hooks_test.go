package tasks_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/taskqueue/internal/model"
	"github.com/ashita-ai/taskqueue/internal/service/tasks"
	"github.com/ashita-ai/taskqueue/internal/testutil"
)

type recordingHook struct {
	events chan model.TaskEvent
	err    error
}

func newRecordingHook(err error) *recordingHook {
	return &recordingHook{events: make(chan model.TaskEvent, 8), err: err}
}

func (h *recordingHook) OnTaskEnqueued(_ context.Context, ev model.TaskEvent) error {
	h.events <- ev
	return h.err
}

func (h *recordingHook) OnTaskClaimed(_ context.Context, ev model.TaskEvent) error {
	h.events <- ev
	return h.err
}

func (h *recordingHook) OnTaskFinished(_ context.Context, ev model.TaskEvent) error {
	h.events <- ev
	return h.err
}

func (h *recordingHook) next(t *testing.T) model.TaskEvent {
	t.Helper()
	select {
	case ev := <-h.events:
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("no hook event delivered")
		return model.TaskEvent{}
	}
}

func newHookedService(t *testing.T, hooks ...tasks.Hook) *tasks.Service {
	t.Helper()
	ctx := context.Background()
	store := testutil.NewSQLiteStore(t)
	_, err := store.EnsureTaskType(ctx, "scrape")
	require.NoError(t, err)
	reg, err := tasks.LoadStatusRegistry(ctx, store, testutil.TestLogger())
	require.NoError(t, err)
	return tasks.New(store, reg, nil, testutil.TestLogger(), hooks...)
}

func TestHooks_LifecycleEvents(t *testing.T) {
	hook := newRecordingHook(nil)
	svc := newHookedService(t, hook)
	ctx := context.Background()

	task := enqueue(t, svc, "scrape", `{"a":1}`)
	ev := hook.next(t)
	assert.Equal(t, model.TaskStatusUnclaimed, ev.Status)
	assert.Equal(t, task.ID, ev.TaskID)
	assert.Equal(t, "scrape", ev.TaskType)
	assert.Equal(t, task.Revision, ev.Revision)

	_, err := svc.Claim(ctx, "scrape", "worker-1")
	require.NoError(t, err)
	ev = hook.next(t)
	assert.Equal(t, model.TaskStatusClaimed, ev.Status)
	assert.Equal(t, "worker-1", ev.AgentID)

	_, err = svc.Complete(ctx, model.CompleteRequest{TaskID: task.ID, Success: false, Message: ptr("boom")})
	require.NoError(t, err)
	ev = hook.next(t)
	assert.Equal(t, model.TaskStatusFailed, ev.Status)
	assert.Equal(t, "scrape", ev.TaskType)
	assert.False(t, ev.At.IsZero())
}

func TestHooks_FailureDoesNotFailRequest(t *testing.T) {
	failing := newRecordingHook(errors.New("webhook down"))
	healthy := newRecordingHook(nil)
	svc := newHookedService(t, failing, healthy)

	enqueue(t, svc, "scrape", `{"a":1}`)
	failing.next(t)
	assert.Equal(t, model.TaskStatusUnclaimed, healthy.next(t).Status, "later hooks still run")
}

func TestHooks_NoEventOnRejectedRequest(t *testing.T) {
	hook := newRecordingHook(nil)
	svc := newHookedService(t, hook)

	_, err := svc.Claim(context.Background(), "scrape", "worker-1")
	require.ErrorIs(t, err, model.ErrNoWorkAvailable)
	select {
	case ev := <-hook.events:
		t.Fatalf("unexpected event %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}
