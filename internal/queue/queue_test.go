package queue

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/unclebandit/certificate-service/internal/errors"
)

func newTestQueue() *InMemoryQueue {
	q := NewInMemoryQueue()
	q.Backoff = time.Millisecond
	return q
}

func TestPublishWithoutSubscribers(t *testing.T) {
	q := newTestQueue()
	assert.Error(t, q.Publish(TopicRunExecutions, Job{ID: uuid.New()}))
}

func TestInMemoryQueueRetriesUntilSuccess(t *testing.T) {
	q := newTestQueue()
	var calls atomic.Int32
	require.NoError(t, q.Subscribe("t", func(any) error {
		if calls.Add(1) < 3 {
			return errors.New("transient")
		}
		return nil
	}))

	require.NoError(t, q.Publish("t", 1))
	q.Wait()

	assert.Equal(t, int32(3), calls.Load())
}

func TestInMemoryQueueGivesUp(t *testing.T) {
	q := newTestQueue()
	q.MaxRetries = 2
	var calls atomic.Int32
	require.NoError(t, q.Subscribe("t", func(any) error {
		calls.Add(1)
		return errors.New("down")
	}))

	require.NoError(t, q.Publish("t", 1))
	q.Wait()

	assert.Equal(t, int32(3), calls.Load())
}

func TestRunExecutionSubscriberDropsPermanentErrors(t *testing.T) {
	q := newTestQueue()
	id := uuid.New()
	var calls atomic.Int32
	require.NoError(t, StartRunExecutionSubscriber(q, func(_ context.Context, got uuid.UUID) error {
		calls.Add(1)
		assert.Equal(t, id, got)
		return appErrors.NewInvalidState("run", got, "completed", "execute")
	}))

	require.NoError(t, q.Publish(TopicRunExecutions, Job{ID: id}))
	q.Wait()

	assert.Equal(t, int32(1), calls.Load())
}

func TestHandleRejectsUnknownPayload(t *testing.T) {
	called := false
	h := Handle(TopicCampaignSends, func(context.Context, uuid.UUID) error {
		called = true
		return nil
	})

	assert.NoError(t, h("not a job"))
	assert.False(t, called)
}

func TestAsJob(t *testing.T) {
	id := uuid.New()
	for _, payload := range []any{Job{ID: id}, &Job{ID: id}, id} {
		job, err := asJob(payload)
		require.NoError(t, err)
		assert.Equal(t, id, job.ID)
	}
}
