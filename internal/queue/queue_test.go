package queue

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func sampleTask() Task {
	return Task{
		Recipients: []string{" sales@acme.test ", ""},
		ReplyTo:    "ada@example.com",
		Template:   "contact_notification",
		Payload:    map[string]string{"subject": "First choice"},
	}
}

func TestPrepareRejectsIncompleteTasks(t *testing.T) {
	_, err := prepare(Task{Template: "x"})
	assert.Error(t, err)
	_, err = prepare(Task{Recipients: []string{"a@b.c"}})
	assert.Error(t, err)

	task, err := prepare(sampleTask())
	require.NoError(t, err)
	assert.NotEmpty(t, task.ID)
	assert.Equal(t, []string{"sales@acme.test"}, task.Recipients)
	assert.Equal(t, StatusQueued, task.Status)
}

func TestMemoryQueueDeliversAndRetries(t *testing.T) {
	defer goleak.VerifyNone(t)
	q := NewMemoryQueue(4, 3, time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())

	var calls atomic.Int32
	done := make(chan error, 1)
	go func() {
		done <- q.Run(ctx, 2, func(ctx context.Context, task Task) error {
			if calls.Add(1) < 2 {
				return errors.New("smtp unavailable")
			}
			return nil
		})
	}()

	task, err := q.Enqueue(context.Background(), sampleTask())
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		got, ok := q.GetTask(task.ID)
		return ok && got.Status == StatusDone
	}, time.Second, 5*time.Millisecond)

	got, _ := q.GetTask(task.ID)
	assert.Equal(t, 2, got.Attempts)

	cancel()
	require.NoError(t, <-done)
}

func TestMemoryQueueMarksFailedAfterMaxRetries(t *testing.T) {
	defer goleak.VerifyNone(t)
	q := NewMemoryQueue(1, 2, 0)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- q.Run(ctx, 1, func(context.Context, Task) error { return errors.New("boom") })
	}()

	task, err := q.Enqueue(context.Background(), sampleTask())
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		got, ok := q.GetTask(task.ID)
		return ok && got.Status == StatusFailed
	}, time.Second, 5*time.Millisecond)

	got, _ := q.GetTask(task.ID)
	assert.Equal(t, 2, got.Attempts)
	assert.Equal(t, "boom", got.Error)

	cancel()
	require.NoError(t, <-done)
}

func TestMemoryQueueFull(t *testing.T) {
	q := NewMemoryQueue(1, 1, 0)
	_, err := q.Enqueue(context.Background(), sampleTask())
	require.NoError(t, err)
	_, err = q.Enqueue(context.Background(), sampleTask())
	assert.ErrorIs(t, err, ErrQueueFull)
}

func newRedisQueue(t *testing.T) (*RedisTaskQueue, *miniredis.Miniredis) {
	t.Helper()
	srv := miniredis.RunT(t)
	q, err := NewRedisTaskQueue(RedisQueueConfig{
		Addr:       srv.Addr(),
		Stream:     "test:notifications",
		Group:      "test-mailers",
		Consumer:   "consumer",
		MaxRetries: 2,
		RetryDelay: time.Millisecond,
		Block:      20 * time.Millisecond,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = q.Close() })
	return q, srv
}

func TestNewRedisTaskQueueRequiresAddrAndStream(t *testing.T) {
	_, err := NewRedisTaskQueue(RedisQueueConfig{Stream: "s"})
	assert.Error(t, err)
	_, err = NewRedisTaskQueue(RedisQueueConfig{Addr: "localhost:6379"})
	assert.Error(t, err)
}

func TestRedisTaskQueueEnqueueRecordsStatus(t *testing.T) {
	q, _ := newRedisQueue(t)
	ctx := context.Background()

	task, err := q.Enqueue(ctx, sampleTask())
	require.NoError(t, err)

	got, ok, err := q.GetTask(ctx, task.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, StatusQueued, got.Status)
	assert.Equal(t, "ada@example.com", got.ReplyTo)
	assert.Equal(t, "First choice", got.Payload["subject"])

	n, err := q.client.XLen(ctx, q.stream).Result()
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestRedisTaskQueueConsumesAndRetries(t *testing.T) {
	q, _ := newRedisQueue(t)
	ctx, cancel := context.WithCancel(context.Background())

	var calls atomic.Int32
	q.Start(ctx, 1, func(ctx context.Context, task Task) error {
		if calls.Add(1) == 1 {
			return errors.New("temporary")
		}
		return nil
	})

	task, err := q.Enqueue(context.Background(), sampleTask())
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		got, ok, err := q.GetTask(context.Background(), task.ID)
		return err == nil && ok && got.Status == StatusDone
	}, 2*time.Second, 10*time.Millisecond)

	got, _, err := q.GetTask(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Attempts)

	cancel()
	q.Wait()
}

func TestRedisTaskQueueRequeueFailureKeepsPending(t *testing.T) {
	q, _ := newRedisQueue(t)
	ctx := context.Background()
	q.ensureGroup(ctx)

	task, err := q.Enqueue(ctx, sampleTask())
	require.NoError(t, err)
	streams, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    q.group,
		Consumer: "consumer-1",
		Streams:  []string{q.stream, ">"},
		Count:    1,
		Block:    0,
	}).Result()
	require.NoError(t, err)
	require.Len(t, streams, 1)
	msgID := streams[0].Messages[0].ID

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	require.Error(t, q.requeueAndAck(canceled, msgID, task.ID))

	pending, err := q.client.XPending(ctx, q.stream, q.group).Result()
	require.NoError(t, err)
	assert.EqualValues(t, 1, pending.Count)
}
