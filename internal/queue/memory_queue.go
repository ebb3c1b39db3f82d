package queue

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// ErrQueueFull is returned when the in-memory buffer cannot take another task.
var ErrQueueFull = errors.New("queue full")

// MemoryQueue is a bounded in-process queue used when Redis is not configured.
// Tasks are lost on restart.
type MemoryQueue struct {
	tasks      chan Task
	maxRetries int
	retryDelay time.Duration

	mu      sync.Mutex
	results map[string]Task
}

// NewMemoryQueue creates a queue holding at most depth pending tasks.
func NewMemoryQueue(depth, maxRetries int, retryDelay time.Duration) *MemoryQueue {
	if depth <= 0 {
		depth = 1
	}
	if maxRetries <= 0 {
		maxRetries = 1
	}
	return &MemoryQueue{
		tasks:      make(chan Task, depth),
		maxRetries: maxRetries,
		retryDelay: retryDelay,
		results:    make(map[string]Task),
	}
}

// Enqueue buffers the task without blocking.
func (q *MemoryQueue) Enqueue(ctx context.Context, task Task) (Task, error) {
	task, err := prepare(task)
	if err != nil {
		return Task{}, err
	}
	select {
	case <-ctx.Done():
		return Task{}, ctx.Err()
	case q.tasks <- task:
		q.record(task)
		return task, nil
	default:
		return Task{}, ErrQueueFull
	}
}

// GetTask returns the last recorded status of a task.
func (q *MemoryQueue) GetTask(taskID string) (Task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	t, ok := q.results[taskID]
	return t, ok
}

func (q *MemoryQueue) record(task Task) {
	task.UpdatedAt = time.Now().UTC()
	q.mu.Lock()
	q.results[task.ID] = task
	q.mu.Unlock()
}

// Run processes tasks with concurrency workers until ctx is cancelled.
func (q *MemoryQueue) Run(ctx context.Context, concurrency int, handler Handler) error {
	if concurrency <= 0 {
		concurrency = 1
	}
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < concurrency; i++ {
		g.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return nil
				case task := <-q.tasks:
					q.process(ctx, task, handler)
				}
			}
		})
	}
	return g.Wait()
}

func (q *MemoryQueue) process(ctx context.Context, task Task, handler Handler) {
	for {
		task.Attempts++
		task.Status = StatusProcessing
		q.record(task)

		err := handler(ctx, task)
		if err == nil {
			task.Status = StatusDone
			task.Error = ""
			q.record(task)
			return
		}
		task.Error = err.Error()
		if task.Attempts >= q.maxRetries {
			log.Printf("[QUEUE] Task %s failed after %d attempts: %v", task.ID, task.Attempts, err)
			task.Status = StatusFailed
			q.record(task)
			return
		}
		task.Status = StatusQueued
		q.record(task)
		if !sleep(ctx, q.retryDelay) {
			return
		}
	}
}
