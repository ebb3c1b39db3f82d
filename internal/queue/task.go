// Package queue moves notification tasks from the request path to mail workers.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	StatusQueued     = "queued"
	StatusProcessing = "processing"
	StatusDone       = "done"
	StatusFailed     = "failed"
)

// Task is one outbound notification: who receives it, which template renders it,
// and the values the template needs.
type Task struct {
	ID         string            `json:"id"`
	Recipients []string          `json:"recipients"`
	ReplyTo    string            `json:"replyTo,omitempty"`
	Template   string            `json:"template"`
	Payload    map[string]string `json:"payload"`
	Status     string            `json:"status"`
	Error      string            `json:"error,omitempty"`
	Attempts   int               `json:"attempts"`
	CreatedAt  time.Time         `json:"createdAt"`
	UpdatedAt  time.Time         `json:"updatedAt"`
}

// Handler processes one task. A non-nil error asks the queue to retry.
type Handler func(ctx context.Context, task Task) error

// Queue accepts tasks for asynchronous processing.
type Queue interface {
	Enqueue(ctx context.Context, task Task) (Task, error)
}

// prepare validates a task and fills its bookkeeping fields.
func prepare(task Task) (Task, error) {
	recipients := make([]string, 0, len(task.Recipients))
	for _, r := range task.Recipients {
		if r = strings.TrimSpace(r); r != "" {
			recipients = append(recipients, r)
		}
	}
	if len(recipients) == 0 {
		return Task{}, errors.New("task has no recipients")
	}
	if strings.TrimSpace(task.Template) == "" {
		return Task{}, errors.New("task template required")
	}
	task.Recipients = recipients
	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	task.Status = StatusQueued
	task.Attempts = 0
	task.CreatedAt = now
	task.UpdatedAt = now
	return task, nil
}

func encodeTask(task Task) (string, error) {
	raw, err := json.Marshal(task)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func decodeTask(raw string) (Task, error) {
	var task Task
	if err := json.Unmarshal([]byte(raw), &task); err != nil {
		return Task{}, err
	}
	return task, nil
}
