package services

import (
	"context"
	"log"
	"strconv"
	"sync"
	"time"

	"envelope/internal/domain"
	"envelope/internal/metrics"
	"envelope/internal/queue"
)

// TaskQueue accepts notification tasks.
type TaskQueue interface {
	Enqueue(ctx context.Context, task queue.Task) (queue.Task, error)
}

// EmailNotifier is the "notify_email" after-submit hook. It hands a notification
// task to the queue without holding up the response.
type EmailNotifier struct {
	queue    TaskQueue
	notifyTo []string
	timeout  time.Duration
	inflight sync.WaitGroup
}

// NewEmailNotifier creates a notifier that copies every message to notifyTo in
// addition to the company's own address.
func NewEmailNotifier(q TaskQueue, notifyTo []string) *EmailNotifier {
	return &EmailNotifier{queue: q, notifyTo: notifyTo, timeout: 5 * time.Second}
}

func (n *EmailNotifier) Name() string { return "notify_email" }

// AfterSubmit enqueues the notification in the background. The request context
// is detached so a finished response does not cancel the enqueue.
func (n *EmailNotifier) AfterSubmit(ctx context.Context, msg *domain.ContactMessage, _ *ContactForm) {
	task, ok := n.task(msg)
	if !ok {
		log.Printf("[CONTACT] No notification recipients for message id=%d", msg.ID)
		metrics.RecordNotification("skipped")
		return
	}

	n.inflight.Add(1)
	go func() {
		defer n.inflight.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), n.timeout)
		defer cancel()

		queued, err := n.queue.Enqueue(ctx, task)
		if err != nil {
			log.Printf("[CONTACT] Warning: failed to enqueue notification for id=%d: %v", msg.ID, err)
			metrics.RecordNotification("enqueue_failed")
			return
		}
		log.Printf("[CONTACT] Notification queued: id=%d, task=%s", msg.ID, queued.ID)
		metrics.RecordNotification("queued")
	}()
}

// Wait blocks until every background enqueue has finished.
func (n *EmailNotifier) Wait() {
	n.inflight.Wait()
}

func (n *EmailNotifier) task(msg *domain.ContactMessage) (queue.Task, bool) {
	seen := map[string]bool{}
	var recipients []string
	add := func(addr string) {
		if addr != "" && !seen[addr] {
			seen[addr] = true
			recipients = append(recipients, addr)
		}
	}
	companyName := ""
	if msg.Company != nil {
		companyName = msg.Company.Name
		add(msg.Company.NotifyAddress())
	}
	for _, addr := range n.notifyTo {
		add(addr)
	}
	if len(recipients) == 0 {
		return queue.Task{}, false
	}

	return queue.Task{
		Recipients: recipients,
		ReplyTo:    msg.UserEmail,
		Template:   ContactNotificationTemplate,
		Payload: map[string]string{
			"message_id":        strconv.FormatUint(uint64(msg.ID), 10),
			"kind":              string(msg.Kind),
			"company":           companyName,
			"sender":            msg.Sender,
			"email":             msg.UserEmail,
			"contact_company":   msg.ContactCompany,
			"contact_job_title": msg.ContactJobTitle,
			"contact_phone":     msg.ContactPhone,
			"subject":           msg.Subject,
			"message_box":       msg.MessageBox,
		},
	}, true
}
