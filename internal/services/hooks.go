package services

import (
	"context"
	"log"
	"net/http"

	"envelope/internal/domain"
)

// BeforeSubmitHook runs after a form validates and before anything is persisted.
// Returning false vetoes the submission.
type BeforeSubmitHook interface {
	Name() string
	BeforeSubmit(ctx context.Context, r *http.Request, form *ContactForm) bool
}

// AfterSubmitHook runs once a message has been persisted. It cannot undo the write.
type AfterSubmitHook interface {
	Name() string
	AfterSubmit(ctx context.Context, msg *domain.ContactMessage, form *ContactForm)
}

type beforeFunc struct {
	name string
	fn   func(ctx context.Context, r *http.Request, form *ContactForm) bool
}

func (h beforeFunc) Name() string { return h.name }

func (h beforeFunc) BeforeSubmit(ctx context.Context, r *http.Request, form *ContactForm) bool {
	return h.fn(ctx, r, form)
}

// BeforeSubmitFunc adapts a function into a named BeforeSubmitHook.
func BeforeSubmitFunc(name string, fn func(ctx context.Context, r *http.Request, form *ContactForm) bool) BeforeSubmitHook {
	return beforeFunc{name: name, fn: fn}
}

type afterFunc struct {
	name string
	fn   func(ctx context.Context, msg *domain.ContactMessage, form *ContactForm)
}

func (h afterFunc) Name() string { return h.name }

func (h afterFunc) AfterSubmit(ctx context.Context, msg *domain.ContactMessage, form *ContactForm) {
	h.fn(ctx, msg, form)
}

// AfterSubmitFunc adapts a function into a named AfterSubmitHook.
func AfterSubmitFunc(name string, fn func(ctx context.Context, msg *domain.ContactMessage, form *ContactForm)) AfterSubmitHook {
	return afterFunc{name: name, fn: fn}
}

// Hooks holds the submission hooks in registration order. Register everything
// before serving; dispatch does not lock.
type Hooks struct {
	before []BeforeSubmitHook
	after  []AfterSubmitHook
}

// NewHooks returns an empty registry.
func NewHooks() *Hooks {
	return &Hooks{}
}

// OnBeforeSubmit appends a veto hook.
func (h *Hooks) OnBeforeSubmit(hook BeforeSubmitHook) *Hooks {
	h.before = append(h.before, hook)
	return h
}

// OnAfterSubmit appends a post-persist hook.
func (h *Hooks) OnAfterSubmit(hook AfterSubmitHook) *Hooks {
	h.after = append(h.after, hook)
	return h
}

// BeforeSubmit runs veto hooks in order and stops at the first veto, returning
// the name of the hook that rejected the submission.
func (h *Hooks) BeforeSubmit(ctx context.Context, r *http.Request, form *ContactForm) (rejectedBy string, ok bool) {
	if h == nil {
		return "", true
	}
	for _, hook := range h.before {
		if !hook.BeforeSubmit(ctx, r, form) {
			return hook.Name(), false
		}
	}
	return "", true
}

// AfterSubmit runs every post-persist hook. A panicking hook is logged and the
// remaining hooks still run.
func (h *Hooks) AfterSubmit(ctx context.Context, msg *domain.ContactMessage, form *ContactForm) {
	if h == nil {
		return
	}
	for _, hook := range h.after {
		runAfterHook(ctx, hook, msg, form)
	}
}

func runAfterHook(ctx context.Context, hook AfterSubmitHook, msg *domain.ContactMessage, form *ContactForm) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("[CONTACT] After-submit hook %s panicked: id=%d, err=%v", hook.Name(), msg.ID, rec)
		}
	}()
	hook.AfterSubmit(ctx, msg, form)
}
