package services

import (
	"context"
	"log"
	"net/http"
	"strings"
	"time"

	"envelope/internal/domain"
	"envelope/internal/metrics"
	"envelope/internal/store"
	"envelope/internal/util"
)

const (
	msgThanks    = "Thank you for your message."
	msgFormError = "There was an error in the contact form."
)

// Outcome is where a request ended up in the submission workflow.
type Outcome int

const (
	Unsubmitted Outcome = iota
	Validating
	RejectedByHook
	Invalid
	Persisted
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Unsubmitted:
		return "unsubmitted"
	case Validating:
		return "validating"
	case RejectedByHook:
		return "rejected"
	case Invalid:
		return "invalid"
	case Persisted:
		return "persisted"
	}
	return "failed"
}

// ContactPage is the data handed to the contact form template.
type ContactPage struct {
	Company       *domain.Company
	Kind          domain.ContactKind
	Form          *ContactForm
	Flashes       []Flash
	HoneypotField string
	Action        string
	Now           time.Time
}

// Workflow runs the contact form for one kind of message. The three kinds differ
// only in the strategies plugged in here.
type Workflow struct {
	Kind          domain.ContactKind
	Template      string
	HoneypotField string
	Store         store.ContactRepository
	Hooks         *Hooks
	Renderer      Renderer
	Flash         *FlashStore

	// NewForm builds the unbound form for a request. Defaults to a form with the
	// built-in subject choices, prefilled from the authenticated user.
	NewForm func(r *http.Request, company *domain.Company) *ContactForm
	// SuccessURL picks the redirect target. Defaults to the request's own path.
	SuccessURL func(r *http.Request, msg *domain.ContactMessage) string
	// AfterPersist runs once the message is stored. Defaults to the after-submit hooks.
	AfterPersist func(ctx context.Context, msg *domain.ContactMessage, form *ContactForm)

	now func() time.Time
}

// PrefilledForm returns a form factory offering choices and prefilled from the
// authenticated user, if any.
func PrefilledForm(choices []string) func(r *http.Request, company *domain.Company) *ContactForm {
	return func(r *http.Request, _ *domain.Company) *ContactForm {
		form := NewContactForm(choices)
		if user, ok := UserFromContext(r.Context()); ok {
			form.Prefill(user)
		}
		return form
	}
}

// SuccessURLOrSelf redirects to url when set, otherwise back to the submitted page.
func SuccessURLOrSelf(url string) func(r *http.Request, msg *domain.ContactMessage) string {
	return func(r *http.Request, _ *domain.ContactMessage) string {
		if url != "" {
			return url
		}
		return r.URL.RequestURI()
	}
}

func (wf *Workflow) newForm(r *http.Request, company *domain.Company) *ContactForm {
	if wf.NewForm != nil {
		return wf.NewForm(r, company)
	}
	return PrefilledForm(nil)(r, company)
}

func (wf *Workflow) successURL(r *http.Request, msg *domain.ContactMessage) string {
	if wf.SuccessURL != nil {
		return wf.SuccessURL(r, msg)
	}
	return SuccessURLOrSelf("")(r, msg)
}

func (wf *Workflow) afterPersist(ctx context.Context, msg *domain.ContactMessage, form *ContactForm) {
	if wf.AfterPersist != nil {
		wf.AfterPersist(ctx, msg, form)
		return
	}
	wf.Hooks.AfterSubmit(ctx, msg, form)
}

func (wf *Workflow) template() string {
	if wf.Template != "" {
		return wf.Template
	}
	return "contact.html"
}

func (wf *Workflow) honeypot() string {
	if wf.HoneypotField != "" {
		return wf.HoneypotField
	}
	return "email2"
}

func (wf *Workflow) clock() time.Time {
	if wf.now != nil {
		return wf.now()
	}
	return time.Now()
}

// Serve handles GET and POST for the contact form addressed to company.
func (wf *Workflow) Serve(w http.ResponseWriter, r *http.Request, company *domain.Company) Outcome {
	var outcome Outcome
	switch r.Method {
	case http.MethodGet, http.MethodHead:
		outcome = wf.show(w, r, company)
	case http.MethodPost:
		outcome = wf.submit(w, r, company)
		metrics.RecordContactSubmission(string(wf.Kind), outcome.String())
	default:
		w.Header().Set("Allow", "GET, HEAD, POST")
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return Failed
	}
	return outcome
}

func (wf *Workflow) show(w http.ResponseWriter, r *http.Request, company *domain.Company) Outcome {
	form := wf.newForm(r, company)
	wf.render(w, r, http.StatusOK, company, form, wf.Flash.Consume(w, r))
	return Unsubmitted
}

func (wf *Workflow) submit(w http.ResponseWriter, r *http.Request, company *domain.Company) Outcome {
	ctx := r.Context()
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Malformed form data", http.StatusBadRequest)
		return Failed
	}

	field := wf.honeypot()
	trap, present := r.PostForm[field]
	if !present || strings.Join(trap, "") != "" {
		log.Printf("[CONTACT] Honeypot rejected submission: company=%s, kind=%s, ip=%s", company.Slug, wf.Kind, util.ClientIP(r, nil))
		metrics.RecordContactRejection("honeypot")
		http.Error(w, "Bad request", http.StatusBadRequest)
		return RejectedByHook
	}

	form := wf.newForm(r, company)
	form.Bind(r.PostForm)
	if !form.Validate() {
		flashes := append(wf.Flash.Consume(w, r), Flash{Level: LevelError, Text: msgFormError})
		wf.render(w, r, http.StatusOK, company, form, flashes)
		return Invalid
	}

	if hook, ok := wf.Hooks.BeforeSubmit(ctx, r, form); !ok {
		log.Printf("[CONTACT] Submission rejected: company=%s, kind=%s, hook=%s", company.Slug, wf.Kind, hook)
		metrics.RecordContactRejection(hook)
		http.Error(w, "Rejected by "+hook, http.StatusBadRequest)
		return RejectedByHook
	}

	msg := &domain.ContactMessage{
		Kind:      wf.Kind,
		State:     domain.StatePending,
		CompanyID: company.ID,
	}
	form.ApplyTo(msg)
	if user, ok := UserFromContext(ctx); ok {
		msg.CreatedByID = &user.ID
		msg.UpdatedByID = &user.ID
	}
	if err := wf.Store.CreateMessage(ctx, msg); err != nil {
		log.Printf("[CONTACT] Submit failed: company=%s, kind=%s, err=%v", company.Slug, wf.Kind, err)
		writePageError(w, err)
		return Failed
	}
	msg.Company = company
	log.Printf("[CONTACT] Submit successful: id=%d, company=%s, kind=%s, email=%s", msg.ID, company.Slug, wf.Kind, msg.UserEmail)

	wf.afterPersist(ctx, msg, form)

	wf.Flash.Add(w, r, Flash{Level: LevelSuccess, Text: msgThanks})
	http.Redirect(w, r, wf.successURL(r, msg), http.StatusSeeOther)
	return Persisted
}

func (wf *Workflow) render(w http.ResponseWriter, r *http.Request, status int, company *domain.Company, form *ContactForm, flashes []Flash) {
	renderPage(w, wf.Renderer, status, wf.template(), &ContactPage{
		Company:       company,
		Kind:          wf.Kind,
		Form:          form,
		Flashes:       flashes,
		HoneypotField: wf.honeypot(),
		Action:        r.URL.RequestURI(),
		Now:           wf.clock(),
	})
}
