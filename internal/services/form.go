package services

import (
	"errors"
	"fmt"
	"net/url"
	"reflect"
	"regexp"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"

	"envelope/internal/domain"
)

const msgRequired = "This field is required."

var (
	validate   = newValidator()
	phoneRegex = regexp.MustCompile(`^\+?[\d\s\-\(\)\.]+$`)
)

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report errors under the submitted field names rather than Go field names.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("form"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	must(v.RegisterValidation("phone", func(fl validator.FieldLevel) bool {
		phone := fl.Field().String()
		digits := 0
		for _, r := range phone {
			if r >= '0' && r <= '9' {
				digits++
			}
		}
		return phoneRegex.MatchString(phone) && digits >= 7 && digits <= 15
	}))
	must(v.RegisterValidation("nocontrol", func(fl validator.FieldLevel) bool {
		return strings.IndexFunc(fl.Field().String(), unicode.IsControl) < 0
	}))
	return v
}

func must(err error) {
	if err != nil {
		panic(err)
	}
}

// DefaultChoices are the subject choices offered when none are configured.
var DefaultChoices = []string{"First choice", "Second choice", "Third choice"}

// ContactForm carries the submitted values of a contact form and, after Validate,
// the per-field error messages.
type ContactForm struct {
	Sender          string `form:"sender" validate:"required,max=100,nocontrol"`
	Email           string `form:"email" validate:"required,email,max=254"`
	ContactCompany  string `form:"contact_company" validate:"required,max=200,nocontrol"`
	ContactJobTitle string `form:"contact_job_title" validate:"max=200,nocontrol"`
	ContactPhone    string `form:"contact_phone" validate:"required,phone"`
	Subject         string `form:"subject" validate:"required"`
	MessageBox      string `form:"message_box" validate:"required,max=5000"`

	Choices []string          `form:"-"`
	Errors  map[string]string `form:"-"`
	bound   bool
}

// FormFields lists the submitted fields in display order.
var FormFields = []string{
	"sender", "email", "contact_company", "contact_job_title",
	"contact_phone", "subject", "message_box",
}

// NewContactForm returns an unbound form offering the given subject choices.
func NewContactForm(choices []string) *ContactForm {
	if len(choices) == 0 {
		choices = DefaultChoices
	}
	return &ContactForm{Choices: choices, Errors: map[string]string{}}
}

// Prefill fills the sender fields from an authenticated user.
func (f *ContactForm) Prefill(user *domain.User) {
	if user == nil {
		return
	}
	f.Sender = user.DisplayName()
	f.Email = user.Email
}

// Bind copies submitted values into the form. Surrounding whitespace is dropped.
func (f *ContactForm) Bind(values url.Values) {
	get := func(key string) string { return strings.TrimSpace(values.Get(key)) }
	f.Sender = get("sender")
	f.Email = get("email")
	f.ContactCompany = get("contact_company")
	f.ContactJobTitle = get("contact_job_title")
	f.ContactPhone = get("contact_phone")
	f.Subject = get("subject")
	f.MessageBox = get("message_box")
	f.bound = true
}

// IsBound reports whether the form holds submitted data.
func (f *ContactForm) IsBound() bool {
	return f.bound
}

// Value returns the current value of a field by its submitted name.
func (f *ContactForm) Value(field string) string {
	switch field {
	case "sender":
		return f.Sender
	case "email":
		return f.Email
	case "contact_company":
		return f.ContactCompany
	case "contact_job_title":
		return f.ContactJobTitle
	case "contact_phone":
		return f.ContactPhone
	case "subject":
		return f.Subject
	case "message_box":
		return f.MessageBox
	}
	return ""
}

// Error returns the error message for a field, or "".
func (f *ContactForm) Error(field string) string {
	return f.Errors[field]
}

// Validate checks every field and records human-readable errors. It reports
// whether the form is valid. Validation has no side effects beyond f.Errors.
func (f *ContactForm) Validate() bool {
	f.Errors = map[string]string{}

	if err := validate.Struct(f); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			f.Errors["__all__"] = err.Error()
			return false
		}
		for _, fe := range verrs {
			if _, seen := f.Errors[fe.Field()]; !seen {
				f.Errors[fe.Field()] = messageFor(fe)
			}
		}
	}

	if _, bad := f.Errors["subject"]; !bad && !f.validChoice(f.Subject) {
		f.Errors["subject"] = fmt.Sprintf("Select a valid choice. %s is not one of the available choices.", f.Subject)
	}
	if _, bad := f.Errors["email"]; !bad {
		f.Email = strings.ToLower(f.Email)
	}
	return len(f.Errors) == 0
}

func (f *ContactForm) validChoice(v string) bool {
	for _, c := range f.Choices {
		if c == v {
			return true
		}
	}
	return false
}

func messageFor(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return msgRequired
	case "email":
		return "Enter a valid email address."
	case "phone":
		return "Enter a valid phone number."
	case "max":
		return fmt.Sprintf("Ensure this value has at most %s characters.", fe.Param())
	}
	return "Enter a valid value."
}

// ApplyTo copies the validated values onto a message.
func (f *ContactForm) ApplyTo(msg *domain.ContactMessage) {
	msg.Sender = f.Sender
	msg.UserEmail = f.Email
	msg.ContactCompany = f.ContactCompany
	msg.ContactJobTitle = f.ContactJobTitle
	msg.ContactPhone = f.ContactPhone
	msg.Subject = f.Subject
	msg.MessageBox = f.MessageBox
}
