package services

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	htmltemplate "html/template"
	"log"
	"mime"
	"net/smtp"
	"strings"
	texttemplate "text/template"
	"time"

	"envelope/internal/config"
	"envelope/internal/metrics"
	"envelope/internal/queue"
)

//go:embed templates/email/*
var emailFS embed.FS

// ContactNotificationTemplate identifies the notification sent for a new message.
const ContactNotificationTemplate = "contact_notification"

// Message is one outgoing e-mail.
type Message struct {
	To      []string
	ReplyTo string
	Subject string
	HTML    string
	Text    string
}

type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// EmailService renders and sends e-mail
type EmailService struct {
	cfg      *config.EmailConfig
	html     *htmltemplate.Template
	text     *texttemplate.Template
	sendMail sendMailFunc
}

// NewEmailService creates a new email service
func NewEmailService(cfg *config.EmailConfig) (*EmailService, error) {
	html, err := htmltemplate.ParseFS(emailFS, "templates/email/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse email templates: %w", err)
	}
	text, err := texttemplate.ParseFS(emailFS, "templates/email/*.txt")
	if err != nil {
		return nil, fmt.Errorf("failed to parse email templates: %w", err)
	}
	return &EmailService{cfg: cfg, html: html, text: text, sendMail: smtp.SendMail}, nil
}

// IsEnabled returns whether email service is enabled
func (s *EmailService) IsEnabled() bool {
	return s.cfg.Enabled
}

// Deliver is the queue handler for notification tasks: it renders the task's
// template and sends the result. Errors make the queue retry.
func (s *EmailService) Deliver(ctx context.Context, task queue.Task) error {
	msg, err := s.Render(task)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.Send(msg); err != nil {
		log.Printf("[EMAIL] Delivery failed: task=%s, attempt=%d, err=%v", task.ID, task.Attempts, err)
		metrics.RecordNotification("retried")
		return err
	}
	metrics.RecordNotification("delivered")
	log.Printf("[EMAIL] Delivered: task=%s, template=%s, recipients=%d", task.ID, task.Template, len(msg.To))
	return nil
}

// Render builds the message for a task from its HTML and text templates.
func (s *EmailService) Render(task queue.Task) (Message, error) {
	data := map[string]any{
		"Payload": task.Payload,
		"Year":    time.Now().Format("2006"),
	}
	var html, text, subject bytes.Buffer
	if err := s.html.ExecuteTemplate(&html, task.Template+".html", data); err != nil {
		return Message{}, fmt.Errorf("failed to render %s: %w", task.Template, err)
	}
	if err := s.text.ExecuteTemplate(&text, task.Template+".txt", data); err != nil {
		return Message{}, fmt.Errorf("failed to render %s: %w", task.Template, err)
	}
	if err := s.text.ExecuteTemplate(&subject, task.Template+"_subject.txt", data); err != nil {
		return Message{}, fmt.Errorf("failed to render %s subject: %w", task.Template, err)
	}
	return Message{
		To:      task.Recipients,
		ReplyTo: task.ReplyTo,
		Subject: singleLine(subject.String()),
		HTML:    html.String(),
		Text:    text.String(),
	}, nil
}

// Send sends an HTML email with plain text fallback
func (s *EmailService) Send(msg Message) error {
	if len(msg.To) == 0 {
		return errors.New("email has no recipients")
	}
	if !s.cfg.Enabled {
		log.Printf("[EMAIL] Would send to %s: %s", strings.Join(msg.To, ", "), msg.Subject)
		return nil
	}

	if s.cfg.SMTPHost == "" || s.cfg.Username == "" || s.cfg.Password == "" {
		return fmt.Errorf("email service not properly configured")
	}

	auth := smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.SMTPHost)
	addr := fmt.Sprintf("%s:%d", s.cfg.SMTPHost, s.cfg.SMTPPort)
	if err := s.sendMail(addr, auth, s.cfg.FromEmail, msg.To, s.compose(msg)); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}

// compose builds a multipart/alternative MIME body.
func (s *EmailService) compose(msg Message) []byte {
	from := singleLine(s.cfg.FromEmail)
	if s.cfg.FromName != "" {
		from = fmt.Sprintf("%s <%s>", encodeHeader(s.cfg.FromName), from)
	}
	to := make([]string, len(msg.To))
	for i, addr := range msg.To {
		to[i] = singleLine(addr)
	}
	boundary := fmt.Sprintf("----=_Envelope_%d", time.Now().UnixNano())

	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(to, ", "))
	if replyTo := singleLine(msg.ReplyTo); replyTo != "" {
		fmt.Fprintf(&b, "Reply-To: %s\r\n", replyTo)
	}
	fmt.Fprintf(&b, "Subject: %s\r\n", encodeHeader(msg.Subject))
	b.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&b, "Content-Type: multipart/alternative; boundary=\"%s\"\r\n\r\n", boundary)

	fmt.Fprintf(&b, "--%s\r\n", boundary)
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
	b.WriteString(msg.Text + "\r\n")
	if msg.HTML != "" {
		fmt.Fprintf(&b, "--%s\r\n", boundary)
		b.WriteString("Content-Type: text/html; charset=UTF-8\r\n\r\n")
		b.WriteString(msg.HTML + "\r\n")
	}
	fmt.Fprintf(&b, "--%s--\r\n", boundary)
	return []byte(b.String())
}

// singleLine folds CR and LF into spaces so a value cannot open a new header.
func singleLine(v string) string {
	return strings.TrimSpace(strings.NewReplacer("\r\n", " ", "\r", " ", "\n", " ").Replace(v))
}

// encodeHeader returns v as a single-line RFC 2047 encoded word when it
// contains non-ASCII text.
func encodeHeader(v string) string {
	return mime.QEncoding.Encode("utf-8", singleLine(v))
}
