package services

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io"
	"log"
	"net/http"
	"time"
)

//go:embed templates/*.html
var pageFS embed.FS

// Renderer renders a named page template.
type Renderer interface {
	Render(w io.Writer, name string, data any) error
}

// TemplateRenderer renders the embedded html/template pages.
type TemplateRenderer struct {
	templates *template.Template
}

var pageFuncs = template.FuncMap{
	"add": func(a, b int) int { return a + b },
	"sub": func(a, b int) int { return a - b },
	"date": func(t time.Time) string {
		return t.Format("2006-01-02 15:04")
	},
}

// NewTemplateRenderer parses the embedded page templates.
func NewTemplateRenderer() (*TemplateRenderer, error) {
	tmpl, err := template.New("pages").Funcs(pageFuncs).ParseFS(pageFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}
	return &TemplateRenderer{templates: tmpl}, nil
}

// Render executes the named template into w.
func (t *TemplateRenderer) Render(w io.Writer, name string, data any) error {
	return t.templates.ExecuteTemplate(w, name, data)
}

// renderPage renders into a buffer first so a failing template never leaves a
// half-written page behind.
func renderPage(w http.ResponseWriter, renderer Renderer, status int, name string, data any) {
	var buf bytes.Buffer
	if err := renderer.Render(&buf, name, data); err != nil {
		log.Printf("[HTTP] Failed to render %s: %v", name, err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}
