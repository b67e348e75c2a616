package render

import (
	"embed"
	"fmt"
	"io"
	"strings"
	"text/template"
	"time"
)

//go:embed templates/*.tmpl
var templatesFS embed.FS

// Engine renders the operator-facing text templates embedded in the package.
type Engine struct {
	templates *template.Template
}

var funcs = template.FuncMap{
	// opt prints optional string fields, using "-" for null or blank values.
	"opt": func(s *string) string {
		if s == nil || strings.TrimSpace(*s) == "" {
			return "-"
		}
		return *s
	},
	"ts": func(t time.Time) string {
		return t.UTC().Format(time.RFC3339)
	},
	"pad": func(width int, s string) string {
		return fmt.Sprintf("%-*s", width, s)
	},
}

// New initialises an Engine by parsing all embedded templates.
func New() (*Engine, error) {
	t, err := template.New("render").Funcs(funcs).ParseFS(templatesFS, "templates/*.tmpl")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	return &Engine{templates: t}, nil
}

// Render executes the named template with data and writes the result to w.
func (e *Engine) Render(w io.Writer, name string, data any) error {
	if e == nil || e.templates == nil {
		return fmt.Errorf("nil engine")
	}
	if err := e.templates.ExecuteTemplate(w, name, data); err != nil {
		return fmt.Errorf("render %s: %w", name, err)
	}
	return nil
}
