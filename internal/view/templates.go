package view

import (
	"fmt"
	"html/template"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/wardenhq/warden/internal/shared"
	"github.com/wardenhq/warden/web"
)

// Engine renders HTML templates.
type Engine struct {
	templates *template.Template
}

// CurrentUser carries the authenticated identity into templates.
type CurrentUser struct {
	ID    int64
	Name  string
	Email string
	Roles []string
}

// TemplateData contains values shared across templates.
type TemplateData struct {
	Title       string
	CSRFToken   string
	Flash       *shared.FlashMessage
	CurrentUser *CurrentUser
	CurrentPath string
	Data        any
}

// NewEngine parses the embedded templates at startup.
func NewEngine() (*Engine, error) {
	titleCaser := cases.Title(language.English)
	funcMap := template.FuncMap{
		"formatDate": formatDate,
		"titleCase": func(s string) string {
			return titleCaser.String(s)
		},
	}
	tpl, err := template.New("root").Funcs(funcMap).ParseFS(web.Templates,
		"templates/layouts/*.html", "templates/partials/*.html", "templates/pages/*.html", "templates/pages/*/*.html")
	if err != nil {
		return nil, err
	}
	return &Engine{templates: tpl}, nil
}

// Render executes a named template with TemplateData.
func (e *Engine) Render(w http.ResponseWriter, name string, data TemplateData) error {
	if e == nil {
		return fmt.Errorf("template engine not initialised")
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	return e.templates.ExecuteTemplate(w, name, data)
}

// RenderStatus writes a non-default status code and then executes the
// template. The content type is set before the status line, since headers
// written after WriteHeader are dropped.
func (e *Engine) RenderStatus(w http.ResponseWriter, name string, status int, data TemplateData) error {
	if e == nil {
		return fmt.Errorf("template engine not initialised")
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	return e.templates.ExecuteTemplate(w, name, data)
}

// formatDate renders a timestamp for display. Nil and zero values
// collapse to an empty string so templates can pass optional fields
// straight through.
func formatDate(v any) string {
	var t time.Time
	switch d := v.(type) {
	case time.Time:
		t = d
	case *time.Time:
		if d == nil {
			return ""
		}
		t = *d
	default:
		return ""
	}
	if t.IsZero() {
		return ""
	}
	return t.Format("02 Jan 2006 15:04")
}

// ValidationMessage converts a validator field error into display copy.
func ValidationMessage(err validator.FieldError) string {
	switch err.Tag() {
	case "required":
		return "This field is required."
	case "email":
		return "Enter a valid email address."
	case "min":
		return fmt.Sprintf("Must be at least %s characters.", err.Param())
	case "max":
		return fmt.Sprintf("Must be at most %s characters.", err.Param())
	case "eqfield":
		return "Passwords do not match."
	default:
		return "Invalid value."
	}
}
