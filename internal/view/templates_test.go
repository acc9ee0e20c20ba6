package view

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/wardenhq/warden/internal/shared"
)

var pageTemplates = []string{
	"pages/landing.html",
	"pages/404.html",
	"pages/login.html",
	"pages/register.html",
	"pages/dashboard.html",
	"pages/profile.html",
	"pages/manager_dashboard.html",
	"pages/admin_dashboard.html",
	"pages/admin_system_info.html",
	"pages/admin/users_list.html",
	"pages/admin/users_form.html",
	"pages/admin/roles_list.html",
	"pages/admin/permissions_list.html",
}

func TestNewEngineParsesAllPages(t *testing.T) {
	engine, err := NewEngine()
	if err != nil {
		t.Fatalf("parse templates: %v", err)
	}
	for _, name := range pageTemplates {
		if engine.templates.Lookup(name) == nil {
			t.Errorf("template %q not defined", name)
		}
	}
	for _, name := range []string{"base/top", "base/bottom", "partials/flash.html", "partials/pagination.html"} {
		if engine.templates.Lookup(name) == nil {
			t.Errorf("shared template %q not defined", name)
		}
	}
}

func TestRenderLoginPage(t *testing.T) {
	engine, err := NewEngine()
	if err != nil {
		t.Fatalf("parse templates: %v", err)
	}

	res := httptest.NewRecorder()
	data := TemplateData{
		Title:     "Log in",
		CSRFToken: "token-123",
		Flash:     &shared.FlashMessage{Kind: "success", Message: "Logged out."},
		Data: map[string]any{
			"Form":   struct{ Email, Password string }{Email: "jane@example.com"},
			"Errors": map[string]string{"general": "Invalid email or password."},
		},
	}
	if err := engine.Render(res, "pages/login.html", data); err != nil {
		t.Fatalf("render: %v", err)
	}

	body := res.Body.String()
	if !strings.Contains(body, `value="token-123"`) {
		t.Error("csrf token not embedded in form")
	}
	if !strings.Contains(body, `value="jane@example.com"`) {
		t.Error("submitted email not re-rendered")
	}
	if !strings.Contains(body, "Invalid email or password.") {
		t.Error("general error not shown")
	}
	if !strings.Contains(body, "Logged out.") {
		t.Error("flash message not shown")
	}
	if got := res.Header().Get("Content-Type"); got != "text/html; charset=utf-8" {
		t.Errorf("unexpected content type %q", got)
	}
}

func TestRenderStatusKeepsContentType(t *testing.T) {
	engine, err := NewEngine()
	if err != nil {
		t.Fatalf("parse templates: %v", err)
	}

	res := httptest.NewRecorder()
	data := TemplateData{Title: "Not Found"}
	if err := engine.RenderStatus(res, "pages/404.html", 404, data); err != nil {
		t.Fatalf("render: %v", err)
	}
	if res.Code != 404 {
		t.Fatalf("expected 404, got %d", res.Code)
	}
	if got := res.Header().Get("Content-Type"); got != "text/html; charset=utf-8" {
		t.Errorf("content type lost on non-200 render, got %q", got)
	}
}

func TestRenderNavbarFollowsAuthentication(t *testing.T) {
	engine, err := NewEngine()
	if err != nil {
		t.Fatalf("parse templates: %v", err)
	}

	res := httptest.NewRecorder()
	guest := TemplateData{Title: "Welcome", Data: map[string]any{}}
	if err := engine.Render(res, "pages/landing.html", guest); err != nil {
		t.Fatalf("render guest: %v", err)
	}
	if strings.Contains(res.Body.String(), "Log out") {
		t.Error("guest navbar must not offer logout")
	}

	res = httptest.NewRecorder()
	member := TemplateData{
		Title:       "Welcome",
		CSRFToken:   "token-123",
		CurrentUser: &CurrentUser{ID: 1, Name: "Jane", Roles: []string{"user"}},
		Data:        map[string]any{},
	}
	if err := engine.Render(res, "pages/landing.html", member); err != nil {
		t.Fatalf("render member: %v", err)
	}
	if !strings.Contains(res.Body.String(), "Log out") {
		t.Error("authenticated navbar must offer logout")
	}
}

func TestFormatDate(t *testing.T) {
	stamp := time.Date(2025, time.March, 14, 9, 30, 0, 0, time.UTC)
	if got := formatDate(stamp); got != "14 Mar 2025 09:30" {
		t.Errorf("unexpected format %q", got)
	}
	if got := formatDate(&stamp); got != "14 Mar 2025 09:30" {
		t.Errorf("unexpected pointer format %q", got)
	}
	if got := formatDate((*time.Time)(nil)); got != "" {
		t.Errorf("nil pointer should render empty, got %q", got)
	}
	if got := formatDate(time.Time{}); got != "" {
		t.Errorf("zero time should render empty, got %q", got)
	}
	if got := formatDate("not a time"); got != "" {
		t.Errorf("non-time value should render empty, got %q", got)
	}
}
