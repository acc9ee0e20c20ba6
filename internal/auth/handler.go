package auth

import (
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/wardenhq/warden/internal/shared"
	"github.com/wardenhq/warden/internal/view"
)

// LoginRecorder counts login attempt outcomes. The observability metrics
// satisfy it.
type LoginRecorder interface {
	RecordLogin(outcome string)
}

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger         *slog.Logger
	service        *Service
	templates      *view.Engine
	sessionManager *shared.SessionManager
	csrfManager    *shared.CSRFManager
	validator      *validator.Validate
	metrics        LoginRecorder
}

// NewHandler constructs a Handler instance. metrics may be nil.
func NewHandler(logger *slog.Logger, service *Service, templates *view.Engine, sessions *shared.SessionManager, csrf *shared.CSRFManager, metrics LoginRecorder) *Handler {
	return &Handler{
		logger:         logger,
		service:        service,
		templates:      templates,
		sessionManager: sessions,
		csrfManager:    csrf,
		validator:      validator.New(),
		metrics:        metrics,
	}
}

type loginForm struct {
	Email    string `validate:"required,email"`
	Password string `validate:"required"`
}

type registerForm struct {
	Name                 string `validate:"required,max=255"`
	Email                string `validate:"required,email,max=255"`
	Password             string `validate:"required,min=8"`
	PasswordConfirmation string `validate:"required,eqfield=Password"`
}

// ShowLogin renders the login form.
func (h *Handler) ShowLogin(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, "pages/login.html", "Log in", map[string]any{"Form": loginForm{}, "Errors": map[string]string{}}, http.StatusOK)
}

// HandleLogin authenticates the submitted credentials and binds the
// session to the user.
func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	form := loginForm{
		Email:    r.PostFormValue("email"),
		Password: r.PostFormValue("password"),
	}
	fieldErrors := h.validate(form)

	if len(fieldErrors) == 0 {
		user, err := h.service.Authenticate(r.Context(), form.Email, form.Password, clientIP(r))
		if err != nil {
			h.recordLogin("failure")
			fieldErrors["general"] = shared.UserSafeMessage(shared.ErrInvalidCredentials)
		} else {
			h.recordLogin("success")
			sess := shared.SessionFromContext(r.Context())
			if sess == nil {
				h.logger.Error("session missing during login")
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}
			sess.SetUser(user.ID)
			sess.AddFlash(shared.FlashMessage{Kind: "success", Message: "Welcome back, " + user.Name + "!"})
			if err := h.service.RegisterSession(r.Context(), sess.ID, user.ID, time.Now().Add(h.sessionManager.TTL()), clientIP(r), r.UserAgent()); err != nil {
				h.logger.Warn("register session", slog.Any("error", err))
			}
			http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
			return
		}
	}

	form.Password = ""
	h.render(w, r, "pages/login.html", "Log in", map[string]any{"Form": form, "Errors": fieldErrors}, http.StatusBadRequest)
}

// ShowRegister renders the registration form.
func (h *Handler) ShowRegister(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, "pages/register.html", "Register", map[string]any{"Form": registerForm{}, "Errors": map[string]string{}}, http.StatusOK)
}

// HandleRegister creates the account, assigns the basic role, and logs
// the new user in.
func (h *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	form := registerForm{
		Name:                 r.PostFormValue("name"),
		Email:                r.PostFormValue("email"),
		Password:             r.PostFormValue("password"),
		PasswordConfirmation: r.PostFormValue("password_confirmation"),
	}
	fieldErrors := h.validate(form)

	if len(fieldErrors) == 0 {
		user, err := h.service.Register(r.Context(), form.Name, form.Email, form.Password)
		switch {
		case err == nil:
			sess := shared.SessionFromContext(r.Context())
			if sess != nil {
				sess.SetUser(user.ID)
				sess.AddFlash(shared.FlashMessage{Kind: "success", Message: "Account created. Welcome!"})
				if err := h.service.RegisterSession(r.Context(), sess.ID, user.ID, time.Now().Add(h.sessionManager.TTL()), clientIP(r), r.UserAgent()); err != nil {
					h.logger.Warn("register session", slog.Any("error", err))
				}
			}
			http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
			return
		default:
			h.logger.Warn("registration failed", slog.Any("error", err))
			fieldErrors["Email"] = shared.UserSafeMessage(err)
		}
	}

	form.Password = ""
	form.PasswordConfirmation = ""
	h.render(w, r, "pages/register.html", "Register", map[string]any{"Form": form, "Errors": fieldErrors}, http.StatusBadRequest)
}

// HandleLogout ends the session.
func (h *Handler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if sess != nil {
		if err := h.service.RemoveSession(r.Context(), sess.ID); err != nil {
			h.logger.Warn("remove session", slog.Any("error", err))
		}
		h.sessionManager.Destroy(sess)
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (h *Handler) recordLogin(outcome string) {
	if h.metrics != nil {
		h.metrics.RecordLogin(outcome)
	}
}

func (h *Handler) validate(form any) map[string]string {
	fieldErrors := make(map[string]string)
	if err := h.validator.Struct(form); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok {
			for _, fieldErr := range verrs {
				fieldErrors[fieldErr.Field()] = view.ValidationMessage(fieldErr)
			}
		}
	}
	return fieldErrors
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, template, title string, data map[string]any, status int) {
	sess := shared.SessionFromContext(r.Context())
	csrfToken, _ := h.csrfManager.EnsureToken(r.Context(), sess)
	var flash *shared.FlashMessage
	if sess != nil {
		flash = sess.PopFlash()
	}
	viewData := view.TemplateData{Title: title, CSRFToken: csrfToken, Flash: flash, CurrentPath: r.URL.Path, Data: data}
	if err := h.templates.RenderStatus(w, template, status, viewData); err != nil {
		h.logger.Error("render template", slog.String("template", template), slog.Any("error", err))
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
