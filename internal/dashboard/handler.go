package dashboard

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"runtime"
	"runtime/debug"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/errgroup"

	"github.com/wardenhq/warden/internal/rbac"
	"github.com/wardenhq/warden/internal/shared"
	"github.com/wardenhq/warden/internal/users"
	"github.com/wardenhq/warden/internal/view"
)

const (
	recentWindow  = 7 * 24 * time.Hour
	latestListLen = 5
)

// AccountReader exposes the account queries the dashboards need. The users
// service satisfies it.
type AccountReader interface {
	Get(ctx context.Context, id int64) (users.UserWithRoles, error)
	Stats(ctx context.Context) (users.Stats, error)
	RoleStats(ctx context.Context, roleName string, recentWindow time.Duration) (users.Stats, error)
	LatestByRole(ctx context.Context, roleName string, limit int) ([]users.User, error)
	UpdateProfile(ctx context.Context, userID int64, name, email string) error
	ChangePassword(ctx context.Context, userID int64, currentPassword, newPassword string) error
}

// CatalogCounter exposes the catalog totals for the admin dashboard. The
// rbac service satisfies it.
type CatalogCounter interface {
	CountRoles(ctx context.Context) (int, error)
	CountPermissions(ctx context.Context) (int, error)
	RoleNames(ctx context.Context, userID int64) ([]string, error)
}

// Handler serves the role-specific dashboards and the profile screen.
type Handler struct {
	logger    *slog.Logger
	accounts  AccountReader
	catalog   CatalogCounter
	templates *view.Engine
	csrf      *shared.CSRFManager
	validator *validator.Validate
	startedAt time.Time
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, accounts AccountReader, catalog CatalogCounter, templates *view.Engine, csrf *shared.CSRFManager) *Handler {
	return &Handler{
		logger:    logger,
		accounts:  accounts,
		catalog:   catalog,
		templates: templates,
		csrf:      csrf,
		validator: validator.New(),
		startedAt: time.Now(),
	}
}

// MountUserRoutes registers the routes every authenticated user can reach.
func (h *Handler) MountUserRoutes(r chi.Router) {
	r.Get("/", h.showDashboard)
	r.Get("/profile", h.showProfile)
	r.Put("/profile", h.updateProfile)
}

// ShowManagerDashboard renders team statistics for the manager audience.
func (h *Handler) ShowManagerDashboard(w http.ResponseWriter, r *http.Request) {
	principal, _ := rbac.PrincipalFromContext(r.Context())

	stats, err := h.accounts.RoleStats(r.Context(), rbac.RoleUser, recentWindow)
	if err != nil {
		h.serverError(w, "manager stats", err)
		return
	}
	latest, err := h.accounts.LatestByRole(r.Context(), rbac.RoleUser, latestListLen)
	if err != nil {
		h.serverError(w, "latest users", err)
		return
	}
	h.render(w, r, "pages/manager_dashboard.html", "Manager Dashboard", principal, map[string]any{
		"Stats":       stats,
		"LatestUsers": latest,
	})
}

// ShowAdminDashboard renders the system-wide totals.
func (h *Handler) ShowAdminDashboard(w http.ResponseWriter, r *http.Request) {
	principal, _ := rbac.PrincipalFromContext(r.Context())

	var (
		stats       users.Stats
		roles       int
		permissions int
	)
	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() error {
		var err error
		stats, err = h.accounts.Stats(ctx)
		return err
	})
	g.Go(func() error {
		var err error
		roles, err = h.catalog.CountRoles(ctx)
		return err
	})
	g.Go(func() error {
		var err error
		permissions, err = h.catalog.CountPermissions(ctx)
		return err
	})
	if err := g.Wait(); err != nil {
		h.serverError(w, "admin stats", err)
		return
	}
	h.render(w, r, "pages/admin_dashboard.html", "Admin Dashboard", principal, map[string]any{
		"TotalUsers":       stats.Total,
		"ActiveUsers":      stats.Active,
		"TotalRoles":       roles,
		"TotalPermissions": permissions,
	})
}

// ShowSystemInfo renders runtime diagnostics for administrators.
func (h *Handler) ShowSystemInfo(w http.ResponseWriter, r *http.Request) {
	principal, _ := rbac.PrincipalFromContext(r.Context())

	version := "unknown"
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		version = info.Main.Version
	}
	h.render(w, r, "pages/admin_system_info.html", "System Info", principal, map[string]any{
		"GoVersion":    runtime.Version(),
		"OS":           runtime.GOOS,
		"Arch":         runtime.GOARCH,
		"NumCPU":       runtime.NumCPU(),
		"AppVersion":   version,
		"Uptime":       time.Since(h.startedAt).Round(time.Second).String(),
		"Database":     "PostgreSQL",
		"CacheBackend": "Redis",
		"ServerTime":   time.Now().Format("02 Jan 2006 15:04:05 MST"),
	})
}

func (h *Handler) showDashboard(w http.ResponseWriter, r *http.Request) {
	principal, _ := rbac.PrincipalFromContext(r.Context())
	account, err := h.accounts.Get(r.Context(), principal.ID)
	if err != nil {
		h.serverError(w, "load account", err)
		return
	}
	roles, err := h.catalog.RoleNames(r.Context(), principal.ID)
	if err != nil {
		h.serverError(w, "load roles", err)
		return
	}
	h.render(w, r, "pages/dashboard.html", "Dashboard", principal, map[string]any{
		"Account":           account,
		"Roles":             roles,
		"ProfileCompletion": profileCompletion(account),
	})
}

type profileForm struct {
	Name            string `validate:"required,max=255"`
	Email           string `validate:"required,email,max=255"`
	CurrentPassword string
	NewPassword     string
	ConfirmPassword string
}

func (h *Handler) showProfile(w http.ResponseWriter, r *http.Request) {
	principal, _ := rbac.PrincipalFromContext(r.Context())
	account, err := h.accounts.Get(r.Context(), principal.ID)
	if err != nil {
		h.serverError(w, "load account", err)
		return
	}
	h.render(w, r, "pages/profile.html", "Profile", principal, map[string]any{
		"Form":   profileForm{Name: account.Name, Email: account.Email},
		"Errors": map[string]string{},
	})
}

func (h *Handler) updateProfile(w http.ResponseWriter, r *http.Request) {
	principal, _ := rbac.PrincipalFromContext(r.Context())
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	form := profileForm{
		Name:            r.PostFormValue("name"),
		Email:           r.PostFormValue("email"),
		CurrentPassword: r.PostFormValue("current_password"),
		NewPassword:     r.PostFormValue("new_password"),
		ConfirmPassword: r.PostFormValue("confirm_password"),
	}
	fieldErrors := make(map[string]string)
	if err := h.validator.Struct(form); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok {
			for _, fieldErr := range verrs {
				fieldErrors[fieldErr.Field()] = view.ValidationMessage(fieldErr)
			}
		}
	}
	if form.NewPassword != "" {
		switch {
		case form.CurrentPassword == "":
			fieldErrors["CurrentPassword"] = "This field is required."
		case len(form.NewPassword) < 8:
			fieldErrors["NewPassword"] = "Must be at least 8 characters."
		case form.NewPassword != form.ConfirmPassword:
			fieldErrors["ConfirmPassword"] = "Passwords do not match."
		}
	}

	if len(fieldErrors) == 0 {
		err := h.accounts.UpdateProfile(r.Context(), principal.ID, form.Name, form.Email)
		switch {
		case errors.Is(err, shared.ErrDuplicateEmail):
			fieldErrors["Email"] = shared.UserSafeMessage(err)
		case err != nil:
			h.serverError(w, "update profile", err)
			return
		}
	}
	if len(fieldErrors) == 0 && form.NewPassword != "" {
		err := h.accounts.ChangePassword(r.Context(), principal.ID, form.CurrentPassword, form.NewPassword)
		switch {
		case errors.Is(err, shared.ErrWrongPassword):
			// Wrong current password stays on the form as an inline error.
			fieldErrors["CurrentPassword"] = shared.UserSafeMessage(err)
		case err != nil:
			h.serverError(w, "change password", err)
			return
		}
	}

	if len(fieldErrors) > 0 {
		form.CurrentPassword = ""
		form.NewPassword = ""
		form.ConfirmPassword = ""
		h.renderStatus(w, r, "pages/profile.html", "Profile", principal, map[string]any{
			"Form":   form,
			"Errors": fieldErrors,
		}, http.StatusBadRequest)
		return
	}

	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		sess.AddFlash(shared.FlashMessage{Kind: "success", Message: "Profile updated successfully!"})
	}
	http.Redirect(w, r, "/dashboard/profile", http.StatusSeeOther)
}

// profileCompletion scores the account over four profile attributes.
func profileCompletion(account users.UserWithRoles) int {
	complete := 1 // a stored credential always exists
	if account.Name != "" {
		complete++
	}
	if account.Email != "" {
		complete++
	}
	if account.EmailVerifiedAt != nil {
		complete++
	}
	return complete * 100 / 4
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, template, title string, principal rbac.Principal, data map[string]any) {
	h.renderStatus(w, r, template, title, principal, data, http.StatusOK)
}

func (h *Handler) renderStatus(w http.ResponseWriter, r *http.Request, template, title string, principal rbac.Principal, data map[string]any, status int) {
	sess := shared.SessionFromContext(r.Context())
	csrfToken, _ := h.csrf.EnsureToken(r.Context(), sess)
	var flash *shared.FlashMessage
	if sess != nil {
		flash = sess.PopFlash()
	}
	roles, err := h.catalog.RoleNames(r.Context(), principal.ID)
	if err != nil {
		h.logger.Warn("load roles for layout", slog.Any("error", err))
	}
	err = h.templates.RenderStatus(w, template, status, view.TemplateData{
		Title:     title,
		CSRFToken: csrfToken,
		Flash:     flash,
		CurrentUser: &view.CurrentUser{
			ID:    principal.ID,
			Name:  principal.Name,
			Email: principal.Email,
			Roles: roles,
		},
		CurrentPath: r.URL.Path,
		Data:        data,
	})
	if err != nil {
		h.logger.Error("render template", slog.String("template", template), slog.Any("error", err))
	}
}

func (h *Handler) serverError(w http.ResponseWriter, msg string, err error) {
	h.logger.Error(msg, slog.Any("error", err))
	http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}
