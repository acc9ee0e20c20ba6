package users

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/wardenhq/warden/internal/rbac"
	"github.com/wardenhq/warden/internal/shared"
	"github.com/wardenhq/warden/internal/view"
)

const usersPerPage = 10

// RoleLister supplies the role options for the user forms.
type RoleLister interface {
	ListRoles(ctx context.Context) ([]rbac.Role, error)
}

// Handler manages the admin user management endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	roles     RoleLister
	templates *view.Engine
	csrf      *shared.CSRFManager
	validator *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, roles RoleLister, templates *view.Engine, csrf *shared.CSRFManager) *Handler {
	return &Handler{
		logger:    logger,
		service:   service,
		roles:     roles,
		templates: templates,
		csrf:      csrf,
		validator: validator.New(),
	}
}

// MountRoutes registers user management routes. The admin role gate is
// applied by the caller.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.listUsers)
	r.Get("/create", h.showCreateForm)
	r.Post("/", h.createUser)
	r.Get("/{id}/edit", h.showEditForm)
	r.Put("/{id}", h.updateUser)
	r.Delete("/{id}", h.deleteUser)
}

type userForm struct {
	Name     string `validate:"required,max=255"`
	Email    string `validate:"required,email,max=255"`
	Password string
	Role     string `validate:"required"`
	IsActive bool
}

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	users, pagination, err := h.service.ListPage(r.Context(), page, usersPerPage)
	if err != nil {
		h.logger.Error("list users", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	h.render(w, r, "pages/admin/users_list.html", map[string]any{
		"Users":      users,
		"Pagination": pagination,
	}, http.StatusOK)
}

func (h *Handler) showCreateForm(w http.ResponseWriter, r *http.Request) {
	roles, err := h.roles.ListRoles(r.Context())
	if err != nil {
		h.logger.Error("list roles for form", slog.Any("error", err))
	}
	h.render(w, r, "pages/admin/users_form.html", map[string]any{
		"Form":   userForm{IsActive: true},
		"Roles":  roles,
		"Errors": map[string]string{},
	}, http.StatusOK)
}

func (h *Handler) createUser(w http.ResponseWriter, r *http.Request) {
	form, fieldErrors := h.parseForm(r, true)

	if len(fieldErrors) == 0 {
		actor, _ := rbac.PrincipalFromContext(r.Context())
		_, err := h.service.Create(r.Context(), actor.ID, CreateInput{
			Name:     form.Name,
			Email:    form.Email,
			Password: form.Password,
			Role:     form.Role,
			IsActive: form.IsActive,
		})
		switch {
		case err == nil:
			h.redirectWithFlash(w, r, "/admin/users", "success", "User created successfully!")
			return
		case errors.Is(err, shared.ErrDuplicateEmail):
			fieldErrors["Email"] = shared.UserSafeMessage(err)
		case errors.Is(err, shared.ErrUnknownRole):
			fieldErrors["Role"] = shared.UserSafeMessage(err)
		default:
			h.logger.Error("create user", slog.Any("error", err))
			fieldErrors["general"] = shared.UserSafeMessage(err)
		}
	}

	roles, _ := h.roles.ListRoles(r.Context())
	form.Password = ""
	h.render(w, r, "pages/admin/users_form.html", map[string]any{
		"Form":   form,
		"Roles":  roles,
		"Errors": fieldErrors,
	}, http.StatusBadRequest)
}

func (h *Handler) showEditForm(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	user, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.notFoundOrError(w, r, err)
		return
	}
	roles, err := h.roles.ListRoles(r.Context())
	if err != nil {
		h.logger.Error("list roles for form", slog.Any("error", err))
	}
	form := userForm{Name: user.Name, Email: user.Email, IsActive: user.IsActive}
	if len(user.Roles) > 0 {
		form.Role = user.Roles[0]
	}
	h.render(w, r, "pages/admin/users_form.html", map[string]any{
		"Form":   form,
		"UserID": user.ID,
		"Roles":  roles,
		"Errors": map[string]string{},
	}, http.StatusOK)
}

func (h *Handler) updateUser(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	form, fieldErrors := h.parseForm(r, false)

	if len(fieldErrors) == 0 {
		actor, _ := rbac.PrincipalFromContext(r.Context())
		err := h.service.Update(r.Context(), actor.ID, id, UpdateInput{
			Name:     form.Name,
			Email:    form.Email,
			Password: form.Password,
			Role:     form.Role,
			IsActive: form.IsActive,
		})
		switch {
		case err == nil:
			h.redirectWithFlash(w, r, "/admin/users", "success", "User updated successfully!")
			return
		case errors.Is(err, shared.ErrNotFound):
			h.notFoundOrError(w, r, err)
			return
		case errors.Is(err, shared.ErrDuplicateEmail):
			fieldErrors["Email"] = shared.UserSafeMessage(err)
		case errors.Is(err, shared.ErrUnknownRole):
			fieldErrors["Role"] = shared.UserSafeMessage(err)
		default:
			h.logger.Error("update user", slog.Int64("id", id), slog.Any("error", err))
			fieldErrors["general"] = shared.UserSafeMessage(err)
		}
	}

	roles, _ := h.roles.ListRoles(r.Context())
	form.Password = ""
	h.render(w, r, "pages/admin/users_form.html", map[string]any{
		"Form":   form,
		"UserID": id,
		"Roles":  roles,
		"Errors": fieldErrors,
	}, http.StatusBadRequest)
}

func (h *Handler) deleteUser(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	actor, _ := rbac.PrincipalFromContext(r.Context())
	err := h.service.Delete(r.Context(), actor.ID, id)
	switch {
	case err == nil:
		h.redirectWithFlash(w, r, "/admin/users", "success", "User deleted successfully!")
	case errors.Is(err, shared.ErrSelfDelete):
		// Business-rule failure: flash and bounce back, not a 403.
		h.redirectWithFlash(w, r, "/admin/users", "error", shared.UserSafeMessage(err))
	case errors.Is(err, shared.ErrNotFound):
		h.notFoundOrError(w, r, err)
	default:
		h.logger.Error("delete user", slog.Int64("id", id), slog.Any("error", err))
		h.redirectWithFlash(w, r, "/admin/users", "error", shared.UserSafeMessage(err))
	}
}

func (h *Handler) parseForm(r *http.Request, passwordRequired bool) (userForm, map[string]string) {
	fieldErrors := make(map[string]string)
	if err := r.ParseForm(); err != nil {
		fieldErrors["general"] = "Invalid form submission."
		return userForm{}, fieldErrors
	}
	form := userForm{
		Name:     r.PostFormValue("name"),
		Email:    r.PostFormValue("email"),
		Password: r.PostFormValue("password"),
		Role:     r.PostFormValue("role"),
		IsActive: r.PostFormValue("is_active") != "",
	}
	if err := h.validator.Struct(form); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok {
			for _, fieldErr := range verrs {
				fieldErrors[fieldErr.Field()] = view.ValidationMessage(fieldErr)
			}
		}
	}
	if passwordRequired && form.Password == "" {
		fieldErrors["Password"] = "This field is required."
	}
	if form.Password != "" && len(form.Password) < 8 {
		fieldErrors["Password"] = "Must be at least 8 characters."
	}
	return form, fieldErrors
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		http.NotFound(w, r)
		return 0, false
	}
	return id, true
}

func (h *Handler) notFoundOrError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, shared.ErrNotFound) {
		http.NotFound(w, r)
		return
	}
	h.logger.Error("user lookup", slog.Any("error", err))
	http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, template string, data map[string]any, status int) {
	sess := shared.SessionFromContext(r.Context())
	csrfToken, _ := h.csrf.EnsureToken(r.Context(), sess)
	var flash *shared.FlashMessage
	if sess != nil {
		flash = sess.PopFlash()
	}
	viewData := view.TemplateData{
		Title:       "Users",
		CSRFToken:   csrfToken,
		Flash:       flash,
		CurrentUser: currentUser(r),
		CurrentPath: r.URL.Path,
		Data:        data,
	}
	if err := h.templates.RenderStatus(w, template, status, viewData); err != nil {
		h.logger.Error("render template", slog.String("template", template), slog.Any("error", err))
	}
}

func (h *Handler) redirectWithFlash(w http.ResponseWriter, r *http.Request, location, kind, message string) {
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		sess.AddFlash(shared.FlashMessage{Kind: kind, Message: message})
	}
	http.Redirect(w, r, location, http.StatusSeeOther)
}

func currentUser(r *http.Request) *view.CurrentUser {
	principal, ok := rbac.PrincipalFromContext(r.Context())
	if !ok {
		return nil
	}
	return &view.CurrentUser{ID: principal.ID, Name: principal.Name, Email: principal.Email}
}
