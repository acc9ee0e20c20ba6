package roles

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/wardenhq/warden/internal/rbac"
	"github.com/wardenhq/warden/internal/shared"
	"github.com/wardenhq/warden/internal/view"
)

const perPage = 10

// Catalog exposes the read side of the role/permission catalog. The rbac
// service satisfies it.
type Catalog interface {
	ListRolesPage(ctx context.Context, limit, offset int) ([]rbac.RoleWithPermissions, int, error)
	ListPermissionsPage(ctx context.Context, limit, offset int) ([]rbac.Permission, int, error)
}

// Handler serves the read-only role and permission listings.
type Handler struct {
	logger    *slog.Logger
	catalog   Catalog
	templates *view.Engine
	csrf      *shared.CSRFManager
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, catalog Catalog, templates *view.Engine, csrf *shared.CSRFManager) *Handler {
	return &Handler{logger: logger, catalog: catalog, templates: templates, csrf: csrf}
}

// MountRoutes registers the catalog listing routes. The role gates are
// applied by the caller.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/roles", h.listRoles)
	r.Get("/permissions", h.listPermissions)
}

func (h *Handler) listRoles(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	pagination := shared.NewPagination(page, perPage, 0)
	roles, total, err := h.catalog.ListRolesPage(r.Context(), pagination.PerPage, pagination.Offset())
	if err != nil {
		h.logger.Error("list roles", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	pagination = shared.NewPagination(page, perPage, total)
	h.render(w, r, "pages/admin/roles_list.html", "Roles", map[string]any{
		"Roles":      roles,
		"Pagination": pagination,
	})
}

func (h *Handler) listPermissions(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	pagination := shared.NewPagination(page, perPage, 0)
	perms, total, err := h.catalog.ListPermissionsPage(r.Context(), pagination.PerPage, pagination.Offset())
	if err != nil {
		h.logger.Error("list permissions", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	pagination = shared.NewPagination(page, perPage, total)
	h.render(w, r, "pages/admin/permissions_list.html", "Permissions", map[string]any{
		"Permissions": perms,
		"Pagination":  pagination,
	})
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, template, title string, data map[string]any) {
	sess := shared.SessionFromContext(r.Context())
	csrfToken, _ := h.csrf.EnsureToken(r.Context(), sess)
	var flash *shared.FlashMessage
	if sess != nil {
		flash = sess.PopFlash()
	}
	var current *view.CurrentUser
	if principal, ok := rbac.PrincipalFromContext(r.Context()); ok {
		current = &view.CurrentUser{ID: principal.ID, Name: principal.Name, Email: principal.Email}
	}
	err := h.templates.Render(w, template, view.TemplateData{
		Title:       title,
		CSRFToken:   csrfToken,
		Flash:       flash,
		CurrentUser: current,
		CurrentPath: r.URL.Path,
		Data:        data,
	})
	if err != nil {
		h.logger.Error("render template", slog.String("template", template), slog.Any("error", err))
	}
}
