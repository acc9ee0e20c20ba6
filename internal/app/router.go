package app

import (
	"context"
	"io/fs"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/wardenhq/warden/internal/auth"
	"github.com/wardenhq/warden/internal/dashboard"
	"github.com/wardenhq/warden/internal/observability"
	"github.com/wardenhq/warden/internal/platform/httpx"
	"github.com/wardenhq/warden/internal/rbac"
	"github.com/wardenhq/warden/internal/roles"
	"github.com/wardenhq/warden/internal/shared"
	"github.com/wardenhq/warden/internal/users"
	"github.com/wardenhq/warden/internal/view"
	"github.com/wardenhq/warden/web"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger           *slog.Logger
	Config           *Config
	Templates        *view.Engine
	SessionManager   *shared.SessionManager
	CSRFManager      *shared.CSRFManager
	AuthHandler      *auth.Handler
	DashboardHandler *dashboard.Handler
	UsersHandler     *users.Handler
	RolesHandler     *roles.Handler
	RBACMiddleware   rbac.Middleware
	Metrics          *observability.Metrics
	DB               *pgxpool.Pool
	Redis            *redis.Client
}

// NewRouter constructs the chi.Router with Warden defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		CSRFManager:    params.CSRFManager,
		Metrics:        params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/healthz/ready", readinessHandler(params.DB, params.Redis))

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		sess := shared.SessionFromContext(r.Context())
		if sess.Authenticated() {
			http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
			return
		}
		csrfToken, _ := params.CSRFManager.EnsureToken(r.Context(), sess)
		var flash *shared.FlashMessage
		if sess != nil {
			flash = sess.PopFlash()
		}
		data := view.TemplateData{
			Title:     "Warden",
			CSRFToken: csrfToken,
			Flash:     flash,
			Data: map[string]any{
				"AppEnv": params.Config.AppEnv,
			},
		}
		if err := params.Templates.Render(w, "pages/landing.html", data); err != nil {
			params.Logger.Error("render landing", slog.Any("error", err))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
	})

	// Guest-only authentication screens.
	r.Group(func(r chi.Router) {
		r.Use(params.RBACMiddleware.RequireGuest)
		r.Get("/login", params.AuthHandler.ShowLogin)
		r.Post("/login", params.AuthHandler.HandleLogin)
		r.Get("/register", params.AuthHandler.ShowRegister)
		r.Post("/register", params.AuthHandler.HandleRegister)
	})

	r.Group(func(r chi.Router) {
		r.Use(params.RBACMiddleware.RequireAuth)
		r.Post("/logout", params.AuthHandler.HandleLogout)
		r.Route("/dashboard", params.DashboardHandler.MountUserRoutes)

		r.With(params.RBACMiddleware.RequireRole(rbac.AnyOf(rbac.RoleManager, rbac.RoleAdmin))).
			Get("/manager/dashboard", params.DashboardHandler.ShowManagerDashboard)

		r.Route("/admin", func(r chi.Router) {
			r.Use(params.RBACMiddleware.RequireRole(rbac.AnyOf(rbac.RoleAdmin)))
			r.Get("/dashboard", params.DashboardHandler.ShowAdminDashboard)
			r.Get("/system-info", params.DashboardHandler.ShowSystemInfo)
			r.Route("/users", params.UsersHandler.MountRoutes)
			params.RolesHandler.MountRoutes(r)
		})
	})

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	staticFS, err := fs.Sub(web.Static, "static")
	if err != nil {
		params.Logger.Error("create static sub filesystem", slog.Any("error", err))
	} else {
		fileServer := http.StripPrefix("/static/", http.FileServer(http.FS(staticFS)))
		r.Handle("/static/*", staticCacheHandler(fileServer))
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		sess := shared.SessionFromContext(r.Context())
		csrfToken, _ := params.CSRFManager.EnsureToken(r.Context(), sess)
		data := view.TemplateData{Title: "Not Found", CSRFToken: csrfToken, CurrentPath: r.URL.Path}
		if err := params.Templates.RenderStatus(w, "pages/404.html", http.StatusNotFound, data); err != nil {
			params.Logger.Error("render 404", slog.Any("error", err))
		}
	})

	return r
}

// readinessHandler pings the backing stores so orchestrators can hold
// traffic until both are reachable.
func readinessHandler(pool *pgxpool.Pool, client *redis.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if pool != nil {
			if err := pool.Ping(ctx); err != nil {
				httpx.Problem(w, http.StatusServiceUnavailable, "Not Ready", "database unreachable")
				return
			}
		}
		if client != nil {
			if err := client.Ping(ctx).Err(); err != nil {
				httpx.Problem(w, http.StatusServiceUnavailable, "Not Ready", "cache unreachable")
				return
			}
		}
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

// staticCacheHandler wraps a file server with a one hour Cache-Control
// header for assets.
func staticCacheHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "public, max-age=3600")
		next.ServeHTTP(w, r)
	})
}
