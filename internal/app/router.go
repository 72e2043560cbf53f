package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	audithttp "github.com/assettrack/assettrack/internal/audit/http"
	"github.com/assettrack/assettrack/internal/auth"
	"github.com/assettrack/assettrack/internal/devices"
	"github.com/assettrack/assettrack/internal/issuance"
	"github.com/assettrack/assettrack/internal/observability"
	"github.com/assettrack/assettrack/internal/platform/httpx"
	"github.com/assettrack/assettrack/internal/rbac"
	"github.com/assettrack/assettrack/internal/users"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger          *slog.Logger
	Config          *Config
	Authenticator   *auth.Authenticator
	RBACMiddleware  rbac.Middleware
	AuthHandler     *auth.Handler
	UsersHandler    *users.Handler
	DevicesHandler  *devices.Handler
	IssuanceHandler *issuance.Handler
	RolesHandler    *rbac.Handler
	AuditHandler    *audithttp.Handler
	Metrics         *observability.Metrics
}

type statusBody struct {
	Status string `json:"status"`
}

// NewRouter constructs the chi.Router with the default middleware stack.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	health := func(w http.ResponseWriter, _ *http.Request) {
		httpx.JSON(w, http.StatusOK, statusBody{Status: "ok"})
	}
	r.Get("/", health)
	r.Get("/health", health)
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	authLimit := 10
	if params.Config != nil {
		authLimit = params.Config.AuthRateLimit
	}

	r.Route("/api", func(r chi.Router) {
		if params.AuthHandler != nil {
			r.Group(func(r chi.Router) {
				r.Use(AuthRateLimit(authLimit))
				params.AuthHandler.MountPublic(r)
			})
		}

		r.Group(func(r chi.Router) {
			r.Use(params.Authenticator.Middleware)
			r.Use(params.RBACMiddleware.Attach)

			if params.AuthHandler != nil {
				params.AuthHandler.MountRoutes(r)
			}
			if params.UsersHandler != nil {
				params.UsersHandler.MountRoutes(r)
			}
			if params.DevicesHandler != nil {
				params.DevicesHandler.MountRoutes(r)
			}
			if params.IssuanceHandler != nil {
				params.IssuanceHandler.MountRoutes(r)
			}
			if params.RolesHandler != nil {
				params.RolesHandler.MountRoutes(r)
			}
			if params.AuditHandler != nil {
				params.AuditHandler.MountRoutes(r)
			}
		})
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		httpx.Error(w, http.StatusNotFound, "Not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		httpx.Error(w, http.StatusMethodNotAllowed, "Method not allowed")
	})

	return r
}
