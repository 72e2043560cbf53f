package rbac

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/assettrack/assettrack/internal/platform/httpx"
	"github.com/assettrack/assettrack/internal/shared"
)

// Handler exposes role permission endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    Middleware
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, rbac Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers role permission routes. Callers mount it behind authentication.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/role-permissions", func(r chi.Router) {
		r.Get("/", h.list)
		r.With(h.rbac.RequireAny(PermRolesManage)).Put("/{role}", h.update)
	})
}

type updateRolePermissionsRequest struct {
	Permissions []string `json:"permissions" validate:"required"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	view, err := h.service.RolePermissions(r.Context())
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, view)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	var req updateRolePermissionsRequest
	if err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	actor, ok := shared.PrincipalFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, h.logger, shared.ErrMissingToken)
		return
	}
	role := chi.URLParam(r, "role")
	grant, err := h.service.UpdateRolePermissions(r.Context(), actor, role, req.Permissions)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, grant)
}
