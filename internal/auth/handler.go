package auth

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/assettrack/assettrack/internal/platform/httpx"
	"github.com/assettrack/assettrack/internal/shared"
)

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

// MountPublic registers routes that do not require a token.
func (h *Handler) MountPublic(r chi.Router) {
	r.Post("/bootstrap", h.handleBootstrap)
	r.Post("/login", h.handleLogin)
}

// MountRoutes registers authenticated routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/me", h.handleMe)
}

func (h *Handler) handleBootstrap(w http.ResponseWriter, r *http.Request) {
	var in BootstrapInput
	if err := httpx.DecodeAndValidate(r, &in); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	session, err := h.service.Bootstrap(r.Context(), in)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	h.logger.Info("bootstrap admin created", slog.String("username", session.User.Username))
	httpx.JSON(w, http.StatusOK, session)
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var in LoginInput
	if err := httpx.DecodeAndValidate(r, &in); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	session, err := h.service.Login(r.Context(), in)
	if err != nil {
		if shared.IsAuthError(err) {
			h.logger.Warn("login rejected", slog.String("username", in.Username), slog.Any("error", err))
		}
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, session)
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	principal, ok := shared.PrincipalFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, h.logger, shared.ErrMissingToken)
		return
	}
	profile, err := h.service.Me(r.Context(), principal)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, profile)
}
