package devices

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/assettrack/assettrack/internal/platform/httpx"
	"github.com/assettrack/assettrack/internal/rbac"
	"github.com/assettrack/assettrack/internal/shared"
)

// Handler serves the device registry.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers device routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/devices", func(r chi.Router) {
		r.Get("/", h.list)
		r.Get("/{id}", h.get)
		r.With(h.rbac.RequireAny(rbac.PermDevicesRegister)).Post("/", h.create)
		r.With(h.rbac.RequireAny(rbac.PermDevicesRegister)).Put("/{id}", h.update)
		r.With(h.rbac.RequireAny(rbac.PermDevicesStatus)).Patch("/{id}/status", h.setStatus)
	})
}

type deviceResponse struct {
	Device Device `json:"device"`
}

type devicesResponse struct {
	Devices []Device `json:"devices"`
}

type statusRequest struct {
	Status string `json:"status" validate:"max=64"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	devices, err := h.service.List(r.Context(), Filters{
		Location: q.Get("location"),
		Type:     q.Get("type"),
		State:    q.Get("state"),
		Search:   q.Get("search"),
	})
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, devicesResponse{Devices: devices})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := deviceRowID(r)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	device, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, deviceResponse{Device: device})
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var in Input
	if err := httpx.DecodeAndValidate(r, &in); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	actor, _ := shared.PrincipalFromContext(r.Context())
	device, err := h.service.Register(r.Context(), actor, in)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, deviceResponse{Device: device})
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, err := deviceRowID(r)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	var in Input
	if err := httpx.DecodeAndValidate(r, &in); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	actor, _ := shared.PrincipalFromContext(r.Context())
	device, err := h.service.Update(r.Context(), actor, id, in)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, deviceResponse{Device: device})
}

func (h *Handler) setStatus(w http.ResponseWriter, r *http.Request) {
	id, err := deviceRowID(r)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	var req statusRequest
	if err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	actor, _ := shared.PrincipalFromContext(r.Context())
	device, err := h.service.SetStatus(r.Context(), actor, id, req.Status)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, deviceResponse{Device: device})
}

func deviceRowID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, httpx.NewError(httpx.ErrValidation, "Invalid device id")
	}
	return id, nil
}
