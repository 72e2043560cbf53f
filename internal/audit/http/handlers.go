package audithttp

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/assettrack/assettrack/internal/audit"
	"github.com/assettrack/assettrack/internal/platform/httpx"
	"github.com/assettrack/assettrack/internal/rbac"
	"github.com/assettrack/assettrack/internal/shared"
)

// Handler serves the audit trail.
type Handler struct {
	logger  *slog.Logger
	service *audit.Service
	rbac    rbac.Middleware
}

// NewHandler membuat handler audit baru.
func NewHandler(logger *slog.Logger, service *audit.Service, rbac rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, rbac: rbac}
}

type logsResponse struct {
	Logs []audit.Entry `json:"logs"`
}

type clearResponse struct {
	OK      bool  `json:"ok"`
	Removed int64 `json:"removed"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	filters, err := parseFilters(r)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	entries, err := h.service.List(r.Context(), filters)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	if entries == nil {
		entries = []audit.Entry{}
	}
	httpx.JSON(w, http.StatusOK, logsResponse{Logs: entries})
}

func (h *Handler) clear(w http.ResponseWriter, r *http.Request) {
	actor, _ := shared.PrincipalFromContext(r.Context())
	removed, err := h.service.Clear(r.Context(), actor)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, clearResponse{OK: true, Removed: removed})
}

func (h *Handler) export(w http.ResponseWriter, r *http.Request) {
	filters, err := parseFilters(r)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	body, err := h.service.Export(r.Context(), filters)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", "attachment; filename=\"audit-trail.csv\"")
	if _, err := w.Write(body); err != nil {
		h.logger.Warn("write csv", slog.Any("error", err))
	}
}

func parseFilters(r *http.Request) (audit.Filters, error) {
	q := r.URL.Query()
	window := shared.WindowFromRequest(r, 0, 0)
	filters := audit.Filters{
		Action: strings.TrimSpace(q.Get("action")),
		Offset: window.Offset,
	}
	// Limit clamping belongs to the service; only reject garbage here.
	if v := strings.TrimSpace(q.Get("limit")); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit <= 0 {
			return audit.Filters{}, httpx.NewError(httpx.ErrValidation, "limit must be a positive integer")
		}
		filters.Limit = limit
	}
	if v := strings.TrimSpace(q.Get("userId")); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil || id <= 0 {
			return audit.Filters{}, httpx.NewError(httpx.ErrValidation, "userId must be a positive integer")
		}
		filters.UserID = id
	}
	return filters, nil
}
