package issuance

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/assettrack/assettrack/internal/platform/httpx"
	"github.com/assettrack/assettrack/internal/rbac"
	"github.com/assettrack/assettrack/internal/shared"
)

// Handler serves the issue ledger and ops holdings.
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

// MountRoutes registers issuance routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/issues", func(r chi.Router) {
		r.With(h.rbac.RequireAny(rbac.PermIssuing, rbac.PermReturns)).Get("/", h.listIssues)
		r.With(h.rbac.RequireAny(rbac.PermIssuing)).Post("/", h.issue)
		r.With(h.rbac.RequireAny(rbac.PermIssuingBulk)).Post("/bulk", h.bulkIssue)
	})
	r.With(h.rbac.RequireAny(rbac.PermReturns)).Post("/returns", h.returnDevice)
	r.Route("/ops-holdings", func(r chi.Router) {
		r.With(h.rbac.RequireAny(rbac.PermLocationsList)).Get("/", h.listHoldings)
		r.With(h.rbac.RequireAny(rbac.PermOpsScan)).Post("/", h.scan)
	})
}

type issueResponse struct {
	Issue Issue `json:"issue"`
}

type issuesResponse struct {
	Issues []Issue `json:"issues"`
}

type bulkResponse struct {
	Issued  int          `json:"issued"`
	Failed  int          `json:"failed"`
	Results []BulkResult `json:"results"`
}

type holdingResponse struct {
	Holding Holding `json:"holding"`
}

type holdingsResponse struct {
	Holdings []Holding `json:"holdings"`
}

func (h *Handler) listIssues(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filters := IssueFilters{DeviceID: q.Get("deviceId")}
	switch q.Get("status") {
	case "", "open":
	case "all":
		filters.IncludeReturned = true
	default:
		httpx.RespondError(w, h.logger, httpx.NewError(httpx.ErrValidation, "status must be one of open all"))
		return
	}
	filters.Limit, _ = strconv.Atoi(q.Get("limit"))
	filters.Offset, _ = strconv.Atoi(q.Get("offset"))
	issues, err := h.service.ListIssues(r.Context(), filters)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, issuesResponse{Issues: issues})
}

func (h *Handler) issue(w http.ResponseWriter, r *http.Request) {
	var in IssueInput
	if err := httpx.DecodeAndValidate(r, &in); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	actor, _ := shared.PrincipalFromContext(r.Context())
	issued, err := h.service.Issue(r.Context(), actor, in)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, issueResponse{Issue: issued})
}

func (h *Handler) bulkIssue(w http.ResponseWriter, r *http.Request) {
	var in BulkIssueInput
	if err := httpx.DecodeAndValidate(r, &in); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	actor, _ := shared.PrincipalFromContext(r.Context())
	results, err := h.service.BulkIssue(r.Context(), actor, in)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	resp := bulkResponse{Results: results}
	for _, res := range results {
		if res.Issue != nil {
			resp.Issued++
		} else {
			resp.Failed++
		}
	}
	httpx.JSON(w, http.StatusOK, resp)
}

func (h *Handler) returnDevice(w http.ResponseWriter, r *http.Request) {
	var in ReturnInput
	if err := httpx.DecodeAndValidate(r, &in); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	actor, _ := shared.PrincipalFromContext(r.Context())
	closed, err := h.service.Return(r.Context(), actor, in)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"ok": true, "issue": closed})
}

func (h *Handler) listHoldings(w http.ResponseWriter, r *http.Request) {
	holdings, err := h.service.ListHoldings(r.Context(), r.URL.Query().Get("location"))
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, holdingsResponse{Holdings: holdings})
}

func (h *Handler) scan(w http.ResponseWriter, r *http.Request) {
	var in ScanInput
	if err := httpx.DecodeAndValidate(r, &in); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	actor, _ := shared.PrincipalFromContext(r.Context())
	held, err := h.service.Scan(r.Context(), actor, in)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, holdingResponse{Holding: held})
}
