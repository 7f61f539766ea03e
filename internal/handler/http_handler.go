// Package handler is the thin HTTP layer. Handlers decode, delegate to the
// services, and encode; no business rules live here.
package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/itam-hq/be-procurement/internal/platform/errors"
	"github.com/itam-hq/be-procurement/internal/repository"
	"github.com/itam-hq/be-procurement/internal/service"
)

// actorHeader carries the acting user's ID, injected by the auth gateway in
// front of this service. Session handling itself is out of scope here.
const actorHeader = "X-User-ID"

// HTTPHandler handles HTTP requests.
type HTTPHandler struct {
	proposals   *service.ProposalService
	workflow    *service.WorkflowService
	tracking    *service.TrackingService
	audit       *service.AuditService
	permissions *service.PermissionService
	log         zerolog.Logger
}

// NewHTTPHandler creates a new HTTP handler.
func NewHTTPHandler(
	proposals *service.ProposalService,
	workflow *service.WorkflowService,
	tracking *service.TrackingService,
	audit *service.AuditService,
	permissions *service.PermissionService,
	log zerolog.Logger,
) *HTTPHandler {
	return &HTTPHandler{
		proposals:   proposals,
		workflow:    workflow,
		tracking:    tracking,
		audit:       audit,
		permissions: permissions,
		log:         log,
	}
}

// Register mounts all proposal routes on the router.
func (h *HTTPHandler) Register(r chi.Router) {
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"healthy"}`))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/permissions/me", h.MyPermissions)

		r.Route("/proposals", func(r chi.Router) {
			r.Post("/", h.CreateProposal)
			r.Get("/", h.ListProposals)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.GetProposal)
				r.Put("/", h.EditProposal)
				r.Post("/actions", h.ApplyAction)
				r.Post("/receipt", h.LinkReceipt)
				r.Get("/audit", h.AuditTrail)
				r.Get("/tracking", h.ListTracking)
				r.Post("/tracking", h.AppendTracking)
			})
		})
	})
}

// CreateProposal handles proposal creation.
func (h *HTTPHandler) CreateProposal(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.requireActor(w, r)
	if !ok {
		return
	}

	var req service.CreateProposalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, errors.InvalidInput("body", "invalid request body"))
		return
	}
	req.ActorID = actorID

	p, err := h.proposals.Create(r.Context(), &req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, p)
}

// GetProposal returns one proposal with its items.
func (h *HTTPHandler) GetProposal(w http.ResponseWriter, r *http.Request) {
	p, err := h.proposals.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, p)
}

// ListProposals handles filtered, paginated listing.
func (h *HTTPHandler) ListProposals(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := repository.ProposalFilter{}

	if v := q.Get("status"); v != "" {
		status := repository.ProposalStatus(v)
		if !status.Valid() {
			h.writeError(w, errors.InvalidInput("status", "unknown status"))
			return
		}
		f.Status = &status
	}
	if v := q.Get("proposer_id"); v != "" {
		f.ProposerID = &v
	}
	if v := q.Get("from_date"); v != "" {
		f.FromDate = &v
	}
	if v := q.Get("to_date"); v != "" {
		f.ToDate = &v
	}
	if q.Get("overdue") == "true" {
		now := time.Now()
		f.OverdueAt = &now
	}

	page, _ := strconv.Atoi(q.Get("page"))
	if page < 1 {
		page = 1
	}
	pageSize, _ := strconv.Atoi(q.Get("page_size"))
	if pageSize < 1 || pageSize > 100 {
		pageSize = 50
	}
	f.Limit = pageSize
	f.Offset = (page - 1) * pageSize

	proposals, total, err := h.proposals.List(r.Context(), f)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"proposals": proposals,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// EditProposal replaces a proposal's items and header fields.
func (h *HTTPHandler) EditProposal(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.requireActor(w, r)
	if !ok {
		return
	}

	var req service.EditProposalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, errors.InvalidInput("body", "invalid request body"))
		return
	}
	req.ID = chi.URLParam(r, "id")
	req.ActorID = actorID

	p, err := h.proposals.Edit(r.Context(), &req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, p)
}

// actionRequestBody is the wire form of a workflow action invocation.
type actionRequestBody struct {
	Action       string `json:"action"`
	Note         string `json:"note"`
	SupplierInfo string `json:"supplier_info"`
	Reason       string `json:"reason"`
}

// ApplyAction invokes one named workflow action.
func (h *HTTPHandler) ApplyAction(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.requireActor(w, r)
	if !ok {
		return
	}

	var body actionRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.writeError(w, errors.InvalidInput("body", "invalid request body"))
		return
	}

	result, err := h.workflow.Apply(r.Context(), &service.ActionRequest{
		ProposalID:   chi.URLParam(r, "id"),
		Action:       service.Action(body.Action),
		ActorID:      actorID,
		Note:         body.Note,
		SupplierInfo: body.SupplierInfo,
		Reason:       body.Reason,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

// LinkReceipt records the goods-receipt back-reference.
func (h *HTTPHandler) LinkReceipt(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.requireActor(w, r)
	if !ok {
		return
	}

	var body struct {
		ReceiptID string `json:"receipt_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.writeError(w, errors.InvalidInput("body", "invalid request body"))
		return
	}

	p, err := h.proposals.LinkReceipt(r.Context(), chi.URLParam(r, "id"), body.ReceiptID, actorID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, p)
}

// AuditTrail returns the field-change history for a proposal.
func (h *HTTPHandler) AuditTrail(w http.ResponseWriter, r *http.Request) {
	entries, err := h.audit.History(r.Context(), service.EntityTypeProposal, chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

// ListTracking returns a proposal's order tracking timeline, newest first.
func (h *HTTPHandler) ListTracking(w http.ResponseWriter, r *http.Request) {
	entries, err := h.tracking.List(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

// AppendTracking adds one note to the timeline.
func (h *HTTPHandler) AppendTracking(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.requireActor(w, r)
	if !ok {
		return
	}

	var body struct {
		StatusContent string `json:"status_content"`
		Note          string `json:"note"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.writeError(w, errors.InvalidInput("body", "invalid request body"))
		return
	}

	entry, err := h.tracking.Append(r.Context(), chi.URLParam(r, "id"), body.StatusContent, body.Note, actorID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, entry)
}

// MyPermissions returns the caller's resolved permission codes for UI gating.
// Resolution never fails; an unknown caller simply gets an empty list.
func (h *HTTPHandler) MyPermissions(w http.ResponseWriter, r *http.Request) {
	set := h.permissions.Resolve(r.Context(), r.Header.Get(actorHeader))
	h.writeJSON(w, http.StatusOK, map[string]any{"permissions": set.Codes()})
}

// ── helpers ──────────────────────────────────────────────────────────────────

func (h *HTTPHandler) requireActor(w http.ResponseWriter, r *http.Request) (string, bool) {
	actorID := r.Header.Get(actorHeader)
	if actorID == "" {
		h.writeJSON(w, http.StatusUnauthorized, map[string]any{
			"error": map[string]any{"code": "unauthenticated", "message": "missing acting user"},
		})
		return "", false
	}
	return actorID, true
}

func (h *HTTPHandler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode response")
	}
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, err error) {
	h.writeJSON(w, errors.HTTPStatus(err), map[string]any{
		"error": map[string]any{
			"code":    errors.CodeOf(err),
			"message": errors.MessageOf(err),
		},
	})
}
