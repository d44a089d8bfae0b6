package recruitmenthandler

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"hradmin/internal/domain/access"
	"hradmin/internal/domain/audit"
	"hradmin/internal/domain/modules"
	"hradmin/internal/domain/recruitment"
	"hradmin/internal/transport/http/api"
	"hradmin/internal/transport/http/middleware"
	"hradmin/internal/transport/http/shared"
)

type Pipeline interface {
	ListOpenings(ctx context.Context, organizationID string) ([]recruitment.Opening, error)
	GetOpening(ctx context.Context, organizationID, id string) (recruitment.Opening, error)
	CreateOpening(ctx context.Context, organizationID string, o recruitment.Opening) (string, error)
	UpdateOpening(ctx context.Context, organizationID, id string, o recruitment.Opening) (bool, error)
	DeleteOpening(ctx context.Context, organizationID, id string) (bool, error)
	ListCandidates(ctx context.Context, organizationID, openingID string) ([]recruitment.Candidate, error)
	AddCandidate(ctx context.Context, organizationID string, c recruitment.Candidate) (string, error)
	Approve(ctx context.Context, organizationID, candidateID, actorID string) (recruitment.Candidate, error)
	Reject(ctx context.Context, organizationID, candidateID, actorID string) (recruitment.Candidate, error)
}

type Handler struct {
	Pipeline Pipeline
	Audit    audit.Recorder
	Guard    middleware.Guard
}

func NewHandler(p Pipeline, rec audit.Recorder, guard middleware.Guard) *Handler {
	return &Handler{Pipeline: p, Audit: rec, Guard: guard}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/openings", func(r chi.Router) {
		r.With(h.Guard(modules.Recruitment, access.ActionRead)).Get("/", h.handleListOpenings)
		r.With(h.Guard(modules.Recruitment, access.ActionWrite)).Post("/", h.handleCreateOpening)
		r.Route("/{openingID}", func(r chi.Router) {
			r.With(h.Guard(modules.Recruitment, access.ActionRead)).Get("/", h.handleGetOpening)
			r.With(h.Guard(modules.Recruitment, access.ActionUpdate)).Put("/", h.handleUpdateOpening)
			r.With(h.Guard(modules.Recruitment, access.ActionDelete)).Delete("/", h.handleDeleteOpening)
			r.With(h.Guard(modules.Recruitment, access.ActionRead)).Get("/candidates", h.handleListCandidates)
			r.With(h.Guard(modules.Recruitment, access.ActionWrite)).Post("/candidates", h.handleCreateCandidate)
		})
	})
	r.Route("/candidates/{candidateID}", func(r chi.Router) {
		r.With(h.Guard(modules.Recruitment, access.ActionApprove)).Post("/approve", h.handleDecide(recruitment.CandidateApproved))
		r.With(h.Guard(modules.Recruitment, access.ActionApprove)).Post("/reject", h.handleDecide(recruitment.CandidateRejected))
	})
}

type openingPayload struct {
	Title        string `json:"title"`
	DepartmentID string `json:"departmentId"`
	Description  string `json:"description"`
	Openings     int    `json:"openings"`
	Status       string `json:"status"`
}

func (p openingPayload) opening(w http.ResponseWriter, r *http.Request) (recruitment.Opening, bool) {
	o := recruitment.Opening{
		Title:        p.Title,
		DepartmentID: p.DepartmentID,
		Description:  p.Description,
		Openings:     p.Openings,
		Status:       p.Status,
	}
	o.Normalize()
	v := shared.NewValidator()
	v.Required("title", o.Title, "is required")
	v.ID("departmentId", o.DepartmentID)
	v.Enum("status", o.Status, recruitment.OpeningStatuses, "must be one of draft, open, closed")
	if v.Reject(w, middleware.GetRequestID(r.Context())) {
		return recruitment.Opening{}, false
	}
	return o, true
}

func (h *Handler) handleListOpenings(w http.ResponseWriter, r *http.Request) {
	openings, err := h.Pipeline.ListOpenings(r.Context(), middleware.OrganizationID(r.Context()))
	if err != nil {
		shared.StoreError(w, r, err, "opening", "opening_list_failed")
		return
	}
	if openings == nil {
		openings = []recruitment.Opening{}
	}
	api.Success(w, openings, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleGetOpening(w http.ResponseWriter, r *http.Request) {
	o, err := h.Pipeline.GetOpening(r.Context(), middleware.OrganizationID(r.Context()), chi.URLParam(r, "openingID"))
	if err != nil {
		shared.StoreError(w, r, err, "opening", "opening_fetch_failed")
		return
	}
	api.Success(w, o, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleCreateOpening(w http.ResponseWriter, r *http.Request) {
	var payload openingPayload
	if !shared.DecodeJSON(w, r, &payload) {
		return
	}
	o, ok := payload.opening(w, r)
	if !ok {
		return
	}
	id, err := h.Pipeline.CreateOpening(r.Context(), middleware.OrganizationID(r.Context()), o)
	if err != nil {
		shared.StoreError(w, r, err, "opening", "opening_create_failed")
		return
	}
	o.ID = id
	shared.Audit(r, h.Audit, "recruitment.opening.create", "job_opening", id, nil, o)
	api.Created(w, map[string]string{"id": id}, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleUpdateOpening(w http.ResponseWriter, r *http.Request) {
	organizationID := middleware.OrganizationID(r.Context())
	openingID := chi.URLParam(r, "openingID")
	var payload openingPayload
	if !shared.DecodeJSON(w, r, &payload) {
		return
	}
	o, ok := payload.opening(w, r)
	if !ok {
		return
	}
	before, err := h.Pipeline.GetOpening(r.Context(), organizationID, openingID)
	if err != nil {
		shared.StoreError(w, r, err, "opening", "opening_update_failed")
		return
	}
	updated, err := h.Pipeline.UpdateOpening(r.Context(), organizationID, openingID, o)
	if err != nil {
		shared.StoreError(w, r, err, "opening", "opening_update_failed")
		return
	}
	if !updated {
		api.Fail(w, http.StatusNotFound, "not_found", "opening not found", middleware.GetRequestID(r.Context()))
		return
	}
	o.ID = openingID
	shared.Audit(r, h.Audit, "recruitment.opening.update", "job_opening", openingID, before, o)
	api.Success(w, map[string]string{"id": openingID}, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleDeleteOpening(w http.ResponseWriter, r *http.Request) {
	openingID := chi.URLParam(r, "openingID")
	deleted, err := h.Pipeline.DeleteOpening(r.Context(), middleware.OrganizationID(r.Context()), openingID)
	if err != nil {
		shared.StoreError(w, r, err, "opening", "opening_delete_failed")
		return
	}
	if !deleted {
		api.Fail(w, http.StatusNotFound, "not_found", "opening not found", middleware.GetRequestID(r.Context()))
		return
	}
	shared.Audit(r, h.Audit, "recruitment.opening.delete", "job_opening", openingID, nil, nil)
	api.SuccessMessage(w, map[string]string{"id": openingID}, "opening deleted", middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleListCandidates(w http.ResponseWriter, r *http.Request) {
	organizationID := middleware.OrganizationID(r.Context())
	openingID := chi.URLParam(r, "openingID")
	if _, err := h.Pipeline.GetOpening(r.Context(), organizationID, openingID); err != nil {
		shared.StoreError(w, r, err, "opening", "candidate_list_failed")
		return
	}
	candidates, err := h.Pipeline.ListCandidates(r.Context(), organizationID, openingID)
	if err != nil {
		shared.StoreError(w, r, err, "candidate", "candidate_list_failed")
		return
	}
	if candidates == nil {
		candidates = []recruitment.Candidate{}
	}
	api.Success(w, candidates, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleCreateCandidate(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		FullName string `json:"fullName"`
		Email    string `json:"email"`
	}
	if !shared.DecodeJSON(w, r, &payload) {
		return
	}
	c := recruitment.Candidate{
		OpeningID: chi.URLParam(r, "openingID"),
		FullName:  payload.FullName,
		Email:     payload.Email,
		Status:    recruitment.CandidateApplied,
	}
	c.Normalize()

	v := shared.NewValidator()
	v.Required("fullName", c.FullName, "is required")
	v.Required("email", c.Email, "is required")
	v.Email("email", c.Email)
	if v.Reject(w, middleware.GetRequestID(r.Context())) {
		return
	}

	id, err := h.Pipeline.AddCandidate(r.Context(), middleware.OrganizationID(r.Context()), c)
	if errors.Is(err, recruitment.ErrOpeningClosed) {
		api.Fail(w, http.StatusConflict, "opening_closed", "job opening is not accepting candidates", middleware.GetRequestID(r.Context()))
		return
	}
	if err != nil {
		shared.StoreError(w, r, err, "candidate", "candidate_create_failed")
		return
	}
	c.ID = id
	shared.Audit(r, h.Audit, "recruitment.candidate.create", "candidate", id, nil, c)
	api.Created(w, map[string]string{"id": id}, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleDecide(status string) http.HandlerFunc {
	action := "recruitment.candidate.approve"
	if status == recruitment.CandidateRejected {
		action = "recruitment.candidate.reject"
	}
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := middleware.GetUser(r.Context())
		if !ok {
			api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
			return
		}
		organizationID := middleware.OrganizationID(r.Context())
		candidateID := chi.URLParam(r, "candidateID")

		decide := h.Pipeline.Approve
		if status == recruitment.CandidateRejected {
			decide = h.Pipeline.Reject
		}
		c, err := decide(r.Context(), organizationID, candidateID, user.UserID)
		if errors.Is(err, recruitment.ErrAlreadyDecided) {
			api.Fail(w, http.StatusConflict, "candidate_decided", "candidate has already been decided", middleware.GetRequestID(r.Context()))
			return
		}
		if err != nil {
			shared.StoreError(w, r, err, "candidate", "candidate_decision_failed")
			return
		}
		shared.Audit(r, h.Audit, action, "candidate", candidateID, map[string]string{"status": recruitment.CandidateApplied}, map[string]string{"status": c.Status})
		api.Success(w, c, middleware.GetRequestID(r.Context()))
	}
}
