package masterdatahandler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"hradmin/internal/domain/access"
	"hradmin/internal/domain/audit"
	"hradmin/internal/domain/masterdata"
	"hradmin/internal/domain/modules"
	"hradmin/internal/transport/http/api"
	"hradmin/internal/transport/http/middleware"
	"hradmin/internal/transport/http/shared"
)

type RecordService interface {
	List(ctx context.Context, organizationID string, kind masterdata.Kind) ([]masterdata.Record, error)
	Get(ctx context.Context, organizationID string, kind masterdata.Kind, id string) (masterdata.Record, error)
	Create(ctx context.Context, organizationID string, rec masterdata.Record) (string, error)
	Update(ctx context.Context, organizationID, id string, rec masterdata.Record) (bool, error)
	Delete(ctx context.Context, organizationID string, kind masterdata.Kind, id string) (bool, error)
	Export(ctx context.Context, organizationID string, kind masterdata.Kind) (masterdata.Export, error)
}

// Handler serves every master data list under one generic /{kind} route.
type Handler struct {
	Records RecordService
	Audit   audit.Recorder
	Guard   middleware.Guard
}

func NewHandler(svc RecordService, rec audit.Recorder, guard middleware.Guard) *Handler {
	return &Handler{Records: svc, Audit: rec, Guard: guard}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.With(h.Guard(modules.MasterData, access.ActionRead)).Get("/", h.handleKinds)
	r.Route("/{kind}", func(r chi.Router) {
		r.Use(requireKind)
		r.With(h.Guard(modules.MasterData, access.ActionRead)).Get("/", h.handleList)
		r.With(h.Guard(modules.MasterData, access.ActionWrite)).Post("/", h.handleCreate)
		r.With(h.Guard(modules.MasterData, access.ActionExport)).Get("/export", h.handleExport)
		r.With(h.Guard(modules.MasterData, access.ActionRead)).Get("/{recordID}", h.handleGet)
		r.With(h.Guard(modules.MasterData, access.ActionUpdate)).Put("/{recordID}", h.handleUpdate)
		r.With(h.Guard(modules.MasterData, access.ActionDelete)).Delete("/{recordID}", h.handleDelete)
	})
}

type kindKey struct{}

func requireKind(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		kind, err := masterdata.ParseKind(chi.URLParam(r, "kind"))
		if err != nil {
			api.Fail(w, http.StatusNotFound, "unknown_kind", "unknown master data kind", middleware.GetRequestID(r.Context()))
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), kindKey{}, kind)))
	})
}

func kindOf(r *http.Request) masterdata.Kind {
	kind, _ := r.Context().Value(kindKey{}).(masterdata.Kind)
	return kind
}

func (h *Handler) handleKinds(w http.ResponseWriter, r *http.Request) {
	api.Success(w, masterdata.Kinds, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	records, err := h.Records.List(r.Context(), middleware.OrganizationID(r.Context()), kindOf(r))
	if err != nil {
		shared.StoreError(w, r, err, "record", "master_data_list_failed")
		return
	}
	if records == nil {
		records = []masterdata.Record{}
	}
	api.Success(w, records, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	rec, err := h.Records.Get(r.Context(), middleware.OrganizationID(r.Context()), kindOf(r), chi.URLParam(r, "recordID"))
	if err != nil {
		shared.StoreError(w, r, err, "record", "master_data_fetch_failed")
		return
	}
	api.Success(w, rec, middleware.GetRequestID(r.Context()))
}

type recordPayload struct {
	Code       string          `json:"code"`
	Name       string          `json:"name"`
	ParentID   string          `json:"parentId"`
	Attributes json.RawMessage `json:"attributes"`
	IsActive   *bool           `json:"isActive"`
}

func (p recordPayload) record(w http.ResponseWriter, r *http.Request) (masterdata.Record, bool) {
	rec := masterdata.Record{
		Kind:       kindOf(r),
		Code:       p.Code,
		Name:       p.Name,
		ParentID:   p.ParentID,
		Attributes: p.Attributes,
		IsActive:   p.IsActive == nil || *p.IsActive,
	}
	rec.Normalize()

	v := shared.NewValidator()
	v.Required("code", rec.Code, "is required")
	v.Required("name", rec.Name, "is required")
	if !json.Valid(rec.Attributes) || rec.Attributes[0] != '{' {
		v.Add("attributes", "must be a JSON object")
	}
	if v.Reject(w, middleware.GetRequestID(r.Context())) {
		return masterdata.Record{}, false
	}
	return rec, true
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var payload recordPayload
	if !shared.DecodeJSON(w, r, &payload) {
		return
	}
	rec, ok := payload.record(w, r)
	if !ok {
		return
	}
	id, err := h.Records.Create(r.Context(), middleware.OrganizationID(r.Context()), rec)
	if err != nil {
		h.fail(w, r, err, "master_data_create_failed")
		return
	}
	rec.ID = id
	shared.Audit(r, h.Audit, "master_data.create", string(rec.Kind), id, nil, rec)
	api.Created(w, map[string]string{"id": id}, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	organizationID := middleware.OrganizationID(r.Context())
	recordID := chi.URLParam(r, "recordID")

	var payload recordPayload
	if !shared.DecodeJSON(w, r, &payload) {
		return
	}
	rec, ok := payload.record(w, r)
	if !ok {
		return
	}
	if rec.ParentID == recordID {
		shared.FailValidation(w, middleware.GetRequestID(r.Context()), []shared.ValidationIssue{{Field: "parentId", Reason: "must not reference the record itself"}})
		return
	}
	before, err := h.Records.Get(r.Context(), organizationID, rec.Kind, recordID)
	if err != nil {
		shared.StoreError(w, r, err, "record", "master_data_update_failed")
		return
	}
	updated, err := h.Records.Update(r.Context(), organizationID, recordID, rec)
	if err != nil {
		h.fail(w, r, err, "master_data_update_failed")
		return
	}
	if !updated {
		api.Fail(w, http.StatusNotFound, "not_found", "record not found", middleware.GetRequestID(r.Context()))
		return
	}
	rec.ID = recordID
	shared.Audit(r, h.Audit, "master_data.update", string(rec.Kind), recordID, before, rec)
	api.Success(w, map[string]string{"id": recordID}, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	kind := kindOf(r)
	recordID := chi.URLParam(r, "recordID")
	deleted, err := h.Records.Delete(r.Context(), middleware.OrganizationID(r.Context()), kind, recordID)
	if err != nil {
		if shared.IsForeignKeyViolation(err) {
			api.Fail(w, http.StatusConflict, "record_in_use", "record is referenced by other records", middleware.GetRequestID(r.Context()))
			return
		}
		shared.StoreError(w, r, err, "record", "master_data_delete_failed")
		return
	}
	if !deleted {
		api.Fail(w, http.StatusNotFound, "not_found", "record not found", middleware.GetRequestID(r.Context()))
		return
	}
	shared.Audit(r, h.Audit, "master_data.delete", string(kind), recordID, nil, nil)
	api.SuccessMessage(w, map[string]string{"id": recordID}, "record deleted", middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	kind := kindOf(r)
	export, err := h.Records.Export(r.Context(), middleware.OrganizationID(r.Context()), kind)
	if err != nil {
		shared.StoreError(w, r, err, "record", "master_data_export_failed")
		return
	}
	shared.Audit(r, h.Audit, "master_data.export", string(kind), "", nil, map[string]any{"count": export.Count})

	w.Header().Set("Content-Disposition", `attachment; filename="`+string(kind)+`.json"`)
	w.Header().Set("X-Total-Count", strconv.Itoa(export.Count))
	api.Success(w, export, middleware.GetRequestID(r.Context()))
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error, failCode string) {
	requestID := middleware.GetRequestID(r.Context())
	switch {
	case errors.Is(err, masterdata.ErrParentRequired):
		shared.FailValidation(w, requestID, []shared.ValidationIssue{{Field: "parentId", Reason: "must reference an existing parent record"}})
	case errors.Is(err, masterdata.ErrParentWrongKind):
		shared.FailValidation(w, requestID, []shared.ValidationIssue{{Field: "parentId", Reason: "references a record of the wrong kind"}})
	default:
		shared.StoreError(w, r, err, "record", failCode)
	}
}
