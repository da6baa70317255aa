// Package handlers provides HTTP handlers for the dispensing API.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Lesotho-eLMIS/lesotho-dispensing/internal/api/middleware"
	"github.com/Lesotho-eLMIS/lesotho-dispensing/internal/domain/patient"
	"github.com/Lesotho-eLMIS/lesotho-dispensing/internal/domain/prescription"
	"github.com/Lesotho-eLMIS/lesotho-dispensing/internal/referencedata"
	"github.com/Lesotho-eLMIS/lesotho-dispensing/internal/service/serving"
)

// PrescriptionHandler handles prescription endpoints
type PrescriptionHandler struct {
	engine   *serving.Engine
	patients patient.Repository
	logger   *zap.Logger
}

// NewPrescriptionHandler creates a new handler
func NewPrescriptionHandler(engine *serving.Engine, patients patient.Repository, logger *zap.Logger) *PrescriptionHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PrescriptionHandler{
		engine:   engine,
		patients: patients,
		logger:   logger,
	}
}

// Routes returns the handler routes
func (h *PrescriptionHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.Create)
	r.Get("/", h.Search)
	r.Get("/{id}", h.Get)
	r.Put("/{id}", h.Update)
	r.Post("/{id}/serve", h.Serve)
	r.Post("/{id}/void", h.Void)
	return r
}

// Create handles POST /api/prescription
func (h *PrescriptionHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var dto prescription.Dto
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	created, err := h.engine.Create(ctx, &dto)
	if err != nil {
		h.writeError(w, r, "create", err)
		return
	}

	h.logger.Info("prescription created",
		zap.String("id", created.ID.String()),
		zap.String("request_id", middleware.GetRequestID(ctx)))
	writeJSON(w, http.StatusCreated, created)
}

// Get handles GET /api/prescription/{id}
func (h *PrescriptionHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	dto, err := h.engine.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, r, "get", err)
		return
	}
	writeJSON(w, http.StatusOK, dto)
}

// Update handles PUT /api/prescription/{id}
func (h *PrescriptionHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	var dto prescription.Dto
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	updated, err := h.engine.Update(r.Context(), id, &dto)
	if err != nil {
		h.writeError(w, r, "update", err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// Serve handles POST /api/prescription/{id}/serve
func (h *PrescriptionHandler) Serve(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := parseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	var dto prescription.Dto
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	served, err := h.engine.Serve(ctx, id, &dto)
	if err != nil {
		h.writeError(w, r, "serve", err)
		return
	}

	h.logger.Info("prescription served",
		zap.String("id", id.String()),
		zap.String("status", string(served.Status)),
		zap.String("request_id", middleware.GetRequestID(ctx)))
	writeJSON(w, http.StatusOK, served)
}

// Void handles POST /api/prescription/{id}/void
func (h *PrescriptionHandler) Void(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	if err := h.engine.Void(r.Context(), id); err != nil {
		h.writeError(w, r, "void", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id.String(), "status": "voided"})
}

// Search handles GET /api/prescription. Patient demographic filters are
// resolved to patient ids first, then combined with the prescription
// filters.
func (h *PrescriptionHandler) Search(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	criteria := prescription.Criteria{PatientType: q.Get("patientType")}

	for _, raw := range splitParam(q.Get("status")) {
		criteria.Statuses = append(criteria.Statuses, prescription.Status(raw))
	}
	if raw := q.Get("isVoided"); raw != "" {
		switch strings.ToLower(raw) {
		case "true":
			v := true
			criteria.IsVoided = &v
		case "false":
			v := false
			criteria.IsVoided = &v
		default:
			jsonError(w, "invalid isVoided value", http.StatusBadRequest)
			return
		}
	}
	if raw := q.Get("followUpDate"); raw != "" {
		d, err := time.Parse("2006-01-02", raw)
		if err != nil {
			jsonError(w, "invalid followUpDate, expected YYYY-MM-DD", http.StatusBadRequest)
			return
		}
		criteria.FollowUpDate = &d
	}

	patientCriteria, hasPatientFilter, ok := parsePatientFilters(w, q)
	if !ok {
		return
	}
	if hasPatientFilter {
		matched, err := h.patients.FindAll(ctx, patientCriteria)
		if err != nil {
			h.writeError(w, r, "search", err)
			return
		}
		if len(matched) == 0 {
			writeJSON(w, http.StatusOK, []*prescription.Dto{})
			return
		}
		for _, p := range matched {
			criteria.PatientIDs = append(criteria.PatientIDs, p.ID)
		}
	}

	found, err := h.engine.Search(ctx, criteria)
	if err != nil {
		h.writeError(w, r, "search", err)
		return
	}
	if found == nil {
		found = []*prescription.Dto{}
	}
	writeJSON(w, http.StatusOK, found)
}

func parsePatientFilters(w http.ResponseWriter, q map[string][]string) (patient.Criteria, bool, bool) {
	get := func(key string) string {
		if vs := q[key]; len(vs) > 0 {
			return vs[0]
		}
		return ""
	}

	criteria := patient.Criteria{
		PatientNumber: get("patientNumber"),
		FirstName:     get("firstName"),
		LastName:      get("lastName"),
		NationalID:    get("nationalId"),
	}
	has := criteria.PatientNumber != "" || criteria.FirstName != "" ||
		criteria.LastName != "" || criteria.NationalID != ""

	if raw := get("dateOfBirth"); raw != "" {
		d, err := time.Parse("2006-01-02", raw)
		if err != nil {
			jsonError(w, "invalid dateOfBirth, expected YYYY-MM-DD", http.StatusBadRequest)
			return criteria, false, false
		}
		criteria.DateOfBirth = &d
		has = true
	}
	if raw := get("facilityId"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			jsonError(w, "invalid facilityId", http.StatusBadRequest)
			return criteria, false, false
		}
		criteria.FacilityID = &id
		has = true
	}
	return criteria, has, true
}

func (h *PrescriptionHandler) writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	requestID := middleware.GetRequestID(r.Context())

	var retrieval *referencedata.RetrievalError
	switch {
	case errors.Is(err, prescription.ErrNotFound), errors.Is(err, patient.ErrNotFound):
		jsonError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, prescription.ErrVersionConflict):
		jsonError(w, "prescription was modified concurrently, re-read and retry", http.StatusConflict)
	case errors.Is(err, serving.ErrVoided):
		jsonError(w, "prescription is voided", http.StatusBadRequest)
	case errors.As(err, &retrieval):
		h.logger.Error("remote service failure",
			zap.String("operation", op),
			zap.String("request_id", requestID),
			zap.Error(err))
		jsonError(w, "upstream service unavailable", http.StatusBadGateway)
	default:
		h.logger.Error("request failed",
			zap.String("operation", op),
			zap.String("request_id", requestID),
			zap.Error(err))
		jsonError(w, "internal error", http.StatusInternalServerError)
	}
}

func parseUUID(w http.ResponseWriter, raw string) (uuid.UUID, bool) {
	id, err := uuid.Parse(raw)
	if err != nil {
		jsonError(w, "invalid id", http.StatusBadRequest)
		return uuid.Nil, false
	}
	return id, true
}

func splitParam(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func writeJSON(w http.ResponseWriter, code int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(body)
}

func jsonError(w http.ResponseWriter, message string, code int) {
	writeJSON(w, code, map[string]string{"error": message})
}
