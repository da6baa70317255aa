package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Lesotho-eLMIS/lesotho-dispensing/internal/api/middleware"
	"github.com/Lesotho-eLMIS/lesotho-dispensing/internal/domain/patient"
	"github.com/Lesotho-eLMIS/lesotho-dispensing/internal/service/registry"
)

// PatientHandler handles patient endpoints
type PatientHandler struct {
	registry *registry.Registry
	logger   *zap.Logger
}

// NewPatientHandler creates a new handler
func NewPatientHandler(reg *registry.Registry, logger *zap.Logger) *PatientHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PatientHandler{registry: reg, logger: logger}
}

// Routes returns the handler routes
func (h *PatientHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.Register)
	r.Get("/", h.Search)
	r.Get("/{id}", h.Get)
	r.Put("/{id}", h.Update)
	return r
}

// Register handles POST /api/patient
func (h *PatientHandler) Register(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var dto patient.Dto
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	created, err := h.registry.Register(ctx, &dto)
	if err != nil {
		h.writeError(w, r, "register", err)
		return
	}

	h.logger.Info("patient registered",
		zap.String("id", created.ID.String()),
		zap.String("patient_number", created.PatientNumber),
		zap.String("request_id", middleware.GetRequestID(ctx)))
	writeJSON(w, http.StatusCreated, created)
}

// Get handles GET /api/patient/{id}
func (h *PatientHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	dto, err := h.registry.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, r, "get", err)
		return
	}
	writeJSON(w, http.StatusOK, dto)
}

// Update handles PUT /api/patient/{id}
func (h *PatientHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	var dto patient.Dto
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	updated, err := h.registry.Update(r.Context(), id, &dto)
	if err != nil {
		h.writeError(w, r, "update", err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// Search handles GET /api/patient
func (h *PatientHandler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	criteria := patient.Criteria{
		PatientNumber: q.Get("patientNumber"),
		FirstName:     q.Get("firstName"),
		LastName:      q.Get("lastName"),
		NationalID:    q.Get("nationalId"),
	}
	if raw := q.Get("dateOfBirth"); raw != "" {
		d, err := time.Parse("2006-01-02", raw)
		if err != nil {
			jsonError(w, "invalid dateOfBirth, expected YYYY-MM-DD", http.StatusBadRequest)
			return
		}
		criteria.DateOfBirth = &d
	}
	if raw := q.Get("facilityId"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			jsonError(w, "invalid facilityId", http.StatusBadRequest)
			return
		}
		criteria.FacilityID = &id
	}

	found, err := h.registry.Search(r.Context(), criteria)
	if err != nil {
		h.writeError(w, r, "search", err)
		return
	}
	if found == nil {
		found = []*patient.Dto{}
	}
	writeJSON(w, http.StatusOK, found)
}

func (h *PatientHandler) writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	switch {
	case errors.Is(err, patient.ErrNotFound):
		jsonError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, registry.ErrUnknownFacility):
		jsonError(w, err.Error(), http.StatusBadRequest)
	default:
		h.logger.Error("request failed",
			zap.String("operation", op),
			zap.String("request_id", middleware.GetRequestID(r.Context())),
			zap.Error(err))
		jsonError(w, "internal error", http.StatusInternalServerError)
	}
}
