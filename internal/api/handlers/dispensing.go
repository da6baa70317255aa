package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Lesotho-eLMIS/lesotho-dispensing/internal/api/middleware"
	"github.com/Lesotho-eLMIS/lesotho-dispensing/internal/domain/dispensing"
)

// DispensingHandler handles point-of-delivery event endpoints
type DispensingHandler struct {
	repo   dispensing.Repository
	logger *zap.Logger
}

// NewDispensingHandler creates a new handler
func NewDispensingHandler(repo dispensing.Repository, logger *zap.Logger) *DispensingHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DispensingHandler{repo: repo, logger: logger}
}

// Routes returns the handler routes
func (h *DispensingHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.Create)
	r.Get("/", h.ListByDestination)
	r.Get("/{id}", h.Get)
	r.Put("/{id}", h.Update)
	r.Delete("/{id}", h.Delete)
	return r
}

// Create handles POST /api/dispensingEvent
func (h *DispensingHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var dto dispensing.Dto
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	event := dispensing.FromDto(&dto)
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.Status == "" {
		event.Status = dispensing.StatusInitiated
	}

	saved, err := h.repo.Save(ctx, event)
	if err != nil {
		h.writeError(w, r, "create", err)
		return
	}

	h.logger.Info("dispensing event created",
		zap.String("id", saved.ID.String()),
		zap.String("request_id", middleware.GetRequestID(ctx)))
	writeJSON(w, http.StatusCreated, dispensing.ToDto(saved))
}

// Get handles GET /api/dispensingEvent/{id}
func (h *DispensingHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	event, err := h.repo.FindByID(r.Context(), id)
	if err != nil {
		h.writeError(w, r, "get", err)
		return
	}
	writeJSON(w, http.StatusOK, dispensing.ToDto(event))
}

// Update handles PUT /api/dispensingEvent/{id}
func (h *DispensingHandler) Update(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := parseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	var dto dispensing.Dto
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	event, err := h.repo.FindByID(ctx, id)
	if err != nil {
		h.writeError(w, r, "update", err)
		return
	}

	event.Merge(&dto)
	saved, err := h.repo.Save(ctx, event)
	if err != nil {
		h.writeError(w, r, "update", err)
		return
	}
	writeJSON(w, http.StatusOK, dispensing.ToDto(saved))
}

// Delete handles DELETE /api/dispensingEvent/{id}
func (h *DispensingHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := parseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	if err := h.repo.Delete(ctx, id); err != nil {
		h.writeError(w, r, "delete", err)
		return
	}

	h.logger.Info("dispensing event deleted",
		zap.String("id", id.String()),
		zap.String("request_id", middleware.GetRequestID(ctx)))
	w.WriteHeader(http.StatusNoContent)
}

// ListByDestination handles GET /api/dispensingEvent?destinationId=
func (h *DispensingHandler) ListByDestination(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("destinationId")
	if raw == "" {
		jsonError(w, "destinationId is required", http.StatusBadRequest)
		return
	}
	destinationID, err := uuid.Parse(raw)
	if err != nil {
		jsonError(w, "invalid destinationId", http.StatusBadRequest)
		return
	}

	events, err := h.repo.FindByDestinationID(r.Context(), destinationID)
	if err != nil {
		h.writeError(w, r, "list", err)
		return
	}

	dtos := make([]*dispensing.Dto, 0, len(events))
	for _, e := range events {
		dtos = append(dtos, dispensing.ToDto(e))
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *DispensingHandler) writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	switch {
	case errors.Is(err, dispensing.ErrNotFound):
		jsonError(w, err.Error(), http.StatusNotFound)
	default:
		h.logger.Error("request failed",
			zap.String("operation", op),
			zap.String("request_id", middleware.GetRequestID(r.Context())),
			zap.Error(err))
		jsonError(w, "internal error", http.StatusInternalServerError)
	}
}
