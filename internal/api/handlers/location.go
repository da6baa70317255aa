package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/Lesotho-eLMIS/lesotho-dispensing/internal/api/middleware"
	"github.com/Lesotho-eLMIS/lesotho-dispensing/internal/domain/location"
)

// LocationHandler handles catchment location endpoints
type LocationHandler struct {
	repo   location.Repository
	logger *zap.Logger
}

// NewLocationHandler creates a new handler
func NewLocationHandler(repo location.Repository, logger *zap.Logger) *LocationHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LocationHandler{repo: repo, logger: logger}
}

// Routes returns the handler routes
func (h *LocationHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.Create)
	r.Get("/{id}", h.Get)
	return r
}

// Create handles POST /api/location
func (h *LocationHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var dto location.Dto
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	saved, err := h.repo.Save(ctx, location.FromDto(&dto))
	if err != nil {
		h.writeError(w, r, "create", err)
		return
	}

	h.logger.Info("location created",
		zap.String("id", saved.ID.String()),
		zap.String("request_id", middleware.GetRequestID(ctx)))
	writeJSON(w, http.StatusCreated, location.ToDto(saved))
}

// Get handles GET /api/location/{id}
func (h *LocationHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	l, err := h.repo.FindByID(r.Context(), id)
	if err != nil {
		h.writeError(w, r, "get", err)
		return
	}
	writeJSON(w, http.StatusOK, location.ToDto(l))
}

func (h *LocationHandler) writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	switch {
	case errors.Is(err, location.ErrNotFound):
		jsonError(w, err.Error(), http.StatusNotFound)
	default:
		h.logger.Error("request failed",
			zap.String("operation", op),
			zap.String("request_id", middleware.GetRequestID(r.Context())),
			zap.Error(err))
		jsonError(w, "internal error", http.StatusInternalServerError)
	}
}
