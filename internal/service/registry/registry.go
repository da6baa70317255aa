// Package registry implements patient registration and lookup.
package registry

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/Lesotho-eLMIS/lesotho-dispensing/internal/domain/patient"
	"github.com/Lesotho-eLMIS/lesotho-dispensing/internal/observability/metrics"
	"github.com/Lesotho-eLMIS/lesotho-dispensing/internal/referencedata"
)

// ErrUnknownFacility is returned when a registration names a facility the
// reference data service does not know.
var ErrUnknownFacility = errors.New("unknown facility")

// FacilityLookup resolves facilities from reference data.
type FacilityLookup interface {
	FindFacility(ctx context.Context, id uuid.UUID) (*referencedata.Facility, error)
}

// Registry manages patients. Patient numbers are drawn from the
// repository's per-facility counter at registration time.
type Registry struct {
	repo       patient.Repository
	facilities FacilityLookup
	metrics    *metrics.Metrics
	logger     *zap.Logger
	tracer     trace.Tracer
}

// New creates a patient registry. facilities and metrics may be nil.
func New(repo patient.Repository, facilities FacilityLookup, m *metrics.Metrics, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		repo:       repo,
		facilities: facilities,
		metrics:    m,
		logger:     logger,
		tracer:     otel.Tracer("patient-registry"),
	}
}

// Register creates a patient and allocates their facility-scoped number.
func (r *Registry) Register(ctx context.Context, dto *patient.Dto) (*patient.Dto, error) {
	ctx, span := r.tracer.Start(ctx, "patient_register")
	defer span.End()

	if dto.FacilityID == nil || *dto.FacilityID == uuid.Nil {
		return nil, fmt.Errorf("facilityId is required")
	}
	if r.facilities != nil {
		facility, err := r.facilities.FindFacility(ctx, *dto.FacilityID)
		if err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("facility lookup: %w", err)
		}
		if facility == nil {
			return nil, fmt.Errorf("facility %s: %w", dto.FacilityID, ErrUnknownFacility)
		}
	}

	p := patient.FromDto(dto)
	number, err := r.repo.NextPatientNumber(ctx, p.FacilityID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	p.PatientNumber = number

	saved, err := r.repo.Save(ctx, p)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if r.metrics != nil {
		r.metrics.PatientsRegistered.Inc()
	}
	r.logger.Info("patient registered",
		zap.String("patient_id", saved.ID.String()),
		zap.String("patient_number", saved.PatientNumber))
	span.SetAttributes(attribute.String("patient_id", saved.ID.String()))
	return patient.ToDto(saved), nil
}

// Get returns one patient.
func (r *Registry) Get(ctx context.Context, id uuid.UUID) (*patient.Dto, error) {
	p, err := r.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return patient.ToDto(p), nil
}

// Update merges non-nil fields onto the stored patient. The patient
// number is immutable after registration.
func (r *Registry) Update(ctx context.Context, id uuid.UUID, dto *patient.Dto) (*patient.Dto, error) {
	ctx, span := r.tracer.Start(ctx, "patient_update",
		trace.WithAttributes(attribute.String("patient_id", id.String())))
	defer span.End()

	p, err := r.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	patient.Merge(p, dto)

	saved, err := r.repo.Save(ctx, p)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return patient.ToDto(saved), nil
}

// Search returns patients matching the criteria.
func (r *Registry) Search(ctx context.Context, criteria patient.Criteria) ([]*patient.Dto, error) {
	found, err := r.repo.FindAll(ctx, criteria)
	if err != nil {
		return nil, err
	}
	dtos := make([]*patient.Dto, 0, len(found))
	for _, p := range found {
		dtos = append(dtos, patient.ToDto(p))
	}
	return dtos, nil
}
