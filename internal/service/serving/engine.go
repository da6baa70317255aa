// Package serving implements the prescription serving workflow: merging
// serve requests, checking stock on hand and debiting stock per line item.
package serving

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/Lesotho-eLMIS/lesotho-dispensing/internal/domain/patient"
	"github.com/Lesotho-eLMIS/lesotho-dispensing/internal/domain/prescription"
	"github.com/Lesotho-eLMIS/lesotho-dispensing/internal/observability/metrics"
	"github.com/Lesotho-eLMIS/lesotho-dispensing/internal/referencedata"
	"github.com/Lesotho-eLMIS/lesotho-dispensing/internal/stock"
)

// ReferenceData is the subset of the reference data client the engine
// needs. Lookups return (nil, nil) for missing resources and an error only
// for communication failures.
type ReferenceData interface {
	FindOrderable(ctx context.Context, id uuid.UUID) (*referencedata.Orderable, error)
	FindLot(ctx context.Context, id uuid.UUID) (*referencedata.Lot, error)
	FindFacility(ctx context.Context, id uuid.UUID) (*referencedata.Facility, error)
}

// StockService is the subset of the stock client the engine needs.
type StockService interface {
	QueryStockOnHand(ctx context.Context, programID, facilityID uuid.UUID,
		orderableIDs []uuid.UUID, asOfDate time.Time, lotCode string) ([]stock.CardSummary, error)
	SubmitStockEvent(ctx context.Context, event stock.Event) error
}

// ErrVoided is returned when an operation targets a voided prescription.
var ErrVoided = errors.New("prescription is voided")

// Config holds engine configuration.
type Config struct {
	// DebitReasonID is the stock management reason attached to every
	// dispensing debit
	DebitReasonID uuid.UUID
}

// Engine executes the prescription lifecycle. Serve is the core: it walks
// line items strictly in order, one stock query and at most one debit per
// item, then persists the whole aggregate exactly once.
type Engine struct {
	repo     prescription.Repository
	patients patient.Repository
	refdata  ReferenceData
	stock    StockService
	cfg      Config
	metrics  *metrics.Metrics
	logger   *zap.Logger
	tracer   trace.Tracer
}

// New creates a serving engine. metrics may be nil.
func New(repo prescription.Repository, patients patient.Repository,
	refdata ReferenceData, stockSvc StockService, cfg Config,
	m *metrics.Metrics, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		repo:     repo,
		patients: patients,
		refdata:  refdata,
		stock:    stockSvc,
		cfg:      cfg,
		metrics:  m,
		logger:   logger,
		tracer:   otel.Tracer("serving-engine"),
	}
}

// Create registers a new prescription for an existing patient.
func (e *Engine) Create(ctx context.Context, dto *prescription.Dto) (*prescription.Dto, error) {
	ctx, span := e.tracer.Start(ctx, "prescription_create")
	defer span.End()

	if dto.PatientID == nil || *dto.PatientID == uuid.Nil {
		return nil, fmt.Errorf("patientId is required")
	}
	if _, err := e.patients.FindByID(ctx, *dto.PatientID); err != nil {
		return nil, fmt.Errorf("patient %s: %w", dto.PatientID, err)
	}

	p := prescription.FromDto(dto)
	span.SetAttributes(
		attribute.String("prescription_id", p.ID.String()),
		attribute.Int("line_items", len(p.LineItems)),
	)

	event, err := prescription.NewEvent(p.ID, prescription.EventPrescriptionCreated, prescription.CreatedData{
		PrescriptionID: p.ID,
		PatientID:      p.PatientID,
		FacilityID:     p.FacilityID,
		LineItemCount:  len(p.LineItems),
		CreatedAt:      time.Now().UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("build created event: %w", err)
	}

	saved, err := e.repo.Save(ctx, p, event)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if e.metrics != nil {
		e.metrics.PrescriptionsCreated.Inc()
	}
	e.logger.Info("prescription created",
		zap.String("prescription_id", saved.ID.String()),
		zap.String("patient_id", saved.PatientID.String()))
	return e.decorate(ctx, prescription.ToDto(saved)), nil
}

// Get returns a single prescription with display fields resolved.
func (e *Engine) Get(ctx context.Context, id uuid.UUID) (*prescription.Dto, error) {
	p, err := e.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return e.decorate(ctx, prescription.ToDto(p)), nil
}

// Search returns the prescriptions matching the criteria.
func (e *Engine) Search(ctx context.Context, criteria prescription.Criteria) ([]*prescription.Dto, error) {
	ctx, span := e.tracer.Start(ctx, "prescription_search")
	defer span.End()

	found, err := e.repo.FindAll(ctx, criteria)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	dtos := make([]*prescription.Dto, 0, len(found))
	for _, p := range found {
		dtos = append(dtos, e.decorate(ctx, prescription.ToDto(p)))
	}
	span.SetAttributes(attribute.Int("result_count", len(dtos)))
	return dtos, nil
}

// Update merges the non-nil fields of the request onto the stored
// aggregate. It never touches serving state or stock.
func (e *Engine) Update(ctx context.Context, id uuid.UUID, dto *prescription.Dto) (*prescription.Dto, error) {
	ctx, span := e.tracer.Start(ctx, "prescription_update",
		trace.WithAttributes(attribute.String("prescription_id", id.String())))
	defer span.End()

	p, err := e.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.IsVoided {
		return nil, ErrVoided
	}

	prescription.Merge(p, dto)

	event, err := prescription.NewEvent(p.ID, prescription.EventPrescriptionUpdated, prescription.CreatedData{
		PrescriptionID: p.ID,
		PatientID:      p.PatientID,
		FacilityID:     p.FacilityID,
		LineItemCount:  len(p.LineItems),
		CreatedAt:      time.Now().UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("build updated event: %w", err)
	}

	saved, err := e.repo.Save(ctx, p, event)
	if err != nil {
		span.RecordError(err)
		e.countConflict(err)
		return nil, err
	}
	return e.decorate(ctx, prescription.ToDto(saved)), nil
}

// Void marks a prescription logically deleted.
func (e *Engine) Void(ctx context.Context, id uuid.UUID) error {
	ctx, span := e.tracer.Start(ctx, "prescription_void",
		trace.WithAttributes(attribute.String("prescription_id", id.String())))
	defer span.End()

	p, err := e.repo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	p.Void()
	now := time.Now().UTC()
	p.LastUpdate = &now

	event, err := prescription.NewEvent(p.ID, prescription.EventPrescriptionVoided, prescription.VoidedData{
		PrescriptionID: p.ID,
		VoidedAt:       now,
	})
	if err != nil {
		return fmt.Errorf("build voided event: %w", err)
	}

	if _, err := e.repo.Save(ctx, p, event); err != nil {
		span.RecordError(err)
		e.countConflict(err)
		return err
	}
	if e.metrics != nil {
		e.metrics.PrescriptionsVoided.Inc()
	}
	e.logger.Info("prescription voided", zap.String("prescription_id", id.String()))
	return nil
}

// Serve runs a serving pass over the prescription. The request is merged
// first, then line items are processed strictly in order. Each unserved
// item gets one stock-on-hand query and, when stock suffices, one
// synchronous debit before its status is advanced. The aggregate is saved
// once, after the whole pass.
func (e *Engine) Serve(ctx context.Context, id uuid.UUID, dto *prescription.Dto) (*prescription.Dto, error) {
	ctx, span := e.tracer.Start(ctx, "prescription_serve",
		trace.WithAttributes(attribute.String("prescription_id", id.String())))
	defer span.End()

	start := time.Now()
	p, err := e.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.IsVoided {
		return nil, ErrVoided
	}

	prescription.ServeMerge(p, dto)

	today := time.Now().UTC()
	for _, li := range p.LineItems {
		if li.Status == prescription.LineItemFullyServed {
			continue
		}
		if err := e.serveLineItem(ctx, p, li, today); err != nil {
			span.RecordError(err)
			if e.metrics != nil {
				e.metrics.ServeFailures.Inc()
			}
			return nil, fmt.Errorf("serve line item %s: %w", li.ID, err)
		}
		if e.metrics != nil {
			e.metrics.LineItemOutcomes.WithLabelValues(string(li.Status)).Inc()
		}
	}

	p.DeriveStatus()
	p.LastUpdate = &today

	event, err := e.servedEvent(p, today)
	if err != nil {
		return nil, err
	}

	saved, err := e.repo.Save(ctx, p, event)
	if err != nil {
		span.RecordError(err)
		e.countConflict(err)
		if e.metrics != nil {
			e.metrics.ServeFailures.Inc()
		}
		return nil, err
	}

	if e.metrics != nil {
		e.metrics.PrescriptionsServed.Inc()
		e.metrics.ServeDuration.Observe(time.Since(start).Seconds())
	}
	e.logger.Info("prescription served",
		zap.String("prescription_id", saved.ID.String()),
		zap.String("status", string(saved.Status)),
		zap.Int("line_items", len(saved.LineItems)))
	span.SetAttributes(attribute.String("status", string(saved.Status)))
	return e.decorate(ctx, prescription.ToDto(saved)), nil
}

// serveLineItem processes one line item. Business shortfalls (unknown
// product, inadequate stock) become line item statuses and return nil; an
// error is returned only when a remote call fails, aborting the pass.
func (e *Engine) serveLineItem(ctx context.Context, p *prescription.Prescription,
	li *prescription.LineItem, today time.Time) error {

	orderableID := li.OrderableDispensed
	if orderableID == uuid.Nil {
		orderableID = li.OrderablePrescribed
	}
	if orderableID == uuid.Nil {
		li.Status = prescription.LineItemProductNotExist
		return nil
	}

	orderable, err := e.refdata.FindOrderable(ctx, orderableID)
	if err != nil {
		return fmt.Errorf("orderable lookup: %w", err)
	}
	if orderable == nil || len(orderable.Programs) == 0 {
		li.Status = prescription.LineItemProductNotExist
		return nil
	}
	if len(orderable.Programs) > 1 {
		e.logger.Warn("orderable has multiple program associations, using first",
			zap.String("orderable_id", orderableID.String()),
			zap.Int("programs", len(orderable.Programs)))
	}
	programID := orderable.Programs[0].ProgramID

	lotCode := ""
	if li.LotID != uuid.Nil {
		lot, err := e.refdata.FindLot(ctx, li.LotID)
		if err != nil {
			return fmt.Errorf("lot lookup: %w", err)
		}
		if lot != nil {
			lotCode = lot.LotCode
		}
	}

	summaries, err := e.stock.QueryStockOnHand(ctx, programID, p.FacilityID,
		[]uuid.UUID{orderableID}, today, lotCode)
	if err != nil {
		return fmt.Errorf("stock on hand query: %w", err)
	}
	if len(summaries) == 0 {
		li.Status = prescription.LineItemProductNotExist
		return nil
	}

	soh := 0
	for _, s := range summaries {
		soh += s.StockOnHand
	}
	if li.QuantityDispensed > soh {
		li.Status = prescription.LineItemInadequateStock
		return nil
	}

	debit := stock.Event{
		FacilityID: p.FacilityID,
		ProgramID:  programID,
		UserID:     p.ServedByUserID,
		AsOfDate:   today.Format("2006-01-02"),
		LineItems: []stock.EventLineItem{{
			OrderableID: orderableID,
			LotID:       li.LotID,
			Quantity:    li.QuantityDispensed,
			ReasonID:    e.cfg.DebitReasonID,
		}},
	}
	if err := e.stock.SubmitStockEvent(ctx, debit); err != nil {
		return fmt.Errorf("stock debit: %w", err)
	}
	if e.metrics != nil {
		e.metrics.StockDebitsSubmitted.Inc()
	}

	if li.RemainingBalance == 0 || (li.RemainingBalance > 0 && li.ServedExternally) {
		li.Status = prescription.LineItemFullyServed
	} else {
		li.Status = prescription.LineItemPartiallyServed
	}
	return nil
}

func (e *Engine) servedEvent(p *prescription.Prescription, servedAt time.Time) (*prescription.Event, error) {
	data := prescription.ServedData{
		PrescriptionID: p.ID,
		FacilityID:     p.FacilityID,
		PatientID:      p.PatientID,
		ServedByUserID: p.ServedByUserID,
		Status:         p.Status,
		ServedAt:       servedAt,
	}
	for _, li := range p.LineItems {
		data.LineItems = append(data.LineItems, prescription.ServedLineItem{
			LineItemID:         li.ID,
			OrderableDispensed: li.OrderableDispensed,
			LotID:              li.LotID,
			QuantityDispensed:  li.QuantityDispensed,
			RemainingBalance:   li.RemainingBalance,
			CollectBalanceDate: li.CollectBalanceDate,
			Status:             li.Status,
		})
	}
	event, err := prescription.NewEvent(p.ID, prescription.EventPrescriptionServed, data)
	if err != nil {
		return nil, fmt.Errorf("build served event: %w", err)
	}
	return event, nil
}

// decorate resolves display fields from reference data. Resolution is best
// effort: a failed lookup logs a warning and leaves the field empty rather
// than failing the read.
func (e *Engine) decorate(ctx context.Context, dto *prescription.Dto) *prescription.Dto {
	if dto == nil {
		return nil
	}
	if dto.FacilityID != nil && *dto.FacilityID != uuid.Nil {
		facility, err := e.refdata.FindFacility(ctx, *dto.FacilityID)
		if err != nil {
			e.logger.Warn("facility name resolution failed",
				zap.String("facility_id", dto.FacilityID.String()), zap.Error(err))
		} else if facility != nil {
			dto.FacilityName = facility.Name
		}
	}
	for _, li := range dto.LineItems {
		orderableID := uuid.Nil
		if li.OrderableDispensed != nil && *li.OrderableDispensed != uuid.Nil {
			orderableID = *li.OrderableDispensed
		} else if li.OrderablePrescribed != nil {
			orderableID = *li.OrderablePrescribed
		}
		if orderableID != uuid.Nil {
			orderable, err := e.refdata.FindOrderable(ctx, orderableID)
			if err != nil {
				e.logger.Warn("product name resolution failed",
					zap.String("orderable_id", orderableID.String()), zap.Error(err))
			} else if orderable != nil {
				li.ProductName = orderable.FullProductName
			}
		}
		if li.LotID != nil && *li.LotID != uuid.Nil {
			lot, err := e.refdata.FindLot(ctx, *li.LotID)
			if err != nil {
				e.logger.Warn("lot code resolution failed",
					zap.String("lot_id", li.LotID.String()), zap.Error(err))
			} else if lot != nil {
				li.LotCode = lot.LotCode
			}
		}
	}
	return dto
}

func (e *Engine) countConflict(err error) {
	if e.metrics == nil {
		return
	}
	if errors.Is(err, prescription.ErrVersionConflict) {
		e.metrics.VersionConflicts.Inc()
	}
}
