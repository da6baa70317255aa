package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/Lesotho-eLMIS/lesotho-dispensing/internal/domain/prescription"
	"github.com/Lesotho-eLMIS/lesotho-dispensing/internal/infrastructure/redpanda"
)

// PrescriptionStore is the PostgreSQL prescription.Repository. Saves are
// whole-aggregate and guarded by an optimistic version check; outbox
// entries are written in the same transaction.
type PrescriptionStore struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
	tracer trace.Tracer
}

// NewPrescriptionStore creates a prescription store on the given pool.
func NewPrescriptionStore(pool *pgxpool.Pool, logger *zap.Logger) *PrescriptionStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PrescriptionStore{
		pool:   pool,
		logger: logger,
		tracer: otel.Tracer("prescription-store"),
	}
}

const prescriptionColumns = `
	id, version, patient_id, patient_type, follow_up_date, issue_date,
	created_date, captured_date, last_update, is_voided, facility_id,
	prescribed_by_user_id, served_by_user_id, status
`

const lineItemColumns = `
	id, prescription_id, dose, dose_units, dose_frequency, route, duration,
	duration_units, additional_instructions, orderable_prescribed,
	quantity_prescribed, orderable_dispensed, lot_id, quantity_dispensed,
	remaining_balance, served_externally, comments, collect_balance_date, status
`

func (s *PrescriptionStore) FindByID(ctx context.Context, id uuid.UUID) (*prescription.Prescription, error) {
	ctx, span := s.tracer.Start(ctx, "prescription_find_by_id",
		trace.WithAttributes(attribute.String("prescription_id", id.String())))
	defer span.End()

	row := s.pool.QueryRow(ctx,
		`SELECT `+prescriptionColumns+` FROM prescriptions WHERE id = $1`, id)
	p, err := scanPrescription(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, prescription.ErrNotFound
	}
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("query prescription: %w", err)
	}

	if err := s.loadLineItems(ctx, p); err != nil {
		span.RecordError(err)
		return nil, err
	}
	return p, nil
}

func (s *PrescriptionStore) loadLineItems(ctx context.Context, p *prescription.Prescription) error {
	rows, err := s.pool.Query(ctx,
		`SELECT `+lineItemColumns+` FROM prescription_line_items
		 WHERE prescription_id = $1 ORDER BY position`, p.ID)
	if err != nil {
		return fmt.Errorf("query line items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		li := &prescription.LineItem{}
		err := rows.Scan(
			&li.ID, &li.PrescriptionID, &li.Dose, &li.DoseUnits, &li.DoseFrequency,
			&li.Route, &li.Duration, &li.DurationUnits, &li.AdditionalInstructions,
			&li.OrderablePrescribed, &li.QuantityPrescribed, &li.OrderableDispensed,
			&li.LotID, &li.QuantityDispensed, &li.RemainingBalance,
			&li.ServedExternally, &li.Comments, &li.CollectBalanceDate, &li.Status,
		)
		if err != nil {
			return fmt.Errorf("scan line item: %w", err)
		}
		p.LineItems = append(p.LineItems, li)
	}
	return rows.Err()
}

// Save upserts the aggregate. The version check and increment run in the
// UPDATE itself: an affected row count of zero on an existing row means a
// concurrent writer won and ErrVersionConflict is returned. Line items are
// replaced wholesale and events land in the outbox, all in one transaction.
func (s *PrescriptionStore) Save(ctx context.Context, p *prescription.Prescription, events ...*prescription.Event) (*prescription.Prescription, error) {
	ctx, span := s.tracer.Start(ctx, "prescription_save",
		trace.WithAttributes(
			attribute.String("prescription_id", p.ID.String()),
			attribute.Int64("version", p.Version),
		))
	defer span.End()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	newVersion := p.Version + 1
	if p.Version == 0 {
		tag, err := tx.Exec(ctx, `
			INSERT INTO prescriptions (`+prescriptionColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
			ON CONFLICT (id) DO NOTHING`,
			p.ID, newVersion, p.PatientID, p.PatientType, p.FollowUpDate, p.IssueDate,
			p.CreatedDate, p.CapturedDate, p.LastUpdate, p.IsVoided, p.FacilityID,
			p.PrescribedByUserID, p.ServedByUserID, p.Status,
		)
		if err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("insert prescription: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return nil, prescription.ErrVersionConflict
		}
	} else {
		tag, err := tx.Exec(ctx, `
			UPDATE prescriptions SET
				version = $2, patient_id = $3, patient_type = $4,
				follow_up_date = $5, issue_date = $6, created_date = $7,
				captured_date = $8, last_update = $9, is_voided = $10,
				facility_id = $11, prescribed_by_user_id = $12,
				served_by_user_id = $13, status = $14
			WHERE id = $1 AND version = $15`,
			p.ID, newVersion, p.PatientID, p.PatientType, p.FollowUpDate, p.IssueDate,
			p.CreatedDate, p.CapturedDate, p.LastUpdate, p.IsVoided, p.FacilityID,
			p.PrescribedByUserID, p.ServedByUserID, p.Status, p.Version,
		)
		if err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("update prescription: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return nil, prescription.ErrVersionConflict
		}
	}

	// Replace the line item collection, deleting orphans.
	if _, err := tx.Exec(ctx,
		`DELETE FROM prescription_line_items WHERE prescription_id = $1`, p.ID); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("delete line items: %w", err)
	}
	for pos, li := range p.LineItems {
		if _, err := tx.Exec(ctx, `
			INSERT INTO prescription_line_items (`+lineItemColumns+`, position)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
			        $15, $16, $17, $18, $19, $20)`,
			li.ID, p.ID, li.Dose, li.DoseUnits, li.DoseFrequency, li.Route,
			li.Duration, li.DurationUnits, li.AdditionalInstructions,
			li.OrderablePrescribed, li.QuantityPrescribed, li.OrderableDispensed,
			li.LotID, li.QuantityDispensed, li.RemainingBalance, li.ServedExternally,
			li.Comments, li.CollectBalanceDate, li.Status, pos,
		); err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("insert line item: %w", err)
		}
	}

	for _, event := range events {
		// The full envelope goes on the wire so consumers can dispatch
		// on event_type without reading the outbox row.
		payload, err := json.Marshal(event)
		if err != nil {
			return nil, fmt.Errorf("marshal event: %w", err)
		}
		entry := &OutboxEntry{
			AggregateID:   event.AggregateID,
			AggregateType: event.AggregateType,
			EventType:     string(event.EventType),
			Payload:       payload,
			KafkaTopic:    redpanda.TopicPrescriptionEvents,
			KafkaKey:      event.AggregateID,
		}
		if err := WriteEntry(ctx, tx, entry); err != nil {
			span.RecordError(err)
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("commit: %w", err)
	}

	saved := *p
	saved.Version = newVersion
	return &saved, nil
}

func (s *PrescriptionStore) FindAll(ctx context.Context, criteria prescription.Criteria) ([]*prescription.Prescription, error) {
	ctx, span := s.tracer.Start(ctx, "prescription_find_all")
	defer span.End()

	// Fetch candidates on the indexed filters, then apply the composed
	// predicate so SQL and in-memory search share one matching semantics.
	query := `SELECT ` + prescriptionColumns + ` FROM prescriptions`
	var args []interface{}
	if len(criteria.PatientIDs) > 0 {
		query += ` WHERE patient_id = ANY($1)`
		args = append(args, criteria.PatientIDs)
	}
	query += ` ORDER BY created_date DESC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("query prescriptions: %w", err)
	}
	defer rows.Close()

	var candidates []*prescription.Prescription
	for rows.Next() {
		p, err := scanPrescription(rows)
		if err != nil {
			return nil, fmt.Errorf("scan prescription: %w", err)
		}
		candidates = append(candidates, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	match := criteria.Predicate()
	var out []*prescription.Prescription
	for _, p := range candidates {
		if !match(p) {
			continue
		}
		if err := s.loadLineItems(ctx, p); err != nil {
			span.RecordError(err)
			return nil, err
		}
		out = append(out, p)
	}
	span.SetAttributes(attribute.Int("result_count", len(out)))
	return out, nil
}

func scanPrescription(row pgx.Row) (*prescription.Prescription, error) {
	p := &prescription.Prescription{}
	err := row.Scan(
		&p.ID, &p.Version, &p.PatientID, &p.PatientType, &p.FollowUpDate,
		&p.IssueDate, &p.CreatedDate, &p.CapturedDate, &p.LastUpdate,
		&p.IsVoided, &p.FacilityID, &p.PrescribedByUserID, &p.ServedByUserID,
		&p.Status,
	)
	if err != nil {
		return nil, err
	}
	return p, nil
}
