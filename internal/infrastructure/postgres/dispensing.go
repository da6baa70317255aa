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

	"github.com/Lesotho-eLMIS/lesotho-dispensing/internal/domain/dispensing"
)

// DispensingEventStore is the PostgreSQL dispensing.Repository.
// Discrepancies are stored as a jsonb document on the event row.
type DispensingEventStore struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
	tracer trace.Tracer
}

// NewDispensingEventStore creates a dispensing event store.
func NewDispensingEventStore(pool *pgxpool.Pool, logger *zap.Logger) *DispensingEventStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DispensingEventStore{
		pool:   pool,
		logger: logger,
		tracer: otel.Tracer("dispensing-event-store"),
	}
}

const dispensingColumns = `
	id, source_id, source_free_text, destination_id, destination_free_text,
	reference_number, packing_date, packed_by,
	cartons_quantity_on_waybill, cartons_quantity_shipped,
	cartons_quantity_accepted, cartons_quantity_rejected,
	containers_quantity_on_waybill, containers_quantity_shipped,
	containers_quantity_accepted, containers_quantity_rejected,
	remarks, status, discrepancies
`

func (s *DispensingEventStore) FindByID(ctx context.Context, id uuid.UUID) (*dispensing.Event, error) {
	ctx, span := s.tracer.Start(ctx, "dispensing_event_find_by_id",
		trace.WithAttributes(attribute.String("event_id", id.String())))
	defer span.End()

	row := s.pool.QueryRow(ctx,
		`SELECT `+dispensingColumns+` FROM dispensing_events WHERE id = $1`, id)
	ev, err := scanDispensingEvent(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, dispensing.ErrNotFound
	}
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("query dispensing event: %w", err)
	}
	return ev, nil
}

func (s *DispensingEventStore) FindByDestinationID(ctx context.Context, destinationID uuid.UUID) ([]*dispensing.Event, error) {
	ctx, span := s.tracer.Start(ctx, "dispensing_event_find_by_destination",
		trace.WithAttributes(attribute.String("destination_id", destinationID.String())))
	defer span.End()

	rows, err := s.pool.Query(ctx,
		`SELECT `+dispensingColumns+` FROM dispensing_events
		 WHERE destination_id = $1 ORDER BY packing_date DESC NULLS LAST`, destinationID)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("query dispensing events: %w", err)
	}
	defer rows.Close()

	var out []*dispensing.Event
	for rows.Next() {
		ev, err := scanDispensingEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan dispensing event: %w", err)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (s *DispensingEventStore) Save(ctx context.Context, ev *dispensing.Event) (*dispensing.Event, error) {
	ctx, span := s.tracer.Start(ctx, "dispensing_event_save",
		trace.WithAttributes(attribute.String("event_id", ev.ID.String())))
	defer span.End()

	discrepancies, err := json.Marshal(ev.Discrepancies)
	if err != nil {
		return nil, fmt.Errorf("marshal discrepancies: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO dispensing_events (`+dispensingColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
		        $15, $16, $17, $18, $19)
		ON CONFLICT (id) DO UPDATE SET
			source_id = EXCLUDED.source_id,
			source_free_text = EXCLUDED.source_free_text,
			destination_id = EXCLUDED.destination_id,
			destination_free_text = EXCLUDED.destination_free_text,
			reference_number = EXCLUDED.reference_number,
			packing_date = EXCLUDED.packing_date,
			packed_by = EXCLUDED.packed_by,
			cartons_quantity_on_waybill = EXCLUDED.cartons_quantity_on_waybill,
			cartons_quantity_shipped = EXCLUDED.cartons_quantity_shipped,
			cartons_quantity_accepted = EXCLUDED.cartons_quantity_accepted,
			cartons_quantity_rejected = EXCLUDED.cartons_quantity_rejected,
			containers_quantity_on_waybill = EXCLUDED.containers_quantity_on_waybill,
			containers_quantity_shipped = EXCLUDED.containers_quantity_shipped,
			containers_quantity_accepted = EXCLUDED.containers_quantity_accepted,
			containers_quantity_rejected = EXCLUDED.containers_quantity_rejected,
			remarks = EXCLUDED.remarks,
			status = EXCLUDED.status,
			discrepancies = EXCLUDED.discrepancies`,
		ev.ID, ev.SourceID, ev.SourceFreeText, ev.DestinationID, ev.DestinationFreeText,
		ev.ReferenceNumber, ev.PackingDate, ev.PackedBy,
		ev.CartonsQuantityOnWaybill, ev.CartonsQuantityShipped,
		ev.CartonsQuantityAccepted, ev.CartonsQuantityRejected,
		ev.ContainersQuantityOnWaybill, ev.ContainersQuantityShipped,
		ev.ContainersQuantityAccepted, ev.ContainersQuantityRejected,
		ev.Remarks, ev.Status, discrepancies,
	)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("save dispensing event: %w", err)
	}
	return ev, nil
}

func (s *DispensingEventStore) Delete(ctx context.Context, id uuid.UUID) error {
	ctx, span := s.tracer.Start(ctx, "dispensing_event_delete",
		trace.WithAttributes(attribute.String("event_id", id.String())))
	defer span.End()

	tag, err := s.pool.Exec(ctx, `DELETE FROM dispensing_events WHERE id = $1`, id)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("delete dispensing event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return dispensing.ErrNotFound
	}
	return nil
}

func scanDispensingEvent(row pgx.Row) (*dispensing.Event, error) {
	ev := &dispensing.Event{}
	var discrepancies []byte
	err := row.Scan(
		&ev.ID, &ev.SourceID, &ev.SourceFreeText, &ev.DestinationID,
		&ev.DestinationFreeText, &ev.ReferenceNumber, &ev.PackingDate, &ev.PackedBy,
		&ev.CartonsQuantityOnWaybill, &ev.CartonsQuantityShipped,
		&ev.CartonsQuantityAccepted, &ev.CartonsQuantityRejected,
		&ev.ContainersQuantityOnWaybill, &ev.ContainersQuantityShipped,
		&ev.ContainersQuantityAccepted, &ev.ContainersQuantityRejected,
		&ev.Remarks, &ev.Status, &discrepancies,
	)
	if err != nil {
		return nil, err
	}
	if len(discrepancies) > 0 {
		if err := json.Unmarshal(discrepancies, &ev.Discrepancies); err != nil {
			return nil, fmt.Errorf("unmarshal discrepancies: %w", err)
		}
	}
	return ev, nil
}
