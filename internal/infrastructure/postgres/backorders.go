package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/Lesotho-eLMIS/lesotho-dispensing/internal/domain/backorder"
)

// BackorderStore is the PostgreSQL backorder.Repository.
type BackorderStore struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
	tracer trace.Tracer
}

// NewBackorderStore creates a backorder store.
func NewBackorderStore(pool *pgxpool.Pool, logger *zap.Logger) *BackorderStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BackorderStore{
		pool:   pool,
		logger: logger,
		tracer: otel.Tracer("backorder-store"),
	}
}

// Upsert inserts the backorder, or refreshes the outstanding quantity when
// one already exists for the line item. The unique index on line_item_id
// makes replayed events converge instead of duplicating rows.
func (s *BackorderStore) Upsert(ctx context.Context, b *backorder.Backorder) (*backorder.Backorder, error) {
	ctx, span := s.tracer.Start(ctx, "backorder_upsert",
		trace.WithAttributes(attribute.String("line_item_id", b.LineItemID.String())))
	defer span.End()

	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now().UTC()
	}

	err := s.pool.QueryRow(ctx, `
		INSERT INTO backorders (
			id, prescription_id, line_item_id, patient_id, facility_id,
			orderable_id, quantity_outstanding, collect_balance_date, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (line_item_id) DO UPDATE SET
			quantity_outstanding = EXCLUDED.quantity_outstanding,
			collect_balance_date = EXCLUDED.collect_balance_date
		RETURNING id, created_at`,
		b.ID, b.PrescriptionID, b.LineItemID, b.PatientID, b.FacilityID,
		b.OrderableID, b.QuantityOutstanding, b.CollectBalanceDate, b.CreatedAt,
	).Scan(&b.ID, &b.CreatedAt)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("upsert backorder: %w", err)
	}
	return b, nil
}

func (s *BackorderStore) FindByFacility(ctx context.Context, facilityID uuid.UUID) ([]*backorder.Backorder, error) {
	ctx, span := s.tracer.Start(ctx, "backorder_find_by_facility",
		trace.WithAttributes(attribute.String("facility_id", facilityID.String())))
	defer span.End()

	rows, err := s.pool.Query(ctx, `
		SELECT id, prescription_id, line_item_id, patient_id, facility_id,
		       orderable_id, quantity_outstanding, collect_balance_date, created_at
		FROM backorders
		WHERE facility_id = $1
		ORDER BY created_at`, facilityID)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("query backorders: %w", err)
	}
	defer rows.Close()

	var out []*backorder.Backorder
	for rows.Next() {
		b := &backorder.Backorder{}
		err := rows.Scan(
			&b.ID, &b.PrescriptionID, &b.LineItemID, &b.PatientID, &b.FacilityID,
			&b.OrderableID, &b.QuantityOutstanding, &b.CollectBalanceDate, &b.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan backorder: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *BackorderStore) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM backorders WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete backorder: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("backorder %s not found", id)
	}
	return nil
}
