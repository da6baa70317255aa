package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/Lesotho-eLMIS/lesotho-dispensing/internal/domain/location"
)

// LocationStore is the PostgreSQL location.Repository.
type LocationStore struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
	tracer trace.Tracer
}

// NewLocationStore creates a location store.
func NewLocationStore(pool *pgxpool.Pool, logger *zap.Logger) *LocationStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LocationStore{
		pool:   pool,
		logger: logger,
		tracer: otel.Tracer("location-store"),
	}
}

func (s *LocationStore) FindByID(ctx context.Context, id uuid.UUID) (*location.Location, error) {
	ctx, span := s.tracer.Start(ctx, "location_find_by_id",
		trace.WithAttributes(attribute.String("location_id", id.String())))
	defer span.End()

	var l location.Location
	err := s.pool.QueryRow(ctx,
		`SELECT id, district, village, constituency, chief FROM locations WHERE id = $1`, id).
		Scan(&l.ID, &l.District, &l.Village, &l.Constituency, &l.Chief)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, location.ErrNotFound
	}
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("query location: %w", err)
	}
	return &l, nil
}

func (s *LocationStore) Save(ctx context.Context, l *location.Location) (*location.Location, error) {
	ctx, span := s.tracer.Start(ctx, "location_save",
		trace.WithAttributes(attribute.String("location_id", l.ID.String())))
	defer span.End()

	_, err := s.pool.Exec(ctx, `
		INSERT INTO locations (id, district, village, constituency, chief)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			district = EXCLUDED.district,
			village = EXCLUDED.village,
			constituency = EXCLUDED.constituency,
			chief = EXCLUDED.chief`,
		l.ID, l.District, l.Village, l.Constituency, l.Chief)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("save location: %w", err)
	}

	s.logger.Debug("location saved", zap.String("location_id", l.ID.String()))
	saved := *l
	return &saved, nil
}
