package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/Lesotho-eLMIS/lesotho-dispensing/internal/domain/patient"
)

// PatientStore is the PostgreSQL patient.Repository. Contacts and medical
// history ride along as jsonb documents; patient number allocation is a
// single atomic statement against a per-facility counter row.
type PatientStore struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
	tracer trace.Tracer
}

// NewPatientStore creates a patient store on the given pool.
func NewPatientStore(pool *pgxpool.Pool, logger *zap.Logger) *PatientStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PatientStore{
		pool:   pool,
		logger: logger,
		tracer: otel.Tracer("patient-store"),
	}
}

const patientColumns = `
	id, patient_number, facility_id, geo_zone_id, registration_date,
	person, medical_history
`

func (s *PatientStore) FindByID(ctx context.Context, id uuid.UUID) (*patient.Patient, error) {
	ctx, span := s.tracer.Start(ctx, "patient_find_by_id",
		trace.WithAttributes(attribute.String("patient_id", id.String())))
	defer span.End()

	row := s.pool.QueryRow(ctx, `SELECT `+patientColumns+` FROM patients WHERE id = $1`, id)
	p, err := scanPatient(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, patient.ErrNotFound
	}
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("query patient: %w", err)
	}
	return p, nil
}

func (s *PatientStore) Save(ctx context.Context, p *patient.Patient) (*patient.Patient, error) {
	ctx, span := s.tracer.Start(ctx, "patient_save",
		trace.WithAttributes(attribute.String("patient_id", p.ID.String())))
	defer span.End()

	person, err := json.Marshal(p.Person)
	if err != nil {
		return nil, fmt.Errorf("marshal person: %w", err)
	}
	history, err := json.Marshal(p.MedicalHistory)
	if err != nil {
		return nil, fmt.Errorf("marshal medical history: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO patients (`+patientColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			patient_number = EXCLUDED.patient_number,
			facility_id = EXCLUDED.facility_id,
			geo_zone_id = EXCLUDED.geo_zone_id,
			registration_date = EXCLUDED.registration_date,
			person = EXCLUDED.person,
			medical_history = EXCLUDED.medical_history`,
		p.ID, p.PatientNumber, p.FacilityID, p.GeoZoneID, p.RegistrationDate,
		person, history,
	)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("save patient: %w", err)
	}
	return p, nil
}

func (s *PatientStore) FindAll(ctx context.Context, criteria patient.Criteria) ([]*patient.Patient, error) {
	ctx, span := s.tracer.Start(ctx, "patient_find_all")
	defer span.End()

	query := `SELECT ` + patientColumns + ` FROM patients`
	var args []interface{}
	if criteria.FacilityID != nil {
		query += ` WHERE facility_id = $1`
		args = append(args, *criteria.FacilityID)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("query patients: %w", err)
	}
	defer rows.Close()

	var out []*patient.Patient
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, fmt.Errorf("scan patient: %w", err)
		}
		if criteria.Matches(p) {
			out = append(out, p)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("result_count", len(out)))
	return out, nil
}

// NextPatientNumber allocates the next sequential number for the facility.
// The upsert-returning statement is atomic across service instances, so
// two concurrent registrations can never draw the same number.
func (s *PatientStore) NextPatientNumber(ctx context.Context, facilityID uuid.UUID) (string, error) {
	ctx, span := s.tracer.Start(ctx, "patient_number_allocate",
		trace.WithAttributes(attribute.String("facility_id", facilityID.String())))
	defer span.End()

	var seq int
	err := s.pool.QueryRow(ctx, `
		INSERT INTO patient_number_counters (facility_id, last_number)
		VALUES ($1, 1)
		ON CONFLICT (facility_id)
		DO UPDATE SET last_number = patient_number_counters.last_number + 1
		RETURNING last_number`, facilityID).Scan(&seq)
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("allocate patient number: %w", err)
	}

	prefix := strings.ToUpper(strings.SplitN(facilityID.String(), "-", 2)[0])
	return fmt.Sprintf("%s-%06d", prefix, seq), nil
}

func scanPatient(row pgx.Row) (*patient.Patient, error) {
	p := &patient.Patient{}
	var person, history []byte
	err := row.Scan(
		&p.ID, &p.PatientNumber, &p.FacilityID, &p.GeoZoneID,
		&p.RegistrationDate, &person, &history,
	)
	if err != nil {
		return nil, err
	}
	if len(person) > 0 {
		if err := json.Unmarshal(person, &p.Person); err != nil {
			return nil, fmt.Errorf("unmarshal person: %w", err)
		}
	}
	if len(history) > 0 {
		if err := json.Unmarshal(history, &p.MedicalHistory); err != nil {
			return nil, fmt.Errorf("unmarshal medical history: %w", err)
		}
	}
	return p, nil
}
