package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schema is applied at startup. Statements are idempotent so every service
// instance can run them unconditionally.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS prescriptions (
		id UUID PRIMARY KEY,
		version BIGINT NOT NULL,
		patient_id UUID NOT NULL,
		patient_type TEXT NOT NULL DEFAULT '',
		follow_up_date TIMESTAMPTZ,
		issue_date TIMESTAMPTZ,
		created_date TIMESTAMPTZ,
		captured_date TIMESTAMPTZ,
		last_update TIMESTAMPTZ,
		is_voided BOOLEAN NOT NULL DEFAULT FALSE,
		facility_id UUID NOT NULL,
		prescribed_by_user_id UUID NOT NULL,
		served_by_user_id UUID NOT NULL,
		status TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_prescriptions_patient ON prescriptions (patient_id)`,
	`CREATE INDEX IF NOT EXISTS idx_prescriptions_facility ON prescriptions (facility_id)`,

	`CREATE TABLE IF NOT EXISTS prescription_line_items (
		id UUID PRIMARY KEY,
		prescription_id UUID NOT NULL REFERENCES prescriptions (id) ON DELETE CASCADE,
		dose INT NOT NULL DEFAULT 0,
		dose_units TEXT NOT NULL DEFAULT '',
		dose_frequency TEXT NOT NULL DEFAULT '',
		route TEXT NOT NULL DEFAULT '',
		duration INT NOT NULL DEFAULT 0,
		duration_units TEXT NOT NULL DEFAULT '',
		additional_instructions TEXT NOT NULL DEFAULT '',
		orderable_prescribed UUID NOT NULL,
		quantity_prescribed INT NOT NULL DEFAULT 0,
		orderable_dispensed UUID NOT NULL,
		lot_id UUID NOT NULL,
		quantity_dispensed INT NOT NULL DEFAULT 0,
		remaining_balance INT NOT NULL DEFAULT 0,
		served_externally BOOLEAN NOT NULL DEFAULT FALSE,
		comments TEXT NOT NULL DEFAULT '',
		collect_balance_date TIMESTAMPTZ,
		status TEXT NOT NULL,
		position INT NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS idx_line_items_prescription ON prescription_line_items (prescription_id)`,

	`CREATE TABLE IF NOT EXISTS patients (
		id UUID PRIMARY KEY,
		patient_number TEXT NOT NULL,
		facility_id UUID NOT NULL,
		geo_zone_id UUID NOT NULL,
		registration_date TIMESTAMPTZ NOT NULL,
		person JSONB,
		medical_history JSONB
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_patients_number ON patients (patient_number)`,
	`CREATE INDEX IF NOT EXISTS idx_patients_facility ON patients (facility_id)`,

	`CREATE TABLE IF NOT EXISTS patient_number_counters (
		facility_id UUID PRIMARY KEY,
		last_number INT NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS locations (
		id UUID PRIMARY KEY,
		district TEXT NOT NULL DEFAULT '',
		village TEXT NOT NULL DEFAULT '',
		constituency TEXT NOT NULL DEFAULT '',
		chief TEXT NOT NULL DEFAULT ''
	)`,

	`CREATE TABLE IF NOT EXISTS dispensing_events (
		id UUID PRIMARY KEY,
		source_id UUID NOT NULL,
		source_free_text TEXT NOT NULL DEFAULT '',
		destination_id UUID NOT NULL,
		destination_free_text TEXT NOT NULL DEFAULT '',
		reference_number TEXT NOT NULL DEFAULT '',
		packing_date TIMESTAMPTZ,
		packed_by TEXT NOT NULL DEFAULT '',
		cartons_quantity_on_waybill INT,
		cartons_quantity_shipped INT,
		cartons_quantity_accepted INT,
		cartons_quantity_rejected INT,
		containers_quantity_on_waybill INT,
		containers_quantity_shipped INT,
		containers_quantity_accepted INT,
		containers_quantity_rejected INT,
		remarks TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		discrepancies JSONB
	)`,
	`CREATE INDEX IF NOT EXISTS idx_dispensing_events_destination ON dispensing_events (destination_id)`,

	`CREATE TABLE IF NOT EXISTS outbox (
		id BIGSERIAL PRIMARY KEY,
		aggregate_id TEXT NOT NULL,
		aggregate_type TEXT NOT NULL,
		event_type TEXT NOT NULL,
		payload JSONB NOT NULL,
		kafka_topic TEXT NOT NULL,
		kafka_key TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		processed_at TIMESTAMPTZ,
		retry_count INT NOT NULL DEFAULT 0,
		last_error TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_outbox_unprocessed ON outbox (created_at) WHERE processed_at IS NULL`,

	`CREATE TABLE IF NOT EXISTS backorders (
		id UUID PRIMARY KEY,
		prescription_id UUID NOT NULL,
		line_item_id UUID NOT NULL,
		patient_id UUID NOT NULL,
		facility_id UUID NOT NULL,
		orderable_id UUID NOT NULL,
		quantity_outstanding INT NOT NULL,
		collect_balance_date TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_backorders_line_item ON backorders (line_item_id)`,

	`CREATE TABLE IF NOT EXISTS inbox (
		idempotency_key TEXT PRIMARY KEY,
		handler_name TEXT NOT NULL,
		status TEXT NOT NULL,
		payload JSONB,
		result JSONB,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		expires_at TIMESTAMPTZ
	)`,
}

// Migrate applies the schema to the database.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range schema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}
