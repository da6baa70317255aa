// Package backorder tracks outstanding balances owed to patients after a
// serve pass could not dispense the full quantity.
package backorder

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Backorder is one outstanding balance for a prescription line item. The
// line item id is the natural key: reprocessing the same serve event must
// not produce a second backorder for the same line.
type Backorder struct {
	ID                  uuid.UUID
	PrescriptionID      uuid.UUID
	LineItemID          uuid.UUID
	PatientID           uuid.UUID
	FacilityID          uuid.UUID
	OrderableID         uuid.UUID
	QuantityOutstanding int
	CollectBalanceDate  *time.Time
	CreatedAt           time.Time
}

// Repository persists backorders. Upsert is keyed on the line item id.
type Repository interface {
	Upsert(ctx context.Context, b *Backorder) (*Backorder, error)
	FindByFacility(ctx context.Context, facilityID uuid.UUID) ([]*Backorder, error)
	Delete(ctx context.Context, id uuid.UUID) error
}
