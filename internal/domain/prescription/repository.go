package prescription

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrNotFound is returned when no prescription exists for the given id.
var ErrNotFound = errors.New("prescription not found")

// ErrVersionConflict is returned when a save loses the compare-and-swap on
// the aggregate version: a concurrent update or serve won the race. The
// caller must re-read and retry; the serving engine surfaces it without
// retrying because stock debits are not idempotent.
var ErrVersionConflict = errors.New("prescription version conflict")

// Repository persists the prescription aggregate. Save is whole-aggregate:
// the stored line item collection is replaced with the one on the
// aggregate, deleting orphans, and any events are recorded atomically
// with the save.
type Repository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Prescription, error)
	Save(ctx context.Context, p *Prescription, events ...*Event) (*Prescription, error)
	FindAll(ctx context.Context, criteria Criteria) ([]*Prescription, error)
}
