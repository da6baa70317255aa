package backorder

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"

	domain "github.com/Lesotho-eLMIS/lesotho-dispensing/internal/domain/backorder"
	"github.com/Lesotho-eLMIS/lesotho-dispensing/internal/domain/prescription"
	"github.com/Lesotho-eLMIS/lesotho-dispensing/pkg/idempotency"
)

type fakeRepo struct {
	byLineItem map[uuid.UUID]*domain.Backorder
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{byLineItem: make(map[uuid.UUID]*domain.Backorder)}
}

func (f *fakeRepo) Upsert(ctx context.Context, b *domain.Backorder) (*domain.Backorder, error) {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	f.byLineItem[b.LineItemID] = b
	return b, nil
}

func (f *fakeRepo) FindByFacility(ctx context.Context, facilityID uuid.UUID) ([]*domain.Backorder, error) {
	var out []*domain.Backorder
	for _, b := range f.byLineItem {
		if b.FacilityID == facilityID {
			out = append(out, b)
		}
	}
	return out, nil
}

func (f *fakeRepo) Delete(ctx context.Context, id uuid.UUID) error { return nil }

// fakeInbox remembers finished keys and skips their handlers on replay.
type fakeInbox struct {
	finished map[string]bool
}

func newFakeInbox() *fakeInbox {
	return &fakeInbox{finished: make(map[string]bool)}
}

func (f *fakeInbox) Process(ctx context.Context, key, handlerName string, payload json.RawMessage,
	fn idempotency.ProcessFunc) (*idempotency.ProcessResult, error) {
	if f.finished[key] {
		return &idempotency.ProcessResult{IsNew: false}, nil
	}
	result, err := fn(ctx, payload)
	if err != nil {
		return nil, err
	}
	f.finished[key] = true
	return &idempotency.ProcessResult{IsNew: true, Result: result}, nil
}

func servedEventPayload(t *testing.T, items ...prescription.ServedLineItem) []byte {
	t.Helper()
	event, err := prescription.NewEvent(uuid.New(), prescription.EventPrescriptionServed, prescription.ServedData{
		PrescriptionID: uuid.New(),
		FacilityID:     uuid.New(),
		PatientID:      uuid.New(),
		LineItems:      items,
		ServedAt:       time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("build event: %v", err)
	}
	payload, err := json.Marshal(event)
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	return payload
}

func TestHandleCreatesBackordersForShortfalls(t *testing.T) {
	repo := newFakeRepo()
	h := NewHandler(repo, newFakeInbox(), nil, nil)

	partial := prescription.ServedLineItem{
		LineItemID:         uuid.New(),
		OrderableDispensed: uuid.New(),
		QuantityDispensed:  10,
		RemainingBalance:   4,
		Status:             prescription.LineItemPartiallyServed,
	}
	blocked := prescription.ServedLineItem{
		LineItemID:        uuid.New(),
		QuantityDispensed: 8,
		Status:            prescription.LineItemInadequateStock,
	}
	full := prescription.ServedLineItem{
		LineItemID: uuid.New(),
		Status:     prescription.LineItemFullyServed,
	}

	if err := h.Handle(context.Background(), servedEventPayload(t, partial, blocked, full)); err != nil {
		t.Fatalf("handle failed: %v", err)
	}

	if len(repo.byLineItem) != 2 {
		t.Fatalf("expected 2 backorders, got %d", len(repo.byLineItem))
	}
	if got := repo.byLineItem[partial.LineItemID].QuantityOutstanding; got != 4 {
		t.Errorf("partially served line must owe the remaining balance, got %d", got)
	}
	if got := repo.byLineItem[blocked.LineItemID].QuantityOutstanding; got != 8 {
		t.Errorf("stock-blocked line must owe the full quantity, got %d", got)
	}
}

func TestHandleIsIdempotentAcrossRedelivery(t *testing.T) {
	repo := newFakeRepo()
	h := NewHandler(repo, newFakeInbox(), nil, nil)

	payload := servedEventPayload(t, prescription.ServedLineItem{
		LineItemID:       uuid.New(),
		RemainingBalance: 3,
		Status:           prescription.LineItemPartiallyServed,
	})

	for i := 0; i < 3; i++ {
		if err := h.Handle(context.Background(), payload); err != nil {
			t.Fatalf("handle %d failed: %v", i, err)
		}
	}
	if len(repo.byLineItem) != 1 {
		t.Errorf("redelivery must not duplicate backorders, got %d", len(repo.byLineItem))
	}
}

func TestHandleIgnoresOtherEventTypes(t *testing.T) {
	repo := newFakeRepo()
	h := NewHandler(repo, newFakeInbox(), nil, nil)

	event, err := prescription.NewEvent(uuid.New(), prescription.EventPrescriptionCreated, prescription.CreatedData{})
	if err != nil {
		t.Fatalf("build event: %v", err)
	}
	payload, _ := json.Marshal(event)

	if err := h.Handle(context.Background(), payload); err != nil {
		t.Fatalf("handle failed: %v", err)
	}
	if len(repo.byLineItem) != 0 {
		t.Errorf("created events must not produce backorders")
	}
}

func TestHandleDiscardsMalformedPayload(t *testing.T) {
	repo := newFakeRepo()
	h := NewHandler(repo, newFakeInbox(), nil, nil)

	if err := h.Handle(context.Background(), []byte("not json")); err != nil {
		t.Fatalf("malformed payload must be acknowledged, got %v", err)
	}
}

func TestExternallyServedBalanceOwesNothing(t *testing.T) {
	repo := newFakeRepo()
	h := NewHandler(repo, newFakeInbox(), nil, nil)

	payload := servedEventPayload(t, prescription.ServedLineItem{
		LineItemID:       uuid.New(),
		RemainingBalance: 5,
		Status:           prescription.LineItemFullyServed,
	})
	if err := h.Handle(context.Background(), payload); err != nil {
		t.Fatalf("handle failed: %v", err)
	}
	if len(repo.byLineItem) != 0 {
		t.Errorf("fully served lines must not create backorders")
	}
}
