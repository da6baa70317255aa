package serving

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/Lesotho-eLMIS/lesotho-dispensing/internal/domain/patient"
	"github.com/Lesotho-eLMIS/lesotho-dispensing/internal/domain/prescription"
	"github.com/Lesotho-eLMIS/lesotho-dispensing/internal/infrastructure/memory"
	"github.com/Lesotho-eLMIS/lesotho-dispensing/internal/referencedata"
	"github.com/Lesotho-eLMIS/lesotho-dispensing/internal/stock"
)

type fakeRefData struct {
	orderables map[uuid.UUID]*referencedata.Orderable
	lots       map[uuid.UUID]*referencedata.Lot
	facilities map[uuid.UUID]*referencedata.Facility
	err        error
}

func (f *fakeRefData) FindOrderable(ctx context.Context, id uuid.UUID) (*referencedata.Orderable, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.orderables[id], nil
}

func (f *fakeRefData) FindLot(ctx context.Context, id uuid.UUID) (*referencedata.Lot, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.lots[id], nil
}

func (f *fakeRefData) FindFacility(ctx context.Context, id uuid.UUID) (*referencedata.Facility, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.facilities[id], nil
}

type fakeStock struct {
	soh       map[uuid.UUID]int
	queried   []uuid.UUID
	debits    []stock.Event
	queryErr  error
	submitErr error
}

func (f *fakeStock) QueryStockOnHand(ctx context.Context, programID, facilityID uuid.UUID,
	orderableIDs []uuid.UUID, asOfDate time.Time, lotCode string) ([]stock.CardSummary, error) {
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	f.queried = append(f.queried, orderableIDs...)
	var out []stock.CardSummary
	for _, id := range orderableIDs {
		if qty, ok := f.soh[id]; ok {
			out = append(out, stock.CardSummary{OrderableID: id, LotCode: lotCode, StockOnHand: qty})
		}
	}
	return out, nil
}

func (f *fakeStock) SubmitStockEvent(ctx context.Context, event stock.Event) error {
	if f.submitErr != nil {
		return f.submitErr
	}
	f.debits = append(f.debits, event)
	return nil
}

type fixture struct {
	engine        *Engine
	prescriptions *memory.PrescriptionStore
	patients      *memory.PatientStore
	refdata       *fakeRefData
	stock         *fakeStock
	programID     uuid.UUID
	facilityID    uuid.UUID
	patientID     uuid.UUID
	debitReason   uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		prescriptions: memory.NewPrescriptionStore(),
		patients:      memory.NewPatientStore(),
		refdata: &fakeRefData{
			orderables: make(map[uuid.UUID]*referencedata.Orderable),
			lots:       make(map[uuid.UUID]*referencedata.Lot),
			facilities: make(map[uuid.UUID]*referencedata.Facility),
		},
		stock:       &fakeStock{soh: make(map[uuid.UUID]int)},
		programID:   uuid.New(),
		facilityID:  uuid.New(),
		patientID:   uuid.New(),
		debitReason: uuid.New(),
	}
	if _, err := f.patients.Save(context.Background(), &patient.Patient{
		ID:         f.patientID,
		FacilityID: f.facilityID,
		Person:     &patient.Person{FirstName: "Thabo", LastName: "Mokoena"},
	}); err != nil {
		t.Fatalf("seed patient: %v", err)
	}
	f.engine = New(f.prescriptions, f.patients, f.refdata, f.stock,
		Config{DebitReasonID: f.debitReason}, nil, nil)
	return f
}

// addOrderable registers an orderable with one program association and the
// given stock on hand.
func (f *fixture) addOrderable(soh int) uuid.UUID {
	id := uuid.New()
	f.refdata.orderables[id] = &referencedata.Orderable{
		ID:              id,
		ProductCode:     "C" + id.String()[:4],
		FullProductName: "Product " + id.String()[:4],
		Programs:        []referencedata.ProgramOrderable{{ProgramID: f.programID, Active: true}},
	}
	if soh >= 0 {
		f.stock.soh[id] = soh
	}
	return id
}

// seedPrescription stores a prescription with the given line items.
func (f *fixture) seedPrescription(t *testing.T, items ...*prescription.LineItem) *prescription.Prescription {
	t.Helper()
	p := prescription.New(f.patientID, f.facilityID)
	p.ServedByUserID = uuid.New()
	for _, li := range items {
		p.AttachLineItem(li)
	}
	saved, err := f.prescriptions.Save(context.Background(), p)
	if err != nil {
		t.Fatalf("seed prescription: %v", err)
	}
	return saved
}

func TestServeFullyServed(t *testing.T) {
	f := newFixture(t)
	orderableID := f.addOrderable(100)
	p := f.seedPrescription(t, &prescription.LineItem{
		OrderablePrescribed: orderableID,
		QuantityPrescribed:  20,
		QuantityDispensed:   20,
		RemainingBalance:    0,
	})

	dto, err := f.engine.Serve(context.Background(), p.ID, &prescription.Dto{})
	if err != nil {
		t.Fatalf("serve failed: %v", err)
	}

	if dto.Status != prescription.StatusFullyServed {
		t.Errorf("expected FULLY_SERVED, got %s", dto.Status)
	}
	if got := dto.LineItems[0].Status; got != prescription.LineItemFullyServed {
		t.Errorf("expected line item FULLY_SERVED, got %s", got)
	}
	if len(f.stock.debits) != 1 {
		t.Fatalf("expected 1 debit, got %d", len(f.stock.debits))
	}
	debit := f.stock.debits[0]
	if debit.ProgramID != f.programID {
		t.Errorf("debit program mismatch")
	}
	if debit.LineItems[0].Quantity != 20 {
		t.Errorf("expected debit of 20, got %d", debit.LineItems[0].Quantity)
	}
	if debit.LineItems[0].ReasonID != f.debitReason {
		t.Errorf("debit reason mismatch")
	}
}

func TestServeInadequateStock(t *testing.T) {
	f := newFixture(t)
	orderableID := f.addOrderable(5)
	p := f.seedPrescription(t, &prescription.LineItem{
		OrderablePrescribed: orderableID,
		QuantityDispensed:   10,
	})

	dto, err := f.engine.Serve(context.Background(), p.ID, &prescription.Dto{})
	if err != nil {
		t.Fatalf("serve failed: %v", err)
	}

	if got := dto.LineItems[0].Status; got != prescription.LineItemInadequateStock {
		t.Errorf("expected INADEQUATE_STOCK, got %s", got)
	}
	if dto.Status != prescription.StatusPartiallyServed {
		t.Errorf("expected PARTIALLY_SERVED aggregate, got %s", dto.Status)
	}
	if len(f.stock.debits) != 0 {
		t.Errorf("inadequate stock must not debit, got %d debits", len(f.stock.debits))
	}
}

func TestServeProductNotExist(t *testing.T) {
	f := newFixture(t)
	// Orderable known to reference data but with no stock record.
	orderableID := f.addOrderable(-1)
	p := f.seedPrescription(t, &prescription.LineItem{
		OrderablePrescribed: orderableID,
		QuantityDispensed:   5,
	})

	dto, err := f.engine.Serve(context.Background(), p.ID, &prescription.Dto{})
	if err != nil {
		t.Fatalf("serve failed: %v", err)
	}

	if got := dto.LineItems[0].Status; got != prescription.LineItemProductNotExist {
		t.Errorf("expected PRODUCT_NOT_EXIST, got %s", got)
	}
	if len(f.stock.debits) != 0 {
		t.Errorf("missing stock record must not debit")
	}
}

func TestServeUnknownOrderable(t *testing.T) {
	f := newFixture(t)
	p := f.seedPrescription(t, &prescription.LineItem{
		OrderablePrescribed: uuid.New(),
		QuantityDispensed:   5,
	})

	dto, err := f.engine.Serve(context.Background(), p.ID, &prescription.Dto{})
	if err != nil {
		t.Fatalf("serve failed: %v", err)
	}
	if got := dto.LineItems[0].Status; got != prescription.LineItemProductNotExist {
		t.Errorf("expected PRODUCT_NOT_EXIST, got %s", got)
	}
}

func TestServeSkipsFullyServedItems(t *testing.T) {
	f := newFixture(t)
	servedID := f.addOrderable(100)
	pendingID := f.addOrderable(100)
	p := f.seedPrescription(t,
		&prescription.LineItem{
			OrderablePrescribed: servedID,
			QuantityDispensed:   10,
			Status:              prescription.LineItemFullyServed,
		},
		&prescription.LineItem{
			OrderablePrescribed: pendingID,
			QuantityDispensed:   10,
		},
	)

	dto, err := f.engine.Serve(context.Background(), p.ID, &prescription.Dto{})
	if err != nil {
		t.Fatalf("serve failed: %v", err)
	}

	if len(f.stock.debits) != 1 {
		t.Fatalf("served item must be skipped, expected 1 debit, got %d", len(f.stock.debits))
	}
	if f.stock.debits[0].LineItems[0].OrderableID != pendingID {
		t.Errorf("debit issued for the wrong line item")
	}
	if dto.Status != prescription.StatusFullyServed {
		t.Errorf("both items served, expected FULLY_SERVED, got %s", dto.Status)
	}
}

func TestServeTwiceIsIdempotent(t *testing.T) {
	f := newFixture(t)
	orderableID := f.addOrderable(100)
	p := f.seedPrescription(t, &prescription.LineItem{
		OrderablePrescribed: orderableID,
		QuantityDispensed:   20,
		RemainingBalance:    0,
	})

	first, err := f.engine.Serve(context.Background(), p.ID, &prescription.Dto{})
	if err != nil {
		t.Fatalf("first serve failed: %v", err)
	}
	if len(f.stock.debits) != 1 {
		t.Fatalf("expected 1 debit after first serve, got %d", len(f.stock.debits))
	}

	second, err := f.engine.Serve(context.Background(), p.ID, &prescription.Dto{})
	if err != nil {
		t.Fatalf("second serve failed: %v", err)
	}

	if len(f.stock.debits) != 1 {
		t.Errorf("second serve must not debit again, got %d debits", len(f.stock.debits))
	}
	if second.Status != first.Status {
		t.Errorf("aggregate status changed: %s then %s", first.Status, second.Status)
	}
	if len(second.LineItems) != len(first.LineItems) {
		t.Fatalf("line item count changed: %d then %d", len(first.LineItems), len(second.LineItems))
	}
	for i := range first.LineItems {
		if second.LineItems[i].Status != first.LineItems[i].Status {
			t.Errorf("line %d status changed: %s then %s",
				i, first.LineItems[i].Status, second.LineItems[i].Status)
		}
	}
}

func TestServeRemainingBalanceOutcomes(t *testing.T) {
	f := newFixture(t)
	internalID := f.addOrderable(100)
	externalID := f.addOrderable(100)
	p := f.seedPrescription(t,
		&prescription.LineItem{
			OrderablePrescribed: internalID,
			QuantityDispensed:   10,
			RemainingBalance:    5,
		},
		&prescription.LineItem{
			OrderablePrescribed: externalID,
			QuantityDispensed:   10,
			RemainingBalance:    5,
			ServedExternally:    true,
		},
	)

	dto, err := f.engine.Serve(context.Background(), p.ID, &prescription.Dto{})
	if err != nil {
		t.Fatalf("serve failed: %v", err)
	}

	if got := dto.LineItems[0].Status; got != prescription.LineItemPartiallyServed {
		t.Errorf("balance owed locally: expected PARTIALLY_SERVED, got %s", got)
	}
	if got := dto.LineItems[1].Status; got != prescription.LineItemFullyServed {
		t.Errorf("balance served externally: expected FULLY_SERVED, got %s", got)
	}
	if dto.Status != prescription.StatusPartiallyServed {
		t.Errorf("expected PARTIALLY_SERVED aggregate, got %s", dto.Status)
	}
}

func TestServeProcessesItemsInOrder(t *testing.T) {
	f := newFixture(t)
	first := f.addOrderable(100)
	second := f.addOrderable(100)
	third := f.addOrderable(100)
	p := f.seedPrescription(t,
		&prescription.LineItem{OrderablePrescribed: first, QuantityDispensed: 1},
		&prescription.LineItem{OrderablePrescribed: second, QuantityDispensed: 1},
		&prescription.LineItem{OrderablePrescribed: third, QuantityDispensed: 1},
	)

	if _, err := f.engine.Serve(context.Background(), p.ID, &prescription.Dto{}); err != nil {
		t.Fatalf("serve failed: %v", err)
	}

	want := []uuid.UUID{first, second, third}
	if len(f.stock.queried) != len(want) {
		t.Fatalf("expected %d queries, got %d", len(want), len(f.stock.queried))
	}
	for i, id := range want {
		if f.stock.queried[i] != id {
			t.Errorf("query %d out of order", i)
		}
	}
}

func TestServeAbortsOnStockQueryFailure(t *testing.T) {
	f := newFixture(t)
	orderableID := f.addOrderable(100)
	p := f.seedPrescription(t, &prescription.LineItem{
		OrderablePrescribed: orderableID,
		QuantityDispensed:   10,
	})
	f.stock.queryErr = &referencedata.RetrievalError{Resource: "stockCardSummaries", Status: 503}

	if _, err := f.engine.Serve(context.Background(), p.ID, &prescription.Dto{}); err == nil {
		t.Fatal("expected serve to fail when stock query fails")
	}

	// Nothing was saved: the stored aggregate is still INITIATED.
	stored, err := f.prescriptions.FindByID(context.Background(), p.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if stored.Status != prescription.StatusInitiated {
		t.Errorf("aborted serve must not persist, got status %s", stored.Status)
	}
}

func TestServeMergesRequestBeforeServing(t *testing.T) {
	f := newFixture(t)
	orderableID := f.addOrderable(100)
	p := f.seedPrescription(t, &prescription.LineItem{
		OrderablePrescribed: orderableID,
		QuantityPrescribed:  30,
	})

	qty := 30
	served := uuid.New()
	dto, err := f.engine.Serve(context.Background(), p.ID, &prescription.Dto{
		ServedByUserID: &served,
		LineItems: []*prescription.LineItemDto{{
			ID:                 p.LineItems[0].ID,
			OrderableDispensed: &orderableID,
			QuantityDispensed:  &qty,
		}},
	})
	if err != nil {
		t.Fatalf("serve failed: %v", err)
	}

	if len(f.stock.debits) != 1 || f.stock.debits[0].LineItems[0].Quantity != 30 {
		t.Fatalf("merged quantity not used for debit")
	}
	if f.stock.debits[0].UserID != served {
		t.Errorf("merged servedByUserId not used for debit")
	}
	if dto.LineItems[0].QuantityPrescribed == nil || *dto.LineItems[0].QuantityPrescribed != 30 {
		t.Errorf("fields absent from the request must stay untouched")
	}
}

func TestServeVoidedPrescription(t *testing.T) {
	f := newFixture(t)
	p := f.seedPrescription(t)
	if err := f.engine.Void(context.Background(), p.ID); err != nil {
		t.Fatalf("void failed: %v", err)
	}

	if _, err := f.engine.Serve(context.Background(), p.ID, &prescription.Dto{}); !errors.Is(err, ErrVoided) {
		t.Errorf("expected ErrVoided, got %v", err)
	}
}

func TestServeEmitsServedEvent(t *testing.T) {
	f := newFixture(t)
	orderableID := f.addOrderable(100)
	p := f.seedPrescription(t, &prescription.LineItem{
		OrderablePrescribed: orderableID,
		QuantityDispensed:   10,
	})

	if _, err := f.engine.Serve(context.Background(), p.ID, &prescription.Dto{}); err != nil {
		t.Fatalf("serve failed: %v", err)
	}

	events := f.prescriptions.Events()
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].EventType != prescription.EventPrescriptionServed {
		t.Errorf("expected PrescriptionServed event, got %s", events[0].EventType)
	}
}

func TestCreateRejectsUnknownPatient(t *testing.T) {
	f := newFixture(t)
	unknown := uuid.New()
	_, err := f.engine.Create(context.Background(), &prescription.Dto{
		PatientID:  &unknown,
		FacilityID: &f.facilityID,
	})
	if !errors.Is(err, patient.ErrNotFound) {
		t.Errorf("expected patient.ErrNotFound, got %v", err)
	}
}

func TestCreateAndGet(t *testing.T) {
	f := newFixture(t)
	dose := 2
	qty := 10
	orderableID := f.addOrderable(100)

	created, err := f.engine.Create(context.Background(), &prescription.Dto{
		PatientID:  &f.patientID,
		FacilityID: &f.facilityID,
		LineItems: []*prescription.LineItemDto{{
			Dose:                &dose,
			OrderablePrescribed: &orderableID,
			QuantityPrescribed:  &qty,
		}},
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if created.Status != prescription.StatusInitiated {
		t.Errorf("expected INITIATED, got %s", created.Status)
	}
	if got := created.LineItems[0].Status; got != prescription.LineItemRequested {
		t.Errorf("expected REQUESTED line item, got %s", got)
	}

	got, err := f.engine.Get(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.LineItems[0].ProductName == "" {
		t.Errorf("expected product name resolved on read")
	}
}

func TestUpdateDoesNotTouchServingState(t *testing.T) {
	f := newFixture(t)
	orderableID := f.addOrderable(100)
	p := f.seedPrescription(t, &prescription.LineItem{
		OrderablePrescribed: orderableID,
		QuantityDispensed:   10,
	})
	if _, err := f.engine.Serve(context.Background(), p.ID, &prescription.Dto{}); err != nil {
		t.Fatalf("serve failed: %v", err)
	}

	note := "OPD"
	updated, err := f.engine.Update(context.Background(), p.ID, &prescription.Dto{PatientType: &note})
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if updated.PatientType == nil || *updated.PatientType != "OPD" {
		t.Errorf("scalar merge not applied")
	}
	if len(f.stock.debits) != 1 {
		t.Errorf("update must not debit stock")
	}
	if updated.Status != prescription.StatusFullyServed {
		t.Errorf("update must not change derived status, got %s", updated.Status)
	}
}

// conflictRepo simulates a concurrent writer winning the version race.
type conflictRepo struct {
	*memory.PrescriptionStore
}

func (c *conflictRepo) Save(ctx context.Context, p *prescription.Prescription, events ...*prescription.Event) (*prescription.Prescription, error) {
	return nil, prescription.ErrVersionConflict
}

func TestServeSurfacesVersionConflict(t *testing.T) {
	f := newFixture(t)
	orderableID := f.addOrderable(100)
	p := f.seedPrescription(t, &prescription.LineItem{
		OrderablePrescribed: orderableID,
		QuantityDispensed:   10,
	})

	engine := New(&conflictRepo{f.prescriptions}, f.patients, f.refdata, f.stock,
		Config{DebitReasonID: f.debitReason}, nil, nil)
	_, err := engine.Serve(context.Background(), p.ID, &prescription.Dto{})
	if !errors.Is(err, prescription.ErrVersionConflict) {
		t.Errorf("expected ErrVersionConflict, got %v", err)
	}
}
