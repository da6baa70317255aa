package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/Lesotho-eLMIS/lesotho-dispensing/internal/domain/patient"
	"github.com/Lesotho-eLMIS/lesotho-dispensing/internal/domain/prescription"
	"github.com/Lesotho-eLMIS/lesotho-dispensing/internal/infrastructure/memory"
	"github.com/Lesotho-eLMIS/lesotho-dispensing/internal/referencedata"
	"github.com/Lesotho-eLMIS/lesotho-dispensing/internal/service/serving"
	"github.com/Lesotho-eLMIS/lesotho-dispensing/internal/stock"
)

type stubRefData struct{}

func (stubRefData) FindOrderable(ctx context.Context, id uuid.UUID) (*referencedata.Orderable, error) {
	return nil, nil
}
func (stubRefData) FindLot(ctx context.Context, id uuid.UUID) (*referencedata.Lot, error) {
	return nil, nil
}
func (stubRefData) FindFacility(ctx context.Context, id uuid.UUID) (*referencedata.Facility, error) {
	return nil, nil
}

type stubStock struct{}

func (stubStock) QueryStockOnHand(ctx context.Context, programID, facilityID uuid.UUID,
	orderableIDs []uuid.UUID, asOfDate time.Time, lotCode string) ([]stock.CardSummary, error) {
	return nil, nil
}
func (stubStock) SubmitStockEvent(ctx context.Context, event stock.Event) error { return nil }

type handlerFixture struct {
	handler   *PrescriptionHandler
	patients  *memory.PatientStore
	patientID uuid.UUID
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()
	prescriptions := memory.NewPrescriptionStore()
	patients := memory.NewPatientStore()

	patientID := uuid.New()
	if _, err := patients.Save(context.Background(), &patient.Patient{ID: patientID}); err != nil {
		t.Fatalf("seed patient: %v", err)
	}

	engine := serving.New(prescriptions, patients, stubRefData{}, stubStock{},
		serving.Config{DebitReasonID: uuid.New()}, nil, nil)
	return &handlerFixture{
		handler:   NewPrescriptionHandler(engine, patients, nil),
		patients:  patients,
		patientID: patientID,
	}
}

func (f *handlerFixture) request(t *testing.T, method, target string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, target, &buf)
	rec := httptest.NewRecorder()
	f.handler.Routes().ServeHTTP(rec, req)
	return rec
}

func TestCreateReturnsCreated(t *testing.T) {
	f := newHandlerFixture(t)

	rec := f.request(t, http.MethodPost, "/", &prescription.Dto{PatientID: &f.patientID})

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var created prescription.Dto
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if created.ID == uuid.Nil {
		t.Error("response should carry the assigned id")
	}
	if created.Status != prescription.StatusInitiated {
		t.Errorf("unexpected status %q", created.Status)
	}
}

func TestGetUnknownPrescriptionIs404(t *testing.T) {
	f := newHandlerFixture(t)

	rec := f.request(t, http.MethodGet, "/"+uuid.NewString(), nil)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestGetMalformedIDIs400(t *testing.T) {
	f := newHandlerFixture(t)

	rec := f.request(t, http.MethodGet, "/not-a-uuid", nil)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestSearchRejectsMalformedParams(t *testing.T) {
	f := newHandlerFixture(t)

	for _, target := range []string{
		"/?isVoided=maybe",
		"/?followUpDate=15-06-2025",
		"/?facilityId=nope",
		"/?dateOfBirth=yesterday",
	} {
		rec := f.request(t, http.MethodGet, target, nil)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", target, rec.Code)
		}
	}
}

func TestSearchWithNoMatchesReturnsEmptyList(t *testing.T) {
	f := newHandlerFixture(t)

	rec := f.request(t, http.MethodGet, "/?firstName=Nobody", nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var found []*prescription.Dto
	if err := json.Unmarshal(rec.Body.Bytes(), &found); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(found) != 0 {
		t.Errorf("expected empty list, got %d entries", len(found))
	}
}

func TestVoidThenServeIs400(t *testing.T) {
	f := newHandlerFixture(t)

	rec := f.request(t, http.MethodPost, "/", &prescription.Dto{PatientID: &f.patientID})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create failed: %d", rec.Code)
	}
	var created prescription.Dto
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode response: %v", err)
	}

	if rec = f.request(t, http.MethodPost, "/"+created.ID.String()+"/void", nil); rec.Code != http.StatusOK {
		t.Fatalf("void failed: %d", rec.Code)
	}

	rec = f.request(t, http.MethodPost, "/"+created.ID.String()+"/serve", &prescription.Dto{})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for serving a voided prescription, got %d", rec.Code)
	}
}
