package registry

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/Lesotho-eLMIS/lesotho-dispensing/internal/domain/patient"
	"github.com/Lesotho-eLMIS/lesotho-dispensing/internal/infrastructure/memory"
	"github.com/Lesotho-eLMIS/lesotho-dispensing/internal/referencedata"
)

type fakeFacilities struct {
	known map[uuid.UUID]*referencedata.Facility
}

func (f *fakeFacilities) FindFacility(ctx context.Context, id uuid.UUID) (*referencedata.Facility, error) {
	return f.known[id], nil
}

func newRegistry() (*Registry, uuid.UUID) {
	facilityID := uuid.New()
	facilities := &fakeFacilities{known: map[uuid.UUID]*referencedata.Facility{
		facilityID: {ID: facilityID, Code: "HC01", Name: "Maseru Health Centre"},
	}}
	return New(memory.NewPatientStore(), facilities, nil, nil), facilityID
}

func registrationDto(facilityID uuid.UUID, firstName string) *patient.Dto {
	return &patient.Dto{
		FacilityID: &facilityID,
		Person:     &patient.PersonDto{FirstName: &firstName},
	}
}

func TestRegisterAllocatesSequentialNumbers(t *testing.T) {
	r, facilityID := newRegistry()

	first, err := r.Register(context.Background(), registrationDto(facilityID, "Lineo"))
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}
	second, err := r.Register(context.Background(), registrationDto(facilityID, "Teboho"))
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}

	if first.PatientNumber == "" || second.PatientNumber == "" {
		t.Fatal("registration must allocate a patient number")
	}
	if first.PatientNumber == second.PatientNumber {
		t.Errorf("patient numbers must be unique per facility, both got %s", first.PatientNumber)
	}
	if want := memory.FormatPatientNumber(facilityID, 1); first.PatientNumber != want {
		t.Errorf("expected %s, got %s", want, first.PatientNumber)
	}
}

func TestRegisterIgnoresClientSuppliedNumber(t *testing.T) {
	r, facilityID := newRegistry()

	dto := registrationDto(facilityID, "Lineo")
	dto.PatientNumber = "FORGED-001"
	created, err := r.Register(context.Background(), dto)
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if created.PatientNumber == "FORGED-001" {
		t.Error("patient number must come from the allocator, not the request")
	}
}

func TestRegisterRejectsUnknownFacility(t *testing.T) {
	r, _ := newRegistry()
	unknown := uuid.New()
	_, err := r.Register(context.Background(), registrationDto(unknown, "Lineo"))
	if !errors.Is(err, ErrUnknownFacility) {
		t.Errorf("expected ErrUnknownFacility, got %v", err)
	}
}

func TestUpdateKeepsPatientNumber(t *testing.T) {
	r, facilityID := newRegistry()
	created, err := r.Register(context.Background(), registrationDto(facilityID, "Lineo"))
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}

	last := "Mokoena"
	updated, err := r.Update(context.Background(), created.ID, &patient.Dto{
		Person: &patient.PersonDto{LastName: &last},
	})
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if updated.PatientNumber != created.PatientNumber {
		t.Errorf("update must not change the patient number")
	}
	if updated.Person == nil || updated.Person.LastName == nil || *updated.Person.LastName != "Mokoena" {
		t.Errorf("merged field not applied")
	}
	if updated.Person.FirstName == nil || *updated.Person.FirstName != "Lineo" {
		t.Errorf("absent field must stay untouched")
	}
}

func TestSearchByCriteria(t *testing.T) {
	r, facilityID := newRegistry()
	if _, err := r.Register(context.Background(), registrationDto(facilityID, "Lineo")); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if _, err := r.Register(context.Background(), registrationDto(facilityID, "Teboho")); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	found, err := r.Search(context.Background(), patient.Criteria{FirstName: "Lineo"})
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(found) != 1 {
		t.Fatalf("expected 1 match, got %d", len(found))
	}

	all, err := r.Search(context.Background(), patient.Criteria{})
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("empty criteria must match everyone, got %d", len(all))
	}
}

func TestGetUnknownPatient(t *testing.T) {
	r, _ := newRegistry()
	_, err := r.Get(context.Background(), uuid.New())
	if !errors.Is(err, patient.ErrNotFound) {
		t.Errorf("expected patient.ErrNotFound, got %v", err)
	}
}
