package patient

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func strPtr(v string) *string { return &v }

func TestCriteriaMatchesCombineWithAnd(t *testing.T) {
	facilityID := uuid.New()
	dob := time.Date(1990, 6, 15, 0, 0, 0, 0, time.UTC)
	p := &Patient{
		ID:            uuid.New(),
		PatientNumber: "ABC12345-000001",
		FacilityID:    facilityID,
		Person: &Person{
			FirstName:   "Mpho",
			LastName:    "Mokoena",
			NationalID:  "NAT-77",
			DateOfBirth: &dob,
		},
	}

	if !(Criteria{}).Matches(p) {
		t.Error("empty criteria should match everything")
	}
	if !(Criteria{FirstName: "Mpho", LastName: "Mokoena"}).Matches(p) {
		t.Error("matching names should match")
	}
	if (Criteria{FirstName: "Mpho", LastName: "Other"}).Matches(p) {
		t.Error("one mismatched criterion should reject")
	}
	other := uuid.New()
	if (Criteria{FacilityID: &other}).Matches(p) {
		t.Error("mismatched facility should reject")
	}
	if !(Criteria{FacilityID: &facilityID, NationalID: "NAT-77"}).Matches(p) {
		t.Error("facility and national id should match")
	}
}

func TestCriteriaDateOfBirthMatchesOnDay(t *testing.T) {
	dob := time.Date(1990, 6, 15, 14, 30, 0, 0, time.UTC)
	p := &Patient{ID: uuid.New(), Person: &Person{DateOfBirth: &dob}}

	sameDay := time.Date(1990, 6, 15, 0, 0, 0, 0, time.UTC)
	if !(Criteria{DateOfBirth: &sameDay}).Matches(p) {
		t.Error("same calendar day should match regardless of time")
	}
	nextDay := sameDay.AddDate(0, 0, 1)
	if (Criteria{DateOfBirth: &nextDay}).Matches(p) {
		t.Error("different day should not match")
	}
}

func TestCriteriaWithoutPersonOnlyMatchesNonDemographicFilters(t *testing.T) {
	facilityID := uuid.New()
	p := &Patient{ID: uuid.New(), PatientNumber: "N-1", FacilityID: facilityID}

	if !(Criteria{PatientNumber: "N-1", FacilityID: &facilityID}).Matches(p) {
		t.Error("non-demographic filters should match a patient without person data")
	}
	if (Criteria{FirstName: "Mpho"}).Matches(p) {
		t.Error("demographic filter should reject a patient without person data")
	}
}

func TestFromDtoAssignsIdentifiers(t *testing.T) {
	dto := &Dto{
		Person: &PersonDto{FirstName: strPtr("Mpho")},
		MedicalHistory: []*MedicalHistoryDto{
			{Type: "allergy", History: "penicillin"},
		},
	}

	p := FromDto(dto)

	if p.ID == uuid.Nil {
		t.Error("patient id should be assigned")
	}
	if p.Person == nil || p.Person.ID == uuid.Nil {
		t.Error("person id should be assigned")
	}
	if p.PatientNumber != "" {
		t.Errorf("patient number must come from the repository, got %q", p.PatientNumber)
	}
	if p.RegistrationDate.IsZero() {
		t.Error("registration date should default to now")
	}
	if len(p.MedicalHistory) != 1 || p.MedicalHistory[0].ID == uuid.Nil {
		t.Errorf("medical history not mapped: %+v", p.MedicalHistory)
	}
}

func TestMergeReplacesContactsWholesale(t *testing.T) {
	p := &Patient{
		ID: uuid.New(),
		Person: &Person{
			ID:        uuid.New(),
			FirstName: "Mpho",
			Contacts: []*Contact{
				{ID: uuid.New(), ContactType: "phone", ContactValue: "266-1111"},
				{ID: uuid.New(), ContactType: "email", ContactValue: "old@example.org"},
			},
		},
	}

	Merge(p, &Dto{Person: &PersonDto{
		Contacts: []*ContactDto{
			{ContactType: "phone", ContactValue: "266-2222"},
		},
	}})

	if p.Person.FirstName != "Mpho" {
		t.Errorf("first name changed to %q", p.Person.FirstName)
	}
	if len(p.Person.Contacts) != 1 {
		t.Fatalf("expected 1 contact after merge, got %d", len(p.Person.Contacts))
	}
	if p.Person.Contacts[0].ContactValue != "266-2222" {
		t.Errorf("unexpected contact %+v", p.Person.Contacts[0])
	}
}
