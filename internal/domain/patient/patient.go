// Package patient implements the patient demographic aggregate.
package patient

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when no patient exists for the given id.
var ErrNotFound = errors.New("patient not found")

// Patient is the demographic aggregate root. Prescriptions reference it by
// id; the serving engine reads it only to validate existence.
type Patient struct {
	ID               uuid.UUID
	PatientNumber    string
	FacilityID       uuid.UUID
	GeoZoneID        uuid.UUID
	RegistrationDate time.Time
	Person           *Person
	MedicalHistory   []*MedicalHistory
}

// Person holds the demographic details of a patient.
type Person struct {
	ID                uuid.UUID
	FirstName         string
	LastName          string
	NickName          string
	NationalID        string
	Sex               string
	DateOfBirth       *time.Time
	IsDoBEstimated    bool
	PhysicalAddress   string
	NextOfKinFullName string
	NextOfKinContact  string
	MotherMaidenName  string
	Deceased          bool
	Retired           bool
	Contacts          []*Contact
}

// Contact is a single way of reaching a person.
type Contact struct {
	ID           uuid.UUID
	ContactType  string
	ContactValue string
}

// MedicalHistory is one recorded history entry for a patient.
type MedicalHistory struct {
	ID      uuid.UUID
	Type    string
	History string
}

// Criteria carries the optional patient search filters. Absent fields
// impose no constraint; present fields combine with AND.
type Criteria struct {
	PatientNumber string
	FirstName     string
	LastName      string
	NationalID    string
	DateOfBirth   *time.Time
	FacilityID    *uuid.UUID
}

// Matches reports whether the patient satisfies every present criterion.
func (c Criteria) Matches(p *Patient) bool {
	if c.PatientNumber != "" && p.PatientNumber != c.PatientNumber {
		return false
	}
	if c.FacilityID != nil && p.FacilityID != *c.FacilityID {
		return false
	}
	if p.Person == nil {
		return c.FirstName == "" && c.LastName == "" && c.NationalID == "" && c.DateOfBirth == nil
	}
	if c.FirstName != "" && p.Person.FirstName != c.FirstName {
		return false
	}
	if c.LastName != "" && p.Person.LastName != c.LastName {
		return false
	}
	if c.NationalID != "" && p.Person.NationalID != c.NationalID {
		return false
	}
	if c.DateOfBirth != nil {
		if p.Person.DateOfBirth == nil {
			return false
		}
		if !p.Person.DateOfBirth.Truncate(24 * time.Hour).Equal(c.DateOfBirth.Truncate(24 * time.Hour)) {
			return false
		}
	}
	return true
}

// Repository persists patients. NextPatientNumber allocates the sequential
// per-facility patient number; implementations must make the allocation
// atomic across service instances, so a database-backed counter rather
// than an in-process lock.
type Repository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	Save(ctx context.Context, p *Patient) (*Patient, error)
	FindAll(ctx context.Context, criteria Criteria) ([]*Patient, error)
	NextPatientNumber(ctx context.Context, facilityID uuid.UUID) (string, error)
}
