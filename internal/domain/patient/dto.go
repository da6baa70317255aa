package patient

import (
	"time"

	"github.com/google/uuid"
)

// Dto is the wire representation of a patient. Optional fields are
// pointers so that update requests can leave stored values untouched.
type Dto struct {
	ID               uuid.UUID            `json:"id,omitempty"`
	PatientNumber    string               `json:"patientNumber,omitempty"`
	FacilityID       *uuid.UUID           `json:"facilityId,omitempty"`
	GeoZoneID        *uuid.UUID           `json:"geoZoneId,omitempty"`
	RegistrationDate *time.Time           `json:"registrationDate,omitempty"`
	Person           *PersonDto           `json:"personDto,omitempty"`
	MedicalHistory   []*MedicalHistoryDto `json:"medicalHistory,omitempty"`
}

// PersonDto is the wire representation of a person.
type PersonDto struct {
	ID                uuid.UUID     `json:"id,omitempty"`
	FirstName         *string       `json:"firstName,omitempty"`
	LastName          *string       `json:"lastName,omitempty"`
	NickName          *string       `json:"nickName,omitempty"`
	NationalID        *string       `json:"nationalId,omitempty"`
	Sex               *string       `json:"sex,omitempty"`
	DateOfBirth       *time.Time    `json:"dateOfBirth,omitempty"`
	IsDoBEstimated    *bool         `json:"isDoBEstimated,omitempty"`
	PhysicalAddress   *string       `json:"physicalAddress,omitempty"`
	NextOfKinFullName *string       `json:"nextOfKinFullName,omitempty"`
	NextOfKinContact  *string       `json:"nextOfKinContact,omitempty"`
	MotherMaidenName  *string       `json:"motherMaidenName,omitempty"`
	Deceased          *bool         `json:"deceased,omitempty"`
	Retired           *bool         `json:"retired,omitempty"`
	Contacts          []*ContactDto `json:"contacts,omitempty"`
}

// ContactDto is the wire representation of a contact.
type ContactDto struct {
	ID           uuid.UUID `json:"id,omitempty"`
	ContactType  string    `json:"contactType"`
	ContactValue string    `json:"contactValue"`
}

// MedicalHistoryDto is the wire representation of a medical history entry.
type MedicalHistoryDto struct {
	ID      uuid.UUID `json:"id,omitempty"`
	Type    string    `json:"type"`
	History string    `json:"history"`
}

// ToDto maps a patient to its wire representation.
func ToDto(p *Patient) *Dto {
	if p == nil {
		return nil
	}
	dto := &Dto{
		ID:            p.ID,
		PatientNumber: p.PatientNumber,
		FacilityID:    &p.FacilityID,
		GeoZoneID:     &p.GeoZoneID,
		Person:        personToDto(p.Person),
	}
	if !p.RegistrationDate.IsZero() {
		reg := p.RegistrationDate
		dto.RegistrationDate = &reg
	}
	for _, mh := range p.MedicalHistory {
		dto.MedicalHistory = append(dto.MedicalHistory, &MedicalHistoryDto{
			ID: mh.ID, Type: mh.Type, History: mh.History,
		})
	}
	return dto
}

func personToDto(p *Person) *PersonDto {
	if p == nil {
		return nil
	}
	dto := &PersonDto{
		ID:                p.ID,
		FirstName:         &p.FirstName,
		LastName:          &p.LastName,
		NickName:          &p.NickName,
		NationalID:        &p.NationalID,
		Sex:               &p.Sex,
		DateOfBirth:       p.DateOfBirth,
		IsDoBEstimated:    &p.IsDoBEstimated,
		PhysicalAddress:   &p.PhysicalAddress,
		NextOfKinFullName: &p.NextOfKinFullName,
		NextOfKinContact:  &p.NextOfKinContact,
		MotherMaidenName:  &p.MotherMaidenName,
		Deceased:          &p.Deceased,
		Retired:           &p.Retired,
	}
	for _, c := range p.Contacts {
		dto.Contacts = append(dto.Contacts, &ContactDto{
			ID: c.ID, ContactType: c.ContactType, ContactValue: c.ContactValue,
		})
	}
	return dto
}

// FromDto builds a new patient from a create request. The patient number
// is allocated by the repository, not taken from the request.
func FromDto(dto *Dto) *Patient {
	p := &Patient{
		ID:     dto.ID,
		Person: personFromDto(dto.Person),
	}
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if dto.FacilityID != nil {
		p.FacilityID = *dto.FacilityID
	}
	if dto.GeoZoneID != nil {
		p.GeoZoneID = *dto.GeoZoneID
	}
	if dto.RegistrationDate != nil {
		p.RegistrationDate = *dto.RegistrationDate
	} else {
		p.RegistrationDate = time.Now().UTC()
	}
	for _, mhDto := range dto.MedicalHistory {
		p.MedicalHistory = append(p.MedicalHistory, medicalHistoryFromDto(mhDto))
	}
	return p
}

func personFromDto(dto *PersonDto) *Person {
	if dto == nil {
		return nil
	}
	p := &Person{ID: dto.ID}
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if dto.FirstName != nil {
		p.FirstName = *dto.FirstName
	}
	if dto.LastName != nil {
		p.LastName = *dto.LastName
	}
	if dto.NickName != nil {
		p.NickName = *dto.NickName
	}
	if dto.NationalID != nil {
		p.NationalID = *dto.NationalID
	}
	if dto.Sex != nil {
		p.Sex = *dto.Sex
	}
	if dto.DateOfBirth != nil {
		p.DateOfBirth = dto.DateOfBirth
	}
	if dto.IsDoBEstimated != nil {
		p.IsDoBEstimated = *dto.IsDoBEstimated
	}
	if dto.PhysicalAddress != nil {
		p.PhysicalAddress = *dto.PhysicalAddress
	}
	if dto.NextOfKinFullName != nil {
		p.NextOfKinFullName = *dto.NextOfKinFullName
	}
	if dto.NextOfKinContact != nil {
		p.NextOfKinContact = *dto.NextOfKinContact
	}
	if dto.MotherMaidenName != nil {
		p.MotherMaidenName = *dto.MotherMaidenName
	}
	if dto.Deceased != nil {
		p.Deceased = *dto.Deceased
	}
	if dto.Retired != nil {
		p.Retired = *dto.Retired
	}
	for _, cDto := range dto.Contacts {
		p.Contacts = append(p.Contacts, contactFromDto(cDto))
	}
	return p
}

func contactFromDto(dto *ContactDto) *Contact {
	c := &Contact{ID: dto.ID, ContactType: dto.ContactType, ContactValue: dto.ContactValue}
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return c
}

func medicalHistoryFromDto(dto *MedicalHistoryDto) *MedicalHistory {
	mh := &MedicalHistory{ID: dto.ID, Type: dto.Type, History: dto.History}
	if mh.ID == uuid.Nil {
		mh.ID = uuid.New()
	}
	return mh
}

// Merge applies non-nil fields from the dto onto the patient. Collections
// (contacts, medical history) replace the existing collection when present.
func Merge(p *Patient, dto *Dto) {
	if dto == nil {
		return
	}
	if dto.FacilityID != nil {
		p.FacilityID = *dto.FacilityID
	}
	if dto.GeoZoneID != nil {
		p.GeoZoneID = *dto.GeoZoneID
	}
	if dto.RegistrationDate != nil {
		p.RegistrationDate = *dto.RegistrationDate
	}
	if dto.Person != nil {
		mergePerson(p, dto.Person)
	}
	if dto.MedicalHistory != nil {
		p.MedicalHistory = nil
		for _, mhDto := range dto.MedicalHistory {
			p.MedicalHistory = append(p.MedicalHistory, medicalHistoryFromDto(mhDto))
		}
	}
}

func mergePerson(p *Patient, dto *PersonDto) {
	if p.Person == nil {
		p.Person = personFromDto(dto)
		return
	}
	person := p.Person
	if dto.FirstName != nil {
		person.FirstName = *dto.FirstName
	}
	if dto.LastName != nil {
		person.LastName = *dto.LastName
	}
	if dto.NickName != nil {
		person.NickName = *dto.NickName
	}
	if dto.NationalID != nil {
		person.NationalID = *dto.NationalID
	}
	if dto.Sex != nil {
		person.Sex = *dto.Sex
	}
	if dto.DateOfBirth != nil {
		person.DateOfBirth = dto.DateOfBirth
	}
	if dto.IsDoBEstimated != nil {
		person.IsDoBEstimated = *dto.IsDoBEstimated
	}
	if dto.PhysicalAddress != nil {
		person.PhysicalAddress = *dto.PhysicalAddress
	}
	if dto.NextOfKinFullName != nil {
		person.NextOfKinFullName = *dto.NextOfKinFullName
	}
	if dto.NextOfKinContact != nil {
		person.NextOfKinContact = *dto.NextOfKinContact
	}
	if dto.MotherMaidenName != nil {
		person.MotherMaidenName = *dto.MotherMaidenName
	}
	if dto.Deceased != nil {
		person.Deceased = *dto.Deceased
	}
	if dto.Retired != nil {
		person.Retired = *dto.Retired
	}
	if dto.Contacts != nil {
		person.Contacts = nil
		for _, cDto := range dto.Contacts {
			person.Contacts = append(person.Contacts, contactFromDto(cDto))
		}
	}
}
