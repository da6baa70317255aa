// Package memory provides in-memory repository implementations used by
// tests and local development.
package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/Lesotho-eLMIS/lesotho-dispensing/internal/domain/dispensing"
	"github.com/Lesotho-eLMIS/lesotho-dispensing/internal/domain/location"
	"github.com/Lesotho-eLMIS/lesotho-dispensing/internal/domain/patient"
	"github.com/Lesotho-eLMIS/lesotho-dispensing/internal/domain/prescription"
)

// PrescriptionStore is an in-memory prescription.Repository with the same
// optimistic concurrency semantics as the postgres store.
type PrescriptionStore struct {
	mu     sync.RWMutex
	byID   map[uuid.UUID]*prescription.Prescription
	events []*prescription.Event
}

// NewPrescriptionStore creates an empty store.
func NewPrescriptionStore() *PrescriptionStore {
	return &PrescriptionStore{byID: make(map[uuid.UUID]*prescription.Prescription)}
}

func (s *PrescriptionStore) FindByID(ctx context.Context, id uuid.UUID) (*prescription.Prescription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.byID[id]
	if !ok {
		return nil, prescription.ErrNotFound
	}
	return clonePrescription(p), nil
}

func (s *PrescriptionStore) Save(ctx context.Context, p *prescription.Prescription, events ...*prescription.Event) (*prescription.Prescription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if current, ok := s.byID[p.ID]; ok {
		if current.Version != p.Version {
			return nil, prescription.ErrVersionConflict
		}
	} else if p.Version != 0 {
		return nil, prescription.ErrVersionConflict
	}
	stored := clonePrescription(p)
	stored.Version++
	s.byID[p.ID] = stored
	s.events = append(s.events, events...)
	return clonePrescription(stored), nil
}

func (s *PrescriptionStore) FindAll(ctx context.Context, criteria prescription.Criteria) ([]*prescription.Prescription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	match := criteria.Predicate()
	var out []*prescription.Prescription
	for _, p := range s.byID {
		if match(p) {
			out = append(out, clonePrescription(p))
		}
	}
	return out, nil
}

// Events returns the events recorded by Save, in order.
func (s *PrescriptionStore) Events() []*prescription.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*prescription.Event, len(s.events))
	copy(out, s.events)
	return out
}

func clonePrescription(p *prescription.Prescription) *prescription.Prescription {
	cp := *p
	cp.LineItems = make([]*prescription.LineItem, 0, len(p.LineItems))
	for _, li := range p.LineItems {
		cli := *li
		cp.LineItems = append(cp.LineItems, &cli)
	}
	return &cp
}

// PatientStore is an in-memory patient.Repository.
type PatientStore struct {
	mu       sync.RWMutex
	byID     map[uuid.UUID]*patient.Patient
	counters map[uuid.UUID]int
}

// NewPatientStore creates an empty store.
func NewPatientStore() *PatientStore {
	return &PatientStore{
		byID:     make(map[uuid.UUID]*patient.Patient),
		counters: make(map[uuid.UUID]int),
	}
}

func (s *PatientStore) FindByID(ctx context.Context, id uuid.UUID) (*patient.Patient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.byID[id]
	if !ok {
		return nil, patient.ErrNotFound
	}
	return clonePatient(p), nil
}

func (s *PatientStore) Save(ctx context.Context, p *patient.Patient) (*patient.Patient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := clonePatient(p)
	s.byID[p.ID] = stored
	return clonePatient(stored), nil
}

func (s *PatientStore) FindAll(ctx context.Context, criteria patient.Criteria) ([]*patient.Patient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*patient.Patient
	for _, p := range s.byID {
		if criteria.Matches(p) {
			out = append(out, clonePatient(p))
		}
	}
	return out, nil
}

func (s *PatientStore) NextPatientNumber(ctx context.Context, facilityID uuid.UUID) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters[facilityID]++
	return FormatPatientNumber(facilityID, s.counters[facilityID]), nil
}

// FormatPatientNumber renders a facility-scoped sequential patient number.
func FormatPatientNumber(facilityID uuid.UUID, seq int) string {
	prefix := strings.SplitN(facilityID.String(), "-", 2)[0]
	return fmt.Sprintf("%s-%06d", strings.ToUpper(prefix), seq)
}

func clonePatient(p *patient.Patient) *patient.Patient {
	cp := *p
	if p.Person != nil {
		person := *p.Person
		person.Contacts = make([]*patient.Contact, 0, len(p.Person.Contacts))
		for _, c := range p.Person.Contacts {
			cc := *c
			person.Contacts = append(person.Contacts, &cc)
		}
		cp.Person = &person
	}
	cp.MedicalHistory = make([]*patient.MedicalHistory, 0, len(p.MedicalHistory))
	for _, h := range p.MedicalHistory {
		ch := *h
		cp.MedicalHistory = append(cp.MedicalHistory, &ch)
	}
	return &cp
}

// DispensingEventStore is an in-memory dispensing.Repository.
type DispensingEventStore struct {
	mu   sync.RWMutex
	byID map[uuid.UUID]*dispensing.Event
}

// NewDispensingEventStore creates an empty store.
func NewDispensingEventStore() *DispensingEventStore {
	return &DispensingEventStore{byID: make(map[uuid.UUID]*dispensing.Event)}
}

func (s *DispensingEventStore) FindByID(ctx context.Context, id uuid.UUID) (*dispensing.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ev, ok := s.byID[id]
	if !ok {
		return nil, dispensing.ErrNotFound
	}
	return cloneDispensingEvent(ev), nil
}

func (s *DispensingEventStore) FindByDestinationID(ctx context.Context, destinationID uuid.UUID) ([]*dispensing.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*dispensing.Event
	for _, ev := range s.byID {
		if ev.DestinationID == destinationID {
			out = append(out, cloneDispensingEvent(ev))
		}
	}
	return out, nil
}

func (s *DispensingEventStore) Save(ctx context.Context, ev *dispensing.Event) (*dispensing.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := cloneDispensingEvent(ev)
	s.byID[ev.ID] = stored
	return cloneDispensingEvent(stored), nil
}

func (s *DispensingEventStore) Delete(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[id]; !ok {
		return dispensing.ErrNotFound
	}
	delete(s.byID, id)
	return nil
}

func cloneDispensingEvent(ev *dispensing.Event) *dispensing.Event {
	cp := *ev
	cp.Discrepancies = make([]*dispensing.Discrepancy, 0, len(ev.Discrepancies))
	for _, d := range ev.Discrepancies {
		cd := *d
		cp.Discrepancies = append(cp.Discrepancies, &cd)
	}
	return &cp
}

// LocationStore is an in-memory location.Repository.
type LocationStore struct {
	mu   sync.RWMutex
	byID map[uuid.UUID]*location.Location
}

// NewLocationStore creates an empty store.
func NewLocationStore() *LocationStore {
	return &LocationStore{byID: make(map[uuid.UUID]*location.Location)}
}

func (s *LocationStore) FindByID(ctx context.Context, id uuid.UUID) (*location.Location, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.byID[id]
	if !ok {
		return nil, location.ErrNotFound
	}
	cp := *l
	return &cp, nil
}

func (s *LocationStore) Save(ctx context.Context, l *location.Location) (*location.Location, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *l
	s.byID[l.ID] = &cp
	out := cp
	return &out, nil
}
