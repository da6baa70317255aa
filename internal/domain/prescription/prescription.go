// Package prescription implements the prescription aggregate and its
// serving state machine.
package prescription

import (
	"time"

	"github.com/google/uuid"
)

// Status represents the derived status of a prescription. It is never set
// directly by a client; Serve derives it from the line item statuses.
type Status string

const (
	StatusInitiated       Status = "INITIATED"
	StatusPartiallyServed Status = "PARTIALLY_SERVED"
	StatusFullyServed     Status = "FULLY_SERVED"
)

// LineItemStatus represents the serving status of a single line item.
type LineItemStatus string

const (
	LineItemRequested       LineItemStatus = "REQUESTED"
	LineItemFullyServed     LineItemStatus = "FULLY_SERVED"
	LineItemPartiallyServed LineItemStatus = "PARTIALLY_SERVED"
	LineItemInadequateStock LineItemStatus = "INADEQUATE_STOCK"
	LineItemProductNotExist LineItemStatus = "PRODUCT_NOT_EXIST"
)

// Prescription is the aggregate root. It owns its line items exclusively:
// replacing the collection on update deletes orphans.
type Prescription struct {
	ID                 uuid.UUID
	Version            int64
	PatientID          uuid.UUID
	PatientType        string
	FollowUpDate       *time.Time
	IssueDate          *time.Time
	CreatedDate        *time.Time
	CapturedDate       *time.Time
	LastUpdate         *time.Time
	IsVoided           bool
	FacilityID         uuid.UUID
	PrescribedByUserID uuid.UUID
	ServedByUserID     uuid.UUID
	Status             Status
	LineItems          []*LineItem
}

// LineItem is one prescribed product within a prescription. It has no
// lifecycle independent of its owning prescription.
type LineItem struct {
	ID             uuid.UUID
	PrescriptionID uuid.UUID

	// Prescribing attributes.
	Dose                   int
	DoseUnits              string
	DoseFrequency          string
	Route                  string
	Duration               int
	DurationUnits          string
	AdditionalInstructions string
	OrderablePrescribed    uuid.UUID
	QuantityPrescribed     int

	// Serving attributes.
	OrderableDispensed uuid.UUID
	LotID              uuid.UUID
	QuantityDispensed  int
	RemainingBalance   int
	ServedExternally   bool
	Comments           string
	CollectBalanceDate *time.Time

	Status LineItemStatus
}

// New builds a prescription in its initial state. Line items default to
// REQUESTED; the aggregate starts INITIATED.
func New(patientID, facilityID uuid.UUID) *Prescription {
	return &Prescription{
		ID:         uuid.New(),
		PatientID:  patientID,
		FacilityID: facilityID,
		Status:     StatusInitiated,
	}
}

// AttachLineItem appends a line item, assigning ownership and defaulting
// the status when unset.
func (p *Prescription) AttachLineItem(li *LineItem) {
	if li.ID == uuid.Nil {
		li.ID = uuid.New()
	}
	li.PrescriptionID = p.ID
	if li.Status == "" {
		li.Status = LineItemRequested
	}
	p.LineItems = append(p.LineItems, li)
}

// ReplaceLineItems drops the current collection and takes exclusive
// ownership of the incoming one. Old line items are orphaned and will be
// deleted on save.
func (p *Prescription) ReplaceLineItems(items []*LineItem) {
	p.LineItems = nil
	for _, li := range items {
		p.AttachLineItem(li)
	}
}

// DeriveStatus recomputes the aggregate status from the line item statuses:
// FULLY_SERVED only when every line item is FULLY_SERVED, otherwise
// PARTIALLY_SERVED. An empty collection therefore derives PARTIALLY_SERVED.
func (p *Prescription) DeriveStatus() {
	for _, li := range p.LineItems {
		if li.Status != LineItemFullyServed {
			p.Status = StatusPartiallyServed
			return
		}
	}
	if len(p.LineItems) == 0 {
		p.Status = StatusPartiallyServed
		return
	}
	p.Status = StatusFullyServed
}

// Void marks the prescription logically deleted. Prescriptions are never
// hard-deleted.
func (p *Prescription) Void() {
	p.IsVoided = true
}
