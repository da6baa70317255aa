// Package dispensing implements point-of-delivery dispensing events.
package dispensing

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when no dispensing event exists for the given id.
var ErrNotFound = errors.New("dispensing event not found")

// Status represents the state of a point-of-delivery event.
type Status string

const (
	StatusInitiated       Status = "INITIATED"
	StatusServed          Status = "SERVED"
	StatusPartiallyServed Status = "PARTIALLY_SERVED"
	StatusReturned        Status = "RETURNED"
	StatusCancelled       Status = "CANCELLED"
)

// Event records a point-of-delivery shipment received at a facility.
type Event struct {
	ID                          uuid.UUID
	SourceID                    uuid.UUID
	SourceFreeText              string
	DestinationID               uuid.UUID
	DestinationFreeText         string
	ReferenceNumber             string
	PackingDate                 *time.Time
	PackedBy                    string
	CartonsQuantityOnWaybill    *int
	CartonsQuantityShipped      *int
	CartonsQuantityAccepted     *int
	CartonsQuantityRejected     *int
	ContainersQuantityOnWaybill *int
	ContainersQuantityShipped   *int
	ContainersQuantityAccepted  *int
	ContainersQuantityRejected  *int
	Remarks                     string
	Status                      Status
	Discrepancies               []*Discrepancy
}

// Discrepancy records a quantity or quality problem observed at delivery.
type Discrepancy struct {
	ID              uuid.UUID
	Shipped         string
	Rejected        string
	RejectionReason string
	Comments        string
}

// Merge applies non-nil fields from incoming onto the event; the
// discrepancy collection, when present, replaces the stored one.
func (e *Event) Merge(incoming *Dto) {
	if incoming == nil {
		return
	}
	if incoming.SourceID != nil {
		e.SourceID = *incoming.SourceID
	}
	if incoming.SourceFreeText != nil {
		e.SourceFreeText = *incoming.SourceFreeText
	}
	if incoming.DestinationID != nil {
		e.DestinationID = *incoming.DestinationID
	}
	if incoming.DestinationFreeText != nil {
		e.DestinationFreeText = *incoming.DestinationFreeText
	}
	if incoming.ReferenceNumber != nil {
		e.ReferenceNumber = *incoming.ReferenceNumber
	}
	if incoming.PackingDate != nil {
		e.PackingDate = incoming.PackingDate
	}
	if incoming.PackedBy != nil {
		e.PackedBy = *incoming.PackedBy
	}
	if incoming.CartonsQuantityOnWaybill != nil {
		e.CartonsQuantityOnWaybill = incoming.CartonsQuantityOnWaybill
	}
	if incoming.CartonsQuantityShipped != nil {
		e.CartonsQuantityShipped = incoming.CartonsQuantityShipped
	}
	if incoming.CartonsQuantityAccepted != nil {
		e.CartonsQuantityAccepted = incoming.CartonsQuantityAccepted
	}
	if incoming.CartonsQuantityRejected != nil {
		e.CartonsQuantityRejected = incoming.CartonsQuantityRejected
	}
	if incoming.ContainersQuantityOnWaybill != nil {
		e.ContainersQuantityOnWaybill = incoming.ContainersQuantityOnWaybill
	}
	if incoming.ContainersQuantityShipped != nil {
		e.ContainersQuantityShipped = incoming.ContainersQuantityShipped
	}
	if incoming.ContainersQuantityAccepted != nil {
		e.ContainersQuantityAccepted = incoming.ContainersQuantityAccepted
	}
	if incoming.ContainersQuantityRejected != nil {
		e.ContainersQuantityRejected = incoming.ContainersQuantityRejected
	}
	if incoming.Remarks != nil {
		e.Remarks = *incoming.Remarks
	}
	if incoming.Status != "" {
		e.Status = incoming.Status
	}
	if incoming.Discrepancies != nil {
		e.Discrepancies = nil
		for _, d := range incoming.Discrepancies {
			e.Discrepancies = append(e.Discrepancies, d.toDiscrepancy())
		}
	}
}

// Repository persists dispensing events. Delete removes an event and its
// discrepancies; dispensing events are the only hard-deletable records in
// the module.
type Repository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Event, error)
	FindByDestinationID(ctx context.Context, destinationID uuid.UUID) ([]*Event, error)
	Save(ctx context.Context, e *Event) (*Event, error)
	Delete(ctx context.Context, id uuid.UUID) error
}
