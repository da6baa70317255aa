package dispensing

import (
	"time"

	"github.com/google/uuid"
)

// Dto is the wire representation of a dispensing event.
type Dto struct {
	ID                          uuid.UUID         `json:"id,omitempty"`
	SourceID                    *uuid.UUID        `json:"sourceId,omitempty"`
	SourceFreeText              *string           `json:"sourceFreeText,omitempty"`
	DestinationID               *uuid.UUID        `json:"destinationId,omitempty"`
	DestinationFreeText         *string           `json:"destinationFreeText,omitempty"`
	ReferenceNumber             *string           `json:"referenceNumber,omitempty"`
	PackingDate                 *time.Time        `json:"packingDate,omitempty"`
	PackedBy                    *string           `json:"packedBy,omitempty"`
	CartonsQuantityOnWaybill    *int              `json:"cartonsQuantityOnWaybill,omitempty"`
	CartonsQuantityShipped      *int              `json:"cartonsQuantityShipped,omitempty"`
	CartonsQuantityAccepted     *int              `json:"cartonsQuantityAccepted,omitempty"`
	CartonsQuantityRejected     *int              `json:"cartonsQuantityRejected,omitempty"`
	ContainersQuantityOnWaybill *int              `json:"containersQuantityOnWaybill,omitempty"`
	ContainersQuantityShipped   *int              `json:"containersQuantityShipped,omitempty"`
	ContainersQuantityAccepted  *int              `json:"containersQuantityAccepted,omitempty"`
	ContainersQuantityRejected  *int              `json:"containersQuantityRejected,omitempty"`
	Remarks                     *string           `json:"remarks,omitempty"`
	Status                      Status            `json:"status,omitempty"`
	Discrepancies               []*DiscrepancyDto `json:"discrepancies,omitempty"`
}

// DiscrepancyDto is the wire representation of a discrepancy.
type DiscrepancyDto struct {
	ID              uuid.UUID `json:"id,omitempty"`
	Shipped         string    `json:"shipped,omitempty"`
	Rejected        string    `json:"rejected,omitempty"`
	RejectionReason string    `json:"rejectionReason,omitempty"`
	Comments        string    `json:"comments,omitempty"`
}

func (d *DiscrepancyDto) toDiscrepancy() *Discrepancy {
	disc := &Discrepancy{
		ID:              d.ID,
		Shipped:         d.Shipped,
		Rejected:        d.Rejected,
		RejectionReason: d.RejectionReason,
		Comments:        d.Comments,
	}
	if disc.ID == uuid.Nil {
		disc.ID = uuid.New()
	}
	return disc
}

// ToDto maps a dispensing event to its wire representation.
func ToDto(e *Event) *Dto {
	if e == nil {
		return nil
	}
	dto := &Dto{
		ID:                          e.ID,
		SourceID:                    &e.SourceID,
		SourceFreeText:              &e.SourceFreeText,
		DestinationID:               &e.DestinationID,
		DestinationFreeText:         &e.DestinationFreeText,
		ReferenceNumber:             &e.ReferenceNumber,
		PackingDate:                 e.PackingDate,
		PackedBy:                    &e.PackedBy,
		CartonsQuantityOnWaybill:    e.CartonsQuantityOnWaybill,
		CartonsQuantityShipped:      e.CartonsQuantityShipped,
		CartonsQuantityAccepted:     e.CartonsQuantityAccepted,
		CartonsQuantityRejected:     e.CartonsQuantityRejected,
		ContainersQuantityOnWaybill: e.ContainersQuantityOnWaybill,
		ContainersQuantityShipped:   e.ContainersQuantityShipped,
		ContainersQuantityAccepted:  e.ContainersQuantityAccepted,
		ContainersQuantityRejected:  e.ContainersQuantityRejected,
		Remarks:                     &e.Remarks,
		Status:                      e.Status,
	}
	for _, disc := range e.Discrepancies {
		dto.Discrepancies = append(dto.Discrepancies, &DiscrepancyDto{
			ID:              disc.ID,
			Shipped:         disc.Shipped,
			Rejected:        disc.Rejected,
			RejectionReason: disc.RejectionReason,
			Comments:        disc.Comments,
		})
	}
	return dto
}

// FromDto builds a new dispensing event from a create request.
func FromDto(dto *Dto) *Event {
	e := &Event{ID: dto.ID, Status: StatusInitiated}
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	e.Merge(dto)
	return e
}
