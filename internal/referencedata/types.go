// Package referencedata provides read-only lookups of orderables, lots and
// facilities from the reference data service.
package referencedata

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Orderable is a dispensable product. It is an externally owned snapshot,
// fetched per operation and never persisted locally.
type Orderable struct {
	ID              uuid.UUID          `json:"id"`
	ProductCode     string             `json:"productCode"`
	FullProductName string             `json:"fullProductName"`
	Programs        []ProgramOrderable `json:"programs"`
}

// ProgramOrderable associates an orderable with a program.
type ProgramOrderable struct {
	ProgramID uuid.UUID `json:"programId"`
	Active    bool      `json:"active"`
}

// Lot is a batch of an orderable with its own code and dates.
type Lot struct {
	ID              uuid.UUID  `json:"id"`
	LotCode         string     `json:"lotCode"`
	Active          bool       `json:"active"`
	TradeItemID     uuid.UUID  `json:"tradeItemId"`
	ExpirationDate  *time.Time `json:"expirationDate,omitempty"`
	ManufactureDate *time.Time `json:"manufactureDate,omitempty"`
}

// Facility is a health facility known to the reference data service.
type Facility struct {
	ID   uuid.UUID `json:"id"`
	Code string    `json:"code"`
	Name string    `json:"name"`
}

// RetrievalError signals that reference data could not be retrieved due to
// a communication failure. A missing resource is not a RetrievalError; the
// lookup methods report that as a nil result.
type RetrievalError struct {
	Resource string
	Status   int
	Response string
}

func (e *RetrievalError) Error() string {
	return fmt.Sprintf("unable to retrieve %s: error code %d, response message: %s",
		e.Resource, e.Status, e.Response)
}
