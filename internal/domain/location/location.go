// Package location implements the catchment location records patients are
// registered against: district, village, constituency and chief.
package location

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrNotFound is returned when no location exists for the given id.
var ErrNotFound = errors.New("location not found")

// Location is a catchment area record.
type Location struct {
	ID           uuid.UUID
	District     string
	Village      string
	Constituency string
	Chief        string
}

// Dto is the wire representation of a location.
type Dto struct {
	ID           uuid.UUID `json:"id,omitempty"`
	District     string    `json:"district,omitempty"`
	Village      string    `json:"village,omitempty"`
	Constituency string    `json:"constituency,omitempty"`
	Chief        string    `json:"chief,omitempty"`
}

// ToDto maps a location to its wire representation.
func ToDto(l *Location) *Dto {
	if l == nil {
		return nil
	}
	return &Dto{
		ID:           l.ID,
		District:     l.District,
		Village:      l.Village,
		Constituency: l.Constituency,
		Chief:        l.Chief,
	}
}

// FromDto builds a location from a create request.
func FromDto(dto *Dto) *Location {
	l := &Location{
		ID:           dto.ID,
		District:     dto.District,
		Village:      dto.Village,
		Constituency: dto.Constituency,
		Chief:        dto.Chief,
	}
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return l
}

// Repository persists locations.
type Repository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Location, error)
	Save(ctx context.Context, l *Location) (*Location, error)
}
