package prescription

import (
	"time"

	"github.com/google/uuid"
)

// Dto is the wire representation of a prescription. Optional fields are
// pointers: a nil field in an update request leaves the stored value
// untouched, a present field overwrites it.
type Dto struct {
	ID                 uuid.UUID      `json:"id,omitempty"`
	PatientID          *uuid.UUID     `json:"patientId,omitempty"`
	PatientType        *string        `json:"patientType,omitempty"`
	FollowUpDate       *time.Time     `json:"followUpDate,omitempty"`
	IssueDate          *time.Time     `json:"issueDate,omitempty"`
	CreatedDate        *time.Time     `json:"createdDate,omitempty"`
	CapturedDate       *time.Time     `json:"capturedDate,omitempty"`
	LastUpdate         *time.Time     `json:"lastUpdate,omitempty"`
	IsVoided           *bool          `json:"isVoided,omitempty"`
	FacilityID         *uuid.UUID     `json:"facilityId,omitempty"`
	PrescribedByUserID *uuid.UUID     `json:"prescribedByUserId,omitempty"`
	ServedByUserID     *uuid.UUID     `json:"servedByUserId,omitempty"`
	Status             Status         `json:"status,omitempty"`
	LineItems          []*LineItemDto `json:"lineItems,omitempty"`

	// Display fields resolved from reference data for responses only;
	// never persisted.
	FacilityName string `json:"facilityName,omitempty"`
}

// LineItemDto is the wire representation of a line item.
type LineItemDto struct {
	ID                     uuid.UUID      `json:"id,omitempty"`
	Dose                   *int           `json:"dose,omitempty"`
	DoseUnits              *string        `json:"doseUnits,omitempty"`
	DoseFrequency          *string        `json:"doseFrequency,omitempty"`
	Route                  *string        `json:"route,omitempty"`
	Duration               *int           `json:"duration,omitempty"`
	DurationUnits          *string        `json:"durationUnits,omitempty"`
	AdditionalInstructions *string        `json:"additionalInstructions,omitempty"`
	OrderablePrescribed    *uuid.UUID     `json:"orderablePrescribed,omitempty"`
	QuantityPrescribed     *int           `json:"quantityPrescribed,omitempty"`
	OrderableDispensed     *uuid.UUID     `json:"orderableDispensed,omitempty"`
	LotID                  *uuid.UUID     `json:"lotId,omitempty"`
	QuantityDispensed      *int           `json:"quantityDispensed,omitempty"`
	RemainingBalance       *int           `json:"remainingBalance,omitempty"`
	ServedExternally       *bool          `json:"servedExternally,omitempty"`
	Comments               *string        `json:"comments,omitempty"`
	CollectBalanceDate     *time.Time     `json:"collectBalanceDate,omitempty"`
	Status                 LineItemStatus `json:"status,omitempty"`

	// Display fields, response only.
	ProductName string `json:"productName,omitempty"`
	LotCode     string `json:"lotCode,omitempty"`
}

// ToDto maps the aggregate to its wire representation.
func ToDto(p *Prescription) *Dto {
	if p == nil {
		return nil
	}
	dto := &Dto{
		ID:                 p.ID,
		PatientID:          ptr(p.PatientID),
		PatientType:        ptr(p.PatientType),
		FollowUpDate:       p.FollowUpDate,
		IssueDate:          p.IssueDate,
		CreatedDate:        p.CreatedDate,
		CapturedDate:       p.CapturedDate,
		LastUpdate:         p.LastUpdate,
		IsVoided:           ptr(p.IsVoided),
		FacilityID:         ptr(p.FacilityID),
		PrescribedByUserID: ptr(p.PrescribedByUserID),
		ServedByUserID:     ptr(p.ServedByUserID),
		Status:             p.Status,
	}
	for _, li := range p.LineItems {
		dto.LineItems = append(dto.LineItems, LineItemToDto(li))
	}
	return dto
}

// LineItemToDto maps a line item to its wire representation.
func LineItemToDto(li *LineItem) *LineItemDto {
	if li == nil {
		return nil
	}
	return &LineItemDto{
		ID:                     li.ID,
		Dose:                   ptr(li.Dose),
		DoseUnits:              ptr(li.DoseUnits),
		DoseFrequency:          ptr(li.DoseFrequency),
		Route:                  ptr(li.Route),
		Duration:               ptr(li.Duration),
		DurationUnits:          ptr(li.DurationUnits),
		AdditionalInstructions: ptr(li.AdditionalInstructions),
		OrderablePrescribed:    ptr(li.OrderablePrescribed),
		QuantityPrescribed:     ptr(li.QuantityPrescribed),
		OrderableDispensed:     ptr(li.OrderableDispensed),
		LotID:                  ptr(li.LotID),
		QuantityDispensed:      ptr(li.QuantityDispensed),
		RemainingBalance:       ptr(li.RemainingBalance),
		ServedExternally:       ptr(li.ServedExternally),
		Comments:               ptr(li.Comments),
		CollectBalanceDate:     li.CollectBalanceDate,
		Status:                 li.Status,
	}
}

// ToLineItem maps a wire line item to the domain model. Status defaults to
// REQUESTED; clients cannot inject serving statuses through create/update.
func (d *LineItemDto) ToLineItem() *LineItem {
	li := &LineItem{
		ID:     d.ID,
		Status: LineItemRequested,
	}
	d.apply(li)
	return li
}

// apply copies non-nil fields onto the line item, leaving Status alone.
func (d *LineItemDto) apply(li *LineItem) {
	if d.Dose != nil {
		li.Dose = *d.Dose
	}
	if d.DoseUnits != nil {
		li.DoseUnits = *d.DoseUnits
	}
	if d.DoseFrequency != nil {
		li.DoseFrequency = *d.DoseFrequency
	}
	if d.Route != nil {
		li.Route = *d.Route
	}
	if d.Duration != nil {
		li.Duration = *d.Duration
	}
	if d.DurationUnits != nil {
		li.DurationUnits = *d.DurationUnits
	}
	if d.AdditionalInstructions != nil {
		li.AdditionalInstructions = *d.AdditionalInstructions
	}
	if d.OrderablePrescribed != nil {
		li.OrderablePrescribed = *d.OrderablePrescribed
	}
	if d.QuantityPrescribed != nil {
		li.QuantityPrescribed = *d.QuantityPrescribed
	}
	if d.OrderableDispensed != nil {
		li.OrderableDispensed = *d.OrderableDispensed
	}
	if d.LotID != nil {
		li.LotID = *d.LotID
	}
	if d.QuantityDispensed != nil {
		li.QuantityDispensed = *d.QuantityDispensed
	}
	if d.RemainingBalance != nil {
		li.RemainingBalance = *d.RemainingBalance
	}
	if d.ServedExternally != nil {
		li.ServedExternally = *d.ServedExternally
	}
	if d.Comments != nil {
		li.Comments = *d.Comments
	}
	if d.CollectBalanceDate != nil {
		li.CollectBalanceDate = d.CollectBalanceDate
	}
}

// Merge applies non-nil scalar fields from the dto onto the aggregate.
// A present lineItems collection replaces the existing one entirely;
// absent fields leave stored values untouched. Status is derived state and
// is deliberately not merged.
func Merge(p *Prescription, dto *Dto) {
	if dto == nil {
		return
	}
	mergeScalars(p, dto)
	if dto.LineItems != nil {
		items := make([]*LineItem, 0, len(dto.LineItems))
		for _, liDto := range dto.LineItems {
			items = append(items, liDto.ToLineItem())
		}
		p.ReplaceLineItems(items)
	}
	now := time.Now().UTC()
	p.LastUpdate = &now
}

// ServeMerge applies a serve request onto the aggregate. Scalars merge as
// in Merge; line items are matched by id so that stored serving statuses
// survive the merge. The skip of already FULLY_SERVED items therefore
// cannot be defeated by a client resending a line with a different status.
func ServeMerge(p *Prescription, dto *Dto) {
	if dto == nil {
		return
	}
	mergeScalars(p, dto)
	if dto.LineItems != nil {
		existing := make(map[uuid.UUID]*LineItem, len(p.LineItems))
		for _, li := range p.LineItems {
			existing[li.ID] = li
		}
		items := make([]*LineItem, 0, len(dto.LineItems))
		for _, liDto := range dto.LineItems {
			if cur, ok := existing[liDto.ID]; ok {
				liDto.apply(cur)
				items = append(items, cur)
			} else {
				items = append(items, liDto.ToLineItem())
			}
		}
		p.ReplaceLineItems(items)
	}
	now := time.Now().UTC()
	p.LastUpdate = &now
}

func mergeScalars(p *Prescription, dto *Dto) {
	if dto.PatientID != nil {
		p.PatientID = *dto.PatientID
	}
	if dto.PatientType != nil {
		p.PatientType = *dto.PatientType
	}
	if dto.FollowUpDate != nil {
		p.FollowUpDate = dto.FollowUpDate
	}
	if dto.IssueDate != nil {
		p.IssueDate = dto.IssueDate
	}
	if dto.CapturedDate != nil {
		p.CapturedDate = dto.CapturedDate
	}
	if dto.FacilityID != nil {
		p.FacilityID = *dto.FacilityID
	}
	if dto.PrescribedByUserID != nil {
		p.PrescribedByUserID = *dto.PrescribedByUserID
	}
	if dto.ServedByUserID != nil {
		p.ServedByUserID = *dto.ServedByUserID
	}
}

// FromDto builds a new aggregate from a create request.
func FromDto(dto *Dto) *Prescription {
	p := &Prescription{
		ID:     dto.ID,
		Status: StatusInitiated,
	}
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if dto.PatientID != nil {
		p.PatientID = *dto.PatientID
	}
	if dto.PatientType != nil {
		p.PatientType = *dto.PatientType
	}
	if dto.FacilityID != nil {
		p.FacilityID = *dto.FacilityID
	}
	if dto.PrescribedByUserID != nil {
		p.PrescribedByUserID = *dto.PrescribedByUserID
	}
	p.FollowUpDate = dto.FollowUpDate
	p.IssueDate = dto.IssueDate
	p.CapturedDate = dto.CapturedDate
	now := time.Now().UTC()
	p.CreatedDate = &now
	p.LastUpdate = &now
	for _, liDto := range dto.LineItems {
		p.AttachLineItem(liDto.ToLineItem())
	}
	return p
}

func ptr[T any](v T) *T { return &v }
