package prescription

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EventType represents the type of lifecycle event
type EventType string

const (
	EventPrescriptionCreated EventType = "PrescriptionCreated"
	EventPrescriptionUpdated EventType = "PrescriptionUpdated"
	EventPrescriptionServed  EventType = "PrescriptionServed"
	EventPrescriptionVoided  EventType = "PrescriptionVoided"
)

// Event is a lifecycle notification recorded in the same transaction as
// the aggregate save and relayed to the broker by the outbox relay.
// Downstream workflows (backorder creation among them) consume these;
// the serving engine itself never acts on them.
type Event struct {
	ID            string          `json:"id"`
	AggregateID   string          `json:"aggregate_id"`
	AggregateType string          `json:"aggregate_type"`
	EventType     EventType       `json:"event_type"`
	EventData     json.RawMessage `json:"event_data"`
	Timestamp     time.Time       `json:"timestamp"`
}

// NewEvent creates a new event with a marshalled payload
func NewEvent(aggregateID uuid.UUID, eventType EventType, data interface{}) (*Event, error) {
	eventData, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return &Event{
		ID:            uuid.New().String(),
		AggregateID:   aggregateID.String(),
		AggregateType: "Prescription",
		EventType:     eventType,
		EventData:     eventData,
		Timestamp:     time.Now().UTC(),
	}, nil
}

// ServedData is the payload of a PrescriptionServed event.
type ServedData struct {
	PrescriptionID uuid.UUID        `json:"prescription_id"`
	FacilityID     uuid.UUID        `json:"facility_id"`
	PatientID      uuid.UUID        `json:"patient_id"`
	ServedByUserID uuid.UUID        `json:"served_by_user_id"`
	Status         Status           `json:"status"`
	LineItems      []ServedLineItem `json:"line_items"`
	ServedAt       time.Time        `json:"served_at"`
}

// ServedLineItem carries the per-line outcome of a serve pass.
type ServedLineItem struct {
	LineItemID         uuid.UUID      `json:"line_item_id"`
	OrderableDispensed uuid.UUID      `json:"orderable_dispensed"`
	LotID              uuid.UUID      `json:"lot_id"`
	QuantityDispensed  int            `json:"quantity_dispensed"`
	RemainingBalance   int            `json:"remaining_balance"`
	CollectBalanceDate *time.Time     `json:"collect_balance_date,omitempty"`
	Status             LineItemStatus `json:"status"`
}

// CreatedData is the payload of a PrescriptionCreated event.
type CreatedData struct {
	PrescriptionID uuid.UUID `json:"prescription_id"`
	PatientID      uuid.UUID `json:"patient_id"`
	FacilityID     uuid.UUID `json:"facility_id"`
	LineItemCount  int       `json:"line_item_count"`
	CreatedAt      time.Time `json:"created_at"`
}

// VoidedData is the payload of a PrescriptionVoided event.
type VoidedData struct {
	PrescriptionID uuid.UUID `json:"prescription_id"`
	VoidedAt       time.Time `json:"voided_at"`
}
