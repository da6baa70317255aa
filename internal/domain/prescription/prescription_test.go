package prescription

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestDeriveStatus(t *testing.T) {
	tests := []struct {
		name     string
		statuses []LineItemStatus
		want     Status
	}{
		{"all fully served", []LineItemStatus{LineItemFullyServed, LineItemFullyServed}, StatusFullyServed},
		{"one pending", []LineItemStatus{LineItemFullyServed, LineItemPartiallyServed}, StatusPartiallyServed},
		{"inadequate stock", []LineItemStatus{LineItemInadequateStock}, StatusPartiallyServed},
		{"product not exist", []LineItemStatus{LineItemProductNotExist}, StatusPartiallyServed},
		{"no line items", nil, StatusPartiallyServed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New(uuid.New(), uuid.New())
			for _, st := range tt.statuses {
				p.AttachLineItem(&LineItem{Status: st})
			}
			p.DeriveStatus()
			if p.Status != tt.want {
				t.Errorf("got %s, want %s", p.Status, tt.want)
			}
		})
	}
}

func TestMergeLeavesAbsentFieldsUntouched(t *testing.T) {
	p := New(uuid.New(), uuid.New())
	p.PatientType = "OPD"
	issue := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	p.IssueDate = &issue
	p.AttachLineItem(&LineItem{QuantityPrescribed: 10})

	followUp := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	Merge(p, &Dto{FollowUpDate: &followUp})

	if p.PatientType != "OPD" {
		t.Errorf("absent patientType was overwritten: %q", p.PatientType)
	}
	if p.IssueDate == nil || !p.IssueDate.Equal(issue) {
		t.Errorf("absent issueDate was overwritten")
	}
	if p.FollowUpDate == nil || !p.FollowUpDate.Equal(followUp) {
		t.Errorf("present followUpDate not applied")
	}
	if len(p.LineItems) != 1 {
		t.Errorf("absent lineItems must leave the collection alone, got %d items", len(p.LineItems))
	}
	if p.LastUpdate == nil {
		t.Errorf("merge must touch lastUpdate")
	}
}

func TestMergeReplacesLineItemCollection(t *testing.T) {
	p := New(uuid.New(), uuid.New())
	p.AttachLineItem(&LineItem{QuantityPrescribed: 10})
	p.AttachLineItem(&LineItem{QuantityPrescribed: 20})

	qty := 5
	Merge(p, &Dto{LineItems: []*LineItemDto{{QuantityPrescribed: &qty}}})

	if len(p.LineItems) != 1 {
		t.Fatalf("present lineItems must replace the collection, got %d items", len(p.LineItems))
	}
	if p.LineItems[0].QuantityPrescribed != 5 {
		t.Errorf("replacement item not taken from the request")
	}
	if p.LineItems[0].PrescriptionID != p.ID {
		t.Errorf("replacement item not owned by the aggregate")
	}
	if p.LineItems[0].Status != LineItemRequested {
		t.Errorf("clients must not set statuses through update, got %s", p.LineItems[0].Status)
	}
}

func TestMergeDoesNotTouchDerivedState(t *testing.T) {
	p := New(uuid.New(), uuid.New())
	p.Status = StatusFullyServed
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	p.CreatedDate = &created

	voided := true
	other := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	Merge(p, &Dto{Status: StatusInitiated, IsVoided: &voided, CreatedDate: &other})

	if p.Status != StatusFullyServed {
		t.Errorf("status must not merge, got %s", p.Status)
	}
	if p.IsVoided {
		t.Errorf("isVoided must not merge")
	}
	if !p.CreatedDate.Equal(created) {
		t.Errorf("createdDate must not merge")
	}
}

func TestServeMergePreservesStoredStatuses(t *testing.T) {
	p := New(uuid.New(), uuid.New())
	li := &LineItem{QuantityPrescribed: 10, Status: LineItemFullyServed}
	p.AttachLineItem(li)

	qty := 10
	ServeMerge(p, &Dto{LineItems: []*LineItemDto{{
		ID:                li.ID,
		QuantityDispensed: &qty,
		Status:            LineItemRequested,
	}}})

	if p.LineItems[0].Status != LineItemFullyServed {
		t.Errorf("stored status must survive a serve merge, got %s", p.LineItems[0].Status)
	}
	if p.LineItems[0].QuantityDispensed != 10 {
		t.Errorf("present field not applied")
	}
}

func TestServeMergeAttachesNewItemsAsRequested(t *testing.T) {
	p := New(uuid.New(), uuid.New())
	p.AttachLineItem(&LineItem{QuantityPrescribed: 10})

	qty := 3
	ServeMerge(p, &Dto{LineItems: []*LineItemDto{
		{ID: p.LineItems[0].ID},
		{QuantityPrescribed: &qty, Status: LineItemFullyServed},
	}})

	if len(p.LineItems) != 2 {
		t.Fatalf("expected 2 items, got %d", len(p.LineItems))
	}
	if p.LineItems[1].Status != LineItemRequested {
		t.Errorf("new item must start REQUESTED, got %s", p.LineItems[1].Status)
	}
}

func TestVoid(t *testing.T) {
	p := New(uuid.New(), uuid.New())
	p.Void()
	if !p.IsVoided {
		t.Error("Void must set isVoided")
	}
}

func TestDtoRoundTripKeepsServingFields(t *testing.T) {
	p := New(uuid.New(), uuid.New())
	balance := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	p.AttachLineItem(&LineItem{
		OrderableDispensed: uuid.New(),
		LotID:              uuid.New(),
		QuantityDispensed:  7,
		RemainingBalance:   3,
		ServedExternally:   true,
		CollectBalanceDate: &balance,
		Status:             LineItemPartiallyServed,
	})

	dto := ToDto(p)
	li := dto.LineItems[0]
	if li.QuantityDispensed == nil || *li.QuantityDispensed != 7 {
		t.Errorf("quantityDispensed lost in mapping")
	}
	if li.RemainingBalance == nil || *li.RemainingBalance != 3 {
		t.Errorf("remainingBalance lost in mapping")
	}
	if li.Status != LineItemPartiallyServed {
		t.Errorf("status lost in mapping")
	}
	if li.CollectBalanceDate == nil || !li.CollectBalanceDate.Equal(balance) {
		t.Errorf("collectBalanceDate lost in mapping")
	}
}
