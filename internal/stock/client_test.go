package stock

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/Lesotho-eLMIS/lesotho-dispensing/internal/referencedata"
	"github.com/Lesotho-eLMIS/lesotho-dispensing/pkg/circuitbreaker"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	breaker, err := circuitbreaker.New(circuitbreaker.DefaultConfig("stock-test"), nil)
	if err != nil {
		t.Fatalf("breaker creation failed: %v", err)
	}

	cfg := DefaultClientConfig()
	cfg.BaseURL = server.URL
	cfg.AuthToken = "test-token"
	return NewClient(cfg, breaker, nil)
}

func TestQueryStockOnHandSendsFilters(t *testing.T) {
	programID := uuid.New()
	facilityID := uuid.New()
	orderableID := uuid.New()
	asOfDate := time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/stockCardSummaries" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		q := r.URL.Query()
		if got := q.Get("programId"); got != programID.String() {
			t.Errorf("unexpected programId %q", got)
		}
		if got := q.Get("facilityId"); got != facilityID.String() {
			t.Errorf("unexpected facilityId %q", got)
		}
		if got := q.Get("asOfDate"); got != "2025-03-14" {
			t.Errorf("unexpected asOfDate %q", got)
		}
		if got := q.Get("orderableId"); got != orderableID.String() {
			t.Errorf("unexpected orderableId %q", got)
		}
		if got := q.Get("lotCode"); got != "LOT-7" {
			t.Errorf("unexpected lotCode %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"orderableId":"` + orderableID.String() + `","lotCode":"LOT-7","stockOnHand":42}]`))
	})

	summaries, err := client.QueryStockOnHand(context.Background(), programID, facilityID,
		[]uuid.UUID{orderableID}, asOfDate, "LOT-7")
	if err != nil {
		t.Fatalf("QueryStockOnHand failed: %v", err)
	}
	if len(summaries) != 1 {
		t.Fatalf("expected 1 summary, got %d", len(summaries))
	}
	if summaries[0].StockOnHand != 42 {
		t.Errorf("unexpected stock on hand %d", summaries[0].StockOnHand)
	}
}

func TestQueryStockOnHandEmptyResultIsNotAnError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[]`))
	})

	summaries, err := client.QueryStockOnHand(context.Background(), uuid.New(), uuid.New(),
		[]uuid.UUID{uuid.New()}, time.Now(), "")
	if err != nil {
		t.Fatalf("QueryStockOnHand failed: %v", err)
	}
	if len(summaries) != 0 {
		t.Errorf("expected no summaries, got %d", len(summaries))
	}
}

func TestQueryStockOnHandServerErrorIsRetrievalError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	})

	_, err := client.QueryStockOnHand(context.Background(), uuid.New(), uuid.New(),
		[]uuid.UUID{uuid.New()}, time.Now(), "")
	if err == nil {
		t.Fatal("expected error for 502 response")
	}
	var retrieval *referencedata.RetrievalError
	if !errors.As(err, &retrieval) {
		t.Fatalf("expected *RetrievalError, got %T", err)
	}
	if retrieval.Status != http.StatusBadGateway {
		t.Errorf("unexpected status %d", retrieval.Status)
	}
}

func TestSubmitStockEventPostsPayload(t *testing.T) {
	facilityID := uuid.New()
	var received Event

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/stockEvents" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Errorf("unexpected auth header %q", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("decode request body: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
	})

	event := Event{
		FacilityID: facilityID,
		ProgramID:  uuid.New(),
		AsOfDate:   "2025-03-14",
		LineItems: []EventLineItem{
			{OrderableID: uuid.New(), Quantity: 5, ReasonID: uuid.New()},
		},
	}
	if err := client.SubmitStockEvent(context.Background(), event); err != nil {
		t.Fatalf("SubmitStockEvent failed: %v", err)
	}
	if received.FacilityID != facilityID {
		t.Errorf("unexpected facility id %s", received.FacilityID)
	}
	if len(received.LineItems) != 1 || received.LineItems[0].Quantity != 5 {
		t.Errorf("unexpected line items %+v", received.LineItems)
	}
}

func TestSubmitStockEventFailureSurfaces(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "insufficient stock", http.StatusBadRequest)
	})

	err := client.SubmitStockEvent(context.Background(), Event{FacilityID: uuid.New()})
	if err == nil {
		t.Fatal("expected error for rejected stock event")
	}
}
