package referencedata

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/Lesotho-eLMIS/lesotho-dispensing/pkg/circuitbreaker"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	breaker, err := circuitbreaker.New(circuitbreaker.DefaultConfig("referencedata-test"), nil)
	if err != nil {
		t.Fatalf("breaker creation failed: %v", err)
	}

	cfg := DefaultClientConfig()
	cfg.BaseURL = server.URL
	cfg.AuthToken = "test-token"
	return NewClient(cfg, breaker, nil), server
}

func TestFindOrderableDecodesResponse(t *testing.T) {
	id := uuid.New()
	programID := uuid.New()

	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/orderables/"+id.String() {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Errorf("unexpected auth header %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"` + id.String() + `","productCode":"C100","fullProductName":"Paracetamol 500mg","programs":[{"programId":"` + programID.String() + `","active":true}]}`))
	})

	orderable, err := client.FindOrderable(context.Background(), id)
	if err != nil {
		t.Fatalf("FindOrderable failed: %v", err)
	}
	if orderable == nil {
		t.Fatal("expected orderable, got nil")
	}
	if orderable.FullProductName != "Paracetamol 500mg" {
		t.Errorf("unexpected product name %q", orderable.FullProductName)
	}
	if len(orderable.Programs) != 1 || orderable.Programs[0].ProgramID != programID {
		t.Errorf("unexpected programs %+v", orderable.Programs)
	}
}

func TestFindOrderableNotFoundIsNotAnError(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	orderable, err := client.FindOrderable(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("expected nil error for missing orderable, got %v", err)
	}
	if orderable != nil {
		t.Errorf("expected nil orderable, got %+v", orderable)
	}
}

func TestFindLotEmptyBodyIsNotFound(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	lot, err := client.FindLot(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("expected nil error for empty body, got %v", err)
	}
	if lot != nil {
		t.Errorf("expected nil lot, got %+v", lot)
	}
}

func TestFindFacilityServerErrorIsRetrievalError(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})

	_, err := client.FindFacility(context.Background(), uuid.New())
	if err == nil {
		t.Fatal("expected error for 500 response")
	}
	var retrieval *RetrievalError
	if !errors.As(err, &retrieval) {
		t.Fatalf("expected *RetrievalError, got %T", err)
	}
	if retrieval.Status != http.StatusInternalServerError {
		t.Errorf("unexpected status %d", retrieval.Status)
	}
	if retrieval.Resource != "facility" {
		t.Errorf("unexpected resource %q", retrieval.Resource)
	}
}

func TestLookupTransportFailureIsRetrievalError(t *testing.T) {
	client, server := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})
	server.Close()

	_, err := client.FindFacility(context.Background(), uuid.New())
	if err == nil {
		t.Fatal("expected error when the service is unreachable")
	}
	var retrieval *RetrievalError
	if !errors.As(err, &retrieval) {
		t.Fatalf("expected *RetrievalError, got %T", err)
	}
}
