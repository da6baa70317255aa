package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/Lesotho-eLMIS/lesotho-dispensing/internal/domain/location"
	"github.com/Lesotho-eLMIS/lesotho-dispensing/internal/infrastructure/memory"
)

func TestLocationCreateAndGet(t *testing.T) {
	handler := NewLocationHandler(memory.NewLocationStore(), nil)

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(&location.Dto{
		District:     "Maseru",
		Village:      "Ha Abia",
		Constituency: "Qoaling",
		Chief:        "Chief Abia",
	}); err != nil {
		t.Fatalf("encode body: %v", err)
	}
	rec := httptest.NewRecorder()
	handler.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", &buf))

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var created location.Dto
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if created.ID == uuid.Nil {
		t.Error("response should carry the assigned id")
	}

	rec = httptest.NewRecorder()
	handler.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/"+created.ID.String(), nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var fetched location.Dto
	if err := json.Unmarshal(rec.Body.Bytes(), &fetched); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if fetched.District != "Maseru" || fetched.Chief != "Chief Abia" {
		t.Errorf("unexpected location %+v", fetched)
	}
}

func TestLocationGetUnknownIs404(t *testing.T) {
	handler := NewLocationHandler(memory.NewLocationStore(), nil)

	rec := httptest.NewRecorder()
	handler.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/"+uuid.NewString(), nil))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}
