package prescription

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestEmptyCriteriaMatchesEverything(t *testing.T) {
	match := Criteria{}.Predicate()
	p := New(uuid.New(), uuid.New())
	p.Void()
	if !match(p) {
		t.Error("empty criteria must match any prescription")
	}
}

func TestCriteriaCombineWithAnd(t *testing.T) {
	patientID := uuid.New()
	p := New(patientID, uuid.New())
	p.PatientType = "OPD"
	p.Status = StatusPartiallyServed

	match := Criteria{
		PatientIDs:  []uuid.UUID{patientID},
		Statuses:    []Status{StatusPartiallyServed},
		PatientType: "OPD",
	}.Predicate()
	if !match(p) {
		t.Error("all criteria satisfied, expected match")
	}

	match = Criteria{
		PatientIDs: []uuid.UUID{patientID},
		Statuses:   []Status{StatusFullyServed},
	}.Predicate()
	if match(p) {
		t.Error("one failing criterion must reject the prescription")
	}
}

func TestVoidedFilterIsTristate(t *testing.T) {
	voided := New(uuid.New(), uuid.New())
	voided.Void()
	active := New(uuid.New(), uuid.New())

	unfiltered := Criteria{}.Predicate()
	if !unfiltered(voided) || !unfiltered(active) {
		t.Error("absent isVoided must match both")
	}

	wantVoided := true
	onlyVoided := Criteria{IsVoided: &wantVoided}.Predicate()
	if !onlyVoided(voided) || onlyVoided(active) {
		t.Error("isVoided=true must match only voided prescriptions")
	}

	wantVoided = false
	onlyActive := Criteria{IsVoided: &wantVoided}.Predicate()
	if onlyActive(voided) || !onlyActive(active) {
		t.Error("isVoided=false must match only active prescriptions")
	}
}

func TestFollowUpDateMatchesOnDayNotInstant(t *testing.T) {
	day := time.Date(2026, 6, 15, 0, 0, 0, 0, time.UTC)
	p := New(uuid.New(), uuid.New())
	afternoon := day.Add(14 * time.Hour)
	p.FollowUpDate = &afternoon

	match := Criteria{FollowUpDate: &day}.Predicate()
	if !match(p) {
		t.Error("follow-up filter must compare calendar days")
	}

	nextDay := day.AddDate(0, 0, 1)
	match = Criteria{FollowUpDate: &nextDay}.Predicate()
	if match(p) {
		t.Error("different day must not match")
	}

	noDate := New(uuid.New(), uuid.New())
	match = Criteria{FollowUpDate: &day}.Predicate()
	if match(noDate) {
		t.Error("prescription without follow-up date must not match a date filter")
	}
}
