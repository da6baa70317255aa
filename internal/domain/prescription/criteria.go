package prescription

import (
	"time"

	"github.com/google/uuid"
)

// Predicate is a single filter over a prescription. Factories below return
// an always-true predicate when their criterion is absent, so a composed
// filter degrades gracefully to "no filter" as inputs go unspecified.
type Predicate func(*Prescription) bool

// And folds predicates with logical AND.
func And(preds ...Predicate) Predicate {
	return func(p *Prescription) bool {
		for _, pred := range preds {
			if !pred(p) {
				return false
			}
		}
		return true
	}
}

// PatientIDIn matches prescriptions whose patient id is in the given set.
// A nil or empty set matches everything.
func PatientIDIn(ids []uuid.UUID) Predicate {
	if len(ids) == 0 {
		return matchAll
	}
	set := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return func(p *Prescription) bool {
		_, ok := set[p.PatientID]
		return ok
	}
}

// StatusIn matches prescriptions whose status is in the given set.
func StatusIn(statuses []Status) Predicate {
	if len(statuses) == 0 {
		return matchAll
	}
	set := make(map[Status]struct{}, len(statuses))
	for _, s := range statuses {
		set[s] = struct{}{}
	}
	return func(p *Prescription) bool {
		_, ok := set[p.Status]
		return ok
	}
}

// PatientTypeEquals matches on patient type; empty means no constraint.
func PatientTypeEquals(patientType string) Predicate {
	if patientType == "" {
		return matchAll
	}
	return func(p *Prescription) bool { return p.PatientType == patientType }
}

// VoidedEquals matches on the voided flag; nil means no constraint.
func VoidedEquals(isVoided *bool) Predicate {
	if isVoided == nil {
		return matchAll
	}
	return func(p *Prescription) bool { return p.IsVoided == *isVoided }
}

// FollowUpDateEquals matches on the follow-up date; nil means no constraint.
func FollowUpDateEquals(followUpDate *time.Time) Predicate {
	if followUpDate == nil {
		return matchAll
	}
	want := followUpDate.Truncate(24 * time.Hour)
	return func(p *Prescription) bool {
		return p.FollowUpDate != nil && p.FollowUpDate.Truncate(24*time.Hour).Equal(want)
	}
}

func matchAll(*Prescription) bool { return true }

// Criteria carries the optional search filters accepted by the repository.
// Absent fields impose no constraint; present fields combine with AND.
type Criteria struct {
	PatientIDs   []uuid.UUID
	Statuses     []Status
	PatientType  string
	IsVoided     *bool
	FollowUpDate *time.Time
}

// Predicate composes the criteria into a single filter.
func (c Criteria) Predicate() Predicate {
	return And(
		PatientIDIn(c.PatientIDs),
		StatusIn(c.Statuses),
		PatientTypeEquals(c.PatientType),
		VoidedEquals(c.IsVoided),
		FollowUpDateEquals(c.FollowUpDate),
	)
}
