package calendar

import (
	"github.com/google/uuid"

	"github.com/surgiplan/surgery-scheduling/internal/surgery"
)

// Filter is a set of independent equality predicates. Zero values disable
// a predicate (the HTTP layer maps the literal query value "all" to the
// zero value). Active predicates combine with AND.
//
// The filter is date-agnostic: excluding undated surgeries from calendar
// views is Bucket's job, so request lists can still show them.
type Filter struct {
	DoctorID    uuid.UUID
	AuthStatus  surgery.AuthStatus
	Status      surgery.Status
	HospitalID  uuid.UUID
	InsuranceID uuid.UUID
}

// Matches reports whether the surgery passes every active predicate. The
// doctor predicate passes when the doctor is the primary responsible
// doctor or one of the additional participants.
func (f Filter) Matches(s *surgery.Surgery) bool {
	if f.DoctorID != uuid.Nil && !s.HasParticipant(f.DoctorID) {
		return false
	}
	if f.AuthStatus != "" && s.AuthStatus != f.AuthStatus {
		return false
	}
	if f.Status != "" && s.Status != f.Status {
		return false
	}
	if f.HospitalID != uuid.Nil && s.HospitalID != f.HospitalID {
		return false
	}
	if f.InsuranceID != uuid.Nil && s.InsuranceID != f.InsuranceID {
		return false
	}
	return true
}

// Apply returns the surgeries passing the filter, preserving input order.
func (f Filter) Apply(surgeries []surgery.Surgery) []surgery.Surgery {
	out := make([]surgery.Surgery, 0, len(surgeries))
	for i := range surgeries {
		if f.Matches(&surgeries[i]) {
			out = append(out, surgeries[i])
		}
	}
	return out
}
