package surgery

import (
	"time"

	"github.com/google/uuid"
)

type AuthStatus string

const (
	AuthPending  AuthStatus = "pending"
	AuthApproved AuthStatus = "approved"
	AuthDenied   AuthStatus = "denied"
)

type Status string

const (
	StatusRequested Status = "requested"
	StatusScheduled Status = "scheduled"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// Costs are the named auxiliary amounts attached to a surgery, on top of
// the per-doctor fees.
type Costs struct {
	Material   float64 `json:"material"`
	Assistant  float64 `json:"assistant"`
	Scrub      float64 `json:"scrub"`
	Anesthesia float64 `json:"anesthesia"`
	Facility   float64 `json:"facility"`
}

// Surgery is a requested or scheduled surgical procedure. AuthStatus and
// Status are independent axes: a surgery can be scheduled while its
// insurance authorization is still pending.
type Surgery struct {
	ID             uuid.UUID
	PatientName    string
	DoctorID       uuid.UUID             // primary responsible doctor
	TeamIDs        []uuid.UUID           // additional participants
	ScheduledAt    *time.Time            // nil until a date is set
	HospitalID     uuid.UUID
	InsuranceID    uuid.UUID
	AuthStatus     AuthStatus
	Status         Status
	Fees           map[uuid.UUID]float64 // keyed by doctor id
	Costs          Costs
	Notes          string
	PreAttachment  string
	PostAttachment string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type Doctor struct {
	ID        uuid.UUID
	Name      string
	Contact   *string
	Color     string
	Admin     bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Hospital struct {
	ID   uuid.UUID
	Name string
}

type InsurancePlan struct {
	ID   uuid.UUID
	Name string
}

// Clone returns a copy sharing no mutable state with the receiver.
func (s *Surgery) Clone() Surgery {
	out := *s
	if s.TeamIDs != nil {
		out.TeamIDs = append([]uuid.UUID(nil), s.TeamIDs...)
	}
	if s.Fees != nil {
		out.Fees = make(map[uuid.UUID]float64, len(s.Fees))
		for id, v := range s.Fees {
			out.Fees[id] = v
		}
	}
	if s.ScheduledAt != nil {
		ts := *s.ScheduledAt
		out.ScheduledAt = &ts
	}
	return out
}

// Team returns the full fee-eligible membership: the primary doctor plus
// every additional participant.
func (s *Surgery) Team() []uuid.UUID {
	team := make([]uuid.UUID, 0, len(s.TeamIDs)+1)
	if s.DoctorID != uuid.Nil {
		team = append(team, s.DoctorID)
	}
	for _, id := range s.TeamIDs {
		if id != s.DoctorID {
			team = append(team, id)
		}
	}
	return team
}

// ReconcileFees restores the invariant that fee keys are exactly a subset
// of the current team: entries for removed members are dropped and new
// members get a zero default.
func (s *Surgery) ReconcileFees() {
	members := make(map[uuid.UUID]bool)
	for _, id := range s.Team() {
		members[id] = true
	}

	if s.Fees == nil {
		s.Fees = make(map[uuid.UUID]float64, len(members))
	}

	for id := range s.Fees {
		if !members[id] {
			delete(s.Fees, id)
		}
	}
	for id := range members {
		if _, ok := s.Fees[id]; !ok {
			s.Fees[id] = 0
		}
	}
}

// HasParticipant reports whether the doctor is the primary responsible
// doctor or appears among the additional participants.
func (s *Surgery) HasParticipant(doctorID uuid.UUID) bool {
	if s.DoctorID == doctorID {
		return true
	}
	for _, id := range s.TeamIDs {
		if id == doctorID {
			return true
		}
	}
	return false
}

// Validate checks the record before any write is attempted. Violations
// never reach the store.
func (s *Surgery) Validate() error {
	if s.PatientName == "" {
		return ErrMissingPatientName
	}
	if s.DoctorID == uuid.Nil {
		return ErrMissingDoctor
	}
	if s.Status == StatusScheduled && s.ScheduledAt == nil {
		return ErrMissingDate
	}
	switch s.Status {
	case StatusRequested, StatusScheduled, StatusCompleted, StatusCancelled:
	default:
		return ErrInvalidStatus
	}
	switch s.AuthStatus {
	case AuthPending, AuthApproved, AuthDenied:
	default:
		return ErrInvalidAuthStatus
	}
	return nil
}
