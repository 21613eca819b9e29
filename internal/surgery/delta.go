package surgery

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type DeltaOp string

const (
	OpInsert DeltaOp = "insert"
	OpUpdate DeltaOp = "update"
	OpDelete DeltaOp = "delete"
)

// Delta is one incremental change to the surgery collection, delivered over
// the change feed. Delete deltas carry only the id.
type Delta struct {
	Op      DeltaOp   `json:"op"`
	ID      uuid.UUID `json:"id"`
	Surgery *Surgery  `json:"surgery,omitempty"`
}

// wireSurgery is the JSON shape of a surgery on the feed and the HTTP API.
// Timestamps travel as RFC3339 UTC strings, null when unscheduled; fee keys
// are doctor id strings.
type wireSurgery struct {
	ID             uuid.UUID          `json:"id"`
	PatientName    string             `json:"patient_name"`
	DoctorID       uuid.UUID          `json:"doctor_id"`
	TeamIDs        []uuid.UUID        `json:"team_ids"`
	ScheduledAt    *string            `json:"scheduled_at"`
	HospitalID     uuid.UUID          `json:"hospital_id"`
	InsuranceID    uuid.UUID          `json:"insurance_id"`
	AuthStatus     AuthStatus         `json:"auth_status"`
	Status         Status             `json:"status"`
	Fees           map[string]float64 `json:"fees"`
	Costs          Costs              `json:"costs"`
	Notes          string             `json:"notes,omitempty"`
	PreAttachment  string             `json:"pre_attachment,omitempty"`
	PostAttachment string             `json:"post_attachment,omitempty"`
	CreatedAt      time.Time          `json:"created_at"`
	UpdatedAt      time.Time          `json:"updated_at"`
}

func (s Surgery) MarshalJSON() ([]byte, error) {
	w := wireSurgery{
		ID:             s.ID,
		PatientName:    s.PatientName,
		DoctorID:       s.DoctorID,
		TeamIDs:        s.TeamIDs,
		HospitalID:     s.HospitalID,
		InsuranceID:    s.InsuranceID,
		AuthStatus:     s.AuthStatus,
		Status:         s.Status,
		Costs:          s.Costs,
		Notes:          s.Notes,
		PreAttachment:  s.PreAttachment,
		PostAttachment: s.PostAttachment,
		CreatedAt:      s.CreatedAt,
		UpdatedAt:      s.UpdatedAt,
	}
	if w.TeamIDs == nil {
		w.TeamIDs = []uuid.UUID{}
	}
	if s.ScheduledAt != nil {
		ts := s.ScheduledAt.UTC().Format(time.RFC3339)
		w.ScheduledAt = &ts
	}
	w.Fees = make(map[string]float64, len(s.Fees))
	for id, v := range s.Fees {
		w.Fees[id.String()] = v
	}
	return json.Marshal(w)
}

func (s *Surgery) UnmarshalJSON(data []byte) error {
	var w wireSurgery
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	s.ID = w.ID
	s.PatientName = w.PatientName
	s.DoctorID = w.DoctorID
	s.TeamIDs = w.TeamIDs
	s.HospitalID = w.HospitalID
	s.InsuranceID = w.InsuranceID
	s.AuthStatus = w.AuthStatus
	s.Status = w.Status
	s.Costs = w.Costs
	s.Notes = w.Notes
	s.PreAttachment = w.PreAttachment
	s.PostAttachment = w.PostAttachment
	s.CreatedAt = w.CreatedAt
	s.UpdatedAt = w.UpdatedAt

	s.ScheduledAt = nil
	if w.ScheduledAt != nil {
		ts, err := time.Parse(time.RFC3339, *w.ScheduledAt)
		if err != nil {
			return fmt.Errorf("parse scheduled_at: %w", err)
		}
		s.ScheduledAt = &ts
	}

	s.Fees = make(map[uuid.UUID]float64, len(w.Fees))
	for k, v := range w.Fees {
		id, err := uuid.Parse(k)
		if err != nil {
			return fmt.Errorf("parse fee key %q: %w", k, err)
		}
		s.Fees[id] = v
	}

	return nil
}

func EncodeDelta(d Delta) ([]byte, error) {
	data, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("encode delta: %w", err)
	}
	return data, nil
}

func DecodeDelta(data []byte) (Delta, error) {
	var d Delta
	if err := json.Unmarshal(data, &d); err != nil {
		return Delta{}, fmt.Errorf("decode delta: %w", err)
	}
	return d, nil
}
