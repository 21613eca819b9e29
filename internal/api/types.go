package api

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/surgiplan/surgery-scheduling/internal/report"
	"github.com/surgiplan/surgery-scheduling/internal/surgery"
)

// SurgeryRequest is the create/update payload. Timestamps are RFC3339 UTC
// strings, null for unscheduled surgeries.
type SurgeryRequest struct {
	PatientName string             `json:"patient_name"`
	DoctorID    string             `json:"doctor_id"`
	TeamIDs     []string           `json:"team_ids"`
	ScheduledAt *string            `json:"scheduled_at"`
	HospitalID  string             `json:"hospital_id"`
	InsuranceID string             `json:"insurance_id"`
	AuthStatus  string             `json:"auth_status"`
	Status      string             `json:"status"`
	Fees        map[string]float64 `json:"fees"`
	Costs       surgery.Costs      `json:"costs"`
	Notes       string             `json:"notes"`
}

// ToModel converts the payload, reporting the first malformed field.
func (req *SurgeryRequest) ToModel() (*surgery.Surgery, error) {
	s := &surgery.Surgery{
		PatientName: req.PatientName,
		AuthStatus:  surgery.AuthStatus(req.AuthStatus),
		Status:      surgery.Status(req.Status),
		Costs:       req.Costs,
		Notes:       req.Notes,
	}

	var err error
	if req.DoctorID != "" {
		if s.DoctorID, err = uuid.Parse(req.DoctorID); err != nil {
			return nil, fmt.Errorf("doctor_id: %w", err)
		}
	}
	if req.HospitalID != "" {
		if s.HospitalID, err = uuid.Parse(req.HospitalID); err != nil {
			return nil, fmt.Errorf("hospital_id: %w", err)
		}
	}
	if req.InsuranceID != "" {
		if s.InsuranceID, err = uuid.Parse(req.InsuranceID); err != nil {
			return nil, fmt.Errorf("insurance_id: %w", err)
		}
	}
	for _, raw := range req.TeamIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("team_ids: %w", err)
		}
		s.TeamIDs = append(s.TeamIDs, id)
	}
	if req.ScheduledAt != nil {
		ts, err := time.Parse(time.RFC3339, *req.ScheduledAt)
		if err != nil {
			return nil, fmt.Errorf("scheduled_at: %w", err)
		}
		s.ScheduledAt = &ts
	}
	s.Fees = make(map[uuid.UUID]float64, len(req.Fees))
	for k, v := range req.Fees {
		id, err := uuid.Parse(k)
		if err != nil {
			return nil, fmt.Errorf("fees key %q: %w", k, err)
		}
		s.Fees[id] = v
	}

	return s, nil
}

type RescheduleRequest struct {
	Date string `json:"date"` // YYYY-MM-DD or RFC3339
}

type ScheduleRequest struct {
	ScheduledAt string `json:"scheduled_at"` // RFC3339
}

// CalendarCell mirrors one grid slot for the UI: leading padding cells
// have no date and no surgeries.
type CalendarCell struct {
	Date      *string           `json:"date"`
	Empty     bool              `json:"empty"`
	Today     bool              `json:"today"`
	Surgeries []surgery.Surgery `json:"surgeries,omitempty"`
}

type CalendarResponse struct {
	Reference string         `json:"reference"`
	Mode      string         `json:"mode"`
	Cells     []CalendarCell `json:"cells"`
}

type SummaryResponse struct {
	report.Summary
	TotalRevenueDisplay string `json:"total_revenue_display"`
}

type DoctorRequest struct {
	Name    string  `json:"name"`
	Contact *string `json:"contact"`
	Color   string  `json:"color"`
	Admin   bool    `json:"admin"`
}

type DoctorResponse struct {
	ID      uuid.UUID `json:"id"`
	Name    string    `json:"name"`
	Contact *string   `json:"contact,omitempty"`
	Color   string    `json:"color"`
	Admin   bool      `json:"admin"`
}

type NamedRequest struct {
	Name string `json:"name"`
}

type NamedResponse struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

type AttachmentResponse struct {
	Ref string `json:"ref"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
