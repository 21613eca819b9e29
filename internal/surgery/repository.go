package surgery

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrSurgeryNotFound  = errors.New("surgery not found")
	ErrDoctorNotFound   = errors.New("doctor not found")
	ErrHospitalNotFound = errors.New("hospital not found")
	ErrPlanNotFound     = errors.New("insurance plan not found")

	ErrMissingPatientName = errors.New("patient name is required")
	ErrMissingDoctor      = errors.New("primary doctor is required")
	ErrMissingDate        = errors.New("scheduled surgery requires a date")
	ErrInvalidStatus      = errors.New("invalid surgery status")
	ErrInvalidAuthStatus  = errors.New("invalid authorization status")
	ErrNotScheduled       = errors.New("surgery has no scheduled date")

	ErrInvalidStatusTransition = errors.New("invalid status transition")
)

// Repository contains all DB interactions needed by the service.
type Repository interface {
	// Full-collection reads for the mirror
	ListSurgeries(ctx context.Context) ([]Surgery, error)
	ListDoctors(ctx context.Context) ([]Doctor, error)
	ListHospitals(ctx context.Context) ([]Hospital, error)
	ListInsurancePlans(ctx context.Context) ([]InsurancePlan, error)

	GetSurgeryByID(ctx context.Context, id uuid.UUID) (*Surgery, error)

	// Create-or-replace keyed by id
	UpsertSurgery(ctx context.Context, s *Surgery) (*Surgery, error)
	DeleteSurgery(ctx context.Context, id uuid.UUID) error

	// Reference entities are managed independently and only ever
	// referenced by surgeries, never embedded.
	CreateDoctor(ctx context.Context, d *Doctor) (*Doctor, error)
	DeleteDoctor(ctx context.Context, id uuid.UUID) error
	CreateHospital(ctx context.Context, h *Hospital) (*Hospital, error)
	DeleteHospital(ctx context.Context, id uuid.UUID) error
	CreateInsurancePlan(ctx context.Context, p *InsurancePlan) (*InsurancePlan, error)
	DeleteInsurancePlan(ctx context.Context, id uuid.UUID) error
}
