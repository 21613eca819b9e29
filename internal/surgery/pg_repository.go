package surgery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// Helpers

const surgeryColumns = `
	id, patient_name, doctor_id, team_ids, scheduled_at,
	hospital_id, insurance_id, auth_status, status,
	fees, costs, notes, pre_attachment, post_attachment,
	created_at, updated_at
`

func scanSurgery(row pgx.Row) (*Surgery, error) {
	var s Surgery
	var scheduledAt *time.Time
	var teamJSON, feesJSON, costsJSON []byte

	err := row.Scan(
		&s.ID,
		&s.PatientName,
		&s.DoctorID,
		&teamJSON,
		&scheduledAt,
		&s.HospitalID,
		&s.InsuranceID,
		&s.AuthStatus,
		&s.Status,
		&feesJSON,
		&costsJSON,
		&s.Notes,
		&s.PreAttachment,
		&s.PostAttachment,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSurgeryNotFound
		}
		return nil, err
	}

	s.ScheduledAt = scheduledAt

	if err := json.Unmarshal(teamJSON, &s.TeamIDs); err != nil {
		return nil, fmt.Errorf("decode team ids: %w", err)
	}
	fees := map[string]float64{}
	if err := json.Unmarshal(feesJSON, &fees); err != nil {
		return nil, fmt.Errorf("decode fees: %w", err)
	}
	s.Fees = make(map[uuid.UUID]float64, len(fees))
	for k, v := range fees {
		id, err := uuid.Parse(k)
		if err != nil {
			return nil, fmt.Errorf("decode fee key %q: %w", k, err)
		}
		s.Fees[id] = v
	}
	if err := json.Unmarshal(costsJSON, &s.Costs); err != nil {
		return nil, fmt.Errorf("decode costs: %w", err)
	}

	return &s, nil
}

func encodeSurgery(s *Surgery) (teamJSON, feesJSON, costsJSON []byte, err error) {
	team := s.TeamIDs
	if team == nil {
		team = []uuid.UUID{}
	}
	teamJSON, err = json.Marshal(team)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("encode team ids: %w", err)
	}

	fees := make(map[string]float64, len(s.Fees))
	for id, v := range s.Fees {
		fees[id.String()] = v
	}
	feesJSON, err = json.Marshal(fees)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("encode fees: %w", err)
	}

	costsJSON, err = json.Marshal(s.Costs)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("encode costs: %w", err)
	}

	return teamJSON, feesJSON, costsJSON, nil
}

func scanDoctor(row pgx.Row) (*Doctor, error) {
	var d Doctor
	var contact *string

	err := row.Scan(
		&d.ID,
		&d.Name,
		&contact,
		&d.Color,
		&d.Admin,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDoctorNotFound
		}
		return nil, err
	}

	d.Contact = contact
	return &d, nil
}

// Interface methods

func (r *PgRepository) ListSurgeries(ctx context.Context) ([]Surgery, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+surgeryColumns+`
		FROM surgeries
		ORDER BY created_at
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Surgery
	for rows.Next() {
		s, err := scanSurgery(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *s)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) GetSurgeryByID(ctx context.Context, id uuid.UUID) (*Surgery, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+surgeryColumns+`
		FROM surgeries
		WHERE id = $1
	`, id)
	return scanSurgery(row)
}

func (r *PgRepository) UpsertSurgery(ctx context.Context, s *Surgery) (*Surgery, error) {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}

	teamJSON, feesJSON, costsJSON, err := encodeSurgery(s)
	if err != nil {
		return nil, err
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO surgeries (
			id, patient_name, doctor_id, team_ids, scheduled_at,
			hospital_id, insurance_id, auth_status, status,
			fees, costs, notes, pre_attachment, post_attachment,
			created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, now(), now())
		ON CONFLICT (id) DO UPDATE SET
			patient_name    = EXCLUDED.patient_name,
			doctor_id       = EXCLUDED.doctor_id,
			team_ids        = EXCLUDED.team_ids,
			scheduled_at    = EXCLUDED.scheduled_at,
			hospital_id     = EXCLUDED.hospital_id,
			insurance_id    = EXCLUDED.insurance_id,
			auth_status     = EXCLUDED.auth_status,
			status          = EXCLUDED.status,
			fees            = EXCLUDED.fees,
			costs           = EXCLUDED.costs,
			notes           = EXCLUDED.notes,
			pre_attachment  = EXCLUDED.pre_attachment,
			post_attachment = EXCLUDED.post_attachment,
			updated_at      = now()
		RETURNING `+surgeryColumns+`
	`, s.ID, s.PatientName, s.DoctorID, teamJSON, s.ScheduledAt,
		s.HospitalID, s.InsuranceID, s.AuthStatus, s.Status,
		feesJSON, costsJSON, s.Notes, s.PreAttachment, s.PostAttachment)

	return scanSurgery(row)
}

func (r *PgRepository) DeleteSurgery(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM surgeries WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete surgery: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSurgeryNotFound
	}
	return nil
}

func (r *PgRepository) ListDoctors(ctx context.Context) ([]Doctor, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, contact, color, admin, created_at, updated_at
		FROM doctors
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Doctor
	for rows.Next() {
		d, err := scanDoctor(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *d)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) CreateDoctor(ctx context.Context, d *Doctor) (*Doctor, error) {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO doctors (id, name, contact, color, admin, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, now(), now())
		RETURNING id, name, contact, color, admin, created_at, updated_at
	`, d.ID, d.Name, d.Contact, d.Color, d.Admin)

	return scanDoctor(row)
}

func (r *PgRepository) DeleteDoctor(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM doctors WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete doctor: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrDoctorNotFound
	}
	return nil
}

func (r *PgRepository) ListHospitals(ctx context.Context) ([]Hospital, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name FROM hospitals ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Hospital
	for rows.Next() {
		var h Hospital
		if err := rows.Scan(&h.ID, &h.Name); err != nil {
			return nil, err
		}
		result = append(result, h)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) CreateHospital(ctx context.Context, h *Hospital) (*Hospital, error) {
	if h.ID == uuid.Nil {
		h.ID = uuid.New()
	}
	row := r.pool.QueryRow(ctx, `
		INSERT INTO hospitals (id, name) VALUES ($1, $2)
		RETURNING id, name
	`, h.ID, h.Name)
	var out Hospital
	if err := row.Scan(&out.ID, &out.Name); err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *PgRepository) DeleteHospital(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM hospitals WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete hospital: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrHospitalNotFound
	}
	return nil
}

func (r *PgRepository) ListInsurancePlans(ctx context.Context) ([]InsurancePlan, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name FROM insurance_plans ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []InsurancePlan
	for rows.Next() {
		var p InsurancePlan
		if err := rows.Scan(&p.ID, &p.Name); err != nil {
			return nil, err
		}
		result = append(result, p)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) CreateInsurancePlan(ctx context.Context, p *InsurancePlan) (*InsurancePlan, error) {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	row := r.pool.QueryRow(ctx, `
		INSERT INTO insurance_plans (id, name) VALUES ($1, $2)
		RETURNING id, name
	`, p.ID, p.Name)
	var out InsurancePlan
	if err := row.Scan(&out.ID, &out.Name); err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *PgRepository) DeleteInsurancePlan(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM insurance_plans WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete insurance plan: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrPlanNotFound
	}
	return nil
}
