package main

import (
	"context"
	"fmt"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/surgiplan/surgery-scheduling/internal/config"
	"github.com/surgiplan/surgery-scheduling/internal/db"
	"github.com/surgiplan/surgery-scheduling/internal/surgery"
)

func main() {
	log.Info().Msg("seed starting")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load error")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("connect postgres")
	}
	defer pool.Close()

	gofakeit.Seed(time.Now().UnixNano())

	doctors, err := seedDoctors(context.Background(), pool, 12)
	if err != nil {
		log.Fatal().Err(err).Msg("seed doctors")
	}
	hospitals, err := seedNamed(context.Background(), pool, "hospitals", hospitalNames)
	if err != nil {
		log.Fatal().Err(err).Msg("seed hospitals")
	}
	plans, err := seedNamed(context.Background(), pool, "insurance_plans", planNames)
	if err != nil {
		log.Fatal().Err(err).Msg("seed insurance plans")
	}
	if err := seedSurgeries(context.Background(), pool, doctors, hospitals, plans, 300); err != nil {
		log.Fatal().Err(err).Msg("seed surgeries")
	}

	log.Info().Msg("seed complete")
}

var hospitalNames = []string{
	"Hospital Santa Casa",
	"Hospital São Lucas",
	"Hospital Albert Einstein",
	"Hospital das Clínicas",
	"Hospital Mater Dei",
	"Hospital Sírio-Libanês",
}

var planNames = []string{
	"Unimed",
	"Bradesco Saúde",
	"SulAmérica",
	"Amil",
	"Particular",
}

var doctorColors = []string{
	"#e74c3c", "#3498db", "#2ecc71", "#9b59b6",
	"#f39c12", "#1abc9c", "#e67e22", "#34495e",
}

func seedDoctors(ctx context.Context, pool *pgxpool.Pool, count int) ([]uuid.UUID, error) {
	log.Info().Int("count", count).Msg("seeding doctors")

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	ids := make([]uuid.UUID, 0, count)
	for i := 0; i < count; i++ {
		id := uuid.New()
		name := "Dr. " + gofakeit.Name()
		contact := gofakeit.Email()
		color := doctorColors[i%len(doctorColors)]

		_, err := tx.Exec(ctx, `
			INSERT INTO doctors (id, name, contact, color, admin, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, now(), now())
		`, id, name, contact, color, i == 0)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	log.Info().Msg("doctors seeded")
	return ids, nil
}

func seedNamed(ctx context.Context, pool *pgxpool.Pool, table string, names []string) ([]uuid.UUID, error) {
	log.Info().Str("table", table).Int("count", len(names)).Msg("seeding reference entities")

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	ids := make([]uuid.UUID, 0, len(names))
	for _, name := range names {
		id := uuid.New()
		_, err := tx.Exec(ctx, fmt.Sprintf(`INSERT INTO %s (id, name) VALUES ($1, $2)`, table), id, name)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	return ids, nil
}

func seedSurgeries(ctx context.Context, pool *pgxpool.Pool, doctors, hospitals, plans []uuid.UUID, count int) error {
	log.Info().Int("count", count).Msg("seeding surgeries")

	repo := surgery.NewPgRepository(pool)

	statuses := []surgery.Status{
		surgery.StatusRequested,
		surgery.StatusScheduled,
		surgery.StatusScheduled,
		surgery.StatusCompleted,
		surgery.StatusCancelled,
	}
	authStatuses := []surgery.AuthStatus{
		surgery.AuthPending,
		surgery.AuthApproved,
		surgery.AuthApproved,
		surgery.AuthDenied,
	}

	for i := 0; i < count; i++ {
		doctor := doctors[gofakeit.Number(0, len(doctors)-1)]
		status := statuses[gofakeit.Number(0, len(statuses)-1)]

		s := surgery.Surgery{
			PatientName: gofakeit.Name(),
			DoctorID:    doctor,
			HospitalID:  hospitals[gofakeit.Number(0, len(hospitals)-1)],
			InsuranceID: plans[gofakeit.Number(0, len(plans)-1)],
			AuthStatus:  authStatuses[gofakeit.Number(0, len(authStatuses)-1)],
			Status:      status,
			Costs: surgery.Costs{
				Material:   float64(gofakeit.Number(0, 3000)),
				Anesthesia: float64(gofakeit.Number(0, 2000)),
				Facility:   float64(gofakeit.Number(0, 5000)),
			},
			Notes: gofakeit.Sentence(8),
		}

		// Requested surgeries may stay undated; everything else gets a
		// slot within +/- 45 days.
		if status != surgery.StatusRequested || gofakeit.Bool() {
			at := time.Now().AddDate(0, 0, gofakeit.Number(-45, 45)).
				Truncate(24 * time.Hour).
				Add(time.Duration(gofakeit.Number(7, 19)) * time.Hour)
			s.ScheduledAt = &at
		}
		// Sometimes a second surgeon joins the team.
		if gofakeit.Bool() {
			other := doctors[gofakeit.Number(0, len(doctors)-1)]
			if other != doctor {
				s.TeamIDs = append(s.TeamIDs, other)
			}
		}

		s.ReconcileFees()
		for id := range s.Fees {
			s.Fees[id] = float64(gofakeit.Number(500, 8000))
		}

		if _, err := repo.UpsertSurgery(ctx, &s); err != nil {
			return err
		}

		if (i+1)%100 == 0 {
			log.Info().Int("done", i+1).Int("total", count).Msg("surgeries seeded")
		}
	}

	log.Info().Msg("surgeries seeded")
	return nil
}
