package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/surgiplan/surgery-scheduling/internal/blobstore"
	"github.com/surgiplan/surgery-scheduling/internal/mirror"
	"github.com/surgiplan/surgery-scheduling/internal/surgery"
)

type RouterConfig struct {
	Service *surgery.Service
	Repo    surgery.Repository
	Mirror  *mirror.Mirror
	Blobs   blobstore.Store
	PgPool  *pgxpool.Pool
	Redis   *redis.Client
	Env     string
	Version string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Apply middleware
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware)

	// Health endpoints
	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	// Calendar and reports read from the mirror
	r.Get("/calendar", calendarHandler(cfg.Mirror))
	r.Get("/reports/summary", reportHandler(cfg.Mirror, cfg.Repo))

	// Surgery CRUD and transitions
	r.Get("/surgeries", listSurgeriesHandler(cfg.Mirror))
	r.Post("/surgeries", createSurgeryHandler(cfg.Service))
	r.Get("/surgeries/{id}", getSurgeryHandler(cfg.Service))
	r.Put("/surgeries/{id}", updateSurgeryHandler(cfg.Service))
	r.Delete("/surgeries/{id}", deleteSurgeryHandler(cfg.Service))

	r.Post("/surgeries/{id}/authorize", transitionHandler(func(req *http.Request, id uuid.UUID) (*surgery.Surgery, error) {
		return cfg.Service.Authorize(req.Context(), id)
	}))
	r.Post("/surgeries/{id}/deny", transitionHandler(func(req *http.Request, id uuid.UUID) (*surgery.Surgery, error) {
		return cfg.Service.Deny(req.Context(), id)
	}))
	r.Post("/surgeries/{id}/schedule", scheduleHandler(cfg.Service))
	r.Post("/surgeries/{id}/complete", transitionHandler(func(req *http.Request, id uuid.UUID) (*surgery.Surgery, error) {
		return cfg.Service.Complete(req.Context(), id)
	}))
	r.Post("/surgeries/{id}/cancel", transitionHandler(func(req *http.Request, id uuid.UUID) (*surgery.Surgery, error) {
		return cfg.Service.Cancel(req.Context(), id)
	}))
	r.Post("/surgeries/{id}/reschedule", rescheduleHandler(cfg.Service))
	r.Post("/surgeries/{id}/attachments", uploadAttachmentHandler(cfg.Service, cfg.Blobs))

	// Reference entities
	r.Get("/doctors", listDoctorsHandler(cfg.Repo))
	r.Post("/doctors", createDoctorHandler(cfg.Repo))
	r.Delete("/doctors/{id}", deleteDoctorHandler(cfg.Repo))
	r.Get("/hospitals", listHospitalsHandler(cfg.Repo))
	r.Post("/hospitals", createHospitalHandler(cfg.Repo))
	r.Delete("/hospitals/{id}", deleteHospitalHandler(cfg.Repo))
	r.Get("/insurance-plans", listInsurancePlansHandler(cfg.Repo))
	r.Post("/insurance-plans", createInsurancePlanHandler(cfg.Repo))
	r.Delete("/insurance-plans/{id}", deleteInsurancePlanHandler(cfg.Repo))

	return r
}
