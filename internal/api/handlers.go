package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/surgiplan/surgery-scheduling/internal/blobstore"
	"github.com/surgiplan/surgery-scheduling/internal/calendar"
	"github.com/surgiplan/surgery-scheduling/internal/mirror"
	redisclient "github.com/surgiplan/surgery-scheduling/internal/redis"
	"github.com/surgiplan/surgery-scheduling/internal/report"
	"github.com/surgiplan/surgery-scheduling/internal/surgery"
)

// ---- calendar ----

func calendarHandler(m *mirror.Mirror) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ref, err := parseDateParam(r.URL.Query().Get("date"), time.Now())
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
			return
		}

		mode := calendar.ViewMode(r.URL.Query().Get("mode"))
		if mode == "" {
			mode = calendar.ModeMonth
		}
		if mode != calendar.ModeMonth && mode != calendar.ModeWeek {
			writeError(w, http.StatusBadRequest, "invalid_mode", "mode must be month or week")
			return
		}

		filter, err := parseFilter(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_filter", err.Error())
			return
		}

		cells := calendar.BuildGrid(ref, mode)
		filtered := filter.Apply(m.Snapshot())
		buckets := calendar.Bucket(cells, filtered)

		now := time.Now()
		resp := CalendarResponse{
			Reference: ref.Format("2006-01-02"),
			Mode:      string(mode),
			Cells:     make([]CalendarCell, 0, len(cells)),
		}
		for i, cell := range cells {
			out := CalendarCell{Empty: cell.Empty}
			if !cell.Empty {
				date := cell.Date.Format("2006-01-02")
				out.Date = &date
				out.Today = calendar.IsToday(cell, now)
				out.Surgeries = buckets[i]
			}
			resp.Cells = append(resp.Cells, out)
		}

		writeJSON(w, http.StatusOK, resp)
	}
}

// ---- surgeries ----

func listSurgeriesHandler(m *mirror.Mirror) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filter, err := parseFilter(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_filter", err.Error())
			return
		}

		// Request lists are not date-bucketed, so undated surgeries stay in.
		writeJSON(w, http.StatusOK, filter.Apply(m.Snapshot()))
	}
}

func getSurgeryHandler(svc *surgery.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r)
		if !ok {
			return
		}

		sg, err := svc.GetSurgery(r.Context(), id)
		if err != nil {
			handleSurgeryError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, sg)
	}
}

func createSurgeryHandler(svc *surgery.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SurgeryRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		in, err := req.ToModel()
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}

		created, err := svc.CreateSurgery(r.Context(), in)
		if err != nil {
			handleSurgeryError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, created)
	}
}

func updateSurgeryHandler(svc *surgery.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r)
		if !ok {
			return
		}

		var req SurgeryRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		in, err := req.ToModel()
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}
		in.ID = id

		updated, err := svc.UpdateSurgery(r.Context(), in)
		if err != nil {
			handleSurgeryError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, updated)
	}
}

func deleteSurgeryHandler(svc *surgery.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r)
		if !ok {
			return
		}

		if err := svc.DeleteSurgery(r.Context(), id); err != nil {
			handleSurgeryError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// ---- status transitions ----

func transitionHandler(apply func(*http.Request, uuid.UUID) (*surgery.Surgery, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r)
		if !ok {
			return
		}

		sg, err := apply(r, id)
		if err != nil {
			handleSurgeryError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, sg)
	}
}

func scheduleHandler(svc *surgery.Service) http.HandlerFunc {
	return transitionHandler(func(r *http.Request, id uuid.UUID) (*surgery.Surgery, error) {
		var req ScheduleRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return nil, errBadBody
		}
		at, err := time.Parse(time.RFC3339, req.ScheduledAt)
		if err != nil {
			return nil, surgery.ErrMissingDate
		}
		return svc.Schedule(r.Context(), id, at)
	})
}

func rescheduleHandler(svc *surgery.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r)
		if !ok {
			return
		}

		var req RescheduleRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		target, err := parseDateParam(req.Date, time.Time{})
		if err != nil || target.IsZero() {
			writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
			return
		}

		sg, err := svc.Reschedule(r.Context(), id, target)
		if err != nil {
			handleSurgeryError(w, err)
			return
		}
		if sg == nil {
			// Unknown id: the drag is silently ignored.
			w.WriteHeader(http.StatusNoContent)
			return
		}
		writeJSON(w, http.StatusOK, sg)
	}
}

// ---- reports ----

func reportHandler(m *mirror.Mirror, repo surgery.Repository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var rng report.Range
		if raw := r.URL.Query().Get("from"); raw != "" {
			t, err := parseDateParam(raw, time.Time{})
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_date", "from must be YYYY-MM-DD")
				return
			}
			rng.From = &t
		}
		if raw := r.URL.Query().Get("to"); raw != "" {
			t, err := parseDateParam(raw, time.Time{})
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_date", "to must be YYYY-MM-DD")
				return
			}
			rng.To = &t
		}

		doctorID, err := parseOptionalID(r.URL.Query().Get("doctor_id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_doctor_id", "doctor_id must be a valid UUID")
			return
		}

		names, err := loadNames(r, repo)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}

		sum := report.Aggregate(m.Snapshot(), rng, doctorID, names)
		writeJSON(w, http.StatusOK, SummaryResponse{
			Summary:             sum,
			TotalRevenueDisplay: report.FormatBRL(sum.TotalRevenue),
		})
	}
}

func loadNames(r *http.Request, repo surgery.Repository) (report.Names, error) {
	doctors, err := repo.ListDoctors(r.Context())
	if err != nil {
		return report.Names{}, err
	}
	hospitals, err := repo.ListHospitals(r.Context())
	if err != nil {
		return report.Names{}, err
	}

	names := report.Names{
		Doctors:   make(map[uuid.UUID]string, len(doctors)),
		Hospitals: make(map[uuid.UUID]string, len(hospitals)),
	}
	for _, d := range doctors {
		names.Doctors[d.ID] = d.Name
	}
	for _, h := range hospitals {
		names.Hospitals[h.ID] = h.Name
	}
	return names, nil
}

// ---- attachments ----

func uploadAttachmentHandler(svc *surgery.Service, blobs blobstore.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r)
		if !ok {
			return
		}

		kind := surgery.AttachmentKind(r.URL.Query().Get("kind"))
		if kind == "" {
			kind = surgery.AttachmentKind(r.FormValue("kind"))
		}

		file, header, err := r.FormFile("file")
		if err != nil {
			writeError(w, http.StatusBadRequest, "missing_file", "file is required")
			return
		}
		defer file.Close()

		ref, err := blobs.Save(r.Context(), id.String(), header.Filename, file)
		if err != nil {
			handleBlobError(w, err)
			return
		}

		sg, err := svc.AttachFile(r.Context(), id, kind, ref)
		if err != nil {
			// The surgery write failed; remove the blob so it is not orphaned.
			if delErr := blobs.Delete(r.Context(), ref); delErr != nil {
				log.Warn().Err(delErr).Str("ref", ref).Msg("cleanup attachment after failed write")
			}
			handleSurgeryError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, struct {
			AttachmentResponse
			Surgery *surgery.Surgery `json:"surgery"`
		}{AttachmentResponse{Ref: ref}, sg})
	}
}

// ---- reference entities ----

func listDoctorsHandler(repo surgery.Repository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctors, err := repo.ListDoctors(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}
		out := make([]DoctorResponse, 0, len(doctors))
		for _, d := range doctors {
			out = append(out, DoctorResponse{ID: d.ID, Name: d.Name, Contact: d.Contact, Color: d.Color, Admin: d.Admin})
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func createDoctorHandler(repo surgery.Repository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req DoctorRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		if req.Name == "" {
			writeError(w, http.StatusBadRequest, "invalid_request", "name is required")
			return
		}

		d, err := repo.CreateDoctor(r.Context(), &surgery.Doctor{
			Name:    req.Name,
			Contact: req.Contact,
			Color:   req.Color,
			Admin:   req.Admin,
		})
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}
		writeJSON(w, http.StatusCreated, DoctorResponse{ID: d.ID, Name: d.Name, Contact: d.Contact, Color: d.Color, Admin: d.Admin})
	}
}

func deleteDoctorHandler(repo surgery.Repository) http.HandlerFunc {
	return deleteByIDHandler(func(r *http.Request, id uuid.UUID) error {
		return repo.DeleteDoctor(r.Context(), id)
	})
}

func listHospitalsHandler(repo surgery.Repository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		hospitals, err := repo.ListHospitals(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}
		out := make([]NamedResponse, 0, len(hospitals))
		for _, h := range hospitals {
			out = append(out, NamedResponse{ID: h.ID, Name: h.Name})
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func createHospitalHandler(repo surgery.Repository) http.HandlerFunc {
	return createNamedHandler(func(r *http.Request, name string) (NamedResponse, error) {
		h, err := repo.CreateHospital(r.Context(), &surgery.Hospital{Name: name})
		if err != nil {
			return NamedResponse{}, err
		}
		return NamedResponse{ID: h.ID, Name: h.Name}, nil
	})
}

func deleteHospitalHandler(repo surgery.Repository) http.HandlerFunc {
	return deleteByIDHandler(func(r *http.Request, id uuid.UUID) error {
		return repo.DeleteHospital(r.Context(), id)
	})
}

func listInsurancePlansHandler(repo surgery.Repository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		plans, err := repo.ListInsurancePlans(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}
		out := make([]NamedResponse, 0, len(plans))
		for _, p := range plans {
			out = append(out, NamedResponse{ID: p.ID, Name: p.Name})
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func createInsurancePlanHandler(repo surgery.Repository) http.HandlerFunc {
	return createNamedHandler(func(r *http.Request, name string) (NamedResponse, error) {
		p, err := repo.CreateInsurancePlan(r.Context(), &surgery.InsurancePlan{Name: name})
		if err != nil {
			return NamedResponse{}, err
		}
		return NamedResponse{ID: p.ID, Name: p.Name}, nil
	})
}

func deleteInsurancePlanHandler(repo surgery.Repository) http.HandlerFunc {
	return deleteByIDHandler(func(r *http.Request, id uuid.UUID) error {
		return repo.DeleteInsurancePlan(r.Context(), id)
	})
}

func createNamedHandler(create func(*http.Request, string) (NamedResponse, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req NamedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		if req.Name == "" {
			writeError(w, http.StatusBadRequest, "invalid_request", "name is required")
			return
		}

		resp, err := create(r, req.Name)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}
		writeJSON(w, http.StatusCreated, resp)
	}
}

func deleteByIDHandler(del func(*http.Request, uuid.UUID) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r)
		if !ok {
			return
		}
		if err := del(r, id); err != nil {
			handleSurgeryError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// ---- shared helpers ----

var errBadBody = errors.New("could not parse JSON")

func parseIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_id", "id must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func parseOptionalID(raw string) (uuid.UUID, error) {
	if raw == "" || raw == "all" {
		return uuid.Nil, nil
	}
	return uuid.Parse(raw)
}

// parseDateParam accepts YYYY-MM-DD or RFC3339; empty input yields def.
func parseDateParam(raw string, def time.Time) (time.Time, error) {
	if raw == "" {
		return def, nil
	}
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, raw)
}

// parseFilter maps query params to filter predicates; "" and "all" both
// disable a predicate.
func parseFilter(r *http.Request) (calendar.Filter, error) {
	var f calendar.Filter
	var err error

	q := r.URL.Query()
	if f.DoctorID, err = parseOptionalID(q.Get("doctor_id")); err != nil {
		return f, errors.New("doctor_id must be a valid UUID")
	}
	if f.HospitalID, err = parseOptionalID(q.Get("hospital_id")); err != nil {
		return f, errors.New("hospital_id must be a valid UUID")
	}
	if f.InsuranceID, err = parseOptionalID(q.Get("insurance_id")); err != nil {
		return f, errors.New("insurance_id must be a valid UUID")
	}
	if v := q.Get("auth_status"); v != "" && v != "all" {
		f.AuthStatus = surgery.AuthStatus(v)
	}
	if v := q.Get("status"); v != "" && v != "all" {
		f.Status = surgery.Status(v)
	}
	return f, nil
}

func handleSurgeryError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errBadBody):
		writeError(w, http.StatusBadRequest, "invalid_request_body", err.Error())
	case errors.Is(err, surgery.ErrMissingPatientName),
		errors.Is(err, surgery.ErrMissingDoctor),
		errors.Is(err, surgery.ErrMissingDate),
		errors.Is(err, surgery.ErrInvalidStatus),
		errors.Is(err, surgery.ErrInvalidAuthStatus),
		errors.Is(err, surgery.ErrInvalidAttachmentKind):
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
	case errors.Is(err, surgery.ErrNotScheduled):
		writeError(w, http.StatusConflict, "not_scheduled", err.Error())
	case errors.Is(err, surgery.ErrSurgeryNotFound):
		writeError(w, http.StatusNotFound, "surgery_not_found", err.Error())
	case errors.Is(err, surgery.ErrDoctorNotFound):
		writeError(w, http.StatusNotFound, "doctor_not_found", err.Error())
	case errors.Is(err, surgery.ErrHospitalNotFound):
		writeError(w, http.StatusNotFound, "hospital_not_found", err.Error())
	case errors.Is(err, surgery.ErrPlanNotFound):
		writeError(w, http.StatusNotFound, "insurance_plan_not_found", err.Error())
	case errors.Is(err, surgery.ErrInvalidStatusTransition):
		writeError(w, http.StatusConflict, "invalid_status_transition", err.Error())
	case errors.Is(err, redisclient.ErrLockNotAcquired):
		writeError(w, http.StatusConflict, "surgery_being_updated", "surgery is currently being updated, please retry shortly")
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

func handleBlobError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, blobstore.ErrMissingFileName):
		writeError(w, http.StatusBadRequest, "invalid_filename", err.Error())
	case errors.Is(err, blobstore.ErrFileTooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, "file_too_large", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}
