package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/surgiplan/surgery-scheduling/internal/blobstore"
	"github.com/surgiplan/surgery-scheduling/internal/mirror"
	"github.com/surgiplan/surgery-scheduling/internal/surgery"
)

// memRepo is an in-memory Repository for handler tests.
type memRepo struct {
	surgeries map[uuid.UUID]*surgery.Surgery
	doctors   map[uuid.UUID]*surgery.Doctor
	hospitals map[uuid.UUID]*surgery.Hospital
	plans     map[uuid.UUID]*surgery.InsurancePlan
}

func newMemRepo() *memRepo {
	return &memRepo{
		surgeries: make(map[uuid.UUID]*surgery.Surgery),
		doctors:   make(map[uuid.UUID]*surgery.Doctor),
		hospitals: make(map[uuid.UUID]*surgery.Hospital),
		plans:     make(map[uuid.UUID]*surgery.InsurancePlan),
	}
}

func (r *memRepo) ListSurgeries(ctx context.Context) ([]surgery.Surgery, error) {
	out := make([]surgery.Surgery, 0, len(r.surgeries))
	for _, s := range r.surgeries {
		out = append(out, *s)
	}
	return out, nil
}

func (r *memRepo) ListDoctors(ctx context.Context) ([]surgery.Doctor, error) {
	out := make([]surgery.Doctor, 0, len(r.doctors))
	for _, d := range r.doctors {
		out = append(out, *d)
	}
	return out, nil
}

func (r *memRepo) ListHospitals(ctx context.Context) ([]surgery.Hospital, error) {
	out := make([]surgery.Hospital, 0, len(r.hospitals))
	for _, h := range r.hospitals {
		out = append(out, *h)
	}
	return out, nil
}

func (r *memRepo) ListInsurancePlans(ctx context.Context) ([]surgery.InsurancePlan, error) {
	out := make([]surgery.InsurancePlan, 0, len(r.plans))
	for _, p := range r.plans {
		out = append(out, *p)
	}
	return out, nil
}

func (r *memRepo) GetSurgeryByID(ctx context.Context, id uuid.UUID) (*surgery.Surgery, error) {
	s, ok := r.surgeries[id]
	if !ok {
		return nil, surgery.ErrSurgeryNotFound
	}
	clone := *s
	return &clone, nil
}

func (r *memRepo) UpsertSurgery(ctx context.Context, s *surgery.Surgery) (*surgery.Surgery, error) {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	clone := *s
	r.surgeries[s.ID] = &clone
	out := clone
	return &out, nil
}

func (r *memRepo) DeleteSurgery(ctx context.Context, id uuid.UUID) error {
	delete(r.surgeries, id)
	return nil
}

func (r *memRepo) CreateDoctor(ctx context.Context, d *surgery.Doctor) (*surgery.Doctor, error) {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	r.doctors[d.ID] = d
	return d, nil
}

func (r *memRepo) DeleteDoctor(ctx context.Context, id uuid.UUID) error {
	if _, ok := r.doctors[id]; !ok {
		return surgery.ErrDoctorNotFound
	}
	delete(r.doctors, id)
	return nil
}

func (r *memRepo) CreateHospital(ctx context.Context, h *surgery.Hospital) (*surgery.Hospital, error) {
	if h.ID == uuid.Nil {
		h.ID = uuid.New()
	}
	r.hospitals[h.ID] = h
	return h, nil
}

func (r *memRepo) DeleteHospital(ctx context.Context, id uuid.UUID) error {
	delete(r.hospitals, id)
	return nil
}

func (r *memRepo) CreateInsurancePlan(ctx context.Context, p *surgery.InsurancePlan) (*surgery.InsurancePlan, error) {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	r.plans[p.ID] = p
	return p, nil
}

func (r *memRepo) DeleteInsurancePlan(ctx context.Context, id uuid.UUID) error {
	delete(r.plans, id)
	return nil
}

type nopLocker struct{}

func (nopLocker) WithSurgeryLock(ctx context.Context, _ uuid.UUID, fn func(context.Context) error) error {
	return fn(ctx)
}

// mirrorFeed applies every published delta straight into the mirror, so
// handler tests see writes reflected in calendar and report reads.
type mirrorFeed struct {
	m *mirror.Mirror
}

func (f mirrorFeed) Publish(_ context.Context, payload []byte) error {
	d, err := surgery.DecodeDelta(payload)
	if err != nil {
		return err
	}
	f.m.Apply(d)
	return nil
}

// memBlobs is an in-memory blobstore.Store for handler tests.
type memBlobs struct {
	saved map[string][]byte
}

func newMemBlobs() *memBlobs {
	return &memBlobs{saved: make(map[string][]byte)}
}

func (b *memBlobs) Save(_ context.Context, ownerID, filename string, content io.Reader) (string, error) {
	data, err := io.ReadAll(content)
	if err != nil {
		return "", err
	}
	ref := ownerID + "/" + filename
	b.saved[ref] = data
	return ref, nil
}

func (b *memBlobs) Open(_ context.Context, ref string) (io.ReadCloser, error) {
	data, ok := b.saved[ref]
	if !ok {
		return nil, blobstore.ErrBlobNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (b *memBlobs) Delete(_ context.Context, ref string) error {
	if _, ok := b.saved[ref]; !ok {
		return blobstore.ErrBlobNotFound
	}
	delete(b.saved, ref)
	return nil
}

type testEnv struct {
	handler http.Handler
	repo    *memRepo
	mirror  *mirror.Mirror
	blobs   *memBlobs
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	repo := newMemRepo()
	m := mirror.New()
	blobs := newMemBlobs()
	svc := surgery.NewService(repo, nopLocker{}, mirrorFeed{m})

	h := NewRouter(RouterConfig{
		Service: svc,
		Repo:    repo,
		Mirror:  m,
		Blobs:   blobs,
		Env:     "test",
		Version: "test",
	})
	return &testEnv{handler: h, repo: repo, mirror: m, blobs: blobs}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v))
	return v
}

func TestCreateSurgery(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/surgeries", SurgeryRequest{
		PatientName: "Maria Souza",
		DoctorID:    uuid.New().String(),
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	created := decodeBody[surgery.Surgery](t, rec)
	assert.Equal(t, surgery.StatusRequested, created.Status)
	assert.Equal(t, surgery.AuthPending, created.AuthStatus)

	// The write reached the mirror through the feed.
	_, ok := env.mirror.Get(created.ID)
	assert.True(t, ok)
}

func TestCreateSurgery_Validation(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/surgeries", SurgeryRequest{
		DoctorID: uuid.New().String(),
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation_failed", decodeBody[ErrorResponse](t, rec).Error)
}

func TestRescheduleFlow(t *testing.T) {
	env := newTestEnv(t)

	at := "2024-03-10T14:30:00Z"
	rec := env.do(t, http.MethodPost, "/surgeries", SurgeryRequest{
		PatientName: "Ana Lima",
		DoctorID:    uuid.New().String(),
		Status:      string(surgery.StatusScheduled),
		ScheduledAt: &at,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decodeBody[surgery.Surgery](t, rec)

	rec = env.do(t, http.MethodPost, fmt.Sprintf("/surgeries/%s/reschedule", created.ID), RescheduleRequest{Date: "2024-03-15"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	moved := decodeBody[surgery.Surgery](t, rec)
	require.NotNil(t, moved.ScheduledAt)
	assert.True(t, moved.ScheduledAt.Equal(time.Date(2024, 3, 15, 14, 30, 0, 0, time.UTC)))
}

func TestReschedule_UnknownIDIsNoOp(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, fmt.Sprintf("/surgeries/%s/reschedule", uuid.New()), RescheduleRequest{Date: "2024-03-15"})
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestTransitionConflict(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/surgeries", SurgeryRequest{
		PatientName: "Pedro Dias",
		DoctorID:    uuid.New().String(),
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decodeBody[surgery.Surgery](t, rec)

	// Completing a surgery that is still only requested.
	rec = env.do(t, http.MethodPost, fmt.Sprintf("/surgeries/%s/complete", created.ID), nil)
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "invalid_status_transition", decodeBody[ErrorResponse](t, rec).Error)
}

func TestCalendarEndpoint(t *testing.T) {
	env := newTestEnv(t)

	at := "2024-02-10T09:00:00Z"
	rec := env.do(t, http.MethodPost, "/surgeries", SurgeryRequest{
		PatientName: "Carla Nunes",
		DoctorID:    uuid.New().String(),
		Status:      string(surgery.StatusScheduled),
		ScheduledAt: &at,
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = env.do(t, http.MethodGet, "/calendar?date=2024-02-01&mode=month", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decodeBody[CalendarResponse](t, rec)
	// February 2024 opens on a Thursday: 4 padding cells plus 29 days.
	require.Len(t, resp.Cells, 33)
	for i := 0; i < 4; i++ {
		assert.True(t, resp.Cells[i].Empty)
		assert.Nil(t, resp.Cells[i].Date)
	}

	// Feb 10 sits at offset 4 + 9.
	cell := resp.Cells[13]
	require.NotNil(t, cell.Date)
	assert.Equal(t, "2024-02-10", *cell.Date)
	require.Len(t, cell.Surgeries, 1)
	assert.Equal(t, "Carla Nunes", cell.Surgeries[0].PatientName)
}

func TestCalendarEndpoint_BadMode(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/calendar?mode=fortnight", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCalendarEndpoint_DoctorFilter(t *testing.T) {
	env := newTestEnv(t)

	docA := uuid.New().String()
	docB := uuid.New().String()
	at := "2024-02-05T08:00:00Z"
	for _, doc := range []string{docA, docB} {
		rec := env.do(t, http.MethodPost, "/surgeries", SurgeryRequest{
			PatientName: "Paciente " + doc[:8],
			DoctorID:    doc,
			Status:      string(surgery.StatusScheduled),
			ScheduledAt: &at,
		})
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec := env.do(t, http.MethodGet, "/calendar?date=2024-02-01&doctor_id="+docA, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeBody[CalendarResponse](t, rec)
	total := 0
	for _, c := range resp.Cells {
		total += len(c.Surgeries)
	}
	assert.Equal(t, 1, total)
}

func TestReportEndpoint(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	doc, err := env.repo.CreateDoctor(ctx, &surgery.Doctor{Name: "Dr. Almeida"})
	require.NoError(t, err)
	hosp, err := env.repo.CreateHospital(ctx, &surgery.Hospital{Name: "Hospital Santa Casa"})
	require.NoError(t, err)

	at := "2024-06-10T10:00:00Z"
	rec := env.do(t, http.MethodPost, "/surgeries", SurgeryRequest{
		PatientName: "Rafael Costa",
		DoctorID:    doc.ID.String(),
		HospitalID:  hosp.ID.String(),
		Status:      string(surgery.StatusScheduled),
		ScheduledAt: &at,
		Fees:        map[string]float64{doc.ID.String(): 1234.56},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decodeBody[surgery.Surgery](t, rec)

	rec = env.do(t, http.MethodPost, fmt.Sprintf("/surgeries/%s/complete", created.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/reports/summary?from=2024-06-01&to=2024-06-30", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	sum := decodeBody[SummaryResponse](t, rec)
	assert.Equal(t, 1234.56, sum.TotalRevenue)
	assert.Equal(t, "R$ 1.234,56", sum.TotalRevenueDisplay)
	require.Len(t, sum.RevenueByDoctor, 1)
	assert.Equal(t, "Dr. Almeida", sum.RevenueByDoctor[0].Label)
	require.Len(t, sum.CountByHospital, 1)
	assert.Equal(t, "Hospital Santa Casa", sum.CountByHospital[0].Label)
}

func (e *testEnv) upload(t *testing.T, path, filename, content string) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = fw.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func TestUploadAttachment(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/surgeries", SurgeryRequest{
		PatientName: "Sofia Martins",
		DoctorID:    uuid.New().String(),
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decodeBody[surgery.Surgery](t, rec)

	rec = env.upload(t, fmt.Sprintf("/surgeries/%s/attachments?kind=pre", created.ID), "laudo.pdf", "pdf bytes")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp struct {
		Ref     string           `json:"ref"`
		Surgery *surgery.Surgery `json:"surgery"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, resp.Ref, resp.Surgery.PreAttachment)
	assert.Contains(t, env.blobs.saved, resp.Ref)
}

func TestUploadAttachment_UnknownSurgeryLeavesNoBlob(t *testing.T) {
	env := newTestEnv(t)

	rec := env.upload(t, fmt.Sprintf("/surgeries/%s/attachments?kind=pre", uuid.New()), "laudo.pdf", "pdf bytes")
	require.Equal(t, http.StatusNotFound, rec.Code)

	// The failed write must not leave the stored file behind.
	assert.Empty(t, env.blobs.saved)
}

func TestUploadAttachment_BadKindLeavesNoBlob(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/surgeries", SurgeryRequest{
		PatientName: "Lucas Alves",
		DoctorID:    uuid.New().String(),
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decodeBody[surgery.Surgery](t, rec)

	rec = env.upload(t, fmt.Sprintf("/surgeries/%s/attachments?kind=during", created.ID), "laudo.pdf", "pdf bytes")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, env.blobs.saved)
}

func TestReferenceEntities(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/hospitals", NamedRequest{Name: "Hospital Central"})
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decodeBody[NamedResponse](t, rec)
	assert.Equal(t, "Hospital Central", created.Name)

	rec = env.do(t, http.MethodGet, "/hospitals", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decodeBody[[]NamedResponse](t, rec)
	require.Len(t, list, 1)

	rec = env.do(t, http.MethodDelete, fmt.Sprintf("/hospitals/%s", created.ID), nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = env.do(t, http.MethodPost, "/doctors", DoctorRequest{Name: ""})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
