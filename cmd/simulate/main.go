// simulate drives a running api-server with a mixed workload of surgery
// creation, drag-reschedules, calendar reads, and report reads, then
// prints latency and outcome stats per operation.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/surgiplan/surgery-scheduling/internal/config"
	"github.com/surgiplan/surgery-scheduling/internal/db"
	"github.com/surgiplan/surgery-scheduling/internal/surgery"
)

type SimConfig struct {
	APIBaseURL      string
	Duration        time.Duration
	Workers         int
	CreateRatio     float64
	RescheduleRatio float64
	CalendarRatio   float64
	PostgresDSN     string
}

// DataPool holds the ids the workers can play with.
type DataPool struct {
	Doctors   []uuid.UUID
	Hospitals []uuid.UUID
	Plans     []uuid.UUID

	mu        sync.RWMutex
	surgeries []uuid.UUID
}

func (dp *DataPool) AddSurgery(id uuid.UUID) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.surgeries = append(dp.surgeries, id)
}

func (dp *DataPool) RandomSurgery() (uuid.UUID, bool) {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	if len(dp.surgeries) == 0 {
		return uuid.Nil, false
	}
	return dp.surgeries[rand.Intn(len(dp.surgeries))], true
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Error     int64
	mu        sync.Mutex
	Latencies []time.Duration
}

func (om *OperationMetrics) Record(latency time.Duration, success, conflict bool) {
	atomic.AddInt64(&om.Total, 1)
	switch {
	case success:
		atomic.AddInt64(&om.Success, 1)
	case conflict:
		atomic.AddInt64(&om.Conflict, 1)
	default:
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, min, max, p50, p95 time.Duration) {
	om.mu.Lock()
	defer om.mu.Unlock()

	if len(om.Latencies) == 0 {
		return 0, 0, 0, 0, 0
	}

	latencies := make([]time.Duration, len(om.Latencies))
	copy(latencies, om.Latencies)
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}

	avg = sum / time.Duration(len(latencies))
	min = latencies[0]
	max = latencies[len(latencies)-1]
	p50 = latencies[len(latencies)*50/100]
	p95idx := len(latencies) * 95 / 100
	if p95idx >= len(latencies) {
		p95idx = len(latencies) - 1
	}
	p95 = latencies[p95idx]

	return avg, min, max, p50, p95
}

type Metrics struct {
	Create     OperationMetrics
	Reschedule OperationMetrics
	Calendar   OperationMetrics
	Summary    OperationMetrics
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	metrics Metrics
}

func main() {
	log.Info().Msg("simulator starting")

	cfg := loadSimConfig()
	if cfg.CreateRatio+cfg.RescheduleRatio+cfg.CalendarRatio > 1.0 {
		log.Fatal().Msg("operation ratios must sum to at most 1.0")
	}

	log.Info().
		Dur("duration", cfg.Duration).
		Int("workers", cfg.Workers).
		Float64("create", cfg.CreateRatio).
		Float64("reschedule", cfg.RescheduleRatio).
		Float64("calendar", cfg.CalendarRatio).
		Msg("config")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := loadPool(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("load data pool")
	}
	if len(pool.Doctors) == 0 || len(pool.Hospitals) == 0 || len(pool.Plans) == 0 {
		log.Fatal().Msg("database is empty, run cmd/seed first")
	}

	sim := &Simulator{
		config: cfg,
		pool:   pool,
		client: &http.Client{Timeout: 10 * time.Second},
	}
	sim.run()
	sim.report()
}

func loadSimConfig() SimConfig {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load error")
	}

	return SimConfig{
		APIBaseURL:      getEnv("SIM_API_URL", "http://127.0.0.1:8080"),
		Duration:        getDurationEnv("SIM_DURATION", 30*time.Second),
		Workers:         getIntEnv("SIM_WORKERS", 8),
		CreateRatio:     getFloatEnv("SIM_CREATE_RATIO", 0.2),
		RescheduleRatio: getFloatEnv("SIM_RESCHEDULE_RATIO", 0.3),
		CalendarRatio:   getFloatEnv("SIM_CALENDAR_RATIO", 0.4),
		PostgresDSN:     cfg.PostgresDSN,
	}
}

func loadPool(ctx context.Context, dsn string) (*DataPool, error) {
	pgPool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		return nil, err
	}
	defer pgPool.Close()

	repo := surgery.NewPgRepository(pgPool)
	pool := &DataPool{}

	doctors, err := repo.ListDoctors(ctx)
	if err != nil {
		return nil, err
	}
	for _, d := range doctors {
		pool.Doctors = append(pool.Doctors, d.ID)
	}

	hospitals, err := repo.ListHospitals(ctx)
	if err != nil {
		return nil, err
	}
	for _, h := range hospitals {
		pool.Hospitals = append(pool.Hospitals, h.ID)
	}

	plans, err := repo.ListInsurancePlans(ctx)
	if err != nil {
		return nil, err
	}
	for _, p := range plans {
		pool.Plans = append(pool.Plans, p.ID)
	}

	surgeries, err := repo.ListSurgeries(ctx)
	if err != nil {
		return nil, err
	}
	for _, s := range surgeries {
		if s.ScheduledAt != nil {
			pool.surgeries = append(pool.surgeries, s.ID)
		}
	}

	return pool, nil
}

func (s *Simulator) run() {
	deadline := time.Now().Add(s.config.Duration)

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for time.Now().Before(deadline) {
				s.step()
			}
		}()
	}
	wg.Wait()
}

func (s *Simulator) step() {
	r := rand.Float64()
	switch {
	case r < s.config.CreateRatio:
		s.doCreate()
	case r < s.config.CreateRatio+s.config.RescheduleRatio:
		s.doReschedule()
	case r < s.config.CreateRatio+s.config.RescheduleRatio+s.config.CalendarRatio:
		s.doCalendar()
	default:
		s.doSummary()
	}
}

func (s *Simulator) doCreate() {
	at := time.Now().AddDate(0, 0, rand.Intn(60)).UTC().Format(time.RFC3339)
	body := map[string]any{
		"patient_name": gofakeit.Name(),
		"doctor_id":    s.pool.Doctors[rand.Intn(len(s.pool.Doctors))].String(),
		"hospital_id":  s.pool.Hospitals[rand.Intn(len(s.pool.Hospitals))].String(),
		"insurance_id": s.pool.Plans[rand.Intn(len(s.pool.Plans))].String(),
		"status":       "scheduled",
		"scheduled_at": at,
	}

	status, resp, latency := s.post("/surgeries", body)
	s.metrics.Create.Record(latency, status == http.StatusCreated, status == http.StatusConflict)

	if status == http.StatusCreated {
		var created struct {
			ID uuid.UUID `json:"id"`
		}
		if err := json.Unmarshal(resp, &created); err == nil && created.ID != uuid.Nil {
			s.pool.AddSurgery(created.ID)
		}
	}
}

func (s *Simulator) doReschedule() {
	id, ok := s.pool.RandomSurgery()
	if !ok {
		return
	}

	target := time.Now().AddDate(0, 0, rand.Intn(90)-45).Format("2006-01-02")
	status, _, latency := s.post(fmt.Sprintf("/surgeries/%s/reschedule", id), map[string]any{"date": target})
	s.metrics.Reschedule.Record(latency,
		status == http.StatusOK || status == http.StatusNoContent,
		status == http.StatusConflict)
}

func (s *Simulator) doCalendar() {
	mode := "month"
	if rand.Intn(2) == 0 {
		mode = "week"
	}
	date := time.Now().AddDate(0, rand.Intn(3)-1, 0).Format("2006-01-02")

	status, latency := s.get(fmt.Sprintf("/calendar?date=%s&mode=%s", date, mode))
	s.metrics.Calendar.Record(latency, status == http.StatusOK, false)
}

func (s *Simulator) doSummary() {
	from := time.Now().AddDate(0, -1, 0).Format("2006-01-02")
	to := time.Now().Format("2006-01-02")

	status, latency := s.get(fmt.Sprintf("/reports/summary?from=%s&to=%s", from, to))
	s.metrics.Summary.Record(latency, status == http.StatusOK, false)
}

func (s *Simulator) post(path string, body any) (int, []byte, time.Duration) {
	payload, _ := json.Marshal(body)

	start := time.Now()
	resp, err := s.client.Post(s.config.APIBaseURL+path, "application/json", bytes.NewReader(payload))
	latency := time.Since(start)
	if err != nil {
		return 0, nil, latency
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, data, latency
}

func (s *Simulator) get(path string) (int, time.Duration) {
	start := time.Now()
	resp, err := s.client.Get(s.config.APIBaseURL + path)
	latency := time.Since(start)
	if err != nil {
		return 0, latency
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, latency
}

func (s *Simulator) report() {
	print := func(name string, om *OperationMetrics) {
		avg, min, max, p50, p95 := om.Stats()
		fmt.Printf("%-12s total=%d ok=%d conflict=%d err=%d avg=%s min=%s max=%s p50=%s p95=%s\n",
			name, om.Total, om.Success, om.Conflict, om.Error, avg, min, max, p50, p95)
	}

	fmt.Println("---- simulation results ----")
	print("create", &s.metrics.Create)
	print("reschedule", &s.metrics.Reschedule)
	print("calendar", &s.metrics.Calendar)
	print("summary", &s.metrics.Summary)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getIntEnv(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getFloatEnv(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getDurationEnv(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
