package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog"

	"github.com/JavaTeamPosTech/meu-hospital-microservices/internal/api"
	"github.com/JavaTeamPosTech/meu-hospital-microservices/internal/config"
	"github.com/JavaTeamPosTech/meu-hospital-microservices/internal/db"
	"github.com/JavaTeamPosTech/meu-hospital-microservices/internal/identity"
	"github.com/JavaTeamPosTech/meu-hospital-microservices/internal/logging"
)

// SimConfig drives a burst of concurrent bookings aimed at a small grid of
// start times so that many requests collide on the same provider.
type SimConfig struct {
	APIBaseURL    string        `envconfig:"SIM_API_BASE_URL" default:"http://localhost:8080"`
	Duration      time.Duration `envconfig:"SIM_DURATION" default:"30s"`
	Workers       int           `envconfig:"SIM_WORKERS" default:"10"`
	ProviderLimit int           `envconfig:"SIM_PROVIDER_LIMIT" default:"5"`
	Days          int           `envconfig:"SIM_DAYS" default:"2"`
	Step          time.Duration `envconfig:"SIM_STEP" default:"15m"`
	// Patients is a comma separated list of id=name pairs known to the
	// identity directory.
	Patients []string `envconfig:"SIM_PATIENTS" required:"true"`
}

type patient struct {
	ID   uuid.UUID
	Name string
}

type DataPool struct {
	Patients  []patient
	Providers []uuid.UUID
	Starts    []time.Time
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

func (om *OperationMetrics) Record(latency time.Duration, success bool, conflict bool) {
	atomic.AddInt64(&om.Total, 1)
	if success {
		atomic.AddInt64(&om.Success, 1)
	} else if conflict {
		atomic.AddInt64(&om.Conflict, 1)
	} else {
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
	p95 = latencies[min95(len(latencies))]
	return avg, min, max, p50, p95
}

func min95(n int) int {
	i := n * 95 / 100
	if i >= n {
		i = n - 1
	}
	return i
}

type Simulator struct {
	config   SimConfig
	pool     *DataPool
	client   *http.Client
	token    string
	booking  OperationMetrics
	duration time.Duration
	logger   zerolog.Logger
}

func main() {
	logger := logging.New("simulate", "info", "console")

	base, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load base config")
	}
	if base.JWT.Secret == "" {
		logger.Fatal().Msg("JWT_SECRET is required to mint a clinical token")
	}

	var cfg SimConfig
	if err := envconfig.Process("", &cfg); err != nil {
		logger.Fatal().Err(err).Msg("invalid simulation config")
	}
	if cfg.Workers <= 0 || cfg.Duration <= 0 {
		logger.Fatal().Msg("SIM_WORKERS and SIM_DURATION must be > 0")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, base.Postgres.DSN, db.PoolOptions{MaxConns: 2, MinConns: 1})
	if err != nil {
		logger.Fatal().Err(err).Msg("connect postgres")
	}
	defer pgPool.Close()

	dataPool, err := loadDataPool(ctx, pgPool, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("load data pool")
	}

	token, err := api.IssueToken(base.JWT.Secret, uuid.New(), identity.RoleNurse, cfg.Duration+time.Minute)
	if err != nil {
		logger.Fatal().Err(err).Msg("mint token")
	}

	logger.Info().
		Int("patients", len(dataPool.Patients)).
		Int("providers", len(dataPool.Providers)).
		Int("start_times", len(dataPool.Starts)).
		Dur("duration", cfg.Duration).
		Int("workers", cfg.Workers).
		Msg("simulation loaded")

	sim := &Simulator{
		config:   cfg,
		pool:     dataPool,
		client:   &http.Client{Timeout: 10 * time.Second},
		token:    token,
		duration: base.Scheduling.AppointmentDuration,
		logger:   logger,
	}

	sim.Run()
	sim.PrintReport()

	overlaps, err := countOverlaps(context.Background(), pgPool, base.Scheduling.AppointmentDuration, dataPool.Providers)
	if err != nil {
		logger.Fatal().Err(err).Msg("invariant check failed to run")
	}
	if overlaps > 0 {
		logger.Error().Int("overlapping_pairs", overlaps).Msg("INVARIANT VIOLATED: provider has overlapping appointments")
		os.Exit(2)
	}
	logger.Info().Msg("invariant holds: no overlapping appointments")
}

func loadDataPool(ctx context.Context, pool *pgxpool.Pool, cfg SimConfig) (*DataPool, error) {
	dp := &DataPool{}

	for _, pair := range cfg.Patients {
		id, name, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok {
			return nil, fmt.Errorf("SIM_PATIENTS entry %q is not id=name", pair)
		}
		pid, err := uuid.Parse(id)
		if err != nil {
			return nil, fmt.Errorf("SIM_PATIENTS entry %q: %w", pair, err)
		}
		dp.Patients = append(dp.Patients, patient{ID: pid, Name: name})
	}

	rows, err := pool.Query(ctx, `
		SELECT id FROM provider_projections
		WHERE role = 'provider'
		ORDER BY id
		LIMIT $1
	`, cfg.ProviderLimit)
	if err != nil {
		return nil, fmt.Errorf("load providers: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		dp.Providers = append(dp.Providers, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(dp.Patients) == 0 {
		return nil, fmt.Errorf("no patients configured")
	}
	if len(dp.Providers) == 0 {
		return nil, fmt.Errorf("no providers in projection, run seed and the providers consumer first")
	}

	// business hours on the next cfg.Days days, every cfg.Step
	tomorrow := time.Now().UTC().Truncate(24 * time.Hour).Add(24 * time.Hour)
	for d := 0; d < cfg.Days; d++ {
		day := tomorrow.AddDate(0, 0, d)
		for t := day.Add(11 * time.Hour); t.Before(day.Add(21 * time.Hour)); t = t.Add(cfg.Step) {
			dp.Starts = append(dp.Starts, t)
		}
	}

	return dp, nil
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}

	wg.Wait()
	s.logger.Info().Msg("simulation complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))

	for ctx.Err() == nil {
		s.doBooking(ctx, rng)
	}
}

func (s *Simulator) doBooking(ctx context.Context, rng *rand.Rand) {
	p := s.pool.Patients[rng.Intn(len(s.pool.Patients))]
	body, _ := json.Marshal(api.CreateAppointmentRequest{
		PatientID:   p.ID.String(),
		PatientName: p.Name,
		ProviderID:  s.pool.Providers[rng.Intn(len(s.pool.Providers))].String(),
		ScheduledAt: s.pool.Starts[rng.Intn(len(s.pool.Starts))],
		Details:     "simulated booking",
	})

	req, _ := http.NewRequestWithContext(ctx, http.MethodPost, s.config.APIBaseURL+"/appointments", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.token)

	start := time.Now()
	resp, err := s.client.Do(req)
	latency := time.Since(start)

	success, conflict := false, false
	if err == nil {
		defer resp.Body.Close()
		switch resp.StatusCode {
		case http.StatusCreated:
			success = true
		case http.StatusBadRequest:
			// slot taken, schedule busy or integrity backstop
			conflict = true
		}
	} else if ctx.Err() != nil {
		return
	}

	s.booking.Record(latency, success, conflict)
}

// countOverlaps looks for pairs of live appointments of one provider whose
// half-open intervals intersect.
func countOverlaps(ctx context.Context, pool *pgxpool.Pool, d time.Duration, providers []uuid.UUID) (int, error) {
	var n int
	err := pool.QueryRow(ctx, `
		SELECT count(*)
		FROM appointments a
		JOIN appointments b
		  ON a.provider_id = b.provider_id
		 AND a.id < b.id
		WHERE a.status <> 'CANCELLED'
		  AND b.status <> 'CANCELLED'
		  AND a.provider_id = ANY($2)
		  AND tstzrange(a.scheduled_at, a.scheduled_at + make_interval(secs => $1), '[)')
		   && tstzrange(b.scheduled_at, b.scheduled_at + make_interval(secs => $1), '[)')
	`, d.Seconds(), providers).Scan(&n)
	return n, err
}

func (s *Simulator) PrintReport() {
	om := &s.booking
	total := atomic.LoadInt64(&om.Total)

	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n", s.config.Workers)
	fmt.Println()

	if total == 0 {
		fmt.Println("No bookings attempted")
		return
	}

	success := atomic.LoadInt64(&om.Success)
	conflict := atomic.LoadInt64(&om.Conflict)
	failed := atomic.LoadInt64(&om.Error)
	avg, min, max, p50, p95 := om.Stats()

	fmt.Println("Booking:")
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Created: %d (%.1f%%)\n", success, float64(success)/float64(total)*100)
	fmt.Printf("  Rejected: %d (%.1f%%)\n", conflict, float64(conflict)/float64(total)*100)
	if failed > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", failed, float64(failed)/float64(total)*100)
	}
	fmt.Printf("  Latency: avg=%s min=%s max=%s p50=%s p95=%s\n",
		avg.Round(time.Millisecond), min.Round(time.Millisecond), max.Round(time.Millisecond),
		p50.Round(time.Millisecond), p95.Round(time.Millisecond))
	fmt.Println()
}
