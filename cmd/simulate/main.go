package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"

	"github.com/bloodlink/blood-coordination/internal/bloodtype"
	"github.com/bloodlink/blood-coordination/internal/scheduling"
)

// Load simulator for the coordination API. Points a pool of workers at a
// running api-server and hammers the appointment and matching endpoints,
// recording success/conflict/error counts and latency percentiles per
// operation. Run the server in DEMO_MODE=true for a self-contained test.

type SimConfig struct {
	APIBaseURL    string
	Duration      time.Duration
	Workers       int
	ScheduleRatio float64
	CancelRatio   float64
	MatchRatio    float64
	ReadRatio     float64
	Hospitals     int
	Donors        int
	HorizonDays   int
}

type slotRef struct {
	HospitalID string
	Date       string
	Time       string
}

type donorRef struct {
	ID   string
	Info scheduling.DonorInfo
}

type DataPool struct {
	Slots  []slotRef
	Donors []donorRef

	mu           sync.RWMutex
	appointments []uuid.UUID
}

func (dp *DataPool) AddAppointment(id uuid.UUID) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.appointments = append(dp.appointments, id)
}

func (dp *DataPool) RandomAppointment(rng *rand.Rand) (uuid.UUID, bool) {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	if len(dp.appointments) == 0 {
		return uuid.Nil, false
	}
	return dp.appointments[rng.Intn(len(dp.appointments))], true
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

	sort.Slice(latencies, func(i, j int) bool {
		return latencies[i] < latencies[j]
	})

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}

	avg = sum / time.Duration(len(latencies))
	min = latencies[0]
	max = latencies[len(latencies)-1]

	p50Idx := len(latencies) * 50 / 100
	if p50Idx >= len(latencies) {
		p50Idx = len(latencies) - 1
	}
	p50 = latencies[p50Idx]

	p95Idx := len(latencies) * 95 / 100
	if p95Idx >= len(latencies) {
		p95Idx = len(latencies) - 1
	}
	p95 = latencies[p95Idx]

	return avg, min, max, p50, p95
}

type Metrics struct {
	Schedule  OperationMetrics
	Cancel    OperationMetrics
	FindMatch OperationMetrics
	ReadSlots OperationMetrics
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	metrics Metrics
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("simulator starting")

	cfg := loadConfig()
	if err := validateConfig(cfg); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	log.Printf("config: duration=%s workers=%d schedule=%.2f cancel=%.2f match=%.2f read=%.2f",
		cfg.Duration, cfg.Workers, cfg.ScheduleRatio, cfg.CancelRatio, cfg.MatchRatio, cfg.ReadRatio)

	sim := &Simulator{
		config: cfg,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	pool, err := sim.buildDataPool(ctx)
	if err != nil {
		log.Fatalf("build data pool: %v", err)
	}
	sim.pool = pool

	log.Printf("pool ready: %d hospitals, %d slots, %d donors",
		cfg.Hospitals, len(pool.Slots), len(pool.Donors))

	sim.Run()
	sim.PrintReport()
}

func loadConfig() SimConfig {
	cfg := SimConfig{
		APIBaseURL:    getEnv("SIM_API_BASE_URL", "http://localhost:8080"),
		Duration:      getDuration("SIM_DURATION", 30*time.Second),
		Workers:       getInt("SIM_WORKERS", 10),
		ScheduleRatio: getFloat("SIM_SCHEDULE_RATIO", 0.4),
		CancelRatio:   getFloat("SIM_CANCEL_RATIO", 0.1),
		MatchRatio:    getFloat("SIM_MATCH_RATIO", 0.2),
		ReadRatio:     getFloat("SIM_READ_RATIO", 0.3),
		Hospitals:     getInt("SIM_HOSPITALS", 5),
		Donors:        getInt("SIM_DONORS", 500),
		HorizonDays:   getInt("SIM_HORIZON_DAYS", 14),
	}

	// Normalize ratios
	total := cfg.ScheduleRatio + cfg.CancelRatio + cfg.MatchRatio + cfg.ReadRatio
	if total > 0 {
		cfg.ScheduleRatio /= total
		cfg.CancelRatio /= total
		cfg.MatchRatio /= total
		cfg.ReadRatio /= total
	}

	return cfg
}

func validateConfig(cfg SimConfig) error {
	if cfg.Workers <= 0 {
		return fmt.Errorf("SIM_WORKERS must be > 0")
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("SIM_DURATION must be > 0")
	}
	if cfg.Hospitals <= 0 {
		return fmt.Errorf("SIM_HOSPITALS must be > 0")
	}
	return nil
}

// buildDataPool initializes slot calendars for the simulated hospitals via
// the API, then reads the generated slots back to build the target pool.
func (s *Simulator) buildDataPool(ctx context.Context) (*DataPool, error) {
	pool := &DataPool{}

	for i := 0; i < s.config.Hospitals; i++ {
		hospitalID := fmt.Sprintf("hosp-sim-%03d", i+1)

		initBody, _ := json.Marshal(map[string]int{"days_ahead": s.config.HorizonDays})
		req, err := http.NewRequestWithContext(ctx, "POST",
			fmt.Sprintf("%s/hospitals/%s/slots", s.config.APIBaseURL, hospitalID), bytes.NewReader(initBody))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := s.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("init slots for %s: %w", hospitalID, err)
		}
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		if resp.StatusCode != http.StatusCreated {
			return nil, fmt.Errorf("init slots for %s: unexpected status %d", hospitalID, resp.StatusCode)
		}

		for d := 0; d < s.config.HorizonDays; d++ {
			date := time.Now().AddDate(0, 0, d).Format(scheduling.DateFormat)

			slots, err := s.fetchSlots(ctx, hospitalID, date)
			if err != nil {
				return nil, fmt.Errorf("fetch slots for %s %s: %w", hospitalID, date, err)
			}
			for _, slot := range slots {
				pool.Slots = append(pool.Slots, slotRef{
					HospitalID: hospitalID,
					Date:       date,
					Time:       slot.Time,
				})
			}
		}
	}

	if len(pool.Slots) == 0 {
		return nil, fmt.Errorf("no slots generated")
	}

	for i := 0; i < s.config.Donors; i++ {
		bt := bloodtype.All[i%len(bloodtype.All)]
		pool.Donors = append(pool.Donors, donorRef{
			ID: uuid.NewString(),
			Info: scheduling.DonorInfo{
				Name:      gofakeit.Name(),
				Phone:     gofakeit.Phone(),
				BloodType: string(bt),
			},
		})
	}

	return pool, nil
}

func (s *Simulator) fetchSlots(ctx context.Context, hospitalID, date string) ([]scheduling.Slot, error) {
	req, err := http.NewRequestWithContext(ctx, "GET",
		fmt.Sprintf("%s/hospitals/%s/slots?date=%s", s.config.APIBaseURL, hospitalID, date), nil)
	if err != nil {
		return nil, err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var slots []scheduling.Slot
	if err := json.NewDecoder(resp.Body).Decode(&slots); err != nil {
		return nil, err
	}
	return slots, nil
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	log.Printf("starting simulation for %s with %d workers", s.config.Duration, s.config.Workers)

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}

	wg.Wait()
	log.Println("simulation complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))

	for {
		select {
		case <-ctx.Done():
			return
		default:
			r := rng.Float64()
			switch {
			case r < s.config.ScheduleRatio:
				s.doSchedule(ctx, rng)
			case r < s.config.ScheduleRatio+s.config.CancelRatio:
				s.doCancel(ctx, rng)
			case r < s.config.ScheduleRatio+s.config.CancelRatio+s.config.MatchRatio:
				s.doFindMatch(ctx, rng)
			default:
				s.doReadSlots(ctx, rng)
			}
		}
	}
}

func (s *Simulator) doSchedule(ctx context.Context, rng *rand.Rand) {
	slot := s.pool.Slots[rng.Intn(len(s.pool.Slots))]
	donor := s.pool.Donors[rng.Intn(len(s.pool.Donors))]

	start := time.Now()

	reqBody := map[string]any{
		"hospital_id": slot.HospitalID,
		"date":        slot.Date,
		"time":        slot.Time,
		"donor_id":    donor.ID,
		"donor_info":  donor.Info,
	}
	body, _ := json.Marshal(reqBody)

	req, _ := http.NewRequestWithContext(ctx, "POST", s.config.APIBaseURL+"/appointments", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	latency := time.Since(start)

	success := false
	conflict := false

	if err == nil {
		defer resp.Body.Close()

		switch resp.StatusCode {
		case http.StatusCreated:
			success = true
			var apptResp struct {
				ID uuid.UUID `json:"id"`
			}
			bodyBytes, _ := io.ReadAll(resp.Body)
			if len(bodyBytes) > 0 {
				json.Unmarshal(bodyBytes, &apptResp)
				if apptResp.ID != uuid.Nil {
					s.pool.AddAppointment(apptResp.ID)
				}
			}
		case http.StatusConflict:
			// Slot full: the donor went to the waiting list.
			conflict = true
		}
	}

	s.metrics.Schedule.Record(latency, success, conflict)
}

func (s *Simulator) doCancel(ctx context.Context, rng *rand.Rand) {
	apptID, ok := s.pool.RandomAppointment(rng)
	if !ok {
		return
	}

	start := time.Now()

	req, _ := http.NewRequestWithContext(ctx, "POST",
		fmt.Sprintf("%s/appointments/%s/cancel", s.config.APIBaseURL, apptID.String()), nil)

	resp, err := s.client.Do(req)
	latency := time.Since(start)

	success := false
	conflict := false

	if err == nil {
		defer resp.Body.Close()
		// Repeated cancels of the same appointment hit the status guard
		// and come back 409; that is expected churn, not an error.
		if resp.StatusCode == http.StatusOK {
			success = true
		} else if resp.StatusCode == http.StatusConflict {
			conflict = true
		}
	}

	s.metrics.Cancel.Record(latency, success, conflict)
}

var simUrgencies = []string{"routine", "urgent", "critical"}

func (s *Simulator) doFindMatch(ctx context.Context, rng *rand.Rand) {
	bt := bloodtype.All[rng.Intn(len(bloodtype.All))]

	start := time.Now()

	reqBody := map[string]any{
		"recipient_blood_type": string(bt),
		"units_needed":         1 + rng.Intn(4),
		"urgency":              simUrgencies[rng.Intn(len(simUrgencies))],
		"patient_info": map[string]any{
			"age": 18 + rng.Intn(70),
		},
	}
	body, _ := json.Marshal(reqBody)

	req, _ := http.NewRequestWithContext(ctx, "POST", s.config.APIBaseURL+"/matches", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	latency := time.Since(start)

	success := false
	if err == nil {
		defer resp.Body.Close()
		success = resp.StatusCode == http.StatusOK
	}

	s.metrics.FindMatch.Record(latency, success, false)
}

func (s *Simulator) doReadSlots(ctx context.Context, rng *rand.Rand) {
	slot := s.pool.Slots[rng.Intn(len(s.pool.Slots))]

	start := time.Now()

	req, _ := http.NewRequestWithContext(ctx, "GET",
		fmt.Sprintf("%s/hospitals/%s/slots?date=%s", s.config.APIBaseURL, slot.HospitalID, slot.Date), nil)

	resp, err := s.client.Do(req)
	latency := time.Since(start)

	success := false
	if err == nil {
		defer resp.Body.Close()
		success = resp.StatusCode == http.StatusOK
	}

	s.metrics.ReadSlots.Record(latency, success, false)
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n", s.config.Workers)
	fmt.Println()

	printOperationReport("Schedule", &s.metrics.Schedule)
	printOperationReport("Cancel", &s.metrics.Cancel)
	printOperationReport("Find Match", &s.metrics.FindMatch)
	printOperationReport("Read Slots", &s.metrics.ReadSlots)
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}

	success := atomic.LoadInt64(&om.Success)
	conflict := atomic.LoadInt64(&om.Conflict)
	errCount := atomic.LoadInt64(&om.Error)

	avg, min, max, p50, p95 := om.Stats()

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Success: %d (%.1f%%)\n", success, float64(success)/float64(total)*100)
	if conflict > 0 {
		fmt.Printf("  Conflicts: %d (%.1f%%)\n", conflict, float64(conflict)/float64(total)*100)
	}
	if errCount > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", errCount, float64(errCount)/float64(total)*100)
	}
	fmt.Printf("  Latency: avg=%s min=%s max=%s p50=%s p95=%s\n",
		avg.Round(time.Millisecond), min.Round(time.Millisecond), max.Round(time.Millisecond),
		p50.Round(time.Millisecond), p95.Round(time.Millisecond))
	fmt.Println()
}

// Helper functions

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}
