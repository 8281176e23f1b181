package observability

import (
	"strconv"
	"sync"
	"time"
)

// Job outcomes recorded by the triage pool.
const (
	JobOutcomeDone      = "done"
	JobOutcomeRetried   = "retried"
	JobOutcomeExhausted = "exhausted"
	JobOutcomeSkipped   = "skipped"
)

// Metrics provides basic in-memory counters.
type Metrics struct {
	mu           sync.Mutex
	requestCount map[string]int64
	errorCount   map[string]int64
	jobCount     map[string]int64
	jobDuration  time.Duration
	breachCount  map[string]int64
	sweepCount   int64
}

// MetricsSnapshot is a point-in-time copy of the counters.
type MetricsSnapshot struct {
	Requests        map[string]int64 `json:"requests"`
	Errors          map[string]int64 `json:"errors"`
	Jobs            map[string]int64 `json:"jobs"`
	JobSecondsTotal float64          `json:"job_seconds_total"`
	Breaches        map[string]int64 `json:"breaches"`
	Sweeps          int64            `json:"sweeps"`
}

// NewMetrics initializes metrics storage.
func NewMetrics() *Metrics {
	return &Metrics{
		requestCount: make(map[string]int64),
		errorCount:   make(map[string]int64),
		jobCount:     make(map[string]int64),
		breachCount:  make(map[string]int64),
	}
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	key := pathKey(path, method, status)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestCount[key]++
}

// RecordError increments error counters.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	key := path + "|" + method + "|" + code
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorCount[key]++
}

// RecordJob counts one finished triage job.
func (m *Metrics) RecordJob(outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobCount[outcome]++
	m.jobDuration += duration
}

// RecordSweep counts one sweep pass and the rows it moved.
func (m *Metrics) RecordSweep(firstResponse, resolution int64) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sweepCount++
	m.breachCount["first_response"] += firstResponse
	m.breachCount["resolution"] += resolution
}

// Snapshot copies the current counters.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil {
		return MetricsSnapshot{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return MetricsSnapshot{
		Requests:        copyCounts(m.requestCount),
		Errors:          copyCounts(m.errorCount),
		Jobs:            copyCounts(m.jobCount),
		JobSecondsTotal: m.jobDuration.Seconds(),
		Breaches:        copyCounts(m.breachCount),
		Sweeps:          m.sweepCount,
	}
}

func copyCounts(src map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}

func pathKey(path, method string, status int) string {
	return path + "|" + method + "|" + strconv.Itoa(status)
}
