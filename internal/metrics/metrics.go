package metrics

import (
	"sort"
	"sync"
	"time"
)

const maxResponseTimes = 1000

type Metrics struct {
	mutex         sync.RWMutex
	requests      map[string]int64
	pinned        map[string]int64
	failures      map[string]int64
	responseTimes map[string][]time.Duration
	statusCodes   map[string]map[int]int64
	removed       map[string]struct{}
	startTime     time.Time
}

type Snapshot struct {
	TotalRequests int64                 `json:"total_requests"`
	Uptime        time.Duration         `json:"uptime"`
	Taps          map[string]TapMetrics `json:"taps"`
}

type TapMetrics struct {
	Requests    int64         `json:"requests"`
	Pinned      int64         `json:"pinned"`
	Forwarded   int64         `json:"forwarded"`
	Failures    int64         `json:"failures"`
	AvgResponse time.Duration `json:"avg_response"`
	P50Response time.Duration `json:"p50_response"`
	P95Response time.Duration `json:"p95_response"`
	P99Response time.Duration `json:"p99_response"`
	StatusCodes map[int]int64 `json:"status_codes"`
}

func (m *Metrics) IncrementRequests(tap string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if m.isRemoved(tap) {
		return
	}
	m.requests[tap]++
}

func (m *Metrics) RecordPinned(tap string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if m.isRemoved(tap) {
		return
	}
	m.pinned[tap]++
}

func (m *Metrics) RecordFailure(tap string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if m.isRemoved(tap) {
		return
	}
	m.failures[tap]++
}

func (m *Metrics) RecordResponse(tap string, duration time.Duration, statusCode int) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if m.isRemoved(tap) {
		return
	}

	m.responseTimes[tap] = append(m.responseTimes[tap], duration)

	if len(m.responseTimes[tap]) > maxResponseTimes {
		m.responseTimes[tap] = m.responseTimes[tap][1:]
	}

	if m.statusCodes[tap] == nil {
		m.statusCodes[tap] = make(map[int]int64)
	}
	m.statusCodes[tap][statusCode]++
}

// Forget drops everything known about a removed tap. Events that arrive for
// it afterwards are ignored; tap ids are never reused.
func (m *Metrics) Forget(tap string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.removed[tap] = struct{}{}

	delete(m.requests, tap)
	delete(m.pinned, tap)
	delete(m.failures, tap)
	delete(m.responseTimes, tap)
	delete(m.statusCodes, tap)
}

func (m *Metrics) Snapshot() Snapshot {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	snap := Snapshot{
		Uptime: time.Since(m.startTime),
		Taps:   make(map[string]TapMetrics),
	}

	allTaps := make(map[string]bool)
	for tap := range m.requests {
		allTaps[tap] = true
	}
	for tap := range m.pinned {
		allTaps[tap] = true
	}
	for tap := range m.failures {
		allTaps[tap] = true
	}
	for tap := range m.statusCodes {
		allTaps[tap] = true
	}

	for tap := range allTaps {
		snap.TotalRequests += m.requests[tap]

		tm := TapMetrics{
			Requests:    m.requests[tap],
			Pinned:      m.pinned[tap],
			Failures:    m.failures[tap],
			StatusCodes: make(map[int]int64, len(m.statusCodes[tap])),
		}
		for code, n := range m.statusCodes[tap] {
			tm.StatusCodes[code] = n
			tm.Forwarded += n
		}

		durations := m.responseTimes[tap]
		if len(durations) > 0 {
			sorted := make([]time.Duration, len(durations))
			copy(sorted, durations)
			sort.Slice(sorted, func(i, j int) bool {
				return sorted[i] < sorted[j]
			})

			tm.AvgResponse = average(sorted)
			tm.P50Response = percentile(sorted, 0.50)
			tm.P95Response = percentile(sorted, 0.95)
			tm.P99Response = percentile(sorted, 0.99)
		}

		snap.Taps[tap] = tm
	}

	return snap
}

func NewMetrics() *Metrics {
	return &Metrics{
		requests:      make(map[string]int64),
		pinned:        make(map[string]int64),
		failures:      make(map[string]int64),
		responseTimes: make(map[string][]time.Duration),
		statusCodes:   make(map[string]map[int]int64),
		removed:       make(map[string]struct{}),
		startTime:     time.Now(),
	}
}

// isRemoved must be called with the mutex held.
func (m *Metrics) isRemoved(tap string) bool {
	_, removed := m.removed[tap]
	return removed
}

func average(durations []time.Duration) time.Duration {
	if len(durations) == 0 {
		return 0
	}

	var sum time.Duration
	for _, d := range durations {
		sum += d
	}

	return sum / time.Duration(len(durations))
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}

	index := int(float64(len(sorted)) * p)
	if index >= len(sorted) {
		index = len(sorted) - 1
	}

	return sorted[index]
}
