package observability

import (
	"strconv"
	"sync"
	"time"
)

// Metrics provides basic in-memory counters.
type Metrics struct {
	mu           sync.Mutex
	requestCount map[string]int64
	errorCount   map[string]int64
	pollCount    map[string]int64
	sendCount    map[string]int64
	pollLatency  time.Duration
	sendLatency  time.Duration
}

// Snapshot is a point-in-time copy of every counter.
type Snapshot struct {
	Requests        map[string]int64 `json:"requests"`
	Errors          map[string]int64 `json:"errors"`
	Polls           map[string]int64 `json:"polls"`
	Sends           map[string]int64 `json:"sends"`
	LastPollLatency string           `json:"last_poll_latency"`
	LastSendLatency string           `json:"last_send_latency"`
}

// NewMetrics initializes metrics storage.
func NewMetrics() *Metrics {
	return &Metrics{
		requestCount: make(map[string]int64),
		errorCount:   make(map[string]int64),
		pollCount:    make(map[string]int64),
		sendCount:    make(map[string]int64),
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

// RecordPoll counts one poll cycle.
func (m *Metrics) RecordPoll(ok bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pollCount[outcome(ok)]++
	m.pollLatency = duration
}

// RecordSend counts one send attempt that reached the backend.
func (m *Metrics) RecordSend(ok bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sendCount[outcome(ok)]++
	m.sendLatency = duration
}

// Snapshot copies the counters.
func (m *Metrics) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Snapshot{
		Requests:        copyCounts(m.requestCount),
		Errors:          copyCounts(m.errorCount),
		Polls:           copyCounts(m.pollCount),
		Sends:           copyCounts(m.sendCount),
		LastPollLatency: m.pollLatency.String(),
		LastSendLatency: m.sendLatency.String(),
	}
}

func pathKey(path, method string, status int) string {
	return path + "|" + method + "|" + strconv.Itoa(status)
}

func outcome(ok bool) string {
	if ok {
		return "ok"
	}
	return "failed"
}

func copyCounts(src map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}
