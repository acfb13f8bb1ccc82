package policy

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"
)

// RateState is the request-count ledger behind rate limiting.
type RateState struct {
	// IssueCounts is keyed by issueKey.
	IssueCounts map[string]int `json:"issue_counts"`
	// HourlyEvents is keyed by lowercased username.
	HourlyEvents map[string][]time.Time `json:"hourly_events"`
}

func NewRateState() *RateState {
	return &RateState{
		IssueCounts:  map[string]int{},
		HourlyEvents: map[string][]time.Time{},
	}
}

func (s *RateState) normalize() {
	if s.IssueCounts == nil {
		s.IssueCounts = map[string]int{}
	}
	if s.HourlyEvents == nil {
		s.HourlyEvents = map[string][]time.Time{}
	}
}

func issueKey(username string, issue int) string {
	return strings.ToLower(username) + "#" + strconv.Itoa(issue)
}

// Ledger stores RateState. Update runs fn with exclusive access and persists
// the state fn leaves behind; an error from fn discards the changes.
type Ledger interface {
	Update(ctx context.Context, fn func(*RateState) error) error
}

// MemoryLedger keeps the state for the lifetime of the process.
type MemoryLedger struct {
	mu    sync.Mutex
	state *RateState
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{state: NewRateState()}
}

func (m *MemoryLedger) Update(_ context.Context, fn func(*RateState) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	work := m.state.clone()
	if err := fn(work); err != nil {
		return err
	}
	m.state = work
	return nil
}

// Reset drops all counters.
func (m *MemoryLedger) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = NewRateState()
}

// Seed replaces the state, for tests and warm starts.
func (m *MemoryLedger) Seed(s *RateState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = s.clone()
}

func (m *MemoryLedger) Snapshot() *RateState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.clone()
}

func (s *RateState) clone() *RateState {
	out := NewRateState()
	if s == nil {
		return out
	}
	for k, v := range s.IssueCounts {
		out.IssueCounts[k] = v
	}
	for k, v := range s.HourlyEvents {
		out.HourlyEvents[k] = append([]time.Time(nil), v...)
	}
	return out
}
