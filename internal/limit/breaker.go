package limit

import (
	"sync"
	"time"
)

// BreakerState is the persisted record for one service's breaker. Keeping it
// external means a breaker opened in one invocation stays open for the next.
type BreakerState struct {
	Service  string      `json:"service"`
	Failures []time.Time `json:"failures"`
	OpenedAt time.Time   `json:"opened_at,omitempty"`
}

// BreakerStore persists breaker state across invocations.
type BreakerStore interface {
	BreakerState(service string) (*BreakerState, error)
	PutBreakerState(state *BreakerState) error
}

// BreakerConfig configures failure-window circuit breaking.
type BreakerConfig struct {
	FailureThreshold int           // failures within Window that open the circuit
	Window           time.Duration // rolling window failures are counted in
	Cooldown         time.Duration // how long the circuit stays open
}

// DefaultBreakerConfig returns the standard policy for external services.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 3,
		Window:           10 * time.Minute,
		Cooldown:         15 * time.Minute,
	}
}

// Breaker is a per-service circuit breaker. After FailureThreshold failures
// inside the rolling window it opens for Cooldown; while open, Allow reports
// false and callers skip the service instead of calling it.
type Breaker struct {
	mu      sync.Mutex
	service string
	config  BreakerConfig
	store   BreakerStore
	now     func() time.Time
}

// NewBreaker creates a breaker for a named service backed by a store.
// A nil store keeps state in memory only.
func NewBreaker(service string, config BreakerConfig, store BreakerStore) *Breaker {
	if store == nil {
		store = newMemBreakerStore()
	}
	return &Breaker{
		service: service,
		config:  config,
		store:   store,
		now:     time.Now,
	}
}

// Allow reports whether a call to the service should be attempted.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	st := b.load()
	now := b.now()

	if !st.OpenedAt.IsZero() {
		if now.Sub(st.OpenedAt) < b.config.Cooldown {
			return false
		}
		// Cooldown elapsed: close and forget the failure history.
		st.OpenedAt = time.Time{}
		st.Failures = nil
		b.save(st)
	}
	return true
}

// RecordFailure adds a failure to the window and opens the circuit when the
// threshold is reached.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	st := b.load()
	now := b.now()

	st.Failures = append(b.prune(st.Failures, now), now)
	if len(st.Failures) >= b.config.FailureThreshold {
		st.OpenedAt = now
	}
	b.save(st)
}

// RecordSuccess clears the failure window for a closed circuit.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	st := b.load()
	if st.OpenedAt.IsZero() && len(st.Failures) > 0 {
		st.Failures = nil
		b.save(st)
	}
}

// Open reports whether the circuit is currently open.
func (b *Breaker) Open() bool { return !b.Allow() }

func (b *Breaker) prune(failures []time.Time, now time.Time) []time.Time {
	cutoff := now.Add(-b.config.Window)
	kept := failures[:0]
	for _, f := range failures {
		if f.After(cutoff) {
			kept = append(kept, f)
		}
	}
	return kept
}

func (b *Breaker) load() *BreakerState {
	st, err := b.store.BreakerState(b.service)
	if err != nil || st == nil {
		return &BreakerState{Service: b.service}
	}
	return st
}

func (b *Breaker) save(st *BreakerState) {
	st.Service = b.service
	// Persistence failures leave the breaker working in-memory for this
	// invocation; the next tick reloads whatever was last written.
	_ = b.store.PutBreakerState(st)
}

// memBreakerStore is the in-memory fallback used by tests and by callers
// without persistent storage.
type memBreakerStore struct {
	mu     sync.Mutex
	states map[string]*BreakerState
}

func newMemBreakerStore() *memBreakerStore {
	return &memBreakerStore{states: make(map[string]*BreakerState)}
}

func (m *memBreakerStore) BreakerState(service string) (*BreakerState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.states[service], nil
}

func (m *memBreakerStore) PutBreakerState(st *BreakerState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[st.Service] = st
	return nil
}
