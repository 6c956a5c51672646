package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"chflow"
	"chflow/circuit"
)

// MemoryBreaker is an in-memory implementation of the Breaker interface
type MemoryBreaker struct {
	mu            sync.RWMutex
	breakers      map[string]*memoryCircuitBreaker
	defaultConfig circuit.BreakerConfig
}

var _ circuit.Breaker = (*MemoryBreaker)(nil)

// NewMemoryBreaker creates a new MemoryBreaker with default configuration
func NewMemoryBreaker() *MemoryBreaker {
	return NewMemoryBreakerWithConfig(circuit.DefaultBreakerConfig())
}

// NewMemoryBreakerWithConfig creates a new MemoryBreaker with custom default configuration
func NewMemoryBreakerWithConfig(config circuit.BreakerConfig) *MemoryBreaker {
	return &MemoryBreaker{
		breakers:      make(map[string]*memoryCircuitBreaker),
		defaultConfig: config,
	}
}

// Get returns the circuit breaker for the specified service with default config
func (m *MemoryBreaker) Get(service string) circuit.CircuitBreaker {
	return m.GetWithConfig(service, m.defaultConfig)
}

// GetWithConfig returns the circuit breaker for the specified service with custom config.
// The config only applies when the breaker is first created.
func (m *MemoryBreaker) GetWithConfig(service string, config circuit.BreakerConfig) circuit.CircuitBreaker {
	m.mu.Lock()
	defer m.mu.Unlock()

	if cb, exists := m.breakers[service]; exists {
		return cb
	}

	cb := newMemoryCircuitBreaker(service, config)
	m.breakers[service] = cb
	return cb
}

// Services returns the sorted names of all known breakers.
func (m *MemoryBreaker) Services() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.breakers))
	for name := range m.breakers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// memoryCircuitBreaker is an in-memory implementation of CircuitBreaker
type memoryCircuitBreaker struct {
	mu      sync.RWMutex
	service string
	config  circuit.BreakerConfig
	state   circuit.State
	counts  circuit.BreakerCounts

	openedAt         time.Time
	halfOpenRequests int
}

func newMemoryCircuitBreaker(service string, config circuit.BreakerConfig) *memoryCircuitBreaker {
	return &memoryCircuitBreaker{
		service: service,
		config:  config,
		state:   circuit.StateClosed,
	}
}

// Execute runs fn unless the circuit is open. It never retries.
func (cb *memoryCircuitBreaker) Execute(ctx context.Context, fn func() error) error {
	if err := cb.beforeRequest(); err != nil {
		return err
	}

	err := fn()

	cb.afterRequest(err == nil)

	return err
}

func (cb *memoryCircuitBreaker) beforeRequest() error {
	cb.mu.Lock()
	from := cb.state
	err := cb.admitLocked(time.Now())
	to := cb.state
	cb.mu.Unlock()

	cb.notify(from, to)
	return err
}

func (cb *memoryCircuitBreaker) admitLocked(now time.Time) error {
	switch cb.state {
	case circuit.StateClosed:
		cb.counts.Requests++
		return nil

	case circuit.StateOpen:
		if now.Sub(cb.openedAt) >= cb.config.Timeout {
			cb.state = circuit.StateHalfOpen
			cb.halfOpenRequests = 1
			cb.counts.Requests++
			cb.counts.ConsecutiveSuccesses = 0
			return nil
		}
		return chflow.ErrCircuitOpen

	case circuit.StateHalfOpen:
		if cb.halfOpenRequests >= cb.config.HalfOpenMaxReqs {
			return chflow.ErrCircuitOpen
		}
		cb.counts.Requests++
		cb.halfOpenRequests++
		return nil

	default:
		return chflow.ErrCircuitOpen
	}
}

func (cb *memoryCircuitBreaker) afterRequest(success bool) {
	cb.mu.Lock()
	from := cb.state
	if success {
		cb.onSuccess()
	} else {
		cb.onFailure()
	}
	to := cb.state
	cb.mu.Unlock()

	cb.notify(from, to)
}

func (cb *memoryCircuitBreaker) onSuccess() {
	cb.counts.TotalSuccesses++
	cb.counts.ConsecutiveSuccesses++
	cb.counts.ConsecutiveFailures = 0

	if cb.state == circuit.StateHalfOpen &&
		cb.counts.ConsecutiveSuccesses >= int64(cb.config.HalfOpenMaxReqs) {
		cb.state = circuit.StateClosed
		cb.halfOpenRequests = 0
	}
}

func (cb *memoryCircuitBreaker) onFailure() {
	cb.counts.TotalFailures++
	cb.counts.ConsecutiveFailures++
	cb.counts.ConsecutiveSuccesses = 0

	switch cb.state {
	case circuit.StateClosed:
		if cb.counts.ConsecutiveFailures >= int64(cb.config.Threshold) {
			cb.state = circuit.StateOpen
			cb.openedAt = time.Now()
		}
	case circuit.StateHalfOpen:
		// any failure while probing reopens
		cb.state = circuit.StateOpen
		cb.openedAt = time.Now()
		cb.halfOpenRequests = 0
	}
}

func (cb *memoryCircuitBreaker) notify(from, to circuit.State) {
	if from != to && cb.config.OnStateChange != nil {
		cb.config.OnStateChange(cb.service, from, to)
	}
}

// State returns the current state of the circuit breaker
func (cb *memoryCircuitBreaker) State() circuit.State {
	cb.mu.RLock()
	defer cb.mu.RUnlock()

	// reported early; the actual transition happens on the next request
	if cb.state == circuit.StateOpen && time.Since(cb.openedAt) >= cb.config.Timeout {
		return circuit.StateHalfOpen
	}

	return cb.state
}

// Reset manually resets the circuit breaker to closed state
func (cb *memoryCircuitBreaker) Reset() {
	cb.mu.Lock()
	from := cb.state
	cb.state = circuit.StateClosed
	cb.counts = circuit.BreakerCounts{}
	cb.halfOpenRequests = 0
	cb.mu.Unlock()

	cb.notify(from, circuit.StateClosed)
}

// Counts returns the current statistics
func (cb *memoryCircuitBreaker) Counts() circuit.BreakerCounts {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.counts
}
