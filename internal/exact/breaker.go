package exact

import (
	"sync"
	"time"
)

// Circuit breaker defaults.
const (
	DefaultFailureThreshold = 5
	DefaultOpenTimeout      = 60 * time.Second
)

type circuitState int

const (
	stateClosed circuitState = iota
	stateOpen
	stateHalfOpen
)

type circuit struct {
	state       circuitState
	failures    int
	lastFailure time.Time
	probing     bool
}

// Breaker tracks per-endpoint health. Consecutive failures past the threshold
// open the circuit; after the open window one probe is allowed through, and
// its outcome decides between closing and reopening.
type Breaker struct {
	mu       sync.Mutex
	circuits map[string]*circuit

	threshold   int
	openTimeout time.Duration
	now         func() time.Time
}

func NewBreaker(threshold int, openTimeout time.Duration) *Breaker {
	if threshold <= 0 {
		threshold = DefaultFailureThreshold
	}
	if openTimeout <= 0 {
		openTimeout = DefaultOpenTimeout
	}
	return &Breaker{
		circuits:    make(map[string]*circuit),
		threshold:   threshold,
		openTimeout: openTimeout,
		now:         time.Now,
	}
}

// Allow reports whether a call to the endpoint may proceed. In the half-open
// state exactly one in-flight probe is admitted; concurrent callers are
// rejected until its outcome is recorded.
func (b *Breaker) Allow(endpoint string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	c := b.circuit(endpoint)
	switch c.state {
	case stateClosed:
		return nil
	case stateOpen:
		if b.now().Sub(c.lastFailure) < b.openTimeout {
			return ErrCircuitOpen
		}
		c.state = stateHalfOpen
		c.probing = true
		return nil
	case stateHalfOpen:
		if c.probing {
			return ErrCircuitOpen
		}
		c.probing = true
		return nil
	}
	return nil
}

// Release abandons an admitted call without an outcome, returning a held
// half-open probe slot so a later caller can attempt the probe instead.
// Without it a probe whose call never completes would block the endpoint
// permanently.
func (b *Breaker) Release(endpoint string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.circuit(endpoint).probing = false
}

// Record feeds a call outcome back into the endpoint's circuit. Any success
// resets the failure count and closes the circuit; a half-open failure
// reopens it immediately.
func (b *Breaker) Record(endpoint string, success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	c := b.circuit(endpoint)
	c.probing = false

	if success {
		c.state = stateClosed
		c.failures = 0
		return
	}

	c.failures++
	c.lastFailure = b.now()
	if c.state == stateHalfOpen || c.failures >= b.threshold {
		c.state = stateOpen
	}
}

func (b *Breaker) circuit(endpoint string) *circuit {
	c, ok := b.circuits[endpoint]
	if !ok {
		c = &circuit{}
		b.circuits[endpoint] = c
	}
	return c
}
