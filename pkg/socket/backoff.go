package socket

import (
	"math/rand"
	"sync"
	"time"
)

// Reconnect defaults.
const (
	// DefaultReconnectDelay is the fixed delay between a close and the next dial.
	DefaultReconnectDelay = 3 * time.Second

	// DefaultMaxBackoff caps the exponential policy.
	DefaultMaxBackoff = 60 * time.Second

	// DefaultBackoffMultiplier is the growth factor of the exponential policy.
	DefaultBackoffMultiplier = 2.0

	// DefaultJitter is the maximum jitter as a fraction of the base delay.
	DefaultJitter = 0.25
)

// ReconnectPolicy yields the wait before each reconnect attempt.
// Reset is called after every successful open.
type ReconnectPolicy interface {
	Next() time.Duration
	Reset()
}

// FixedDelay waits the same duration before every attempt, forever.
type FixedDelay time.Duration

// Next returns the fixed delay.
func (d FixedDelay) Next() time.Duration { return time.Duration(d) }

// Reset is a no-op.
func (FixedDelay) Reset() {}

// BackoffConfig customizes the exponential policy.
type BackoffConfig struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
	Jitter     float64
}

// Backoff calculates exponential reconnect delays with jitter.
type Backoff struct {
	mu sync.Mutex

	current time.Duration

	initial    time.Duration
	max        time.Duration
	multiplier float64
	jitter     float64

	attempts int

	rng *rand.Rand
}

// NewBackoff creates an exponential policy. Zero fields take defaults:
// Initial DefaultReconnectDelay, Max DefaultMaxBackoff, Multiplier 2.
func NewBackoff(cfg BackoffConfig) *Backoff {
	if cfg.Initial <= 0 {
		cfg.Initial = DefaultReconnectDelay
	}
	if cfg.Max <= 0 {
		cfg.Max = DefaultMaxBackoff
	}
	if cfg.Max < cfg.Initial {
		cfg.Max = cfg.Initial
	}
	if cfg.Multiplier <= 1 {
		cfg.Multiplier = DefaultBackoffMultiplier
	}
	if cfg.Jitter < 0 {
		cfg.Jitter = 0
	}

	return &Backoff{
		current:    cfg.Initial,
		initial:    cfg.Initial,
		max:        cfg.Max,
		multiplier: cfg.Multiplier,
		jitter:     cfg.Jitter,
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Next returns the next delay (with jitter) and advances the policy.
func (b *Backoff) Next() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	delay := b.addJitter(b.current)

	b.attempts++
	next := time.Duration(float64(b.current) * b.multiplier)
	if next > b.max {
		next = b.max
	}
	b.current = next

	return delay
}

// Reset returns to the initial delay.
func (b *Backoff) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.current = b.initial
	b.attempts = 0
}

// Attempts returns the number of delays handed out since the last reset.
func (b *Backoff) Attempts() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.attempts
}

// Current returns the current base delay (without jitter).
func (b *Backoff) Current() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current
}

func (b *Backoff) addJitter(d time.Duration) time.Duration {
	if b.jitter <= 0 {
		return d
	}
	return d + time.Duration(float64(d)*b.jitter*b.rng.Float64())
}

var (
	_ ReconnectPolicy = FixedDelay(0)
	_ ReconnectPolicy = (*Backoff)(nil)
)
