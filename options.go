package chflow

import (
	"strings"
	"time"

	"chflow/circuit"
)

// Config holds the configuration for the action layer.
type Config struct {
	// Path configuration
	DefaultTrack    string // Track used when a challenge has none, default "develop"
	CheckpointTrack string // Track segment of the checkpoint endpoint, default "design"

	// Circuit breaker configuration (applied to API clients when a breaker is wired)
	CircuitThreshold    int           // Consecutive failures before opening, default 5
	CircuitTimeout      time.Duration // Open duration before half-open, default 30s
	CircuitHalfOpenReqs int           // Half-open probe requests, default 3
}

// DefaultConfig returns the default configuration for the action layer.
func DefaultConfig() Config {
	return Config{
		DefaultTrack:        "develop",
		CheckpointTrack:     "design",
		CircuitThreshold:    5,
		CircuitTimeout:      30 * time.Second,
		CircuitHalfOpenReqs: 3,
	}
}

// Option is a function that modifies the Config.
type Option func(*Config)

// WithDefaultTrack sets the fallback track for the secondary details fetch.
func WithDefaultTrack(track string) Option {
	return func(c *Config) {
		c.DefaultTrack = track
	}
}

// WithCheckpointTrack sets the track segment of the checkpoint endpoint.
func WithCheckpointTrack(track string) Option {
	return func(c *Config) {
		c.CheckpointTrack = track
	}
}

// WithCircuitThreshold sets the circuit breaker failure threshold.
func WithCircuitThreshold(threshold int) Option {
	return func(c *Config) {
		c.CircuitThreshold = threshold
	}
}

// WithCircuitTimeout sets the circuit breaker recovery timeout.
func WithCircuitTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		c.CircuitTimeout = timeout
	}
}

// WithCircuitHalfOpenReqs sets the maximum requests in half-open state.
func WithCircuitHalfOpenReqs(reqs int) Option {
	return func(c *Config) {
		c.CircuitHalfOpenReqs = reqs
	}
}

// ApplyOptions applies the given options to a default config and returns the result.
func ApplyOptions(opts ...Option) Config {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// ToBreakerConfig converts the circuit breaker settings to a BreakerConfig.
func (c *Config) ToBreakerConfig() circuit.BreakerConfig {
	return circuit.BreakerConfig{
		Threshold:       c.CircuitThreshold,
		Timeout:         c.CircuitTimeout,
		HalfOpenMaxReqs: c.CircuitHalfOpenReqs,
	}
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.DefaultTrack) == "" {
		return ErrInvalidConfig
	}
	if strings.TrimSpace(c.CheckpointTrack) == "" {
		return ErrInvalidConfig
	}
	if strings.ContainsRune(c.DefaultTrack, '/') || strings.ContainsRune(c.CheckpointTrack, '/') {
		return ErrInvalidConfig
	}
	if c.CircuitThreshold <= 0 {
		return ErrInvalidConfig
	}
	if c.CircuitTimeout <= 0 {
		return ErrInvalidConfig
	}
	if c.CircuitHalfOpenReqs <= 0 {
		return ErrInvalidConfig
	}
	return nil
}
