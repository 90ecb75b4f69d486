package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

// RateLimitConfig drives the Redis token bucket in front of booking
// creation.
type RateLimitConfig struct {
	Enabled        bool          `envconfig:"ENABLED" default:"true"`
	Capacity       int           `envconfig:"CAPACITY" default:"20"`
	RefillTokens   int           `envconfig:"REFILL_TOKENS" default:"1"`
	RefillInterval time.Duration `envconfig:"REFILL_INTERVAL" default:"3s"`
	TTL            time.Duration `envconfig:"TTL" default:"10m"`
	KeyStrategy    string        `envconfig:"KEY_STRATEGY" default:"ip_user_route"`
	Prefix         string        `envconfig:"PREFIX" default:"rl"`
	Debug          bool          `envconfig:"DEBUG" default:"false"`
	Burst          int           `envconfig:"BURST" default:"-1"`
	RefillEvery    time.Duration `envconfig:"REFILL_EVERY" default:"0s"`
}

// LoadRateLimitConfig reads RATE_LIMIT_* variables and normalizes them.
func LoadRateLimitConfig() RateLimitConfig {
	var c RateLimitConfig
	if err := envconfig.Process("RATE_LIMIT", &c); err != nil {
		c = RateLimitConfig{Enabled: true, Capacity: 20, RefillTokens: 1, RefillInterval: 3 * time.Second,
			TTL: 10 * time.Minute, KeyStrategy: "ip_user_route", Prefix: "rl", Burst: -1}
	}
	return c.normalize()
}

// normalize applies the shorthand variables (BURST, REFILL_EVERY) and
// clamps values so the limiter script never divides by zero and keys
// outlive at least a few refill intervals.
func (c RateLimitConfig) normalize() RateLimitConfig {
	if c.Burst > 0 {
		c.Capacity = c.Burst
	}
	if c.RefillEvery > 0 {
		c.RefillTokens = 1
		c.RefillInterval = c.RefillEvery
	}
	if c.Capacity < 1 {
		c.Capacity = 1
	}
	if c.RefillTokens < 1 {
		c.RefillTokens = 1
	}
	if c.RefillInterval <= 0 {
		c.RefillInterval = time.Second
	}
	if minTTL := 5 * c.RefillInterval; c.TTL < minTTL {
		c.TTL = minTTL
	}
	return c
}
