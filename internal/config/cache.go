package config

import (
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// CacheConfig defines settings for the response cache middleware.
// When Enabled is false or no Redis client is configured, caching is
// disabled.  Only the public tour catalogue is cached; availability and
// booking endpoints always hit the database.
type CacheConfig struct {
	Enabled      bool          `envconfig:"ENABLED" default:"true"`
	MethodList   []string      `envconfig:"METHODS" default:"GET"`
	TTL          time.Duration `envconfig:"TTL" default:"30s"`
	KeyStrategy  string        `envconfig:"KEY_STRATEGY" default:"route_query"`
	Prefix       string        `envconfig:"PREFIX" default:"cache"`
	MaxBodyBytes int           `envconfig:"MAX_BODY_BYTES" default:"1048576"`

	// Methods is MethodList upper-cased into a set.
	Methods map[string]bool `ignored:"true"`
}

// LoadCacheConfig reads CACHE_* variables.  Unparseable values fall back to
// the defaults instead of failing startup.
func LoadCacheConfig() CacheConfig {
	var c CacheConfig
	if err := envconfig.Process("CACHE", &c); err != nil {
		c = CacheConfig{Enabled: true, MethodList: []string{"GET"}, TTL: 30 * time.Second,
			KeyStrategy: "route_query", Prefix: "cache", MaxBodyBytes: 1 << 20}
	}
	c.Methods = parseMethods(c.MethodList)
	if c.TTL <= 0 {
		c.TTL = time.Second
	}
	return c
}

func parseMethods(list []string) map[string]bool {
	m := map[string]bool{}
	for _, p := range list {
		p = strings.TrimSpace(strings.ToUpper(p))
		if p != "" {
			m[p] = true
		}
	}
	return m
}
