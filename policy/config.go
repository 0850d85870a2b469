package policy

import (
	"errors"
	"fmt"
	"time"
)

// Config represents the policy engine configuration.
type Config struct {
	// Statements is the ordered list of policy statements.
	Statements []RawStatement `yaml:"statements" json:"statements"`

	// Cache configures decision caching.
	Cache *CacheConfig `yaml:"cache,omitempty" json:"cache,omitempty"`
}

// CacheConfig configures decision caching.
type CacheConfig struct {
	// Enabled enables caching.
	Enabled bool `yaml:"enabled" json:"enabled"`

	// TTL is the cache TTL.
	TTL time.Duration `yaml:"ttl,omitempty" json:"ttl,omitempty"`

	// MaxSize is the maximum number of entries (memory cache only).
	MaxSize int `yaml:"maxSize,omitempty" json:"maxSize,omitempty"`

	// Type is the cache type (memory, redis).
	Type string `yaml:"type,omitempty" json:"type,omitempty"`

	// Redis configures the redis cache backend.
	Redis *RedisCacheConfig `yaml:"redis,omitempty" json:"redis,omitempty"`
}

// RedisCacheConfig configures the redis decision cache backend.
type RedisCacheConfig struct {
	// Addr is the redis server address.
	Addr string `yaml:"addr" json:"addr"`

	// Password is the redis password.
	Password string `yaml:"password,omitempty" json:"password,omitempty"`

	// DB is the redis database number.
	DB int `yaml:"db,omitempty" json:"db,omitempty"`

	// KeyPrefix prefixes all cache keys.
	KeyPrefix string `yaml:"keyPrefix,omitempty" json:"keyPrefix,omitempty"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c == nil {
		return nil
	}

	for i, s := range c.Statements {
		if err := s.Validate(); err != nil {
			return fmt.Errorf("statements[%d]: %w", i, err)
		}
	}

	if c.Cache != nil && c.Cache.Enabled {
		if err := c.Cache.Validate(); err != nil {
			return fmt.Errorf("cache config: %w", err)
		}
	}

	return nil
}

// Validate validates a raw statement.
func (s *RawStatement) Validate() error {
	if len(s.Principal) == 0 {
		return errors.New("principal is required")
	}

	if len(s.Action) == 0 {
		return errors.New("action is required")
	}

	if s.Effect != EffectAllow && s.Effect != EffectDeny {
		return fmt.Errorf("invalid effect: %q (must be %q or %q)", s.Effect, EffectAllow, EffectDeny)
	}

	return nil
}

// Validate validates the cache configuration.
func (c *CacheConfig) Validate() error {
	if c.TTL < 0 {
		return errors.New("ttl must be non-negative")
	}
	if c.MaxSize < 0 {
		return errors.New("maxSize must be non-negative")
	}

	switch c.Type {
	case "", "memory":
	case "redis":
		if c.Redis == nil || c.Redis.Addr == "" {
			return errors.New("redis cache requires an address")
		}
	default:
		return fmt.Errorf("invalid cache type: %s", c.Type)
	}

	return nil
}
