package ferry

import (
	"fmt"
	"time"
)

// Config holds every enumerated configuration option from the external
// interface (spec §6), parsed from the environment via
// github.com/caarlos0/env/v11 at startup, validated once, and passed by
// value into engine.New thereafter — no component mutates it.
type Config struct {
	LeaseSeconds            int     `env:"LEASE_SECONDS" envDefault:"30"`
	HeartbeatSeconds        int     `env:"HEARTBEAT_SECONDS" envDefault:"10"`
	ExecutionTimeoutSeconds int     `env:"EXECUTION_TIMEOUT_SECONDS" envDefault:"300"`
	ReapIntervalMS          int     `env:"REAP_INTERVAL_MS" envDefault:"5000"`
	ClaimBatch              int     `env:"CLAIM_BATCH" envDefault:"32"`
	OutboxBatch             int     `env:"OUTBOX_BATCH" envDefault:"128"`
	RetryBaseMS             int     `env:"RETRY_BASE_MS" envDefault:"1000"`
	RetryCapMS              int     `env:"RETRY_CAP_MS" envDefault:"300000"`
	RetryJitterRatio        float64 `env:"RETRY_JITTER_RATIO" envDefault:"0.1"`
	StoreDSN                string  `env:"STORE_DSN"`
	HMACSkewSeconds         int     `env:"HMAC_SKEW_SECONDS" envDefault:"300"`

	ListenAddr string `env:"LISTEN_ADDR" envDefault:":8080"`
	RedisAddr  string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
}

// LeaseDuration returns LeaseSeconds as a time.Duration.
func (c Config) LeaseDuration() time.Duration {
	return time.Duration(c.LeaseSeconds) * time.Second
}

// HeartbeatInterval returns HeartbeatSeconds as a time.Duration.
func (c Config) HeartbeatInterval() time.Duration {
	return time.Duration(c.HeartbeatSeconds) * time.Second
}

// ExecutionTimeout returns ExecutionTimeoutSeconds as a time.Duration.
func (c Config) ExecutionTimeout() time.Duration {
	return time.Duration(c.ExecutionTimeoutSeconds) * time.Second
}

// ReapInterval returns ReapIntervalMS as a time.Duration.
func (c Config) ReapInterval() time.Duration {
	return time.Duration(c.ReapIntervalMS) * time.Millisecond
}

// RetryBase returns RetryBaseMS as a time.Duration.
func (c Config) RetryBase() time.Duration {
	return time.Duration(c.RetryBaseMS) * time.Millisecond
}

// RetryCap returns RetryCapMS as a time.Duration.
func (c Config) RetryCap() time.Duration {
	return time.Duration(c.RetryCapMS) * time.Millisecond
}

// HMACSkew returns HMACSkewSeconds as a time.Duration.
func (c Config) HMACSkew() time.Duration {
	return time.Duration(c.HMACSkewSeconds) * time.Second
}

// Validate checks the parsed configuration for internally-consistent,
// usable values. Called once at startup; a failure here is a
// configuration error (process exit code 1, spec §6).
func (c Config) Validate() error {
	if c.StoreDSN == "" {
		return fmt.Errorf("ferry: config: STORE_DSN is required")
	}
	if c.LeaseSeconds <= 0 {
		return fmt.Errorf("ferry: config: LEASE_SECONDS must be positive")
	}
	if c.HeartbeatSeconds <= 0 {
		return fmt.Errorf("ferry: config: HEARTBEAT_SECONDS must be positive")
	}
	if c.HeartbeatSeconds >= c.LeaseSeconds {
		return fmt.Errorf("ferry: config: HEARTBEAT_SECONDS must be less than LEASE_SECONDS")
	}
	if c.ExecutionTimeoutSeconds <= 0 {
		return fmt.Errorf("ferry: config: EXECUTION_TIMEOUT_SECONDS must be positive")
	}
	if c.ReapIntervalMS <= 0 {
		return fmt.Errorf("ferry: config: REAP_INTERVAL_MS must be positive")
	}
	if c.ClaimBatch <= 0 {
		return fmt.Errorf("ferry: config: CLAIM_BATCH must be positive")
	}
	if c.OutboxBatch <= 0 {
		return fmt.Errorf("ferry: config: OUTBOX_BATCH must be positive")
	}
	if c.RetryBaseMS <= 0 {
		return fmt.Errorf("ferry: config: RETRY_BASE_MS must be positive")
	}
	if c.RetryCapMS < c.RetryBaseMS {
		return fmt.Errorf("ferry: config: RETRY_CAP_MS must be >= RETRY_BASE_MS")
	}
	if c.RetryJitterRatio < 0 {
		return fmt.Errorf("ferry: config: RETRY_JITTER_RATIO must be >= 0")
	}
	if c.HMACSkewSeconds <= 0 {
		return fmt.Errorf("ferry: config: HMAC_SKEW_SECONDS must be positive")
	}

	return nil
}
