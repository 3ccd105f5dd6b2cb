package fastmssql

import (
	"fmt"
	"time"
)

// PoolConfig bounds the connection pool. The zero value is not valid; use
// DefaultPoolConfig or NewPoolConfig. A PoolConfig is copied on use, so
// mutating it after NewConnection has no effect on a live pool.
type PoolConfig struct {
	// MaxSize is the hard cap on physical connections. Must be positive.
	MaxSize int
	// MinIdle is the idle floor maintained by background replenishment and
	// pre-established during warmup. Zero disables both. Must not exceed
	// MaxSize.
	MinIdle int
	// MaxLifetime recycles a connection once its total age exceeds the
	// limit, regardless of use. Zero means no age limit.
	MaxLifetime time.Duration
	// IdleTimeout recycles a connection that has sat unused for the given
	// duration. Zero means idle connections are kept indefinitely.
	IdleTimeout time.Duration
	// ConnectionTimeout bounds how long a checkout may wait for a free
	// connection. Zero means the wait is bounded only by the caller's
	// context.
	ConnectionTimeout time.Duration
	// TestOnCheckout pings a connection before handing it out and redials
	// on failure.
	TestOnCheckout bool
	// RetryOnConnect retries transient dial failures once with a short
	// backoff before reporting them.
	RetryOnConnect bool
}

// NewPoolConfig validates bounds and returns the configuration.
func NewPoolConfig(maxSize, minIdle int) (PoolConfig, error) {
	cfg := DefaultPoolConfig()
	cfg.MaxSize = maxSize
	cfg.MinIdle = minIdle
	if err := cfg.validate(); err != nil {
		return PoolConfig{}, err
	}
	return cfg, nil
}

func (c PoolConfig) validate() error {
	if c.MaxSize <= 0 {
		return configErr("MaxSize", "must be greater than 0, got %d", c.MaxSize)
	}
	if c.MinIdle < 0 {
		return configErr("MinIdle", "must not be negative, got %d", c.MinIdle)
	}
	if c.MinIdle > c.MaxSize {
		return configErr("MinIdle", "cannot be greater than MaxSize (%d > %d)", c.MinIdle, c.MaxSize)
	}
	if c.MaxLifetime < 0 || c.IdleTimeout < 0 || c.ConnectionTimeout < 0 {
		return configErr("PoolConfig", "timeouts must not be negative")
	}
	return nil
}

func (c PoolConfig) String() string {
	return fmt.Sprintf("PoolConfig(max_size=%d, min_idle=%d, max_lifetime=%s, idle_timeout=%s, connection_timeout=%s)",
		c.MaxSize, c.MinIdle, c.MaxLifetime, c.IdleTimeout, c.ConnectionTimeout)
}

// DefaultPoolConfig suits most applications: a small pool with a couple of
// warm connections and a 30 second checkout bound.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxSize:           10,
		MinIdle:           2,
		MaxLifetime:       30 * time.Minute,
		IdleTimeout:       5 * time.Minute,
		ConnectionTimeout: 30 * time.Second,
		RetryOnConnect:    true,
	}
}

// HighThroughputPoolConfig trades memory for a deep pool of warm
// connections.
func HighThroughputPoolConfig() PoolConfig {
	return PoolConfig{
		MaxSize:           50,
		MinIdle:           15,
		MaxLifetime:       30 * time.Minute,
		IdleTimeout:       10 * time.Minute,
		ConnectionTimeout: 30 * time.Second,
		RetryOnConnect:    true,
	}
}

// LowResourcePoolConfig keeps the footprint minimal, for constrained hosts.
func LowResourcePoolConfig() PoolConfig {
	return PoolConfig{
		MaxSize:           3,
		MinIdle:           1,
		MaxLifetime:       15 * time.Minute,
		IdleTimeout:       5 * time.Minute,
		ConnectionTimeout: 15 * time.Second,
		RetryOnConnect:    true,
	}
}

// DevelopmentPoolConfig uses short timeouts so local mistakes surface fast.
func DevelopmentPoolConfig() PoolConfig {
	return PoolConfig{
		MaxSize:           5,
		MinIdle:           1,
		MaxLifetime:       10 * time.Minute,
		IdleTimeout:       3 * time.Minute,
		ConnectionTimeout: 10 * time.Second,
		RetryOnConnect:    true,
	}
}

// MaximumPerformancePoolConfig is tuned for sustained extreme request rates.
func MaximumPerformancePoolConfig() PoolConfig {
	return PoolConfig{
		MaxSize:           100,
		MinIdle:           30,
		MaxLifetime:       2 * time.Hour,
		IdleTimeout:       30 * time.Minute,
		ConnectionTimeout: 10 * time.Second,
		TestOnCheckout:    false,
		RetryOnConnect:    true,
	}
}

// LoadTestWorkerPoolConfig sizes one worker process of a distributed load
// generator: a modest per-process pool so many workers share the server's
// connection budget.
func LoadTestWorkerPoolConfig() PoolConfig {
	return PoolConfig{
		MaxSize:           20,
		MinIdle:           5,
		MaxLifetime:       time.Hour,
		IdleTimeout:       10 * time.Minute,
		ConnectionTimeout: 5 * time.Second,
		RetryOnConnect:    true,
	}
}

// UltraHighConcurrencyPoolConfig serves request fan-outs in the hundreds.
// Checkout waits are short so overload surfaces as pool errors instead of
// queue buildup.
func UltraHighConcurrencyPoolConfig() PoolConfig {
	return PoolConfig{
		MaxSize:           200,
		MinIdle:           50,
		MaxLifetime:       2 * time.Hour,
		IdleTimeout:       15 * time.Minute,
		ConnectionTimeout: 5 * time.Second,
		RetryOnConnect:    true,
	}
}
