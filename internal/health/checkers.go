package health

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.temporal.io/sdk/client"

	"github.com/chatflow/orchestrator/internal/circuitbreaker"
)

// Pinger is satisfied by the conversation store.
type Pinger interface {
	Ping(ctx context.Context) error
}

func result(component string, critical bool, start time.Time, err error, okMsg string) CheckResult {
	r := CheckResult{
		Component: component,
		Critical:  critical,
		Timestamp: start,
		Duration:  time.Since(start),
		Status:    StatusHealthy,
		Message:   okMsg,
	}
	if err != nil {
		r.Status = StatusUnhealthy
		if !critical {
			r.Status = StatusDegraded
		}
		r.Error = err.Error()
		r.Message = ""
	}
	return r
}

// RedisHealthChecker checks the notification stream backend.
type RedisHealthChecker struct {
	client  redis.UniversalClient
	timeout time.Duration
}

func NewRedisHealthChecker(client redis.UniversalClient) *RedisHealthChecker {
	return &RedisHealthChecker{client: client, timeout: 5 * time.Second}
}

func (r *RedisHealthChecker) Name() string           { return "redis" }
func (r *RedisHealthChecker) IsCritical() bool       { return false } // notifications are best-effort
func (r *RedisHealthChecker) Timeout() time.Duration { return r.timeout }

func (r *RedisHealthChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	return result(r.Name(), r.IsCritical(), start, r.client.Ping(ctx).Err(), "Redis is responsive")
}

// DatabaseHealthChecker checks the conversation store.
type DatabaseHealthChecker struct {
	db      Pinger
	timeout time.Duration
}

func NewDatabaseHealthChecker(db Pinger) *DatabaseHealthChecker {
	return &DatabaseHealthChecker{db: db, timeout: 5 * time.Second}
}

func (d *DatabaseHealthChecker) Name() string           { return "database" }
func (d *DatabaseHealthChecker) IsCritical() bool       { return false } // persistence failures never block chat
func (d *DatabaseHealthChecker) Timeout() time.Duration { return d.timeout }

func (d *DatabaseHealthChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	err := d.db.Ping(ctx)
	r := result(d.Name(), d.IsCritical(), start, err, "Database is responsive")
	if errors.Is(err, circuitbreaker.ErrOpen) {
		r.Message = "Database circuit breaker is open"
	}
	return r
}

// TemporalHealthChecker checks the workflow engine frontend.
type TemporalHealthChecker struct {
	client  client.Client
	timeout time.Duration
}

func NewTemporalHealthChecker(c client.Client) *TemporalHealthChecker {
	return &TemporalHealthChecker{client: c, timeout: 5 * time.Second}
}

func (t *TemporalHealthChecker) Name() string           { return "temporal" }
func (t *TemporalHealthChecker) IsCritical() bool       { return true }
func (t *TemporalHealthChecker) Timeout() time.Duration { return t.timeout }

func (t *TemporalHealthChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	_, err := t.client.CheckHealth(ctx, &client.CheckHealthRequest{})
	return result(t.Name(), t.IsCritical(), start, err, "Temporal frontend is serving")
}

// CustomHealthChecker wraps a function as a Checker.
type CustomHealthChecker struct {
	name     string
	critical bool
	timeout  time.Duration
	checkFn  func(ctx context.Context) error
}

func NewCustomHealthChecker(name string, critical bool, timeout time.Duration, checkFn func(ctx context.Context) error) *CustomHealthChecker {
	return &CustomHealthChecker{name: name, critical: critical, timeout: timeout, checkFn: checkFn}
}

func (c *CustomHealthChecker) Name() string           { return c.name }
func (c *CustomHealthChecker) IsCritical() bool       { return c.critical }
func (c *CustomHealthChecker) Timeout() time.Duration { return c.timeout }

func (c *CustomHealthChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	return result(c.name, c.critical, start, c.checkFn(ctx), "ok")
}
