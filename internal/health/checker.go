// Package health runs periodic checks over the stores behind the
// gamification engine, with optional recovery actions.
package health

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"
)

// Pinger is anything that can report reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Check defines a single health check with optional recovery action.
type Check struct {
	Name      string
	CheckFn   func(ctx context.Context) error
	RecoverFn func(ctx context.Context) error
}

// Status represents the result of a health check.
type Status struct {
	Name      string    `json:"name"`
	Healthy   bool      `json:"healthy"`
	Error     string    `json:"error,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

// Options selects the checks to run. Nil fields skip their check.
type Options struct {
	Remote   Pinger
	Local    Pinger
	DataDir  string
	Interval time.Duration

	// Backlog counts users with unsynced local mirrors; MaxBacklog is the
	// level above which the check fails and Drain is run.
	Backlog    func() (int, error)
	MaxBacklog int
	Drain      func(ctx context.Context)
}

// Checker runs periodic health checks with auto-recovery.
type Checker struct {
	mu       sync.RWMutex
	checks   []Check
	statuses []Status
	interval time.Duration
}

// NewChecker builds the checks selected by o.
func NewChecker(o Options) *Checker {
	interval := o.Interval
	if interval <= 0 {
		interval = 60 * time.Second
	}
	c := &Checker{interval: interval}

	if o.Remote != nil {
		c.checks = append(c.checks, Check{
			Name:    "remote_store",
			CheckFn: o.Remote.Ping,
		})
	}
	if o.Local != nil {
		c.checks = append(c.checks, Check{
			Name:    "local_store",
			CheckFn: o.Local.Ping,
		})
	}
	if o.DataDir != "" {
		dir := o.DataDir
		c.checks = append(c.checks, Check{
			Name:    "data_dir",
			CheckFn: func(context.Context) error { return checkDir(dir) },
			RecoverFn: func(context.Context) error {
				return os.MkdirAll(dir, 0o755)
			},
		})
	}
	if o.Backlog != nil {
		backlog, limit, drain := o.Backlog, o.MaxBacklog, o.Drain
		c.checks = append(c.checks, Check{
			Name: "sync_backlog",
			CheckFn: func(context.Context) error {
				n, err := backlog()
				if err != nil {
					return err
				}
				if n > limit {
					return fmt.Errorf("%d users waiting to sync (limit %d)", n, limit)
				}
				return nil
			},
			RecoverFn: func(ctx context.Context) error {
				if drain != nil {
					drain(ctx)
				}
				return nil
			},
		})
	}
	return c
}

// Add appends a custom check.
func (c *Checker) Add(ch Check) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks = append(c.checks, ch)
}

// Run starts the health check loop. Call in a goroutine.
func (c *Checker) Run(ctx context.Context) {
	c.RunOnce(ctx)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.RunOnce(ctx)
		}
	}
}

// RunOnce runs every check now and stores the results.
func (c *Checker) RunOnce(ctx context.Context) []Status {
	c.mu.RLock()
	checks := append([]Check(nil), c.checks...)
	c.mu.RUnlock()

	statuses := make([]Status, len(checks))
	for i, check := range checks {
		s := Status{Name: check.Name, CheckedAt: time.Now()}
		if err := check.CheckFn(ctx); err != nil {
			s.Error = err.Error()
			if check.RecoverFn != nil {
				_ = check.RecoverFn(ctx)
			}
		} else {
			s.Healthy = true
		}
		statuses[i] = s
	}

	c.mu.Lock()
	c.statuses = statuses
	c.mu.Unlock()
	return statuses
}

// Statuses returns the latest health check results.
func (c *Checker) Statuses() []Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	result := make([]Status, len(c.statuses))
	copy(result, c.statuses)
	return result
}

// IsHealthy returns true if all checks pass.
func (c *Checker) IsHealthy() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, s := range c.statuses {
		if !s.Healthy {
			return false
		}
	}
	return true
}

// ─── Check Implementations ──────────────────────────────────────────────────

func checkDir(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("check data dir: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", dir)
	}
	return nil
}
