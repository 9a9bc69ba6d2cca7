package testsupport

import (
	"context"
	"sync"
	"testing"
	"time"

	"dbvoir/internal/config"
	"dbvoir/internal/logging"
	"dbvoir/internal/processed"
)

// MustOpenRecord opens the processed record selected by cfg and registers
// cleanup.
func MustOpenRecord(t testing.TB, cfg *config.Config) processed.Record {
	t.Helper()

	rec, err := processed.Open(context.Background(), cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("processed.Open: %v", err)
	}
	t.Cleanup(func() {
		_ = rec.Close()
	})
	return rec
}

// Clock is a manually advanced time source.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock returns a clock fixed at start.
func NewClock(start time.Time) *Clock {
	return &Clock{now: start}
}

// Now returns the current fake time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}
