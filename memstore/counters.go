package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/attara/chronicle/core/persistence"
)

type counter struct {
	value      int64
	lastUpdate time.Time
}

// Counters is an in-memory counter store. Counters are keyed by category
// and name and advance atomically.
type Counters struct {
	mu     sync.Mutex
	values map[string]*counter
	now    func() time.Time
}

// NewCounters builds an empty counter store.
func NewCounters() *Counters {
	return &Counters{
		values: make(map[string]*counter),
		now:    time.Now,
	}
}

func counterKey(category, name string) string {
	return category + "/" + name
}

// Increment advances the counter and returns the new value. A fresh
// counter starts at zero, so its first increment returns the step.
func (c *Counters) Increment(_ context.Context, category, name string, step int64) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := counterKey(category, name)
	entry, ok := c.values[key]
	if !ok {
		entry = &counter{}
		c.values[key] = entry
	}
	entry.value += step
	entry.lastUpdate = c.now()
	return entry.value, nil
}

// Current reads the counter without advancing it.
func (c *Counters) Current(_ context.Context, category, name string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if entry, ok := c.values[counterKey(category, name)]; ok {
		return entry.value, nil
	}
	return 0, nil
}

// Reset restarts the counter from zero.
func (c *Counters) Reset(_ context.Context, category, name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.values, counterKey(category, name))
	return nil
}

// LastUpdated returns when the counter last advanced, or a zero time for
// a fresh counter.
func (c *Counters) LastUpdated(category, name string) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	if entry, ok := c.values[counterKey(category, name)]; ok {
		return entry.lastUpdate
	}
	return time.Time{}
}

var _ persistence.CounterStore = (*Counters)(nil)
