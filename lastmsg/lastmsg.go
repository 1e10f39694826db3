// Package lastmsg holds the single most recent chat message and renders it for
// the status endpoint. A message is tagged with FreshPrefix while it is younger
// than the configured window; the tag is derived on every read, so it decays
// without any timer or background goroutine.
package lastmsg

import (
	"sync"
	"time"
)

const (
	// DefaultWindow is how long a message counts as new after it was written.
	DefaultWindow = 9 * time.Second
	// FreshPrefix is prepended to messages still inside the window.
	FreshPrefix = "[NEW] "
)

// Record is the retained message. ReceivedAt is assigned by the cache.
type Record struct {
	Author     string
	Text       string
	ReceivedAt time.Time
}

// Cache is a single-slot, last-write-wins message store. The zero value is not
// usable; construct with New.
type Cache struct {
	mu     sync.RWMutex
	rec    Record
	filled bool

	window time.Duration
	now    func() time.Time
}

// Option configures a Cache.
type Option func(*Cache)

// WithWindow overrides DefaultWindow. Non-positive values are ignored.
func WithWindow(d time.Duration) Option {
	return func(c *Cache) {
		if d > 0 {
			c.window = d
		}
	}
}

// WithClock replaces time.Now. The clock must carry a monotonic reading (as
// time.Now does) for wall-clock adjustments not to affect freshness.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

// New returns an empty cache.
func New(opts ...Option) *Cache {
	c := &Cache{window: DefaultWindow, now: time.Now}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Window returns the freshness window in use.
func (c *Cache) Window() time.Duration { return c.window }

// Write replaces the stored message and restarts its freshness window.
// The clock is read under the lock so the surviving record always carries the
// latest timestamp.
func (c *Cache) Write(author, text string) {
	c.mu.Lock()
	c.rec = Record{Author: author, Text: text, ReceivedAt: c.now()}
	c.filled = true
	c.mu.Unlock()
}

// Read renders the stored message as "author: text", prefixed with FreshPrefix
// while fresh. An empty cache renders as the empty string.
func (c *Cache) Read() string {
	body, _ := c.Render()
	return body
}

// Render is Read plus the freshness flag behind the prefix, both taken from a
// single snapshot and clock reading.
func (c *Cache) Render() (string, bool) {
	rec, ok := c.Snapshot()
	if !ok {
		return "", false
	}
	display := rec.Author + ": " + rec.Text
	if c.fresh(rec) {
		return FreshPrefix + display, true
	}
	return display, false
}

// Snapshot returns a copy of the stored record and whether one exists.
func (c *Cache) Snapshot() (Record, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.rec, c.filled
}

// Fresh reports whether a message is stored and still inside the window.
func (c *Cache) Fresh() bool {
	rec, ok := c.Snapshot()
	return ok && c.fresh(rec)
}

// fresh uses a strict comparison: at exactly window elapsed the message is stale.
func (c *Cache) fresh(rec Record) bool {
	return c.now().Sub(rec.ReceivedAt) < c.window
}
