// Package clock lets engines that depend on "today" be driven by tests.
package clock

import (
	"sync"
	"time"
)

// Clock supplies the current time
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock in UTC
type SystemClock struct{}

// Now returns the current UTC time
func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}

// Fixed always returns the same instant
type Fixed time.Time

// Now returns the fixed instant
func (f Fixed) Now() time.Time {
	return time.Time(f)
}

// At builds a Fixed clock for the given calendar date at midnight UTC
func At(year int, month time.Month, day int) Fixed {
	return Fixed(time.Date(year, month, day, 0, 0, 0, 0, time.UTC))
}

// Today truncates the clock's current time to the start of its UTC day
func Today(c Clock) time.Time {
	now := c.Now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}

// Manual is a clock tests move forward explicitly
type Manual struct {
	mu  sync.Mutex
	now time.Time
}

// NewManual creates a manual clock starting at t
func NewManual(t time.Time) *Manual {
	return &Manual{now: t}
}

// Now returns the current manual time
func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Advance moves the clock forward by d
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
}
