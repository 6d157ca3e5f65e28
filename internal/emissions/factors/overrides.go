package factors

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"carbon-scribe/esg-backoffice/accounting-backend/internal/clock"
	"carbon-scribe/esg-backoffice/accounting-backend/internal/emissions"
	"carbon-scribe/esg-backoffice/accounting-backend/internal/errs"
)

// Override is a tenant-specific replacement for a catalog factor
type Override struct {
	TenantID   uuid.UUID      `json:"tenant_id"`
	Factor     EmissionFactor `json:"factor"`
	ValidFrom  time.Time      `json:"valid_from"`
	ValidUntil *time.Time     `json:"valid_until,omitempty"`
}

// ActiveOn reports whether the override applies on day.
// Bounds are inclusive; a nil ValidUntil is open-ended.
func (o Override) ActiveOn(day time.Time) bool {
	if day.Before(truncateDay(o.ValidFrom)) {
		return false
	}
	if o.ValidUntil != nil && day.After(truncateDay(*o.ValidUntil)) {
		return false
	}
	return true
}

// Validate checks the factor and the validity window
func (o Override) Validate() error {
	if err := o.Factor.Validate(); err != nil {
		return err
	}
	if o.ValidFrom.IsZero() {
		return errs.Invalid("valid_from", "is required")
	}
	if o.ValidUntil != nil && o.ValidUntil.Before(o.ValidFrom) {
		return errs.Invalid("valid_until", "must not be before valid_from")
	}
	return nil
}

// OverrideSource resolves factors from one tenant's overrides.
// It is built per computation and holds no state across calls.
type OverrideSource struct {
	clock     clock.Clock
	overrides map[Key][]Override
	count     int
}

// NewOverrideSource indexes overrides by key. Invalid overrides are rejected.
func NewOverrideSource(c clock.Clock, overrides []Override) (*OverrideSource, error) {
	s := &OverrideSource{
		clock:     c,
		overrides: make(map[Key][]Override),
	}
	for i, o := range overrides {
		if err := o.Validate(); err != nil {
			return nil, fmt.Errorf("override %d: %w", i, err)
		}
		key := o.Factor.Key()
		s.overrides[key] = append(s.overrides[key], o)
		s.count++
	}
	return s, nil
}

// Len returns the number of overrides indexed
func (s *OverrideSource) Len() int {
	return s.count
}

// Lookup implements FactorSource. When several overrides for a key are
// active today the one with the latest ValidFrom wins.
func (s *OverrideSource) Lookup(scope emissions.Scope, category, activityType string) (EmissionFactor, error) {
	key := NewKey(scope, category, activityType)
	today := clock.Today(s.clock)

	var (
		best  *Override
		found bool
	)
	for i := range s.overrides[key] {
		o := &s.overrides[key][i]
		if !o.ActiveOn(today) {
			continue
		}
		if !found || o.ValidFrom.After(best.ValidFrom) {
			best = o
			found = true
		}
	}
	if !found {
		return EmissionFactor{}, fmt.Errorf("%w: no active override for %s", ErrFactorNotFound, key)
	}
	return best.Factor, nil
}

// NextChange returns the start of the first day after today on which the
// set of active overrides changes, or nil when no window opens or closes
// in the future.
func (s *OverrideSource) NextChange() *time.Time {
	today := clock.Today(s.clock)

	var next *time.Time
	consider := func(t time.Time) {
		if t.After(today) && (next == nil || t.Before(*next)) {
			next = &t
		}
	}
	for _, list := range s.overrides {
		for _, o := range list {
			consider(truncateDay(o.ValidFrom))
			if o.ValidUntil != nil {
				consider(truncateDay(*o.ValidUntil).AddDate(0, 0, 1))
			}
		}
	}
	return next
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// ChainSource consults sources in order; the first hit wins
type ChainSource struct {
	sources []FactorSource
}

// Chain builds an override-first chain
func Chain(sources ...FactorSource) *ChainSource {
	return &ChainSource{sources: sources}
}

// Lookup implements FactorSource. A miss falls through to the next source;
// any other error stops the chain.
func (c *ChainSource) Lookup(scope emissions.Scope, category, activityType string) (EmissionFactor, error) {
	for _, src := range c.sources {
		f, err := src.Lookup(scope, category, activityType)
		if err == nil {
			return f, nil
		}
		if !errors.Is(err, ErrFactorNotFound) {
			return EmissionFactor{}, err
		}
	}
	return EmissionFactor{}, fmt.Errorf("%w: %s", ErrFactorNotFound, NewKey(scope, category, activityType))
}
