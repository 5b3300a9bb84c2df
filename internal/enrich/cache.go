package enrich

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"truck-event-scorer/internal/models"
)

// CachedProfiles keeps recently resolved driver profiles in an LRU cache.
// Weekly usage always goes to the underlying Enricher.
type CachedProfiles struct {
	next     Enricher
	profiles *lru.Cache[int, models.DriverProfile]
}

// NewCachedProfiles wraps next with a profile cache holding size entries
func NewCachedProfiles(next Enricher, size int) (*CachedProfiles, error) {
	cache, err := lru.New[int, models.DriverProfile](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create profile cache: %w", err)
	}
	return &CachedProfiles{next: next, profiles: cache}, nil
}

// LookupDriverProfile serves from cache or falls through to the keyed store.
// Failures are not cached.
func (c *CachedProfiles) LookupDriverProfile(ctx context.Context, driverID int) (models.DriverProfile, error) {
	if p, ok := c.profiles.Get(driverID); ok {
		return p, nil
	}

	p, err := c.next.LookupDriverProfile(ctx, driverID)
	if err != nil {
		return models.DriverProfile{}, err
	}

	c.profiles.Add(driverID, p)
	return p, nil
}

// LookupWeeklyUsage delegates to the underlying Enricher
func (c *CachedProfiles) LookupWeeklyUsage(ctx context.Context, driverID, week int) (models.WeeklyUsage, error) {
	return c.next.LookupWeeklyUsage(ctx, driverID, week)
}

var _ Enricher = (*CachedProfiles)(nil)
