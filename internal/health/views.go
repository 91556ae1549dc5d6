package health

import (
	"context"
	"fmt"

	"github.com/skylight/leaderboard/internal/views"
)

// ViewCacheChecker reports the combined-view cache as healthy once a
// snapshot is available to serve.
type ViewCacheChecker struct {
	cache *views.Cache
}

// NewViewCacheChecker creates a checker for cache.
func NewViewCacheChecker(cache *views.Cache) *ViewCacheChecker {
	return &ViewCacheChecker{cache: cache}
}

// HealthCheck fails while no snapshot has been built.
func (v *ViewCacheChecker) HealthCheck(ctx context.Context) error {
	if v.cache == nil {
		return ErrNotConfigured
	}
	if _, err := v.cache.Snapshot(); err != nil {
		if last := v.cache.LastError(); last != nil {
			return fmt.Errorf("%w (state %s, last build: %v)", err, v.cache.State(), last)
		}
		return fmt.Errorf("%w (state %s)", err, v.cache.State())
	}
	return nil
}
