package geocode

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/smartslot/slotplanner/internal/geo"
)

var (
	// ErrNoLocation means every address variant missed on every provider.
	ErrNoLocation = errors.New("geocode: address could not be resolved")
	// ErrMeetingLabel marks labels that describe online meetings; they have
	// no physical location and are excluded from travel calculations.
	ErrMeetingLabel = errors.New("geocode: online meeting label has no location")
)

var meetingTokens = []string{"teams", "zoom", "webex", "meet", "online", "visio"}

// Resolver resolves free-text location labels to coordinates through an
// ordered provider chain, with a label-keyed process-wide cache.
type Resolver struct {
	providers []Provider
	overrides map[string]string
	country   string
	logger    *slog.Logger

	mu    sync.RWMutex
	cache map[string]cacheEntry
}

type cacheEntry struct {
	point geo.Point
	found bool
}

// NewResolver builds a Resolver. Providers are tried in the given order;
// overrides substitute known label corrections before resolution; country is
// appended as a trailing qualifier variant.
func NewResolver(providers []Provider, overrides map[string]string, country string, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Resolver{
		providers: providers,
		overrides: overrides,
		country:   country,
		logger:    logger,
		cache:     make(map[string]cacheEntry),
	}
}

// Resolve maps a location label to coordinates, or fails with ErrNoLocation /
// ErrMeetingLabel. Each attempted variant is cached independently (hits and
// misses both) so repeated runs reuse partial work.
func (r *Resolver) Resolve(ctx context.Context, label string) (geo.Point, error) {
	label = strings.TrimSpace(label)
	if label == "" {
		return geo.Point{}, ErrNoLocation
	}
	if isMeetingLabel(label) {
		return geo.Point{}, fmt.Errorf("%w: %q", ErrMeetingLabel, label)
	}

	address := label
	if override, ok := r.overrides[label]; ok {
		address = override
	}

	for _, variant := range Variants(address, r.country) {
		if entry, ok := r.cached(variant); ok {
			if entry.found {
				return entry.point, nil
			}
			continue
		}

		point, found := r.lookup(ctx, variant)
		r.store(variant, cacheEntry{point: point, found: found})
		if found {
			return point, nil
		}
	}
	return geo.Point{}, fmt.Errorf("%w: %q", ErrNoLocation, label)
}

// lookup runs one address variant through the provider chain. The first
// provider returning a usable coordinate pair wins; provider errors are
// logged and absorbed, never surfaced.
func (r *Resolver) lookup(ctx context.Context, address string) (geo.Point, bool) {
	for _, p := range r.providers {
		opt, err := p.Geocode(ctx, address)
		if err != nil {
			r.logger.Debug("geocode provider degraded", "provider", p.Name(), "address", address, "error", err)
			continue
		}
		if point, ok := opt.Get(); ok {
			r.logger.Debug("geocode hit", "provider", p.Name(), "address", address, "lat", point.Lat, "lon", point.Lon)
			return point, true
		}
	}
	return geo.Point{}, false
}

func (r *Resolver) cached(key string) (cacheEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.cache[key]
	return entry, ok
}

func (r *Resolver) store(key string, entry cacheEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache[key] = entry
}

func isMeetingLabel(label string) bool {
	lower := strings.ToLower(label)
	for _, tok := range meetingTokens {
		if strings.Contains(lower, tok) {
			return true
		}
	}
	return false
}
