package travel

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/smartslot/slotplanner/internal/geo"
)

// Departure times within the same bucket share a cache entry; traffic-aware
// durations change materially across buckets.
const cacheBucket = 5 * time.Minute

// Options tune the safety adjustments applied to raw provider durations and
// the straight-line fallback.
type Options struct {
	Margin      float64       // multiplicative safety margin on raw durations
	Buffer      time.Duration // additive buffer on top of the margin
	AvgSpeedKmh float64       // assumed speed for the haversine fallback
	Timeout     time.Duration // per-call bound on the routing provider
}

// DefaultOptions mirror the planner's production tuning.
func DefaultOptions() Options {
	return Options{
		Margin:      1.15,
		Buffer:      5 * time.Minute,
		AvgSpeedKmh: 65,
		Timeout:     8 * time.Second,
	}
}

// Resolver answers "how many minutes to drive from A to B leaving at T",
// falling back to a great-circle estimate whenever the router degrades.
// The cache is process-wide and safe for concurrent use.
type Resolver struct {
	router Router
	opts   Options
	logger *slog.Logger

	mu    sync.RWMutex
	cache map[string]int
}

// NewResolver builds a Resolver. router may be nil, in which case every
// lookup uses the haversine fallback.
func NewResolver(router Router, opts Options, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.Margin <= 0 {
		opts.Margin = 1
	}
	if opts.AvgSpeedKmh <= 0 {
		opts.AvgSpeedKmh = DefaultOptions().AvgSpeedKmh
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultOptions().Timeout
	}
	return &Resolver{
		router: router,
		opts:   opts,
		logger: logger,
		cache:  make(map[string]int),
	}
}

// Minutes returns the adjusted driving duration in whole minutes. Nil
// endpoints yield zero; router failure, timeout, or a non-finite duration
// silently degrades to the straight-line estimate.
func (r *Resolver) Minutes(ctx context.Context, from, to *geo.Point, departAt time.Time) int {
	if from == nil || to == nil {
		return 0
	}

	key := cacheKey(*from, *to, departAt)
	r.mu.RLock()
	cached, ok := r.cache[key]
	r.mu.RUnlock()
	if ok {
		return cached
	}

	minutes := r.estimate(ctx, *from, *to, departAt)

	r.mu.Lock()
	r.cache[key] = minutes
	r.mu.Unlock()
	return minutes
}

func (r *Resolver) estimate(ctx context.Context, from, to geo.Point, departAt time.Time) int {
	if r.router != nil {
		callCtx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
		opt, err := r.router.Route(callCtx, from, to, departAt)
		cancel()
		if err != nil {
			r.logger.Debug("routing provider degraded, using haversine fallback",
				"from", from.Label, "to", to.Label, "error", err)
		} else if raw, ok := opt.Get(); ok && raw > 0 {
			return r.adjust(raw)
		}
	}
	return r.adjust(r.straightLine(from, to))
}

// straightLine estimates the raw duration from great-circle distance at the
// configured average speed, floored at one minute.
func (r *Resolver) straightLine(from, to geo.Point) time.Duration {
	km := geo.Haversine(from, to)
	raw := time.Duration(km / r.opts.AvgSpeedKmh * float64(time.Hour))
	if raw < time.Minute {
		raw = time.Minute
	}
	return raw
}

func (r *Resolver) adjust(raw time.Duration) int {
	adjusted := time.Duration(float64(raw)*r.opts.Margin) + r.opts.Buffer
	minutes := int(math.Ceil(adjusted.Minutes()))
	if minutes < 1 {
		minutes = 1
	}
	return minutes
}

func cacheKey(from, to geo.Point, departAt time.Time) string {
	bucket := departAt.UTC().Truncate(cacheBucket).Unix()
	return fmt.Sprintf("%.5f,%.5f|%.5f,%.5f|%d", from.Lat, from.Lon, to.Lat, to.Lon, bucket)
}
