// Package inventory resolves the destination of a volume from the external
// inventory (ERP) system. Lookups are enrichment only: failures never reach
// the caller as errors, they put the gateway into a cooldown during which no
// lookups are attempted.
package inventory

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/alfredjeanlab/crossdock/internal/breaker"
	"github.com/alfredjeanlab/crossdock/internal/volkey"
)

const (
	DefaultTimeout  = 20 * time.Second
	DefaultCooldown = 60 * time.Second
	DefaultCacheTTL = 24 * time.Hour

	// DefaultCacheTimeout bounds each shared cache round trip. A slow cache
	// is treated as a miss.
	DefaultCacheTimeout = 250 * time.Millisecond
)

// ErrNoMatch is returned by a Backend when no outbound invoice references the key.
var ErrNoMatch = errors.New("no outbound invoice for volume")

// Destination is the counterpart a volume was invoiced to.
type Destination struct {
	Label  string `json:"label"`
	Branch string `json:"branch,omitempty"`
}

// Backend queries the inventory system.
type Backend interface {
	// LatestOutbound returns the counterpart of the most recent outbound
	// invoice referencing key, or ErrNoMatch.
	LatestOutbound(ctx context.Context, key string) (Destination, error)
}

// Lookup is the outcome of a Resolve call.
type Lookup struct {
	Destination
	Found   bool   `json:"found"`
	Cached  bool   `json:"cached,omitempty"`
	Warning string `json:"warning,omitempty"`
}

// Options configures a Gateway. Zero values select the defaults.
type Options struct {
	Timeout  time.Duration
	Cooldown time.Duration
	Breaker  *breaker.Breaker
	Cache    Cache
	Logger   *slog.Logger
}

// Gateway resolves destinations through a cache, a shared breaker and a Backend.
type Gateway struct {
	backend  Backend
	cache    Cache
	breaker  *breaker.Breaker
	timeout  time.Duration
	cooldown time.Duration
	logger   *slog.Logger
}

// NewGateway returns a gateway over backend. A nil backend disables lookups.
func NewGateway(backend Backend, opts Options) *Gateway {
	g := &Gateway{
		backend:  backend,
		cache:    opts.Cache,
		breaker:  opts.Breaker,
		timeout:  opts.Timeout,
		cooldown: opts.Cooldown,
		logger:   opts.Logger,
	}
	if g.cache == nil {
		g.cache = NopCache{}
	}
	if g.breaker == nil {
		g.breaker = breaker.New()
	}
	if g.timeout <= 0 {
		g.timeout = DefaultTimeout
	}
	if g.cooldown <= 0 {
		g.cooldown = DefaultCooldown
	}
	if g.logger == nil {
		g.logger = slog.Default()
	}
	return g
}

// Enabled reports whether a backend is configured.
func (g *Gateway) Enabled() bool {
	return g != nil && g.backend != nil
}

// InCooldown reports whether lookups are currently suppressed.
func (g *Gateway) InCooldown() bool {
	return g.breaker.IsOpen()
}

// Resolve returns the destination for key. It never fails: a missing key,
// a disabled gateway, an open breaker, a backend miss or a backend error all
// produce a Lookup with Found == false.
func (g *Gateway) Resolve(ctx context.Context, key string) Lookup {
	key = volkey.Normalize(key)
	if key == "" || !g.Enabled() {
		return Lookup{}
	}
	if g.breaker.IsOpen() {
		return Lookup{}
	}
	if d, ok := g.cache.Get(ctx, key); ok {
		return Lookup{Destination: d, Found: true, Cached: true}
	}

	lctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	d, err := g.backend.LatestOutbound(lctx, key)
	switch {
	case err == nil:
		g.cache.Set(ctx, key, d)
		return Lookup{Destination: d, Found: true}
	case errors.Is(err, ErrNoMatch):
		return Lookup{}
	default:
		g.breaker.Trip(g.cooldown)
		g.logger.Warn("inventory lookup failed, entering cooldown",
			"key", key,
			"cooldown", g.cooldown,
			"error", err,
		)
		return Lookup{Warning: "inventory unavailable; destination lookups paused for " + g.cooldown.String()}
	}
}
