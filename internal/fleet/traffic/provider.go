package traffic

import (
	"context"
	"sync"
	"time"

	"github.com/hullhost/hullhost/internal/domain"
)

// RateFunc derives an instantaneous requests-per-second figure from a
// reported request batch.
type RateFunc func(additional int64) float64

// defaultRateWindow spreads a reported batch over this many seconds when
// no rate function is supplied.
const defaultRateWindow = 10 * time.Second

// Provider tracks request counters per image. Snapshots start from the
// documented zero state; callers that want a non-zero baseline install it
// explicitly via Seed.
type Provider struct {
	mu        sync.Mutex
	snapshots map[string]*domain.TrafficSnapshot
	rate      RateFunc
	now       func() time.Time
}

// Option customizes a Provider.
type Option func(*Provider)

// WithRateFunc replaces the instantaneous rate derivation.
func WithRateFunc(r RateFunc) Option {
	return func(p *Provider) { p.rate = r }
}

// WithRateWindow spreads each reported batch over the given window
// instead of the default. Non-positive windows are ignored.
func WithRateWindow(window time.Duration) Option {
	return func(p *Provider) {
		if window <= 0 {
			return
		}
		p.rate = func(additional int64) float64 {
			return float64(additional) / window.Seconds()
		}
	}
}

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(p *Provider) { p.now = now }
}

// NewProvider constructs a Provider.
func NewProvider(opts ...Option) *Provider {
	p := &Provider{
		snapshots: make(map[string]*domain.TrafficSnapshot),
		rate: func(additional int64) float64 {
			return float64(additional) / defaultRateWindow.Seconds()
		},
		now: time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Seed installs an explicit baseline snapshot for the image, replacing
// whatever existed. The load-balancer collaborator uses this to hand over
// pre-existing counters.
func (p *Provider) Seed(imageID string, snap domain.TrafficSnapshot) {
	snap.ImageID = imageID
	if snap.LastUpdated.IsZero() {
		snap.LastUpdated = p.now().UTC()
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.snapshots[imageID] = &snap
}

// Record adds a batch of requests to the image's counters and refreshes
// the instantaneous rate.
func (p *Provider) Record(imageID string, additionalRequests int64) {
	if additionalRequests < 0 {
		additionalRequests = 0
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	snap := p.snapshots[imageID]
	if snap == nil {
		snap = p.zeroSnapshot(imageID)
		p.snapshots[imageID] = snap
	}
	snap.TotalRequests += additionalRequests
	snap.RequestsPerSecond = p.rate(additionalRequests)
	snap.LastUpdated = p.now().UTC()
}

// Get returns the image's snapshot, creating the zero-state one when no
// traffic has been reported yet.
func (p *Provider) Get(ctx context.Context, imageID string) (domain.TrafficSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return domain.TrafficSnapshot{}, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	snap := p.snapshots[imageID]
	if snap == nil {
		snap = p.zeroSnapshot(imageID)
		p.snapshots[imageID] = snap
	}
	out := *snap
	if snap.GeoDistribution != nil {
		out.GeoDistribution = make(map[string]float64, len(snap.GeoDistribution))
		for region, pct := range snap.GeoDistribution {
			out.GeoDistribution[region] = pct
		}
	}
	return out, nil
}

// RequestsSince reports the counter growth since the given total. The
// metering loop uses this to bill request deltas.
func (p *Provider) RequestsSince(imageID string, previousTotal int64) int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	snap := p.snapshots[imageID]
	if snap == nil || snap.TotalRequests <= previousTotal {
		return 0
	}
	return snap.TotalRequests - previousTotal
}

func (p *Provider) zeroSnapshot(imageID string) *domain.TrafficSnapshot {
	return &domain.TrafficSnapshot{
		ImageID:     imageID,
		LastUpdated: p.now().UTC(),
	}
}
