package health

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/hullhost/hullhost/internal/domain"
)

// ErrUnknownInstance is returned when no sample exists for the requested
// instance.
var ErrUnknownInstance = errors.New("health: unknown instance")

// Perturbation bounds applied on every sample read.
const (
	cpuJitter    = 5.0
	memoryJitter = 3.0
	diskJitter   = 1.0
)

// faultCatalogue holds the transient errors the monitor may inject.
var faultCatalogue = []string{
	"connection timeout",
	"memory allocation failed",
	"disk space low",
	"process crashed",
	"network unreachable",
}

// Jitter produces a perturbation in [-scale, scale].
type Jitter func(scale float64) float64

// SeedFunc supplies the initial sample for a newly created instance.
type SeedFunc func(inst domain.ContainerInstance) domain.HealthSample

// FaultSource injects transient error strings for an instance.
type FaultSource interface {
	Errors(instanceID string) []string
}

// Monitor tracks one evolving health sample per live instance. It
// implements registry.Observer so sample existence follows the instance
// lifecycle exactly.
type Monitor struct {
	mu      sync.Mutex
	samples map[string]*domain.HealthSample
	jitter  Jitter
	seed    SeedFunc
	faults  FaultSource
}

// Option customizes a Monitor.
type Option func(*Monitor)

// WithJitter replaces the perturbation source.
func WithJitter(j Jitter) Option {
	return func(m *Monitor) { m.jitter = j }
}

// WithSeed replaces the initial-sample provider.
func WithSeed(s SeedFunc) Option {
	return func(m *Monitor) { m.seed = s }
}

// WithFaultSource replaces the transient fault injector.
func WithFaultSource(f FaultSource) Option {
	return func(m *Monitor) { m.faults = f }
}

// NewMonitor constructs a Monitor. The defaults use math/rand jitter, a
// fixed moderate baseline sample and a 10% fault probability; tests
// inject deterministic replacements. The jitter RNG runs under m.mu and
// the fault source locks separately, so each carries its own rand.Rand.
func NewMonitor(opts ...Option) *Monitor {
	random := rand.New(rand.NewSource(time.Now().UnixNano()))
	m := &Monitor{
		samples: make(map[string]*domain.HealthSample),
		jitter: func(scale float64) float64 {
			return (random.Float64()*2 - 1) * scale
		},
		seed: func(inst domain.ContainerInstance) domain.HealthSample {
			return domain.HealthSample{
				InstanceID:  inst.ID,
				CPUUsage:    40,
				MemoryUsage: 50,
				DiskUsage:   20,
				Status:      domain.HealthStatusHealthy,
			}
		},
		faults: &RandomFaults{
			Probability: 0.1,
			random:      rand.New(rand.NewSource(time.Now().UnixNano() + 1)),
		},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// InstanceCreated seeds a sample for the new instance.
func (m *Monitor) InstanceCreated(inst domain.ContainerInstance) {
	sample := m.seed(inst)
	sample.InstanceID = inst.ID
	sample.Status = deriveStatus(sample.CPUUsage, sample.MemoryUsage)
	m.mu.Lock()
	m.samples[inst.ID] = &sample
	m.mu.Unlock()
}

// InstanceStarted unfreezes the sample of a restarted instance.
func (m *Monitor) InstanceStarted(instanceID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sample, ok := m.samples[instanceID]; ok && sample.Status == domain.HealthStatusStopped {
		sample.Status = deriveStatus(sample.CPUUsage, sample.MemoryUsage)
	}
}

// InstanceStopped freezes the sample at zero usage.
func (m *Monitor) InstanceStopped(instanceID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sample, ok := m.samples[instanceID]; ok {
		sample.CPUUsage = 0
		sample.MemoryUsage = 0
		sample.DiskUsage = 0
		sample.Status = domain.HealthStatusStopped
	}
}

// InstanceDeleted drops the sample.
func (m *Monitor) InstanceDeleted(instanceID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.samples, instanceID)
}

// Sample evolves the instance's reading by a bounded perturbation, clamps
// each usage to [0,100] and re-derives the status. Stopped instances stay
// frozen at zero usage.
func (m *Monitor) Sample(ctx context.Context, instanceID string) (domain.HealthSample, error) {
	if err := ctx.Err(); err != nil {
		return domain.HealthSample{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	sample, ok := m.samples[instanceID]
	if !ok {
		return domain.HealthSample{}, ErrUnknownInstance
	}
	if sample.Status == domain.HealthStatusStopped {
		return *sample, nil
	}
	sample.CPUUsage = clamp(sample.CPUUsage + m.jitter(cpuJitter))
	sample.MemoryUsage = clamp(sample.MemoryUsage + m.jitter(memoryJitter))
	sample.DiskUsage = clamp(sample.DiskUsage + m.jitter(diskJitter))
	sample.Status = deriveStatus(sample.CPUUsage, sample.MemoryUsage)
	return *sample, nil
}

// Errors reports transient errors for the instance via the fault source.
func (m *Monitor) Errors(ctx context.Context, instanceID string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	_, ok := m.samples[instanceID]
	m.mu.Unlock()
	if !ok {
		return nil, ErrUnknownInstance
	}
	return m.faults.Errors(instanceID), nil
}

// Tracked reports whether a sample exists for the instance.
func (m *Monitor) Tracked(instanceID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.samples[instanceID]
	return ok
}

func deriveStatus(cpu, memory float64) string {
	switch {
	case cpu > 90 || memory > 95:
		return domain.HealthStatusCritical
	case cpu > 80 || memory > 85:
		return domain.HealthStatusWarning
	default:
		return domain.HealthStatusHealthy
	}
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// RandomFaults injects one error from the catalogue with the configured
// probability. It models transient noise, not real failures.
type RandomFaults struct {
	Probability float64
	mu          sync.Mutex
	random      *rand.Rand
}

// Errors returns at most one random catalogue entry.
func (f *RandomFaults) Errors(string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.random == nil {
		f.random = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if f.random.Float64() >= f.Probability {
		return nil
	}
	return []string{faultCatalogue[f.random.Intn(len(faultCatalogue))]}
}
