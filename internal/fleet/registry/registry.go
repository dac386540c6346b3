package registry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"log/slog"

	"github.com/google/uuid"

	"github.com/hullhost/hullhost/internal/domain"
)

// Platform default limits applied when an instance is created without
// overrides.
var DefaultLimits = domain.ResourceLimits{
	CPULimit:    "1.0",
	MemoryLimit: "512MB",
	DiskLimit:   "10GB",
}

const firstEndpointPort = 9000

// Observer receives instance lifecycle notifications. The health monitor
// subscribes so that sample existence always matches the set of live
// instances.
type Observer interface {
	InstanceCreated(inst domain.ContainerInstance)
	InstanceStarted(instanceID string)
	InstanceStopped(instanceID string)
	InstanceDeleted(instanceID string)
}

// Registry owns the simulated container instances for every image. All
// fleet state is in memory; a process restart resets it.
type Registry struct {
	mu        sync.Mutex
	instances map[string]*domain.ContainerInstance
	byImage   map[string][]string
	observers []Observer
	logger    *slog.Logger
	now       func() time.Time
	nextPort  int
}

// New constructs an empty Registry.
func New(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		instances: make(map[string]*domain.ContainerInstance),
		byImage:   make(map[string][]string),
		logger:    logger.With("component", "registry"),
		now:       time.Now,
		nextPort:  firstEndpointPort,
	}
}

// Subscribe registers an observer for lifecycle notifications. Not safe
// to call concurrently with instance mutations; wire observers at startup.
func (r *Registry) Subscribe(obs Observer) {
	if obs == nil {
		return
	}
	r.observers = append(r.observers, obs)
}

// Create allocates a new running instance for the image, merging the
// overrides over the platform defaults. Creation always succeeds; the
// simulated fleet has no capacity limits.
func (r *Registry) Create(imageID string, overrides domain.ResourceLimits) domain.ContainerInstance {
	r.mu.Lock()
	inst := &domain.ContainerInstance{
		ID:        uuid.NewString(),
		ImageID:   imageID,
		Status:    domain.InstanceStatusRunning,
		Resources: DefaultLimits.Merge(overrides),
		Endpoint:  fmt.Sprintf("http://localhost:%d", r.nextPort),
		CreatedAt: r.now().UTC(),
	}
	r.nextPort++
	r.instances[inst.ID] = inst
	r.byImage[imageID] = append(r.byImage[imageID], inst.ID)
	created := *inst
	r.mu.Unlock()

	for _, obs := range r.observers {
		obs.InstanceCreated(created)
	}
	r.logger.Info("instance created", "instance_id", created.ID, "image_id", imageID)
	return created
}

// Start marks a stopped instance running again. Returns false when the
// instance does not exist.
func (r *Registry) Start(instanceID string) bool {
	r.mu.Lock()
	inst, ok := r.instances[instanceID]
	if ok {
		inst.Status = domain.InstanceStatusRunning
	}
	r.mu.Unlock()
	if !ok {
		return false
	}
	for _, obs := range r.observers {
		obs.InstanceStarted(instanceID)
	}
	return true
}

// Stop marks the instance stopped. Returns false when the instance does
// not exist; absence is a reported condition, not a failure.
func (r *Registry) Stop(instanceID string) bool {
	r.mu.Lock()
	inst, ok := r.instances[instanceID]
	if ok {
		inst.Status = domain.InstanceStatusStopped
	}
	r.mu.Unlock()
	if !ok {
		return false
	}
	for _, obs := range r.observers {
		obs.InstanceStopped(instanceID)
	}
	return true
}

// Delete removes the instance. Observers drop any associated state, so
// the instance's health sample is evicted as well.
func (r *Registry) Delete(instanceID string) bool {
	r.mu.Lock()
	inst, ok := r.instances[instanceID]
	if ok {
		delete(r.instances, instanceID)
		ids := r.byImage[inst.ImageID]
		for i, id := range ids {
			if id == instanceID {
				r.byImage[inst.ImageID] = append(ids[:i], ids[i+1:]...)
				break
			}
		}
		if len(r.byImage[inst.ImageID]) == 0 {
			delete(r.byImage, inst.ImageID)
		}
	}
	r.mu.Unlock()
	if !ok {
		return false
	}
	for _, obs := range r.observers {
		obs.InstanceDeleted(instanceID)
	}
	r.logger.Info("instance deleted", "instance_id", instanceID)
	return true
}

// UpdateResources merges the supplied partial limits over the instance's
// current limits. Returns false when the instance does not exist.
func (r *Registry) UpdateResources(instanceID string, partial domain.ResourceLimits) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	inst, ok := r.instances[instanceID]
	if !ok {
		return false
	}
	inst.Resources = inst.Resources.Merge(partial)
	return true
}

// Get returns a copy of the instance when it exists.
func (r *Registry) Get(instanceID string) (domain.ContainerInstance, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inst, ok := r.instances[instanceID]
	if !ok {
		return domain.ContainerInstance{}, false
	}
	return *inst, true
}

// ListByImage returns the image's instances in creation order. The order
// is a contract: scale-down removes the earliest-created instances first.
func (r *Registry) ListByImage(ctx context.Context, imageID string) ([]domain.ContainerInstance, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := r.byImage[imageID]
	out := make([]domain.ContainerInstance, 0, len(ids))
	for _, id := range ids {
		out = append(out, *r.instances[id])
	}
	return out, nil
}

// ImageIDs returns the identifiers of every image with at least one
// instance. Used by the metering loop.
func (r *Registry) ImageIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.byImage))
	for id := range r.byImage {
		ids = append(ids, id)
	}
	return ids
}
