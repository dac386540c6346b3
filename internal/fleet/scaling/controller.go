package scaling

import (
	"context"
	"errors"
	"sync"

	"log/slog"

	"github.com/hullhost/hullhost/internal/domain"
	"github.com/hullhost/hullhost/internal/fleet/registry"
)

// ErrInvalidTarget rejects negative replica targets before any mutation.
var ErrInvalidTarget = errors.New("scaling: target count must be non-negative")

// Result reports the instances touched by one reconciliation.
type Result struct {
	Created []string `json:"created"`
	Removed []string `json:"removed"`
}

// Controller reconciles an image's live instance count against a desired
// target. Reconciliations for the same image are serialized so two
// concurrent callers cannot observe the same current count and
// double-create or double-delete.
type Controller struct {
	registry *registry.Registry
	logger   *slog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New constructs a Controller bound to the registry.
func New(reg *registry.Registry, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		registry: reg,
		logger:   logger.With("component", "scaling"),
		locks:    make(map[string]*sync.Mutex),
	}
}

// Reconcile brings the image's instance count to target. Scale-up creates
// instances with default resources; scale-down removes the
// earliest-created instances first. Equal counts are a no-op with two
// empty lists.
func (c *Controller) Reconcile(ctx context.Context, imageID string, target int) (Result, error) {
	if target < 0 {
		return Result{}, ErrInvalidTarget
	}

	lock := c.imageLock(imageID)
	lock.Lock()
	defer lock.Unlock()

	current, err := c.registry.ListByImage(ctx, imageID)
	if err != nil {
		return Result{}, err
	}

	result := Result{Created: []string{}, Removed: []string{}}
	switch {
	case target > len(current):
		for i := len(current); i < target; i++ {
			inst := c.registry.Create(imageID, domain.ResourceLimits{})
			result.Created = append(result.Created, inst.ID)
		}
	case target < len(current):
		// current is in creation order; trim from the front.
		for _, inst := range current[:len(current)-target] {
			if c.registry.Delete(inst.ID) {
				result.Removed = append(result.Removed, inst.ID)
			}
		}
	}

	if len(result.Created) > 0 || len(result.Removed) > 0 {
		c.logger.Info("fleet reconciled",
			"image_id", imageID,
			"target", target,
			"created", len(result.Created),
			"removed", len(result.Removed))
	}
	return result, nil
}

func (c *Controller) imageLock(imageID string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	lock, ok := c.locks[imageID]
	if !ok {
		lock = &sync.Mutex{}
		c.locks[imageID] = lock
	}
	return lock
}
