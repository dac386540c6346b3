package aggregator

import (
	"context"
	"sync"
	"time"

	"log/slog"

	"github.com/hullhost/hullhost/internal/domain"
)

const (
	defaultCallTimeout = 2 * time.Second
	defaultWorkers     = 4
)

// InstanceSource lists an image's container instances.
type InstanceSource interface {
	ListByImage(ctx context.Context, imageID string) ([]domain.ContainerInstance, error)
}

// HealthSource reads per-instance health state.
type HealthSource interface {
	Sample(ctx context.Context, instanceID string) (domain.HealthSample, error)
	Errors(ctx context.Context, instanceID string) ([]string, error)
}

// TrafficSource reads per-image traffic snapshots.
type TrafficSource interface {
	Get(ctx context.Context, imageID string) (domain.TrafficSnapshot, error)
}

// BillingSource reads per-image charge state.
type BillingSource interface {
	Charges(ctx context.Context, imageID string) (domain.BillingRecord, error)
}

// OwnerResolver maps an owner ID to a display email. It is an external
// collaborator (the user store); failures degrade to an empty email.
type OwnerResolver func(ctx context.Context, ownerID string) (string, error)

// Aggregator merges the fleet subsystems' views of one image into a
// FleetView. Its contract is partial degradation: when any one source
// fails or times out, its contribution is replaced with zero values and
// the rest of the view is still served.
type Aggregator struct {
	instances   InstanceSource
	health      HealthSource
	traffic     TrafficSource
	billing     BillingSource
	logger      *slog.Logger
	callTimeout time.Duration
	workers     int
}

// New constructs an Aggregator. callTimeout bounds every subsystem call;
// workers bounds list aggregation parallelism. Non-positive values fall
// back to defaults.
func New(instances InstanceSource, health HealthSource, traffic TrafficSource, billing BillingSource, logger *slog.Logger, callTimeout time.Duration, workers int) *Aggregator {
	if callTimeout <= 0 {
		callTimeout = defaultCallTimeout
	}
	if workers <= 0 {
		workers = defaultWorkers
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{
		instances:   instances,
		health:      health,
		traffic:     traffic,
		billing:     billing,
		logger:      logger.With("component", "aggregator"),
		callTimeout: callTimeout,
		workers:     workers,
	}
}

// View builds the image's fleet view. The registry+health, traffic,
// billing and owner lookups run concurrently; merging is
// order-independent so the fan-out order never matters.
func (a *Aggregator) View(ctx context.Context, image domain.Image, resolveOwner OwnerResolver) domain.FleetView {
	view := domain.FleetView{
		ImageID:   image.ID,
		ImageName: image.Name,
		OwnerID:   image.OwnerID,
		Status:    image.Status,
	}

	var wg sync.WaitGroup
	var mu sync.Mutex

	wg.Add(1)
	go func() {
		defer wg.Done()
		running, total, healthy, errs, ok := a.collectInstances(ctx, image.ID)
		if !ok {
			return
		}
		mu.Lock()
		view.RunningContainers = running
		view.TotalContainers = total
		view.HealthyContainers = healthy
		view.TotalErrors = errs
		mu.Unlock()
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		callCtx, cancel := context.WithTimeout(ctx, a.callTimeout)
		defer cancel()
		snap, err := a.traffic.Get(callCtx, image.ID)
		if err != nil {
			a.degraded(image.ID, "traffic", err)
			return
		}
		mu.Lock()
		view.RequestsPerSecond = snap.RequestsPerSecond
		view.TotalRequests = snap.TotalRequests
		mu.Unlock()
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		callCtx, cancel := context.WithTimeout(ctx, a.callTimeout)
		defer cancel()
		rec, err := a.billing.Charges(callCtx, image.ID)
		if err != nil {
			a.degraded(image.ID, "billing", err)
			return
		}
		mu.Lock()
		view.TotalCost = rec.TotalCost
		view.CostBreakdown = rec.CostBreakdown
		view.PaymentLimit = rec.PaymentLimit
		mu.Unlock()
	}()

	if resolveOwner != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			callCtx, cancel := context.WithTimeout(ctx, a.callTimeout)
			defer cancel()
			email, err := resolveOwner(callCtx, image.OwnerID)
			if err != nil {
				a.degraded(image.ID, "owner", err)
				return
			}
			mu.Lock()
			view.OwnerEmail = email
			mu.Unlock()
		}()
	}

	wg.Wait()
	return view
}

// collectInstances lists the image's instances and folds in per-instance
// health. A whole-list failure degrades the counts to zero; an individual
// sample failure only makes that instance count as unknown.
func (a *Aggregator) collectInstances(ctx context.Context, imageID string) (running, total, healthy, errCount int, ok bool) {
	listCtx, cancel := context.WithTimeout(ctx, a.callTimeout)
	defer cancel()
	instances, err := a.instances.ListByImage(listCtx, imageID)
	if err != nil {
		a.degraded(imageID, "registry", err)
		return 0, 0, 0, 0, false
	}

	total = len(instances)
	for _, inst := range instances {
		if inst.Status == domain.InstanceStatusRunning {
			running++
		}
		sampleCtx, cancelSample := context.WithTimeout(ctx, a.callTimeout)
		sample, err := a.health.Sample(sampleCtx, inst.ID)
		if err == nil && sample.Status == domain.HealthStatusHealthy {
			healthy++
		}
		errs, errsErr := a.health.Errors(sampleCtx, inst.ID)
		if errsErr == nil {
			errCount += len(errs)
		}
		cancelSample()
	}
	return running, total, healthy, errCount, true
}

// ViewAll aggregates a list of images through a bounded worker pool.
// Images are independent; one degraded image never affects the others,
// and cancelling ctx abandons the remaining work.
func (a *Aggregator) ViewAll(ctx context.Context, images []domain.Image, resolveOwner OwnerResolver) []domain.FleetView {
	views := make([]domain.FleetView, len(images))
	if len(images) == 0 {
		return views
	}

	workers := a.workers
	if workers > len(images) {
		workers = len(images)
	}

	type job struct {
		idx   int
		image domain.Image
	}
	jobs := make(chan job)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				views[j.idx] = a.View(ctx, j.image, resolveOwner)
			}
		}()
	}

feed:
	for i, image := range images {
		select {
		case jobs <- job{idx: i, image: image}:
		case <-ctx.Done():
			// Leave the remaining views at their zero defaults.
			for k := i; k < len(images); k++ {
				views[k] = domain.FleetView{
					ImageID:   images[k].ID,
					ImageName: images[k].Name,
					OwnerID:   images[k].OwnerID,
					Status:    images[k].Status,
				}
			}
			break feed
		}
	}
	close(jobs)
	wg.Wait()
	return views
}

func (a *Aggregator) degraded(imageID, source string, err error) {
	a.logger.Warn("fleet source degraded, substituting defaults",
		"image_id", imageID,
		"source", source,
		"error", err)
}
