package metering

import (
	"context"
	"strconv"
	"strings"
	"time"

	"log/slog"

	"github.com/hullhost/hullhost/internal/domain"
	"github.com/hullhost/hullhost/internal/fleet/billing"
)

const (
	defaultInterval = 30 * time.Second
	sweepTimeout    = 15 * time.Second
)

// ImageSource supplies the image metadata needed to attribute charges.
type ImageSource interface {
	ListImages(ctx context.Context) ([]domain.Image, error)
}

// InstanceSource lists an image's instances.
type InstanceSource interface {
	ListByImage(ctx context.Context, imageID string) ([]domain.ContainerInstance, error)
}

// HealthSource reads instance usage samples.
type HealthSource interface {
	Sample(ctx context.Context, instanceID string) (domain.HealthSample, error)
}

// RequestCounter reports request-counter growth since a previous total.
type RequestCounter interface {
	RequestsSince(imageID string, previousTotal int64) int64
}

// Controller periodically converts fleet observations into billing usage
// records, so charges track the simulated fleet instead of being seeded.
type Controller struct {
	images    ImageSource
	instances InstanceSource
	health    HealthSource
	requests  RequestCounter
	engine    *billing.Engine
	logger    *slog.Logger
	interval  time.Duration
	now       func() time.Time

	billedRequests map[string]int64
}

// New constructs a metering controller.
func New(images ImageSource, instances InstanceSource, health HealthSource, requests RequestCounter, engine *billing.Engine, logger *slog.Logger, interval time.Duration) *Controller {
	if interval <= 0 {
		interval = defaultInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		images:         images,
		instances:      instances,
		health:         health,
		requests:       requests,
		engine:         engine,
		logger:         logger.With("component", "metering"),
		interval:       interval,
		now:            time.Now,
		billedRequests: make(map[string]int64),
	}
}

// Run executes the metering loop until the context is cancelled.
func (c *Controller) Run(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.logger.Info("metering started", "interval", c.interval)
	for {
		select {
		case <-ctx.Done():
			c.logger.Info("metering stopped")
			return
		case <-ticker.C:
			c.Sweep(ctx)
		}
	}
}

// Sweep records one usage sample per image with running instances.
func (c *Controller) Sweep(parent context.Context) {
	ctx, cancel := context.WithTimeout(parent, sweepTimeout)
	defer cancel()

	images, err := c.images.ListImages(ctx)
	if err != nil {
		c.logger.Warn("failed to list images", "error", err)
		return
	}
	for _, image := range images {
		if err := c.meterImage(ctx, image); err != nil {
			c.logger.Warn("metering pass failed", "image_id", image.ID, "error", err)
		}
	}
}

func (c *Controller) meterImage(ctx context.Context, image domain.Image) error {
	instances, err := c.instances.ListByImage(ctx, image.ID)
	if err != nil {
		return err
	}

	usage := billing.Usage{Containers: len(instances)}
	var cpuSum float64
	var running int
	for _, inst := range instances {
		if inst.Status != domain.InstanceStatusRunning {
			continue
		}
		running++
		usage.MemoryGB += parseQuantityGB(inst.Resources.MemoryLimit)
		usage.StorageGB += parseQuantityGB(inst.Resources.DiskLimit)
		if sample, err := c.health.Sample(ctx, inst.ID); err == nil {
			cpuSum += sample.CPUUsage
		}
	}

	delta := c.requests.RequestsSince(image.ID, c.billedRequests[image.ID])
	if running == 0 && delta == 0 {
		return nil
	}
	if running > 0 {
		usage.CPUUsagePercent = cpuSum / float64(running)
	}
	usage.DurationHours = c.interval.Hours() * float64(running)
	usage.Requests = delta

	rec := c.engine.RecordUsage(image.ID, image.OwnerID, usage)
	c.billedRequests[image.ID] += delta
	c.logger.Info("usage recorded",
		"image_id", image.ID,
		"containers", running,
		"requests", delta,
		"total_cost", rec.TotalCost)
	return nil
}

// parseQuantityGB converts a quantity+unit limit string ("512MB", "10GB")
// to gigabytes. Unknown units parse as zero.
func parseQuantityGB(limit string) float64 {
	s := strings.TrimSpace(strings.ToUpper(limit))
	if s == "" {
		return 0
	}
	unitScale := map[string]float64{
		"KB": 1.0 / (1024 * 1024),
		"MB": 1.0 / 1024,
		"GB": 1,
		"TB": 1024,
	}
	for unit, scale := range unitScale {
		if strings.HasSuffix(s, unit) {
			value, err := strconv.ParseFloat(strings.TrimSuffix(s, unit), 64)
			if err != nil {
				return 0
			}
			return value * scale
		}
	}
	return 0
}
