package metering

import (
	"context"
	"io"
	"testing"
	"time"

	"log/slog"

	"github.com/hullhost/hullhost/internal/domain"
	"github.com/hullhost/hullhost/internal/fleet/billing"
)

type staticImages struct{ images []domain.Image }

func (s staticImages) ListImages(ctx context.Context) ([]domain.Image, error) {
	return s.images, nil
}

type staticInstances struct{ byImage map[string][]domain.ContainerInstance }

func (s staticInstances) ListByImage(ctx context.Context, imageID string) ([]domain.ContainerInstance, error) {
	return s.byImage[imageID], nil
}

type staticHealth struct{ cpu float64 }

func (s staticHealth) Sample(ctx context.Context, instanceID string) (domain.HealthSample, error) {
	return domain.HealthSample{InstanceID: instanceID, CPUUsage: s.cpu}, nil
}

type staticRequests struct{ total int64 }

func (s staticRequests) RequestsSince(imageID string, previous int64) int64 {
	if s.total <= previous {
		return 0
	}
	return s.total - previous
}

func TestSweepRecordsUsage(t *testing.T) {
	engine := billing.NewEngine(billing.DefaultPricing, billing.DefaultGrowth, slog.New(slog.NewTextHandler(io.Discard, nil)))
	images := staticImages{images: []domain.Image{{ID: "img-1", OwnerID: "owner-1"}}}
	instances := staticInstances{byImage: map[string][]domain.ContainerInstance{
		"img-1": {
			{ID: "c-1", Status: domain.InstanceStatusRunning, Resources: domain.ResourceLimits{MemoryLimit: "512MB", DiskLimit: "10GB"}},
			{ID: "c-2", Status: domain.InstanceStatusStopped, Resources: domain.ResourceLimits{MemoryLimit: "512MB", DiskLimit: "10GB"}},
		},
	}}

	ctrl := New(images, instances, staticHealth{cpu: 50}, staticRequests{total: 2000}, engine, nil, time.Hour)
	ctrl.Sweep(context.Background())

	rec, err := engine.Charges(context.Background(), "img-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.OwnerID != "owner-1" {
		t.Fatalf("owner not attributed: %+v", rec)
	}
	// One running container for one hour at 50% cpu, 0.5GB memory, 10GB
	// disk, 2000 requests: 0.025 + 0.01 + 0.1 + 0.002 = 0.137
	if rec.TotalCost != 0.137 {
		t.Fatalf("expected cost 0.137, got %v", rec.TotalCost)
	}
	if rec.TotalRequests != 2000 || rec.ContainersCount != 2 {
		t.Fatalf("unexpected counters: %+v", rec)
	}

	// A second sweep with no new requests only bills runtime.
	ctrl.Sweep(context.Background())
	rec, _ = engine.Charges(context.Background(), "img-1")
	if rec.TotalRequests != 2000 {
		t.Fatalf("requests double-billed: %+v", rec)
	}
	if rec.TotalCost != 0.272 {
		t.Fatalf("expected cost 0.272 after second sweep, got %v", rec.TotalCost)
	}
}

func TestSweepSkipsIdleImages(t *testing.T) {
	engine := billing.NewEngine(billing.DefaultPricing, billing.DefaultGrowth, slog.New(slog.NewTextHandler(io.Discard, nil)))
	images := staticImages{images: []domain.Image{{ID: "img-idle", OwnerID: "owner-1"}}}
	instances := staticInstances{byImage: map[string][]domain.ContainerInstance{}}

	ctrl := New(images, instances, staticHealth{}, staticRequests{}, engine, nil, time.Hour)
	ctrl.Sweep(context.Background())

	if _, ok := engine.LimitStatus("img-idle"); ok {
		t.Fatalf("idle image must not get a billing record")
	}
}

func TestParseQuantityGB(t *testing.T) {
	cases := []struct {
		in   string
		want float64
	}{
		{"512MB", 0.5},
		{"10GB", 10},
		{"1TB", 1024},
		{"2048KB", 2048.0 / (1024 * 1024)},
		{"", 0},
		{"badunit", 0},
	}
	for _, tc := range cases {
		if got := parseQuantityGB(tc.in); got != tc.want {
			t.Fatalf("parseQuantityGB(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}
