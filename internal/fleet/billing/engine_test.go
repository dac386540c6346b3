package billing

import (
	"context"
	"io"
	"testing"

	"log/slog"

	"github.com/hullhost/hullhost/internal/domain"
)

func newTestEngine() *Engine {
	return NewEngine(DefaultPricing, DefaultGrowth, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestCostIsPureAndDeterministic(t *testing.T) {
	e := newTestEngine()
	usage := Usage{
		DurationHours:   10,
		CPUUsagePercent: 50,
		MemoryGB:        2,
		StorageGB:       5,
		Requests:        2000,
	}
	// (0.5*0.05*10) + (2*0.02*10) + (5*0.01*10) + (2*0.001) = 1.152
	first := e.Cost(usage)
	if first != 1.152 {
		t.Fatalf("expected 1.152, got %v", first)
	}
	if second := e.Cost(usage); second != first {
		t.Fatalf("cost must be deterministic: %v vs %v", first, second)
	}
	if got := e.Cost(Usage{}); got != 0 {
		t.Fatalf("zero usage must cost zero, got %v", got)
	}
}

func TestRecordUsageAccumulates(t *testing.T) {
	e := newTestEngine()
	usage := Usage{DurationHours: 10, CPUUsagePercent: 50, MemoryGB: 2, StorageGB: 5, Requests: 2000, Containers: 3}

	rec := e.RecordUsage("img-1", "owner-1", usage)
	if rec.TotalCost != 1.152 {
		t.Fatalf("expected first total 1.152, got %v", rec.TotalCost)
	}
	if rec.CostBreakdown.CPU != 0.25 || rec.CostBreakdown.Memory != 0.4 || rec.CostBreakdown.Storage != 0.5 || rec.CostBreakdown.Requests != 0.002 {
		t.Fatalf("unexpected breakdown: %+v", rec.CostBreakdown)
	}

	rec = e.RecordUsage("img-1", "owner-1", usage)
	if rec.TotalCost != 2.304 {
		t.Fatalf("expected accumulated total 2.304, got %v", rec.TotalCost)
	}
	if rec.TotalHours != 20 || rec.TotalRequests != 4000 || rec.ContainersCount != 3 {
		t.Fatalf("unexpected usage counters: %+v", rec)
	}
}

func TestSetLimitRequiresExistingRecord(t *testing.T) {
	e := newTestEngine()
	if e.SetLimit("img-1", 100) {
		t.Fatalf("set limit without a record must fail")
	}
	e.RecordUsage("img-1", "owner-1", Usage{DurationHours: 1, CPUUsagePercent: 100})
	if !e.SetLimit("img-1", 100) {
		t.Fatalf("expected set limit to succeed once a record exists")
	}
}

func TestLimitStatusAlgebra(t *testing.T) {
	e := newTestEngine()
	if _, ok := e.LimitStatus("img-1"); ok {
		t.Fatalf("expected no status for unknown image")
	}

	// 100 hours of a full CPU: 100 * 0.05 = 5.00
	e.RecordUsage("img-1", "owner-1", Usage{DurationHours: 100, CPUUsagePercent: 100})

	status, ok := e.LimitStatus("img-1")
	if !ok {
		t.Fatalf("expected status")
	}
	if status.Limit != nil || status.LimitReached {
		t.Fatalf("unlimited image must never reach a limit: %+v", status)
	}

	e.SetLimit("img-1", 8)
	status, _ = e.LimitStatus("img-1")
	if status.LimitReached {
		t.Fatalf("limit not reached at cost 5 of 8")
	}
	if status.Remaining == nil || *status.Remaining != 3 {
		t.Fatalf("expected remaining 3, got %v", status.Remaining)
	}

	e.SetLimit("img-1", 5)
	status, _ = e.LimitStatus("img-1")
	if !status.LimitReached {
		t.Fatalf("limit_reached must hold when cost >= limit")
	}

	e.SetLimit("img-1", 2)
	status, _ = e.LimitStatus("img-1")
	if status.Remaining == nil || *status.Remaining != 0 {
		t.Fatalf("remaining must floor at zero, got %v", status.Remaining)
	}
}

func TestChargesReturnsZeroRecordForUnknownImage(t *testing.T) {
	e := newTestEngine()
	rec, err := e.Charges(context.Background(), "img-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.ImageID != "img-1" || rec.TotalCost != 0 || rec.PaymentLimit != nil {
		t.Fatalf("expected zero record, got %+v", rec)
	}
}

func TestSystemRollupRanksTopImages(t *testing.T) {
	e := newTestEngine()
	hours := []float64{10, 50, 30, 20, 60, 40, 5}
	for i, h := range hours {
		imageID := string(rune('a' + i))
		owner := "owner-1"
		if i%2 == 1 {
			owner = "owner-2"
		}
		e.RecordUsage(imageID, owner, Usage{DurationHours: h, CPUUsagePercent: 100, Containers: 1})
	}

	rollup := e.SystemRollup()
	if rollup.TotalImages != 7 || rollup.TotalUsers != 2 || rollup.TotalContainers != 7 {
		t.Fatalf("unexpected rollup counts: %+v", rollup)
	}
	if len(rollup.TopPerformingImages) != 5 {
		t.Fatalf("expected top 5 images, got %d", len(rollup.TopPerformingImages))
	}
	for i := 1; i < len(rollup.TopPerformingImages); i++ {
		if rollup.TopPerformingImages[i].Revenue > rollup.TopPerformingImages[i-1].Revenue {
			t.Fatalf("top images not sorted by revenue desc: %+v", rollup.TopPerformingImages)
		}
	}
	// Revenue = 0.05 * sum(hours) = 10.75
	if rollup.TotalRevenue != 10.75 {
		t.Fatalf("expected revenue 10.75, got %v", rollup.TotalRevenue)
	}
	forecast := DefaultGrowth.Forecast(10.75)
	if rollup.RevenueForecast != forecast {
		t.Fatalf("expected forecast %+v, got %+v", forecast, rollup.RevenueForecast)
	}
	if rollup.MonthlyGrowth != DefaultGrowth.GrowthPercent {
		t.Fatalf("unexpected growth: %v", rollup.MonthlyGrowth)
	}
}

type doublingGrowth struct{}

func (doublingGrowth) MonthlyGrowthPercent() float64 { return 100 }
func (doublingGrowth) Forecast(current float64) domain.RevenueForecast {
	return domain.RevenueForecast{
		NextMonth:   current * 2,
		Next2Months: current * 4,
		Next3Months: current * 8,
	}
}

func TestGrowthModelIsPluggable(t *testing.T) {
	e := NewEngine(DefaultPricing, doublingGrowth{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	e.RecordUsage("img-1", "owner-1", Usage{DurationHours: 100, CPUUsagePercent: 100})

	rollup := e.SystemRollup()
	if rollup.MonthlyGrowth != 100 {
		t.Fatalf("expected injected growth percent, got %v", rollup.MonthlyGrowth)
	}
	if rollup.RevenueForecast.Next3Months != 40 {
		t.Fatalf("expected forecast from injected model, got %+v", rollup.RevenueForecast)
	}
}
