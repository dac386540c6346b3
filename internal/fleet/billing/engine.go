package billing

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"log/slog"

	"github.com/hullhost/hullhost/internal/domain"
)

// Pricing is the fixed per-resource price table.
type Pricing struct {
	CPUPerHour       float64 // dollars per CPU hour at 100% utilization
	MemoryPerGBHour  float64
	StoragePerGBHour float64
	RequestsPer1000  float64
}

// DefaultPricing matches the platform's published rates.
var DefaultPricing = Pricing{
	CPUPerHour:       0.05,
	MemoryPerGBHour:  0.02,
	StoragePerGBHour: 0.01,
	RequestsPer1000:  0.001,
}

// Usage is one billable sample of fleet activity for an image.
type Usage struct {
	DurationHours   float64 `json:"duration_hours"`
	CPUUsagePercent float64 `json:"cpu_usage"`
	MemoryGB        float64 `json:"memory_gb"`
	StorageGB       float64 `json:"storage_gb"`
	Requests        int64   `json:"requests"`
	Containers      int     `json:"containers"`
}

// GrowthModel projects revenue growth. The multipliers are business
// projections, not measurements, so the model is swappable.
type GrowthModel interface {
	MonthlyGrowthPercent() float64
	Forecast(currentRevenue float64) domain.RevenueForecast
}

// StaticGrowth is the default deterministic growth model.
type StaticGrowth struct {
	GrowthPercent float64
	Multipliers   [3]float64
}

// DefaultGrowth projects a steady 12% month-over-month trajectory.
var DefaultGrowth = StaticGrowth{
	GrowthPercent: 12.0,
	Multipliers:   [3]float64{1.2, 1.35, 1.5},
}

// MonthlyGrowthPercent implements GrowthModel.
func (g StaticGrowth) MonthlyGrowthPercent() float64 { return g.GrowthPercent }

// Forecast implements GrowthModel.
func (g StaticGrowth) Forecast(currentRevenue float64) domain.RevenueForecast {
	return domain.RevenueForecast{
		NextMonth:   round(currentRevenue*g.Multipliers[0], 2),
		Next2Months: round(currentRevenue*g.Multipliers[1], 2),
		Next3Months: round(currentRevenue*g.Multipliers[2], 2),
	}
}

// Engine converts usage samples into cost and keeps one billing record
// per image. Records are in-memory and rebuilt from metering after a
// restart.
type Engine struct {
	mu      sync.Mutex
	records map[string]*domain.BillingRecord
	pricing Pricing
	growth  GrowthModel
	logger  *slog.Logger
	now     func() time.Time
}

// NewEngine constructs an Engine. A nil growth model falls back to
// DefaultGrowth.
func NewEngine(pricing Pricing, growth GrowthModel, logger *slog.Logger) *Engine {
	if growth == nil {
		growth = DefaultGrowth
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		records: make(map[string]*domain.BillingRecord),
		pricing: pricing,
		growth:  growth,
		logger:  logger.With("component", "billing"),
		now:     time.Now,
	}
}

// Cost computes the charge for one usage sample. It is a pure function of
// its inputs; the result is rounded to 4 decimal places with ties going
// to the even digit, which keeps historical invoices byte-identical.
func (e *Engine) Cost(u Usage) float64 {
	b := e.breakdown(u)
	return round(b.CPU+b.Memory+b.Storage+b.Requests, 4)
}

func (e *Engine) breakdown(u Usage) domain.CostBreakdown {
	return domain.CostBreakdown{
		CPU:      (u.CPUUsagePercent / 100) * e.pricing.CPUPerHour * u.DurationHours,
		Memory:   u.MemoryGB * e.pricing.MemoryPerGBHour * u.DurationHours,
		Storage:  u.StorageGB * e.pricing.StoragePerGBHour * u.DurationHours,
		Requests: (float64(u.Requests) / 1000) * e.pricing.RequestsPer1000,
	}
}

// RecordUsage accumulates the usage sample into the image's billing
// record, creating the record when absent.
func (e *Engine) RecordUsage(imageID, ownerID string, u Usage) domain.BillingRecord {
	cost := e.Cost(u)
	delta := e.breakdown(u)

	e.mu.Lock()
	defer e.mu.Unlock()
	rec := e.records[imageID]
	if rec == nil {
		rec = &domain.BillingRecord{ImageID: imageID, OwnerID: ownerID}
		e.records[imageID] = rec
	}
	if ownerID != "" {
		rec.OwnerID = ownerID
	}
	rec.CostBreakdown.CPU = round(rec.CostBreakdown.CPU+delta.CPU, 4)
	rec.CostBreakdown.Memory = round(rec.CostBreakdown.Memory+delta.Memory, 4)
	rec.CostBreakdown.Storage = round(rec.CostBreakdown.Storage+delta.Storage, 4)
	rec.CostBreakdown.Requests = round(rec.CostBreakdown.Requests+delta.Requests, 4)
	rec.TotalCost = round(rec.TotalCost+cost, 4)
	rec.TotalHours += u.DurationHours
	rec.TotalRequests += u.Requests
	if u.Containers > 0 {
		rec.ContainersCount = u.Containers
	}
	rec.LastUpdated = e.now().UTC()
	return *rec
}

// SetLimit sets the image's payment limit. Returns false when no billing
// record exists yet for the image.
func (e *Engine) SetLimit(imageID string, limit float64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	rec, ok := e.records[imageID]
	if !ok {
		return false
	}
	rec.PaymentLimit = &limit
	rec.LastUpdated = e.now().UTC()
	return true
}

// LimitStatus reports the image's position against its payment limit.
// Images without a limit never reach it. The second return value is false
// when the image has no billing record.
func (e *Engine) LimitStatus(imageID string) (domain.PaymentLimitStatus, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	rec, ok := e.records[imageID]
	if !ok {
		return domain.PaymentLimitStatus{}, false
	}
	status := domain.PaymentLimitStatus{
		ImageID:     imageID,
		CurrentCost: rec.TotalCost,
	}
	if rec.PaymentLimit != nil {
		limit := *rec.PaymentLimit
		status.Limit = &limit
		status.LimitReached = rec.TotalCost >= limit
		remaining := limit - rec.TotalCost
		if remaining < 0 {
			remaining = 0
		}
		status.Remaining = &remaining
	}
	return status, true
}

// Charges returns the image's billing record for aggregation, or the
// documented zero record when the image has never been billed.
func (e *Engine) Charges(ctx context.Context, imageID string) (domain.BillingRecord, error) {
	if err := ctx.Err(); err != nil {
		return domain.BillingRecord{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	rec, ok := e.records[imageID]
	if !ok {
		return domain.BillingRecord{ImageID: imageID}, nil
	}
	out := *rec
	if rec.PaymentLimit != nil {
		limit := *rec.PaymentLimit
		out.PaymentLimit = &limit
	}
	return out, nil
}

// SystemRollup summarizes billing state across every image for the admin
// dashboard.
func (e *Engine) SystemRollup() domain.SystemRollup {
	e.mu.Lock()
	defer e.mu.Unlock()

	rollup := domain.SystemRollup{
		MonthlyGrowth: e.growth.MonthlyGrowthPercent(),
		LastUpdated:   e.now().UTC(),
	}
	owners := make(map[string]struct{})
	performances := make([]domain.ImagePerformance, 0, len(e.records))
	var revenue float64
	for _, rec := range e.records {
		revenue += rec.TotalCost
		rollup.TotalContainers += rec.ContainersCount
		if rec.OwnerID != "" {
			owners[rec.OwnerID] = struct{}{}
		}
		performances = append(performances, domain.ImagePerformance{
			ImageID:    rec.ImageID,
			Revenue:    rec.TotalCost,
			Containers: rec.ContainersCount,
			Requests:   rec.TotalRequests,
		})
	}
	sort.Slice(performances, func(i, j int) bool {
		if performances[i].Revenue != performances[j].Revenue {
			return performances[i].Revenue > performances[j].Revenue
		}
		return performances[i].ImageID < performances[j].ImageID
	})
	if len(performances) > 5 {
		performances = performances[:5]
	}
	rollup.TotalRevenue = round(revenue, 2)
	rollup.TotalUsers = len(owners)
	rollup.TotalImages = len(e.records)
	rollup.TopPerformingImages = performances
	rollup.RevenueForecast = e.growth.Forecast(revenue)
	return rollup
}

// round truncates v to the given decimal places using the decimal
// representation, so exact .5 ties round to even like the billing system
// of record does.
func round(v float64, places int) float64 {
	out, err := strconv.ParseFloat(strconv.FormatFloat(v, 'f', places, 64), 64)
	if err != nil {
		return v
	}
	return out
}
