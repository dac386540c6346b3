package domain

import "time"

// CostBreakdown attributes cost to the billed resource classes.
type CostBreakdown struct {
	CPU      float64 `json:"cpu"`
	Memory   float64 `json:"memory"`
	Storage  float64 `json:"storage"`
	Requests float64 `json:"requests"`
}

// BillingRecord is the accumulated charge state for one image.
// PaymentLimit is nil while no limit has been set, meaning unlimited.
type BillingRecord struct {
	ImageID         string        `json:"image_id"`
	OwnerID         string        `json:"owner_id"`
	TotalCost       float64       `json:"total_cost"`
	CostBreakdown   CostBreakdown `json:"cost_breakdown"`
	PaymentLimit    *float64      `json:"payment_limit,omitempty"`
	ContainersCount int           `json:"containers_count"`
	TotalHours      float64       `json:"total_hours"`
	TotalRequests   int64         `json:"total_requests"`
	LastUpdated     time.Time     `json:"last_updated"`
}

// PaymentLimitStatus reports how close an image is to its payment limit.
// Limit is nil when no limit is configured; such images never reach it.
type PaymentLimitStatus struct {
	ImageID      string   `json:"image_id"`
	CurrentCost  float64  `json:"current_cost"`
	Limit        *float64 `json:"limit,omitempty"`
	LimitReached bool     `json:"limit_reached"`
	Remaining    *float64 `json:"remaining,omitempty"`
}

// ImagePerformance ranks an image inside the system rollup.
type ImagePerformance struct {
	ImageID    string  `json:"image_id"`
	Revenue    float64 `json:"revenue"`
	Containers int     `json:"containers"`
	Requests   int64   `json:"requests"`
}

// RevenueForecast projects revenue for the coming months.
type RevenueForecast struct {
	NextMonth   float64 `json:"next_month"`
	Next2Months float64 `json:"next_2_months"`
	Next3Months float64 `json:"next_3_months"`
}

// SystemRollup is the admin-facing business summary across all images.
type SystemRollup struct {
	TotalRevenue        float64            `json:"total_revenue"`
	TotalUsers          int                `json:"total_users"`
	TotalImages         int                `json:"total_images"`
	TotalContainers     int                `json:"total_containers"`
	MonthlyGrowth       float64            `json:"monthly_growth"`
	TopPerformingImages []ImagePerformance `json:"top_performing_images"`
	RevenueForecast     RevenueForecast    `json:"revenue_forecast"`
	LastUpdated         time.Time          `json:"last_updated"`
}
