package domain

// FleetView is the aggregated per-image operational and billing snapshot
// returned to API callers. It is built fresh on every request and never
// stored; fields default to zero values when a fleet source is degraded.
type FleetView struct {
	ImageID           string        `json:"image_id"`
	ImageName         string        `json:"image_name"`
	OwnerID           string        `json:"owner_id"`
	OwnerEmail        string        `json:"owner_email,omitempty"`
	Status            string        `json:"status"`
	RunningContainers int           `json:"running_containers"`
	TotalContainers   int           `json:"total_containers"`
	HealthyContainers int           `json:"healthy_containers"`
	TotalErrors       int           `json:"total_errors"`
	RequestsPerSecond float64       `json:"requests_per_second"`
	TotalRequests     int64         `json:"total_requests"`
	TotalCost         float64       `json:"total_cost"`
	CostBreakdown     CostBreakdown `json:"cost_breakdown"`
	PaymentLimit      *float64      `json:"payment_limit,omitempty"`
}
