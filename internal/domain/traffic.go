package domain

import "time"

// TrafficSnapshot captures request flow for one image. GeoDistribution
// maps region name to percentage of traffic; entries are expected to sum
// to roughly 100.
type TrafficSnapshot struct {
	ImageID           string             `json:"image_id"`
	RequestsPerSecond float64            `json:"requests_per_second"`
	TotalRequests     int64              `json:"total_requests"`
	GeoDistribution   map[string]float64 `json:"geographic_distribution,omitempty"`
	LastUpdated       time.Time          `json:"last_updated"`
}
