package domain

import "time"

// Instance lifecycle statuses. Created instances start running; there is
// no intermediate pending state in the simulated fleet.
const (
	InstanceStatusRunning = "running"
	InstanceStatusStopped = "stopped"
)

// ResourceLimits carries quantity+unit resource limits for one instance.
// Empty fields in a partial update mean "leave unchanged".
type ResourceLimits struct {
	CPULimit    string `json:"cpu_limit"`
	MemoryLimit string `json:"memory_limit"`
	DiskLimit   string `json:"disk_limit"`
}

// Merge overlays the non-empty fields of other onto l.
func (l ResourceLimits) Merge(other ResourceLimits) ResourceLimits {
	if other.CPULimit != "" {
		l.CPULimit = other.CPULimit
	}
	if other.MemoryLimit != "" {
		l.MemoryLimit = other.MemoryLimit
	}
	if other.DiskLimit != "" {
		l.DiskLimit = other.DiskLimit
	}
	return l
}

// ContainerInstance is one simulated execution of an image. Instances are
// owned by the fleet registry; other subsystems reference them by ID only.
type ContainerInstance struct {
	ID        string         `json:"id"`
	ImageID   string         `json:"image_id"`
	Status    string         `json:"status"`
	Resources ResourceLimits `json:"resources"`
	Endpoint  string         `json:"endpoint"`
	CreatedAt time.Time      `json:"created_at"`
}

// Health statuses derived from usage samples.
const (
	HealthStatusHealthy  = "healthy"
	HealthStatusWarning  = "warning"
	HealthStatusCritical = "critical"
	HealthStatusStopped  = "stopped"
)

// HealthSample is a point-in-time usage reading for one instance. Usage
// percentages are clamped to [0,100].
type HealthSample struct {
	InstanceID  string  `json:"instance_id"`
	CPUUsage    float64 `json:"cpu_usage"`
	MemoryUsage float64 `json:"memory_usage"`
	DiskUsage   float64 `json:"disk_usage"`
	Status      string  `json:"status"`
}
