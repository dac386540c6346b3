package domain

import "time"

// Image statuses reported to API callers.
const (
	ImageStatusProcessing = "processing"
	ImageStatusReady      = "ready"
	ImageStatusDisabled   = "disabled"
)

// Image describes an uploaded container artifact and its hosting policy.
// The artifact itself lives behind the storage collaborator; only the
// public URL is recorded here.
type Image struct {
	ID           string    `json:"id"`
	OwnerID      string    `json:"owner_id"`
	Name         string    `json:"name"`
	ArtifactURL  string    `json:"artifact_url"`
	InnerPort    int       `json:"inner_port"`
	MinReplicas  int       `json:"min_replicas"`
	MaxReplicas  int       `json:"max_replicas"`
	PaymentLimit float64   `json:"payment_limit"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
