package image

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"log/slog"

	"github.com/google/uuid"

	"github.com/hullhost/hullhost/internal/domain"
	"github.com/hullhost/hullhost/internal/repository"
	"github.com/hullhost/hullhost/pkg/config"
)

// CreateInput encapsulates image registration attributes.
type CreateInput struct {
	OwnerID      string
	Name         string
	InnerPort    int
	MinReplicas  int
	MaxReplicas  int
	PaymentLimit float64
}

// Service orchestrates image metadata management.
type Service struct {
	images repository.ImageRepository
	users  repository.UserRepository
	logger *slog.Logger
	cfg    config.APIConfig
}

// New returns an image service.
func New(images repository.ImageRepository, users repository.UserRepository, logger *slog.Logger, cfg config.APIConfig) Service {
	return Service{images: images, users: users, logger: logger, cfg: cfg}
}

var (
	errInvalidImageName = errors.New("image name is required")
	errInvalidPort      = errors.New("inner port must be between 1 and 65535")
	errInvalidReplicas  = errors.New("replica bounds must satisfy 0 <= min <= max and max >= 1")
	errInvalidLimit     = errors.New("payment limit must be non-negative")
)

// Register stores a new image and marks it ready for hosting. The
// artifact URL is derived from the configured public artifact base.
func (s Service) Register(ctx context.Context, input CreateInput) (*domain.Image, error) {
	if strings.TrimSpace(input.Name) == "" {
		return nil, errInvalidImageName
	}
	if input.InnerPort < 1 || input.InnerPort > 65535 {
		return nil, errInvalidPort
	}
	if input.MinReplicas == 0 && input.MaxReplicas == 0 {
		input.MinReplicas = 1
		input.MaxReplicas = 3
	}
	if input.MinReplicas < 0 || input.MaxReplicas < input.MinReplicas || input.MaxReplicas < 1 {
		return nil, errInvalidReplicas
	}
	if input.PaymentLimit < 0 {
		return nil, errInvalidLimit
	}
	now := time.Now().UTC()
	img := &domain.Image{
		ID:           uuid.NewString(),
		OwnerID:      input.OwnerID,
		Name:         strings.TrimSpace(input.Name),
		ArtifactURL:  fmt.Sprintf("%s/%s.tar.gz", strings.TrimRight(s.cfg.ArtifactBaseURL, "/"), uuid.NewString()),
		InnerPort:    input.InnerPort,
		MinReplicas:  input.MinReplicas,
		MaxReplicas:  input.MaxReplicas,
		PaymentLimit: input.PaymentLimit,
		Status:       domain.ImageStatusProcessing,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.images.CreateImage(ctx, img); err != nil {
		return nil, err
	}
	// No build pipeline here, the artifact is served as uploaded.
	if err := s.images.UpdateImageStatus(ctx, img.ID, domain.ImageStatusReady); err != nil {
		return nil, err
	}
	img.Status = domain.ImageStatusReady
	s.logger.Info("image registered", "image_id", img.ID, "owner_id", img.OwnerID)
	return img, nil
}

// Get retrieves image metadata by id.
func (s Service) Get(ctx context.Context, imageID string) (*domain.Image, error) {
	return s.images.GetImageByID(ctx, imageID)
}

// List returns images visible to the caller. Admins see every image.
func (s Service) List(ctx context.Context, callerID string, isAdmin bool) ([]domain.Image, error) {
	if isAdmin {
		return s.images.ListImages(ctx)
	}
	return s.images.ListImagesByOwner(ctx, callerID)
}

// SetPaymentLimit persists a new monthly spend ceiling for the image.
func (s Service) SetPaymentLimit(ctx context.Context, imageID string, limit float64) (*domain.Image, error) {
	if limit < 0 {
		return nil, errInvalidLimit
	}
	img, err := s.images.GetImageByID(ctx, imageID)
	if err != nil {
		return nil, err
	}
	img.PaymentLimit = limit
	if err := s.images.UpdateImagePolicy(ctx, img); err != nil {
		return nil, err
	}
	return img, nil
}

// OwnerEmail resolves the owning account's email address.
func (s Service) OwnerEmail(ctx context.Context, ownerID string) (string, error) {
	user, err := s.users.GetUserByID(ctx, ownerID)
	if err != nil {
		return "", err
	}
	return user.Email, nil
}
