package repository

import (
	"context"

	"github.com/hullhost/hullhost/internal/domain"
)

// UserRepository persists platform accounts.
type UserRepository interface {
	CreateUser(ctx context.Context, user *domain.User) error
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
	GetUserByID(ctx context.Context, id string) (*domain.User, error)
}

// ImageRepository persists image metadata. The fleet itself is simulated
// in memory; only the uploaded artifact's metadata is durable.
type ImageRepository interface {
	CreateImage(ctx context.Context, image *domain.Image) error
	GetImageByID(ctx context.Context, imageID string) (*domain.Image, error)
	ListImages(ctx context.Context) ([]domain.Image, error)
	ListImagesByOwner(ctx context.Context, ownerID string) ([]domain.Image, error)
	UpdateImageStatus(ctx context.Context, imageID, status string) error
	UpdateImagePolicy(ctx context.Context, image *domain.Image) error
}
