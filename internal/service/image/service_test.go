package image

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/hullhost/hullhost/internal/domain"
	"github.com/hullhost/hullhost/internal/repository"
	"github.com/hullhost/hullhost/pkg/config"
)

type stubImageRepository struct {
	byID    map[string]domain.Image
	created []string
}

func newStubImageRepository() *stubImageRepository {
	return &stubImageRepository{byID: make(map[string]domain.Image)}
}

func (s *stubImageRepository) CreateImage(ctx context.Context, image *domain.Image) error {
	s.byID[image.ID] = *image
	s.created = append(s.created, image.ID)
	return nil
}

func (s *stubImageRepository) GetImageByID(ctx context.Context, imageID string) (*domain.Image, error) {
	if img, ok := s.byID[imageID]; ok {
		return &img, nil
	}
	return nil, repository.ErrNotFound
}

func (s *stubImageRepository) ListImages(ctx context.Context) ([]domain.Image, error) {
	out := make([]domain.Image, 0, len(s.created))
	for _, id := range s.created {
		out = append(out, s.byID[id])
	}
	return out, nil
}

func (s *stubImageRepository) ListImagesByOwner(ctx context.Context, ownerID string) ([]domain.Image, error) {
	out := make([]domain.Image, 0)
	for _, id := range s.created {
		if img := s.byID[id]; img.OwnerID == ownerID {
			out = append(out, img)
		}
	}
	return out, nil
}

func (s *stubImageRepository) UpdateImageStatus(ctx context.Context, imageID, status string) error {
	img, ok := s.byID[imageID]
	if !ok {
		return repository.ErrNotFound
	}
	img.Status = status
	s.byID[imageID] = img
	return nil
}

func (s *stubImageRepository) UpdateImagePolicy(ctx context.Context, image *domain.Image) error {
	if _, ok := s.byID[image.ID]; !ok {
		return repository.ErrNotFound
	}
	s.byID[image.ID] = *image
	return nil
}

type stubUserRepository struct {
	byID map[string]domain.User
}

func (s *stubUserRepository) CreateUser(ctx context.Context, user *domain.User) error { return nil }

func (s *stubUserRepository) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	return nil, repository.ErrNotFound
}

func (s *stubUserRepository) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	if user, ok := s.byID[id]; ok {
		return &user, nil
	}
	return nil, repository.ErrNotFound
}

func testService(repo *stubImageRepository, users *stubUserRepository) Service {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := config.APIConfig{ArtifactBaseURL: "https://artifacts.test/"}
	return New(repo, users, log, cfg)
}

func TestRegisterValidatesInput(t *testing.T) {
	svc := testService(newStubImageRepository(), &stubUserRepository{})
	cases := []struct {
		name  string
		input CreateInput
	}{
		{"empty name", CreateInput{OwnerID: "o1", Name: "  ", InnerPort: 8080}},
		{"port too low", CreateInput{OwnerID: "o1", Name: "api", InnerPort: 0}},
		{"port too high", CreateInput{OwnerID: "o1", Name: "api", InnerPort: 70000}},
		{"min above max", CreateInput{OwnerID: "o1", Name: "api", InnerPort: 8080, MinReplicas: 5, MaxReplicas: 2}},
		{"negative limit", CreateInput{OwnerID: "o1", Name: "api", InnerPort: 8080, MinReplicas: 1, MaxReplicas: 2, PaymentLimit: -1}},
	}
	for _, tc := range cases {
		if _, err := svc.Register(context.Background(), tc.input); err == nil {
			t.Fatalf("%s: expected validation error", tc.name)
		}
	}
}

func TestRegisterAppliesDefaultsAndMarksReady(t *testing.T) {
	repo := newStubImageRepository()
	svc := testService(repo, &stubUserRepository{})

	img, err := svc.Register(context.Background(), CreateInput{OwnerID: "o1", Name: " api ", InnerPort: 8080})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if img.Name != "api" {
		t.Fatalf("expected trimmed name, got %q", img.Name)
	}
	if img.MinReplicas != 1 || img.MaxReplicas != 3 {
		t.Fatalf("expected default replica bounds 1/3, got %d/%d", img.MinReplicas, img.MaxReplicas)
	}
	if img.Status != domain.ImageStatusReady {
		t.Fatalf("expected ready status, got %q", img.Status)
	}
	if !strings.HasPrefix(img.ArtifactURL, "https://artifacts.test/") || !strings.HasSuffix(img.ArtifactURL, ".tar.gz") {
		t.Fatalf("unexpected artifact url %q", img.ArtifactURL)
	}
	stored, err := repo.GetImageByID(context.Background(), img.ID)
	if err != nil {
		t.Fatalf("stored image: %v", err)
	}
	if stored.Status != domain.ImageStatusReady {
		t.Fatalf("stored status %q, want ready", stored.Status)
	}
}

func TestListScopesByOwnerUnlessAdmin(t *testing.T) {
	repo := newStubImageRepository()
	svc := testService(repo, &stubUserRepository{})

	for _, owner := range []string{"alice", "alice", "bob"} {
		if _, err := svc.Register(context.Background(), CreateInput{OwnerID: owner, Name: "svc", InnerPort: 80}); err != nil {
			t.Fatalf("register: %v", err)
		}
	}

	mine, err := svc.List(context.Background(), "alice", false)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(mine) != 2 {
		t.Fatalf("expected 2 images for alice, got %d", len(mine))
	}
	all, err := svc.List(context.Background(), "alice", true)
	if err != nil {
		t.Fatalf("list admin: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 images for admin, got %d", len(all))
	}
}

func TestSetPaymentLimitPersists(t *testing.T) {
	repo := newStubImageRepository()
	svc := testService(repo, &stubUserRepository{})

	img, err := svc.Register(context.Background(), CreateInput{OwnerID: "o1", Name: "api", InnerPort: 8080})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := svc.SetPaymentLimit(context.Background(), img.ID, -5); err == nil {
		t.Fatal("expected error for negative limit")
	}
	updated, err := svc.SetPaymentLimit(context.Background(), img.ID, 42.5)
	if err != nil {
		t.Fatalf("set limit: %v", err)
	}
	if updated.PaymentLimit != 42.5 {
		t.Fatalf("limit %v, want 42.5", updated.PaymentLimit)
	}
	stored, _ := repo.GetImageByID(context.Background(), img.ID)
	if stored.PaymentLimit != 42.5 {
		t.Fatalf("stored limit %v, want 42.5", stored.PaymentLimit)
	}
}

func TestOwnerEmail(t *testing.T) {
	users := &stubUserRepository{byID: map[string]domain.User{
		"o1": {ID: "o1", Email: "owner@example.com"},
	}}
	svc := testService(newStubImageRepository(), users)

	email, err := svc.OwnerEmail(context.Background(), "o1")
	if err != nil {
		t.Fatalf("owner email: %v", err)
	}
	if email != "owner@example.com" {
		t.Fatalf("email %q", email)
	}
	if _, err := svc.OwnerEmail(context.Background(), "missing"); err == nil {
		t.Fatal("expected error for unknown owner")
	}
}
