package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hullhost/hullhost/internal/domain"
	"github.com/hullhost/hullhost/internal/repository"
)

// Repository implements persistence interfaces on PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// New constructs a Repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ensure Repository satisfies interfaces.
var (
	_ repository.UserRepository  = (*Repository)(nil)
	_ repository.ImageRepository = (*Repository)(nil)
)

// CreateUser inserts a user.
func (r *Repository) CreateUser(ctx context.Context, user *domain.User) error {
	const query = `INSERT INTO users (id, email, password_hash, is_admin, created_at)
		VALUES ($1, $2, $3, $4, $5)`
	_, err := r.pool.Exec(ctx, query, user.ID, user.Email, user.PasswordHash, user.IsAdmin, user.CreatedAt)
	return err
}

// GetUserByEmail fetches a user by email.
func (r *Repository) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	const query = `SELECT id, email, password_hash, is_admin, created_at FROM users WHERE email = $1`
	return r.scanUser(r.pool.QueryRow(ctx, query, email))
}

// GetUserByID retrieves a user by identifier.
func (r *Repository) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	const query = `SELECT id, email, password_hash, is_admin, created_at FROM users WHERE id = $1`
	return r.scanUser(r.pool.QueryRow(ctx, query, id))
}

func (r *Repository) scanUser(row pgx.Row) (*domain.User, error) {
	var u domain.User
	if err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.IsAdmin, &u.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

const imageColumns = `id, owner_id, name, artifact_url, inner_port, min_replicas, max_replicas, payment_limit, status, created_at, updated_at`

// CreateImage inserts an image metadata record.
func (r *Repository) CreateImage(ctx context.Context, image *domain.Image) error {
	const query = `INSERT INTO images (id, owner_id, name, artifact_url, inner_port, min_replicas, max_replicas, payment_limit, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	_, err := r.pool.Exec(ctx, query,
		image.ID, image.OwnerID, image.Name, image.ArtifactURL,
		image.InnerPort, image.MinReplicas, image.MaxReplicas,
		image.PaymentLimit, image.Status, image.CreatedAt, image.UpdatedAt)
	return err
}

// GetImageByID retrieves an image by identifier.
func (r *Repository) GetImageByID(ctx context.Context, imageID string) (*domain.Image, error) {
	query := `SELECT ` + imageColumns + ` FROM images WHERE id = $1`
	row := r.pool.QueryRow(ctx, query, imageID)
	var img domain.Image
	if err := scanImage(row, &img); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &img, nil
}

// ListImages returns every image, newest first.
func (r *Repository) ListImages(ctx context.Context) ([]domain.Image, error) {
	query := `SELECT ` + imageColumns + ` FROM images ORDER BY created_at DESC`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectImages(rows)
}

// ListImagesByOwner returns the owner's images, newest first.
func (r *Repository) ListImagesByOwner(ctx context.Context, ownerID string) ([]domain.Image, error) {
	query := `SELECT ` + imageColumns + ` FROM images WHERE owner_id = $1 ORDER BY created_at DESC`
	rows, err := r.pool.Query(ctx, query, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectImages(rows)
}

// UpdateImageStatus transitions an image's lifecycle status.
func (r *Repository) UpdateImageStatus(ctx context.Context, imageID, status string) error {
	const query = `UPDATE images SET status = $2, updated_at = NOW() WHERE id = $1`
	tag, err := r.pool.Exec(ctx, query, imageID, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// UpdateImagePolicy rewrites the image's scaling and billing policy
// fields.
func (r *Repository) UpdateImagePolicy(ctx context.Context, image *domain.Image) error {
	const query = `UPDATE images
		SET inner_port = $2, min_replicas = $3, max_replicas = $4, payment_limit = $5, updated_at = NOW()
		WHERE id = $1`
	tag, err := r.pool.Exec(ctx, query,
		image.ID, image.InnerPort, image.MinReplicas, image.MaxReplicas, image.PaymentLimit)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func scanImage(row pgx.Row, img *domain.Image) error {
	return row.Scan(&img.ID, &img.OwnerID, &img.Name, &img.ArtifactURL,
		&img.InnerPort, &img.MinReplicas, &img.MaxReplicas,
		&img.PaymentLimit, &img.Status, &img.CreatedAt, &img.UpdatedAt)
}

func collectImages(rows pgx.Rows) ([]domain.Image, error) {
	images := make([]domain.Image, 0)
	for rows.Next() {
		var img domain.Image
		if err := scanImage(rows, &img); err != nil {
			return nil, err
		}
		images = append(images, img)
	}
	return images, rows.Err()
}
