package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/digkill/CatPortrait/internal/models"
)

type ImageRepository struct {
	db *sql.DB
}

func NewImageRepository(db *sql.DB) *ImageRepository {
	return &ImageRepository{db: db}
}

const imageColumns = `id, user_id, image_url, storage_key, prompt, api_used, is_public, created_at`

func scanImage(row interface{ Scan(...any) error }) (*models.Image, error) {
	var img models.Image
	var public int
	if err := row.Scan(&img.ID, &img.UserID, &img.ImageURL, &img.StorageKey, &img.Prompt, &img.APIUsed, &public, &img.CreatedAt); err != nil {
		return nil, err
	}
	img.IsPublic = public != 0
	return &img, nil
}

func (r *ImageRepository) Create(ctx context.Context, img *models.Image) (*models.Image, error) {
	const query = `
INSERT INTO images (id, user_id, image_url, storage_key, prompt, api_used, is_public)
VALUES (?, ?, ?, ?, ?, ?, ?)`
	public := 0
	if img.IsPublic {
		public = 1
	}
	if _, err := r.db.ExecContext(ctx, query, img.ID, img.UserID, img.ImageURL, img.StorageKey, img.Prompt, img.APIUsed, public); err != nil {
		return nil, fmt.Errorf("insert image: %w", err)
	}
	return r.GetByID(ctx, img.ID)
}

func (r *ImageRepository) GetByID(ctx context.Context, id string) (*models.Image, error) {
	query := `SELECT ` + imageColumns + ` FROM images WHERE id = ?`
	img, err := scanImage(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get image: %w", err)
	}
	return img, nil
}

// List pages through public images, or through the images of userID when it
// is non-empty.
func (r *ImageRepository) List(ctx context.Context, userID string, limit, offset int) ([]models.Image, int, error) {
	where := `is_public = 1`
	args := []any{}
	if userID != "" {
		where = `user_id = ?`
		args = append(args, userID)
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM images WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count images: %w", err)
	}

	query := `SELECT ` + imageColumns + ` FROM images WHERE ` + where + ` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`
	rows, err := r.db.QueryContext(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list images: %w", err)
	}
	defer rows.Close()

	images := make([]models.Image, 0, limit)
	for rows.Next() {
		img, err := scanImage(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan image: %w", err)
		}
		images = append(images, *img)
	}
	return images, total, rows.Err()
}

func (r *ImageRepository) SetVisibility(ctx context.Context, id, userID string, public bool) (bool, error) {
	value := 0
	if public {
		value = 1
	}
	res, err := r.db.ExecContext(ctx, `UPDATE images SET is_public = ? WHERE id = ? AND user_id = ?`, value, id, userID)
	if err != nil {
		return false, fmt.Errorf("update image visibility: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("visibility rows affected: %w", err)
	}
	return affected > 0, nil
}

func (r *ImageRepository) RecordEvent(ctx context.Context, imageID, userID string, action models.ImageAction, value int) error {
	const query = `
INSERT INTO image_events (image_id, user_id, action, value)
VALUES (?, NULLIF(?, ''), ?, ?)`
	if _, err := r.db.ExecContext(ctx, query, imageID, userID, action, value); err != nil {
		return fmt.Errorf("record image event: %w", err)
	}
	return nil
}

func (r *ImageRepository) Stats(ctx context.Context, imageID string) (*models.ImageStats, error) {
	const query = `
SELECT
    COALESCE(SUM(action = 'download'), 0),
    COALESCE(SUM(action = 'share'), 0),
    COALESCE(SUM(action = 'rating'), 0),
    COALESCE(AVG(CASE WHEN action = 'rating' THEN value END), 0)
FROM image_events WHERE image_id = ?`
	stats := models.ImageStats{ImageID: imageID}
	if err := r.db.QueryRowContext(ctx, query, imageID).Scan(&stats.Downloads, &stats.Shares, &stats.Ratings, &stats.AverageRating); err != nil {
		return nil, fmt.Errorf("image stats: %w", err)
	}
	return &stats, nil
}
