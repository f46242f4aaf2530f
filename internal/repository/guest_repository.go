package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

type GuestRepository struct {
	db *sql.DB
}

func NewGuestRepository(db *sql.DB) *GuestRepository {
	return &GuestRepository{db: db}
}

func (r *GuestRepository) Log(ctx context.Context, guestKey, apiUsed, prompt string) error {
	const query = `
INSERT INTO guest_usage (guest_key, api_used, prompt)
VALUES (?, ?, ?)`
	if _, err := r.db.ExecContext(ctx, query, guestKey, apiUsed, prompt); err != nil {
		return fmt.Errorf("insert guest usage: %w", err)
	}
	return nil
}

// CountSince counts logged guest generations newer than since.
func (r *GuestRepository) CountSince(ctx context.Context, guestKey string, since time.Time) (int, error) {
	const query = `
SELECT COUNT(*) FROM guest_usage
WHERE guest_key = ? AND created_at >= ?`
	row := r.db.QueryRowContext(ctx, query, guestKey, since.UTC())
	var count int
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("count guest usage: %w", err)
	}
	return count, nil
}
