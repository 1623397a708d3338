package notify

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// Notification is one row of the user-visible activity feed.
type Notification struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Kind      string    `json:"kind"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// Repository persists notifications in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Insert writes a notification materialized from a queue event.
func (r *Repository) Insert(ctx context.Context, e Event) (Notification, error) {
	n := Notification{
		ID:     uuid.NewString(),
		UserID: e.UserID,
		Kind:   e.Kind,
		Body:   e.Body,
	}
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO notifications (id, user_id, kind, body)
		VALUES ($1,$2,$3,$4)
		RETURNING created_at
	`, n.ID, n.UserID, n.Kind, n.Body)
	if err := row.Scan(&n.CreatedAt); err != nil {
		return Notification{}, err
	}
	return n, nil
}

// ListForUser returns the newest notifications first.
func (r *Repository) ListForUser(ctx context.Context, userID string, limit int) ([]Notification, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, kind, body, created_at
		FROM notifications
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Notification
	for rows.Next() {
		var n Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.Kind, &n.Body, &n.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, n)
	}
	return res, rows.Err()
}
