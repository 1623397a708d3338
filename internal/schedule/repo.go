package schedule

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a class id does not exist (or belongs to
// another user).
var ErrNotFound = errors.New("class not found")

// Repository persists class templates in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Insert writes a new class after validation.
func (r *Repository) Insert(ctx context.Context, c Class) (Class, error) {
	if err := c.Validate(); err != nil {
		return Class{}, err
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO classes (id, user_id, title, weekday, hour, minute, enabled, building_code)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING created_at
	`, c.ID, c.UserID, c.Title, c.Weekday, c.Hour, c.Minute, c.Enabled, nullable(c.BuildingCode))
	if err := row.Scan(&c.CreatedAt); err != nil {
		return Class{}, err
	}
	return c, nil
}

// Get returns one class owned by userID.
func (r *Repository) Get(ctx context.Context, userID, id string) (Class, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, title, weekday, hour, minute, enabled, building_code, created_at
		FROM classes WHERE id = $1 AND user_id = $2
	`, id, userID)
	c, err := scanClass(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Class{}, ErrNotFound
	}
	return c, err
}

// ListForUser returns all classes for one user ordered by weekday then time.
func (r *Repository) ListForUser(ctx context.Context, userID string) ([]Class, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, title, weekday, hour, minute, enabled, building_code, created_at
		FROM classes WHERE user_id = $1
		ORDER BY weekday, hour, minute
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collect(rows)
}

// ListEnabled returns every enabled class across all users. The scorer scans
// this on each tick.
func (r *Repository) ListEnabled(ctx context.Context) ([]Class, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, title, weekday, hour, minute, enabled, building_code, created_at
		FROM classes WHERE enabled
		ORDER BY weekday, hour, minute
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collect(rows)
}

// SetEnabled toggles a class on or off.
func (r *Repository) SetEnabled(ctx context.Context, userID, id string, enabled bool) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE classes SET enabled = $3 WHERE id = $1 AND user_id = $2
	`, id, userID, enabled)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// Update rewrites the schedule fields of an existing class.
func (r *Repository) Update(ctx context.Context, c Class) error {
	if err := c.Validate(); err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE classes
		SET title = $3, weekday = $4, hour = $5, minute = $6, enabled = $7, building_code = $8
		WHERE id = $1 AND user_id = $2
	`, c.ID, c.UserID, c.Title, c.Weekday, c.Hour, c.Minute, c.Enabled, nullable(c.BuildingCode))
	if err != nil {
		return err
	}
	return requireRow(res)
}

// Delete removes a class.
func (r *Repository) Delete(ctx context.Context, userID, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM classes WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanClass(row scannable) (Class, error) {
	var c Class
	var building sql.NullString
	if err := row.Scan(&c.ID, &c.UserID, &c.Title, &c.Weekday, &c.Hour, &c.Minute, &c.Enabled, &building, &c.CreatedAt); err != nil {
		return Class{}, err
	}
	c.BuildingCode = building.String
	return c, nil
}

func collect(rows *sql.Rows) ([]Class, error) {
	var res []Class
	for rows.Next() {
		c, err := scanClass(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
