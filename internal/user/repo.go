package user

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound      = errors.New("user not found")
	ErrUsernameTaken = errors.New("username already taken")
)

// User is a player profile. Score only ever goes up; the attendance scorer
// is the sole writer.
type User struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Score     int       `json:"score"`
	CreatedAt time.Time `json:"created_at"`

	passwordHash string
}

// PasswordHash exposes the stored hash for credential checks.
func (u User) PasswordHash() string { return u.passwordHash }

// Repository persists users in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Create registers a new user with a zero score.
func (r *Repository) Create(ctx context.Context, username, passwordHash string) (User, error) {
	u := User{
		ID:           uuid.NewString(),
		Username:     username,
		passwordHash: passwordHash,
	}
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO users (id, username, password_hash)
		VALUES ($1,$2,$3)
		RETURNING created_at
	`, u.ID, u.Username, u.passwordHash)
	if err := row.Scan(&u.CreatedAt); err != nil {
		if isUniqueViolation(err) {
			return User{}, ErrUsernameTaken
		}
		return User{}, err
	}
	return u, nil
}

// ByUsername fetches a user for login.
func (r *Repository) ByUsername(ctx context.Context, username string) (User, error) {
	return r.one(ctx, `
		SELECT id, username, password_hash, score, created_at
		FROM users WHERE username = $1
	`, username)
}

// ByID fetches a user profile.
func (r *Repository) ByID(ctx context.Context, id string) (User, error) {
	return r.one(ctx, `
		SELECT id, username, password_hash, score, created_at
		FROM users WHERE id = $1
	`, id)
}

// AddPenalty increments the user's score by one point and returns the new
// total.
func (r *Repository) AddPenalty(ctx context.Context, userID string) (int, error) {
	row := r.db.QueryRowContext(ctx, `
		UPDATE users SET score = score + 1 WHERE id = $1 RETURNING score
	`, userID)
	var score int
	if err := row.Scan(&score); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, err
	}
	return score, nil
}

// SaveRefreshToken stores a refresh token for rotation checks.
func (r *Repository) SaveRefreshToken(ctx context.Context, userID, token string, expiresAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO refresh_tokens (user_id, token, expires_at)
		VALUES ($1, $2, $3)
	`, userID, token, expiresAt)
	return err
}

// RefreshTokenValid reports whether token is known, unexpired, and unrevoked.
func (r *Repository) RefreshTokenValid(ctx context.Context, userID, token string) (bool, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM refresh_tokens
		WHERE user_id = $1 AND token = $2 AND NOT revoked AND expires_at > NOW()
	`, userID, token)
	var n int
	if err := row.Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

// RevokeRefreshToken marks a token revoked.
func (r *Repository) RevokeRefreshToken(ctx context.Context, token string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE refresh_tokens SET revoked = TRUE WHERE token = $1`, token)
	return err
}

func (r *Repository) one(ctx context.Context, query string, arg any) (User, error) {
	row := r.db.QueryRowContext(ctx, query, arg)
	var u User
	if err := row.Scan(&u.ID, &u.Username, &u.passwordHash, &u.Score, &u.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, ErrNotFound
		}
		return User{}, err
	}
	return u, nil
}

func isUniqueViolation(err error) bool {
	// pgx surfaces SQLSTATE 23505 in the error text through database/sql.
	return err != nil && strings.Contains(err.Error(), "23505")
}
