package group

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound  = errors.New("group not found")
	ErrNameTaken = errors.New("group name already taken")
	ErrNotMember = errors.New("not a member of this group")
)

// Group is a shared leaderboard of friends holding each other to the honor
// system.
type Group struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	Members   []Member  `json:"members,omitempty"`
}

// Member is one user's standing inside a group.
type Member struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Score    int    `json:"score"`
}

// Repository persists groups and memberships in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Create makes a new group with the creator as its first member.
func (r *Repository) Create(ctx context.Context, name, creatorID string) (Group, error) {
	g := Group{ID: uuid.NewString(), Name: name}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return Group{}, err
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `
		INSERT INTO groups (id, name) VALUES ($1,$2) RETURNING created_at
	`, g.ID, g.Name)
	if err := row.Scan(&g.CreatedAt); err != nil {
		if strings.Contains(err.Error(), "23505") {
			return Group{}, ErrNameTaken
		}
		return Group{}, err
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO group_members (group_id, user_id) VALUES ($1,$2)
	`, g.ID, creatorID); err != nil {
		return Group{}, err
	}
	return g, tx.Commit()
}

// ListForUser returns the groups the user belongs to.
func (r *Repository) ListForUser(ctx context.Context, userID string) ([]Group, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT g.id, g.name, g.created_at
		FROM groups g
		JOIN group_members gm ON gm.group_id = g.id
		WHERE gm.user_id = $1
		ORDER BY g.name
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Group
	for rows.Next() {
		var g Group
		if err := rows.Scan(&g.ID, &g.Name, &g.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, g)
	}
	return res, rows.Err()
}

// Get returns a group with its member standings, lowest score first. Only
// members may view a group.
func (r *Repository) Get(ctx context.Context, groupID, viewerID string) (Group, error) {
	var g Group
	row := r.db.QueryRowContext(ctx, `
		SELECT g.id, g.name, g.created_at
		FROM groups g
		JOIN group_members gm ON gm.group_id = g.id AND gm.user_id = $2
		WHERE g.id = $1
	`, groupID, viewerID)
	if err := row.Scan(&g.ID, &g.Name, &g.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Group{}, ErrNotMember
		}
		return Group{}, err
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT u.id, u.username, u.score
		FROM users u
		JOIN group_members gm ON gm.user_id = u.id
		WHERE gm.group_id = $1
		ORDER BY u.score, u.username
	`, groupID)
	if err != nil {
		return Group{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var m Member
		if err := rows.Scan(&m.UserID, &m.Username, &m.Score); err != nil {
			return Group{}, err
		}
		g.Members = append(g.Members, m)
	}
	return g, rows.Err()
}

// Join adds the user; already a member is a no-op.
func (r *Repository) Join(ctx context.Context, groupID, userID string) error {
	if err := r.exists(ctx, groupID); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO group_members (group_id, user_id)
		VALUES ($1,$2)
		ON CONFLICT (group_id, user_id) DO NOTHING
	`, groupID, userID)
	return err
}

// Leave removes the user's membership.
func (r *Repository) Leave(ctx context.Context, groupID, userID string) error {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM group_members WHERE group_id = $1 AND user_id = $2
	`, groupID, userID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotMember
	}
	return nil
}

func (r *Repository) exists(ctx context.Context, groupID string) error {
	row := r.db.QueryRowContext(ctx, `SELECT 1 FROM groups WHERE id = $1`, groupID)
	var one int
	if err := row.Scan(&one); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}
	return nil
}
