package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

type User struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email,omitempty"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

type UserRepository struct {
	db *DB
}

func NewUserRepository(db *DB) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `id, username, COALESCE(email, ''), role, created_at`

// FindByIdentity returns the user whose username matches username, falling
// back to an email match. It returns (nil, nil) when neither matches.
func (r *UserRepository) FindByIdentity(ctx context.Context, username, email string) (*User, error) {
	if username != "" {
		u, err := r.GetByUsername(ctx, username)
		if err == nil || !errors.Is(err, ErrNotFound) {
			return u, err
		}
	}
	if email != "" {
		u, err := r.findOne(ctx, `SELECT `+userColumns+` FROM users WHERE email = ? ORDER BY created_at LIMIT 1`, email)
		if err == nil || !errors.Is(err, ErrNotFound) {
			return u, err
		}
	}
	return nil, nil
}

func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*User, error) {
	return r.findOne(ctx, `SELECT `+userColumns+` FROM users WHERE username = ?`, username)
}

func (r *UserRepository) findOne(ctx context.Context, query string, arg string) (*User, error) {
	var (
		u       User
		created int64
	)
	err := r.db.db.QueryRowContext(ctx, query, arg).Scan(&u.ID, &u.Username, &u.Email, &u.Role, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying user: %w", err)
	}
	u.CreatedAt = time.Unix(created, 0).UTC()
	return &u, nil
}

// Create inserts u, assigning an ID and creation time when unset.
func (r *UserRepository) Create(ctx context.Context, u *User) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.Role == "" {
		u.Role = RoleUser
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}

	var email any
	if u.Email != "" {
		email = u.Email
	}

	_, err := r.db.db.ExecContext(ctx,
		`INSERT INTO users (id, username, email, role, created_at) VALUES (?, ?, ?, ?, ?)`,
		u.ID, u.Username, email, u.Role, u.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("inserting user %s: %w", u.Username, err)
	}
	return nil
}

// EnsureAdmin creates username with the admin role unless a user by that name
// already exists. It reports whether a row was created.
func (r *UserRepository) EnsureAdmin(ctx context.Context, username string) (bool, error) {
	if username == "" {
		return false, nil
	}
	res, err := r.db.db.ExecContext(ctx,
		`INSERT INTO users (id, username, role, created_at) VALUES (?, ?, ?, ?) ON CONFLICT(username) DO NOTHING`,
		uuid.NewString(), username, RoleAdmin, time.Now().Unix(),
	)
	if err != nil {
		return false, fmt.Errorf("ensuring admin user %s: %w", username, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("ensuring admin user %s: %w", username, err)
	}
	return n > 0, nil
}
