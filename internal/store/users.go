package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/ent0n29/onesky/internal/platform"
)

// CreateUser inserts an account. A duplicate email yields ErrConflict.
func (s *Postgres) CreateUser(ctx context.Context, u platform.User) (platform.User, error) {
	u.Email = normalizeEmail(u.Email)
	err := s.pool.QueryRow(ctx,
		`INSERT INTO users (email, first_name, last_name, password_hash)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, created_at`,
		u.Email, u.FirstName, u.LastName, u.PasswordHash,
	).Scan(&u.ID, &u.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return platform.User{}, fmt.Errorf("email %q already registered: %w", u.Email, ErrConflict)
		}
		return platform.User{}, fmt.Errorf("create user: %w", err)
	}
	return u, nil
}

// Account returns the full account row, password hash included.
func (s *Postgres) Account(ctx context.Context, email string) (platform.User, error) {
	var u platform.User
	err := s.pool.QueryRow(ctx,
		`SELECT id, email, first_name, last_name, password_hash, created_at
		   FROM users WHERE email=$1`,
		normalizeEmail(email),
	).Scan(&u.ID, &u.Email, &u.FirstName, &u.LastName, &u.PasswordHash, &u.CreatedAt)
	if err != nil {
		if notFound(err) {
			return platform.User{}, ErrNotFound
		}
		return platform.User{}, fmt.Errorf("get account: %w", err)
	}
	return u, nil
}

func (s *Postgres) UserIDByEmail(ctx context.Context, email string) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx, `SELECT id FROM users WHERE email=$1`, normalizeEmail(email)).Scan(&id)
	if err != nil {
		if notFound(err) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("user id by email: %w", err)
	}
	return id, nil
}

// UserByEmail returns the public profile columns of one user.
func (s *Postgres) UserByEmail(ctx context.Context, email string) (platform.Record, error) {
	return s.queryRecord(ctx, "user by email",
		`SELECT id AS "ID", email AS "Email", first_name AS "FirstName", last_name AS "LastName"
		   FROM users WHERE email=$1`,
		normalizeEmail(email),
	)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
