// Package store is the PostgreSQL data layer behind the HTTP API and the
// chat assistant.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ent0n29/onesky/internal/platform"
)

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
	// ErrJoinCode is returned when a team join code does not match.
	ErrJoinCode = errors.New("join code does not match")
)

// Postgres implements every data-access method the service uses.
type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(ctx context.Context, databaseURL string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, strings.TrimSpace(databaseURL))
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &Postgres{pool: pool}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id BIGSERIAL PRIMARY KEY,
			email TEXT NOT NULL UNIQUE,
			first_name TEXT NOT NULL DEFAULT '',
			last_name TEXT NOT NULL DEFAULT '',
			password_hash TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE TABLE IF NOT EXISTS events (
			id BIGSERIAL PRIMARY KEY,
			title TEXT NOT NULL,
			about TEXT NOT NULL DEFAULT '',
			event_date DATE NOT NULL,
			start_time TIME NOT NULL,
			end_time TIME NOT NULL,
			location_city TEXT NOT NULL DEFAULT '',
			address TEXT NOT NULL DEFAULT '',
			capacity INTEGER NOT NULL DEFAULT 0,
			cause_name TEXT NOT NULL DEFAULT '',
			tag_names TEXT NOT NULL DEFAULT '',
			embedding REAL[] NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_events_date ON events (event_date);`,
		`CREATE INDEX IF NOT EXISTS idx_events_city ON events (LOWER(TRIM(location_city)));`,
		`CREATE TABLE IF NOT EXISTS user_events (
			user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			event_id BIGINT NOT NULL REFERENCES events(id) ON DELETE CASCADE,
			registered_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (user_id, event_id)
		);`,
		`CREATE TABLE IF NOT EXISTS teams (
			id BIGSERIAL PRIMARY KEY,
			name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			department TEXT NOT NULL DEFAULT '',
			capacity INTEGER NOT NULL DEFAULT 0,
			owner_user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			join_code TEXT NOT NULL UNIQUE,
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE TABLE IF NOT EXISTS team_members (
			team_id BIGINT NOT NULL REFERENCES teams(id) ON DELETE CASCADE,
			user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			joined_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (team_id, user_id)
		);`,
		`CREATE TABLE IF NOT EXISTS team_events (
			team_id BIGINT NOT NULL REFERENCES teams(id) ON DELETE CASCADE,
			event_id BIGINT NOT NULL REFERENCES events(id) ON DELETE CASCADE,
			registered_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (team_id, event_id)
		);`,
		`CREATE TABLE IF NOT EXISTS badges (
			id BIGSERIAL PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			description TEXT NOT NULL DEFAULT '',
			icon_url TEXT NOT NULL DEFAULT ''
		);`,
		`CREATE TABLE IF NOT EXISTS user_badges (
			user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			badge_id BIGINT NOT NULL REFERENCES badges(id) ON DELETE CASCADE,
			awarded_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (user_id, badge_id)
		);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}

	for _, b := range seedBadges {
		if _, err := pool.Exec(ctx,
			`INSERT INTO badges (name, description, icon_url) VALUES ($1, $2, $3)
			 ON CONFLICT (name) DO NOTHING`,
			b.name, b.description, b.icon,
		); err != nil {
			return fmt.Errorf("seed badge %q: %w", b.name, err)
		}
	}
	return nil
}

var seedBadges = []struct {
	name        string
	description string
	icon        string
}{
	{"Event Starter", "Registered for your first upcoming event.", "/badges/event-starter.svg"},
	{"Event Enthusiast", "Registered for five upcoming events.", "/badges/event-enthusiast.svg"},
	{"First Step", "Completed your first volunteering event.", "/badges/first-step.svg"},
	{"Volunteer Veteran", "Completed ten volunteering events.", "/badges/volunteer-veteran.svg"},
	{"Marathon Helper", "Volunteered for twenty hours or more.", "/badges/marathon-helper.svg"},
	{"Weekend Warrior", "Completed an event on a weekend.", "/badges/weekend-warrior.svg"},
}

// Ping reports whether the database is reachable.
func (s *Postgres) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Postgres) Close() error {
	s.pool.Close()
	return nil
}

func (s *Postgres) queryRecords(ctx context.Context, op, query string, args ...any) ([]platform.Record, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	records, err := collectRecords(rows)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return records, nil
}

func (s *Postgres) queryRecord(ctx context.Context, op, query string, args ...any) (platform.Record, error) {
	records, err := s.queryRecords(ctx, op, query, args...)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, ErrNotFound
	}
	return records[0], nil
}

func (s *Postgres) queryInt(ctx context.Context, op, query string, args ...any) (int, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return int(n), nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func notFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
