package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/ent0n29/onesky/internal/platform"
)

const teamColumns = `t.id AS "ID", t.name AS "Name", t.description AS "Description",
	t.department AS "Department", t.capacity AS "Capacity", t.owner_user_id AS "OwnerUserID",
	t.join_code AS "JoinCode", t.is_active AS "IsActive", t.created_at AS "CreatedAt"`

// NewTeam is the input for CreateTeam.
type NewTeam struct {
	Name        string
	Description string
	Department  string
	Capacity    int
}

// AllTeams lists every active team, newest first.
func (s *Postgres) AllTeams(ctx context.Context) ([]platform.Record, error) {
	return s.queryRecords(ctx, "all teams",
		`SELECT `+teamColumns+`,
		        (SELECT COUNT(*) FROM team_members tm WHERE tm.team_id = t.id) AS "MemberCount"
		   FROM teams t WHERE t.is_active
		  ORDER BY t.created_at DESC, t.id DESC`)
}

// JoinedTeams lists the teams the user belongs to, with IsOwner set.
func (s *Postgres) JoinedTeams(ctx context.Context, email string) ([]platform.Record, error) {
	return s.queryRecords(ctx, "joined teams",
		`SELECT `+teamColumns+`, (t.owner_user_id = u.id) AS "IsOwner"
		   FROM teams t
		   JOIN team_members tm ON tm.team_id = t.id
		   JOIN users u ON u.id = tm.user_id
		  WHERE u.email=$1
		  ORDER BY tm.joined_at DESC`,
		normalizeEmail(email),
	)
}

// CreateTeam inserts a team owned by ownerID, adds the owner as its first
// member and returns the new row.
func (s *Postgres) CreateTeam(ctx context.Context, ownerID int64, in NewTeam) (platform.Record, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var teamID int64
	for attempt := 0; ; attempt++ {
		err = tx.QueryRow(ctx,
			`INSERT INTO teams (name, description, department, capacity, owner_user_id, join_code)
			 VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
			strings.TrimSpace(in.Name), in.Description, in.Department, in.Capacity, ownerID, NewJoinCode(),
		).Scan(&teamID)
		if err == nil {
			break
		}
		if !isUniqueViolation(err) || attempt >= 2 {
			return nil, fmt.Errorf("insert team: %w", err)
		}
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO team_members (team_id, user_id) VALUES ($1, $2)`, teamID, ownerID,
	); err != nil {
		return nil, fmt.Errorf("add team owner: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	return s.queryRecord(ctx, "team by id",
		`SELECT `+teamColumns+` FROM teams t WHERE t.id=$1`, teamID)
}

// NewJoinCode returns an eight character upper-case code.
func NewJoinCode() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}

// JoinTeam adds the user to the team when code matches its join code.
func (s *Postgres) JoinTeam(ctx context.Context, userID, teamID int64, code string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var (
		joinCode string
		capacity int64
		members  int64
	)
	err = tx.QueryRow(ctx,
		`SELECT t.join_code, t.capacity,
		        (SELECT COUNT(*) FROM team_members tm WHERE tm.team_id = t.id)
		   FROM teams t WHERE t.id=$1 AND t.is_active FOR UPDATE`,
		teamID,
	).Scan(&joinCode, &capacity, &members)
	if err != nil {
		if notFound(err) {
			return ErrNotFound
		}
		return fmt.Errorf("load team: %w", err)
	}
	if !strings.EqualFold(strings.TrimSpace(code), joinCode) {
		return ErrJoinCode
	}
	if capacity > 0 && members >= capacity {
		return fmt.Errorf("team %d is full: %w", teamID, ErrConflict)
	}

	tag, err := tx.Exec(ctx,
		`INSERT INTO team_members (team_id, user_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		teamID, userID,
	)
	if err != nil {
		return fmt.Errorf("join team: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("already a member of team %d: %w", teamID, ErrConflict)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// RegisterTeamForEvent signs a whole team up for an event. Only the team
// owner may do so.
func (s *Postgres) RegisterTeamForEvent(ctx context.Context, ownerID, teamID, eventID int64) error {
	var owner int64
	err := s.pool.QueryRow(ctx, `SELECT owner_user_id FROM teams WHERE id=$1`, teamID).Scan(&owner)
	if err != nil {
		if notFound(err) {
			return ErrNotFound
		}
		return fmt.Errorf("load team: %w", err)
	}
	if owner != ownerID {
		return fmt.Errorf("user %d does not own team %d: %w", ownerID, teamID, ErrConflict)
	}

	tag, err := s.pool.Exec(ctx,
		`INSERT INTO team_events (team_id, event_id)
		 SELECT $1, e.id FROM events e WHERE e.id=$2
		 ON CONFLICT DO NOTHING`,
		teamID, eventID,
	)
	if err != nil {
		return fmt.Errorf("register team for event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("team %d cannot register for event %d: %w", teamID, eventID, ErrConflict)
	}
	return nil
}

// TeamEvents lists upcoming events registered by any team the user belongs to.
func (s *Postgres) TeamEvents(ctx context.Context, email string) ([]platform.Record, error) {
	return s.queryRecords(ctx, "team events",
		`SELECT `+eventColumns+`, t.id AS "TeamID", t.name AS "TeamName"
		   FROM team_events te
		   JOIN events e ON e.id = te.event_id
		   JOIN teams t ON t.id = te.team_id
		   JOIN team_members tm ON tm.team_id = t.id
		   JOIN users u ON u.id = tm.user_id
		  WHERE u.email=$1 AND e.event_date >= CURRENT_DATE
		  ORDER BY e.event_date ASC, e.start_time ASC`,
		normalizeEmail(email),
	)
}
