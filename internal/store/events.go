package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/ent0n29/onesky/internal/platform"
	"github.com/ent0n29/onesky/internal/semantic"
)

const eventColumns = `e.id AS "ID", e.title AS "Title", e.about AS "About", e.event_date AS "Date",
	e.start_time AS "StartTime", e.end_time AS "EndTime", e.location_city AS "LocationCity",
	e.address AS "Address", e.capacity AS "Capacity", e.cause_name AS "CauseName",
	e.tag_names AS "TagNames"`

// eventHours is the duration of an event in hours.
const eventHours = `EXTRACT(EPOCH FROM (e.end_time - e.start_time)) / 3600.0`

// whereBuilder collects AND-ed conditions with positional arguments.
type whereBuilder struct {
	conds []string
	args  []any
}

func (w *whereBuilder) add(cond string, arg any) {
	w.args = append(w.args, arg)
	w.conds = append(w.conds, strings.ReplaceAll(cond, "?", fmt.Sprintf("$%d", len(w.args))))
}

func (w *whereBuilder) addRaw(cond string) {
	w.conds = append(w.conds, cond)
}

func (w *whereBuilder) String() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

func (w *whereBuilder) dateRange(from, to *time.Time) {
	if from != nil {
		w.add("e.event_date >= ?", *from)
	}
	if to != nil {
		w.add("e.event_date <= ?", *to)
	}
}

func (w *whereBuilder) location(city string) {
	if city = strings.TrimSpace(city); city != "" {
		w.add("LOWER(TRIM(e.location_city)) = LOWER(?)", city)
	}
}

func filteredEventsQuery(f platform.EventFilter) (string, []any) {
	var w whereBuilder
	if kw := strings.TrimSpace(f.Keyword); kw != "" {
		w.add("(e.title ILIKE ? OR e.about ILIKE ?)", "%"+kw+"%")
	}
	w.location(f.Location)
	w.dateRange(f.From, f.To)

	query := "SELECT " + eventColumns + " FROM events e" + w.String() +
		" ORDER BY e.event_date ASC, e.start_time ASC"
	if f.Limit > 0 {
		w.args = append(w.args, f.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(w.args))
	}
	return query, w.args
}

// FilteredEvents is the literal event search: keyword substring on title or
// description, exact city, inclusive date range.
func (s *Postgres) FilteredEvents(ctx context.Context, f platform.EventFilter) ([]platform.Record, error) {
	query, args := filteredEventsQuery(f)
	return s.queryRecords(ctx, "filtered events", query, args...)
}

func (s *Postgres) EventByID(ctx context.Context, id int64) (platform.Record, error) {
	return s.queryRecord(ctx, "event by id",
		`SELECT `+eventColumns+`,
		        (SELECT COUNT(*) FROM user_events ue WHERE ue.event_id = e.id) AS "Registered"
		   FROM events e WHERE e.id=$1`,
		id,
	)
}

// Locations lists the distinct event cities, sorted.
func (s *Postgres) Locations(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT DISTINCT TRIM(location_city) AS city FROM events
		  WHERE TRIM(location_city) <> '' ORDER BY city`)
	if err != nil {
		return nil, fmt.Errorf("list locations: %w", err)
	}
	cities, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("list locations: %w", err)
	}
	return cities, nil
}

func (s *Postgres) UpcomingEvents(ctx context.Context, userID int64, limit int) ([]platform.Record, error) {
	if limit <= 0 {
		limit = 5
	}
	return s.queryRecords(ctx, "upcoming events",
		`SELECT `+eventColumns+`
		   FROM events e JOIN user_events ue ON ue.event_id = e.id
		  WHERE ue.user_id=$1 AND e.event_date >= CURRENT_DATE
		  ORDER BY e.event_date ASC, e.start_time ASC
		  LIMIT $2`,
		userID, limit,
	)
}

func (s *Postgres) CompletedEvents(ctx context.Context, userID int64, limit int) ([]platform.Record, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.queryRecords(ctx, "completed events",
		`SELECT `+eventColumns+`, (`+eventHours+`)::float8 AS "Hours"
		   FROM events e JOIN user_events ue ON ue.event_id = e.id
		  WHERE ue.user_id=$1 AND e.event_date < CURRENT_DATE
		  ORDER BY e.event_date DESC, e.start_time DESC
		  LIMIT $2`,
		userID, limit,
	)
}

func (s *Postgres) UpcomingEventsCount(ctx context.Context, userID int64) (int, error) {
	return s.queryInt(ctx, "count upcoming events",
		`SELECT COUNT(*) FROM user_events ue JOIN events e ON e.id = ue.event_id
		  WHERE ue.user_id=$1 AND e.event_date >= CURRENT_DATE`,
		userID,
	)
}

func (s *Postgres) CompletedEventsCount(ctx context.Context, userID int64) (int, error) {
	return s.queryInt(ctx, "count completed events",
		`SELECT COUNT(*) FROM user_events ue JOIN events e ON e.id = ue.event_id
		  WHERE ue.user_id=$1 AND e.event_date < CURRENT_DATE`,
		userID,
	)
}

// TotalHours sums the length of the user's completed events.
func (s *Postgres) TotalHours(ctx context.Context, userID int64) (float64, error) {
	var hours float64
	err := s.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(`+eventHours+`), 0)::float8
		   FROM user_events ue JOIN events e ON e.id = ue.event_id
		  WHERE ue.user_id=$1 AND e.event_date < CURRENT_DATE`,
		userID,
	).Scan(&hours)
	if err != nil {
		return 0, fmt.Errorf("total hours: %w", err)
	}
	return hours, nil
}

// CompletedWeekendEvent reports whether the user attended a past event held
// on a Saturday or Sunday.
func (s *Postgres) CompletedWeekendEvent(ctx context.Context, userID int64) (bool, error) {
	var ok bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM user_events ue JOIN events e ON e.id = ue.event_id
			 WHERE ue.user_id=$1 AND e.event_date < CURRENT_DATE
			   AND EXTRACT(ISODOW FROM e.event_date) IN (6, 7))`,
		userID,
	).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("weekend event check: %w", err)
	}
	return ok, nil
}

// UserEventIDs lists the events the user is registered for.
func (s *Postgres) UserEventIDs(ctx context.Context, email string) ([]int64, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT ue.event_id FROM user_events ue JOIN users u ON u.id = ue.user_id
		  WHERE u.email=$1`,
		normalizeEmail(email),
	)
	if err != nil {
		return nil, fmt.Errorf("user event ids: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, fmt.Errorf("user event ids: %w", err)
	}
	return ids, nil
}

// RegisterForEvent signs a user up. Unknown events yield ErrNotFound; a
// repeated or over-capacity registration yields ErrConflict.
func (s *Postgres) RegisterForEvent(ctx context.Context, userID, eventID int64) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var capacity, registered int64
	err = tx.QueryRow(ctx,
		`SELECT e.capacity, (SELECT COUNT(*) FROM user_events ue WHERE ue.event_id = e.id)
		   FROM events e WHERE e.id=$1 FOR UPDATE`,
		eventID,
	).Scan(&capacity, &registered)
	if err != nil {
		if notFound(err) {
			return ErrNotFound
		}
		return fmt.Errorf("load event: %w", err)
	}
	if capacity > 0 && registered >= capacity {
		return fmt.Errorf("event %d is full: %w", eventID, ErrConflict)
	}

	tag, err := tx.Exec(ctx,
		`INSERT INTO user_events (user_id, event_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		userID, eventID,
	)
	if err != nil {
		return fmt.Errorf("register for event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("already registered for event %d: %w", eventID, ErrConflict)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

type embeddedEvent struct {
	ID        int64
	Embedding []float32
}

// SearchEventsWithEmbeddings ranks stored event embeddings against vector and
// returns the matching events best first, each with a similarity_score.
func (s *Postgres) SearchEventsWithEmbeddings(ctx context.Context, vector []float32, q platform.EmbeddingQuery) ([]platform.Record, error) {
	if len(vector) == 0 {
		return nil, nil
	}

	embedded, err := s.queryInt(ctx, "count embedded events",
		`SELECT COUNT(*) FROM events WHERE embedding IS NOT NULL`)
	if err != nil {
		return nil, err
	}

	query, args := embeddingCandidatesQuery(q, embedded > semantic.UpcomingPrefilterSize)
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("embedding candidates: %w", err)
	}
	candidates, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (semantic.Candidate[int64], error) {
		var ev embeddedEvent
		err := row.Scan(&ev.ID, &ev.Embedding)
		return semantic.Candidate[int64]{Item: ev.ID, Embedding: ev.Embedding}, err
	})
	if err != nil {
		return nil, fmt.Errorf("embedding candidates: %w", err)
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 10
	}
	ranked := semantic.Rank(vector, candidates, q.Threshold, limit)
	if len(ranked) == 0 {
		return nil, nil
	}

	ids := make([]int64, 0, len(ranked))
	for _, r := range ranked {
		ids = append(ids, r.Item)
	}
	records, err := s.queryRecords(ctx, "ranked events",
		`SELECT `+eventColumns+` FROM events e WHERE e.id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	return orderByRank(records, ranked), nil
}

func embeddingCandidatesQuery(q platform.EmbeddingQuery, upcomingOnly bool) (string, []any) {
	var w whereBuilder
	w.addRaw("e.embedding IS NOT NULL")
	w.location(q.Location)
	w.dateRange(q.From, q.To)
	if upcomingOnly {
		w.addRaw("e.event_date >= CURRENT_DATE")
	}
	return "SELECT e.id, e.embedding FROM events e" + w.String(), w.args
}

func orderByRank(records []platform.Record, ranked []semantic.Scored[int64]) []platform.Record {
	byID := make(map[int64]platform.Record, len(records))
	for _, r := range records {
		if id, ok := r.ID(); ok {
			byID[id] = r
		}
	}
	out := make([]platform.Record, 0, len(ranked))
	for _, r := range ranked {
		rec, ok := byID[r.Item]
		if !ok {
			continue
		}
		rec["similarity_score"] = r.Score
		out = append(out, rec)
	}
	return out
}

// EventsForEmbedding returns the text to embed for events without a vector,
// or for every event when all is set.
func (s *Postgres) EventsForEmbedding(ctx context.Context, all bool) ([]platform.EmbeddingJob, error) {
	query := `SELECT id, title, about, cause_name, tag_names, location_city FROM events`
	if !all {
		query += ` WHERE embedding IS NULL`
	}
	rows, err := s.pool.Query(ctx, query+` ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("events for embedding: %w", err)
	}
	jobs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (platform.EmbeddingJob, error) {
		var (
			job                                 platform.EmbeddingJob
			title, about, cause, tags, location string
		)
		err := row.Scan(&job.EventID, &title, &about, &cause, &tags, &location)
		job.Text = embeddingText(title, about, cause, tags, location)
		return job, err
	})
	if err != nil {
		return nil, fmt.Errorf("events for embedding: %w", err)
	}
	return jobs, nil
}

func embeddingText(parts ...string) string {
	kept := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, ". ")
}

func (s *Postgres) StoreEventEmbedding(ctx context.Context, eventID int64, vector []float32) error {
	tag, err := s.pool.Exec(ctx, `UPDATE events SET embedding=$2 WHERE id=$1`, eventID, vector)
	if err != nil {
		return fmt.Errorf("store event embedding: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
