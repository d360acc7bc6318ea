package store

import (
	"context"
	"fmt"
	"sort"

	"github.com/ent0n29/onesky/internal/platform"
)

// Score weights for the leaderboard.
const (
	hourWeight      = 10
	completedWeight = 5
	badgeWeight     = 20
)

// Score is the leaderboard score of one user.
func Score(hours float64, completed, badges int) float64 {
	return hourWeight*hours + completedWeight*float64(completed) + badgeWeight*float64(badges)
}

// Leaderboard ranks every user by score. limit <= 0 returns all rows.
func (s *Postgres) Leaderboard(ctx context.Context, limit int) ([]platform.LeaderboardEntry, error) {
	entries, err := s.leaderboardStats(ctx)
	if err != nil {
		return nil, err
	}
	ranked := rankEntries(entries)
	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked, nil
}

// RankOf returns the caller's leaderboard row.
func (s *Postgres) RankOf(ctx context.Context, userID int64) (platform.LeaderboardEntry, error) {
	entries, err := s.leaderboardStats(ctx)
	if err != nil {
		return platform.LeaderboardEntry{}, err
	}
	for _, e := range rankEntries(entries) {
		if e.UserID == userID {
			return e, nil
		}
	}
	return platform.LeaderboardEntry{}, ErrNotFound
}

func (s *Postgres) leaderboardStats(ctx context.Context) ([]platform.LeaderboardEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT u.id, u.first_name, u.last_name,
		        COALESCE(SUM(`+eventHours+`) FILTER (WHERE e.event_date < CURRENT_DATE), 0)::float8,
		        COUNT(e.id) FILTER (WHERE e.event_date < CURRENT_DATE),
		        (SELECT COUNT(*) FROM user_badges ub WHERE ub.user_id = u.id)
		   FROM users u
		   LEFT JOIN user_events ue ON ue.user_id = u.id
		   LEFT JOIN events e ON e.id = ue.event_id
		  GROUP BY u.id, u.first_name, u.last_name`)
	if err != nil {
		return nil, fmt.Errorf("leaderboard stats: %w", err)
	}
	defer rows.Close()

	var out []platform.LeaderboardEntry
	for rows.Next() {
		var (
			e                 platform.LeaderboardEntry
			completed, badges int64
		)
		if err := rows.Scan(&e.UserID, &e.FirstName, &e.LastName, &e.Hours, &completed, &badges); err != nil {
			return nil, fmt.Errorf("scan leaderboard row: %w", err)
		}
		e.Completed = int(completed)
		e.Badges = int(badges)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate leaderboard rows: %w", err)
	}
	return out, nil
}

// rankEntries scores and orders entries, assigning dense ranks. Equal scores
// share a rank and are ordered by user id.
func rankEntries(entries []platform.LeaderboardEntry) []platform.LeaderboardEntry {
	out := make([]platform.LeaderboardEntry, len(entries))
	copy(out, entries)
	for i := range out {
		out[i].Score = Score(out[i].Hours, out[i].Completed, out[i].Badges)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].UserID < out[j].UserID
	})
	rank := 0
	for i := range out {
		if i == 0 || out[i].Score != out[i-1].Score {
			rank++
		}
		out[i].Rank = rank
	}
	return out
}
