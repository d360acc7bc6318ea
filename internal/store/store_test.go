package store

import (
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/ent0n29/onesky/internal/platform"
	"github.com/ent0n29/onesky/internal/semantic"
)

func TestFilteredEventsQuery(t *testing.T) {
	from := time.Date(2026, 10, 17, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 10, 18, 0, 0, 0, 0, time.UTC)

	query, args := filteredEventsQuery(platform.EventFilter{
		Keyword:  " beach ",
		Location: "London",
		From:     &from,
		To:       &to,
		Limit:    10,
	})

	for _, want := range []string{
		"(e.title ILIKE $1 OR e.about ILIKE $1)",
		"LOWER(TRIM(e.location_city)) = LOWER($2)",
		"e.event_date >= $3",
		"e.event_date <= $4",
		"LIMIT $5",
	} {
		if !strings.Contains(query, want) {
			t.Fatalf("query missing %q:\n%s", want, query)
		}
	}
	if diff := cmp.Diff([]any{"%beach%", "London", from, to, 10}, args); diff != "" {
		t.Fatalf("args mismatch (-want +got):\n%s", diff)
	}
}

func TestFilteredEventsQueryWithoutFilters(t *testing.T) {
	query, args := filteredEventsQuery(platform.EventFilter{})
	if strings.Contains(query, "WHERE") || strings.Contains(query, "LIMIT") {
		t.Fatalf("unexpected clauses in %q", query)
	}
	if len(args) != 0 {
		t.Fatalf("args = %v, want none", args)
	}
}

func TestEmbeddingCandidatesQuery(t *testing.T) {
	query, args := embeddingCandidatesQuery(platform.EmbeddingQuery{Location: "Leeds"}, true)
	for _, want := range []string{"e.embedding IS NOT NULL", "LOWER($1)", "e.event_date >= CURRENT_DATE"} {
		if !strings.Contains(query, want) {
			t.Fatalf("query missing %q:\n%s", want, query)
		}
	}
	if len(args) != 1 {
		t.Fatalf("args = %v", args)
	}

	query, _ = embeddingCandidatesQuery(platform.EmbeddingQuery{}, false)
	if strings.Contains(query, "CURRENT_DATE") {
		t.Fatalf("small catalogue should not prefilter upcoming: %s", query)
	}
}

func TestOrderByRank(t *testing.T) {
	records := []platform.Record{{"ID": int64(1)}, {"ID": int64(2)}, {"ID": int64(3)}}
	ranked := []semantic.Scored[int64]{{Item: 3, Score: 0.9}, {Item: 1, Score: 0.4}, {Item: 9, Score: 0.3}}

	got := orderByRank(records, ranked)
	want := []platform.Record{
		{"ID": int64(3), "similarity_score": 0.9},
		{"ID": int64(1), "similarity_score": 0.4},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("orderByRank mismatch (-want +got):\n%s", diff)
	}
}

func TestPlainValue(t *testing.T) {
	cases := []struct {
		name string
		in   any
		want any
	}{
		{"time", pgtype.Time{Microseconds: int64(9*time.Hour+30*time.Minute) / 1000, Valid: true}, 9*time.Hour + 30*time.Minute},
		{"null time", pgtype.Time{}, nil},
		{"interval", pgtype.Interval{Days: 1, Microseconds: int64(time.Hour / time.Microsecond), Valid: true}, 25 * time.Hour},
		{"passthrough", "Brighton", "Brighton"},
	}
	for _, tc := range cases {
		if diff := cmp.Diff(tc.want, plainValue(tc.in)); diff != "" {
			t.Fatalf("%s: plainValue mismatch (-want +got):\n%s", tc.name, diff)
		}
	}
}

func TestRankEntriesDense(t *testing.T) {
	entries := []platform.LeaderboardEntry{
		{UserID: 4, Hours: 1},               // 10
		{UserID: 2, Completed: 2},           // 10
		{UserID: 1, Hours: 2, Badges: 1},    // 40
		{UserID: 3},                         // 0
		{UserID: 5, Completed: 1, Hours: 1}, // 15
	}
	got := rankEntries(entries)

	type row struct {
		UserID int64
		Rank   int
		Score  float64
	}
	var rows []row
	for _, e := range got {
		rows = append(rows, row{e.UserID, e.Rank, e.Score})
	}
	want := []row{{1, 1, 40}, {5, 2, 15}, {2, 3, 10}, {4, 3, 10}, {3, 4, 0}}
	if diff := cmp.Diff(want, rows); diff != "" {
		t.Fatalf("rankEntries mismatch (-want +got):\n%s", diff)
	}
	if entries[0].Rank != 0 {
		t.Fatalf("rankEntries must not mutate its input")
	}
}

func TestEmbeddingText(t *testing.T) {
	got := embeddingText("Beach clean", " ", "Environment", "outdoors, ocean", "Brighton")
	if got != "Beach clean. Environment. outdoors, ocean. Brighton" {
		t.Fatalf("embeddingText = %q", got)
	}
}

func TestNewJoinCode(t *testing.T) {
	code := NewJoinCode()
	if len(code) != 8 || strings.ToUpper(code) != code {
		t.Fatalf("NewJoinCode = %q", code)
	}
	if NewJoinCode() == code {
		t.Fatalf("join codes should differ")
	}
}
