package assistant

import (
	"context"
	"fmt"

	"github.com/ent0n29/onesky/internal/platform"
	"github.com/ent0n29/onesky/internal/semantic"
)

// DataAccess is the read side of the platform store used by capabilities.
type DataAccess interface {
	semantic.EventSource

	UserIDByEmail(ctx context.Context, email string) (int64, error)
	UserByEmail(ctx context.Context, email string) (platform.Record, error)
	UpcomingEvents(ctx context.Context, userID int64, limit int) ([]platform.Record, error)
	CompletedEvents(ctx context.Context, userID int64, limit int) ([]platform.Record, error)
	UserEventIDs(ctx context.Context, email string) ([]int64, error)
	JoinedTeams(ctx context.Context, email string) ([]platform.Record, error)
	AllTeams(ctx context.Context) ([]platform.Record, error)
	UserBadges(ctx context.Context, userID int64) ([]platform.Record, error)
	AllBadges(ctx context.Context) ([]platform.Record, error)
	TotalHours(ctx context.Context, userID int64) (float64, error)
	CompletedEventsCount(ctx context.Context, userID int64) (int, error)
	UpcomingEventsCount(ctx context.Context, userID int64) (int, error)
	TeamEvents(ctx context.Context, email string) ([]platform.Record, error)
}

const (
	defaultUpcomingLimit  = 5
	defaultCompletedLimit = 50
	defaultSearchLimit    = 10
	listTeamsLimit        = 10
)

// caller is who a capability runs for. userID is 0 when unknown.
type caller struct {
	identity string
	userID   int64
}

type handler func(ctx context.Context, r *Router, c caller, args Arguments) (Result, error)

var handlers = map[Capability]handler{
	CapUpcomingEvents:  upcomingEvents,
	CapCompletedEvents: completedEvents,
	CapSearchEvents:    searchEvents,
	CapMyTeams:         myTeams,
	CapListTeams:       listTeams,
	CapMyBadges:        myBadges,
	CapAvailableBadges: availableBadges,
	CapMyStats:         myStats,
	CapMyTeamEvents:    myTeamEvents,
}

func empty(kind Kind) Result {
	return Result{Kind: kind, Data: []platform.Record{}}
}

func upcomingEvents(ctx context.Context, r *Router, c caller, args Arguments) (Result, error) {
	if c.userID == 0 {
		return empty(KindEvents), nil
	}
	recs, err := r.data.UpcomingEvents(ctx, c.userID, args.Int("limit", defaultUpcomingLimit))
	if err != nil {
		return Result{}, err
	}
	return Result{Kind: KindEvents, Data: normalizeAll(recs, NormalizeEvent)}, nil
}

func completedEvents(ctx context.Context, r *Router, c caller, args Arguments) (Result, error) {
	if c.userID == 0 {
		return empty(KindEvents), nil
	}
	recs, err := r.data.CompletedEvents(ctx, c.userID, args.Int("limit", defaultCompletedLimit))
	if err != nil {
		return Result{}, err
	}
	return Result{Kind: KindEvents, Data: normalizeAll(recs, NormalizeEvent)}, nil
}

func searchEvents(ctx context.Context, r *Router, c caller, args Arguments) (Result, error) {
	from, to := resolveDateRange(args.String("start_date"), args.String("end_date"), r.now())
	limit := args.Int("limit", defaultSearchLimit)

	recs, path, err := r.search.Search(ctx, semantic.Query{
		Keyword:  args.String("keyword"),
		Location: args.String("location"),
		Filter:   platform.EventFilter{From: from, To: to},
		Limit:    limit,
		Literal:  !args.Bool("use_semantic", true),
	})
	if err != nil {
		return Result{}, err
	}
	r.log.Debug().Str("path", string(path)).Int("results", len(recs)).Msg("event search")

	if c.identity != "" && len(recs) > 0 {
		ids, err := r.data.UserEventIDs(ctx, c.identity)
		if err != nil {
			r.log.Warn().Err(err).Msg("registered events lookup failed; not filtering")
		} else {
			recs = excludeIDs(recs, ids)
		}
	}
	if len(recs) > limit {
		recs = recs[:limit]
	}
	return Result{Kind: KindEvents, Data: normalizeAll(recs, NormalizeEvent)}, nil
}

func excludeIDs(recs []platform.Record, ids []int64) []platform.Record {
	if len(ids) == 0 {
		return recs
	}
	skip := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		skip[id] = struct{}{}
	}
	out := make([]platform.Record, 0, len(recs))
	for _, rec := range recs {
		if id, ok := rec.ID(); ok {
			if _, found := skip[id]; found {
				continue
			}
		}
		out = append(out, rec)
	}
	return out
}

func excludeRecords(recs, drop []platform.Record) []platform.Record {
	ids := make([]int64, 0, len(drop))
	for id := range platform.IDs(drop) {
		ids = append(ids, id)
	}
	return excludeIDs(recs, ids)
}

func teamNormalizer(userID int64) func(platform.Record) platform.Record {
	return func(rec platform.Record) platform.Record {
		return NormalizeTeam(rec, userID)
	}
}

func myTeams(ctx context.Context, r *Router, c caller, _ Arguments) (Result, error) {
	if c.identity == "" {
		return empty(KindTeams), nil
	}
	recs, err := r.data.JoinedTeams(ctx, c.identity)
	if err != nil {
		return Result{}, err
	}
	return Result{Kind: KindTeams, Data: normalizeAll(recs, teamNormalizer(c.userID))}, nil
}

func listTeams(ctx context.Context, r *Router, c caller, _ Arguments) (Result, error) {
	recs, err := r.data.AllTeams(ctx)
	if err != nil {
		return Result{}, err
	}
	if c.identity != "" {
		joined, err := r.data.JoinedTeams(ctx, c.identity)
		if err != nil {
			r.log.Warn().Err(err).Msg("joined teams lookup failed; not filtering")
		} else {
			recs = excludeRecords(recs, joined)
		}
	}
	out := normalizeAll(recs, teamNormalizer(c.userID))
	if len(out) > listTeamsLimit {
		out = out[:listTeamsLimit]
	}
	return Result{Kind: KindTeams, Data: out}, nil
}

func myBadges(ctx context.Context, r *Router, c caller, _ Arguments) (Result, error) {
	if c.userID == 0 {
		return empty(KindBadges), nil
	}
	recs, err := r.data.UserBadges(ctx, c.userID)
	if err != nil {
		return Result{}, err
	}
	return Result{Kind: KindBadges, Data: normalizeAll(recs, NormalizeBadge)}, nil
}

func availableBadges(ctx context.Context, r *Router, c caller, _ Arguments) (Result, error) {
	if c.userID == 0 {
		return empty(KindBadges), nil
	}
	all, err := r.data.AllBadges(ctx)
	if err != nil {
		return Result{}, err
	}
	held, err := r.data.UserBadges(ctx, c.userID)
	if err != nil {
		return Result{}, err
	}
	notEarned := make([]platform.Record, 0, len(all))
	heldIDs := platform.IDs(held)
	for _, b := range all {
		id, ok := b.ID()
		if !ok {
			continue
		}
		if _, found := heldIDs[id]; found {
			continue
		}
		notEarned = append(notEarned, NormalizeBadge(b))
	}
	return Result{Kind: KindBadges, Data: notEarned}, nil
}

func myStats(ctx context.Context, r *Router, c caller, _ Arguments) (Result, error) {
	if c.userID == 0 {
		return Result{Kind: KindImpact, Data: map[string]any{}}, nil
	}
	var (
		stats platform.Stats
		err   error
	)
	if stats.TotalHours, err = r.data.TotalHours(ctx, c.userID); err != nil {
		return Result{}, err
	}
	if stats.CompletedEvents, err = r.data.CompletedEventsCount(ctx, c.userID); err != nil {
		return Result{}, err
	}
	if stats.UpcomingEvents, err = r.data.UpcomingEventsCount(ctx, c.userID); err != nil {
		return Result{}, err
	}
	badges, err := r.data.UserBadges(ctx, c.userID)
	if err != nil {
		return Result{}, fmt.Errorf("count badges: %w", err)
	}
	stats.BadgesCount = len(badges)
	return Result{Kind: KindImpact, Data: stats}, nil
}

func myTeamEvents(ctx context.Context, r *Router, c caller, _ Arguments) (Result, error) {
	if c.identity == "" {
		return empty(KindTeamEvents), nil
	}
	recs, err := r.data.TeamEvents(ctx, c.identity)
	if err != nil {
		return Result{}, err
	}
	return Result{Kind: KindTeamEvents, Data: normalizeAll(recs, NormalizeEvent)}, nil
}
