// Package gamification awards activity badges and reports progress towards
// them.
package gamification

import (
	"context"
	"errors"
	"fmt"

	"github.com/ent0n29/onesky/internal/logging"
	"github.com/ent0n29/onesky/internal/observability"
	"github.com/ent0n29/onesky/internal/platform"
	"github.com/ent0n29/onesky/internal/store"
)

// Source is the data the badge rules read and the award they write.
type Source interface {
	UpcomingEventsCount(ctx context.Context, userID int64) (int, error)
	CompletedEventsCount(ctx context.Context, userID int64) (int, error)
	TotalHours(ctx context.Context, userID int64) (float64, error)
	CompletedWeekendEvent(ctx context.Context, userID int64) (bool, error)
	BadgeByName(ctx context.Context, name string) (platform.Record, error)
	AwardBadge(ctx context.Context, userID, badgeID int64) (bool, error)
}

// Activity is the per-user input to the badge rules.
type Activity struct {
	Upcoming     int
	Completed    int
	Hours        float64
	WeekendEvent bool
}

// Rule is one badge and the condition that earns it.
type Rule struct {
	Key      string
	Badge    string
	Required float64
	current  func(Activity) float64
}

func (r Rule) Current(a Activity) float64 {
	return r.current(a)
}

func (r Rule) Earned(a Activity) bool {
	return r.current(a) >= r.Required
}

func boolCount(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// Rules lists every badge rule in award order.
var Rules = []Rule{
	{Key: "event_starter", Badge: "Event Starter", Required: 1, current: func(a Activity) float64 { return float64(a.Upcoming) }},
	{Key: "event_enthusiast", Badge: "Event Enthusiast", Required: 5, current: func(a Activity) float64 { return float64(a.Upcoming) }},
	{Key: "first_step", Badge: "First Step", Required: 1, current: func(a Activity) float64 { return float64(a.Completed) }},
	{Key: "volunteer_veteran", Badge: "Volunteer Veteran", Required: 10, current: func(a Activity) float64 { return float64(a.Completed) }},
	{Key: "marathon_helper", Badge: "Marathon Helper", Required: 20, current: func(a Activity) float64 { return a.Hours }},
	{Key: "weekend_warrior", Badge: "Weekend Warrior", Required: 1, current: func(a Activity) float64 { return boolCount(a.WeekendEvent) }},
}

// RuleProgress is the state of one rule for a user.
type RuleProgress struct {
	Required float64 `json:"required"`
	Current  float64 `json:"current"`
	Earned   bool    `json:"earned"`
}

// Progress is the badge progress report served to the client.
type Progress struct {
	UpcomingEvents  int                     `json:"upcoming_events"`
	CompletedEvents int                     `json:"completed_events"`
	TotalHours      float64                 `json:"total_hours"`
	HasWeekendEvent bool                    `json:"has_weekend_event"`
	BadgeProgress   map[string]RuleProgress `json:"badge_progress"`
}

type Service struct {
	source  Source
	metrics *observability.Metrics
}

func NewService(source Source, metrics *observability.Metrics) *Service {
	return &Service{source: source, metrics: metrics}
}

// Activity loads the counters the rules depend on.
func (s *Service) Activity(ctx context.Context, userID int64) (Activity, error) {
	var (
		a   Activity
		err error
	)
	if a.Upcoming, err = s.source.UpcomingEventsCount(ctx, userID); err != nil {
		return Activity{}, err
	}
	if a.Completed, err = s.source.CompletedEventsCount(ctx, userID); err != nil {
		return Activity{}, err
	}
	if a.Hours, err = s.source.TotalHours(ctx, userID); err != nil {
		return Activity{}, err
	}
	if a.WeekendEvent, err = s.source.CompletedWeekendEvent(ctx, userID); err != nil {
		return Activity{}, err
	}
	return a, nil
}

// Award grants every earned badge the user does not hold yet and returns
// the newly awarded badges. Badges missing from the catalogue are skipped.
func (s *Service) Award(ctx context.Context, userID int64) ([]platform.Record, error) {
	activity, err := s.Activity(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load activity: %w", err)
	}

	log := logging.Component("gamification")
	var awarded []platform.Record
	for _, rule := range Rules {
		if !rule.Earned(activity) {
			continue
		}
		badge, err := s.source.BadgeByName(ctx, rule.Badge)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				log.Warn().Str("badge", rule.Badge).Msg("badge missing from catalogue")
				continue
			}
			return awarded, fmt.Errorf("load badge %q: %w", rule.Badge, err)
		}
		badgeID, ok := badge.ID()
		if !ok {
			continue
		}
		isNew, err := s.source.AwardBadge(ctx, userID, badgeID)
		if err != nil {
			return awarded, err
		}
		if isNew {
			awarded = append(awarded, badge)
			s.metrics.ObserveBadgeAwarded()
			log.Info().Int64("user_id", userID).Str("badge", rule.Badge).Msg("badge awarded")
		}
	}
	return awarded, nil
}

// Progress reports required/current/earned per rule.
func (s *Service) Progress(ctx context.Context, userID int64) (Progress, error) {
	activity, err := s.Activity(ctx, userID)
	if err != nil {
		return Progress{}, fmt.Errorf("load activity: %w", err)
	}
	out := Progress{
		UpcomingEvents:  activity.Upcoming,
		CompletedEvents: activity.Completed,
		TotalHours:      activity.Hours,
		HasWeekendEvent: activity.WeekendEvent,
		BadgeProgress:   make(map[string]RuleProgress, len(Rules)),
	}
	for _, rule := range Rules {
		out.BadgeProgress[rule.Key] = RuleProgress{
			Required: rule.Required,
			Current:  rule.Current(activity),
			Earned:   rule.Earned(activity),
		}
	}
	return out, nil
}
