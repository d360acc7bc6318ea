package store

import (
	"context"
	"fmt"

	"github.com/ent0n29/onesky/internal/platform"
)

const badgeColumns = `b.id AS "ID", b.name AS "Name", b.description AS "Description", b.icon_url AS "IconURL"`

func (s *Postgres) AllBadges(ctx context.Context) ([]platform.Record, error) {
	return s.queryRecords(ctx, "all badges",
		`SELECT `+badgeColumns+` FROM badges b ORDER BY b.id`)
}

func (s *Postgres) UserBadges(ctx context.Context, userID int64) ([]platform.Record, error) {
	return s.queryRecords(ctx, "user badges",
		`SELECT `+badgeColumns+`, ub.awarded_at AS "AwardedAt"
		   FROM badges b JOIN user_badges ub ON ub.badge_id = b.id
		  WHERE ub.user_id=$1
		  ORDER BY ub.awarded_at, b.id`,
		userID,
	)
}

func (s *Postgres) BadgeByName(ctx context.Context, name string) (platform.Record, error) {
	return s.queryRecord(ctx, "badge by name",
		`SELECT `+badgeColumns+` FROM badges b WHERE b.name=$1`, name)
}

// AwardBadge grants the badge and reports whether it was newly awarded.
func (s *Postgres) AwardBadge(ctx context.Context, userID, badgeID int64) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO user_badges (user_id, badge_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		userID, badgeID,
	)
	if err != nil {
		return false, fmt.Errorf("award badge: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}
