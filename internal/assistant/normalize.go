package assistant

import (
	"fmt"
	"time"

	"github.com/ent0n29/onesky/internal/platform"
)

var eventAliases = [][2]string{
	{"ID", "id"},
	{"Title", "title"},
	{"LocationCity", "location"},
	{"Capacity", "capacity"},
}

var teamAliases = [][2]string{
	{"ID", "id"},
	{"Name", "name"},
	{"JoinCode", "join_code"},
}

// dateKeys hold calendar days rather than instants.
var dateKeys = map[string]bool{"Date": true, "date": true}

func addAliases(r platform.Record, aliases [][2]string) {
	for _, a := range aliases {
		if v, ok := r[a[0]]; ok {
			if _, exists := r[a[1]]; !exists {
				r[a[1]] = v
			}
		}
	}
}

// NormalizeEvent returns a copy of rec with lower-case aliases and every
// date, time or duration value rendered as a string.
func NormalizeEvent(rec platform.Record) platform.Record {
	out := rec.Clone()
	addAliases(out, eventAliases)
	for k, v := range out {
		switch t := v.(type) {
		case time.Time:
			if dateKeys[k] {
				out[k] = t.Format(isoDate)
			} else {
				out[k] = t.Format(time.RFC3339)
			}
		case time.Duration:
			out[k] = formatClock(t)
		}
	}
	return out
}

// formatClock renders d as H:MM:SS.
func formatClock(d time.Duration) string {
	sign := ""
	if d < 0 {
		sign = "-"
		d = -d
	}
	total := int64(d / time.Second)
	return fmt.Sprintf("%s%d:%02d:%02d", sign, total/3600, total/60%60, total%60)
}

// NormalizeTeam returns a copy of rec with lower-case aliases and is_owner
// resolved. userID <= 0 means the caller is unknown.
func NormalizeTeam(rec platform.Record, userID int64) platform.Record {
	out := rec.Clone()
	addAliases(out, teamAliases)
	if _, ok := out["is_owner"]; ok {
		return out
	}
	if owner, ok := out["IsOwner"].(bool); ok {
		out["is_owner"] = owner
		return out
	}
	if userID > 0 {
		if owner, ok := platform.AsInt64(out["OwnerUserID"]); ok {
			out["is_owner"] = owner == userID
			return out
		}
	}
	out["is_owner"] = false
	return out
}

// NormalizeBadge returns a copy of rec with an id alias.
func NormalizeBadge(rec platform.Record) platform.Record {
	out := rec.Clone()
	addAliases(out, eventAliases[:1])
	return out
}

func normalizeAll(recs []platform.Record, fn func(platform.Record) platform.Record) []platform.Record {
	out := make([]platform.Record, 0, len(recs))
	for _, r := range recs {
		out = append(out, fn(r))
	}
	return out
}

// merger folds capability results into per-kind buffers and the detected
// category.
type merger struct {
	events     []platform.Record
	teams      []platform.Record
	badges     []platform.Record
	teamEvents []platform.Record
	detected   Kind
}

func newMerger() *merger {
	return &merger{detected: KindGeneral}
}

// add merges one result. events, teams and badges replace both their buffer
// and the detected category; impact only replaces general or impact;
// team_events fills its buffer without touching the category.
func (m *merger) add(r Result) {
	recs, _ := r.Data.([]platform.Record)
	switch r.Kind {
	case KindEvents:
		m.events = recs
		m.detected = KindEvents
	case KindTeams:
		m.teams = recs
		m.detected = KindTeams
	case KindBadges:
		m.badges = recs
		m.detected = KindBadges
	case KindTeamEvents:
		m.teamEvents = recs
	case KindImpact:
		if m.detected == KindGeneral || m.detected == KindImpact {
			m.detected = KindImpact
		}
	}
}

// category applies the presence override: non-empty events, then teams,
// then badges, else the detected kind.
func (m *merger) category() Kind {
	switch {
	case len(m.events) > 0:
		return KindEvents
	case len(m.teams) > 0:
		return KindTeams
	case len(m.badges) > 0:
		return KindBadges
	default:
		return m.detected
	}
}

func nonEmpty(recs []platform.Record) []platform.Record {
	if len(recs) == 0 {
		return nil
	}
	return recs
}

func (m *merger) reply(text string) Reply {
	return Reply{
		Response:   text,
		Category:   m.category(),
		Events:     nonEmpty(m.events),
		Teams:      nonEmpty(m.teams),
		Badges:     nonEmpty(m.badges),
		TeamEvents: nonEmpty(m.teamEvents),
	}
}
