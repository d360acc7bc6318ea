package assistant

import (
	"strings"
	"time"
)

const isoDate = "2006-01-02"

// dateSpan is an inclusive range of calendar days.
type dateSpan struct {
	start time.Time
	end   time.Time
}

func day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// relativeSpan resolves a relative date expression against today. Single-day
// expressions have start == end.
func relativeSpan(expr string, today time.Time) (dateSpan, bool) {
	today = day(today)
	// Monday = 0 .. Sunday = 6
	weekday := (int(today.Weekday()) + 6) % 7

	switch expr {
	case "today", "now":
		return dateSpan{today, today}, true
	case "tomorrow":
		t := today.AddDate(0, 0, 1)
		return dateSpan{t, t}, true
	case "this weekend":
		var sat time.Time
		switch weekday {
		case 5:
			sat = today
		case 6:
			sat = today.AddDate(0, 0, -1)
		default:
			sat = today.AddDate(0, 0, 5-weekday)
		}
		return dateSpan{sat, sat.AddDate(0, 0, 1)}, true
	case "next weekend":
		sat := today.AddDate(0, 0, (5-weekday+7)%7+7)
		return dateSpan{sat, sat.AddDate(0, 0, 1)}, true
	case "this week":
		mon := today.AddDate(0, 0, -weekday)
		return dateSpan{mon, mon.AddDate(0, 0, 6)}, true
	case "next week":
		mon := today.AddDate(0, 0, 7-weekday)
		return dateSpan{mon, mon.AddDate(0, 0, 6)}, true
	case "next month":
		first := time.Date(today.Year(), today.Month()+1, 1, 0, 0, 0, 0, time.UTC)
		return dateSpan{first, first.AddDate(0, 1, -1)}, true
	}
	return dateSpan{}, false
}

// parseDate resolves an ISO date or the first day of a relative expression.
func parseDate(value string, today time.Time) (time.Time, bool) {
	expr := strings.ToLower(strings.TrimSpace(value))
	if expr == "" {
		return time.Time{}, false
	}
	if span, ok := relativeSpan(expr, today); ok {
		return span.start, true
	}
	t, err := time.Parse(isoDate, strings.TrimSpace(value))
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// resolveDateRange turns the start_date/end_date arguments into an inclusive
// filter. A range expression as start expands to its whole range when the
// end is missing or repeats the same expression; otherwise only the start
// is taken from it.
func resolveDateRange(startArg, endArg string, today time.Time) (from, to *time.Time) {
	if start, ok := parseDate(startArg, today); ok {
		from = &start
	}
	if end, ok := parseDate(endArg, today); ok {
		to = &end
	}

	startExpr := strings.ToLower(strings.TrimSpace(startArg))
	endExpr := strings.ToLower(strings.TrimSpace(endArg))
	switch startExpr {
	case "this weekend", "next weekend", "this week", "next week", "next month":
		span, _ := relativeSpan(startExpr, today)
		from = &span.start
		if endExpr == "" || endExpr == startExpr {
			to = &span.end
		}
	}
	return from, to
}
