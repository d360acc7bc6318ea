package assistant

import (
	"testing"
	"time"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func fmtPtr(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Format(isoDate)
}

func TestRelativeSpan(t *testing.T) {
	friday := time.Date(2026, 10, 16, 15, 4, 0, 0, time.UTC)

	cases := []struct {
		expr       string
		today      time.Time
		start, end string
	}{
		{"today", friday, "2026-10-16", "2026-10-16"},
		{"now", friday, "2026-10-16", "2026-10-16"},
		{"tomorrow", friday, "2026-10-17", "2026-10-17"},
		{"this weekend", friday, "2026-10-17", "2026-10-18"},
		{"this weekend", date(2026, 10, 17), "2026-10-17", "2026-10-18"},
		{"this weekend", date(2026, 10, 18), "2026-10-17", "2026-10-18"},
		{"next weekend", friday, "2026-10-24", "2026-10-25"},
		// From Sunday, next weekend skips the coming Saturday.
		{"next weekend", date(2026, 10, 18), "2026-10-31", "2026-11-01"},
		{"next weekend", date(2026, 10, 17), "2026-10-24", "2026-10-25"},
		{"this week", friday, "2026-10-12", "2026-10-18"},
		{"next week", friday, "2026-10-19", "2026-10-25"},
		{"next week", date(2026, 10, 12), "2026-10-19", "2026-10-25"},
		{"next month", friday, "2026-11-01", "2026-11-30"},
		{"next month", date(2026, 12, 5), "2027-01-01", "2027-01-31"},
		{"next month", date(2027, 1, 31), "2027-02-01", "2027-02-28"},
	}
	for _, tc := range cases {
		span, ok := relativeSpan(tc.expr, tc.today)
		if !ok {
			t.Fatalf("relativeSpan(%q) not recognised", tc.expr)
		}
		if got := span.start.Format(isoDate); got != tc.start {
			t.Fatalf("%q on %s: start = %s, want %s", tc.expr, tc.today.Format(isoDate), got, tc.start)
		}
		if got := span.end.Format(isoDate); got != tc.end {
			t.Fatalf("%q on %s: end = %s, want %s", tc.expr, tc.today.Format(isoDate), got, tc.end)
		}
	}

	if _, ok := relativeSpan("someday", friday); ok {
		t.Fatalf("unknown expression should not resolve")
	}
}

func TestResolveDateRange(t *testing.T) {
	friday := date(2026, 10, 16)

	cases := []struct {
		start, end string
		from, to   string
	}{
		{"this weekend", "", "2026-10-17", "2026-10-18"},
		{"This Weekend", "this weekend", "2026-10-17", "2026-10-18"},
		{"this weekend", "2026-10-30", "2026-10-17", "2026-10-30"},
		{"next month", "next month", "2026-11-01", "2026-11-30"},
		{"2026-10-20", "", "2026-10-20", "-"},
		{"2026-10-20", "2026-10-22", "2026-10-20", "2026-10-22"},
		{"tomorrow", "tomorrow", "2026-10-17", "2026-10-17"},
		{"today", "", "2026-10-16", "-"},
		{"", "this weekend", "-", "2026-10-17"},
		{"whenever", "", "-", "-"},
		{"", "", "-", "-"},
	}
	for _, tc := range cases {
		from, to := resolveDateRange(tc.start, tc.end, friday)
		if fmtPtr(from) != tc.from || fmtPtr(to) != tc.to {
			t.Fatalf("resolveDateRange(%q, %q) = %s..%s, want %s..%s",
				tc.start, tc.end, fmtPtr(from), fmtPtr(to), tc.from, tc.to)
		}
	}
}
