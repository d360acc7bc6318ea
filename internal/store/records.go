package store

import (
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/ent0n29/onesky/internal/platform"
)

func collectRecords(rows pgx.Rows) ([]platform.Record, error) {
	maps, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return nil, err
	}
	out := make([]platform.Record, 0, len(maps))
	for _, m := range maps {
		for k, v := range m {
			m[k] = plainValue(v)
		}
		out = append(out, platform.Record(m))
	}
	return out, nil
}

// plainValue turns pgtype wrappers into time.Time, time.Duration or float64
// so callers never see driver types.
func plainValue(v any) any {
	switch t := v.(type) {
	case pgtype.Time:
		if !t.Valid {
			return nil
		}
		return time.Duration(t.Microseconds) * time.Microsecond
	case pgtype.Interval:
		if !t.Valid {
			return nil
		}
		d := time.Duration(t.Microseconds) * time.Microsecond
		d += time.Duration(t.Days) * 24 * time.Hour
		d += time.Duration(t.Months) * 30 * 24 * time.Hour
		return d
	case pgtype.Date:
		if !t.Valid {
			return nil
		}
		return t.Time
	case pgtype.Numeric:
		f, err := t.Float64Value()
		if err != nil || !f.Valid {
			return nil
		}
		return f.Float64
	default:
		return v
	}
}
