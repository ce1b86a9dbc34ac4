// Package export renders detected orders as CSV and HTML and builds
// period summaries for the CLI reporting commands.
package export

import (
	"fmt"
	"time"

	"github.com/orderscout/orderscout/internal/types"
)

// Period is a reporting window anchored at now.
type Period string

const (
	PeriodToday Period = "today"
	PeriodWeek  Period = "week"
	PeriodMonth Period = "month"
	PeriodAll   Period = "all"
)

// ParsePeriod validates a CLI period argument.
func ParsePeriod(s string) (Period, error) {
	switch Period(s) {
	case PeriodToday, PeriodWeek, PeriodMonth, PeriodAll:
		return Period(s), nil
	case "":
		return PeriodAll, nil
	default:
		return "", fmt.Errorf("unknown period %q (want today, week, month, or all)", s)
	}
}

// Since returns the inclusive lower bound of the period in UTC.
func (p Period) Since(now time.Time) time.Time {
	now = now.UTC()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	switch p {
	case PeriodToday:
		return midnight
	case PeriodWeek:
		return midnight.AddDate(0, 0, -7)
	case PeriodMonth:
		return midnight.AddDate(0, -1, 0)
	default:
		return time.Time{}
	}
}

// Filter narrows an export to a period and an optional category.
type Filter struct {
	Period   Period
	Category types.Category // empty selects all categories
}

// Validate rejects categories outside the closed set.
func (f Filter) Validate() error {
	if f.Category != "" && !f.Category.Valid() {
		return fmt.Errorf("unknown category %q", f.Category)
	}
	if _, err := ParsePeriod(string(f.Period)); err != nil {
		return err
	}
	return nil
}
