package shelfdex

import (
	"strconv"
	"strings"
	"time"
)

var looseDateLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
	"2006-01",
	"2006",
}

// parseDateLoose parses the date forms that show up in mirrored rows
// and composite templates.
func parseDateLoose(s string) (time.Time, bool) {
	for _, layout := range looseDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Date-query granularity: how many of year/month/day the user wrote.
const (
	granYear  = 1
	granMonth = 2
	granDay   = 3
)

// parseDateQuery parses the operand of a date search term: an absolute
// date with 1-3 components, or one of the relative tokens.
func parseDateQuery(s string, now time.Time) (time.Time, int, error) {
	switch strings.ToLower(s) {
	case "today":
		return now, granDay, nil
	case "yesterday":
		return now.AddDate(0, 0, -1), granDay, nil
	case "thismonth":
		return now, granMonth, nil
	}
	if n, ok := strings.CutSuffix(strings.ToLower(s), "daysago"); ok {
		days, err := strconv.Atoi(n)
		if err != nil {
			return time.Time{}, 0, QueryParseError("invalid relative date: " + s)
		}
		return now.AddDate(0, 0, -days), granDay, nil
	}

	parts := strings.Split(s, "-")
	if len(parts) > granDay {
		return time.Time{}, 0, QueryParseError("invalid date: " + s)
	}
	nums := make([]int, len(parts))
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return time.Time{}, 0, QueryParseError("invalid date: " + s)
		}
		nums[i] = n
	}
	year := nums[0]
	month, day := 1, 1
	if len(nums) >= granMonth {
		month = nums[1]
	}
	if len(nums) >= granDay {
		day = nums[2]
	}
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, 0, QueryParseError("invalid date: " + s)
	}
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC), len(nums), nil
}

// truncDate drops the components finer than the queried granularity,
// so both operands compare at the same precision.
func truncDate(t time.Time, gran int) time.Time {
	switch gran {
	case granYear:
		return time.Date(t.Year(), 1, 1, 0, 0, 0, 0, time.UTC)
	case granMonth:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	default:
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	}
}
