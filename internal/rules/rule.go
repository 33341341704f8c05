package rules

import "time"

// Kind classifies a parking restriction rule.
type Kind string

const (
	KindNoParking   Kind = "no_parking"
	KindTimeLimited Kind = "time_limited"
	KindPermitOnly  Kind = "permit_only"
	KindPaid        Kind = "paid"
	KindSeasonalBan Kind = "seasonal_ban"
	KindException   Kind = "exception"
	KindUnknown     Kind = "unknown"
)

// Rule priorities. Exceptions outrank base rules; unknown rules rank below
// everything so a classified rule always wins.
const (
	PriorityUnknown   = -1
	PriorityBase      = 0
	PriorityException = 100
)

// Allows reports whether a matching rule of this kind permits parking.
// Paid parking is permitted parking; unknown rules never block so that
// unparseable sign text cannot mark a street restricted.
func (k Kind) Allows() bool {
	switch k {
	case KindException, KindPaid, KindUnknown:
		return true
	default:
		return false
	}
}

// DaySet is a bit set of weekdays. The zero value matches every day.
type DaySet uint8

// Add inserts a weekday into the set.
func (s *DaySet) Add(d time.Weekday) {
	*s |= 1 << uint(d)
}

// Has reports whether the set explicitly contains the weekday.
func (s DaySet) Has(d time.Weekday) bool {
	return s&(1<<uint(d)) != 0
}

// Empty reports whether no weekday was set.
func (s DaySet) Empty() bool {
	return s == 0
}

// Matches reports whether the rule applies on the given weekday. An empty
// set applies to every day.
func (s DaySet) Matches(d time.Weekday) bool {
	return s.Empty() || s.Has(d)
}

// Weekdays returns the explicit members in Sunday-first order.
func (s DaySet) Weekdays() []time.Weekday {
	var out []time.Weekday
	for d := time.Sunday; d <= time.Saturday; d++ {
		if s.Has(d) {
			out = append(out, d)
		}
	}
	return out
}

// Window is a time-of-day span in minutes since midnight, half-open
// [StartMin, EndMin). EndMin numerically below StartMin means the window
// wraps past midnight. StartMin == EndMin denotes the full day.
type Window struct {
	StartMin int
	EndMin   int
}

// Contains reports whether the given minute of day falls inside the window.
func (w Window) Contains(minuteOfDay int) bool {
	switch {
	case w.StartMin == w.EndMin:
		return true
	case w.StartMin < w.EndMin:
		return minuteOfDay >= w.StartMin && minuteOfDay < w.EndMin
	default:
		return minuteOfDay >= w.StartMin || minuteOfDay < w.EndMin
	}
}

// Wraps reports whether the window spans past midnight.
func (w Window) Wraps() bool {
	return w.StartMin > w.EndMin
}

// DateRange is a recurring month/day span, year agnostic. A start falling
// after the end means the range wraps over year end (e.g. Dec 1 to Mar 15).
type DateRange struct {
	StartMonth time.Month
	StartDay   int
	EndMonth   time.Month
	EndDay     int
}

// Contains reports whether the instant's calendar date falls inside the
// range, inclusive on both ends.
func (r DateRange) Contains(t time.Time) bool {
	m, d := t.Month(), t.Day()
	afterStart := m > r.StartMonth || (m == r.StartMonth && d >= r.StartDay)
	beforeEnd := m < r.EndMonth || (m == r.EndMonth && d <= r.EndDay)
	if r.WrapsYear() {
		return afterStart || beforeEnd
	}
	return afterStart && beforeEnd
}

// WrapsYear reports whether the range crosses the year boundary.
func (r DateRange) WrapsYear() bool {
	return r.StartMonth > r.EndMonth ||
		(r.StartMonth == r.EndMonth && r.StartDay > r.EndDay)
}

// Rule is one structured restriction derived from a sign's description.
// Absent qualifiers widen the rule: an empty day set applies every day, a
// nil window applies all day, a nil date range applies all year.
type Rule struct {
	Kind        Kind
	Days        DaySet
	Window      *Window
	Dates       *DateRange
	Priority    int
	Description string
}

// Matches reports whether the rule governs the given instant.
func (r *Rule) Matches(at time.Time) bool {
	if r.Dates != nil && !r.Dates.Contains(at) {
		return false
	}
	if !r.Days.Matches(at.Weekday()) {
		return false
	}
	if r.Window != nil && !r.Window.Contains(at.Hour()*60+at.Minute()) {
		return false
	}
	return true
}

// specificity counts populated qualifiers. Among matches of equal priority
// the most specific rule wins.
func (r *Rule) specificity() int {
	n := 0
	if r.Dates != nil {
		n++
	}
	if !r.Days.Empty() {
		n++
	}
	if r.Window != nil {
		n++
	}
	return n
}
