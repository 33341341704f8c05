package rules

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func weekdaySet(days ...time.Weekday) DaySet {
	var ds DaySet
	for _, d := range days {
		ds.Add(d)
	}
	return ds
}

func TestEvaluateNoRules(t *testing.T) {
	got := Evaluate(nil, time.Date(2024, 4, 24, 9, 0, 0, 0, time.UTC))
	assert.True(t, got.Allowed)
	assert.Nil(t, got.Matched)
	assert.Equal(t, "no restriction in effect", got.Reason)
}

func TestEvaluateNeverMatchingRules(t *testing.T) {
	// Sunday-only rule queried on a Wednesday.
	rs := []Rule{{
		Kind: KindNoParking,
		Days: weekdaySet(time.Sunday),
	}}
	got := Evaluate(rs, time.Date(2024, 4, 24, 9, 0, 0, 0, time.UTC))
	assert.True(t, got.Allowed)
	assert.Nil(t, got.Matched)
}

func TestEvaluateWeekdayWindow(t *testing.T) {
	rs := []Rule{{
		Kind:   KindTimeLimited,
		Days:   weekdaySet(time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday),
		Window: &Window{StartMin: 8 * 60, EndMin: 10 * 60},
	}}

	tests := []struct {
		name    string
		at      time.Time
		allowed bool
	}{
		{"wednesday 09:00", time.Date(2024, 4, 24, 9, 0, 0, 0, time.UTC), false},
		{"wednesday 07:59", time.Date(2024, 4, 24, 7, 59, 0, 0, time.UTC), true},
		{"wednesday 08:00 inclusive start", time.Date(2024, 4, 24, 8, 0, 0, 0, time.UTC), false},
		{"wednesday 10:00 exclusive end", time.Date(2024, 4, 24, 10, 0, 0, 0, time.UTC), true},
		{"saturday 09:00", time.Date(2024, 4, 27, 9, 0, 0, 0, time.UTC), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Evaluate(rs, tt.at)
			assert.Equal(t, tt.allowed, got.Allowed)
			if !tt.allowed {
				require.NotNil(t, got.Matched)
				assert.Equal(t, KindTimeLimited, got.Matched.Kind)
			}
		})
	}
}

func TestEvaluateMidnightWrap(t *testing.T) {
	w := Window{StartMin: 22 * 60, EndMin: 6 * 60}
	rs := []Rule{{Kind: KindNoParking, Window: &w}}

	tests := []struct {
		name    string
		at      time.Time
		matches bool
	}{
		{"23:30 inside", time.Date(2024, 4, 24, 23, 30, 0, 0, time.UTC), true},
		{"07:00 outside", time.Date(2024, 4, 24, 7, 0, 0, 0, time.UTC), false},
		{"05:59 inside", time.Date(2024, 4, 24, 5, 59, 0, 0, time.UTC), true},
		{"06:00 exclusive end", time.Date(2024, 4, 24, 6, 0, 0, 0, time.UTC), false},
		{"22:00 inclusive start", time.Date(2024, 4, 24, 22, 0, 0, 0, time.UTC), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Evaluate(rs, tt.at)
			assert.Equal(t, !tt.matches, got.Allowed)
			assert.Equal(t, tt.matches, w.Contains(tt.at.Hour()*60+tt.at.Minute()))
		})
	}
}

func TestEvaluateExceptionOverridesBase(t *testing.T) {
	at := time.Date(2024, 4, 27, 9, 0, 0, 0, time.UTC) // Saturday
	rs := []Rule{
		{
			Kind:        KindNoParking,
			Priority:    PriorityBase,
			Description: `\P EN TOUT TEMPS`,
		},
		{
			Kind:        KindException,
			Days:        weekdaySet(time.Saturday, time.Sunday),
			Priority:    PriorityException,
			Description: "EXCEPTE SAM DIM",
		},
	}

	got := Evaluate(rs, at)
	assert.True(t, got.Allowed)
	require.NotNil(t, got.Matched)
	assert.Equal(t, KindException, got.Matched.Kind)

	// On a weekday only the base rule matches.
	weekday := Evaluate(rs, time.Date(2024, 4, 24, 9, 0, 0, 0, time.UTC))
	assert.False(t, weekday.Allowed)
	require.NotNil(t, weekday.Matched)
	assert.Equal(t, KindNoParking, weekday.Matched.Kind)
}

func TestEvaluateSeasonalWrap(t *testing.T) {
	rs := []Rule{{
		Kind:  KindSeasonalBan,
		Dates: &DateRange{StartMonth: time.December, StartDay: 1, EndMonth: time.March, EndDay: 15},
	}}

	assert.False(t, Evaluate(rs, time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC)).Allowed)
	assert.False(t, Evaluate(rs, time.Date(2023, 12, 1, 0, 0, 0, 0, time.UTC)).Allowed)
	assert.False(t, Evaluate(rs, time.Date(2024, 3, 15, 23, 59, 0, 0, time.UTC)).Allowed)
	assert.True(t, Evaluate(rs, time.Date(2024, 3, 16, 0, 0, 0, 0, time.UTC)).Allowed)
	assert.True(t, Evaluate(rs, time.Date(2024, 7, 10, 12, 0, 0, 0, time.UTC)).Allowed)
}

func TestEvaluatePaidAllows(t *testing.T) {
	rs := []Rule{{
		Kind:        KindPaid,
		Window:      &Window{StartMin: 9 * 60, EndMin: 21 * 60},
		Description: "PARCOMETRE 9H-21H",
	}}

	got := Evaluate(rs, time.Date(2024, 4, 24, 12, 0, 0, 0, time.UTC))
	assert.True(t, got.Allowed)
	require.NotNil(t, got.Matched)
	assert.Equal(t, KindPaid, got.Matched.Kind)
	assert.Contains(t, got.Reason, "paid parking")
}

func TestEvaluateUnknownNeverBlocks(t *testing.T) {
	rs := []Rule{{
		Kind:        KindUnknown,
		Priority:    PriorityUnknown,
		Description: "illegible",
	}}

	got := Evaluate(rs, time.Date(2024, 4, 24, 12, 0, 0, 0, time.UTC))
	assert.True(t, got.Allowed)
}

func TestEvaluateClassifiedRuleOutranksUnknown(t *testing.T) {
	rs := []Rule{
		{Kind: KindUnknown, Priority: PriorityUnknown},
		{Kind: KindNoParking, Priority: PriorityBase},
	}

	got := Evaluate(rs, time.Date(2024, 4, 24, 12, 0, 0, 0, time.UTC))
	assert.False(t, got.Allowed)
	require.NotNil(t, got.Matched)
	assert.Equal(t, KindNoParking, got.Matched.Kind)
}

func TestEvaluateSpecificityBreaksTies(t *testing.T) {
	at := time.Date(2024, 4, 24, 9, 30, 0, 0, time.UTC)
	rs := []Rule{
		{Kind: KindNoParking, Priority: PriorityBase, Description: "bare"},
		{
			Kind:        KindTimeLimited,
			Priority:    PriorityBase,
			Days:        weekdaySet(time.Wednesday),
			Window:      &Window{StartMin: 9 * 60, EndMin: 10 * 60},
			Description: "specific",
		},
	}

	got := Evaluate(rs, at)
	require.NotNil(t, got.Matched)
	assert.Equal(t, "specific", got.Matched.Description)
}

func TestEvaluateIsPureAndDeterministic(t *testing.T) {
	p := newTestParser()
	rs := p.Parse(`\P 1 AVRIL AU 1 NOV LUN AU VEN 9h00-18h00 EXCEPTE SAM DIM`)
	at := time.Date(2023, 10, 10, 12, 0, 0, 0, time.UTC)

	snapshot := make([]Rule, len(rs))
	copy(snapshot, rs)

	first := Evaluate(rs, at)
	for i := 0; i < 100; i++ {
		again := Evaluate(rs, at)
		assert.Equal(t, first.Allowed, again.Allowed)
		assert.Equal(t, first.Reason, again.Reason)
		assert.Equal(t, first.Matched, again.Matched)
	}

	// Evaluation must not mutate its input.
	assert.Equal(t, snapshot, rs)
}
