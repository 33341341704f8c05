package rules

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parkscan/parkscan/pkg/logger"
)

func newTestParser() *Parser {
	return NewParser(logger.Nop())
}

func TestParseWeekdayTimeRestriction(t *testing.T) {
	p := newTestParser()

	got := p.Parse(`\P LUN AU VEN 9h00-10h00`)
	require.Len(t, got, 1)

	r := got[0]
	assert.Equal(t, KindTimeLimited, r.Kind)
	require.NotNil(t, r.Window)
	assert.Equal(t, 9*60, r.Window.StartMin)
	assert.Equal(t, 10*60, r.Window.EndMin)
	assert.False(t, r.Window.Wraps())
	assert.Nil(t, r.Dates)

	for _, d := range []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday} {
		assert.True(t, r.Days.Has(d), "expected %s in day set", d)
	}
	assert.False(t, r.Days.Has(time.Saturday))
	assert.False(t, r.Days.Has(time.Sunday))
	assert.False(t, r.Kind.Allows())
}

func TestParseAllTimeNoStopping(t *testing.T) {
	p := newTestParser()

	got := p.Parse(`\A EN TOUT TEMPS`)
	require.Len(t, got, 1)

	r := got[0]
	assert.Equal(t, KindNoParking, r.Kind)
	assert.Nil(t, r.Window)
	assert.Nil(t, r.Dates)
	assert.True(t, r.Days.Empty())
}

func TestParsePaidMeter(t *testing.T) {
	p := newTestParser()

	got := p.Parse(`PARCOMETRE 9h-21h LUN A SAM`)
	require.Len(t, got, 1)

	r := got[0]
	assert.Equal(t, KindPaid, r.Kind)
	assert.True(t, r.Kind.Allows())
	require.NotNil(t, r.Window)
	assert.Equal(t, 9*60, r.Window.StartMin)
	assert.Equal(t, 21*60, r.Window.EndMin)
	assert.Len(t, r.Days.Weekdays(), 6)
	assert.False(t, r.Days.Has(time.Sunday))
}

func TestParseMeteredDuration(t *testing.T) {
	p := newTestParser()

	got := p.Parse(`P 120 MIN 9h-18h`)
	require.Len(t, got, 1)
	assert.Equal(t, KindPaid, got[0].Kind)
}

func TestParseSeasonalRestriction(t *testing.T) {
	p := newTestParser()

	got := p.Parse(`\P 1 AVRIL AU 1 NOV LUN AU VEN 9h00-18h00`)
	require.Len(t, got, 1)

	r := got[0]
	assert.Equal(t, KindSeasonalBan, r.Kind)
	require.NotNil(t, r.Dates)
	assert.Equal(t, time.April, r.Dates.StartMonth)
	assert.Equal(t, 1, r.Dates.StartDay)
	assert.Equal(t, time.November, r.Dates.EndMonth)
	assert.Equal(t, 1, r.Dates.EndDay)
	assert.False(t, r.Dates.WrapsYear())
	require.NotNil(t, r.Window)
	assert.True(t, r.Days.Has(time.Wednesday))
}

func TestParseSeasonalWrapsYearEnd(t *testing.T) {
	p := newTestParser()

	got := p.Parse(`\P 1 DEC. AU 1 MARS`)
	require.Len(t, got, 1)

	r := got[0]
	assert.Equal(t, KindSeasonalBan, r.Kind)
	require.NotNil(t, r.Dates)
	assert.True(t, r.Dates.WrapsYear())
	assert.True(t, r.Dates.Contains(time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)))
	assert.False(t, r.Dates.Contains(time.Date(2024, 7, 15, 0, 0, 0, 0, time.UTC)))
}

func TestParseExceptionClause(t *testing.T) {
	p := newTestParser()

	got := p.Parse(`\P 9h-17h EXCEPTE SAM DIM`)
	require.Len(t, got, 2)

	base, exc := got[0], got[1]
	assert.Equal(t, KindTimeLimited, base.Kind)
	assert.Equal(t, KindException, exc.Kind)
	assert.Greater(t, exc.Priority, base.Priority)
	assert.True(t, exc.Days.Has(time.Saturday))
	assert.True(t, exc.Days.Has(time.Sunday))
	assert.False(t, exc.Days.Has(time.Monday))
}

func TestParseVehicleClassCarveOut(t *testing.T) {
	p := newTestParser()

	// A carve-out naming a vehicle class narrows the audience, not the
	// schedule, so no exception rule is emitted for it.
	got := p.Parse(`\P EXCEPTE LIVRAISON`)
	require.Len(t, got, 1)
	assert.Equal(t, KindNoParking, got[0].Kind)
	assert.Contains(t, got[0].Description, "EXCEPTE LIVRAISON")
}

func TestParseReservedPermit(t *testing.T) {
	p := newTestParser()

	got := p.Parse(`\P RESERVE S3R 9h-23h`)
	require.Len(t, got, 1)
	assert.Equal(t, KindPermitOnly, got[0].Kind)
	assert.False(t, got[0].Kind.Allows())
}

func TestParseUnknownFallback(t *testing.T) {
	p := newTestParser()

	raw := "PANONCEAU DIRECTION CENTRE-VILLE"
	got := p.Parse(raw)
	require.Len(t, got, 1)
	assert.Equal(t, KindUnknown, got[0].Kind)
	assert.Equal(t, raw, got[0].Description)
	assert.True(t, got[0].Kind.Allows())
}

func TestParseBlankDescription(t *testing.T) {
	p := newTestParser()

	assert.Nil(t, p.Parse(""))
	assert.Nil(t, p.Parse("   "))
}

func TestParseMultiClause(t *testing.T) {
	p := newTestParser()

	got := p.Parse(`\P 8h-9h30 LUN MER VEN; 15h30-16h30 MAR JEU`)
	require.Len(t, got, 2)

	first, second := got[0], got[1]
	require.NotNil(t, first.Window)
	assert.Equal(t, 8*60, first.Window.StartMin)
	assert.Equal(t, 9*60+30, first.Window.EndMin)
	assert.True(t, first.Days.Has(time.Monday))
	assert.False(t, first.Days.Has(time.Tuesday))

	require.NotNil(t, second.Window)
	assert.Equal(t, 15*60+30, second.Window.StartMin)
	assert.True(t, second.Days.Has(time.Thursday))
	assert.False(t, second.Days.Has(time.Friday))
}

func TestParseMultipleTimeRangesOneClause(t *testing.T) {
	p := newTestParser()

	got := p.Parse(`\P 8h-9h ET 15h-16h LUN`)
	require.Len(t, got, 2)
	for _, r := range got {
		assert.Equal(t, KindTimeLimited, r.Kind)
		assert.True(t, r.Days.Has(time.Monday))
		require.NotNil(t, r.Window)
	}
	assert.Equal(t, 8*60, got[0].Window.StartMin)
	assert.Equal(t, 15*60, got[1].Window.StartMin)
}

func TestParseMidnightWrappingWindow(t *testing.T) {
	p := newTestParser()

	got := p.Parse(`\P 22h-6h`)
	require.Len(t, got, 1)
	require.NotNil(t, got[0].Window)
	assert.True(t, got[0].Window.Wraps())
	assert.Equal(t, 22*60, got[0].Window.StartMin)
	assert.Equal(t, 6*60, got[0].Window.EndMin)
}

func TestParseHour24FoldsToMidnight(t *testing.T) {
	p := newTestParser()

	got := p.Parse(`\P 14h-24h`)
	require.Len(t, got, 1)
	require.NotNil(t, got[0].Window)
	assert.Equal(t, 14*60, got[0].Window.StartMin)
	assert.Equal(t, 0, got[0].Window.EndMin)
	assert.True(t, got[0].Window.Wraps())
}

func TestParseAccentedLowercaseInput(t *testing.T) {
	p := newTestParser()

	got := p.Parse(`\P 9h-17h excepté sam. dim.`)
	require.Len(t, got, 2)
	assert.Equal(t, KindException, got[1].Kind)
	assert.True(t, got[1].Days.Has(time.Saturday))
}

func TestParseDaysHelpers(t *testing.T) {
	t.Run("month MARS is not the day MAR", func(t *testing.T) {
		ds := parseDays("1 MARS AU 1 DEC")
		assert.True(t, ds.Empty())
	})

	t.Run("ET joins discrete days without spanning", func(t *testing.T) {
		ds := parseDays("MAR ET JEU")
		assert.True(t, ds.Has(time.Tuesday))
		assert.True(t, ds.Has(time.Thursday))
		assert.False(t, ds.Has(time.Wednesday))
	})

	t.Run("range wraps through the weekend", func(t *testing.T) {
		ds := parseDays("SAM AU LUN")
		assert.True(t, ds.Has(time.Saturday))
		assert.True(t, ds.Has(time.Sunday))
		assert.True(t, ds.Has(time.Monday))
		assert.False(t, ds.Has(time.Tuesday))
	})

	t.Run("full day names", func(t *testing.T) {
		ds := parseDays("LUNDI A VENDREDI")
		assert.Len(t, ds.Weekdays(), 5)
	})
}

func TestParseTimeRangesRejectsMalformedHours(t *testing.T) {
	assert.Empty(t, parseTimeRanges("99h-12h"))
	assert.Empty(t, parseTimeRanges("9h75-12h80"))
}

// The end-to-end vectors the worked examples in the municipal data produce.
func TestParseAndEvaluate(t *testing.T) {
	p := newTestParser()
	rules := p.Parse(`\P 1 AVRIL AU 1 NOV LUN AU VEN 9h00-18h00`)

	tests := []struct {
		name    string
		at      time.Time
		allowed bool
	}{
		{"in-season weekday inside window", time.Date(2023, 10, 10, 12, 0, 0, 0, time.UTC), false},
		{"in-season weekday before window", time.Date(2023, 10, 10, 8, 0, 0, 0, time.UTC), true},
		{"in-season saturday", time.Date(2023, 10, 14, 12, 0, 0, 0, time.UTC), true},
		{"out-of-season weekday", time.Date(2023, 1, 10, 12, 0, 0, 0, time.UTC), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Evaluate(rules, tt.at)
			assert.Equal(t, tt.allowed, got.Allowed)
		})
	}
}
