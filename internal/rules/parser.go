package rules

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/parkscan/parkscan/pkg/logger"
)

// The Montreal signalization vocabulary: descriptions are uppercase French
// with a leading marker (`\P` no parking, `\A` no stopping), hour ranges in
// "9h30" notation, day abbreviations, and seasonal month/day ranges.
var (
	// timeRangeRe matches an hour range such as "09h30-10h30" or "9h A 17h".
	timeRangeRe = regexp.MustCompile(`(\d{1,2})\s*H\s*(\d{0,2})\s*(?:-|A)\s*(\d{1,2})\s*H\s*(\d{0,2})`)

	// dayRangeRe matches an inclusive weekday span such as "LUN AU VEN" or
	// "LUNDI A SAMEDI". "ET" joins discrete days and is handled by the
	// per-day scan instead.
	dayRangeRe = regexp.MustCompile(`\b(LUN|MAR|MER|JEU|VEN|SAM|DIM)[A-Z]*\.?\s+(?:AU|A)\s+(LUN|MAR|MER|JEU|VEN|SAM|DIM)[A-Z]*\.?`)

	// dateRangeRe matches a seasonal span such as "1 MARS AU 1 DEC" or
	// "15 NOV. AU 1ER AVRIL".
	dateRangeRe = regexp.MustCompile(`\b(\d{1,2})(?:ER)?\s+(JANVIER|JAN|FEVRIER|FEV|MARS|AVRIL|AVR|MAI|JUIN|JUILLET|JUIL|AOUT|SEPTEMBRE|SEPT|OCTOBRE|OCT|NOVEMBRE|NOV|DECEMBRE|DEC)\.?\s+(?:AU|A|ET)\s+(\d{1,2})(?:ER)?\s+(JANVIER|JAN|FEVRIER|FEV|MARS|AVRIL|AVR|MAI|JUIN|JUILLET|JUIL|AOUT|SEPTEMBRE|SEPT|OCTOBRE|OCT|NOVEMBRE|NOV|DECEMBRE|DEC)\.?`)

	// paidRe matches metered-duration markers such as "P 60 MIN" or "P 2H".
	paidRe = regexp.MustCompile(`\bP\s+\d+\s*(?:MIN|H)\b`)

	// exceptionRe splits a clause into its base rule and its carve-out.
	exceptionRe = regexp.MustCompile(`\b(?:EXCEPTE|SAUF)\b`)

	spaceRe = regexp.MustCompile(`\s+`)
)

// dayRes detects individual weekday mentions. Word boundaries keep the MAR
// abbreviation from matching the month MARS.
var dayRes = map[time.Weekday]*regexp.Regexp{
	time.Monday:    regexp.MustCompile(`\b(?:LUNDI|LUN)\b`),
	time.Tuesday:   regexp.MustCompile(`\b(?:MARDI|MAR)\b`),
	time.Wednesday: regexp.MustCompile(`\b(?:MERCREDI|MER)\b`),
	time.Thursday:  regexp.MustCompile(`\b(?:JEUDI|JEU)\b`),
	time.Friday:    regexp.MustCompile(`\b(?:VENDREDI|VEN)\b`),
	time.Saturday:  regexp.MustCompile(`\b(?:SAMEDI|SAM)\b`),
	time.Sunday:    regexp.MustCompile(`\b(?:DIMANCHE|DIM)\b`),
}

// frWeek orders weekdays the way the signs do, Monday first, so day ranges
// expand correctly.
var frWeek = [7]time.Weekday{
	time.Monday, time.Tuesday, time.Wednesday, time.Thursday,
	time.Friday, time.Saturday, time.Sunday,
}

var frWeekIndex = map[string]int{
	"LUN": 0, "MAR": 1, "MER": 2, "JEU": 3, "VEN": 4, "SAM": 5, "DIM": 6,
}

var frMonths = map[string]time.Month{
	"JANVIER": time.January, "JAN": time.January,
	"FEVRIER": time.February, "FEV": time.February,
	"MARS":  time.March,
	"AVRIL": time.April, "AVR": time.April,
	"MAI":   time.May,
	"JUIN":  time.June,
	"JUILLET": time.July, "JUIL": time.July,
	"AOUT":      time.August,
	"SEPTEMBRE": time.September, "SEPT": time.September,
	"OCTOBRE": time.October, "OCT": time.October,
	"NOVEMBRE": time.November, "NOV": time.November,
	"DECEMBRE": time.December, "DEC": time.December,
}

// specialConditions are audience markers that reserve a space for a vehicle
// class. First match wins.
var specialConditions = []string{
	"RESERVE", "HANDICAP", "TAXI", "LIVRAISON", "AUTOBUS",
	"DEBARCADERE", "S3R", "MOTOS", "CORPS DIPLOMATIQUES",
	"SERVICE D'INCENDIE", "VEHICULES DE LA VILLE", "VEHICULES MILITAIRES",
	"SEULEMENT",
}

var accentReplacer = strings.NewReplacer(
	"É", "E", "È", "E", "Ê", "E", "Ë", "E",
	"À", "A", "Â", "A",
	"Î", "I", "Ï", "I",
	"Ô", "O",
	"Û", "U", "Ü", "U", "Ù", "U",
	"Ç", "C",
)

// Parser turns raw signalization descriptions into structured rules. It
// never fails: text it cannot classify degrades to a single Unknown rule
// carrying the original description, so no sign is silently dropped.
type Parser struct {
	logger *logger.Logger
}

// NewParser creates a new restriction parser.
func NewParser(log *logger.Logger) *Parser {
	return &Parser{
		logger: log.Named("rule-parser"),
	}
}

// marker is the sign-level restriction type read off the description prefix.
type marker struct {
	restricted bool // \P (no parking) or \A (no stopping)
	paid       bool // parking meter or metered duration
}

// Parse converts one sign description into its rules. A blank description
// yields no rules at all, which the evaluator treats as unrestricted.
func (p *Parser) Parse(raw string) []Rule {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil
	}
	norm := normalize(trimmed)
	m := detectMarker(norm)

	var out []Rule
	for _, clause := range strings.Split(norm, ";") {
		clause = strings.TrimSpace(clause)
		if clause == "" {
			continue
		}
		out = append(out, p.parseClause(clause, m)...)
	}

	if len(out) == 0 {
		p.logger.Debug("unclassified restriction text", logger.String("text", trimmed))
		out = []Rule{{
			Kind:        KindUnknown,
			Priority:    PriorityUnknown,
			Description: trimmed,
		}}
	}
	return out
}

// parseClause handles one delimiter-separated clause, splitting off an
// EXCEPTE/SAUF carve-out first so its qualifiers cannot bleed into the base
// rule.
func (p *Parser) parseClause(clause string, m marker) []Rule {
	base, carveOut, hasCarveOut := cutException(clause)

	out := p.classify(base, m)

	if hasCarveOut {
		excs := exceptionRules(carveOut)
		if len(excs) == 0 {
			// The carve-out names a vehicle class, not a time period. It
			// narrows who the base rule binds, so keep the full clause text
			// on the base rules for display and emit no separate rule.
			for i := range out {
				out[i].Description = clause
			}
		} else {
			out = append(out, excs...)
		}
	}
	return out
}

// classify builds the base rules of a clause. One rule is emitted per
// time-range/date-range combination so each rule carries a single window.
func (p *Parser) classify(base string, m marker) []Rule {
	if base == "" {
		return nil
	}

	windows := parseTimeRanges(base)
	days := parseDays(base)
	dates := parseDateRanges(base)
	allTime := strings.Contains(base, "EN TOUT TEMPS")
	special := detectSpecial(base)

	var kind Kind
	switch {
	case special != "":
		kind = KindPermitOnly
	case m.restricted && len(dates) > 0:
		kind = KindSeasonalBan
	case m.restricted && (len(windows) > 0 || !days.Empty()):
		kind = KindTimeLimited
	case m.restricted:
		// Bare or "EN TOUT TEMPS" restriction with no qualifiers.
		kind = KindNoParking
	case m.paid:
		kind = KindPaid
	default:
		// No recognizable restriction marker. Emit the per-clause fallback.
		return []Rule{{
			Kind:        KindUnknown,
			Priority:    PriorityUnknown,
			Description: base,
		}}
	}

	if allTime && kind == KindTimeLimited {
		kind = KindNoParking
	}

	mk := func(w *Window, d *DateRange) Rule {
		return Rule{
			Kind:        kind,
			Days:        days,
			Window:      w,
			Dates:       d,
			Priority:    PriorityBase,
			Description: base,
		}
	}

	var out []Rule
	switch {
	case len(windows) == 0 && len(dates) == 0:
		out = append(out, mk(nil, nil))
	case len(windows) == 0:
		for i := range dates {
			out = append(out, mk(nil, &dates[i]))
		}
	case len(dates) == 0:
		for i := range windows {
			out = append(out, mk(&windows[i], nil))
		}
	default:
		for i := range dates {
			for j := range windows {
				w := windows[j]
				out = append(out, mk(&w, &dates[i]))
			}
		}
	}
	return out
}

// exceptionRules builds the allowing rules for a temporal carve-out such as
// "EXCEPTE SAM DIM" or "SAUF 18H-8H". A carve-out with no temporal
// qualifier returns nothing.
func exceptionRules(carveOut string) []Rule {
	windows := parseTimeRanges(carveOut)
	days := parseDays(carveOut)
	dates := parseDateRanges(carveOut)
	if len(windows) == 0 && days.Empty() && len(dates) == 0 {
		return nil
	}

	desc := "EXCEPTE " + carveOut
	var datePtr *DateRange
	if len(dates) > 0 {
		datePtr = &dates[0]
	}

	if len(windows) == 0 {
		return []Rule{{
			Kind:        KindException,
			Days:        days,
			Dates:       datePtr,
			Priority:    PriorityException,
			Description: desc,
		}}
	}

	out := make([]Rule, 0, len(windows))
	for i := range windows {
		w := windows[i]
		out = append(out, Rule{
			Kind:        KindException,
			Days:        days,
			Window:      &w,
			Dates:       datePtr,
			Priority:    PriorityException,
			Description: desc,
		})
	}
	return out
}

// normalize uppercases, folds accents, and collapses whitespace so the
// vocabulary patterns see a uniform alphabet.
func normalize(raw string) string {
	s := strings.ToUpper(raw)
	s = accentReplacer.Replace(s)
	return strings.TrimSpace(spaceRe.ReplaceAllString(s, " "))
}

func detectMarker(norm string) marker {
	var m marker
	switch {
	case strings.HasPrefix(norm, `\P`):
		m.restricted = true
	case strings.HasPrefix(norm, `\A`):
		m.restricted = true
	case strings.Contains(norm, "PARCOMETRE") || paidRe.MatchString(norm):
		m.paid = true
	}
	return m
}

func cutException(clause string) (base, carveOut string, found bool) {
	loc := exceptionRe.FindStringIndex(clause)
	if loc == nil {
		return clause, "", false
	}
	return strings.TrimSpace(clause[:loc[0]]), strings.TrimSpace(clause[loc[1]:]), true
}

// parseTimeRanges extracts the hour windows of a clause. Hour 24 folds to 0,
// so "14h-24h" becomes a window ending at midnight, which the wrap handling
// in Window.Contains evaluates correctly.
func parseTimeRanges(s string) []Window {
	matches := timeRangeRe.FindAllStringSubmatch(s, -1)
	var out []Window
	for _, m := range matches {
		sh, _ := strconv.Atoi(m[1])
		eh, _ := strconv.Atoi(m[3])
		sm, em := 0, 0
		if m[2] != "" {
			sm, _ = strconv.Atoi(m[2])
		}
		if m[4] != "" {
			em, _ = strconv.Atoi(m[4])
		}
		if sh == 24 {
			sh = 0
		}
		if eh == 24 {
			eh = 0
		}
		if sh > 23 || eh > 23 || sm > 59 || em > 59 {
			continue
		}
		out = append(out, Window{StartMin: sh*60 + sm, EndMin: eh*60 + em})
	}
	return out
}

// parseDays collects the weekdays a clause names, expanding inclusive
// "X AU Y" spans (wrapping through the weekend when the span does) and
// unioning them with discrete day mentions.
func parseDays(s string) DaySet {
	var ds DaySet
	for _, m := range dayRangeRe.FindAllStringSubmatch(s, -1) {
		start, end := frWeekIndex[m[1]], frWeekIndex[m[2]]
		for i := start; ; i = (i + 1) % 7 {
			ds.Add(frWeek[i])
			if i == end {
				break
			}
		}
	}
	for day, re := range dayRes {
		if re.MatchString(s) {
			ds.Add(day)
		}
	}
	return ds
}

func parseDateRanges(s string) []DateRange {
	matches := dateRangeRe.FindAllStringSubmatch(s, -1)
	var out []DateRange
	for _, m := range matches {
		sd, _ := strconv.Atoi(m[1])
		ed, _ := strconv.Atoi(m[3])
		if sd < 1 || sd > 31 || ed < 1 || ed > 31 {
			continue
		}
		out = append(out, DateRange{
			StartMonth: frMonths[m[2]],
			StartDay:   sd,
			EndMonth:   frMonths[m[4]],
			EndDay:     ed,
		})
	}
	return out
}

func detectSpecial(s string) string {
	for _, cond := range specialConditions {
		if strings.Contains(s, cond) {
			return cond
		}
	}
	return ""
}
