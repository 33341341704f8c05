package rules

import (
	"sort"
	"time"
)

// Outcome is the decision for one rule set at one instant.
type Outcome struct {
	Allowed bool
	Matched *Rule // nil when no rule governs the instant
	Reason  string
}

// Evaluate decides whether parking is allowed under the given rules at the
// given instant. It is pure and deterministic: identical inputs always
// produce identical outcomes, and no state is kept between calls.
//
// Rules are filtered by date range, then weekday, then time-of-day window.
// An empty remaining set means no restriction governs the instant, so
// parking is allowed. Otherwise the highest-priority match decides, with
// exceptions (which always rank above base rules) flipping the outcome of
// the restriction they qualify.
func Evaluate(rs []Rule, at time.Time) Outcome {
	var matched []*Rule
	for i := range rs {
		if rs[i].Matches(at) {
			matched = append(matched, &rs[i])
		}
	}
	if len(matched) == 0 {
		return Outcome{Allowed: true, Reason: "no restriction in effect"}
	}

	sort.SliceStable(matched, func(i, j int) bool {
		if matched[i].Priority != matched[j].Priority {
			return matched[i].Priority > matched[j].Priority
		}
		return matched[i].specificity() > matched[j].specificity()
	})

	top := matched[0]
	return Outcome{
		Allowed: top.Kind.Allows(),
		Matched: top,
		Reason:  reasonFor(top),
	}
}

func reasonFor(r *Rule) string {
	switch r.Kind {
	case KindException:
		return "exception applies: " + r.Description
	case KindPaid:
		return "paid parking: " + r.Description
	case KindPermitOnly:
		return "reserved parking: " + r.Description
	case KindUnknown:
		return "unrecognized restriction, treated as unrestricted: " + r.Description
	default:
		return "restriction in effect: " + r.Description
	}
}
