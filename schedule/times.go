package schedule

import "strings"

// frequencyRule maps a set of descriptor fragments to a dose count. Rules
// are evaluated in priority order, highest count first, so that e.g.
// "four times daily" is not claimed by the "daily" fragment.
type frequencyRule struct {
	doses     int
	fragments []string
}

var frequencyRules = []frequencyRule{
	{4, []string{"four", "qid", "4x"}},
	{3, []string{"three", "thrice", "tid", "3x"}},
	{2, []string{"twice", "bid", "2x"}},
	{1, []string{"once", "qd", "od", "1x", "daily"}},
}

// OptimizeDosingTimes maps a frequency descriptor to a canonical ordered
// list of HH:MM dosing times anchored to meals. Matching is tolerant of
// case, whitespace, and separators, and recognizes common abbreviations
// (qd/od, bid, tid, qid, "2x"...). An unrecognized descriptor falls back to
// the twice-daily times. An optional MealTimes overrides any subset of the
// default anchors.
func OptimizeDosingTimes(frequency string, overrides ...MealTimes) []string {
	meals := DefaultMealTimes()
	if len(overrides) > 0 {
		meals = overrides[0].withDefaults()
	}

	switch matchFrequency(frequency) {
	case 1:
		return []string{meals.Breakfast}
	case 3:
		return []string{meals.Breakfast, meals.Lunch, meals.Dinner}
	case 4:
		return []string{meals.Breakfast, midpoint(meals.Breakfast, meals.Lunch), meals.Dinner, "21:00"}
	default:
		// Twice daily, also the fallback for unrecognized descriptors.
		return []string{meals.Breakfast, meals.Dinner}
	}
}

// matchFrequency normalizes the descriptor and returns the matched dose
// count, or 0 when nothing matches.
func matchFrequency(frequency string) int {
	normalized := strings.ToLower(frequency)
	normalized = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '_', '-', '/', '.':
			return -1
		}
		return r
	}, normalized)

	for _, rule := range frequencyRules {
		for _, fragment := range rule.fragments {
			if strings.Contains(normalized, fragment) {
				return rule.doses
			}
		}
	}
	return 0
}

// midpoint computes the clock-time average of two HH:MM values, rounded to
// the minute. If either anchor is malformed it falls back to "12:00".
func midpoint(a, b string) string {
	am, okA := parseClock(a)
	bm, okB := parseClock(b)
	if !okA || !okB {
		return "12:00"
	}
	return formatClock((am + bm + 1) / 2)
}
