package schedule

import (
	"fmt"
	"strings"
)

const (
	// proximityWindow is the inclusive clock distance below which two doses
	// are considered too close regardless of meal relation.
	proximityWindow = 30

	// beforeAfterWindow is the inclusive clock distance for the
	// before-meal/with-or-after-meal incompatibility.
	beforeAfterWindow = 60

	// Meal windows span from mealWindowBefore minutes before an anchor to
	// mealWindowAfter minutes after it.
	mealWindowBefore = 120
	mealWindowAfter  = 60
)

// Option configures conflict detection.
type Option func(*detectOptions)

type detectOptions struct {
	meals MealTimes
}

// WithMealTimes overrides any subset of the default meal anchors used for
// meal-window checks.
func WithMealTimes(meals MealTimes) Option {
	return func(o *detectOptions) { o.meals = meals }
}

// DetectConflicts checks a candidate schedule against every existing
// schedule and returns one finding per conflicting pair. The verdict for a
// pair does not depend on which side is the candidate. Malformed times
// disable the timing heuristics for that pair, never raising an error and
// never flagging a conflict on their own; the interaction heuristic applies
// regardless of times.
func DetectConflicts(candidate Entry, existing []Entry, opts ...Option) []Finding {
	o := detectOptions{meals: DefaultMealTimes()}
	for _, opt := range opts {
		opt(&o)
	}
	meals := o.meals.withDefaults()

	var findings []Finding
	for _, other := range existing {
		if f, ok := checkPair(candidate, other, meals); ok {
			findings = append(findings, f)
		}
	}
	return findings
}

// checkPair evaluates a single pair of schedules. At most one finding is
// produced per pair, from the first heuristic that fires.
func checkPair(candidate, other Entry, meals MealTimes) (Finding, bool) {
	if interacts(candidate.Medication, other.Medication) {
		return Finding{
			Type:     FindingInteraction,
			Severity: SeverityHigh,
			Description: fmt.Sprintf("%s has a known interaction with %s",
				candidate.Medication.Name, other.Medication.Name),
			Related: other,
		}, true
	}

	ct, okC := parseClock(candidate.Time)
	ot, okO := parseClock(other.Time)
	if !okC || !okO {
		// A malformed time on either side skips the timing heuristics.
		return Finding{}, false
	}

	distance := minutesApart(ct, ot)

	// The empty-stomach condition implies the proximity condition, so it is
	// checked first: the verdict is identical either way, but the finding
	// names the more specific problem.
	if emptyStomachConflict(candidate, other, ct, ot, distance, meals) {
		fasting, fed := candidate, other
		if other.MealRelation == EmptyStomach {
			fasting, fed = other, candidate
		}
		return Finding{
			Type:     FindingMealConflict,
			Severity: SeverityModerate,
			Description: fmt.Sprintf("%s requires an empty stomach but %s is scheduled around a meal",
				fasting.Medication.Name, fed.Medication.Name),
			Related: other,
		}, true
	}

	if distance <= proximityWindow {
		return Finding{
			Type:     FindingTimingOverlap,
			Severity: SeverityModerate,
			Description: fmt.Sprintf("%s at %s is within %d minutes of %s at %s",
				candidate.Medication.Name, candidate.Time, proximityWindow,
				other.Medication.Name, other.Time),
			Related: other,
		}, true
	}

	if beforeAfterConflict(candidate, other, distance) {
		return Finding{
			Type:     FindingMealConflict,
			Severity: SeverityModerate,
			Description: fmt.Sprintf("%s and %s have incompatible meal instructions within %d minutes",
				candidate.Medication.Name, other.Medication.Name, beforeAfterWindow),
			Related: other,
		}, true
	}

	return Finding{}, false
}

// interacts applies the interaction heuristic symmetrically: each side's
// name is searched, case-insensitively and by substring, in the other
// side's interaction lists.
func interacts(a, b Medication) bool {
	return listsMedication(a, b.Name) || listsMedication(b, a.Name)
}

// listsMedication reports whether med's interaction data mentions name.
func listsMedication(med Medication, name string) bool {
	if name == "" {
		return false
	}
	needle := strings.ToLower(name)

	for _, entry := range med.Interactions {
		if strings.Contains(strings.ToLower(entry), needle) {
			return true
		}
	}
	if med.EnrichedData != nil {
		for _, group := range med.EnrichedData.Interactions {
			for _, entry := range group.Medications {
				if strings.Contains(strings.ToLower(entry), needle) {
					return true
				}
			}
		}
	}
	return false
}

// emptyStomachConflict: one side is tagged empty_stomach, its time is within
// the proximity window of the other, and the other's time falls inside any
// meal window. Checked in both directions.
func emptyStomachConflict(a, b Entry, at, bt, distance int, meals MealTimes) bool {
	if distance > proximityWindow {
		return false
	}
	if a.MealRelation == EmptyStomach && inAnyMealWindow(bt, meals) {
		return true
	}
	if b.MealRelation == EmptyStomach && inAnyMealWindow(at, meals) {
		return true
	}
	return false
}

// beforeAfterConflict: one side is before_meal and the other with_meal or
// after_meal, within the 60 minute window, in either direction.
func beforeAfterConflict(a, b Entry, distance int) bool {
	if distance > beforeAfterWindow {
		return false
	}
	return (a.MealRelation == BeforeMeal && withOrAfter(b.MealRelation)) ||
		(b.MealRelation == BeforeMeal && withOrAfter(a.MealRelation))
}

func withOrAfter(r MealRelation) bool {
	return r == WithMeal || r == AfterMeal
}

// inAnyMealWindow reports whether t falls inside the window around any meal
// anchor, spanning mealWindowBefore minutes before to mealWindowAfter after.
// Anchors that fail to parse are skipped.
func inAnyMealWindow(t int, meals MealTimes) bool {
	for _, anchor := range meals.anchors() {
		am, ok := parseClock(anchor)
		if !ok {
			continue
		}
		if t >= am-mealWindowBefore && t <= am+mealWindowAfter {
			return true
		}
	}
	return false
}
