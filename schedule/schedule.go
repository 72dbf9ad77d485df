// Package schedule provides the stateless medication scheduling utilities:
// a conflict detector that decides whether two medication schedules are
// unsafe to run concurrently, and a dosing-time optimizer that derives
// default administration times from a frequency descriptor. Both functions
// are pure and re-entrant; malformed inputs degrade to safe fallbacks
// rather than errors.
package schedule

// MealRelation describes how an administration relates to food intake.
type MealRelation string

const (
	BeforeMeal   MealRelation = "before_meal"
	WithMeal     MealRelation = "with_meal"
	AfterMeal    MealRelation = "after_meal"
	EmptyStomach MealRelation = "empty_stomach"
	AnyRelation  MealRelation = "any"
)

// InteractionGroup is one group of interacting medications from an enriched
// knowledge source.
type InteractionGroup struct {
	Medications []string `json:"medications"`
}

// EnrichedData carries structured interaction data supplied by the
// medication-knowledge collaborator.
type EnrichedData struct {
	Interactions []InteractionGroup `json:"interactions,omitempty"`
}

// Medication is the reference a schedule carries. Interaction data is
// consumed read-only; it originates in an external knowledge base.
type Medication struct {
	Name         string        `json:"name"`
	Interactions []string      `json:"interactions,omitempty"`
	EnrichedData *EnrichedData `json:"enriched_data,omitempty"`
}

// Entry is one planned administration of a medication. Time is a local
// clock time in HH:MM form; the detector tolerates malformed values.
type Entry struct {
	Time         string       `json:"time"`
	MealRelation MealRelation `json:"meal_relation,omitempty"`
	Medication   Medication   `json:"medication"`
}

// FindingType classifies a detected conflict.
type FindingType string

const (
	FindingInteraction   FindingType = "interaction"
	FindingTimingOverlap FindingType = "timing_overlap"
	FindingMealConflict  FindingType = "meal_conflict"
)

// Severity grades a finding for display purposes. The per-pair verdict is
// the contract; severity is a presentation nuance.
type Severity string

const (
	SeverityHigh     Severity = "high"
	SeverityModerate Severity = "moderate"
)

// Finding is one detected conflict between the candidate schedule and an
// existing one.
type Finding struct {
	Type        FindingType `json:"type"`
	Severity    Severity    `json:"severity"`
	Description string      `json:"description"`
	Related     Entry       `json:"related_schedule"`
}

// MealTimes holds the clock anchors for the three daily meals. Empty fields
// fall back to the defaults, so callers may override any subset.
type MealTimes struct {
	Breakfast string `json:"breakfast,omitempty" yaml:"breakfast,omitempty"`
	Lunch     string `json:"lunch,omitempty" yaml:"lunch,omitempty"`
	Dinner    string `json:"dinner,omitempty" yaml:"dinner,omitempty"`
}

// DefaultMealTimes returns the fixed default meal anchors.
func DefaultMealTimes() MealTimes {
	return MealTimes{
		Breakfast: "07:00",
		Lunch:     "13:00",
		Dinner:    "19:00",
	}
}

// withDefaults fills empty fields from the defaults.
func (m MealTimes) withDefaults() MealTimes {
	def := DefaultMealTimes()
	if m.Breakfast == "" {
		m.Breakfast = def.Breakfast
	}
	if m.Lunch == "" {
		m.Lunch = def.Lunch
	}
	if m.Dinner == "" {
		m.Dinner = def.Dinner
	}
	return m
}

// anchors returns the meal anchors in day order.
func (m MealTimes) anchors() []string {
	return []string{m.Breakfast, m.Lunch, m.Dinner}
}
