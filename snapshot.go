// Package medsync implements the offline reconciliation core of a personal
// medication tracker: a durable mutation queue, a pure snapshot resolver
// with selectable conflict strategies, and a sync manager that drives both
// against injected storage and transport collaborators.
package medsync

import "time"

// MedicationLog is one entry in the unordered log partition. Entries may
// carry a stable ID; an entry without one can never be matched against
// another entry and is always carried through a merge unmodified.
type MedicationLog struct {
	// ID is the stable identifier, empty for unmatchable entries.
	ID string `json:"id,omitempty"`

	// Status records the clinical outcome, e.g. "taken", "missed", "skipped".
	Status string `json:"status,omitempty"`

	// Timestamp is when the log was recorded. The zero value means the
	// timestamp is missing and sorts before any present timestamp.
	Timestamp time.Time `json:"timestamp,omitempty"`

	// Medication names the medication this entry refers to.
	Medication string `json:"medication,omitempty"`

	// Data holds any additional payload recorded with the entry.
	Data map[string]interface{} `json:"data,omitempty"`
}

// Prescription is an authoritative clinical record keyed by ID. The remote
// system is the source of truth for prescription content.
type Prescription struct {
	ID         string `json:"id"`
	Medication string `json:"medication,omitempty"`
	Dose       string `json:"dose,omitempty"`
	Notes      string `json:"notes,omitempty"`
}

// DomainSnapshot is the unit exchanged by the reconciler: three partitions
// that are always merged independently of each other.
type DomainSnapshot struct {
	MedicationLogs  []MedicationLog        `json:"medication_logs,omitempty"`
	Prescriptions   []Prescription         `json:"prescriptions,omitempty"`
	UserPreferences map[string]interface{} `json:"user_preferences,omitempty"`
}

// Clone returns a copy of the snapshot whose partitions can be modified
// without affecting the receiver. Values nested inside log Data maps are
// shared; the resolver never mutates them.
func (s DomainSnapshot) Clone() DomainSnapshot {
	out := DomainSnapshot{}
	if s.MedicationLogs != nil {
		out.MedicationLogs = make([]MedicationLog, len(s.MedicationLogs))
		copy(out.MedicationLogs, s.MedicationLogs)
	}
	if s.Prescriptions != nil {
		out.Prescriptions = make([]Prescription, len(s.Prescriptions))
		copy(out.Prescriptions, s.Prescriptions)
	}
	if s.UserPreferences != nil {
		out.UserPreferences = make(map[string]interface{}, len(s.UserPreferences))
		for k, v := range s.UserPreferences {
			out.UserPreferences[k] = v
		}
	}
	return out
}

// IsZero reports whether the snapshot carries no data in any partition.
func (s DomainSnapshot) IsZero() bool {
	return len(s.MedicationLogs) == 0 && len(s.Prescriptions) == 0 && len(s.UserPreferences) == 0
}
