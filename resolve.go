package medsync

import (
	"fmt"

	syncErrors "github.com/dosetrack/medsync/errors"
)

// Strategy selects how Resolve reconciles divergent snapshots. The set is
// closed; Resolve rejects anything else with a validation error.
type Strategy string

const (
	// StrategyLocalWins projects the local snapshot unchanged.
	StrategyLocalWins Strategy = "local_wins"

	// StrategyServerWins projects the server snapshot unchanged.
	StrategyServerWins Strategy = "server_wins"

	// StrategyMedicalPriority applies per-partition, domain-aware rules that
	// never silently drop a clinical event.
	StrategyMedicalPriority Strategy = "medical_priority"
)

// ParseStrategy converts a configuration string into a Strategy.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case StrategyLocalWins, StrategyServerWins, StrategyMedicalPriority:
		return Strategy(s), nil
	default:
		return "", syncErrors.NewValidationError(syncErrors.OpResolve,
			fmt.Errorf("unknown conflict resolution strategy %q", s))
	}
}

// Resolve merges a local and a server snapshot under the given strategy.
// It is pure: no I/O, deterministic for any two well-typed snapshots, and
// it never mutates its inputs. The only error it can return is a validation
// error for an unknown strategy.
func Resolve(local, server DomainSnapshot, strategy Strategy) (DomainSnapshot, error) {
	switch strategy {
	case StrategyLocalWins:
		return local.Clone(), nil
	case StrategyServerWins:
		return server.Clone(), nil
	case StrategyMedicalPriority:
		return DomainSnapshot{
			MedicationLogs:  mergeMedicationLogs(local.MedicationLogs, server.MedicationLogs),
			Prescriptions:   mergePrescriptions(local.Prescriptions, server.Prescriptions),
			UserPreferences: mergePreferences(local.UserPreferences, server.UserPreferences),
		}, nil
	default:
		return DomainSnapshot{}, syncErrors.NewValidationError(syncErrors.OpResolve,
			fmt.Errorf("unknown conflict resolution strategy %q", strategy))
	}
}

// mergeMedicationLogs reconciles the log partition. For an ID present on
// both sides the entry with the later timestamp wins; an exact tie keeps the
// local entry, since it reflects the most recent on-device action. A missing
// timestamp sorts as the lowest possible value, so it always loses against a
// present one. Entries without an ID are carried through from both sides
// without deduplication: an entry with no stable key can never be proven
// redundant, and over-retention of clinical history beats silent loss.
func mergeMedicationLogs(local, server []MedicationLog) []MedicationLog {
	if len(local) == 0 && len(server) == 0 {
		return nil
	}

	serverByID := make(map[string]MedicationLog, len(server))
	for _, entry := range server {
		if entry.ID != "" {
			serverByID[entry.ID] = entry
		}
	}
	localIDs := make(map[string]struct{}, len(local))

	merged := make([]MedicationLog, 0, len(local)+len(server))

	// Local order first: matched IDs resolve to the winner in place,
	// ID-less entries pass straight through.
	for _, entry := range local {
		if entry.ID == "" {
			merged = append(merged, entry)
			continue
		}
		localIDs[entry.ID] = struct{}{}
		remote, ok := serverByID[entry.ID]
		if !ok {
			merged = append(merged, entry)
			continue
		}
		if remote.Timestamp.After(entry.Timestamp) {
			merged = append(merged, remote)
		} else {
			merged = append(merged, entry)
		}
	}

	// Then server-only IDs and the server's ID-less entries, in server order.
	for _, entry := range server {
		if entry.ID == "" {
			merged = append(merged, entry)
			continue
		}
		if _, ok := localIDs[entry.ID]; !ok {
			merged = append(merged, entry)
		}
	}

	return merged
}

// mergePrescriptions matches by ID; when both sides carry the same ID the
// server entry wins outright, because the remote system is the authoritative
// source for prescription content. One-sided entries pass through.
func mergePrescriptions(local, server []Prescription) []Prescription {
	if len(local) == 0 && len(server) == 0 {
		return nil
	}

	serverByID := make(map[string]Prescription, len(server))
	for _, rx := range server {
		serverByID[rx.ID] = rx
	}
	localIDs := make(map[string]struct{}, len(local))

	merged := make([]Prescription, 0, len(local)+len(server))
	for _, rx := range local {
		localIDs[rx.ID] = struct{}{}
		if remote, ok := serverByID[rx.ID]; ok {
			merged = append(merged, remote)
		} else {
			merged = append(merged, rx)
		}
	}
	for _, rx := range server {
		if _, ok := localIDs[rx.ID]; !ok {
			merged = append(merged, rx)
		}
	}

	return merged
}

// mergePreferences overlays the local map onto the server map: every server
// key is retained unless the same key exists locally, in which case the
// local value wins. Preferences are the least safety-critical partition and
// should reflect the user's latest in-app choice.
func mergePreferences(local, server map[string]interface{}) map[string]interface{} {
	if len(local) == 0 && len(server) == 0 {
		return nil
	}

	merged := make(map[string]interface{}, len(local)+len(server))
	for k, v := range server {
		merged[k] = v
	}
	for k, v := range local {
		merged[k] = v
	}
	return merged
}
