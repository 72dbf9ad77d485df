package medsync

import (
	"reflect"
	"testing"
	"time"

	syncErrors "github.com/dosetrack/medsync/errors"
)

var (
	t0 = time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	t1 = time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC)
)

func sampleSnapshot() DomainSnapshot {
	return DomainSnapshot{
		MedicationLogs: []MedicationLog{
			{ID: "1", Status: "taken", Timestamp: t0, Medication: "metformin"},
			{ID: "2", Status: "missed", Timestamp: t1, Medication: "lisinopril"},
		},
		Prescriptions: []Prescription{
			{ID: "rx1", Medication: "metformin", Dose: "500mg twice daily"},
		},
		UserPreferences: map[string]interface{}{
			"reminders": true,
			"tone":      "chime",
		},
	}
}

func TestParseStrategy(t *testing.T) {
	for _, valid := range []string{"local_wins", "server_wins", "medical_priority"} {
		if _, err := ParseStrategy(valid); err != nil {
			t.Fatalf("ParseStrategy(%q) error: %v", valid, err)
		}
	}
	if _, err := ParseStrategy("merge"); err == nil {
		t.Fatal("expected error for unimplemented strategy")
	}
	if _, err := ParseStrategy(""); err == nil {
		t.Fatal("expected error for empty strategy")
	}
}

func TestResolveIdentityProjections(t *testing.T) {
	local := sampleSnapshot()
	server := DomainSnapshot{
		MedicationLogs:  []MedicationLog{{ID: "9", Status: "taken", Timestamp: t1}},
		Prescriptions:   []Prescription{{ID: "rx9", Dose: "10mg"}},
		UserPreferences: map[string]interface{}{"reminders": false},
	}

	got, err := Resolve(local, server, StrategyLocalWins)
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	if !reflect.DeepEqual(got, local) {
		t.Fatalf("local_wins: got %+v, want %+v", got, local)
	}

	got, err = Resolve(local, server, StrategyServerWins)
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	if !reflect.DeepEqual(got, server) {
		t.Fatalf("server_wins: got %+v, want %+v", got, server)
	}
}

func TestResolveIdempotentOnIdenticalInput(t *testing.T) {
	s := sampleSnapshot()
	for _, strategy := range []Strategy{StrategyLocalWins, StrategyServerWins, StrategyMedicalPriority} {
		got, err := Resolve(s, s, strategy)
		if err != nil {
			t.Fatalf("Resolve(%s) error: %v", strategy, err)
		}
		if !reflect.DeepEqual(got, s) {
			t.Fatalf("Resolve(s, s, %s) = %+v, want %+v", strategy, got, s)
		}
	}
}

func TestResolveUnknownStrategy(t *testing.T) {
	_, err := Resolve(sampleSnapshot(), sampleSnapshot(), Strategy("merge"))
	if err == nil {
		t.Fatal("expected error for unknown strategy")
	}
	if syncErrors.CodeOf(err) != syncErrors.ErrCodeValidationFailure {
		t.Fatalf("expected validation failure, got %v", err)
	}
}

func TestMedicalPriorityLaterLogWins(t *testing.T) {
	local := DomainSnapshot{MedicationLogs: []MedicationLog{
		{ID: "1", Status: "taken", Timestamp: t1},
	}}
	server := DomainSnapshot{MedicationLogs: []MedicationLog{
		{ID: "1", Status: "missed", Timestamp: t0},
	}}

	got, err := Resolve(local, server, StrategyMedicalPriority)
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	if len(got.MedicationLogs) != 1 {
		t.Fatalf("expected 1 log, got %d", len(got.MedicationLogs))
	}
	if got.MedicationLogs[0].Status != "taken" {
		t.Fatalf("expected later entry to win, got status %q", got.MedicationLogs[0].Status)
	}

	// Swapped sides: the later entry still wins even when it is remote.
	got, err = Resolve(server, local, StrategyMedicalPriority)
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	if got.MedicationLogs[0].Status != "taken" {
		t.Fatalf("expected later entry to win on swapped sides, got %q", got.MedicationLogs[0].Status)
	}
}

func TestMedicalPriorityLogTieBreaks(t *testing.T) {
	tests := []struct {
		name       string
		localTS    time.Time
		serverTS   time.Time
		wantStatus string
	}{
		{"exact tie prefers local", t1, t1, "local"},
		{"missing local timestamp loses", time.Time{}, t0, "server"},
		{"missing server timestamp loses", t0, time.Time{}, "local"},
		{"both missing prefers local", time.Time{}, time.Time{}, "local"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			local := DomainSnapshot{MedicationLogs: []MedicationLog{
				{ID: "1", Status: "local", Timestamp: tt.localTS},
			}}
			server := DomainSnapshot{MedicationLogs: []MedicationLog{
				{ID: "1", Status: "server", Timestamp: tt.serverTS},
			}}
			got, err := Resolve(local, server, StrategyMedicalPriority)
			if err != nil {
				t.Fatalf("Resolve error: %v", err)
			}
			if got.MedicationLogs[0].Status != tt.wantStatus {
				t.Fatalf("winner = %q, want %q", got.MedicationLogs[0].Status, tt.wantStatus)
			}
		})
	}
}

func TestMedicalPriorityCarriesOneSidedLogs(t *testing.T) {
	local := DomainSnapshot{MedicationLogs: []MedicationLog{
		{ID: "only-local", Status: "taken", Timestamp: t0},
	}}
	server := DomainSnapshot{MedicationLogs: []MedicationLog{
		{ID: "only-server", Status: "missed", Timestamp: t1},
	}}

	got, err := Resolve(local, server, StrategyMedicalPriority)
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	if len(got.MedicationLogs) != 2 {
		t.Fatalf("expected both one-sided entries, got %d", len(got.MedicationLogs))
	}
}

func TestMedicalPriorityRetainsUnidentifiedLogs(t *testing.T) {
	unidentified := MedicationLog{Status: "taken", Timestamp: t0, Medication: "aspirin"}
	local := DomainSnapshot{MedicationLogs: []MedicationLog{unidentified}}
	server := DomainSnapshot{}

	got, err := Resolve(local, server, StrategyMedicalPriority)
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	if len(got.MedicationLogs) != 1 || got.MedicationLogs[0].Medication != "aspirin" {
		t.Fatalf("unidentified local entry missing from merge: %+v", got.MedicationLogs)
	}

	// Identical unidentified entries on both sides are never conflated:
	// both survive, duplicates included.
	server = DomainSnapshot{MedicationLogs: []MedicationLog{unidentified}}
	got, err = Resolve(local, server, StrategyMedicalPriority)
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	if len(got.MedicationLogs) != 2 {
		t.Fatalf("expected both unidentified entries retained, got %d", len(got.MedicationLogs))
	}
}

func TestMedicalPriorityServerWinsPrescriptions(t *testing.T) {
	local := DomainSnapshot{Prescriptions: []Prescription{
		{ID: "rx1", Dose: "500mg once daily"},
		{ID: "rx-local", Dose: "5mg"},
	}}
	server := DomainSnapshot{Prescriptions: []Prescription{
		{ID: "rx1", Dose: "850mg twice daily"},
		{ID: "rx-server", Dose: "20mg"},
	}}

	got, err := Resolve(local, server, StrategyMedicalPriority)
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	if len(got.Prescriptions) != 3 {
		t.Fatalf("expected 3 prescriptions, got %d", len(got.Prescriptions))
	}
	byID := map[string]Prescription{}
	for _, rx := range got.Prescriptions {
		byID[rx.ID] = rx
	}
	if byID["rx1"].Dose != "850mg twice daily" {
		t.Fatalf("expected server dose text for rx1, got %q", byID["rx1"].Dose)
	}
	if _, ok := byID["rx-local"]; !ok {
		t.Fatal("local-only prescription dropped")
	}
	if _, ok := byID["rx-server"]; !ok {
		t.Fatal("server-only prescription dropped")
	}
}

func TestMedicalPriorityPreferencesOverlay(t *testing.T) {
	local := DomainSnapshot{UserPreferences: map[string]interface{}{
		"reminders": true,
		"tone":      "chime",
	}}
	server := DomainSnapshot{UserPreferences: map[string]interface{}{
		"reminders": false,
	}}

	got, err := Resolve(local, server, StrategyMedicalPriority)
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	want := map[string]interface{}{"reminders": true, "tone": "chime"}
	if !reflect.DeepEqual(got.UserPreferences, want) {
		t.Fatalf("preferences = %v, want %v", got.UserPreferences, want)
	}

	// Server-only keys survive the overlay.
	server.UserPreferences["theme"] = "dark"
	got, err = Resolve(local, server, StrategyMedicalPriority)
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	if got.UserPreferences["theme"] != "dark" {
		t.Fatalf("server-only preference dropped: %v", got.UserPreferences)
	}
}

func TestResolveDoesNotMutateInputs(t *testing.T) {
	local := sampleSnapshot()
	server := DomainSnapshot{
		MedicationLogs: []MedicationLog{
			{ID: "1", Status: "missed", Timestamp: t1.Add(time.Hour)},
		},
		Prescriptions:   []Prescription{{ID: "rx1", Dose: "changed"}},
		UserPreferences: map[string]interface{}{"reminders": false},
	}
	localBefore := local.Clone()
	serverBefore := server.Clone()

	if _, err := Resolve(local, server, StrategyMedicalPriority); err != nil {
		t.Fatalf("Resolve error: %v", err)
	}

	if !reflect.DeepEqual(local, localBefore) {
		t.Fatal("Resolve mutated its local input")
	}
	if !reflect.DeepEqual(server, serverBefore) {
		t.Fatal("Resolve mutated its server input")
	}
}

func TestResolveTotalOnEmptySnapshots(t *testing.T) {
	for _, strategy := range []Strategy{StrategyLocalWins, StrategyServerWins, StrategyMedicalPriority} {
		got, err := Resolve(DomainSnapshot{}, DomainSnapshot{}, strategy)
		if err != nil {
			t.Fatalf("Resolve(%s) on empty snapshots: %v", strategy, err)
		}
		if !got.IsZero() {
			t.Fatalf("expected zero snapshot, got %+v", got)
		}
	}
}
