package ledger

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/hardenctl/hardenctl/pkg/engine"
)

// setupTestLedger creates a file-backed ledger in a per-test temp dir.
func setupTestLedger(t *testing.T) *SQLiteLedger {
	t.Helper()

	l, err := New(Config{Path: filepath.Join(t.TempDir(), "ledger.db")})
	if err != nil {
		t.Fatalf("failed to create ledger: %v", err)
	}

	ctx := context.Background()
	if err := l.Init(ctx); err != nil {
		t.Fatalf("failed to initialize ledger: %v", err)
	}
	if err := l.Migrate(ctx); err != nil {
		t.Fatalf("failed to migrate ledger: %v", err)
	}

	t.Cleanup(func() { _ = l.Close() })
	return l
}

func testRun(id string) *engine.Run {
	return &engine.Run{
		ID: id,
		Flags: engine.RunFlags{
			Mode:          engine.ModeApply,
			Interactivity: engine.NonInteractive,
		},
		Status:      engine.RunStatusInit,
		StartedAt:   time.Now().UTC().Truncate(time.Second),
		ToolVersion: "1.0.0",
	}
}

func TestLedgerLifecycle(t *testing.T) {
	l := setupTestLedger(t)

	if err := l.HealthCheck(context.Background()); err != nil {
		t.Fatalf("health check failed: %v", err)
	}
}

func TestLedgerRequiresPath(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatal("Expected error for empty path")
	}
}

func TestRunRoundTrip(t *testing.T) {
	l := setupTestLedger(t)
	ctx := context.Background()

	run := testRun("run-1")
	if err := l.BeginRun(ctx, run); err != nil {
		t.Fatalf("BeginRun failed: %v", err)
	}
	if err := l.CompleteRun(ctx, run.ID, engine.RunStatusDone); err != nil {
		t.Fatalf("CompleteRun failed: %v", err)
	}

	got, err := l.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if got.ID != run.ID {
		t.Errorf("Expected run ID %s, got %s", run.ID, got.ID)
	}
	if got.Status != engine.RunStatusDone {
		t.Errorf("Expected done status, got %s", got.Status)
	}
	if got.Flags.Mode != engine.ModeApply || got.Flags.Interactivity != engine.NonInteractive {
		t.Errorf("Flags not round-tripped: %+v", got.Flags)
	}
	if got.CompletedAt == nil {
		t.Error("Terminal run should carry a completion time")
	}
	if got.ToolVersion != "1.0.0" {
		t.Errorf("Expected tool version 1.0.0, got %s", got.ToolVersion)
	}
}

func TestCompleteRunUnknownID(t *testing.T) {
	l := setupTestLedger(t)

	err := l.CompleteRun(context.Background(), "missing", engine.RunStatusDone)
	if err == nil {
		t.Fatal("Expected error for unknown run ID")
	}
}

func TestOutcomeRoundTrip(t *testing.T) {
	l := setupTestLedger(t)
	ctx := context.Background()

	run := testRun("run-1")
	if err := l.BeginRun(ctx, run); err != nil {
		t.Fatalf("BeginRun failed: %v", err)
	}

	outcome := &engine.Outcome{
		ID:     "out-1",
		RunID:  run.ID,
		UnitID: "file.banner",
		Observed: engine.ObservedState{
			Code:      engine.StatePresent,
			Value:     "old content",
			Hash:      "abc123",
			CheckedAt: time.Now().UTC(),
		},
		Action:      engine.ActionApply,
		Applied:     true,
		AppliedHash: "def456",
		ToolVersion: "1.0.0",
		Timestamp:   time.Now().UTC(),
	}
	if err := l.Record(ctx, outcome); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	got, err := l.PriorOutcome(ctx, "file.banner")
	if err != nil {
		t.Fatalf("PriorOutcome failed: %v", err)
	}
	if got == nil {
		t.Fatal("Expected recorded outcome")
	}
	if got.Observed.Code != engine.StatePresent || got.Observed.Hash != "abc123" {
		t.Errorf("Observed state not round-tripped: %+v", got.Observed)
	}
	if !got.Applied || got.AppliedHash != "def456" {
		t.Errorf("Applied fields not round-tripped: applied=%v hash=%s", got.Applied, got.AppliedHash)
	}
	if got.Error != nil {
		t.Errorf("Expected nil error, got %+v", got.Error)
	}
}

func TestOutcomeErrorRoundTrip(t *testing.T) {
	l := setupTestLedger(t)
	ctx := context.Background()

	run := testRun("run-1")
	if err := l.BeginRun(ctx, run); err != nil {
		t.Fatalf("BeginRun failed: %v", err)
	}

	outcome := &engine.Outcome{
		ID:     "out-1",
		RunID:  run.ID,
		UnitID:   "pkg.aide",
		Action:   engine.ActionApply,
		Observed: engine.ObservedState{Code: engine.StateAbsent},
		Error: &engine.OutcomeError{
			Class:       engine.ClassMutator,
			Code:        engine.CodeMutatorFailed,
			Message:     "install failed",
			Remediation: "check network and re-run",
		},
		ToolVersion: "1.0.0",
		Timestamp:   time.Now().UTC(),
	}
	if err := l.Record(ctx, outcome); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	got, err := l.PriorOutcome(ctx, "pkg.aide")
	if err != nil {
		t.Fatalf("PriorOutcome failed: %v", err)
	}
	if got.Error == nil {
		t.Fatal("Expected persisted error")
	}
	if got.Error.Class != engine.ClassMutator || got.Error.Code != engine.CodeMutatorFailed {
		t.Errorf("Error not round-tripped: %+v", got.Error)
	}
}

func TestPriorOutcomeReturnsNewest(t *testing.T) {
	l := setupTestLedger(t)
	ctx := context.Background()

	run := testRun("run-1")
	if err := l.BeginRun(ctx, run); err != nil {
		t.Fatalf("BeginRun failed: %v", err)
	}

	base := time.Now().UTC()
	for i, action := range []engine.Action{engine.ActionApply, engine.ActionSkip} {
		outcome := &engine.Outcome{
			ID:          "out-" + string(rune('a'+i)),
			RunID:       run.ID,
			UnitID:      "svc.auditd",
			Action:      action,
			Applied:     action == engine.ActionApply,
			Observed:    engine.ObservedState{Code: engine.StatePresent},
			ToolVersion: "1.0.0",
			Timestamp:   base.Add(time.Duration(i) * time.Second),
		}
		if err := l.Record(ctx, outcome); err != nil {
			t.Fatalf("Record failed: %v", err)
		}
	}

	got, err := l.PriorOutcome(ctx, "svc.auditd")
	if err != nil {
		t.Fatalf("PriorOutcome failed: %v", err)
	}
	if got.Action != engine.ActionSkip {
		t.Errorf("Expected newest outcome (skip), got %s", got.Action)
	}

	history, err := l.PriorOutcomes(ctx, "svc.auditd")
	if err != nil {
		t.Fatalf("PriorOutcomes failed: %v", err)
	}
	if len(history) != 2 || history[0].Action != engine.ActionSkip {
		t.Errorf("Expected newest-first history, got %+v", history)
	}
}

func TestPriorOutcomeUnknownUnit(t *testing.T) {
	l := setupTestLedger(t)

	got, err := l.PriorOutcome(context.Background(), "never.seen")
	if err != nil {
		t.Fatalf("PriorOutcome failed: %v", err)
	}
	if got != nil {
		t.Errorf("Expected nil for unknown unit, got %+v", got)
	}
}

func TestLastAppliedSkipsNonApplies(t *testing.T) {
	l := setupTestLedger(t)
	ctx := context.Background()

	run := testRun("run-1")
	if err := l.BeginRun(ctx, run); err != nil {
		t.Fatalf("BeginRun failed: %v", err)
	}

	base := time.Now().UTC()
	outcomes := []*engine.Outcome{
		{ID: "out-1", RunID: run.ID, UnitID: "file.banner", Action: engine.ActionApply,
			Applied: true, AppliedHash: "written-hash",
			Observed:    engine.ObservedState{Code: engine.StateAbsent},
			ToolVersion: "1.0.0", Timestamp: base},
		{ID: "out-2", RunID: run.ID, UnitID: "file.banner", Action: engine.ActionSkip,
			Observed:    engine.ObservedState{Code: engine.StatePresent},
			ToolVersion: "1.0.0", Timestamp: base.Add(time.Second)},
		{ID: "out-3", RunID: run.ID, UnitID: "file.banner", Action: engine.ActionConflict,
			Observed:    engine.ObservedState{Code: engine.StateCustomized},
			ToolVersion: "1.0.0", Timestamp: base.Add(2 * time.Second)},
	}
	for _, o := range outcomes {
		if err := l.Record(ctx, o); err != nil {
			t.Fatalf("Record failed: %v", err)
		}
	}

	got, err := l.LastApplied(ctx, "file.banner")
	if err != nil {
		t.Fatalf("LastApplied failed: %v", err)
	}
	if got == nil || got.AppliedHash != "written-hash" {
		t.Errorf("Expected the applied outcome, got %+v", got)
	}
}

func TestLastRunVersion(t *testing.T) {
	l := setupTestLedger(t)
	ctx := context.Background()

	version, err := l.LastRunVersion(ctx)
	if err != nil {
		t.Fatalf("LastRunVersion failed: %v", err)
	}
	if version != "" {
		t.Errorf("Expected empty version on fresh ledger, got %q", version)
	}

	run := testRun("run-1")
	run.ToolVersion = "2.1.0"
	if err := l.BeginRun(ctx, run); err != nil {
		t.Fatalf("BeginRun failed: %v", err)
	}

	version, err = l.LastRunVersion(ctx)
	if err != nil {
		t.Fatalf("LastRunVersion failed: %v", err)
	}
	if version != "2.1.0" {
		t.Errorf("Expected 2.1.0, got %q", version)
	}
}

func TestBackupRecords(t *testing.T) {
	l := setupTestLedger(t)
	ctx := context.Background()

	run := testRun("run-1")
	if err := l.BeginRun(ctx, run); err != nil {
		t.Fatalf("BeginRun failed: %v", err)
	}

	base := time.Now().UTC()
	records := []*engine.BackupRecord{
		{ID: "bak-1", RunID: run.ID, UnitID: "file.sshd",
			OriginalPath: "/etc/ssh/sshd_config.d/99-hardening.conf",
			BackupPath:   "/var/lib/hardenctl/backups/bak-1",
			ContentHash:  "old-hash", CreatedAt: base},
		{ID: "bak-2", RunID: run.ID, UnitID: "file.sshd",
			OriginalPath: "/etc/ssh/sshd_config.d/99-hardening.conf",
			BackupPath:   "/var/lib/hardenctl/backups/bak-2",
			ContentHash:  "newer-hash", CreatedAt: base.Add(time.Second)},
	}
	for _, rec := range records {
		if err := l.RecordBackup(ctx, rec); err != nil {
			t.Fatalf("RecordBackup failed: %v", err)
		}
	}

	forRun, err := l.BackupsForRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("BackupsForRun failed: %v", err)
	}
	if len(forRun) != 2 {
		t.Fatalf("Expected 2 backup records, got %d", len(forRun))
	}

	latest, err := l.LatestBackup(ctx, "/etc/ssh/sshd_config.d/99-hardening.conf")
	if err != nil {
		t.Fatalf("LatestBackup failed: %v", err)
	}
	if latest == nil || latest.ContentHash != "newer-hash" {
		t.Errorf("Expected newest snapshot, got %+v", latest)
	}

	missing, err := l.LatestBackup(ctx, "/etc/never-touched")
	if err != nil {
		t.Fatalf("LatestBackup failed: %v", err)
	}
	if missing != nil {
		t.Errorf("Expected nil for untouched path, got %+v", missing)
	}
}

func TestBaselinePersistence(t *testing.T) {
	l := setupTestLedger(t)
	ctx := context.Background()

	run := testRun("run-1")
	if err := l.BeginRun(ctx, run); err != nil {
		t.Fatalf("BeginRun failed: %v", err)
	}

	baseline := &engine.Baseline{
		RunID:              run.ID,
		CapturedAt:         time.Now().UTC().Truncate(time.Second),
		FreeDiskKB:         1048576,
		PackageCount:       842,
		ActiveServiceCount: 31,
	}
	if err := l.SaveBaseline(ctx, baseline); err != nil {
		t.Fatalf("SaveBaseline failed: %v", err)
	}

	got, err := l.BaselineForRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("BaselineForRun failed: %v", err)
	}
	if got == nil || got.FreeDiskKB != 1048576 || got.PackageCount != 842 {
		t.Errorf("Baseline not round-tripped: %+v", got)
	}

	full, err := l.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if full.Baseline == nil || full.Baseline.ActiveServiceCount != 31 {
		t.Errorf("GetRun should include the baseline, got %+v", full.Baseline)
	}
}

func TestListRunsOrderAndLimit(t *testing.T) {
	l := setupTestLedger(t)
	ctx := context.Background()

	base := time.Now().UTC().Truncate(time.Second)
	for i := 0; i < 3; i++ {
		run := testRun("run-" + string(rune('a'+i)))
		run.StartedAt = base.Add(time.Duration(i) * time.Minute)
		if err := l.BeginRun(ctx, run); err != nil {
			t.Fatalf("BeginRun failed: %v", err)
		}
	}

	runs, err := l.ListRuns(ctx, 2, 0)
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("Expected 2 runs, got %d", len(runs))
	}
	if runs[0].ID != "run-c" {
		t.Errorf("Expected newest run first, got %s", runs[0].ID)
	}

	latest, err := l.LatestRun(ctx)
	if err != nil {
		t.Fatalf("LatestRun failed: %v", err)
	}
	if latest == nil || latest.ID != "run-c" {
		t.Errorf("Expected run-c as latest, got %+v", latest)
	}
}

func TestLatestRunEmptyLedger(t *testing.T) {
	l := setupTestLedger(t)

	latest, err := l.LatestRun(context.Background())
	if err != nil {
		t.Fatalf("LatestRun failed: %v", err)
	}
	if latest != nil {
		t.Errorf("Expected nil on empty ledger, got %+v", latest)
	}
}

func TestOutcomesForRunAscending(t *testing.T) {
	l := setupTestLedger(t)
	ctx := context.Background()

	run := testRun("run-1")
	if err := l.BeginRun(ctx, run); err != nil {
		t.Fatalf("BeginRun failed: %v", err)
	}

	base := time.Now().UTC()
	for i, unitID := range []string{"pkg.auditd", "svc.auditd", "file.banner"} {
		outcome := &engine.Outcome{
			ID: "out-" + unitID, RunID: run.ID, UnitID: unitID,
			Action:      engine.ActionSkip,
			Observed:    engine.ObservedState{Code: engine.StatePresent},
			ToolVersion: "1.0.0",
			Timestamp: base.Add(time.Duration(i) * time.Second),
		}
		if err := l.Record(ctx, outcome); err != nil {
			t.Fatalf("Record failed: %v", err)
		}
	}

	outcomes, err := l.OutcomesForRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("OutcomesForRun failed: %v", err)
	}
	if len(outcomes) != 3 {
		t.Fatalf("Expected 3 outcomes, got %d", len(outcomes))
	}
	if outcomes[0].UnitID != "pkg.auditd" || outcomes[2].UnitID != "file.banner" {
		t.Errorf("Expected processing order, got %s ... %s",
			outcomes[0].UnitID, outcomes[2].UnitID)
	}
}
