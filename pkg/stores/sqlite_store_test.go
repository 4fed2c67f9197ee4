package stores

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/tessera-run/tessera/pkg/discovery"
	"github.com/tessera-run/tessera/pkg/markers"
	"github.com/tessera-run/tessera/pkg/policy"
	"github.com/tessera-run/tessera/pkg/settings"
)

// setupTestStore creates an in-memory SQLite store for testing
func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	store, err := Open(context.Background(), MemoryPath)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	return store
}

func testReport(runID string, started time.Time, methods ...string) *discovery.Report {
	priority := 1
	asm := discovery.AssemblyReport{
		Assembly: "Contoso.Tests",
		Settings: settings.Settings{Workers: 4, Scope: markers.MethodLevel, CanParallelize: true},
	}
	for _, m := range methods {
		asm.Tests = append(asm.Tests, discovery.TestCase{
			ID:         "[Contoso.Tests]Contoso.Tests.LoginTests." + m,
			Assembly:   "Contoso.Tests",
			Class:      "Contoso.Tests.LoginTests",
			Method:     m,
			Categories: []string{"auth"},
			Priority:   &priority,
			Properties: map[string]string{"area": "login"},
		})
	}

	return &discovery.Report{
		RunID:     runID,
		StartedAt: started,
		Duration:  1500 * time.Millisecond,
		Assemblies: []discovery.AssemblyReport{
			asm,
			{
				Assembly: "Contoso.Broken",
				Settings: settings.Settings{Workers: -1},
				Error:    "module image cannot be read",
			},
		},
	}
}

func TestRecordRunTypeFailureIsPartial(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	report := testReport("run-types", time.Now(), "SignIn")
	report.Assemblies = report.Assemblies[:1]
	report.Assemblies[0].Failures = []discovery.TypeFailure{
		{Type: "Contoso.Tests.PluginTests", Error: "assembly not loaded"},
	}

	run, err := store.RecordRun(ctx, "tests.yaml", report, nil)
	if err != nil {
		t.Fatalf("failed to record run: %v", err)
	}
	if run.Status != RunStatusPartial || run.Failed != 0 {
		t.Errorf("expected partial run without failed assemblies, got %s (failed=%d)", run.Status, run.Failed)
	}
}

// TestStoreLifecycle tests database initialization and closure
func TestStoreLifecycle(t *testing.T) {
	store, err := NewSQLiteStore(Config{Path: MemoryPath})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	ctx := context.Background()
	if err := store.Migrate(ctx); err == nil {
		t.Error("expected migrate before init to fail")
	}
	if err := store.Init(ctx); err != nil {
		t.Fatalf("failed to initialize store: %v", err)
	}
	if err := store.HealthCheck(ctx); err != nil {
		t.Fatalf("health check failed: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("failed to close store: %v", err)
	}

	if _, err := NewSQLiteStore(Config{}); err == nil {
		t.Error("expected error for empty path")
	}
}

// TestStoreMigrations tests database migrations
func TestStoreMigrations(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	tables := []string{"runs", "assembly_settings", "test_cases", "violations"}
	for _, table := range tables {
		var count int
		if err := store.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&count); err != nil {
			t.Errorf("table %s does not exist or is not accessible: %v", table, err)
		}
	}

	// Migrating again is a no-op.
	if err := store.Migrate(ctx); err != nil {
		t.Errorf("second migration failed: %v", err)
	}
}

func TestRecordRun(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	report := testReport("run-1", started, "SignIn", "SignOut")
	lint := &policy.Result{
		Allowed: false,
		Violations: []policy.Violation{
			{Policy: "timeout-positive", TestID: report.Assemblies[0].Tests[0].ID, Message: "bad timeout", Severity: policy.SeverityError},
		},
		EvaluatedPolicies: []string{"timeout-positive"},
	}

	run, err := store.RecordRun(ctx, "tests.yaml", report, lint)
	if err != nil {
		t.Fatalf("failed to record run: %v", err)
	}
	if run.Status != RunStatusPartial {
		t.Errorf("expected partial status, got %s", run.Status)
	}

	got, err := store.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("failed to get run: %v", err)
	}
	if got.Manifest != "tests.yaml" || got.Tests != 2 || got.Assemblies != 2 || got.Failed != 1 || got.Violations != 1 {
		t.Errorf("unexpected run summary: %+v", got)
	}
	if !got.StartedAt.Equal(started) {
		t.Errorf("expected started_at %v, got %v", started, got.StartedAt)
	}
	if got.Duration != 1500*time.Millisecond {
		t.Errorf("expected duration 1.5s, got %v", got.Duration)
	}
	if got.Metadata != `{"evaluated_policies":["timeout-positive"],"allowed":false}` {
		t.Errorf("unexpected metadata: %s", got.Metadata)
	}

	assemblies, err := store.ListAssemblies(ctx, "run-1")
	if err != nil {
		t.Fatalf("failed to list assemblies: %v", err)
	}
	if len(assemblies) != 2 {
		t.Fatalf("expected 2 assemblies, got %d", len(assemblies))
	}
	if a := assemblies[0]; a.Assembly != "Contoso.Tests" || a.Workers != 4 || a.Scope != "MethodLevel" || !a.CanParallelize || a.Tests != 2 || a.Error != nil {
		t.Errorf("unexpected assembly record: %+v", a)
	}
	if b := assemblies[1]; b.Error == nil || *b.Error != "module image cannot be read" {
		t.Errorf("expected broken assembly error, got %+v", b)
	}

	tests, err := store.ListTests(ctx, "run-1")
	if err != nil {
		t.Fatalf("failed to list tests: %v", err)
	}
	if len(tests) != 2 || tests[0].Method != "SignIn" || tests[1].Method != "SignOut" {
		t.Fatalf("unexpected tests: %+v", tests)
	}
	if *tests[0].Priority != 1 || tests[0].Properties["area"] != "login" || tests[0].Categories[0] != "auth" {
		t.Errorf("test metadata did not round-trip: %+v", tests[0])
	}

	violations, err := store.ListViolations(ctx, "run-1")
	if err != nil {
		t.Fatalf("failed to list violations: %v", err)
	}
	if len(violations) != 1 || violations[0] != lint.Violations[0] {
		t.Errorf("unexpected violations: %+v", violations)
	}
}

func TestRecordRun_AssignsID(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	report := testReport("", time.Now(), "SignIn")
	run, err := store.RecordRun(ctx, "tests.yaml", report, nil)
	if err != nil {
		t.Fatalf("failed to record run: %v", err)
	}
	if run.ID == "" || report.RunID != run.ID {
		t.Errorf("expected generated run id, got %q", run.ID)
	}
	if run.Violations != 0 || run.Metadata != "{}" {
		t.Errorf("expected no lint data, got %+v", run)
	}

	// Recording the same run twice is rejected.
	if _, err := store.RecordRun(ctx, "tests.yaml", report, nil); err == nil {
		t.Error("expected duplicate run to fail")
	}
	tests, err := store.ListTests(ctx, run.ID)
	if err != nil {
		t.Fatalf("failed to list tests: %v", err)
	}
	if len(tests) != 1 {
		t.Errorf("expected failed duplicate to roll back, got %d tests", len(tests))
	}
}

func TestGetRun_Prefix(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"abc123", "abd456"} {
		if _, err := store.RecordRun(ctx, "m", testReport(id, time.Now(), "A"), nil); err != nil {
			t.Fatalf("failed to record run: %v", err)
		}
	}

	run, err := store.GetRun(ctx, "abc")
	if err != nil {
		t.Fatalf("expected prefix match: %v", err)
	}
	if run.ID != "abc123" {
		t.Errorf("expected abc123, got %s", run.ID)
	}

	if _, err := store.GetRun(ctx, "ab"); err == nil {
		t.Error("expected ambiguous prefix error")
	}

	_, err = store.GetRun(ctx, "zzz")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	// LIKE wildcards in the prefix are literal.
	if _, err := store.GetRun(ctx, "a_c"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for wildcard prefix, got %v", err)
	}
}

func TestListAndPruneRuns(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		report := testReport(fmt.Sprintf("run-%d", i), base.Add(time.Duration(i)*time.Hour), "A")
		if _, err := store.RecordRun(ctx, "m", report, nil); err != nil {
			t.Fatalf("failed to record run: %v", err)
		}
	}

	runs, err := store.ListRuns(ctx, 2, 0)
	if err != nil {
		t.Fatalf("failed to list runs: %v", err)
	}
	if len(runs) != 2 || runs[0].ID != "run-4" || runs[1].ID != "run-3" {
		t.Errorf("expected newest runs first, got %v", runIDs(runs))
	}

	runs, err = store.ListRuns(ctx, 10, 3)
	if err != nil {
		t.Fatalf("failed to list runs: %v", err)
	}
	if len(runs) != 2 || runs[0].ID != "run-1" {
		t.Errorf("unexpected page: %v", runIDs(runs))
	}

	pruned, err := store.PruneRuns(ctx, base.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("failed to prune: %v", err)
	}
	if pruned != 2 {
		t.Errorf("expected 2 pruned runs, got %d", pruned)
	}

	// Child rows go with the run.
	tests, err := store.ListTests(ctx, "run-0")
	if err != nil {
		t.Fatalf("failed to list tests: %v", err)
	}
	if len(tests) != 0 {
		t.Errorf("expected cascaded delete, got %d tests", len(tests))
	}

	if err := store.DeleteRun(ctx, "run-4"); err != nil {
		t.Fatalf("failed to delete run: %v", err)
	}
	if err := store.DeleteRun(ctx, "run-4"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestDiffRuns(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	if _, err := store.RecordRun(ctx, "m", testReport("before", time.Now(), "A", "B", "C"), nil); err != nil {
		t.Fatalf("failed to record run: %v", err)
	}
	if _, err := store.RecordRun(ctx, "m", testReport("after", time.Now(), "B", "C", "D", "E"), nil); err != nil {
		t.Fatalf("failed to record run: %v", err)
	}

	diff, err := store.DiffRuns(ctx, "before", "after")
	if err != nil {
		t.Fatalf("failed to diff runs: %v", err)
	}

	prefix := "[Contoso.Tests]Contoso.Tests.LoginTests."
	if len(diff.Added) != 2 || diff.Added[0] != prefix+"D" || diff.Added[1] != prefix+"E" {
		t.Errorf("unexpected added: %v", diff.Added)
	}
	if len(diff.Removed) != 1 || diff.Removed[0] != prefix+"A" {
		t.Errorf("unexpected removed: %v", diff.Removed)
	}

	if _, err := store.DiffRuns(ctx, "before", "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func runIDs(runs []*Run) []string {
	ids := make([]string, len(runs))
	for i, r := range runs {
		ids[i] = r.ID
	}
	return ids
}
