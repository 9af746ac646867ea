package engine_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"planline/internal/config"
	"planline/internal/db"
	"planline/internal/engine"
	"planline/internal/migrate"
	"planline/internal/repo"
)

// fixedNow anchors every test run: Monday 2026-01-05 09:00 UTC.
var fixedNow = time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)

func newTestEngine(t *testing.T) engine.Engine {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, config.Default())
	e.Now = func() time.Time { return fixedNow }
	return e
}

func mustCreate(t *testing.T, e engine.Engine, opts engine.TaskCreateOptions) {
	t.Helper()
	if _, err := e.CreateTask(context.Background(), opts); err != nil {
		t.Fatalf("create %s: %v", opts.ID, err)
	}
}

func hoursPtr(v float64) *float64 { return &v }

func TestCreateTaskDefaults(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	created, err := e.CreateTask(ctx, engine.TaskCreateOptions{Name: "write report"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.ID == "" {
		t.Fatal("expected a generated id")
	}
	if created.Priority != 1 {
		t.Fatalf("expected default priority 1, got %d", created.Priority)
	}
	got, err := e.Repo.GetTask(ctx, created.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != "pending" || got.Name != "write report" {
		t.Fatalf("unexpected stored task %+v", got)
	}
}

func TestCreateTaskValidation(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	cases := []struct {
		name string
		opts engine.TaskCreateOptions
		want string
	}{
		{"empty name", engine.TaskCreateOptions{}, "name is required"},
		{"zero hours", engine.TaskCreateOptions{Name: "t", EstimatedHours: hoursPtr(0)}, "must be positive"},
		{"negative priority", engine.TaskCreateOptions{Name: "t", Priority: -1}, "priority"},
		{"missing parent", engine.TaskCreateOptions{Name: "t", ParentID: "ghost"}, "ghost"},
		{"missing dependency", engine.TaskCreateOptions{Name: "t", DependsOn: []string{"ghost"}}, "ghost"},
	}
	for _, tc := range cases {
		_, err := e.CreateTask(ctx, tc.opts)
		if err == nil || !strings.Contains(err.Error(), tc.want) {
			t.Fatalf("%s: expected error containing %q, got %v", tc.name, tc.want, err)
		}
	}
}

func TestReparentRejectsCycle(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	mustCreate(t, e, engine.TaskCreateOptions{ID: "a", Name: "a"})
	mustCreate(t, e, engine.TaskCreateOptions{ID: "b", Name: "b", ParentID: "a"})

	parent := "b"
	_, err := e.UpdateTask(ctx, engine.TaskUpdateOptions{ID: "a", SetParent: &parent})
	if err == nil || !strings.Contains(err.Error(), "cycle") {
		t.Fatalf("expected cycle error, got %v", err)
	}
}

func TestUpdateTaskStatusTransitions(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	mustCreate(t, e, engine.TaskCreateOptions{ID: "t", Name: "t"})

	if _, err := e.UpdateTask(ctx, engine.TaskUpdateOptions{ID: "t", Status: "completed"}); err == nil {
		t.Fatal("pending -> completed must be rejected without force")
	}
	if _, err := e.UpdateTask(ctx, engine.TaskUpdateOptions{ID: "t", Status: "in_progress"}); err != nil {
		t.Fatalf("pending -> in_progress: %v", err)
	}
	got, err := e.UpdateTask(ctx, engine.TaskUpdateOptions{ID: "t", Status: "completed"})
	if err != nil {
		t.Fatalf("in_progress -> completed: %v", err)
	}
	if got.Status != "completed" {
		t.Fatalf("expected completed, got %s", got.Status)
	}
	if _, err := e.UpdateTask(ctx, engine.TaskUpdateOptions{ID: "t", Status: "pending"}); err == nil {
		t.Fatal("completed -> pending must be rejected without force")
	}
	if _, err := e.UpdateTask(ctx, engine.TaskUpdateOptions{ID: "t", Status: "pending", Force: true}); err != nil {
		t.Fatalf("force transition: %v", err)
	}
}

func TestCompleteTaskChecksDependencies(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	mustCreate(t, e, engine.TaskCreateOptions{ID: "dep", Name: "dep"})
	mustCreate(t, e, engine.TaskCreateOptions{ID: "t", Name: "t", DependsOn: []string{"dep"}})

	if _, err := e.CompleteTask(ctx, "t", "tester", false); err == nil || !strings.Contains(err.Error(), "not completed") {
		t.Fatalf("expected dependency gate, got %v", err)
	}
	if _, err := e.CompleteTask(ctx, "dep", "tester", false); err != nil {
		t.Fatalf("complete dep: %v", err)
	}
	got, err := e.CompleteTask(ctx, "t", "tester", false)
	if err != nil {
		t.Fatalf("complete t: %v", err)
	}
	if got.Status != "completed" {
		t.Fatalf("expected completed, got %s", got.Status)
	}
}

func TestCompleteTaskForceBypassesDependencies(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	mustCreate(t, e, engine.TaskCreateOptions{ID: "dep", Name: "dep"})
	mustCreate(t, e, engine.TaskCreateOptions{ID: "t", Name: "t", DependsOn: []string{"dep"}})
	if _, err := e.CompleteTask(ctx, "t", "tester", true); err != nil {
		t.Fatalf("force complete: %v", err)
	}
}

func TestDeleteTaskRefusesWithSubtasks(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	mustCreate(t, e, engine.TaskCreateOptions{ID: "par", Name: "par"})
	mustCreate(t, e, engine.TaskCreateOptions{ID: "child", Name: "child", ParentID: "par"})

	if err := e.DeleteTask(ctx, "par", "tester"); err == nil || !strings.Contains(err.Error(), "subtasks") {
		t.Fatalf("expected subtask refusal, got %v", err)
	}
	if err := e.DeleteTask(ctx, "child", "tester"); err != nil {
		t.Fatalf("delete child: %v", err)
	}
	if err := e.DeleteTask(ctx, "par", "tester"); err != nil {
		t.Fatalf("delete parent: %v", err)
	}
	if _, err := e.Repo.GetTask(ctx, "par"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteTaskRecordsAuditEvent(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	mustCreate(t, e, engine.TaskCreateOptions{ID: "t", Name: "doomed"})

	if err := e.DeleteTask(ctx, "t", "tester"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := e.Repo.GetTask(ctx, "t"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	evts, err := e.Repo.LatestEvents(ctx, 5, "task.deleted", "task", "t")
	if err != nil {
		t.Fatalf("latest events: %v", err)
	}
	if len(evts) != 1 {
		t.Fatalf("expected one deletion event, got %d", len(evts))
	}
	if !strings.Contains(evts[0].Payload, "doomed") {
		t.Fatalf("event payload should carry the task name, got %s", evts[0].Payload)
	}
}

func TestAddNote(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	mustCreate(t, e, engine.TaskCreateOptions{ID: "t", Name: "t"})

	if _, err := e.AddNote(ctx, "t", "", "tester"); err == nil {
		t.Fatal("empty note body must be rejected")
	}
	if _, err := e.AddNote(ctx, "ghost", "hello", "tester"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing task, got %v", err)
	}
	n, err := e.AddNote(ctx, "t", "waiting on review", "tester")
	if err != nil {
		t.Fatalf("add note: %v", err)
	}
	notes, err := e.Repo.ListNotes(ctx, "t")
	if err != nil {
		t.Fatalf("list notes: %v", err)
	}
	if len(notes) != 1 || notes[0].ID != n.ID || notes[0].Body != "waiting on review" {
		t.Fatalf("unexpected notes %+v", notes)
	}
}

func TestCreateAPIKeyStoresOnlyHash(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	k, raw, err := e.CreateAPIKey(ctx, "alice", "laptop")
	if err != nil {
		t.Fatalf("create key: %v", err)
	}
	if raw == "" || k.KeyHash == raw {
		t.Fatal("raw key must be returned and never stored verbatim")
	}
	got, err := e.Repo.GetAPIKeyByHash(ctx, repo.HashAPIKey(raw))
	if err != nil {
		t.Fatalf("lookup by hash: %v", err)
	}
	if got.ActorID != "alice" || got.Name != "laptop" {
		t.Fatalf("unexpected key %+v", got)
	}
}

func TestOptimizePersistsSchedule(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	mustCreate(t, e, engine.TaskCreateOptions{ID: "a", Name: "a", EstimatedHours: hoursPtr(4)})
	mustCreate(t, e, engine.TaskCreateOptions{ID: "b", Name: "b", EstimatedHours: hoursPtr(6)})

	res, err := e.Optimize(ctx, engine.OptimizeRequest{StartDate: fixedNow, ActorID: "tester"})
	if err != nil {
		t.Fatalf("optimize: %v", err)
	}
	if len(res.Scheduled) != 2 || len(res.Failed) != 0 {
		t.Fatalf("expected 2 placements, got %+v", res)
	}

	// Placements survive a reload from the database.
	got, err := e.Repo.GetTask(ctx, "a")
	if err != nil {
		t.Fatalf("get a: %v", err)
	}
	if got.DailyAllocations["2026-01-05"] != 4 {
		t.Fatalf("expected 4 hours on Monday, got %v", got.DailyAllocations)
	}
	if got.PlannedStart == nil || !got.PlannedStart.Equal(fixedNow) {
		t.Fatalf("unexpected planned start %v", got.PlannedStart)
	}

	evts, err := e.Repo.LatestEvents(ctx, 5, "schedule.optimized", "", "")
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(evts) != 1 {
		t.Fatalf("expected one schedule.optimized event, got %d", len(evts))
	}
}

func TestOptimizeUnknownAlgorithm(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	mustCreate(t, e, engine.TaskCreateOptions{ID: "a", Name: "a", EstimatedHours: hoursPtr(4)})
	_, err := e.Optimize(ctx, engine.OptimizeRequest{StartDate: fixedNow, Algorithm: "fastest"})
	if err == nil || !strings.Contains(err.Error(), "unknown algorithm") {
		t.Fatalf("expected unknown algorithm error, got %v", err)
	}
}

func TestWorkloadReportAggregatesStoredAllocations(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	mustCreate(t, e, engine.TaskCreateOptions{ID: "a", Name: "a", EstimatedHours: hoursPtr(4)})
	mustCreate(t, e, engine.TaskCreateOptions{ID: "b", Name: "b", EstimatedHours: hoursPtr(6)})
	if _, err := e.Optimize(ctx, engine.OptimizeRequest{StartDate: fixedNow, ActorID: "tester"}); err != nil {
		t.Fatalf("optimize: %v", err)
	}

	days, err := e.WorkloadReport(ctx)
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	// Default capacity is 6: a fills 4 on Monday, b takes the remaining 2
	// there and 4 on Tuesday.
	if len(days) != 2 || days[0].Day != "2026-01-05" || days[1].Day != "2026-01-06" {
		t.Fatalf("unexpected report %+v", days)
	}
	if days[0].Hours != 6 || days[1].Hours != 4 {
		t.Fatalf("unexpected hours %+v", days)
	}
	if days[0].Tasks["a"] != 4 || days[0].Tasks["b"] != 2 {
		t.Fatalf("unexpected Monday breakdown %+v", days[0].Tasks)
	}
}
