package store

import (
	"context"
	"testing"
	"time"

	"github.com/adonese/storewatch/track_fields"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	db, err := OpenFromConfig("", ":memory:", "sqlite3")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := Migrate(context.Background(), db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return New(db)
}

func seedRun(t *testing.T, s *Store, id string) {
	t.Helper()
	if err := s.CreateRun(context.Background(), &track_fields.Run{ID: id, StartedAt: time.Now()}); err != nil {
		t.Fatalf("create run: %v", err)
	}
}

func TestRunLifecycle(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	seedRun(t, s, "run-1")

	run := &track_fields.Run{ID: "run-1", Tabs: 2, Checks: 10, Errors: 1}
	if err := s.FinishRun(ctx, run); err != nil {
		t.Fatalf("finish run: %v", err)
	}

	runs, err := s.ListRuns(ctx, 10)
	if err != nil {
		t.Fatalf("list runs: %v", err)
	}
	if len(runs) != 1 || runs[0].Checks != 10 || runs[0].FinishedAt == nil {
		t.Errorf("unexpected runs: %+v", runs)
	}

	count, err := s.RunsCount(ctx)
	if err != nil || count != 1 {
		t.Errorf("RunsCount() = %d, %v", count, err)
	}
}

func TestChecksAndLatestStatuses(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	seedRun(t, s, "run-1")
	seedRun(t, s, "run-2")

	insert := func(runID, link, status string, row int) {
		t.Helper()
		err := s.InsertCheck(ctx, &track_fields.CheckResult{
			RunID: runID, Tab: "Bangalore", Row: row,
			Brand: "Biryani House", Aggregator: "Swiggy",
			Link: link, Status: status,
		})
		if err != nil {
			t.Fatalf("insert check: %v", err)
		}
	}

	insert("run-1", "www.swiggy.com/a", "Available", 4)
	insert("run-1", "www.swiggy.com/b", "Closed", 5)
	insert("run-2", "www.swiggy.com/a", "Closed", 4)

	latest, err := s.LatestStatuses(ctx)
	if err != nil {
		t.Fatalf("latest statuses: %v", err)
	}
	if len(latest) != 2 {
		t.Fatalf("got %d latest rows, want 2", len(latest))
	}
	for _, c := range latest {
		if c.Link == "www.swiggy.com/a" && c.Status != "Closed" {
			t.Errorf("latest for a = %q, want the run-2 status", c.Status)
		}
	}

	prev, err := s.PreviousStatus(ctx, "www.swiggy.com/a", "run-2")
	if err != nil || prev != "Available" {
		t.Errorf("PreviousStatus() = %q, %v", prev, err)
	}
	prev, err = s.PreviousStatus(ctx, "www.swiggy.com/never", "run-2")
	if err != nil || prev != "" {
		t.Errorf("PreviousStatus() for unknown link = %q, %v", prev, err)
	}

	byRun, err := s.ChecksByRun(ctx, "run-1")
	if err != nil || len(byRun) != 2 {
		t.Errorf("ChecksByRun() = %d rows, %v", len(byRun), err)
	}

	history, err := s.ChecksByLink(ctx, "www.swiggy.com/a", 10)
	if err != nil || len(history) != 2 {
		t.Fatalf("ChecksByLink() = %d rows, %v", len(history), err)
	}
	if history[0].RunID != "run-2" {
		t.Errorf("history should be newest first, got %+v", history[0])
	}
}

func TestAPIKeys(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	if err := s.CreateAPIKey(ctx, "Ops@Example.com", "sekrit"); err != nil {
		t.Fatalf("create api key: %v", err)
	}
	ok, err := s.ValidateAPIKey(ctx, "ops@example.com", "sekrit")
	if err != nil || !ok {
		t.Errorf("ValidateAPIKey(correct) = %v, %v", ok, err)
	}
	ok, err = s.ValidateAPIKey(ctx, "ops@example.com", "wrong")
	if err != nil || ok {
		t.Errorf("ValidateAPIKey(wrong) = %v, %v", ok, err)
	}
}

func TestDeviceTokens(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	if err := s.SaveDeviceToken(ctx, "tok-1", "ops phone"); err != nil {
		t.Fatalf("save token: %v", err)
	}
	if err := s.SaveDeviceToken(ctx, "tok-1", "ops phone renamed"); err != nil {
		t.Fatalf("upsert token: %v", err)
	}
	tokens, err := s.ListDeviceTokens(ctx)
	if err != nil || len(tokens) != 1 || tokens[0] != "tok-1" {
		t.Errorf("ListDeviceTokens() = %v, %v", tokens, err)
	}
}

func TestPreviousStatusErrors(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	// A link never checked before is not an error, just empty.
	prev, err := s.PreviousStatus(ctx, "https://www.swiggy.com/none", "run-1")
	if err != nil || prev != "" {
		t.Errorf("PreviousStatus(unknown link) = %q, %v", prev, err)
	}

	// A real database failure must surface instead of reading as
	// "never checked", which would silently swallow flip alerts.
	s.DB.Close()
	if _, err := s.PreviousStatus(ctx, "https://www.swiggy.com/none", "run-1"); err == nil {
		t.Error("closed database must return an error")
	}
}
