package tracker

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/adonese/storewatch/apperr"
	"github.com/adonese/storewatch/store"
	"github.com/adonese/storewatch/track_fields"
)

type fakeSheets struct {
	mu      sync.Mutex
	tabs    []string
	grids   map[string][][]string
	written map[string]map[int]string
	cols    map[string]int
	stamps  map[string][2]string
	readErr error
}

func (f *fakeSheets) TabNames(context.Context) ([]string, error) {
	return f.tabs, nil
}

func (f *fakeSheets) ReadGrid(_ context.Context, tab string) ([][]string, error) {
	if f.readErr != nil {
		return nil, f.readErr
	}
	return f.grids[tab], nil
}

func (f *fakeSheets) WriteColumn(_ context.Context, tab string, col int, dateStr, timeStr string, results map[int]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.written == nil {
		f.written = map[string]map[int]string{}
		f.cols = map[string]int{}
		f.stamps = map[string][2]string{}
	}
	f.written[tab] = results
	f.cols[tab] = col
	f.stamps[tab] = [2]string{dateStr, timeStr}
	return nil
}

type fakeProber struct {
	mu     sync.Mutex
	probed []string
	status string
}

func (f *fakeProber) Probe(_ context.Context, t track_fields.Target) track_fields.CheckResult {
	f.mu.Lock()
	f.probed = append(f.probed, t.Link)
	f.mu.Unlock()
	status := f.status
	if status == "" {
		status = "Available"
	}
	return track_fields.CheckResult{
		Tab: t.Tab, Row: t.Row, Brand: t.Brand, Location: t.Location,
		Aggregator: t.Aggregator, Link: t.Link,
		Status: status, ETA: "25 mins",
	}
}

type fakeAlerts struct {
	mu    sync.Mutex
	flips []track_fields.StatusFlip
}

func (f *fakeAlerts) Enabled() bool { return true }

func (f *fakeAlerts) Notify(_ context.Context, flip track_fields.StatusFlip) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flips = append(f.flips, flip)
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func testGrid() [][]string {
	return [][]string{
		{},
		{},
		{"Brand", "Location", "Aggregator", "Link", "Latitude", "Longitude"},
		{"Biryani House", "Indiranagar", "Swiggy", "www.swiggy.com/restaurants/x", "12.97", "77.64"},
		{"Pizza Co", "HSR", "Zomato", "www.zomato.com/y", "", ""},
		{"No Link", "BTM", "", "", "", ""},
	}
}

func testService(sheets *fakeSheets, prober *fakeProber) *Service {
	cfg := track_fields.Config{}
	cfg.Defaults()
	cfg.BetweenStoresMs = 1
	cfg.Timezone = "UTC"
	return &Service{
		Sheets: sheets,
		Prober: prober,
		Logger: quietLogger(),
		Config: cfg,
		Clock:  &track_fields.MockClock{Timestamp: time.Date(2025, 8, 1, 10, 15, 9, 0, time.UTC)},
	}
}

func TestProcessTab(t *testing.T) {
	sheets := &fakeSheets{tabs: []string{"Bangalore"}, grids: map[string][][]string{"Bangalore": testGrid()}}
	prober := &fakeProber{}
	s := testService(sheets, prober)

	checks, err := s.processTab(context.Background(), "run-1", "Bangalore")
	if err != nil {
		t.Fatalf("processTab() error: %v", err)
	}
	if checks != 3 {
		t.Errorf("processTab() checks = %d, want 3", checks)
	}
	if len(prober.probed) != 2 {
		t.Errorf("probed %d rows, want 2 (the row without a link is skipped)", len(prober.probed))
	}

	// Longitude is column 6, so the first free column is 7.
	if sheets.cols["Bangalore"] != 7 {
		t.Errorf("log column = %d, want 7", sheets.cols["Bangalore"])
	}
	stamps := sheets.stamps["Bangalore"]
	if stamps[0] != "2025-08-01" || stamps[1] != "10:15:09" {
		t.Errorf("stamps = %v", stamps)
	}

	written := sheets.written["Bangalore"]
	if written[4] != "Available | 25 mins" {
		t.Errorf("row 4 cell = %q", written[4])
	}
	if written[6] != "Missing link/aggregator" {
		t.Errorf("row 6 cell = %q", written[6])
	}
}

func TestRunOnceCountsTabFailures(t *testing.T) {
	sheets := &fakeSheets{
		tabs: []string{"Bangalore", "Mumbai"},
		grids: map[string][][]string{
			"Bangalore": testGrid(),
			// Mumbai has no header row at all.
			"Mumbai": {{"just", "noise"}},
		},
	}
	s := testService(sheets, &fakeProber{})

	if err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce() error: %v", err)
	}
	if _, ok := sheets.written["Bangalore"]; !ok {
		t.Error("the healthy tab must still be written when a sibling tab fails")
	}
	if _, ok := sheets.written["Mumbai"]; ok {
		t.Error("a tab without a header row must not be written")
	}
}

func TestRunOnceSheetUnreachable(t *testing.T) {
	sheets := &fakeSheets{tabs: []string{"Bangalore"}, readErr: errors.New("boom")}
	s := testService(sheets, &fakeProber{})

	// Tab-level read errors are tolerated; only tab listing is fatal, so
	// RunOnce itself still returns nil here.
	if err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce() error: %v", err)
	}
	if len(sheets.written) != 0 {
		t.Error("nothing should be written when every read fails")
	}
}

func TestRunRefusedWithoutSheets(t *testing.T) {
	s := testService(&fakeSheets{}, &fakeProber{})
	s.Sheets = nil

	if err := s.RunOnce(context.Background()); err == nil {
		t.Error("RunOnce() must refuse to run without a sheet client")
	}
	// Trigger runs the cycle in a goroutine; it must refuse up front rather
	// than let the background cycle blow up.
	if err := s.Trigger(); apperr.Status(err) != http.StatusServiceUnavailable {
		t.Errorf("Trigger() = %v, want a 503", err)
	}
}

func TestNoteStatusFlipFires(t *testing.T) {
	ctx := context.Background()
	db, err := store.OpenFromConfig("", ":memory:", "sqlite3")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := store.Migrate(ctx, db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	st := store.New(db)

	const link = "https://www.swiggy.com/restaurants/x"
	if err := st.CreateRun(ctx, &track_fields.Run{ID: "run-1", StartedAt: time.Now()}); err != nil {
		t.Fatalf("create run: %v", err)
	}
	if err := st.InsertCheck(ctx, &track_fields.CheckResult{
		RunID: "run-1", Tab: "Bangalore", Row: 4, Brand: "Biryani House",
		Link: link, Status: "Available",
	}); err != nil {
		t.Fatalf("insert check: %v", err)
	}

	alerts := &fakeAlerts{}
	s := testService(&fakeSheets{}, &fakeProber{})
	s.Store = st
	s.Alerts = alerts

	s.noteStatus(ctx, "run-2", track_fields.CheckResult{
		Tab: "Bangalore", Brand: "Biryani House", Location: "Indiranagar",
		Link: link, Status: "Closed",
	})
	if len(alerts.flips) != 1 {
		t.Fatalf("flips = %+v, want exactly one", alerts.flips)
	}
	flip := alerts.flips[0]
	if flip.From != "Available" || flip.To != "Closed" {
		t.Errorf("flip = %s -> %s, want Available -> Closed", flip.From, flip.To)
	}
	if flip.Brand != "Biryani House" || flip.Link != link {
		t.Errorf("flip identity: %+v", flip)
	}

	// An unchanged status must not alert again.
	s.noteStatus(ctx, "run-2", track_fields.CheckResult{Link: link, Status: "Available"})
	if len(alerts.flips) != 1 {
		t.Errorf("unchanged status raised a flip: %+v", alerts.flips)
	}
}

func TestNoteStatusFlips(t *testing.T) {
	alerts := &fakeAlerts{}
	s := testService(&fakeSheets{}, &fakeProber{})
	s.Alerts = alerts

	// No store and no redis: no previous status is known, so no flip fires.
	s.noteStatus(context.Background(), "run-1", track_fields.CheckResult{
		Link: "www.swiggy.com/x", Status: "Closed",
	})
	if len(alerts.flips) != 0 {
		t.Errorf("flip fired without a previous status: %+v", alerts.flips)
	}

	// Errored checks never count as flips.
	s.noteStatus(context.Background(), "run-1", track_fields.CheckResult{
		Link: "www.swiggy.com/x", Status: "", Err: "Timeout",
	})
	if len(alerts.flips) != 0 {
		t.Errorf("flip fired for an errored check: %+v", alerts.flips)
	}
}
