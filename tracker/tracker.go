// Package tracker orchestrates the quarter-hour availability cycles: roster
// in from the sheet, statuses out of the browser, results back to the sheet
// and into the store.
package tracker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/go-redis/redis/v7"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"github.com/adonese/storewatch/apperr"
	"github.com/adonese/storewatch/sheet"
	"github.com/adonese/storewatch/store"
	"github.com/adonese/storewatch/track_fields"
)

// Redis keys for the hot status cache.
const (
	redisStatusKey = "storewatch:status"
	redisLatestKey = "storewatch:latest"
)

// SheetClient is the roster source and writeback target.
type SheetClient interface {
	TabNames(ctx context.Context) ([]string, error)
	ReadGrid(ctx context.Context, tab string) ([][]string, error)
	WriteColumn(ctx context.Context, tab string, col int, dateStr, timeStr string, results map[int]string) error
}

// StoreProber visits one store page and reports what it saw.
type StoreProber interface {
	Probe(ctx context.Context, t track_fields.Target) track_fields.CheckResult
}

// Notifier receives status flips.
type Notifier interface {
	Enabled() bool
	Notify(ctx context.Context, flip track_fields.StatusFlip)
}

// Service wires the tracker together.
type Service struct {
	Store  *store.Store
	Sheets SheetClient
	Prober StoreProber
	Redis  *redis.Client
	Alerts Notifier
	Logger *logrus.Logger
	Config track_fields.Config
	Clock  track_fields.Clock
}

func (s *Service) clock() track_fields.Clock {
	if s.Clock != nil {
		return s.Clock
	}
	return track_fields.SystemClock
}

// RunOnce performs a full cycle over every tab. Tab failures are logged and
// counted but do not stop the remaining tabs; only an unreachable
// spreadsheet aborts the cycle.
// errNoSheets covers serve-only deployments where no sheet client was wired.
var errNoSheets = errors.New("sheet client is not configured")

func (s *Service) RunOnce(ctx context.Context) error {
	if s.Sheets == nil {
		return apperr.Wrap(errNoSheets, apperr.ErrUnavailable, "sheet client is not configured")
	}
	start := time.Now()
	run := &track_fields.Run{ID: uuid.New().String(), StartedAt: s.clock().Now()}
	if s.Store != nil {
		if err := s.Store.CreateRun(ctx, run); err != nil {
			s.Logger.Printf("error recording run start: %v", err)
		}
	}

	tabs, err := s.Sheets.TabNames(ctx)
	if err != nil {
		return apperr.Wrap(err, apperr.ErrSheet, "unable to list sheet tabs")
	}
	s.Logger.WithFields(logrus.Fields{"run": run.ID, "tabs": tabs}).Info("starting tracker run")

	for _, tab := range tabs {
		checks, err := s.processTab(ctx, run.ID, tab)
		if err != nil {
			s.Logger.WithFields(logrus.Fields{"tab": tab, "error": err.Error()}).Error("tab failed")
			run.Errors++
			continue
		}
		run.Tabs++
		run.Checks += checks
	}

	if s.Store != nil {
		if err := s.Store.FinishRun(ctx, run); err != nil {
			s.Logger.Printf("error recording run end: %v", err)
		}
	}
	duration := time.Since(start)
	track_fields.RecordRun(duration, time.Now())
	s.Logger.WithFields(logrus.Fields{
		"run":      run.ID,
		"checks":   run.Checks,
		"errors":   run.Errors,
		"duration": duration.String(),
	}).Info("run finished")
	return nil
}

// processTab checks every row of one tab, rows in parallel bounded by
// max_workers, and writes the results as a fresh column.
func (s *Service) processTab(ctx context.Context, runID, tab string) (int, error) {
	grid, err := s.Sheets.ReadGrid(ctx, tab)
	if err != nil {
		return 0, err
	}
	if len(grid) == 0 {
		s.Logger.Printf("[%s] empty sheet, skipping", tab)
		return 0, nil
	}

	headerRow, cols, err := sheet.FindHeader(grid)
	if err != nil {
		return 0, err
	}
	targets := sheet.BuildTargets(tab, grid, headerRow, cols)
	logCol := sheet.NextLogColumn(grid, cols["longitude"]+1)

	now := s.clock().Now().In(s.Config.Location())
	dateStr := now.Format("2006-01-02")
	timeStr := now.Format("15:04:05")

	results := make(map[int]track_fields.CheckResult, len(targets))
	var mu sync.Mutex
	sem := semaphore.NewWeighted(int64(s.Config.MaxWorkers))
	var wg sync.WaitGroup

	for _, t := range targets {
		if !t.Probeable() {
			mu.Lock()
			results[t.Row] = track_fields.CheckResult{
				Tab: tab, Row: t.Row, Brand: t.Brand, Location: t.Location,
				Status: "Missing link/aggregator",
			}
			mu.Unlock()
			continue
		}
		wg.Add(1)
		go func(t track_fields.Target) {
			defer wg.Done()
			if err := sem.Acquire(ctx, 1); err != nil {
				mu.Lock()
				results[t.Row] = track_fields.CheckResult{
					Tab: tab, Row: t.Row, Brand: t.Brand, Location: t.Location,
					Aggregator: t.Aggregator, Link: t.Link, Err: "Canceled",
				}
				mu.Unlock()
				return
			}
			defer sem.Release(1)

			res := s.Prober.Probe(ctx, t)
			mu.Lock()
			results[t.Row] = res
			mu.Unlock()
			if d := s.Config.BetweenStores(); d > 0 {
				time.Sleep(d)
			}
		}(t)
	}
	wg.Wait()

	cells := make(map[int]string, len(results))
	for r, res := range results {
		cells[r] = res.Compact()
	}
	if err := s.Sheets.WriteColumn(ctx, tab, logCol, dateStr, timeStr, cells); err != nil {
		return 0, err
	}

	for _, res := range results {
		res.RunID = runID
		res.Tab = tab
		if s.Store != nil {
			if err := s.Store.InsertCheck(ctx, &res); err != nil {
				s.Logger.Printf("error persisting check: %v", err)
			}
		}
		s.noteStatus(ctx, runID, res)
	}

	s.Logger.Printf("[%s] logged %d rows to column %d", tab, len(results), logCol)
	return len(results), nil
}

// noteStatus refreshes the hot cache and raises an alert when a store's
// status differs from its previous run.
func (s *Service) noteStatus(ctx context.Context, runID string, res track_fields.CheckResult) {
	if res.Link == "" || res.Err != "" {
		return
	}

	prev := ""
	if s.Redis != nil {
		prev, _ = s.Redis.HGet(redisStatusKey, res.Link).Result()
	}
	if prev == "" && s.Store != nil {
		var err error
		prev, err = s.Store.PreviousStatus(ctx, res.Link, runID)
		if err != nil {
			s.Logger.Printf("error reading previous status: %v", err)
		}
	}

	if s.Redis != nil {
		if buf, err := json.Marshal(res); err == nil {
			s.Redis.HSet(redisLatestKey, res.Link, buf)
		}
		s.Redis.HSet(redisStatusKey, res.Link, res.Status)
	}

	if prev != "" && prev != res.Status && s.Alerts != nil && s.Alerts.Enabled() {
		s.Alerts.Notify(ctx, track_fields.StatusFlip{
			Tab:      res.Tab,
			Brand:    res.Brand,
			Location: res.Location,
			Link:     res.Link,
			From:     prev,
			To:       res.Status,
		})
	}
}

// RunOnceExclusive runs a single cycle under the single-instance lock, for
// one-shot invocations. Returns ErrRunActive when another instance holds
// the lock.
func (s *Service) RunOnceExclusive(ctx context.Context) error {
	lock, ok := s.acquireLock()
	if !ok {
		return apperr.ErrRunActive
	}
	defer releaseLock(lock)
	return s.RunOnce(ctx)
}

// Trigger starts an immediate cycle in the background, guarded by the same
// lock the loop uses. Returns ErrRunActive when a cycle is in flight.
func (s *Service) Trigger() error {
	if s.Sheets == nil {
		return apperr.Wrap(errNoSheets, apperr.ErrUnavailable, "sheet client is not configured")
	}
	lock, ok := s.acquireLock()
	if !ok {
		return apperr.ErrRunActive
	}
	go func() {
		defer releaseLock(lock)
		if err := s.RunOnce(context.Background()); err != nil {
			s.Logger.WithField("error", err.Error()).Error("triggered cycle failed")
		}
	}()
	return nil
}
