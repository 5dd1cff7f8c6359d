package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"golang.org/x/crypto/bcrypt"

	"github.com/adonese/storewatch/track_fields"
)

// Store provides manual-SQL data access.
type Store struct {
	DB *DB
}

func New(db *DB) *Store {
	return &Store{DB: db}
}

func (s *Store) ensureDB() (*sqlx.DB, error) {
	if s == nil || s.DB == nil || s.DB.DB == nil {
		return nil, fmt.Errorf("nil db")
	}
	return s.DB.DB, nil
}

// CreateRun records the start of a cycle.
func (s *Store) CreateRun(ctx context.Context, run *track_fields.Run) error {
	db, err := s.ensureDB()
	if err != nil {
		return err
	}
	stmt := s.DB.Rebind("INSERT INTO runs(id, started_at, tabs, checks, errors) VALUES(?, ?, 0, 0, 0)")
	_, err = db.ExecContext(ctx, stmt, run.ID, run.StartedAt.UTC())
	return err
}

// FinishRun stamps the end of a cycle and its totals.
func (s *Store) FinishRun(ctx context.Context, run *track_fields.Run) error {
	db, err := s.ensureDB()
	if err != nil {
		return err
	}
	stmt := s.DB.Rebind("UPDATE runs SET finished_at = ?, tabs = ?, checks = ?, errors = ? WHERE id = ?")
	_, err = db.ExecContext(ctx, stmt, time.Now().UTC(), run.Tabs, run.Checks, run.Errors, run.ID)
	return err
}

// InsertCheck persists one probe outcome.
func (s *Store) InsertCheck(ctx context.Context, c *track_fields.CheckResult) error {
	db, err := s.ensureDB()
	if err != nil {
		return err
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	const insert = `INSERT INTO checks(
		run_id, tab, row_number, brand, location, aggregator, link, status, eta, sold_out, err, duration_ms, created_at
	) VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	args := []any{
		c.RunID,
		c.Tab,
		c.Row,
		c.Brand,
		c.Location,
		c.Aggregator,
		c.Link,
		c.Status,
		c.ETA,
		c.SoldOut,
		c.Err,
		c.DurationMs,
		c.CreatedAt,
	}
	// pgx has no LastInsertId.
	if s.DB.Driver == DriverPostgres {
		stmt := s.DB.Rebind(insert + " RETURNING id")
		return db.GetContext(ctx, &c.ID, stmt, args...)
	}
	res, err := db.ExecContext(ctx, s.DB.Rebind(insert), args...)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	c.ID = id
	return nil
}

// LatestStatuses returns the newest check per link, the store-side fallback
// for the redis hot cache.
func (s *Store) LatestStatuses(ctx context.Context) ([]track_fields.CheckResult, error) {
	db, err := s.ensureDB()
	if err != nil {
		return nil, err
	}
	stmt := `SELECT c.* FROM checks c
		JOIN (SELECT link, MAX(id) AS id FROM checks WHERE link <> '' GROUP BY link) m ON c.id = m.id
		ORDER BY c.tab, c.row_number`
	var out []track_fields.CheckResult
	if err := db.SelectContext(ctx, &out, stmt); err != nil {
		return nil, err
	}
	return out, nil
}

// PreviousStatus returns the last recorded status of a link outside the
// given run. Empty when the link has never been checked before.
func (s *Store) PreviousStatus(ctx context.Context, link, excludeRunID string) (string, error) {
	db, err := s.ensureDB()
	if err != nil {
		return "", err
	}
	stmt := s.DB.Rebind("SELECT status FROM checks WHERE link = ? AND run_id <> ? ORDER BY id DESC LIMIT 1")
	var status string
	if err := db.GetContext(ctx, &status, stmt, link, excludeRunID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", err
	}
	return status, nil
}

// ChecksByRun lists every check of one cycle in sheet order.
func (s *Store) ChecksByRun(ctx context.Context, runID string) ([]track_fields.CheckResult, error) {
	db, err := s.ensureDB()
	if err != nil {
		return nil, err
	}
	stmt := s.DB.Rebind("SELECT * FROM checks WHERE run_id = ? ORDER BY tab, row_number")
	var out []track_fields.CheckResult
	if err := db.SelectContext(ctx, &out, stmt, runID); err != nil {
		return nil, err
	}
	return out, nil
}

// ChecksByLink returns the recent history of one store page, newest first.
func (s *Store) ChecksByLink(ctx context.Context, link string, limit int) ([]track_fields.CheckResult, error) {
	db, err := s.ensureDB()
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 96
	}
	stmt := s.DB.Rebind("SELECT * FROM checks WHERE link = ? ORDER BY id DESC LIMIT ?")
	var out []track_fields.CheckResult
	if err := db.SelectContext(ctx, &out, stmt, strings.TrimSpace(link), limit); err != nil {
		return nil, err
	}
	return out, nil
}

// ListRuns returns recent cycles, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]track_fields.Run, error) {
	db, err := s.ensureDB()
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}
	stmt := s.DB.Rebind("SELECT * FROM runs ORDER BY started_at DESC LIMIT ?")
	var out []track_fields.Run
	if err := db.SelectContext(ctx, &out, stmt, limit); err != nil {
		return nil, err
	}
	return out, nil
}

// RunsCount counts recorded cycles.
func (s *Store) RunsCount(ctx context.Context) (int64, error) {
	db, err := s.ensureDB()
	if err != nil {
		return 0, err
	}
	var count int64
	if err := db.GetContext(ctx, &count, "SELECT COUNT(*) FROM runs"); err != nil {
		return 0, err
	}
	return count, nil
}

// CreateAPIKey stores a bcrypt hash of the key under the caller's email.
func (s *Store) CreateAPIKey(ctx context.Context, email, apiKey string) error {
	db, err := s.ensureDB()
	if err != nil {
		return err
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(apiKey), 8)
	if err != nil {
		return err
	}
	stmt := s.DB.Rebind("INSERT INTO api_keys(email, api_key, created_at) VALUES(?, ?, ?) ON CONFLICT(email) DO UPDATE SET api_key = excluded.api_key")
	_, err = db.ExecContext(ctx, stmt, strings.ToLower(email), string(hashed), time.Now().UTC())
	return err
}

// ValidateAPIKey compares the presented key against the stored hash.
func (s *Store) ValidateAPIKey(ctx context.Context, email, apiKey string) (bool, error) {
	db, err := s.ensureDB()
	if err != nil {
		return false, err
	}
	stmt := s.DB.Rebind("SELECT api_key FROM api_keys WHERE email = ?")
	var stored string
	if err := db.GetContext(ctx, &stored, stmt, strings.ToLower(email)); err != nil {
		return false, err
	}
	return bcrypt.CompareHashAndPassword([]byte(stored), []byte(apiKey)) == nil, nil
}

// SaveDeviceToken registers an FCM token for status-flip alerts.
func (s *Store) SaveDeviceToken(ctx context.Context, token, label string) error {
	db, err := s.ensureDB()
	if err != nil {
		return err
	}
	stmt := s.DB.Rebind("INSERT INTO device_tokens(token, label, created_at) VALUES(?, ?, ?) ON CONFLICT(token) DO UPDATE SET label = excluded.label")
	_, err = db.ExecContext(ctx, stmt, token, label, time.Now().UTC())
	return err
}

// ListDeviceTokens returns every registered alert token.
func (s *Store) ListDeviceTokens(ctx context.Context) ([]string, error) {
	db, err := s.ensureDB()
	if err != nil {
		return nil, err
	}
	var tokens []string
	if err := db.SelectContext(ctx, &tokens, "SELECT token FROM device_tokens ORDER BY created_at"); err != nil {
		return nil, err
	}
	return tokens, nil
}
