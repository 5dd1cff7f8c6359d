package track_fields

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Aggregators we know how to read. Anything else is probed with the generic
// locator set and reported as-is.
const (
	AggregatorSwiggy = "swiggy"
	AggregatorZomato = "zomato"
)

// Target is one roster row: a store page to probe.
type Target struct {
	Row        int      `json:"row"`
	Tab        string   `json:"tab"`
	Brand      string   `json:"brand"`
	Location   string   `json:"location"`
	Aggregator string   `json:"aggregator"`
	Link       string   `json:"link" binding:"omitempty,url"`
	Latitude   *float64 `json:"latitude,omitempty"`
	Longitude  *float64 `json:"longitude,omitempty"`
}

// HasGeo reports whether the row carried usable coordinates.
func (t Target) HasGeo() bool {
	return t.Latitude != nil && t.Longitude != nil
}

// Probeable reports whether the row has enough data to visit.
func (t Target) Probeable() bool {
	return strings.TrimSpace(t.Link) != "" && strings.TrimSpace(t.Aggregator) != ""
}

// IsSwiggy matches the aggregator column the way the sheet is filled in:
// any value starting with "swiggy", case-insensitively.
func (t Target) IsSwiggy() bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(t.Aggregator)), AggregatorSwiggy)
}

// CheckResult is the outcome of probing one target.
type CheckResult struct {
	ID         int64     `json:"id,omitempty" db:"id"`
	RunID      string    `json:"run_id,omitempty" db:"run_id"`
	Tab        string    `json:"tab" db:"tab"`
	Row        int       `json:"row" db:"row_number"`
	Brand      string    `json:"brand" db:"brand"`
	Location   string    `json:"location" db:"location"`
	Aggregator string    `json:"aggregator" db:"aggregator"`
	Link       string    `json:"link" db:"link"`
	Status     string    `json:"status" db:"status"`
	ETA        string    `json:"eta,omitempty" db:"eta"`
	SoldOut    int       `json:"sold_out,omitempty" db:"sold_out"`
	Err        string    `json:"error,omitempty" db:"err"`
	DurationMs int64     `json:"duration_ms" db:"duration_ms"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// Compact renders the cell value written back to the sheet, e.g.
// "Available | 23-30 mins | SO:4".
func (c CheckResult) Compact() string {
	if c.Err != "" {
		return "Error: " + c.Err
	}
	out := c.Status
	if c.ETA != "" {
		out += " | " + c.ETA
	}
	if c.SoldOut > 0 {
		out += fmt.Sprintf(" | SO:%d", c.SoldOut)
	}
	return out
}

// Run is one full cycle over all tabs.
type Run struct {
	ID         string     `json:"id" db:"id"`
	StartedAt  time.Time  `json:"started_at" db:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty" db:"finished_at"`
	Tabs       int        `json:"tabs" db:"tabs"`
	Checks     int        `json:"checks" db:"checks"`
	Errors     int        `json:"errors" db:"errors"`
}

// StatusFlip describes a store whose status changed between two runs. It is
// what alert subscribers receive.
type StatusFlip struct {
	Tab      string `json:"tab"`
	Brand    string `json:"brand"`
	Location string `json:"location"`
	Link     string `json:"link"`
	From     string `json:"from"`
	To       string `json:"to"`
}

// ParseCoord converts a sheet cell to a coordinate. Blank or malformed cells
// yield nil so the probe simply runs without a geolocation override.
func ParseCoord(s string) *float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &f
}
