package track_fields

import (
	"os"
	"time"
)

// Config is the system-level configuration for the tracker. It is populated
// from config.yaml (merged with the optional secrets overlay) and finalized
// with Defaults and FromEnv.
type Config struct {
	SheetID            string   `json:"sheet_id" yaml:"sheet_id"`
	InputTabs          []string `json:"input_tabs" yaml:"input_tabs"`
	ServiceAccountPath string   `json:"service_account_path" yaml:"service_account_path"`
	Timezone           string   `json:"timezone" yaml:"timezone"`

	ChromePath       string `json:"chrome_path" yaml:"chrome_path"`
	Windowed         bool   `json:"windowed" yaml:"windowed"`
	PageLoadTimeoutS int    `json:"pageload_timeout_seconds" yaml:"pageload_timeout_seconds"`
	AfterLoadWaitS   int    `json:"after_load_wait_seconds" yaml:"after_load_wait_seconds"`
	BetweenStoresMs  int    `json:"between_stores_ms" yaml:"between_stores_ms"`
	MaxWorkers       int    `json:"max_workers" yaml:"max_workers"`

	IntervalMinutes  int    `json:"interval_minutes" yaml:"interval_minutes"`
	JitterMinSeconds int    `json:"jitter_min_seconds" yaml:"jitter_min_seconds"`
	JitterMaxSeconds int    `json:"jitter_max_seconds" yaml:"jitter_max_seconds"`
	LockPath         string `json:"lock_path" yaml:"lock_path"`
	StaleLockMinutes int    `json:"stale_lock_minutes" yaml:"stale_lock_minutes"`

	DatabaseURL    string `json:"db_url" yaml:"db_url"`
	DatabasePath   string `json:"db_path" yaml:"db_path"`
	DatabaseDriver string `json:"db_driver" yaml:"db_driver"`
	RedisAddress   string `json:"redis_address" yaml:"redis_address"`

	Port   string `json:"port" yaml:"port"`
	JWTKey string `json:"jwt_key" yaml:"jwt_key"`

	FirebaseCredsPath string   `json:"firebase_creds_path" yaml:"firebase_creds_path"`
	AlertTokens       []string `json:"alert_tokens" yaml:"alert_tokens"`

	IsDebug            bool `json:"is_debug" yaml:"is_debug"`
	LogSamplingTickMs  int  `json:"log_sampling_tick_ms" yaml:"log_sampling_tick_ms"`
	LogSamplingAfterMs int  `json:"log_sampling_after_ms" yaml:"log_sampling_after_ms"`
}

// Defaults fills zero-valued fields with the values the tracker shipped with.
func (c *Config) Defaults() {
	if c.ServiceAccountPath == "" {
		c.ServiceAccountPath = "service_account.json"
	}
	if c.Timezone == "" {
		c.Timezone = "Asia/Kolkata"
	}
	if c.PageLoadTimeoutS <= 0 {
		c.PageLoadTimeoutS = 45
	}
	if c.AfterLoadWaitS <= 0 {
		c.AfterLoadWaitS = 10
	}
	if c.BetweenStoresMs <= 0 {
		c.BetweenStoresMs = 1000
	}
	if c.MaxWorkers <= 0 {
		c.MaxWorkers = 5
	}
	if c.IntervalMinutes <= 0 {
		c.IntervalMinutes = 15
	}
	if c.JitterMinSeconds <= 0 {
		c.JitterMinSeconds = 5
	}
	if c.JitterMaxSeconds <= 0 {
		c.JitterMaxSeconds = 20
	}
	if c.JitterMaxSeconds < c.JitterMinSeconds {
		c.JitterMaxSeconds = c.JitterMinSeconds
	}
	if c.LockPath == "" {
		c.LockPath = "storewatch.lock"
	}
	if c.StaleLockMinutes <= 0 {
		c.StaleLockMinutes = 120
	}
	if c.DatabasePath == "" {
		c.DatabasePath = "storewatch.db"
	}
	if c.RedisAddress == "" {
		c.RedisAddress = "localhost:6379"
	}
	if c.Port == "" {
		c.Port = ":8090"
	}
	if c.FirebaseCredsPath == "" {
		c.FirebaseCredsPath = "firebase-sdk.json"
	}
}

// FromEnv applies the environment overrides the container image sets:
// CHROME_BIN / CHROMIUM_BIN for the browser binary, GCP_SA_JSON_PATH for the
// service account file and SHEET_ID / INPUT_TABS for the roster.
func (c *Config) FromEnv() {
	if v := os.Getenv("CHROME_BIN"); v != "" {
		c.ChromePath = v
	} else if v := os.Getenv("CHROMIUM_BIN"); v != "" {
		c.ChromePath = v
	}
	if v := os.Getenv("GCP_SA_JSON_PATH"); v != "" {
		c.ServiceAccountPath = v
	}
	if v := os.Getenv("SHEET_ID"); v != "" {
		c.SheetID = v
	}
	if v := os.Getenv("TIMEZONE"); v != "" {
		c.Timezone = v
	}
}

// Location resolves the configured timezone, falling back to the fixed IST
// offset the original deployment assumed when tzdata is unavailable.
func (c *Config) Location() *time.Location {
	if loc, err := time.LoadLocation(c.Timezone); err == nil {
		return loc
	}
	if c.Timezone == "Asia/Kolkata" || c.Timezone == "Asia/Calcutta" {
		return time.FixedZone("IST", int((5*time.Hour + 30*time.Minute).Seconds()))
	}
	return time.Local
}

// PageLoadTimeout returns pageload_timeout_seconds as a duration.
func (c *Config) PageLoadTimeout() time.Duration {
	return time.Duration(c.PageLoadTimeoutS) * time.Second
}

// AfterLoadWait returns after_load_wait_seconds as a duration.
func (c *Config) AfterLoadWait() time.Duration {
	return time.Duration(c.AfterLoadWaitS) * time.Second
}

// BetweenStores returns between_stores_ms as a duration.
func (c *Config) BetweenStores() time.Duration {
	return time.Duration(c.BetweenStoresMs) * time.Millisecond
}

// Interval returns interval_minutes as a duration.
func (c *Config) Interval() time.Duration {
	return time.Duration(c.IntervalMinutes) * time.Minute
}

// StaleLockAge returns stale_lock_minutes as a duration.
func (c *Config) StaleLockAge() time.Duration {
	return time.Duration(c.StaleLockMinutes) * time.Minute
}
