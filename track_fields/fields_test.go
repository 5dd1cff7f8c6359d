package track_fields

import (
	"testing"
	"time"
)

func TestCompact(t *testing.T) {
	tests := []struct {
		name string
		res  CheckResult
		want string
	}{
		{"status only", CheckResult{Status: "Closed"}, "Closed"},
		{"status and eta", CheckResult{Status: "Available", ETA: "23-30 mins"}, "Available | 23-30 mins"},
		{"with sold out", CheckResult{Status: "Available", ETA: "25 mins", SoldOut: 4}, "Available | 25 mins | SO:4"},
		{"sold out zero hidden", CheckResult{Status: "Available", SoldOut: 0}, "Available"},
		{"error wins", CheckResult{Status: "Available", Err: "Timeout"}, "Error: Timeout"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.res.Compact(); got != tt.want {
				t.Errorf("Compact() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseCoord(t *testing.T) {
	if got := ParseCoord(" 12.9716 "); got == nil || *got != 12.9716 {
		t.Errorf("ParseCoord(12.9716) = %v", got)
	}
	for _, bad := range []string{"", "   ", "north", "12,97"} {
		if got := ParseCoord(bad); got != nil {
			t.Errorf("ParseCoord(%q) = %v, want nil", bad, got)
		}
	}
}

func TestTargetHelpers(t *testing.T) {
	lat, lng := 12.9, 77.6
	full := Target{Link: "https://www.swiggy.com/x", Aggregator: "Swiggy IM", Latitude: &lat, Longitude: &lng}
	if !full.Probeable() || !full.HasGeo() || !full.IsSwiggy() {
		t.Errorf("full target helpers: probeable=%v geo=%v swiggy=%v",
			full.Probeable(), full.HasGeo(), full.IsSwiggy())
	}

	if (Target{Link: "https://x", Aggregator: " "}).Probeable() {
		t.Error("blank aggregator must not be probeable")
	}
	if (Target{Link: "https://x", Aggregator: "Zomato", Latitude: &lat}).HasGeo() {
		t.Error("one coordinate is not usable geo")
	}
	if (Target{Aggregator: "Zomato"}).IsSwiggy() {
		t.Error("zomato rows are not swiggy")
	}
}

func TestDefaults(t *testing.T) {
	var c Config
	c.Defaults()
	if c.IntervalMinutes != 15 || c.JitterMinSeconds != 5 || c.JitterMaxSeconds != 20 {
		t.Errorf("schedule defaults: %d/%d/%d", c.IntervalMinutes, c.JitterMinSeconds, c.JitterMaxSeconds)
	}
	if c.StaleLockMinutes != 120 {
		t.Errorf("stale lock default = %d", c.StaleLockMinutes)
	}
	if c.Timezone != "Asia/Kolkata" || c.ServiceAccountPath != "service_account.json" {
		t.Errorf("roster defaults: %q %q", c.Timezone, c.ServiceAccountPath)
	}
	if c.MaxWorkers != 5 || c.PageLoadTimeoutS != 45 || c.AfterLoadWaitS != 10 {
		t.Errorf("probe defaults: %d/%d/%d", c.MaxWorkers, c.PageLoadTimeoutS, c.AfterLoadWaitS)
	}

	c = Config{JitterMinSeconds: 30, JitterMaxSeconds: 10}
	c.Defaults()
	if c.JitterMaxSeconds != 30 {
		t.Errorf("inverted jitter bounds not clamped: max=%d", c.JitterMaxSeconds)
	}
}

func TestFromEnv(t *testing.T) {
	var c Config
	c.Defaults()
	t.Setenv("CHROMIUM_BIN", "/usr/bin/chromium")
	t.Setenv("GCP_SA_JSON_PATH", "/secrets/sa.json")
	t.Setenv("SHEET_ID", "sheet-123")
	c.FromEnv()
	if c.ChromePath != "/usr/bin/chromium" || c.ServiceAccountPath != "/secrets/sa.json" || c.SheetID != "sheet-123" {
		t.Errorf("env overrides not applied: %+v", c)
	}

	// CHROME_BIN wins over CHROMIUM_BIN.
	t.Setenv("CHROME_BIN", "/usr/bin/google-chrome")
	c.FromEnv()
	if c.ChromePath != "/usr/bin/google-chrome" {
		t.Errorf("CHROME_BIN precedence: %q", c.ChromePath)
	}
}

func TestLocationFallback(t *testing.T) {
	c := Config{Timezone: "Asia/Kolkata"}
	loc := c.Location()
	// Either the tzdata zone or the fixed offset must put us at +05:30.
	_, offset := time.Date(2025, 8, 1, 12, 0, 0, 0, time.UTC).In(loc).Zone()
	if offset != int((5*time.Hour + 30*time.Minute).Seconds()) {
		t.Errorf("IST offset = %d", offset)
	}
}

func TestValidatorAggregatorRule(t *testing.T) {
	type row struct {
		Aggregator string `json:"aggregator" binding:"aggregator"`
	}
	if err := ValidateStruct(row{Aggregator: "Swiggy Instamart"}); err != nil {
		t.Errorf("swiggy variant rejected: %v", err)
	}
	if err := ValidateStruct(row{Aggregator: "zomato"}); err != nil {
		t.Errorf("zomato rejected: %v", err)
	}
	if err := ValidateStruct(row{Aggregator: "ubereats"}); err == nil {
		t.Error("unknown aggregator accepted")
	}
}
