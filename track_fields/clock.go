package track_fields

import (
	"time"
)

// SystemClock reads wall-clock time.
var SystemClock = &systemClock{}

// Clock is used to query the current local time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (s *systemClock) Now() time.Time {
	return time.Now()
}

// MockClock pins time during tests.
type MockClock struct {
	Timestamp time.Time
}

// Now returns the pinned timestamp.
func (m *MockClock) Now() time.Time {
	return m.Timestamp
}
