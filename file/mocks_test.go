package file

import (
	"time"
)

// mockTimeProvider provides deterministic time for testing.
type mockTimeProvider struct {
	currentTime time.Time
	step        time.Duration
}

// Now returns the current time and then advances it by step, so consecutive
// blocks observe elapsed time.
func (m *mockTimeProvider) Now() time.Time {
	now := m.currentTime
	m.currentTime = m.currentTime.Add(m.step)
	return now
}

func (m *mockTimeProvider) Since(t time.Time) time.Duration {
	return m.currentTime.Sub(t)
}

func newMockTimeProvider(step time.Duration) *mockTimeProvider {
	return &mockTimeProvider{
		currentTime: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		step:        step,
	}
}
