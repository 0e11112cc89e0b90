package resettime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve_NextOccurrenceSameDay(t *testing.T) {
	// 10:00 UTC = 16:00 in Dhaka (UTC+6); 8pm Dhaka is still ahead.
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	got, err := Resolve(8, 0, "pm", "Asia/Dhaka", now)
	require.NoError(t, err)

	assert.Equal(t, time.Date(2025, 6, 1, 14, 0, 0, 0, time.UTC), got)
	assert.True(t, got.After(now))
}

func TestResolve_RollsToNextDay(t *testing.T) {
	// 16:00 UTC = 22:00 in Dhaka; 8pm Dhaka already passed today.
	now := time.Date(2025, 6, 1, 16, 0, 0, 0, time.UTC)

	got, err := Resolve(8, 0, "pm", "Asia/Dhaka", now)
	require.NoError(t, err)

	assert.Equal(t, time.Date(2025, 6, 2, 14, 0, 0, 0, time.UTC), got)
}

func TestResolve_MidnightBoundary(t *testing.T) {
	// 11:59pm in New York; "12am" must resolve within the next minute,
	// not twenty-four hours later.
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	now := time.Date(2025, 6, 1, 23, 59, 0, 0, ny)

	got, err := Resolve(12, 0, "am", "America/New_York", now)
	require.NoError(t, err)

	remaining := Remaining(got, now)
	assert.Greater(t, remaining, time.Duration(0))
	assert.LessOrEqual(t, remaining, time.Minute)
}

func TestResolve_NoonHandling(t *testing.T) {
	now := time.Date(2025, 6, 1, 2, 0, 0, 0, time.UTC)

	got, err := Resolve(12, 30, "pm", "UTC", now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 6, 1, 12, 30, 0, 0, time.UTC), got)

	got, err = Resolve(12, 30, "am", "UTC", now)
	require.NoError(t, err)
	// 12:30am already passed at 2:00; next occurrence is tomorrow.
	assert.Equal(t, time.Date(2025, 6, 2, 0, 30, 0, 0, time.UTC), got)
}

func TestResolve_MinutesAndCase(t *testing.T) {
	now := time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)

	got, err := Resolve(9, 45, "AM", "Europe/London", now)
	require.NoError(t, err)

	london, _ := time.LoadLocation("Europe/London")
	assert.Equal(t, "09:45", got.In(london).Format("15:04"))
}

func TestResolve_DSTTransition(t *testing.T) {
	// US spring-forward: 2025-03-09, 2am EST jumps to 3am EDT. Resolving
	// 4pm across the gap must follow zone rules, not a fixed offset.
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	now := time.Date(2025, 3, 9, 1, 30, 0, 0, ny)

	got, err := Resolve(4, 0, "pm", "America/New_York", now)
	require.NoError(t, err)

	assert.Equal(t, "16:00", got.In(ny).Format("15:04"))
	// EDT is UTC-4, so 4pm local is 20:00 UTC.
	assert.Equal(t, 20, got.Hour())
}

func TestResolve_InvalidZone(t *testing.T) {
	now := time.Now()

	_, err := Resolve(8, 0, "pm", "Mars/Olympus_Mons", now)
	assert.ErrorIs(t, err, ErrInvalidTimezone)

	_, err = Resolve(8, 0, "pm", "", now)
	assert.ErrorIs(t, err, ErrInvalidTimezone)
}

func TestResolve_InvalidComponents(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name     string
		hour     int
		minute   int
		meridiem string
	}{
		{"hour zero", 0, 0, "am"},
		{"hour thirteen", 13, 0, "pm"},
		{"negative minute", 8, -1, "pm"},
		{"minute sixty", 8, 60, "pm"},
		{"bad meridiem", 8, 0, "xm"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Resolve(tt.hour, tt.minute, tt.meridiem, "UTC", now)
			assert.ErrorIs(t, err, ErrInvalidTimeFormat)
		})
	}
}

func TestRemaining(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, 90*time.Second, Remaining(now.Add(90*time.Second), now))
	assert.Equal(t, -time.Minute, Remaining(now.Add(-time.Minute), now))
}

func TestFormatRemaining(t *testing.T) {
	assert.Equal(t, "2h 04m 09s", FormatRemaining(2*time.Hour+4*time.Minute+9*time.Second))
	assert.Equal(t, "14m 00s", FormatRemaining(14*time.Minute))
	assert.Equal(t, "42s", FormatRemaining(42*time.Second))
	assert.Equal(t, "0s", FormatRemaining(0))
	assert.Equal(t, "0s", FormatRemaining(-5*time.Second))
}
