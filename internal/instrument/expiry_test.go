package instrument

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"optionscore/internal/config"
)

func TestExpandScheduleDailyProducesAscendingFutureDays(t *testing.T) {
	asOf := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	cfg := config.ExpirySchedule{
		Daily: config.ExpiryCadenceConfig{Enabled: true, Count: 3, TimeOfDay: "08:00"},
	}
	times, err := ExpandSchedule(cfg, asOf)
	require.NoError(t, err)
	require.Len(t, times, 3)
	for i := 1; i < len(times); i++ {
		assert.True(t, times[i].After(times[i-1]))
	}
	for _, tm := range times {
		assert.True(t, tm.After(asOf))
	}
}

func TestExpandScheduleWeeklyLandsOnDayOfWeek(t *testing.T) {
	asOf := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) // a Thursday
	cfg := config.ExpirySchedule{
		Weekly: config.ExpiryCadenceConfig{Enabled: true, Count: 2, TimeOfDay: "08:00", DayOfWeek: "friday"},
	}
	times, err := ExpandSchedule(cfg, asOf)
	require.NoError(t, err)
	require.Len(t, times, 2)
	for _, tm := range times {
		assert.Equal(t, time.Friday, tm.Weekday())
	}
	assert.Equal(t, 7, int(times[1].Sub(times[0]).Hours()/24))
}

func TestExpandScheduleMonthlyResolvesLastFriday(t *testing.T) {
	asOf := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cfg := config.ExpirySchedule{
		Monthly: config.ExpiryCadenceConfig{Enabled: true, Count: 2, TimeOfDay: "08:00", DayType: "last_friday"},
	}
	times, err := ExpandSchedule(cfg, asOf)
	require.NoError(t, err)
	require.Len(t, times, 2)
	for _, tm := range times {
		assert.Equal(t, time.Friday, tm.Weekday())
		next := tm.AddDate(0, 0, 7)
		assert.NotEqual(t, tm.Month(), next.Month(), "must be the last friday, not an earlier one")
	}
}

func TestExpandScheduleThirdFriday(t *testing.T) {
	day, err := resolveDayType(2026, time.March, "third_friday")
	require.NoError(t, err)
	assert.Equal(t, time.Friday, day.Weekday())
	assert.True(t, day.Day() >= 15 && day.Day() <= 21, "the third friday always falls in this window")
}

func TestExpandScheduleDropsPastExpiries(t *testing.T) {
	asOf := time.Date(2026, 6, 30, 23, 0, 0, 0, time.UTC)
	cfg := config.ExpirySchedule{
		Daily: config.ExpiryCadenceConfig{Enabled: true, Count: 1, TimeOfDay: "08:00"},
	}
	times, err := ExpandSchedule(cfg, asOf)
	require.NoError(t, err)
	require.Len(t, times, 1)
	assert.True(t, times[0].After(asOf))
}

func TestExpandScheduleSkipsDisabledCadences(t *testing.T) {
	asOf := time.Now()
	cfg := config.ExpirySchedule{}
	times, err := ExpandSchedule(cfg, asOf)
	require.NoError(t, err)
	assert.Empty(t, times)
}
