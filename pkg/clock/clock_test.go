package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"watchearn/pkg/config"
)

func TestDayKey(t *testing.T) {
	ts := time.Date(2024, 3, 9, 23, 30, 0, 0, time.UTC)
	require.Equal(t, "2024-03-09", DayKey(ts, time.UTC))
	require.Equal(t, "2024-03-09", DayKey(ts, nil))

	karachi := time.FixedZone("PKT", 5*60*60)
	require.Equal(t, "2024-03-10", DayKey(ts, karachi))
}

func TestCalendarToday(t *testing.T) {
	fixed := NewFixed(time.Date(2024, 1, 31, 23, 59, 59, 0, time.UTC))
	cal, err := NewCalendar(fixed, &config.Config{})
	require.NoError(t, err)

	_, day := cal.Today()
	require.Equal(t, "2024-01-31", day)

	fixed.Advance(time.Second)
	_, day = cal.Today()
	require.Equal(t, "2024-02-01", day)
}

func TestCalendarTimezone(t *testing.T) {
	cal, err := NewCalendar(System{}, &config.Config{QuotaTimezone: "Asia/Karachi"})
	require.NoError(t, err)
	require.Equal(t, "Asia/Karachi", cal.Location.String())

	_, err = NewCalendar(System{}, &config.Config{QuotaTimezone: "Mars/Olympus"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "Mars/Olympus")
}
