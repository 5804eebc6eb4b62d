package grid

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var kst = time.FixedZone("KST", 9*60*60)

func TestLocalDateUsesWallClock(t *testing.T) {
	// 15:30Z is already the next day in Seoul.
	utc := time.Date(2025, 6, 10, 15, 30, 0, 0, time.UTC)
	assert.Equal(t, "2025-06-10", LocalDate(utc))
	assert.Equal(t, "2025-06-11", LocalDate(utc.In(kst)))
	assert.Equal(t, "2025-01-05", LocalDate(time.Date(2025, 1, 5, 0, 0, 0, 0, kst)))
}

func TestWeekOfProperties(t *testing.T) {
	base := time.Date(2023, 12, 20, 13, 45, 0, 0, kst)
	for offset := 0; offset < 800; offset += 3 {
		anchor := base.AddDate(0, 0, offset)
		for ws := time.Sunday; ws <= time.Saturday; ws++ {
			w := WeekOf(anchor, ws)

			first, err := ParseLocalDate(w.Days[0], kst)
			require.NoError(t, err)
			require.Equal(t, ws, first.Weekday(), "anchor=%s ws=%d", anchor, ws)
			require.Equal(t, w.StartDate, w.Days[0])
			require.Equal(t, w.EndDate, w.Days[6])
			require.True(t, w.Contains(LocalDate(anchor)), "anchor %s outside %v", anchor, w.Days)

			for i := 1; i < len(w.Days); i++ {
				prev, err := ParseLocalDate(w.Days[i-1], kst)
				require.NoError(t, err)
				require.Equal(t, LocalDate(prev.AddDate(0, 0, 1)), w.Days[i])
			}
		}
	}
}

func TestWeekOfRollsOverYear(t *testing.T) {
	w := WeekOf(time.Date(2025, 12, 31, 18, 0, 0, 0, kst), time.Monday)
	assert.Equal(t, [7]string{
		"2025-12-29", "2025-12-30", "2025-12-31",
		"2026-01-01", "2026-01-02", "2026-01-03", "2026-01-04",
	}, w.Days)
	assert.Equal(t, "2025-12-29", w.StartDate)
	assert.Equal(t, "2026-01-04", w.EndDate)
}

func TestWeekOfLeapYear(t *testing.T) {
	w := WeekOf(time.Date(2024, 2, 29, 9, 0, 0, 0, kst), time.Sunday)
	assert.Equal(t, [7]string{
		"2024-02-25", "2024-02-26", "2024-02-27", "2024-02-28",
		"2024-02-29", "2024-03-01", "2024-03-02",
	}, w.Days)
}

func TestWeekOfAnchorOnWeekStart(t *testing.T) {
	w := WeekOf(time.Date(2025, 6, 9, 0, 0, 0, 0, kst), time.Monday)
	assert.Equal(t, "2025-06-09", w.StartDate)
	assert.Equal(t, "2025-06-15", w.EndDate)
}

func TestDateSet(t *testing.T) {
	s := WeekDates(WeekOf(time.Date(2025, 6, 11, 0, 0, 0, 0, kst), time.Monday))
	assert.Len(t, s, 7)
	assert.True(t, s.Has("2025-06-15"))
	assert.False(t, s.Has("2025-06-16"))
	assert.False(t, NewDateSet().Has("2025-06-15"))
}
