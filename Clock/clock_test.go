package Clock

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToAbsolute_UsesOffsetOfThatDate(t *testing.T) {
	a := New(OffsetAfter)

	winter, err := a.ToAbsolute(WallClock{Year: 2024, Month: time.January, Day: 15, Hour: 9}, "Europe/Berlin")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 15, 8, 0, 0, 0, time.UTC), winter.UTC())

	summer, err := a.ToAbsolute(WallClock{Year: 2024, Month: time.July, Day: 15, Hour: 9}, "Europe/Berlin")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 7, 15, 7, 0, 0, 0, time.UTC), summer.UTC())
}

func TestToAbsolute_SpringForwardGap(t *testing.T) {
	gap := WallClock{Year: 2024, Month: time.March, Day: 10, Hour: 2, Minute: 30}

	after, err := New(OffsetAfter).ToAbsolute(gap, "America/New_York")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 10, 6, 30, 0, 0, time.UTC), after.UTC())

	forward, err := New(ShiftForward).ToAbsolute(gap, "America/New_York")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 10, 7, 30, 0, 0, time.UTC), forward.UTC())

	wc, err := New(ShiftForward).ToWallClock(forward, "America/New_York")
	require.NoError(t, err)
	assert.Equal(t, 3, wc.Hour)
	assert.Equal(t, 30, wc.Minute)
}

func TestToAbsolute_FallBackOverlapPicksEarlierInstant(t *testing.T) {
	overlap := WallClock{Year: 2024, Month: time.November, Day: 3, Hour: 1, Minute: 30}

	got, err := New(OffsetAfter).ToAbsolute(overlap, "America/New_York")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 11, 3, 5, 30, 0, 0, time.UTC), got.UTC())
}

func TestToAbsolute_RoundTrip(t *testing.T) {
	a := New(OffsetAfter)
	zones := []string{"UTC", "Asia/Tokyo", "America/Sao_Paulo", "Australia/Sydney", "Europe/Moscow"}
	instant := time.Date(2024, 5, 20, 17, 45, 12, 0, time.UTC)

	for _, tz := range zones {
		t.Run(tz, func(t *testing.T) {
			wc, err := a.ToWallClock(instant, tz)
			require.NoError(t, err)
			back, err := a.ToAbsolute(wc, tz)
			require.NoError(t, err)
			assert.True(t, back.Equal(instant), "got %s", back)
		})
	}
}

func TestToAbsolute_RejectsBadInput(t *testing.T) {
	a := New("")

	_, err := a.ToAbsolute(WallClock{Year: 2024, Month: time.February, Day: 30}, "UTC")
	assert.True(t, errors.Is(err, ErrInvalidWallClock))

	_, err = a.ToAbsolute(WallClock{Year: 2024, Month: time.January, Day: 1}, "Mars/Olympus")
	assert.True(t, errors.Is(err, ErrUnknownZone))
}

func TestLocalDate_CrossesMidnight(t *testing.T) {
	instant := time.Date(2024, 1, 1, 23, 30, 0, 0, time.UTC)

	d, err := LocalDate(instant, "Asia/Tokyo")
	require.NoError(t, err)
	assert.Equal(t, "2024-01-02", d)

	d, err = LocalDate(instant, "America/Los_Angeles")
	require.NoError(t, err)
	assert.Equal(t, "2024-01-01", d)
}

func TestStartOfDay(t *testing.T) {
	start, err := New(OffsetAfter).StartOfDay("2024-07-01", "Europe/London")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 6, 30, 23, 0, 0, 0, time.UTC), start.UTC())
}

func TestStartOfDay_MidnightGap(t *testing.T) {
	// Santiago springs forward from 00:00 to 01:00 on 2024-09-08.
	for _, policy := range []GapPolicy{OffsetAfter, ShiftForward} {
		t.Run(string(policy), func(t *testing.T) {
			start, err := New(policy).StartOfDay("2024-09-08", "America/Santiago")
			require.NoError(t, err)
			assert.Equal(t, time.Date(2024, 9, 8, 4, 0, 0, 0, time.UTC), start.UTC())

			d, err := LocalDate(start, "America/Santiago")
			require.NoError(t, err)
			assert.Equal(t, "2024-09-08", d)

			wall, err := New(policy).ToWallClock(start, "America/Santiago")
			require.NoError(t, err)
			assert.Equal(t, 1, wall.Hour)
		})
	}
}

func TestAddDays(t *testing.T) {
	d, err := AddDays("2024-01-01", 30)
	require.NoError(t, err)
	assert.Equal(t, "2024-01-31", d)

	d, err = AddDays("2024-02-28", 1)
	require.NoError(t, err)
	assert.Equal(t, "2024-02-29", d)

	_, err = AddDays("01/02/2024", 1)
	assert.True(t, errors.Is(err, ErrInvalidDate))
}

func TestParseGapPolicy(t *testing.T) {
	p, err := ParseGapPolicy("")
	require.NoError(t, err)
	assert.Equal(t, OffsetAfter, p)

	p, err = ParseGapPolicy("shift_forward")
	require.NoError(t, err)
	assert.Equal(t, ShiftForward, p)

	_, err = ParseGapPolicy("nearest")
	assert.Error(t, err)
}
