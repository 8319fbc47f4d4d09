package timeutils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseClock(t *testing.T) {
	c, err := ParseClock("09:05")
	require.NoError(t, err)
	assert.Equal(t, Clock(545), c)
	assert.Equal(t, "09:05", c.String())

	for _, bad := range []string{"", "9", "24:00", "12:60", "ab:cd"} {
		_, err := ParseClock(bad)
		assert.Error(t, err, bad)
	}
}

func TestWindowContains(t *testing.T) {
	day := Window{Start: MustClock("09:00"), End: MustClock("19:00")}
	at := func(h, m int) time.Time { return time.Date(2026, 3, 2, h, m, 0, 0, time.UTC) }

	assert.True(t, day.Contains(at(9, 0)))
	assert.True(t, day.Contains(at(19, 0)))
	assert.True(t, day.Contains(at(12, 30)))
	assert.False(t, day.Contains(at(8, 59)))
	assert.False(t, day.Contains(at(23, 0)))

	night := Window{Start: MustClock("22:00"), End: MustClock("02:00")}
	assert.True(t, night.Contains(at(23, 15)))
	assert.True(t, night.Contains(at(1, 0)))
	assert.False(t, night.Contains(at(12, 0)))
}

func TestLoadLocationFallback(t *testing.T) {
	assert.Equal(t, "America/Chicago", LoadLocation("America/Chicago", "UTC").String())
	assert.Equal(t, "America/New_York", LoadLocation("Not/AZone", "America/New_York").String())
	assert.Equal(t, time.UTC, LoadLocation("", ""))
}

func TestRandomJitterBounds(t *testing.T) {
	for i := 0; i < 500; i++ {
		d := RandomJitter(20, 45)
		assert.GreaterOrEqual(t, d, 20*time.Minute)
		assert.LessOrEqual(t, d, 45*time.Minute)
	}
	assert.Equal(t, 5*time.Minute, RandomJitter(5, 1))
}
