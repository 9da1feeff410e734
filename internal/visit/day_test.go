package visit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDay(t *testing.T) {
	d, err := ParseDay("2024-03-05")
	require.NoError(t, err)
	assert.Equal(t, Day{Year: 2024, Month: time.March, Day: 5}, d)
	assert.Equal(t, "2024-03-05", d.String())

	for _, bad := range []string{"", "2024-3-5", "05/03/2024", "2024-02-30", "tomorrow"} {
		_, err := ParseDay(bad)
		assert.Error(t, err, bad)
	}
}

func TestDayOfUsesLocation(t *testing.T) {
	tz := time.FixedZone("UTC-5", -5*60*60)
	instant := time.Date(2024, 3, 6, 2, 0, 0, 0, time.UTC)

	assert.Equal(t, "2024-03-06", DayOf(instant).String())
	assert.Equal(t, "2024-03-05", DayOf(instant.In(tz)).String())
}

func TestDayIsZero(t *testing.T) {
	assert.True(t, Day{}.IsZero())
	assert.False(t, DayOf(time.Now()).IsZero())
}

func TestParseClock(t *testing.T) {
	c, err := ParseClock("09:05")
	require.NoError(t, err)
	assert.Equal(t, Clock{Hour: 9, Minute: 5}, c)
	assert.Equal(t, "09:05", c.String())

	for _, bad := range []string{"", "9:05", "24:00", "12:60", "noon", "09:05:00"} {
		_, err := ParseClock(bad)
		assert.Error(t, err, bad)
	}
}
