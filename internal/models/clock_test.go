package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseClock(t *testing.T) {
	c, err := ParseClock("09:05")
	require.NoError(t, err)
	assert.Equal(t, ClockTime(545), c)
	assert.Equal(t, "09:05", c.String())

	c, err = ParseClock("13:30:00")
	require.NoError(t, err)
	assert.Equal(t, "13:30", c.String())

	c, err = ParseClock("24:00")
	require.NoError(t, err)
	assert.Equal(t, ClockTime(MinutesPerDay), c)

	for _, raw := range []string{"", "9", "25:00", "10:61", "noon"} {
		_, err := ParseClock(raw)
		assert.Error(t, err, raw)
	}
}

func TestParseWeekday(t *testing.T) {
	for raw, want := range map[string]Weekday{"monday": Monday, "FRIDAY": Friday, " Sun ": Sunday, "wed": Wednesday} {
		got, err := ParseWeekday(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, want, got)
	}
	_, err := ParseWeekday("Funday")
	assert.Error(t, err)

	assert.Equal(t, time.Monday, Monday.TimeWeekday())
	assert.Equal(t, time.Sunday, Sunday.TimeWeekday())
	assert.Equal(t, Sunday, WeekdayOf(time.Sunday))
	assert.Equal(t, Saturday, WeekdayOf(time.Saturday))
}

func TestDateJSONRoundTrip(t *testing.T) {
	d, err := ParseDate("2025-01-08")
	require.NoError(t, err)
	assert.Equal(t, Wednesday, d.Weekday())
	assert.Equal(t, "2025-01-13", d.AddDays(5).String())

	payload, err := json.Marshal(struct {
		Date  Date      `json:"date"`
		Start ClockTime `json:"start"`
	}{Date: d, Start: MustClock("14:00")})
	require.NoError(t, err)
	assert.JSONEq(t, `{"date":"2025-01-08","start":"14:00"}`, string(payload))

	var decoded struct {
		Date  Date      `json:"date"`
		Start ClockTime `json:"start"`
	}
	require.NoError(t, json.Unmarshal(payload, &decoded))
	assert.Equal(t, d, decoded.Date)
	assert.Equal(t, MustClock("14:00"), decoded.Start)

	assert.Error(t, json.Unmarshal([]byte(`{"date":"08/01/2025"}`), &decoded))
}

func TestDateScan(t *testing.T) {
	var d Date
	require.NoError(t, d.Scan(time.Date(2025, 3, 4, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, "2025-03-04", d.String())
	require.NoError(t, d.Scan([]byte("2025-03-05T00:00:00Z")))
	assert.Equal(t, "2025-03-05", d.String())
	require.NoError(t, d.Scan(nil))
	assert.True(t, d.IsZero())
}
