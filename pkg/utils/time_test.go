package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNow(t *testing.T) {
	now := Now()
	assert.WithinDuration(t, time.Now().UTC(), now, 10*time.Millisecond)
	assert.Equal(t, time.UTC, now.Location())
}

func TestUnixConversions(t *testing.T) {
	newYear := time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, newYear, UnixToTime(1609459200))
	assert.True(t, UnixToTime(0).IsZero())
	assert.True(t, UnixToTime(-1).IsZero())

	assert.Equal(t, newYear.Add(123*time.Millisecond), UnixToTimeWithMilliseconds(1609459200123))
	assert.True(t, UnixToTimeWithMilliseconds(0).IsZero())

	assert.Equal(t, newYear, UnixStringToTime("1609459200"))
	assert.Equal(t, newYear, UnixStringToTime(" 1609459200 "))
	assert.True(t, UnixStringToTime("not-a-number").IsZero())
	assert.True(t, UnixStringToTime("").IsZero())
}

func TestParseISO8601(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		want   time.Time
		wantOK bool
	}{
		{name: "utc", input: "2024-03-05T10:15:00Z", want: time.Date(2024, 3, 5, 10, 15, 0, 0, time.UTC), wantOK: true},
		{name: "offset converted", input: "2024-03-05T13:15:00+03:00", want: time.Date(2024, 3, 5, 10, 15, 0, 0, time.UTC), wantOK: true},
		{name: "fractional", input: "2024-03-05T10:15:00.250Z", want: time.Date(2024, 3, 5, 10, 15, 0, 250000000, time.UTC), wantOK: true},
		{name: "zone-less", input: "2024-03-05T10:15:00", want: time.Date(2024, 3, 5, 10, 15, 0, 0, time.UTC), wantOK: true},
		{name: "space separated", input: "2024-03-05 10:15:00", want: time.Date(2024, 3, 5, 10, 15, 0, 0, time.UTC), wantOK: true},
		{name: "empty", input: "", wantOK: false},
		{name: "garbage", input: "yesterday", wantOK: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := ParseISO8601(tc.input)
			assert.Equal(t, tc.wantOK, ok)
			if tc.wantOK {
				assert.True(t, tc.want.Equal(got), "got %s", got)
			}
		})
	}
}

func TestFormatISO8601(t *testing.T) {
	est := time.FixedZone("EST", -5*60*60)
	assert.Equal(t, "2021-01-01T05:00:00Z", FormatISO8601(time.Date(2021, 1, 1, 0, 0, 0, 0, est)))
	assert.Equal(t, "2021-01-01T00:00:00Z", FormatISO8601(time.Date(2021, 1, 1, 0, 0, 0, 123000000, time.UTC)))
}

func TestStartOfDayAndOrNow(t *testing.T) {
	ts := time.Date(2024, 3, 5, 23, 59, 59, 0, time.FixedZone("MSK", 3*60*60))
	assert.Equal(t, time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC), StartOfDay(ts))

	assert.Equal(t, ts, OrNow(ts))
	assert.WithinDuration(t, time.Now(), OrNow(time.Time{}), time.Second)
}
