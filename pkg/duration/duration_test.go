package duration

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected time.Duration
		wantErr  bool
	}{
		{"hours", "720h", 720 * time.Hour, false},
		{"minutes", "30m", 30 * time.Minute, false},
		{"milliseconds", "100ms", 100 * time.Millisecond, false},
		{"combined standard", "1h30m", 90 * time.Minute, false},
		{"fractional", "1.5h", 90 * time.Minute, false},
		{"days short", "30d", 30 * Day, false},
		{"days and hours", "1d12h", 36 * time.Hour, false},
		{"day words", "30 days", 30 * Day, false},
		{"weeks", "2w", 2 * Week, false},
		{"week words", "2 weeks 3 days", 17 * Day, false},
		{"month", "1mo", Month, false},
		{"months words", "2 months", 2 * Month, false},
		{"year", "1y", Year, false},
		{"mixed case", "3 Hours", 3 * time.Hour, false},
		{"long form", "5 seconds", 5 * time.Second, false},
		{"negative", "-1d", -Day, false},
		{"surrounding space", "  90d ", 90 * Day, false},

		{"empty", "", 0, true},
		{"no unit", "90", 0, true},
		{"unknown unit", "3 fortnights", 0, true},
		{"garbage prefix", "about 3h", 0, true},
		{"garbage suffix", "3h ish", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestMustParse(t *testing.T) {
	assert.Equal(t, Week, MustParse("7d"))
	assert.Panics(t, func() { MustParse("nope") })
}

func TestFormat(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "0s"},
		{500 * time.Millisecond, "500ms"},
		{time.Hour, "1h"},
		{time.Hour + 10*time.Second, "1h10s"},
		{36 * time.Hour, "1d12h"},
		{90 * Day, "12w6d"},
		{-2 * Day, "-2d"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Format(tt.in))
	}
}

func TestFormatParseRoundTrip(t *testing.T) {
	for _, d := range []time.Duration{time.Minute, 36 * time.Hour, 90 * Day, Week + 3*time.Hour + 5*time.Second} {
		got, err := Parse(Format(d))
		require.NoError(t, err)
		assert.Equal(t, d, got)
	}
}
