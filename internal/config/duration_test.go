package config

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDuration(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected time.Duration
		wantErr  bool
	}{
		{"hours", "720h", 720 * time.Hour, false},
		{"days", "90d", 90 * 24 * time.Hour, false},
		{"weeks and days", "1w2d", 9 * 24 * time.Hour, false},
		{"words", "30 days", 30 * 24 * time.Hour, false},
		{"zero", "0s", 0, false},
		{"invalid", "soon", 0, true},
		{"empty", "", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := ParseDuration(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, d.Duration())
		})
	}
}

func TestDuration_JSON(t *testing.T) {
	var holder struct {
		Retention Duration `json:"retention"`
	}

	require.NoError(t, json.Unmarshal([]byte(`{"retention":"2w"}`), &holder))
	assert.Equal(t, 14*24*time.Hour, holder.Retention.Duration())

	require.NoError(t, json.Unmarshal([]byte(`{"retention":1000000000}`), &holder))
	assert.Equal(t, time.Second, holder.Retention.Duration())

	assert.Error(t, json.Unmarshal([]byte(`{"retention":true}`), &holder))
}

func TestDuration_String(t *testing.T) {
	assert.Equal(t, "12w6d", Duration(90*24*time.Hour).String())
	assert.Equal(t, "1h30m", Duration(90*time.Minute).String())
	assert.Equal(t, "0s", Duration(0).String())

	text, err := Duration(48 * time.Hour).MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "2d", string(text))
}
