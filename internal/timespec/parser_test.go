package timespec

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAt(t *testing.T) {
	now := time.Date(2025, 10, 29, 13, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		spec    string
		want    time.Time
		wantErr bool
	}{
		{name: "duration", spec: "1h30m", want: now.Add(-90 * time.Minute)},
		{name: "days", spec: "2d", want: now.AddDate(0, 0, -2)},
		{name: "rfc3339", spec: "2025-10-28T09:15:00Z", want: time.Date(2025, 10, 28, 9, 15, 0, 0, time.UTC)},
		{name: "now", spec: "now", want: now},
		{name: "surrounding spaces", spec: " 10m ", want: now.Add(-10 * time.Minute)},
		{name: "empty", spec: "", wantErr: true},
		{name: "garbage", spec: "yesterday", wantErr: true},
		{name: "negative duration", spec: "-1h", wantErr: true},
		{name: "fractional days", spec: "1.5d", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseAt(tt.spec, now)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want.UnixMilli(), got)
		})
	}
}

func TestParseRange(t *testing.T) {
	since, until, err := ParseRange("2h", "1h")
	require.NoError(t, err)
	assert.Less(t, since, until)

	since, until, err = ParseRange("", "")
	require.NoError(t, err)
	assert.Zero(t, since)
	assert.Zero(t, until)

	_, _, err = ParseRange("1h", "2h")
	assert.ErrorContains(t, err, "--since must be before --until")

	_, _, err = ParseRange("bogus", "")
	assert.ErrorContains(t, err, "invalid --since")
}
