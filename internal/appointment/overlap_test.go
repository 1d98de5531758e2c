package appointment

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOverlapPolicy_Window(t *testing.T) {
	d := 30 * time.Minute
	at := time.Date(2026, 3, 10, 14, 45, 0, 0, time.UTC)

	tests := []struct {
		name     string
		policy   OverlapPolicy
		existing time.Time
		want     bool
	}{
		{"strict same start", PolicyStrict, at, true},
		{"strict running when new starts", PolicyStrict, at.Add(-15 * time.Minute), true},
		{"strict ends exactly at start", PolicyStrict, at.Add(-d), false},
		{"strict starts inside new", PolicyStrict, at.Add(29 * time.Minute), true},
		{"strict starts at new end", PolicyStrict, at.Add(d), false},
		{"legacy same start", PolicyLegacy, at, true},
		{"legacy running when new starts", PolicyLegacy, at.Add(-15 * time.Minute), false},
		{"legacy starts inside new", PolicyLegacy, at.Add(29 * time.Minute), true},
		{"legacy starts at new end", PolicyLegacy, at.Add(d), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.policy.Window(at, d).Contains(tt.existing))
		})
	}
}

func TestParseOverlapPolicy(t *testing.T) {
	p, err := ParseOverlapPolicy("")
	require.NoError(t, err)
	assert.Equal(t, PolicyStrict, p)

	p, err = ParseOverlapPolicy("LEGACY")
	require.NoError(t, err)
	assert.Equal(t, PolicyLegacy, p)

	_, err = ParseOverlapPolicy("fuzzy")
	assert.Error(t, err)
}
