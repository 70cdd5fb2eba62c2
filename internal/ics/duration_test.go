package ics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dailyagenda/internal/agenda"
)

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in    string
		days  int
		clock time.Duration
		neg   bool
	}{
		{"PT1H", 0, time.Hour, false},
		{"PT1H30M", 0, 90 * time.Minute, false},
		{"PT15S", 0, 15 * time.Second, false},
		{"P1D", 1, 0, false},
		{"P2W", 14, 0, false},
		{"P1DT12H", 1, 12 * time.Hour, false},
		{"-PT15M", 0, 15 * time.Minute, true},
		{"+P1D", 1, 0, false},
	}
	for _, tt := range tests {
		d, err := parseDuration(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.days, d.days, tt.in)
		assert.Equal(t, tt.clock, d.clock, tt.in)
		assert.Equal(t, tt.neg, d.negative, tt.in)
	}

	for _, bad := range []string{"", "P", "1H", "PT", "PTH", "P1H", "PT1D", "P1", "PT1H2"} {
		_, err := parseDuration(bad)
		assert.Error(t, err, bad)
	}
}

func TestDurationAddToKeepsKind(t *testing.T) {
	d, err := parseDuration("P1D")
	require.NoError(t, err)
	end := d.addTo(agenda.DatePoint(2025, time.December, 31))
	assert.Equal(t, agenda.DatePoint(2026, time.January, 1), end)

	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	// Nominal day across the spring-forward transition keeps the wall clock.
	start := agenda.ZonedPoint(time.Date(2025, 3, 8, 9, 0, 0, 0, ny))
	end = d.addTo(start)
	assert.Equal(t, agenda.KindZoned, end.Kind)
	assert.Equal(t, 9, end.Value.Hour())
	assert.Equal(t, 23*time.Hour, end.Value.Sub(start.Value))

	d, err = parseDuration("-PT30M")
	require.NoError(t, err)
	floating := agenda.FloatingPoint(time.Date(2025, 8, 13, 10, 0, 0, 0, time.UTC))
	end = d.addTo(floating)
	assert.Equal(t, agenda.KindFloating, end.Kind)
	assert.Equal(t, 30, end.Value.Minute())
	assert.Equal(t, 9, end.Value.Hour())
}
