package rob_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harborline/voyage-engine/rob"
)

func TestParseUTCOffset(t *testing.T) {
	cases := []struct {
		label string
		want  int
	}{
		{"(UTC+05:30) Mumbai, Kolkata, New Delhi", 330},
		{"(UTC-09:30) Marquesas Islands", -570},
		{"(UTC+00:00) London", 0},
		{"(UTC+14:00) Kiritimati", 840},
		{"(UTC)", 0},
		{"(UTC) Coordinated Universal Time", 0},
		{"prefix text (UTC+02:00) suffix", 120},
	}

	for _, tc := range cases {
		got, err := rob.ParseUTCOffset(tc.label)
		require.NoError(t, err, tc.label)
		assert.Equal(t, tc.want, got, tc.label)
	}
}

func TestParseUTCOffset_Rejects(t *testing.T) {
	for _, label := range []string{
		"",
		"Mumbai",
		"UTC+05:30",     // no parentheses
		"(GMT+05:30)",   // wrong token
		"(UTC+15:00)",   // beyond the real offset range
	} {
		_, err := rob.ParseUTCOffset(label)
		assert.Error(t, err, "label %q", label)
	}
}

func TestFormatUTCOffset_RoundTrips(t *testing.T) {
	for _, minutes := range []int{0, 60, 330, -570, 840, -720} {
		label := rob.FormatUTCOffset(minutes)
		got, err := rob.ParseUTCOffset(label)
		require.NoError(t, err, label)
		assert.Equal(t, minutes, got, label)
	}
}
