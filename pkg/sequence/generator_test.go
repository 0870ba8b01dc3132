package sequence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFormatCode(t *testing.T) {
	cases := []struct {
		seq  int64
		want string
	}{
		{seq: 1, want: "WD-240501-001AB"},
		{seq: 36, want: "WD-240501-010AB"},
		{seq: 46656, want: "WD-240501-1000AB"},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, FormatCode("WD", "240501", tc.seq, "AB"))
	}
}

func TestRandomCode(t *testing.T) {
	code, err := RandomCode("WD", time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Regexp(t, `^WD-240501-[A-Z2-9]{8}$`, code)
}

func TestUntilEndOfDay(t *testing.T) {
	now := time.Date(2024, 5, 1, 23, 0, 0, 0, time.UTC)
	require.Equal(t, time.Hour-time.Second, untilEndOfDay(now))
}
