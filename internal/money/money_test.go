package money

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRound2(t *testing.T) {
	require.Equal(t, 10.56, Round2(10.555))
	require.Equal(t, 10.55, Round2(10.554))
	require.Equal(t, -10.56, Round2(-10.555))
	require.Equal(t, 0.0, Round2(0))
}

func TestLineTotal(t *testing.T) {
	require.Equal(t, 1000.0, LineTotal(10, 100))
	require.Equal(t, 33.33, LineTotal(3, 11.11))
}

func TestSumRoundsOnce(t *testing.T) {
	require.Equal(t, 0.3, Sum(0.1, 0.1, 0.1))
	require.Equal(t, 0.0, Sum())
}

func TestPercent(t *testing.T) {
	require.Equal(t, 180.0, Percent(1000, 18))
	require.Equal(t, 0.0, Percent(1000, 0))
}

func TestFormatFallsBackOnUnknownCode(t *testing.T) {
	require.Equal(t, "123.40", Format(123.4, "???"))
	require.NotEmpty(t, Format(123.4, "INR"))
}
