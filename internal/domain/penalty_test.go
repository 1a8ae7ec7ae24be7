package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func rate(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func testTable(t *testing.T) PenaltyTable {
	t.Helper()
	table, err := PenaltyTableFromMap(map[string]string{
		"12": "0.5",
		"15": "0.4",
		"18": "0.3",
		"21": "0.2",
		"23": "0",
	})
	require.NoError(t, err)
	return table
}

func TestPenaltyRateForNearestPreceding(t *testing.T) {
	table := testTable(t)
	require.True(t, table.RateFor(11).IsZero())
	require.True(t, table.RateFor(12).Equal(rate("0.5")))
	require.True(t, table.RateFor(14).Equal(rate("0.5")))
	require.True(t, table.RateFor(15).Equal(rate("0.4")))
	require.True(t, table.RateFor(22).Equal(rate("0.2")))
	require.True(t, table.RateFor(30).IsZero())
}

func TestPenaltyExitRateGraceFallback(t *testing.T) {
	table := testTable(t)
	require.True(t, table.ExitRate(15).Equal(rate("0.4")))
	require.True(t, table.ExitRate(23).Equal(rate("0.2")))
	require.True(t, table.ExitRate(24).IsZero())
}

func TestPenaltyNonIncreasing(t *testing.T) {
	table := testTable(t)
	prev := table.ExitRate(1)
	for c := 2; c <= 30; c++ {
		cur := table.ExitRate(c)
		if c > 12 {
			require.Falsef(t, cur.GreaterThan(prev), "cycle %d rate %s > %s", c, cur, prev)
		}
		prev = cur
	}
}

func TestPenaltyTableRejectsIncreasingRates(t *testing.T) {
	_, err := NewPenaltyTable([]PenaltyRate{{Cycle: 12, Rate: rate("0.3")}, {Cycle: 15, Rate: rate("0.4")}})
	require.ErrorIs(t, err, ErrInvalidPenaltyTable)

	_, err = NewPenaltyTable([]PenaltyRate{{Cycle: 12, Rate: rate("1.5")}})
	require.ErrorIs(t, err, ErrInvalidPenaltyTable)

	_, err = PenaltyTableFromMap(map[string]string{"x": "0.1"})
	require.ErrorIs(t, err, ErrInvalidPenaltyTable)
}

func TestPenaltyTableJSON(t *testing.T) {
	table := testTable(t)
	raw, err := table.MarshalJSON()
	require.NoError(t, err)

	var back PenaltyTable
	require.NoError(t, back.UnmarshalJSON(raw))
	require.Len(t, back.Entries(), 5)
	require.True(t, back.RateFor(16).Equal(rate("0.4")))
}
