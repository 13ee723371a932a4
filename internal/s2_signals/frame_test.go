package s2_signals

import (
	"bytes"
	"encoding/csv"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/stagegate/internal/contracts"
	"github.com/wonny/stagegate/internal/stageconfig"
)

func risingBars(n int) []contracts.Bar {
	start := time.Date(2022, 1, 3, 0, 0, 0, 0, time.UTC)
	bars := make([]contracts.Bar, n)
	for i := range bars {
		c := 100 + float64(i)
		bars[i] = contracts.Bar{
			Date:   start.AddDate(0, 0, i),
			Open:   c - 0.5,
			High:   c + 1,
			Low:    c - 1,
			Close:  c,
			Volume: 1000,
		}
	}
	return bars
}

func TestCompute_Snapshot(t *testing.T) {
	ind := stageconfig.Default().Indicators
	bars := risingBars(300)
	bars[10].Volume = math.NaN()

	f := Compute(bars, ind)
	require.Equal(t, 300, f.Len())
	assert.Equal(t, 0.0, f.Volume[10], "missing volume is zero")

	early := f.Snapshot(100)
	assert.False(t, math.IsNaN(early.EMALong), "ema is defined from the first bar")
	assert.Less(t, early.EMALong, early.EMASlow)
	assert.True(t, math.IsNaN(f.Snapshot(18).BBMid), "bollinger needs a full window")

	last := f.Snapshot(299)
	assert.Equal(t, bars[299].Date, last.Date)
	assert.Equal(t, 399.0, last.Close)
	assert.Greater(t, last.EMAFast, last.EMAMid)
	assert.Greater(t, last.EMAMid, last.EMASlow)
	assert.Greater(t, last.EMASlow, last.EMALong)
	// 직전 20봉 high 최대값 = bar 298의 high
	assert.Equal(t, 398.0+1, last.DonchianHigh)
	assert.InDelta(t, 1.0, last.RelVol, 1e-12)
}

func TestWriteFeaturesCSV(t *testing.T) {
	ind := stageconfig.Default().Indicators
	f := Compute(risingBars(30), ind)

	var buf bytes.Buffer
	require.NoError(t, WriteFeaturesCSV(&buf, "AAPL", f, ind.Volume.RelVolThreshold))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 31)
	assert.Equal(t, FeatureColumns, rows[0])

	first := rows[1]
	assert.Equal(t, "2022-01-03", first[0])
	assert.Equal(t, "AAPL", first[1])
	assert.Equal(t, "100", first[5])
	assert.Equal(t, "100", first[7], "ema starts at the first close")
	assert.Equal(t, "", first[11], "warmup donchian is blank")
	assert.Equal(t, "false", first[18])
}
