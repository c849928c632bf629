package zones

import (
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bquant-go/bquant/pkg/frame"
	"github.com/bquant-go/bquant/pkg/model"
)

func buildFrame(t *testing.T, n int, closeFn func(i int) float64) *frame.Frame {
	t.Helper()
	ts := make([]time.Time, n)
	open := make([]decimal.Decimal, n)
	high := make([]decimal.Decimal, n)
	low := make([]decimal.Decimal, n)
	close := make([]decimal.Decimal, n)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		ts[i] = base.Add(time.Duration(i) * time.Hour)
		c := closeFn(i)
		close[i] = decimal.NewFromFloat(c)
		open[i] = decimal.NewFromFloat(c)
		high[i] = decimal.NewFromFloat(c + 0.5)
		low[i] = decimal.NewFromFloat(c - 0.5)
	}
	f, err := frame.New(ts, open, high, low, close, nil)
	require.NoError(t, err)
	return f
}

func TestZeroCrossing_ScenarioA(t *testing.T) {
	n := 200
	f := buildFrame(t, n, func(i int) float64 { return 100 + 10*float64(i)/float64(n-1) })
	fict := make([]float64, n)
	for i := 0; i < n; i++ {
		fict[i] = math.Sin(float64(i)/float64(n-1)*4*math.Pi) * 5
	}
	withCol, err := f.AppendColumn("FICT", fict)
	require.NoError(t, err)

	strat := NewZeroCrossing("FICT")
	zs, err := strat.Detect(withCol)
	require.NoError(t, err)
	require.Len(t, zs, 4)
	assert.Equal(t, "FICT", zs[0].IndicatorContext.DetectionIndicator)
	assert.Equal(t, "zero_crossing", zs[0].IndicatorContext.DetectionStrategy)
	for i, z := range zs {
		assert.Equal(t, i, z.ZoneID)
		assert.Greater(t, z.EndIdx, z.StartIdx)
		assert.Equal(t, z.EndIdx-z.StartIdx, z.Duration)
	}
	for i := 0; i < len(zs)-1; i++ {
		assert.LessOrEqual(t, zs[i].EndIdx, zs[i+1].StartIdx)
	}
}

func TestZeroCrossing_ConstantEmitsNoZones(t *testing.T) {
	n := 50
	f := buildFrame(t, n, func(i int) float64 { return 100 })
	flat := make([]float64, n)
	for i := range flat {
		flat[i] = 3.0
	}
	withCol, err := f.AppendColumn("X", flat)
	require.NoError(t, err)

	strat := NewZeroCrossing("X")
	zs, err := strat.Detect(withCol)
	require.NoError(t, err)
	assert.Empty(t, zs)
}

func TestThreshold_ScenarioC(t *testing.T) {
	n := 300
	f := buildFrame(t, n, func(i int) float64 { return 100 })
	rsi := make([]float64, n)
	for i := 0; i < n; i++ {
		rsi[i] = math.Mod(float64(i)*3.7, 100)
	}
	withCol, err := f.AppendColumn("RSI", rsi)
	require.NoError(t, err)

	strat := NewThreshold("RSI", 70, 30, WithBounded(true))
	zs, err := strat.Detect(withCol)
	require.NoError(t, err)

	for i := 0; i < len(zs)-1; i++ {
		assert.LessOrEqual(t, zs[i].EndIdx, zs[i+1].StartIdx)
	}
	rsiCol, _ := withCol.Column("RSI")
	for _, z := range zs {
		assert.True(t, z.IndicatorContext.Bounded)
		for i := z.StartIdx; i < z.EndIdx; i++ {
			switch z.Type {
			case model.ZoneBull:
				assert.GreaterOrEqual(t, rsiCol[i], 70.0)
			case model.ZoneBear:
				assert.LessOrEqual(t, rsiCol[i], 30.0)
			}
		}
	}
}

func TestLineCrossing_SignalLineRecorded(t *testing.T) {
	n := 100
	f := buildFrame(t, n, func(i int) float64 { return 100 + float64(i)*0.1 })
	line1 := make([]float64, n)
	line2 := make([]float64, n)
	for i := 0; i < n; i++ {
		line1[i] = math.Sin(float64(i) / 10)
		line2[i] = 0
	}
	withCols, err := f.AppendColumn("line1", line1)
	require.NoError(t, err)
	withCols, err = withCols.AppendColumn("line2", line2)
	require.NoError(t, err)

	strat := NewLineCrossing("line1", "line2")
	zs, err := strat.Detect(withCols)
	require.NoError(t, err)
	require.NotEmpty(t, zs)
	assert.Equal(t, "line2", zs[0].IndicatorContext.SignalLine)
}

func TestMinDurationMergesShortZones(t *testing.T) {
	segs := []segment{
		{start: 0, end: 5, ztype: model.ZoneBull},
		{start: 5, end: 6, ztype: model.ZoneBear}, // too short
		{start: 6, end: 12, ztype: model.ZoneBull},
	}
	merged := mergeMinDuration(segs, 3)
	require.Len(t, merged, 2)
	assert.Equal(t, 0, merged[0].start)
	assert.Equal(t, 5, merged[0].end)
	assert.Equal(t, 5, merged[1].start)
	assert.Equal(t, model.ZoneBull, merged[1].ztype)
}

func TestMinDurationDropsTrailingShortZone(t *testing.T) {
	segs := []segment{
		{start: 0, end: 10, ztype: model.ZoneBull},
		{start: 10, end: 11, ztype: model.ZoneBear},
	}
	merged := mergeMinDuration(segs, 3)
	require.Len(t, merged, 1)
}
