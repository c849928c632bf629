package indicators

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bquant-go/bquant/pkg/frame"
)

func syntheticFrame(t *testing.T, n int) *frame.Frame {
	t.Helper()
	ts := make([]time.Time, n)
	open := make([]decimal.Decimal, n)
	high := make([]decimal.Decimal, n)
	low := make([]decimal.Decimal, n)
	close := make([]decimal.Decimal, n)
	vol := make([]decimal.Decimal, n)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		ts[i] = base.Add(time.Duration(i) * time.Hour)
		price := 100.0 + float64(i)*0.1
		open[i] = decimal.NewFromFloat(price)
		high[i] = decimal.NewFromFloat(price + 1)
		low[i] = decimal.NewFromFloat(price - 1)
		close[i] = decimal.NewFromFloat(price + 0.5)
		vol[i] = decimal.NewFromFloat(1000 + float64(i))
	}
	f, err := frame.New(ts, open, high, low, close, vol)
	require.NoError(t, err)
	return f
}

func TestRegistry_CustomSMA(t *testing.T) {
	r := NewRegistry()
	f := syntheticFrame(t, 60)
	out, cols, err := r.Compute(f, Spec{Source: SourceCustom, Name: "sma", Params: map[string]any{"period": 20}})
	require.NoError(t, err)
	assert.Equal(t, []string{"sma_20"}, cols)
	col, ok := out.Column("sma_20")
	require.True(t, ok)
	assert.Len(t, col, 60)
	assert.False(t, col[59] != col[59]) // not NaN at the tail
}

func TestRegistry_LibraryMACD(t *testing.T) {
	r := NewRegistry()
	f := syntheticFrame(t, 100)
	out, cols, err := r.Compute(f, Spec{Source: SourceLibrary, Name: "MACD"})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"macd", "macd_signal", "macd_hist"}, cols)
	for _, c := range cols {
		v, ok := out.Column(c)
		require.True(t, ok)
		assert.Len(t, v, 100)
	}
}

func TestRegistry_PreloadedValidatesPresence(t *testing.T) {
	r := NewRegistry()
	f := syntheticFrame(t, 30)
	_, _, err := r.Compute(f, Spec{Source: SourcePreloaded, Name: "FICT"})
	assert.Error(t, err)

	withCol, err := f.AppendColumn("FICT", make([]float64, 30))
	require.NoError(t, err)
	_, cols, err := r.Compute(withCol, Spec{Source: SourcePreloaded, Name: "FICT"})
	require.NoError(t, err)
	assert.Equal(t, []string{"FICT"}, cols)
}

func TestRegistry_UnknownIndicatorFails(t *testing.T) {
	r := NewRegistry()
	f := syntheticFrame(t, 10)
	_, _, err := r.Compute(f, Spec{Source: SourceCustom, Name: "nonexistent"})
	assert.Error(t, err)
}

func TestRegistry_ComputeDoesNotMutateInput(t *testing.T) {
	r := NewRegistry()
	f := syntheticFrame(t, 60)
	before := f.ColumnNames()
	_, _, err := r.Compute(f, Spec{Source: SourceCustom, Name: "sma", Params: map[string]any{"period": 20}})
	require.NoError(t, err)
	assert.Equal(t, before, f.ColumnNames())
	_, ok := f.Column("sma_20")
	assert.False(t, ok)
}
