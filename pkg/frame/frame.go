// Package frame implements the OHLCV table the rest of bquant operates
// on: a strictly time-ordered set of open/high/low/close/volume columns
// plus any number of appended indicator columns, addressed by name.
package frame

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/bquant-go/bquant/internal/bqerrors"
)

// Frame is an ordered, time-indexed OHLCV table. The caller owns the
// values passed to New; Frame never mutates them. AppendColumn and
// Copy both return a new Frame sharing no backing arrays with columns
// the caller did not hand over, so a pipeline run never mutates the
// frame an external caller still holds a reference to.
type Frame struct {
	Timestamps []time.Time
	Open       []decimal.Decimal
	High       []decimal.Decimal
	Low        []decimal.Decimal
	Close      []decimal.Decimal
	Volume     []decimal.Decimal // optional; nil when absent

	columns map[string][]float64
	order   []string // insertion order of extra column names, for deterministic iteration
}

// New builds a Frame and validates it per the input frame contract:
// strictly increasing timestamps and equal-length open/high/low/close.
// Volume is optional but when present must match length.
func New(timestamps []time.Time, open, high, low, close, volume []decimal.Decimal) (*Frame, error) {
	n := len(close)
	if n == 0 {
		return nil, &bqerrors.InputError{Reason: "empty frame"}
	}
	if len(open) != n || len(high) != n || len(low) != n {
		return nil, &bqerrors.InputError{Reason: "inconsistent column lengths"}
	}
	if volume != nil && len(volume) != n {
		return nil, &bqerrors.InputError{Reason: "volume length does not match close"}
	}
	if len(timestamps) != 0 && len(timestamps) != n {
		return nil, &bqerrors.InputError{Reason: "timestamps length does not match close"}
	}
	for i := 1; i < len(timestamps); i++ {
		if !timestamps[i].After(timestamps[i-1]) {
			return nil, &bqerrors.InputError{Reason: "timestamps are not strictly increasing"}
		}
	}
	return &Frame{
		Timestamps: timestamps,
		Open:       open,
		High:       high,
		Low:        low,
		Close:      close,
		Volume:     volume,
	}, nil
}

// Len returns the number of bars.
func (f *Frame) Len() int { return len(f.Close) }

// HasVolume reports whether the frame carries a volume column.
func (f *Frame) HasVolume() bool { return f.Volume != nil }

// Column returns an extra (non-OHLCV) column by name, or (nil, false)
// if it was never appended.
func (f *Frame) Column(name string) ([]float64, bool) {
	v, ok := f.columns[name]
	return v, ok
}

// HasColumn reports whether name is present among open/high/low/close
// or an appended extra column.
func (f *Frame) HasColumn(name string) bool {
	switch name {
	case "open", "high", "low", "close", "volume":
		return name != "volume" || f.HasVolume()
	}
	_, ok := f.columns[name]
	return ok
}

// ColumnNames returns the names of appended extra columns in the
// order they were added.
func (f *Frame) ColumnNames() []string {
	out := make([]string, len(f.order))
	copy(out, f.order)
	return out
}

// CloseFloats returns the close column converted to float64, the unit
// every indicator and detection strategy computes over.
func (f *Frame) CloseFloats() []float64 { return decimalsToFloats(f.Close) }

// OpenFloats returns the open column converted to float64.
func (f *Frame) OpenFloats() []float64 { return decimalsToFloats(f.Open) }

// HighFloats returns the high column converted to float64.
func (f *Frame) HighFloats() []float64 { return decimalsToFloats(f.High) }

// LowFloats returns the low column converted to float64.
func (f *Frame) LowFloats() []float64 { return decimalsToFloats(f.Low) }

// VolumeFloats returns the volume column converted to float64, or nil
// if the frame carries no volume.
func (f *Frame) VolumeFloats() []float64 {
	if f.Volume == nil {
		return nil
	}
	return decimalsToFloats(f.Volume)
}

// Copy returns a deep-enough copy of the frame: a new Frame value with
// its own columns map, safe for a pipeline run to append to without
// affecting the caller's original.
func (f *Frame) Copy() *Frame {
	cp := &Frame{
		Timestamps: f.Timestamps,
		Open:       f.Open,
		High:       f.High,
		Low:        f.Low,
		Close:      f.Close,
		Volume:     f.Volume,
	}
	if len(f.columns) > 0 {
		cp.columns = make(map[string][]float64, len(f.columns))
		cp.order = make([]string, len(f.order))
		copy(cp.order, f.order)
		for k, v := range f.columns {
			cp.columns[k] = v
		}
	}
	return cp
}

// AppendColumn returns a new Frame with name bound to values appended
// (or overwritten, if the name already exists). The receiver is left
// unmodified.
func (f *Frame) AppendColumn(name string, values []float64) (*Frame, error) {
	if len(values) != f.Len() {
		return nil, &bqerrors.InputError{Reason: "column length mismatch", Context: map[string]any{"column": name, "got": len(values), "want": f.Len()}}
	}
	cp := f.Copy()
	if cp.columns == nil {
		cp.columns = make(map[string][]float64)
	}
	if _, exists := cp.columns[name]; !exists {
		cp.order = append(cp.order, name)
	}
	cp.columns[name] = values
	return cp, nil
}

// Slice returns a view of the frame restricted to [start, end), a
// half-open index range. OHLCV and all extra columns are sliced in
// lockstep; no values are copied.
func (f *Frame) Slice(start, end int) *Frame {
	if start < 0 {
		start = 0
	}
	if end > f.Len() {
		end = f.Len()
	}
	if start >= end {
		return &Frame{}
	}
	sub := &Frame{
		Open:  f.Open[start:end],
		High:  f.High[start:end],
		Low:   f.Low[start:end],
		Close: f.Close[start:end],
	}
	if len(f.Timestamps) > 0 {
		sub.Timestamps = f.Timestamps[start:end]
	}
	if f.Volume != nil {
		sub.Volume = f.Volume[start:end]
	}
	if len(f.columns) > 0 {
		sub.columns = make(map[string][]float64, len(f.columns))
		sub.order = make([]string, len(f.order))
		copy(sub.order, f.order)
		for k, v := range f.columns {
			sub.columns[k] = v[start:end]
		}
	}
	return sub
}

func decimalsToFloats(in []decimal.Decimal) []float64 {
	out := make([]float64, len(in))
	for i, d := range in {
		out[i], _ = d.Float64()
	}
	return out
}

// FloatsToDecimals converts a float64 slice to decimal.Decimal, the
// reverse of the *Floats accessors.
func FloatsToDecimals(in []float64) []decimal.Decimal {
	out := make([]decimal.Decimal, len(in))
	for i, v := range in {
		out[i] = decimal.NewFromFloat(v)
	}
	return out
}
