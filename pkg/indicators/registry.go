// Package indicators resolves an (source, name, params) indicator
// spec to a function that appends named output columns to an OHLCV
// frame, per spec section 4.1. Sources are "custom" (first-party
// math), "library" (adapter over github.com/cinar/indicator/v2), and
// "preloaded" (validate-only, for columns the caller already computed).
package indicators

import (
	"fmt"
	"strings"

	"github.com/bquant-go/bquant/internal/bqerrors"
	"github.com/bquant-go/bquant/pkg/frame"
)

// Source selects which implementation family resolves an indicator name.
type Source string

const (
	SourceCustom    Source = "custom"
	SourceLibrary   Source = "library"
	SourcePreloaded Source = "preloaded"
)

// Spec is a single indicator request: source plus name plus value-typed params.
type Spec struct {
	Source Source
	Name   string
	Params map[string]any
}

// Func computes an indicator over f and returns a new frame with its
// declared output columns appended, plus the names of those columns in
// a fixed, deterministic order (primary column first).
type Func func(f *frame.Frame, params map[string]any) (out *frame.Frame, columns []string, err error)

// Registry resolves indicator specs to Funcs. The zero value is not
// usable; use NewRegistry.
type Registry struct {
	custom  map[string]Func
	library map[string]Func
}

// NewRegistry returns a Registry pre-populated with the built-in
// custom and library indicators (SMA, EMA, RSI, MACD, Bollinger Bands,
// ATR, Stochastic, OBV, VWAP).
func NewRegistry() *Registry {
	r := &Registry{
		custom:  make(map[string]Func),
		library: make(map[string]Func),
	}
	registerCustomIndicators(r)
	registerLibraryIndicators(r)
	return r
}

// Register adds or replaces the Func for (source, name). name
// resolution at Create/Compute time is case-insensitive.
func (r *Registry) Register(source Source, name string, fn Func) {
	key := strings.ToLower(name)
	switch source {
	case SourceCustom:
		r.custom[key] = fn
	case SourceLibrary:
		r.library[key] = fn
	}
}

// List returns the registered indicator names for source, sorted is
// not guaranteed; preloaded has no fixed catalog since it accepts any
// name already present in the frame.
func (r *Registry) List(source Source) []string {
	var m map[string]Func
	switch source {
	case SourceCustom:
		m = r.custom
	case SourceLibrary:
		m = r.library
	default:
		return nil
	}
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

// Create resolves spec to a Func without invoking it.
func (r *Registry) Create(spec Spec) (Func, error) {
	switch spec.Source {
	case SourceCustom:
		fn, ok := r.custom[strings.ToLower(spec.Name)]
		if !ok {
			return nil, &bqerrors.IndicatorError{Name: spec.Name, Reason: "unknown custom indicator"}
		}
		return fn, nil
	case SourceLibrary:
		fn, ok := r.library[strings.ToLower(spec.Name)]
		if !ok {
			return nil, &bqerrors.IndicatorError{Name: spec.Name, Reason: "unknown library indicator"}
		}
		return fn, nil
	case SourcePreloaded:
		return preloadedFunc(spec.Name), nil
	default:
		return nil, &bqerrors.IndicatorError{Name: spec.Name, Reason: fmt.Sprintf("unknown source %q", spec.Source)}
	}
}

// Compute resolves spec and invokes it against f, returning a new
// frame (f is never mutated) and the output column names declared by
// the indicator.
func (r *Registry) Compute(f *frame.Frame, spec Spec) (*frame.Frame, []string, error) {
	fn, err := r.Create(spec)
	if err != nil {
		return nil, nil, err
	}
	out, cols, err := fn(f, spec.Params)
	if err != nil {
		return nil, nil, &bqerrors.IndicatorError{Name: spec.Name, Reason: "computation failed", Cause: err}
	}
	return out, cols, nil
}

func preloadedFunc(name string) Func {
	return func(f *frame.Frame, params map[string]any) (*frame.Frame, []string, error) {
		columns := []string{name}
		if cs, ok := params["columns"].([]string); ok && len(cs) > 0 {
			columns = cs
		}
		for _, col := range columns {
			if !f.HasColumn(col) {
				return nil, nil, &bqerrors.IndicatorError{Name: name, Reason: fmt.Sprintf("preloaded column %q not present in frame", col)}
			}
		}
		return f, columns, nil
	}
}

func getIntParam(params map[string]any, key string, def int) int {
	switch v := params[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return def
}

func getFloatParam(params map[string]any, key string, def float64) float64 {
	switch v := params[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return def
}
