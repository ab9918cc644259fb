package domain

import (
	"fmt"

	"github.com/woninglens/woninglens/internal/domain/errors"
)

// Value is an immutable wrapper around a registry value handed to
// presentation code. It forwards equality and ordering but refuses every
// path that would let presentation code compute a new fact: all numeric
// extraction fails with a PresentationViolation.
type Value struct {
	key string
	raw any
}

// Key returns the registry key this value was drawn from.
func (v Value) Key() string { return v.key }

// Raw returns the underlying value for display purposes only.
func (v Value) Raw() any { return v.raw }

// String formats the value for direct template interpolation.
func (v Value) String() string {
	if v.raw == nil {
		return ""
	}
	return fmt.Sprint(v.raw)
}

// IsZero reports whether the value is absent or the zero of its type.
func (v Value) IsZero() bool {
	switch x := v.raw.(type) {
	case nil:
		return true
	case string:
		return x == ""
	case int:
		return x == 0
	case int64:
		return x == 0
	case float64:
		return x == 0
	case []string:
		return len(x) == 0
	case []any:
		return len(x) == 0
	}
	return false
}

// Equal reports whether the wrapped value equals other. Comparing against
// another Value compares the wrapped values.
func (v Value) Equal(other any) bool {
	if ov, ok := other.(Value); ok {
		return v.raw == ov.raw
	}
	return v.raw == other
}

// Compare orders two numeric or string values for display sorting.
// It returns -1, 0, or 1. Non-comparable values compare as equal.
func (v Value) Compare(other Value) int {
	a, aok := asFloat(v.raw)
	b, bok := asFloat(other.raw)
	if aok && bok {
		switch {
		case a < b:
			return -1
		case a > b:
			return 1
		}
		return 0
	}
	as, bs := fmt.Sprint(v.raw), fmt.Sprint(other.raw)
	switch {
	case as < bs:
		return -1
	case as > bs:
		return 1
	}
	return 0
}

// Int refuses numeric extraction. Presentation code may not obtain a number
// it could do arithmetic on; calculations belong in the enrichment layer.
func (v Value) Int() (int, error) {
	return 0, errors.NewPresentationViolation(fmt.Sprintf(
		"attempted numeric extraction of registry value %q; presentation code may not compute new values", v.key))
}

// Float refuses numeric extraction, as Int does.
func (v Value) Float() (float64, error) {
	return 0, errors.NewPresentationViolation(fmt.Sprintf(
		"attempted numeric extraction of registry value %q; presentation code may not compute new values", v.key))
}

// Add refuses arithmetic on registry values.
func (v Value) Add(any) (Value, error) {
	return Value{}, errors.NewPresentationViolation(fmt.Sprintf(
		"attempted arithmetic (+) on registry value %q; move this calculation to the enrichment layer", v.key))
}

// Scale refuses arithmetic on registry values.
func (v Value) Scale(float64) (Value, error) {
	return Value{}, errors.NewPresentationViolation(fmt.Sprintf(
		"attempted arithmetic (*) on registry value %q; move this calculation to the enrichment layer", v.key))
}

func asFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case float64:
		return x, true
	case float32:
		return float64(x), true
	}
	return 0, false
}

// Proxy is a read-only view over a frozen registry for presentation code.
// It wraps every value in Value so no new facts can be computed downstream.
type Proxy struct {
	data map[string]any
}

// NewProxy creates a proxy over a frozen registry.
// Proxying an unfrozen registry is a pipeline violation: presentation code
// must never observe the registry while enrichment can still mutate it.
func NewProxy(reg *Registry) (*Proxy, error) {
	if !reg.Frozen() {
		return nil, errors.NewPipelineViolation("", "cannot create presentation proxy over unfrozen registry")
	}
	return &Proxy{data: reg.Snapshot()}, nil
}

// Get returns the wrapped value for a key, if present.
func (p *Proxy) Get(key string) (Value, bool) {
	raw, ok := p.data[key]
	if !ok {
		return Value{}, false
	}
	return Value{key: key, raw: raw}, true
}

// Has reports whether a key exists.
func (p *Proxy) Has(key string) bool {
	_, ok := p.data[key]
	return ok
}

// DisplayMap returns raw values for direct template interpolation only.
func (p *Proxy) DisplayMap() map[string]any {
	out := make(map[string]any, len(p.data))
	for k, v := range p.data {
		out[k] = v
	}
	return out
}
