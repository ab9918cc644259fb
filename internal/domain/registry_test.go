package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/woninglens/woninglens/internal/domain/errors"
)

func entry(id string, value any) Entry {
	return Entry{ID: id, Kind: KindFact, Value: value, Name: id, Source: "test", Confidence: 1, Complete: true}
}

func TestRegistryRegisterAndGet(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(entry("asking_price_eur", 450000)))

	e, ok := reg.Get("asking_price_eur")
	require.True(t, ok)
	assert.Equal(t, 450000, e.Value)
	assert.Equal(t, 1, reg.Len())
}

func TestRegistryReRegisterSameValueIsNoOp(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(entry("energy_label", "C")))
	require.NoError(t, reg.Register(entry("energy_label", "C")))
	assert.Equal(t, 1, reg.Len())
}

func TestRegistryConflictIsFatal(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(entry("asking_price_eur", 450000)))

	err := reg.Register(entry("asking_price_eur", 500000))
	require.Error(t, err)

	var conflict *errors.RegistryConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "asking_price_eur", conflict.Key)
	assert.Equal(t, errors.CodeRegistryConflict, errors.CodeOf(err))

	// The original value wins.
	e, _ := reg.Get("asking_price_eur")
	assert.Equal(t, 450000, e.Value)
}

func TestRegistryWriteAfterFreeze(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(entry("living_area_m2", 120)))
	require.NoError(t, reg.Freeze())

	before := reg.Len()
	err := reg.Register(entry("illegal", 999))
	require.Error(t, err)

	var locked *errors.RegistryLockedError
	require.ErrorAs(t, err, &locked)
	assert.Equal(t, before, reg.Len())
}

func TestRegistryDoubleFreezeIsFatal(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Freeze())

	err := reg.Freeze()
	require.Error(t, err)
	assert.Equal(t, errors.CodePipelineViolation, errors.CodeOf(err))
}

func TestRegistryReadsAfterFreeze(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(entry("build_year", 1985)))
	require.NoError(t, reg.Freeze())

	e, ok := reg.Get("build_year")
	require.True(t, ok)
	assert.Equal(t, 1985, e.Value)
	assert.Equal(t, map[string]any{"build_year": 1985}, reg.Snapshot())
}

func TestRegistryIncompleteKeys(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(entry("asking_price_eur", 450000)))
	require.NoError(t, reg.Register(Entry{ID: "scrape_error", Kind: KindUncertainty, Value: "timeout", Name: "x", Source: "transport", Complete: true}))
	require.NoError(t, reg.Register(Entry{ID: "plot_area_m2", Kind: KindFact, Value: nil, Name: "x", Source: "parse"}))

	assert.ElementsMatch(t, []string{"scrape_error", "plot_area_m2"}, reg.IncompleteKeys())
}

func TestProxyRefusesArithmetic(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(entry("asking_price_eur", 450000)))
	require.NoError(t, reg.Freeze())

	proxy, err := NewProxy(reg)
	require.NoError(t, err)

	v, ok := proxy.Get("asking_price_eur")
	require.True(t, ok)

	_, err = v.Add(1000)
	assert.Equal(t, errors.CodePresentationViolation, errors.CodeOf(err))

	_, err = v.Int()
	assert.Equal(t, errors.CodePresentationViolation, errors.CodeOf(err))

	_, err = v.Scale(1.1)
	assert.Equal(t, errors.CodePresentationViolation, errors.CodeOf(err))
}

func TestProxyAllowsDisplayAndComparison(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(entry("asking_price_eur", 450000)))
	require.NoError(t, reg.Register(entry("avg_m2_price", 4800)))
	require.NoError(t, reg.Freeze())

	proxy, err := NewProxy(reg)
	require.NoError(t, err)

	price, _ := proxy.Get("asking_price_eur")
	avg, _ := proxy.Get("avg_m2_price")

	assert.Equal(t, "450000", price.String())
	assert.True(t, price.Equal(450000))
	assert.Equal(t, 1, price.Compare(avg))
	assert.Equal(t, 450000, proxy.DisplayMap()["asking_price_eur"])
}

func TestProxyOverUnfrozenRegistryIsViolation(t *testing.T) {
	reg := NewRegistry()
	_, err := NewProxy(reg)
	require.Error(t, err)
	assert.Equal(t, errors.CodePipelineViolation, errors.CodeOf(err))
}
