package pricing

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyClampsAtZero(t *testing.T) {
	assert.Equal(t, 80.0, Apply(100, 20))
	assert.Equal(t, 100.0, Apply(100, 0))
	assert.Equal(t, 0.0, Apply(100, 100))
	assert.Equal(t, 0.0, Apply(100, 150))
}

func TestCalculatePayInFullStacksOnDevelopmentThenDirect(t *testing.T) {
	snapshot := Snapshot{
		Development: 1000,
		Discounts: &DiscountConfig{
			Rule:      GranularDiscount{Development: 0},
			PayInFull: 10,
			Direct:    5,
		},
	}

	preview := Calculate(snapshot)

	assert.Equal(t, 900.0, preview.Development.Discounted)
	assert.Equal(t, 900.0, preview.SubtotalDiscounted)
	assert.InDelta(t, 855.0, preview.TotalDiscounted, 1e-9)
	assert.InDelta(t, 145.0, preview.TotalSavings, 1e-9)
	assert.InDelta(t, 14.5, preview.SavingsPercent, 1e-9)
}

func TestCalculateOrderMatters(t *testing.T) {
	cfg := DiscountConfig{Rule: NoDiscount{}, PayInFull: 10, Direct: 5}
	snapshot := Snapshot{
		Development:  1000,
		BaseServices: []ServiceLine{{ID: "a", Name: "Hosting", Price: 200}},
		Discounts:    &cfg,
	}
	preview := Calculate(snapshot)

	// Pay-in-full taken after the direct discount, on the whole subtotal.
	swapped := Apply(Apply(1100, 5), 10)
	assert.NotEqual(t, swapped, preview.TotalDiscounted)
	assert.InDelta(t, (900.0+200.0)*0.95, preview.TotalDiscounted, 1e-9)
}

func TestCalculateGranularServiceDiscount(t *testing.T) {
	snapshot := Snapshot{
		Development:   500,
		BaseServices:  []ServiceLine{{ID: "a", Name: "Hosting", Price: 100}},
		OtherServices: []ServiceLine{{Name: "Soporte", Price: 50}},
		Discounts: &DiscountConfig{
			Rule: GranularDiscount{BaseServices: map[string]float64{"a": 20}},
		},
	}

	preview := Calculate(snapshot)

	assert.Equal(t, 80.0, preview.BaseServices.Discounted)
	assert.Equal(t, 100.0, preview.BaseServices.Total)
	assert.Equal(t, 500.0+80.0+50.0, preview.TotalDiscounted)
	assert.Equal(t, "otro-0", preview.OtherServices.Lines[0].Key)
}

func TestCalculateGranularKeysOtherServicesByIndex(t *testing.T) {
	snapshot := Snapshot{
		OtherServices: []ServiceLine{
			{Name: "Dominio", Price: 20},
			{ID: "ssl", Name: "SSL", Price: 40},
			{Name: "Correo", Price: 60},
		},
		Discounts: &DiscountConfig{
			Rule: GranularDiscount{OtherServices: map[string]float64{"otro-2": 50, "ssl": 25}},
		},
	}

	preview := Calculate(snapshot)

	require.Len(t, preview.OtherServices.Lines, 3)
	assert.Equal(t, 20.0, preview.OtherServices.Lines[0].Discounted)
	assert.Equal(t, 30.0, preview.OtherServices.Lines[1].Discounted)
	assert.Equal(t, 30.0, preview.OtherServices.Lines[2].Discounted)
}

func TestCalculateGranularBaseServicesWithoutIDDoNotShareKey(t *testing.T) {
	snapshot := Snapshot{
		BaseServices: []ServiceLine{
			{Name: "Hosting", Price: 100},
			{Name: "Correo", Price: 100},
		},
		Discounts: &DiscountConfig{
			Rule: GranularDiscount{BaseServices: map[string]float64{"": 50, "base-1": 10}},
		},
	}

	preview := Calculate(snapshot)

	require.Len(t, preview.BaseServices.Lines, 2)
	assert.Equal(t, "base-0", preview.BaseServices.Lines[0].Key)
	assert.Equal(t, 100.0, preview.BaseServices.Lines[0].Discounted)
	assert.Equal(t, 90.0, preview.BaseServices.Lines[1].Discounted)
}

func TestCalculateGeneralDiscountHonoursCategoryFlags(t *testing.T) {
	snapshot := Snapshot{
		Development:   1000,
		BaseServices:  []ServiceLine{{ID: "a", Price: 100}},
		OtherServices: []ServiceLine{{ID: "b", Price: 100}},
		Discounts: &DiscountConfig{
			Rule: GeneralDiscount{Percent: 10, ApplyTo: ApplyTo{Development: true, OtherServices: true}},
		},
	}

	preview := Calculate(snapshot)

	assert.Equal(t, 900.0, preview.Development.AfterCategory)
	assert.Equal(t, 100.0, preview.BaseServices.Discounted)
	assert.Equal(t, 90.0, preview.OtherServices.Discounted)
}

func TestCalculateGranularIgnoresGeneralPercentage(t *testing.T) {
	raw := []byte(`{
		"tipoDescuento": "granular",
		"descuentoGeneral": {"porcentaje": 50, "aplicarA": {"desarrollo": true, "serviciosBase": true, "otrosServicios": true}},
		"descuentosGranulares": {"desarrollo": 0, "serviciosBase": {}, "otrosServicios": {}},
		"descuentoPagoUnico": 0,
		"descuentoDirecto": 0
	}`)
	cfg, legacy := ParseDiscountConfig(raw)
	require.False(t, legacy)
	snapshot := Snapshot{
		Development:   1000,
		BaseServices:  []ServiceLine{{ID: "a", Price: 100}},
		OtherServices: []ServiceLine{{Price: 100}},
		Discounts:     &cfg,
	}

	preview := Calculate(snapshot)

	assert.Equal(t, ModeGranular, preview.Mode)
	assert.Equal(t, preview.TotalOriginal, preview.TotalDiscounted)
}

func TestCalculateWithoutConfigUsesDefault(t *testing.T) {
	preview := Calculate(Snapshot{Development: 300, BaseServices: []ServiceLine{{ID: "x", Price: 20}}})
	assert.Equal(t, ModeNone, preview.Mode)
	assert.Equal(t, 320.0, preview.TotalOriginal)
	assert.Equal(t, 320.0, preview.TotalDiscounted)
	assert.Zero(t, preview.TotalSavings)
}

func TestCalculateZeroTotalHasZeroSavingsPercent(t *testing.T) {
	preview := Calculate(Snapshot{Discounts: &DiscountConfig{Rule: NoDiscount{}, Direct: 30}})
	assert.Zero(t, preview.TotalOriginal)
	assert.Zero(t, preview.SavingsPercent)
	assert.False(t, math.IsNaN(preview.SavingsPercent))
}

func TestCalculateNeverIncreasesPrice(t *testing.T) {
	percentages := []float64{0, 5, 33.3, 50, 99, 100, 120, 250}
	for _, pct := range percentages {
		configs := []DiscountConfig{
			{Rule: GeneralDiscount{Percent: pct, ApplyTo: ApplyTo{true, true, true}}, PayInFull: pct, Direct: pct},
			{Rule: GranularDiscount{Development: pct, BaseServices: map[string]float64{"a": pct}, OtherServices: map[string]float64{"otro-0": pct}}, PayInFull: pct, Direct: pct},
			{Rule: NoDiscount{}, Direct: pct},
		}
		for _, cfg := range configs {
			cfg := cfg
			preview := Calculate(Snapshot{
				Development:   1234.5,
				BaseServices:  []ServiceLine{{ID: "a", Price: 99.9}},
				OtherServices: []ServiceLine{{Price: 10}},
				Discounts:     &cfg,
			})
			assert.LessOrEqual(t, preview.TotalDiscounted, preview.TotalOriginal, "pct=%v mode=%s", pct, cfg.Mode())
			assert.GreaterOrEqual(t, preview.TotalDiscounted, 0.0)
		}
	}
}

func TestCalculateDoesNotMutateInput(t *testing.T) {
	granular := GranularDiscount{BaseServices: map[string]float64{"a": 10}}
	snapshot := Snapshot{
		Development:  100,
		BaseServices: []ServiceLine{{ID: "a", Price: 100}},
		Discounts:    &DiscountConfig{Rule: granular, PayInFull: 10},
	}
	before, err := json.Marshal(snapshot)
	require.NoError(t, err)

	_ = Calculate(snapshot)

	after, err := json.Marshal(snapshot)
	require.NoError(t, err)
	assert.JSONEq(t, string(before), string(after))
}
