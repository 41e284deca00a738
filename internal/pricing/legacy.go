package pricing

import "bytes"

// LegacyItem is a per-line entry of the legacy granular configuration.
type LegacyItem struct {
	Percent float64 `json:"porcentaje"`
	Apply   bool    `json:"aplicar"`
}

// LegacyGeneral is the legacy general discount block.
type LegacyGeneral struct {
	Percent            float64 `json:"porcentaje"`
	ApplyDevelopment   bool    `json:"aplicarDesarrollo"`
	ApplyBaseServices  bool    `json:"aplicarServiciosBase"`
	ApplyOtherServices bool    `json:"aplicarOtrosServicios"`
}

// LegacyGranular is the legacy granular discount block.
type LegacyGranular struct {
	Development   LegacyItem            `json:"desarrollo"`
	BaseServices  map[string]LegacyItem `json:"serviciosBase"`
	OtherServices map[string]LegacyItem `json:"otrosServicios"`
}

// LegacyDiscountConfig is the discount configuration stored before tipoDescuento
// existed. Both blocks may be populated at once.
type LegacyDiscountConfig struct {
	General   *LegacyGeneral  `json:"general,omitempty"`
	Granular  *LegacyGranular `json:"granular,omitempty"`
	PayInFull float64         `json:"descuentoPagoUnico"`
	Direct    float64         `json:"descuentoDirecto"`
}

// MigrateLegacyDiscounts converts a legacy configuration into a DiscountConfig.
// The mode is inferred from the aplicar flags: granular wins when any granular
// flag is set, general when any general flag is set, otherwise none.
func MigrateLegacyDiscounts(legacy LegacyDiscountConfig) DiscountConfig {
	cfg := DiscountConfig{Rule: NoDiscount{}, PayInFull: legacy.PayInFull, Direct: legacy.Direct}
	switch {
	case legacy.Granular.active():
		cfg.Rule = legacy.Granular.rule()
	case legacy.General.active():
		cfg.Rule = GeneralDiscount{
			Percent: legacy.General.Percent,
			ApplyTo: ApplyTo{
				Development:   legacy.General.ApplyDevelopment,
				BaseServices:  legacy.General.ApplyBaseServices,
				OtherServices: legacy.General.ApplyOtherServices,
			},
		}
	}
	return cfg
}

func (g *LegacyGeneral) active() bool {
	return g != nil && (g.ApplyDevelopment || g.ApplyBaseServices || g.ApplyOtherServices)
}

func (g *LegacyGranular) active() bool {
	if g == nil {
		return false
	}
	if g.Development.Apply {
		return true
	}
	for _, item := range g.BaseServices {
		if item.Apply {
			return true
		}
	}
	for _, item := range g.OtherServices {
		if item.Apply {
			return true
		}
	}
	return false
}

func (g *LegacyGranular) rule() GranularDiscount {
	rule := GranularDiscount{
		BaseServices:  appliedItems(g.BaseServices),
		OtherServices: appliedItems(g.OtherServices),
	}
	if g.Development.Apply {
		rule.Development = g.Development.Percent
	}
	return rule
}

func appliedItems(items map[string]LegacyItem) map[string]float64 {
	out := make(map[string]float64, len(items))
	for key, item := range items {
		if item.Apply {
			out[key] = item.Percent
		}
	}
	return out
}

// ParseDiscountConfig decodes a stored discount configuration in either the
// current or the legacy shape. The boolean reports whether the input was legacy.
// Empty or malformed input yields DefaultDiscountConfig.
func ParseDiscountConfig(raw []byte) (DiscountConfig, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return DefaultDiscountConfig(), false
	}
	cfg, legacy, err := decodeDiscountConfig(raw)
	if err != nil {
		return DefaultDiscountConfig(), false
	}
	return cfg, legacy
}

// IsLegacyDiscountConfig reports whether raw is stored in the legacy shape.
func IsLegacyDiscountConfig(raw []byte) bool {
	_, legacy := ParseDiscountConfig(raw)
	return legacy
}
