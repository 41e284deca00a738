package pricing

import "encoding/json"

// DiscountMode selects which category discount rule is authoritative.
type DiscountMode string

const (
	ModeNone     DiscountMode = "ninguno"
	ModeGeneral  DiscountMode = "general"
	ModeGranular DiscountMode = "granular"
)

// Category identifies a priced block of a snapshot.
type Category int

const (
	CategoryDevelopment Category = iota
	CategoryBaseServices
	CategoryOtherServices
)

// DiscountRule is the category-scoped percentage discount of a snapshot.
// Exactly one rule is active per configuration.
type DiscountRule interface {
	Mode() DiscountMode
	Rate(category Category, key string) float64
}

// NoDiscount applies no category discount.
type NoDiscount struct{}

// Mode implements DiscountRule.
func (NoDiscount) Mode() DiscountMode { return ModeNone }

// Rate implements DiscountRule.
func (NoDiscount) Rate(Category, string) float64 { return 0 }

// ApplyTo flags the categories a general discount covers.
type ApplyTo struct {
	Development   bool `json:"desarrollo"`
	BaseServices  bool `json:"serviciosBase"`
	OtherServices bool `json:"otrosServicios"`
}

// GeneralDiscount applies one percentage to whole categories.
type GeneralDiscount struct {
	Percent float64 `json:"porcentaje"`
	ApplyTo ApplyTo `json:"aplicarA"`
}

// Mode implements DiscountRule.
func (GeneralDiscount) Mode() DiscountMode { return ModeGeneral }

// Rate implements DiscountRule.
func (g GeneralDiscount) Rate(category Category, _ string) float64 {
	switch category {
	case CategoryDevelopment:
		if g.ApplyTo.Development {
			return g.Percent
		}
	case CategoryBaseServices:
		if g.ApplyTo.BaseServices {
			return g.Percent
		}
	case CategoryOtherServices:
		if g.ApplyTo.OtherServices {
			return g.Percent
		}
	}
	return 0
}

// GranularDiscount holds per-line percentages keyed by service identifier.
type GranularDiscount struct {
	Development   float64            `json:"desarrollo"`
	BaseServices  map[string]float64 `json:"serviciosBase"`
	OtherServices map[string]float64 `json:"otrosServicios"`
}

// Mode implements DiscountRule.
func (GranularDiscount) Mode() DiscountMode { return ModeGranular }

// Rate implements DiscountRule. Unknown keys resolve to 0.
func (g GranularDiscount) Rate(category Category, key string) float64 {
	switch category {
	case CategoryDevelopment:
		return g.Development
	case CategoryBaseServices:
		return g.BaseServices[key]
	case CategoryOtherServices:
		return g.OtherServices[key]
	}
	return 0
}

// DiscountConfig is the complete discount configuration of a snapshot.
// PayInFull only touches development; Direct is applied to the discounted subtotal.
type DiscountConfig struct {
	Rule      DiscountRule
	PayInFull float64
	Direct    float64
}

// DefaultDiscountConfig returns a configuration without any discount.
func DefaultDiscountConfig() DiscountConfig {
	return DiscountConfig{Rule: NoDiscount{}}
}

// Mode reports the active category rule.
func (c DiscountConfig) Mode() DiscountMode {
	if c.Rule == nil {
		return ModeNone
	}
	return c.Rule.Mode()
}

func (c DiscountConfig) rate(category Category, key string) float64 {
	if c.Rule == nil {
		return 0
	}
	return c.Rule.Rate(category, key)
}

type discountConfigWire struct {
	Mode      DiscountMode      `json:"tipoDescuento"`
	General   *GeneralDiscount  `json:"descuentoGeneral,omitempty"`
	Granular  *GranularDiscount `json:"descuentosGranulares,omitempty"`
	PayInFull float64           `json:"descuentoPagoUnico"`
	Direct    float64           `json:"descuentoDirecto"`
}

// MarshalJSON writes the persisted shape keyed by tipoDescuento.
func (c DiscountConfig) MarshalJSON() ([]byte, error) {
	wire := discountConfigWire{Mode: c.Mode(), PayInFull: c.PayInFull, Direct: c.Direct}
	switch rule := c.Rule.(type) {
	case GeneralDiscount:
		wire.General = &rule
	case *GeneralDiscount:
		wire.General = rule
	case GranularDiscount:
		wire.Granular = &rule
	case *GranularDiscount:
		wire.Granular = rule
	}
	return json.Marshal(wire)
}

// UnmarshalJSON reads the persisted shape, migrating the legacy shape on the
// way in. An unknown tipoDescuento decodes as DefaultDiscountConfig.
func (c *DiscountConfig) UnmarshalJSON(data []byte) error {
	cfg, _, err := decodeDiscountConfig(data)
	if err != nil {
		return err
	}
	*c = cfg
	return nil
}

// decodeDiscountConfig reports whether data was in the legacy shape. Only the
// sub-object selected by tipoDescuento is decoded into the rule.
func decodeDiscountConfig(data []byte) (DiscountConfig, bool, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return DefaultDiscountConfig(), false, err
	}
	if _, ok := fields["tipoDescuento"]; !ok {
		_, hasGeneral := fields["general"]
		_, hasGranular := fields["granular"]
		if hasGeneral || hasGranular {
			var legacy LegacyDiscountConfig
			if err := json.Unmarshal(data, &legacy); err != nil {
				return DefaultDiscountConfig(), true, err
			}
			return MigrateLegacyDiscounts(legacy), true, nil
		}
	}

	var wire discountConfigWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return DefaultDiscountConfig(), false, err
	}
	cfg := DiscountConfig{PayInFull: wire.PayInFull, Direct: wire.Direct}
	switch wire.Mode {
	case ModeNone, "":
		cfg.Rule = NoDiscount{}
	case ModeGeneral:
		rule := GeneralDiscount{}
		if wire.General != nil {
			rule = *wire.General
		}
		cfg.Rule = rule
	case ModeGranular:
		rule := GranularDiscount{}
		if wire.Granular != nil {
			rule = *wire.Granular
		}
		cfg.Rule = rule
	default:
		return DefaultDiscountConfig(), false, nil
	}
	return cfg, false, nil
}
