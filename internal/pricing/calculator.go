package pricing

import (
	"math"
	"strconv"
)

// Apply discounts pct percent from price and never returns a negative amount.
func Apply(price, pct float64) float64 {
	return math.Max(0, price-price*pct/100)
}

// Calculate builds the cost breakdown of a snapshot. Discounts are applied in a
// fixed order: category discount on development, pay-in-full on the discounted
// development, per-line service discounts, then the direct discount on the subtotal.
// A nil configuration behaves as DefaultDiscountConfig.
func Calculate(s Snapshot) Preview {
	cfg := DefaultDiscountConfig()
	if s.Discounts != nil {
		cfg = *s.Discounts
	}

	afterCategory := Apply(s.Development, cfg.rate(CategoryDevelopment, ""))
	development := DevelopmentBreakdown{
		Original:      s.Development,
		AfterCategory: afterCategory,
		Discounted:    Apply(afterCategory, cfg.PayInFull),
	}

	base := priceLines(s.BaseServices, CategoryBaseServices, cfg, baseKey)
	other := priceLines(s.OtherServices, CategoryOtherServices, cfg, otherKey)

	totalOriginal := s.Development + base.Total + other.Total
	subtotal := development.Discounted + base.Discounted + other.Discounted
	total := Apply(subtotal, cfg.Direct)
	savings := totalOriginal - total

	var savingsPercent float64
	if totalOriginal != 0 {
		savingsPercent = savings / totalOriginal * 100
	}

	return Preview{
		Mode:                 cfg.Mode(),
		Development:          development,
		BaseServices:         base,
		OtherServices:        other,
		SubtotalDiscounted:   subtotal,
		DirectDiscountAmount: subtotal - total,
		TotalOriginal:        totalOriginal,
		TotalDiscounted:      total,
		TotalSavings:         savings,
		SavingsPercent:       savingsPercent,
	}
}

func priceLines(lines []ServiceLine, category Category, cfg DiscountConfig, key func(ServiceLine, int) string) ServicesBreakdown {
	out := ServicesBreakdown{Lines: make([]LineBreakdown, 0, len(lines))}
	for i, line := range lines {
		k := key(line, i)
		pct := cfg.rate(category, k)
		discounted := Apply(line.Price, pct)
		out.Total += line.Price
		out.Discounted += discounted
		out.Lines = append(out.Lines, LineBreakdown{
			Key:        k,
			Name:       line.Name,
			Original:   line.Price,
			Percent:    pct,
			Discounted: discounted,
		})
	}
	return out
}

func baseKey(line ServiceLine, index int) string {
	if line.ID != "" {
		return line.ID
	}
	return "base-" + strconv.Itoa(index)
}

func otherKey(line ServiceLine, index int) string {
	if line.ID != "" {
		return line.ID
	}
	return "otro-" + strconv.Itoa(index)
}
