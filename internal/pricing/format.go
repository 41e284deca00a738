package pricing

import (
	"fmt"

	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Formatter renders monetary amounts for a locale and currency.
type Formatter struct {
	printer *message.Printer
	unit    currency.Unit
}

// NewFormatter builds a Formatter from a BCP 47 tag and an ISO 4217 code.
func NewFormatter(locale, code string) (*Formatter, error) {
	tag, err := language.Parse(locale)
	if err != nil {
		return nil, fmt.Errorf("pricing: parse locale %q: %w", locale, err)
	}
	unit, err := currency.ParseISO(code)
	if err != nil {
		return nil, fmt.Errorf("pricing: parse currency %q: %w", code, err)
	}
	return &Formatter{printer: message.NewPrinter(tag), unit: unit}, nil
}

// Currency returns the ISO code of the formatter.
func (f *Formatter) Currency() string {
	return f.unit.String()
}

// Amount formats v with the currency symbol and two decimals.
func (f *Formatter) Amount(v float64) string {
	return f.printer.Sprintf("%v %.2f", currency.Symbol(f.unit), v)
}

// Percent formats a percentage with one decimal.
func (f *Formatter) Percent(v float64) string {
	return f.printer.Sprintf("%.1f%%", v)
}

// FormattedTotals is the human readable summary of a Preview.
type FormattedTotals struct {
	Development     string `json:"desarrollo"`
	BaseServices    string `json:"serviciosBase"`
	OtherServices   string `json:"otrosServicios"`
	TotalOriginal   string `json:"totalOriginal"`
	TotalDiscounted string `json:"totalConDescuentos"`
	TotalSavings    string `json:"totalAhorro"`
	SavingsPercent  string `json:"porcentajeAhorro"`
}

// Totals formats the headline figures of p.
func (f *Formatter) Totals(p Preview) FormattedTotals {
	return FormattedTotals{
		Development:     f.Amount(p.Development.Discounted),
		BaseServices:    f.Amount(p.BaseServices.Discounted),
		OtherServices:   f.Amount(p.OtherServices.Discounted),
		TotalOriginal:   f.Amount(p.TotalOriginal),
		TotalDiscounted: f.Amount(p.TotalDiscounted),
		TotalSavings:    f.Amount(p.TotalSavings),
		SavingsPercent:  f.Percent(p.SavingsPercent),
	}
}
