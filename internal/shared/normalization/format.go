// Package normalization holds the display formatting shared by the event transformers.
package normalization

import (
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// Formatter renders monetary and ratio figures for one locale and currency symbol.
// The zero value is not usable; call NewFormatter.
type Formatter struct {
	printer *message.Printer
	symbol  string
}

// NewFormatter builds a formatter for the BCP 47 locale tag. Unknown tags fall
// back to English grouping rules.
func NewFormatter(locale, symbol string) *Formatter {
	tag, err := language.Parse(locale)
	if err != nil {
		tag = language.English
	}
	return &Formatter{printer: message.NewPrinter(tag), symbol: symbol}
}

// DefaultFormatter formats Australian dollars ("$1,250,000.00").
func DefaultFormatter() *Formatter {
	return NewFormatter("en-AU", "$")
}

// Currency rounds half away from zero to cents and groups the integer digits.
func (f *Formatter) Currency(value float64) string {
	amount := decimal.NewFromFloat(value).Round(2)
	sign := ""
	if amount.IsNegative() {
		sign = "-"
		amount = amount.Neg()
	}
	digits := f.printer.Sprintf("%v", number.Decimal(amount.InexactFloat64(),
		number.MinFractionDigits(2), number.MaxFractionDigits(2)))
	return sign + f.symbol + digits
}

// Percentage renders a value already expressed in percent units with two decimals ("12.50%").
func (f *Formatter) Percentage(value float64) string {
	return decimal.NewFromFloat(value).StringFixed(2) + "%"
}
