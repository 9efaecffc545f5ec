// Package money holds currency rounding, aggregation and formatting helpers
// shared across the procurement workflow.
package money

import (
	"math"

	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Round2 rounds a monetary amount to two decimal places, half away from zero.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// LineTotal computes qty x unit price rounded to cents.
func LineTotal(qty, unitPrice float64) float64 {
	return Round2(qty * unitPrice)
}

// Sum aggregates amounts and rounds the result once, so per-line rounding
// artefacts do not accumulate.
func Sum(amounts ...float64) float64 {
	var total float64
	for _, a := range amounts {
		total += a
	}
	return Round2(total)
}

// Percent applies pct (e.g. 18 for 18%) to base.
func Percent(base, pct float64) float64 {
	return Round2(base * pct / 100)
}

// Format renders an amount with its ISO 4217 currency symbol, e.g. "INR 1,234.50".
// Unknown codes fall back to a plain formatted number.
func Format(amount float64, code string) string {
	p := message.NewPrinter(language.English)
	unit, err := currency.ParseISO(code)
	if err != nil {
		return p.Sprintf("%.2f", amount)
	}
	return p.Sprintf("%v", currency.NarrowSymbol(unit.Amount(amount)))
}
