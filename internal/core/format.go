package core

import (
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var printer = message.NewPrinter(language.AmericanEnglish)

// FormatUSD renders a grouped dollar amount, e.g. -$1,234.50.
func FormatUSD(v decimal.Decimal) string {
	if v.IsNegative() {
		return "-$" + FormatNumber(v.Neg())
	}
	return "$" + FormatNumber(v)
}

// FormatNumber renders v grouped with two decimals.
func FormatNumber(v decimal.Decimal) string {
	return printer.Sprintf("%.2f", v.Round(2).InexactFloat64())
}

func FormatBTC(v decimal.Decimal) string {
	return v.StringFixed(8)
}

func FormatPercent(v decimal.Decimal) string {
	return v.StringFixed(2) + "%"
}
