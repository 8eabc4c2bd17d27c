package shared

import (
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

func init() {
	// The portal UI reads amounts as JSON numbers.
	decimal.MarshalJSONWithoutQuotes = true
}

var amountPrinter = message.NewPrinter(language.English)

// FormatAmount renders money with thousands separators and two decimals.
func FormatAmount(v decimal.Decimal) string {
	f, _ := v.Round(2).Float64()
	return amountPrinter.Sprintf("%.2f", f)
}

// FormatCount renders an integer with thousands separators.
func FormatCount(n int64) string {
	return amountPrinter.Sprintf("%d", n)
}
