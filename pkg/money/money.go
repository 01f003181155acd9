// Package money formats naira amounts held in kobo for display.
package money

import (
	"fmt"

	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Symbol is the naira sign.
const Symbol = "₦"

var printer = message.NewPrinter(language.English)

// Code returns the ISO 4217 code of the ledger currency.
func Code() string {
	return currency.MustParseISO("NGN").String()
}

// Format renders an amount in kobo as "₦50,000.00".
func Format(kobo int64) string {
	sign := ""
	if kobo < 0 {
		sign = "-"
		kobo = -kobo
	}
	return fmt.Sprintf("%s%s%s.%02d", sign, Symbol, printer.Sprintf("%d", kobo/100), kobo%100)
}
