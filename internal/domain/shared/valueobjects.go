// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages.
package shared

import (
	"fmt"
	"net/mail"
	"strings"
	"time"
)

// ═══════════════════════════════════════════════════════════════════════════
// Email
// ═══════════════════════════════════════════════════════════════════════════

// Email is a normalized (trimmed, lower-cased) email address.
type Email string

// NewEmail parses and normalizes an email address.
func NewEmail(raw string) (Email, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return "", ErrInvalidAccountEmail
	}
	addr, err := mail.ParseAddress(s)
	if err != nil || addr.Address != s {
		return "", ErrInvalidAccountEmail
	}
	return Email(s), nil
}

// String returns the string representation.
func (e Email) String() string {
	return string(e)
}

// ═══════════════════════════════════════════════════════════════════════════
// Money
// ═══════════════════════════════════════════════════════════════════════════

// CurrencyNGN is the only currency the ledger accepts.
const CurrencyNGN = "NGN"

// Kobo is an amount in the minor unit of the naira (₦1 = 100 kobo).
type Kobo int64

// Naira converts whole naira to Kobo.
func Naira(n int64) Kobo {
	return Kobo(n * 100)
}

// Int64 returns the raw minor-unit amount.
func (k Kobo) Int64() int64 {
	return int64(k)
}

// String returns a plain representation like "NGN 50000.00".
func (k Kobo) String() string {
	return fmt.Sprintf("%s %d.%02d", CurrencyNGN, int64(k)/100, int64(k)%100)
}

// ═══════════════════════════════════════════════════════════════════════════
// Clock
// ═══════════════════════════════════════════════════════════════════════════

// Clock returns the current time. Domain services take one so that
// time-based rules (lockout, stale intents) can be tested.
type Clock func() time.Time

// SystemClock returns the current UTC time.
func SystemClock() time.Time {
	return time.Now().UTC()
}
