package parsing

import (
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"
)

// DateLayouts are tried in order; the first successful parse wins. Day-first
// layouts precede month-first ones.
var DateLayouts = []string{
	"2006-1-2",
	"2006/1/2",
	"2006.1.2",
	"2/1/2006",
	"1/2/2006",
	"2-1-2006",
	"1-2-2006",
	"2.1.2006",
	"2/1/06",
	"1/2/06",
	"2-1-06",
	"2 January 2006",
	"2 Jan 2006",
	"2 Jan. 2006",
	"January 2, 2006",
	"January 2 2006",
	"Jan 2, 2006",
	"Jan 2 2006",
	"Jan. 2, 2006",
}

// ParseDate parses a date-only value in UTC
func ParseDate(raw string) (time.Time, bool) {
	raw = strings.Join(strings.Fields(raw), " ")
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range DateLayouts {
		if t, err := time.ParseInLocation(layout, raw, time.UTC); err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), true
		}
	}
	return time.Time{}, false
}

var (
	reCurrencyCode = regexp.MustCompile(`(?i)\b(usd|eur|gbp|cad|aud|inr|jpy|chf|nzd|sgd)\b`)
	reDecimal      = regexp.MustCompile(`^\d+(\.\d+)?$`)
)

// ParseAmount parses a money string into a non-negative decimal. Currency
// symbols and codes and thousands separators are dropped. Negative,
// parenthesised and non-numeric values are rejected.
func ParseAmount(raw string) (decimal.Decimal, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return decimal.Decimal{}, false
	}
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		return decimal.Decimal{}, false
	}
	s = reCurrencyCode.ReplaceAllString(s, "")
	s = strings.Map(func(r rune) rune {
		if unicode.Is(unicode.Sc, r) || unicode.IsSpace(r) || r == ',' {
			return -1
		}
		return r
	}, s)
	if s == "" || !reDecimal.MatchString(s) {
		return decimal.Decimal{}, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil || d.IsNegative() {
		return decimal.Decimal{}, false
	}
	return d, true
}

var reTrailingNoise = regexp.MustCompile(`[^\p{L}\p{N}.)&]+$`)
var reLeadingNoise = regexp.MustCompile(`^[^\p{L}\p{N}(&]+`)

// CleanVendor strips OCR garbage around a vendor name and collapses spaces.
// Returns false when nothing name-like remains.
func CleanVendor(raw string) (string, bool) {
	s := strings.Join(strings.Fields(raw), " ")
	s = reTrailingNoise.ReplaceAllString(s, "")
	s = reLeadingNoise.ReplaceAllString(s, "")
	s = strings.TrimSpace(s)
	hasLetter := false
	for _, r := range s {
		if unicode.IsLetter(r) {
			hasLetter = true
			break
		}
	}
	if !hasLetter {
		return "", false
	}
	return s, true
}

// CleanInvoiceNumber upper-cases and trims an invoice number
func CleanInvoiceNumber(raw string) (string, bool) {
	s := strings.ToUpper(strings.TrimSpace(raw))
	s = strings.Trim(s, ".,:;-")
	if s == "" {
		return "", false
	}
	return s, true
}
