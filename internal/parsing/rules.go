package parsing

import (
	"regexp"
	"strings"

	"github.com/zombor/invoice-intake/internal/invoice"
)

// Rule weights. A strict labelled rule scores MaxWeight; looser rules less.
const (
	MaxWeight      = 0.95
	labelledWeight = 0.75
	looseWeight    = 0.6
	fallbackWeight = 0.4
)

// Rule is one pattern for a field. Match receives the normalized text and
// the display copy and returns the raw value when the rule applies.
type Rule struct {
	Name   string
	Weight float64
	Match  func(normalized, display string) (string, bool)
}

// regexRule matches on the normalized text and reads the captured value from
// the display copy so original casing survives. Patterns are compiled
// case-insensitive.
func regexRule(name string, weight float64, pattern string) Rule {
	re := regexp.MustCompile(`(?im)` + pattern)
	return Rule{
		Name:   name,
		Weight: weight,
		Match: func(normalized, display string) (string, bool) {
			if !re.MatchString(normalized) {
				return "", false
			}
			if m := re.FindStringSubmatch(display); m != nil {
				return strings.TrimSpace(m[1]), true
			}
			m := re.FindStringSubmatch(normalized)
			return strings.TrimSpace(m[1]), true
		},
	}
}

const (
	currencyCode = `(?:usd|eur|gbp|cad|aud|inr|jpy|chf|nzd|sgd)`
	// money value: optional sign/paren, currency code or symbol, a leading
	// digit, then the rest of the token plus an optional trailing currency code
	moneyValue = `([-(]?(?:` + currencyCode + `\s?)?(?:[$€£¥₹]\s?)?[-(]?\d[^\s]*(?:\s+` + currencyCode + `\b)?)`
	// strictly numeric money value for unlabelled matches
	numericMoney = `((?:[$€£¥₹]\s?)?\d[\d,]*\.\d{2})`
	dateValue    = `(\d{4}[-/.]\d{1,2}[-/.]\d{1,2}` +
		`|\d{1,2}[-/.]\d{1,2}[-/.]\d{2,4}` +
		`|\d{1,2}\s+[a-z]{3,9}\.?,?\s+\d{4}` +
		`|[a-z]{3,9}\.?\s+\d{1,2},?\s+\d{4})`
	invoiceNumberValue = `([a-z0-9][a-z0-9\-/_.]*\d[a-z0-9\-/_]*|\d[a-z0-9\-/_.]*)`
)

// InvoiceNumberRules in priority order
var InvoiceNumberRules = []Rule{
	regexRule("invoice-labelled", MaxWeight, `\binvoice\s*(?:#|no\.?|number|num\.?)\s*:?\s*#?\s*`+invoiceNumberValue),
	// "Invoice: 12345" and "INVOICE 12345"; the value must hold a digit so
	// "invoice date" never matches
	regexRule("invoice-bare", labelledWeight, `\binvoice(?:[ \t]*:[ \t]*|[ \t]+)#?[ \t]*`+invoiceNumberValue),
	regexRule("bill-labelled", labelledWeight, `\b(?:bill|receipt|document|ref(?:erence)?)\s*(?:#|no\.?|number)\s*:?\s*#?\s*`+invoiceNumberValue),
	regexRule("inv-prefix", looseWeight, `\b(inv[-\s]?\d[a-z0-9\-/_]*)`),
	regexRule("hash-number", fallbackWeight, `#\s*(\d{3,}[a-z0-9\-]*)`),
}

// VendorRules in priority order
var VendorRules = []Rule{
	regexRule("vendor-labelled", MaxWeight, `^\s*(?:vendor|supplier|seller|merchant|sold\s+by|bill(?:ed)?\s+from|from)\s*:\s*(.+)$`),
	regexRule("company-suffix", labelledWeight, `^[ \t]*([a-z][a-z0-9 \t&.,'\-]*?\b(?:inc|llc|ltd|limited|corp|corporation|co|company|gmbh|plc|pty)\b\.?)[ \t]*$`),
	{Name: "first-line", Weight: fallbackWeight, Match: firstNameLine},
}

// DateRules in priority order
var DateRules = []Rule{
	regexRule("invoice-date-labelled", MaxWeight, `\b(?:invoice\s*date|issue\s*date|date\s*of\s*issue|dated)\s*:?\s*`+dateValue),
	regexRule("date-labelled", MaxWeight, `^\s*date\s*:?\s*`+dateValue),
	regexRule("any-date", looseWeight, `\b`+dateValue),
}

// AmountRules in priority order
var AmountRules = []Rule{
	regexRule("grand-total", MaxWeight, `^\s*grand\s*total\s*:?\s*`+moneyValue),
	regexRule("amount-due", MaxWeight, `^\s*(?:amount|total|balance)\s*due\s*:?\s*`+moneyValue),
	regexRule("amount-labelled", MaxWeight, `^\s*(?:invoice\s*total|total\s*amount|amount|total)\s*:?\s*`+moneyValue),
	regexRule("total-anywhere", looseWeight, `\btotal\b[^\d\n$€£¥₹]*`+numericMoney),
	regexRule("first-money", fallbackWeight, `[$€£¥₹]\s?(\d[\d,]*\.\d{2})`),
}

// TaxRules in priority order
var TaxRules = []Rule{
	regexRule("tax-labelled", MaxWeight, `^\s*(?:sales\s*)?(?:tax|vat|gst|hst)(?:\s*amount)?\s*(?:\(\s*[\d.]+\s*%\s*\))?\s*:?\s*`+moneyValue),
	regexRule("tax-anywhere", looseWeight, `\b(?:tax|vat|gst|hst)\b[^\d\n$€£¥₹]*(?:[\d.]+\s*%[^\d\n$€£¥₹]*)?`+numericMoney),
}

// headerWords mark lines that are labels, not a vendor header
var headerWords = regexp.MustCompile(`(?i)\b(invoice|bill|date|total|amount|tax|vat|gst|due|page|receipt|to|qty|quantity|description|subtotal)\b`)

// firstNameLine takes the first line that reads like a business name
func firstNameLine(_, display string) (string, bool) {
	for _, line := range strings.Split(display, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || headerWords.MatchString(line) {
			continue
		}
		letters := 0
		for _, r := range line {
			if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
				letters++
			}
		}
		if letters*2 < len([]rune(line)) {
			continue
		}
		return line, true
	}
	return "", false
}

// RuleSet bundles the ordered rules of every field
type RuleSet map[invoice.Field][]Rule

// DefaultRules returns the built-in rule set
func DefaultRules() RuleSet {
	return RuleSet{
		invoice.FieldInvoiceNumber: InvoiceNumberRules,
		invoice.FieldVendorName:    VendorRules,
		invoice.FieldInvoiceDate:   DateRules,
		invoice.FieldAmount:        AmountRules,
		invoice.FieldTaxAmount:     TaxRules,
	}
}
