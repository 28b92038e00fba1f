// Package parsing turns normalized invoice text into a CandidateInvoice using
// ordered pattern rules per field.
package parsing

import (
	"github.com/zombor/invoice-intake/internal/invoice"
	"github.com/zombor/invoice-intake/internal/textnorm"
)

// Parser applies a RuleSet. The zero value is not usable; use NewParser.
type Parser struct {
	rules RuleSet
}

// NewParser creates a Parser with the default rules
func NewParser() *Parser {
	return NewParserWithRules(DefaultRules())
}

// NewParserWithRules creates a Parser with a custom rule set
func NewParserWithRules(rules RuleSet) *Parser {
	return &Parser{rules: rules}
}

// Parse extracts fields from the normalized text. original is the raw text
// the normalized form came from; values are read from its display copy.
// The first matching rule wins a field. When its value cannot be coerced the
// field stays absent with confidence 0.
func (p *Parser) Parse(normalized, original string) invoice.CandidateInvoice {
	c := invoice.NewCandidate()
	if normalized == "" {
		return c
	}
	display := textnorm.Display(original)

	if raw, rule, ok := p.first(invoice.FieldInvoiceNumber, normalized, display); ok {
		if v, ok := CleanInvoiceNumber(raw); ok {
			c.SetInvoiceNumber(v, rule.Weight)
		}
	}
	if raw, rule, ok := p.first(invoice.FieldVendorName, normalized, display); ok {
		if v, ok := CleanVendor(raw); ok {
			c.SetVendorName(v, rule.Weight)
		}
	}
	if raw, rule, ok := p.first(invoice.FieldInvoiceDate, normalized, display); ok {
		if v, ok := ParseDate(raw); ok {
			c.SetInvoiceDate(v, rule.Weight)
		}
	}
	if raw, rule, ok := p.first(invoice.FieldAmount, normalized, display); ok {
		if v, ok := ParseAmount(raw); ok {
			c.SetAmount(v, rule.Weight)
		}
	}
	if raw, rule, ok := p.first(invoice.FieldTaxAmount, normalized, display); ok {
		if v, ok := ParseAmount(raw); ok {
			c.SetTaxAmount(v, rule.Weight)
		}
	}
	return c
}

// first returns the raw value of the first rule that matches a field
func (p *Parser) first(field invoice.Field, normalized, display string) (string, Rule, bool) {
	for _, rule := range p.rules[field] {
		if raw, ok := rule.Match(normalized, display); ok {
			return raw, rule, true
		}
	}
	return "", Rule{}, false
}
