// Package validation applies business rules to parsed invoices.
package validation

import (
	"fmt"
	"strings"
	"time"

	"github.com/zombor/invoice-intake/internal/invoice"
)

// Rule IDs reported in violations
const (
	RuleRequiredFields = "required-fields"
	RuleAmountPositive = "amount-positive"
	RuleDateRange      = "date-range"
	RuleTaxConsistency = "tax-consistency"
	RuleLowConfidence  = "low-confidence"
	RuleApprovedVendor = "approved-vendor"
)

const (
	DefaultLowConfidenceThreshold = 0.5
	DefaultDateHorizonYears       = 5
)

// Config tunes the validator. Zero values take the defaults.
type Config struct {
	LowConfidenceThreshold float64
	DateHorizonYears       int
	// ApprovedVendors enables the approved-vendor rule when non-empty
	ApprovedVendors []string
}

// TimeSource provides the processing time
type TimeSource interface {
	Now() time.Time
}

type defaultTimeSource struct{}

func (defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Rule inspects a candidate and reports violations. Rules are independent.
type Rule func(c invoice.CandidateInvoice) []invoice.RuleViolation

// Validator runs a fixed ordered list of rules
type Validator struct {
	cfg        Config
	timeSource TimeSource
	rules      []Rule
}

// NewValidator creates a Validator using the wall clock
func NewValidator(cfg Config) *Validator {
	return NewValidatorWithDeps(cfg, defaultTimeSource{})
}

// NewValidatorWithDeps creates a Validator with a custom time source for testing
func NewValidatorWithDeps(cfg Config, timeSrc TimeSource) *Validator {
	if cfg.LowConfidenceThreshold <= 0 {
		cfg.LowConfidenceThreshold = DefaultLowConfidenceThreshold
	}
	if cfg.DateHorizonYears <= 0 {
		cfg.DateHorizonYears = DefaultDateHorizonYears
	}
	v := &Validator{cfg: cfg, timeSource: timeSrc}
	v.rules = []Rule{
		requiredFields,
		amountPositive,
		v.dateRange,
		taxConsistency,
		v.lowConfidence,
	}
	if len(cfg.ApprovedVendors) > 0 {
		v.rules = append(v.rules, v.approvedVendor)
	}
	return v
}

// Validate evaluates every rule; it never stops at the first failure.
func (v *Validator) Validate(c invoice.CandidateInvoice) invoice.Verdict {
	var violations []invoice.RuleViolation
	for _, rule := range v.rules {
		violations = append(violations, rule(c)...)
	}
	return invoice.NewVerdict(violations)
}

func requiredFields(c invoice.CandidateInvoice) []invoice.RuleViolation {
	var out []invoice.RuleViolation
	for _, f := range []invoice.Field{invoice.FieldInvoiceNumber, invoice.FieldVendorName, invoice.FieldAmount} {
		if !c.Has(f) {
			out = append(out, invoice.RuleViolation{
				RuleID:   RuleRequiredFields,
				Field:    f,
				Message:  fmt.Sprintf("%s is missing", f),
				Severity: invoice.SeverityHard,
			})
		}
	}
	return out
}

func amountPositive(c invoice.CandidateInvoice) []invoice.RuleViolation {
	if c.Amount == nil || c.Amount.IsPositive() {
		return nil
	}
	return []invoice.RuleViolation{{
		RuleID:   RuleAmountPositive,
		Field:    invoice.FieldAmount,
		Message:  fmt.Sprintf("amount must be greater than 0, got %s", c.Amount.StringFixed(2)),
		Severity: invoice.SeverityHard,
	}}
}

func (v *Validator) dateRange(c invoice.CandidateInvoice) []invoice.RuleViolation {
	if c.InvoiceDate == nil {
		return nil
	}
	now := v.timeSource.Now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	oldest := today.AddDate(-v.cfg.DateHorizonYears, 0, 0)
	d := *c.InvoiceDate

	var msg string
	switch {
	case d.After(today):
		msg = fmt.Sprintf("invoice date %s is in the future", d.Format("2006-01-02"))
	case d.Before(oldest):
		msg = fmt.Sprintf("invoice date %s is older than %d years", d.Format("2006-01-02"), v.cfg.DateHorizonYears)
	default:
		return nil
	}
	return []invoice.RuleViolation{{
		RuleID:   RuleDateRange,
		Field:    invoice.FieldInvoiceDate,
		Message:  msg,
		Severity: invoice.SeverityHard,
	}}
}

func taxConsistency(c invoice.CandidateInvoice) []invoice.RuleViolation {
	if c.TaxAmount == nil || c.Amount == nil || !c.TaxAmount.GreaterThan(*c.Amount) {
		return nil
	}
	return []invoice.RuleViolation{{
		RuleID:   RuleTaxConsistency,
		Field:    invoice.FieldTaxAmount,
		Message:  fmt.Sprintf("tax %s exceeds amount %s", c.TaxAmount.StringFixed(2), c.Amount.StringFixed(2)),
		Severity: invoice.SeveritySoft,
	}}
}

func (v *Validator) lowConfidence(c invoice.CandidateInvoice) []invoice.RuleViolation {
	var out []invoice.RuleViolation
	for _, f := range invoice.Fields {
		if !c.Has(f) {
			continue
		}
		if conf := c.Confidence(f); conf < v.cfg.LowConfidenceThreshold {
			out = append(out, invoice.RuleViolation{
				RuleID:   RuleLowConfidence,
				Field:    f,
				Message:  fmt.Sprintf("%s confidence %.2f is below %.2f", f, conf, v.cfg.LowConfidenceThreshold),
				Severity: invoice.SeveritySoft,
			})
		}
	}
	return out
}

// approvedVendor matches the vendor against the approved list in either
// direction, ignoring case
func (v *Validator) approvedVendor(c invoice.CandidateInvoice) []invoice.RuleViolation {
	if c.VendorName == nil {
		return nil
	}
	vendor := strings.ToLower(strings.TrimSpace(*c.VendorName))
	for _, approved := range v.cfg.ApprovedVendors {
		a := strings.ToLower(strings.TrimSpace(approved))
		if a == "" {
			continue
		}
		if strings.Contains(vendor, a) || strings.Contains(a, vendor) {
			return nil
		}
	}
	return []invoice.RuleViolation{{
		RuleID:   RuleApprovedVendor,
		Field:    invoice.FieldVendorName,
		Message:  fmt.Sprintf("vendor %q is not in the approved list", *c.VendorName),
		Severity: invoice.SeveritySoft,
	}}
}
