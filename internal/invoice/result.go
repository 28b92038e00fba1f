package invoice

import (
	"fmt"
	"strings"
	"time"
)

// Severity of a rule violation
type Severity string

const (
	SeverityHard Severity = "hard"
	SeveritySoft Severity = "soft"
)

// RuleViolation is one failed business rule
type RuleViolation struct {
	RuleID   string   `json:"rule_id"`
	Field    Field    `json:"field,omitempty"`
	Message  string   `json:"message"`
	Severity Severity `json:"severity"`
}

// VerdictStatus classifies a validated candidate
type VerdictStatus string

const (
	StatusAccepted    VerdictStatus = "accepted"
	StatusRejected    VerdictStatus = "rejected"
	StatusNeedsReview VerdictStatus = "needs_review"
)

// Verdict is the validator's output
type Verdict struct {
	Status     VerdictStatus   `json:"status"`
	Violations []RuleViolation `json:"violations"`
}

// NewVerdict derives the status from the violation set: any hard violation
// rejects, soft-only needs review, none accepts.
func NewVerdict(violations []RuleViolation) Verdict {
	if violations == nil {
		violations = []RuleViolation{}
	}
	status := StatusAccepted
	for _, v := range violations {
		if v.Severity == SeverityHard {
			status = StatusRejected
			break
		}
		status = StatusNeedsReview
	}
	return Verdict{Status: status, Violations: violations}
}

// HasRule reports whether a violation with the rule ID is present
func (v Verdict) HasRule(ruleID string) bool {
	for _, violation := range v.Violations {
		if violation.RuleID == ruleID {
			return true
		}
	}
	return false
}

// FinalStatus is the pipeline's decision for a document
type FinalStatus string

const (
	FinalStored            FinalStatus = "stored"
	FinalRejectedRule      FinalStatus = "rejected_rule"
	FinalRejectedDuplicate FinalStatus = "rejected_duplicate"
	FinalFlaggedForReview  FinalStatus = "flagged_for_review"
	FinalExtractionFailed  FinalStatus = "extraction_failed"
)

// FinalStatuses lists every final status in reporting order
var FinalStatuses = []FinalStatus{
	FinalStored,
	FinalRejectedRule,
	FinalRejectedDuplicate,
	FinalFlaggedForReview,
	FinalExtractionFailed,
}

// ProcessingResult is the auditable outcome of one pipeline run
type ProcessingResult struct {
	DocumentName    string           `json:"document_name"`
	Format          Format           `json:"format"`
	Extraction      ExtractedText    `json:"extraction"`
	Candidate       CandidateInvoice `json:"candidate"`
	Verdict         Verdict          `json:"verdict"`
	IsDuplicate     bool             `json:"is_duplicate"`
	FinalStatus     FinalStatus      `json:"final_status"`
	Key             Key              `json:"key"`
	ExtractionError string           `json:"extraction_error,omitempty"`
	Attempts        int              `json:"attempts"`
	ProcessedAt     time.Time        `json:"processed_at"`
}

// FinalStatusFor maps a verdict and duplicate flag to the final status
func FinalStatusFor(verdict Verdict, duplicate bool) FinalStatus {
	switch {
	case verdict.Status == StatusRejected:
		return FinalRejectedRule
	case duplicate:
		return FinalRejectedDuplicate
	case verdict.Status == StatusNeedsReview:
		return FinalFlaggedForReview
	default:
		return FinalStored
	}
}

// AsDuplicate returns a copy of the result re-labelled as a duplicate. Used
// when a concurrent run claimed the key first.
func (r ProcessingResult) AsDuplicate() ProcessingResult {
	r.IsDuplicate = true
	r.FinalStatus = FinalRejectedDuplicate
	return r
}

// Summary explains the final status in one line
func (r ProcessingResult) Summary() string {
	switch r.FinalStatus {
	case FinalStored:
		return "stored: all business rules passed"
	case FinalRejectedDuplicate:
		return fmt.Sprintf("rejected: duplicate of an accepted invoice (%s / %s / %s)", r.Key.Vendor, r.Key.Number, r.Key.Amount)
	case FinalExtractionFailed:
		return fmt.Sprintf("extraction failed after %d attempt(s): %s", r.Attempts, r.ExtractionError)
	}

	var msgs []string
	for _, v := range r.Verdict.Violations {
		msgs = append(msgs, fmt.Sprintf("[%s] %s", v.RuleID, v.Message))
	}
	if r.FinalStatus == FinalRejectedRule {
		return "rejected: " + strings.Join(msgs, "; ")
	}
	return "flagged for review: " + strings.Join(msgs, "; ")
}
