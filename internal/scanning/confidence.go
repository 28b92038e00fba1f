package scanning

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	reDate   = regexp.MustCompile(`\b\d{1,4}[-/.]\d{1,2}[-/.]\d{2,4}\b|\b(jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec)[a-z]*\.? \d{1,2}\b`)
	reCurr   = regexp.MustCompile(`\b(usd|eur|gbp|cad|aud|inr|jpy)\b|[$£€¥₹]`)
	reAmount = regexp.MustCompile(`\b\d{1,3}(,\d{3})*\.\d{2}\b|\b\d+\.\d{2}\b`)
	reLabel  = regexp.MustCompile(`\b(invoice|total|amount|tax|vat|bill)\b`)
)

// heuristicConfidence scores extracted text for engines that report no
// confidence of their own: a base score plus cues for dates, currency,
// amounts, invoice labels and a sane letter ratio.
func heuristicConfidence(txt string) float64 {
	if strings.TrimSpace(txt) == "" {
		return 0
	}
	txtL := strings.ToLower(txt)
	score := 0.2
	if reDate.MatchString(txtL) {
		score += 0.2
	}
	if reCurr.MatchString(txtL) {
		score += 0.15
	}
	if reAmount.MatchString(txtL) {
		score += 0.15
	}
	if reLabel.MatchString(txtL) {
		score += 0.1
	}
	if len(txt) > 120 {
		score += 0.1
	}

	var letters, total int
	for _, r := range txt {
		if unicode.IsSpace(r) {
			continue
		}
		total++
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			letters++
		}
	}
	if total > 0 {
		if ratio := float64(letters) / float64(total); ratio < 0.5 {
			score -= 0.2
		}
	}

	if score > 0.95 {
		score = 0.95
	}
	if score < 0 {
		score = 0
	}
	return score
}

// blendConfidence weights an engine's own score above the heuristic
func blendConfidence(engine, heuristic float64) float64 {
	return 0.7*engine + 0.3*heuristic
}
