// Package textnorm cleans OCR output before field parsing.
package textnorm

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// dropControls removes control characters other than line breaks and tabs
var dropControls = runes.Remove(runes.Predicate(func(r rune) bool {
	return unicode.IsControl(r) && r != '\n' && r != '\r' && r != '\t'
}))

// Normalize returns the matching form of text: Unicode-compatible, whitespace
// collapsed per line, lower-cased and with OCR digit confusions fixed inside
// numeric tokens. It is idempotent.
func Normalize(text string) string {
	return clean(text, true)
}

// Display is Normalize without lower-casing, the copy values are read from.
func Display(text string) string {
	return clean(text, false)
}

func clean(text string, lower bool) string {
	if text == "" {
		return ""
	}
	s, _, err := transform.String(transform.Chain(norm.NFKC, dropControls), text)
	if err != nil {
		s = norm.NFKC.String(text)
	}
	if lower {
		s = foldCase(s)
	}
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")

	lines := strings.Split(s, "\n")
	out := lines[:0]
	for _, line := range lines {
		tokens := strings.Fields(line)
		if len(tokens) == 0 {
			continue
		}
		for i, tok := range tokens {
			tokens[i] = fixDigits(tok)
		}
		out = append(out, strings.Join(tokens, " "))
	}
	return strings.Join(out, "\n")
}

// foldCase lower-cases before the digit pass: "İ" lowers to a plain "i",
// which must be seen as a confusable on the first pass. NFKC can bring back
// upper-case letters ("ℌ" is "H"), so repeat until stable.
func foldCase(s string) string {
	for i := 0; i < 3; i++ {
		next := norm.NFKC.String(strings.ToLower(s))
		if next == s {
			break
		}
		s = next
	}
	return s
}

// digit look-alikes OCR engines commonly produce
var confusions = map[rune]rune{
	'O': '0',
	'o': '0',
	'I': '1',
	'i': '1',
	'l': '1',
	'|': '1',
}

func isNumericPunct(r rune) bool {
	return strings.ContainsRune(".,-/:+%#$€£¥₹()", r)
}

// fixDigits rewrites confusable letters in a token that looks like a number:
// after leading punctuation the first character is a digit, and every
// character is a digit, a confusable letter or numeric punctuation.
func fixDigits(tok string) string {
	sawAlnum := false
	hasConfusion := false
	for _, r := range tok {
		_, confusable := confusions[r]
		switch {
		case unicode.IsDigit(r):
			sawAlnum = true
		case confusable:
			if !sawAlnum {
				return tok
			}
			hasConfusion = true
		case isNumericPunct(r):
		default:
			return tok
		}
	}
	if !sawAlnum || !hasConfusion {
		return tok
	}
	return strings.Map(func(r rune) rune {
		if d, ok := confusions[r]; ok {
			return d
		}
		return r
	}, tok)
}
