// Package extract turns raw page structure into roster records. Each
// extractor pairs a primary selector with ordered fallbacks so a minor
// markup change degrades to the next strategy instead of failing the
// crawl.
package extract

import (
	"regexp"
	"strings"
)

var (
	wsRe       = regexp.MustCompile(`\s+`)
	nonDigitRe = regexp.MustCompile(`\D`)
)

var honorifics = map[string]bool{
	"mr":   true,
	"mrs":  true,
	"ms":   true,
	"miss": true,
	"dr":   true,
	"prof": true,
}

// Clean collapses runs of whitespace and trims. An empty result becomes
// nil so absent fields stay absent instead of blank.
func Clean(s string) *string {
	s = strings.TrimSpace(wsRe.ReplaceAllString(s, " "))
	if s == "" {
		return nil
	}
	return &s
}

// CleanPtr is Clean lifted over the nilable results extractors produce.
func CleanPtr(p *string) *string {
	if p == nil {
		return nil
	}
	return Clean(*p)
}

// DigitsOnly strips everything but digits, the canonical form for
// phone comparison: "(512) 555-0173" and "512.555.0173" collapse to
// the same key.
func DigitsOnly(s string) string {
	return nonDigitRe.ReplaceAllString(s, "")
}

// StripHonorific drops a leading courtesy title ("Mr.", "Dr") from a
// name, if present.
func StripHonorific(name string) string {
	trimmed := strings.TrimSpace(name)
	first, rest, ok := strings.Cut(trimmed, " ")
	if !ok {
		return trimmed
	}
	if honorifics[strings.ToLower(strings.TrimSuffix(first, "."))] {
		return strings.TrimSpace(rest)
	}
	return trimmed
}

// NormalizeName produces the comparison key for agent names:
// honorific-stripped, case-folded, single-spaced.
func NormalizeName(s string) string {
	return strings.ToLower(strings.TrimSpace(wsRe.ReplaceAllString(StripHonorific(s), " ")))
}

// NormalizeKey is the comparison key for office names and license
// numbers: case-folded and whitespace-collapsed, nothing else.
func NormalizeKey(s string) string {
	return strings.ToLower(strings.TrimSpace(wsRe.ReplaceAllString(s, " ")))
}

// StripLabel removes a leading "Label:" prefix like "License #:" or
// "Phone:" from a field value scraped together with its caption.
func StripLabel(s string) string {
	if _, v, ok := strings.Cut(s, ":"); ok {
		return strings.TrimSpace(v)
	}
	return strings.TrimSpace(s)
}
