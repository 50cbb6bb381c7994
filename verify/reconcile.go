// Package verify reconciles caller-claimed agent details against what
// a scrape actually observed. Comparison is deliberately forgiving
// about presentation (case, honorifics, phone punctuation) and strict
// about substance.
package verify

import (
	"github.com/use-agent/agentroster/extract"
	"github.com/use-agent/agentroster/models"
)

// Observation is the scraped side of a verification: the fields the
// pipeline actually saw for one agent. Absent fields cannot confirm or
// deny anything and reconcile as NOT_FOUND.
type Observation struct {
	Name    *string
	Phone   *string
	Office  *string
	License *string
}

// FromProfile projects a scraped profile (or partial roster card) into
// an observation.
func FromProfile(p *models.AgentProfile) Observation {
	if p == nil {
		return Observation{}
	}
	return Observation{
		Name:    p.Name,
		Phone:   p.Phone,
		Office:  p.Office,
		License: p.License,
	}
}

// Reconcile compares each claimed field against the observation. Only
// claimed fields are checked; confidence is the matched share of
// checked fields, and a claim that checks nothing fails outright.
func Reconcile(input models.VerificationInput, obs Observation, identifier string) models.VerificationResult {
	type spec struct {
		field     string
		expected  *string
		observed  *string
		normalize func(string) string
	}
	specs := []spec{
		{"name", input.Name, obs.Name, extract.NormalizeName},
		{"phone", input.Phone, obs.Phone, extract.DigitsOnly},
		{"office", input.Office, obs.Office, extract.NormalizeKey},
		{"license", input.License, obs.License, extract.NormalizeKey},
	}

	res := models.VerificationResult{AgentIdentifierUsed: identifier}
	matched, checked := 0, 0

	for _, s := range specs {
		if s.expected == nil {
			continue
		}
		checked++
		fm := models.FieldMatch{
			Field:    s.field,
			Expected: *s.expected,
			Observed: s.observed,
		}
		switch {
		case s.observed == nil:
			fm.Status = models.StatusNotFound
		case s.normalize(*s.expected) == s.normalize(*s.observed):
			fm.Status = models.StatusMatch
			matched++
		default:
			fm.Status = models.StatusMismatch
		}
		res.Fields = append(res.Fields, fm)
	}

	if checked == 0 {
		res.OverallStatus = models.StatusFailed
		return res
	}
	res.Confidence = float64(matched) / float64(checked)
	switch {
	case matched == checked:
		res.OverallStatus = models.StatusVerified
	case matched > 0:
		res.OverallStatus = models.StatusPartial
	default:
		res.OverallStatus = models.StatusFailed
	}
	return res
}

// BestMatch reconciles the claim against every roster candidate and
// keeps the strongest result. Ties go to the earliest candidate, which
// follows roster order. No candidates at all reconciles against an
// empty observation, yielding NOT_FOUND on every checked field.
func BestMatch(input models.VerificationInput, candidates []models.AgentProfile) models.VerificationResult {
	if len(candidates) == 0 {
		return Reconcile(input, Observation{}, "")
	}

	var best models.VerificationResult
	for i := range candidates {
		c := &candidates[i]
		r := Reconcile(input, FromProfile(c), candidateIdentifier(c))
		if i == 0 || r.Confidence > best.Confidence {
			best = r
		}
	}
	return best
}

func candidateIdentifier(p *models.AgentProfile) string {
	if p.ID != "" {
		return p.ID
	}
	if p.Name != nil {
		return *p.Name
	}
	return ""
}
