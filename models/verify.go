package models

// VerificationInput carries the caller-supplied facts to check against a
// freshly scraped page. Any subset may be present; absent (nil) fields
// are not checked.
type VerificationInput struct {
	Name    *string `json:"name"`
	Phone   *string `json:"phone"`
	Office  *string `json:"office"`
	License *string `json:"license"`
}

// Empty reports whether no field was supplied at all.
func (v VerificationInput) Empty() bool {
	return v.Name == nil && v.Phone == nil && v.Office == nil && v.License == nil
}

// MatchStatus is the per-field outcome of a verification comparison.
type MatchStatus string

const (
	// StatusMatch means the observed value agrees with the expected one
	// under the field's comparison rule.
	StatusMatch MatchStatus = "MATCH"

	// StatusMismatch means a value was observed but disagrees.
	StatusMismatch MatchStatus = "MISMATCH"

	// StatusNotFound means no value could be extracted for the field.
	// It counts as a non-match but is distinct from MISMATCH.
	StatusNotFound MatchStatus = "NOT_FOUND"
)

// FieldMatch is the comparison outcome for a single checked field.
// Observed is nil when extraction found nothing for the field.
type FieldMatch struct {
	Field    string      `json:"field"`
	Expected string      `json:"expected"`
	Observed *string     `json:"observed"`
	Status   MatchStatus `json:"status"`
}

// OverallStatus summarises a whole verification.
type OverallStatus string

const (
	StatusVerified OverallStatus = "VERIFIED"
	StatusPartial  OverallStatus = "PARTIAL"
	StatusFailed   OverallStatus = "FAILED"
)

// VerificationResult is the outcome of the verify operation.
//
// Confidence is matched/checked in [0,1]; it is 0 when no fields were
// checked, and that case is always FAILED (no evidence either way).
type VerificationResult struct {
	AgentIdentifierUsed string        `json:"agent_identifier_used"`
	Fields              []FieldMatch  `json:"fields"`
	Confidence          float64       `json:"confidence"`
	OverallStatus       OverallStatus `json:"overall_status"`
}
