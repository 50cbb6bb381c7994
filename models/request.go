package models

// VerifyRequest is the payload for POST /api/v1/verify.
//
// At least one of the VerificationInput fields must be present; the
// handler rejects an empty input with 400. ProfileID, when set, makes
// the profile page the observation source; otherwise the configured
// verification roster page is scraped and the best-matching agent used.
type VerifyRequest struct {
	VerificationInput

	// ProfileID optionally pins verification to one agent's profile page.
	ProfileID string `json:"profile_id,omitempty"`

	// Backend selects the automation backend: "rod" (local headless
	// browser, default) or "mcp" (remote automation agent).
	Backend string `json:"backend,omitempty" binding:"omitempty,oneof=rod mcp"`
}

// ParseRequest is the payload for POST /api/v1/agents/parse, the static
// convenience path: a raw HTML document, no live network, no browser.
type ParseRequest struct {
	HTML string `json:"html" binding:"required"`
}
