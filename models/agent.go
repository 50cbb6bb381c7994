package models

// AgentSummary is one roster entry produced by a listing crawl.
//
// ID is the site-assigned profile slug (the last path segment of the
// profile URL) and is guaranteed non-empty; the pipeline fails the whole
// listing operation rather than emit a row without one. All other fields
// are pointers so callers can distinguish "absent on the page" (nil) from
// a present value. A present value is always normalized and non-empty.
type AgentSummary struct {
	ID         string  `json:"id"`
	Name       *string `json:"name"`
	Office     *string `json:"office"`
	Phone      *string `json:"phone"`
	ProfileURL *string `json:"profile_url"`
}

// Contact is one additional contact channel found on a profile page
// (email, website, social link). Order follows page order.
type Contact struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// AgentProfile is the enriched record produced by a profile scrape.
// It is a superset of AgentSummary keyed by the same ID, and is only
// ever constructed from a successfully loaded profile page.
type AgentProfile struct {
	AgentSummary

	License     *string `json:"license"`
	Bio         *string `json:"bio"`
	BioMarkdown *string `json:"bio_markdown,omitempty"`
	PhotoURL    *string `json:"photo_url"`

	AdditionalContacts []Contact `json:"additional_contacts"`
}

// Merge overlays profile-page fields onto listing-page fields.
// Profile values win where present; listing values fill the gaps.
// The ID is never overwritten.
func (p *AgentProfile) Merge(s AgentSummary) {
	if p.Name == nil {
		p.Name = s.Name
	}
	if p.Office == nil {
		p.Office = s.Office
	}
	if p.Phone == nil {
		p.Phone = s.Phone
	}
	if p.ProfileURL == nil {
		p.ProfileURL = s.ProfileURL
	}
}
