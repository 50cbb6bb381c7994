package extract

import (
	"context"

	"github.com/use-agent/agentroster/driver"
	"github.com/use-agent/agentroster/models"
)

// RosterCardSelector matches one agent card on the verification roster
// page, which lays cards out as labeled blocks rather than profile
// links.
const RosterCardSelector = `.agent-card, div[class*="agent-card"], li[class*="agent"]`

// Roster extracts the observation cards the verification reconciler
// matches against. Sparse cards are fine: a card missing a field simply
// cannot confirm that field.
func Roster(ctx context.Context, d driver.Driver) ([]models.AgentProfile, error) {
	seq, err := d.ExtractAll(ctx, RosterCardSelector)
	if err != nil {
		return nil, err
	}

	var out []models.AgentProfile
	seq(func(el driver.Element) bool {
		out = append(out, RosterCard(el))
		return true
	})
	return out, nil
}

// RosterCard parses one verification card into a partial profile.
func RosterCard(el driver.Element) models.AgentProfile {
	var p models.AgentProfile

	if href := el.Attr(`a[href*="/profile/"]`, "href"); href != nil {
		p.ID = ProfileIDFromURL(*href)
	}

	p.Name = CleanPtr(el.Attr("img", "alt"))
	if p.Name == nil {
		p.Name = listingNameStrategy.TextIn(el)
	}

	p.Phone = phoneFromElement(el)

	if v := listingOfficeStrategy.TextIn(el); v != nil {
		p.Office = Clean(StripLabel(*v))
	}

	if v := profileLicenseStrategy.TextIn(el); v != nil {
		p.License = Clean(StripLabel(*v))
	} else if body := el.Text(""); body != nil {
		if m := licenseRe.FindStringSubmatch(*body); m != nil {
			p.License = Clean(m[1])
		}
	}
	return p
}

// ValidateStrategies compiles every selector the extractors use. Run
// once at startup so a bad selector is a boot failure, not a mid-crawl
// surprise.
func ValidateStrategies() error {
	return ValidateAll(
		listingNameStrategy,
		listingPhoneStrategy,
		listingOfficeStrategy,
		profileNameStrategy,
		profilePhoneStrategy,
		profileOfficeStrategy,
		profileLicenseStrategy,
		profileBioStrategy,
		profilePhotoStrategy,
		Strategy{Field: "listing-row", Selectors: []string{ListingRowSelector}},
		Strategy{Field: "roster-card", Selectors: []string{RosterCardSelector}},
	)
}
