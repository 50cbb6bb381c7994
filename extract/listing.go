package extract

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/use-agent/agentroster/driver"
	"github.com/use-agent/agentroster/models"
)

// ListingRowSelector anchors the roster crawl: every agent card on the
// listing page is a link to that agent's profile.
const ListingRowSelector = `a[href*="/profile/"]`

var (
	listingNameStrategy   = Strategy{Field: "name", Selectors: []string{".agent-name", "h2", "h3", "h4"}}
	listingPhoneStrategy  = Strategy{Field: "phone", Selectors: []string{".phone", `[class*="phone"]`}}
	listingOfficeStrategy = Strategy{Field: "office", Selectors: []string{".office", ".brokerage", `[class*="office"]`}}
)

// Listing extracts roster summaries from a live listing page.
type Listing struct {
	base *url.URL
}

func NewListing(baseURL string) (*Listing, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url %q: %w", baseURL, err)
	}
	return &Listing{base: base}, nil
}

// Rows extracts every roster card on the current page, in DOM order.
// A card whose profile link carries no agent ID fails the whole
// extraction: identity is what pagination dedupes on, so a row missing
// one means the markup no longer matches our read of it.
func (x *Listing) Rows(ctx context.Context, d driver.Driver) ([]models.AgentSummary, error) {
	seq, err := d.ExtractAll(ctx, ListingRowSelector)
	if err != nil {
		return nil, err
	}

	var (
		out    []models.AgentSummary
		rowErr error
	)
	seq(func(el driver.Element) bool {
		s, err := x.Row(el)
		if err != nil {
			rowErr = err
			return false
		}
		out = append(out, s)
		return true
	})
	if rowErr != nil {
		return nil, rowErr
	}
	return out, nil
}

// Row parses one captured roster card.
func (x *Listing) Row(el driver.Element) (models.AgentSummary, error) {
	href := el.Attr("", "href")
	if href == nil {
		return models.AgentSummary{}, models.NewCrawlError(models.StageExtract, models.ErrCodeExtraction,
			"roster card has no profile link", false, nil)
	}
	id := ProfileIDFromURL(*href)
	if id == "" {
		return models.AgentSummary{}, models.NewCrawlError(models.StageExtract, models.ErrCodeExtraction,
			fmt.Sprintf("roster card link %q carries no agent id", *href), false, nil)
	}

	// The photo's alt text is the most stable name source on the card;
	// headings shift with the grid layout.
	name := CleanPtr(el.Attr("img", "alt"))
	if name == nil {
		name = listingNameStrategy.TextIn(el)
	}

	phone := phoneFromElement(el)

	var office *string
	if v := listingOfficeStrategy.TextIn(el); v != nil {
		office = Clean(StripLabel(*v))
	}

	return models.AgentSummary{
		ID:         id,
		Name:       name,
		Phone:      phone,
		Office:     office,
		ProfileURL: x.Absolutize(*href),
	}, nil
}

// phoneFromElement prefers a tel: link over visible text, which often
// carries a "Phone:" caption.
func phoneFromElement(el driver.Element) *string {
	if tel := el.Attr(`a[href^="tel:"]`, "href"); tel != nil {
		if v := Clean(strings.TrimPrefix(*tel, "tel:")); v != nil {
			return v
		}
	}
	if v := listingPhoneStrategy.TextIn(el); v != nil {
		return Clean(StripLabel(*v))
	}
	return nil
}

// ProfileIDFromURL pulls the agent ID out of a profile link: the path
// segment after "/profile/", query and fragment dropped.
func ProfileIDFromURL(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return ""
	}
	_, rest, ok := strings.Cut(u.Path, "/profile/")
	if !ok {
		return ""
	}
	rest = strings.Trim(rest, "/")
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		rest = rest[:i]
	}
	return rest
}

// Absolutize resolves a card's href against the site origin. Returns
// nil for unparseable links.
func (x *Listing) Absolutize(href string) *string {
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return nil
	}
	abs := x.base.ResolveReference(ref)
	abs.Fragment = ""
	s := abs.String()
	return &s
}
