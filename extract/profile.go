package extract

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	readability "github.com/go-shiori/go-readability"

	"github.com/use-agent/agentroster/driver"
	"github.com/use-agent/agentroster/models"
)

// ProfileReadySelector gates profile extraction until the page header
// has rendered.
const ProfileReadySelector = `h1, .profile-name`

var (
	profileNameStrategy    = Strategy{Field: "name", Selectors: []string{"h1.agent-name", ".profile-name", "h1"}}
	profilePhoneStrategy   = Strategy{Field: "phone", Selectors: []string{".phone", `[class*="phone"]`}}
	profileOfficeStrategy  = Strategy{Field: "office", Selectors: []string{".office-name", ".brokerage", `[class*="office"]`}}
	profileLicenseStrategy = Strategy{Field: "license", Selectors: []string{".license", `[class*="license"]`}}
	profileBioStrategy     = Strategy{Field: "bio", Selectors: []string{".agent-bio", ".about-me", `[class*="bio"]`}}
	profilePhotoStrategy   = Strategy{Field: "photo", Selectors: []string{".agent-photo img", "img.profile-photo", ".profile img"}}
)

// licenseRe recovers a license number from running text when no
// dedicated element exists, e.g. "License #: TX-0651234".
var licenseRe = regexp.MustCompile(`(?i)license\s*#?\s*:?\s*([A-Za-z0-9][A-Za-z0-9.-]*)`)

// Profile extracts one agent's detail page.
type Profile struct {
	base *url.URL
}

func NewProfile(baseURL string) (*Profile, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url %q: %w", baseURL, err)
	}
	return &Profile{base: base}, nil
}

// Extract reads every profile field from the current page. Missing
// fields stay nil; only a transport-level failure errors out.
func (x *Profile) Extract(ctx context.Context, d driver.Driver, id, pageURL string) (*models.AgentProfile, error) {
	p := &models.AgentProfile{}
	p.ID = id
	u := pageURL
	p.ProfileURL = &u

	var err error
	if p.Name, err = profileNameStrategy.Text(ctx, d); err != nil {
		return nil, err
	}

	if p.Phone, err = x.phone(ctx, d); err != nil {
		return nil, err
	}
	if p.Office, err = x.labeled(ctx, d, profileOfficeStrategy); err != nil {
		return nil, err
	}
	if p.License, err = x.license(ctx, d); err != nil {
		return nil, err
	}
	if p.PhotoURL, err = x.photo(ctx, d); err != nil {
		return nil, err
	}
	if p.Bio, p.BioMarkdown, err = x.bio(ctx, d, pageURL); err != nil {
		return nil, err
	}
	if p.AdditionalContacts, err = x.contacts(ctx, d); err != nil {
		return nil, err
	}
	return p, nil
}

func (x *Profile) phone(ctx context.Context, d driver.Driver) (*string, error) {
	tel, err := d.ExtractAttribute(ctx, `a[href^="tel:"]`, "href")
	if err != nil {
		return nil, err
	}
	if tel != nil {
		if v := Clean(strings.TrimPrefix(*tel, "tel:")); v != nil {
			return v, nil
		}
	}
	return x.labeled(ctx, d, profilePhoneStrategy)
}

func (x *Profile) labeled(ctx context.Context, d driver.Driver, s Strategy) (*string, error) {
	v, err := s.Text(ctx, d)
	if err != nil || v == nil {
		return nil, err
	}
	return Clean(StripLabel(*v)), nil
}

func (x *Profile) license(ctx context.Context, d driver.Driver) (*string, error) {
	if v, err := x.labeled(ctx, d, profileLicenseStrategy); err != nil || v != nil {
		return v, err
	}
	// No dedicated element; scan the page text.
	body, err := d.ExtractText(ctx, "body")
	if err != nil {
		return nil, err
	}
	if body == nil {
		return nil, nil
	}
	if m := licenseRe.FindStringSubmatch(*body); m != nil {
		return Clean(m[1]), nil
	}
	return nil, nil
}

func (x *Profile) photo(ctx context.Context, d driver.Driver) (*string, error) {
	src, err := profilePhotoStrategy.Attr(ctx, d, "src")
	if err != nil {
		return nil, err
	}
	if src == nil {
		// Lazy-loaded images park the real URL in data-src.
		if src, err = profilePhotoStrategy.Attr(ctx, d, "data-src"); err != nil {
			return nil, err
		}
	}
	if src == nil {
		return nil, nil
	}
	ref, err := url.Parse(*src)
	if err != nil {
		return src, nil
	}
	abs := x.base.ResolveReference(ref).String()
	return &abs, nil
}

// bio tries the dedicated bio elements first; when the markup offers
// none, falls back to readability's main-content extraction over the
// whole document. The markdown rendition is converted from the same
// HTML the text came from.
func (x *Profile) bio(ctx context.Context, d driver.Driver, pageURL string) (*string, *string, error) {
	for _, sel := range profileBioStrategy.Selectors {
		seq, err := d.ExtractAll(ctx, sel)
		if err != nil {
			return nil, nil, err
		}
		var el driver.Element
		seq(func(e driver.Element) bool {
			el = e
			return false
		})
		if el == nil {
			continue
		}
		text := CleanPtr(el.Text(""))
		if text == nil {
			continue
		}
		return text, toMarkdown(el.HTML()), nil
	}

	seq, err := d.ExtractAll(ctx, "html")
	if err != nil {
		return nil, nil, err
	}
	var pageHTML string
	seq(func(e driver.Element) bool {
		pageHTML = e.HTML()
		return false
	})
	if pageHTML == "" {
		return nil, nil, nil
	}

	u, _ := url.Parse(pageURL)
	article, err := readability.FromReader(strings.NewReader(pageHTML), u)
	if err != nil {
		// Unreadable layout is an absent bio, not a failed profile.
		return nil, nil, nil
	}
	return Clean(article.TextContent), toMarkdown(article.Content), nil
}

func toMarkdown(html string) *string {
	if html == "" {
		return nil
	}
	md, err := htmltomarkdown.ConvertString(html)
	if err != nil {
		return nil
	}
	return Clean(md)
}

// contacts gathers the secondary contact links in a stable order.
func (x *Profile) contacts(ctx context.Context, d driver.Driver) ([]models.Contact, error) {
	specs := []struct {
		typ      string
		selector string
		strip    string
	}{
		{"email", `a[href^="mailto:"]`, "mailto:"},
		{"website", `a.website, a[class*="website"]`, ""},
		{"facebook", `a[href*="facebook.com"]`, ""},
		{"instagram", `a[href*="instagram.com"]`, ""},
	}

	var out []models.Contact
	for _, spec := range specs {
		v, err := d.ExtractAttribute(ctx, spec.selector, "href")
		if err != nil {
			return nil, err
		}
		cleaned := CleanPtr(v)
		if cleaned == nil {
			continue
		}
		value := *cleaned
		if spec.strip != "" {
			value = strings.TrimPrefix(value, spec.strip)
		}
		out = append(out, models.Contact{Type: spec.typ, Value: value})
	}
	return out, nil
}
