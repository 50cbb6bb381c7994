package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/use-agent/agentroster/driver"
	"github.com/use-agent/agentroster/models"
)

// StaticRoster parses a saved roster document without a browser, the
// convenience path for callers that already hold the HTML. Duplicate
// profile IDs keep their first appearance, same as the live crawl.
func StaticRoster(htmlStr, baseURL string) ([]models.AgentSummary, error) {
	listing, err := NewListing(baseURL)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlStr))
	if err != nil {
		return nil, models.NewCrawlError(models.StageExtract, models.ErrCodeExtraction,
			"parse roster document", false, err)
	}

	var (
		out    []models.AgentSummary
		rowErr error
	)
	seen := make(map[string]bool)

	doc.Find(ListingRowSelector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		outer, err := goquery.OuterHtml(s)
		if err != nil {
			return true
		}
		el, err := driver.NewHTMLElement(outer)
		if err != nil {
			return true
		}
		sum, err := listing.Row(el)
		if err != nil {
			rowErr = err
			return false
		}
		if seen[sum.ID] {
			return true
		}
		seen[sum.ID] = true
		out = append(out, sum)
		return true
	})
	if rowErr != nil {
		return nil, rowErr
	}
	return out, nil
}
