// Package crawl walks a paginated roster listing, accumulating agents
// across pages with stable identity semantics: each agent appears once,
// at the position of its first sighting.
package crawl

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/use-agent/agentroster/config"
	"github.com/use-agent/agentroster/driver"
	"github.com/use-agent/agentroster/extract"
	"github.com/use-agent/agentroster/models"
)

// Termination reasons, in the order they are checked.
const (
	ReasonExhausted = "exhausted" // advance found no further page
	ReasonPageCap   = "page_cap"  // safety cap reached
	ReasonStalled   = "stalled"   // consecutive pages yielded no new agents
	ReasonFailed    = "failed"    // a page failed after retries
)

// errExhausted signals that the advance mechanism ran out of pages.
// Not a CrawlError, so retry wrappers pass it straight through.
var errExhausted = errors.New("pagination exhausted")

// PageFunc extracts the agents visible on the current page.
type PageFunc func(ctx context.Context, d driver.Driver) ([]models.AgentSummary, error)

// RetryFunc runs one page load with the orchestrator's backoff policy.
type RetryFunc func(ctx context.Context, op func(ctx context.Context) error) error

// Result is a crawl's outcome. Partial is set when the crawl stopped on
// a failed page; the agents collected before the failure are still
// returned, labeled rather than dropped.
type Result struct {
	Agents  []models.AgentSummary
	Pages   int
	Reason  string
	Partial *models.CrawlError
}

// Paginator drives the page-by-page walk. Two advance modes: "url"
// builds each page's address from a template, "click" triggers a
// load-more control on a single growing page.
type Paginator struct {
	cfg config.CrawlConfig
	log *slog.Logger
}

func NewPaginator(cfg config.CrawlConfig, log *slog.Logger) *Paginator {
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 1
	}
	if cfg.StallPages <= 0 {
		cfg.StallPages = 2
	}
	return &Paginator{cfg: cfg, log: log}
}

// Run crawls from startURL until one of the termination conditions
// fires: the advance mechanism is exhausted, the page cap is reached,
// or cfg.StallPages consecutive pages add no new agents.
func (p *Paginator) Run(ctx context.Context, d driver.Driver, startURL string, fetch PageFunc, retry RetryFunc) *Result {
	res := &Result{}
	acc := newAccumulator()
	stalls := 0

	for page := 1; ; page++ {
		if page > p.cfg.MaxPages {
			res.Reason = ReasonPageCap
			break
		}

		var rows []models.AgentSummary
		err := retry(ctx, func(ctx context.Context) error {
			if err := p.advance(ctx, d, startURL, page); err != nil {
				return err
			}
			if err := d.WaitForSelector(ctx, extract.ListingRowSelector, p.cfg.SelectorTimeout); err != nil {
				return err
			}
			var ferr error
			rows, ferr = fetch(ctx, d)
			return ferr
		})
		if errors.Is(err, errExhausted) {
			res.Reason = ReasonExhausted
			break
		}
		if err != nil {
			res.Reason = ReasonFailed
			res.Partial = models.AsCrawlError(err)
			p.log.Warn("crawl stopped on failed page",
				"page", page, "collected", acc.len(), "error", err)
			break
		}
		res.Pages++

		if len(rows) == 0 {
			res.Reason = ReasonExhausted
			break
		}

		added := acc.merge(rows)
		p.log.Debug("crawled page", "page", page, "rows", len(rows), "new", added)
		if added == 0 {
			stalls++
			if stalls >= p.cfg.StallPages {
				res.Reason = ReasonStalled
				break
			}
		} else {
			stalls = 0
		}
	}

	res.Agents = acc.ordered
	return res
}

// advance positions the page for iteration n. Page 1 is always a
// navigation to the start URL; later pages depend on the mode.
func (p *Paginator) advance(ctx context.Context, d driver.Driver, startURL string, page int) error {
	if page == 1 {
		return d.Navigate(ctx, startURL, p.cfg.NavTimeout)
	}
	if p.cfg.AdvanceMode == "click" {
		// A vanished load-more control is the normal end of the roster.
		present, err := d.ExtractText(ctx, p.cfg.LoadMoreSelector)
		if err != nil {
			return err
		}
		if present == nil {
			return errExhausted
		}
		return d.Click(ctx, p.cfg.LoadMoreSelector, p.cfg.SelectorTimeout)
	}
	return d.Navigate(ctx, fmt.Sprintf(p.cfg.PageURLTemplate, page), p.cfg.NavTimeout)
}

// accumulator dedupes by agent ID. The first sighting fixes an agent's
// position and identity; for everything else the last sighting wins,
// so a later page re-rendering an agent with corrected details
// supersedes the earlier row. Fields the later row lacks keep their
// earlier value.
type accumulator struct {
	index   map[string]int
	ordered []models.AgentSummary
}

func newAccumulator() *accumulator {
	return &accumulator{index: make(map[string]int)}
}

func (a *accumulator) len() int { return len(a.ordered) }

func (a *accumulator) merge(rows []models.AgentSummary) int {
	added := 0
	for _, row := range rows {
		i, ok := a.index[row.ID]
		if !ok {
			a.index[row.ID] = len(a.ordered)
			a.ordered = append(a.ordered, row)
			added++
			continue
		}
		existing := &a.ordered[i]
		if row.Name != nil {
			existing.Name = row.Name
		}
		if row.Phone != nil {
			existing.Phone = row.Phone
		}
		if row.Office != nil {
			existing.Office = row.Office
		}
		if row.ProfileURL != nil {
			existing.ProfileURL = row.ProfileURL
		}
	}
	return added
}
