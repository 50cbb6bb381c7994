// Package pipeline orchestrates the scrape-and-verify operations:
// backend selection, retries with backoff, the operation state machine,
// and the fan-out for full roster scrapes.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/use-agent/agentroster/config"
	"github.com/use-agent/agentroster/crawl"
	"github.com/use-agent/agentroster/drift"
	"github.com/use-agent/agentroster/driver"
	"github.com/use-agent/agentroster/extract"
	"github.com/use-agent/agentroster/models"
	"github.com/use-agent/agentroster/verify"
)

// Pipeline wires extractors, pagination, and verification over the
// configured automation backends.
type Pipeline struct {
	cfg         *config.Config
	log         *slog.Logger
	backends    map[string]driver.Backend
	listing     *extract.Listing
	profile     *extract.Profile
	paginator   *crawl.Paginator
	retry       RetryPolicy
	drift       *drift.Tracker
	probeClient *http.Client
}

// FullResult is a full scrape's outcome: enriched profiles in listing
// order, plus the IDs whose profile pages could not be scraped.
// Individual profile failures never fail the batch.
type FullResult struct {
	Agents    []models.AgentProfile
	FailedIDs []string
	Pages     int
	Reason    string
	Partial   *models.CrawlError
}

func New(cfg *config.Config, backends map[string]driver.Backend, tracker *drift.Tracker, log *slog.Logger) (*Pipeline, error) {
	if err := extract.ValidateStrategies(); err != nil {
		return nil, fmt.Errorf("selector strategies: %w", err)
	}
	listing, err := extract.NewListing(cfg.Site.BaseURL)
	if err != nil {
		return nil, err
	}
	profile, err := extract.NewProfile(cfg.Site.BaseURL)
	if err != nil {
		return nil, err
	}
	return &Pipeline{
		cfg:         cfg,
		log:         log,
		backends:    backends,
		listing:     listing,
		profile:     profile,
		paginator:   crawl.NewPaginator(cfg.Crawl, log),
		retry:       newRetryPolicy(cfg.Retry),
		drift:       tracker,
		probeClient: newProbeClient(cfg.Scrape.PreflightTimeout),
	}, nil
}

// backend resolves a caller-selected backend name, defaulting to the
// local browser. Selection is always explicit per operation; there is
// no fallback from one backend to another.
func (p *Pipeline) backend(name string) (driver.Backend, error) {
	if name == "" {
		name = driver.BackendRod
	}
	b, ok := p.backends[name]
	if !ok {
		return nil, models.NewCrawlError(models.StageBackend, models.ErrCodeInvalidInput,
			fmt.Sprintf("unknown backend %q", name), false, nil)
	}
	return b, nil
}

// BackendStats reports each backend's pool state for the health
// endpoint.
func (p *Pipeline) BackendStats() map[string]models.BackendStats {
	out := make(map[string]models.BackendStats, len(p.backends))
	for name, b := range p.backends {
		out[name] = b.Stats()
	}
	return out
}

// DriftStatus reports the last structure-drift observation per page
// kind.
func (p *Pipeline) DriftStatus() map[string]models.DriftStatus {
	return p.drift.Status()
}

// Close shuts every backend down.
func (p *Pipeline) Close() {
	for _, b := range p.backends {
		b.Close()
	}
}

// ListAgents crawls the roster listing page by page and returns the
// deduplicated agents. A mid-crawl failure yields the agents collected
// so far with the failure attached as Result.Partial.
func (p *Pipeline) ListAgents(ctx context.Context, backendName string) (*crawl.Result, error) {
	op := newOperation("list_agents", p.log)
	b, err := p.backend(backendName)
	if err != nil {
		op.finish(err)
		return nil, err
	}
	if err := p.preflight(ctx, p.cfg.Site.ListingURL); err != nil {
		op.finish(err)
		return nil, err
	}

	d, err := b.Acquire(ctx)
	if err != nil {
		op.finish(err)
		return nil, err
	}
	healthy := true
	defer func() { b.Release(d, healthy) }()

	op.transition(StateNavigating)
	res := p.paginator.Run(ctx, d, p.cfg.Site.ListingURL, p.fetchListing(op), p.retryFunc(op))
	if res.Partial != nil {
		healthy = handleStillUsable(res.Partial)
	}
	op.log.Info("listing crawl finished",
		"agents", len(res.Agents), "pages", res.Pages, "reason", res.Reason)
	op.finish(nil)
	return res, nil
}

// fetchListing extracts the rows of the current page and, once per
// crawl, feeds the document to the drift tracker.
func (p *Pipeline) fetchListing(op *operation) crawl.PageFunc {
	observed := false
	return func(ctx context.Context, d driver.Driver) ([]models.AgentSummary, error) {
		op.transition(StateExtracting)
		if !observed {
			observed = true
			p.observeDrift(ctx, d, "listing")
		}
		return p.listing.Rows(ctx, d)
	}
}

func (p *Pipeline) retryFunc(op *operation) crawl.RetryFunc {
	return func(ctx context.Context, f func(ctx context.Context) error) error {
		attempt := 0
		return p.retry.Do(ctx, op.log, func(ctx context.Context) error {
			attempt++
			if attempt > 1 {
				op.transition(StateRetrying)
			}
			return f(ctx)
		})
	}
}

// FetchProfile loads one agent's profile page and extracts the full
// record.
func (p *Pipeline) FetchProfile(ctx context.Context, id, backendName string) (*models.AgentProfile, error) {
	if id == "" {
		return nil, models.NewCrawlError(models.StageNavigate, models.ErrCodeInvalidInput,
			"empty agent id", false, nil)
	}
	op := newOperation("fetch_profile", p.log)
	prof, err := p.fetchProfileOp(ctx, op, id, backendName)
	op.finish(err)
	return prof, err
}

func (p *Pipeline) fetchProfileOp(ctx context.Context, op *operation, id, backendName string) (*models.AgentProfile, error) {
	b, err := p.backend(backendName)
	if err != nil {
		return nil, err
	}
	url := fmt.Sprintf(p.cfg.Site.ProfileURLTemplate, id)

	d, err := b.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	healthy := true
	defer func() { b.Release(d, healthy) }()

	err = p.retryFunc(op)(ctx, func(ctx context.Context) error {
		op.transition(StateNavigating)
		if err := d.Navigate(ctx, url, p.cfg.Crawl.NavTimeout); err != nil {
			return err
		}
		return d.WaitForSelector(ctx, extract.ProfileReadySelector, p.cfg.Crawl.SelectorTimeout)
	})
	if err != nil {
		healthy = handleStillUsable(models.AsCrawlError(err))
		return nil, err
	}

	op.transition(StateExtracting)
	p.observeDrift(ctx, d, "profile")
	prof, err := p.profile.Extract(ctx, d, id, url)
	if err != nil {
		return nil, err
	}
	return prof, nil
}

// FullScrape crawls the listing, then fans profile fetches out over a
// bounded worker group. Failed profiles are collected, not fatal: the
// batch succeeds with whatever it could get.
func (p *Pipeline) FullScrape(ctx context.Context, backendName string) (*FullResult, error) {
	listRes, err := p.ListAgents(ctx, backendName)
	if err != nil {
		return nil, err
	}

	results := make([]*models.AgentProfile, len(listRes.Agents))
	failed := make([]bool, len(listRes.Agents))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Scrape.ProfileConcurrency)
	for i, s := range listRes.Agents {
		g.Go(func() error {
			prof, err := p.FetchProfile(gctx, s.ID, backendName)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed[i] = true
				return nil
			}
			prof.Merge(s)
			results[i] = prof
			return nil
		})
	}
	// Workers never return errors, so Wait only reflects ctx cancellation.
	_ = g.Wait()

	full := &FullResult{
		Pages:   listRes.Pages,
		Reason:  listRes.Reason,
		Partial: listRes.Partial,
	}
	for i := range results {
		if failed[i] {
			full.FailedIDs = append(full.FailedIDs, listRes.Agents[i].ID)
			continue
		}
		if results[i] != nil {
			full.Agents = append(full.Agents, *results[i])
		}
	}
	return full, nil
}

// Verify scrapes fresh evidence and reconciles it against the claimed
// fields. With a profile ID the profile page is the source of truth; an
// unloadable profile is absent evidence (NOT_FOUND fields, FAILED
// result), not an operation error. Without an ID the verification
// roster page is scraped and the best-matching card used.
func (p *Pipeline) Verify(ctx context.Context, req models.VerifyRequest) (*models.VerificationResult, error) {
	if req.VerificationInput.Empty() {
		return nil, models.NewCrawlError(models.StageVerify, models.ErrCodeInvalidInput,
			"no fields to verify", false, nil)
	}

	if req.ProfileID != "" {
		prof, err := p.FetchProfile(ctx, req.ProfileID, req.Backend)
		if err != nil {
			p.log.Warn("verification profile unreachable, reconciling against nothing",
				"profile_id", req.ProfileID, "error", err)
			res := verify.Reconcile(req.VerificationInput, verify.Observation{}, req.ProfileID)
			return &res, nil
		}
		res := verify.Reconcile(req.VerificationInput, verify.FromProfile(prof), req.ProfileID)
		return &res, nil
	}

	op := newOperation("verify", p.log)
	cards, err := p.scrapeRoster(ctx, op, req.Backend)
	op.finish(err)
	if err != nil {
		return nil, err
	}
	res := verify.BestMatch(req.VerificationInput, cards)
	return &res, nil
}

func (p *Pipeline) scrapeRoster(ctx context.Context, op *operation, backendName string) ([]models.AgentProfile, error) {
	b, err := p.backend(backendName)
	if err != nil {
		return nil, err
	}
	d, err := b.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	healthy := true
	defer func() { b.Release(d, healthy) }()

	waitSel := extract.RosterCardSelector + ", " + extract.ListingRowSelector
	err = p.retryFunc(op)(ctx, func(ctx context.Context) error {
		op.transition(StateNavigating)
		if err := d.Navigate(ctx, p.cfg.Site.VerifyURL, p.cfg.Crawl.NavTimeout); err != nil {
			return err
		}
		return d.WaitForSelector(ctx, waitSel, p.cfg.Crawl.SelectorTimeout)
	})
	if err != nil {
		healthy = handleStillUsable(models.AsCrawlError(err))
		return nil, err
	}

	op.transition(StateExtracting)
	cards, err := extract.Roster(ctx, d)
	if err != nil {
		return nil, err
	}
	if len(cards) > 0 {
		return cards, nil
	}

	// No labeled cards; fall back to the listing-style rows.
	rows, err := p.listing.Rows(ctx, d)
	if err != nil {
		return nil, err
	}
	out := make([]models.AgentProfile, len(rows))
	for i, r := range rows {
		out[i] = models.AgentProfile{AgentSummary: r}
	}
	return out, nil
}

// ParseRoster is the static path: extract a roster from caller-supplied
// HTML with no browser involved.
func (p *Pipeline) ParseRoster(htmlStr string) ([]models.AgentSummary, error) {
	return extract.StaticRoster(htmlStr, p.cfg.Site.BaseURL)
}

func (p *Pipeline) observeDrift(ctx context.Context, d driver.Driver, kind string) {
	if p.drift == nil {
		return
	}
	seq, err := d.ExtractAll(ctx, "html")
	if err != nil {
		return
	}
	var pageHTML string
	seq(func(e driver.Element) bool {
		pageHTML = e.HTML()
		return false
	})
	p.drift.Observe(kind, pageHTML)
}

// handleStillUsable decides whether the driver handle survives the
// failure. Navigation and backend-level failures suggest a wedged page
// or dead session; extraction and selector timeouts do not.
func handleStillUsable(ce *models.CrawlError) bool {
	switch ce.Code {
	case models.ErrCodeNavigation, models.ErrCodeBackendUnavailable:
		return false
	}
	return true
}
