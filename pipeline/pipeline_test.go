package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/use-agent/agentroster/config"
	"github.com/use-agent/agentroster/driver"
	"github.com/use-agent/agentroster/models"
)

const (
	testBase    = "https://roster.test"
	testListing = testBase + "/search-agent"
)

// fakeDriver serves scripted HTML documents keyed by URL and answers
// extraction queries by parsing them, so the pipeline exercises the
// real extractors end to end.
type fakeDriver struct {
	pages   map[string]string
	current string
}

func (f *fakeDriver) Navigate(_ context.Context, url string, _ time.Duration) error {
	if _, ok := f.pages[url]; !ok {
		return models.NewCrawlError(models.StageNavigate, models.ErrCodeNavigation,
			"navigate "+url+": HTTP 404", false, nil)
	}
	f.current = url
	return nil
}

func (f *fakeDriver) WaitForSelector(context.Context, string, time.Duration) error { return nil }

func (f *fakeDriver) doc() (*goquery.Document, error) {
	return goquery.NewDocumentFromReader(strings.NewReader(f.pages[f.current]))
}

func (f *fakeDriver) ExtractText(_ context.Context, selector string) (*string, error) {
	doc, err := f.doc()
	if err != nil {
		return nil, err
	}
	s := doc.Find(selector)
	if s.Length() == 0 {
		return nil, nil
	}
	t := s.First().Text()
	return &t, nil
}

func (f *fakeDriver) ExtractAttribute(_ context.Context, selector, attr string) (*string, error) {
	doc, err := f.doc()
	if err != nil {
		return nil, err
	}
	s := doc.Find(selector)
	if s.Length() == 0 {
		return nil, nil
	}
	v, ok := s.First().Attr(attr)
	if !ok {
		return nil, nil
	}
	return &v, nil
}

func (f *fakeDriver) ExtractAll(_ context.Context, selector string) (driver.ElementSeq, error) {
	doc, err := f.doc()
	if err != nil {
		return nil, err
	}
	var frags []string
	doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
		if outer, err := goquery.OuterHtml(s); err == nil {
			frags = append(frags, outer)
		}
	})
	return func(yield func(driver.Element) bool) {
		for _, frag := range frags {
			el, err := driver.NewHTMLElement(frag)
			if err != nil {
				continue
			}
			if !yield(el) {
				return
			}
		}
	}, nil
}

func (f *fakeDriver) Click(context.Context, string, time.Duration) error { return nil }

func (f *fakeDriver) Close() error { return nil }

type fakeBackend struct {
	pages    map[string]string
	acquires int
	releases int
}

func (b *fakeBackend) Name() string { return driver.BackendRod }

func (b *fakeBackend) Acquire(context.Context) (driver.Driver, error) {
	b.acquires++
	return &fakeDriver{pages: b.pages}, nil
}

func (b *fakeBackend) Release(driver.Driver, bool) { b.releases++ }

func (b *fakeBackend) Stats() models.BackendStats { return models.BackendStats{Max: 5} }

func (b *fakeBackend) Close() {}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(discard{}, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

func testConfig() *config.Config {
	return &config.Config{
		Site: config.SiteConfig{
			BaseURL:            testBase,
			ListingURL:         testListing,
			ProfileURLTemplate: testBase + "/profile/%s",
			VerifyURL:          testListing,
		},
		Crawl: config.CrawlConfig{
			MaxPages:        5,
			StallPages:      2,
			AdvanceMode:     "url",
			PageURLTemplate: testListing + "?page=%d",
			NavTimeout:      time.Second,
			SelectorTimeout: time.Second,
		},
		Retry: config.RetryConfig{
			MaxAttempts: 2,
			BaseDelay:   time.Millisecond,
			MaxDelay:    2 * time.Millisecond,
		},
		Scrape: config.ScrapeConfig{
			ProfileConcurrency: 2,
			Preflight:          false,
			PreflightTimeout:   time.Second,
		},
	}
}

func sitePages() map[string]string {
	return map[string]string{
		testListing: `<html><body>
			<a href="/profile/a-1">
				<img alt="Jane Cooper"><span class="phone">(512) 555-0173</span>
				<span class="office">Office: Real Broker Austin</span>
			</a>
			<a href="/profile/a-2">
				<img alt="Robert Fox"><span class="office">Office: North Branch</span>
			</a>
		</body></html>`,
		testListing + "?page=2": `<html><body>
			<a href="/profile/a-2"><img alt="Robert Fox"></a>
			<a href="/profile/a-3"><img alt="Leslie Alexander"></a>
		</body></html>`,
		testListing + "?page=3": `<html><body><p>No more agents.</p></body></html>`,
		testBase + "/profile/a-1": `<html><body>
			<h1 class="agent-name">Jane Cooper</h1>
			<a href="tel:5125550173">call</a>
			<div class="office-name">Real Broker Austin</div>
			<span class="license">License #: TX-0651234</span>
			<div class="agent-bio"><p>Veteran agent serving Austin since 2009.</p></div>
			<img class="profile-photo" src="/img/a-1.jpg">
			<a href="mailto:jane@roster.test">email</a>
		</body></html>`,
		testBase + "/profile/a-2": `<html><body>
			<h1 class="agent-name">Robert Fox</h1>
			<span class="phone">Phone: 512-555-0199</span>
		</body></html>`,
	}
}

func newTestPipeline(t *testing.T) (*Pipeline, *fakeBackend) {
	t.Helper()
	b := &fakeBackend{pages: sitePages()}
	p, err := New(testConfig(), map[string]driver.Backend{driver.BackendRod: b}, nil, testLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p, b
}

func TestListAgentsDedupesAndTerminates(t *testing.T) {
	p, b := newTestPipeline(t)

	res, err := p.ListAgents(context.Background(), "")
	if err != nil {
		t.Fatalf("ListAgents: %v", err)
	}
	if res.Partial != nil {
		t.Fatalf("Partial = %v, want clean crawl", res.Partial)
	}
	want := []string{"a-1", "a-2", "a-3"}
	if len(res.Agents) != len(want) {
		t.Fatalf("got %d agents, want %d", len(res.Agents), len(want))
	}
	for i, w := range want {
		if res.Agents[i].ID != w {
			t.Errorf("agent[%d].ID = %q, want %q", i, res.Agents[i].ID, w)
		}
	}
	if name := res.Agents[0].Name; name == nil || *name != "Jane Cooper" {
		t.Errorf("agent[0].Name = %v", name)
	}
	if b.acquires != b.releases {
		t.Errorf("acquires = %d, releases = %d, must balance", b.acquires, b.releases)
	}
}

func TestFetchProfileExtractsFullRecord(t *testing.T) {
	p, _ := newTestPipeline(t)

	prof, err := p.FetchProfile(context.Background(), "a-1", "")
	if err != nil {
		t.Fatalf("FetchProfile: %v", err)
	}
	if prof.Name == nil || *prof.Name != "Jane Cooper" {
		t.Errorf("Name = %v", prof.Name)
	}
	if prof.Phone == nil || *prof.Phone != "5125550173" {
		t.Errorf("Phone = %v, want tel: link value", prof.Phone)
	}
	if prof.License == nil || *prof.License != "TX-0651234" {
		t.Errorf("License = %v", prof.License)
	}
	if prof.Bio == nil || !strings.Contains(*prof.Bio, "Veteran agent") {
		t.Errorf("Bio = %v", prof.Bio)
	}
	if prof.BioMarkdown == nil || !strings.Contains(*prof.BioMarkdown, "Veteran agent") {
		t.Errorf("BioMarkdown = %v", prof.BioMarkdown)
	}
	if prof.PhotoURL == nil || *prof.PhotoURL != testBase+"/img/a-1.jpg" {
		t.Errorf("PhotoURL = %v, want absolutized", prof.PhotoURL)
	}
	if len(prof.AdditionalContacts) != 1 || prof.AdditionalContacts[0].Type != "email" ||
		prof.AdditionalContacts[0].Value != "jane@roster.test" {
		t.Errorf("AdditionalContacts = %+v", prof.AdditionalContacts)
	}
}

func TestFetchProfileNotFound(t *testing.T) {
	p, _ := newTestPipeline(t)

	_, err := p.FetchProfile(context.Background(), "ghost", "")
	var ce *models.CrawlError
	if !errors.As(err, &ce) {
		t.Fatalf("want CrawlError, got %v", err)
	}
	if ce.Code != models.ErrCodeNavigation || ce.Retryable {
		t.Errorf("got %s retryable=%v, want non-retryable navigation failure", ce.Code, ce.Retryable)
	}
}

func TestFullScrapeCollectsFailuresWithoutFailing(t *testing.T) {
	p, _ := newTestPipeline(t)

	res, err := p.FullScrape(context.Background(), "")
	if err != nil {
		t.Fatalf("FullScrape: %v", err)
	}
	if len(res.Agents) != 2 {
		t.Fatalf("got %d profiles, want 2", len(res.Agents))
	}
	if res.Agents[0].ID != "a-1" || res.Agents[1].ID != "a-2" {
		t.Errorf("profiles out of listing order: %s, %s", res.Agents[0].ID, res.Agents[1].ID)
	}
	if len(res.FailedIDs) != 1 || res.FailedIDs[0] != "a-3" {
		t.Errorf("FailedIDs = %v, want [a-3]", res.FailedIDs)
	}
	// a-2's profile page has no office; the listing value must survive
	// the merge.
	if office := res.Agents[1].Office; office == nil || *office != "North Branch" {
		t.Errorf("merged Office = %v, want North Branch", office)
	}
}

func TestVerifyAgainstProfile(t *testing.T) {
	p, _ := newTestPipeline(t)
	name := "Mrs. JANE COOPER"
	phone := "(512) 555-0173"

	res, err := p.Verify(context.Background(), models.VerifyRequest{
		VerificationInput: models.VerificationInput{Name: &name, Phone: &phone},
		ProfileID:         "a-1",
	})
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if res.OverallStatus != models.StatusVerified {
		t.Errorf("OverallStatus = %s, want VERIFIED (fields: %+v)", res.OverallStatus, res.Fields)
	}
	if res.AgentIdentifierUsed != "a-1" {
		t.Errorf("AgentIdentifierUsed = %q", res.AgentIdentifierUsed)
	}
}

func TestVerifyUnloadableProfileFailsSoftly(t *testing.T) {
	p, _ := newTestPipeline(t)
	name := "Jane Cooper"

	res, err := p.Verify(context.Background(), models.VerifyRequest{
		VerificationInput: models.VerificationInput{Name: &name},
		ProfileID:         "ghost",
	})
	if err != nil {
		t.Fatalf("Verify must not error on unloadable profile, got %v", err)
	}
	if res.OverallStatus != models.StatusFailed {
		t.Errorf("OverallStatus = %s, want FAILED", res.OverallStatus)
	}
	if len(res.Fields) != 1 || res.Fields[0].Status != models.StatusNotFound {
		t.Errorf("Fields = %+v, want single NOT_FOUND", res.Fields)
	}
}

func TestVerifyAgainstRoster(t *testing.T) {
	p, _ := newTestPipeline(t)
	name := "Jane Cooper"
	phone := "512.555.0173"

	res, err := p.Verify(context.Background(), models.VerifyRequest{
		VerificationInput: models.VerificationInput{Name: &name, Phone: &phone},
	})
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if res.OverallStatus != models.StatusVerified {
		t.Errorf("OverallStatus = %s, want VERIFIED (fields: %+v)", res.OverallStatus, res.Fields)
	}
	if res.AgentIdentifierUsed != "a-1" {
		t.Errorf("AgentIdentifierUsed = %q, want a-1", res.AgentIdentifierUsed)
	}
}

func TestVerifyEmptyInputRejected(t *testing.T) {
	p, _ := newTestPipeline(t)

	_, err := p.Verify(context.Background(), models.VerifyRequest{})
	var ce *models.CrawlError
	if !errors.As(err, &ce) || ce.Code != models.ErrCodeInvalidInput {
		t.Errorf("want INVALID_INPUT, got %v", err)
	}
}

func TestUnknownBackendRejected(t *testing.T) {
	p, _ := newTestPipeline(t)

	_, err := p.ListAgents(context.Background(), "teleport")
	var ce *models.CrawlError
	if !errors.As(err, &ce) || ce.Code != models.ErrCodeInvalidInput {
		t.Errorf("want INVALID_INPUT, got %v", err)
	}
}

func TestParseRoster(t *testing.T) {
	p, _ := newTestPipeline(t)

	agents, err := p.ParseRoster(sitePages()[testListing])
	if err != nil {
		t.Fatalf("ParseRoster: %v", err)
	}
	if len(agents) != 2 || agents[0].ID != "a-1" || agents[1].ID != "a-2" {
		t.Errorf("agents = %+v", agents)
	}
}

func TestRetryPolicy(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
	log := testLogger()

	t.Run("retryable eventually succeeds", func(t *testing.T) {
		calls := 0
		err := policy.Do(context.Background(), log, func(context.Context) error {
			calls++
			if calls < 3 {
				return models.NewCrawlError(models.StageNavigate, models.ErrCodeNavigation, "flaky", true, nil)
			}
			return nil
		})
		if err != nil || calls != 3 {
			t.Errorf("err = %v, calls = %d", err, calls)
		}
	})

	t.Run("non-retryable returns immediately", func(t *testing.T) {
		calls := 0
		err := policy.Do(context.Background(), log, func(context.Context) error {
			calls++
			return models.NewCrawlError(models.StageExtract, models.ErrCodeExtraction, "broken markup", false, nil)
		})
		if err == nil || calls != 1 {
			t.Errorf("err = %v, calls = %d, want single attempt", err, calls)
		}
	})

	t.Run("attempts are bounded", func(t *testing.T) {
		calls := 0
		err := policy.Do(context.Background(), log, func(context.Context) error {
			calls++
			return models.NewCrawlError(models.StageNavigate, models.ErrCodeNavigation, "always down", true, nil)
		})
		if err == nil || calls != 3 {
			t.Errorf("err = %v, calls = %d, want 3", err, calls)
		}
	})
}
