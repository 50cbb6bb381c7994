package driver

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/ysmood/gson"

	"github.com/use-agent/agentroster/config"
	"github.com/use-agent/agentroster/models"
)

// Page handles are retired once they accumulate too many failures, too
// much use, or too much age. Long-lived tabs leak memory and collect
// service-worker state that skews extraction.
const (
	handleMaxErrScore = 3.0
	handleMaxUses     = 50
	handleMaxAge      = 45 * time.Minute
)

// pageHandle wraps one browser tab with a health score. Failures add a
// full point, successes claw back half a point, so a tab that mostly
// works survives the occasional timeout.
type pageHandle struct {
	page      *rod.Page
	createdAt time.Time
	useCount  int
	errScore  float64
}

func (h *pageHandle) record(healthy bool) {
	h.useCount++
	if healthy {
		h.errScore -= 0.5
		if h.errScore < 0 {
			h.errScore = 0
		}
		return
	}
	h.errScore += 1.0
}

func (h *pageHandle) shouldRetire() bool {
	return h.errScore >= handleMaxErrScore ||
		h.useCount >= handleMaxUses ||
		time.Since(h.createdAt) >= handleMaxAge
}

// RodBackend drives a locally launched headless Chromium through a
// bounded pool of health-scored tabs. The browser process is not
// started until the first Acquire, and is relaunched transparently if
// a health check finds it dead.
type RodBackend struct {
	cfg config.BrowserConfig
	log *slog.Logger

	slots chan struct{} // capacity semaphore, cap = cfg.MaxPages

	mu      sync.Mutex
	browser *rod.Browser
	idle    []*pageHandle
	live    int
	inUse   int
	closed  bool
}

// NewRodBackend builds the backend without launching anything.
func NewRodBackend(cfg config.BrowserConfig, log *slog.Logger) *RodBackend {
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 1
	}
	return &RodBackend{
		cfg:   cfg,
		log:   log.With("backend", BackendRod),
		slots: make(chan struct{}, cfg.MaxPages),
	}
}

func (b *RodBackend) Name() string { return BackendRod }

func (b *RodBackend) Acquire(ctx context.Context) (Driver, error) {
	select {
	case b.slots <- struct{}{}:
	case <-ctx.Done():
		return nil, models.NewCrawlError(models.StageBackend, models.ErrCodeBackendUnavailable,
			"timed out waiting for a free browser page", false, ctx.Err())
	}

	h, err := b.checkout()
	if err != nil {
		<-b.slots
		return nil, err
	}
	return &rodDriver{page: h.page, handle: h}, nil
}

func (b *RodBackend) checkout() (*pageHandle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, models.NewCrawlError(models.StageBackend, models.ErrCodeBackendUnavailable,
			"browser backend is closed", false, nil)
	}
	if err := b.ensureBrowserLocked(); err != nil {
		return nil, err
	}

	for len(b.idle) > 0 {
		h := b.idle[len(b.idle)-1]
		b.idle = b.idle[:len(b.idle)-1]
		if h.shouldRetire() {
			_ = h.page.Close()
			b.live--
			continue
		}
		b.inUse++
		return h, nil
	}

	h, err := b.newHandleLocked()
	if err != nil {
		return nil, err
	}
	b.live++
	b.inUse++
	return h, nil
}

// ensureBrowserLocked launches the browser on first use and verifies a
// previously launched one still answers CDP. A dead browser takes its
// idle tabs with it.
func (b *RodBackend) ensureBrowserLocked() error {
	if b.browser != nil {
		_, err := proto.BrowserGetVersion{}.Call(b.browser)
		if err == nil {
			return nil
		}
		b.log.Warn("browser health check failed, relaunching", "error", err)
		b.live -= len(b.idle)
		b.idle = nil
		_ = b.browser.Close()
		b.browser = nil
	}

	browser, err := b.launch()
	if err != nil {
		return models.NewCrawlError(models.StageBackend, models.ErrCodeBackendUnavailable,
			"launch browser", false, err)
	}
	b.browser = browser
	b.log.Info("browser launched",
		"headless", b.cfg.Headless,
		"max_pages", b.cfg.MaxPages,
		"stealth", b.cfg.Stealth)
	return nil
}

func (b *RodBackend) launch() (*rod.Browser, error) {
	l := launcher.New().
		Headless(b.cfg.Headless).
		Set("disable-blink-features", "AutomationControlled").
		Set("disable-dev-shm-usage").
		Set("disable-background-networking").
		Set("no-first-run")
	if b.cfg.NoSandbox {
		l = l.NoSandbox(true)
	}
	if b.cfg.BrowserBin != "" {
		l = l.Bin(b.cfg.BrowserBin)
	}
	if b.cfg.DefaultProxy != "" {
		l = l.Proxy(b.cfg.DefaultProxy)
	}

	u, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch chromium: %w", err)
	}
	browser := rod.New().ControlURL(u)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("connect to browser: %w", err)
	}
	return browser, nil
}

func (b *RodBackend) newHandleLocked() (*pageHandle, error) {
	var (
		page *rod.Page
		err  error
	)
	if b.cfg.Stealth {
		page, err = stealth.Page(b.browser)
	} else {
		page, err = b.browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	}
	if err != nil {
		return nil, models.NewCrawlError(models.StageBackend, models.ErrCodeBackendUnavailable,
			"open browser page", false, err)
	}
	_ = proto.NetworkSetExtraHTTPHeaders{Headers: proto.NetworkHeaders{
		"Accept-Language": gson.New("en-US,en;q=0.9"),
	}}.Call(page)
	return &pageHandle{page: page, createdAt: time.Now()}, nil
}

func (b *RodBackend) Release(d Driver, healthy bool) {
	rd, ok := d.(*rodDriver)
	if !ok {
		return
	}
	_ = rd.Close()

	b.mu.Lock()
	b.inUse--
	h := rd.handle
	h.record(healthy)
	if b.closed || h.shouldRetire() {
		_ = h.page.Close()
		b.live--
	} else {
		b.idle = append(b.idle, h)
	}
	b.mu.Unlock()

	<-b.slots
}

func (b *RodBackend) Stats() models.BackendStats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return models.BackendStats{
		Live:   b.live,
		InUse:  b.inUse,
		Max:    b.cfg.MaxPages,
		Opened: b.browser != nil,
	}
}

func (b *RodBackend) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, h := range b.idle {
		_ = h.page.Close()
		b.live--
	}
	b.idle = nil
	if b.browser != nil {
		_ = b.browser.Close()
		b.browser = nil
	}
}

// rodDriver adapts one pooled tab to the Driver interface.
type rodDriver struct {
	page      *rod.Page
	handle    *pageHandle
	closeOnce sync.Once
}

func (d *rodDriver) Navigate(ctx context.Context, url string, timeout time.Duration) error {
	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	p := d.page.Context(tctx)

	if err := p.Navigate(url); err != nil {
		return models.NewCrawlError(models.StageNavigate, models.ErrCodeNavigation,
			fmt.Sprintf("navigate %s", url), true, err)
	}
	if err := p.WaitDOMStable(300*time.Millisecond, 0.1); err != nil {
		if tctx.Err() != nil {
			return models.NewCrawlError(models.StageNavigate, models.ErrCodeNavigation,
				fmt.Sprintf("navigate %s: page did not settle", url), true, err)
		}
		// Non-deadline settle failures are cosmetic; the DOM is usable.
	}

	if res, err := p.Eval(jsHTTPStatus); err == nil {
		if code := res.Value.Int(); code >= 400 {
			return models.NewCrawlError(models.StageNavigate, models.ErrCodeNavigation,
				fmt.Sprintf("navigate %s: HTTP %d", url, code), false, nil)
		}
	}
	return nil
}

func (d *rodDriver) WaitForSelector(ctx context.Context, selector string, timeout time.Duration) error {
	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := d.page.Context(tctx).WaitElementsMoreThan(selector, 0); err != nil {
		return models.NewCrawlError(models.StageWaitSelector, models.ErrCodeSelectorTimeout,
			fmt.Sprintf("selector %q did not appear within %s", selector, timeout), true, err)
	}
	return nil
}

func (d *rodDriver) ExtractText(ctx context.Context, selector string) (*string, error) {
	res, err := d.page.Context(ctx).Eval(jsTextOf, selector)
	if err != nil {
		return nil, models.NewCrawlError(models.StageExtract, models.ErrCodeExtraction,
			fmt.Sprintf("extract text %q", selector), false, err)
	}
	if res.Value.Nil() {
		return nil, nil
	}
	s := res.Value.Str()
	return &s, nil
}

func (d *rodDriver) ExtractAttribute(ctx context.Context, selector, attr string) (*string, error) {
	res, err := d.page.Context(ctx).Eval(jsAttrOf, selector, attr)
	if err != nil {
		return nil, models.NewCrawlError(models.StageExtract, models.ErrCodeExtraction,
			fmt.Sprintf("extract attribute %q of %q", attr, selector), false, err)
	}
	if res.Value.Nil() {
		return nil, nil
	}
	s := res.Value.Str()
	return &s, nil
}

func (d *rodDriver) ExtractAll(ctx context.Context, selector string) (ElementSeq, error) {
	res, err := d.page.Context(ctx).Eval(jsOuterAll, selector)
	if err != nil {
		return nil, models.NewCrawlError(models.StageExtract, models.ErrCodeExtraction,
			fmt.Sprintf("extract all %q", selector), false, err)
	}
	arr := res.Value.Arr()
	frags := make([]string, 0, len(arr))
	for _, v := range arr {
		frags = append(frags, v.Str())
	}
	return elementSeqFromHTML(frags), nil
}

func (d *rodDriver) Click(ctx context.Context, selector string, timeout time.Duration) error {
	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	p := d.page.Context(tctx)

	el, err := p.Element(selector)
	if err != nil {
		return models.NewCrawlError(models.StageInteract, models.ErrCodeInteraction,
			fmt.Sprintf("click target %q not found", selector), true, err)
	}
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return models.NewCrawlError(models.StageInteract, models.ErrCodeInteraction,
			fmt.Sprintf("click %q", selector), true, err)
	}
	return nil
}

// Close resets the tab to a blank page so the pool can hand it out
// again without leaking the previous operation's DOM.
func (d *rodDriver) Close() error {
	d.closeOnce.Do(func() {
		_ = d.page.Navigate("about:blank")
	})
	return nil
}
