package pipeline

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	utls "github.com/refraction-networking/utls"

	"github.com/use-agent/agentroster/models"
)

const chromeUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

// preflight issues a cheap GET with a Chrome TLS fingerprint before a
// crawl spends a browser page. A hard 4xx/5xx fails fast without
// retrying; 429 is retryable; network-level failures are inconclusive
// (the browser may still get through) and let the crawl proceed.
func (p *Pipeline) preflight(ctx context.Context, rawURL string) error {
	if !p.cfg.Scrape.Preflight {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, p.cfg.Scrape.PreflightTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return models.NewCrawlError(models.StageNavigate, models.ErrCodeNavigation,
			fmt.Sprintf("bad crawl url %q", rawURL), false, err)
	}
	req.Header.Set("User-Agent", chromeUA)
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := p.probeClient.Do(req)
	if err != nil {
		p.log.Debug("preflight inconclusive", "url", rawURL, "error", err)
		return nil
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 16<<10))

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return models.NewCrawlError(models.StageNavigate, models.ErrCodeNavigation,
			fmt.Sprintf("preflight %s: HTTP 429", rawURL), true, nil)
	case resp.StatusCode >= 400:
		return models.NewCrawlError(models.StageNavigate, models.ErrCodeNavigation,
			fmt.Sprintf("preflight %s: HTTP %d", rawURL, resp.StatusCode), false, nil)
	}
	return nil
}

func newProbeClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			Proxy:          http.ProxyFromEnvironment,
			DialTLSContext: dialTLSChrome,
		},
	}
}

// dialTLSChrome performs the TLS handshake with Chrome's ClientHello,
// so the probe is fingerprinted like the browser that follows it.
func dialTLSChrome(ctx context.Context, network, addr string) (net.Conn, error) {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, err
	}
	d := &net.Dialer{Timeout: 10 * time.Second}
	raw, err := d.DialContext(ctx, network, addr)
	if err != nil {
		return nil, err
	}
	conn := utls.UClient(raw, &utls.Config{ServerName: host}, utls.HelloChrome_Auto)
	if err := conn.HandshakeContext(ctx); err != nil {
		raw.Close()
		return nil, err
	}
	return conn, nil
}
