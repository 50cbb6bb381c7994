package driver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/use-agent/agentroster/config"
	"github.com/use-agent/agentroster/models"
)

// Tool names the remote automation agent must expose. The agent drives
// a single page per session; arguments and results are JSON.
//
//	navigate          {url, timeout_ms} -> {"status": int, "final_url": string}
//	wait_for_selector {selector, timeout_ms}
//	click             {selector, timeout_ms}
//	evaluate          {script} -> JSON-serialized script return value
//	close             {}
const (
	toolNavigate = "navigate"
	toolWait     = "wait_for_selector"
	toolClick    = "click"
	toolEvaluate = "evaluate"
	toolClose    = "close"
)

// MCPBackend drives a remote automation agent over the Model Context
// Protocol, either by spawning it (stdio) or by connecting to a
// streamable-HTTP endpoint. The agent holds one page, so the session is
// serialized: one Driver checked out at a time, callers queue on
// Acquire.
type MCPBackend struct {
	cfg config.RemoteConfig
	log *slog.Logger

	sem chan struct{}

	mu     sync.Mutex
	cli    *client.Client
	opened bool
	closed bool
}

// NewMCPBackend builds the backend without connecting; the session is
// established on first Acquire and health-checked with a ping before
// every reuse.
func NewMCPBackend(cfg config.RemoteConfig, log *slog.Logger) *MCPBackend {
	return &MCPBackend{
		cfg: cfg,
		log: log.With("backend", BackendMCP),
		sem: make(chan struct{}, 1),
	}
}

func (b *MCPBackend) Name() string { return BackendMCP }

func (b *MCPBackend) Acquire(ctx context.Context) (Driver, error) {
	select {
	case b.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, models.NewCrawlError(models.StageBackend, models.ErrCodeBackendUnavailable,
			"timed out waiting for the remote automation session", false, ctx.Err())
	}

	cli, err := b.ensureSession(ctx)
	if err != nil {
		<-b.sem
		return nil, err
	}
	return &mcpDriver{b: b, cli: cli}, nil
}

func (b *MCPBackend) ensureSession(ctx context.Context) (*client.Client, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, models.NewCrawlError(models.StageBackend, models.ErrCodeBackendUnavailable,
			"remote backend is closed", false, nil)
	}

	if b.cli != nil {
		pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := b.cli.Ping(pctx)
		cancel()
		if err == nil {
			return b.cli, nil
		}
		b.log.Warn("remote session ping failed, reconnecting", "error", err)
		_ = b.cli.Close()
		b.cli = nil
	}

	cli, err := b.connect(ctx)
	if err != nil {
		return nil, models.NewCrawlError(models.StageBackend, models.ErrCodeBackendUnavailable,
			"connect to remote automation agent", false, err)
	}
	b.cli = cli
	b.opened = true
	return cli, nil
}

func (b *MCPBackend) connect(ctx context.Context) (*client.Client, error) {
	var (
		cli *client.Client
		err error
	)
	switch b.cfg.Transport {
	case "http":
		cli, err = client.NewStreamableHttpClient(b.cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("streamable http client: %w", err)
		}
		if err := cli.Start(ctx); err != nil {
			return nil, fmt.Errorf("start http transport: %w", err)
		}
	default:
		cli, err = client.NewStdioMCPClient(b.cfg.Command, nil, b.cfg.Args...)
		if err != nil {
			return nil, fmt.Errorf("spawn %s: %w", b.cfg.Command, err)
		}
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcp.Implementation{Name: "agentroster", Version: "1.0.0"}

	initRes, err := cli.Initialize(ctx, initReq)
	if err != nil {
		_ = cli.Close()
		return nil, fmt.Errorf("initialize session: %w", err)
	}
	b.log.Info("remote automation session established",
		"transport", b.cfg.Transport,
		"server", initRes.ServerInfo.Name,
		"server_version", initRes.ServerInfo.Version)
	return cli, nil
}

func (b *MCPBackend) Release(d Driver, healthy bool) {
	if _, ok := d.(*mcpDriver); !ok {
		return
	}
	if !healthy {
		b.mu.Lock()
		if b.cli != nil {
			b.log.Warn("discarding remote session after failed operation")
			_ = b.cli.Close()
			b.cli = nil
		}
		b.mu.Unlock()
	}
	<-b.sem
}

func (b *MCPBackend) Stats() models.BackendStats {
	b.mu.Lock()
	defer b.mu.Unlock()
	live := 0
	if b.cli != nil {
		live = 1
	}
	return models.BackendStats{
		Live:   live,
		InUse:  len(b.sem),
		Max:    1,
		Opened: b.opened,
	}
}

func (b *MCPBackend) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	if b.cli != nil {
		_ = b.cli.Close()
		b.cli = nil
	}
}

// toolCaller is the slice of the MCP client the driver needs.
type toolCaller interface {
	CallTool(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error)
}

// mcpDriver maps Driver operations onto tool calls against the remote
// agent. Protocol failures during navigation are retryable (the spec
// for a flaky transport is the same as for a flaky network); protocol
// failures during extraction mean the session itself is gone and
// surface as BACKEND_UNAVAILABLE.
type mcpDriver struct {
	b         *MCPBackend
	cli       toolCaller
	closeOnce sync.Once
}

func (d *mcpDriver) call(ctx context.Context, tool string, args map[string]any) (*mcp.CallToolResult, error) {
	cctx, cancel := context.WithTimeout(ctx, d.b.cfg.CallTimeout)
	defer cancel()

	req := mcp.CallToolRequest{}
	req.Params.Name = tool
	req.Params.Arguments = args
	return d.cli.CallTool(cctx, req)
}

func (d *mcpDriver) Navigate(ctx context.Context, url string, timeout time.Duration) error {
	res, err := d.call(ctx, toolNavigate, map[string]any{
		"url":        url,
		"timeout_ms": timeout.Milliseconds(),
	})
	if err != nil {
		return models.NewCrawlError(models.StageNavigate, models.ErrCodeNavigation,
			fmt.Sprintf("navigate %s", url), true, err)
	}
	if res.IsError {
		return models.NewCrawlError(models.StageNavigate, models.ErrCodeNavigation,
			fmt.Sprintf("navigate %s: %s", url, toolErrText(res)), true, nil)
	}

	var nav struct {
		Status int `json:"status"`
	}
	text, ok := toolText(res)
	if !ok || json.Unmarshal([]byte(text), &nav) != nil {
		return models.NewCrawlError(models.StageNavigate, models.ErrCodeNavigation,
			fmt.Sprintf("navigate %s: malformed agent response", url), true, nil)
	}
	if nav.Status >= 400 {
		return models.NewCrawlError(models.StageNavigate, models.ErrCodeNavigation,
			fmt.Sprintf("navigate %s: HTTP %d", url, nav.Status), false, nil)
	}
	return nil
}

func (d *mcpDriver) WaitForSelector(ctx context.Context, selector string, timeout time.Duration) error {
	res, err := d.call(ctx, toolWait, map[string]any{
		"selector":   selector,
		"timeout_ms": timeout.Milliseconds(),
	})
	if err != nil || res.IsError {
		return models.NewCrawlError(models.StageWaitSelector, models.ErrCodeSelectorTimeout,
			fmt.Sprintf("selector %q did not appear within %s", selector, timeout), true, err)
	}
	return nil
}

func (d *mcpDriver) ExtractText(ctx context.Context, selector string) (*string, error) {
	var out *string
	if err := d.evaluate(ctx, jsInvoke(jsTextOf, selector), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (d *mcpDriver) ExtractAttribute(ctx context.Context, selector, attr string) (*string, error) {
	var out *string
	if err := d.evaluate(ctx, jsInvoke(jsAttrOf, selector, attr), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (d *mcpDriver) ExtractAll(ctx context.Context, selector string) (ElementSeq, error) {
	var frags []string
	if err := d.evaluate(ctx, jsInvoke(jsOuterAll, selector), &frags); err != nil {
		return nil, err
	}
	return elementSeqFromHTML(frags), nil
}

// evaluate runs a script in the remote page and decodes its
// JSON-serialized return value into out.
func (d *mcpDriver) evaluate(ctx context.Context, script string, out any) error {
	res, err := d.call(ctx, toolEvaluate, map[string]any{"script": script})
	if err != nil {
		return models.NewCrawlError(models.StageBackend, models.ErrCodeBackendUnavailable,
			"remote evaluate call failed", false, err)
	}
	if res.IsError {
		return models.NewCrawlError(models.StageExtract, models.ErrCodeExtraction,
			fmt.Sprintf("remote evaluate: %s", toolErrText(res)), false, nil)
	}
	text, ok := toolText(res)
	if !ok {
		return models.NewCrawlError(models.StageExtract, models.ErrCodeExtraction,
			"remote evaluate returned no content", false, nil)
	}
	if err := json.Unmarshal([]byte(text), out); err != nil {
		return models.NewCrawlError(models.StageExtract, models.ErrCodeExtraction,
			"remote evaluate returned malformed JSON", false, err)
	}
	return nil
}

func (d *mcpDriver) Click(ctx context.Context, selector string, timeout time.Duration) error {
	res, err := d.call(ctx, toolClick, map[string]any{
		"selector":   selector,
		"timeout_ms": timeout.Milliseconds(),
	})
	if err != nil || res.IsError {
		return models.NewCrawlError(models.StageInteract, models.ErrCodeInteraction,
			fmt.Sprintf("click %q", selector), true, err)
	}
	return nil
}

func (d *mcpDriver) Close() error {
	d.closeOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_, _ = d.call(ctx, toolClose, map[string]any{})
	})
	return nil
}

// jsInvoke wraps one of the shared snippets in an immediate call with
// quoted string arguments, so the remote evaluate tool needs only a
// self-contained script.
func jsInvoke(fn string, args ...string) string {
	quoted := make([]string, len(args))
	for i, a := range args {
		quoted[i] = strconv.Quote(a)
	}
	return fmt.Sprintf("(%s)(%s)", fn, strings.Join(quoted, ", "))
}

func toolText(res *mcp.CallToolResult) (string, bool) {
	for _, c := range res.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			return tc.Text, true
		}
	}
	return "", false
}

func toolErrText(res *mcp.CallToolResult) string {
	var parts []string
	for _, c := range res.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			parts = append(parts, tc.Text)
		}
	}
	if len(parts) == 0 {
		return "tool reported an error"
	}
	return strings.Join(parts, "; ")
}
