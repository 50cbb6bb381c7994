package driver

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/use-agent/agentroster/config"
	"github.com/use-agent/agentroster/models"
)

// fakeToolCaller scripts one result or transport error per tool name.
type fakeToolCaller struct {
	results map[string]*mcp.CallToolResult
	errs    map[string]error
	calls   []string
}

func (f *fakeToolCaller) CallTool(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	f.calls = append(f.calls, req.Params.Name)
	if err := f.errs[req.Params.Name]; err != nil {
		return nil, err
	}
	return f.results[req.Params.Name], nil
}

func newTestMCPDriver(f *fakeToolCaller) *mcpDriver {
	b := &MCPBackend{cfg: config.RemoteConfig{CallTimeout: time.Second}}
	return &mcpDriver{b: b, cli: f}
}

func asCrawlError(t *testing.T, err error) *models.CrawlError {
	t.Helper()
	var ce *models.CrawlError
	if !errors.As(err, &ce) {
		t.Fatalf("want CrawlError, got %v", err)
	}
	return ce
}

func TestMCPNavigateTranslations(t *testing.T) {
	tests := []struct {
		name          string
		result        *mcp.CallToolResult
		transportErr  error
		wantErr       bool
		wantRetryable bool
	}{
		{
			name:          "transport failure is retryable",
			transportErr:  errors.New("connection refused"),
			wantErr:       true,
			wantRetryable: true,
		},
		{
			name:          "tool error is retryable",
			result:        mcp.NewToolResultError("agent crashed"),
			wantErr:       true,
			wantRetryable: true,
		},
		{
			name:          "malformed payload is retryable",
			result:        mcp.NewToolResultText("not json"),
			wantErr:       true,
			wantRetryable: true,
		},
		{
			name:          "http 404 is not retryable",
			result:        mcp.NewToolResultText(`{"status": 404}`),
			wantErr:       true,
			wantRetryable: false,
		},
		{
			name:   "http 200 succeeds",
			result: mcp.NewToolResultText(`{"status": 200}`),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &fakeToolCaller{
				results: map[string]*mcp.CallToolResult{toolNavigate: tt.result},
				errs:    map[string]error{toolNavigate: tt.transportErr},
			}
			err := newTestMCPDriver(f).Navigate(context.Background(), "https://roster.test", time.Second)
			if !tt.wantErr {
				if err != nil {
					t.Fatalf("Navigate: %v", err)
				}
				return
			}
			ce := asCrawlError(t, err)
			if ce.Code != models.ErrCodeNavigation {
				t.Errorf("Code = %s, want %s", ce.Code, models.ErrCodeNavigation)
			}
			if ce.Retryable != tt.wantRetryable {
				t.Errorf("Retryable = %v, want %v", ce.Retryable, tt.wantRetryable)
			}
		})
	}
}

func TestMCPEvaluateProtocolFailureIsBackendUnavailable(t *testing.T) {
	f := &fakeToolCaller{errs: map[string]error{toolEvaluate: errors.New("broken pipe")}}

	_, err := newTestMCPDriver(f).ExtractText(context.Background(), ".phone")
	ce := asCrawlError(t, err)
	if ce.Code != models.ErrCodeBackendUnavailable {
		t.Errorf("Code = %s, want %s", ce.Code, models.ErrCodeBackendUnavailable)
	}
	if ce.Retryable {
		t.Error("a dead session must not be retried on the same handle")
	}
}

func TestMCPEvaluateToolErrorIsExtractionFailure(t *testing.T) {
	f := &fakeToolCaller{results: map[string]*mcp.CallToolResult{
		toolEvaluate: mcp.NewToolResultError("script threw"),
	}}

	_, err := newTestMCPDriver(f).ExtractText(context.Background(), ".phone")
	ce := asCrawlError(t, err)
	if ce.Code != models.ErrCodeExtraction || ce.Retryable {
		t.Errorf("got %s retryable=%v, want non-retryable extraction failure", ce.Code, ce.Retryable)
	}
}

func TestMCPEvaluateMalformedJSONIsExtractionFailure(t *testing.T) {
	f := &fakeToolCaller{results: map[string]*mcp.CallToolResult{
		toolEvaluate: mcp.NewToolResultText("{{nope"),
	}}

	_, err := newTestMCPDriver(f).ExtractText(context.Background(), ".phone")
	ce := asCrawlError(t, err)
	if ce.Code != models.ErrCodeExtraction || ce.Retryable {
		t.Errorf("got %s retryable=%v, want non-retryable extraction failure", ce.Code, ce.Retryable)
	}
}

func TestMCPExtractTextAbsentIsNil(t *testing.T) {
	f := &fakeToolCaller{results: map[string]*mcp.CallToolResult{
		toolEvaluate: mcp.NewToolResultText("null"),
	}}

	got, err := newTestMCPDriver(f).ExtractText(context.Background(), ".missing")
	if err != nil {
		t.Fatalf("ExtractText: %v", err)
	}
	if got != nil {
		t.Errorf("got %q, want nil for an absent element", *got)
	}
}

func TestMCPExtractAllYieldsElements(t *testing.T) {
	f := &fakeToolCaller{results: map[string]*mcp.CallToolResult{
		toolEvaluate: mcp.NewToolResultText(`["<div class=\"card\">one</div>", "<div class=\"card\">two</div>"]`),
	}}

	seq, err := newTestMCPDriver(f).ExtractAll(context.Background(), ".card")
	if err != nil {
		t.Fatalf("ExtractAll: %v", err)
	}
	var texts []string
	seq(func(el Element) bool {
		texts = append(texts, *el.Text(""))
		return true
	})
	if len(texts) != 2 || texts[0] != "one" || texts[1] != "two" {
		t.Errorf("texts = %v, want [one two]", texts)
	}
}

func TestMCPWaitForSelectorTimeoutIsRetryable(t *testing.T) {
	f := &fakeToolCaller{results: map[string]*mcp.CallToolResult{
		toolWait: mcp.NewToolResultError("timed out"),
	}}

	err := newTestMCPDriver(f).WaitForSelector(context.Background(), ".card", time.Second)
	ce := asCrawlError(t, err)
	if ce.Code != models.ErrCodeSelectorTimeout || !ce.Retryable {
		t.Errorf("got %s retryable=%v, want retryable selector timeout", ce.Code, ce.Retryable)
	}
}

func TestMCPClickFailureIsRetryable(t *testing.T) {
	f := &fakeToolCaller{errs: map[string]error{toolClick: errors.New("detached node")}}

	err := newTestMCPDriver(f).Click(context.Background(), "button.load-more", time.Second)
	ce := asCrawlError(t, err)
	if ce.Code != models.ErrCodeInteraction || !ce.Retryable {
		t.Errorf("got %s retryable=%v, want retryable interaction failure", ce.Code, ce.Retryable)
	}
}

func TestMCPCloseIsIdempotent(t *testing.T) {
	f := &fakeToolCaller{results: map[string]*mcp.CallToolResult{
		toolClose: mcp.NewToolResultText("{}"),
	}}
	d := newTestMCPDriver(f)

	if err := d.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := d.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if len(f.calls) != 1 {
		t.Errorf("close tool called %d times, want 1", len(f.calls))
	}
}
