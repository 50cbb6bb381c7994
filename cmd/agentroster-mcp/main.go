// Command agentroster-mcp exposes the agentroster HTTP API as MCP
// tools over stdio, so an LLM client can crawl and verify the roster
// without speaking HTTP itself.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// verifyRequest mirrors the agentroster verify API model.
type verifyRequest struct {
	Name      *string `json:"name,omitempty"`
	Phone     *string `json:"phone,omitempty"`
	Office    *string `json:"office,omitempty"`
	License   *string `json:"license,omitempty"`
	ProfileID string  `json:"profile_id,omitempty"`
	Backend   string  `json:"backend,omitempty"`
}

// apiEnvelope is the part of every agentroster response needed to tell
// success from failure; the rest is passed through verbatim.
type apiEnvelope struct {
	Success bool `json:"success"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func main() {
	apiURL := os.Getenv("ROSTER_API_URL")
	if apiURL == "" {
		apiURL = "http://127.0.0.1:8080"
	}
	apiKey := os.Getenv("ROSTER_API_KEY")

	s := server.NewMCPServer(
		"agentroster",
		"1.0.0",
		server.WithToolCapabilities(false),
	)

	listTool := mcp.NewTool("list_agents",
		mcp.WithDescription("Crawl the brokerage roster listing and return every agent's summary (id, name, office, phone, profile URL). Pages are walked and deduplicated automatically."),
		mcp.WithString("backend",
			mcp.Description("Automation backend: 'rod' (local headless browser, default) or 'mcp' (remote automation agent)"),
			mcp.Enum("rod", "mcp"),
		),
	)
	s.AddTool(listTool, handleListAgents(apiURL, apiKey))

	getTool := mcp.NewTool("get_agent",
		mcp.WithDescription("Fetch one agent's full profile: license, bio, photo, and additional contacts."),
		mcp.WithString("agent_id",
			mcp.Required(),
			mcp.Description("The agent's profile ID (the slug from the profile URL)"),
		),
		mcp.WithString("backend",
			mcp.Description("Automation backend: 'rod' (default) or 'mcp'"),
			mcp.Enum("rod", "mcp"),
		),
	)
	s.AddTool(getTool, handleGetAgent(apiURL, apiKey))

	fullTool := mcp.NewTool("full_scrape",
		mcp.WithDescription("Crawl the whole roster and fetch every agent's profile. Slow; profile failures are reported per agent, not fatal."),
		mcp.WithString("backend",
			mcp.Description("Automation backend: 'rod' (default) or 'mcp'"),
			mcp.Enum("rod", "mcp"),
		),
	)
	s.AddTool(fullTool, handleFullScrape(apiURL, apiKey))

	verifyTool := mcp.NewTool("verify_agent",
		mcp.WithDescription("Verify claimed agent details (name, phone, office, license) against a fresh scrape. Returns per-field MATCH/MISMATCH/NOT_FOUND plus a confidence score."),
		mcp.WithString("name", mcp.Description("Claimed agent name")),
		mcp.WithString("phone", mcp.Description("Claimed phone number, any format")),
		mcp.WithString("office", mcp.Description("Claimed office name")),
		mcp.WithString("license", mcp.Description("Claimed license number")),
		mcp.WithString("profile_id",
			mcp.Description("Verify against this agent's profile page instead of searching the roster"),
		),
		mcp.WithString("backend",
			mcp.Description("Automation backend: 'rod' (default) or 'mcp'"),
			mcp.Enum("rod", "mcp"),
		),
	)
	s.AddTool(verifyTool, handleVerifyAgent(apiURL, apiKey))

	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}

func handleListAgents(apiURL, apiKey string) server.ToolHandlerFunc {
	client := newAPIClient()

	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		path := "/api/v1/agents" + backendQuery(request)
		return apiGet(ctx, client, apiURL, apiKey, path)
	}
}

func handleGetAgent(apiURL, apiKey string) server.ToolHandlerFunc {
	client := newAPIClient()

	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := request.RequireString("agent_id")
		if err != nil {
			return mcp.NewToolResultError("agent_id is required"), nil
		}
		path := "/api/v1/agents/" + url.PathEscape(id) + backendQuery(request)
		return apiGet(ctx, client, apiURL, apiKey, path)
	}
}

func handleFullScrape(apiURL, apiKey string) server.ToolHandlerFunc {
	client := newAPIClient()

	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		path := "/api/v1/agents/full" + backendQuery(request)
		return apiGet(ctx, client, apiURL, apiKey, path)
	}
}

func handleVerifyAgent(apiURL, apiKey string) server.ToolHandlerFunc {
	client := newAPIClient()

	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		req := verifyRequest{
			Name:      optString(request, "name"),
			Phone:     optString(request, "phone"),
			Office:    optString(request, "office"),
			License:   optString(request, "license"),
			ProfileID: request.GetString("profile_id", ""),
			Backend:   request.GetString("backend", ""),
		}
		if req.Name == nil && req.Phone == nil && req.Office == nil && req.License == nil {
			return mcp.NewToolResultError("provide at least one of name, phone, office, license"), nil
		}
		return apiPost(ctx, client, apiURL, apiKey, "/api/v1/verify", req)
	}
}

func newAPIClient() *http.Client {
	// Full scrapes walk every profile page; give them room.
	return &http.Client{Timeout: 15 * time.Minute}
}

func backendQuery(request mcp.CallToolRequest) string {
	if backend := request.GetString("backend", ""); backend != "" {
		return "?backend=" + url.QueryEscape(backend)
	}
	return ""
}

func optString(request mcp.CallToolRequest, key string) *string {
	if v := request.GetString(key, ""); v != "" {
		return &v
	}
	return nil
}

func apiGet(ctx context.Context, client *http.Client, apiURL, apiKey, path string) (*mcp.CallToolResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL+path, nil)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to create request: %v", err)), nil
	}
	return doAPI(client, req, apiKey)
}

func apiPost(ctx context.Context, client *http.Client, apiURL, apiKey, path string, payload any) (*mcp.CallToolResult, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal request: %v", err)), nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL+path, bytes.NewReader(body))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to create request: %v", err)), nil
	}
	req.Header.Set("Content-Type", "application/json")
	return doAPI(client, req, apiKey)
}

// doAPI executes the request and hands the API's JSON back to the MCP
// client verbatim, surfacing API-level failures as tool errors.
func doAPI(client *http.Client, req *http.Request, apiKey string) (*mcp.CallToolResult, error) {
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}

	resp, err := client.Do(req)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("API request failed: %v", err)), nil
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to read response: %v", err)), nil
	}

	var env apiEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to parse response: %v", err)), nil
	}
	if !env.Success && env.Error != nil {
		return mcp.NewToolResultError(fmt.Sprintf("%s: %s", env.Error.Code, env.Error.Message)), nil
	}
	return mcp.NewToolResultText(string(body)), nil
}
