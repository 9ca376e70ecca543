// Package agentclient provides an HTTP client for invoking downstream
// agent services. Calls are gated by a local fixed-window rate limiter
// so a misbehaving saga cannot flood an agent.
package agentclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/launchsignal/orchestrator/ratelimit"
)

// ExecuteRequest is the payload sent to an agent's /execute endpoint.
type ExecuteRequest struct {
	Action    string                 `json:"action"`
	TenantID  string                 `json:"tenant_id"`
	SessionID string                 `json:"session_id,omitempty"`
	Params    map[string]interface{} `json:"params,omitempty"`
}

// ExecuteResponse is the agent's reply.
type ExecuteResponse struct {
	Success bool                   `json:"success"`
	Result  map[string]interface{} `json:"result,omitempty"`
	Error   string                 `json:"error,omitempty"`
}

// Client is an HTTP client for invoking agents.
type Client struct {
	httpClient *http.Client
	limiter    *ratelimit.FixedWindow
}

// NewClient creates an agent client. A nil limiter disables local
// rate limiting.
func NewClient(timeout time.Duration, limiter *ratelimit.FixedWindow) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		limiter:    limiter,
	}
}

// Execute calls an agent's /execute endpoint and returns its result.
// The call is rejected locally with ratelimit.ErrLimited when the
// current window's budget is spent.
func (c *Client) Execute(ctx context.Context, endpoint string, req *ExecuteRequest) (map[string]interface{}, error) {
	if c.limiter != nil {
		if err := c.limiter.Allow(estimateTokens(req)); err != nil {
			return nil, err
		}
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := strings.TrimSuffix(endpoint, "/") + "/execute"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Tenant-ID", req.TenantID)
	if req.SessionID != "" {
		httpReq.Header.Set("X-Session-ID", req.SessionID)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to invoke agent: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("agent returned status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var out ExecuteResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode agent response: %w", err)
	}
	if !out.Success {
		return nil, fmt.Errorf("agent execution failed: %s", out.Error)
	}
	return out.Result, nil
}

// estimateTokens approximates the token cost of a request from its
// serialized size. Close enough for budget accounting.
func estimateTokens(req *ExecuteRequest) int {
	b, err := json.Marshal(req.Params)
	if err != nil {
		return 1
	}
	return len(b)/4 + 1
}
