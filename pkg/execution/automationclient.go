package execution

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/opsforge/execcore/pkg/domain"
	"github.com/opsforge/execcore/pkg/shared/apperr"
	"github.com/opsforge/execcore/pkg/shared/httpclient"
)

// HTTPAutomationClient is the production AutomationClient: it forwards
// one resolved step to the remote automation worker service over HTTP.
// The automation worker itself is an out-of-scope collaborator; this
// type is only the outbound seam.
type HTTPAutomationClient struct {
	baseURL string
	http    *http.Client
}

func NewHTTPAutomationClient(baseURL string) *HTTPAutomationClient {
	return &HTTPAutomationClient{baseURL: baseURL, http: httpclient.NewClient(httpclient.DefaultClientConfig())}
}

type automationRequest struct {
	ToolName string             `json:"tool_name"`
	Pattern  string             `json:"pattern"`
	Inputs   map[string]any     `json:"inputs"`
	Target   domain.Target      `json:"target"`
}

func (c *HTTPAutomationClient) Execute(ctx context.Context, toolName, pattern string, inputs map[string]any, target domain.Target) (map[string]any, error) {
	body, err := json.Marshal(automationRequest{ToolName: toolName, Pattern: pattern, Inputs: inputs, Target: target})
	if err != nil {
		return nil, apperr.Wrap(err, apperr.KindInternal, "automation client: encode request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/execute", bytes.NewReader(body))
	if err != nil {
		return nil, apperr.Wrap(err, apperr.KindInternal, "automation client: build request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.KindTransient, "automation client: request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return nil, apperr.Newf(apperr.KindTransient, "automation client: worker returned status %d", resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return nil, apperr.Newf(apperr.KindInternal, "automation client: worker rejected request (status %d)", resp.StatusCode)
	}

	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, apperr.Wrap(err, apperr.KindInternal, fmt.Sprintf("automation client: decode response for %s", toolName))
	}
	return out, nil
}
