package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/boringdata/boring-ui/pkg/api"
)

// WorkspaceClient handles API calls to the boring-ui control plane.
type WorkspaceClient struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

// NewWorkspaceClient creates a new client with the given base URL and token.
func NewWorkspaceClient(baseURL, token string) *WorkspaceClient {
	return &WorkspaceClient{
		BaseURL: baseURL,
		Token:   token,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// APIError represents an error response from the API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (%d): %s", e.StatusCode, e.Message)
}

// Provision sends POST /api/v1/workspaces/{id}/provision.
func (c *WorkspaceClient) Provision(workspaceID string, req api.ProvisionRequest) (*api.ProvisionResponse, error) {
	endpoint := fmt.Sprintf("%s/api/v1/workspaces/%s/provision", c.BaseURL, workspaceID)
	var result api.ProvisionResponse
	if err := c.post(endpoint, req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Retry sends POST /api/v1/workspaces/{id}/retry.
func (c *WorkspaceClient) Retry(workspaceID string, req api.RetryRequest) (*api.ProvisionResponse, error) {
	endpoint := fmt.Sprintf("%s/api/v1/workspaces/%s/retry", c.BaseURL, workspaceID)
	var result api.ProvisionResponse
	if err := c.post(endpoint, req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetRuntime sends GET /api/v1/workspaces/{id}/runtime.
func (c *WorkspaceClient) GetRuntime(workspaceID string) (*api.RuntimeStatusResponse, error) {
	endpoint := fmt.Sprintf("%s/api/v1/workspaces/%s/runtime", c.BaseURL, workspaceID)
	var result api.RuntimeStatusResponse
	if err := c.get(endpoint, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetEvents sends GET /api/v1/workspaces/{id}/provision/events.
func (c *WorkspaceClient) GetEvents(workspaceID string) ([]api.ProvisionEvent, error) {
	endpoint := fmt.Sprintf("%s/api/v1/workspaces/%s/provision/events", c.BaseURL, workspaceID)
	var result api.ProvisionEventsResponse
	if err := c.get(endpoint, &result); err != nil {
		return nil, err
	}
	return result.Events, nil
}

func (c *WorkspaceClient) post(endpoint string, body, out interface{}) error {
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequest(http.MethodPost, endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	return c.do(httpReq, out)
}

func (c *WorkspaceClient) get(endpoint string, out interface{}) error {
	httpReq, err := http.NewRequest(http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	return c.do(httpReq, out)
}

func (c *WorkspaceClient) do(httpReq *http.Request, out interface{}) error {
	httpReq.Header.Add("Authorization", fmt.Sprintf("Bearer %s", c.Token))
	httpReq.Header.Add("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return &APIError{StatusCode: resp.StatusCode, Message: string(respBody)}
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}
