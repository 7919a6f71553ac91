package cmd

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/boringdata/boring-ui/pkg/api"

	"github.com/spf13/viper"
)

func TestRetryCommand_Success(t *testing.T) {
	resetViper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST method, got %s", r.Method)
		}
		if r.URL.Path != "/api/v1/workspaces/ws-1/retry" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}

		var reqBody api.RetryRequest
		if err := json.NewDecoder(r.Body).Decode(&reqBody); err != nil {
			t.Errorf("failed to decode request body: %v", err)
		}
		if reqBody.IdempotencyKey != "deploy-1-retry" {
			t.Errorf("expected idempotency_key=deploy-1-retry, got %v", reqBody.IdempotencyKey)
		}

		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(api.ProvisionResponse{
			JobID:       8,
			WorkspaceID: "ws-1",
			State:       "queued",
			Attempt:     1,
			Created:     true,
		})
	}))
	defer server.Close()

	viper.Set("url", server.URL)
	viper.Set("token", "test-token")

	var stdout bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stdout)
	rootCmd.SetArgs([]string{"retry", "ws-1", "--key", "deploy-1-retry"})

	err := rootCmd.Execute()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	output := stdout.String()
	if !strings.Contains(output, "Retry queued") {
		t.Errorf("expected success message, got: %s", output)
	}
	if !strings.Contains(output, "Job ID: 8") {
		t.Errorf("expected job ID in output, got: %s", output)
	}
}

func TestRetryCommand_NoHistory(t *testing.T) {
	resetViper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(api.ErrorResponse{
			Error: "Workspace has no provisioning history",
			Code:  "404",
		})
	}))
	defer server.Close()

	viper.Set("url", server.URL)
	viper.Set("token", "test-token")

	var stdout bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stdout)
	rootCmd.SetArgs([]string{"retry", "ws-404", "--key", "retry-1"})

	err := rootCmd.Execute()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	output := stdout.String()
	if !strings.Contains(output, "Failed to retry") {
		t.Errorf("expected failure message, got: %s", output)
	}
	if !strings.Contains(output, "404") {
		t.Errorf("expected status code in output, got: %s", output)
	}
}

func TestRetryCommand_MissingToken(t *testing.T) {
	resetViper()

	viper.Set("url", "http://localhost:6171")
	viper.Set("token", "")

	var stdout bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stdout)
	rootCmd.SetArgs([]string{"retry", "ws-1", "--key", "retry-1"})

	err := rootCmd.Execute()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	output := stdout.String()
	if !strings.Contains(output, "API token not found") {
		t.Errorf("expected token error message, got: %s", output)
	}
}
