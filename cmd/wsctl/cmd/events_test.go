package cmd

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/boringdata/boring-ui/pkg/api"

	"github.com/spf13/viper"
)

func TestEventsCommand_Success(t *testing.T) {
	resetViper()

	now := time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC)
	code := "STEP_TIMEOUT"
	detail := "step creating_sandbox exceeded its 3m0s timeout budget"

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "/workspaces/ws-1/provision/events") {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}

		resp := api.ProvisionEventsResponse{
			Events: []api.ProvisionEvent{
				{ID: 1, JobID: 7, FromState: "", ToState: "queued", OccurredAt: now},
				{ID: 2, JobID: 7, FromState: "queued", ToState: "release_resolve", OccurredAt: now},
				{ID: 3, JobID: 7, FromState: "release_resolve", ToState: "creating_sandbox", OccurredAt: now},
				{ID: 4, JobID: 7, FromState: "creating_sandbox", ToState: "error", ErrorCode: &code, Detail: &detail, OccurredAt: now},
			},
		}
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	viper.Set("url", server.URL)
	viper.Set("token", "test-token")

	var stdout bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stdout)
	rootCmd.SetArgs([]string{"events", "ws-1"})

	err := rootCmd.Execute()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	output := stdout.String()
	if !strings.Contains(output, "queued → release_resolve") {
		t.Errorf("expected transition line, got: %s", output)
	}
	if !strings.Contains(output, "[STEP_TIMEOUT]") {
		t.Errorf("expected error code in output, got: %s", output)
	}
	if !strings.Contains(output, "timeout budget") {
		t.Errorf("expected error detail, got: %s", output)
	}
	// The queued event has no prior state
	if !strings.Contains(output, "-") {
		t.Errorf("expected placeholder for empty from-state, got: %s", output)
	}
}

func TestEventsCommand_Empty(t *testing.T) {
	resetViper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(api.ProvisionEventsResponse{Events: []api.ProvisionEvent{}})
	}))
	defer server.Close()

	viper.Set("url", server.URL)
	viper.Set("token", "test-token")

	var stdout bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stdout)
	rootCmd.SetArgs([]string{"events", "ws-1"})

	err := rootCmd.Execute()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !strings.Contains(stdout.String(), "No provisioning events recorded") {
		t.Errorf("expected empty message, got: %s", stdout.String())
	}
}

func TestEventsCommand_MissingToken(t *testing.T) {
	resetViper()

	viper.Set("url", "http://localhost:6171")
	viper.Set("token", "")

	var stdout bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stdout)
	rootCmd.SetArgs([]string{"events", "ws-1"})

	err := rootCmd.Execute()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !strings.Contains(stdout.String(), "API token not found") {
		t.Errorf("expected token error message, got: %s", stdout.String())
	}
}
