// Package api contains shared JSON request/response structs.
// This package is shared between the CLI and the control plane.
package api

import "time"

// CreateTenantRequest is the request body for creating a new tenant.
type CreateTenantRequest struct {
	Name string `json:"name"`
}

// CreateTenantResponse is the response body after creating a tenant.
type CreateTenantResponse struct {
	ID     string `json:"tenant_id"`
	Name   string `json:"name"`
	ApiKey string `json:"api_key"`
}

// ProvisionRequest is the request body for starting workspace provisioning.
type ProvisionRequest struct {
	AppID          string `json:"app_id"`
	ReleaseID      string `json:"release_id"`
	IdempotencyKey string `json:"idempotency_key"`
}

// ProvisionResponse is the response body after a provisioning request.
// Created is false when the idempotency key replayed an existing job.
type ProvisionResponse struct {
	JobID       int64  `json:"job_id"`
	WorkspaceID string `json:"workspace_id"`
	State       string `json:"state"`
	Attempt     int    `json:"attempt"`
	Created     bool   `json:"created"`
}

// RetryRequest is the request body for retrying a failed provisioning job.
type RetryRequest struct {
	IdempotencyKey string `json:"idempotency_key"`
}

// RuntimeStatusResponse is the response body for workspace runtime queries.
type RuntimeStatusResponse struct {
	WorkspaceID     string     `json:"workspace_id"`
	State           string     `json:"state"`
	Step            *string    `json:"step,omitempty"`
	Attempt         int        `json:"attempt"`
	RequestID       string     `json:"request_id,omitempty"`
	ReleaseID       string     `json:"release_id,omitempty"`
	SandboxName     string     `json:"sandbox_name,omitempty"`
	LastErrorCode   *string    `json:"last_error_code,omitempty"`
	LastErrorDetail *string    `json:"last_error_detail,omitempty"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	FinishedAt      *time.Time `json:"finished_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

// ProvisionEvent represents a single state transition in API responses.
type ProvisionEvent struct {
	ID         int64     `json:"id"`
	JobID      int64     `json:"job_id"`
	FromState  string    `json:"from_state,omitempty"`
	ToState    string    `json:"to_state"`
	ErrorCode  *string   `json:"error_code,omitempty"`
	Detail     *string   `json:"detail,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// ProvisionEventsResponse is the response body for the transition history.
type ProvisionEventsResponse struct {
	Events []ProvisionEvent `json:"events"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}
