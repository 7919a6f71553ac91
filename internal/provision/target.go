package provision

import "github.com/boringdata/boring-ui/internal/store"

// Target is the immutable descriptor of one provisioning attempt. It is not
// persisted; the executor reflects it into the workspace runtime snapshot.
type Target struct {
	AppID        string
	WorkspaceID  string
	ReleaseID    string
	SandboxName  string
	BundleSHA256 string
}

// ExecutionResult is the outcome of one executor run. Execution failures are
// reported here, not as Go errors: the job is left in the error state with
// the same code.
type ExecutionResult struct {
	Success     bool
	Job         *store.ProvisioningJob
	ErrorCode   string
	ErrorDetail string
}
