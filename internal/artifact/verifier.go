// Package artifact handles released-bundle resolution and integrity
// verification against the release store layout:
//
//	{store_root}/{app_id}/{release_id}/{bundle.tar.gz, manifest.json, SHA256SUMS}
package artifact

import (
	"context"
	"errors"
)

// ErrBundleNotFound is returned when a release's manifest or bundle is
// missing from the store. Jobs failing on it carry the artifact_not_found
// code and cannot be retried until the artifact is fixed out-of-band.
var ErrBundleNotFound = errors.New("artifact: bundle not found")

// Verification is the outcome of resolving and checksumming a bundle.
type Verification struct {
	Valid        bool
	BundlePath   string // local path to the verified bundle
	ActualSHA256 string
}

// Verifier resolves a release bundle and verifies it against an expected
// sha256. An empty expected hash means "verify against the release's own
// manifest".
type Verifier interface {
	Verify(ctx context.Context, appID, releaseID, expectedSHA256 string) (Verification, error)
}
