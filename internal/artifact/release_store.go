package artifact

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

const (
	bundleFileName   = "bundle.tar.gz"
	manifestFileName = "manifest.json"
	sumsFileName     = "SHA256SUMS"
)

// Manifest is the release descriptor shipped alongside each bundle.
type Manifest struct {
	AppID        string `json:"app_id"`
	ReleaseID    string `json:"release_id"`
	BundleSHA256 string `json:"bundle_sha256"`
}

// ReleaseStore reads released artifacts from a local directory tree and
// implements Verifier by streaming a sha256 over the bundle.
type ReleaseStore struct {
	root string
}

// NewReleaseStore creates a store rooted at the given directory.
func NewReleaseStore(root string) *ReleaseStore {
	return &ReleaseStore{root: root}
}

// Root returns the store's root directory.
func (s *ReleaseStore) Root() string {
	return s.root
}

func (s *ReleaseStore) releaseDir(appID, releaseID string) string {
	return filepath.Join(s.root, appID, releaseID)
}

// BundlePath returns the expected path of a release's bundle. The file may
// not exist.
func (s *ReleaseStore) BundlePath(appID, releaseID string) string {
	return filepath.Join(s.releaseDir(appID, releaseID), bundleFileName)
}

// ReadManifest loads a release's manifest. A missing manifest is reported as
// ErrBundleNotFound since the release is unusable either way.
func (s *ReleaseStore) ReadManifest(appID, releaseID string) (*Manifest, error) {
	path := filepath.Join(s.releaseDir(appID, releaseID), manifestFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s/%s has no manifest", ErrBundleNotFound, appID, releaseID)
		}
		return nil, fmt.Errorf("failed to read manifest %s: %w", path, err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest %s: %w", path, err)
	}
	return &m, nil
}

// Verify implements Verifier. It resolves the bundle, streams its sha256,
// and compares against expectedSHA256 (or the manifest's own hash when the
// expectation is empty).
func (s *ReleaseStore) Verify(ctx context.Context, appID, releaseID, expectedSHA256 string) (Verification, error) {
	if expectedSHA256 == "" {
		manifest, err := s.ReadManifest(appID, releaseID)
		if err != nil {
			return Verification{}, err
		}
		expectedSHA256 = manifest.BundleSHA256
	}

	path := s.BundlePath(appID, releaseID)
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Verification{}, fmt.Errorf("%w: %s", ErrBundleNotFound, path)
		}
		return Verification{}, fmt.Errorf("failed to open bundle %s: %w", path, err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return Verification{}, fmt.Errorf("failed to hash bundle %s: %w", path, err)
	}
	actual := hex.EncodeToString(h.Sum(nil))

	return Verification{
		Valid:        actual == expectedSHA256,
		BundlePath:   path,
		ActualSHA256: actual,
	}, nil
}
