package release

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/h4x0r/1-click-github-sec/internal/branding"
	"github.com/h4x0r/1-click-github-sec/internal/errs"
	"github.com/h4x0r/1-click-github-sec/internal/provenance"
	"go.uber.org/zap"
)

// LatestVersion returns the version of the newest release.
func (c *Client) LatestVersion(ctx context.Context) (string, error) {
	rel, err := c.Latest(ctx)
	if err != nil {
		return "", err
	}
	return rel.Version(), nil
}

// FetchRelease downloads, checksums and extracts the bundle of ver.
func (c *Client) FetchRelease(ctx context.Context, ver string) (*ArtifactSet, error) {
	rel, err := c.ByVersion(ctx, ver)
	if err != nil {
		return nil, err
	}
	asset, ok := rel.Asset(BundleName(ver))
	if !ok {
		return nil, errs.NotFound("fetching release", BundleName(ver), errors.New("bundle not attached to release"))
	}

	dir, err := os.MkdirTemp("", "security-controls-release-*")
	if err != nil {
		return nil, fmt.Errorf("creating download directory: %w", err)
	}
	defer os.RemoveAll(dir)

	archive, err := c.Download(ctx, asset, dir)
	if err != nil {
		return nil, err
	}
	if err := c.VerifyChecksum(ctx, rel, archive); err != nil {
		return nil, err
	}
	set, err := ExtractBundle(archive, ver)
	if err != nil {
		return nil, fmt.Errorf("release %s: %w", ver, err)
	}
	c.logger.Debug("fetched release", zap.String("version", set.Version), zap.Int("files", len(set.Files)))
	return set, nil
}

// attestationAsset picks the provenance file attached to a release.
func attestationAsset(rel *Release) (*Asset, bool) {
	preferred := []string{
		branding.InstallerAsset() + ".sigstore.json",
		branding.InstallerAsset() + ".intoto.jsonl",
		"multiple.intoto.jsonl",
	}
	for _, name := range preferred {
		if a, ok := rel.Asset(name); ok {
			return a, true
		}
	}
	for i := range rel.Assets {
		name := rel.Assets[i].Name
		if strings.HasSuffix(name, ".intoto.jsonl") || strings.HasSuffix(name, ".sigstore.json") {
			return &rel.Assets[i], true
		}
	}
	return nil, false
}

// FetchAttestation downloads the provenance attestation of ver together with
// the installer artifact it covers. It implements provenance.Fetcher.
func (c *Client) FetchAttestation(ctx context.Context, ver string) (*provenance.Material, error) {
	rel, err := c.ByVersion(ctx, ver)
	if err != nil {
		return nil, err
	}
	att, ok := attestationAsset(rel)
	if !ok {
		return nil, errs.NotFound("fetching attestation", ver, errors.New("release has no provenance attestation"))
	}

	dir, err := os.MkdirTemp("", "security-controls-provenance-*")
	if err != nil {
		return nil, fmt.Errorf("creating download directory: %w", err)
	}
	m := &provenance.Material{Cleanup: func() { os.RemoveAll(dir) }}

	if m.AttestationPath, err = c.Download(ctx, att, dir); err != nil {
		m.Cleanup()
		return nil, err
	}
	if artifact, ok := rel.Asset(branding.InstallerAsset()); ok {
		if m.ArtifactPath, err = c.Download(ctx, artifact, dir); err != nil {
			m.Cleanup()
			return nil, err
		}
	}
	return m, nil
}
