package release

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/h4x0r/1-click-github-sec/internal/errs"
)

// ChecksumsAsset is the name of the per-release checksum list.
const ChecksumsAsset = "checksums.txt"

// Download fetches asset into destDir and returns the file path.
func (c *Client) Download(ctx context.Context, asset *Asset, destDir string) (string, error) {
	body, err := c.get(ctx, asset.DownloadURL, "application/octet-stream")
	if err != nil {
		return "", err
	}
	destPath := filepath.Join(destDir, filepath.Base(asset.Name))
	if err := os.WriteFile(destPath, body, 0600); err != nil {
		return "", fmt.Errorf("writing %s: %w", asset.Name, err)
	}
	return destPath, nil
}

// VerifyChecksum downloads checksums.txt from the release and checks the
// downloaded file against it. This only guards the transfer; trust comes
// from the digest registry.
func (c *Client) VerifyChecksum(ctx context.Context, release *Release, path string) error {
	asset, ok := release.Asset(ChecksumsAsset)
	if !ok {
		return errs.NotFound("verifying checksum", path, fmt.Errorf("%s not found in release assets", ChecksumsAsset))
	}
	body, err := c.get(ctx, asset.DownloadURL, "text/plain")
	if err != nil {
		return err
	}

	name := filepath.Base(path)
	expected := ""
	// Each line is "sha256  filename", optionally with a "*" binary marker.
	for _, line := range strings.Split(string(body), "\n") {
		parts := strings.Fields(line)
		if len(parts) == 2 && strings.TrimPrefix(parts[1], "*") == name {
			expected = strings.ToLower(parts[0])
			break
		}
	}
	if expected == "" {
		return errs.NotFound("verifying checksum", name, errors.New("no checksum listed"))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("opening %s for checksum: %w", name, err)
	}
	sum := sha256.Sum256(data)
	if actual := hex.EncodeToString(sum[:]); actual != expected {
		return errs.Network("verifying checksum", name,
			fmt.Errorf("checksum mismatch: expected %s, got %s", expected, actual)).
			WithHint("the download was corrupted; re-run the upgrade")
	}
	return nil
}
