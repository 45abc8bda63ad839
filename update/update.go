// Package update keeps the running binary current. A version marker is
// fetched from a fixed URL and compared byte-for-byte against the local
// version; any difference means the published build is not the one
// running, so a fresh copy is downloaded and the caller re-executes it.
package update

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

const (
	versionFetchTimeout = 15 * time.Second
	downloadTimeout     = 2 * time.Minute
	binaryName          = "dns-wizard"

	maxBinarySize = int64(64 << 20)
)

type Options struct {
	// Version is the running build's version string.
	Version string
	// VersionURL serves the published version marker as plain text.
	VersionURL string
	// BinaryURL serves the replacement executable.
	BinaryURL string
	// CacheDir receives the downloaded copy; created 0700 if absent.
	CacheDir string
	// Args are passed through to the relaunched copy.
	Args []string
}

// Outcome tells the caller what to do next. A set CheckErr means the
// version marker could not be fetched; that is a warning, not a failure,
// and the caller proceeds on the current build. Relaunch means a newer
// copy was downloaded to Path and the caller must hand control to it
// with Args and perform no further work itself.
type Outcome struct {
	Relaunch bool
	Path     string
	Args     []string
	CheckErr error
}

// Check fetches the remote version marker and, on mismatch, downloads
// the replacement binary. A failed download is fatal: running a stale
// copy after the marker said otherwise is worse than not running.
// The relaunched copy repeats this check and sees equal versions, so no
// loop guard is needed here.
func Check(ctx context.Context, opts Options) (Outcome, error) {
	remote, err := fetchVersion(ctx, opts.VersionURL)
	if err != nil {
		return Outcome{CheckErr: err}, nil
	}
	if remote == opts.Version {
		return Outcome{}, nil
	}

	path, err := download(ctx, opts.BinaryURL, opts.CacheDir)
	if err != nil {
		return Outcome{}, fmt.Errorf("download update %s: %w", remote, err)
	}
	return Outcome{Relaunch: true, Path: path, Args: opts.Args}, nil
}

func fetchVersion(ctx context.Context, url string) (string, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := newHTTPClient(versionFetchTimeout).Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("version check http %d", resp.StatusCode)
	}
	b, err := io.ReadAll(io.LimitReader(resp.Body, 1<<10))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func download(ctx context.Context, url, dir string) (string, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := newHTTPClient(downloadTimeout).Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("binary fetch http %d", resp.StatusCode)
	}
	b, err := io.ReadAll(io.LimitReader(resp.Body, maxBinarySize))
	if err != nil {
		return "", err
	}
	if len(b) == 0 {
		return "", errors.New("binary fetch returned an empty body")
	}

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", err
	}
	path := filepath.Join(dir, binaryName)
	if err := os.WriteFile(path, b, 0o700); err != nil {
		return "", err
	}
	return path, nil
}

func newHTTPClient(timeout time.Duration) *retryablehttp.Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 0
	rc.Logger = nil
	rc.HTTPClient.Timeout = timeout
	return rc
}
