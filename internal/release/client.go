package release

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/h4x0r/1-click-github-sec/internal/branding"
	"github.com/h4x0r/1-click-github-sec/internal/errs"
	"github.com/h4x0r/1-click-github-sec/internal/logging"
	"github.com/h4x0r/1-click-github-sec/internal/version"
	"go.uber.org/zap"
)

const (
	githubAPIBase = "https://api.github.com"
	maxBodySize   = 256 << 20
)

// Release represents a GitHub release.
type Release struct {
	TagName   string    `json:"tag_name"`
	Assets    []Asset   `json:"assets"`
	Published time.Time `json:"published_at"`
	HTMLURL   string    `json:"html_url"`
}

// Version returns the release version without the "v" prefix.
func (r *Release) Version() string {
	return version.Normalize(r.TagName)
}

// Asset returns the asset with the given name.
func (r *Release) Asset(name string) (*Asset, bool) {
	for i := range r.Assets {
		if r.Assets[i].Name == name {
			return &r.Assets[i], true
		}
	}
	return nil, false
}

// Asset represents a downloadable file attached to a release.
type Asset struct {
	Name        string `json:"name"`
	DownloadURL string `json:"browser_download_url"`
	Size        int64  `json:"size"`
	ContentType string `json:"content_type"`
}

// Client talks to the GitHub Releases API.
type Client struct {
	httpClient *http.Client
	apiBase    string
	repo       string
	mirror     string
	token      string
	timeout    time.Duration
	retries    int
	logger     *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client (useful for testing).
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.httpClient = c }
}

// WithMirror sets a mirror URL for downloading release assets.
func WithMirror(mirror string) Option {
	return func(cl *Client) { cl.mirror = mirror }
}

// WithAPIBase points the client at another GitHub API endpoint.
func WithAPIBase(base string) Option {
	return func(cl *Client) { cl.apiBase = strings.TrimRight(base, "/") }
}

// WithRepo sets the owner/name repository.
func WithRepo(repo string) Option {
	return func(cl *Client) { cl.repo = repo }
}

// WithToken sets the GitHub token. Defaults to $GITHUB_TOKEN.
func WithToken(token string) Option {
	return func(cl *Client) { cl.token = token }
}

// WithTimeout bounds each request attempt.
func WithTimeout(d time.Duration) Option {
	return func(cl *Client) { cl.timeout = d }
}

// WithRetries sets how many times a failed request is retried.
func WithRetries(n int) Option {
	return func(cl *Client) { cl.retries = n }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(cl *Client) { cl.logger = l }
}

// New creates a Client with the given options.
func New(opts ...Option) *Client {
	c := &Client{
		httpClient: http.DefaultClient,
		apiBase:    githubAPIBase,
		repo:       branding.GitHubRepo(),
		token:      os.Getenv("GITHUB_TOKEN"),
		timeout:    20 * time.Second,
		retries:    1,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = logging.OrNop(c.logger)
	return c
}

// Latest fetches the latest release.
func (c *Client) Latest(ctx context.Context) (*Release, error) {
	url := fmt.Sprintf("%s/repos/%s/releases/latest", c.apiBase, c.repo)
	return c.fetchRelease(ctx, url)
}

// ByVersion fetches the release tagged with ver.
func (c *Client) ByVersion(ctx context.Context, ver string) (*Release, error) {
	url := fmt.Sprintf("%s/repos/%s/releases/tags/%s", c.apiBase, c.repo, version.Tag(ver))
	return c.fetchRelease(ctx, url)
}

func (c *Client) fetchRelease(ctx context.Context, url string) (*Release, error) {
	body, err := c.get(ctx, url, "application/vnd.github+json")
	if err != nil {
		return nil, err
	}

	var release Release
	if err := json.Unmarshal(body, &release); err != nil {
		return nil, errs.Network("parsing release", url, err)
	}

	// If a mirror is configured, rewrite asset download URLs.
	if c.mirror != "" {
		base := strings.TrimRight(c.mirror, "/") + "/" + release.TagName + "/"
		for i := range release.Assets {
			release.Assets[i].DownloadURL = base + release.Assets[i].Name
		}
	}
	return &release, nil
}

// get performs a GET with a per-attempt timeout, retrying transport
// failures and 5xx responses.
func (c *Client) get(ctx context.Context, url, accept string) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			c.logger.Debug("retrying request", zap.String("url", url), zap.Int("attempt", attempt+1), zap.Error(lastErr))
		}
		body, retry, err := c.getOnce(ctx, url, accept)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if !retry || ctx.Err() != nil {
			break
		}
	}
	return nil, lastErr
}

func (c *Client) getOnce(ctx context.Context, url, accept string) ([]byte, bool, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return nil, false, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", accept)
	req.Header.Set("User-Agent", branding.CLIName()+"-upgrader")
	if c.token != "" && strings.HasPrefix(url, c.apiBase) {
		req.Header.Set("Authorization", "token "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return nil, false, ctx.Err()
		}
		return nil, true, errs.Network("downloading", url, err).
			WithHint("check your network connection or configure a mirror")
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, false, errs.NotFound("downloading", url, errors.New("not found"))
	case resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusTooManyRequests:
		return nil, false, errs.Network("downloading", url, fmt.Errorf("status %d", resp.StatusCode)).
			WithHint("GitHub API rate limit exceeded; set GITHUB_TOKEN for higher limits")
	case resp.StatusCode >= 500:
		return nil, true, errs.Network("downloading", url, fmt.Errorf("server returned status %d", resp.StatusCode))
	case resp.StatusCode != http.StatusOK:
		return nil, false, errs.Network("downloading", url, fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, true, errs.Network("reading", url, err)
	}
	return body, false, nil
}
