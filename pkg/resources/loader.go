// Package resources fetches descriptor and template bytes from local paths,
// file:// URIs and http(s) URIs, with TTL caching, fixed-delay retries, a
// host allow-list and a path-traversal guard. All remote access in the
// dispatcher funnels through a Loader so the security policy is applied in
// exactly one place.
package resources

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/a5c-ai/runner/pkg/constants"
	"github.com/a5c-ai/runner/pkg/logger"
)

var loaderLog = logger.New("resources:loader")

// Options configures a Loader. Zero values fall back to the package
// defaults in constants.
type Options struct {
	// WorkingDir is the directory local paths must resolve inside.
	WorkingDir string
	// AllowedHosts overrides the default remote host allow-list.
	AllowedHosts []string
	// CacheTTL bounds cached entries; zero uses the default, negative
	// disables caching.
	CacheTTL time.Duration
	// RetryAttempts is the total number of fetch attempts.
	RetryAttempts int
	// RetryDelay is the fixed delay between attempts.
	RetryDelay time.Duration
	// RequestTimeout bounds a single HTTP request.
	RequestTimeout time.Duration
	// GitHubToken, when set, is attached to requests against GitHub hosts.
	GitHubToken string
	// HTTPClient overrides the transport, mainly for tests.
	HTTPClient *http.Client
}

// Loader implements the resource-loading layer (C1).
type Loader struct {
	opts    Options
	cache   *Cache
	limiter *HostLimiter
	client  *http.Client
	sleep   func(time.Duration)
}

// NewLoader builds a Loader with a fresh cache and host limiter.
func NewLoader(opts Options) *Loader {
	if len(opts.AllowedHosts) == 0 {
		opts.AllowedHosts = constants.DefaultAllowedHosts
	}
	if opts.CacheTTL == 0 {
		opts.CacheTTL = constants.DefaultCacheTTL
	}
	if opts.RetryAttempts <= 0 {
		opts.RetryAttempts = constants.DefaultRetryAttempts
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = constants.DefaultRetryDelay
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = constants.DefaultRequestTimeout
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: opts.RequestTimeout}
	}
	return &Loader{
		opts:    opts,
		cache:   NewCache(opts.CacheTTL),
		limiter: NewHostLimiter(),
		client:  client,
		sleep:   time.Sleep,
	}
}

// WorkingDir returns the configured working directory.
func (l *Loader) WorkingDir() string {
	return l.opts.WorkingDir
}

// Load fetches the resource at uri. The second return value is false when
// the resource is absent (HTTP 404 or missing local file); absence is not an
// error and is never cached.
func (l *Loader) Load(ctx context.Context, uri string) ([]byte, bool, error) {
	loaderLog.Printf("Loading resource: %s", uri)

	switch {
	case strings.HasPrefix(uri, "http://"), strings.HasPrefix(uri, "https://"):
		return l.loadHTTP(ctx, uri)
	case strings.HasPrefix(uri, "file://"):
		return l.loadFile(strings.TrimPrefix(uri, "file://"))
	default:
		return l.loadFile(uri)
	}
}

// ResolveRelative resolves ref against base: absolute URIs and absolute
// paths pass through, http(s) bases use URL reference resolution, and
// filesystem bases join against the base's directory.
func (l *Loader) ResolveRelative(ref, base string) (string, error) {
	if ref == "" {
		return "", fmt.Errorf("empty reference")
	}
	if strings.Contains(ref, "://") || filepath.IsAbs(ref) {
		return ref, nil
	}
	if strings.HasPrefix(base, "http://") || strings.HasPrefix(base, "https://") {
		baseURL, err := url.Parse(base)
		if err != nil {
			return "", fmt.Errorf("invalid base URI %q: %w", base, err)
		}
		refURL, err := url.Parse(ref)
		if err != nil {
			return "", fmt.Errorf("invalid reference %q: %w", ref, err)
		}
		return baseURL.ResolveReference(refURL).String(), nil
	}
	baseDir := base
	if base != "" && !strings.HasSuffix(base, string(filepath.Separator)) {
		baseDir = filepath.Dir(strings.TrimPrefix(base, "file://"))
	}
	return filepath.Join(baseDir, ref), nil
}

func (l *Loader) loadFile(path string) ([]byte, bool, error) {
	resolved, err := CheckLocalPath(path, l.opts.WorkingDir)
	if err != nil {
		return nil, false, err
	}
	data, err := os.ReadFile(resolved)
	if err != nil {
		if os.IsNotExist(err) {
			loaderLog.Printf("Local file absent: %s", resolved)
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to read %s: %w", resolved, err)
	}
	loaderLog.Printf("Loaded local file: path=%s, size=%d bytes", resolved, len(data))
	return data, true, nil
}

func (l *Loader) loadHTTP(ctx context.Context, uri string) ([]byte, bool, error) {
	parsed, err := url.Parse(uri)
	if err != nil {
		return nil, false, fmt.Errorf("invalid URI %q: %w", uri, err)
	}
	if err := CheckHost(parsed.Host, l.opts.AllowedHosts); err != nil {
		return nil, false, err
	}

	if data, ok := l.cache.Get(uri); ok {
		loaderLog.Printf("Cache hit: %s", uri)
		return data, true, nil
	}

	var lastErr error
	for attempt := 1; attempt <= l.opts.RetryAttempts; attempt++ {
		if attempt > 1 {
			l.sleep(l.opts.RetryDelay)
		}
		if err := l.limiter.Allow(parsed.Hostname()); err != nil {
			return nil, false, err
		}

		data, found, err := l.doRequest(ctx, uri, parsed)
		if err == nil {
			if !found {
				// 404 surfaces as absent and is never cached or retried.
				return nil, false, nil
			}
			l.cache.Set(uri, data)
			return data, true, nil
		}
		lastErr = err
		loaderLog.Printf("Fetch attempt %d/%d failed for %s: %v", attempt, l.opts.RetryAttempts, uri, err)
		if ctx.Err() != nil {
			lastErr = ctx.Err()
			break
		}
	}
	return nil, false, &FetchError{URI: uri, Attempts: l.opts.RetryAttempts, Err: lastErr}
}

func (l *Loader) doRequest(ctx context.Context, uri string, parsed *url.URL) (data []byte, found bool, err error) {
	ctx, cancel := context.WithTimeout(ctx, l.opts.RequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, false, fmt.Errorf("failed to build request for %s: %w", uri, err)
	}
	req.Header.Set("Accept", "text/plain, text/markdown, application/json, */*")
	if l.opts.GitHubToken != "" && isGitHubHost(parsed.Hostname()) {
		req.Header.Set("Authorization", "token "+l.opts.GitHubToken)
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, false, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		loaderLog.Printf("Resource absent (404): %s", uri)
		return nil, false, nil
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, false, fmt.Errorf("failed to read response body: %w", err)
		}
		loaderLog.Printf("Fetched resource: uri=%s, status=%d, size=%d bytes", uri, resp.StatusCode, len(body))
		return body, true, nil
	default:
		return nil, false, &HTTPStatusError{Code: resp.StatusCode, URI: uri}
	}
}

func isGitHubHost(host string) bool {
	host = strings.ToLower(host)
	return host == "github.com" || host == "api.github.com" ||
		host == "raw.githubusercontent.com" || strings.HasSuffix(host, ".github.com")
}
