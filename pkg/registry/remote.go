package registry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/sourcegraph/conc/pool"

	"github.com/a5c-ai/runner/pkg/constants"
	"github.com/a5c-ai/runner/pkg/descriptor"
	"github.com/a5c-ai/runner/pkg/resources"
)

// remoteFetchWorkers bounds concurrent descriptor downloads per repository
// source.
const remoteFetchWorkers = 4

// IndividualSource is a remote source contributing exactly one descriptor.
type IndividualSource struct {
	URI   string `yaml:"uri" json:"uri"`
	Alias string `yaml:"alias,omitempty" json:"alias,omitempty"`
}

// RepositorySource is a remote repository whose tree is enumerated for
// descriptor files.
type RepositorySource struct {
	URI     string `yaml:"uri" json:"uri"`
	Pattern string `yaml:"pattern,omitempty" json:"pattern,omitempty"`
	Branch  string `yaml:"branch,omitempty" json:"branch,omitempty"`
}

// RemoteConfig controls remote descriptor loading.
type RemoteConfig struct {
	Enabled      bool
	CacheTTL     time.Duration
	Individual   []IndividualSource
	Repositories []RepositorySource
}

// LoadRemote registers descriptors from the configured remote sources.
// Per-source failures are logged and skipped so one unreachable source never
// empties the registry.
func (r *Registry) LoadRemote(ctx context.Context, cfg RemoteConfig) error {
	if !cfg.Enabled {
		return nil
	}

	for _, src := range cfg.Individual {
		if err := r.loadIndividual(ctx, src); err != nil {
			log.Printf("Skipping remote source %s: %v", src.URI, err)
		}
	}
	for _, src := range cfg.Repositories {
		if err := r.loadRepository(ctx, src, cfg.CacheTTL); err != nil {
			log.Printf("Skipping repository source %s: %v", src.URI, err)
		}
	}
	return nil
}

func (r *Registry) loadIndividual(ctx context.Context, src IndividualSource) error {
	data, found, err := r.loader.Load(ctx, src.URI)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("not found")
	}

	d, err := descriptor.Parse(string(data), descriptor.Source{Kind: descriptor.SourceRemote, URI: src.URI})
	if err != nil {
		return err
	}
	if src.Alias != "" {
		d.ID = src.Alias
	}
	if err := descriptor.Validate(d); err != nil {
		return err
	}
	return r.Add(d)
}

func (r *Registry) loadRepository(ctx context.Context, src RepositorySource, ttl time.Duration) error {
	owner, repo, err := parseRepoURI(src.URI)
	if err != nil {
		return err
	}
	branch := src.Branch
	if branch == "" {
		branch = "main"
	}

	listing, err := r.listRepository(ctx, owner, repo, branch, src.Pattern, ttl)
	if err != nil {
		if errors.Is(err, resources.ErrRateLimited) {
			log.Printf("Rate limited listing %s/%s@%s; yielding no descriptors", owner, repo, branch)
			return nil
		}
		return err
	}

	// Fetch concurrently but register in listing order so candidate
	// ordering stays deterministic across dispatches.
	results := make([]*descriptor.Descriptor, len(listing.files))
	p := pool.New().WithMaxGoroutines(remoteFetchWorkers)
	for i, file := range listing.files {
		p.Go(func() {
			uri := fmt.Sprintf("https://raw.githubusercontent.com/%s/%s/%s/%s", owner, repo, listing.sha, file)
			data, found, err := r.loader.Load(ctx, uri)
			if err != nil || !found {
				log.Printf("Skipping %s: found=%v, err=%v", uri, found, err)
				return
			}
			d, err := descriptor.Parse(string(data), descriptor.Source{Kind: descriptor.SourceRemote, URI: uri})
			if err != nil {
				log.Printf("Skipping %s: %v", uri, err)
				return
			}
			if err := descriptor.Validate(d); err != nil {
				log.Printf("Skipping %s: %v", uri, err)
				return
			}
			results[i] = d
		})
	}
	p.Wait()

	var added int
	for _, d := range results {
		if d == nil {
			continue
		}
		if err := r.Add(d); err != nil {
			log.Printf("Skipping %s: %v", d.Source, err)
			continue
		}
		added++
	}
	log.Printf("Repository source %s/%s@%s contributed %d descriptors", owner, repo, branch, added)
	return nil
}

// repoListing is a cached enumeration of one repository branch.
type repoListing struct {
	sha   string
	files []string
}

type listingCache struct {
	mu      sync.Mutex
	entries map[string]listingEntry
	now     func() time.Time
}

type listingEntry struct {
	listing *repoListing
	expires time.Time
}

func newListingCache() *listingCache {
	return &listingCache{entries: make(map[string]listingEntry), now: time.Now}
}

func (c *listingCache) get(key string) (*repoListing, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[key]
	if !ok || c.now().After(entry.expires) {
		return nil, false
	}
	return entry.listing, true
}

func (c *listingCache) set(key string, listing *repoListing, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = listingEntry{listing: listing, expires: c.now().Add(ttl)}
}

// listRepository resolves the branch SHA, walks the tree, and filters blobs
// to descriptor files, caching per owner/repo/branch.
func (r *Registry) listRepository(ctx context.Context, owner, repo, branch, pattern string, ttl time.Duration) (*repoListing, error) {
	key := fmt.Sprintf("%s/%s@%s", owner, repo, branch)
	if cached, ok := r.listings.get(key); ok {
		log.Printf("Listing cache hit: %s", key)
		return cached, nil
	}

	sha, err := r.client.GetRefSHA(ctx, owner, repo, branch)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", key, err)
	}
	tree, err := r.client.GetTreeRecursive(ctx, owner, repo, sha)
	if err != nil {
		return nil, fmt.Errorf("failed to list tree %s@%s: %w", key, sha, err)
	}

	var files []string
	for _, entry := range tree {
		if entry.Type != "blob" || !strings.HasSuffix(entry.Path, constants.AgentFileSuffix) {
			continue
		}
		if pattern != "" {
			ok, err := doublestar.Match(pattern, entry.Path)
			if err != nil {
				return nil, fmt.Errorf("invalid source pattern %q: %w", pattern, err)
			}
			if !ok {
				continue
			}
		}
		files = append(files, entry.Path)
	}

	listing := &repoListing{sha: sha, files: files}
	if ttl <= 0 {
		ttl = constants.RemoteCacheTTL
	}
	r.listings.set(key, listing, ttl)
	return listing, nil
}

// parseRepoURI accepts "owner/repo", "github.com/owner/repo" and full
// https:// repository URLs.
func parseRepoURI(uri string) (owner, repo string, err error) {
	trimmed := uri
	for _, prefix := range []string{"https://", "http://"} {
		trimmed = strings.TrimPrefix(trimmed, prefix)
	}
	trimmed = strings.TrimPrefix(trimmed, "github.com/")
	trimmed = strings.TrimSuffix(strings.TrimSuffix(trimmed, "/"), ".git")

	parts := strings.Split(trimmed, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("repository source must name owner/repo: %s", uri)
	}
	return parts[0], parts[1], nil
}
