package registry

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/a5c-ai/runner/pkg/descriptor"
	"github.com/a5c-ai/runner/pkg/githubapi"
	"github.com/a5c-ai/runner/pkg/resources"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) { return f(req) }

func cannedTransport(bodies map[string]string) http.RoundTripper {
	return roundTripFunc(func(req *http.Request) (*http.Response, error) {
		body, ok := bodies[req.URL.String()]
		status := http.StatusOK
		if !ok {
			status = http.StatusNotFound
		}
		return &http.Response{
			StatusCode: status,
			Body:       io.NopCloser(strings.NewReader(body)),
			Header:     make(http.Header),
			Request:    req,
		}, nil
	})
}

func writeDescriptor(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func newTestRegistry(t *testing.T, root string, client githubapi.Client, transport http.RoundTripper) *Registry {
	t.Helper()
	opts := resources.Options{WorkingDir: root}
	if transport != nil {
		opts.HTTPClient = &http.Client{Transport: transport}
	}
	if client == nil {
		client = githubapi.NewFake()
	}
	return New(resources.NewLoader(opts), client)
}

func TestLoadLocalScansAndSkips(t *testing.T) {
	root := t.TempDir()
	writeDescriptor(t, root, ".a5c/agents/reviewer.agent.md", "---\nname: reviewer\nevents: [pull_request]\n---\nReview.")
	writeDescriptor(t, root, ".a5c/agents/nested/fixer.agent.md", "---\nname: fixer\nevents: [push]\n---\nFix.")
	writeDescriptor(t, root, ".a5c/agents/broken.agent.md", "no frontmatter at all")
	writeDescriptor(t, root, ".a5c/agents/invalid.agent.md", "---\nname: \"bad name!\"\n---\nbody")
	writeDescriptor(t, root, ".a5c/agents/notes.md", "ignored, wrong suffix")

	r := newTestRegistry(t, root, nil, nil)
	require.NoError(t, r.LoadLocal(".a5c/agents"))

	assert.Equal(t, 2, r.Len())
	_, ok := r.Get("reviewer")
	assert.True(t, ok)
	_, ok = r.Get("fixer")
	assert.True(t, ok)
	_, ok = r.Get("broken")
	assert.False(t, ok)
}

func TestLoadLocalMissingDirectory(t *testing.T) {
	r := newTestRegistry(t, t.TempDir(), nil, nil)
	assert.NoError(t, r.LoadLocal(".a5c/agents"))
	assert.Equal(t, 0, r.Len())
}

func TestAddRejectsDuplicateIDs(t *testing.T) {
	r := newTestRegistry(t, t.TempDir(), nil, nil)

	first := &descriptor.Descriptor{ID: "reviewer", Source: descriptor.Source{Kind: descriptor.SourceLocal, Path: "a.agent.md"}}
	second := &descriptor.Descriptor{ID: "reviewer", Source: descriptor.Source{Kind: descriptor.SourceLocal, Path: "b.agent.md"}}

	require.NoError(t, r.Add(first))
	assert.Error(t, r.Add(second))
	assert.Equal(t, 1, r.Len())
}

func TestAllPreservesInsertionOrder(t *testing.T) {
	r := newTestRegistry(t, t.TempDir(), nil, nil)
	for _, id := range []string{"c-agent", "a-agent", "b-agent"} {
		require.NoError(t, r.Add(&descriptor.Descriptor{ID: id}))
	}

	var ids []string
	for _, d := range r.All() {
		ids = append(ids, d.ID)
	}
	assert.Equal(t, []string{"c-agent", "a-agent", "b-agent"}, ids)
}

func TestResolveForRunIsLazyAndMemoized(t *testing.T) {
	root := t.TempDir()
	writeDescriptor(t, root, ".a5c/agents/base-agent.agent.md", "---\nname: base-agent\npriority: 10\n---\nBASE")
	writeDescriptor(t, root, ".a5c/agents/child-agent.agent.md", "---\nname: child-agent\nfrom: base-agent\npriority: 90\n---\n{{base-prompt}} CHILD")

	r := newTestRegistry(t, root, nil, nil)
	require.NoError(t, r.LoadLocal(".a5c/agents"))

	unresolved, ok := r.Get("child-agent")
	require.True(t, ok)
	assert.Equal(t, "base-agent", unresolved.From)

	first, err := r.ResolveForRun(context.Background(), "child-agent")
	require.NoError(t, err)
	assert.Empty(t, first.From)
	assert.Equal(t, 90, first.Priority)
	assert.Equal(t, "BASE CHILD", first.PromptBody)

	second, err := r.ResolveForRun(context.Background(), "child-agent")
	require.NoError(t, err)
	assert.Same(t, first, second)

	_, err = r.ResolveForRun(context.Background(), "missing")
	assert.Error(t, err)
}

func TestLoadRemoteIndividualSources(t *testing.T) {
	uri := "https://raw.githubusercontent.com/org/shared/main/reviewer.agent.md"
	transport := cannedTransport(map[string]string{
		uri: "---\nname: reviewer\nevents: [pull_request]\n---\nReview remotely.",
	})
	r := newTestRegistry(t, t.TempDir(), nil, transport)

	cfg := RemoteConfig{
		Enabled: true,
		Individual: []IndividualSource{
			{URI: uri, Alias: "remote-reviewer"},
			{URI: "https://raw.githubusercontent.com/org/shared/main/missing.agent.md"},
		},
	}
	require.NoError(t, r.LoadRemote(context.Background(), cfg))

	d, ok := r.Get("remote-reviewer")
	require.True(t, ok)
	assert.Equal(t, descriptor.SourceRemote, d.Source.Kind)
	assert.Equal(t, 1, r.Len())
}

func TestLoadRemoteDisabled(t *testing.T) {
	r := newTestRegistry(t, t.TempDir(), nil, nil)
	cfg := RemoteConfig{Individual: []IndividualSource{{URI: "https://raw.githubusercontent.com/o/r/m/x.agent.md"}}}
	require.NoError(t, r.LoadRemote(context.Background(), cfg))
	assert.Equal(t, 0, r.Len())
}

func TestLoadRemoteRepositorySource(t *testing.T) {
	fake := githubapi.NewFake()
	fake.RefSHAs["org/agents@main"] = "abc123"
	fake.Trees["org/agents@abc123"] = []githubapi.TreeEntry{
		{Path: "agents/reviewer.agent.md", Type: "blob"},
		{Path: "agents/fixer.agent.md", Type: "blob"},
		{Path: "docs/skip.agent.md", Type: "blob"},
		{Path: "agents", Type: "tree"},
		{Path: "README.md", Type: "blob"},
	}
	transport := cannedTransport(map[string]string{
		"https://raw.githubusercontent.com/org/agents/abc123/agents/reviewer.agent.md": "---\nname: reviewer\n---\nR",
		"https://raw.githubusercontent.com/org/agents/abc123/agents/fixer.agent.md":    "---\nname: fixer\n---\nF",
	})
	r := newTestRegistry(t, t.TempDir(), fake, transport)

	cfg := RemoteConfig{
		Enabled: true,
		Repositories: []RepositorySource{
			{URI: "https://github.com/org/agents", Pattern: "agents/**"},
		},
	}
	require.NoError(t, r.LoadRemote(context.Background(), cfg))

	assert.Equal(t, 2, r.Len())
	var ids []string
	for _, d := range r.All() {
		ids = append(ids, d.ID)
	}
	assert.Equal(t, []string{"reviewer", "fixer"}, ids)

	// Second load within the TTL reuses the cached listing.
	require.NoError(t, r.LoadRemote(context.Background(), RemoteConfig{Enabled: true, Repositories: cfg.Repositories, CacheTTL: time.Minute}))
	assert.Equal(t, 1, fake.CallCount("ref:org/agents@main"))
	assert.Equal(t, 1, fake.CallCount("tree:org/agents@abc123"))
}

func TestParseRepoURI(t *testing.T) {
	tests := []struct {
		uri       string
		owner     string
		repo      string
		expectErr bool
	}{
		{"org/agents", "org", "agents", false},
		{"github.com/org/agents", "org", "agents", false},
		{"https://github.com/org/agents", "org", "agents", false},
		{"https://github.com/org/agents.git", "org", "agents", false},
		{"just-a-name", "", "", true},
		{"a/b/c", "", "", true},
	}
	for _, tt := range tests {
		owner, repo, err := parseRepoURI(tt.uri)
		if tt.expectErr {
			assert.Error(t, err, tt.uri)
			continue
		}
		require.NoError(t, err, tt.uri)
		assert.Equal(t, tt.owner, owner)
		assert.Equal(t, tt.repo, repo)
	}
}

func TestDiscover(t *testing.T) {
	r := newTestRegistry(t, t.TempDir(), nil, nil)
	add := func(id, category, dir string, discovery descriptor.AgentDiscovery) *descriptor.Descriptor {
		d := &descriptor.Descriptor{
			ID:        id,
			Name:      id,
			Category:  category,
			Source:    descriptor.Source{Kind: descriptor.SourceLocal, Path: filepath.Join(dir, id+".agent.md")},
			Discovery: discovery,
		}
		require.NoError(t, r.Add(d))
		return d
	}

	current := add("current", "review", ".a5c/agents", descriptor.AgentDiscovery{
		Enabled:              true,
		IncludeSameDirectory: true,
		IncludeExternal:      []string{"external-agent", "absent-agent"},
		MaxInContext:         3,
	})
	add("peer-category", "review", "elsewhere", descriptor.AgentDiscovery{})
	add("peer-dir", "other", ".a5c/agents", descriptor.AgentDiscovery{})
	add("external-agent", "infra", "infra", descriptor.AgentDiscovery{})
	add("unrelated", "infra", "infra", descriptor.AgentDiscovery{})

	summaries := r.Discover(current)
	var ids []string
	for _, s := range summaries {
		ids = append(ids, s.ID)
	}
	assert.Equal(t, []string{"peer-category", "peer-dir", "external-agent"}, ids)
}

func TestDiscoverDisabled(t *testing.T) {
	r := newTestRegistry(t, t.TempDir(), nil, nil)
	d := &descriptor.Descriptor{ID: "solo"}
	require.NoError(t, r.Add(d))
	assert.Nil(t, r.Discover(d))
}

func TestDiscoverCapsAtMaxInContext(t *testing.T) {
	r := newTestRegistry(t, t.TempDir(), nil, nil)
	current := &descriptor.Descriptor{
		ID:       "current",
		Category: "review",
		Discovery: descriptor.AgentDiscovery{
			Enabled:              true,
			IncludeSameDirectory: true,
			MaxInContext:         2,
		},
	}
	require.NoError(t, r.Add(current))
	for i := 0; i < 5; i++ {
		require.NoError(t, r.Add(&descriptor.Descriptor{
			ID:       fmt.Sprintf("peer-%d", i),
			Category: "review",
		}))
	}
	assert.Len(t, r.Discover(current), 2)
}
