// Package registry holds the descriptors known to a dispatch: the local
// directory scan plus any configured remote sources. Inheritance resolution
// is deferred until a descriptor is actually selected to run, so listing a
// remote source never fans out into per-descriptor fetches.
package registry

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"sync"

	"github.com/a5c-ai/runner/pkg/descriptor"
	"github.com/a5c-ai/runner/pkg/githubapi"
	"github.com/a5c-ai/runner/pkg/logger"
	"github.com/a5c-ai/runner/pkg/resources"
)

var log = logger.New("registry:registry")

// Summary is the reduced descriptor view exposed to peers through agent
// discovery. It deliberately omits execution fields.
type Summary struct {
	ID                string   `json:"id"`
	Name              string   `json:"name"`
	Category          string   `json:"category,omitempty"`
	Description       string   `json:"description,omitempty"`
	UsageContext      string   `json:"usage_context,omitempty"`
	InvocationContext string   `json:"invocation_context,omitempty"`
	Mentions          []string `json:"mentions,omitempty"`
	Events            []string `json:"events,omitempty"`
	Labels            []string `json:"labels,omitempty"`
	Paths             []string `json:"paths,omitempty"`
}

// Registry is the process-local descriptor store for one dispatch.
type Registry struct {
	loader   *resources.Loader
	client   githubapi.Client
	resolver *descriptor.Resolver

	mu       sync.Mutex
	entries  map[string]*descriptor.Descriptor
	order    []string
	resolved map[string]*descriptor.Descriptor
	listings *listingCache
}

// New builds an empty registry sharing the dispatch's loader and host client.
func New(loader *resources.Loader, client githubapi.Client) *Registry {
	return &Registry{
		loader:   loader,
		client:   client,
		resolver: descriptor.NewResolver(loader, client),
		entries:  make(map[string]*descriptor.Descriptor),
		resolved: make(map[string]*descriptor.Descriptor),
		listings: newListingCache(),
	}
}

// Add registers an unresolved descriptor. Duplicate ids are rejected.
func (r *Registry) Add(d *descriptor.Descriptor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.entries[d.ID]; ok {
		return fmt.Errorf("duplicate descriptor id %q (%s and %s)", d.ID, existing.Source, d.Source)
	}
	r.entries[d.ID] = d
	r.order = append(r.order, d.ID)
	return nil
}

// All returns every registered descriptor in insertion order.
func (r *Registry) All() []*descriptor.Descriptor {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*descriptor.Descriptor, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.entries[id])
	}
	return out
}

// Get returns the unresolved descriptor with the given id.
func (r *Registry) Get(id string) (*descriptor.Descriptor, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.entries[id]
	return d, ok
}

// Len returns the number of registered descriptors.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.order)
}

// ResolveForRun applies the inheritance chain for the descriptor with the
// given id, memoizing the result for the rest of the dispatch.
func (r *Registry) ResolveForRun(ctx context.Context, id string) (*descriptor.Descriptor, error) {
	r.mu.Lock()
	if cached, ok := r.resolved[id]; ok {
		r.mu.Unlock()
		return cached, nil
	}
	d, ok := r.entries[id]
	r.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("descriptor not found: %s", id)
	}

	resolved, err := r.resolver.Resolve(ctx, d)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve descriptor %s: %w", id, err)
	}

	r.mu.Lock()
	r.resolved[id] = resolved
	r.mu.Unlock()
	return resolved, nil
}

// Discover returns up to max_in_context peer summaries for the given
// descriptor, per its agent_discovery settings: same-directory / same-category
// peers first, then the explicitly named external ids, self excluded.
func (r *Registry) Discover(current *descriptor.Descriptor) []Summary {
	if !current.Discovery.Enabled {
		return nil
	}

	seen := map[string]bool{current.ID: true}
	var peers []*descriptor.Descriptor

	if current.Discovery.IncludeSameDirectory {
		for _, d := range r.All() {
			if seen[d.ID] {
				continue
			}
			if samePeerGroup(current, d) {
				seen[d.ID] = true
				peers = append(peers, d)
			}
		}
	}
	for _, id := range current.Discovery.IncludeExternal {
		if seen[id] {
			continue
		}
		if d, ok := r.Get(id); ok {
			seen[id] = true
			peers = append(peers, d)
		}
	}

	limit := current.Discovery.MaxInContext
	if limit > 0 && len(peers) > limit {
		peers = peers[:limit]
	}

	summaries := make([]Summary, 0, len(peers))
	for _, d := range peers {
		summaries = append(summaries, Summary{
			ID:                d.ID,
			Name:              d.Name,
			Category:          d.Category,
			Description:       d.Description,
			UsageContext:      d.UsageContext,
			InvocationContext: d.InvocationContext,
			Mentions:          d.Mentions,
			Events:            d.Events,
			Labels:            d.Labels,
			Paths:             d.Paths,
		})
	}
	return summaries
}

func samePeerGroup(a, b *descriptor.Descriptor) bool {
	if a.Category != "" && a.Category == b.Category {
		return true
	}
	return sourceDir(a.Source) == sourceDir(b.Source) && sourceDir(a.Source) != ""
}

func sourceDir(s descriptor.Source) string {
	if s.Kind == descriptor.SourceLocal {
		return filepath.Dir(s.Path)
	}
	return path.Dir(s.URI)
}
