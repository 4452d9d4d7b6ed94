package descriptor

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/a5c-ai/runner/pkg/constants"
	"github.com/a5c-ai/runner/pkg/githubapi"
	"github.com/a5c-ai/runner/pkg/logger"
	"github.com/a5c-ai/runner/pkg/resources"
)

var inheritLog = logger.New("descriptor:inherit")

// Resolver applies inheritance chains. Each hop may fetch remotely, so
// resolution takes a context and runs at dispatch time only for descriptors
// actually selected for execution.
type Resolver struct {
	loader *resources.Loader
	client githubapi.Client
}

// NewResolver builds a Resolver on top of the shared loader and host client.
func NewResolver(loader *resources.Loader, client githubapi.Client) *Resolver {
	return &Resolver{loader: loader, client: client}
}

// Resolve returns a fully resolved copy of d: the "from" chain applied,
// prompt body loaded, and the result re-validated. d itself is not mutated.
func (r *Resolver) Resolve(ctx context.Context, d *Descriptor) (*Descriptor, error) {
	resolved, err := r.resolve(ctx, d, nil)
	if err != nil {
		return nil, err
	}
	if err := Validate(resolved); err != nil {
		return nil, err
	}
	return resolved, nil
}

func (r *Resolver) resolve(ctx context.Context, d *Descriptor, chain []string) (*Descriptor, error) {
	for _, seen := range chain {
		if seen == d.ID {
			return nil, &CircularInheritanceError{Chain: append(append([]string{}, chain...), d.ID)}
		}
	}
	chain = append(chain, d.ID)
	inheritLog.Printf("Resolving descriptor: id=%s, chain=%v", d.ID, chain)

	body, err := r.loadBody(ctx, d)
	if err != nil {
		return nil, err
	}

	if d.From == "" {
		out, err := FromFrontmatter(d.Frontmatter, body, d.Source)
		if err != nil {
			return nil, err
		}
		out.ID = d.ID
		return out, nil
	}

	baseContent, baseSource, err := r.loadBase(ctx, d)
	if err != nil {
		return nil, err
	}
	base, err := Parse(baseContent, baseSource)
	if err != nil {
		return nil, err
	}
	resolvedBase, err := r.resolve(ctx, base, chain)
	if err != nil {
		return nil, err
	}

	merged := MergeFrontmatter(resolvedBase.Frontmatter, d.Frontmatter)
	merged["id"] = d.ID
	mergedBody := MergeBodies(resolvedBase.PromptBody, body)

	out, err := FromFrontmatter(merged, mergedBody, d.Source)
	if err != nil {
		return nil, err
	}
	inheritLog.Printf("Resolved %s from base %s", d.ID, resolvedBase.ID)
	return out, nil
}

// loadBody returns the effective prompt body: prompt_uri wins when set,
// resolved relative to the descriptor's own source.
func (r *Resolver) loadBody(ctx context.Context, d *Descriptor) (string, error) {
	if d.PromptURI == "" {
		return d.PromptBody, nil
	}
	uri, err := r.loader.ResolveRelative(d.PromptURI, d.Source.String())
	if err != nil {
		return "", fmt.Errorf("descriptor %s: invalid prompt_uri: %w", d.ID, err)
	}
	data, found, err := r.loader.Load(ctx, uri)
	if err != nil {
		return "", fmt.Errorf("descriptor %s: failed to load prompt_uri %s: %w", d.ID, uri, err)
	}
	if !found {
		return "", fmt.Errorf("descriptor %s: prompt_uri %s not found", d.ID, uri)
	}
	return string(data), nil
}

// loadBase resolves the "from" reference to bytes, trying in order: explicit
// URI schemes, filesystem paths, then the conventional bare-identifier
// locations.
func (r *Resolver) loadBase(ctx context.Context, d *Descriptor) (string, Source, error) {
	from := d.From
	inheritLog.Printf("Loading base for %s: from=%s", d.ID, from)

	switch {
	case strings.HasPrefix(from, "a5c://"):
		return r.loadA5CBase(ctx, from)

	case strings.HasPrefix(from, "agent://"):
		id := strings.TrimPrefix(from, "agent://")
		return r.loadConventional(ctx, id, from)

	case strings.HasPrefix(from, "http://"), strings.HasPrefix(from, "https://"), strings.HasPrefix(from, "file://"):
		data, found, err := r.loader.Load(ctx, from)
		if err != nil {
			return "", Source{}, fmt.Errorf("failed to load base %s: %w", from, err)
		}
		if !found {
			return "", Source{}, &BaseNotFoundError{Reference: from}
		}
		return string(data), remoteOrLocalSource(from), nil

	case strings.ContainsAny(from, "/\\") || strings.HasSuffix(from, ".md"):
		// Relative or absolute filesystem path, resolved against the
		// child's own location first, then the working directory.
		candidates := []string{from}
		if d.Source.Kind == SourceLocal && !filepath.IsAbs(from) {
			resolved, err := r.loader.ResolveRelative(from, d.Source.Path)
			if err == nil && resolved != from {
				candidates = append([]string{resolved}, candidates...)
			}
		}
		for _, candidate := range candidates {
			data, found, err := r.loader.Load(ctx, candidate)
			if err != nil {
				return "", Source{}, fmt.Errorf("failed to load base %s: %w", candidate, err)
			}
			if found {
				return string(data), Source{Kind: SourceLocal, Path: candidate}, nil
			}
		}
		return "", Source{}, &BaseNotFoundError{Reference: from}

	default:
		return r.loadConventional(ctx, from, from)
	}
}

// loadConventional searches the fixed list of conventional locations for a
// bare identifier.
func (r *Resolver) loadConventional(ctx context.Context, id, ref string) (string, Source, error) {
	locations := []string{
		filepath.Join(constants.AgentsDir, id+constants.AgentFileSuffix),
		filepath.Join(constants.AgentsDir, "examples", id+constants.AgentFileSuffix),
		id + constants.AgentFileSuffix,
	}
	for _, location := range locations {
		data, found, err := r.loader.Load(ctx, location)
		if err != nil {
			return "", Source{}, fmt.Errorf("failed to load base %s: %w", location, err)
		}
		if found {
			inheritLog.Printf("Found base %s at %s", ref, location)
			return string(data), Source{Kind: SourceLocal, Path: location}, nil
		}
	}
	return "", Source{}, &BaseNotFoundError{Reference: ref}
}

func (r *Resolver) loadA5CBase(ctx context.Context, from string) (string, Source, error) {
	ref, err := ParseA5CRef(from)
	if err != nil {
		return "", Source{}, err
	}
	tag, err := ResolveVersion(ctx, r.client, ref)
	if err != nil {
		return "", Source{}, err
	}
	uri := ref.RawURI(tag)
	data, found, err := r.loader.Load(ctx, uri)
	if err != nil {
		return "", Source{}, fmt.Errorf("failed to fetch %s: %w", uri, err)
	}
	if !found {
		return "", Source{}, &BaseNotFoundError{Reference: from}
	}
	return string(data), Source{Kind: SourceRemote, URI: uri}, nil
}

func remoteOrLocalSource(uri string) Source {
	if strings.HasPrefix(uri, "http://") || strings.HasPrefix(uri, "https://") {
		return Source{Kind: SourceRemote, URI: uri}
	}
	return Source{Kind: SourceLocal, Path: strings.TrimPrefix(uri, "file://")}
}
