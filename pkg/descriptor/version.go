package descriptor

import (
	"context"
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/a5c-ai/runner/pkg/githubapi"
	"github.com/a5c-ai/runner/pkg/logger"
)

var versionLog = logger.New("descriptor:version")

// A5CRef is a parsed a5c://<org>/<repo>/<path>@<version-range> reference.
type A5CRef struct {
	Org   string
	Repo  string
	Path  string
	Range string
}

// ParseA5CRef parses an a5c:// reference.
func ParseA5CRef(uri string) (*A5CRef, error) {
	rest, ok := strings.CutPrefix(uri, "a5c://")
	if !ok {
		return nil, fmt.Errorf("not an a5c reference: %s", uri)
	}
	spec, rng, ok := strings.Cut(rest, "@")
	if !ok || rng == "" {
		return nil, fmt.Errorf("a5c reference missing @version-range: %s", uri)
	}
	parts := strings.SplitN(spec, "/", 3)
	if len(parts) < 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return nil, fmt.Errorf("a5c reference must be a5c://<org>/<repo>/<path>@<range>: %s", uri)
	}
	return &A5CRef{Org: parts[0], Repo: parts[1], Path: parts[2], Range: rng}, nil
}

// ResolveVersion picks the highest published tag satisfying the reference's
// version range. Tags that are not valid semver are ignored.
func ResolveVersion(ctx context.Context, client githubapi.Client, ref *A5CRef) (string, error) {
	constraint, err := semver.NewConstraint(ref.Range)
	if err != nil {
		return "", fmt.Errorf("invalid version range %q: %w", ref.Range, err)
	}

	tags, err := client.ListTags(ctx, ref.Org, ref.Repo)
	if err != nil {
		return "", fmt.Errorf("failed to list tags for %s/%s: %w", ref.Org, ref.Repo, err)
	}

	var bestTag string
	var bestVersion *semver.Version
	for _, tag := range tags {
		version, err := semver.NewVersion(strings.TrimPrefix(tag.Name, "v"))
		if err != nil {
			versionLog.Printf("Skipping non-semver tag %s on %s/%s", tag.Name, ref.Org, ref.Repo)
			continue
		}
		if !constraint.Check(version) {
			continue
		}
		if bestVersion == nil || version.GreaterThan(bestVersion) {
			bestVersion = version
			bestTag = tag.Name
		}
	}

	if bestTag == "" {
		return "", &NoMatchingVersionError{
			Reference: fmt.Sprintf("a5c://%s/%s/%s", ref.Org, ref.Repo, ref.Path),
			Range:     ref.Range,
		}
	}
	versionLog.Printf("Resolved %s/%s@%s to tag %s", ref.Org, ref.Repo, ref.Range, bestTag)
	return bestTag, nil
}

// RawURI returns the fetch URI for the reference pinned at tag.
func (r *A5CRef) RawURI(tag string) string {
	return fmt.Sprintf("https://raw.githubusercontent.com/%s/%s/%s/%s", r.Org, r.Repo, tag, r.Path)
}
