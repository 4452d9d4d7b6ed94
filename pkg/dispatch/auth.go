package dispatch

import (
	"context"
	"errors"
	"slices"

	"github.com/a5c-ai/runner/pkg/descriptor"
	"github.com/a5c-ai/runner/pkg/trigger"
)

// ErrUnauthorized marks a candidate whose triggering actor is not in the
// effective whitelist.
var ErrUnauthorized = errors.New("actor not authorized to trigger agent")

// authorizer applies the user-authorization filter, memoizing host-API
// lookups for the lifetime of one dispatch.
type authorizer struct {
	d          *Dispatcher
	repoAccess map[string]bool
	loaded     bool
}

func newAuthorizer(d *Dispatcher) *authorizer {
	return &authorizer{d: d}
}

// allowed reports whether the event actor may trigger the descriptor: the
// descriptor's whitelist, else the global default whitelist, else the repo's
// collaborators (merged with org members when the owner is an organization).
func (a *authorizer) allowed(ctx context.Context, desc *descriptor.Descriptor, ev *trigger.EventContext) bool {
	if ev.Actor == "" {
		return true
	}

	whitelist := desc.UserWhitelist
	if len(whitelist) == 0 {
		whitelist = a.d.cfg.Defaults.UserWhitelist
	}
	if len(whitelist) > 0 {
		return slices.Contains(whitelist, ev.Actor)
	}

	a.loadRepoAccess(ctx, ev)
	return a.repoAccess[ev.Actor]
}

func (a *authorizer) loadRepoAccess(ctx context.Context, ev *trigger.EventContext) {
	if a.loaded {
		return
	}
	a.loaded = true
	a.repoAccess = make(map[string]bool)

	owner, repo := ev.OwnerRepo()
	if owner == "" || repo == "" {
		return
	}

	collaborators, err := a.d.client.ListCollaborators(ctx, owner, repo)
	if err != nil {
		log.Printf("Failed to list collaborators for %s: %v", ev.RepoFullName, err)
	}
	for _, login := range collaborators {
		a.repoAccess[login] = true
	}

	if user, err := a.d.client.GetUser(ctx, owner); err == nil && user.Type == "Organization" {
		members, err := a.d.client.ListOrgMembers(ctx, owner)
		if err != nil {
			log.Printf("Failed to list members of %s: %v", owner, err)
		}
		for _, login := range members {
			a.repoAccess[login] = true
		}
	}
}
