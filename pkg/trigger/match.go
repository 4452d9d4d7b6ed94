package trigger

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/a5c-ai/runner/pkg/descriptor"
	"github.com/a5c-ai/runner/pkg/githubapi"
	"github.com/a5c-ai/runner/pkg/logger"
	"github.com/a5c-ai/runner/pkg/registry"
)

var log = logger.New("trigger:match")

// Match pairs a candidate descriptor with the reason it was selected.
// MentionOrder is the first-occurrence index of the winning mention token and
// is meaningful only for mention-pass matches.
type Match struct {
	Descriptor   *descriptor.Descriptor
	Reason       string
	MentionOrder int
}

// Engine runs the two trigger passes over the registry.
type Engine struct {
	registry *registry.Registry
	client   githubapi.Client
	prCache  *prFilesCache
}

// NewEngine builds a trigger engine over the given registry and host client.
func NewEngine(reg *registry.Registry, client githubapi.Client) *Engine {
	return &Engine{registry: reg, client: client, prCache: newPRFilesCache()}
}

// AgentsForEvent runs the event-trigger pass: descriptors whose event filter
// admits the event and whose configured sub-matchers hit, ordered by
// descending priority (ties keep registry insertion order). Mention-driven
// descriptors are excluded; they only participate in the mention pass.
func (e *Engine) AgentsForEvent(ctx context.Context, ev *EventContext) []Match {
	files := &lazyFiles{eng: e, ev: ev}

	var matches []Match
	for _, d := range e.registry.All() {
		if len(d.Events) > 0 && !slices.Contains(d.Events, ev.Kind) {
			continue
		}
		if len(d.Mentions) > 0 {
			continue
		}
		reason, ok := e.subMatch(ctx, d, ev, files)
		if !ok {
			continue
		}
		log.Printf("Event match: agent=%s, reason=%s", d.ID, reason)
		matches = append(matches, Match{Descriptor: d, Reason: reason})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Descriptor.Priority > matches[j].Descriptor.Priority
	})
	return matches
}

// subMatch applies the schedule/label/branch/path matchers. A descriptor
// that configures none of them matches on the event filter alone; one that
// configures any needs at least one hit.
func (e *Engine) subMatch(ctx context.Context, d *descriptor.Descriptor, ev *EventContext, files *lazyFiles) (string, bool) {
	configured := d.Schedule != "" || len(d.Labels) > 0 || len(d.Branches) > 0 || len(d.Paths) > 0
	if !configured {
		return "Event: " + ev.Kind, true
	}

	if d.Schedule != "" && ev.Kind == "schedule" {
		if strings.TrimSpace(ev.CronExpression) == strings.TrimSpace(d.Schedule) {
			return "Schedule: " + d.Schedule, true
		}
	}

	for _, label := range d.Labels {
		if slices.Contains(ev.Labels, label) {
			return "Label: " + label, true
		}
	}

	if ev.Branch != "" {
		for _, pattern := range d.Branches {
			if MatchBranch(pattern, ev.Branch) {
				return "Branch: " + pattern, true
			}
		}
	}

	if len(d.Paths) > 0 {
		changed := files.get(ctx)
		for _, pattern := range d.Paths {
			for _, file := range changed {
				if ok, err := doublestar.Match(pattern, file); err == nil && ok {
					return "Path: " + pattern, true
				}
			}
		}
	}

	return "", false
}

// AgentsForMentions runs the mention pass against already-assembled content,
// ordered by ascending first-occurrence index. For workflow_run events every
// event-admitted mention descriptor is admitted outright with its first
// token; content search is bypassed.
func (e *Engine) AgentsForMentions(_ context.Context, content, kind string) []Match {
	var matches []Match
	for _, d := range e.registry.All() {
		if len(d.Mentions) == 0 {
			continue
		}
		if len(d.Events) > 0 && !slices.Contains(d.Events, kind) {
			continue
		}

		if kind == "workflow_run" {
			matches = append(matches, Match{
				Descriptor: d,
				Reason:     fmt.Sprintf("Mention: %s (workflow_run)", d.Mentions[0]),
			})
			continue
		}

		order := -1
		token := ""
		for _, mention := range d.Mentions {
			idx := strings.Index(content, mention)
			if idx < 0 {
				continue
			}
			if order < 0 || idx < order {
				order = idx
				token = mention
			}
		}
		if order < 0 {
			continue
		}
		log.Printf("Mention match: agent=%s, token=%s, index=%d", d.ID, token, order)
		matches = append(matches, Match{Descriptor: d, Reason: "Mention: " + token, MentionOrder: order})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].MentionOrder < matches[j].MentionOrder
	})
	return matches
}

// MatchBranch matches a branch name against a pattern where `*` stands for
// any run of characters within one path segment. No regex.
func MatchBranch(pattern, branch string) bool {
	if !strings.Contains(pattern, "*") {
		return pattern == branch
	}
	parts := strings.Split(pattern, "*")

	rest := branch
	for i, part := range parts {
		switch {
		case i == 0:
			if !strings.HasPrefix(rest, part) {
				return false
			}
			rest = rest[len(part):]
		case i == len(parts)-1:
			if !strings.HasSuffix(rest, part) {
				return false
			}
			gap := rest[:len(rest)-len(part)]
			if strings.Contains(gap, "/") {
				return false
			}
			rest = ""
		default:
			idx := strings.Index(rest, part)
			if idx < 0 || strings.Contains(rest[:idx], "/") {
				return false
			}
			rest = rest[idx+len(part):]
		}
	}
	return true
}
