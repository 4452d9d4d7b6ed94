package dispatch

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/a5c-ai/runner/pkg/trigger"
)

// EventFromPayload builds the event context from a webhook-style JSON
// payload. Only the fields the trigger passes and prompt compilation consume
// are extracted; the full payload stays available as RawPayload.
func EventFromPayload(kind string, payload []byte) (*trigger.EventContext, error) {
	var raw map[string]any
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, fmt.Errorf("invalid event payload: %w", err)
	}

	ev := &trigger.EventContext{
		Kind:       kind,
		RawPayload: raw,
		Action:     stringAt(raw, "action"),
		Actor:      stringAt(raw, "sender", "login"),
		SHA:        stringAt(raw, "after"),
	}
	ev.RepoFullName = stringAt(raw, "repository", "full_name")
	ev.CronExpression = stringAt(raw, "schedule")
	ev.WorkflowName = stringAt(raw, "workflow_run", "name")
	ev.CommentBody = stringAt(raw, "comment", "body")

	if ref := stringAt(raw, "ref"); strings.HasPrefix(ref, "refs/heads/") {
		ev.Branch = strings.TrimPrefix(ref, "refs/heads/")
	}
	if branch := stringAt(raw, "pull_request", "head", "ref"); branch != "" {
		ev.Branch = branch
	}

	if item, ok := mapAt(raw, "pull_request"); ok {
		ev.Title = stringAt(item, "title")
		ev.Body = stringAt(item, "body")
		ev.PRNumber = intAt(item, "number")
		ev.Labels = labelNames(item["labels"])
	} else if item, ok := mapAt(raw, "issue"); ok {
		ev.Title = stringAt(item, "title")
		ev.Body = stringAt(item, "body")
		ev.Labels = labelNames(item["labels"])
		if _, hasPR := item["pull_request"]; hasPR {
			ev.PRNumber = intAt(item, "number")
		}
	}
	// A labeling action contributes its single label as well.
	if name := stringAt(raw, "label", "name"); name != "" && !slices.Contains(ev.Labels, name) {
		ev.Labels = append(ev.Labels, name)
	}

	if commits, ok := raw["commits"].([]any); ok {
		for _, entry := range commits {
			commit, ok := entry.(map[string]any)
			if !ok {
				continue
			}
			ev.Commits = append(ev.Commits, trigger.CommitRef{
				SHA:      stringAt(commit, "id"),
				Message:  stringAt(commit, "message"),
				Added:    stringsAt(commit, "added"),
				Modified: stringsAt(commit, "modified"),
				Removed:  stringsAt(commit, "removed"),
			})
		}
	}

	return ev, nil
}

func mapAt(m map[string]any, key string) (map[string]any, bool) {
	child, ok := m[key].(map[string]any)
	return child, ok
}

func stringAt(m map[string]any, path ...string) string {
	node := m
	for i, key := range path {
		if i == len(path)-1 {
			s, _ := node[key].(string)
			return s
		}
		next, ok := node[key].(map[string]any)
		if !ok {
			return ""
		}
		node = next
	}
	return ""
}

func intAt(m map[string]any, key string) int {
	switch n := m[key].(type) {
	case float64:
		return int(n)
	case int:
		return n
	default:
		return 0
	}
}

func stringsAt(m map[string]any, key string) []string {
	items, ok := m[key].([]any)
	if !ok {
		return nil
	}
	var out []string
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func labelNames(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	var out []string
	for _, item := range items {
		if label, ok := item.(map[string]any); ok {
			if name, ok := label["name"].(string); ok {
				out = append(out, name)
			}
		}
	}
	return out
}
