package trigger

import (
	"context"
	"strings"

	"github.com/a5c-ai/runner/pkg/constants"
)

// AssembleMentionContent builds the text the mention pass searches, per the
// event kind: comment bodies plus their parent item, push commit messages
// with trailing commit diffs, issue/PR titles and bodies, or the synthesized
// workflow_run marker. Diff fetch failures degrade to the message-only
// content.
func (e *Engine) AssembleMentionContent(ctx context.Context, ev *EventContext) string {
	var parts []string
	add := func(s string) {
		if s = strings.TrimSpace(s); s != "" {
			parts = append(parts, s)
		}
	}

	switch {
	case ev.Kind == "workflow_run":
		add("Event Type: workflow_run")
		add(ev.WorkflowName)
		add(ev.Action)

	case ev.IsCommentEvent():
		add(ev.CommentBody)
		add(ev.Title)
		add(ev.Body)

	case ev.Kind == "push":
		for _, commit := range ev.Commits {
			add(commit.Message)
		}
		add(e.pushDiffs(ctx, ev))

	case ev.Kind == "pull_request" || ev.Kind == "issues":
		add(ev.Title)
		add(ev.Body)

	default:
		add(ev.CommentBody)
		add(ev.Title)
		add(ev.Body)
	}

	return strings.Join(parts, "\n\n")
}

// pushDiffs accumulates the unified diffs of up to the last few push commits.
func (e *Engine) pushDiffs(ctx context.Context, ev *EventContext) string {
	owner, repo := ev.OwnerRepo()
	commits := ev.Commits
	if len(commits) > constants.MentionDiffCommitLimit {
		commits = commits[len(commits)-constants.MentionDiffCommitLimit:]
	}

	var b strings.Builder
	for _, ref := range commits {
		commit, err := e.client.GetCommit(ctx, owner, repo, ref.SHA)
		if err != nil {
			log.Printf("Skipping diff for commit %s: %v", ref.SHA, err)
			continue
		}
		for _, file := range commit.Files {
			if file.Patch == "" {
				continue
			}
			b.WriteString(file.Patch)
			b.WriteString("\n")
		}
	}
	return b.String()
}
