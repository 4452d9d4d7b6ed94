package trigger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/a5c-ai/runner/pkg/githubapi"
)

func TestAssembleMentionContentComment(t *testing.T) {
	e := newTestEngine(t, nil)
	ev := &EventContext{
		Kind:        "issue_comment",
		CommentBody: "please look @reviewer",
		Title:       "Fix the parser",
		Body:        "It fails on empty input.",
	}
	content := e.AssembleMentionContent(context.Background(), ev)
	assert.Contains(t, content, "please look @reviewer")
	assert.Contains(t, content, "Fix the parser")
	assert.Contains(t, content, "It fails on empty input.")
}

func TestAssembleMentionContentIssue(t *testing.T) {
	e := newTestEngine(t, nil)
	ev := &EventContext{Kind: "issues", Title: "Crash on start", Body: "@crash-agent take a look"}
	content := e.AssembleMentionContent(context.Background(), ev)
	assert.Contains(t, content, "Crash on start")
	assert.Contains(t, content, "@crash-agent take a look")
}

func TestAssembleMentionContentPushIncludesRecentDiffs(t *testing.T) {
	fake := githubapi.NewFake()
	for _, sha := range []string{"c1", "c2", "c3", "c4"} {
		fake.Commits["org/repo@"+sha] = &githubapi.Commit{
			SHA:   sha,
			Files: []githubapi.CommitFile{{Filename: sha + ".go", Patch: "@@ patch " + sha}},
		}
	}
	e := newTestEngine(t, fake)

	ev := &EventContext{
		Kind:         "push",
		RepoFullName: "org/repo",
		Commits: []CommitRef{
			{SHA: "c1", Message: "first @push-agent"},
			{SHA: "c2", Message: "second"},
			{SHA: "c3", Message: "third"},
			{SHA: "c4", Message: "fourth"},
		},
	}
	content := e.AssembleMentionContent(context.Background(), ev)

	assert.Contains(t, content, "first @push-agent")
	assert.Contains(t, content, "fourth")
	// Only the trailing three commits contribute diffs.
	assert.NotContains(t, content, "@@ patch c1")
	assert.Contains(t, content, "@@ patch c2")
	assert.Contains(t, content, "@@ patch c4")
	assert.Equal(t, 0, fake.CallCount("commit:org/repo@c1"))
}

func TestAssembleMentionContentPushDiffFailureDegrades(t *testing.T) {
	e := newTestEngine(t, nil)
	ev := &EventContext{
		Kind:         "push",
		RepoFullName: "org/repo",
		Commits:      []CommitRef{{SHA: "missing", Message: "only the message @agent"}},
	}
	content := e.AssembleMentionContent(context.Background(), ev)
	assert.Contains(t, content, "only the message @agent")
}

func TestAssembleMentionContentWorkflowRun(t *testing.T) {
	e := newTestEngine(t, nil)
	ev := &EventContext{Kind: "workflow_run", WorkflowName: "ci", Action: "completed"}
	content := e.AssembleMentionContent(context.Background(), ev)
	assert.Contains(t, content, "Event Type: workflow_run")
	assert.Contains(t, content, "ci")
}
