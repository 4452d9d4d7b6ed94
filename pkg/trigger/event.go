// Package trigger decides which registered agents respond to an incoming
// repository event. It implements the two independent passes (event triggers
// and mentions) together with the schedule, label, branch and path matchers
// and their ordering rules.
package trigger

import "strings"

// CommitRef is the slice of push-payload commit data the matchers consume.
type CommitRef struct {
	SHA      string   `json:"sha"`
	Message  string   `json:"message"`
	Added    []string `json:"added"`
	Modified []string `json:"modified"`
	Removed  []string `json:"removed"`
}

// EventContext is the read-only view of one repository event. It is pure
// data; anything requiring host-API access (changed files, commit diffs) is
// derived lazily by the engine.
type EventContext struct {
	Kind           string
	Action         string
	Actor          string
	RepoFullName   string
	Branch         string
	SHA            string
	Labels         []string
	CronExpression string
	Commits        []CommitRef
	Title          string
	Body           string
	CommentBody    string
	PRNumber       int
	WorkflowName   string
	RawPayload     map[string]any
}

// OwnerRepo splits the repository full name into its owner and name parts.
func (e *EventContext) OwnerRepo() (owner, repo string) {
	owner, repo, _ = strings.Cut(e.RepoFullName, "/")
	return owner, repo
}

// HeadCommit returns the last commit of a push payload, or nil.
func (e *EventContext) HeadCommit() *CommitRef {
	if len(e.Commits) == 0 {
		return nil
	}
	return &e.Commits[len(e.Commits)-1]
}

// commentKinds are the event kinds whose payload carries a comment plus a
// parent issue or pull request.
var commentKinds = map[string]bool{
	"issue_comment":               true,
	"pull_request_review":         true,
	"pull_request_review_comment": true,
	"commit_comment":              true,
}

// IsCommentEvent reports whether the event is a comment or review event.
func (e *EventContext) IsCommentEvent() bool {
	return commentKinds[e.Kind]
}
