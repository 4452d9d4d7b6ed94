// Package githubapi defines the repository-host client interface the
// dispatcher consumes, together with a GitHub REST implementation and an
// in-memory fake for tests. The dispatcher never talks to the host API
// except through this interface.
package githubapi

import "context"

// TreeEntry is a single entry of a recursive git tree listing.
type TreeEntry struct {
	Path string `json:"path"`
	Type string `json:"type"`
	SHA  string `json:"sha"`
}

// PRFile is one changed file of a pull request.
type PRFile struct {
	Filename string `json:"filename"`
	Status   string `json:"status"`
	Patch    string `json:"patch"`
}

// CommitFile is one file touched by a commit, with its unified diff.
type CommitFile struct {
	Filename string `json:"filename"`
	Status   string `json:"status"`
	Patch    string `json:"patch"`
}

// Commit is a single commit with its touched files.
type Commit struct {
	SHA     string       `json:"sha"`
	Message string       `json:"message"`
	Files   []CommitFile `json:"files"`
}

// Tag is a repository tag reference.
type Tag struct {
	Name string `json:"name"`
	SHA  string `json:"sha"`
}

// User is the subset of account data the dispatcher inspects.
type User struct {
	Login string `json:"login"`
	Type  string `json:"type"`
}

// Client is the injected repository-host interface (§6.5). Implementations
// must be safe for concurrent use.
type Client interface {
	// GetRefSHA resolves a branch name to its commit SHA.
	GetRefSHA(ctx context.Context, owner, repo, branch string) (string, error)
	// GetTreeRecursive lists the full tree at the given SHA.
	GetTreeRecursive(ctx context.Context, owner, repo, sha string) ([]TreeEntry, error)
	// ListPRFiles lists the changed files of a pull request.
	ListPRFiles(ctx context.Context, owner, repo string, number int) ([]PRFile, error)
	// GetCommit fetches a commit including per-file patches.
	GetCommit(ctx context.Context, owner, repo, sha string) (*Commit, error)
	// ListTags lists repository tags.
	ListTags(ctx context.Context, owner, repo string) ([]Tag, error)
	// ListOrgMembers lists the member logins of an organization.
	ListOrgMembers(ctx context.Context, org string) ([]string, error)
	// ListCollaborators lists the collaborator logins of a repository.
	ListCollaborators(ctx context.Context, owner, repo string) ([]string, error)
	// GetUser fetches account metadata for a login.
	GetUser(ctx context.Context, login string) (*User, error)
}
