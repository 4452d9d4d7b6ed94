package githubapi

import (
	"context"
	"fmt"
	"sync"
)

// Fake is an in-memory Client used by tests. All maps are keyed the way the
// corresponding REST endpoints are ("owner/repo", "owner/repo#1", …).
type Fake struct {
	mu sync.Mutex

	RefSHAs       map[string]string      // "owner/repo@branch" -> sha
	Trees         map[string][]TreeEntry // "owner/repo@sha" -> entries
	PRFiles       map[string][]PRFile    // "owner/repo#1" -> files
	Commits       map[string]*Commit     // "owner/repo@sha" -> commit
	Tags          map[string][]Tag       // "owner/repo" -> tags
	OrgMembers    map[string][]string    // org -> logins
	Collaborators map[string][]string    // "owner/repo" -> logins
	Users         map[string]*User       // login -> user

	// Calls counts invocations per formatted key, letting tests assert
	// laziness and caching behavior.
	Calls map[string]int
}

// NewFake returns an empty fake client.
func NewFake() *Fake {
	return &Fake{
		RefSHAs:       make(map[string]string),
		Trees:         make(map[string][]TreeEntry),
		PRFiles:       make(map[string][]PRFile),
		Commits:       make(map[string]*Commit),
		Tags:          make(map[string][]Tag),
		OrgMembers:    make(map[string][]string),
		Collaborators: make(map[string][]string),
		Users:         make(map[string]*User),
		Calls:         make(map[string]int),
	}
}

func (f *Fake) record(key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls[key]++
}

// CallCount returns how many times the given key was requested.
func (f *Fake) CallCount(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Calls[key]
}

func (f *Fake) GetRefSHA(_ context.Context, owner, repo, branch string) (string, error) {
	key := fmt.Sprintf("%s/%s@%s", owner, repo, branch)
	f.record("ref:" + key)
	if sha, ok := f.RefSHAs[key]; ok {
		return sha, nil
	}
	return "", fmt.Errorf("ref not found: %s", key)
}

func (f *Fake) GetTreeRecursive(_ context.Context, owner, repo, sha string) ([]TreeEntry, error) {
	key := fmt.Sprintf("%s/%s@%s", owner, repo, sha)
	f.record("tree:" + key)
	if tree, ok := f.Trees[key]; ok {
		return tree, nil
	}
	return nil, fmt.Errorf("tree not found: %s", key)
}

func (f *Fake) ListPRFiles(_ context.Context, owner, repo string, number int) ([]PRFile, error) {
	key := fmt.Sprintf("%s/%s#%d", owner, repo, number)
	f.record("prfiles:" + key)
	if files, ok := f.PRFiles[key]; ok {
		return files, nil
	}
	return nil, fmt.Errorf("pull request not found: %s", key)
}

func (f *Fake) GetCommit(_ context.Context, owner, repo, sha string) (*Commit, error) {
	key := fmt.Sprintf("%s/%s@%s", owner, repo, sha)
	f.record("commit:" + key)
	if commit, ok := f.Commits[key]; ok {
		return commit, nil
	}
	return nil, fmt.Errorf("commit not found: %s", key)
}

func (f *Fake) ListTags(_ context.Context, owner, repo string) ([]Tag, error) {
	key := owner + "/" + repo
	f.record("tags:" + key)
	if tags, ok := f.Tags[key]; ok {
		return tags, nil
	}
	return nil, nil
}

func (f *Fake) ListOrgMembers(_ context.Context, org string) ([]string, error) {
	f.record("orgmembers:" + org)
	return f.OrgMembers[org], nil
}

func (f *Fake) ListCollaborators(_ context.Context, owner, repo string) ([]string, error) {
	key := owner + "/" + repo
	f.record("collaborators:" + key)
	return f.Collaborators[key], nil
}

func (f *Fake) GetUser(_ context.Context, login string) (*User, error) {
	f.record("user:" + login)
	if u, ok := f.Users[login]; ok {
		return u, nil
	}
	return nil, fmt.Errorf("user not found: %s", login)
}
