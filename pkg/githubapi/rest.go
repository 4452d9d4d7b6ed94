package githubapi

import (
	"context"
	"fmt"
	"strings"

	"github.com/cli/go-gh/v2/pkg/api"

	"github.com/a5c-ai/runner/pkg/logger"
)

var restLog = logger.New("githubapi:rest")

// RESTClient implements Client on top of the go-gh REST client, which picks
// up GH_TOKEN/GITHUB_TOKEN and GH_HOST the same way the gh CLI does.
type RESTClient struct {
	client *api.RESTClient
}

// NewRESTClient builds a Client backed by the default go-gh REST client.
func NewRESTClient() (*RESTClient, error) {
	client, err := api.DefaultRESTClient()
	if err != nil {
		return nil, fmt.Errorf("failed to create REST client: %w", err)
	}
	return &RESTClient{client: client}, nil
}

// IsNotFound reports whether an error message indicates a 404 response.
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "404") || strings.Contains(msg, "not found")
}

func (c *RESTClient) GetRefSHA(ctx context.Context, owner, repo, branch string) (string, error) {
	restLog.Printf("Resolving ref: %s/%s@%s", owner, repo, branch)
	var result struct {
		SHA string `json:"sha"`
	}
	endpoint := fmt.Sprintf("repos/%s/%s/commits/%s", owner, repo, branch)
	if err := c.client.DoWithContext(ctx, "GET", endpoint, nil, &result); err != nil {
		return "", fmt.Errorf("failed to resolve ref %s for %s/%s: %w", branch, owner, repo, err)
	}
	if result.SHA == "" {
		return "", fmt.Errorf("empty SHA returned for ref %s in %s/%s", branch, owner, repo)
	}
	return result.SHA, nil
}

func (c *RESTClient) GetTreeRecursive(ctx context.Context, owner, repo, sha string) ([]TreeEntry, error) {
	restLog.Printf("Fetching recursive tree: %s/%s@%s", owner, repo, sha)
	var result struct {
		Tree      []TreeEntry `json:"tree"`
		Truncated bool        `json:"truncated"`
	}
	endpoint := fmt.Sprintf("repos/%s/%s/git/trees/%s?recursive=1", owner, repo, sha)
	if err := c.client.DoWithContext(ctx, "GET", endpoint, nil, &result); err != nil {
		return nil, fmt.Errorf("failed to fetch tree for %s/%s@%s: %w", owner, repo, sha, err)
	}
	if result.Truncated {
		restLog.Printf("Warning: tree listing truncated for %s/%s@%s", owner, repo, sha)
	}
	return result.Tree, nil
}

func (c *RESTClient) ListPRFiles(ctx context.Context, owner, repo string, number int) ([]PRFile, error) {
	restLog.Printf("Listing PR files: %s/%s#%d", owner, repo, number)
	var files []PRFile
	endpoint := fmt.Sprintf("repos/%s/%s/pulls/%d/files?per_page=100", owner, repo, number)
	if err := c.client.DoWithContext(ctx, "GET", endpoint, nil, &files); err != nil {
		return nil, fmt.Errorf("failed to list files for %s/%s#%d: %w", owner, repo, number, err)
	}
	return files, nil
}

func (c *RESTClient) GetCommit(ctx context.Context, owner, repo, sha string) (*Commit, error) {
	restLog.Printf("Fetching commit: %s/%s@%s", owner, repo, sha)
	var result struct {
		SHA    string `json:"sha"`
		Commit struct {
			Message string `json:"message"`
		} `json:"commit"`
		Files []CommitFile `json:"files"`
	}
	endpoint := fmt.Sprintf("repos/%s/%s/commits/%s", owner, repo, sha)
	if err := c.client.DoWithContext(ctx, "GET", endpoint, nil, &result); err != nil {
		return nil, fmt.Errorf("failed to fetch commit %s for %s/%s: %w", sha, owner, repo, err)
	}
	return &Commit{SHA: result.SHA, Message: result.Commit.Message, Files: result.Files}, nil
}

func (c *RESTClient) ListTags(ctx context.Context, owner, repo string) ([]Tag, error) {
	restLog.Printf("Listing tags: %s/%s", owner, repo)
	var raw []struct {
		Name   string `json:"name"`
		Commit struct {
			SHA string `json:"sha"`
		} `json:"commit"`
	}
	endpoint := fmt.Sprintf("repos/%s/%s/tags?per_page=100", owner, repo)
	if err := c.client.DoWithContext(ctx, "GET", endpoint, nil, &raw); err != nil {
		return nil, fmt.Errorf("failed to list tags for %s/%s: %w", owner, repo, err)
	}
	tags := make([]Tag, 0, len(raw))
	for _, t := range raw {
		tags = append(tags, Tag{Name: t.Name, SHA: t.Commit.SHA})
	}
	return tags, nil
}

func (c *RESTClient) ListOrgMembers(ctx context.Context, org string) ([]string, error) {
	restLog.Printf("Listing org members: %s", org)
	var raw []struct {
		Login string `json:"login"`
	}
	endpoint := fmt.Sprintf("orgs/%s/members?per_page=100", org)
	if err := c.client.DoWithContext(ctx, "GET", endpoint, nil, &raw); err != nil {
		return nil, fmt.Errorf("failed to list members of org %s: %w", org, err)
	}
	members := make([]string, 0, len(raw))
	for _, m := range raw {
		members = append(members, m.Login)
	}
	return members, nil
}

func (c *RESTClient) ListCollaborators(ctx context.Context, owner, repo string) ([]string, error) {
	restLog.Printf("Listing collaborators: %s/%s", owner, repo)
	var raw []struct {
		Login string `json:"login"`
	}
	endpoint := fmt.Sprintf("repos/%s/%s/collaborators?per_page=100", owner, repo)
	if err := c.client.DoWithContext(ctx, "GET", endpoint, nil, &raw); err != nil {
		return nil, fmt.Errorf("failed to list collaborators of %s/%s: %w", owner, repo, err)
	}
	logins := make([]string, 0, len(raw))
	for _, c := range raw {
		logins = append(logins, c.Login)
	}
	return logins, nil
}

func (c *RESTClient) GetUser(ctx context.Context, login string) (*User, error) {
	restLog.Printf("Fetching user: %s", login)
	var user User
	if err := c.client.DoWithContext(ctx, "GET", "users/"+login, nil, &user); err != nil {
		return nil, fmt.Errorf("failed to fetch user %s: %w", login, err)
	}
	return &user, nil
}
