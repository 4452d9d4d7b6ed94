package descriptor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func localSource(path string) Source {
	return Source{Kind: SourceLocal, Path: path}
}

func TestExtractFrontmatter(t *testing.T) {
	content := `---
name: reviewer
events: [pull_request]
priority: 80
---

Review the changes carefully.
`
	result, err := ExtractFrontmatter(content)
	require.NoError(t, err)
	assert.Equal(t, "reviewer", result.Frontmatter["name"])
	assert.Equal(t, "Review the changes carefully.", result.Body)
}

func TestExtractFrontmatterMissingHeader(t *testing.T) {
	_, err := ExtractFrontmatter("Just a prompt with no header")
	require.Error(t, err)

	_, err = ExtractFrontmatter("---\nname: x\nno closing delimiter")
	require.Error(t, err)
}

func TestExtractFrontmatterEmptyHeader(t *testing.T) {
	result, err := ExtractFrontmatter("---\n---\nbody only")
	require.NoError(t, err)
	assert.NotNil(t, result.Frontmatter)
	assert.Empty(t, result.Frontmatter)
	assert.Equal(t, "body only", result.Body)
}

func TestParseDefaults(t *testing.T) {
	content := `---
events: push
---
Do the thing.
`
	d, err := Parse(content, localSource(".a5c/agents/code-fixer.agent.md"))
	require.NoError(t, err)

	assert.Equal(t, "code-fixer", d.ID)
	assert.Equal(t, "Code Fixer", d.Name)
	assert.Equal(t, 50, d.Priority)
	assert.Equal(t, []string{"push"}, d.Events)
	assert.Equal(t, "Do the thing.", d.PromptBody)
	assert.True(t, d.Resolved())
}

func TestParseListForms(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		want    []string
	}{
		{"sequence", "events:\n  - push\n  - pull_request", []string{"push", "pull_request"}},
		{"inline", "events: [push, pull_request]", []string{"push", "pull_request"}},
		{"csv", `events: "push, pull_request"`, []string{"push", "pull_request"}},
		{"bracketed csv", `events: "[push, 'pull_request']"`, []string{"push", "pull_request"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := Parse("---\n"+tt.yaml+"\n---\nbody", localSource("x.agent.md"))
			require.NoError(t, err)
			assert.Equal(t, tt.want, d.Events)
		})
	}
}

func TestParseFullDescriptor(t *testing.T) {
	content := `---
id: security-scan
name: security-scan
version: 1.2.3
category: security
events: [push]
mentions: ["@security"]
labels: [security, critical]
branches: ["main", "release/*"]
paths: ["src/**/*.go"]
schedule: "0 2 * * *"
priority: 90
user_whitelist: [alice, bob]
mcp_servers: [github]
cli_command: "claude -p {{prompt_path}}"
model: claude-sonnet
max_turns: 12
timeout_minutes: 15
verbose: true
envs:
  REGION: us-east-1
inject_prompt_to_stdin: true
agent_discovery:
  enabled: true
  include_same_directory: true
  max_in_context: 5
---
Scan it.
`
	d, err := Parse(content, localSource("security-scan.agent.md"))
	require.NoError(t, err)

	assert.Equal(t, "security-scan", d.ID)
	assert.Equal(t, "1.2.3", d.Version)
	assert.Equal(t, []string{"@security"}, d.Mentions)
	assert.Equal(t, []string{"main", "release/*"}, d.Branches)
	assert.Equal(t, "0 2 * * *", d.Schedule)
	assert.Equal(t, 90, d.Priority)
	assert.Equal(t, map[string]string{"REGION": "us-east-1"}, d.Envs)
	assert.True(t, d.InjectPromptToStdin)
	assert.True(t, d.Discovery.Enabled)
	assert.Equal(t, 5, d.Discovery.MaxInContext)
	assert.Equal(t, 15, d.TimeoutMinutes)
}

func TestSerializeRoundTrip(t *testing.T) {
	content := `---
name: round-trip
events: [push, issues]
priority: 75
envs:
  A: "1"
---
Body text with {{event.kind}} left verbatim.
`
	original, err := Parse(content, localSource("round-trip.agent.md"))
	require.NoError(t, err)

	serialized, err := Serialize(original)
	require.NoError(t, err)

	reparsed, err := Parse(serialized, localSource("round-trip.agent.md"))
	require.NoError(t, err)

	assert.Equal(t, original.ID, reparsed.ID)
	assert.Equal(t, original.Name, reparsed.Name)
	assert.Equal(t, original.Events, reparsed.Events)
	assert.Equal(t, original.Priority, reparsed.Priority)
	assert.Equal(t, original.Envs, reparsed.Envs)
	assert.Equal(t, original.PromptBody, reparsed.PromptBody)
}

func TestNormalizeStringList(t *testing.T) {
	tests := []struct {
		name  string
		input any
		want  []string
	}{
		{"nil", nil, nil},
		{"empty string", "", nil},
		{"single", "push", []string{"push"}},
		{"csv with quotes", `"a", 'b' , c`, []string{"a", "b", "c"}},
		{"brackets", "[a, b]", []string{"a", "b"}},
		{"any slice", []any{"a", 2}, []string{"a", "2"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeStringList(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := NormalizeStringList(map[string]any{})
	assert.Error(t, err)
}
