package dispatch

import (
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/a5c-ai/runner/pkg/execution"
	"github.com/a5c-ai/runner/pkg/resources"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) { return f(req) }

func newConfigLoader(t *testing.T, root string, remote map[string]string) *resources.Loader {
	t.Helper()
	opts := resources.Options{WorkingDir: root}
	if remote != nil {
		opts.HTTPClient = &http.Client{Transport: roundTripFunc(func(req *http.Request) (*http.Response, error) {
			body, ok := remote[req.URL.String()]
			status := http.StatusOK
			if !ok {
				status = http.StatusNotFound
			}
			return &http.Response{
				StatusCode: status,
				Body:       io.NopCloser(strings.NewReader(body)),
				Header:     make(http.Header),
				Request:    req,
			}, nil
		})}
	}
	return resources.NewLoader(opts)
}

func writeConfig(t *testing.T, root, content string) {
	t.Helper()
	path := filepath.Join(root, ".a5c", "config.yml")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestLoadConfigEmbeddedDefaults(t *testing.T) {
	t.Setenv(ConfigURIEnv, "")
	root := t.TempDir()

	cfg, err := LoadConfig(context.Background(), newConfigLoader(t, root, nil), "")
	require.NoError(t, err)

	assert.Equal(t, 30, cfg.Defaults.Timeout)
	assert.False(t, cfg.RemoteAgents.Enabled)
	assert.Equal(t, 60, cfg.RemoteAgents.CacheTimeoutMin)
	assert.Equal(t, 10, cfg.AgentDiscovery.MaxAgentsInContext)
}

func TestLoadConfigFileDeepMergesOverDefaults(t *testing.T) {
	t.Setenv(ConfigURIEnv, "")
	root := t.TempDir()
	writeConfig(t, root, `
defaults:
  timeout: 5
  cli_agent: claude
cli_agents:
  claude:
    cli_command: "claude -p {{prompt_path}}"
    inject_prompt_to_stdin: true
remote_agents:
  enabled: true
  sources:
    repositories:
      - uri: org/shared-agents
        branch: main
`)

	cfg, err := LoadConfig(context.Background(), newConfigLoader(t, root, nil), "")
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Defaults.Timeout)
	assert.Equal(t, "claude", cfg.Defaults.CLIAgent)
	// Untouched sibling keys keep their embedded defaults.
	assert.Equal(t, 3, cfg.RemoteAgents.RetryAttempts)
	assert.True(t, cfg.RemoteAgents.Enabled)
	require.Len(t, cfg.RemoteAgents.Sources.Repositories, 1)
	assert.Equal(t, "org/shared-agents", cfg.RemoteAgents.Sources.Repositories[0].URI)
	require.Contains(t, cfg.CLIAgents, "claude")
	assert.True(t, cfg.CLIAgents["claude"].InjectPromptToStdin)
}

func TestLoadConfigRejectsUnknownKeys(t *testing.T) {
	t.Setenv(ConfigURIEnv, "")
	root := t.TempDir()
	writeConfig(t, root, "not_a_section:\n  x: 1\n")

	_, err := LoadConfig(context.Background(), newConfigLoader(t, root, nil), "")
	assert.Error(t, err)
}

func TestLoadConfigRemoteOverride(t *testing.T) {
	root := t.TempDir()
	writeConfig(t, root, "defaults:\n  timeout: 5\n")
	uri := "https://raw.githubusercontent.com/org/cfg/main/config.yml"
	t.Setenv(ConfigURIEnv, uri)

	loader := newConfigLoader(t, root, map[string]string{
		uri: "defaults:\n  timeout: 2\n  model: claude-sonnet\n",
	})
	cfg, err := LoadConfig(context.Background(), loader, "")
	require.NoError(t, err)

	assert.Equal(t, 2, cfg.Defaults.Timeout)
	assert.Equal(t, "claude-sonnet", cfg.Defaults.Model)
}

func TestCLIConfigProjection(t *testing.T) {
	cfg := &Config{
		Defaults: Defaults{CLICommand: "run", CLIAgent: "claude", Model: "m", Timeout: 7},
		CLIAgents: map[string]execution.CLITemplate{
			"claude": {CLICommand: "claude -p {{prompt_path}}"},
		},
	}

	cliCfg := cfg.CLIConfig()
	assert.Equal(t, "run", cliCfg.DefaultCommand)
	assert.Equal(t, "claude", cliCfg.DefaultAgent)
	assert.Equal(t, "m", cliCfg.DefaultModel)
	assert.Equal(t, 7, cliCfg.DefaultTimeoutMinutes)
	assert.Contains(t, cliCfg.Agents, "claude")
}

func TestDeepMerge(t *testing.T) {
	dst := map[string]any{
		"defaults": map[string]any{"timeout": 30, "verbose": false},
		"remote_agents": map[string]any{
			"enabled": false,
		},
	}
	src := map[string]any{
		"defaults": map[string]any{"timeout": 5},
		"extra":    "x",
	}
	out := deepMerge(dst, src)

	defaults := out["defaults"].(map[string]any)
	assert.Equal(t, 5, defaults["timeout"])
	assert.Equal(t, false, defaults["verbose"])
	assert.Equal(t, "x", out["extra"])
	assert.NotNil(t, out["remote_agents"])
}
