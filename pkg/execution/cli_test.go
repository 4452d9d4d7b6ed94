package execution

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/a5c-ai/runner/pkg/constants"
	"github.com/a5c-ai/runner/pkg/descriptor"
	"github.com/a5c-ai/runner/pkg/prompt"
	"github.com/a5c-ai/runner/pkg/resources"
)

func clearSelectionEnv(t *testing.T) {
	t.Helper()
	t.Setenv(constants.CLISelectionEnv, "")
	t.Setenv(constants.AzureProjectEnv, "")
}

func TestResolveTemplateDescriptorCommandWins(t *testing.T) {
	clearSelectionEnv(t)
	d := &descriptor.Descriptor{ID: "x", CLICommand: "mytool -p {{prompt_path}}", InjectPromptToStdin: true}
	cfg := CLIConfig{DefaultCommand: "other"}

	tpl, err := ResolveTemplate(d, cfg)
	require.NoError(t, err)
	assert.Equal(t, "mytool -p {{prompt_path}}", tpl.CLICommand)
	assert.True(t, tpl.InjectPromptToStdin)
}

func TestResolveTemplateGlobalDefaultCommand(t *testing.T) {
	clearSelectionEnv(t)
	tpl, err := ResolveTemplate(&descriptor.Descriptor{ID: "x"}, CLIConfig{DefaultCommand: "claude -p {{prompt_path}}"})
	require.NoError(t, err)
	assert.Equal(t, "claude -p {{prompt_path}}", tpl.CLICommand)
}

func TestResolveTemplateSelectionOrder(t *testing.T) {
	clearSelectionEnv(t)
	agents := map[string]CLITemplate{
		"claude": {CLICommand: "claude-cmd"},
		"codex":  {CLICommand: "codex-cmd"},
		"gemini": {CLICommand: "gemini-cmd"},
		"custom": {CLICommand: "custom-cmd"},
	}

	tests := []struct {
		name string
		d    *descriptor.Descriptor
		cfg  CLIConfig
		env  string
		want string
	}{
		{"descriptor cli_agent key", &descriptor.Descriptor{CLIAgent: "custom"}, CLIConfig{Agents: agents, DefaultAgent: "claude"}, "", "custom-cmd"},
		{"global default key", &descriptor.Descriptor{}, CLIConfig{Agents: agents, DefaultAgent: "gemini"}, "", "gemini-cmd"},
		{"env key", &descriptor.Descriptor{}, CLIConfig{Agents: agents}, "codex", "codex-cmd"},
		{"model substring claude", &descriptor.Descriptor{Model: "claude-sonnet-4"}, CLIConfig{Agents: agents}, "", "claude-cmd"},
		{"model substring opus", &descriptor.Descriptor{Model: "opus-latest"}, CLIConfig{Agents: agents}, "", "claude-cmd"},
		{"model substring gpt", &descriptor.Descriptor{Model: "gpt-4o"}, CLIConfig{Agents: agents}, "", "codex-cmd"},
		{"model substring gemini", &descriptor.Descriptor{Model: "gemini-pro"}, CLIConfig{Agents: agents}, "", "gemini-cmd"},
		{"config default model", &descriptor.Descriptor{}, CLIConfig{Agents: agents, DefaultModel: "gemini-flash"}, "", "gemini-cmd"},
		{"first available sorted", &descriptor.Descriptor{}, CLIConfig{Agents: agents}, "", "claude-cmd"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(constants.CLISelectionEnv, tt.env)
			tpl, err := ResolveTemplate(tt.d, tt.cfg)
			require.NoError(t, err)
			assert.Equal(t, tt.want, tpl.CLICommand)
		})
	}
}

func TestResolveTemplateAzureCodexPreference(t *testing.T) {
	clearSelectionEnv(t)
	t.Setenv(constants.AzureProjectEnv, "my-project")
	agents := map[string]CLITemplate{
		"codex":       {CLICommand: "codex-cmd"},
		"azure_codex": {CLICommand: "azure-cmd"},
	}

	tpl, err := ResolveTemplate(&descriptor.Descriptor{Model: "gpt-4o"}, CLIConfig{Agents: agents})
	require.NoError(t, err)
	assert.Equal(t, "azure-cmd", tpl.CLICommand)
}

func TestResolveTemplateEnvRawCommand(t *testing.T) {
	clearSelectionEnv(t)
	t.Setenv(constants.CLISelectionEnv, "standalone-tool --flag")

	tpl, err := ResolveTemplate(&descriptor.Descriptor{ID: "x"}, CLIConfig{})
	require.NoError(t, err)
	assert.Equal(t, "standalone-tool --flag", tpl.CLICommand)
}

func TestResolveTemplateNoCliConfigured(t *testing.T) {
	clearSelectionEnv(t)
	_, err := ResolveTemplate(&descriptor.Descriptor{ID: "x"}, CLIConfig{})
	assert.ErrorIs(t, err, ErrNoCliConfigured)
}

func newComposeOrchestrator(t *testing.T) *Orchestrator {
	t.Helper()
	root := t.TempDir()
	loader := resources.NewLoader(resources.Options{WorkingDir: root})
	return NewOrchestrator(loader, CLIConfig{}, root)
}

func TestComposeCommandEnvPrefix(t *testing.T) {
	o := newComposeOrchestrator(t)
	tpl := CLITemplate{
		CLICommand: "tool run",
		Envs:       map[string]string{"B_VAR": "2", "A_VAR": "1"},
	}
	out := o.ComposeCommand(context.Background(), tpl, &descriptor.Descriptor{}, prompt.Context{})
	assert.Equal(t, "A_VAR=1 B_VAR=2 tool run", out)
}

func TestComposeCommandStdinInjection(t *testing.T) {
	o := newComposeOrchestrator(t)
	tpl := CLITemplate{CLICommand: "tool run", InjectPromptToStdin: true}
	out := o.ComposeCommand(context.Background(), tpl, &descriptor.Descriptor{}, prompt.Context{"prompt_path": "/runs/p.md"})
	assert.Equal(t, "cat /runs/p.md | tool run", out)
}

func TestComposeCommandEnvsToPromptVariants(t *testing.T) {
	o := newComposeOrchestrator(t)
	cmdCtx := prompt.Context{"prompt_path": "/runs/p.md"}

	withStdin := CLITemplate{CLICommand: "tool run", InjectPromptToStdin: true, InjectEnvsToPrompt: true}
	assert.Equal(t, "printenv | cat - /runs/p.md | tool run",
		o.ComposeCommand(context.Background(), withStdin, &descriptor.Descriptor{}, cmdCtx))

	withoutStdin := CLITemplate{CLICommand: "tool run", InjectEnvsToPrompt: true}
	assert.Equal(t, "printenv | tool run",
		o.ComposeCommand(context.Background(), withoutStdin, &descriptor.Descriptor{}, cmdCtx))
}

func TestComposeCommandTemplateExpansion(t *testing.T) {
	o := newComposeOrchestrator(t)
	tpl := CLITemplate{CLICommand: "tool --model {{model}} --mcp {{mcp_config_path}} --turns {{max_turns}}"}
	out := o.ComposeCommand(context.Background(), tpl, &descriptor.Descriptor{}, prompt.Context{
		"model":           "claude-sonnet",
		"mcp_config_path": "/runs/mcp.json",
		"max_turns":       7,
	})
	assert.Equal(t, "tool --model claude-sonnet --mcp /runs/mcp.json --turns 7", out)
}
