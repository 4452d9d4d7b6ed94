package execution

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/a5c-ai/runner/pkg/constants"
	"github.com/a5c-ai/runner/pkg/descriptor"
	"github.com/a5c-ai/runner/pkg/prompt"
)

// CLITemplate is one entry of the cli_agents mapping.
type CLITemplate struct {
	CLICommand          string            `yaml:"cli_command" json:"cli_command"`
	Envs                map[string]string `yaml:"envs,omitempty" json:"envs,omitempty"`
	InjectPromptToStdin bool              `yaml:"inject_prompt_to_stdin,omitempty" json:"inject_prompt_to_stdin,omitempty"`
	InjectEnvsToPrompt  bool              `yaml:"inject_envs_to_prompt,omitempty" json:"inject_envs_to_prompt,omitempty"`
	Model               string            `yaml:"model,omitempty" json:"model,omitempty"`
}

// CLIConfig is the slice of dispatcher configuration the orchestrator needs
// to select and compose commands.
type CLIConfig struct {
	DefaultCommand        string
	DefaultAgent          string
	DefaultModel          string
	DefaultTimeoutMinutes int
	Agents                map[string]CLITemplate
}

// modelFamilies maps model-name substrings to cli_agents template keys for
// auto-selection.
var modelFamilies = []struct {
	substrings []string
	key        string
}{
	{[]string{"claude", "sonnet", "haiku", "opus"}, "claude"},
	{[]string{"gpt", "o1", "o4"}, "codex"},
	{[]string{"gemini"}, "gemini"},
}

// ResolveTemplate walks the CLI selection hierarchy for the agent: its own
// cli_command, the global default command, a cli_agents template (explicit
// key, global key, environment key, model auto-selection, first available),
// then the environment variable as a raw command. First hit wins.
func ResolveTemplate(d *descriptor.Descriptor, cfg CLIConfig) (CLITemplate, error) {
	if d.CLICommand != "" {
		return CLITemplate{
			CLICommand:          d.CLICommand,
			InjectPromptToStdin: d.InjectPromptToStdin,
			InjectEnvsToPrompt:  d.InjectEnvsToPrompt,
			Model:               d.Model,
		}, nil
	}
	if cfg.DefaultCommand != "" {
		return CLITemplate{
			CLICommand:          cfg.DefaultCommand,
			InjectPromptToStdin: d.InjectPromptToStdin,
			InjectEnvsToPrompt:  d.InjectEnvsToPrompt,
			Model:               d.Model,
		}, nil
	}

	envTool := os.Getenv(constants.CLISelectionEnv)
	if len(cfg.Agents) > 0 {
		if key := selectTemplateKey(d, cfg, envTool); key != "" {
			log.Printf("Selected CLI template %q for agent %s", key, d.ID)
			return cfg.Agents[key], nil
		}
	}
	if envTool != "" {
		log.Printf("Using %s as raw command for agent %s", constants.CLISelectionEnv, d.ID)
		return CLITemplate{CLICommand: envTool}, nil
	}
	return CLITemplate{}, fmt.Errorf("agent %s: %w", d.ID, ErrNoCliConfigured)
}

func selectTemplateKey(d *descriptor.Descriptor, cfg CLIConfig, envTool string) string {
	if _, ok := cfg.Agents[d.CLIAgent]; ok && d.CLIAgent != "" {
		return d.CLIAgent
	}
	if _, ok := cfg.Agents[cfg.DefaultAgent]; ok && cfg.DefaultAgent != "" {
		return cfg.DefaultAgent
	}
	if _, ok := cfg.Agents[envTool]; ok && envTool != "" {
		return envTool
	}

	model := d.Model
	if model == "" {
		model = cfg.DefaultModel
	}
	if key := keyForModel(model, cfg.Agents); key != "" {
		return key
	}

	// First available, by sorted key so selection is deterministic.
	keys := make([]string, 0, len(cfg.Agents))
	for k := range cfg.Agents {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if len(keys) > 0 {
		return keys[0]
	}
	return ""
}

func keyForModel(model string, agents map[string]CLITemplate) string {
	if model == "" {
		return ""
	}
	lower := strings.ToLower(model)
	for _, family := range modelFamilies {
		for _, sub := range family.substrings {
			if !strings.Contains(lower, sub) {
				continue
			}
			key := family.key
			if key == "codex" && os.Getenv(constants.AzureProjectEnv) != "" {
				if _, ok := agents["azure_codex"]; ok {
					key = "azure_codex"
				}
			}
			if _, ok := agents[key]; ok {
				return key
			}
		}
	}
	return ""
}

// ComposeCommand turns a resolved template into the final shell command:
// env-var prefixes, the stdin/printenv injection transforms, then template
// expansion against the command context.
func (o *Orchestrator) ComposeCommand(ctx context.Context, tpl CLITemplate, d *descriptor.Descriptor, cmdCtx prompt.Context) string {
	command := tpl.CLICommand

	if len(tpl.Envs) > 0 {
		keys := make([]string, 0, len(tpl.Envs))
		for k := range tpl.Envs {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var prefix strings.Builder
		for _, k := range keys {
			prefix.WriteString(fmt.Sprintf("%s=%s ", k, tpl.Envs[k]))
		}
		command = prefix.String() + command
	}

	stdinInjection := tpl.InjectPromptToStdin || d.InjectPromptToStdin
	envsInjection := tpl.InjectEnvsToPrompt || d.InjectEnvsToPrompt

	if stdinInjection {
		command = "cat {{prompt_path}} | " + command
	}
	if envsInjection {
		if strings.Contains(command, "cat {{prompt_path}}") {
			command = strings.Replace(command, "cat {{prompt_path}}", "printenv | cat - {{prompt_path}}", 1)
		} else {
			command = "printenv | " + command
		}
	}

	return o.assembler.Compile(ctx, command, "", cmdCtx)
}
