package dispatch

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/a5c-ai/runner/pkg/constants"
	"github.com/a5c-ai/runner/pkg/execution"
	"github.com/a5c-ai/runner/pkg/logger"
	"github.com/a5c-ai/runner/pkg/prompt"
	"github.com/a5c-ai/runner/pkg/registry"
	"github.com/a5c-ai/runner/pkg/resources"
)

var configLog = logger.New("dispatch:config")

//go:embed schemas/config_schema.json
var configSchemaJSON string

//go:embed schemas/default_config.yml
var defaultConfigYAML string

// ConfigURIEnv points at a remote configuration override fetched through the
// resource loader.
const ConfigURIEnv = "A5C_CONFIG_URI"

// Defaults is the defaults section of the configuration.
type Defaults struct {
	CLICommand    string   `yaml:"cli_command"`
	CLIAgent      string   `yaml:"cli_agent"`
	Model         string   `yaml:"model"`
	MaxTurns      int      `yaml:"max_turns"`
	Timeout       int      `yaml:"timeout"`
	Verbose       bool     `yaml:"verbose"`
	UserWhitelist []string `yaml:"user_whitelist"`
}

// RemoteAgents configures remote descriptor loading.
type RemoteAgents struct {
	Enabled         bool          `yaml:"enabled"`
	CacheTimeoutMin int           `yaml:"cache_timeout_min"`
	RetryAttempts   int           `yaml:"retry_attempts"`
	RetryDelayMS    int           `yaml:"retry_delay_ms"`
	Sources         RemoteSources `yaml:"sources"`
}

// RemoteSources lists the configured remote descriptor sources.
type RemoteSources struct {
	Individual   []registry.IndividualSource `yaml:"individual"`
	Repositories []registry.RepositorySource `yaml:"repositories"`
}

// FileProcessing bounds file content exposed to prompts.
type FileProcessing struct {
	MaxFileSize     int      `yaml:"max_file_size"`
	IncludePatterns []string `yaml:"include_patterns"`
	ExcludePatterns []string `yaml:"exclude_patterns"`
}

// DiscoveryDefaults is the global agent_discovery section.
type DiscoveryDefaults struct {
	Enabled              bool `yaml:"enabled"`
	MaxAgentsInContext   int  `yaml:"max_agents_in_context"`
	IncludeSameDirectory bool `yaml:"include_same_directory"`
}

// FetchTuning carries cache/retry settings for prompt_uri fetches.
type FetchTuning struct {
	CacheTimeoutMin int `yaml:"cache_timeout_min"`
	RetryAttempts   int `yaml:"retry_attempts"`
	RetryDelayMS    int `yaml:"retry_delay_ms"`
}

// Config is the merged dispatcher configuration (§6.1): embedded defaults,
// then the local file, then the remote override, user values winning.
type Config struct {
	Defaults       Defaults                         `yaml:"defaults"`
	MCPConfigPath  string                           `yaml:"mcp_config_path"`
	RemoteAgents   RemoteAgents                     `yaml:"remote_agents"`
	FileProcessing FileProcessing                   `yaml:"file_processing"`
	AgentDiscovery DiscoveryDefaults                `yaml:"agent_discovery"`
	PromptURI      FetchTuning                      `yaml:"prompt_uri"`
	CLIAgents      map[string]execution.CLITemplate `yaml:"cli_agents"`
}

// CLIConfig projects the configuration into the orchestrator's view.
func (c *Config) CLIConfig() execution.CLIConfig {
	return execution.CLIConfig{
		DefaultCommand:        c.Defaults.CLICommand,
		DefaultAgent:          c.Defaults.CLIAgent,
		DefaultModel:          c.Defaults.Model,
		DefaultTimeoutMinutes: c.Defaults.Timeout,
		Agents:                c.CLIAgents,
	}
}

// ContextMap renders the merged configuration as the lookup tree command and
// prompt templates see under {{config.*}} and {{globalConfig.*}}.
func (c *Config) ContextMap() prompt.Context {
	data, err := yaml.Marshal(c)
	if err != nil {
		configLog.Printf("Failed to render config context: %v", err)
		return prompt.Context{}
	}
	var m map[string]any
	if err := yaml.Unmarshal(data, &m); err != nil {
		configLog.Printf("Failed to render config context: %v", err)
		return prompt.Context{}
	}
	return prompt.Context(m)
}

// RemoteConfig projects the configuration into the registry's view.
func (c *Config) RemoteConfig() registry.RemoteConfig {
	var sources []registry.IndividualSource
	sources = append(sources, c.RemoteAgents.Sources.Individual...)
	return registry.RemoteConfig{
		Enabled:      c.RemoteAgents.Enabled,
		CacheTTL:     time.Duration(c.RemoteAgents.CacheTimeoutMin) * time.Minute,
		Individual:   sources,
		Repositories: c.RemoteAgents.Sources.Repositories,
	}
}

var (
	configSchemaOnce sync.Once
	configSchema     *jsonschema.Schema
	configSchemaErr  error
)

func getCompiledConfigSchema() (*jsonschema.Schema, error) {
	configSchemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		var doc any
		if err := json.Unmarshal([]byte(configSchemaJSON), &doc); err != nil {
			configSchemaErr = fmt.Errorf("failed to parse config schema: %w", err)
			return
		}
		const url = "https://a5c.ai/schemas/config.json"
		if err := compiler.AddResource(url, doc); err != nil {
			configSchemaErr = fmt.Errorf("failed to add config schema resource: %w", err)
			return
		}
		configSchema, configSchemaErr = compiler.Compile(url)
	})
	return configSchema, configSchemaErr
}

// LoadConfig builds the effective configuration: embedded defaults, the
// local file at path (default .a5c/config.yml) when present, then the remote
// override named by A5C_CONFIG_URI. Each layer is schema-validated before it
// is merged.
func LoadConfig(ctx context.Context, loader *resources.Loader, path string) (*Config, error) {
	if path == "" {
		path = constants.ConfigPath
	}

	merged, err := configLayer([]byte(defaultConfigYAML), "embedded defaults")
	if err != nil {
		return nil, err
	}

	data, found, err := loader.Load(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if found {
		layer, err := configLayer(data, path)
		if err != nil {
			return nil, err
		}
		merged = deepMerge(merged, layer)
		configLog.Printf("Merged config file: %s", path)
	}

	if uri := os.Getenv(ConfigURIEnv); uri != "" {
		data, found, err := loader.Load(ctx, uri)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch remote config %s: %w", uri, err)
		}
		if !found {
			return nil, fmt.Errorf("remote config %s not found", uri)
		}
		layer, err := configLayer(data, uri)
		if err != nil {
			return nil, err
		}
		merged = deepMerge(merged, layer)
		configLog.Printf("Merged remote config: %s", uri)
	}

	out, err := yaml.Marshal(merged)
	if err != nil {
		return nil, fmt.Errorf("failed to re-serialize merged config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(out, &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode merged config: %w", err)
	}
	return &cfg, nil
}

// configLayer parses one YAML layer and validates it against the embedded
// schema.
func configLayer(data []byte, origin string) (map[string]any, error) {
	var layer map[string]any
	if err := yaml.Unmarshal(data, &layer); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", origin, err)
	}
	if layer == nil {
		layer = make(map[string]any)
	}

	schema, err := getCompiledConfigSchema()
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(layer)
	if err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", origin, err)
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", origin, err)
	}
	if err := schema.Validate(doc); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", origin, err)
	}
	return layer, nil
}

// deepMerge merges src over dst: nested mappings merge recursively, every
// other value is replaced.
func deepMerge(dst, src map[string]any) map[string]any {
	out := make(map[string]any, len(dst)+len(src))
	for k, v := range dst {
		out[k] = v
	}
	for k, v := range src {
		srcMap, srcOK := v.(map[string]any)
		dstMap, dstOK := out[k].(map[string]any)
		if srcOK && dstOK {
			out[k] = deepMerge(dstMap, srcMap)
			continue
		}
		out[k] = v
	}
	return out
}
