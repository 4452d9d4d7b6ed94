package descriptor

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/goccy/go-yaml"

	"github.com/a5c-ai/runner/pkg/constants"
	"github.com/a5c-ai/runner/pkg/logger"
)

var parseLog = logger.New("descriptor:frontmatter")

// FrontmatterResult holds the parsed header mapping and the prompt body.
type FrontmatterResult struct {
	Frontmatter map[string]any
	Body        string
}

// ExtractFrontmatter splits descriptor content into the YAML header block
// and the prompt body. A descriptor without a leading "---" header block is
// invalid.
func ExtractFrontmatter(content string) (*FrontmatterResult, error) {
	parseLog.Printf("Extracting frontmatter: size=%d bytes", len(content))
	lines := strings.Split(content, "\n")

	if len(lines) == 0 || strings.TrimSpace(lines[0]) != "---" {
		return nil, fmt.Errorf("missing frontmatter header block")
	}

	endIndex := -1
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == "---" {
			endIndex = i
			break
		}
	}
	if endIndex == -1 {
		return nil, fmt.Errorf("frontmatter not properly closed")
	}

	frontmatterYAML := strings.Join(lines[1:endIndex], "\n")

	// No-break spaces (U+00A0) break the YAML parser; normalize them.
	frontmatterYAML = strings.ReplaceAll(frontmatterYAML, "\u00A0", " ")

	var frontmatter map[string]any
	if err := yaml.Unmarshal([]byte(frontmatterYAML), &frontmatter); err != nil {
		return nil, fmt.Errorf("failed to parse frontmatter: %w", err)
	}
	if frontmatter == nil {
		frontmatter = make(map[string]any)
	}

	var body string
	if endIndex+1 < len(lines) {
		body = strings.Join(lines[endIndex+1:], "\n")
	}

	parseLog.Printf("Extracted frontmatter: fields=%d, body_size=%d bytes", len(frontmatter), len(body))
	return &FrontmatterResult{
		Frontmatter: frontmatter,
		Body:        strings.TrimSpace(body),
	}, nil
}

// Parse parses descriptor content from the given source into an unresolved
// Descriptor. The result is not yet validated; call Validate separately so
// callers can choose between fail-fast and log-and-skip policies.
func Parse(content string, source Source) (*Descriptor, error) {
	result, err := ExtractFrontmatter(content)
	if err != nil {
		return nil, fmt.Errorf("invalid descriptor %s: %w", source, err)
	}
	return FromFrontmatter(result.Frontmatter, result.Body, source)
}

// FromFrontmatter builds a Descriptor from an already-parsed header mapping.
func FromFrontmatter(fm map[string]any, body string, source Source) (*Descriptor, error) {
	d := &Descriptor{
		Source:      source,
		PromptBody:  body,
		Priority:    constants.DefaultPriority,
		Frontmatter: fm,
	}

	d.ID = stringField(fm, "id")
	if d.ID == "" {
		d.ID = idFromSource(source)
	}
	d.Name = stringField(fm, "name")
	if d.Name == "" {
		d.Name = defaultNameFromID(d.ID)
	}
	d.Description = stringField(fm, "description")
	d.Category = stringField(fm, "category")
	d.Version = stringField(fm, "version")

	var err error
	if d.Events, err = listField(fm, "events"); err != nil {
		return nil, err
	}
	if d.Mentions, err = listField(fm, "mentions"); err != nil {
		return nil, err
	}
	if d.Labels, err = listField(fm, "labels"); err != nil {
		return nil, err
	}
	if d.Branches, err = listField(fm, "branches"); err != nil {
		return nil, err
	}
	if d.Paths, err = listField(fm, "paths"); err != nil {
		return nil, err
	}
	if d.UserWhitelist, err = listField(fm, "user_whitelist"); err != nil {
		return nil, err
	}
	if d.MCPServers, err = listField(fm, "mcp_servers"); err != nil {
		return nil, err
	}

	d.Schedule = strings.TrimSpace(stringField(fm, "schedule"))
	if raw, ok := fm["priority"]; ok {
		p, err := intValue(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid descriptor %s: priority: %w", source, err)
		}
		d.Priority = p
	}

	d.CLICommand = stringField(fm, "cli_command")
	d.CLIAgent = stringField(fm, "cli_agent")
	d.Model = stringField(fm, "model")
	if raw, ok := fm["max_turns"]; ok {
		if d.MaxTurns, err = intValue(raw); err != nil {
			return nil, fmt.Errorf("invalid descriptor %s: max_turns: %w", source, err)
		}
	}
	if raw, ok := fm["timeout_minutes"]; ok {
		if d.TimeoutMinutes, err = intValue(raw); err != nil {
			return nil, fmt.Errorf("invalid descriptor %s: timeout_minutes: %w", source, err)
		}
	}
	d.Verbose = boolField(fm, "verbose")
	d.InjectPromptToStdin = boolField(fm, "inject_prompt_to_stdin")
	d.InjectEnvsToPrompt = boolField(fm, "inject_envs_to_prompt")

	if d.Envs, err = stringMapField(fm, "envs"); err != nil {
		return nil, fmt.Errorf("invalid descriptor %s: %w", source, err)
	}

	d.PromptURI = stringField(fm, "prompt_uri")
	d.From = strings.TrimSpace(stringField(fm, "from"))
	d.UsageContext = stringField(fm, "usage_context")
	d.InvocationContext = stringField(fm, "invocation_context")

	d.Discovery = discoveryField(fm)

	return d, nil
}

// Serialize renders a descriptor back into header + body form. The header
// is the retained frontmatter mapping, so Parse(Serialize(d)) yields an
// equivalent descriptor.
func Serialize(d *Descriptor) (string, error) {
	header, err := yaml.Marshal(d.Frontmatter)
	if err != nil {
		return "", fmt.Errorf("failed to marshal frontmatter: %w", err)
	}
	var b strings.Builder
	b.WriteString("---\n")
	b.Write(header)
	b.WriteString("---\n\n")
	b.WriteString(d.PromptBody)
	b.WriteString("\n")
	return b.String(), nil
}

func idFromSource(source Source) string {
	base := filepath.Base(source.String())
	base = strings.TrimSuffix(base, constants.AgentFileSuffix)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	return strings.ToLower(base)
}

// defaultNameFromID derives a display name from the id: hyphens and
// underscores become spaces and each word is capitalized.
func defaultNameFromID(id string) string {
	name := strings.NewReplacer("-", " ", "_", " ").Replace(id)
	words := strings.Fields(name)
	for i, word := range words {
		words[i] = strings.ToUpper(word[:1]) + word[1:]
	}
	return strings.Join(words, " ")
}

func stringField(fm map[string]any, key string) string {
	if v, ok := fm[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
		return fmt.Sprintf("%v", v)
	}
	return ""
}

func boolField(fm map[string]any, key string) bool {
	if v, ok := fm[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return false
}

func listField(fm map[string]any, key string) ([]string, error) {
	v, ok := fm[key]
	if !ok || v == nil {
		return nil, nil
	}
	list, err := NormalizeStringList(v)
	if err != nil {
		return nil, fmt.Errorf("field %s: %w", key, err)
	}
	return list, nil
}

func intValue(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case uint64:
		return int(n), nil
	case float64:
		return int(n), nil
	default:
		return 0, fmt.Errorf("expected integer, got %T", v)
	}
}

func stringMapField(fm map[string]any, key string) (map[string]string, error) {
	v, ok := fm[key]
	if !ok || v == nil {
		return nil, nil
	}
	raw, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("field %s: expected mapping, got %T", key, v)
	}
	out := make(map[string]string, len(raw))
	for k, val := range raw {
		if s, ok := val.(string); ok {
			out[k] = s
		} else {
			out[k] = fmt.Sprintf("%v", val)
		}
	}
	return out, nil
}

func discoveryField(fm map[string]any) AgentDiscovery {
	d := AgentDiscovery{MaxInContext: constants.DefaultMaxAgentsInContext}
	raw, ok := fm["agent_discovery"].(map[string]any)
	if !ok {
		return d
	}
	d.Enabled = boolField(raw, "enabled")
	d.IncludeSameDirectory = boolField(raw, "include_same_directory")
	if list, err := listField(raw, "include_external"); err == nil {
		d.IncludeExternal = list
	}
	if v, ok := raw["max_in_context"]; ok {
		if n, err := intValue(v); err == nil && n > 0 {
			d.MaxInContext = n
		}
	}
	return d
}
