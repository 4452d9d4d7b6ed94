package descriptor

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/a5c-ai/runner/pkg/logger"
)

var schemaLog = logger.New("descriptor:schema")

//go:embed schemas/agent_schema.json
var agentSchemaJSON string

var (
	agentSchemaOnce  sync.Once
	compiledSchema   *jsonschema.Schema
	agentSchemaError error
)

func getCompiledAgentSchema() (*jsonschema.Schema, error) {
	agentSchemaOnce.Do(func() {
		compiledSchema, agentSchemaError = compileSchema(agentSchemaJSON, "https://a5c.ai/schemas/agent.json")
	})
	return compiledSchema, agentSchemaError
}

func compileSchema(schemaJSON, schemaURL string) (*jsonschema.Schema, error) {
	schemaLog.Printf("Compiling JSON schema: %s", schemaURL)

	compiler := jsonschema.NewCompiler()

	var schemaDoc any
	if err := json.Unmarshal([]byte(schemaJSON), &schemaDoc); err != nil {
		return nil, fmt.Errorf("failed to parse schema JSON: %w", err)
	}
	if err := compiler.AddResource(schemaURL, schemaDoc); err != nil {
		return nil, fmt.Errorf("failed to add schema resource: %w", err)
	}
	schema, err := compiler.Compile(schemaURL)
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema: %w", err)
	}
	return schema, nil
}

// atPathPattern matches "- at '/path': message" lines in jsonschema errors.
var atPathPattern = regexp.MustCompile(`^-?\s*at '([^']*)': (.+)$`)

// validateAgainstSchema runs the frontmatter mapping through the embedded
// JSON schema and converts every reported failure into a Violation. YAML
// values are round-tripped through JSON so the schema sees canonical types.
func validateAgainstSchema(fm map[string]any) ([]Violation, error) {
	schema, err := getCompiledAgentSchema()
	if err != nil {
		return nil, err
	}

	raw, err := json.Marshal(fm)
	if err != nil {
		return nil, fmt.Errorf("failed to canonicalize frontmatter: %w", err)
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to canonicalize frontmatter: %w", err)
	}

	err = schema.Validate(doc)
	if err == nil {
		return nil, nil
	}
	return violationsFromSchemaError(err), nil
}

// violationsFromSchemaError extracts per-field violations from the line
// format jsonschema renders: "- at '/field': reason".
func violationsFromSchemaError(err error) []Violation {
	var out []Violation
	for _, line := range strings.Split(err.Error(), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "jsonschema validation failed") {
			continue
		}
		if matches := atPathPattern.FindStringSubmatch(line); matches != nil {
			field := strings.TrimPrefix(matches[1], "/")
			field = strings.ReplaceAll(field, "/", ".")
			if field == "" {
				field = "(root)"
			}
			out = append(out, Violation{Field: field, Reason: matches[2]})
			continue
		}
		out = append(out, Violation{Field: "(root)", Reason: line})
	}
	if len(out) == 0 {
		out = append(out, Violation{Field: "(root)", Reason: "schema validation failed"})
	}
	return out
}
