package descriptor

import (
	"regexp"
	"strings"

	"github.com/a5c-ai/runner/pkg/constants"
	"github.com/a5c-ai/runner/pkg/logger"
)

var validateLog = logger.New("descriptor:validate")

var (
	idPattern      = regexp.MustCompile(`^[a-z0-9_-]+$`)
	mentionPattern = regexp.MustCompile(`^@[a-zA-Z0-9_-]+$`)
	// a5c://<org>/<repo>/<path>@<version-range>
	a5cRefPattern = regexp.MustCompile(`^a5c://[^/@\s]+/[^/@\s]+/[^@\s]+@\S+$`)
)

// allowedFromSchemes are the URI schemes a "from" reference may use.
var allowedFromSchemes = []string{"file://", "http://", "https://", "a5c://", "agent://"}

// Validate checks a parsed descriptor against the schema and the content
// policy, returning a ValidationError that carries every violation found.
func Validate(d *Descriptor) error {
	validateLog.Printf("Validating descriptor: id=%s, source=%s", d.ID, d.Source)
	var violations []Violation

	schemaViolations, err := validateAgainstSchema(d.Frontmatter)
	if err != nil {
		return err
	}
	violations = append(violations, schemaViolations...)

	if d.ID == "" {
		violations = append(violations, Violation{Field: "id", Reason: "must not be empty"})
	} else if !idPattern.MatchString(d.ID) {
		violations = append(violations, Violation{Field: "id", Reason: "must match ^[a-z0-9_-]+$"})
	}

	// name, version and priority bounds are covered by the schema; the
	// checks below handle what the schema cannot express (normalized lists,
	// cron grammar, reference policy, content policy).
	for _, mention := range d.Mentions {
		if !mentionPattern.MatchString(mention) {
			violations = append(violations, Violation{Field: "mentions", Reason: "invalid mention token " + quoteSnippet(mention)})
		}
	}

	if d.Schedule != "" {
		if err := ValidateCron(d.Schedule); err != nil {
			violations = append(violations, Violation{Field: "schedule", Reason: err.Error()})
		}
	}

	if d.Priority < constants.MinPriority || d.Priority > constants.MaxPriority {
		violations = append(violations, Violation{Field: "priority", Reason: "must be in 0..100"})
	}
	violations = append(violations, validateFromReference(d.From)...)

	for _, reason := range DangerousContentReasons(d.PromptBody) {
		violations = append(violations, Violation{Field: "prompt_body", Reason: reason})
	}
	for _, reason := range DangerousContentReasons(d.CLICommand) {
		violations = append(violations, Violation{Field: "cli_command", Reason: reason})
	}

	if len(violations) > 0 {
		validateLog.Printf("Descriptor %s failed validation with %d violations", d.ID, len(violations))
		return &ValidationError{Source: d.Source.String(), Violations: violations}
	}
	return nil
}

func validateFromReference(from string) []Violation {
	if from == "" {
		return nil
	}
	var violations []Violation

	if idx := strings.Index(from, "://"); idx != -1 {
		allowed := false
		for _, scheme := range allowedFromSchemes {
			if strings.HasPrefix(from, scheme) {
				allowed = true
				break
			}
		}
		if !allowed {
			violations = append(violations, Violation{Field: "from", Reason: "scheme not allowed: " + from[:idx+3]})
		}
		if strings.HasPrefix(from, "a5c://") && !a5cRefPattern.MatchString(from) {
			violations = append(violations, Violation{Field: "from", Reason: "a5c reference must be a5c://<org>/<repo>/<path>@<version-range>"})
		}
	}

	if strings.Contains(from, "..") {
		violations = append(violations, Violation{Field: "from", Reason: "must not contain '..'"})
	}
	return violations
}
