// Package descriptor parses, validates and resolves agent descriptor files:
// a YAML frontmatter header delimited by "---" lines followed by a free-form
// prompt body. Resolution applies the inheritance chain declared through the
// "from" field, producing the normalized unit the trigger engine and the
// execution orchestrator consume.
package descriptor

import (
	"fmt"
	"strings"
)

// SourceKind distinguishes where a descriptor was loaded from.
type SourceKind string

const (
	// SourceLocal marks descriptors read from the working directory scan.
	SourceLocal SourceKind = "local"
	// SourceRemote marks descriptors fetched from a configured remote.
	SourceRemote SourceKind = "remote"
)

// Source records a descriptor's provenance.
type Source struct {
	Kind SourceKind
	// Path is the filesystem path for local descriptors.
	Path string
	// URI is the fetch URI for remote descriptors.
	URI string
}

func (s Source) String() string {
	if s.Kind == SourceRemote {
		return s.URI
	}
	return s.Path
}

// AgentDiscovery configures which peer descriptors are summarized into an
// agent's prompt context.
type AgentDiscovery struct {
	Enabled              bool     `yaml:"enabled" json:"enabled"`
	IncludeSameDirectory bool     `yaml:"include_same_directory" json:"include_same_directory"`
	IncludeExternal      []string `yaml:"include_external" json:"include_external"`
	MaxInContext         int      `yaml:"max_in_context" json:"max_in_context"`
}

// Descriptor is a parsed agent descriptor. Before resolution From may point
// at a base descriptor; after resolution From is empty and PromptBody holds
// the final (possibly substituted) body.
type Descriptor struct {
	ID          string
	Name        string
	Description string
	Category    string
	Version     string
	Source      Source

	Events   []string
	Mentions []string
	Labels   []string
	Branches []string
	Paths    []string
	Schedule string
	Priority int

	UserWhitelist []string
	MCPServers    []string

	CLICommand     string
	CLIAgent       string
	Model          string
	MaxTurns       int
	TimeoutMinutes int
	Verbose        bool

	Envs                map[string]string
	InjectPromptToStdin bool
	InjectEnvsToPrompt  bool

	PromptURI  string
	PromptBody string

	From string

	UsageContext      string
	InvocationContext string

	Discovery AgentDiscovery

	// Frontmatter retains the raw header mapping; inheritance merging
	// operates on it so "set by the child" stays distinguishable from
	// "zero value".
	Frontmatter map[string]any
}

// Resolved reports whether the inheritance chain has been applied.
func (d *Descriptor) Resolved() bool {
	return d.From == ""
}

// Violation is a single schema or content violation.
type Violation struct {
	Field  string
	Reason string
}

func (v Violation) String() string {
	return fmt.Sprintf("%s: %s", v.Field, v.Reason)
}

// ValidationError carries every violation found in a descriptor, not only
// the first.
type ValidationError struct {
	Source     string
	Violations []Violation
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		parts = append(parts, v.String())
	}
	return fmt.Sprintf("invalid descriptor %s: %s", e.Source, strings.Join(parts, "; "))
}

// CircularInheritanceError reports a cycle in the "from" chain.
type CircularInheritanceError struct {
	Chain []string
}

func (e *CircularInheritanceError) Error() string {
	return fmt.Sprintf("circular inheritance: %s", strings.Join(e.Chain, " -> "))
}

// BaseNotFoundError reports an unresolvable "from" reference.
type BaseNotFoundError struct {
	Reference string
}

func (e *BaseNotFoundError) Error() string {
	return fmt.Sprintf("base descriptor not found: %s", e.Reference)
}

// NoMatchingVersionError reports that no published tag satisfies an a5c://
// version range.
type NoMatchingVersionError struct {
	Reference string
	Range     string
}

func (e *NoMatchingVersionError) Error() string {
	return fmt.Sprintf("no version matching %q for %s", e.Range, e.Reference)
}
