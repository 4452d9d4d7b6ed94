// Package constants centralizes the fixed values shared across the
// dispatcher: file suffixes, default hosts, timeouts, retry budgets and the
// security denylists applied to descriptors and fetched resources.
package constants

import "time"

// AgentFileSuffix is the reserved suffix that marks a file as an agent
// descriptor during the local registry scan.
const AgentFileSuffix = ".agent.md"

// AgentsDir is the conventional directory holding local agent descriptors.
const AgentsDir = ".a5c/agents"

// ConfigPath is the default location of the dispatcher configuration file.
const ConfigPath = ".a5c/config.yml"

// BasePromptToken is the only template expression substituted during
// inheritance resolution. Everything else is left for the prompt assembler.
const BasePromptToken = "{{base-prompt}}"

// DefaultAllowedHosts is the set of hostnames remote fetches may target when
// the configuration does not override the allow-list.
var DefaultAllowedHosts = []string{
	"github.com",
	"raw.githubusercontent.com",
	"api.github.com",
}

// ForbiddenPathPrefixes are system locations no loaded path may start with.
var ForbiddenPathPrefixes = []string{"/etc", "/proc", "/sys"}

// SuspiciousPathInfixes mark path segments that never belong in a descriptor
// or prompt resource reference.
var SuspiciousPathInfixes = []string{".git", ".env", ".ssh", ".aws"}

// Resource loader defaults (§4.1).
const (
	DefaultCacheTTL       = 60 * time.Minute
	DefaultRetryAttempts  = 3
	DefaultRetryDelay     = 1 * time.Second
	DefaultRequestTimeout = 30 * time.Second
)

// DefaultAgentTimeout bounds a single agent subprocess when neither the
// descriptor nor the configuration sets timeout_minutes.
const DefaultAgentTimeout = 30 * time.Minute

// DefaultPriority is assumed when a descriptor omits priority.
const DefaultPriority = 50

// Priority bounds (inclusive).
const (
	MinPriority = 0
	MaxPriority = 100
)

// MaxIncludeDepth bounds recursive template inclusion in the prompt
// assembler and recursive include expansion during descriptor loading.
const MaxIncludeDepth = 10

// PRFilesCacheTTL bounds how long changed-file lists fetched per pull
// request are reused by the trigger engine.
const PRFilesCacheTTL = 5 * time.Minute

// MentionDiffCommitLimit is how many trailing push commits contribute their
// patches to mention-pass content assembly.
const MentionDiffCommitLimit = 3

// Per-host rate limiting (§5): sliding window budget for outbound requests.
const (
	RateLimitWindow   = 60 * time.Second
	RateLimitRequests = 60
)

// Back-channel environment variable names handed to the subprocess. The
// values are inherited file descriptor numbers.
const (
	StatusFDEnv = "AGENT_STATUS_FD"
	LogFDEnv    = "AGENT_LOG_FD"
)

// Back-channel file descriptor numbers seen by the child process. Fds 3 and
// 4 are the first two ExtraFiles slots after stdin/stdout/stderr.
const (
	StatusFD = 3
	LogFD    = 4
)

// RemoteCacheTTL is the default TTL for remote repository agent listings.
const RemoteCacheTTL = 60 * time.Minute

// DefaultMaxAgentsInContext caps how many peer summaries agent discovery
// exposes to a single prompt.
const DefaultMaxAgentsInContext = 10

// DangerousCommandPatterns are command fragments that cause a descriptor's
// cli_command or prompt body to be rejected outright during validation.
// Single-word entries match on word boundaries; longer fragments match as
// substrings.
var DangerousCommandPatterns = []string{
	"rm -rf",
	"sudo",
	"mkfs",
	"dd if=",
	"chmod 777",
	"nc -l",
	":(){",
}

// PRMergePatterns detect a pull-request merge in a push head-commit message
// and capture the PR number. Matching is case-insensitive, first match wins
// (§6.3).
var PRMergePatterns = []string{
	`(?i)merge pull request #(\d+)`,
	`(?i)merged pull request #(\d+)`,
	`(?i)merge pr #(\d+)`,
	`(?i)squash and merge pull request #(\d+)`,
	`(?i)rebase and merge pull request #(\d+)`,
	`(?i)#(\d+) from \S+`,
}

// CLISelectionEnv overrides CLI template selection when set to a key present
// in the cli_agents mapping, or is used as a raw command otherwise.
const CLISelectionEnv = "A5C_CLI_TOOL"

// AzureProjectEnv, when set, makes model-based auto-selection prefer the
// azure_codex template over codex for OpenAI model names.
const AzureProjectEnv = "AZURE_OPENAI_PROJECT"

// GitHubTokenEnv supplies the token attached to GitHub-host requests.
const GitHubTokenEnv = "GITHUB_TOKEN"
