// Package dispatch is the top-level entry point: for one repository event it
// loads configuration, populates the registry, runs the mention and event
// trigger passes, filters candidates by user authorization and executes the
// survivors sequentially, aggregating their run results.
package dispatch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/a5c-ai/runner/pkg/console"
	"github.com/a5c-ai/runner/pkg/constants"
	"github.com/a5c-ai/runner/pkg/descriptor"
	"github.com/a5c-ai/runner/pkg/execution"
	"github.com/a5c-ai/runner/pkg/fileutil"
	"github.com/a5c-ai/runner/pkg/githubapi"
	"github.com/a5c-ai/runner/pkg/logger"
	"github.com/a5c-ai/runner/pkg/prompt"
	"github.com/a5c-ai/runner/pkg/registry"
	"github.com/a5c-ai/runner/pkg/resources"
	"github.com/a5c-ai/runner/pkg/trigger"
)

var log = logger.New("dispatch:dispatcher")

// Summary is the dispatcher's aggregate output record (§6.6).
type Summary struct {
	Success          bool                   `json:"success"`
	AgentsRun        int                    `json:"agents_run"`
	AgentsSuccessful int                    `json:"agents_successful"`
	AgentsFailed     int                    `json:"agents_failed"`
	AgentResults     []*execution.RunResult `json:"agent_results"`
	SummaryText      string                 `json:"summary_text"`
}

// Options configures a Dispatcher.
type Options struct {
	// WorkingDir is the repository checkout the dispatch operates in.
	WorkingDir string
	// ConfigPath overrides the default .a5c/config.yml location.
	ConfigPath string
	// ArtifactRoot is where per-run artifact directories are created.
	ArtifactRoot string
	// Client is the injected repo-host client; nil selects the REST
	// implementation.
	Client githubapi.Client
}

// Dispatcher handles one event end to end.
type Dispatcher struct {
	cfg          *Config
	loader       *resources.Loader
	client       githubapi.Client
	registry     *registry.Registry
	engine       *trigger.Engine
	orchestrator *execution.Orchestrator
	assembler    *prompt.Assembler
}

// New loads configuration and wires the dispatch pipeline.
func New(ctx context.Context, opts Options) (*Dispatcher, error) {
	if opts.WorkingDir == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve working directory: %w", err)
		}
		opts.WorkingDir = cwd
	}
	token := os.Getenv(constants.GitHubTokenEnv)

	bootstrapLoader := resources.NewLoader(resources.Options{
		WorkingDir:  opts.WorkingDir,
		GitHubToken: token,
	})
	cfg, err := LoadConfig(ctx, bootstrapLoader, opts.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	// Rebuild the loader with the configured fetch tuning.
	loader := resources.NewLoader(resources.Options{
		WorkingDir:    opts.WorkingDir,
		GitHubToken:   token,
		CacheTTL:      time.Duration(cfg.PromptURI.CacheTimeoutMin) * time.Minute,
		RetryAttempts: cfg.PromptURI.RetryAttempts,
		RetryDelay:    time.Duration(cfg.PromptURI.RetryDelayMS) * time.Millisecond,
	})

	client := opts.Client
	if client == nil {
		client, err = githubapi.NewRESTClient()
		if err != nil {
			return nil, fmt.Errorf("failed to build host client: %w", err)
		}
	}

	artifactRoot := opts.ArtifactRoot
	if artifactRoot == "" {
		artifactRoot = ".a5c/runs"
	}
	if !filepath.IsAbs(artifactRoot) {
		artifactRoot = filepath.Join(opts.WorkingDir, artifactRoot)
	}
	artifactRoot, err = fileutil.ValidateAbsolutePath(artifactRoot)
	if err != nil {
		return nil, fmt.Errorf("invalid artifact root: %w", err)
	}

	reg := registry.New(loader, client)
	orchestrator := execution.NewOrchestrator(loader, cfg.CLIConfig(), artifactRoot)
	orchestrator.SetConfigContext(cfg.ContextMap())
	return &Dispatcher{
		cfg:          cfg,
		loader:       loader,
		client:       client,
		registry:     reg,
		engine:       trigger.NewEngine(reg, client),
		orchestrator: orchestrator,
		assembler:    prompt.NewAssembler(loader),
	}, nil
}

// Registry exposes the dispatcher's registry, mainly for the CLI commands.
func (d *Dispatcher) Registry() *registry.Registry {
	return d.registry
}

// Config exposes the merged configuration.
func (d *Dispatcher) Config() *Config {
	return d.cfg
}

// LoadAgents populates the registry from the local scan and the configured
// remote sources.
func (d *Dispatcher) LoadAgents(ctx context.Context) error {
	if err := d.registry.LoadLocal(constants.AgentsDir); err != nil {
		return err
	}
	return d.registry.LoadRemote(ctx, d.cfg.RemoteConfig())
}

// Dispatch handles one event: mention pass first, then event pass, both in
// their prescribed orders, without cross-pass deduplication. One failing
// agent never stops the rest; cancellation skips whatever has not started.
func (d *Dispatcher) Dispatch(ctx context.Context, ev *trigger.EventContext) *Summary {
	summary := &Summary{Success: true}

	if err := d.LoadAgents(ctx); err != nil {
		log.Printf("Registry population failed: %v", err)
		summary.Success = false
		summary.SummaryText = console.FormatErrorMessage(fmt.Sprintf("registry load failed: %v", err))
		return summary
	}
	log.Printf("Dispatching %s event: actor=%s, repo=%s, agents=%d",
		ev.Kind, ev.Actor, ev.RepoFullName, d.registry.Len())

	content := d.engine.AssembleMentionContent(ctx, ev)
	candidates := d.engine.AgentsForMentions(ctx, content, ev.Kind)
	candidates = append(candidates, d.engine.AgentsForEvent(ctx, ev)...)
	log.Printf("Trigger passes produced %d candidates", len(candidates))

	auth := newAuthorizer(d)
	for _, candidate := range candidates {
		if ctx.Err() != nil {
			log.Printf("Dispatch cancelled; skipping remaining candidates")
			break
		}
		if !auth.allowed(ctx, candidate.Descriptor, ev) {
			log.Printf("Skipping %s: %v (actor=%s)", candidate.Descriptor.ID, ErrUnauthorized, ev.Actor)
			continue
		}

		result := d.executeCandidate(ctx, candidate, ev)
		if result == nil {
			continue
		}
		summary.AgentResults = append(summary.AgentResults, result)
		summary.AgentsRun++
		if result.Success {
			summary.AgentsSuccessful++
		} else {
			summary.AgentsFailed++
			summary.Success = false
		}
	}

	summary.SummaryText = d.summaryText(ev, summary)
	return summary
}

// executeCandidate resolves inheritance, compiles the prompt and runs the
// subprocess. Resolution failures skip the descriptor (nil result) so the
// rest of the dispatch proceeds.
func (d *Dispatcher) executeCandidate(ctx context.Context, candidate trigger.Match, ev *trigger.EventContext) *execution.RunResult {
	resolved, err := d.registry.ResolveForRun(ctx, candidate.Descriptor.ID)
	if err != nil {
		log.Printf("Skipping %s: %v", candidate.Descriptor.ID, err)
		return nil
	}

	tctx := d.promptContext(ctx, resolved, candidate, ev)
	promptText := d.assembler.Compile(ctx, resolved.PromptBody, resolved.Source.String(), tctx)
	return d.orchestrator.Execute(ctx, resolved, promptText, candidate.Reason, tctx)
}

// promptContext builds the compilation context the descriptor body and the
// CLI command template are expanded against.
func (d *Dispatcher) promptContext(ctx context.Context, resolved *descriptor.Descriptor, candidate trigger.Match, ev *trigger.EventContext) prompt.Context {
	var discovery []registry.Summary
	if resolved.Discovery.Enabled || d.cfg.AgentDiscovery.Enabled {
		effective := *resolved
		if !effective.Discovery.Enabled {
			effective.Discovery.Enabled = true
			effective.Discovery.IncludeSameDirectory = d.cfg.AgentDiscovery.IncludeSameDirectory
			if d.cfg.AgentDiscovery.MaxAgentsInContext > 0 {
				effective.Discovery.MaxInContext = d.cfg.AgentDiscovery.MaxAgentsInContext
			}
		}
		discovery = d.registry.Discover(&effective)
	}

	return prompt.Context{
		"agent": prompt.Context{
			"id":          resolved.ID,
			"name":        resolved.Name,
			"category":    resolved.Category,
			"description": resolved.Description,
		},
		"event": prompt.Context{
			"kind":         ev.Kind,
			"action":       ev.Action,
			"actor":        ev.Actor,
			"repo":         ev.RepoFullName,
			"branch":       ev.Branch,
			"sha":          ev.SHA,
			"title":        ev.Title,
			"body":         ev.Body,
			"comment_body": ev.CommentBody,
		},
		"activation": prompt.Context{
			"reason":        candidate.Reason,
			"mention_order": candidate.MentionOrder,
		},
		"files":     strings.Join(d.engine.ChangedFiles(ctx, ev), "\n"),
		"discovery": discovery,
		"envs":      resolved.Envs,
	}
}

// summaryText renders the human-readable block published next to the machine
// record.
func (d *Dispatcher) summaryText(ev *trigger.EventContext, s *Summary) string {
	var b strings.Builder
	b.WriteString(console.FormatSectionHeader(fmt.Sprintf("Dispatch summary: %s on %s", ev.Kind, ev.RepoFullName)))
	b.WriteString("\n")
	b.WriteString(console.FormatCountMessage(fmt.Sprintf("%d agent(s) run, %d succeeded, %d failed",
		s.AgentsRun, s.AgentsSuccessful, s.AgentsFailed)))
	b.WriteString("\n")
	for _, result := range s.AgentResults {
		line := fmt.Sprintf("%s (%s) exit=%d duration=%dms cost=$%.4f",
			result.AgentID, result.TriggeredBy, result.ExitCode, result.DurationMS, result.CostUSD)
		if result.Success {
			b.WriteString(console.FormatListItem(console.FormatSuccessMessage(line)))
		} else {
			b.WriteString(console.FormatListItem(console.FormatErrorMessage(line)))
		}
		b.WriteString("\n")
	}
	return b.String()
}
