// Package execution launches one AI-CLI subprocess per dispatched agent:
// CLI template selection, command composition, the fd-3/fd-4 status and log
// back-channel, timeout enforcement and artifact capture.
package execution

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/sourcegraph/conc"

	"github.com/a5c-ai/runner/pkg/constants"
	"github.com/a5c-ai/runner/pkg/descriptor"
	"github.com/a5c-ai/runner/pkg/fileutil"
	"github.com/a5c-ai/runner/pkg/logger"
	"github.com/a5c-ai/runner/pkg/prompt"
	"github.com/a5c-ai/runner/pkg/resources"
)

var log = logger.New("execution:orchestrator")

// RunResult is the record of one agent subprocess run.
type RunResult struct {
	RunID         string         `json:"run_id"`
	AgentID       string         `json:"agent_id"`
	TriggeredBy   string         `json:"triggered_by"`
	Success       bool           `json:"success"`
	ExitCode      int            `json:"exit_code"`
	Stdout        string         `json:"stdout"`
	Stderr        string         `json:"stderr"`
	StatusReports []StatusReport `json:"status_reports,omitempty"`
	LogEntries    []LogEntry     `json:"log_entries,omitempty"`
	Artifacts     []string       `json:"artifacts,omitempty"`
	CostUSD       float64        `json:"cost_usd"`
	DurationMS    int64          `json:"duration_ms"`
	Err           error          `json:"-"`
	Error         string         `json:"error,omitempty"`
}

// Orchestrator executes resolved agents.
type Orchestrator struct {
	loader       *resources.Loader
	assembler    *prompt.Assembler
	cfg          CLIConfig
	artifactRoot string
	configCtx    prompt.Context

	// timeoutOverride short-circuits agentTimeout; tests use it to avoid
	// minute-granularity waits.
	timeoutOverride time.Duration
}

// NewOrchestrator builds an orchestrator writing per-run artifacts under
// artifactRoot.
func NewOrchestrator(loader *resources.Loader, cfg CLIConfig, artifactRoot string) *Orchestrator {
	return &Orchestrator{
		loader:       loader,
		assembler:    prompt.NewAssembler(loader),
		cfg:          cfg,
		artifactRoot: artifactRoot,
		configCtx:    defaultConfigContext(cfg),
	}
}

// SetConfigContext replaces the configuration tree exposed to command
// templates as {{config.*}} and {{globalConfig.*}}. The dispatcher installs
// its full merged configuration here; standalone orchestrators keep the
// CLIConfig-derived default.
func (o *Orchestrator) SetConfigContext(ctx prompt.Context) {
	if ctx != nil {
		o.configCtx = ctx
	}
}

// defaultConfigContext projects the CLI configuration into the shape the
// merged dispatcher configuration renders to.
func defaultConfigContext(cfg CLIConfig) prompt.Context {
	return prompt.Context{
		"defaults": prompt.Context{
			"cli_command": cfg.DefaultCommand,
			"cli_agent":   cfg.DefaultAgent,
			"model":       cfg.DefaultModel,
			"timeout":     cfg.DefaultTimeoutMinutes,
		},
	}
}

// Execute runs one agent subprocess with the given compiled prompt. The
// returned result always carries whatever stdout/stderr and back-channel
// records were collected, including on timeout and non-zero exit.
func (o *Orchestrator) Execute(ctx context.Context, d *descriptor.Descriptor, promptText, triggeredBy string, extra prompt.Context) *RunResult {
	start := time.Now()
	result := &RunResult{
		RunID:       ulid.Make().String(),
		AgentID:     d.ID,
		TriggeredBy: triggeredBy,
	}
	fail := func(err error) *RunResult {
		result.Err = err
		result.Error = err.Error()
		result.DurationMS = time.Since(start).Milliseconds()
		return result
	}

	runDir := filepath.Join(o.artifactRoot, result.RunID)
	if err := fileutil.EnsureDir(runDir); err != nil {
		return fail(fmt.Errorf("failed to create run directory: %w", err))
	}

	promptPath := filepath.Join(runDir, "prompt.md")
	if err := fileutil.WriteFileAtomic(promptPath, []byte(promptText), 0o644); err != nil {
		return fail(fmt.Errorf("failed to write prompt: %w", err))
	}
	mcpPath := filepath.Join(runDir, "mcp_config.json")
	if err := o.writeMCPConfig(mcpPath, d); err != nil {
		return fail(fmt.Errorf("failed to write MCP config: %w", err))
	}

	tpl, err := ResolveTemplate(d, o.cfg)
	if err != nil {
		return fail(err)
	}

	model := tpl.Model
	if model == "" {
		model = d.Model
	}
	if model == "" {
		model = o.cfg.DefaultModel
	}
	cmdCtx := prompt.Context{
		"prompt_path":     promptPath,
		"mcp_config_path": mcpPath,
		"model":           model,
		"max_turns":       d.MaxTurns,
		"verbose":         d.Verbose,
		"config":          o.configCtx,
		"globalConfig":    o.configCtx,
		"envs":            d.Envs,
	}
	if extra != nil {
		cmdCtx = cmdCtx.Merge(extra)
	}

	command := o.ComposeCommand(ctx, tpl, d, cmdCtx)
	commandPath := filepath.Join(runDir, "command.txt")
	if err := fileutil.WriteFileAtomic(commandPath, []byte(command), 0o644); err != nil {
		return fail(fmt.Errorf("failed to write command: %w", err))
	}

	timeout := o.timeoutOverride
	if timeout <= 0 {
		timeout = agentTimeout(d, o.cfg)
	}
	log.Printf("Executing agent %s: run=%s, timeout=%s", d.ID, result.RunID, timeout)

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	statusR, statusW, err := os.Pipe()
	if err != nil {
		return fail(fmt.Errorf("failed to create status pipe: %w", err))
	}
	logR, logW, err := os.Pipe()
	if err != nil {
		statusR.Close()
		statusW.Close()
		return fail(fmt.Errorf("failed to create log pipe: %w", err))
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(runCtx, "sh", "-c", command)
	cmd.Dir = o.loader.WorkingDir()
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.ExtraFiles = []*os.File{statusW, logW}
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		// Kill the whole process group so shell children die with the
		// shell.
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	cmd.Env = append(os.Environ(),
		fmt.Sprintf("%s=%d", constants.StatusFDEnv, constants.StatusFD),
		fmt.Sprintf("%s=%d", constants.LogFDEnv, constants.LogFD),
	)
	for k, v := range d.Envs {
		cmd.Env = append(cmd.Env, k+"="+v)
	}

	if err := cmd.Start(); err != nil {
		statusR.Close()
		statusW.Close()
		logR.Close()
		logW.Close()
		return fail(fmt.Errorf("failed to start subprocess: %w", err))
	}
	// The child holds its own copies of the write ends.
	statusW.Close()
	logW.Close()

	var wg conc.WaitGroup
	wg.Go(func() {
		result.StatusReports = readStatusReports(statusR)
		statusR.Close()
	})
	wg.Go(func() {
		result.LogEntries = readLogEntries(logR)
		logR.Close()
	})

	waitErr := cmd.Wait()
	wg.Wait()

	result.ExitCode = cmd.ProcessState.ExitCode()
	result.Stdout = stdout.String()
	result.Stderr = stderr.String()
	result.CostUSD = extractCost(result.StatusReports, result.LogEntries)
	result.DurationMS = time.Since(start).Milliseconds()
	result.Artifacts = o.writeArtifacts(runDir, result, promptPath, mcpPath, commandPath)

	switch {
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		result.Err = fmt.Errorf("agent %s after %s: %w", d.ID, timeout, ErrTimeoutExceeded)
		result.Error = result.Err.Error()
	case waitErr != nil:
		result.Err = &SubprocessExitError{Code: result.ExitCode, Stderr: result.Stderr}
		result.Error = result.Err.Error()
	default:
		result.Success = true
	}

	log.Printf("Agent %s finished: run=%s, success=%v, exit=%d, cost=%.4f, duration=%dms",
		d.ID, result.RunID, result.Success, result.ExitCode, result.CostUSD, result.DurationMS)
	return result
}

// writeArtifacts persists the captured streams next to the prompt, command
// and MCP config files and returns every artifact path. Partial output on a
// failed run is still published.
func (o *Orchestrator) writeArtifacts(runDir string, result *RunResult, fixed ...string) []string {
	artifacts := append([]string{}, fixed...)

	stdoutPath := filepath.Join(runDir, "stdout")
	if err := fileutil.WriteFileAtomic(stdoutPath, []byte(result.Stdout), 0o644); err != nil {
		log.Printf("Failed to write stdout artifact: %v", err)
	} else {
		artifacts = append(artifacts, stdoutPath)
	}
	stderrPath := filepath.Join(runDir, "stderr")
	if err := fileutil.WriteFileAtomic(stderrPath, []byte(result.Stderr), 0o644); err != nil {
		log.Printf("Failed to write stderr artifact: %v", err)
	} else {
		artifacts = append(artifacts, stderrPath)
	}
	return artifacts
}

// writeMCPConfig renders the agent's mcp_servers selection into the opaque
// per-run config file the CLI consumes via {{mcp_config_path}}.
func (o *Orchestrator) writeMCPConfig(path string, d *descriptor.Descriptor) error {
	servers := make(map[string]any, len(d.MCPServers))
	for _, name := range d.MCPServers {
		servers[name] = map[string]any{}
	}
	data, err := json.MarshalIndent(map[string]any{"mcpServers": servers}, "", "  ")
	if err != nil {
		return err
	}
	return fileutil.WriteFileAtomic(path, data, 0o644)
}

func agentTimeout(d *descriptor.Descriptor, cfg CLIConfig) time.Duration {
	switch {
	case d.TimeoutMinutes > 0:
		return time.Duration(d.TimeoutMinutes) * time.Minute
	case cfg.DefaultTimeoutMinutes > 0:
		return time.Duration(cfg.DefaultTimeoutMinutes) * time.Minute
	default:
		return constants.DefaultAgentTimeout
	}
}
