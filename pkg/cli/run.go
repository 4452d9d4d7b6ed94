package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/a5c-ai/runner/pkg/dispatch"
	"github.com/a5c-ai/runner/pkg/fileutil"
	"github.com/a5c-ai/runner/pkg/logger"
)

var runLog = logger.New("cli:run")

// RunOptions parameterizes one dispatch from the command line.
type RunOptions struct {
	// WorkingDir is the repository checkout; empty means the process cwd.
	WorkingDir string
	// EventKind is the webhook event name (push, issue_comment, ...).
	EventKind string
	// PayloadPath is the JSON payload file; "-" reads stdin.
	PayloadPath string
	// ConfigPath overrides the default configuration location.
	ConfigPath string
}

// RunEvent reads a webhook-style payload, dispatches it and prints the
// summary. The returned error is non-nil when any agent run failed.
func RunEvent(ctx context.Context, opts RunOptions, out io.Writer) error {
	if opts.EventKind == "" {
		return fmt.Errorf("event kind is required")
	}

	payload, err := readPayload(opts.PayloadPath)
	if err != nil {
		return err
	}
	ev, err := dispatch.EventFromPayload(opts.EventKind, payload)
	if err != nil {
		return err
	}
	runLog.Printf("Parsed %s payload: actor=%s, repo=%s", ev.Kind, ev.Actor, ev.RepoFullName)

	d, err := dispatch.New(ctx, dispatch.Options{
		WorkingDir: opts.WorkingDir,
		ConfigPath: opts.ConfigPath,
	})
	if err != nil {
		return err
	}

	summary := d.Dispatch(ctx, ev)
	fmt.Fprint(out, summary.SummaryText)
	if !summary.Success {
		return fmt.Errorf("%d agent run(s) failed", summary.AgentsFailed)
	}
	return nil
}

func readPayload(path string) ([]byte, error) {
	if path == "" {
		return nil, fmt.Errorf("event payload file is required")
	}
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	if !fileutil.FileExists(path) {
		return nil, fmt.Errorf("event payload not found: %s", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read event payload: %w", err)
	}
	return data, nil
}
