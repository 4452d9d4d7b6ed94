package cli

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/a5c-ai/runner/pkg/console"
	"github.com/a5c-ai/runner/pkg/dispatch"
)

// ListAgents populates the registry (local scan plus configured remotes) and
// prints one block per descriptor.
func ListAgents(ctx context.Context, workingDir, configPath string, out io.Writer) error {
	d, err := dispatch.New(ctx, dispatch.Options{
		WorkingDir: workingDir,
		ConfigPath: configPath,
	})
	if err != nil {
		return err
	}
	if err := d.LoadAgents(ctx); err != nil {
		return err
	}

	agents := d.Registry().All()
	fmt.Fprintln(out, console.FormatSectionHeader(fmt.Sprintf("Registered agents (%d)", len(agents))))
	for _, agent := range agents {
		rows := [][2]string{
			{"id", agent.ID},
			{"name", agent.Name},
			{"source", agent.Source.String()},
			{"priority", strconv.Itoa(agent.Priority)},
		}
		if len(agent.Events) > 0 {
			rows = append(rows, [2]string{"events", strings.Join(agent.Events, ", ")})
		}
		if len(agent.Mentions) > 0 {
			rows = append(rows, [2]string{"mentions", strings.Join(agent.Mentions, ", ")})
		}
		if agent.Category != "" {
			rows = append(rows, [2]string{"category", agent.Category})
		}
		fmt.Fprintln(out, console.RenderKeyValues(rows))
	}
	return nil
}
