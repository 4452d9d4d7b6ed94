package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/a5c-ai/runner/pkg/cli"
	"github.com/a5c-ai/runner/pkg/console"
)

// Build-time variables set by GoReleaser
var version = "dev"

var (
	workingDirFlag string
	configFlag     string
)

var rootCmd = &cobra.Command{
	Use:     "a5c",
	Short:   "Event-driven agent dispatcher for repository automation",
	Version: version,
	Long: `a5c dispatches AI agents in response to repository events.

Agent descriptors live under .a5c/agents/ as *.agent.md files; the
dispatcher matches them against incoming events and mentions, then runs
the configured CLI tool for every match.

Common Tasks:
  a5c validate                      # Validate all agent descriptors
  a5c validate --watch              # Re-validate on file changes
  a5c list                          # Show the populated registry
  a5c run --event issue_comment --payload event.json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Dispatch agents for a webhook event payload",
	Long: `Read a webhook-style JSON payload, match agent descriptors against it
and execute every authorized match. Use "--payload -" to read the payload
from stdin.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		eventKind, _ := cmd.Flags().GetString("event")
		payloadPath, _ := cmd.Flags().GetString("payload")
		return cli.RunEvent(cmd.Context(), cli.RunOptions{
			WorkingDir:  workingDir(),
			EventKind:   eventKind,
			PayloadPath: payloadPath,
			ConfigPath:  configFlag,
		}, os.Stdout)
	},
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate all agent descriptors",
	Long: `Scan the agents directory and report every descriptor's validation
result. With --watch the scan repeats whenever a descriptor file changes.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		watch, _ := cmd.Flags().GetBool("watch")
		dir := workingDir()
		if watch {
			return cli.WatchAndValidate(dir, os.Stderr)
		}
		return cli.ValidateAgents(dir, os.Stdout)
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List all registered agents",
	Long:  `Populate the registry from the local scan and configured remote sources, then print every descriptor.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cli.ListAgents(cmd.Context(), workingDir(), configFlag, os.Stdout)
	},
}

func workingDir() string {
	if workingDirFlag != "" {
		return workingDirFlag
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "."
	}
	return cwd
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&workingDirFlag, "dir", "C", "", "Repository directory to operate in (default: current directory)")
	rootCmd.PersistentFlags().StringVar(&configFlag, "config", "", "Path to the configuration file (default: .a5c/config.yml)")

	runCmd.Flags().String("event", "", "Webhook event kind (push, issue_comment, ...)")
	runCmd.Flags().String("payload", "", "Path to the JSON event payload, or - for stdin")
	_ = runCmd.MarkFlagRequired("event")
	_ = runCmd.MarkFlagRequired("payload")

	validateCmd.Flags().Bool("watch", false, "Re-validate when descriptor files change")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(listCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, console.FormatErrorMessage(err.Error()))
		os.Exit(1)
	}
}
